package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epicollect/api/internal/entry"
	"epicollect/api/internal/storage"
	"epicollect/api/internal/uniqueness"
)

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("EPICOLLECT_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("EPICOLLECT_TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	require.NoError(t, err)
	require.NoError(t, ApplyMigrations(ctx, db))
	return db, ctx
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db, ctx := openTestDB(t)

	require.NoError(t, goose.ResetContext(ctx, db, "migrations"))
	require.NoError(t, ApplyMigrations(ctx, db))
}

func TestEntryLifecyclePostgres(t *testing.T) {
	db, ctx := openTestDB(t)
	s := NewPostgresStore(db)

	p, err := s.UpsertProject(ctx, Project{Ref: "r1", Slug: "survey", Name: "Survey", Access: "public", Structure: []byte(`{"forms":[]}`)})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	e := Entry{ProjectID: p.ID, UUID: "7f1b3c52-2d0c-4a57-9a39-1f0c4c9d2e11", FormRef: "f1", DeviceID: "dev-1", CreatedAt: now, UploadedAt: now}
	require.NoError(t, s.WithinEntryLock(ctx, p.ID, e.UUID, func(tx *Tx) error {
		return tx.InsertEntry(ctx, &e)
	}))

	legacy := entry.Document{
		Type: entry.TypeEntry, ID: e.UUID,
		Attributes: entry.Attributes{Form: entry.FormAttribute{Ref: "f1"}},
		Entry:      entry.Body{EntryUUID: e.UUID, Answers: entry.Answers{"code": entry.Text("A1")}},
	}
	legacyJSON, err := json.Marshal(legacy)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE entries SET entry_data = $2 WHERE id = $1`, e.ID, string(legacyJSON))
	require.NoError(t, err)

	dup, err := s.HasDuplicate(ctx, uniqueness.Query{ProjectID: p.ID, FormRef: "f1", InputRef: "code", Value: "A1", ExcludeUUID: "other"})
	require.NoError(t, err)
	assert.True(t, dup, "inline documents take part in uniqueness")

	ref := storage.Ref{EntryID: e.ID}
	require.NoError(t, s.WithinEntryLock(ctx, p.ID, e.UUID, func(tx *Tx) error {
		adapter := storage.New(tx)
		loaded, err := adapter.Load(ctx, ref)
		if err != nil {
			return err
		}
		assert.Equal(t, storage.LocationInline, loaded.Source)
		return adapter.Save(ctx, ref, loaded.Document, loaded.Geo)
	}))

	cols, err := s.ReadColumns(ctx, ref)
	require.NoError(t, err)
	assert.Nil(t, cols.InlineEntry)
	assert.NotNil(t, cols.SideEntry)

	dup, err = s.HasDuplicate(ctx, uniqueness.Query{ProjectID: p.ID, FormRef: "f1", InputRef: "code", Value: "A1", ExcludeUUID: e.UUID})
	require.NoError(t, err)
	assert.False(t, dup, "an entry never collides with itself")
}

func TestEntryLockSerialisesPostgres(t *testing.T) {
	db, ctx := openTestDB(t)
	s := NewPostgresStore(db)

	p, err := s.UpsertProject(ctx, Project{Ref: "r1", Slug: "survey", Name: "Survey", Access: "public", Structure: []byte(`{"forms":[]}`)})
	require.NoError(t, err)

	const uuid = "0d6f1d2e-5b1c-4e7f-8a4e-0a3c2b1d9e77"
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.WithinEntryLock(ctx, p.ID, uuid, func(tx *Tx) error {
				if _, err := tx.LockEntry(ctx, p.ID, uuid, false); err == nil {
					return nil
				}
				now := time.Now().UTC()
				return tx.InsertEntry(ctx, &Entry{ProjectID: p.ID, UUID: uuid, FormRef: "f1", CreatedAt: now, UploadedAt: now})
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err, "the lock turns concurrent creates into one create and seven edits")
	}

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE uuid = $1`, uuid).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestHasDuplicateIgnoresJumpedAnswersPostgres(t *testing.T) {
	db, ctx := openTestDB(t)
	s := NewPostgresStore(db)

	p, err := s.UpsertProject(ctx, Project{Ref: "r1", Slug: "survey", Name: "Survey", Access: "public", Structure: []byte(`{"forms":[]}`)})
	require.NoError(t, err)

	now := time.Now().UTC()
	e := Entry{ProjectID: p.ID, UUID: "3c0e8b7a-91d4-4f5e-b2a6-6d1f0e9c4a21", FormRef: "f1", CreatedAt: now, UploadedAt: now}
	require.NoError(t, s.WithinEntryLock(ctx, p.ID, e.UUID, func(tx *Tx) error {
		return tx.InsertEntry(ctx, &e)
	}))

	doc := entry.Document{
		Type: entry.TypeEntry, ID: e.UUID,
		Attributes: entry.Attributes{Form: entry.FormAttribute{Ref: "f1"}},
		Entry: entry.Body{EntryUUID: e.UUID, Answers: entry.Answers{
			"code": {Kind: entry.KindScalar, Value: "H-6", WasJumped: true},
		}},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, s.WriteSide(ctx, storage.Ref{EntryID: e.ID}, data, []byte(`{}`)))

	dup, err := s.HasDuplicate(ctx, uniqueness.Query{ProjectID: p.ID, FormRef: "f1", InputRef: "code", Value: "H-6", ExcludeUUID: "other"})
	require.NoError(t, err)
	assert.False(t, dup)
}
