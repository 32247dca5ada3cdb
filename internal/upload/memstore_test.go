package upload

import (
	"context"
	"encoding/json"
	"maps"
	"sync"

	"epicollect/api/internal/entry"
	"epicollect/api/internal/storage"
	"epicollect/api/internal/store"
	"epicollect/api/internal/uniqueness"
)

type rowKey struct {
	branch bool
	uuid   string
}

// memStore is an in-memory Store. A failing reconciliation restores the
// state it had before the lock was taken.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	rows      map[rowKey]store.Entry
	cols      map[storage.Ref]storage.Columns
	failWrite error
}

func newMemStore() *memStore {
	return &memStore{
		rows: make(map[rowKey]store.Entry),
		cols: make(map[storage.Ref]storage.Columns),
	}
}

func (s *memStore) WithinEntryLock(_ context.Context, _ int64, _ string, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, cols, next := maps.Clone(s.rows), maps.Clone(s.cols), s.nextID
	if err := fn(memTx{s}); err != nil {
		s.rows, s.cols, s.nextID = rows, cols, next
		return err
	}
	return nil
}

// seed stores a row whose document only exists in the inline columns.
func (s *memStore) seed(row store.Entry, doc entry.Document, geo entry.Geo) store.Entry {
	s.nextID++
	row.ID = s.nextID
	s.rows[rowKey{row.Branch, row.UUID}] = row
	docData, _ := json.Marshal(doc)
	geoData, _ := geo.Marshal()
	s.cols[storage.Ref{EntryID: row.ID, Branch: row.Branch}] = storage.Columns{InlineEntry: docData, InlineGeo: geoData}
	return row
}

func (s *memStore) row(uuid string, branch bool) (store.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[rowKey{branch, uuid}]
	return r, ok
}

func (s *memStore) columns(row store.Entry) storage.Columns {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols[storage.Ref{EntryID: row.ID, Branch: row.Branch}]
}

type memTx struct {
	s *memStore
}

func (t memTx) LockEntry(ctx context.Context, projectID int64, uuid string, branch bool) (store.Entry, error) {
	return t.FindEntry(ctx, projectID, uuid, branch)
}

func (t memTx) FindEntry(_ context.Context, projectID int64, uuid string, branch bool) (store.Entry, error) {
	r, ok := t.s.rows[rowKey{branch, uuid}]
	if !ok || r.ProjectID != projectID {
		return store.Entry{}, store.ErrNotFound
	}
	return r, nil
}

func (t memTx) InsertEntry(_ context.Context, e *store.Entry) error {
	t.s.nextID++
	e.ID = t.s.nextID
	t.s.rows[rowKey{e.Branch, e.UUID}] = *e
	return nil
}

func (t memTx) UpdateEntry(_ context.Context, e store.Entry) error {
	key := rowKey{e.Branch, e.UUID}
	if _, ok := t.s.rows[key]; !ok {
		return store.ErrNotFound
	}
	t.s.rows[key] = e
	return nil
}

func (t memTx) ReadColumns(_ context.Context, ref storage.Ref) (storage.Columns, error) {
	return t.s.cols[ref], nil
}

func (t memTx) WriteSide(_ context.Context, ref storage.Ref, entryData, geoData []byte) error {
	if t.s.failWrite != nil {
		return t.s.failWrite
	}
	c := t.s.cols[ref]
	c.SideEntry, c.SideGeo = entryData, geoData
	t.s.cols[ref] = c
	return nil
}

func (t memTx) ClearInline(_ context.Context, ref storage.Ref) error {
	c := t.s.cols[ref]
	c.InlineEntry, c.InlineGeo = nil, nil
	t.s.cols[ref] = c
	return nil
}

func (t memTx) HasDuplicate(ctx context.Context, q uniqueness.Query) (bool, error) {
	for key, r := range t.s.rows {
		if key.branch != q.Branch || r.ProjectID != q.ProjectID || r.FormRef != q.FormRef || r.UUID == q.ExcludeUUID {
			continue
		}
		scope := r.ParentUUID
		if r.Branch {
			if r.OwnerInputRef != q.OwnerInputRef {
				continue
			}
			scope = r.OwnerUUID
		}
		if q.ScopeUUID != "" && scope != q.ScopeUUID {
			continue
		}
		loaded, err := storage.New(t).Load(ctx, storage.Ref{EntryID: r.ID, Branch: r.Branch})
		if err != nil {
			continue
		}
		a, ok := loaded.Document.Entry.Answers[q.InputRef]
		if ok && !a.WasJumped && a.Value == q.Value {
			return true, nil
		}
	}
	return false, nil
}
