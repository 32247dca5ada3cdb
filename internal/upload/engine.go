// Package upload reconciles uploaded entries with what is already stored:
// it decides create or edit, authorises edits, enforces uniqueness, merges
// answers and persists the document.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"epicollect/api/internal/entry"
	"epicollect/api/internal/identity"
	"epicollect/api/internal/logging"
	"epicollect/api/internal/project"
	"epicollect/api/internal/storage"
	"epicollect/api/internal/store"
	"epicollect/api/internal/uniqueness"
)

// Tx is the transactional view of storage held while one uuid is reconciled.
type Tx interface {
	LockEntry(ctx context.Context, projectID int64, uuid string, branch bool) (store.Entry, error)
	FindEntry(ctx context.Context, projectID int64, uuid string, branch bool) (store.Entry, error)
	InsertEntry(ctx context.Context, e *store.Entry) error
	UpdateEntry(ctx context.Context, e store.Entry) error
	storage.RowStore
	uniqueness.Finder
}

// Store serialises reconciliations per (project, uuid). An error returned by
// fn discards everything fn wrote.
type Store interface {
	WithinEntryLock(ctx context.Context, projectID int64, uuid string, fn func(Tx) error) error
}

// Postgres adapts the Postgres store to Store.
func Postgres(s *store.PostgresStore) Store {
	return postgresStore{s: s}
}

type postgresStore struct {
	s *store.PostgresStore
}

func (p postgresStore) WithinEntryLock(ctx context.Context, projectID int64, uuid string, fn func(Tx) error) error {
	return p.s.WithinEntryLock(ctx, projectID, uuid, func(tx *store.Tx) error {
		return fn(tx)
	})
}

// Result is an accepted upload. Code and Title are identical for creates and
// edits.
type Result struct {
	Code    string
	Title   string
	Created bool
	Entry   store.Entry
}

type Engine struct {
	store Store
	log   logging.Logger
	now   func() time.Time
}

func NewEngine(s Store, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Discard()
	}
	return &Engine{store: s, log: log, now: time.Now}
}

// Reconcile applies one uploaded entry. Refusals are returned as *Rejection;
// any other error is a storage fault and nothing was written.
func (e *Engine) Reconcile(ctx context.Context, p *project.Project, payload entry.Payload, actor identity.Actor) (Result, error) {
	doc := payload.Data
	log := e.log.With("project", p.Slug, "uuid", doc.ID, "type", string(doc.Type))

	if !canUpload(actor, p.Private()) {
		log.Info(ctx, "upload refused", "role", string(actor.Role), "private", p.Private())
		return Result{}, reject(http.StatusForbidden, CodeNotMember, "upload")
	}

	answers, scope, rej := prepare(p, doc)
	if rej != nil {
		log.Info(ctx, "upload invalid", "code", rej.Code, "source", rej.Source)
		return Result{}, rej
	}
	doc.Entry.Answers = answers
	doc.Entry.EntryUUID = doc.ID

	var result Result
	err := e.store.WithinEntryLock(ctx, p.ID, doc.ID, func(tx Tx) error {
		r, err := e.reconcile(ctx, tx, p, doc, scope, actor)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			log.Info(ctx, "upload rejected", "code", rej.Code, "source", rej.Source)
			return Result{}, rej
		}
		log.Error(ctx, "upload failed", "error", err)
		return Result{}, fmt.Errorf("reconcile %s: %w", doc.ID, err)
	}

	log.Info(ctx, "upload accepted", "created", result.Created, "user_id", result.Entry.UserID)
	return result, nil
}

func (e *Engine) reconcile(ctx context.Context, tx Tx, p *project.Project, doc entry.Document, scope []project.InputDef, actor identity.Actor) (Result, error) {
	now := e.now().UTC()
	existing, err := tx.LockEntry(ctx, p.ID, doc.ID, doc.Branch())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return e.create(ctx, tx, p, doc, scope, actor, now)
	case err != nil:
		return Result{}, err
	}
	return e.edit(ctx, tx, p, existing, doc, scope, actor, now)
}

func (e *Engine) create(ctx context.Context, tx Tx, p *project.Project, doc entry.Document, scope []project.InputDef, actor identity.Actor, now time.Time) (Result, error) {
	row := store.Entry{
		ProjectID:  p.ID,
		UUID:       doc.ID,
		Branch:     doc.Branch(),
		FormRef:    doc.FormRef(),
		UserID:     actor.UserID,
		DeviceID:   actor.DeviceID,
		Platform:   doc.Entry.Platform,
		CreatedAt:  createdAt(doc, now),
		UploadedAt: now,
	}

	if doc.Branch() {
		owner, err := tx.FindEntry(ctx, p.ID, doc.OwnerUUID(), false)
		if errors.Is(err, store.ErrNotFound) || (err == nil && owner.FormRef != doc.FormRef()) {
			return Result{}, reject(http.StatusBadRequest, CodeMissingParent, "owner_entry_uuid")
		}
		if err != nil {
			return Result{}, err
		}
		row.OwnerEntryID = owner.ID
		row.OwnerUUID = owner.UUID
		row.OwnerInputRef = doc.OwnerInputRef()
	} else if parent := doc.Relationships.Parent.Data; parent != nil {
		pe, err := tx.FindEntry(ctx, p.ID, parent.ParentEntryUUID, false)
		if errors.Is(err, store.ErrNotFound) || (err == nil && pe.FormRef != parent.ParentFormRef) {
			return Result{}, reject(http.StatusBadRequest, CodeMissingParent, "parent_entry_uuid")
		}
		if err != nil {
			return Result{}, err
		}
		row.ParentUUID = pe.UUID
		row.ParentFormRef = pe.FormRef
	}

	if err := checkUnique(ctx, tx, row, doc.Entry.Answers, scope); err != nil {
		return Result{}, err
	}

	doc.Entry.DeviceID = actor.DeviceID
	if doc.Entry.CreatedAt == "" {
		doc.Entry.CreatedAt = row.CreatedAt.Format(time.RFC3339Nano)
	}
	geo := entry.Geo{}
	finish(&doc, geo, doc.Entry.Answers, scope)
	row.Title = doc.Entry.Title

	if err := tx.InsertEntry(ctx, &row); err != nil {
		return Result{}, err
	}
	if err := storage.New(tx).Save(ctx, storage.Ref{EntryID: row.ID, Branch: row.Branch}, doc, geo); err != nil {
		return Result{}, err
	}
	return Result{Code: CodeAccepted, Title: Title(CodeAccepted), Created: true, Entry: row}, nil
}

func (e *Engine) edit(ctx context.Context, tx Tx, p *project.Project, existing store.Entry, doc entry.Document, scope []project.InputDef, actor identity.Actor, now time.Time) (Result, error) {
	if !samePlacement(existing, doc) {
		return Result{}, invalid("id")
	}

	g := authorizeEdit(actor, existing)
	if !g.allowed {
		return Result{}, unauthorised()
	}

	if err := checkUnique(ctx, tx, existing, doc.Entry.Answers, scope); err != nil {
		return Result{}, err
	}

	adapter := storage.New(tx)
	ref := storage.Ref{EntryID: existing.ID, Branch: existing.Branch}
	loaded, err := adapter.Load(ctx, ref)
	switch {
	case errors.Is(err, storage.ErrNoDocument):
		loaded = storage.Loaded{
			Document: entry.Document{Entry: entry.Body{
				Answers:  entry.Answers{},
				DeviceID: existing.DeviceID,
				Platform: existing.Platform,
			}},
			Geo: entry.Geo{},
		}
	case err != nil:
		return Result{}, err
	}

	merged := entry.Merge(loaded.Document, doc)
	geo := loaded.Geo
	finish(&merged, geo, doc.Entry.Answers, scope)

	existing.Title = merged.Entry.Title
	existing.UploadedAt = now
	if g.promote {
		existing.UserID = actor.UserID
	}
	if err := tx.UpdateEntry(ctx, existing); err != nil {
		return Result{}, err
	}
	if err := adapter.Save(ctx, ref, merged, geo); err != nil {
		return Result{}, err
	}
	return Result{Code: CodeAccepted, Title: Title(CodeAccepted), Entry: existing}, nil
}

// samePlacement reports whether the upload targets the stored entry's form
// position. Placement never changes after creation.
func samePlacement(existing store.Entry, doc entry.Document) bool {
	if existing.FormRef != doc.FormRef() {
		return false
	}
	if existing.Branch {
		return existing.OwnerUUID == doc.OwnerUUID() && existing.OwnerInputRef == doc.OwnerInputRef()
	}
	return existing.ParentUUID == doc.ParentUUID()
}

func checkUnique(ctx context.Context, tx Tx, row store.Entry, answers entry.Answers, scope []project.InputDef) error {
	scopeUUID := row.ParentUUID
	if row.Branch {
		scopeUUID = row.OwnerUUID
	}
	err := uniqueness.New(tx).Check(ctx, scope, uniqueness.Candidate{
		ProjectID:     row.ProjectID,
		UUID:          row.UUID,
		FormRef:       row.FormRef,
		Branch:        row.Branch,
		OwnerInputRef: row.OwnerInputRef,
		ScopeUUID:     scopeUUID,
		Answers:       answers,
	})
	var v *uniqueness.Violation
	if errors.As(err, &v) {
		return notUnique(v.InputRef)
	}
	return err
}

// finish recomputes the title and regenerates geo features for the location
// answers of this upload.
func finish(doc *entry.Document, geo entry.Geo, incoming entry.Answers, scope []project.InputDef) {
	title := entry.Title(scope, doc.Entry.Answers, doc.ID)
	doc.Entry.Title = title
	meta := entry.FeatureMeta{UUID: doc.ID, Title: title, CreatedAt: doc.Entry.CreatedAt}
	for ref, a := range incoming {
		geo.Apply(ref, a, meta)
	}
	geo.Retitle(title)
}

func createdAt(doc entry.Document, now time.Time) time.Time {
	if doc.Entry.CreatedAt == "" {
		return now
	}
	if t := parseTime(doc.Entry.CreatedAt); t != nil {
		return t.UTC()
	}
	return now
}
