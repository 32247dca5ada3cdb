package app

import (
	"context"
	"errors"
	"fmt"

	"epicollect/api/internal/entry"
	"epicollect/api/internal/identity"
	"epicollect/api/internal/logging"
	"epicollect/api/internal/project"
	"epicollect/api/internal/rbac"
	"epicollect/api/internal/search"
	"epicollect/api/internal/storage"
	"epicollect/api/internal/store"
	"epicollect/api/internal/upload"
)

const webPlatform = "WEB"

type ProjectLoader interface {
	Load(ctx context.Context, slug string) (*project.Project, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, p *project.Project, payload entry.Payload, actor identity.Actor) (upload.Result, error)
}

type ActorResolver interface {
	Resolve(ctx context.Context, projectID int64, req identity.Request) (identity.Actor, error)
}

// Store is the read side used for entry read-back and readiness.
type Store interface {
	Ping(ctx context.Context) error
	FindEntry(ctx context.Context, projectID int64, uuid string, branch bool) (store.Entry, error)
	storage.RowStore
}

type Searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexEntry(ctx context.Context, r search.EntryRecord)
}

type Service struct {
	projects ProjectLoader
	engine   Reconciler
	actors   ActorResolver
	store    Store
	search   Searcher
	log      logging.Logger
}

type Deps struct {
	Projects ProjectLoader
	Engine   Reconciler
	Actors   ActorResolver
	Store    Store
	Search   Searcher
	Log      logging.Logger
}

func New(d Deps) *Service {
	if d.Log == nil {
		d.Log = logging.Discard()
	}
	return &Service{
		projects: d.Projects,
		engine:   d.Engine,
		actors:   d.Actors,
		store:    d.Store,
		search:   d.Search,
		log:      d.Log,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Upload runs one entry upload. userID is 0 for anonymous app uploads. Web
// uploads never carry a device id.
func (s *Service) Upload(ctx context.Context, slug string, userID int64, web bool, payload entry.Payload) (upload.Result, error) {
	p, err := s.project(ctx, slug)
	if err != nil {
		return upload.Result{}, err
	}

	if web {
		payload.Data.Entry.DeviceID = ""
		payload.Data.Entry.Platform = webPlatform
	}
	actor, err := s.actors.Resolve(ctx, p.ID, identity.Request{
		UserID:   userID,
		DeviceID: payload.Data.Entry.DeviceID,
		Web:      web,
	})
	if err != nil {
		return upload.Result{}, err
	}

	res, err := s.engine.Reconcile(ctx, p, payload, actor)
	if err != nil {
		return upload.Result{}, err
	}
	if s.search != nil {
		e := res.Entry
		s.search.IndexEntry(ctx, search.NewEntryRecord(p.ID, e.UUID, e.FormRef, e.Title, e.Branch))
	}
	return res, nil
}

// Entry returns the stored document of an entry.
func (s *Service) Entry(ctx context.Context, slug string, userID int64, uuid string, branch bool) (entry.Document, error) {
	p, err := s.viewable(ctx, slug, userID)
	if err != nil {
		return entry.Document{}, err
	}

	row, err := s.store.FindEntry(ctx, p.ID, uuid, branch)
	if errors.Is(err, store.ErrNotFound) {
		return entry.Document{}, entryMissing(uuid)
	}
	if err != nil {
		return entry.Document{}, err
	}

	loaded, err := storage.New(s.store).Load(ctx, storage.Ref{EntryID: row.ID, Branch: row.Branch})
	if errors.Is(err, storage.ErrNoDocument) {
		return entry.Document{}, entryMissing(uuid)
	}
	if err != nil {
		return entry.Document{}, err
	}
	s.log.Debug(ctx, "entry read", "project", slug, "uuid", uuid, "source", loaded.Source.String())
	return loaded.Document, nil
}

func (s *Service) Search(ctx context.Context, slug string, userID int64, text string, limit int) (search.Response, error) {
	p, err := s.viewable(ctx, slug, userID)
	if err != nil {
		return search.Response{}, err
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(ctx, search.Query{ProjectID: p.ID, Text: text, Limit: limit}), nil
}

func (s *Service) project(ctx context.Context, slug string) (*project.Project, error) {
	p, err := s.projects.Load(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, upload.ProjectMissing(slug)
	}
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", slug, err)
	}
	return p, nil
}

// viewable loads a project the user may read. Private projects need a role.
func (s *Service) viewable(ctx context.Context, slug string, userID int64) (*project.Project, error) {
	p, err := s.project(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !p.Private() {
		return p, nil
	}
	if userID <= 0 {
		return nil, unauthenticated()
	}
	actor, err := s.actors.Resolve(ctx, p.ID, identity.Request{UserID: userID, Web: true})
	if err != nil {
		return nil, err
	}
	if !rbac.Can(actor.Role, rbac.ActionViewEntries) {
		return nil, notMember()
	}
	return p, nil
}
