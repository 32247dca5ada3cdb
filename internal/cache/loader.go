package cache

import (
	"context"
	"fmt"

	"epicollect/api/internal/logging"
	"epicollect/api/internal/project"
	"epicollect/api/internal/store"
)

type ProjectSource interface {
	GetProjectBySlug(ctx context.Context, slug string) (store.Project, error)
}

// ProjectCache is satisfied by *RedisProjects.
type ProjectCache interface {
	Get(ctx context.Context, slug string) (*project.Project, bool, error)
	Put(ctx context.Context, p *project.Project) error
}

// Loader resolves a slug to an indexed project, reading through the cache
// when one is configured. Cache failures are logged and skipped.
type Loader struct {
	source ProjectSource
	cache  ProjectCache
	log    logging.Logger
}

func NewLoader(source ProjectSource, cache ProjectCache, log logging.Logger) *Loader {
	if log == nil {
		log = logging.Discard()
	}
	return &Loader{source: source, cache: cache, log: log}
}

func (l *Loader) Load(ctx context.Context, slug string) (*project.Project, error) {
	if l.cache != nil {
		p, ok, err := l.cache.Get(ctx, slug)
		if err != nil {
			l.log.Warn(ctx, "project cache read failed", "slug", slug, "error", err)
		} else if ok {
			return p, nil
		}
	}

	row, err := l.source.GetProjectBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	p, err := FromRow(row)
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		if err := l.cache.Put(ctx, p); err != nil {
			l.log.Warn(ctx, "project cache write failed", "slug", slug, "error", err)
		}
	}
	return p, nil
}

// FromRow parses and indexes a stored project.
func FromRow(row store.Project) (*project.Project, error) {
	structure, err := project.ParseStructure(row.Structure)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", row.Slug, err)
	}
	return project.New(row.ID, row.Ref, row.Slug, row.Name, project.Access(row.Access), structure)
}
