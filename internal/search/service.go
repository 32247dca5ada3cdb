package search

import (
	"context"

	"epicollect/api/internal/logging"
	"epicollect/api/internal/store"
)

// TitleStore is the database fallback for title search.
type TitleStore interface {
	SearchTitles(ctx context.Context, projectID int64, text string, limit int) ([]store.TitleHit, error)
}

type index interface {
	Searcher
	Indexer
}

// Service is the facade that tries Meilisearch first and falls back to the
// database.
type Service struct {
	index  index
	titles TitleStore
	log    logging.Logger
}

// NewService creates a search service. m may be nil if Meilisearch is not
// configured.
func NewService(m *Meili, titles TitleStore, log logging.Logger) *Service {
	s := &Service{titles: titles, log: log}
	if m != nil {
		s.index = m
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.index != nil && s.index.Healthy() {
		results, total, err := s.index.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn(ctx, "meilisearch error, falling back to database", "error", err)
	}

	hits, err := s.titles.SearchTitles(ctx, q.ProjectID, q.Text, q.Limit)
	if err != nil {
		s.log.Error(ctx, "title search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		r := NewEntryRecord(q.ProjectID, h.UUID, h.FormRef, h.Title, h.Branch)
		results = append(results, Result{Type: r.Type, UUID: r.UUID, FormRef: r.FormRef, Title: r.Title})
	}
	return Response{Results: results, Total: len(results), Query: q.Text}
}

// IndexEntry indexes an accepted entry (fire-and-forget to Meilisearch).
func (s *Service) IndexEntry(ctx context.Context, r EntryRecord) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	log := s.log
	go func() {
		if err := s.index.IndexEntries([]EntryRecord{r}); err != nil {
			log.Warn(context.WithoutCancel(ctx), "index entry failed", "id", r.ID, "error", err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
