package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epicollect/api/internal/store"
)

type fakeIndex struct {
	mu      sync.Mutex
	healthy bool
	results []Result
	err     error
	indexed []EntryRecord
}

func (f *fakeIndex) Search(Query) ([]Result, int, error) {
	return f.results, len(f.results), f.err
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) IndexEntries(records []EntryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, records...)
	return nil
}

func (f *fakeIndex) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexed)
}

type fakeTitles struct {
	hits  []store.TitleHit
	err   error
	calls int
}

func (f *fakeTitles) SearchTitles(_ context.Context, _ int64, _ string, _ int) ([]store.TitleHit, error) {
	f.calls++
	return f.hits, f.err
}

func TestService_PrefersHealthyIndex(t *testing.T) {
	idx := &fakeIndex{healthy: true, results: []Result{{Type: "entry", UUID: "u1", Title: "H-1"}}}
	titles := &fakeTitles{}
	s := NewService(nil, titles, nil)
	s.index = idx

	resp := s.Search(context.Background(), Query{ProjectID: 7, Text: "H-1"})
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "u1", resp.Results[0].UUID)
	assert.Zero(t, titles.calls)
}

func TestService_FallsBackToDatabase(t *testing.T) {
	titles := &fakeTitles{hits: []store.TitleHit{
		{UUID: "u1", FormRef: "f_household", Title: "H-1"},
		{UUID: "b1", FormRef: "f_household", Title: "H-1 visit", Branch: true},
	}}

	for name, idx := range map[string]*fakeIndex{
		"no index":        nil,
		"unhealthy index": {healthy: false},
		"failing index":   {healthy: true, err: errors.New("boom")},
	} {
		t.Run(name, func(t *testing.T) {
			titles.calls = 0
			s := NewService(nil, titles, nil)
			if idx != nil {
				s.index = idx
			}
			resp := s.Search(context.Background(), Query{ProjectID: 7, Text: "H-1"})
			require.Len(t, resp.Results, 2)
			assert.Equal(t, "entry", resp.Results[0].Type)
			assert.Equal(t, "branch_entry", resp.Results[1].Type)
			assert.Equal(t, 1, titles.calls)
		})
	}
}

func TestService_DatabaseErrorYieldsEmptyResponse(t *testing.T) {
	s := NewService(nil, &fakeTitles{err: errors.New("down")}, nil)
	resp := s.Search(context.Background(), Query{ProjectID: 7, Text: "x"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Equal(t, "x", resp.Query)
}

func TestService_IndexEntry(t *testing.T) {
	idx := &fakeIndex{healthy: true}
	s := NewService(nil, &fakeTitles{}, nil)
	s.index = idx

	s.IndexEntry(context.Background(), NewEntryRecord(7, "u1", "f_household", "H-1", false))
	assert.Eventually(t, func() bool { return idx.count() == 1 }, time.Second, 10*time.Millisecond)

	idx.healthy = false
	s.IndexEntry(context.Background(), NewEntryRecord(7, "u2", "f_household", "H-2", false))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, idx.count())
}

func TestNewEntryRecord_IDIsUniquePerKind(t *testing.T) {
	a := NewEntryRecord(7, "u1", "f", "t", false)
	b := NewEntryRecord(7, "u1", "f", "t", true)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "7_entry_u1", a.ID)
	assert.Equal(t, "branch_entry", b.Type)
}

func TestHitToResult(t *testing.T) {
	raw := func(s string) json.RawMessage { b, _ := json.Marshal(s); return b }
	hit := meili.Hit{
		"type":    raw("entry"),
		"uuid":    raw("u1"),
		"formRef": raw("f_household"),
		"title":   raw(" H-1 "),
		"other":   json.RawMessage(`42`),
	}
	r := hitToResult(hit)
	assert.Equal(t, Result{Type: "entry", UUID: "u1", FormRef: "f_household", Title: "H-1"}, r)
}
