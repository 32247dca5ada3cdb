package search

import "fmt"

// Result is a single entry hit returned to the caller.
type Result struct {
	Type    string `json:"type"`
	UUID    string `json:"uuid"`
	FormRef string `json:"form_ref"`
	Title   string `json:"title"`
}

// Query describes a title search within one project.
type Query struct {
	ProjectID int64
	Text      string
	Limit     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a title search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer pushes entry titles into a search index.
type Indexer interface {
	IndexEntries(records []EntryRecord) error
}

// EntryRecord is the data we index for an entry or branch entry.
type EntryRecord struct {
	ID        string `json:"id"`
	ProjectID int64  `json:"projectId"`
	UUID      string `json:"uuid"`
	FormRef   string `json:"formRef"`
	Title     string `json:"title"`
	Type      string `json:"type"`
}

const (
	typeEntry       = "entry"
	typeBranchEntry = "branch_entry"
)

// NewEntryRecord builds the index record of an entry. The id is unique across
// projects and entry kinds.
func NewEntryRecord(projectID int64, uuid, formRef, title string, branch bool) EntryRecord {
	typ := typeEntry
	if branch {
		typ = typeBranchEntry
	}
	return EntryRecord{
		ID:        fmt.Sprintf("%d_%s_%s", projectID, typ, uuid),
		ProjectID: projectID,
		UUID:      uuid,
		FormRef:   formRef,
		Title:     title,
		Type:      typ,
	}
}
