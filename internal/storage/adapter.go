// Package storage resolves where an entry's document lives and converges every
// write onto the side-table representation.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"epicollect/api/internal/entry"
)

// Location is where a document was read from.
type Location int

const (
	LocationNone Location = iota
	LocationInline
	LocationSideTable
)

func (l Location) String() string {
	switch l {
	case LocationInline:
		return "inline"
	case LocationSideTable:
		return "side_table"
	default:
		return "none"
	}
}

var ErrNoDocument = errors.New("entry has no document")

// Ref identifies an entry row. Branch selects the branch entry tables.
type Ref struct {
	EntryID int64
	Branch  bool
}

// Columns holds the raw JSON of both representations. A nil slice is SQL NULL.
type Columns struct {
	InlineEntry []byte
	InlineGeo   []byte
	SideEntry   []byte
	SideGeo     []byte
}

// RowStore is the row-level access the adapter needs. Implementations run
// inside the caller's transaction.
type RowStore interface {
	ReadColumns(ctx context.Context, ref Ref) (Columns, error)
	WriteSide(ctx context.Context, ref Ref, entryData, geoData []byte) error
	ClearInline(ctx context.Context, ref Ref) error
}

type Loaded struct {
	Document entry.Document
	Geo      entry.Geo
	Source   Location
}

type Adapter struct {
	rows RowStore
}

func New(rows RowStore) *Adapter {
	return &Adapter{rows: rows}
}

// Load reads the side table when it holds a document and falls back to the
// inline columns otherwise.
func (a *Adapter) Load(ctx context.Context, ref Ref) (Loaded, error) {
	cols, err := a.rows.ReadColumns(ctx, ref)
	if err != nil {
		return Loaded{}, fmt.Errorf("load entry %d: %w", ref.EntryID, err)
	}

	source, docData, geoData := Resolve(cols)
	if source == LocationNone {
		return Loaded{Source: LocationNone}, ErrNoDocument
	}

	var doc entry.Document
	if err := json.Unmarshal(docData, &doc); err != nil {
		return Loaded{}, fmt.Errorf("decode %s document of entry %d: %w", source, ref.EntryID, err)
	}
	geo, err := entry.DecodeGeo(geoData)
	if err != nil {
		return Loaded{}, fmt.Errorf("entry %d: %w", ref.EntryID, err)
	}
	return Loaded{Document: doc, Geo: geo, Source: source}, nil
}

// Resolve picks the representation to read. The side table wins whenever it
// holds a document.
func Resolve(cols Columns) (Location, []byte, []byte) {
	switch {
	case present(cols.SideEntry):
		return LocationSideTable, cols.SideEntry, cols.SideGeo
	case present(cols.InlineEntry):
		return LocationInline, cols.InlineEntry, cols.InlineGeo
	default:
		return LocationNone, nil, nil
	}
}

func present(b []byte) bool {
	return len(b) > 0 && string(b) != "null"
}

// Save writes doc and geo to the side table and nulls the inline columns,
// whatever the document was read from.
func (a *Adapter) Save(ctx context.Context, ref Ref, doc entry.Document, geo entry.Geo) error {
	docData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode entry %d: %w", ref.EntryID, err)
	}
	geoData, err := geo.Marshal()
	if err != nil {
		return fmt.Errorf("encode geo of entry %d: %w", ref.EntryID, err)
	}
	if err := a.rows.WriteSide(ctx, ref, docData, geoData); err != nil {
		return fmt.Errorf("write side table for entry %d: %w", ref.EntryID, err)
	}
	if err := a.rows.ClearInline(ctx, ref); err != nil {
		return fmt.Errorf("clear inline document of entry %d: %w", ref.EntryID, err)
	}
	return nil
}
