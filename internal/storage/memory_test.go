package storage

import (
	"context"
	"sync"
)

// memoryRows is an in-memory RowStore.
type memoryRows struct {
	mu   sync.Mutex
	rows map[Ref]Columns
}

func newMemoryRows() *memoryRows {
	return &memoryRows{rows: make(map[Ref]Columns)}
}

// Put seeds the raw columns of ref.
func (m *memoryRows) Put(ref Ref, cols Columns) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[ref] = cols
}

func (m *memoryRows) Columns(ref Ref) Columns {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[ref]
}

func (m *memoryRows) ReadColumns(_ context.Context, ref Ref) (Columns, error) {
	return m.Columns(ref), nil
}

func (m *memoryRows) WriteSide(_ context.Context, ref Ref, entryData, geoData []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cols := m.rows[ref]
	cols.SideEntry = append([]byte(nil), entryData...)
	cols.SideGeo = append([]byte(nil), geoData...)
	m.rows[ref] = cols
	return nil
}

func (m *memoryRows) ClearInline(_ context.Context, ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cols := m.rows[ref]
	cols.InlineEntry = nil
	cols.InlineGeo = nil
	m.rows[ref] = cols
	return nil
}
