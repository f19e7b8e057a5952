// internal/ledger/memory.go
package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a Store backed by an in-process table. It exists for
// tests and trial runs without an external ledger; semantics match the
// remote stores (1-indexed positions, canonical header labels).
type MemoryStore struct {
	mu   sync.RWMutex
	rows [][]string
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Append(_ context.Context, cells []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := make([]string, ColumnCount)
	copy(row, cells)
	m.rows = append(m.rows, row)
	return len(m.rows), nil
}

func (m *MemoryStore) Snapshot(_ context.Context) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Row, 0, len(m.rows))
	for i, row := range m.rows {
		cells := make(map[string]string, ColumnCount)
		for col, label := range Header {
			cells[label] = row[col]
		}
		out = append(out, Row{Position: i + 1, Cells: cells})
	}
	return out, nil
}

func (m *MemoryStore) UpdateCell(_ context.Context, position, column int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if position < 1 || position > len(m.rows) {
		return fmt.Errorf("ledger: no row at position %d", position)
	}
	if column < 1 || column > ColumnCount {
		return fmt.Errorf("ledger: no column %d", column)
	}
	m.rows[position-1][column-1] = value
	return nil
}
