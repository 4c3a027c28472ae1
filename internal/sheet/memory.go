package sheet

import (
	"context"
	"sync"
)

type memorySheet struct {
	rows     [][]string
	capacity int
}

// MemoryGrid is an in-process Grid used for tests and throwaway deployments.
type MemoryGrid struct {
	mu     sync.RWMutex
	sheets map[string]*memorySheet
}

// NewMemoryGrid creates an empty in-memory grid.
func NewMemoryGrid() *MemoryGrid {
	return &MemoryGrid{sheets: make(map[string]*memorySheet)}
}

// Rows returns a copy of the sheet's rows.
func (g *MemoryGrid) Rows(ctx context.Context, sheet string) ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s, ok := g.sheets[sheet]
	if !ok {
		return [][]string{}, nil
	}

	rows := make([][]string, len(s.rows))
	for i, row := range s.rows {
		rows[i] = append([]string(nil), row...)
	}
	return trimRows(rows), nil
}

// Append writes values after the last non-empty row.
func (g *MemoryGrid) Append(ctx context.Context, sheet string, values []string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.sheet(sheet)

	last := 0
	for i, row := range s.rows {
		if !IsEmptyRow(row) {
			last = i + 1
		}
	}
	target := last + 1
	s.capacity = nextCapacity(s.capacity, target)

	for len(s.rows) < target {
		s.rows = append(s.rows, nil)
	}
	s.rows[target-1] = append([]string(nil), values...)
	return target, nil
}

// UpdateCell sets one cell, extending the sheet when the cell lies outside it.
func (g *MemoryGrid) UpdateCell(ctx context.Context, sheet string, row, col int, value string) error {
	if row < 1 || col < 1 {
		return ErrInvalidCell
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.sheet(sheet)
	s.capacity = nextCapacity(s.capacity, row)
	for len(s.rows) < row {
		s.rows = append(s.rows, nil)
	}
	r := s.rows[row-1]
	for len(r) < col {
		r = append(r, "")
	}
	r[col-1] = value
	s.rows[row-1] = r
	return nil
}

// EnsureSheet creates the sheet if needed.
func (g *MemoryGrid) EnsureSheet(ctx context.Context, sheet string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sheet(sheet)
	return nil
}

// Capacity returns the number of rows currently allocated to a sheet.
func (g *MemoryGrid) Capacity(sheet string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if s, ok := g.sheets[sheet]; ok {
		return s.capacity
	}
	return 0
}

// Ping always succeeds.
func (g *MemoryGrid) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (g *MemoryGrid) Close() error { return nil }

// sheet returns the named sheet, creating it. Caller holds the write lock.
func (g *MemoryGrid) sheet(name string) *memorySheet {
	s, ok := g.sheets[name]
	if !ok {
		s = &memorySheet{}
		g.sheets[name] = s
	}
	return s
}

var _ Grid = (*MemoryGrid)(nil)
