package sheet

import (
	"fmt"
	"strings"
)

// Open builds the grid for backend. target is the SQLite path or the
// server DSN; it is ignored for the memory backend.
func Open(backend, target string) (Grid, error) {
	switch strings.ToLower(backend) {
	case "memory":
		return NewMemoryGrid(), nil
	case "sqlite", "":
		return NewSQLiteGrid(target)
	case "postgres", "postgresql":
		return NewPostgresGrid(target)
	case "mysql":
		return NewMySQLGrid(target)
	default:
		return nil, fmt.Errorf("unsupported backend %q", backend)
	}
}
