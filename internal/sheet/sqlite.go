package sheet

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// NewSQLiteGrid opens (or creates) a SQLite-backed grid.
// dbPath is the path to the database file (e.g., "./data/keys.db").
func NewSQLiteGrid(dbPath string) (*SQLGrid, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	g, err := NewSQLGrid(db, SQLiteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[SQLGrid] Initialized SQLite grid: %s", dbPath)
	return g, nil
}
