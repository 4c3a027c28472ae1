package sheet

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
)

// Dialect holds the SQL that differs between database engines.
type Dialect struct {
	Name string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string

	// InsertSheet inserts a sheet row, ignoring duplicates.
	InsertSheet string

	// UpsertCell inserts or replaces a cell value.
	UpsertCell string

	// LockSuffix is appended to the capacity SELECT inside an append transaction.
	LockSuffix string
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }

// SQLiteDialect targets modernc.org/sqlite.
var SQLiteDialect = Dialect{
	Name:        "sqlite",
	Placeholder: questionMark,
	InsertSheet: `INSERT INTO grid_sheets (name, row_capacity) VALUES (?, 0) ON CONFLICT(name) DO NOTHING`,
	UpsertCell: `INSERT INTO grid_cells (sheet, row_idx, col_idx, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(sheet, row_idx, col_idx) DO UPDATE SET value = excluded.value`,
}

// PostgresDialect targets github.com/lib/pq.
var PostgresDialect = Dialect{
	Name:        "postgres",
	Placeholder: dollar,
	InsertSheet: `INSERT INTO grid_sheets (name, row_capacity) VALUES ($1, 0) ON CONFLICT (name) DO NOTHING`,
	UpsertCell: `INSERT INTO grid_cells (sheet, row_idx, col_idx, value) VALUES ($1, $2, $3, $4)
		ON CONFLICT (sheet, row_idx, col_idx) DO UPDATE SET value = EXCLUDED.value`,
	LockSuffix: " FOR UPDATE",
}

// MySQLDialect targets github.com/go-sql-driver/mysql.
var MySQLDialect = Dialect{
	Name:        "mysql",
	Placeholder: questionMark,
	InsertSheet: `INSERT IGNORE INTO grid_sheets (name, row_capacity) VALUES (?, 0)`,
	UpsertCell: `INSERT INTO grid_cells (sheet, row_idx, col_idx, value) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE value = VALUES(value)`,
	LockSuffix: " FOR UPDATE",
}

// schemaStatements are executed one by one; MySQL rejects multi-statement Exec.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS grid_sheets (
		name VARCHAR(191) NOT NULL PRIMARY KEY,
		row_capacity INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS grid_cells (
		sheet VARCHAR(191) NOT NULL,
		row_idx INTEGER NOT NULL,
		col_idx INTEGER NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (sheet, row_idx, col_idx)
	)`,
}

// SQLGrid stores sheets as individual cells in a relational database.
type SQLGrid struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex // serializes appends issued by this process
}

// NewSQLGrid wraps an open database. The schema is created if missing.
func NewSQLGrid(db *sql.DB, dialect Dialect) (*SQLGrid, error) {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create grid tables: %w", err)
		}
	}
	return &SQLGrid{db: db, dialect: dialect}, nil
}

func (g *SQLGrid) bind(query string) string {
	if g.dialect.Placeholder == nil {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(g.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Rows reads the whole sheet.
func (g *SQLGrid) Rows(ctx context.Context, sheet string) ([][]string, error) {
	query := g.bind(`SELECT row_idx, col_idx, value FROM grid_cells WHERE sheet = ? ORDER BY row_idx, col_idx`)

	rs, err := g.db.QueryContext(ctx, query, sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	defer rs.Close()

	rows := [][]string{}
	for rs.Next() {
		var rowIdx, colIdx int
		var value string
		if err := rs.Scan(&rowIdx, &colIdx, &value); err != nil {
			return nil, fmt.Errorf("failed to scan cell of sheet %s: %w", sheet, err)
		}
		if rowIdx < 1 || colIdx < 1 {
			continue
		}
		for len(rows) < rowIdx {
			rows = append(rows, nil)
		}
		row := rows[rowIdx-1]
		for len(row) < colIdx {
			row = append(row, "")
		}
		row[colIdx-1] = value
		rows[rowIdx-1] = row
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	return trimRows(rows), nil
}

// Append recomputes the sheet's used range, grows its capacity when needed
// and writes values at the first free row.
func (g *SQLGrid) Append(ctx context.Context, sheet string, values []string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, g.dialect.InsertSheet, sheet); err != nil {
		return 0, fmt.Errorf("failed to register sheet %s: %w", sheet, err)
	}

	var capacity int
	capQuery := g.bind(`SELECT row_capacity FROM grid_sheets WHERE name = ?`) + g.dialect.LockSuffix
	if err := tx.QueryRowContext(ctx, capQuery, sheet).Scan(&capacity); err != nil {
		return 0, fmt.Errorf("failed to read capacity of sheet %s: %w", sheet, err)
	}

	var last int
	lastQuery := g.bind(`SELECT COALESCE(MAX(row_idx), 0) FROM grid_cells WHERE sheet = ? AND value <> ''`)
	if err := tx.QueryRowContext(ctx, lastQuery, sheet).Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to compute used range of sheet %s: %w", sheet, err)
	}

	target := last + 1
	if target > capacity {
		grown := nextCapacity(capacity, target)
		growQuery := g.bind(`UPDATE grid_sheets SET row_capacity = ? WHERE name = ?`)
		if _, err := tx.ExecContext(ctx, growQuery, grown, sheet); err != nil {
			return 0, fmt.Errorf("failed to grow sheet %s: %w", sheet, err)
		}
		log.Printf("[SQLGrid] Grew sheet %q from %d to %d rows", sheet, capacity, grown)
	}

	for i, value := range values {
		if _, err := tx.ExecContext(ctx, g.dialect.UpsertCell, sheet, target, i+1, value); err != nil {
			return 0, fmt.Errorf("failed to write row %d of sheet %s: %w", target, sheet, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return target, nil
}

// UpdateCell overwrites a single cell.
func (g *SQLGrid) UpdateCell(ctx context.Context, sheet string, row, col int, value string) error {
	if row < 1 || col < 1 {
		return ErrInvalidCell
	}
	if _, err := g.db.ExecContext(ctx, g.dialect.UpsertCell, sheet, row, col, value); err != nil {
		return fmt.Errorf("failed to update cell (%d,%d) of sheet %s: %w", row, col, sheet, err)
	}
	return nil
}

// EnsureSheet registers the sheet.
func (g *SQLGrid) EnsureSheet(ctx context.Context, sheet string) error {
	if _, err := g.db.ExecContext(ctx, g.dialect.InsertSheet, sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	return nil
}

// Capacity returns the stored row capacity of a sheet.
func (g *SQLGrid) Capacity(ctx context.Context, sheet string) (int, error) {
	var capacity int
	err := g.db.QueryRowContext(ctx, g.bind(`SELECT row_capacity FROM grid_sheets WHERE name = ?`), sheet).Scan(&capacity)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read capacity of sheet %s: %w", sheet, err)
	}
	return capacity, nil
}

// Ping checks the database connection.
func (g *SQLGrid) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

// Close closes the database connection.
func (g *SQLGrid) Close() error {
	return g.db.Close()
}

// Dialect returns the engine name.
func (g *SQLGrid) Dialect() string {
	return g.dialect.Name
}

var _ Grid = (*SQLGrid)(nil)
