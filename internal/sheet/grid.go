// Package sheet implements the row-oriented backing store: a set of named
// two-dimensional tables whose first row holds column headers.
package sheet

import (
	"context"
	"errors"
	"strings"
)

// GrowBy is the number of rows added when an append runs past a sheet's capacity.
const GrowBy = 100

// ErrInvalidCell is returned for row or column positions below 1.
var ErrInvalidCell = errors.New("invalid cell position")

// Grid is a spreadsheet-like tabular service. Rows and columns are 1-based.
type Grid interface {
	// Rows returns every row from the header row down to the last row holding data.
	// Trailing empty cells are trimmed. A missing sheet has no rows.
	Rows(ctx context.Context, sheet string) ([][]string, error)

	// Append writes values at the first free row, growing the sheet if needed,
	// and returns the row it was written to.
	Append(ctx context.Context, sheet string, values []string) (int, error)

	// UpdateCell overwrites a single cell.
	UpdateCell(ctx context.Context, sheet string, row, col int, value string) error

	// EnsureSheet creates the sheet if it does not exist.
	EnsureSheet(ctx context.Context, sheet string) error

	// Ping checks that the backing service is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// IsEmptyRow reports whether every cell of a row is blank.
func IsEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// trimRow drops trailing empty cells.
func trimRow(row []string) []string {
	end := len(row)
	for end > 0 && row[end-1] == "" {
		end--
	}
	return row[:end]
}

// trimRows drops trailing empty rows and trailing empty cells of each row.
func trimRows(rows [][]string) [][]string {
	for i := range rows {
		rows[i] = trimRow(rows[i])
	}
	end := len(rows)
	for end > 0 && len(rows[end-1]) == 0 {
		end--
	}
	return rows[:end]
}

// nextCapacity returns the capacity needed to hold row target.
func nextCapacity(capacity, target int) int {
	for capacity < target {
		capacity += GrowBy
	}
	return capacity
}
