package repository

import (
	"context"
	"time"

	"keysaccounting-api/internal/model"
)

// KeyRepository defines access to the Keys table.
type KeyRepository interface {
	// Keys returns every well-formed key row.
	Keys(ctx context.Context) ([]model.Key, error)

	// KeyByName finds a key by exact name. Returns ErrNotFound if absent.
	KeyByName(ctx context.Context, name string) (*model.Key, error)

	// AppendKey adds a key row.
	AppendKey(ctx context.Context, key model.Key) error
}

// EmployeeRepository defines access to the Employees table.
type EmployeeRepository interface {
	// Employees returns every well-formed employee row.
	Employees(ctx context.Context) ([]model.Employee, error)

	// EmployeeByTelegramID finds an employee. Returns ErrNotFound if absent.
	EmployeeByTelegramID(ctx context.Context, telegramID string) (*model.Employee, error)

	// AppendEmployee adds an employee row.
	AppendEmployee(ctx context.Context, emp model.Employee) error
}

// LedgerRepository defines access to the loan ledger.
type LedgerRepository interface {
	// Entries returns well-formed ledger rows in insertion order.
	Entries(ctx context.Context) ([]model.LoanEntry, error)

	// AppendEntry adds a ledger row and returns it with Row set.
	AppendEntry(ctx context.Context, entry model.LoanEntry) (*model.LoanEntry, error)

	// SetReturnTime writes the return time of the entry at row.
	SetReturnTime(ctx context.Context, row int, t time.Time) error

	// RefreshEntries drops any cached copy of the ledger.
	RefreshEntries(ctx context.Context)
}
