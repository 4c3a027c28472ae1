package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// SchemaError reports a row that is missing a required field.
type SchemaError struct {
	Table string
	Row   int
	Field string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s row %d: required field %q is empty", e.Table, e.Row, e.Field)
}

// FormatError reports a cell that could not be parsed.
type FormatError struct {
	Table string
	Row   int
	Field string
	Value string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s row %d: cannot parse %q as %s: %v", e.Table, e.Row, e.Value, e.Field, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// StoreUnavailableError wraps a failure of the backing grid.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// IsStoreUnavailable reports whether err came from the backing grid.
func IsStoreUnavailable(err error) bool {
	var target *StoreUnavailableError
	return errors.As(err, &target)
}
