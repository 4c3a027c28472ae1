package service

import (
	"errors"
	"fmt"
	"strings"

	"keysaccounting-api/internal/model"
)

var (
	// ErrRequestAlreadyPending is returned when the key already has a request awaiting approval.
	ErrRequestAlreadyPending = errors.New("a request for this key is already pending")

	// ErrKeyAlreadyOnLoan is matched by KeyOnLoanError.
	ErrKeyAlreadyOnLoan = errors.New("key is already on loan")

	// ErrRequestLapsed is returned when the request was already resolved or expired.
	ErrRequestLapsed = errors.New("request is no longer pending")

	// ErrNoApprover is returned when no employee can approve requests.
	ErrNoApprover = errors.New("no approver available")

	// ErrForbidden is returned when the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyRegistered is returned when the chat identity is already in the directory.
	ErrAlreadyRegistered = errors.New("employee already registered")

	// ErrInvalidEmployee is returned when registration data is incomplete.
	ErrInvalidEmployee = errors.New("invalid employee data")
)

// KeyOnLoanError carries the outstanding entry of a key that was requested.
type KeyOnLoanError struct {
	Entry model.LoanEntry
}

func (e *KeyOnLoanError) Error() string {
	return fmt.Sprintf("key %s is held by %s since %s",
		e.Entry.KeyName, e.Entry.EmployeeName(), e.Entry.TimeReceived.Format("02.01.2006 15:04"))
}

func (e *KeyOnLoanError) Is(target error) bool {
	return target == ErrKeyAlreadyOnLoan
}

// AmbiguousKeyError lists the keys a query could refer to.
type AmbiguousKeyError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousKeyError) Error() string {
	return fmt.Sprintf("key %q is ambiguous: %s", e.Query, strings.Join(e.Candidates, ", "))
}

// AmbiguousEmployeeError lists the employees a name query could refer to.
type AmbiguousEmployeeError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousEmployeeError) Error() string {
	return fmt.Sprintf("employee %q is ambiguous: %s", e.Query, strings.Join(e.Candidates, ", "))
}
