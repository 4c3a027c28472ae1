// Package ledger answers custody questions from the loan history and records
// new loans and returns.
package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"keysaccounting-api/internal/model"
	"keysaccounting-api/internal/repository"

	"github.com/jonboulle/clockwork"
)

// Ledger is the loan history of every key.
type Ledger struct {
	repo  repository.LedgerRepository
	clock clockwork.Clock
}

// New creates a ledger over repo.
func New(repo repository.LedgerRepository, clock clockwork.Clock) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ledger{repo: repo, clock: clock}
}

// AllEntries returns every entry in approval order, newest last.
func (l *Ledger) AllEntries(ctx context.Context) ([]model.LoanEntry, error) {
	return l.repo.Entries(ctx)
}

// OutstandingEntries returns entries whose key has not been returned.
func (l *Ledger) OutstandingEntries(ctx context.Context) ([]model.LoanEntry, error) {
	return l.filter(ctx, func(e *model.LoanEntry) bool {
		return e.Outstanding()
	})
}

// Outstanding returns the outstanding entry for key, if any.
func (l *Ledger) Outstanding(ctx context.Context, key string) (*model.LoanEntry, bool, error) {
	entries, err := l.repo.Entries(ctx)
	if err != nil {
		return nil, false, err
	}

	var found *model.LoanEntry
	for i := range entries {
		if entries[i].KeyName != key || !entries[i].Outstanding() {
			continue
		}
		if found != nil {
			log.Printf("[Ledger] Key %s has several outstanding entries (rows %d and %d)", key, found.Row, entries[i].Row)
		}
		found = &entries[i]
	}
	return found, found != nil, nil
}

// OutstandingFresh is Outstanding read past the cache, so it sees loans
// recorded by other processes sharing the grid.
func (l *Ledger) OutstandingFresh(ctx context.Context, key string) (*model.LoanEntry, bool, error) {
	l.repo.RefreshEntries(ctx)
	return l.Outstanding(ctx, key)
}

// CurrentState returns the most recent entry for key.
func (l *Ledger) CurrentState(ctx context.Context, key string) (*model.LoanEntry, bool, error) {
	entries, err := l.repo.Entries(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].KeyName == key {
			return &entries[i], true, nil
		}
	}
	return nil, false, nil
}

// RecordLoan appends an entry that starts now. The caller must have checked
// that the key is not outstanding.
func (l *Ledger) RecordLoan(ctx context.Context, key string, holder model.EmployeeSnapshot, comment string) (*model.LoanEntry, error) {
	entry, err := l.repo.AppendEntry(ctx, model.LoanEntry{
		KeyName:           key,
		EmployeeFirstName: holder.FirstName,
		EmployeeLastName:  holder.LastName,
		EmployeePhone:     holder.Phone,
		TimeReceived:      l.clock.Now(),
		Comment:           comment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record loan of %s: %w", key, err)
	}

	log.Printf("[Ledger] Key %s lent to %s (row %d)", key, entry.EmployeeName(), entry.Row)
	return entry, nil
}

// RecordReturn marks the outstanding entry for key as returned now.
// It reports false without error when nothing is outstanding.
func (l *Ledger) RecordReturn(ctx context.Context, key string) (*model.LoanEntry, bool, error) {
	entry, ok, err := l.Outstanding(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	now := l.clock.Now()
	if err := l.repo.SetReturnTime(ctx, entry.Row, now); err != nil {
		return nil, false, fmt.Errorf("failed to record return of %s: %w", key, err)
	}
	entry.TimeReturned = &now

	log.Printf("[Ledger] Key %s returned by %s (row %d)", key, entry.EmployeeName(), entry.Row)
	return entry, true, nil
}

// Overdue returns outstanding entries received more than threshold ago.
func (l *Ledger) Overdue(ctx context.Context, threshold time.Duration) ([]model.LoanEntry, error) {
	cutoff := l.clock.Now().Add(-threshold)
	return l.filter(ctx, func(e *model.LoanEntry) bool {
		return e.Outstanding() && e.TimeReceived.Before(cutoff)
	})
}

// KeyHistory returns every entry for key, oldest first.
func (l *Ledger) KeyHistory(ctx context.Context, key string) ([]model.LoanEntry, error) {
	return l.filter(ctx, func(e *model.LoanEntry) bool {
		return e.KeyName == key
	})
}

// EmployeeHistory returns every entry taken by the named employee.
func (l *Ledger) EmployeeHistory(ctx context.Context, firstName, lastName string) ([]model.LoanEntry, error) {
	return l.filter(ctx, func(e *model.LoanEntry) bool {
		return e.HeldBy(firstName, lastName)
	})
}

// HeldBy returns the keys the named employee currently holds.
func (l *Ledger) HeldBy(ctx context.Context, firstName, lastName string) ([]model.LoanEntry, error) {
	return l.filter(ctx, func(e *model.LoanEntry) bool {
		return e.Outstanding() && e.HeldBy(firstName, lastName)
	})
}

// KeyNames returns the distinct key names that appear in the ledger.
func (l *Ledger) KeyNames(ctx context.Context) ([]string, error) {
	entries, err := l.repo.Entries(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.KeyName]; ok {
			continue
		}
		seen[e.KeyName] = struct{}{}
		names = append(names, e.KeyName)
	}
	return names, nil
}

func (l *Ledger) filter(ctx context.Context, keep func(*model.LoanEntry) bool) ([]model.LoanEntry, error) {
	entries, err := l.repo.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.LoanEntry, 0)
	for i := range entries {
		if keep(&entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out, nil
}
