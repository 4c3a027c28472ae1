package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"keysaccounting-api/internal/ledger"
	"keysaccounting-api/internal/model"
	"keysaccounting-api/internal/repository"
	"keysaccounting-api/internal/resolve"
)

// Directory answers questions about employees.
type Directory struct {
	employees repository.EmployeeRepository
	ledger    *ledger.Ledger
	resolver  resolve.Resolver

	// registerMu makes the duplicate check and the append one step.
	registerMu sync.Mutex
}

// NewDirectory creates a directory. The ledger is used to find names of
// people who held keys but are no longer registered.
func NewDirectory(employees repository.EmployeeRepository, l *ledger.Ledger, resolver resolve.Resolver) *Directory {
	return &Directory{
		employees: employees,
		ledger:    l,
		resolver:  resolver,
	}
}

// ByTelegramID finds an employee by chat identity.
func (d *Directory) ByTelegramID(ctx context.Context, telegramID string) (*model.Employee, error) {
	return d.employees.EmployeeByTelegramID(ctx, telegramID)
}

// ByName finds the first employee with the given first and last name.
func (d *Directory) ByName(ctx context.Context, firstName, lastName string) (*model.Employee, error) {
	employees, err := d.employees.Employees(ctx)
	if err != nil {
		return nil, err
	}
	for i := range employees {
		if employees[i].FirstName == firstName && employees[i].LastName == lastName {
			return &employees[i], nil
		}
	}
	return nil, fmt.Errorf("employee %s %s: %w", firstName, lastName, repository.ErrNotFound)
}

// Approver returns the employee who approves key requests: the first one
// in the table holding the security role.
func (d *Directory) Approver(ctx context.Context) (*model.Employee, error) {
	employees, err := d.employees.Employees(ctx)
	if err != nil {
		return nil, err
	}
	for i := range employees {
		if employees[i].HasRole(model.RoleSecurity) {
			return &employees[i], nil
		}
	}
	return nil, ErrNoApprover
}

// CheckPermission returns the employee if they hold role or are an admin.
func (d *Directory) CheckPermission(ctx context.Context, telegramID, role string) (*model.Employee, error) {
	emp, err := d.ByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if !emp.HasRole(role) && !emp.HasRole(model.RoleAdmin) {
		return nil, fmt.Errorf("%s lacks role %s: %w", telegramID, role, ErrForbidden)
	}
	return emp, nil
}

// Register adds a new employee without roles; an administrator grants them.
func (d *Directory) Register(ctx context.Context, emp model.Employee) (*model.Employee, error) {
	emp.TelegramID = strings.TrimSpace(emp.TelegramID)
	emp.FirstName = strings.TrimSpace(emp.FirstName)
	emp.LastName = strings.TrimSpace(emp.LastName)
	if emp.TelegramID == "" || emp.FirstName == "" || emp.LastName == "" {
		return nil, fmt.Errorf("telegram id, first and last name are required: %w", ErrInvalidEmployee)
	}

	phone, err := NormalizePhone(emp.PhoneNumber)
	if err != nil {
		return nil, err
	}
	emp.PhoneNumber = phone
	emp.Roles = model.ParseRoles(strings.Join(emp.Roles, ","))

	d.registerMu.Lock()
	defer d.registerMu.Unlock()

	_, err = d.employees.EmployeeByTelegramID(ctx, emp.TelegramID)
	switch {
	case err == nil:
		return nil, ErrAlreadyRegistered
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	if err := d.employees.AppendEmployee(ctx, emp); err != nil {
		return nil, err
	}

	log.Printf("[Directory] Registered %s (%s)", emp.FullName(), emp.TelegramID)
	return &emp, nil
}

// FindEmployees resolves a free-text name against everyone in the directory
// and the ledger. Words may be typed in any order.
func (d *Directory) FindEmployees(ctx context.Context, query string) ([]model.EmployeeSnapshot, error) {
	employees, err := d.employees.Employees(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := d.ledger.AllEntries(ctx)
	if err != nil {
		return nil, err
	}

	people := make(map[string]model.EmployeeSnapshot)
	candidates := make([]string, 0)
	add := func(snap model.EmployeeSnapshot) {
		name := strings.TrimSpace(snap.FirstName + " " + snap.LastName)
		if name == "" {
			return
		}
		for _, variant := range resolve.Permutations(name) {
			if _, ok := people[variant]; ok {
				continue
			}
			people[variant] = snap
			candidates = append(candidates, variant)
		}
	}

	for i := range employees {
		add(employees[i].Snapshot())
	}
	for _, e := range entries {
		add(model.EmployeeSnapshot{FirstName: e.EmployeeFirstName, LastName: e.EmployeeLastName, Phone: e.EmployeePhone})
	}

	seen := make(map[string]struct{})
	found := make([]model.EmployeeSnapshot, 0)
	for _, match := range d.resolver.Resolve(query, candidates) {
		snap := people[match]
		id := snap.FirstName + "\x00" + snap.LastName
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		found = append(found, snap)
	}
	return found, nil
}

// NormalizePhone formats a phone number as +7XXXXXXXXXX. A leading 8 is
// read as the trunk prefix and replaced with 7.
func NormalizePhone(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return "", fmt.Errorf("phone %q has no digits: %w", raw, ErrInvalidEmployee)
	}

	switch {
	case strings.HasPrefix(digits, "8"):
		digits = "7" + digits[1:]
	case !strings.HasPrefix(digits, "7"):
		digits = "7" + digits
	}
	if len(digits) > 11 {
		digits = digits[:11]
	}
	return "+" + digits, nil
}
