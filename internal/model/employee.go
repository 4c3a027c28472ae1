package model

import "strings"

// Well-known employee roles.
const (
	RoleUser     = "user"
	RoleSecurity = "security"
	RoleAdmin    = "admin"
)

// Employee represents a registered employee.
type Employee struct {
	TelegramID  string   `json:"telegram_id"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	PhoneNumber string   `json:"phone_number"`
	Roles       []string `json:"roles"`
}

// FullName returns "First Last".
func (e *Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// HasRole reports whether the employee holds the given role.
func (e *Employee) HasRole(role string) bool {
	for _, r := range e.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Snapshot copies the fields embedded into a loan entry.
func (e *Employee) Snapshot() EmployeeSnapshot {
	return EmployeeSnapshot{
		FirstName: e.FirstName,
		LastName:  e.LastName,
		Phone:     e.PhoneNumber,
	}
}

// EmployeeSnapshot is the denormalized copy of an employee stored in the ledger.
// It is never updated after the entry is written.
type EmployeeSnapshot struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// ParseRoles splits a stored role list ("user, security") into a set.
// Empty items are dropped and duplicates collapsed, first occurrence wins.
func ParseRoles(raw string) []string {
	roles := []string{}
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		role := strings.TrimSpace(part)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	return roles
}

// FormatRoles is the inverse of ParseRoles.
func FormatRoles(roles []string) string {
	return strings.Join(ParseRoles(strings.Join(roles, ",")), ", ")
}
