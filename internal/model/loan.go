package model

import "time"

// LoanEntry is one row of the loan ledger.
type LoanEntry struct {
	KeyName           string     `json:"key_name"`
	EmployeeFirstName string     `json:"employee_first_name"`
	EmployeeLastName  string     `json:"employee_last_name"`
	EmployeePhone     string     `json:"employee_phone"`
	TimeReceived      time.Time  `json:"time_received"`
	TimeReturned      *time.Time `json:"time_returned,omitempty"`
	Comment           string     `json:"comment,omitempty"`

	// Row is the 1-based position in the backing sheet.
	Row int `json:"row"`
}

// Outstanding reports whether the key is still out.
func (e *LoanEntry) Outstanding() bool {
	return e.TimeReturned == nil
}

// HeldBy reports whether the entry was issued to the named employee.
func (e *LoanEntry) HeldBy(firstName, lastName string) bool {
	return e.EmployeeFirstName == firstName && e.EmployeeLastName == lastName
}

// EmployeeName returns the snapshot name as "First Last".
func (e *LoanEntry) EmployeeName() string {
	return e.EmployeeFirstName + " " + e.EmployeeLastName
}
