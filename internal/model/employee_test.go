package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRoles(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", []string{}},
		{"blank", "   ", []string{}},
		{"single", "user", []string{"user"}},
		{"list", "user, security", []string{"user", "security"}},
		{"duplicates collapsed", "user,user , security", []string{"user", "security"}},
		{"empty items dropped", "user,,admin,", []string{"user", "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRoles(tt.raw))
		})
	}
}

func TestFormatRoles(t *testing.T) {
	assert.Equal(t, "user, security", FormatRoles([]string{"user", "security", "user"}))
	assert.Equal(t, "", FormatRoles(nil))
}

func TestEmployeeSnapshotIsCopy(t *testing.T) {
	emp := Employee{TelegramID: "1", FirstName: "Alice", LastName: "Smith", PhoneNumber: "+79990000000"}
	snap := emp.Snapshot()
	emp.PhoneNumber = "+70000000000"

	assert.Equal(t, "+79990000000", snap.Phone)
	assert.False(t, emp.HasRole("user"))
	assert.Equal(t, "Alice Smith", emp.FullName())
}
