package repository

import "strings"

// TimeFormat is the layout of timestamps stored in the ledger.
const TimeFormat = "02.01.2006 15:04:05"

// Column headers, matched against row 1 of each sheet.
const (
	ColKeyName      = "Ключ"
	ColKeyCount     = "Количество"
	ColKeyType      = "Тип ключа"
	ColHardwareType = "Тип (Аппаратный)"

	ColFirstName  = "Имя"
	ColLastName   = "Фамилия"
	ColPhone      = "Телефон"
	ColTelegramID = "Телеграм"
	ColRoles      = "Роли"

	ColEntryPhone   = "Номер телефона"
	ColTimeReceived = "Время получения"
	ColTimeReturned = "Время сдачи"
	ColEntryComment = "Комментарий"
)

// Table describes one typed sheet of the workbook.
type Table struct {
	Sheet    string
	CacheKey string
	Headers  []string
}

var (
	KeysTable = Table{
		Sheet:    "Keys",
		CacheKey: "keys",
		Headers:  []string{ColKeyName, ColKeyCount, ColKeyType, ColHardwareType},
	}

	EmployeesTable = Table{
		Sheet:    "Employees",
		CacheKey: "employees",
		Headers:  []string{ColFirstName, ColLastName, ColPhone, ColTelegramID, ColRoles},
	}

	LedgerTable = Table{
		Sheet:    "KeysAccounting",
		CacheKey: "ledger",
		Headers: []string{
			ColKeyName, ColFirstName, ColLastName, ColEntryPhone,
			ColTimeReceived, ColTimeReturned, ColEntryComment,
		},
	}
)

// Tables lists every sheet the store manages.
func Tables() []Table {
	return []Table{KeysTable, EmployeesTable, LedgerTable}
}

// header maps column names to 0-based positions.
type header map[string]int

func parseHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	return h
}

// get returns the trimmed cell for column name, or "" when absent.
func (h header) get(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// layout places values in the sheet's column order.
func (h header) layout(values map[string]string) []string {
	width := 0
	for name := range values {
		if i, ok := h[name]; ok && i+1 > width {
			width = i + 1
		}
	}
	row := make([]string, width)
	for name, value := range values {
		if i, ok := h[name]; ok {
			row[i] = value
		}
	}
	return row
}
