// Package repository maps the typed Keys, Employees and ledger tables onto
// the backing grid. Reads are served through the cache; every write
// invalidates the cached copy of the table it touched.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"keysaccounting-api/internal/cache"
	"keysaccounting-api/internal/metrics"
	"keysaccounting-api/internal/model"
	"keysaccounting-api/internal/sheet"
)

var errEmptyValue = errors.New("empty value")

// TTLConfig holds per-table cache lifetimes.
type TTLConfig struct {
	Keys      time.Duration
	Employees time.Duration
	Ledger    time.Duration
}

// DefaultTTL returns the default cache lifetimes.
func DefaultTTL() TTLConfig {
	return TTLConfig{
		Keys:      5 * time.Minute,
		Employees: 5 * time.Minute,
		Ledger:    time.Minute,
	}
}

// Store is the Record Store over a grid.
type Store struct {
	grid  sheet.Grid
	cache cache.Cache
	ttl   TTLConfig
	loc   *time.Location
}

// NewStore creates a store. Timestamps are read and written in time.Local.
func NewStore(grid sheet.Grid, c cache.Cache, ttl TTLConfig) *Store {
	return &Store{
		grid:  grid,
		cache: c,
		ttl:   ttl,
		loc:   time.Local,
	}
}

// WithLocation sets the time zone used for stored timestamps.
func (s *Store) WithLocation(loc *time.Location) *Store {
	s.loc = loc
	return s
}

// Setup creates missing sheets and writes header rows where row 1 is empty.
func (s *Store) Setup(ctx context.Context) error {
	for _, t := range Tables() {
		if err := s.grid.EnsureSheet(ctx, t.Sheet); err != nil {
			return s.unavailable("ensure "+t.Sheet, err)
		}
		if _, err := s.headerFor(ctx, t); err != nil {
			return err
		}
		s.invalidate(ctx, t)
	}
	return nil
}

// Ping checks the backing grid.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.grid.Ping(ctx); err != nil {
		return s.unavailable("ping", err)
	}
	return nil
}

// Invalidate drops every cached table.
func (s *Store) Invalidate(ctx context.Context) {
	for _, t := range Tables() {
		s.invalidate(ctx, t)
	}
}

// RefreshEntries drops the cached ledger so the next read goes to the grid.
func (s *Store) RefreshEntries(ctx context.Context) {
	s.invalidate(ctx, LedgerTable)
}

// Keys returns every well-formed key row.
func (s *Store) Keys(ctx context.Context) ([]model.Key, error) {
	return readTable(ctx, s, KeysTable, s.ttl.Keys, parseKey)
}

// KeyByName finds a key by exact name.
func (s *Store) KeyByName(ctx context.Context, name string) (*model.Key, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		if keys[i].Name == name {
			return &keys[i], nil
		}
	}
	return nil, fmt.Errorf("key %q: %w", name, ErrNotFound)
}

// AppendKey adds a key row.
func (s *Store) AppendKey(ctx context.Context, key model.Key) error {
	if key.Name == "" {
		return &SchemaError{Table: KeysTable.Sheet, Field: ColKeyName}
	}
	_, err := s.appendRow(ctx, KeysTable, map[string]string{
		ColKeyName:      key.Name,
		ColKeyCount:     strconv.Itoa(key.Count),
		ColKeyType:      key.KeyType,
		ColHardwareType: key.HardwareType,
	})
	return err
}

// Employees returns every well-formed employee row.
func (s *Store) Employees(ctx context.Context) ([]model.Employee, error) {
	return readTable(ctx, s, EmployeesTable, s.ttl.Employees, parseEmployee)
}

// EmployeeByTelegramID finds an employee by chat identity.
func (s *Store) EmployeeByTelegramID(ctx context.Context, telegramID string) (*model.Employee, error) {
	employees, err := s.Employees(ctx)
	if err != nil {
		return nil, err
	}
	for i := range employees {
		if employees[i].TelegramID == telegramID {
			return &employees[i], nil
		}
	}
	return nil, fmt.Errorf("employee %q: %w", telegramID, ErrNotFound)
}

// AppendEmployee adds an employee row.
func (s *Store) AppendEmployee(ctx context.Context, emp model.Employee) error {
	if emp.TelegramID == "" {
		return &SchemaError{Table: EmployeesTable.Sheet, Field: ColTelegramID}
	}
	_, err := s.appendRow(ctx, EmployeesTable, map[string]string{
		ColFirstName:  emp.FirstName,
		ColLastName:   emp.LastName,
		ColPhone:      emp.PhoneNumber,
		ColTelegramID: emp.TelegramID,
		ColRoles:      model.FormatRoles(emp.Roles),
	})
	return err
}

// Entries returns well-formed ledger rows in insertion order.
func (s *Store) Entries(ctx context.Context) ([]model.LoanEntry, error) {
	return readTable(ctx, s, LedgerTable, s.ttl.Ledger, s.parseEntry)
}

// AppendEntry adds a ledger row. Timestamps are stored with second precision
// and the returned entry carries the values as they will read back.
func (s *Store) AppendEntry(ctx context.Context, entry model.LoanEntry) (*model.LoanEntry, error) {
	if entry.KeyName == "" {
		return nil, &SchemaError{Table: LedgerTable.Sheet, Field: ColKeyName}
	}

	entry.TimeReceived = s.normalize(entry.TimeReceived)
	returned := ""
	if entry.TimeReturned != nil {
		t := s.normalize(*entry.TimeReturned)
		entry.TimeReturned = &t
		returned = s.formatTime(t)
	}

	row, err := s.appendRow(ctx, LedgerTable, map[string]string{
		ColKeyName:      entry.KeyName,
		ColFirstName:    entry.EmployeeFirstName,
		ColLastName:     entry.EmployeeLastName,
		ColEntryPhone:   entry.EmployeePhone,
		ColTimeReceived: s.formatTime(entry.TimeReceived),
		ColTimeReturned: returned,
		ColEntryComment: entry.Comment,
	})
	if err != nil {
		return nil, err
	}

	entry.Row = row
	return &entry, nil
}

// SetReturnTime writes the return time of the ledger entry at row.
func (s *Store) SetReturnTime(ctx context.Context, row int, t time.Time) error {
	defer s.invalidate(ctx, LedgerTable)

	h, err := s.headerFor(ctx, LedgerTable)
	if err != nil {
		return err
	}
	col, ok := h[ColTimeReturned]
	if !ok {
		return &SchemaError{Table: LedgerTable.Sheet, Row: 1, Field: ColTimeReturned}
	}

	if err := s.grid.UpdateCell(ctx, LedgerTable.Sheet, row, col+1, s.formatTime(s.normalize(t))); err != nil {
		return s.unavailable("update "+LedgerTable.Sheet, err)
	}
	return nil
}

// readTable loads a table through the cache. Malformed rows are logged and skipped.
func readTable[T any](ctx context.Context, s *Store, t Table, ttl time.Duration, parse func(header, []string, int) (T, error)) ([]T, error) {
	data, err := s.cache.GetOrSet(ctx, t.CacheKey, ttl, func() ([]byte, error) {
		rows, err := s.grid.Rows(ctx, t.Sheet)
		if err != nil {
			return nil, s.unavailable("read "+t.Sheet, err)
		}

		items := make([]T, 0, len(rows))
		if len(rows) > 0 {
			h := parseHeader(rows[0])
			for i, row := range rows[1:] {
				if sheet.IsEmptyRow(row) {
					continue
				}
				item, err := parse(h, row, i+2)
				if err != nil {
					s.skip(t, err)
					continue
				}
				items = append(items, item)
			}
		}
		return json.Marshal(items)
	})
	if err != nil {
		return nil, err
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode cached %s: %w", t.CacheKey, err)
	}
	return items, nil
}

// appendRow writes values in the sheet's current column order.
func (s *Store) appendRow(ctx context.Context, t Table, values map[string]string) (int, error) {
	defer s.invalidate(ctx, t)

	h, err := s.headerFor(ctx, t)
	if err != nil {
		return 0, err
	}
	for name := range values {
		if _, ok := h[name]; !ok {
			log.Printf("[Store] Sheet %s has no %q column, value dropped", t.Sheet, name)
		}
	}

	row, err := s.grid.Append(ctx, t.Sheet, h.layout(values))
	if err != nil {
		return 0, s.unavailable("append "+t.Sheet, err)
	}
	return row, nil
}

// headerFor reads row 1 of a sheet, writing the default headers when it is empty.
func (s *Store) headerFor(ctx context.Context, t Table) (header, error) {
	rows, err := s.grid.Rows(ctx, t.Sheet)
	if err != nil {
		return nil, s.unavailable("read "+t.Sheet, err)
	}
	if len(rows) > 0 && !sheet.IsEmptyRow(rows[0]) {
		return parseHeader(rows[0]), nil
	}

	for i, name := range t.Headers {
		if err := s.grid.UpdateCell(ctx, t.Sheet, 1, i+1, name); err != nil {
			return nil, s.unavailable("write headers "+t.Sheet, err)
		}
	}
	log.Printf("[Store] Wrote headers for sheet %s", t.Sheet)
	return parseHeader(t.Headers), nil
}

func (s *Store) invalidate(ctx context.Context, t Table) {
	if err := s.cache.Delete(ctx, t.CacheKey); err != nil {
		log.Printf("[Store] Failed to invalidate %s: %v", t.CacheKey, err)
	}
}

func (s *Store) unavailable(op string, err error) error {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	return &StoreUnavailableError{Op: op, Err: err}
}

func (s *Store) skip(t Table, err error) {
	reason := "format"
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		reason = "schema"
	}
	metrics.SkippedRows.WithLabelValues(t.Sheet, reason).Inc()
	log.Printf("[Store] Skipping row: %v", err)
}

func (s *Store) normalize(t time.Time) time.Time {
	return t.In(s.loc).Truncate(time.Second)
}

func (s *Store) formatTime(t time.Time) string {
	return t.In(s.loc).Format(TimeFormat)
}

func (s *Store) parseTime(t Table, row int, field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, &FormatError{Table: t.Sheet, Row: row, Field: field, Value: raw, Err: errEmptyValue}
	}
	ts, err := time.ParseInLocation(TimeFormat, raw, s.loc)
	if err != nil {
		return time.Time{}, &FormatError{Table: t.Sheet, Row: row, Field: field, Value: raw, Err: err}
	}
	return ts, nil
}

func parseKey(h header, row []string, n int) (model.Key, error) {
	key := model.Key{
		Name:         h.get(row, ColKeyName),
		KeyType:      h.get(row, ColKeyType),
		HardwareType: h.get(row, ColHardwareType),
	}
	if key.Name == "" {
		return key, &SchemaError{Table: KeysTable.Sheet, Row: n, Field: ColKeyName}
	}

	if raw := h.get(row, ColKeyCount); raw != "" {
		count, err := strconv.Atoi(raw)
		if err == nil && count < 0 {
			err = errors.New("negative count")
		}
		if err != nil {
			return key, &FormatError{Table: KeysTable.Sheet, Row: n, Field: ColKeyCount, Value: raw, Err: err}
		}
		key.Count = count
	}
	return key, nil
}

func parseEmployee(h header, row []string, n int) (model.Employee, error) {
	emp := model.Employee{
		TelegramID:  h.get(row, ColTelegramID),
		FirstName:   h.get(row, ColFirstName),
		LastName:    h.get(row, ColLastName),
		PhoneNumber: h.get(row, ColPhone),
		Roles:       model.ParseRoles(h.get(row, ColRoles)),
	}
	if emp.TelegramID == "" {
		return emp, &SchemaError{Table: EmployeesTable.Sheet, Row: n, Field: ColTelegramID}
	}
	return emp, nil
}

func (s *Store) parseEntry(h header, row []string, n int) (model.LoanEntry, error) {
	entry := model.LoanEntry{
		KeyName:           h.get(row, ColKeyName),
		EmployeeFirstName: h.get(row, ColFirstName),
		EmployeeLastName:  h.get(row, ColLastName),
		EmployeePhone:     h.get(row, ColEntryPhone),
		Comment:           h.get(row, ColEntryComment),
		Row:               n,
	}
	if entry.KeyName == "" {
		return entry, &SchemaError{Table: LedgerTable.Sheet, Row: n, Field: ColKeyName}
	}

	received, err := s.parseTime(LedgerTable, n, ColTimeReceived, h.get(row, ColTimeReceived))
	if err != nil {
		return entry, err
	}
	entry.TimeReceived = received

	if raw := h.get(row, ColTimeReturned); raw != "" {
		returned, err := s.parseTime(LedgerTable, n, ColTimeReturned, raw)
		if err != nil {
			return entry, err
		}
		entry.TimeReturned = &returned
	}
	return entry, nil
}

var (
	_ KeyRepository      = (*Store)(nil)
	_ EmployeeRepository = (*Store)(nil)
	_ LedgerRepository   = (*Store)(nil)
)
