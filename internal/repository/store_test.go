package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"keysaccounting-api/internal/cache"
	"keysaccounting-api/internal/model"
	"keysaccounting-api/internal/sheet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *sheet.MemoryGrid) {
	t.Helper()

	grid := sheet.NewMemoryGrid()
	c := cache.NewMemoryCache()
	t.Cleanup(func() { c.Close() })

	s := NewStore(grid, c, DefaultTTL()).WithLocation(time.UTC)
	require.NoError(t, s.Setup(context.Background()))
	return s, grid
}

func TestStoreSetupWritesHeaders(t *testing.T) {
	ctx := context.Background()
	_, grid := newTestStore(t)

	for _, table := range Tables() {
		rows, err := grid.Rows(ctx, table.Sheet)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, table.Headers, rows[0])
	}
}

func TestStoreSetupKeepsExistingHeaders(t *testing.T) {
	ctx := context.Background()
	grid := sheet.NewMemoryGrid()
	_, err := grid.Append(ctx, KeysTable.Sheet, []string{ColKeyType, ColKeyName})
	require.NoError(t, err)

	c := cache.NewMemoryCache()
	defer c.Close()
	s := NewStore(grid, c, DefaultTTL())
	require.NoError(t, s.Setup(ctx))

	rows, err := grid.Rows(ctx, KeysTable.Sheet)
	require.NoError(t, err)
	assert.Equal(t, []string{ColKeyType, ColKeyName}, rows[0])
}

func TestStoreColumnsMatchedByHeader(t *testing.T) {
	ctx := context.Background()
	grid := sheet.NewMemoryGrid()
	_, _ = grid.Append(ctx, KeysTable.Sheet, []string{ColKeyType, "Примечание", ColKeyName, ColKeyCount})
	_, _ = grid.Append(ctx, KeysTable.Sheet, []string{"Механический", "x", "K1", "2"})

	c := cache.NewMemoryCache()
	defer c.Close()
	s := NewStore(grid, c, DefaultTTL())

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, model.Key{Name: "K1", Count: 2, KeyType: "Механический"}, keys[0])

	require.NoError(t, s.AppendKey(ctx, model.Key{Name: "K2", Count: 1, KeyType: "Электронный"}))
	rows, err := grid.Rows(ctx, KeysTable.Sheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Электронный", "", "K2", "1"}, rows[2])
}

func TestStoreSkipsMalformedRows(t *testing.T) {
	ctx := context.Background()
	s, grid := newTestStore(t)

	_, _ = grid.Append(ctx, LedgerTable.Sheet, []string{"K1", "Ann", "Lee", "+7900", "01.03.2024 09:00:00"})
	_, _ = grid.Append(ctx, LedgerTable.Sheet, []string{"K2", "Bob", "Ray", "+7901", "yesterday"})
	_, _ = grid.Append(ctx, LedgerTable.Sheet, []string{"", "Eve", "Fox", "+7902", "01.03.2024 09:00:00"})
	_, _ = grid.Append(ctx, LedgerTable.Sheet, []string{"K3", "Dan", "Poe", "+7903", "01.03.2024 10:00:00", "bad"})
	_, _ = grid.Append(ctx, LedgerTable.Sheet, []string{"K4", "Kim", "Yu", "+7904", "01.03.2024 11:00:00", "01.03.2024 12:30:00", "night shift"})

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "K1", entries[0].KeyName)
	assert.Equal(t, 2, entries[0].Row)
	assert.True(t, entries[0].Outstanding())
	assert.True(t, entries[0].TimeReceived.Equal(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)))

	assert.Equal(t, "K4", entries[1].KeyName)
	assert.Equal(t, 6, entries[1].Row)
	assert.Equal(t, "night shift", entries[1].Comment)
	require.NotNil(t, entries[1].TimeReturned)
	assert.True(t, entries[1].TimeReturned.Equal(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)))
}

func TestStoreSkipsEmptyRowsAndBadCounts(t *testing.T) {
	ctx := context.Background()
	s, grid := newTestStore(t)

	_, _ = grid.Append(ctx, KeysTable.Sheet, []string{"K1", "1"})
	require.NoError(t, grid.UpdateCell(ctx, KeysTable.Sheet, 4, 1, "K2"))
	require.NoError(t, grid.UpdateCell(ctx, KeysTable.Sheet, 4, 2, "many"))
	require.NoError(t, grid.UpdateCell(ctx, KeysTable.Sheet, 5, 1, "K3"))
	require.NoError(t, grid.UpdateCell(ctx, KeysTable.Sheet, 5, 2, "-1"))
	require.NoError(t, grid.UpdateCell(ctx, KeysTable.Sheet, 6, 1, "K4"))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "K1", keys[0].Name)
	assert.Equal(t, "K4", keys[1].Name)
	assert.Equal(t, 0, keys[1].Count)
}

func TestStoreWriteInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	received := time.Date(2024, 3, 1, 9, 0, 0, 500, time.UTC)
	entry, err := s.AppendEntry(ctx, model.LoanEntry{
		KeyName:           "K1",
		EmployeeFirstName: "Ann",
		EmployeeLastName:  "Lee",
		EmployeePhone:     "+79000000000",
		TimeReceived:      received,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Row)
	assert.True(t, entry.TimeReceived.Equal(received.Truncate(time.Second)))

	entries, err = s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Outstanding())

	returned := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetReturnTime(ctx, entry.Row, returned))

	entries, err = s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].TimeReturned)
	assert.True(t, entries[0].TimeReturned.Equal(returned))
}

func TestStoreEmployees(t *testing.T) {
	ctx := context.Background()
	s, grid := newTestStore(t)

	require.NoError(t, s.AppendEmployee(ctx, model.Employee{
		TelegramID:  "42",
		FirstName:   "Ann",
		LastName:    "Lee",
		PhoneNumber: "+79000000000",
		Roles:       []string{"user", "security", "user"},
	}))

	rows, err := grid.Rows(ctx, EmployeesTable.Sheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann", "Lee", "+79000000000", "42", "user, security"}, rows[1])

	emp, err := s.EmployeeByTelegramID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "security"}, emp.Roles)

	_, err = s.EmployeeByTelegramID(ctx, "7")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreKeyByName(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.AppendKey(ctx, model.Key{Name: "K1", Count: 3}))

	key, err := s.KeyByName(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, 3, key.Count)

	_, err = s.KeyByName(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRejectsRecordsWithoutIdentity(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var schemaErr *SchemaError
	assert.ErrorAs(t, s.AppendKey(ctx, model.Key{}), &schemaErr)
	assert.ErrorAs(t, s.AppendEmployee(ctx, model.Employee{FirstName: "Ann"}), &schemaErr)
	_, err := s.AppendEntry(ctx, model.LoanEntry{})
	assert.ErrorAs(t, err, &schemaErr)
}

func TestStoreSetReturnTimeMissingColumn(t *testing.T) {
	ctx := context.Background()
	grid := sheet.NewMemoryGrid()
	_, _ = grid.Append(ctx, LedgerTable.Sheet, []string{ColKeyName, ColTimeReceived})

	c := cache.NewMemoryCache()
	defer c.Close()
	s := NewStore(grid, c, DefaultTTL())

	var schemaErr *SchemaError
	err := s.SetReturnTime(ctx, 2, time.Now())
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, ColTimeReturned, schemaErr.Field)
}

type failingGrid struct {
	sheet.Grid
	err error
}

func (g *failingGrid) Rows(ctx context.Context, name string) ([][]string, error) {
	return nil, g.err
}

func (g *failingGrid) Append(ctx context.Context, name string, values []string) (int, error) {
	return 0, g.err
}

func (g *failingGrid) Ping(ctx context.Context) error {
	return g.err
}

func TestStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	grid := &failingGrid{Grid: sheet.NewMemoryGrid(), err: boom}

	c := cache.NewMemoryCache()
	defer c.Close()
	s := NewStore(grid, c, DefaultTTL())

	_, err := s.Keys(ctx)
	var unavailable *StoreUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsStoreUnavailable(err))

	err = s.AppendKey(ctx, model.Key{Name: "K1"})
	assert.True(t, IsStoreUnavailable(err))

	assert.True(t, IsStoreUnavailable(s.Ping(ctx)))

	ok, _ := c.Exists(ctx, KeysTable.CacheKey)
	assert.False(t, ok)
}
