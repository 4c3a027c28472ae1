package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"keysaccounting-api/internal/cache"
	"keysaccounting-api/internal/ledger"
	"keysaccounting-api/internal/model"
	"keysaccounting-api/internal/notify"
	"keysaccounting-api/internal/pending"
	"keysaccounting-api/internal/repository"
	"keysaccounting-api/internal/resolve"
	"keysaccounting-api/internal/sheet"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	to  string
	msg notify.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (r *recordingNotifier) Notify(ctx context.Context, recipientID string, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{to: recipientID, msg: msg})
	return r.err
}

func (r *recordingNotifier) ofKind(kind notify.Kind) []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentMessage
	for _, s := range r.sent {
		if s.msg.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

var (
	guard = model.Employee{TelegramID: "100", FirstName: "Sam", LastName: "Guard", PhoneNumber: "+79000000100", Roles: []string{model.RoleSecurity}}
	ann   = model.Employee{TelegramID: "1", FirstName: "Ann", LastName: "Lee", PhoneNumber: "+79000000001", Roles: []string{model.RoleUser}}
	bob   = model.Employee{TelegramID: "2", FirstName: "Bob", LastName: "Ray", PhoneNumber: "+79000000002", Roles: []string{model.RoleUser}}
	ada   = model.Employee{TelegramID: "9", FirstName: "Ada", LastName: "King", PhoneNumber: "+79000000009", Roles: []string{model.RoleAdmin}}
)

// flakyGrid is a MemoryGrid whose writes can be failed and reads slowed.
type flakyGrid struct {
	*sheet.MemoryGrid
	failAppend atomic.Bool
	readDelay  atomic.Int64
}

func (g *flakyGrid) Rows(ctx context.Context, name string) ([][]string, error) {
	if d := time.Duration(g.readDelay.Load()); d > 0 {
		time.Sleep(d)
	}
	return g.MemoryGrid.Rows(ctx, name)
}

func (g *flakyGrid) Append(ctx context.Context, name string, values []string) (int, error) {
	if g.failAppend.Load() {
		return 0, errors.New("grid write failed")
	}
	return g.MemoryGrid.Append(ctx, name, values)
}

type harness struct {
	svc      *LendingService
	dir      *Directory
	store    *repository.Store
	grid     *flakyGrid
	ledger   *ledger.Ledger
	registry *pending.Registry
	clock    clockwork.FakeClock
	notifier *recordingNotifier
}

func newHarness(t *testing.T, employees ...model.Employee) *harness {
	t.Helper()
	ctx := context.Background()

	c := cache.NewMemoryCache()
	t.Cleanup(func() { c.Close() })

	grid := &flakyGrid{MemoryGrid: sheet.NewMemoryGrid()}
	store := repository.NewStore(grid, c, repository.DefaultTTL()).WithLocation(time.UTC)
	require.NoError(t, store.Setup(ctx))

	if employees == nil {
		employees = []model.Employee{guard, ann, bob, ada}
	}
	for _, emp := range employees {
		require.NoError(t, store.AppendEmployee(ctx, emp))
	}
	for _, name := range []string{"K1", "K2", "Серверная 101", "Серверная 102"} {
		require.NoError(t, store.AppendKey(ctx, model.Key{Name: name, Count: 1}))
	}

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	l := ledger.New(store, clock)
	registry := pending.NewRegistry(clock)
	t.Cleanup(registry.Close)

	resolver := resolve.NewFuzzy()
	dir := NewDirectory(store, l, resolver)
	notifier := &recordingNotifier{}

	svc := NewLendingService(LendingDeps{
		Keys:       store,
		Ledger:     l,
		Registry:   registry,
		Directory:  dir,
		Resolver:   resolver,
		Notifier:   notifier,
		RequestTTL: time.Hour,
	})

	return &harness{
		svc:      svc,
		dir:      dir,
		store:    store,
		grid:     grid,
		ledger:   l,
		registry: registry,
		clock:    clock,
		notifier: notifier,
	}
}

func (h *harness) outstanding(t *testing.T, key string) []model.LoanEntry {
	t.Helper()
	entries, err := h.ledger.OutstandingEntries(context.Background())
	require.NoError(t, err)
	var out []model.LoanEntry
	for _, e := range entries {
		if e.KeyName == key {
			out = append(out, e)
		}
	}
	return out
}
