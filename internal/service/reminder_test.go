package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"keysaccounting-api/internal/model"
	"keysaccounting-api/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOverdue(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()

	_, err := h.ledger.RecordLoan(ctx, "K1", ann.Snapshot(), "")
	require.NoError(t, err)
	_, err = h.ledger.RecordLoan(ctx, "K2", model.EmployeeSnapshot{FirstName: "Gone", LastName: "Person"}, "")
	require.NoError(t, err)

	h.clock.Advance(3 * 24 * time.Hour)
	_, err = h.ledger.RecordLoan(ctx, "Серверная 101", bob.Snapshot(), "")
	require.NoError(t, err)

	h.clock.Advance(24 * time.Hour)
}

func TestReminderRunNow(t *testing.T) {
	h := newHarness(t)
	seedOverdue(t, h)

	notifier := &recordingNotifier{}
	s := NewReminderScheduler(h.svc, h.dir, notifier, ReminderConfig{Threshold: 72 * time.Hour, Interval: 24 * time.Hour}, h.clock)

	sent, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	overdue := notifier.ofKind(notify.KindOverdue)
	require.Len(t, overdue, 1)
	assert.Equal(t, ann.TelegramID, overdue[0].to)
	assert.Equal(t, "K1", overdue[0].msg.KeyName)
}

func TestReminderNotifyFailureIsCounted(t *testing.T) {
	h := newHarness(t)
	seedOverdue(t, h)

	notifier := &recordingNotifier{err: errors.New("blocked by user")}
	s := NewReminderScheduler(h.svc, h.dir, notifier, DefaultReminderConfig(), h.clock)

	sent, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Len(t, notifier.ofKind(notify.KindOverdue), 1)
}

type failingScanner struct{ calls chan struct{} }

func (f *failingScanner) OverdueScan(ctx context.Context, threshold time.Duration) ([]model.LoanEntry, error) {
	f.calls <- struct{}{}
	return nil, errors.New("store unavailable")
}

func TestReminderLoopSurvivesErrors(t *testing.T) {
	h := newHarness(t)
	scanner := &failingScanner{calls: make(chan struct{}, 10)}

	s := NewReminderScheduler(scanner, h.dir, &recordingNotifier{}, ReminderConfig{Interval: time.Hour}, h.clock)
	s.Start()
	defer s.Stop()

	waitCall := func() {
		select {
		case <-scanner.calls:
		case <-time.After(2 * time.Second):
			t.Fatal("sweep did not run")
		}
	}

	waitCall()
	h.clock.Advance(time.Hour)
	waitCall()
	h.clock.Advance(time.Hour)
	waitCall()
}

func TestReminderStartStop(t *testing.T) {
	h := newHarness(t)
	seedOverdue(t, h)

	notifier := &recordingNotifier{}
	s := NewReminderScheduler(h.svc, h.dir, notifier, DefaultReminderConfig(), h.clock)
	s.Start()
	s.Start()

	require.Eventually(t, func() bool {
		return len(notifier.ofKind(notify.KindOverdue)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.clock.Advance(24 * time.Hour)
	require.Eventually(t, func() bool {
		return len(notifier.ofKind(notify.KindOverdue)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
}

type panickingNotifier struct{ calls atomic.Int32 }

func (p *panickingNotifier) Notify(ctx context.Context, recipientID string, msg notify.Message) error {
	p.calls.Add(1)
	panic("notifier exploded")
}

func TestReminderLoopSurvivesPanic(t *testing.T) {
	h := newHarness(t)
	seedOverdue(t, h)

	notifier := &panickingNotifier{}
	s := NewReminderScheduler(h.svc, h.dir, notifier, DefaultReminderConfig(), h.clock)
	s.Start()

	require.Eventually(t, func() bool { return notifier.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.clock.Advance(24 * time.Hour)
	require.Eventually(t, func() bool { return notifier.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	s.Stop()
}
