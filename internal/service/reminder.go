package service

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"keysaccounting-api/internal/metrics"
	"keysaccounting-api/internal/model"
	"keysaccounting-api/internal/notify"

	"github.com/jonboulle/clockwork"
)

// ReminderConfig holds configuration for the reminder scheduler.
type ReminderConfig struct {
	// Threshold is how long a key may stay out before its holder is reminded.
	// Default: 72 hours
	Threshold time.Duration

	// Interval is how often the sweep runs.
	// Default: 24 hours
	Interval time.Duration
}

// DefaultReminderConfig returns default reminder configuration.
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Threshold: 72 * time.Hour,
		Interval:  24 * time.Hour,
	}
}

// OverdueScanner finds loans that have been out too long.
type OverdueScanner interface {
	OverdueScan(ctx context.Context, threshold time.Duration) ([]model.LoanEntry, error)
}

// ReminderScheduler periodically reminds holders of overdue keys.
type ReminderScheduler struct {
	scanner   OverdueScanner
	directory *Directory
	notifier  notify.Notifier
	config    ReminderConfig
	clock     clockwork.Clock

	ticker    clockwork.Ticker
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewReminderScheduler creates a new reminder scheduler.
func NewReminderScheduler(scanner OverdueScanner, directory *Directory, notifier notify.Notifier, config ReminderConfig, clock clockwork.Clock) *ReminderScheduler {
	defaults := DefaultReminderConfig()
	if config.Threshold == 0 {
		config.Threshold = defaults.Threshold
	}
	if config.Interval == 0 {
		config.Interval = defaults.Interval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &ReminderScheduler{
		scanner:   scanner,
		directory: directory,
		notifier:  notifier,
		config:    config,
		clock:     clock,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs a first sweep and then one every interval.
func (s *ReminderScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = s.clock.NewTicker(s.config.Interval)
	s.mu.Unlock()

	log.Printf("[ReminderScheduler] Started - Interval: %v, Threshold: %v",
		s.config.Interval, s.config.Threshold)

	go s.run()
}

// run is the main reminder loop.
func (s *ReminderScheduler) run() {
	defer close(s.doneCh)

	s.sweep()
	for {
		select {
		case <-s.ticker.Chan():
			s.sweep()
		case <-s.stopCh:
			log.Printf("[ReminderScheduler] Stopped")
			return
		}
	}
}

// sweep runs one reminder pass and logs the outcome.
func (s *ReminderScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			metrics.ReminderSweeps.WithLabelValues("error").Inc()
			log.Printf("[ReminderScheduler] Sweep panicked: %v\n%s", r, debug.Stack())
		}
	}()

	sent, err := s.remind(ctx)
	if err != nil {
		metrics.ReminderSweeps.WithLabelValues("error").Inc()
		log.Printf("[ReminderScheduler] Error during sweep: %v", err)
		return
	}
	metrics.ReminderSweeps.WithLabelValues("ok").Inc()

	if sent > 0 {
		log.Printf("[ReminderScheduler] Sent %d overdue reminders", sent)
	}
}

// remind notifies the holder of every overdue key it can identify.
func (s *ReminderScheduler) remind(ctx context.Context) (int, error) {
	overdue, err := s.scanner.OverdueScan(ctx, s.config.Threshold)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, entry := range overdue {
		holder, err := s.directory.ByName(ctx, entry.EmployeeFirstName, entry.EmployeeLastName)
		if err != nil {
			log.Printf("[ReminderScheduler] Holder of %s not found: %v", entry.KeyName, err)
			continue
		}

		days := int(s.clock.Since(entry.TimeReceived).Hours() / 24)
		err = s.notifier.Notify(ctx, holder.TelegramID, notify.Message{
			Kind:    notify.KindOverdue,
			KeyName: entry.KeyName,
			Text:    fmt.Sprintf("You took key %s %d days ago and have not returned it", entry.KeyName, days),
		})
		if err != nil {
			metrics.NotificationFailures.Inc()
			log.Printf("[ReminderScheduler] Failed to remind %s about %s: %v", holder.TelegramID, entry.KeyName, err)
			continue
		}
		sent++
	}
	return sent, nil
}

// Stop stops the reminder scheduler and waits for a running sweep to finish.
func (s *ReminderScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
		s.mu.Unlock()

		if running {
			<-s.doneCh
		}
	})
}

// RunNow triggers an immediate sweep and returns the number of reminders sent.
func (s *ReminderScheduler) RunNow(ctx context.Context) (int, error) {
	return s.remind(ctx)
}
