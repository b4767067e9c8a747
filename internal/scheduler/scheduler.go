// ABOUTME: Reminder scheduler that polls the store and publishes due reminders to the bridge.
// ABOUTME: Claims are exclusive; repeated storage failures switch it into a degraded state once.

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/2389/familiar/internal/bridge"
	"github.com/2389/familiar/internal/metrics"
	"github.com/2389/familiar/internal/store"
)

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 30 * time.Second

// DefaultDegradedAfter is how many consecutive failed ticks announce
// degraded mode.
const DefaultDegradedAfter = 3

// ErrRunning is returned by Start when the scheduler is already running.
var ErrRunning = errors.New("scheduler already running")

// State is the scheduler lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Config configures a Scheduler.
type Config struct {
	Store         store.ReminderStore
	Publisher     bridge.Publisher
	Interval      time.Duration
	DegradedAfter int
	// Now is the clock; nil means time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Scheduler delivers due reminders.
type Scheduler struct {
	store         store.ReminderStore
	publisher     bridge.Publisher
	interval      time.Duration
	degradedAfter int
	now           func() time.Time
	logger        *slog.Logger

	mu     sync.Mutex
	state  State
	stopCh chan struct{}
	doneCh chan struct{}

	// tickMu serializes ticks and guards the failure bookkeeping.
	tickMu   sync.Mutex
	failures int
	degraded bool
}

// New creates a stopped scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, errors.New("scheduler: store is required")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("scheduler: publisher is required")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	degradedAfter := cfg.DegradedAfter
	if degradedAfter <= 0 {
		degradedAfter = DefaultDegradedAfter
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		store:         cfg.Store,
		publisher:     cfg.Publisher,
		interval:      interval,
		degradedAfter: degradedAfter,
		now:           now,
		logger:        logger.With("component", "scheduler"),
		state:         StateStopped,
	}, nil
}

// Start polls once immediately and then every interval until Stop is
// called or ctx is cancelled. It does not block.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return ErrRunning
	}
	s.state = StateRunning
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	s.logger.Info("scheduler started", "interval", s.interval)
	go s.run(ctx, s.stopCh, s.doneCh)
	return nil
}

// Stop signals the loop and waits for it to exit. A tick in progress is
// allowed to finish. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
}

// State reports whether the loop is running.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Degraded reports whether the scheduler has announced degraded mode.
func (s *Scheduler) Degraded() bool {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.degraded
}

func (s *Scheduler) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	// Ticks are not interrupted by cancellation; the loop exits after.
	tickCtx := context.WithoutCancel(ctx)
	s.tickAndLog(tickCtx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.state = StateStopped
			s.mu.Unlock()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.tickAndLog(tickCtx)
		}
	}
}

func (s *Scheduler) tickAndLog(ctx context.Context) {
	if n, err := s.Tick(ctx); err == nil && n > 0 {
		s.logger.Debug("tick delivered reminders", "count", n)
	}
}

// Tick runs one poll: list due reminders, claim each, publish the claimed
// ones. It returns how many reminders this call delivered. A tick counts as
// a success only if every store call in it succeeded.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.now()
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		s.failedLocked(err)
		return 0, err
	}

	fired := 0
	for _, r := range due {
		claimed, err := s.store.MarkFired(ctx, r.ID)
		if err != nil {
			s.failedLocked(err)
			return fired, err
		}
		if !claimed {
			s.logger.Debug("reminder claimed elsewhere", "id", r.ID)
			continue
		}

		s.publisher.Publish(bridge.Event{
			Kind:    bridge.KindReminderDue,
			Payload: r.Payload,
			Source:  r.Source,
			Data: map[string]string{
				"reminder_id": strconv.FormatInt(r.ID, 10),
				"due_at":      r.DueAt.UTC().Format(time.RFC3339),
			},
		})
		metrics.RemindersFired.Inc()
		s.logger.Info("⏰ reminder due", "id", r.ID, "source", r.Source, "late_by", now.Sub(r.DueAt).Round(time.Second))
		fired++
	}
	s.succeededLocked()
	return fired, nil
}

func (s *Scheduler) failedLocked(err error) {
	s.failures++
	metrics.SchedulerPollErrors.Inc()
	s.logger.Warn("scheduler tick failed",
		"error", err,
		"store_error", store.IsStoreError(err),
		"consecutive_failures", s.failures,
	)

	if s.failures < s.degradedAfter || s.degraded {
		return
	}
	s.degraded = true
	metrics.SchedulerDegraded.Set(1)
	s.logger.Error("scheduler degraded, reminders are delayed", "consecutive_failures", s.failures)
	s.publisher.Publish(bridge.Event{
		Kind:    bridge.KindSystem,
		Payload: fmt.Sprintf("Reminder storage is unavailable after %d attempts; reminders are delayed until it recovers.", s.failures),
		Source:  "scheduler",
		Data:    map[string]string{"state": "degraded", "error": err.Error()},
	})
}

func (s *Scheduler) succeededLocked() {
	s.failures = 0
	if !s.degraded {
		return
	}
	s.degraded = false
	metrics.SchedulerDegraded.Set(0)
	s.logger.Info("scheduler recovered")
	s.publisher.Publish(bridge.Event{
		Kind:    bridge.KindSystem,
		Payload: "Reminder storage recovered; delayed reminders have been delivered.",
		Source:  "scheduler",
		Data:    map[string]string{"state": "recovered"},
	})
}
