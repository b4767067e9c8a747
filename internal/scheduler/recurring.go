// ABOUTME: Cron-driven recurring reminders from configuration.
// ABOUTME: Each firing stores a pending reminder due now, which the poller then delivers.

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/2389/familiar/internal/store"
)

// SourcePrefix marks reminders created by a recurring entry.
const SourcePrefix = "recurring:"

// Entry is one recurring reminder. Schedule is a standard five-field cron
// expression or a descriptor such as "@daily" or "@every 2h".
type Entry struct {
	Name     string
	Schedule string
	Payload  string
}

// Recurring creates reminders on cron schedules.
type Recurring struct {
	cron    *cron.Cron
	store   store.ReminderStore
	now     func() time.Time
	logger  *slog.Logger
	entries map[string]cron.EntryID
}

// NewRecurring validates every schedule and registers the entries. Nothing
// fires until Start.
func NewRecurring(st store.ReminderStore, entries []Entry, loc *time.Location, logger *slog.Logger) (*Recurring, error) {
	if st == nil {
		return nil, errors.New("recurring: store is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recurring{
		cron:    cron.New(cron.WithLocation(loc)),
		store:   st,
		now:     time.Now,
		logger:  logger.With("component", "recurring"),
		entries: make(map[string]cron.EntryID, len(entries)),
	}

	for _, e := range entries {
		if _, dup := r.entries[e.Name]; dup {
			return nil, fmt.Errorf("recurring %q: duplicate name", e.Name)
		}
		entry := e
		id, err := r.cron.AddFunc(e.Schedule, func() {
			if _, err := r.Fire(context.Background(), entry); err != nil {
				r.logger.Warn("recurring reminder not stored", "name", entry.Name, "error", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("recurring %q: parsing schedule %q: %w", e.Name, e.Schedule, err)
		}
		r.entries[e.Name] = id
	}
	return r, nil
}

// Fire stores one occurrence of e as a reminder due now.
func (r *Recurring) Fire(ctx context.Context, e Entry) (int64, error) {
	id, err := r.store.CreateReminder(ctx, r.now(), e.Payload, SourcePrefix+e.Name)
	if err != nil {
		return 0, err
	}
	r.logger.Info("recurring reminder queued", "name", e.Name, "id", id)
	return id, nil
}

// Next returns when the named entry fires next. It is zero before Start or
// for unknown names.
func (r *Recurring) Next(name string) time.Time {
	id, ok := r.entries[name]
	if !ok {
		return time.Time{}
	}
	return r.cron.Entry(id).Next
}

// Len is the number of registered entries.
func (r *Recurring) Len() int {
	return len(r.entries)
}

// Start begins firing entries and logs when each one runs first.
func (r *Recurring) Start() {
	r.cron.Start()
	r.logger.Info("recurring reminders started", "entries", len(r.entries))
	for _, name := range slices.Sorted(maps.Keys(r.entries)) {
		r.logger.Info("recurring reminder scheduled", "name", name, "next", r.Next(name))
	}
}

// Stop stops firing and waits for running jobs.
func (r *Recurring) Stop() {
	<-r.cron.Stop().Done()
}
