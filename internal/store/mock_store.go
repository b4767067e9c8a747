// ABOUTME: Mock ReminderStore implementation for testing
// ABOUTME: Keeps reminders in memory and can simulate storage failures

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Ensure MockStore implements ReminderStore.
var _ ReminderStore = (*MockStore)(nil)

// errInjected is the cause carried by simulated failures.
var errInjected = errors.New("injected failure")

// MockStore is an in-memory ReminderStore for testing.
type MockStore struct {
	mu        sync.Mutex
	nextID    int64
	reminders map[int64]*Reminder
	failing   bool
	failNext  int
	calls     map[string]int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		reminders: make(map[int64]*Reminder),
		calls:     make(map[string]int),
	}
}

// SetFailing makes every operation fail with a StoreError until cleared.
func (m *MockStore) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

// FailNext makes the next n operations fail with a StoreError.
func (m *MockStore) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// Calls returns how many times op was invoked.
func (m *MockStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// fail must be called with mu held.
func (m *MockStore) fail(op string) error {
	m.calls[op]++
	if m.failing {
		return &StoreError{Op: op, Err: errInjected}
	}
	if m.failNext > 0 {
		m.failNext--
		return &StoreError{Op: op, Err: errInjected}
	}
	return nil
}

// CreateReminder stores a pending reminder.
func (m *MockStore) CreateReminder(ctx context.Context, dueAt time.Time, payload, source string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create reminder"); err != nil {
		return 0, err
	}
	if payload == "" {
		return 0, errors.New("reminder payload is required")
	}

	m.nextID++
	m.reminders[m.nextID] = &Reminder{
		ID:        m.nextID,
		DueAt:     dueAt.UTC(),
		Payload:   payload,
		Status:    StatusPending,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	return m.nextID, nil
}

// GetReminder retrieves a copy of a reminder.
func (m *MockStore) GetReminder(ctx context.Context, id int64) (*Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get reminder"); err != nil {
		return nil, err
	}
	r, ok := m.reminders[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *r
	return &c, nil
}

// ListDue returns pending reminders due at or before asOf.
func (m *MockStore) ListDue(ctx context.Context, asOf time.Time) ([]*Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list due"); err != nil {
		return nil, err
	}
	return m.collect(func(r *Reminder) bool {
		return r.Status == StatusPending && !r.DueAt.After(asOf)
	}), nil
}

// MarkFired transitions a pending reminder to fired.
func (m *MockStore) MarkFired(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("mark fired"); err != nil {
		return false, err
	}
	r, ok := m.reminders[id]
	if !ok || r.Status != StatusPending {
		return false, nil
	}
	now := time.Now().UTC()
	r.Status = StatusFired
	r.FiredAt = &now
	return true, nil
}

// CancelReminder transitions a pending reminder to cancelled.
func (m *MockStore) CancelReminder(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("cancel reminder"); err != nil {
		return false, err
	}
	r, ok := m.reminders[id]
	if !ok || r.Status != StatusPending {
		return false, nil
	}
	now := time.Now().UTC()
	r.Status = StatusCancelled
	r.CancelledAt = &now
	return true, nil
}

// ListReminders lists reminders with an optional status filter.
func (m *MockStore) ListReminders(ctx context.Context, filter ReminderFilter) ([]*Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list reminders"); err != nil {
		return nil, err
	}
	out := m.collect(func(r *Reminder) bool {
		return filter.Status == "" || r.Status == filter.Status
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// PurgeReminders deletes reminders that are no longer pending.
func (m *MockStore) PurgeReminders(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("purge reminders"); err != nil {
		return 0, err
	}
	var n int64
	for id, r := range m.reminders {
		if r.Status != StatusPending {
			delete(m.reminders, id)
			n++
		}
	}
	return n, nil
}

// collect must be called with mu held.
func (m *MockStore) collect(keep func(*Reminder) bool) []*Reminder {
	var out []*Reminder
	for _, r := range m.reminders {
		if keep(r) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueAt.Equal(out[j].DueAt) {
			return out[i].DueAt.Before(out[j].DueAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
