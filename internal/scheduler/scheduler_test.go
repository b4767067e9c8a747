// ABOUTME: Tests for the reminder scheduler
// ABOUTME: Covers single delivery, claim races, degraded mode, lifecycle and an end-to-end SQLite scenario

package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/familiar/internal/bridge"
	"github.com/2389/familiar/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []bridge.Event
}

func (p *recordingPublisher) Publish(ev bridge.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) ofKind(kind bridge.Kind) []bridge.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []bridge.Event
	for _, ev := range p.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func newTestScheduler(t *testing.T, st store.ReminderStore, pub bridge.Publisher, interval time.Duration) *Scheduler {
	t.Helper()
	s, err := New(Config{
		Store:     st,
		Publisher: pub,
		Interval:  interval,
		Now:       func() time.Time { return testNow },
	})
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Publisher: &recordingPublisher{}})
	assert.Error(t, err)
	_, err = New(Config{Store: store.NewMockStore()})
	assert.Error(t, err)

	s, err := New(Config{Store: store.NewMockStore(), Publisher: &recordingPublisher{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, s.interval)
	assert.Equal(t, DefaultDegradedAfter, s.degradedAfter)
	assert.Equal(t, StateStopped, s.State())
}

func TestTick_DeliversDueRemindersOnce(t *testing.T) {
	st := store.NewMockStore()
	pub := &recordingPublisher{}
	s := newTestScheduler(t, st, pub, time.Hour)
	ctx := t.Context()

	dueID, err := st.CreateReminder(ctx, testNow.Add(-time.Minute), "stretch", "remind")
	require.NoError(t, err)
	_, err = st.CreateReminder(ctx, testNow, "exactly now", "remind")
	require.NoError(t, err)
	futureID, err := st.CreateReminder(ctx, testNow.Add(time.Minute), "later", "remind")
	require.NoError(t, err)

	n, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	events := pub.ofKind(bridge.KindReminderDue)
	require.Len(t, events, 2)
	assert.Equal(t, "stretch", events[0].Payload)
	assert.Equal(t, "remind", events[0].Source)
	assert.Equal(t, "1", events[0].Data["reminder_id"])
	assert.Equal(t, "2026-03-14T08:59:00Z", events[0].Data["due_at"])
	assert.Equal(t, "exactly now", events[1].Payload)

	r, err := st.GetReminder(ctx, dueID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFired, r.Status)
	r, err = st.GetReminder(ctx, futureID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, r.Status)

	n, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, pub.ofKind(bridge.KindReminderDue), 2)
}

func TestTick_CancelledReminderNeverFires(t *testing.T) {
	st := store.NewMockStore()
	pub := &recordingPublisher{}
	s := newTestScheduler(t, st, pub, time.Hour)

	id, err := st.CreateReminder(t.Context(), testNow.Add(-time.Minute), "skip me", "remind")
	require.NoError(t, err)
	ok, err := st.CancelReminder(t.Context(), id)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, pub.ofKind(bridge.KindReminderDue))
}

func TestTick_ConcurrentSchedulersDeliverEachReminderOnce(t *testing.T) {
	st := store.NewMockStore()
	pub := &recordingPublisher{}
	ctx := t.Context()

	const reminders = 50
	for i := range reminders {
		_, err := st.CreateReminder(ctx, testNow.Add(-time.Duration(i)*time.Second), "r", "remind")
		require.NoError(t, err)
	}

	var schedulers []*Scheduler
	for range 4 {
		schedulers = append(schedulers, newTestScheduler(t, st, pub, time.Hour))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for _, s := range schedulers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.Tick(ctx)
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, reminders, total)
	events := pub.ofKind(bridge.KindReminderDue)
	require.Len(t, events, reminders)
	seen := make(map[string]bool)
	for _, ev := range events {
		assert.False(t, seen[ev.Data["reminder_id"]], "reminder %s delivered twice", ev.Data["reminder_id"])
		seen[ev.Data["reminder_id"]] = true
	}
}

func TestTick_DegradesOnceAndRecovers(t *testing.T) {
	st := store.NewMockStore()
	pub := &recordingPublisher{}
	s := newTestScheduler(t, st, pub, time.Hour)
	ctx := t.Context()

	_, err := st.CreateReminder(ctx, testNow.Add(-time.Minute), "delayed", "remind")
	require.NoError(t, err)

	st.SetFailing(true)
	for i := range 5 {
		_, err := s.Tick(ctx)
		require.Error(t, err, "tick %d", i)
		assert.True(t, store.IsStoreError(err))
	}
	system := pub.ofKind(bridge.KindSystem)
	require.Len(t, system, 1, "degraded mode is announced once")
	assert.Equal(t, "degraded", system[0].Data["state"])
	assert.True(t, s.Degraded())
	assert.Empty(t, pub.ofKind(bridge.KindReminderDue))

	st.SetFailing(false)
	n, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the delayed reminder is delivered on recovery")
	system = pub.ofKind(bridge.KindSystem)
	require.Len(t, system, 2)
	assert.Equal(t, "recovered", system[1].Data["state"])
	assert.False(t, s.Degraded())

	// The escalation re-arms after recovery.
	st.SetFailing(true)
	for range DefaultDegradedAfter {
		_, _ = s.Tick(ctx)
	}
	assert.Len(t, pub.ofKind(bridge.KindSystem), 3)
}

func TestTick_TransientFailuresDoNotDegrade(t *testing.T) {
	st := store.NewMockStore()
	pub := &recordingPublisher{}
	s := newTestScheduler(t, st, pub, time.Hour)

	st.FailNext(DefaultDegradedAfter - 1)
	for range DefaultDegradedAfter - 1 {
		_, err := s.Tick(t.Context())
		require.Error(t, err)
	}
	_, err := s.Tick(t.Context())
	require.NoError(t, err)

	st.FailNext(DefaultDegradedAfter - 1)
	for range DefaultDegradedAfter - 1 {
		_, _ = s.Tick(t.Context())
	}
	assert.Empty(t, pub.ofKind(bridge.KindSystem))
	assert.False(t, s.Degraded())
}

func TestTick_MarkFiredFailureCountsAsFailure(t *testing.T) {
	st := store.NewMockStore()
	pub := &recordingPublisher{}
	marks := &failingMarkStore{MockStore: st}
	marks.failing.Store(true)
	s, err := New(Config{
		Store:     marks,
		Publisher: pub,
		Now:       func() time.Time { return testNow },
	})
	require.NoError(t, err)

	_, err = st.CreateReminder(t.Context(), testNow.Add(-time.Minute), "x", "remind")
	require.NoError(t, err)

	// ListDue succeeds, MarkFired fails: each tick is one more consecutive failure.
	for i := range DefaultDegradedAfter - 1 {
		_, err = s.Tick(t.Context())
		require.Error(t, err)
		assert.False(t, s.Degraded(), "tick %d", i)
	}
	_, err = s.Tick(t.Context())
	require.Error(t, err)
	assert.True(t, s.Degraded())

	for range 5 {
		_, _ = s.Tick(t.Context())
	}
	system := pub.ofKind(bridge.KindSystem)
	require.Len(t, system, 1, "no recovery is announced while writes keep failing")
	assert.Equal(t, "degraded", system[0].Data["state"])
	assert.Empty(t, pub.ofKind(bridge.KindReminderDue))

	marks.failing.Store(false)
	n, err := s.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	system = pub.ofKind(bridge.KindSystem)
	require.Len(t, system, 2)
	assert.Equal(t, "recovered", system[1].Data["state"])
	assert.False(t, s.Degraded())
}

// failingMarkStore fails every MarkFired while failing is set.
type failingMarkStore struct {
	*store.MockStore
	failing atomic.Bool
}

func (f *failingMarkStore) MarkFired(ctx context.Context, id int64) (bool, error) {
	if f.failing.Load() {
		return false, &store.StoreError{Op: "mark fired", Err: context.DeadlineExceeded}
	}
	return f.MockStore.MarkFired(ctx, id)
}

func TestStartStop(t *testing.T) {
	st := store.NewMockStore()
	pub := &recordingPublisher{}
	s := newTestScheduler(t, st, pub, 10*time.Millisecond)

	require.NoError(t, s.Start(t.Context()))
	assert.ErrorIs(t, s.Start(t.Context()), ErrRunning)
	assert.Equal(t, StateRunning, s.State())

	_, err := st.CreateReminder(t.Context(), testNow, "tick tock", "remind")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return len(pub.ofKind(bridge.KindReminderDue)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	assert.Equal(t, StateStopped, s.State())
	calls := st.Calls("list due")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, st.Calls("list due"), "no polling after Stop")

	s.Stop()
	require.NoError(t, s.Start(t.Context()), "a stopped scheduler can start again")
	s.Stop()
}

func TestStart_PollsImmediately(t *testing.T) {
	st := store.NewMockStore()
	pub := &recordingPublisher{}
	s := newTestScheduler(t, st, pub, time.Hour)

	_, err := st.CreateReminder(t.Context(), testNow.Add(-time.Hour), "overdue at startup", "remind")
	require.NoError(t, err)

	require.NoError(t, s.Start(t.Context()))
	assert.Eventually(t, func() bool {
		return len(pub.ofKind(bridge.KindReminderDue)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStart_ContextCancelStops(t *testing.T) {
	s := newTestScheduler(t, store.NewMockStore(), &recordingPublisher{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, s.Start(ctx))
	cancel()
	assert.Eventually(t, func() bool { return s.State() == StateStopped }, time.Second, 5*time.Millisecond)
}

func TestScenario_SQLiteReminderReachesEverySubscriber(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "familiar.db"))
	require.NoError(t, err)
	defer st.Close()

	b := bridge.New(8, nil)
	defer b.Close()
	console := b.Subscribe(t.Context(), "console")
	gui := b.Subscribe(t.Context(), "gui")

	s := newTestScheduler(t, st, b, time.Hour)
	id, err := st.CreateReminder(t.Context(), testNow, "take a break", "remind")
	require.NoError(t, err)

	n, err := s.Tick(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	for _, sub := range []*bridge.Subscription{console, gui} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, bridge.KindReminderDue, ev.Kind)
			assert.Equal(t, "take a break", ev.Payload)
		case <-time.After(time.Second):
			t.Fatalf("%s got no reminder", sub.Name)
		}
	}

	r, err := st.GetReminder(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFired, r.Status)
	require.NotNil(t, r.FiredAt)

	n, err = s.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	for _, sub := range []*bridge.Subscription{console, gui} {
		select {
		case ev := <-sub.Events():
			t.Fatalf("unexpected second event %+v", ev)
		case <-time.After(20 * time.Millisecond):
		}
	}
}
