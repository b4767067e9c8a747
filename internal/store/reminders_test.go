// ABOUTME: Tests for reminder persistence in the SQLite store
// ABOUTME: Covers due scans, ordering, atomic claims, cancellation and purge

package store

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetReminder(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	due := time.Date(2030, 5, 1, 14, 30, 0, 0, time.UTC)
	id, err := store.CreateReminder(ctx, due, "call the dentist", "remind")
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := store.GetReminder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.True(t, got.DueAt.Equal(due))
	assert.Equal(t, "call the dentist", got.Payload)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "remind", got.Source)
	assert.Nil(t, got.FiredAt)
	assert.Nil(t, got.CancelledAt)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateReminder_IDsIncrease(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	first, err := store.CreateReminder(ctx, time.Now(), "a", "")
	require.NoError(t, err)
	second, err := store.CreateReminder(ctx, time.Now(), "b", "")
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestCreateReminder_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	_, err := store.CreateReminder(ctx, time.Now(), "", "")
	assert.Error(t, err)

	_, err = store.CreateReminder(ctx, time.Time{}, "no time", "")
	assert.Error(t, err)
}

func TestGetReminder_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetReminder(t.Context(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsStoreError(err))
}

func TestListDue_FiltersAndOrders(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	future, err := store.CreateReminder(ctx, now.Add(time.Minute), "future", "")
	require.NoError(t, err)
	late, err := store.CreateReminder(ctx, now.Add(-time.Minute), "one minute ago", "")
	require.NoError(t, err)
	exact, err := store.CreateReminder(ctx, now, "exactly now", "")
	require.NoError(t, err)
	early, err := store.CreateReminder(ctx, now.Add(-time.Hour), "an hour ago", "")
	require.NoError(t, err)
	tie, err := store.CreateReminder(ctx, now.Add(-time.Minute), "tie, later id", "")
	require.NoError(t, err)

	due, err := store.ListDue(ctx, now)
	require.NoError(t, err)

	var ids []int64
	for _, r := range due {
		ids = append(ids, r.ID)
		assert.Equal(t, StatusPending, r.Status)
	}
	assert.Equal(t, []int64{early, late, tie, exact}, ids)
	assert.NotContains(t, ids, future)
}

func TestListDue_NormalizesTimezones(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 08:00 in Tokyo is 23:00 UTC the previous day.
	dueTokyo := time.Date(2030, 6, 2, 8, 0, 0, 0, tokyo)
	id, err := store.CreateReminder(ctx, dueTokyo, "tokyo", "")
	require.NoError(t, err)

	due, err := store.ListDue(ctx, time.Date(2030, 6, 1, 22, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = store.ListDue(ctx, time.Date(2030, 6, 1, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
	assert.True(t, due[0].DueAt.Equal(dueTokyo))
}

func TestMarkFired(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	id, err := store.CreateReminder(ctx, time.Now().Add(-time.Second), "fire me", "")
	require.NoError(t, err)

	claimed, err := store.MarkFired(ctx, id)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.MarkFired(ctx, id)
	require.NoError(t, err)
	assert.False(t, claimed, "second claim must not succeed")

	got, err := store.GetReminder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFired, got.Status)
	assert.NotNil(t, got.FiredAt)

	due, err := store.ListDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMarkFired_UnknownID(t *testing.T) {
	store := newTestStore(t)

	claimed, err := store.MarkFired(t.Context(), 12345)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestMarkFired_ConcurrentClaimsFireOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	id, err := store.CreateReminder(ctx, time.Now().Add(-time.Second), "contended", "")
	require.NoError(t, err)

	const claimers = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := store.MarkFired(ctx, id)
			if err != nil {
				t.Errorf("MarkFired: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestCancelReminder(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	id, err := store.CreateReminder(ctx, time.Now().Add(-time.Minute), "cancel me", "")
	require.NoError(t, err)

	ok, err := store.CancelReminder(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	due, err := store.ListDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due, "cancelled reminders are never due")

	got, err := store.GetReminder(ctx, id)
	require.NoError(t, err, "cancel keeps the row")
	assert.Equal(t, StatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)

	ok, err = store.CancelReminder(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "already cancelled")

	claimed, err := store.MarkFired(ctx, id)
	require.NoError(t, err)
	assert.False(t, claimed, "cancelled reminders cannot fire")
}

func TestCancelReminder_AfterFired(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	id, err := store.CreateReminder(ctx, time.Now(), "already gone", "")
	require.NoError(t, err)
	_, err = store.MarkFired(ctx, id)
	require.NoError(t, err)

	ok, err := store.CancelReminder(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.CancelReminder(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListReminders_StatusFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	now := time.Now()

	pending, err := store.CreateReminder(ctx, now.Add(time.Hour), "pending", "")
	require.NoError(t, err)
	fired, err := store.CreateReminder(ctx, now.Add(-time.Hour), "fired", "")
	require.NoError(t, err)
	cancelled, err := store.CreateReminder(ctx, now.Add(2*time.Hour), "cancelled", "")
	require.NoError(t, err)

	_, err = store.MarkFired(ctx, fired)
	require.NoError(t, err)
	_, err = store.CancelReminder(ctx, cancelled)
	require.NoError(t, err)

	all, err := store.ListReminders(ctx, ReminderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{fired, pending, cancelled}, []int64{all[0].ID, all[1].ID, all[2].ID})

	for status, want := range map[ReminderStatus]int64{
		StatusPending:   pending,
		StatusFired:     fired,
		StatusCancelled: cancelled,
	} {
		got, err := store.ListReminders(ctx, ReminderFilter{Status: status})
		require.NoError(t, err)
		require.Len(t, got, 1, "status %s", status)
		assert.Equal(t, want, got[0].ID)
	}

	limited, err := store.ListReminders(ctx, ReminderFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = store.ListReminders(ctx, ReminderFilter{Status: "snoozed"})
	assert.Error(t, err)
}

func TestPurgeReminders(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	keep, err := store.CreateReminder(ctx, time.Now().Add(time.Hour), "keep", "")
	require.NoError(t, err)
	fired, err := store.CreateReminder(ctx, time.Now(), "fired", "")
	require.NoError(t, err)
	cancelled, err := store.CreateReminder(ctx, time.Now(), "cancelled", "")
	require.NoError(t, err)
	_, err = store.MarkFired(ctx, fired)
	require.NoError(t, err)
	_, err = store.CancelReminder(ctx, cancelled)
	require.NoError(t, err)

	n, err := store.PurgeReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	remaining, err := store.ListReminders(ctx, ReminderFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, keep, remaining[0].ID)

	_, err = store.GetReminder(ctx, fired)
	assert.ErrorIs(t, err, ErrNotFound)
}
