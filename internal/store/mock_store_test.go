// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLiteStore
// ABOUTME: Focuses on claim semantics and failure injection

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_MatchesClaimSemantics(t *testing.T) {
	store := NewMockStore()
	ctx := t.Context()
	now := time.Now()

	later, err := store.CreateReminder(ctx, now.Add(-time.Minute), "later id", "")
	require.NoError(t, err)
	earlier, err := store.CreateReminder(ctx, now.Add(-time.Hour), "earlier", "")
	require.NoError(t, err)
	_, err = store.CreateReminder(ctx, now.Add(time.Hour), "future", "")
	require.NoError(t, err)

	due, err := store.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, earlier, due[0].ID)
	assert.Equal(t, later, due[1].ID)

	ok, err := store.MarkFired(ctx, earlier)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.MarkFired(ctx, earlier)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.CancelReminder(ctx, later)
	require.NoError(t, err)
	assert.True(t, ok)

	due, err = store.ListDue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	n, err := store.PurgeReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMockStore_FailureInjection(t *testing.T) {
	store := NewMockStore()
	ctx := t.Context()

	store.FailNext(2)
	_, err := store.ListDue(ctx, time.Now())
	assert.True(t, IsStoreError(err))
	_, err = store.ListDue(ctx, time.Now())
	assert.True(t, IsStoreError(err))
	_, err = store.ListDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 3, store.Calls("list due"))

	store.SetFailing(true)
	_, err = store.CreateReminder(ctx, time.Now(), "x", "")
	assert.True(t, IsStoreError(err))
	store.SetFailing(false)
	_, err = store.CreateReminder(ctx, time.Now(), "x", "")
	assert.NoError(t, err)
}

func TestMockStore_ReturnsCopies(t *testing.T) {
	store := NewMockStore()
	ctx := t.Context()

	id, err := store.CreateReminder(ctx, time.Now(), "original", "")
	require.NoError(t, err)

	got, err := store.GetReminder(ctx, id)
	require.NoError(t, err)
	got.Payload = "mutated"

	again, err := store.GetReminder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Payload)
}
