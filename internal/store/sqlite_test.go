// ABOUTME: Tests for SQLite store setup and shared helpers
// ABOUTME: Covers file creation, migrations, in-memory mode and StoreError wrapping

package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_UnwritableLocation(t *testing.T) {
	// A regular file where a directory is expected cannot be created.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := NewSQLiteStore(filepath.Join(blocker, "db", "test.db"))
	require.Error(t, err)
	assert.True(t, IsStoreError(err), "open failures should be StoreErrors, got %T", err)
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := t.Context()
	id, err := store.CreateReminder(ctx, time.Now(), "in memory", "test")
	require.NoError(t, err)

	got, err := store.GetReminder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "in memory", got.Payload)
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := t.Context()

	first, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	id, err := first.CreateReminder(ctx, time.Now().Add(time.Hour), "survives restart", "test")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetReminder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "survives restart", got.Payload)
	assert.Equal(t, StatusPending, got.Status)
}

func TestRunMigrations_AddsSourceColumn(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	// A database from before reminders carried a source.
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			due_at TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL,
			fired_at TEXT,
			cancelled_at TEXT
		);
		INSERT INTO reminders (due_at, payload, status, created_at)
		VALUES ('2024-01-01T09:00:00Z', 'old row', 'pending', '2024-01-01T08:00:00Z');
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetReminder(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, "old row", got.Payload)
	assert.Equal(t, "", got.Source)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), got.DueAt, "plain RFC3339 rows should still parse")
}

func TestMigration_KeyValueNotesBecomeFacts(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	// A database from when notes held key/value pairs.
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE notes (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		INSERT INTO notes VALUES ('timezone', 'Europe/Lisbon', '2024-01-01T08:00:00Z', '2024-01-01T08:00:00Z');
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	for range 2 {
		store, err := NewSQLiteStore(dbPath)
		require.NoError(t, err)

		fact, err := store.GetFact(t.Context(), "timezone")
		require.NoError(t, err)
		assert.Equal(t, "Europe/Lisbon", fact.Value)

		note := &Note{Text: "fresh table"}
		require.NoError(t, store.CreateNote(t.Context(), note))
		require.NoError(t, store.Close())
	}
}

func TestStoreError_AfterClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.ListDue(t.Context(), time.Now())
	require.Error(t, err)

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "list due", se.Op)
	assert.Contains(t, err.Error(), "store list due")
}

func TestFormatTime_LexicalOrderMatchesTime(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	earlier := time.Date(2024, 3, 10, 23, 0, 0, 0, loc) // 04:00 UTC next day
	later := time.Date(2024, 3, 11, 4, 0, 0, 500, time.UTC)

	assert.Less(t, formatTime(earlier), formatTime(later))
	assert.Len(t, formatTime(earlier), len(formatTime(later)))
	assert.True(t, parseTime(formatTime(later)).Equal(later))
}
