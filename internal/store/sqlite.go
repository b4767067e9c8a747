// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Handles connection setup, schema creation, migrations and shared helpers

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// timeLayout is fixed width so that, for UTC values, lexical order of the
// stored text equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// busyTimeoutMS lets concurrent writers wait for the lock instead of failing.
const busyTimeoutMS = 5000

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. The special path ":memory:"
// opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	memory := path == ":memory:"
	dsn := path
	if !memory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &StoreError{Op: "open", Err: fmt.Errorf("creating database directory: %w", err)}
		}
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, busyTimeoutMS)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	if memory {
		// Every pooled connection to :memory: would see its own database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, &StoreError{Op: "open", Err: fmt.Errorf("enabling WAL mode: %w", err)}
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.renameKeyValueNotes(); err != nil {
		db.Close()
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("migrating notes: %w", err)}
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("creating schema: %w", err)}
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("running migrations: %w", err)}
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS reminders (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			due_at       TEXT NOT NULL,
			payload      TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'pending',
			created_at   TEXT NOT NULL,
			fired_at     TEXT,
			cancelled_at TEXT,

			CHECK (status IN ('pending', 'fired', 'cancelled'))
		);

		CREATE INDEX IF NOT EXISTS idx_reminders_status_due
			ON reminders(status, due_at);

		CREATE TABLE IF NOT EXISTS todos (
			id           TEXT PRIMARY KEY,
			description  TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'pending',
			priority     TEXT NOT NULL DEFAULT 'medium',
			category     TEXT,
			due_at       TEXT,
			reminder_id  INTEGER,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,
			completed_at TEXT,

			CHECK (status IN ('pending', 'completed')),
			CHECK (priority IN ('low', 'medium', 'high'))
		);

		CREATE INDEX IF NOT EXISTS idx_todos_status ON todos(status);

		CREATE TABLE IF NOT EXISTS notes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			title      TEXT NOT NULL,
			body       TEXT NOT NULL,
			category   TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS facts (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// renameKeyValueNotes moves a notes table from older builds, which held
// key/value facts, to facts so that notes can be created with its new shape.
func (s *SQLiteStore) renameKeyValueNotes() error {
	var legacy int
	err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info('notes') WHERE name = 'key'`).Scan(&legacy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(`ALTER TABLE notes RENAME TO facts`); err != nil {
		return err
	}
	s.logger.Info("applied migration", "table", "notes", "renamed_to", "facts")
	return nil
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "reminders",
			column: "source",
			apply:  `ALTER TABLE reminders ADD COLUMN source TEXT NOT NULL DEFAULT ''`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(
			`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column,
		).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// wrap turns a driver error into a StoreError. ErrNotFound and nil pass through.
func wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by hand or by older builds may use plain RFC3339.
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

// nullString returns nil for empty strings so they're stored as NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
