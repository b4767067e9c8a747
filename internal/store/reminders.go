// ABOUTME: SQLite persistence for reminders and the due-event scan
// ABOUTME: MarkFired is a conditional update so that concurrent claims fire a reminder once

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const reminderColumns = `id, due_at, payload, status, source, created_at, fired_at, cancelled_at`

// CreateReminder stores a pending reminder and returns its ID.
func (s *SQLiteStore) CreateReminder(ctx context.Context, dueAt time.Time, payload, source string) (int64, error) {
	if payload == "" {
		return 0, errors.New("reminder payload is required")
	}
	if dueAt.IsZero() {
		return 0, errors.New("reminder due time is required")
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (due_at, payload, status, source, created_at)
		VALUES (?, ?, 'pending', ?, ?)
	`, formatTime(dueAt), payload, source, formatTime(time.Now()))
	if err != nil {
		return 0, wrap("create reminder", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, wrap("create reminder", err)
	}

	s.logger.Debug("created reminder", "id", id, "due_at", dueAt.UTC(), "source", source)
	return id, nil
}

// GetReminder retrieves a reminder by ID.
// Returns ErrNotFound if the reminder doesn't exist.
func (s *SQLiteStore) GetReminder(ctx context.Context, id int64) (*Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)

	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("get reminder", err)
	}
	return r, nil
}

// ListDue returns pending reminders due at or before asOf.
func (s *SQLiteStore) ListDue(ctx context.Context, asOf time.Time) ([]*Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE status = 'pending' AND due_at <= ?
		ORDER BY due_at ASC, id ASC
	`, formatTime(asOf))
	if err != nil {
		return nil, wrap("list due", err)
	}

	reminders, err := collectReminders(rows)
	return reminders, wrap("list due", err)
}

// MarkFired claims a pending reminder. Only the caller whose update changed
// the row gets true.
func (s *SQLiteStore) MarkFired(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = 'fired', fired_at = ?
		WHERE id = ? AND status = 'pending'
	`, formatTime(time.Now()), id)
	if err != nil {
		return false, wrap("mark fired", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, wrap("mark fired", err)
	}
	return n == 1, nil
}

// CancelReminder cancels a pending reminder. The row is kept.
func (s *SQLiteStore) CancelReminder(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = 'cancelled', cancelled_at = ?
		WHERE id = ? AND status = 'pending'
	`, formatTime(time.Now()), id)
	if err != nil {
		return false, wrap("cancel reminder", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, wrap("cancel reminder", err)
	}
	if n == 1 {
		s.logger.Debug("cancelled reminder", "id", id)
	}
	return n == 1, nil
}

// ListReminders lists reminders with an optional status filter.
func (s *SQLiteStore) ListReminders(ctx context.Context, filter ReminderFilter) ([]*Reminder, error) {
	var args []any
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE 1=1`

	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, fmt.Errorf("unknown reminder status %q", filter.Status)
		}
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY due_at ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list reminders", err)
	}

	reminders, err := collectReminders(rows)
	return reminders, wrap("list reminders", err)
}

// PurgeReminders deletes reminders that are no longer pending.
func (s *SQLiteStore) PurgeReminders(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE status IN ('fired', 'cancelled')`)
	if err != nil {
		return 0, wrap("purge reminders", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, wrap("purge reminders", err)
	}
	s.logger.Info("purged reminders", "count", n)
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*Reminder, error) {
	var r Reminder
	var status, dueAt, createdAt string
	var firedAt, cancelledAt sql.NullString

	if err := row.Scan(&r.ID, &dueAt, &r.Payload, &status, &r.Source, &createdAt, &firedAt, &cancelledAt); err != nil {
		return nil, err
	}

	r.Status = ReminderStatus(status)
	r.DueAt = parseTime(dueAt)
	r.CreatedAt = parseTime(createdAt)
	r.FiredAt = parseNullTime(firedAt)
	r.CancelledAt = parseNullTime(cancelledAt)
	return &r, nil
}

func collectReminders(rows *sql.Rows) ([]*Reminder, error) {
	defer func() { _ = rows.Close() }()

	var reminders []*Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}
