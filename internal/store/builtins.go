// ABOUTME: SQLite persistence for built-in plugin data.
// ABOUTME: Handles todos, titled notes and the key/value facts the assistant remembers.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const todoColumns = `id, description, status, priority, category, due_at, reminder_id, created_at, updated_at, completed_at`

// CreateTodo creates a new todo.
func (s *SQLiteStore) CreateTodo(ctx context.Context, todo *Todo) error {
	if strings.TrimSpace(todo.Description) == "" {
		return errors.New("todo description is required")
	}
	if todo.ID == "" {
		todo.ID = uuid.New().String()
	}
	now := time.Now()
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = now
	}
	todo.UpdatedAt = now
	if todo.Status == "" {
		todo.Status = TodoPending
	}
	if todo.Priority == "" {
		todo.Priority = PriorityMedium
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO todos (`+todoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, todo.ID, todo.Description, todo.Status, todo.Priority, nullString(todo.Category),
		nullTime(todo.DueAt), nullInt(todo.ReminderID),
		formatTime(todo.CreatedAt), formatTime(todo.UpdatedAt), nullTime(todo.CompletedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("invalid todo: %w", err)
		}
		return wrap("create todo", err)
	}
	return nil
}

// GetTodo retrieves a todo by ID.
func (s *SQLiteStore) GetTodo(ctx context.Context, id string) (*Todo, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = ?`, id)
	t, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("get todo", err)
	}
	return t, nil
}

// ListTodos lists todos oldest first with optional filters.
func (s *SQLiteStore) ListTodos(ctx context.Context, filter TodoFilter) ([]*Todo, error) {
	var args []any
	query := `SELECT ` + todoColumns + ` FROM todos WHERE 1=1`

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		query += ` AND category = ? COLLATE NOCASE`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list todos", err)
	}
	defer func() { _ = rows.Close() }()

	var todos []*Todo
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, wrap("list todos", err)
		}
		todos = append(todos, t)
	}
	return todos, wrap("list todos", rows.Err())
}

// UpdateTodo updates an existing todo.
func (s *SQLiteStore) UpdateTodo(ctx context.Context, todo *Todo) error {
	todo.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE todos SET description = ?, status = ?, priority = ?, category = ?, due_at = ?,
			reminder_id = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, todo.Description, todo.Status, todo.Priority, nullString(todo.Category), nullTime(todo.DueAt),
		nullInt(todo.ReminderID), formatTime(todo.UpdatedAt), nullTime(todo.CompletedAt), todo.ID)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("invalid todo: %w", err)
		}
		return wrap("update todo", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTodo deletes a todo by ID.
func (s *SQLiteStore) DeleteTodo(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return wrap("delete todo", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTodo(row rowScanner) (*Todo, error) {
	var t Todo
	var category, dueAt, completedAt sql.NullString
	var reminderID sql.NullInt64
	var createdAt, updatedAt string

	if err := row.Scan(&t.ID, &t.Description, &t.Status, &t.Priority, &category, &dueAt,
		&reminderID, &createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}

	t.Category = category.String
	t.DueAt = parseNullTime(dueAt)
	t.CompletedAt = parseNullTime(completedAt)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	if reminderID.Valid {
		id := reminderID.Int64
		t.ReminderID = &id
	}
	return &t, nil
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// CreateNote stores a note and fills in its ID, and CreatedAt when unset.
// Empty titles and categories default to "Untitled" and "General".
func (s *SQLiteStore) CreateNote(ctx context.Context, note *Note) error {
	note.Text = strings.TrimSpace(note.Text)
	if note.Text == "" {
		return errors.New("note text is required")
	}
	if note.Title = strings.TrimSpace(note.Title); note.Title == "" {
		note.Title = "Untitled"
	}
	if note.Category = strings.TrimSpace(note.Category); note.Category == "" {
		note.Category = "General"
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	note.CreatedAt = note.CreatedAt.UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (title, body, category, created_at)
		VALUES (?, ?, ?, ?)
	`, note.Title, note.Text, note.Category, formatTime(note.CreatedAt))
	if err != nil {
		return wrap("create note", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return wrap("create note", err)
	}
	note.ID = id
	return nil
}

// ListNotes lists notes in creation order.
func (s *SQLiteStore) ListNotes(ctx context.Context, filter NoteFilter) ([]*Note, error) {
	query := `SELECT id, title, body, category, created_at FROM notes WHERE 1=1`
	var args []any
	if filter.Category != "" {
		query += ` AND category = ? COLLATE NOCASE`
		args = append(args, strings.TrimSpace(filter.Category))
	}
	if filter.Search != "" {
		query += ` AND (instr(lower(title), lower(?)) > 0 OR instr(lower(body), lower(?)) > 0)`
		args = append(args, filter.Search, filter.Search)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list notes", err)
	}
	defer func() { _ = rows.Close() }()

	var notes []*Note
	for rows.Next() {
		var n Note
		var createdAt string
		if err := rows.Scan(&n.ID, &n.Title, &n.Text, &n.Category, &createdAt); err != nil {
			return nil, wrap("list notes", err)
		}
		n.CreatedAt = parseTime(createdAt)
		notes = append(notes, &n)
	}
	return notes, wrap("list notes", rows.Err())
}

// DeleteNote deletes a note by ID.
func (s *SQLiteStore) DeleteNote(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return wrap("delete note", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearNotes deletes all notes, or those in one category.
func (s *SQLiteStore) ClearNotes(ctx context.Context, category string) (int64, error) {
	var result sql.Result
	var err error
	if category = strings.TrimSpace(category); category == "" {
		result, err = s.db.ExecContext(ctx, `DELETE FROM notes`)
	} else {
		result, err = s.db.ExecContext(ctx, `DELETE FROM notes WHERE category = ? COLLATE NOCASE`, category)
	}
	if err != nil {
		return 0, wrap("clear notes", err)
	}
	n, err := result.RowsAffected()
	return n, wrap("clear notes", err)
}

// SetFact creates or updates a fact.
func (s *SQLiteStore) SetFact(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("fact key is required")
	}
	now := formatTime(time.Now())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, now, now)
	return wrap("set fact", err)
}

// GetFact retrieves a fact by key.
func (s *SQLiteStore) GetFact(ctx context.Context, key string) (*Fact, error) {
	var f Fact
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT key, value, created_at, updated_at FROM facts WHERE key = ?
	`, strings.TrimSpace(key)).Scan(&f.Key, &f.Value, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("get fact", err)
	}

	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return &f, nil
}

// ListFacts lists all facts ordered by key.
func (s *SQLiteStore) ListFacts(ctx context.Context) ([]*Fact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, created_at, updated_at FROM facts ORDER BY key`)
	if err != nil {
		return nil, wrap("list facts", err)
	}
	defer func() { _ = rows.Close() }()

	var facts []*Fact
	for rows.Next() {
		var f Fact
		var createdAt, updatedAt string
		if err := rows.Scan(&f.Key, &f.Value, &createdAt, &updatedAt); err != nil {
			return nil, wrap("list facts", err)
		}
		f.CreatedAt = parseTime(createdAt)
		f.UpdatedAt = parseTime(updatedAt)
		facts = append(facts, &f)
	}
	return facts, wrap("list facts", rows.Err())
}

// DeleteFact deletes a fact by key.
func (s *SQLiteStore) DeleteFact(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE key = ?`, strings.TrimSpace(key))
	if err != nil {
		return wrap("delete fact", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
