// ABOUTME: Store interfaces and data types for familiar persistence
// ABOUTME: Defines Reminder, Todo, Note and Fact models plus the StoreError failure type

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// StoreError wraps a failure of the underlying storage. Callers that can
// retry (the scheduler) look for it with errors.As.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is or wraps a *StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// ReminderStatus is the lifecycle state of a reminder.
// Transitions only go pending -> fired or pending -> cancelled.
type ReminderStatus string

const (
	StatusPending   ReminderStatus = "pending"
	StatusFired     ReminderStatus = "fired"
	StatusCancelled ReminderStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s ReminderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusFired, StatusCancelled:
		return true
	}
	return false
}

// Reminder is a scheduled notification
type Reminder struct {
	ID          int64
	DueAt       time.Time
	Payload     string
	Status      ReminderStatus
	Source      string // plugin or recurring schedule that created it
	CreatedAt   time.Time
	FiredAt     *time.Time
	CancelledAt *time.Time
}

// ReminderFilter narrows ListReminders. Zero value lists everything.
type ReminderFilter struct {
	Status ReminderStatus
	Limit  int
}

// ReminderStore persists reminders.
type ReminderStore interface {
	// CreateReminder stores a pending reminder and returns its ID.
	CreateReminder(ctx context.Context, dueAt time.Time, payload, source string) (int64, error)

	// GetReminder returns ErrNotFound when the ID is unknown.
	GetReminder(ctx context.Context, id int64) (*Reminder, error)

	// ListDue returns pending reminders due at or before asOf,
	// ordered by due time then ID.
	ListDue(ctx context.Context, asOf time.Time) ([]*Reminder, error)

	// MarkFired transitions a pending reminder to fired. It returns true only
	// for the caller that performed the transition.
	MarkFired(ctx context.Context, id int64) (bool, error)

	// CancelReminder transitions a pending reminder to cancelled. It returns
	// false when the reminder is absent or no longer pending.
	CancelReminder(ctx context.Context, id int64) (bool, error)

	// ListReminders returns reminders ordered by due time then ID.
	ListReminders(ctx context.Context, filter ReminderFilter) ([]*Reminder, error)

	// PurgeReminders deletes fired and cancelled reminders.
	PurgeReminders(ctx context.Context) (int64, error)
}

// Todo priorities and statuses
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"

	TodoPending   = "pending"
	TodoCompleted = "completed"
)

// Todo represents a task
type Todo struct {
	ID          string
	Description string
	Status      string // pending, completed
	Priority    string // low, medium, high
	Category    string
	DueAt       *time.Time
	ReminderID  *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Overdue reports whether the todo is pending and past its due time.
func (t *Todo) Overdue(now time.Time) bool {
	return t.Status == TodoPending && t.DueAt != nil && t.DueAt.Before(now)
}

// TodoFilter narrows ListTodos.
type TodoFilter struct {
	Status   string
	Category string
}

// TodoStore persists todos.
type TodoStore interface {
	CreateTodo(ctx context.Context, todo *Todo) error
	GetTodo(ctx context.Context, id string) (*Todo, error)
	ListTodos(ctx context.Context, filter TodoFilter) ([]*Todo, error)
	UpdateTodo(ctx context.Context, todo *Todo) error
	DeleteTodo(ctx context.Context, id string) error
}

// Note is a free-text note with a title and category.
type Note struct {
	ID        int64
	Title     string
	Text      string
	Category  string
	CreatedAt time.Time
}

// NoteFilter narrows ListNotes. Category matches case-insensitively;
// Search matches title or text as a case-insensitive substring.
type NoteFilter struct {
	Category string
	Search   string
}

// NoteStore persists notes.
type NoteStore interface {
	CreateNote(ctx context.Context, note *Note) error
	ListNotes(ctx context.Context, filter NoteFilter) ([]*Note, error)
	DeleteNote(ctx context.Context, id int64) error
	// ClearNotes deletes every note, or only those in category when it is
	// not empty, and returns how many were removed.
	ClearNotes(ctx context.Context, category string) (int64, error)
}

// Fact is a remembered key/value fact about the user.
type Fact struct {
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FactStore persists facts.
type FactStore interface {
	SetFact(ctx context.Context, key, value string) error
	GetFact(ctx context.Context, key string) (*Fact, error)
	ListFacts(ctx context.Context) ([]*Fact, error)
	DeleteFact(ctx context.Context, key string) error
}

// Store is everything the assistant persists.
type Store interface {
	ReminderStore
	TodoStore
	NoteStore
	FactStore
	Close() error
}
