// Package store provides persistent storage for the assistant using SQLite.
//
// # Architecture
//
// The store package is interface-driven:
//
//   - ReminderStore: scheduled reminders and the due-event scan
//   - TodoStore: tasks managed by the todo plugin
//   - NoteStore: titled notes with categories and search
//   - FactStore: remembered key/value facts about the user
//
// SQLiteStore implements all of them in a single struct over one database
// file. MockStore implements ReminderStore in memory and can simulate
// storage failures for tests.
//
// # Reminders
//
// A reminder moves from pending to fired (claimed by the scheduler) or from
// pending to cancelled (by a user command). Rows are removed only by
// PurgeReminders, which deletes fired and cancelled rows.
//
// MarkFired is the claim: it is a single conditional UPDATE guarded by
// status = 'pending', so when two callers race for the same reminder exactly
// one sees true.
//
// Due times are stored as fixed-width UTC text, which keeps the
// "due_at <= ?" scan and the ORDER BY on the index correct.
//
// # Errors
//
// ErrNotFound is returned for unknown IDs and keys. Every failure of the
// database itself is returned as a *StoreError carrying the operation name.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("familiar.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	id, err := s.CreateReminder(ctx, time.Now().Add(time.Hour), "stretch", "remind")
package store
