// Package builtins provides the plugin kinds that ship with familiar.
//
// # Overview
//
// Install adds every kind to a plugins.Catalog; Specs lists the plugins that
// are always loaded. Manifests in the plugin directory can create further
// instances of any kind under new names and patterns.
//
// # Kinds
//
//   - help, plugins, reload: describe and reload the plugin set
//   - remind: create, list, cancel and purge reminders
//   - schedule: book an event at a clock time and date
//   - todo: tasks with priority, category and due date; settings.category
//     sets the default category
//   - note: key/value memory
//   - time, date, timeuntil, settimezone: clock helpers in the user's zone
//   - reply: fixed settings.text (manifest only)
//   - lookup: replies at once, publishes settings.text later (manifest only)
//
// # Time expressions
//
// ParseWhen understands "in 5 minutes", "2h", "tomorrow", "next week",
// "at 14:30", "at 5pm", "MM/DD/YYYY", "YYYY-MM-DD [HH:MM]" and RFC 3339.
//
// # Time zone
//
// The user's zone is stored as the "timezone" note by settimezone and falls
// back to the configured assistant zone.
package builtins
