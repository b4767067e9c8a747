// Package scheduler delivers reminders when they fall due.
//
// The Scheduler polls the reminder store immediately on Start and then every
// interval. Each due reminder is claimed with MarkFired; only the caller that
// wins the claim publishes it, as a reminder_due event on the bridge. A
// reminder is therefore delivered at most once even with several
// schedulers on one database.
//
// Storage failures are logged and retried on the next tick. After a
// configurable number of consecutive failures the scheduler publishes one
// system event announcing degraded mode, and one more when polling
// succeeds again.
//
// Recurring turns cron schedules into reminders: each firing stores a
// pending reminder due now, and the poller delivers it like any other.
package scheduler
