// ABOUTME: Reminder plugins: remind creates, lists, cancels and purges reminders; schedule books events.
// ABOUTME: Both write pending reminders that the scheduler delivers when due.

package builtins

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/2389/familiar/internal/plugins"
	"github.com/2389/familiar/internal/store"
)

var remindRe = regexp.MustCompile(`(?i)^(?:me\s+)?(.+?)\s+to\s+(.+)$`)

const remindUsage = "remind <when> to <text> | remind list [pending|fired|cancelled|all] | remind cancel <id> | remind purge"

func remindKind(deps Deps, zone *Zone) plugins.Factory {
	return func(spec plugins.Spec) (*plugins.Descriptor, error) {
		if err := requireStore(deps); err != nil {
			return nil, err
		}
		r := &reminders{deps: deps, zone: zone, source: spec.Name}
		return &plugins.Descriptor{
			Description: "Set, list and cancel reminders",
			Usage:       remindUsage,
			Handler:     r.handle,
		}, nil
	}
}

type reminders struct {
	deps   Deps
	zone   *Zone
	source string
}

func (r *reminders) handle(ctx context.Context, call *plugins.Call) (string, error) {
	switch strings.ToLower(call.Arg(0)) {
	case "", "help":
		return "Usage: " + remindUsage, nil
	case "list":
		return r.list(ctx, call.Arg(1))
	case "cancel":
		return r.cancel(ctx, call.Arg(1))
	case "purge":
		n, err := r.deps.Store.PurgeReminders(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Purged %s.", plural(int(n), "reminder")), nil
	}
	return r.create(ctx, call.Rest(0))
}

func (r *reminders) create(ctx context.Context, text string) (string, error) {
	m := remindRe.FindStringSubmatch(text)
	if m == nil {
		return "Usage: " + remindUsage, nil
	}
	when, what := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])

	now := r.deps.now()
	loc := r.zone.Location(ctx)
	due, err := ParseWhen(when, now, loc)
	if err != nil {
		return fmt.Sprintf("Sorry, I couldn't understand the time '%s'. Try 'in 10 minutes', 'tomorrow' or 'at 14:30'.", when), nil
	}
	if due.Before(now.Add(-time.Second)) {
		return fmt.Sprintf("%s is already in the past.", due.In(loc).Format(dateTimeLayout)), nil
	}

	id, err := r.deps.Store.CreateReminder(ctx, due, what, r.source)
	if err != nil {
		return "", err
	}
	r.deps.logger().Info("reminder created", "id", id, "due_at", due, "source", r.source)
	return fmt.Sprintf("⏰ Okay, I'll remind you to %s at %s. (#%d)", what, due.In(loc).Format(dateTimeLayout), id), nil
}

func (r *reminders) list(ctx context.Context, which string) (string, error) {
	filter := store.ReminderFilter{Status: store.StatusPending}
	switch w := strings.ToLower(which); w {
	case "", "pending":
	case "all":
		filter.Status = ""
	default:
		status := store.ReminderStatus(w)
		if !status.Valid() {
			return "Usage: remind list [pending|fired|cancelled|all]", nil
		}
		filter.Status = status
	}

	list, err := r.deps.Store.ListReminders(ctx, filter)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		if filter.Status == "" {
			return "You have no reminders.", nil
		}
		return fmt.Sprintf("You have no %s reminders.", filter.Status), nil
	}

	loc := r.zone.Location(ctx)
	lines := []string{"Your reminders:"}
	for _, rem := range list {
		line := fmt.Sprintf("#%d %s: %s", rem.ID, rem.DueAt.In(loc).Format(dateTimeLayout), rem.Payload)
		if rem.Status != store.StatusPending {
			line += fmt.Sprintf(" (%s)", rem.Status)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func (r *reminders) cancel(ctx context.Context, arg string) (string, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		return "Usage: remind cancel <id>", nil
	}
	ok, err := r.deps.Store.CancelReminder(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("There is no pending reminder #%d.", id), nil
	}
	return fmt.Sprintf("Cancelled reminder #%d.", id), nil
}

var scheduleRe = regexp.MustCompile(`(?i)^(.+?)\s+at\s+(\d{1,2}:\d{2}\s*(?:am|pm)?)(?:\s+on\s+(\d{1,2}/\d{1,2}/\d{4}))?(?:\s+in\s+([\w/+-]+))?$`)

const scheduleUsage = "schedule <event> at <h:mm[am|pm]> [on MM/DD/YYYY] [in <zone>] | schedule list"

func scheduleKind(deps Deps, zone *Zone) plugins.Factory {
	return func(spec plugins.Spec) (*plugins.Descriptor, error) {
		if err := requireStore(deps); err != nil {
			return nil, err
		}
		source := spec.Name
		return &plugins.Descriptor{
			Description: "Schedule events for a date and time",
			Usage:       scheduleUsage,
			Handler: func(ctx context.Context, call *plugins.Call) (string, error) {
				if strings.EqualFold(call.Arg(0), "list") && len(call.Args) == 1 {
					return listScheduled(ctx, deps, zone, source)
				}
				return schedule(ctx, deps, zone, source, call.Rest(0))
			},
		}, nil
	}
}

func schedule(ctx context.Context, deps Deps, zone *Zone, source, text string) (string, error) {
	m := scheduleRe.FindStringSubmatch(text)
	if m == nil {
		return "Usage: " + scheduleUsage, nil
	}
	event, clock, date, zoneName := strings.TrimSpace(m[1]), m[2], m[3], m[4]

	loc := zone.Location(ctx)
	if zoneName != "" {
		l, err := time.LoadLocation(zoneName)
		if err != nil {
			return "Error scheduling event: Invalid timezone format.", nil
		}
		loc = l
	}

	now := deps.now()
	at, err := eventTime(clock, date, now.In(loc), loc)
	if err != nil {
		return "Error scheduling event: Invalid time or date format.", nil
	}
	if !at.After(now) {
		return fmt.Sprintf("%s has already passed.", at.Format(dateTimeLayout)), nil
	}

	if _, err := deps.Store.CreateReminder(ctx, at, event, source); err != nil {
		return "", err
	}
	return fmt.Sprintf("📅 Scheduled: %s at %s.", event, at.Format(dateTimeLayout)), nil
}

// eventTime combines an h:mm clock, optionally with am/pm, and an optional
// MM/DD/YYYY date (today when empty) in loc.
func eventTime(clock, date string, today time.Time, loc *time.Location) (time.Time, error) {
	clock = strings.ToLower(strings.ReplaceAll(clock, " ", ""))
	layout := "15:04"
	if strings.HasSuffix(clock, "am") || strings.HasSuffix(clock, "pm") {
		layout = "3:04pm"
	}
	hm, err := time.Parse(layout, clock)
	if err != nil {
		return time.Time{}, err
	}

	day := today
	if date != "" {
		day, err = time.ParseInLocation("1/2/2006", date, loc)
		if err != nil {
			return time.Time{}, err
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hm.Hour(), hm.Minute(), 0, 0, loc), nil
}

func listScheduled(ctx context.Context, deps Deps, zone *Zone, source string) (string, error) {
	list, err := deps.Store.ListReminders(ctx, store.ReminderFilter{Status: store.StatusPending})
	if err != nil {
		return "", err
	}
	loc := zone.Location(ctx)
	lines := []string{"Your Upcoming Events:"}
	for _, rem := range list {
		if rem.Source != source {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. %s at %s", len(lines), rem.Payload, rem.DueAt.In(loc).Format(dateTimeLayout)))
	}
	if len(lines) == 1 {
		return "You have no upcoming scheduled events.", nil
	}
	return strings.Join(lines, "\n"), nil
}

// errNoStore guards kinds that need persistence.
var errNoStore = errors.New("plugin needs a store")

func requireStore(deps Deps) error {
	if deps.Store == nil {
		return errNoStore
	}
	return nil
}
