// ABOUTME: Parses human time expressions such as "in 5 minutes", "tomorrow" or "at 14:30".
// ABOUTME: Shared by the remind, todo and timeuntil plugins.

package builtins

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrBadWhen is returned when a time expression cannot be understood.
var ErrBadWhen = errors.New("unrecognized time expression")

var absoluteLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"01/02/2006",
	"1/2/2006",
}

var (
	relativeRe = regexp.MustCompile(`^(?:in\s+)?(\d+)\s*([a-z]+)$`)
	clockRe    = regexp.MustCompile(`^at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
)

// ParseWhen resolves input relative to now. Dates without a zone are read in
// loc. Clock times ("at 9:30", "at 5pm") mean the next such time.
func ParseWhen(input string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	norm := strings.Join(strings.Fields(input), " ")
	s := strings.ToLower(norm)
	if s == "" {
		return time.Time{}, ErrBadWhen
	}

	if t, err := time.Parse(time.RFC3339, strings.ToUpper(norm)); err == nil {
		return t, nil
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, strings.ToUpper(norm), loc); err == nil {
			return t, nil
		}
	}

	switch s {
	case "now":
		return now, nil
	case "tomorrow":
		return now.Add(24 * time.Hour), nil
	case "next week":
		return now.Add(7 * 24 * time.Hour), nil
	}

	if m := clockRe.FindStringSubmatch(s); m != nil {
		return nextClock(m[1], m[2], m[3], now, loc)
	}

	if m := relativeRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrBadWhen, input)
		}
		unit, ok := unitOf(m[2])
		if !ok {
			return time.Time{}, fmt.Errorf("%w: unknown unit %q", ErrBadWhen, m[2])
		}
		span := unit
		if unit == 0 {
			span = 7 * 24 * time.Hour
		}
		if int64(n) > math.MaxInt64/int64(span) {
			return time.Time{}, fmt.Errorf("%w: %q is too far ahead", ErrBadWhen, input)
		}
		if unit == 0 {
			return now.AddDate(0, 0, 7*n), nil
		}
		return now.Add(time.Duration(n) * unit), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrBadWhen, input)
}

// unitOf maps a unit word to a duration. Weeks return 0 and are handled
// with calendar arithmetic.
func unitOf(word string) (time.Duration, bool) {
	switch strings.TrimSuffix(word, "s") {
	case "sec", "second", "":
		return time.Second, true
	case "m", "min", "minute":
		return time.Minute, true
	case "h", "hr", "hour":
		return time.Hour, true
	case "d", "day":
		return 24 * time.Hour, true
	case "w", "wk", "week":
		return 0, true
	}
	return 0, false
}

func nextClock(hh, mm, ampm string, now time.Time, loc *time.Location) (time.Time, error) {
	hour, _ := strconv.Atoi(hh)
	minute := 0
	if mm != "" {
		minute, _ = strconv.Atoi(mm)
	}
	switch ampm {
	case "am", "pm":
		if hour < 1 || hour > 12 {
			return time.Time{}, fmt.Errorf("%w: hour %d", ErrBadWhen, hour)
		}
		hour %= 12
		if ampm == "pm" {
			hour += 12
		}
	}
	if hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: %s:%s", ErrBadWhen, hh, mm)
	}

	local := now.In(loc)
	t := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

// humanDuration renders d as "2 days, 3 hours, 5 minutes".
func humanDuration(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)

	var parts []string
	for _, p := range []struct {
		n    int
		unit string
	}{{days, "day"}, {hours, "hour"}, {minutes, "minute"}} {
		if p.n > 0 {
			parts = append(parts, plural(p.n, p.unit))
		}
	}
	if len(parts) == 0 {
		return "less than a minute"
	}
	return strings.Join(parts, ", ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
