// ABOUTME: Date and time plugins: time, date, timeuntil and settimezone.
// ABOUTME: The user's time zone is remembered as the "timezone" fact.

package builtins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/2389/familiar/internal/plugins"
	"github.com/2389/familiar/internal/store"
)

// TimezoneFact is the fact key holding the user's time zone.
const TimezoneFact = "timezone"

const (
	clockLayout    = "3:04 PM"
	dateLayout     = "Monday, January 2, 2006"
	dateTimeLayout = "3:04 PM on Monday, January 2, 2006"
	shortDate      = "01/02/2006"
)

// Zone resolves the user's time zone.
type Zone struct {
	facts    store.FactStore
	fallback *time.Location
}

// Location returns the stored zone, or the fallback when none is set or the
// store cannot be read.
func (z *Zone) Location(ctx context.Context) *time.Location {
	if z.facts != nil {
		fact, err := z.facts.GetFact(ctx, TimezoneFact)
		if err == nil {
			if loc, err := time.LoadLocation(fact.Value); err == nil {
				return loc
			}
		}
	}
	if z.fallback == nil {
		return time.UTC
	}
	return z.fallback
}

func invalidZone(name string) string {
	return fmt.Sprintf("Invalid timezone: %s. Try 'America/New_York' or 'Europe/London'.", name)
}

// zoneArg reads an optional "in <zone>" from the call arguments starting at i.
func zoneArg(ctx context.Context, call *plugins.Call, i int, zone *Zone) (*time.Location, string, error) {
	if strings.EqualFold(call.Arg(i), "in") && call.Arg(i+1) != "" {
		name := call.Rest(i + 1)
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, name, err
		}
		return loc, name, nil
	}
	loc := zone.Location(ctx)
	return loc, loc.String(), nil
}

func timeKind(deps Deps, zone *Zone) plugins.Factory {
	return func(spec plugins.Spec) (*plugins.Descriptor, error) {
		return &plugins.Descriptor{
			Description: "Tell the current time",
			Usage:       "time [in <zone>]",
			Patterns:    []plugins.Pattern{plugins.Prefix(spec.Name), plugins.MustRegexp(`\bwhat time is it\b`)},
			Handler: func(ctx context.Context, call *plugins.Call) (string, error) {
				loc, name, err := zoneArg(ctx, call, 0, zone)
				if err != nil {
					return invalidZone(name), nil
				}
				return fmt.Sprintf("The current time in %s is %s.", name, deps.now().In(loc).Format(clockLayout)), nil
			},
		}, nil
	}
}

func dateKind(deps Deps, zone *Zone) plugins.Factory {
	return func(spec plugins.Spec) (*plugins.Descriptor, error) {
		return &plugins.Descriptor{
			Description: "Tell today's date",
			Usage:       "date [in <zone>]",
			Patterns:    []plugins.Pattern{plugins.Prefix(spec.Name), plugins.MustRegexp(`\bwhat is the date\b`)},
			Handler: func(ctx context.Context, call *plugins.Call) (string, error) {
				loc, name, err := zoneArg(ctx, call, 0, zone)
				if err != nil {
					return invalidZone(name), nil
				}
				return fmt.Sprintf("Today's date in %s is %s.", name, deps.now().In(loc).Format(dateLayout)), nil
			},
		}, nil
	}
}

func timeUntilKind(deps Deps, zone *Zone) plugins.Factory {
	return func(spec plugins.Spec) (*plugins.Descriptor, error) {
		return &plugins.Descriptor{
			Description: "Count down to a date",
			Usage:       "timeuntil <when>",
			Handler: func(ctx context.Context, call *plugins.Call) (string, error) {
				when := call.Rest(0)
				if when == "" {
					return "Usage: timeuntil <when>, for example 'timeuntil in 2 days' or 'timeuntil 12/31/2026'.", nil
				}
				now := deps.now()
				target, err := ParseWhen(when, now, zone.Location(ctx))
				if err != nil {
					return fmt.Sprintf("Invalid date format: %s. Try 'in 2 days', 'next week', or 'MM/DD/YYYY'.", when), nil
				}
				if target.Before(now) {
					return fmt.Sprintf("The date %s is in the past.", when), nil
				}
				return fmt.Sprintf("Time until %s: %s", when, humanDuration(target.Sub(now))), nil
			},
		}, nil
	}
}

func setTimezoneKind(deps Deps) plugins.Factory {
	return func(spec plugins.Spec) (*plugins.Descriptor, error) {
		return &plugins.Descriptor{
			Description: "Set your preferred time zone",
			Usage:       "settimezone <zone>",
			Handler: func(ctx context.Context, call *plugins.Call) (string, error) {
				name := call.Rest(0)
				if name == "" {
					return "Usage: settimezone <zone>, for example 'settimezone Asia/Tokyo'.", nil
				}
				loc, err := time.LoadLocation(name)
				if err != nil || name == "Local" {
					return invalidZone(name), nil
				}
				if deps.Store == nil {
					return "", errors.New("no store configured")
				}
				if err := deps.Store.SetFact(ctx, TimezoneFact, loc.String()); err != nil {
					return "", err
				}
				return fmt.Sprintf("Timezone set to %s.", loc.String()), nil
			},
		}, nil
	}
}
