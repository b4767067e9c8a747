// ABOUTME: Manifest-only kinds: reply answers with fixed text, lookup answers later.
// ABOUTME: lookup acknowledges at once and publishes its result as an async plugin event.

package builtins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/familiar/internal/plugins"
)

func replyKind(spec plugins.Spec) (*plugins.Descriptor, error) {
	text := spec.Setting("text")
	if text == "" {
		return nil, errors.New("settings.text is required")
	}
	return &plugins.Descriptor{
		Description: "Canned reply",
		Usage:       spec.Name,
		Handler: func(ctx context.Context, call *plugins.Call) (string, error) {
			return expand(text, call), nil
		},
	}, nil
}

// lookupKind settings:
//
//	text   result template, required
//	ack    immediate reply, default "Looking that up..."
//	delay  how long the lookup takes, a Go duration
func lookupKind(spec plugins.Spec) (*plugins.Descriptor, error) {
	text := spec.Setting("text")
	if text == "" {
		return nil, errors.New("settings.text is required")
	}
	ack := spec.Setting("ack")
	if ack == "" {
		ack = "Looking that up..."
	}
	var delay time.Duration
	if raw := spec.Setting("delay"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("settings.delay: %w", err)
		}
		delay = d
	}

	return &plugins.Descriptor{
		Description: "Looks something up in the background",
		Usage:       spec.Name + " <query>",
		Handler: func(ctx context.Context, call *plugins.Call) (string, error) {
			result := expand(text, call)
			call.Async(func(ctx context.Context) (string, error) {
				if delay > 0 {
					t := time.NewTimer(delay)
					defer t.Stop()
					select {
					case <-ctx.Done():
						return "", ctx.Err()
					case <-t.C:
					}
				}
				return result, nil
			})
			return ack, nil
		},
	}, nil
}

// expand substitutes {args} and {command} in a template.
func expand(tmpl string, call *plugins.Call) string {
	return strings.NewReplacer(
		"{args}", call.Rest(0),
		"{command}", call.Text,
	).Replace(tmpl)
}
