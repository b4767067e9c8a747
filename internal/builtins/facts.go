// ABOUTME: The facts plugin: short key/value facts about the user such as a name or time zone.
// ABOUTME: Answers setname, remember, facts and forget; keys are stored lower case.

package builtins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/familiar/internal/plugins"
	"github.com/2389/familiar/internal/store"
)

const factsUsage = "setname <name> | remember <key> <value> | facts | forget <key>"

func factsKind(deps Deps) plugins.Factory {
	return func(spec plugins.Spec) (*plugins.Descriptor, error) {
		if err := requireStore(deps); err != nil {
			return nil, err
		}
		f := &facts{deps: deps}
		return &plugins.Descriptor{
			Description: "Remember facts about you",
			Usage:       factsUsage,
			Patterns: []plugins.Pattern{
				plugins.Prefix(spec.Name),
				plugins.Prefix("setname"),
				plugins.Prefix("remember"),
				plugins.Prefix("forget"),
			},
			Handler: f.handle,
		}, nil
	}
}

type facts struct {
	deps Deps
}

func (f *facts) handle(ctx context.Context, call *plugins.Call) (string, error) {
	switch call.Name {
	case "setname":
		return f.setName(ctx, call.Rest(0))
	case "remember":
		return f.remember(ctx, call.Arg(0), call.Rest(1))
	case "forget":
		return f.forget(ctx, call.Arg(0))
	}
	return f.list(ctx)
}

func (f *facts) setName(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "Please provide a name (e.g., setname Alice).", nil
	}
	if err := f.deps.Store.SetFact(ctx, "name", name); err != nil {
		return "", err
	}
	return "Name set to " + name, nil
}

func (f *facts) remember(ctx context.Context, key, value string) (string, error) {
	if key == "" || value == "" {
		return "Usage: remember <key> <value>", nil
	}
	key = strings.ToLower(key)
	if err := f.deps.Store.SetFact(ctx, key, value); err != nil {
		return "", err
	}
	return fmt.Sprintf("🗒️ Noted: %s = %s", key, value), nil
}

func (f *facts) list(ctx context.Context) (string, error) {
	all, err := f.deps.Store.ListFacts(ctx)
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "I don't know anything about you yet! Tell me something, like your name.", nil
	}
	lines := make([]string, 0, len(all))
	for _, fact := range all {
		lines = append(lines, fmt.Sprintf("Your %s is %s.", fact.Key, fact.Value))
	}
	return strings.Join(lines, "\n"), nil
}

func (f *facts) forget(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "Please specify a fact to forget (e.g., forget name).", nil
	}
	key = strings.ToLower(key)
	err := f.deps.Store.DeleteFact(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("I don't have a %s for you.", key), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Okay, I forgot your %s!", key), nil
}
