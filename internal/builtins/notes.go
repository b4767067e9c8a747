// ABOUTME: The note plugin: titled notes with categories, keyword search and numbered delete.
// ABOUTME: Numbers in replies are positions in the full list, oldest first.

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

var noteAddRe = regexp.MustCompile(`(?i)^(.*?)(?:\s+title:([\w\s]+?))?(?:\s+category:([\w\s]+))?$`)

const noteUsage = "note add <text> [title:<title>] [category:<category>] | note list [all|category:<category>] | " +
	"note search <keyword> | note delete <n> | note clear [all|category:<category>]"

const noteCreatedLayout = "01/02/2006 03:04 PM"

func noteKind(deps Deps, zone *Zone) plugins.Factory {
	return func(spec plugins.Spec) (*plugins.Descriptor, error) {
		if err := requireStore(deps); err != nil {
			return nil, err
		}
		n := &notes{deps: deps, zone: zone}
		return &plugins.Descriptor{
			Description: "Keep notes with titles and categories",
			Usage:       noteUsage,
			Handler:     n.handle,
		}, nil
	}
}

type notes struct {
	deps Deps
	zone *Zone
}

func (n *notes) handle(ctx context.Context, call *plugins.Call) (string, error) {
	switch strings.ToLower(call.Arg(0)) {
	case "add":
		return n.add(ctx, call.Rest(1))
	case "list":
		return n.list(ctx, call.Rest(1))
	case "search":
		return n.search(ctx, call.Rest(1))
	case "delete":
		return n.delete(ctx, call.Arg(1))
	case "clear":
		return n.clear(ctx, call.Rest(1))
	}
	return "Usage: " + noteUsage, nil
}

func (n *notes) add(ctx context.Context, text string) (string, error) {
	m := noteAddRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "Please provide note content.", nil
	}
	note := &store.Note{
		Text:      m[1],
		Title:     m[2],
		Category:  m[3],
		CreatedAt: n.deps.now(),
	}
	if err := n.deps.Store.CreateNote(ctx, note); err != nil {
		return "", err
	}
	return fmt.Sprintf("🗒️ Note saved: %q (Category: %s)", note.Title, note.Category), nil
}

// categoryArg parses "", "all" or "category:<name>". ok is false for
// anything else.
func categoryArg(which string) (category string, ok bool) {
	which = strings.TrimSpace(which)
	switch lower := strings.ToLower(which); {
	case lower == "" || lower == "all":
		return "", true
	case strings.HasPrefix(lower, "category:"):
		category = strings.TrimSpace(which[len("category:"):])
		return category, category != ""
	}
	return "", false
}

func (n *notes) list(ctx context.Context, which string) (string, error) {
	category, ok := categoryArg(which)
	if !ok {
		return "Usage: note list [all|category:<category>]", nil
	}

	all, err := n.deps.Store.ListNotes(ctx, store.NoteFilter{})
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "You don't have any notes saved.", nil
	}

	label := "all"
	if category != "" {
		label = "category " + category
	}
	lines := []string{fmt.Sprintf("Your Notes (%s):", label)}
	loc := n.zone.Location(ctx)
	for i, note := range all {
		if category != "" && !strings.EqualFold(note.Category, category) {
			continue
		}
		lines = append(lines, formatNote(i+1, note, loc))
	}
	if len(lines) == 1 {
		return fmt.Sprintf("No notes found for category: %s.", category), nil
	}
	return strings.Join(lines, "\n"), nil
}

func (n *notes) search(ctx context.Context, keyword string) (string, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return "Please provide a search keyword.", nil
	}

	all, err := n.deps.Store.ListNotes(ctx, store.NoteFilter{})
	if err != nil {
		return "", err
	}
	matches, err := n.deps.Store.ListNotes(ctx, store.NoteFilter{Search: keyword})
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No notes found containing '%s'.", keyword), nil
	}

	position := make(map[int64]int, len(all))
	for i, note := range all {
		position[note.ID] = i + 1
	}
	lines := []string{fmt.Sprintf("Notes containing '%s':", keyword)}
	loc := n.zone.Location(ctx)
	for _, note := range matches {
		lines = append(lines, formatNote(position[note.ID], note, loc))
	}
	return strings.Join(lines, "\n"), nil
}

func (n *notes) delete(ctx context.Context, arg string) (string, error) {
	num, err := strconv.Atoi(arg)
	if err != nil {
		return "Please provide a valid number.", nil
	}
	all, err := n.deps.Store.ListNotes(ctx, store.NoteFilter{})
	if err != nil {
		return "", err
	}
	if num < 1 || num > len(all) {
		return "Invalid note number.", nil
	}
	note := all[num-1]
	if err := n.deps.Store.DeleteNote(ctx, note.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	return fmt.Sprintf("🗑️ Deleted note: %q", note.Title), nil
}

func (n *notes) clear(ctx context.Context, which string) (string, error) {
	category, ok := categoryArg(which)
	if !ok {
		return "Usage: note clear [all|category:<category>]", nil
	}
	if _, err := n.deps.Store.ClearNotes(ctx, category); err != nil {
		return "", err
	}
	if category != "" {
		return fmt.Sprintf("🗑️ Cleared all notes in category: %s!", category), nil
	}
	return "🗑️ Cleared all notes!", nil
}

func formatNote(num int, note *store.Note, loc *time.Location) string {
	return fmt.Sprintf("%d. %s (Category: %s, Created: %s)\n   %s",
		num, note.Title, note.Category, note.CreatedAt.In(loc).Format(noteCreatedLayout), note.Text)
}
