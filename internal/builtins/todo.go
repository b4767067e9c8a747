// ABOUTME: The todo plugin: tasks with priorities, categories and due dates.
// ABOUTME: A due date books a "To-Do Reminder" that is cancelled when the task is done or removed.

package builtins

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/2389/familiar/internal/plugins"
	"github.com/2389/familiar/internal/store"
)

var todoAddRe = regexp.MustCompile(`(?i)^(.*?)(?:\s+priority:(high|medium|low))?(?:\s+due:(.+?))?(?:\s+category:([\w\s]+))?$`)

const todoUsage = "todo add <task> [priority:high|medium|low] [due:<when>] [category:<name>] | " +
	"todo list [all|pending|overdue|category:<name>] | todo done <n> | todo remove <n> | " +
	"todo clear [all|completed|category:<name>]"

// DefaultCategory is used for tasks added without a category.
const DefaultCategory = "General"

func todoKind(deps Deps, zone *Zone) plugins.Factory {
	return func(spec plugins.Spec) (*plugins.Descriptor, error) {
		if err := requireStore(deps); err != nil {
			return nil, err
		}
		category := spec.Setting("category")
		if category == "" {
			category = DefaultCategory
		}
		t := &todos{deps: deps, zone: zone, source: spec.Name, category: category}
		return &plugins.Descriptor{
			Description: "Manage your to-do list",
			Usage:       todoUsage,
			Handler:     t.handle,
		}, nil
	}
}

type todos struct {
	deps     Deps
	zone     *Zone
	source   string
	category string
}

func (t *todos) handle(ctx context.Context, call *plugins.Call) (string, error) {
	switch strings.ToLower(call.Arg(0)) {
	case "add":
		return t.add(ctx, call.Rest(1))
	case "list":
		return t.list(ctx, call.Rest(1))
	case "done":
		return t.done(ctx, call.Arg(1))
	case "remove":
		return t.remove(ctx, call.Arg(1))
	case "clear":
		return t.clear(ctx, call.Rest(1))
	}
	return "Usage: " + todoUsage, nil
}

func (t *todos) add(ctx context.Context, text string) (string, error) {
	m := todoAddRe.FindStringSubmatch(text)
	task := ""
	if m != nil {
		task = strings.TrimSpace(m[1])
	}
	if task == "" {
		return "Please provide a task description.", nil
	}

	todo := &store.Todo{
		Description: task,
		Priority:    store.PriorityMedium,
		Category:    t.category,
	}
	if m[2] != "" {
		todo.Priority = strings.ToLower(m[2])
	}
	if c := strings.TrimSpace(m[4]); c != "" {
		todo.Category = c
	}

	loc := t.zone.Location(ctx)
	if due := strings.TrimSpace(m[3]); due != "" {
		at, err := ParseWhen(due, t.deps.now(), loc)
		if err != nil {
			return fmt.Sprintf("Sorry, I couldn't understand the due date '%s'.", due), nil
		}
		id, err := t.deps.Store.CreateReminder(ctx, at, "To-Do Reminder: "+task, t.source)
		if err != nil {
			return "", err
		}
		todo.DueAt = &at
		todo.ReminderID = &id
	}

	if err := t.deps.Store.CreateTodo(ctx, todo); err != nil {
		t.cancelReminder(ctx, todo)
		return "", err
	}

	reply := fmt.Sprintf("✅ Added: %q (Priority: %s, Category: %s", task, todo.Priority, todo.Category)
	if todo.DueAt != nil {
		reply += fmt.Sprintf(", Due: %s, Reminder set!", todo.DueAt.In(loc).Format(shortDate))
	}
	return reply + ")", nil
}

func (t *todos) list(ctx context.Context, which string) (string, error) {
	all, err := t.deps.Store.ListTodos(ctx, store.TodoFilter{})
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "Your to-do list is empty!", nil
	}

	label := strings.ToLower(strings.TrimSpace(which))
	if label == "" {
		label = "pending"
	}
	now := t.deps.now()
	var keep func(*store.Todo) bool
	switch {
	case label == "all":
		keep = func(*store.Todo) bool { return true }
	case label == "pending":
		keep = func(td *store.Todo) bool { return td.Status == store.TodoPending }
	case label == "overdue":
		keep = func(td *store.Todo) bool { return td.Overdue(now) }
	case strings.HasPrefix(label, "category:"):
		category := strings.TrimSpace(strings.TrimSpace(which)[len("category:"):])
		label = "category " + category
		keep = func(td *store.Todo) bool { return strings.EqualFold(td.Category, category) }
	default:
		return "Usage: todo list [all|pending|overdue|category:<name>]", nil
	}

	loc := t.zone.Location(ctx)
	lines := []string{fmt.Sprintf("Your To-Do List (%s):", label)}
	for _, td := range all {
		if !keep(td) {
			continue
		}
		line := fmt.Sprintf("%d. %s (Priority: %s, Category: %s", len(lines), td.Description, td.Priority, td.Category)
		if td.DueAt != nil {
			line += ", Due: " + td.DueAt.In(loc).Format(shortDate)
		}
		if td.Status == store.TodoCompleted {
			line += ", Completed"
		}
		lines = append(lines, line+")")
	}
	if len(lines) == 1 {
		return fmt.Sprintf("No tasks found for %s.", label), nil
	}
	return strings.Join(lines, "\n"), nil
}

// pick returns the n-th (1-based) todo matching filter.
func (t *todos) pick(ctx context.Context, arg string, filter store.TodoFilter) (*store.Todo, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, errBadNumber
	}
	list, err := t.deps.Store.ListTodos(ctx, filter)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(list) {
		return nil, errBadNumber
	}
	return list[n-1], nil
}

var errBadNumber = errors.New("invalid task number")

func (t *todos) done(ctx context.Context, arg string) (string, error) {
	td, err := t.pick(ctx, arg, store.TodoFilter{Status: store.TodoPending})
	if errors.Is(err, errBadNumber) {
		return "Invalid task number. Please use the number from 'todo list pending'.", nil
	}
	if err != nil {
		return "", err
	}

	now := t.deps.now()
	td.Status = store.TodoCompleted
	td.CompletedAt = &now
	if err := t.deps.Store.UpdateTodo(ctx, td); err != nil {
		return "", err
	}
	t.cancelReminder(ctx, td)
	return fmt.Sprintf("👍 Great job! Completed: %q", td.Description), nil
}

func (t *todos) remove(ctx context.Context, arg string) (string, error) {
	td, err := t.pick(ctx, arg, store.TodoFilter{})
	if errors.Is(err, errBadNumber) {
		return "Invalid task number. Please use the number from 'todo list all'.", nil
	}
	if err != nil {
		return "", err
	}
	if err := t.deps.Store.DeleteTodo(ctx, td.ID); err != nil {
		return "", err
	}
	t.cancelReminder(ctx, td)
	return fmt.Sprintf("🗑️ Removed from your list: %q", td.Description), nil
}

func (t *todos) clear(ctx context.Context, which string) (string, error) {
	which = strings.TrimSpace(which)
	var (
		filter store.TodoFilter
		reply  string
	)
	switch lower := strings.ToLower(which); {
	case lower == "" || lower == "completed":
		filter.Status = store.TodoCompleted
		reply = "🗑️ Cleared %s from your to-do list!"
	case lower == "all":
		reply = "🗑️ Cleared %s from your to-do list!"
	case strings.HasPrefix(lower, "category:"):
		filter.Category = strings.TrimSpace(which[len("category:"):])
		reply = "🗑️ Cleared %s in category: %s!"
	default:
		return "Usage: todo clear [all|completed|category:<name>]", nil
	}

	list, err := t.deps.Store.ListTodos(ctx, filter)
	if err != nil {
		return "", err
	}
	removed := 0
	for _, td := range list {
		if err := t.deps.Store.DeleteTodo(ctx, td.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
		t.cancelReminder(ctx, td)
		removed++
	}
	if filter.Category != "" {
		return fmt.Sprintf(reply, plural(removed, "task"), filter.Category), nil
	}
	return fmt.Sprintf(reply, plural(removed, "task")), nil
}

// cancelReminder withdraws a todo's pending reminder. Failures are logged;
// at worst the reminder still fires.
func (t *todos) cancelReminder(ctx context.Context, td *store.Todo) {
	if td.ReminderID == nil {
		return
	}
	if _, err := t.deps.Store.CancelReminder(ctx, *td.ReminderID); err != nil {
		t.deps.logger().Warn("cancelling todo reminder", "todo", td.ID, "reminder", *td.ReminderID, "error", err)
	}
}

