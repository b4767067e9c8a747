// ABOUTME: Registers the built-in plugin kinds in a catalog and lists the built-in plugin specs.
// ABOUTME: Deps carries the store, registry view, clock and default time zone handlers share.

package builtins

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/familiar/internal/plugins"
	"github.com/2389/familiar/internal/store"
)

// Registry is the view of the plugin registry the core plugins need.
type Registry interface {
	List() []*plugins.Descriptor
	Get(name string) (*plugins.Descriptor, bool)
	Reload(ctx context.Context) (*plugins.LoadReport, error)
}

// Deps are shared by every built-in handler.
type Deps struct {
	Store    store.Store
	Registry Registry
	// Location is the time zone used until the user sets one.
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Install adds every built-in kind to the catalog.
func Install(c *plugins.Catalog, deps Deps) {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	zone := &Zone{facts: deps.Store, fallback: deps.Location}

	c.Add("help", helpKind(deps))
	c.Add("plugins", pluginsKind(deps))
	c.Add("reload", reloadKind(deps))
	c.Add("remind", remindKind(deps, zone))
	c.Add("schedule", scheduleKind(deps, zone))
	c.Add("todo", todoKind(deps, zone))
	c.Add("note", noteKind(deps, zone))
	c.Add("facts", factsKind(deps))
	c.Add("time", timeKind(deps, zone))
	c.Add("date", dateKind(deps, zone))
	c.Add("timeuntil", timeUntilKind(deps, zone))
	c.Add("settimezone", setTimezoneKind(deps))
	c.Add("reply", replyKind)
	c.Add("lookup", lookupKind)
}

// Specs lists the plugins that are always present. Each uses the kind of
// the same name.
func Specs() []plugins.Spec {
	names := []string{
		"help", "plugins", "reload",
		"remind", "schedule", "todo", "note", "facts",
		"time", "date", "timeuntil", "settimezone",
	}
	specs := make([]plugins.Spec, len(names))
	for i, name := range names {
		specs[i] = plugins.Spec{Name: name, Kind: name}
	}
	return specs
}
