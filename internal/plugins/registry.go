// ABOUTME: Thread-safe registry of plugins indexed by name and invocation pattern.
// ABOUTME: Resolves commands first-match in registration order and swaps the whole set on reload.

package plugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/familiar/internal/metrics"
)

// ErrInvalidDescriptor indicates a descriptor without a name, patterns or handler.
var ErrInvalidDescriptor = errors.New("invalid plugin descriptor")

// ErrNoSource indicates Load or Reload was called on a registry without a source.
var ErrNoSource = errors.New("registry has no plugin source")

// DuplicateNameError is returned when a plugin name is already taken.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("plugin %q already registered", e.Name)
}

// PluginLoadError is returned when one plugin cannot be loaded.
type PluginLoadError struct {
	Plugin string
	Path   string
	Err    error
}

func (e *PluginLoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("loading plugin %q from %s: %v", e.Plugin, e.Path, e.Err)
	}
	return fmt.Sprintf("loading plugin %q: %v", e.Plugin, e.Err)
}

func (e *PluginLoadError) Unwrap() error {
	return e.Err
}

// Source discovers plugins. Descriptors are returned in registration order;
// plugins that failed to load are reported as errors alongside them.
type Source interface {
	Load(ctx context.Context) ([]*Descriptor, []error)
}

// LoadReport summarizes a Load or Reload.
type LoadReport struct {
	Loaded  []string
	Skipped []error
}

// Registry maintains the active plugin set.
type Registry struct {
	mu      sync.RWMutex
	plugins []*Descriptor
	byName  map[string]*Descriptor

	// reloadMu serializes Load and Reload so two scans never interleave.
	reloadMu sync.Mutex
	source   Source
	logger   *slog.Logger
}

// NewRegistry creates a new Registry. source may be nil when plugins are
// only added with Register.
func NewRegistry(source Source, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName: make(map[string]*Descriptor),
		source: source,
		logger: logger.With("component", "plugins"),
	}
}

func validate(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("%w: nil", ErrInvalidDescriptor)
	}
	if d.Name == "" || strings.ContainsAny(d.Name, " \t\n") {
		return fmt.Errorf("%w: bad name %q", ErrInvalidDescriptor, d.Name)
	}
	if len(d.Patterns) == 0 {
		return fmt.Errorf("%w: plugin %q has no patterns", ErrInvalidDescriptor, d.Name)
	}
	if d.Handler == nil {
		return fmt.Errorf("%w: plugin %q has no handler", ErrInvalidDescriptor, d.Name)
	}
	return nil
}

// Register appends a plugin to the active set. It resolves after every
// plugin registered before it.
func (r *Registry) Register(d *Descriptor) error {
	if err := validate(d); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.Name]; exists {
		return &DuplicateNameError{Name: d.Name}
	}
	r.plugins = append(r.plugins, d)
	r.byName[d.Name] = d
	metrics.PluginsLoaded.Set(float64(len(r.plugins)))

	r.logger.Info("=== PLUGIN REGISTERED ===",
		"plugin", d.Name,
		"kind", d.Kind,
		"patterns", d.PatternStrings(),
		"total_plugins", len(r.plugins),
	)
	return nil
}

// Load performs the startup scan. Plugins that fail to load and later
// duplicates of a name are skipped and logged; the rest become the active set.
func (r *Registry) Load(ctx context.Context) (*LoadReport, error) {
	if r.source == nil {
		return nil, ErrNoSource
	}

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	descs, loadErrs := r.source.Load(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &LoadReport{Skipped: loadErrs}
	for _, err := range loadErrs {
		r.logger.Warn("skipping plugin", "error", err)
	}

	next := make([]*Descriptor, 0, len(descs))
	seen := make(map[string]*Descriptor, len(descs))
	for _, d := range descs {
		if err := validate(d); err != nil {
			report.Skipped = append(report.Skipped, &PluginLoadError{Plugin: nameOf(d), Path: sourceOf(d), Err: err})
			r.logger.Warn("skipping plugin", "error", err)
			continue
		}
		if _, dup := seen[d.Name]; dup {
			err := &DuplicateNameError{Name: d.Name}
			report.Skipped = append(report.Skipped, err)
			r.logger.Warn("skipping plugin", "error", err, "source", d.Source)
			continue
		}
		seen[d.Name] = d
		next = append(next, d)
		report.Loaded = append(report.Loaded, d.Name)
	}

	r.swap(next, seen)
	r.logger.Info("plugins loaded", "loaded", len(report.Loaded), "skipped", len(report.Skipped))
	return report, nil
}

// Reload re-scans the source and replaces the active set in one step. Any
// load failure or duplicate name aborts the reload and the previous set
// stays in place untouched.
func (r *Registry) Reload(ctx context.Context) (*LoadReport, error) {
	if r.source == nil {
		return nil, ErrNoSource
	}

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	descs, loadErrs := r.source.Load(ctx)
	if err := ctx.Err(); err != nil {
		metrics.PluginReloads.WithLabelValues("aborted").Inc()
		return nil, err
	}
	if len(loadErrs) > 0 {
		metrics.PluginReloads.WithLabelValues("aborted").Inc()
		r.logger.Warn("reload aborted, keeping previous plugins", "errors", len(loadErrs))
		return &LoadReport{Skipped: loadErrs}, fmt.Errorf("reload aborted: %w", errors.Join(loadErrs...))
	}

	next := make([]*Descriptor, 0, len(descs))
	seen := make(map[string]*Descriptor, len(descs))
	report := &LoadReport{}
	for _, d := range descs {
		if err := validate(d); err != nil {
			metrics.PluginReloads.WithLabelValues("aborted").Inc()
			return nil, fmt.Errorf("reload aborted: %w", &PluginLoadError{Plugin: nameOf(d), Path: sourceOf(d), Err: err})
		}
		if _, dup := seen[d.Name]; dup {
			metrics.PluginReloads.WithLabelValues("aborted").Inc()
			r.logger.Warn("reload aborted, keeping previous plugins", "duplicate", d.Name)
			return nil, fmt.Errorf("reload aborted: %w", &DuplicateNameError{Name: d.Name})
		}
		seen[d.Name] = d
		next = append(next, d)
		report.Loaded = append(report.Loaded, d.Name)
	}

	r.swap(next, seen)
	metrics.PluginReloads.WithLabelValues("ok").Inc()
	r.logger.Info("=== PLUGINS RELOADED ===", "total_plugins", len(next))
	return report, nil
}

func (r *Registry) swap(next []*Descriptor, byName map[string]*Descriptor) {
	r.mu.Lock()
	r.plugins = next
	r.byName = byName
	r.mu.Unlock()
	metrics.PluginsLoaded.Set(float64(len(next)))
}

// Resolve returns the first plugin, in registration order, with a pattern
// matching the normalized command text.
func (r *Registry) Resolve(text string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.plugins {
		if d.Matches(text) {
			return d, true
		}
	}
	return nil, false
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byName[name]
	return d, ok
}

// List returns the active plugins in registration order.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Len returns the number of active plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

func nameOf(d *Descriptor) string {
	if d == nil {
		return ""
	}
	return d.Name
}

func sourceOf(d *Descriptor) string {
	if d == nil {
		return ""
	}
	return d.Source
}
