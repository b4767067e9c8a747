// ABOUTME: Plugin discovery from built-in specs and manifest files in the plugin directory.
// ABOUTME: Manifests (YAML or TOML) name a catalog kind whose factory builds the handler.

package plugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// SourceBuiltin marks descriptors that ship with the binary.
const SourceBuiltin = "builtin"

// Spec describes one plugin instance, either built in or read from a manifest.
type Spec struct {
	Name        string         `yaml:"name" toml:"name"`
	Kind        string         `yaml:"kind" toml:"kind"`
	Description string         `yaml:"description" toml:"description"`
	Usage       string         `yaml:"usage" toml:"usage"`
	Patterns    []string       `yaml:"patterns" toml:"patterns"`
	Enabled     *bool          `yaml:"enabled" toml:"enabled"`
	Settings    map[string]any `yaml:"settings" toml:"settings"`

	// Path is the manifest file, empty for built-in specs.
	Path string `yaml:"-" toml:"-"`
}

// IsEnabled reports whether the spec should be loaded. Specs are enabled
// unless they say otherwise.
func (s Spec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Setting returns a setting rendered as a string, or "".
func (s Spec) Setting(key string) string {
	v, ok := s.Settings[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Factory builds a descriptor for a spec of its kind. It supplies the
// handler and default patterns; Build applies the spec's overrides.
type Factory func(spec Spec) (*Descriptor, error)

// Catalog maps plugin kinds to factories.
type Catalog struct {
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Add registers a factory for kind, replacing any previous one.
func (c *Catalog) Add(kind string, f Factory) {
	c.factories[kind] = f
}

// Kinds lists the known kinds in lexical order.
func (c *Catalog) Kinds() []string {
	kinds := make([]string, 0, len(c.factories))
	for k := range c.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build creates the descriptor for a spec.
func (c *Catalog) Build(spec Spec) (*Descriptor, error) {
	if spec.Name == "" {
		return nil, errors.New("name is required")
	}
	factory, ok := c.factories[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown plugin kind %q", spec.Kind)
	}

	d, err := factory(spec)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("kind %q built no plugin", spec.Kind)
	}

	d.Name = spec.Name
	d.Kind = spec.Kind
	d.Source = SourceBuiltin
	if spec.Path != "" {
		d.Source = spec.Path
	}
	if spec.Description != "" {
		d.Description = spec.Description
	}
	if spec.Usage != "" {
		d.Usage = spec.Usage
	}
	if len(spec.Patterns) > 0 {
		patterns, err := ParsePatterns(spec.Patterns)
		if err != nil {
			return nil, err
		}
		d.Patterns = patterns
	}
	if len(d.Patterns) == 0 {
		d.Patterns = []Pattern{Prefix(spec.Name)}
	}
	return d, nil
}

// Discovery is the plugin Source used by the assistant: built-in specs plus
// every manifest in Dir, ordered lexically by plugin name.
type Discovery struct {
	Dir      string
	Catalog  *Catalog
	Builtins []Spec
	Disabled []string
	Logger   *slog.Logger
}

// Ensure Discovery implements Source.
var _ Source = (*Discovery)(nil)

// manifestExts are the manifest file extensions, matched case-insensitively.
var manifestExts = []string{".yaml", ".yml", ".toml"}

// Load scans the built-in specs and manifest directory. A missing directory
// is not an error.
func (d *Discovery) Load(ctx context.Context) ([]*Descriptor, []error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "discovery")

	var errs []error
	specs := append([]Spec(nil), d.Builtins...)

	manifests, err := d.manifestPaths()
	if err != nil {
		errs = append(errs, &PluginLoadError{Plugin: filepath.Base(d.Dir), Path: d.Dir, Err: err})
	}
	for _, path := range manifests {
		if ctx.Err() != nil {
			return nil, append(errs, ctx.Err())
		}
		spec, err := ReadManifest(path)
		if err != nil {
			errs = append(errs, &PluginLoadError{Plugin: manifestName(path), Path: path, Err: err})
			continue
		}
		specs = append(specs, spec)
	}

	var descs []*Descriptor
	for _, spec := range specs {
		if !spec.IsEnabled() || slices.Contains(d.Disabled, spec.Name) {
			logger.Debug("plugin disabled", "plugin", spec.Name)
			continue
		}
		desc, err := d.Catalog.Build(spec)
		if err != nil {
			errs = append(errs, &PluginLoadError{Plugin: spec.Name, Path: spec.Path, Err: err})
			continue
		}
		descs = append(descs, desc)
	}

	sort.SliceStable(descs, func(i, j int) bool {
		return descs[i].Name < descs[j].Name
	})

	logger.Debug("discovery complete", "plugins", len(descs), "errors", len(errs), "dir", d.Dir)
	return descs, errs
}

func (d *Discovery) manifestPaths() ([]string, error) {
	if d.Dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(d.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading plugin directory: %w", err)
	}

	// os.ReadDir returns entries sorted by filename.
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsManifest(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(d.Dir, e.Name()))
	}
	return paths, nil
}

// IsManifest reports whether a file name looks like a plugin manifest.
func IsManifest(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	return slices.Contains(manifestExts, strings.ToLower(filepath.Ext(name)))
}

func manifestName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadManifest parses a YAML or TOML manifest. A manifest without a name
// takes its file name.
func ReadManifest(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("reading manifest: %w", err)
	}

	var spec Spec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &spec); err != nil {
			return Spec{}, fmt.Errorf("parsing TOML manifest: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return Spec{}, fmt.Errorf("parsing YAML manifest: %w", err)
		}
	}

	if spec.Name == "" {
		spec.Name = manifestName(path)
	}
	if spec.Kind == "" {
		return Spec{}, errors.New("manifest must name a kind")
	}
	spec.Path = path
	return spec, nil
}
