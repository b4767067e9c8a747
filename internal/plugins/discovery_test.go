// ABOUTME: Tests for plugin discovery, manifests and patterns
// ABOUTME: Covers YAML/TOML manifests, ordering, disabled plugins and load errors

package plugins

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	c := NewCatalog()
	c.Add("reply", func(spec Spec) (*Descriptor, error) {
		text := spec.Setting("text")
		if text == "" {
			return nil, errors.New("settings.text is required")
		}
		return &Descriptor{
			Description: "canned reply",
			Handler:     echoHandler(text),
		}, nil
	})
	c.Add("core", func(spec Spec) (*Descriptor, error) {
		return &Descriptor{
			Patterns: []Pattern{Prefix(spec.Name)},
			Handler:  echoHandler(spec.Name),
		}, nil
	})
	return c
}

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadManifest_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "greet.yaml", `
name: greet
kind: reply
description: Says hello
patterns: ["hello", "re:^(hi|hey)\\b"]
settings:
  text: "Hello there!"
`)

	spec, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "greet", spec.Name)
	assert.Equal(t, "reply", spec.Kind)
	assert.Equal(t, "Says hello", spec.Description)
	assert.Equal(t, []string{"hello", `re:^(hi|hey)\b`}, spec.Patterns)
	assert.Equal(t, "Hello there!", spec.Setting("text"))
	assert.Equal(t, path, spec.Path)
	assert.True(t, spec.IsEnabled())
}

func TestReadManifest_TOML(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "joke.toml", `
kind = "reply"
patterns = ["joke"]
enabled = false

[settings]
text = "Why did the gopher cross the road?"
`)

	spec, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "joke", spec.Name, "name defaults to the file name")
	assert.Equal(t, "reply", spec.Kind)
	assert.False(t, spec.IsEnabled())
	assert.Equal(t, "Why did the gopher cross the road?", spec.Setting("text"))
}

func TestReadManifest_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadManifest(writeManifest(t, dir, "nokind.yaml", "name: x\n"))
	assert.ErrorContains(t, err, "kind")

	_, err = ReadManifest(writeManifest(t, dir, "bad.yaml", "name: [unclosed\n"))
	assert.ErrorContains(t, err, "YAML")

	_, err = ReadManifest(writeManifest(t, dir, "bad.toml", "name = \n"))
	assert.ErrorContains(t, err, "TOML")

	_, err = ReadManifest(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDiscovery_LoadOrderAndErrors(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "zebra.yaml", "kind: reply\nsettings:\n  text: zebra\n")
	writeManifest(t, dir, "apple.toml", "kind = \"reply\"\n[settings]\ntext = \"apple\"\n")
	writeManifest(t, dir, "broken.yaml", "kind: reply\n")
	writeManifest(t, dir, "unknown.yaml", "kind: teleport\n")
	writeManifest(t, dir, "badpattern.yaml", "kind: reply\npatterns: [\"re:(\"]\nsettings:\n  text: x\n")
	writeManifest(t, dir, "README.md", "not a manifest")
	writeManifest(t, dir, ".hidden.yaml", "kind: reply\nsettings:\n  text: hidden\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0755))

	d := &Discovery{
		Dir:      dir,
		Catalog:  testCatalog(),
		Builtins: []Spec{{Name: "help", Kind: "core"}, {Name: "reload", Kind: "core"}},
	}

	descs, errs := d.Load(t.Context())
	assert.Equal(t, []string{"apple", "help", "reload", "zebra"}, names(descs))

	require.Len(t, errs, 3)
	failed := map[string]bool{}
	for _, err := range errs {
		var le *PluginLoadError
		require.ErrorAs(t, err, &le)
		failed[le.Plugin] = true
		assert.NotEmpty(t, le.Path)
	}
	assert.Equal(t, map[string]bool{"broken": true, "unknown": true, "badpattern": true}, failed)

	for _, desc := range descs {
		switch desc.Name {
		case "help", "reload":
			assert.Equal(t, SourceBuiltin, desc.Source)
			assert.Equal(t, "core", desc.Kind)
		default:
			assert.Equal(t, "reply", desc.Kind)
			assert.Equal(t, filepath.Join(dir, desc.Name+filepath.Ext(desc.Source)), desc.Source)
			assert.Equal(t, []string{desc.Name}, desc.PatternStrings(), "name is the default pattern")
		}
	}
}

func TestDiscovery_Disabled(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "off.yaml", "kind: reply\nenabled: false\nsettings:\n  text: off\n")

	d := &Discovery{
		Dir:      dir,
		Catalog:  testCatalog(),
		Builtins: []Spec{{Name: "help", Kind: "core"}, {Name: "reload", Kind: "core"}},
		Disabled: []string{"reload"},
	}

	descs, errs := d.Load(t.Context())
	assert.Empty(t, errs)
	assert.Equal(t, []string{"help"}, names(descs))
}

func TestDiscovery_MissingDirectory(t *testing.T) {
	d := &Discovery{
		Dir:      filepath.Join(t.TempDir(), "nope"),
		Catalog:  testCatalog(),
		Builtins: []Spec{{Name: "help", Kind: "core"}},
	}

	descs, errs := d.Load(t.Context())
	assert.Empty(t, errs)
	assert.Equal(t, []string{"help"}, names(descs))
}

func TestDiscovery_DuplicateOfBuiltinSkippedAtLoadAbortsReload(t *testing.T) {
	dir := t.TempDir()
	d := &Discovery{
		Dir:      dir,
		Catalog:  testCatalog(),
		Builtins: []Spec{{Name: "help", Kind: "core"}},
	}
	r := NewRegistry(d, nil)

	_, err := r.Load(t.Context())
	require.NoError(t, err)

	writeManifest(t, dir, "help.yaml", "kind: reply\nsettings:\n  text: shadow\n")

	_, err = r.Reload(t.Context())
	var dup *DuplicateNameError
	require.ErrorAs(t, err, &dup)

	reply, _ := r.Resolve("help")
	require.NotNil(t, reply)
	assert.Equal(t, SourceBuiltin, reply.Source)

	// A fresh startup keeps the built-in and skips the shadowing manifest.
	fresh := NewRegistry(d, nil)
	report, err := fresh.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Skipped, 1)
	got, _ := fresh.Get("help")
	assert.Equal(t, SourceBuiltin, got.Source)
}

func TestCatalog_Build(t *testing.T) {
	c := testCatalog()
	assert.Equal(t, []string{"core", "reply"}, c.Kinds())

	_, err := c.Build(Spec{Name: "x", Kind: "nope"})
	assert.ErrorContains(t, err, "unknown plugin kind")

	_, err = c.Build(Spec{Kind: "core"})
	assert.ErrorContains(t, err, "name is required")

	d, err := c.Build(Spec{Name: "greet", Kind: "reply", Usage: "greet", Patterns: []string{"hi"}, Settings: map[string]any{"text": "hey"}})
	require.NoError(t, err)
	assert.Equal(t, "greet", d.Usage)
	assert.Equal(t, []string{"hi"}, d.PatternStrings())
	assert.Equal(t, "canned reply", d.Description, "factory description kept when spec has none")
}

func TestPatterns(t *testing.T) {
	p := Prefix("  What   Time ")
	assert.Equal(t, "what time", p.String())
	assert.True(t, p.Match("what time"))
	assert.True(t, p.Match("WHAT  time is it"))
	assert.False(t, p.Match("what timezone"))
	assert.False(t, Prefix("").Match(""))

	re, err := ParsePattern(`re:^remind( me)? in \d+`)
	require.NoError(t, err)
	assert.True(t, re.Match("Remind me in 5 minutes"))
	assert.True(t, re.Match("remind in 5 minutes"))
	assert.False(t, re.Match("please remind me in 5"))
	assert.Equal(t, `re:^remind( me)? in \d+`, re.String())

	_, err = ParsePattern("re:[")
	assert.Error(t, err)
	_, err = ParsePattern("  ")
	assert.Error(t, err)

	assert.Panics(t, func() { MustRegexp("(") })
}

func TestIsManifest(t *testing.T) {
	assert.True(t, IsManifest("a.yaml"))
	assert.True(t, IsManifest("/x/b.YML"))
	assert.True(t, IsManifest("c.toml"))
	assert.False(t, IsManifest(".d.yaml"))
	assert.False(t, IsManifest("e.py"))
}
