// ABOUTME: Core plugins that describe and manage the plugin set: help, plugins and reload.
// ABOUTME: They read the live registry, so manifests added at runtime show up immediately.

package builtins

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/familiar/internal/plugins"
)

func helpKind(deps Deps) plugins.Factory {
	return func(spec plugins.Spec) (*plugins.Descriptor, error) {
		return &plugins.Descriptor{
			Description: "List what I can do",
			Usage:       "help [plugin]",
			Handler: func(ctx context.Context, call *plugins.Call) (string, error) {
				if deps.Registry == nil {
					return "No plugins are loaded.", nil
				}
				if name := strings.ToLower(call.Arg(0)); name != "" {
					d, ok := deps.Registry.Get(name)
					if !ok {
						return fmt.Sprintf("No plugin named '%s'. Type 'help' for the list.", name), nil
					}
					return describe(d), nil
				}

				lines := []string{"Available commands:"}
				for _, d := range deps.Registry.List() {
					line := "  " + d.Name
					if d.Description != "" {
						line += ": " + d.Description
					}
					lines = append(lines, line)
				}
				lines = append(lines, "Type 'help <plugin>' for details.")
				return strings.Join(lines, "\n"), nil
			},
		}, nil
	}
}

func describe(d *plugins.Descriptor) string {
	var b strings.Builder
	b.WriteString(d.Name)
	if d.Description != "" {
		b.WriteString(": " + d.Description)
	}
	if d.Usage != "" {
		b.WriteString("\nUsage: ")
		b.WriteString(strings.ReplaceAll(d.Usage, " | ", "\n       "))
	}
	fmt.Fprintf(&b, "\nPatterns: %s", strings.Join(d.PatternStrings(), ", "))
	return b.String()
}

func pluginsKind(deps Deps) plugins.Factory {
	return func(spec plugins.Spec) (*plugins.Descriptor, error) {
		return &plugins.Descriptor{
			Description: "Show loaded plugins and where they came from",
			Usage:       "plugins",
			Handler: func(ctx context.Context, call *plugins.Call) (string, error) {
				if deps.Registry == nil {
					return "No plugins are loaded.", nil
				}
				list := deps.Registry.List()
				lines := []string{fmt.Sprintf("Loaded plugins (%d):", len(list))}
				for _, d := range list {
					lines = append(lines, fmt.Sprintf("  %s [%s] %s", d.Name, d.Kind, d.Source))
				}
				return strings.Join(lines, "\n"), nil
			},
		}, nil
	}
}

func reloadKind(deps Deps) plugins.Factory {
	return func(spec plugins.Spec) (*plugins.Descriptor, error) {
		return &plugins.Descriptor{
			Description: "Reload plugins from the plugin directory",
			Usage:       "reload",
			Handler: func(ctx context.Context, call *plugins.Call) (string, error) {
				if deps.Registry == nil {
					return "Reloading is not available.", nil
				}
				report, err := deps.Registry.Reload(ctx)
				if err != nil {
					deps.logger().Warn("reload requested by user failed", "error", err)
					return fmt.Sprintf("Reload failed, keeping the current plugins: %v", err), nil
				}
				return fmt.Sprintf("🔄 Reloaded %s.", plural(len(report.Loaded), "plugin")), nil
			},
		}, nil
	}
}
