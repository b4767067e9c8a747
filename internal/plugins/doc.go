// Package plugins provides the command plugin system.
//
// # Overview
//
// Every capability of the assistant is a plugin: a named handler plus one or
// more invocation patterns. A command typed into any front end is parsed,
// matched against the registered patterns, and handed to the first plugin
// that matches.
//
// # Architecture
//
//   - Registry: the active plugin set, indexed by name and pattern
//   - Router: resolves a Command, runs the handler inside a failure boundary
//   - Discovery: builds the plugin set from built-in specs and manifests
//   - Watcher: reloads the registry when the manifest directory changes
//
// # Resolution
//
// Resolution is first-match in registration order. There is no ranking: when
// two plugins both match, the earlier one always wins. Discovery registers
// plugins in lexical order of their names.
//
// Patterns come in two forms:
//
//	todo           prefix: matches "todo" and "todo add milk", not "todos"
//	re:^what time  regular expression, case-insensitive
//
// # Manifests
//
// The plugin directory holds YAML or TOML manifests, each creating one
// plugin from a kind in the catalog:
//
//	# plugins/groceries.yaml
//	name: groceries
//	kind: todo
//	patterns: ["groceries", "re:^buy "]
//	settings:
//	  category: groceries
//
// # Reload
//
// Reload rescans the source and swaps the whole set at once. If any plugin
// fails to load, or two plugins share a name, the reload is aborted and the
// previous set stays active. The startup Load is lenient instead: broken
// plugins are skipped and logged.
//
// # Failure isolation
//
// The router runs every handler on its own goroutine with a timeout and
// panic recovery. Errors, panics and timeouts come back as *HandlerError
// together with a reply naming the plugin; the registry and other plugins
// are unaffected. Handlers may schedule follow-up work with Call.Async; its
// result is published to the notification bridge as a plugin_async_result
// event.
package plugins
