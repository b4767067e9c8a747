// Package config handles configuration loading for familiar.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// Every field has a default, so an absent file yields a working assistant.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the --config flag
//  2. Path from FAMILIAR_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/familiar/config.yaml
//  4. ~/.config/familiar/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${FAMILIAR_DATA}/familiar.db"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	scheduler:
//	  poll_interval: "30s"
//	router:
//	  handler_timeout: "10s"
//
// # Configuration Sections
//
//	assistant:
//	  name: "Familiar"
//	  timezone: "Europe/London"
//
//	database:
//	  path: "familiar.db"
//
//	plugins:
//	  dir: "plugins"        # *.yaml / *.toml manifests
//	  watch: true           # reload when the directory changes
//	  disabled: ["note"]
//
//	router:
//	  handler_timeout: "10s"
//	  async_timeout: "1m"
//	  command_prefix: "!"
//
//	scheduler:
//	  poll_interval: "30s"
//	  degraded_after: 3
//
//	bridge:
//	  inbox_size: 64
//
//	http:
//	  addr: "127.0.0.1:5001"
//
//	webhook:
//	  enabled: true
//	  path: "/webhook"
//	  dedupe_ttl: "5m"
//
//	recurring:
//	  - name: standup
//	    schedule: "0 9 * * 1-5"
//	    payload: "Stand-up in 15 minutes"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	  file: ""        # empty logs to stderr
package config
