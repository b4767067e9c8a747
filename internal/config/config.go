// ABOUTME: Configuration loading and parsing for familiar
// ABOUTME: Supports YAML files with environment variable expansion, duration parsing and defaults

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete familiar configuration
type Config struct {
	Assistant AssistantConfig  `yaml:"assistant"`
	Database  DatabaseConfig   `yaml:"database"`
	Plugins   PluginsConfig    `yaml:"plugins"`
	Router    RouterConfig     `yaml:"router"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Bridge    BridgeConfig     `yaml:"bridge"`
	HTTP      HTTPConfig       `yaml:"http"`
	Webhook   WebhookConfig    `yaml:"webhook"`
	Recurring []RecurringEntry `yaml:"recurring"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// AssistantConfig holds user-facing assistant settings
type AssistantConfig struct {
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PluginsConfig controls plugin discovery
type PluginsConfig struct {
	Dir      string   `yaml:"dir"`
	Watch    bool     `yaml:"watch"`
	Disabled []string `yaml:"disabled"`
}

// RouterConfig controls command routing
type RouterConfig struct {
	HandlerTimeout time.Duration `yaml:"-"`
	AsyncTimeout   time.Duration `yaml:"-"`
	CommandPrefix  string        `yaml:"command_prefix"`

	// Raw string values for YAML unmarshaling
	HandlerTimeoutRaw string `yaml:"handler_timeout"`
	AsyncTimeoutRaw   string `yaml:"async_timeout"`
}

// SchedulerConfig controls the reminder poll loop
type SchedulerConfig struct {
	PollInterval  time.Duration `yaml:"-"`
	DegradedAfter int           `yaml:"degraded_after"`

	PollIntervalRaw string `yaml:"poll_interval"`
}

// BridgeConfig controls notification fan-out
type BridgeConfig struct {
	InboxSize int `yaml:"inbox_size"`
}

// HTTPConfig holds the address of the HTTP API used by the GUI and webhooks
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// WebhookConfig controls the webhook receiver
type WebhookConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	DedupeTTL time.Duration `yaml:"-"`

	DedupeTTLRaw string `yaml:"dedupe_ttl"`
}

// RecurringEntry is a cron-scheduled reminder
type RecurringEntry struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Payload  string `yaml:"payload"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but falls back to Default when the file
// does not exist.
func LoadOrDefault(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}
	return nil, false, err
}

// Parse parses raw YAML configuration content.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Assistant.Name == "" {
		cfg.Assistant.Name = "Familiar"
	}
	if cfg.Assistant.Timezone == "" {
		cfg.Assistant.Timezone = "UTC"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "familiar.db"
	}
	if cfg.Plugins.Dir == "" {
		cfg.Plugins.Dir = "plugins"
	}
	if cfg.Router.HandlerTimeout == 0 {
		cfg.Router.HandlerTimeout = 10 * time.Second
	}
	if cfg.Router.AsyncTimeout == 0 {
		cfg.Router.AsyncTimeout = time.Minute
	}
	if cfg.Router.CommandPrefix == "" {
		cfg.Router.CommandPrefix = "!"
	}
	if cfg.Scheduler.PollInterval == 0 {
		cfg.Scheduler.PollInterval = 30 * time.Second
	}
	if cfg.Scheduler.DegradedAfter == 0 {
		cfg.Scheduler.DegradedAfter = 3
	}
	if cfg.Bridge.InboxSize == 0 {
		cfg.Bridge.InboxSize = 64
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:5001"
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/webhook"
	}
	if cfg.Webhook.DedupeTTL == 0 {
		cfg.Webhook.DedupeTTL = 5 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks that all configuration fields are valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if _, err := time.LoadLocation(c.Assistant.Timezone); err != nil {
		return fmt.Errorf("assistant.timezone %q: %w", c.Assistant.Timezone, err)
	}

	if c.Router.HandlerTimeout < 0 {
		return fmt.Errorf("router.handler_timeout must be positive")
	}
	if c.Scheduler.PollInterval < 0 {
		return fmt.Errorf("scheduler.poll_interval must be positive")
	}
	if c.Scheduler.DegradedAfter < 1 {
		return fmt.Errorf("scheduler.degraded_after must be at least 1")
	}
	if c.Bridge.InboxSize < 1 {
		return fmt.Errorf("bridge.inbox_size must be at least 1")
	}
	if !strings.HasPrefix(c.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with /")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q: must be debug, info, warn or error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q: must be text or json", c.Logging.Format)
	}

	seen := make(map[string]bool, len(c.Recurring))
	for i, r := range c.Recurring {
		if r.Name == "" {
			return fmt.Errorf("recurring[%d].name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("recurring[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		if r.Schedule == "" {
			return fmt.Errorf("recurring %q: schedule is required", r.Name)
		}
		if r.Payload == "" {
			return fmt.Errorf("recurring %q: payload is required", r.Name)
		}
	}

	return nil
}

// Location returns the configured assistant timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Assistant.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"router.handler_timeout", cfg.Router.HandlerTimeoutRaw, &cfg.Router.HandlerTimeout},
		{"router.async_timeout", cfg.Router.AsyncTimeoutRaw, &cfg.Router.AsyncTimeout},
		{"scheduler.poll_interval", cfg.Scheduler.PollIntervalRaw, &cfg.Scheduler.PollInterval},
		{"webhook.dedupe_ttl", cfg.Webhook.DedupeTTLRaw, &cfg.Webhook.DedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
