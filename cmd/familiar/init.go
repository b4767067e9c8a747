// ABOUTME: Interactive "init" subcommand that writes a starter config file
// ABOUTME: Prompts with defaults, writes YAML, then re-loads it to validate

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/familiar/internal/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), getConfigPath(opts.configPath))
		},
	}
}

func runInit(in io.Reader, out io.Writer, defaultConfigPath string) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "familiar configuration setup")
	fmt.Fprintln(out, "============================")
	fmt.Fprintln(out)

	defaultDataPath := getDataPath()

	outputFile := prompt(reader, out, "Config file path", defaultConfigPath)
	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	fmt.Fprintln(out, "\n--- Assistant ---")
	name := prompt(reader, out, "Assistant name", "Familiar")
	timezone := prompt(reader, out, "Time zone (IANA name)", "UTC")

	fmt.Fprintln(out, "\n--- Storage ---")
	dbPath := prompt(reader, out, "SQLite database path", filepath.Join(defaultDataPath, "familiar.db"))
	pluginsDir := prompt(reader, out, "Plugin directory", filepath.Join(filepath.Dir(outputFile), "plugins"))
	watch := isYes(prompt(reader, out, "Reload plugins when the directory changes?", "yes"))

	fmt.Fprintln(out, "\n--- HTTP ---")
	httpAddr := prompt(reader, out, "HTTP address (GUI API and webhooks)", "127.0.0.1:5001")
	webhook := isYes(prompt(reader, out, "Enable the webhook receiver?", "no"))

	fmt.Fprintln(out, "\n--- Logging ---")
	logLevel := prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, out, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# familiar configuration\n")
	cfg.WriteString("# Generated by familiar init\n\n")

	cfg.WriteString("assistant:\n")
	cfg.WriteString(fmt.Sprintf("  name: %q\n", name))
	cfg.WriteString(fmt.Sprintf("  timezone: %q\n", timezone))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("plugins:\n")
	cfg.WriteString(fmt.Sprintf("  dir: %q\n", pluginsDir))
	cfg.WriteString(fmt.Sprintf("  watch: %t\n", watch))
	cfg.WriteString("\n")

	cfg.WriteString("router:\n")
	cfg.WriteString("  command_prefix: \"!\"\n")
	cfg.WriteString("  handler_timeout: \"10s\"\n")
	cfg.WriteString("  async_timeout: \"1m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("scheduler:\n")
	cfg.WriteString("  poll_interval: \"30s\"\n")
	cfg.WriteString("  degraded_after: 3\n")
	cfg.WriteString("\n")

	cfg.WriteString("http:\n")
	cfg.WriteString(fmt.Sprintf("  addr: %q\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("webhook:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", webhook))
	cfg.WriteString("  path: \"/webhook\"\n")
	cfg.WriteString("  dedupe_ttl: \"5m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("# recurring:\n")
	cfg.WriteString("#   - name: standup\n")
	cfg.WriteString("#     schedule: \"0 9 * * 1-5\"\n")
	cfg.WriteString("#     payload: \"Daily standup\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	if _, err := config.Parse([]byte(cfg.String())); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.MkdirAll(pluginsDir, 0755); err != nil {
		return fmt.Errorf("creating plugin directory: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintf(out, "Data directory: %s\n", dataDir)
	fmt.Fprintln(out, "\nTo start the assistant:")
	fmt.Fprintf(out, "  familiar --config %s\n", outputFile)
	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
