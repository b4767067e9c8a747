// ABOUTME: Entry point for the familiar personal assistant
// ABOUTME: Cobra root command selects console, GUI or service mode; subcommands manage config and data

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/familiar/internal/assistant"
	"github.com/2389/familiar/internal/config"
)

// Version is set at build time.
var version = "dev"

const banner = `
  __                 _ _ _
 / _| __ _ _ __ ___ (_) (_) __ _ _ __
| |_ / _' | '_ ' _ \| | | |/ _' | '__|
|  _| (_| | | | | | | | | | (_| | |
|_|  \__,_|_| |_| |_|_|_|_|\__,_|_|
`

// getConfigPath returns the path to the config file.
// Priority: --config flag > FAMILIAR_CONFIG env var > XDG_CONFIG_HOME/familiar/config.yaml > ~/.config/familiar/config.yaml
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("FAMILIAR_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "familiar", "config.yaml")
}

// getDataPath returns the familiar data directory.
// Priority: XDG_DATA_HOME/familiar > ~/.local/share/familiar
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "familiar")
}

type rootOptions struct {
	configPath    string
	gui           bool
	noInteractive bool
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist.
func (o *rootOptions) loadConfig() (*config.Config, string, error) {
	path := getConfigPath(o.configPath)
	cfg, found, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	if !found {
		return cfg, "", nil
	}
	return cfg, path, nil
}

func (o *rootOptions) mode() (assistant.Mode, error) {
	switch {
	case o.gui && o.noInteractive:
		return "", fmt.Errorf("--gui and --no-interactive are mutually exclusive")
	case o.gui:
		return assistant.ModeGUI, nil
	case o.noInteractive:
		return assistant.ModeService, nil
	}
	return assistant.ModeConsole, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "familiar",
		Short: "A personal assistant with plugins, reminders and notifications",
		Long: `familiar routes typed commands to plugins and delivers reminders when they fall due.

Without flags it starts an interactive console. --gui serves the HTTP API a
GUI client attaches to; --no-interactive runs as a background service.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssistant(cmd, opts)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $FAMILIAR_CONFIG or ~/.config/familiar/config.yaml)")
	root.Flags().BoolVar(&opts.gui, "gui", false, "serve the HTTP API for a GUI client")
	root.Flags().BoolVar(&opts.noInteractive, "no-interactive", false, "run as a service: scheduler and HTTP API, no console")

	root.AddCommand(
		newInitCmd(opts),
		newRemindersCmd(opts),
		newPluginsCmd(opts),
		newVersionCmd(),
	)
	return root
}

func runAssistant(cmd *cobra.Command, opts *rootOptions) error {
	mode, err := opts.mode()
	if err != nil {
		return err
	}
	cfg, configPath, err := opts.loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := setupLogger(cfg.Logging, mode)
	if err != nil {
		return err
	}
	defer closeLog()

	out := cmd.OutOrStdout()
	if mode != assistant.ModeConsole {
		cyan := color.New(color.FgCyan)
		gray := color.New(color.FgHiBlack)
		green := color.New(color.FgGreen)
		cyan.Fprint(out, banner)
		gray.Fprintf(out, "    version: %s\n\n", version)

		if configPath == "" {
			configPath = "(defaults)"
		}
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "Config:    %s\n", configPath)
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "Mode:      %s\n", mode)
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "HTTP:      %s\n", cfg.HTTP.Addr)
		if cfg.Webhook.Enabled {
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "Webhook:   http://%s%s\n", cfg.HTTP.Addr, cfg.Webhook.Path)
		}
		fmt.Fprintln(out)
	}

	logger.Info("starting familiar",
		"config", configPath,
		"mode", mode,
		"database", cfg.Database.Path,
		"plugins_dir", cfg.Plugins.Dir,
	)

	ctx := cmd.Context()
	a, err := assistant.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating assistant: %w", err)
	}

	return a.Run(ctx, assistant.RunOptions{
		Mode:  mode,
		In:    cmd.InOrStdin(),
		Out:   out,
		Color: !color.NoColor,
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "familiar %s\n", version)
		},
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
