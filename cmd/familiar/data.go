// ABOUTME: Offline subcommands that inspect the store and plugin set without starting the assistant
// ABOUTME: "reminders list|purge" reads the SQLite database; "plugins" runs plugin discovery

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/familiar/internal/builtins"
	"github.com/2389/familiar/internal/config"
	"github.com/2389/familiar/internal/plugins"
	"github.com/2389/familiar/internal/store"
)

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("FAMILIAR_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

func newRemindersCmd(opts *rootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "List or purge stored reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(st store.ReminderStore, cfg *config.Config) error {
				return listReminders(cmd.Context(), cmd.OutOrStdout(), st, status, cfg.Location())
			})
		},
	}
	cmd.PersistentFlags().StringVar(&status, "status", "pending", "pending, fired, cancelled or all")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(st store.ReminderStore, cfg *config.Config) error {
				return listReminders(cmd.Context(), cmd.OutOrStdout(), st, status, cfg.Location())
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete fired and cancelled reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(st store.ReminderStore, _ *config.Config) error {
				n, err := st.PurgeReminders(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d reminders.\n", n)
				return nil
			})
		},
	})
	return cmd
}

func withStore(opts *rootOptions, fn func(store.ReminderStore, *config.Config) error) error {
	cfg, _, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st, cfg)
}

func listReminders(ctx context.Context, out io.Writer, st store.ReminderStore, status string, loc *time.Location) error {
	filter := store.ReminderFilter{}
	if status != "all" {
		filter.Status = store.ReminderStatus(status)
		if !filter.Status.Valid() {
			return fmt.Errorf("unknown status %q: want pending, fired, cancelled or all", status)
		}
	}

	list, err := st.ListReminders(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing reminders: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No reminders.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDUE\tSTATUS\tSOURCE\tREMINDER")
	for _, r := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.DueAt.In(loc).Format("2006-01-02 15:04"), r.Status, r.Source, r.Payload)
	}
	return tw.Flush()
}

func newPluginsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List the plugins that would be loaded, and any that fail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return listPlugins(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

// listPlugins runs discovery the same way the assistant does, without
// starting anything.
func listPlugins(ctx context.Context, out io.Writer, cfg *config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	logger := slog.New(slog.DiscardHandler)
	catalog := plugins.NewCatalog()
	reg := plugins.NewRegistry(&plugins.Discovery{
		Dir:      cfg.Plugins.Dir,
		Catalog:  catalog,
		Builtins: builtins.Specs(),
		Disabled: cfg.Plugins.Disabled,
		Logger:   logger,
	}, logger)
	builtins.Install(catalog, builtins.Deps{Store: st, Registry: reg, Location: cfg.Location(), Logger: logger})

	report, err := reg.Load(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tPATTERNS\tSOURCE")
	for _, d := range reg.List() {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", d.Name, d.Kind, d.PatternStrings(), d.Source)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	red := color.New(color.FgRed)
	for _, skipped := range report.Skipped {
		red.Fprintf(out, "✗ %v\n", skipped)
	}
	return nil
}
