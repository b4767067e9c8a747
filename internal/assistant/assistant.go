// ABOUTME: Assistant orchestrator that builds every component from config and runs the selected mode
// ABOUTME: Owns the store, plugin registry, router, scheduler, bridge and HTTP server lifecycle

package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/familiar/internal/bridge"
	"github.com/2389/familiar/internal/builtins"
	"github.com/2389/familiar/internal/config"
	"github.com/2389/familiar/internal/console"
	"github.com/2389/familiar/internal/dedupe"
	"github.com/2389/familiar/internal/plugins"
	"github.com/2389/familiar/internal/scheduler"
	"github.com/2389/familiar/internal/store"
)

// Mode selects which front ends run.
type Mode string

const (
	// ModeConsole runs the interactive console. The HTTP server runs only
	// when the webhook is enabled.
	ModeConsole Mode = "console"
	// ModeGUI serves the HTTP API a GUI client attaches to.
	ModeGUI Mode = "gui"
	// ModeService runs the scheduler and HTTP API with no console.
	ModeService Mode = "service"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// RunOptions configures Run.
type RunOptions struct {
	Mode  Mode
	In    io.Reader
	Out   io.Writer
	Color bool
}

// Assistant wires the components together.
type Assistant struct {
	config     *config.Config
	store      store.Store
	bridge     *bridge.Bridge
	registry   *plugins.Registry
	router     *plugins.Router
	scheduler  *scheduler.Scheduler
	recurring  *scheduler.Recurring
	watcher    *plugins.Watcher
	deliveries *dedupe.Window
	httpServer *http.Server
	logger     *slog.Logger
	startedAt  time.Time

	// stopping is closed when shutdown begins so long-lived SSE streams end.
	stopping     chan struct{}
	stoppingOnce sync.Once
	shutdownOnce sync.Once
	shutdownErr  error
}

// initStore opens the SQLite store. FAMILIAR_DB_PATH overrides the
// configured path.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("FAMILIAR_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New builds every component and loads the plugins. Nothing runs until Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Assistant, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	st, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	a := &Assistant{
		config:    cfg,
		store:     st,
		bridge:    bridge.New(cfg.Bridge.InboxSize, logger),
		logger:    logger.With("component", "assistant"),
		startedAt: time.Now(),
		stopping:  make(chan struct{}),
	}
	built := false
	defer func() {
		if !built {
			a.closeAll()
			st.Close()
		}
	}()

	if err := a.initPlugins(ctx, logger); err != nil {
		return nil, err
	}

	a.router = plugins.NewRouter(plugins.RouterConfig{
		Resolver:     a.registry,
		Publisher:    a.bridge,
		Logger:       logger,
		Timeout:      cfg.Router.HandlerTimeout,
		AsyncTimeout: cfg.Router.AsyncTimeout,
		Prefix:       cfg.Router.CommandPrefix,
	})

	a.scheduler, err = scheduler.New(scheduler.Config{
		Store:         st,
		Publisher:     a.bridge,
		Interval:      cfg.Scheduler.PollInterval,
		DegradedAfter: cfg.Scheduler.DegradedAfter,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	entries := make([]scheduler.Entry, len(cfg.Recurring))
	for i, r := range cfg.Recurring {
		entries[i] = scheduler.Entry{Name: r.Name, Schedule: r.Schedule, Payload: r.Payload}
	}
	a.recurring, err = scheduler.NewRecurring(st, entries, cfg.Location(), logger)
	if err != nil {
		return nil, fmt.Errorf("creating recurring reminders: %w", err)
	}

	if cfg.Plugins.Watch {
		a.watcher, err = plugins.NewWatcher(plugins.WatcherConfig{
			Dir:      cfg.Plugins.Dir,
			Reloader: a.registry,
			OnReload: a.onWatchReload,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating plugin watcher: %w", err)
		}
	}

	if cfg.Webhook.Enabled {
		a.deliveries = dedupe.New(cfg.Webhook.DedupeTTL, dedupe.DefaultCapacity)
	}

	a.httpServer = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	built = true
	return a, nil
}

// initPlugins builds the catalog, discovery source and registry, then runs
// the startup scan. Broken manifests are logged and skipped.
func (a *Assistant) initPlugins(ctx context.Context, logger *slog.Logger) error {
	catalog := plugins.NewCatalog()
	a.registry = plugins.NewRegistry(&plugins.Discovery{
		Dir:      a.config.Plugins.Dir,
		Catalog:  catalog,
		Builtins: builtins.Specs(),
		Disabled: a.config.Plugins.Disabled,
		Logger:   logger,
	}, logger)

	builtins.Install(catalog, builtins.Deps{
		Store:    a.store,
		Registry: a.registry,
		Location: a.config.Location(),
		Logger:   logger,
	})

	report, err := a.registry.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading plugins: %w", err)
	}
	for _, skipped := range report.Skipped {
		a.logger.Warn("plugin not loaded", "error", skipped)
	}
	a.logger.Info("plugins ready", "loaded", len(report.Loaded), "skipped", len(report.Skipped))
	return nil
}

func (a *Assistant) onWatchReload(report *plugins.LoadReport, err error) {
	if err != nil {
		a.bridge.Publish(bridge.Event{
			Kind:    bridge.KindSystem,
			Source:  "plugins",
			Payload: "Plugin change ignored, keeping the current plugins: " + err.Error(),
			Data:    map[string]string{"state": "reload_failed"},
		})
		return
	}
	a.logger.Info("plugins reloaded from disk", "loaded", len(report.Loaded))
}

// Router returns the command router.
func (a *Assistant) Router() *plugins.Router { return a.router }

// Bridge returns the notification bridge.
func (a *Assistant) Bridge() *bridge.Bridge { return a.bridge }

// Store returns the persistent store.
func (a *Assistant) Store() store.Store { return a.store }

// Registry returns the plugin registry.
func (a *Assistant) Registry() *plugins.Registry { return a.registry }

func (a *Assistant) servesHTTP(mode Mode) bool {
	return mode != ModeConsole || a.config.Webhook.Enabled
}

// Run starts the background parts and the front ends for opts.Mode, and
// blocks until ctx is cancelled, the console exits, or a server fails.
// Everything is shut down before Run returns.
func (a *Assistant) Run(ctx context.Context, opts RunOptions) error {
	switch opts.Mode {
	case ModeConsole, ModeGUI, ModeService:
	default:
		return fmt.Errorf("unknown mode %q", opts.Mode)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var con *console.Console
	if opts.Mode == ModeConsole {
		var err error
		con, err = console.New(console.Config{
			Name:    a.config.Assistant.Name,
			Handler: a.router,
			Events:  a.bridge.Subscribe(ctx, "console").Events(),
			In:      opts.In,
			Out:     opts.Out,
			Color:   opts.Color,
			Logger:  a.logger,
		})
		if err != nil {
			return errors.Join(err, a.gracefulShutdown())
		}
	}

	var ln net.Listener
	if a.servesHTTP(opts.Mode) {
		var err error
		ln, err = net.Listen("tcp", a.config.HTTP.Addr)
		if err != nil {
			return errors.Join(fmt.Errorf("listening on %s: %w", a.config.HTTP.Addr, err), a.gracefulShutdown())
		}
	}

	if err := a.scheduler.Start(ctx); err != nil {
		if ln != nil {
			ln.Close()
		}
		return errors.Join(err, a.gracefulShutdown())
	}
	a.recurring.Start()
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			a.logger.Warn("plugin watcher not started", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if ln != nil {
		g.Go(func() error {
			a.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "mode", opts.Mode)
			if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			a.beginStopping()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return a.httpServer.Shutdown(sctx)
		})
	}

	if con != nil {
		g.Go(func() error {
			defer cancel()
			return con.Run(gctx)
		})
	}

	a.logger.Info("assistant running", "mode", opts.Mode, "name", a.config.Assistant.Name)
	runErr := g.Wait()
	if runErr != nil {
		a.logger.Error("assistant stopped with error", "error", runErr)
	}
	if err := a.gracefulShutdown(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func (a *Assistant) beginStopping() {
	a.stoppingOnce.Do(func() { close(a.stopping) })
}

// gracefulShutdown uses a fresh context since the run context is already
// cancelled.
func (a *Assistant) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Shutdown(ctx)
}

// Shutdown stops every component and closes the store. It is safe to call
// more than once.
func (a *Assistant) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down assistant")
		a.beginStopping()

		var errs []error
		if err := a.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
		}
		a.closeAll()
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
		a.shutdownErr = errors.Join(errs...)
	})
	return a.shutdownErr
}

// closeAll stops everything except the HTTP server and the store. Parts
// that were never built are skipped. Each Stop and Close is idempotent.
func (a *Assistant) closeAll() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.recurring != nil {
		a.recurring.Stop()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.router != nil {
		a.router.Close()
	}
	if a.deliveries != nil {
		a.deliveries.Close()
	}
	a.bridge.Close()
}
