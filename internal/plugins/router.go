// ABOUTME: Routes commands to the matching plugin and isolates handler failures.
// ABOUTME: Handlers run with a timeout and panic recovery; async results go to the notification bridge.

package plugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/2389/familiar/internal/bridge"
	"github.com/2389/familiar/internal/metrics"
)

// ErrTimeout indicates a handler did not finish within its time budget.
var ErrTimeout = errors.New("handler timed out")

// DefaultTimeout is the default budget for a synchronous handler.
const DefaultTimeout = 10 * time.Second

// DefaultAsyncTimeout is the default budget for work scheduled with Call.Async.
const DefaultAsyncTimeout = time.Minute

// NotUnderstood is the reply for commands no plugin matches.
const NotUnderstood = "Sorry, I didn't understand that. Type 'help' to see what I can do."

// HandlerError is a plugin failure caught at the router boundary.
type HandlerError struct {
	Plugin string
	Cause  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("plugin %q failed: %v", e.Plugin, e.Cause)
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the handler ran out of time.
func (e *HandlerError) Timeout() bool {
	return errors.Is(e.Cause, ErrTimeout)
}

// Reply is the user-facing text for the failure.
func (e *HandlerError) Reply() string {
	if e.Timeout() {
		return fmt.Sprintf("Sorry, the %s plugin took too long to answer.", e.Plugin)
	}
	return fmt.Sprintf("Sorry, the %s plugin ran into a problem: %v", e.Plugin, e.Cause)
}

// PanicError is the cause recorded when a handler panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// ReplyStatus classifies a reply.
type ReplyStatus string

const (
	ReplyOK       ReplyStatus = "ok"
	ReplyNotFound ReplyStatus = "not_found"
	ReplyError    ReplyStatus = "error"
)

// Reply is the synchronous answer to a command.
type Reply struct {
	Status ReplyStatus `json:"status"`
	Plugin string      `json:"plugin,omitempty"`
	Text   string      `json:"text"`
}

// Resolver finds the plugin for a command.
type Resolver interface {
	Resolve(text string) (*Descriptor, bool)
}

// Router dispatches commands to plugins.
type Router struct {
	resolver     Resolver
	publisher    bridge.Publisher
	logger       *slog.Logger
	timeout      time.Duration
	asyncTimeout time.Duration
	prefix       string

	// mu guards closed so no async work is started after Close begins waiting.
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// RouterConfig contains configuration options for the Router.
type RouterConfig struct {
	Resolver     Resolver
	Publisher    bridge.Publisher
	Logger       *slog.Logger
	Timeout      time.Duration
	AsyncTimeout time.Duration
	Prefix       string
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg RouterConfig) *Router {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	asyncTimeout := cfg.AsyncTimeout
	if asyncTimeout == 0 {
		asyncTimeout = DefaultAsyncTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		resolver:     cfg.Resolver,
		publisher:    cfg.Publisher,
		logger:       logger.With("component", "router"),
		timeout:      timeout,
		asyncTimeout: asyncTimeout,
		prefix:       cfg.Prefix,
		baseCtx:      ctx,
		cancel:       cancel,
	}
}

// Parse builds a Command using the router's command prefix.
func (r *Router) Parse(raw string, origin Origin) Command {
	return Parse(raw, origin, r.prefix)
}

// HandleText parses and handles raw input.
func (r *Router) HandleText(ctx context.Context, raw string, origin Origin) (*Reply, error) {
	return r.Handle(ctx, r.Parse(raw, origin))
}

// Handle resolves and runs a command. An unmatched command yields a
// not_found reply and no error. A failing handler yields an error reply
// together with a *HandlerError.
func (r *Router) Handle(ctx context.Context, cmd Command) (*Reply, error) {
	d, ok := r.resolver.Resolve(cmd.Text)
	if cmd.Empty() || !ok {
		r.logger.Debug("no plugin matched", "text", cmd.Text, "origin", cmd.Origin)
		metrics.CommandsTotal.WithLabelValues("", string(cmd.Origin), metrics.OutcomeNotFound).Inc()
		return &Reply{Status: ReplyNotFound, Text: NotUnderstood}, nil
	}

	r.logger.Info("→ dispatching to plugin",
		"plugin", d.Name,
		"command", cmd.Name,
		"origin", cmd.Origin,
	)

	call := &Call{Command: cmd, Plugin: d.Name}
	start := time.Now()
	text, err := r.invoke(ctx, d, call)
	metrics.HandlerDuration.WithLabelValues(d.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		herr := &HandlerError{Plugin: d.Name, Cause: err}
		outcome := metrics.OutcomeError
		if herr.Timeout() {
			outcome = metrics.OutcomeTimeout
		}
		metrics.CommandsTotal.WithLabelValues(d.Name, string(cmd.Origin), outcome).Inc()

		attrs := []any{"plugin", d.Name, "error", err}
		var perr *PanicError
		if errors.As(err, &perr) {
			attrs = append(attrs, "stack", string(perr.Stack))
		}
		r.logger.Warn("plugin failed", attrs...)
		return &Reply{Status: ReplyError, Plugin: d.Name, Text: herr.Reply()}, herr
	}

	metrics.CommandsTotal.WithLabelValues(d.Name, string(cmd.Origin), metrics.OutcomeOK).Inc()
	r.logger.Info("← plugin responded", "plugin", d.Name, "duration", time.Since(start))

	for _, fn := range call.async {
		r.startAsync(d.Name, cmd, fn)
	}

	return &Reply{Status: ReplyOK, Plugin: d.Name, Text: text}, nil
}

type handlerResult struct {
	text string
	err  error
}

// invoke runs the handler on its own goroutine so that a handler that
// ignores its context cannot hold the caller past the timeout.
func (r *Router) invoke(ctx context.Context, d *Descriptor, call *Call) (string, error) {
	return runWithTimeout(ctx, r.timeout, func(ctx context.Context) (string, error) {
		return d.Handler(ctx, call)
	})
}

func runWithTimeout(ctx context.Context, timeout time.Duration, fn AsyncFunc) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan handlerResult, 1)
	go func() {
		done <- runHandler(ctx, fn)
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return res.text, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return "", ctx.Err()
	}
}

// runHandler calls fn and turns a panic into a *PanicError.
func runHandler(ctx context.Context, fn AsyncFunc) (res handlerResult) {
	defer func() {
		if p := recover(); p != nil {
			res = handlerResult{err: &PanicError{Value: p, Stack: debug.Stack()}}
		}
	}()
	text, err := fn(ctx)
	return handlerResult{text: text, err: err}
}

func (r *Router) startAsync(plugin string, cmd Command, fn AsyncFunc) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("router closed, dropping async work", "plugin", plugin)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		text, err := runWithTimeout(r.baseCtx, r.asyncTimeout, fn)

		ev := bridge.Event{
			Kind:   bridge.KindAsyncResult,
			Source: plugin,
			Data:   map[string]string{"command": cmd.Text, "origin": string(cmd.Origin)},
		}
		if err != nil {
			herr := &HandlerError{Plugin: plugin, Cause: err}
			ev.Payload = herr.Reply()
			ev.Data["status"] = string(ReplyError)
			metrics.AsyncResultsTotal.WithLabelValues(plugin, metrics.OutcomeError).Inc()
			r.logger.Warn("async plugin work failed", "plugin", plugin, "error", err)
		} else {
			ev.Payload = text
			ev.Data["status"] = string(ReplyOK)
			metrics.AsyncResultsTotal.WithLabelValues(plugin, metrics.OutcomeOK).Inc()
		}

		if r.publisher != nil {
			r.publisher.Publish(ev)
		}
	}()
}

// Close cancels outstanding async work and waits for it to finish.
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	r.logger.Info("router closed")
}
