// ABOUTME: Interactive console that routes typed lines and prints bridge events as they arrive.
// ABOUTME: Output from the reply path and the event path is serialized through one writer.

package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/familiar/internal/bridge"
	"github.com/2389/familiar/internal/plugins"
)

// Handler routes one line of input.
type Handler interface {
	HandleText(ctx context.Context, raw string, origin plugins.Origin) (*plugins.Reply, error)
}

// Config configures a Console.
type Config struct {
	Name    string
	Handler Handler
	// Events is the console's bridge subscription. May be nil.
	Events <-chan bridge.Event
	In     io.Reader
	Out    io.Writer
	Color  bool
	Logger *slog.Logger
}

// Console is a line-oriented front end.
type Console struct {
	name    string
	handler Handler
	events  <-chan bridge.Event
	in      io.Reader
	logger  *slog.Logger

	outMu sync.Mutex
	out   io.Writer

	bot      *color.Color
	reminder *color.Color
	notice   *color.Color
	prompt   *color.Color
}

// New creates a console.
func New(cfg Config) (*Console, error) {
	if cfg.Handler == nil {
		return nil, errors.New("console: handler is required")
	}
	if cfg.In == nil || cfg.Out == nil {
		return nil, errors.New("console: input and output are required")
	}
	name := cfg.Name
	if name == "" {
		name = "Familiar"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Console{
		name:     name,
		handler:  cfg.Handler,
		events:   cfg.Events,
		in:       cfg.In,
		out:      cfg.Out,
		logger:   logger.With("component", "console"),
		bot:      color.New(color.FgCyan),
		reminder: color.New(color.FgYellow, color.Bold),
		notice:   color.New(color.FgMagenta),
		prompt:   color.New(color.FgGreen, color.Bold),
	}
	for _, col := range []*color.Color{c.bot, c.reminder, c.notice, c.prompt} {
		if cfg.Color {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c, nil
}

// quitWords end the session.
var quitWords = map[string]bool{"quit": true, "exit": true}

// Run reads commands until input ends, the user quits, or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	if c.events != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.printEvents(ctx)
		}()
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	c.printf("%s\n", c.bot.Sprintf("Hello! I'm %s. Type 'help' to see what I can do, or 'quit' to exit.", c.name))
	c.showPrompt()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			return nil
		case line := <-lines:
			text := strings.TrimSpace(line)
			if quitWords[strings.ToLower(text)] {
				c.printf("%s\n", c.bot.Sprint("Bot: Goodbye!"))
				return nil
			}
			if text != "" {
				c.handle(ctx, text)
			}
			c.showPrompt()
		}
	}
}

func (c *Console) handle(ctx context.Context, text string) {
	reply, err := c.handler.HandleText(ctx, text, plugins.OriginConsole)
	if err != nil {
		c.logger.Debug("command failed", "error", err)
	}
	if reply == nil {
		return
	}
	c.printf("%s\n", c.bot.Sprint("Bot: "+reply.Text))
}

func (c *Console) printEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			c.printf("\n%s\n", c.colorFor(ev.Kind).Sprint(FormatEvent(ev)))
			c.showPrompt()
		}
	}
}

func (c *Console) colorFor(kind bridge.Kind) *color.Color {
	switch kind {
	case bridge.KindReminderDue:
		return c.reminder
	case bridge.KindAsyncResult:
		return c.bot
	default:
		return c.notice
	}
}

func (c *Console) showPrompt() {
	c.printf("%s", c.prompt.Sprint("You: "))
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// FormatEvent renders an event the way front ends show it.
func FormatEvent(ev bridge.Event) string {
	switch ev.Kind {
	case bridge.KindReminderDue:
		return "⏰ REMINDER: " + ev.Payload
	case bridge.KindAsyncResult:
		return "Bot: " + ev.Payload
	case bridge.KindWebhook:
		return "🔌 " + ev.Payload
	case bridge.KindSystem:
		return "⚠️ " + ev.Payload
	default:
		return ev.Payload
	}
}

// Title is the notification title a GUI shows for an event.
func Title(ev bridge.Event) string {
	switch ev.Kind {
	case bridge.KindReminderDue:
		return "Scheduled Reminder"
	case bridge.KindWebhook:
		return "Webhook Received"
	case bridge.KindSystem:
		return "Assistant Notice"
	default:
		return "Bot Notification"
	}
}
