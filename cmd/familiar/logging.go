// ABOUTME: Logger setup from the logging config section
// ABOUTME: Colorized text handler for terminals, JSON handler for log shipping, optional log file

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/familiar/internal/assistant"
	"github.com/2389/familiar/internal/config"
)

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogger builds the process logger and makes it the slog default.
// Console mode logs to stderr so the prompt stays readable; logging.file
// overrides the destination in every mode.
func setupLogger(cfg config.LoggingConfig, mode assistant.Mode) (*slog.Logger, func(), error) {
	var out io.Writer = os.Stdout
	if mode == assistant.ModeConsole {
		out = os.Stderr
	}
	closeFn := func() {}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	logger := newLogger(cfg, out)
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

func newLogger(cfg config.LoggingConfig, out io.Writer) *slog.Logger {
	level := parseLevel(cfg.Level)
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{mu: &sync.Mutex{}, out: out, level: level})
}

// levelBadges are the fixed-width level labels of the text format.
var levelBadges = map[slog.Level]struct {
	label string
	paint *color.Color
}{
	slog.LevelDebug: {"DBG ", color.New(color.FgMagenta)},
	slog.LevelInfo:  {"INF ", color.New(color.FgCyan)},
	slog.LevelWarn:  {"WRN ", color.New(color.FgYellow)},
	slog.LevelError: {"ERR ", color.New(color.FgRed, color.Bold)},
}

// colorHandler writes one colorized line per record. The "component"
// attribute set by each subsystem is shown as a [badge] before the message.
type colorHandler struct {
	mu     *sync.Mutex // shared by handlers derived with WithAttrs/WithGroup
	out    io.Writer
	level  slog.Level
	attrs  []groupedAttr
	groups []string
}

// groupedAttr is an attribute with the group prefix in effect when it was
// added.
type groupedAttr struct {
	prefix string
	attr   slog.Attr
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))
	if badge, ok := levelBadges[r.Level]; ok {
		buf.WriteString(badge.paint.Sprint(badge.label))
	} else {
		buf.WriteString("??? ")
	}

	attrs := make([]groupedAttr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	prefix := h.prefix()
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, groupedAttr{prefix: prefix, attr: a})
		return true
	})

	component := ""
	for _, a := range attrs {
		if isComponent(a) {
			component = a.attr.Value.String()
		}
	}
	if component != "" {
		buf.WriteString(color.GreenString("[" + component + "] "))
	}
	buf.WriteString(r.Message)

	for _, a := range attrs {
		if !isComponent(a) {
			writeAttr(&buf, a.prefix, a.attr)
		}
	}
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

// isComponent reports whether a is the top-level component attribute.
func isComponent(a groupedAttr) bool {
	return a.prefix == "" && a.attr.Key == "component"
}

func writeAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			writeAttr(buf, inner, ga)
		}
		return
	}
	buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
	buf.WriteString(v.String())
}

func (h *colorHandler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]groupedAttr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	prefix := h.prefix()
	for _, a := range attrs {
		newAttrs = append(newAttrs, groupedAttr{prefix: prefix, attr: a})
	}
	return &colorHandler{mu: h.mu, out: h.out, level: h.level, attrs: newAttrs, groups: h.groups}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{mu: h.mu, out: h.out, level: h.level, attrs: h.attrs, groups: newGroups}
}
