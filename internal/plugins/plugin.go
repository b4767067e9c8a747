// ABOUTME: Plugin descriptors, invocation patterns and the per-call context handed to handlers.
// ABOUTME: A descriptor is immutable once registered; patterns decide which commands it serves.

package plugins

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Handler executes a command. The returned text is the synchronous reply.
type Handler func(ctx context.Context, call *Call) (string, error)

// AsyncFunc is work a handler continues after its reply. Its result is
// published as a plugin_async_result event.
type AsyncFunc func(ctx context.Context) (string, error)

// Descriptor is a registered plugin.
type Descriptor struct {
	Name        string
	Kind        string
	Description string
	Usage       string
	Patterns    []Pattern
	Handler     Handler
	Source      string // "builtin" or the manifest path
}

// Matches reports whether any pattern matches the normalized command text.
func (d *Descriptor) Matches(text string) bool {
	for _, p := range d.Patterns {
		if p.Match(text) {
			return true
		}
	}
	return false
}

// PatternStrings renders the patterns in manifest syntax.
func (d *Descriptor) PatternStrings() []string {
	out := make([]string, len(d.Patterns))
	for i, p := range d.Patterns {
		out[i] = p.String()
	}
	return out
}

// Pattern decides whether a plugin serves a command.
type Pattern interface {
	Match(text string) bool
	String() string
}

type prefixPattern struct {
	prefix string
}

// Prefix matches commands whose leading words equal prefix, ignoring case.
// Prefix("todo") matches "todo" and "todo add milk" but not "todos".
func Prefix(prefix string) Pattern {
	return prefixPattern{prefix: strings.ToLower(strings.Join(strings.Fields(prefix), " "))}
}

func (p prefixPattern) Match(text string) bool {
	if p.prefix == "" {
		return false
	}
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	return text == p.prefix || strings.HasPrefix(text, p.prefix+" ")
}

func (p prefixPattern) String() string {
	return p.prefix
}

type regexpPattern struct {
	expr string
	re   *regexp.Regexp
}

// Regexp matches commands against a case-insensitive regular expression.
func Regexp(expr string) (Pattern, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", expr, err)
	}
	return regexpPattern{expr: expr, re: re}, nil
}

// MustRegexp is like Regexp but panics on an invalid expression.
func MustRegexp(expr string) Pattern {
	p, err := Regexp(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p regexpPattern) Match(text string) bool {
	return p.re.MatchString(strings.TrimSpace(text))
}

func (p regexpPattern) String() string {
	return regexpPrefix + p.expr
}

const regexpPrefix = "re:"

// ParsePattern reads manifest syntax: "re:<expr>" is a regular expression,
// anything else a prefix.
func ParsePattern(s string) (Pattern, error) {
	if expr, ok := strings.CutPrefix(s, regexpPrefix); ok {
		return Regexp(expr)
	}
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	return Prefix(s), nil
}

// ParsePatterns parses every pattern, failing on the first invalid one.
func ParsePatterns(specs []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(specs))
	for _, s := range specs {
		p, err := ParsePattern(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Call is what a handler sees of one invocation.
type Call struct {
	Command
	Plugin string

	async []AsyncFunc
}

// Async schedules fn to run after the handler returns successfully.
func (c *Call) Async(fn AsyncFunc) {
	c.async = append(c.async, fn)
}

// Arg returns the i-th argument or "".
func (c *Call) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Rest joins the arguments from i onwards.
func (c *Call) Rest(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}
