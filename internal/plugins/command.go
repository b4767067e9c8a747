// ABOUTME: Command parsing for input arriving from the console, GUI or webhooks.
// ABOUTME: Strips the command prefix and splits the text into a name and arguments.

package plugins

import "strings"

// Origin identifies the front end a command came from.
type Origin string

const (
	OriginConsole Origin = "console"
	OriginGUI     Origin = "gui"
	OriginWebhook Origin = "webhook"
)

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	switch o {
	case OriginConsole, OriginGUI, OriginWebhook:
		return true
	}
	return false
}

// Command is one parsed user request.
type Command struct {
	Raw    string   // exactly as received
	Text   string   // trimmed, prefix removed
	Name   string   // first word, lower case
	Args   []string // remaining words in order
	Origin Origin
}

// Parse builds a Command from raw input. A leading prefix such as "!" is
// optional and removed.
func Parse(raw string, origin Origin, prefix string) Command {
	text := strings.TrimSpace(raw)
	if prefix != "" {
		text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
	}

	cmd := Command{Raw: raw, Text: text, Origin: origin}
	fields := strings.Fields(text)
	if len(fields) > 0 {
		cmd.Name = strings.ToLower(fields[0])
		cmd.Args = fields[1:]
	}
	return cmd
}

// Empty reports whether the command has no content.
func (c Command) Empty() bool {
	return c.Text == ""
}
