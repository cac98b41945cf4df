package mpd

import "strings"

// Command is a single MPD request: a verb plus ordered arguments.
// Commands are immutable once built; String renders the wire form
// (without the trailing newline).
type Command struct {
	verb string
	args []string
}

// Cmd builds a command from a verb and its arguments.
func Cmd(verb string, args ...string) Command {
	return Command{verb: verb, args: args}
}

// Verb returns the command verb.
func (c Command) Verb() string { return c.verb }

// String renders the command as a single protocol line. Arguments
// containing whitespace, quotes or backslashes are quoted per MPD's
// rules: wrapped in double quotes with embedded quotes and backslashes
// backslash-escaped.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.verb)
	for _, arg := range c.args {
		b.WriteByte(' ')
		b.WriteString(quoteArg(arg))
	}
	return b.String()
}

func quoteArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\"'\\") {
		return arg
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(arg); i++ {
		switch arg[i] {
		case '"', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(arg[i])
	}
	b.WriteByte('"')
	return b.String()
}

// SplitQuoted splits a quoted command line back into its fields,
// undoing the escaping applied by String. It is the inverse used by
// tests and by tooling that echoes commands.
func SplitQuoted(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuote := false
	escaped := false
	started := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\' && inQuote:
			escaped = true
		case c == '"':
			inQuote = !inQuote
			started = true
		case (c == ' ' || c == '\t') && !inQuote:
			if started || cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteByte(c)
			started = true
		}
	}
	if started || cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}
