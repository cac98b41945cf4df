package mpd

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ConnErrorKind classifies connection-level failures.
type ConnErrorKind int

const (
	ConnRefused ConnErrorKind = iota
	ConnTimeout
	ConnProtocolMismatch
	ConnIO
)

func (k ConnErrorKind) String() string {
	switch k {
	case ConnRefused:
		return "refused"
	case ConnTimeout:
		return "timeout"
	case ConnProtocolMismatch:
		return "protocol mismatch"
	default:
		return "io"
	}
}

// ConnError wraps a transport failure. Any ConnError invalidates the
// connection handle; the caller is expected to reconnect.
type ConnError struct {
	Kind ConnErrorKind
	Err  error
}

func (e *ConnError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mpd connection error (%s)", e.Kind)
	}
	return fmt.Sprintf("mpd connection error (%s): %v", e.Kind, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// ProtocolError reports a reply that does not follow the MPD line
// protocol. Like ConnError it leaves the stream in an unknown state.
type ProtocolError struct {
	Line string
	Msg  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed mpd reply: %s (%q)", e.Msg, e.Line)
}

// CommandError is a daemon-rejected command (an ACK line). The
// connection remains usable after one of these.
type CommandError struct {
	Code    int    // numeric ack code, see MPD's Ack.hxx
	Index   int    // 0-based index of the failing command in a list
	Command string // command name the daemon blamed
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("mpd rejected %q: %s (code %d)", e.Command, e.Message, e.Code)
}

// ackPattern matches MPD error lines: ACK [code@index] {command} message
var ackPattern = regexp.MustCompile(`^ACK \[(\d+)@(\d+)\] \{([^}]*)\} (.*)$`)

func parseAck(line string) error {
	m := ackPattern.FindStringSubmatch(line)
	if m == nil {
		return &ProtocolError{Line: line, Msg: "unparsable ACK line"}
	}
	code, _ := strconv.Atoi(m[1])
	index, _ := strconv.Atoi(m[2])
	return &CommandError{Code: code, Index: index, Command: m[3], Message: m[4]}
}

// IsConnError reports whether err carries a *ConnError.
func IsConnError(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}
