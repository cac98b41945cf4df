package mpd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const handshakeTimeout = 5 * time.Second

// Idle subsystem names, as the daemon reports them. "playlist" is the
// play queue, not the stored playlists.
const (
	SubsystemPlayer  = "player"
	SubsystemQueue   = "playlist"
	SubsystemMixer   = "mixer"
	SubsystemOptions = "options"
)

// ErrIdleOutstanding is returned by Execute when an idle wait still
// owns the connection. Callers must cancel the idle first.
var ErrIdleOutstanding = errors.New("mpd: idle outstanding on connection")

// Client is a handle to one MPD connection. The daemon processes one
// command at a time, so a Client allows one in-flight command: Execute
// serializes callers and fails while an idle wait is pending.
//
// A Client is invalid after any ConnError; the owner is expected to
// discard it and connect again.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	addr    string
	version string
	log     zerolog.Logger

	mu sync.Mutex // serializes Execute and the start of Idle

	idleMu     sync.Mutex
	idling     bool
	cancelReq  bool
	noidleSent bool
	aborted    bool
}

// Connect dials the daemon and performs the version handshake. An
// absolute path is dialed as a Unix socket. The mandatory greeting
// line is "OK MPD <version>"; anything else is a protocol mismatch.
func Connect(ctx context.Context, addr string, logger zerolog.Logger) (*Client, error) {
	network := "tcp"
	if strings.HasPrefix(addr, "/") {
		network = "unix"
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, &ConnError{Kind: classifyDialError(err), Err: err}
	}

	c := &Client{
		conn: conn,
		r:    bufio.NewReader(conn),
		addr: addr,
		log:  logger.With().Str("component", "mpd").Logger(),
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	greeting, err := c.readLine()
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return nil, &ConnError{Kind: ConnIO, Err: fmt.Errorf("reading greeting: %w", err)}
	}
	version, ok := strings.CutPrefix(greeting, "OK MPD ")
	if !ok {
		conn.Close()
		return nil, &ConnError{Kind: ConnProtocolMismatch, Err: fmt.Errorf("unexpected greeting %q", greeting)}
	}
	c.version = version

	c.log.Debug().Str("addr", addr).Str("version", version).Msg("Connected to MPD")
	return c, nil
}

// Addr returns the remote address this client dialed.
func (c *Client) Addr() string { return c.addr }

// Version returns the protocol version string from the handshake.
func (c *Client) Version() string { return c.version }

// Close tears down the transport. Pending reads fail with a ConnError.
func (c *Client) Close() error { return c.conn.Close() }

// Execute writes one command and reads its full reply. A CommandError
// leaves the connection usable; any other error invalidates it.
func (c *Client) Execute(ctx context.Context, cmd Command) (Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isIdling() {
		return Reply{}, ErrIdleOutstanding
	}

	stop := context.AfterFunc(ctx, c.abortRead)
	defer stop()

	c.log.Trace().Str("cmd", cmd.Verb()).Msg("Issuing command")
	if err := c.writeLine(cmd.String()); err != nil {
		return Reply{}, &ConnError{Kind: ConnIO, Err: err}
	}
	return c.readReply()
}

// Idle issues the blocking wait restricted to the given subsystems and
// suspends until the daemon reports a change, CancelIdle is called, or
// ctx is done. It returns the changed subsystems, which are empty when
// the wait was cancelled before anything happened.
func (c *Client) Idle(ctx context.Context, subsystems ...string) ([]string, error) {
	c.mu.Lock()
	cmd := "idle"
	if len(subsystems) > 0 {
		cmd += " " + strings.Join(subsystems, " ")
	}
	if err := c.writeLine(cmd); err != nil {
		c.mu.Unlock()
		return nil, &ConnError{Kind: ConnIO, Err: err}
	}
	c.beginIdle()
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, c.CancelIdle)
	defer stop()

	reply, err := c.readReply()
	c.endIdle()
	if err != nil {
		return nil, err
	}
	return reply.Values("changed"), nil
}

// CancelIdle unblocks a pending Idle without closing the connection.
// It is safe to call at any time, including when no idle is pending or
// concurrently with the idle completing on its own; at most one noidle
// goes on the wire per idle, and the daemon silently ignores a noidle
// that loses the race against its own change notification.
func (c *Client) CancelIdle() {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	if !c.idling || c.cancelReq || c.noidleSent {
		return
	}
	c.cancelReq = true
	// Poke the blocked reader; it sends noidle itself so that all
	// writes during an idle stay on the reader's side.
	_ = c.conn.SetReadDeadline(time.Now())
}

func (c *Client) beginIdle() {
	c.idleMu.Lock()
	c.idling = true
	c.cancelReq = false
	c.noidleSent = false
	c.idleMu.Unlock()
}

func (c *Client) endIdle() {
	c.idleMu.Lock()
	c.idling = false
	if c.cancelReq {
		// Poke arrived after the reply was already consumed. Clear the
		// stale deadline so the next read does not trip on it.
		c.cancelReq = false
		_ = c.conn.SetReadDeadline(time.Time{})
	}
	c.idleMu.Unlock()
}

func (c *Client) isIdling() bool {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	return c.idling
}

// consumeCancel reports whether a read timeout was a cancellation poke
// and, if so, transitions it into the noidle-sent state.
func (c *Client) consumeCancel() bool {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	if !c.cancelReq {
		return false
	}
	c.cancelReq = false
	c.noidleSent = true
	_ = c.conn.SetReadDeadline(time.Time{})
	return true
}

func (c *Client) abortRead() {
	c.idleMu.Lock()
	c.aborted = true
	_ = c.conn.SetReadDeadline(time.Now())
	c.idleMu.Unlock()
}

func (c *Client) wasAborted() bool {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	return c.aborted
}

func (c *Client) writeLine(line string) error {
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

// readLine reads one protocol line, surviving cancellation pokes: a
// deadline timeout caused by CancelIdle sends noidle and resumes the
// read, keeping any partial line collected so far.
func (c *Client) readLine() (string, error) {
	var partial strings.Builder
	for {
		s, err := c.r.ReadString('\n')
		partial.WriteString(s)
		if err == nil {
			return strings.TrimSuffix(partial.String(), "\n"), nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			if c.consumeCancel() {
				if werr := c.writeLine("noidle"); werr != nil {
					return "", werr
				}
				continue
			}
			if c.wasAborted() {
				return "", fmt.Errorf("read aborted: %w", err)
			}
		}
		return "", err
	}
}

// readReply consumes lines until a terminator. OK ends the reply with
// the collected fields; ACK ends it as a CommandError. A "binary: N"
// field is followed by N raw bytes and a newline, which are consumed
// so the stream stays in sync even when the caller ignores them.
func (c *Client) readReply() (Reply, error) {
	var reply Reply
	for {
		line, err := c.readLine()
		if err != nil {
			return Reply{}, &ConnError{Kind: ConnIO, Err: err}
		}
		switch {
		case line == "OK" || strings.HasPrefix(line, "OK "):
			return reply, nil
		case strings.HasPrefix(line, "ACK"):
			return Reply{}, parseAck(line)
		}

		pair, ok := splitLine(line)
		if !ok {
			return Reply{}, &ProtocolError{Line: line, Msg: "missing key separator"}
		}
		reply.Pairs = append(reply.Pairs, pair)

		if pair.Key == "binary" {
			n, err := parseBinarySize(pair.Value)
			if err != nil {
				return Reply{}, &ProtocolError{Line: line, Msg: err.Error()}
			}
			chunk := make([]byte, n+1) // payload plus trailing newline
			if _, err := io.ReadFull(c.r, chunk); err != nil {
				return Reply{}, &ConnError{Kind: ConnIO, Err: err}
			}
			reply.Binary = append(reply.Binary, chunk[:n]...)
		}
	}
}

func parseBinarySize(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 0 {
		return 0, fmt.Errorf("bad binary length %q", s)
	}
	return n, nil
}

func classifyDialError(err error) ConnErrorKind {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ConnTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ConnRefused
	}
	return ConnIO
}
