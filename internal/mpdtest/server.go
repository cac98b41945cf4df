// Package mpdtest runs a scripted in-process MPD server for tests.
// It speaks just enough of the protocol for the client, bridge and
// adapter packages: greeting, per-command canned replies, and the
// idle/noidle state machine with pending-change semantics.
package mpdtest

import (
	"bufio"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
)

// Handler produces the full reply text (including the OK/ACK
// terminator line) for one command.
type Handler func(args []string) string

// Server is a fake MPD daemon listening on a real TCP socket.
type Server struct {
	Addr string

	ln       net.Listener
	mu       sync.Mutex
	handlers map[string]Handler
	conns    []*serverConn
	closed   bool
}

type serverConn struct {
	srv     *Server
	conn    net.Conn
	mu      sync.Mutex
	pending map[string]bool
	wake    chan struct{}
}

// Start launches the server on a random localhost port.
func Start() (*Server, error) {
	return StartAt("127.0.0.1:0")
}

// StartAt launches the server on a fixed address, for reconnect tests
// that need to bring a daemon back on the same port.
func StartAt(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		Addr:     ln.Addr().String(),
		ln:       ln,
		handlers: make(map[string]Handler),
	}
	go s.acceptLoop()
	return s, nil
}

// Close shuts the listener and all live connections.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := append([]*serverConn(nil), s.conns...)
	s.mu.Unlock()
	s.ln.Close()
	for _, c := range conns {
		c.conn.Close()
	}
}

// Handle installs the reply for a command verb.
func (s *Server) Handle(verb string, h Handler) {
	s.mu.Lock()
	s.handlers[verb] = h
	s.mu.Unlock()
}

// HandleReply installs a fixed reply for a command verb.
func (s *Server) HandleReply(verb, reply string) {
	s.Handle(verb, func([]string) string { return reply })
}

// Notify records a subsystem change for every connection. Idling
// clients wake immediately; others see it on their next idle, like a
// real daemon reporting changes since the last wait.
func (s *Server) Notify(subsystem string) {
	s.mu.Lock()
	conns := append([]*serverConn(nil), s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		c.mu.Lock()
		c.pending[subsystem] = true
		c.mu.Unlock()
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// OK joins key/value lines and terminates them with OK, the shape
// handlers usually want.
func OK(lines ...string) string {
	if len(lines) == 0 {
		return "OK\n"
	}
	return strings.Join(lines, "\n") + "\nOK\n"
}

// Ack formats a daemon rejection line.
func Ack(code int, command, msg string) string {
	return fmt.Sprintf("ACK [%d@0] {%s} %s\n", code, command, msg)
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		c := &serverConn{
			srv:     s,
			conn:    conn,
			pending: make(map[string]bool),
			wake:    make(chan struct{}, 1),
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns = append(s.conns, c)
		s.mu.Unlock()
		go c.serve()
	}
}

func (c *serverConn) serve() {
	defer c.conn.Close()
	fmt.Fprint(c.conn, "OK MPD 0.24.0\n")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(c.conn)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		verb, args := fields[0], fields[1:]
		switch verb {
		case "idle":
			if !c.idle(lines, args) {
				return
			}
		case "noidle":
			// Not idling: the real daemon ignores this silently.
		default:
			c.dispatch(verb, args)
		}
	}
}

// idle blocks until a matching pending change or a noidle line.
// Returns false when the connection died.
func (c *serverConn) idle(lines <-chan string, subsystems []string) bool {
	for {
		if changed := c.takePending(subsystems); len(changed) > 0 {
			var b strings.Builder
			for _, sub := range changed {
				fmt.Fprintf(&b, "changed: %s\n", sub)
			}
			b.WriteString("OK\n")
			fmt.Fprint(c.conn, b.String())
			return true
		}
		select {
		case <-c.wake:
		case line, ok := <-lines:
			if !ok {
				return false
			}
			if strings.TrimSpace(line) == "noidle" {
				fmt.Fprint(c.conn, "OK\n")
				return true
			}
			// Anything else during idle is a protocol violation.
			fmt.Fprint(c.conn, Ack(5, "idle", "only noidle is allowed while idling"))
			return true
		}
	}
}

func (c *serverConn) takePending(subsystems []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for sub := range c.pending {
		if len(subsystems) == 0 || slices.Contains(subsystems, sub) {
			out = append(out, sub)
			delete(c.pending, sub)
		}
	}
	return out
}

func (c *serverConn) dispatch(verb string, args []string) {
	c.srv.mu.Lock()
	h := c.srv.handlers[verb]
	c.srv.mu.Unlock()
	if h == nil {
		fmt.Fprint(c.conn, "OK\n")
		return
	}
	fmt.Fprint(c.conn, h(args))
}
