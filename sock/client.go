package sock

import (
	"io"
	"net/netip"
)

// DefaultWindow is the incoming buffer capacity of a Client when the
// config leaves it zero: two full MSS segments.
const DefaultWindow = 2 * 1460

// ClientConfig holds the parameters for a stream client socket.
type ClientConfig struct {
	// Window bounds the incoming buffer. Should match the window the
	// stack advertises for the connection. Default DefaultWindow.
	Window int
}

// Client is a poll-based TCP stream socket. The zero value is an
// invalid (empty) socket, as returned by Listener.Accept on an empty
// queue: every operation on it reports closed.
type Client struct {
	stack  Stack
	h      *connState
	window int
}

// NewClient returns an unconnected client socket.
func NewClient(stack Stack, cfg ClientConfig) *Client {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Client{stack: stack, window: cfg.Window}
}

// newAcceptedClient wraps an established holder popped from an accept
// queue. Ownership of h transfers to the returned client.
func newAcceptedClient(h *connState) *Client {
	return &Client{h: h, window: h.window}
}

// Valid reports whether this socket holds or held a connection. The
// empty socket returned by Accept on an empty queue is not valid.
func (c *Client) Valid() bool { return c != nil && c.h != nil }

// Connect starts an outbound connection attempt. It fails fast on an
// invalid address or stack resource exhaustion and does not retry.
// Completion is observed by polling State or Connected; connect
// timeout policy belongs to the caller, which forces Abort once its
// deadline passes.
func (c *Client) Connect(remote netip.AddrPort) error {
	if c.stack == nil {
		return ErrClosed
	}
	if !remote.IsValid() || remote.Port() == 0 {
		return ErrInvalidAddress
	}
	if c.h != nil && c.h.State() != StateClosed {
		return ErrAlreadyOpen
	}
	h := newConnState(nil, c.window, StateConnecting)
	conn, err := c.stack.Connect(remote, h)
	if err != nil {
		return err
	}
	// The stack may complete or refuse the attempt from inside Connect,
	// via the Connected callback. A refusal released the handle already:
	// storing it now would let Close/Read call into a dead connection.
	h.mu.lock()
	released := h.State() == StateAborted && h.conn == nil
	if !released {
		h.conn = conn
	}
	err = h.lastErr
	h.mu.unlock()
	c.h = h
	if released {
		return err
	}
	return nil
}

// State returns the connection lifecycle state.
func (c *Client) State() State {
	if !c.Valid() {
		return StateClosed
	}
	return c.h.State()
}

// Connected reports whether the connection is usable: established, or
// half-closed by the peer with data still flowing.
func (c *Client) Connected() bool {
	s := c.State()
	return s == StateEstablished || s == StateCloseWait
}

// Available returns the number of buffered unread bytes. Data remains
// drainable after the peer closed or the connection aborted.
func (c *Client) Available() int {
	if !c.Valid() {
		return 0
	}
	return c.h.available()
}

// Read copies buffered bytes into p. It returns (0, nil) when the
// connection is open but no data is buffered, and (0, io.EOF) once the
// stream is finished (peer closed or connection aborted) and the
// buffer is drained.
func (c *Client) Read(p []byte) (int, error) {
	if !c.Valid() {
		return 0, ErrClosed
	}
	n := c.h.read(p)
	if n > 0 {
		return n, nil
	}
	switch c.h.State() {
	case StateCloseWait, StateAborted, StateClosed:
		return 0, io.EOF
	}
	return 0, nil
}

// Peek copies buffered bytes into p without consuming them.
func (c *Client) Peek(p []byte) int {
	if !c.Valid() {
		return 0
	}
	return c.h.peek(p)
}

// Write queues up to len(p) bytes, bounded by the stack's reported
// send-buffer availability. A short write is not an error: callers
// wishing to write fully must loop, polling between attempts.
func (c *Client) Write(p []byte) (int, error) {
	if !c.Valid() {
		return 0, ErrClosed
	}
	switch c.h.State() {
	case StateEstablished, StateCloseWait:
	case StateConnecting:
		return 0, ErrNotConnected
	default:
		return 0, ErrClosed
	}
	c.h.mu.lock()
	conn := c.h.conn
	c.h.mu.unlock()
	if conn == nil {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	free := int(conn.SendBufferFree())
	if free == 0 {
		return 0, nil
	}
	if free < len(p) {
		p = p[:free]
	}
	return conn.Write(p, WriteCopy)
}

// Err returns the last error the stack reported for this connection.
func (c *Client) Err() error {
	if !c.Valid() {
		return nil
	}
	return c.h.err()
}

// Close closes the connection gracefully, force-aborting if the stack
// reports it cannot. Unread buffered data remains drainable via Read.
func (c *Client) Close() error {
	if !c.Valid() {
		return nil
	}
	return c.h.teardown(true)
}

// Abort tears the connection down immediately without a graceful
// close. Used by callers implementing their own connect timeout.
func (c *Client) Abort() {
	if c.Valid() {
		c.h.teardown(false)
	}
}
