package sock

// DefaultBacklog is the accept queue capacity when the config leaves
// it zero.
const DefaultBacklog = 8

// ListenerConfig holds the parameters for a listening socket.
type ListenerConfig struct {
	// Window bounds the incoming buffer of each accepted connection.
	// Default DefaultWindow.
	Window int
	// Backlog bounds the accept queue. Connections established while
	// the queue is full are aborted. Default DefaultBacklog.
	Backlog int
}

// Listener is a listening TCP socket with an accept queue of fully
// established connections. Accept order is FIFO: first connected,
// first accepted.
type Listener struct {
	l      TCPListener
	window int
	max    int

	mu    spinLock
	queue []*connState
}

// Listen opens a listening socket on the given local port.
func Listen(stack Stack, port uint16, cfg ListenerConfig) (*Listener, error) {
	if stack == nil || port == 0 {
		return nil, ErrInvalidAddress
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = DefaultBacklog
	}
	lsn := &Listener{
		window: cfg.Window,
		max:    cfg.Backlog,
		queue:  make([]*connState, 0, cfg.Backlog),
	}
	l, err := stack.Listen(port, lsn)
	if err != nil {
		return nil, err
	}
	lsn.l = l
	return lsn, nil
}

// Accepted implements ListenEvents: it wires a holder to the new
// connection and appends it to the accept queue.
func (lsn *Listener) Accepted(l TCPListener, c TCPConn, err error) {
	if err != nil || c == nil {
		return
	}
	h := newConnState(c, lsn.window, StateEstablished)
	h.removeFn = lsn.unlink
	c.SetEvents(h)
	lsn.mu.lock()
	full := len(lsn.queue) >= lsn.max
	if !full {
		lsn.queue = append(lsn.queue, h)
	}
	lsn.mu.unlock()
	if full {
		h.teardown(false)
	}
}

var _ ListenEvents = (*Listener)(nil)

// unlink removes a holder destroyed in place (stack error before
// accept) from the queue.
func (lsn *Listener) unlink(h *connState) {
	lsn.mu.lock()
	for i, q := range lsn.queue {
		if q == h {
			lsn.queue = append(lsn.queue[:i], lsn.queue[i+1:]...)
			break
		}
	}
	lsn.mu.unlock()
}

// Accept removes the oldest established connection from the queue and
// transfers ownership to the returned client. On an empty queue it
// returns an empty, invalid socket — not an error; check Valid.
func (lsn *Listener) Accept() *Client {
	lsn.mu.lock()
	if len(lsn.queue) == 0 {
		lsn.mu.unlock()
		return &Client{}
	}
	h := lsn.queue[0]
	lsn.queue = append(lsn.queue[:0], lsn.queue[1:]...)
	h.removeFn = nil
	lsn.mu.unlock()
	return newAcceptedClient(h)
}

// Available returns a client for the first queued connection with
// unread bytes, not necessarily the oldest: an idle early connection
// must not hide data on a later one. Ownership transfers to the
// returned client. Returns an empty socket when none has data.
func (lsn *Listener) Available() *Client {
	lsn.mu.lock()
	pending := append([]*connState(nil), lsn.queue...)
	lsn.mu.unlock()
	for _, h := range pending {
		if h.available() > 0 {
			lsn.mu.lock()
			found := false
			for i, q := range lsn.queue {
				if q == h {
					lsn.queue = append(lsn.queue[:i], lsn.queue[i+1:]...)
					found = true
					break
				}
			}
			lsn.mu.unlock()
			if found {
				h.removeFn = nil
				return newAcceptedClient(h)
			}
		}
	}
	return &Client{}
}

// Len returns the number of connections awaiting Accept.
func (lsn *Listener) Len() int {
	lsn.mu.lock()
	n := len(lsn.queue)
	lsn.mu.unlock()
	return n
}

// Close stops listening and aborts every queued, unaccepted
// connection. Accepted clients are unaffected.
func (lsn *Listener) Close() error {
	lsn.mu.lock()
	pending := append([]*connState(nil), lsn.queue...)
	lsn.queue = lsn.queue[:0]
	lsn.mu.unlock()
	for _, h := range pending {
		h.removeFn = nil
		h.teardown(false)
	}
	if lsn.l == nil {
		return ErrClosed
	}
	lsn.l.SetEvents(nil)
	err := lsn.l.Close()
	lsn.l = nil
	return err
}
