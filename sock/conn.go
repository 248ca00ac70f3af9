package sock

import "sync/atomic"

// State is the lifecycle state of a connection holder.
type State uint32

const (
	// StateClosed: no connection, or teardown completed.
	StateClosed State = iota
	// StateConnecting: outbound attempt in flight.
	StateConnecting
	// StateEstablished: connected, both directions open.
	StateEstablished
	// StateCloseWait: peer sent end-of-stream; buffered data remains
	// readable and the local side may still write and must still close.
	StateCloseWait
	// StateAborted: the stack reported an error or the attempt failed.
	// Buffered unread data remains drainable once; no further writes.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	case StateCloseWait:
		return "close-wait"
	case StateAborted:
		return "aborted"
	default:
		return "invalid"
	}
}

// connState holds the bridged state of one stack connection: the
// opaque handle, the window-bounded incoming buffer with its read
// cursor, the last error and a removal callback run at teardown.
//
// Exactly one socket wrapper owns a connState. The stack references it
// weakly through SetEvents; teardown disassociates that reference
// first, runs the removal callback second, and only then touches the
// handle, so no callback ever fires against a released holder.
type connState struct {
	mu  spinLock
	buf []byte // append-only until fully drained, then compacted
	// cursor is the read position within buf. Guarded by mu.
	cursor int
	// unacked counts appended bytes not yet returned to the receive
	// window via AckConsumed. Guarded by mu.
	unacked int
	window  int
	conn    TCPConn // nil once the stack released the handle
	lastErr error   // guarded by mu

	state atomic.Uint32

	// removeFn unlinks the holder from a containing queue (accept
	// queue). Cleared when ownership transfers to a Client.
	removeFn func(*connState)
}

func newConnState(conn TCPConn, window int, initial State) *connState {
	h := &connState{
		buf:    make([]byte, 0, window),
		window: window,
		conn:   conn,
	}
	h.state.Store(uint32(initial))
	return h
}

func (h *connState) State() State { return State(h.state.Load()) }

// available returns the number of unread buffered bytes.
func (h *connState) available() int {
	h.mu.lock()
	n := len(h.buf) - h.cursor
	h.mu.unlock()
	return n
}

// read copies buffered bytes into dst and advances the cursor. When
// the cursor reaches the end the buffer is compacted and the freed
// space is returned to the stack's flow-control accounting (outside
// the lock: AckConsumed may reenter the stack).
func (h *connState) read(dst []byte) int {
	h.mu.lock()
	n := copy(dst, h.buf[h.cursor:])
	h.cursor += n
	ack, c := 0, h.conn
	if h.cursor == len(h.buf) && h.cursor > 0 {
		h.buf = h.buf[:0]
		h.cursor = 0
		ack = h.unacked
		h.unacked = 0
	}
	h.mu.unlock()
	if ack > 0 && c != nil {
		c.AckConsumed(ack)
	}
	return n
}

// peek copies buffered bytes into dst without consuming them.
func (h *connState) peek(dst []byte) int {
	h.mu.lock()
	n := copy(dst, h.buf[h.cursor:])
	h.mu.unlock()
	return n
}

func (h *connState) err() error {
	h.mu.lock()
	err := h.lastErr
	h.mu.unlock()
	return err
}

// teardown disassociates the stack-side callback reference, runs the
// removal callback and then closes the handle. graceful attempts an
// orderly close and force-aborts when the stack reports it cannot.
// Buffered unread data survives teardown and may be drained.
func (h *connState) teardown(graceful bool) error {
	h.mu.lock()
	c := h.conn
	h.conn = nil
	rm := h.removeFn
	h.removeFn = nil
	h.mu.unlock()
	if c != nil {
		// Order matters: no callback may fire against h once the
		// handle outlives it.
		c.SetEvents(nil)
	}
	if rm != nil {
		rm(h)
	}
	h.state.Store(uint32(StateClosed))
	if c == nil {
		return nil
	}
	if !graceful {
		c.Abort()
		return nil
	}
	err := c.Close()
	if err != nil {
		c.Abort()
	}
	return err
}

// detach records that the stack released the handle (error path):
// no stack method may be called anymore, but buffered data stays
// drainable. Runs the removal callback so containers drop the entry.
func (h *connState) detach(err error) {
	h.mu.lock()
	h.conn = nil
	h.lastErr = err
	rm := h.removeFn
	h.removeFn = nil
	h.state.Store(uint32(StateAborted))
	h.mu.unlock()
	if rm != nil {
		rm(h)
	}
}

// TCPEvents implementation. These run from the stack's execution
// context, possibly reentrantly from within stack calls made by the
// polling loop.

func (h *connState) Connected(c TCPConn, err error) {
	if err != nil {
		h.detach(err)
		return
	}
	h.state.CompareAndSwap(uint32(StateConnecting), uint32(StateEstablished))
}

func (h *connState) Received(c TCPConn, data []byte) RecvResult {
	if len(data) == 0 {
		return RecvConsumed
	}
	h.mu.lock()
	if len(h.buf)+len(data) > h.window {
		// Consumer has not drained enough. Withhold acknowledgment;
		// the stack redelivers the identical payload later. Nothing
		// was appended, so redelivery is idempotent.
		h.mu.unlock()
		return RecvRetry
	}
	h.buf = append(h.buf, data...)
	h.unacked += len(data)
	h.mu.unlock()
	return RecvConsumed
}

func (h *connState) RemoteClosed(c TCPConn) {
	h.state.CompareAndSwap(uint32(StateEstablished), uint32(StateCloseWait))
}

func (h *connState) Sent(c TCPConn, n int) {
	// Write is bounded by SendBufferFree, so acknowledgment progress
	// needs no bookkeeping here.
}

func (h *connState) Errored(c TCPConn, err error) {
	h.detach(err)
}

var _ TCPEvents = (*connState)(nil)
