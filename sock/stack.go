// Package sock bridges a callback-driven TCP/UDP protocol stack into
// buffered, poll-based socket objects: a stream client, a listening
// server with an accept queue and a datagram endpoint with a bounded
// receive queue.
//
// The protocol stack itself is a black box behind the small interfaces
// in this file. The stack invokes callbacks from the same cooperative
// execution context that polls the sockets, possibly reentrantly from
// within stack calls made by that context, so all shared buffers are
// guarded by spinlocks and single-word state uses atomics.
package sock

import (
	"errors"
	"net/netip"
)

// RecvResult is what a Received callback returns to the stack.
type RecvResult uint8

const (
	// RecvConsumed: the payload was appended; the stack may
	// acknowledge it to the peer.
	RecvConsumed RecvResult = iota
	// RecvRetry: the payload was NOT processed. The stack must
	// withhold acknowledgment and redeliver the identical payload on
	// a later callback. Consumption is all-or-nothing, so redelivery
	// is idempotent.
	RecvRetry
)

// WriteFlags modify TCPConn.Write behavior.
type WriteFlags uint8

const (
	// WriteCopy asks the stack to copy the payload so the caller's
	// buffer may be reused immediately.
	WriteCopy WriteFlags = 1 << iota
	// WriteMore hints that more data follows and transmission may be
	// coalesced.
	WriteMore
)

// TCPConn is a single TCP connection handle exposed by the protocol
// stack.
type TCPConn interface {
	// SetEvents registers the callback sink for this connection.
	// SetEvents(nil) disassociates the previous sink: after it
	// returns, no further callback fires against that sink. Callers
	// tearing a sink down must disassociate before freeing it.
	SetEvents(ev TCPEvents)
	// SendBufferFree reports how many bytes Write currently accepts.
	SendBufferFree() uint16
	// Write queues up to len(p) bytes for transmission and returns the
	// number accepted, which may be less than len(p).
	Write(p []byte, flags WriteFlags) (int, error)
	// AckConsumed returns n drained bytes to the advertised receive
	// window so the peer may send again.
	AckConsumed(n int)
	// Close starts a graceful close. An error means the stack could
	// not close gracefully; the caller should Abort.
	Close() error
	// Abort tears the connection down immediately (RST). The handle
	// is invalid afterwards.
	Abort()
}

// TCPEvents receives the stack's callbacks for one TCP connection.
type TCPEvents interface {
	// Connected reports the outcome of a connection attempt. On a
	// non-nil error the stack has already released the handle and no
	// method may be called on c afterwards.
	Connected(c TCPConn, err error)
	// Received hands inbound payload in stack-delivery order. The
	// return value controls acknowledgment; see RecvResult.
	Received(c TCPConn, data []byte) RecvResult
	// RemoteClosed reports the peer's end-of-stream marker. Buffered
	// data remains readable.
	RemoteClosed(c TCPConn)
	// Sent reports bytes acknowledged by the peer.
	Sent(c TCPConn, n int)
	// Errored reports a fatal connection error. The stack has already
	// released the handle; no method may be called on c afterwards.
	Errored(c TCPConn, err error)
}

// TCPListener is a listening socket handle exposed by the stack.
type TCPListener interface {
	// SetEvents registers (or with nil disassociates) the accept sink.
	SetEvents(ev ListenEvents)
	// Close stops listening. Established connections are unaffected.
	Close() error
}

// ListenEvents receives the stack's callbacks for a listening socket.
type ListenEvents interface {
	// Accepted hands a fully established inbound connection, or an
	// error with a nil conn when the handshake failed.
	Accepted(l TCPListener, c TCPConn, err error)
}

// UDPConn is a datagram socket handle exposed by the stack.
type UDPConn interface {
	// SetEvents registers (or with nil disassociates) the datagram sink.
	SetEvents(ev UDPEvents)
	// WriteTo sends one datagram to the given address.
	WriteTo(p []byte, to netip.AddrPort) (int, error)
	// Close releases the socket.
	Close() error
}

// UDPEvents receives the stack's callbacks for a datagram socket.
type UDPEvents interface {
	// Datagram hands one received datagram. payload is only valid for
	// the duration of the call.
	Datagram(u UDPConn, payload []byte, from netip.AddrPort, timestamp uint32)
}

// Stack is the connection factory side of the protocol stack.
type Stack interface {
	// Connect starts an outbound connection attempt. The outcome
	// arrives through ev.Connected. Fails fast on invalid address or
	// resource exhaustion; there is no retry.
	Connect(remote netip.AddrPort, ev TCPEvents) (TCPConn, error)
	// Listen opens a listening socket on the given local port.
	Listen(port uint16, ev ListenEvents) (TCPListener, error)
	// OpenUDP opens a datagram socket bound to the given local port.
	OpenUDP(port uint16, ev UDPEvents) (UDPConn, error)
}

// NopEvents is a TCPEvents that ignores every callback. Embed it or
// use it directly where no receiver is needed instead of handling nil
// sinks all over.
type NopEvents struct{}

func (NopEvents) Connected(TCPConn, error) {}
func (NopEvents) Received(TCPConn, []byte) RecvResult { return RecvConsumed }
func (NopEvents) RemoteClosed(TCPConn) {}
func (NopEvents) Sent(TCPConn, int) {}
func (NopEvents) Errored(TCPConn, error) {}

var _ TCPEvents = NopEvents{}

var (
	// ErrInvalidAddress is returned by Connect for an unusable remote
	// address.
	ErrInvalidAddress = errors.New("sock: invalid address")
	// ErrClosed is returned by operations on a closed or aborted
	// socket.
	ErrClosed = errors.New("sock: closed")
	// ErrNotConnected is returned by Write before the connection is
	// established.
	ErrNotConnected = errors.New("sock: not connected")
	// ErrAlreadyOpen is returned by Connect on a socket that already
	// holds a connection.
	ErrAlreadyOpen = errors.New("sock: already open")
)
