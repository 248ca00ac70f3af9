package sock

import (
	"net/netip"
)

// fakeStack is a scripted protocol stack: tests drive the callback
// side by invoking events on the handles it creates, exactly the way
// the real stack would from the polling context.
type fakeStack struct {
	conns     []*fakeConn
	listeners []*fakeListener
	udps      []*fakeUDP

	connectErr error
	listenErr  error
	openErr    error
	sendFree   uint16 // initial send buffer space of new connections

	// connectHook, when set, runs inside Connect before it returns,
	// mimicking a stack that completes or refuses the attempt
	// synchronously from within the call.
	connectHook func(*fakeConn)
}

func newFakeStack() *fakeStack { return &fakeStack{sendFree: 2048} }

func (s *fakeStack) Connect(remote netip.AddrPort, ev TCPEvents) (TCPConn, error) {
	if s.connectErr != nil {
		return nil, s.connectErr
	}
	c := &fakeConn{ev: ev, sendFree: s.sendFree}
	s.conns = append(s.conns, c)
	if s.connectHook != nil {
		s.connectHook(c)
	}
	return c, nil
}

func (s *fakeStack) Listen(port uint16, ev ListenEvents) (TCPListener, error) {
	if s.listenErr != nil {
		return nil, s.listenErr
	}
	l := &fakeListener{ev: ev}
	s.listeners = append(s.listeners, l)
	return l, nil
}

func (s *fakeStack) OpenUDP(port uint16, ev UDPEvents) (UDPConn, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	u := &fakeUDP{ev: ev}
	s.udps = append(s.udps, u)
	return u, nil
}

var _ Stack = (*fakeStack)(nil)

// fakeConn records handle operations in order, so tests can assert
// the disassociate-before-release teardown sequence.
type fakeConn struct {
	ev       TCPEvents
	sendFree uint16
	written  []byte
	acked    int
	ops      []string
	closed   bool
	aborted  bool
	closeErr error
}

func (c *fakeConn) SetEvents(ev TCPEvents) {
	c.ev = ev
	if ev == nil {
		c.ops = append(c.ops, "setevents-nil")
	}
}

func (c *fakeConn) SendBufferFree() uint16 { return c.sendFree }

func (c *fakeConn) Write(p []byte, flags WriteFlags) (int, error) {
	c.written = append(c.written, p...)
	c.sendFree -= uint16(len(p))
	return len(p), nil
}

func (c *fakeConn) AckConsumed(n int) { c.acked += n }

func (c *fakeConn) Close() error {
	c.ops = append(c.ops, "close")
	c.closed = true
	return c.closeErr
}

func (c *fakeConn) Abort() {
	c.ops = append(c.ops, "abort")
	c.aborted = true
}

var _ TCPConn = (*fakeConn)(nil)

// deliver pushes inbound payload through the registered sink like the
// stack would on segment arrival.
func (c *fakeConn) deliver(data []byte) RecvResult {
	if c.ev == nil {
		return RecvConsumed
	}
	return c.ev.Received(c, data)
}

type fakeListener struct {
	ev     ListenEvents
	closed bool
}

func (l *fakeListener) SetEvents(ev ListenEvents) { l.ev = ev }
func (l *fakeListener) Close() error              { l.closed = true; return nil }

var _ TCPListener = (*fakeListener)(nil)

// accept simulates an inbound handshake completing.
func (l *fakeListener) accept(c *fakeConn) {
	if l.ev != nil {
		l.ev.Accepted(l, c, nil)
	}
}

type fakeUDP struct {
	ev     UDPEvents
	sent   [][]byte
	to     []netip.AddrPort
	closed bool
}

func (u *fakeUDP) SetEvents(ev UDPEvents) { u.ev = ev }

func (u *fakeUDP) WriteTo(p []byte, to netip.AddrPort) (int, error) {
	u.sent = append(u.sent, append([]byte(nil), p...))
	u.to = append(u.to, to)
	return len(p), nil
}

func (u *fakeUDP) Close() error { u.closed = true; return nil }

var _ UDPConn = (*fakeUDP)(nil)

// deliver pushes one inbound datagram through the registered sink.
func (u *fakeUDP) deliver(payload []byte, from netip.AddrPort, ts uint32) {
	if u.ev != nil {
		u.ev.Datagram(u, payload, from, ts)
	}
}
