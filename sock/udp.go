package sock

import (
	"net/netip"
	"sync/atomic"
)

// MaxDatagram is the largest datagram payload a UDP socket queues:
// Ethernet MTU minus IPv4 and UDP headers.
const MaxDatagram = 1500 - 20 - 8

// EvictPolicy selects what happens when a datagram arrives on a full
// receive queue. UDP has no flow control, so one side always loses.
type EvictPolicy uint8

const (
	// EvictOldest drops the oldest queued datagram to make room for
	// the arriving one (newest wins). This is the default.
	EvictOldest EvictPolicy = iota
	// DropIncoming drops the arriving datagram (oldest wins).
	DropIncoming
)

// UDPConfig holds the parameters for a datagram socket.
type UDPConfig struct {
	// QueueCap bounds the receive queue in datagrams. Default 4.
	QueueCap int
	// Policy is the full-queue eviction policy.
	Policy EvictPolicy
}

type datagram struct {
	payload   []byte // slot-owned storage, len = queued size
	from      netip.AddrPort
	timestamp uint32
}

// UDP is a poll-based datagram socket with a bounded receive queue.
// Datagrams are queued and consumed wholesale, never partially.
// Queue slots are preallocated: steady-state reception allocates
// nothing.
type UDP struct {
	pc UDPConn

	mu    spinLock
	slots []datagram
	head  int // index of the oldest queued datagram
	count int
	// cur is the datagram most recently popped by Receive, copied out
	// of its slot so eviction cannot overwrite it mid-read.
	cur    datagram
	curbuf []byte
	curOK  bool
	cursor int

	policy  EvictPolicy
	dropped atomic.Uint32
	total   atomic.Uint32
}

// OpenUDP opens a datagram socket bound to the given local port.
func OpenUDP(stack Stack, port uint16, cfg UDPConfig) (*UDP, error) {
	if stack == nil {
		return nil, ErrInvalidAddress
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = 4
	}
	u := &UDP{
		slots:  make([]datagram, cfg.QueueCap),
		curbuf: make([]byte, MaxDatagram),
		policy: cfg.Policy,
	}
	for i := range u.slots {
		u.slots[i].payload = make([]byte, 0, MaxDatagram)
	}
	pc, err := stack.OpenUDP(port, u)
	if err != nil {
		return nil, err
	}
	u.pc = pc
	return u, nil
}

// Datagram implements UDPEvents: it queues one arriving datagram,
// applying the eviction policy when the queue is full. The critical
// section is copy-only.
func (u *UDP) Datagram(pc UDPConn, payload []byte, from netip.AddrPort, timestamp uint32) {
	u.total.Add(1)
	if len(payload) > MaxDatagram {
		u.dropped.Add(1)
		return
	}
	u.mu.lock()
	evicted := false
	if u.count == len(u.slots) {
		if u.policy == DropIncoming {
			u.mu.unlock()
			u.dropped.Add(1)
			return
		}
		// Evict the oldest queued datagram.
		u.head++
		if u.head == len(u.slots) {
			u.head = 0
		}
		u.count--
		evicted = true
	}
	tail := u.head + u.count
	if tail >= len(u.slots) {
		tail -= len(u.slots)
	}
	slot := &u.slots[tail]
	slot.payload = append(slot.payload[:0], payload...)
	slot.from = from
	slot.timestamp = timestamp
	u.count++
	u.mu.unlock()
	if evicted {
		u.dropped.Add(1)
	}
}

var _ UDPEvents = (*UDP)(nil)

// Receive pops the oldest queued datagram and returns its size, or 0
// when the queue is empty. The popped datagram is then read with Read,
// From and Timestamp until the next Receive call replaces it.
func (u *UDP) Receive() int {
	u.mu.lock()
	if u.count == 0 {
		u.curOK = false
		u.mu.unlock()
		return 0
	}
	slot := &u.slots[u.head]
	u.cur.payload = append(u.curbuf[:0], slot.payload...)
	u.cur.from = slot.from
	u.cur.timestamp = slot.timestamp
	u.head++
	if u.head == len(u.slots) {
		u.head = 0
	}
	u.count--
	u.curOK = true
	u.cursor = 0
	n := len(u.cur.payload)
	u.mu.unlock()
	return n
}

// Available returns the unread byte count of the current datagram.
func (u *UDP) Available() int {
	if !u.curOK {
		return 0
	}
	return len(u.cur.payload) - u.cursor
}

// Read copies bytes of the current datagram into p.
func (u *UDP) Read(p []byte) int {
	if !u.curOK {
		return 0
	}
	n := copy(p, u.cur.payload[u.cursor:])
	u.cursor += n
	return n
}

// From returns the source address of the current datagram.
func (u *UDP) From() netip.AddrPort {
	if !u.curOK {
		return netip.AddrPort{}
	}
	return u.cur.from
}

// Timestamp returns the receive timestamp of the current datagram.
func (u *UDP) Timestamp() uint32 {
	if !u.curOK {
		return 0
	}
	return u.cur.timestamp
}

// Queued returns the number of datagrams awaiting Receive.
func (u *UDP) Queued() int {
	u.mu.lock()
	n := u.count
	u.mu.unlock()
	return n
}

// Dropped returns the running count of datagrams lost to the full
// queue (and oversized arrivals).
func (u *UDP) Dropped() uint32 { return u.dropped.Load() }

// Total returns the running count of all datagram arrivals, queued or
// dropped.
func (u *UDP) Total() uint32 { return u.total.Load() }

// WriteTo sends one datagram to the given address.
func (u *UDP) WriteTo(p []byte, to netip.AddrPort) (int, error) {
	if u.pc == nil {
		return 0, ErrClosed
	}
	if !to.IsValid() || to.Port() == 0 {
		return 0, ErrInvalidAddress
	}
	return u.pc.WriteTo(p, to)
}

// Close disassociates the socket from the stack and releases it.
// Queued datagrams remain readable.
func (u *UDP) Close() error {
	if u.pc == nil {
		return ErrClosed
	}
	u.pc.SetEvents(nil)
	err := u.pc.Close()
	u.pc = nil
	return err
}
