// stress drives a device running the enet socket layer from the wired
// side of the cable. The device is expected to run an echo service
// (TCP and UDP on the same port): every pattern verifies behavior by
// reading its own bytes back, so the tool reports correctness, not
// just survival.
//
// Patterns target the distinct parts of the connection machinery: the
// bounded accept backlog, the receive-window retry path, abort
// recovery and the bounded UDP queue.
//
// Usage:
//
//	go run ./cmd/stress <addr>
//	go run ./cmd/stress -n 100 -c 8 -pattern window-stall 192.168.1.99:7
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	dialTimeout = 2 * time.Second
	ioDeadline  = 8 * time.Second
)

type counters struct {
	dialed     atomic.Int64
	echoed     atomic.Int64
	failed     atomic.Int64
	mismatched atomic.Int64
	stalls     atomic.Int64
	resets     atomic.Int64
	dropped    atomic.Int64
	bytes      atomic.Int64
}

func (c *counters) String() string {
	return fmt.Sprintf("dialed=%d echoed=%d failed=%d mismatched=%d stalls=%d resets=%d dropped=%d bytes=%d",
		c.dialed.Load(), c.echoed.Load(), c.failed.Load(), c.mismatched.Load(),
		c.stalls.Load(), c.resets.Load(), c.dropped.Load(), c.bytes.Load())
}

var patterns = []struct {
	name string
	desc string
	fn   func(addr string, c *counters, iters, workers int)
}{
	{"backlog-probe", "simultaneous connections overflowing the accept backlog; overflow must be reset, the rest served", backlogProbe},
	{"window-stall", "unread echo filling the device receive window until sends stall, then draining and verifying", windowStall},
	{"reset-recovery", "RST at rotating lifecycle points, each followed by a clean round trip", resetRecovery},
	{"udp-flood", "numbered datagram bursts against the bounded queue; survivors must be the newest", udpFlood},
}

func main() {
	iters := flag.Int("n", 50, "iterations per pattern")
	workers := flag.Int("c", 5, "concurrent workers (backlog-probe: connections per round)")
	sel := flag.String("pattern", "all", "pattern to run, or all")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <addr>\n\nVerify a device echo service under load.\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nPatterns:\n")
		for _, p := range patterns {
			fmt.Fprintf(os.Stderr, "  %-15s %s\n", p.name, p.desc)
		}
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	addr := flag.Arg(0)
	if !strings.Contains(addr, ":") {
		addr += ":7"
	}

	// One clean round trip before applying load, so a dead target or a
	// non-echo service is reported as such and not as pattern failures.
	if err := selfTest(addr); err != nil {
		fmt.Fprintf(os.Stderr, "echo self-test against %s failed: %v\n", addr, err)
		os.Exit(1)
	}
	fmt.Printf("target: %s (echo verified)\n\n", addr)

	start := time.Now()
	ran := 0
	for _, p := range patterns {
		if *sel != "all" && *sel != p.name {
			continue
		}
		ran++
		fmt.Printf("--- %s (n=%d c=%d) ---\n", p.name, *iters, *workers)
		var c counters
		p.fn(addr, &c, *iters, *workers)
		fmt.Printf("    %s\n\n", &c)
	}
	if ran == 0 {
		fmt.Fprintf(os.Stderr, "unknown pattern: %s\n", *sel)
		os.Exit(1)
	}
	fmt.Printf("done in %s\n", time.Since(start).Round(time.Millisecond))
}

func selfTest(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	return roundTrip(conn, []byte("ping"))
}

// roundTrip writes payload and reads the same number of bytes back,
// failing on any difference.
func roundTrip(conn net.Conn, payload []byte) error {
	conn.SetDeadline(time.Now().Add(ioDeadline))
	if _, err := conn.Write(payload); err != nil {
		return err
	}
	back := make([]byte, len(payload))
	if _, err := io.ReadFull(conn, back); err != nil {
		return err
	}
	if !bytes.Equal(payload, back) {
		return fmt.Errorf("echo mismatch: sent %d bytes, got different content", len(payload))
	}
	return nil
}

// backlogProbe opens `workers` connections at once, then tags each
// with a distinct byte and waits for its echo. Connections beyond the
// device's accept backlog must be reset promptly; every accepted one
// must be served. Repeats for `iters` rounds so freed backlog slots
// are reused.
func backlogProbe(addr string, c *counters, iters, workers int) {
	for round := 0; round < iters; round++ {
		conns := make([]net.Conn, 0, workers)
		for i := 0; i < workers; i++ {
			c.dialed.Add(1)
			conn, err := net.DialTimeout("tcp", addr, dialTimeout)
			if err != nil {
				c.failed.Add(1)
				continue
			}
			conns = append(conns, conn)
		}
		var wg sync.WaitGroup
		for i, conn := range conns {
			wg.Add(1)
			go func(i int, conn net.Conn) {
				defer wg.Done()
				defer conn.Close()
				tag := []byte{byte(round), byte(i)}
				err := roundTrip(conn, tag)
				switch {
				case err == nil:
					c.echoed.Add(1)
					c.bytes.Add(int64(len(tag)))
				case isReset(err):
					// Aborted by the listener: the backlog was full.
					c.resets.Add(1)
				default:
					c.failed.Add(1)
				}
			}(i, conn)
		}
		wg.Wait()
	}
}

// windowStall pours data into a connection without reading the echo.
// The device's socket buffer fills, its stack withholds acknowledgment
// and our send eventually stalls. The pattern then drains everything
// it managed to send and verifies the echoed stream is byte-identical.
func windowStall(addr string, c *counters, iters, workers int) {
	// Larger than any sane receive window on an embedded target.
	payload := make([]byte, 16*1024)
	for i := range payload {
		payload[i] = byte(i>>8) ^ byte(i)
	}
	forEach(iters, workers, func(int) {
		c.dialed.Add(1)
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			c.failed.Add(1)
			return
		}
		defer conn.Close()

		sent := 0
		for sent < len(payload) {
			chunk := payload[sent:min(sent+512, len(payload))]
			conn.SetWriteDeadline(time.Now().Add(300 * time.Millisecond))
			n, err := conn.Write(chunk)
			sent += n
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					// The window closed under us. Expected: drain below
					// reopens it on the device side.
					c.stalls.Add(1)
					break
				}
				c.failed.Add(1)
				return
			}
		}

		back := make([]byte, sent)
		conn.SetReadDeadline(time.Now().Add(ioDeadline))
		if _, err := io.ReadFull(conn, back); err != nil {
			c.failed.Add(1)
			return
		}
		if !bytes.Equal(back, payload[:sent]) {
			c.mismatched.Add(1)
			return
		}
		c.echoed.Add(1)
		c.bytes.Add(int64(sent))
	})
}

// resetRecovery aborts connections at three rotating points: before
// any data, mid-send, and mid-drain. After every abort it performs a
// clean round trip on a fresh connection, so a listener wedged by the
// RST shows up immediately rather than in the aggregate.
func resetRecovery(addr string, c *counters, iters, workers int) {
	payload := []byte("0123456789abcdef0123456789abcdef")
	forEach(iters, workers, func(i int) {
		c.dialed.Add(1)
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			c.failed.Add(1)
			return
		}
		conn.SetDeadline(time.Now().Add(ioDeadline))
		switch i % 3 {
		case 0:
			// Nothing sent.
		case 1:
			conn.Write(payload[:len(payload)/2])
		case 2:
			conn.Write(payload)
			io.ReadFull(conn, make([]byte, len(payload)/2))
		}
		abortConn(conn)
		c.resets.Add(1)

		c.dialed.Add(1)
		probe, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			c.failed.Add(1)
			return
		}
		defer probe.Close()
		if err := roundTrip(probe, payload); err != nil {
			c.failed.Add(1)
			return
		}
		c.echoed.Add(1)
		c.bytes.Add(int64(len(payload)))
	})
}

// udpFlood fires bursts of sequence-numbered datagrams faster than the
// device can drain, then collects the echoes. The bounded queue must
// drop the oldest of each burst: every surviving sequence number below
// the burst tail is reported as a policy violation via mismatched.
func udpFlood(addr string, c *counters, iters, workers int) {
	const burst = 24
	forEach(iters, workers, func(int) {
		c.dialed.Add(1)
		conn, err := net.Dial("udp", addr)
		if err != nil {
			c.failed.Add(1)
			return
		}
		defer conn.Close()

		buf := make([]byte, 64)
		for seq := 0; seq < burst; seq++ {
			buf[0], buf[1] = byte(seq), byte(seq>>8)
			if _, err := conn.Write(buf); err != nil {
				c.failed.Add(1)
				return
			}
		}

		var got []int
		reply := make([]byte, 128)
		for {
			conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			n, err := conn.Read(reply)
			if err != nil {
				break
			}
			if n >= 2 {
				got = append(got, int(reply[0])|int(reply[1])<<8)
				c.bytes.Add(int64(n))
			}
		}
		c.echoed.Add(int64(len(got)))
		c.dropped.Add(int64(burst - len(got)))
		// Oldest-first eviction keeps the tail of the burst: any
		// survivor older than the drop point breaks the policy.
		tail := burst - len(got)
		for _, seq := range got {
			if seq < tail {
				c.mismatched.Add(1)
			}
		}
	})
}

// abortConn closes with linger zero so the kernel emits RST, not FIN.
func abortConn(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetLinger(0)
	}
	conn.Close()
}

// isReset reports whether err looks like the peer reset the
// connection rather than timing out or erroring locally.
func isReset(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "reset") || strings.Contains(s, "EOF")
}

// forEach distributes iteration indexes over a fixed worker pool.
func forEach(iters, workers int, fn func(i int)) {
	work := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				fn(i)
			}
		}()
	}
	for i := range iters {
		work <- i
	}
	close(work)
	wg.Wait()
}
