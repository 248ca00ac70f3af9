package enet

import "sync/atomic"

// stats are the driver's running counters. All fields are atomic so
// they may be read while the polling loop and ISR run.
type stats struct {
	rxFrames     atomic.Uint32
	rxBytes      atomic.Uint64
	rxCRCErrors  atomic.Uint32
	rxLengthErrs atomic.Uint32
	rxOverruns   atomic.Uint32
	rxTruncated  atomic.Uint32
	rxDropped    atomic.Uint32 // oversize, zero-length and fragment drops
	txFrames     atomic.Uint32
	txBytes      atomic.Uint64
	txWouldBlock atomic.Uint32
}

// StatsSnapshot is a point-in-time copy of the driver counters.
type StatsSnapshot struct {
	RxFrames     uint32
	RxBytes      uint64
	RxCRCErrors  uint32
	RxLengthErrs uint32
	RxOverruns   uint32
	RxTruncated  uint32
	RxDropped    uint32
	TxFrames     uint32
	TxBytes      uint64
	TxWouldBlock uint32
}

// RxErrors returns the sum of all frame-level receive error counters.
func (s StatsSnapshot) RxErrors() uint32 {
	return s.RxCRCErrors + s.RxLengthErrs + s.RxOverruns + s.RxTruncated
}

func (s *stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		RxFrames:     s.rxFrames.Load(),
		RxBytes:      s.rxBytes.Load(),
		RxCRCErrors:  s.rxCRCErrors.Load(),
		RxLengthErrs: s.rxLengthErrs.Load(),
		RxOverruns:   s.rxOverruns.Load(),
		RxTruncated:  s.rxTruncated.Load(),
		RxDropped:    s.rxDropped.Load(),
		TxFrames:     s.txFrames.Load(),
		TxBytes:      s.txBytes.Load(),
		TxWouldBlock: s.txWouldBlock.Load(),
	}
}

// countRxError increments the counter matching the descriptor error
// bits. A descriptor may carry several error bits at once.
func (s *stats) countRxError(flags uint16) {
	if flags&rxbdCRCError != 0 || flags&rxbdNonOctet != 0 {
		s.rxCRCErrors.Add(1)
	}
	if flags&rxbdLengthViolation != 0 {
		s.rxLengthErrs.Add(1)
	}
	if flags&rxbdOverrun != 0 {
		s.rxOverruns.Add(1)
	}
	if flags&rxbdTruncated != 0 {
		s.rxTruncated.Add(1)
	}
}
