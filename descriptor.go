package enet

import "sync/atomic"

// Buffer descriptor bit layout matching the ENET enhanced (32-byte)
// buffer descriptors of the i.MX RT10xx family. The first long word
// packs the 16-bit control/status flags and the 16-bit data length;
// ownership of a descriptor is handed between hardware and software
// through the EMPTY (RX) and READY (TX) bits of that word, so the
// driver accesses it as a single atomic 32-bit quantity.

// RX descriptor control/status flags (first halfword).
const (
	rxbdEmpty           uint16 = 0x8000 // E: hardware owns the descriptor
	rxbdSoftOwn1        uint16 = 0x4000 // RO1: reserved for software use
	rxbdWrap            uint16 = 0x2000 // W: last descriptor of the ring
	rxbdSoftOwn2        uint16 = 0x1000 // RO2: reserved for software use
	rxbdLast            uint16 = 0x0800 // L: last descriptor of the frame
	rxbdMiss            uint16 = 0x0100 // M: promiscuous-only match
	rxbdBroadcast       uint16 = 0x0080 // BC
	rxbdMulticast       uint16 = 0x0040 // MC
	rxbdLengthViolation uint16 = 0x0020 // LG: frame length violation
	rxbdNonOctet        uint16 = 0x0010 // NO: non-octet aligned frame
	rxbdCRCError        uint16 = 0x0004 // CR: CRC or frame error
	rxbdOverrun         uint16 = 0x0002 // OV: FIFO overrun
	rxbdTruncated       uint16 = 0x0001 // TR: frame truncated (>2047 B)

	rxbdErrMask = rxbdLengthViolation | rxbdNonOctet | rxbdCRCError | rxbdOverrun | rxbdTruncated
)

// RX descriptor extended flags (second long word, enhanced descriptors).
const (
	rxbdxMACError      uint32 = 1 << 31 // ME
	rxbdxPHYError      uint32 = 1 << 26 // PE
	rxbdxCollision     uint32 = 1 << 25 // CE
	rxbdxUnicast       uint32 = 1 << 24 // UC
	rxbdxInterrupt     uint32 = 1 << 23 // INT: generate RXB/RXF interrupt
	rxbdxICMPChecksum  uint32 = 1 << 5  // ICE: ICMP checksum error
	rxbdxProtoChecksum uint32 = 1 << 4  // PCR: protocol checksum error
	rxbdxVLAN          uint32 = 1 << 2  // VPCP valid
	rxbdxIPv6          uint32 = 1 << 1
	rxbdxFragment      uint32 = 1 << 0
)

// TX descriptor control/status flags (first halfword).
const (
	txbdReady     uint16 = 0x8000 // R: hardware owns the descriptor
	txbdSoftOwn1  uint16 = 0x4000 // TO1: reserved for software use
	txbdWrap      uint16 = 0x2000 // W: last descriptor of the ring
	txbdSoftOwn2  uint16 = 0x1000 // TO2: reserved for software use
	txbdLast      uint16 = 0x0800 // L: last descriptor of the frame
	txbdAppendCRC uint16 = 0x0400 // TC: hardware appends the FCS
	txbdBadCRC    uint16 = 0x0200 // ABC: append bad CRC (legacy)
)

// TX descriptor extended flags (second long word, enhanced descriptors).
const (
	txbdxInterrupt     uint32 = 1 << 30 // INT: generate TXB/TXF interrupt
	txbdxTimestamp     uint32 = 1 << 29 // TS: capture 1588 timestamp
	txbdxProtoChecksum uint32 = 1 << 28 // PINS: insert protocol checksum
	txbdxIPChecksum    uint32 = 1 << 27 // IINS: insert IP header checksum
	txbdxError         uint32 = 1 << 15 // TXE: transmit error occurred
	txbdxUnderflow     uint32 = 1 << 13 // UE
	txbdxExcessCollide uint32 = 1 << 12 // EE
	txbdxFrameError    uint32 = 1 << 11 // FE
	txbdxLateCollide   uint32 = 1 << 10 // LCE
	txbdxOverflow      uint32 = 1 << 9  // OE
	txbdxTimestampErr  uint32 = 1 << 8  // TSE
)

// Descriptor is a single RX or TX buffer descriptor. The control word
// (flags+length) transfers ownership between the driver and the MAC:
// while EMPTY (RX) or READY (TX) is set the hardware owns the buffer
// and software must not touch it, and vice versa.
type Descriptor struct {
	ctrl   atomic.Uint32 // flags<<16 | length
	xflags atomic.Uint32 // extended control/status
	tstamp atomic.Uint32 // IEEE 1588 timestamp, written on completion
	buf    []byte
}

// LoadCtrl atomically reads the descriptor flags and data length with
// acquire semantics. Hardware-side implementations and the driver both
// go through here so ownership handoff is torn-read free.
func (d *Descriptor) LoadCtrl() (flags uint16, length int) {
	v := d.ctrl.Load()
	return uint16(v >> 16), int(uint16(v))
}

// StoreCtrl atomically writes flags and length with release semantics.
// Writing a flags value containing EMPTY or READY hands the buffer to
// the hardware; the caller must be done with the buffer beforehand.
func (d *Descriptor) StoreCtrl(flags uint16, length int) {
	d.ctrl.Store(uint32(flags)<<16 | uint32(uint16(length)))
}

// Buffer returns the DMA buffer backing this descriptor. Only the
// current owner of the descriptor may access it.
func (d *Descriptor) Buffer() []byte { return d.buf }

// Status returns the extended status word.
func (d *Descriptor) Status() uint32 { return d.xflags.Load() }

// SetStatus writes the extended status word. Used by hardware-side
// implementations to report completion status.
func (d *Descriptor) SetStatus(x uint32) { d.xflags.Store(x) }

// Timestamp returns the capture timestamp of the last completed
// operation on this descriptor.
func (d *Descriptor) Timestamp() uint32 { return d.tstamp.Load() }

// SetTimestamp records the completion timestamp.
func (d *Descriptor) SetTimestamp(t uint32) { d.tstamp.Store(t) }
