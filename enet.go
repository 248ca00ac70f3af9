// Package enet provides a driver for ENET-class Ethernet MACs as found
// on the i.MX RT10xx family of microcontrollers.
//
// The driver moves raw Ethernet frames between hardware DMA and
// software through fixed-size buffer descriptor rings, detects link
// presence, speed and duplex over a clause 22 MDIO management bus, and
// filters frames with the MAC's hash-based address tables. It assumes
// a single cooperative polling context augmented by hardware
// interrupts: interrupts only set flags, the polling loop does all
// buffer work. Hardware access goes through the HW interface so the
// same core runs on a memory-mapped MAC, on the PIO-based soft MAC for
// RP2 chips, or on a simulated backend in tests.
package enet

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/soypat/lneto/phy"
)

const (
	// MTU is the Ethernet payload MTU.
	MTU = 1500
	// MaxFrameLen is the maximum frame length the MAC accepts,
	// including a VLAN tag and the FCS.
	MaxFrameLen = 1522
	// minFrameLen is destination+source MAC plus EtherType.
	minFrameLen = 14

	defaultRxRing  = 12
	defaultTxRing  = 10
	defaultBufSize = 1536 // MaxFrameLen rounded up to a 64-byte multiple
)

// Config holds the parameters for initializing a Device.
type Config struct {
	// MAC is the station address programmed into the unicast filter.
	MAC [6]byte
	// PHYAddr is the MDIO address of the PHY (0-31).
	PHYAddr uint8
	// Advertisement is the auto-negotiation advertisement. Required
	// when the backend supports link detection.
	Advertisement phy.ANAR
	// RxRing and TxRing are descriptor counts. Defaults 12 and 10.
	RxRing, TxRing int
	// MaxRxPerPoll bounds descriptors examined per RecvFrame call so a
	// fast peer cannot starve other polling work. Default: RxRing.
	MaxRxPerPoll int
	// Promiscuous disables address filtering at init.
	Promiscuous bool
	// Logger receives driver diagnostics. Nil disables logging.
	Logger *slog.Logger
}

// Device is an ENET MAC driver instance. The zero value is unusable;
// call Configure first. Methods are safe to call from the polling
// context while ISR runs from interrupt context.
type Device struct {
	hw      HW
	caps    Capabilities
	probed  bool // Probe ran; hw is non-nil and answered
	present bool // Probe succeeded; cached, never re-probed
	log     *slog.Logger

	mac          [6]byte
	rx           *RxRing
	tx           *TxRing
	maxRxPerPoll int
	pumpbuf      []byte

	events atomic.Uint32 // Event bits set by ISR, drained by polls

	phydev phy.Device
	lm     linkMonitor
	filter macFilter
	stats  stats
}

// Configure initializes the device: it probes the hardware once,
// allocates the descriptor rings, programs the station address and
// brings up the PHY. Hardware absence is detected here and cached; all
// later operations fail fast with ErrNoHardware instead of re-probing.
func (d *Device) Configure(hw HW, cfg Config) (err error) {
	if hw == nil {
		return errInvalidConfig
	}
	if cfg.RxRing == 0 {
		cfg.RxRing = defaultRxRing
	}
	if cfg.TxRing == 0 {
		cfg.TxRing = defaultTxRing
	}
	if cfg.RxRing < 1 || cfg.TxRing < 1 || cfg.PHYAddr > 31 {
		return errInvalidConfig
	}
	if cfg.MaxRxPerPoll == 0 {
		cfg.MaxRxPerPoll = cfg.RxRing
	}
	d.hw = hw
	d.log = cfg.Logger
	d.probed = true
	d.caps, err = hw.Probe()
	if err != nil {
		d.present = false
		d.logerr("Configure:probe", err)
		return ErrNoHardware
	}
	d.present = true

	d.rx = newRxRing(cfg.RxRing, defaultBufSize)
	d.tx = newTxRing(cfg.TxRing, defaultBufSize)
	d.maxRxPerPoll = cfg.MaxRxPerPoll
	d.pumpbuf = make([]byte, MaxFrameLen)
	d.events.Store(0)
	err = hw.Attach(d.rx, d.tx, d.isr)
	if err != nil {
		return err
	}

	d.mac = cfg.MAC
	if d.caps.SetMACAddress {
		hw.SetMACAddress(cfg.MAC)
	}
	d.filter = macFilter{}
	hw.SetHashFilter(HashUnicast, 0)
	hw.SetHashFilter(HashMulticast, 0)
	if cfg.Promiscuous {
		err = d.SetPromiscuous(true)
		if err != nil {
			return err
		}
	}

	if d.caps.LinkDetection {
		if cfg.Advertisement == 0 {
			return errInvalidConfig
		}
		err = d.setupPHY(cfg.PHYAddr, cfg.Advertisement)
		if err != nil {
			return err
		}
		d.lm.reset(cfg.PHYAddr, cfg.Advertisement)
	}
	d.hw.KickRx()
	return nil
}

// setupPHY resets the PHY and starts auto-negotiation. Uses a bounded
// blocking MDIO adapter; only acceptable at Configure time.
func (d *Device) setupPHY(phyaddr uint8, ad phy.ANAR) error {
	bus := &pollBus{hw: d.hw, maxWait: 10 * time.Millisecond}
	d.phydev.ConfigureAs22(bus, phyaddr)
	err := d.phydev.ResetPHY()
	if err != nil {
		return err
	}
	err = d.phydev.SetAdvertisement(ad)
	if err != nil {
		return err
	}
	return d.phydev.EnableAutoNegotiation(true)
}

// Close detaches the hardware and releases the rings. The device may
// be configured again afterwards.
func (d *Device) Close() error {
	if !d.ready() {
		return d.stateErr()
	}
	err := d.hw.Detach()
	d.rx = nil
	d.tx = nil
	d.present = false
	d.probed = false
	return err
}

// Capabilities returns what the probed backend supports.
func (d *Device) Capabilities() Capabilities { return d.caps }

// HardwareAddr returns the programmed station address.
func (d *Device) HardwareAddr() [6]byte { return d.mac }

// SetHardwareAddr reprograms the station address.
func (d *Device) SetHardwareAddr(addr [6]byte) error {
	if !d.ready() {
		return d.stateErr()
	}
	if !d.caps.SetMACAddress {
		return errInvalidConfig
	}
	d.mac = addr
	d.hw.SetMACAddress(addr)
	return nil
}

// ISR is the interrupt service entry point. Wire it to the MAC and PHY
// interrupt vectors. It only sets flags: no buffer copying, no
// allocation, bounded and predictable duration.
func (d *Device) ISR(ev Event) {
	d.events.Or(uint32(ev))
}

// isr is the callback handed to HW.Attach.
func (d *Device) isr(ev Event) { d.ISR(ev) }

// Pending reports whether the ISR flagged input since the last drain.
// Cheap enough to gate a polling loop on.
func (d *Device) Pending() bool {
	return Event(d.events.Load())&(EventRxFrame|EventLinkChange) != 0
}

// RecvFrame copies the next error-free received frame into dst and
// returns its length, re-arming the descriptor before returning so the
// hardware may immediately reuse the ring buffer. Descriptors with
// error bits set are reclaimed and counted, never surfaced. Returns
// (0, nil) when nothing is pending. At most MaxRxPerPoll descriptors
// are examined per call; call repeatedly to drain a busy ring.
func (d *Device) RecvFrame(dst []byte) (int, error) {
	if !d.ready() {
		return 0, d.stateErr()
	}
	d.events.And(^uint32(EventRxFrame))
	for iter := 0; iter < d.maxRxPerPoll; iter++ {
		desc, ok := d.rx.nextOwned()
		if !ok {
			return 0, nil
		}
		flags, n := desc.LoadCtrl()
		switch {
		case flags&rxbdErrMask != 0:
			d.stats.countRxError(flags)
		case flags&rxbdLast == 0:
			// Frame spans descriptors: larger than one buffer, drop.
			d.stats.rxDropped.Add(1)
		case n == 0 || n > MaxFrameLen:
			d.stats.rxDropped.Add(1)
		default:
			if n > len(dst) {
				// Keep the frame for a retry with a larger buffer.
				d.events.Or(uint32(EventRxFrame))
				return 0, ErrShortBuffer
			}
			// Copy out before re-arming: once EMPTY is set the
			// hardware may overwrite the ring buffer at any moment.
			n = copy(dst[:n], desc.Buffer()[:n])
			d.stats.rxFrames.Add(1)
			d.stats.rxBytes.Add(uint64(n))
			d.rx.rearm()
			d.hw.KickRx()
			return n, nil
		}
		d.rx.rearm()
		d.hw.KickRx()
	}
	// Budget exhausted with descriptors possibly still pending.
	d.events.Or(uint32(EventRxFrame))
	return 0, nil
}

// PumpInput is the main-loop input pump: it drains pending frames into
// fn, bounded per call. fn's argument is only valid during the call.
func (d *Device) PumpInput(fn func(frame []byte)) (frames int, err error) {
	if fn == nil {
		return 0, errInvalidConfig
	}
	for frames < d.maxRxPerPoll {
		n, err := d.RecvFrame(d.pumpbuf)
		if err != nil || n == 0 {
			return frames, err
		}
		frames++
		fn(d.pumpbuf[:n])
	}
	return frames, nil
}

// SendFrame queues frame for transmission. Returns ErrTxRingFull when
// no transmit descriptor is free; that is backpressure, not failure —
// retry after the hardware drains a descriptor. The frame is copied,
// so the caller's buffer may be reused immediately.
func (d *Device) SendFrame(frame []byte) error {
	if !d.ready() {
		return d.stateErr()
	}
	if len(frame) < minFrameLen {
		// Not even a full Ethernet header; hardware pads runts to the
		// minimum wire size but a headerless frame is a caller bug.
		return ErrFrameEmpty
	}
	if len(frame) > MaxFrameLen {
		return ErrFrameTooLarge
	}
	desc, ok := d.tx.nextFree()
	if !ok {
		// Give the backend a chance to reclaim completed descriptors
		// before reporting backpressure.
		d.hw.KickTx()
		desc, ok = d.tx.nextFree()
	}
	if !ok {
		d.stats.txWouldBlock.Add(1)
		return ErrTxRingFull
	}
	copy(desc.Buffer(), frame)
	d.tx.produce(len(frame))
	d.stats.txFrames.Add(1)
	d.stats.txBytes.Add(uint64(len(frame)))
	d.hw.KickTx()
	return nil
}

// PollLink advances the link monitor one non-blocking MDIO step.
// Transitions are reported exactly once: ok is false while a bus
// transaction is in flight or when nothing changed.
func (d *Device) PollLink() (ev LinkEvent, ok bool) {
	if !d.ready() || !d.caps.LinkDetection {
		return LinkEvent{}, false
	}
	d.events.And(^uint32(EventLinkChange))
	ev, ok = d.lm.poll(d.hw)
	if ok && d.log != nil {
		d.log.LogAttrs(context.Background(), slog.LevelInfo, "link",
			slog.Bool("up", ev.Up), slog.String("mode", ev.Mode.String()))
	}
	return ev, ok
}

// SetMACFilter adds (allow) or removes (allow=false) addr from the
// hash-based address filter. Hash collisions are reference counted: a
// removal never clears a filter bit that another allowed address still
// hashes to. Reports whether the filter accepted the operation.
func (d *Device) SetMACFilter(addr [6]byte, allow bool) bool {
	if !d.ready() || !d.caps.HashFilter {
		return false
	}
	var (
		table   HashTable
		value   uint64
		changed bool
	)
	if allow {
		table, value, changed = d.filter.add(addr)
	} else {
		table, value, changed = d.filter.remove(addr)
	}
	if changed {
		d.hw.SetHashFilter(table, value)
	}
	return true
}

// SetPromiscuous enables or disables promiscuous reception.
func (d *Device) SetPromiscuous(on bool) error {
	if !d.ready() {
		return d.stateErr()
	}
	if !d.caps.Promiscuous {
		return errInvalidConfig
	}
	d.hw.SetPromiscuous(on)
	return nil
}

// Stats returns a snapshot of the driver counters.
func (d *Device) Stats() StatsSnapshot { return d.stats.snapshot() }

func (d *Device) ready() bool { return d.probed && d.present }

func (d *Device) stateErr() error {
	if d.probed {
		return ErrNoHardware
	}
	return ErrNotConfigured
}

func (d *Device) logerr(msg string, err error) {
	if d.log != nil {
		d.log.LogAttrs(context.Background(), slog.LevelError, msg,
			slog.String("err", err.Error()))
	}
}
