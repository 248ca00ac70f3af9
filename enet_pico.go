//go:build rp2040 || rp2350

package enet

import (
	"errors"
	"machine"
	"time"

	"github.com/soypat/lneto/phy"
	pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"
)

// PicoConfig holds the pin and PIO assignment for the RP2 soft MAC.
type PicoConfig struct {
	// PIO is the PIO peripheral running the RMII state machines.
	// Use pio.PIO0 or pio.PIO1.
	PIO *pio.PIO
	// MDC is the MDIO clock pin.
	MDC machine.Pin
	// MDIO is the MDIO data pin.
	MDIO machine.Pin
	// TxConfig configures the RMII transmit path.
	TxConfig piolib.RMIITxConfig
	// RxConfig configures the RMII receive path.
	RxConfig piolib.RMIIRxConfig
}

// NewPicoMAC builds a HW backend for RP2040/RP2350 that implements the
// MAC in software: PIO state machines move RMII frames, the MDIO bus is
// bit-banged, and address filtering runs in the receive interrupt. Pass
// the result to Device.Configure.
func NewPicoMAC(cfg PicoConfig) (HW, error) {
	mdiomsk := (1 << cfg.MDC) | (1 << cfg.MDIO)
	txmsk := 0b111 << cfg.TxConfig.TxBase
	rxmsk := 0b111 << cfg.RxConfig.RxBase
	aliased := rxmsk & txmsk & mdiomsk
	if aliased != 0 {
		return nil, errors.New("aliased pins, check pin definitions")
	}
	m := &softMAC{mdio: mdioPins{mdc: cfg.MDC, mdio: cfg.MDIO}.bus()}
	err := m.rmiiRx.Configure(cfg.PIO, cfg.RxConfig)
	if err != nil {
		return nil, err
	}
	err = m.rmiiTx.Configure(cfg.PIO, cfg.TxConfig)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// softMAC is the RP2 software MAC. It plays the hardware side of the
// descriptor ownership protocol: the receive interrupt fills EMPTY RX
// descriptors and the transmit pump drains READY TX descriptors into
// the PIO, one frame in flight at a time.
type softMAC struct {
	rmiiTx piolib.RMIITx
	rmiiRx piolib.RMIIRx
	mdio   *phy.MDIOBitBang

	rx  *RxRing
	tx  *TxRing
	isr func(Event)
	// rxNext and txNext are the hardware-side ring cursors. rxNext is
	// touched only from the receive interrupt, txNext only from the
	// polling context via KickTx.
	rxNext     int
	txNext     int
	txInFlight bool

	rxbuf [defaultBufSize]byte

	mac     [6]byte
	hash    [2]uint64
	promisc bool

	mdioData    uint16
	mdioPending bool
}

var _ HW = (*softMAC)(nil)

func (m *softMAC) Probe() (Capabilities, error) {
	// A responding clause 22 PHY on the bit-banged bus is the only
	// evidence of attached hardware this backend can gather.
	var addrs [32]uint8
	n, err := phy.FindClause22PHYs(m.mdio, addrs[:])
	if err != nil || n == 0 {
		return Capabilities{}, errors.New("no PHY answered on MDIO bus")
	}
	return Capabilities{
		SetMACAddress: true,
		LinkDetection: true,
		HashFilter:    true,
		Promiscuous:   true,
		// No MAC clock: timestamps would be time.Now at best.
		Timestamps: false,
	}, nil
}

func (m *softMAC) Attach(rx *RxRing, tx *TxRing, isr func(Event)) error {
	m.rx, m.tx, m.isr = rx, tx, isr
	m.rxNext, m.txNext = 0, 0
	m.txInFlight = false
	return m.rmiiRx.SetRxIRQHandler(m.rxbuf[:], m.onRxFrame)
}

func (m *softMAC) Detach() error {
	err := m.rmiiRx.StopRx()
	m.rx, m.tx, m.isr = nil, nil, nil
	return err
}

// onRxFrame runs in interrupt context when the PIO completes a frame.
// It filters, copies into the next EMPTY descriptor and restarts the
// receiver. No allocation.
func (m *softMAC) onRxFrame(buf []byte) {
	rx := m.rx
	if rx == nil {
		return
	}
	if len(buf) >= minFrameLen && m.accepts(buf) {
		d := rx.At(m.rxNext)
		flags, _ := d.LoadCtrl()
		if flags&rxbdEmpty != 0 {
			n := copy(d.Buffer(), buf)
			status := flags&rxbdWrap | rxbdLast
			if n < len(buf) {
				status |= rxbdTruncated
			}
			d.StoreCtrl(status, n)
			if flags&rxbdWrap != 0 {
				m.rxNext = 0
			} else {
				m.rxNext++
			}
			if m.isr != nil {
				m.isr(EventRxFrame)
			}
		}
		// No EMPTY descriptor: the frame is lost, as it would be on a
		// real MAC with a starved ring.
	}
	m.startRxIfArmed()
}

// accepts applies destination address filtering in software, mirroring
// what the ENET hardware filter does: station address match, broadcast,
// then the hash tables.
func (m *softMAC) accepts(frame []byte) bool {
	if m.promisc {
		return true
	}
	var dst [6]byte
	copy(dst[:], frame)
	if dst == m.mac {
		return true
	}
	broadcast := true
	for _, b := range dst {
		if b != 0xff {
			broadcast = false
			break
		}
	}
	if broadcast {
		return true
	}
	return m.hash[tableFor(dst)]&(1<<hashBit(dst)) != 0
}

// startRxIfArmed starts the single-frame receiver when it is idle and
// an EMPTY descriptor is available to land the next frame in.
func (m *softMAC) startRxIfArmed() {
	if m.rx == nil || m.rmiiRx.InRx() {
		return
	}
	flags, _ := m.rx.At(m.rxNext).LoadCtrl()
	if flags&rxbdEmpty != 0 {
		m.rmiiRx.StartRx()
	}
}

func (m *softMAC) KickRx() { m.startRxIfArmed() }

// KickTx pumps the transmit ring: it releases the completed in-flight
// descriptor, then hands the next READY one to the PIO. One frame is
// in flight at a time; completion is observed on the next kick.
func (m *softMAC) KickTx() {
	if m.tx == nil {
		return
	}
	if m.txInFlight {
		if m.rmiiTx.IsSending() {
			return
		}
		d := m.tx.At(m.txNext)
		flags, _ := d.LoadCtrl()
		d.StoreCtrl(flags&txbdWrap, 0)
		if flags&txbdWrap != 0 {
			m.txNext = 0
		} else {
			m.txNext++
		}
		m.txInFlight = false
		if m.isr != nil {
			m.isr(EventTxDone)
		}
	}
	d := m.tx.At(m.txNext)
	flags, n := d.LoadCtrl()
	if flags&txbdReady == 0 {
		return
	}
	err := m.rmiiTx.SendFrame(d.Buffer()[:n])
	if err == nil {
		m.txInFlight = true
	}
}

func (m *softMAC) SetMACAddress(addr [6]byte) { m.mac = addr }

func (m *softMAC) SetHashFilter(table HashTable, value uint64) {
	m.hash[table] = value
}

func (m *softMAC) SetPromiscuous(on bool) { m.promisc = on }

// StartMDIO performs the management transaction synchronously on the
// bit-banged bus; PollMDIO then completes on its first call. The MMFR
// encoding is kept so the core driver is identical across backends.
func (m *softMAC) StartMDIO(frame uint32) {
	read, phyAddr, regAddr, value := mmfrFields(frame)
	if read {
		v, err := m.mdio.Read(phyAddr, 0, uint16(regAddr))
		if err != nil {
			v = 0xffff
		}
		m.mdioData = v
	} else {
		m.mdio.Write(phyAddr, 0, uint16(regAddr), value)
		m.mdioData = 0
	}
	m.mdioPending = true
}

func (m *softMAC) PollMDIO() (uint16, bool) {
	if !m.mdioPending {
		return 0, false
	}
	m.mdioPending = false
	return m.mdioData, true
}

// mdioPins drives the two-wire management interface in software. The
// data line is never driven high: logic 1 is the pullup, open-drain
// style, so the PHY can take the line during read turnaround.
type mdioPins struct {
	mdc  machine.Pin
	mdio machine.Pin
}

// Half a clock period; 340ns keeps MDC under the 2.5MHz management
// clock ceiling with margin.
const mdioHalfPeriod = 340 * time.Nanosecond

func (p mdioPins) clock() {
	time.Sleep(mdioHalfPeriod)
	p.mdc.High()
	time.Sleep(mdioHalfPeriod)
	p.mdc.Low()
}

func (p mdioPins) sendBit(b bool) {
	if b {
		p.mdio.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	} else {
		p.mdio.Low()
		p.mdio.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}
	p.clock()
}

func (p mdioPins) getBit() bool {
	p.clock()
	return p.mdio.Get()
}

func (p mdioPins) setDir(out bool) {
	if out {
		p.mdio.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	} else {
		p.mdio.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
}

func (p mdioPins) bus() *phy.MDIOBitBang {
	p.mdio.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	p.mdc.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.mdc.Low()
	b := new(phy.MDIOBitBang)
	b.Configure(p.sendBit, p.getBit, p.setDir)
	return b
}
