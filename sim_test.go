package enet

import (
	"github.com/soypat/lneto/phy"
)

// simHW is an in-memory HW backend for tests: it owns the hardware
// side of the descriptor ownership protocol, drains TX descriptors
// into sent and fills RX descriptors from injectFrame, and emulates a
// clause 22 PHY behind the MDIO interface.
type simHW struct {
	caps     Capabilities
	probeErr error
	probes   int

	rx     *RxRing
	tx     *TxRing
	isr    func(Event)
	rxNext int
	txNext int
	sent   [][]byte
	// autoDrainTx drains the TX ring on every doorbell, emulating a
	// hardware that transmits instantly.
	autoDrainTx bool

	// PHY register file, clause 22 addresses 0-31.
	phyRegs [32]uint16
	// mdioDelay is how many PollMDIO calls a transaction takes.
	mdioDelay  int
	mdioCount  int
	mdioBusy   bool
	mdioResult uint16

	mac     [6]byte
	hash    [2]uint64
	promisc bool
}

func newSimHW() *simHW {
	hw := &simHW{
		caps: Capabilities{
			SetMACAddress: true,
			LinkDetection: true,
			HashFilter:    true,
			Promiscuous:   true,
			Timestamps:    true,
		},
	}
	// A sane idling PHY: link down, auto-negotiation capable.
	hw.phyRegs[phy.AddrBMSR] = uint16(phy.BMSRANCap)
	return hw
}

func (hw *simHW) Probe() (Capabilities, error) {
	hw.probes++
	return hw.caps, hw.probeErr
}

func (hw *simHW) Attach(rx *RxRing, tx *TxRing, isr func(Event)) error {
	hw.rx, hw.tx, hw.isr = rx, tx, isr
	hw.rxNext, hw.txNext = 0, 0
	return nil
}

func (hw *simHW) Detach() error {
	hw.rx, hw.tx, hw.isr = nil, nil, nil
	return nil
}

func (hw *simHW) KickRx() {}

func (hw *simHW) KickTx() {
	if hw.autoDrainTx {
		hw.drainTx(hw.tx.Len())
	}
}

// drainTx consumes up to max READY descriptors, copying their frames
// into sent and releasing ownership back to the driver.
func (hw *simHW) drainTx(max int) int {
	drained := 0
	for drained < max {
		d := hw.tx.At(hw.txNext)
		flags, n := d.LoadCtrl()
		if flags&txbdReady == 0 {
			break
		}
		hw.sent = append(hw.sent, append([]byte(nil), d.Buffer()[:n]...))
		d.StoreCtrl(flags&txbdWrap, 0)
		if flags&txbdWrap != 0 {
			hw.txNext = 0
		} else {
			hw.txNext++
		}
		drained++
	}
	if drained > 0 && hw.isr != nil {
		hw.isr(EventTxDone)
	}
	return drained
}

// injectFrame fills the next EMPTY RX descriptor with frame and the
// given status bits (error bits, or 0 for a clean frame). Returns
// false when the hardware side finds no empty descriptor.
func (hw *simHW) injectFrame(frame []byte, status uint16) bool {
	d := hw.rx.At(hw.rxNext)
	flags, _ := d.LoadCtrl()
	if flags&rxbdEmpty == 0 {
		return false
	}
	n := copy(d.Buffer(), frame)
	d.StoreCtrl(flags&rxbdWrap|rxbdLast|status, n)
	if flags&rxbdWrap != 0 {
		hw.rxNext = 0
	} else {
		hw.rxNext++
	}
	if hw.isr != nil {
		hw.isr(EventRxFrame)
	}
	return true
}

// injectRaw is injectFrame with full control of flags and length, for
// exercising zero-length and fragment descriptors.
func (hw *simHW) injectRaw(status uint16, length int) bool {
	d := hw.rx.At(hw.rxNext)
	flags, _ := d.LoadCtrl()
	if flags&rxbdEmpty == 0 {
		return false
	}
	d.StoreCtrl(flags&rxbdWrap|status, length)
	if flags&rxbdWrap != 0 {
		hw.rxNext = 0
	} else {
		hw.rxNext++
	}
	if hw.isr != nil {
		hw.isr(EventRxFrame)
	}
	return true
}

func (hw *simHW) SetMACAddress(addr [6]byte) { hw.mac = addr }

func (hw *simHW) SetHashFilter(table HashTable, value uint64) {
	hw.hash[table] = value
}

func (hw *simHW) SetPromiscuous(on bool) { hw.promisc = on }

func (hw *simHW) StartMDIO(frame uint32) {
	read, _, reg, value := mmfrFields(frame)
	if read {
		hw.mdioResult = hw.phyRegs[reg]
	} else {
		if reg == phy.AddrBMCR {
			// Software reset self-clears immediately.
			value &^= uint16(phy.BMCRReset)
		}
		hw.phyRegs[reg] = value
		hw.mdioResult = 0
	}
	hw.mdioBusy = true
	hw.mdioCount = 0
}

func (hw *simHW) PollMDIO() (uint16, bool) {
	if !hw.mdioBusy {
		return 0, false
	}
	hw.mdioCount++
	if hw.mdioCount <= hw.mdioDelay {
		return 0, false
	}
	hw.mdioBusy = false
	return hw.mdioResult, true
}

var _ HW = (*simHW)(nil)

// linkUp flips the emulated PHY to an established, negotiated link.
func (hw *simHW) linkUp(partner phy.ANAR) {
	hw.phyRegs[phy.AddrBMSR] |= uint16(phy.BMSRLinkStatus | phy.BMSRANComplete)
	hw.phyRegs[phy.AddrANLPAR] = uint16(partner)
}

// linkDown drops the emulated link.
func (hw *simHW) linkDown() {
	hw.phyRegs[phy.AddrBMSR] &^= uint16(phy.BMSRLinkStatus | phy.BMSRANComplete)
}
