package enet

import "github.com/soypat/lneto/phy"

// LinkEvent reports a link state transition detected by PollLink.
type LinkEvent struct {
	// Up is true when the link is established.
	Up bool
	// Mode is the negotiated speed/duplex, LinkDown while Up is false
	// or before auto-negotiation resolves.
	Mode phy.LinkMode
}

// linkMonitor drives link detection without ever blocking on the MDIO
// bus. Each poll call advances the state machine by at most one bus
// transaction step; a full status read therefore spans several calls.
type linkMonitor struct {
	state    uint8
	phyaddr  uint8
	anar     phy.ANAR // our advertisement, cached at Configure
	bmsr     phy.BMSR // last status register read
	last     LinkEvent
	reported bool // first evaluation always produces an event
}

const (
	lmIdle uint8 = iota
	lmWaitStatus
	lmWaitPartner
)

func (lm *linkMonitor) reset(phyaddr uint8, anar phy.ANAR) {
	lm.state = lmIdle
	lm.phyaddr = phyaddr
	lm.anar = anar
	lm.last = LinkEvent{}
	lm.reported = false
}

// poll advances the state machine one step. It reports transitions
// only: ok is false while a bus transaction is in flight or when the
// link state is unchanged since the last reported event.
func (lm *linkMonitor) poll(hw HW) (ev LinkEvent, ok bool) {
	switch lm.state {
	case lmIdle:
		hw.StartMDIO(mmfrRead(lm.phyaddr, phy.AddrBMSR))
		lm.state = lmWaitStatus
	case lmWaitStatus:
		v, done := hw.PollMDIO()
		if !done {
			break
		}
		lm.bmsr = phy.BMSR(v)
		if !lm.bmsr.LinkUp() {
			lm.state = lmIdle
			return lm.evaluate(LinkEvent{})
		}
		if !lm.bmsr.AutoNegotiationComplete() {
			// Link reported up before negotiation resolved the mode.
			lm.state = lmIdle
			return lm.evaluate(LinkEvent{Up: true, Mode: phy.LinkDown})
		}
		hw.StartMDIO(mmfrRead(lm.phyaddr, phy.AddrANLPAR))
		lm.state = lmWaitPartner
	case lmWaitPartner:
		v, done := hw.PollMDIO()
		if !done {
			break
		}
		// Highest mode both ends advertise, per IEEE 802.3 Annex 28B.3.
		common := lm.anar & phy.ANAR(v)
		lm.state = lmIdle
		return lm.evaluate(LinkEvent{Up: true, Mode: common.LinkMode()})
	}
	return LinkEvent{}, false
}

func (lm *linkMonitor) evaluate(ev LinkEvent) (LinkEvent, bool) {
	if lm.reported && ev == lm.last {
		return LinkEvent{}, false
	}
	lm.last = ev
	lm.reported = true
	return ev, true
}
