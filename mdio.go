package enet

import "time"

// MDIO management frames in ENET MMFR register format. The field
// layout is IEEE 802.3 clause 22: start 01, opcode (10 read, 01
// write), 5-bit PHY address, 5-bit register address, turnaround 10,
// 16-bit data.
const (
	mmfrStart      = 0b01 << 30
	mmfrOpRead     = 0b10 << 28
	mmfrOpWrite    = 0b01 << 28
	mmfrPhyShift   = 23
	mmfrRegShift   = 18
	mmfrTurnaround = 0b10 << 16
)

func mmfrRead(phyAddr, regAddr uint8) uint32 {
	return mmfrStart | mmfrOpRead | mmfrTurnaround |
		uint32(phyAddr&0x1f)<<mmfrPhyShift | uint32(regAddr&0x1f)<<mmfrRegShift
}

func mmfrWrite(phyAddr, regAddr uint8, value uint16) uint32 {
	return mmfrStart | mmfrOpWrite | mmfrTurnaround |
		uint32(phyAddr&0x1f)<<mmfrPhyShift | uint32(regAddr&0x1f)<<mmfrRegShift |
		uint32(value)
}

// mmfrFields unpacks a management frame. Hardware backends that bit
// bang the bus use this to recover the transaction parameters.
func mmfrFields(frame uint32) (read bool, phyAddr, regAddr uint8, value uint16) {
	read = frame&(0b11<<28) == mmfrOpRead
	phyAddr = uint8(frame>>mmfrPhyShift) & 0x1f
	regAddr = uint8(frame>>mmfrRegShift) & 0x1f
	value = uint16(frame)
	return read, phyAddr, regAddr, value
}

// pollBus adapts the asynchronous HW MDIO interface to phy.MDIOBus by
// spinning on PollMDIO with a bounded wait. Used only during Configure
// where blocking for a register access is acceptable; runtime link
// polling goes through the linkMonitor state machine instead.
type pollBus struct {
	hw      HW
	maxWait time.Duration
}

func (b *pollBus) Read(phyAddr, devAddr uint8, regAddr uint16) (uint16, error) {
	if devAddr != 0 {
		return 0, errClause45
	}
	b.hw.StartMDIO(mmfrRead(phyAddr, uint8(regAddr)))
	return b.wait()
}

func (b *pollBus) Write(phyAddr, devAddr uint8, regAddr, value uint16) error {
	if devAddr != 0 {
		return errClause45
	}
	b.hw.StartMDIO(mmfrWrite(phyAddr, uint8(regAddr), value))
	_, err := b.wait()
	return err
}

func (b *pollBus) wait() (uint16, error) {
	const pollEvery = 5 * time.Microsecond
	deadline := time.Now().Add(b.maxWait)
	for {
		if v, done := b.hw.PollMDIO(); done {
			return v, nil
		}
		if time.Now().After(deadline) {
			return 0, errMDIOTimeout
		}
		time.Sleep(pollEvery)
	}
}
