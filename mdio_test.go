package enet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBusWait = 10 * time.Millisecond

func TestMMFRFraming(t *testing.T) {
	// Clause 22 read, PHY 1, register 1 (BMSR): start 01, opcode 10,
	// turnaround 10, no data.
	assert.Equal(t, uint32(0x6002_0000)|1<<mmfrPhyShift|1<<mmfrRegShift,
		mmfrRead(1, 1))
	// Clause 22 write, PHY 31, register 0 (BMCR), data 0x1200.
	assert.Equal(t, uint32(0x5002_1200)|31<<mmfrPhyShift|0<<mmfrRegShift,
		mmfrWrite(31, 0, 0x1200))

	// Out-of-range addresses are masked to 5 bits.
	assert.Equal(t, mmfrRead(1, 1), mmfrRead(1|0x20, 1|0x20))
}

func TestMMFRFieldsRoundTrip(t *testing.T) {
	read, phyAddr, regAddr, _ := mmfrFields(mmfrRead(5, 0x1d))
	assert.True(t, read)
	assert.Equal(t, uint8(5), phyAddr)
	assert.Equal(t, uint8(0x1d), regAddr)

	read, phyAddr, regAddr, value := mmfrFields(mmfrWrite(0, 4, 0xbeef))
	assert.False(t, read)
	assert.Equal(t, uint8(0), phyAddr)
	assert.Equal(t, uint8(4), regAddr)
	assert.Equal(t, uint16(0xbeef), value)
}

func TestPollBus(t *testing.T) {
	hw := newSimHW()
	hw.mdioDelay = 3
	hw.phyRegs[0x10] = 0xcafe
	bus := &pollBus{hw: hw, maxWait: testBusWait}

	v, err := bus.Read(0, 0, 0x10)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xcafe), v)

	require.NoError(t, bus.Write(0, 0, 0x11, 0x1234))
	assert.Equal(t, uint16(0x1234), hw.phyRegs[0x11])

	// Clause 45 device addresses are not reachable through the MMFR.
	_, err = bus.Read(0, 1, 0x10)
	assert.Error(t, err)
	assert.Error(t, bus.Write(0, 1, 0x10, 0))
}

func TestPollBusTimeout(t *testing.T) {
	hw := newSimHW()
	hw.mdioDelay = 1 << 30 // never completes
	bus := &pollBus{hw: hw, maxWait: testBusWait}
	_, err := bus.Read(0, 0, 0)
	assert.ErrorIs(t, err, errMDIOTimeout)
}
