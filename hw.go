package enet

// HW is the register-level HAL the Device drives. Implementations wrap
// either a memory-mapped ENET-style MAC or a software MAC such as the
// PIO RMII backend on RP2 chips. All methods are non-blocking.
type HW interface {
	// Probe detects the hardware by reading a known identification
	// register and returns what the backend supports. Called exactly
	// once at Configure; a returned error marks the hardware absent
	// and every subsequent Device operation fails fast.
	Probe() (Capabilities, error)
	// Attach hands the descriptor rings and the interrupt sink to the
	// hardware. isr is invoked from interrupt context and must only be
	// used to set flags; it performs no copying and no allocation.
	Attach(rx *RxRing, tx *TxRing, isr func(Event)) error
	// Detach stops DMA and disassociates the rings. After Detach
	// returns the hardware no longer touches ring memory.
	Detach() error
	// KickRx signals the RX doorbell (RDAR): empty descriptors are
	// available again.
	KickRx()
	// KickTx signals the TX doorbell (TDAR): ready descriptors await
	// transmission.
	KickTx()
	// SetMACAddress programs the unicast station address.
	SetMACAddress(addr [6]byte)
	// SetHashFilter programs one of the 64-bit hash filter register
	// pairs (GAUR/GALR or IAUR/IALR).
	SetHashFilter(table HashTable, value uint64)
	// SetPromiscuous enables or disables promiscuous reception.
	SetPromiscuous(on bool)
	// StartMDIO begins an asynchronous clause 22 management frame
	// transaction. The frame is in MMFR register format; see mmfrRead
	// and mmfrWrite. Completion is observed through PollMDIO.
	StartMDIO(frame uint32)
	// PollMDIO reports whether the current MDIO transaction completed
	// and, for reads, the data returned by the PHY. A transaction may
	// take several polls; callers must not start another before done.
	PollMDIO() (data uint16, done bool)
}

// HashTable selects one of the MAC's two 64-bit hash filter tables.
type HashTable uint8

const (
	// HashUnicast is the individual address hash table (IAUR/IALR).
	HashUnicast HashTable = iota
	// HashMulticast is the group address hash table (GAUR/GALR).
	HashMulticast
)

// Event is a bitmask of interrupt causes delivered to the Device ISR.
type Event uint32

const (
	// EventRxFrame signals that at least one received frame awaits in
	// the RX ring.
	EventRxFrame Event = 1 << iota
	// EventTxDone signals that the hardware released one or more TX
	// descriptors.
	EventTxDone
	// EventLinkChange signals a link status change (PHY interrupt).
	EventLinkChange
)

// Capabilities describes which operations the concrete hardware
// backend supports. Produced once by Probe and cached by the Device.
type Capabilities struct {
	// SetMACAddress reports whether the station address is programmable.
	SetMACAddress bool
	// LinkDetection reports whether link/speed/duplex can be queried
	// over MDIO.
	LinkDetection bool
	// HashFilter reports whether hash-based address filtering is
	// available.
	HashFilter bool
	// Promiscuous reports whether promiscuous reception is available.
	Promiscuous bool
	// Timestamps reports whether descriptors carry capture timestamps.
	Timestamps bool
}
