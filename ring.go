package enet

// Descriptor rings. Capacity is fixed at Configure time and the
// logical end of the ring is marked by the WRAP bit on the last
// descriptor rather than by slice length: cursor advance follows the
// bit so ring traversal matches what the DMA engine does.

// RxRing is a fixed-capacity ring of receive descriptors. The MAC
// writes frames into EMPTY descriptors; the driver consumes descriptors
// whose EMPTY bit the hardware has cleared and re-arms them.
type RxRing struct {
	d    []Descriptor
	next int // cursor of the next descriptor to inspect
}

func newRxRing(n, bufsize int) *RxRing {
	r := &RxRing{d: make([]Descriptor, n)}
	backing := make([]byte, n*bufsize)
	for i := range r.d {
		r.d[i].buf = backing[i*bufsize : (i+1)*bufsize : (i+1)*bufsize]
		flags := rxbdEmpty
		if i == n-1 {
			flags |= rxbdWrap
		}
		r.d[i].StoreCtrl(flags, 0)
	}
	return r
}

// Len returns the number of descriptors in the ring.
func (r *RxRing) Len() int { return len(r.d) }

// At returns the i-th descriptor. Hardware-side HW implementations use
// this together with their own cursor to fill EMPTY descriptors.
func (r *RxRing) At(i int) *Descriptor { return &r.d[i] }

// nextOwned returns the descriptor at the cursor if software owns it
// (EMPTY clear), without advancing.
func (r *RxRing) nextOwned() (*Descriptor, bool) {
	d := &r.d[r.next]
	flags, _ := d.LoadCtrl()
	if flags&rxbdEmpty != 0 {
		return nil, false
	}
	return d, true
}

// rearm hands the cursor descriptor back to the hardware and advances
// the cursor. The WRAP bit is preserved; all other status is cleared.
func (r *RxRing) rearm() {
	d := &r.d[r.next]
	flags, _ := d.LoadCtrl()
	d.SetStatus(rxbdxInterrupt)
	d.StoreCtrl(flags&rxbdWrap|rxbdEmpty, 0)
	if flags&rxbdWrap != 0 {
		r.next = 0
	} else {
		r.next++
	}
}

// TxRing is a fixed-capacity ring of transmit descriptors. The driver
// fills descriptors it owns (READY clear) and hands them to the MAC.
type TxRing struct {
	d    []Descriptor
	next int // cursor of the next descriptor to fill
}

func newTxRing(n, bufsize int) *TxRing {
	r := &TxRing{d: make([]Descriptor, n)}
	backing := make([]byte, n*bufsize)
	for i := range r.d {
		r.d[i].buf = backing[i*bufsize : (i+1)*bufsize : (i+1)*bufsize]
		var flags uint16
		if i == n-1 {
			flags |= txbdWrap
		}
		r.d[i].StoreCtrl(flags, 0)
	}
	return r
}

// Len returns the number of descriptors in the ring.
func (r *TxRing) Len() int { return len(r.d) }

// At returns the i-th descriptor. Hardware-side HW implementations use
// this together with their own cursor to drain READY descriptors.
func (r *TxRing) At(i int) *Descriptor { return &r.d[i] }

// nextFree returns the cursor descriptor if it is software-owned
// (READY clear), without advancing. Returns false when the hardware
// still owns it, which is the ring-full backpressure condition.
func (r *TxRing) nextFree() (*Descriptor, bool) {
	d := &r.d[r.next]
	flags, _ := d.LoadCtrl()
	if flags&txbdReady != 0 {
		return nil, false
	}
	return d, true
}

// produce hands the cursor descriptor to the hardware with the given
// frame length and advances the cursor. The WRAP bit is preserved.
func (r *TxRing) produce(length int) {
	d := &r.d[r.next]
	flags, _ := d.LoadCtrl()
	d.SetStatus(txbdxInterrupt)
	d.StoreCtrl(flags&txbdWrap|txbdReady|txbdLast|txbdAppendCRC, length)
	if flags&txbdWrap != 0 {
		r.next = 0
	} else {
		r.next++
	}
}
