package enet

import "hash/crc32"

// crcTable is the IEEE CRC-32 table, shared with Ethernet FCS math.
var crcTable = crc32.MakeTable(crc32.IEEE)

// macFilter maintains the two 64-bit hash filter tables (individual
// and group addresses). The hash is the ENET scheme: the upper 6 bits
// of the frame-check CRC of the address select one bit of the table.
// Because distinct addresses can collide on the same bit, each bit
// carries a reference count so removing one address never clears a bit
// another still-wanted address hashes to.
type macFilter struct {
	refs  [2][64]uint8
	value [2]uint64
}

// hashBit returns the filter bit index (0-63) for addr.
func hashBit(addr [6]byte) uint {
	crc := crc32.Checksum(addr[:], crcTable)
	return uint(crc >> 26)
}

func tableFor(addr [6]byte) HashTable {
	if addr[0]&1 != 0 {
		return HashMulticast
	}
	return HashUnicast
}

// add references the hash bit for addr. changed is true when the
// register value gained a bit and must be reprogrammed.
func (f *macFilter) add(addr [6]byte) (table HashTable, value uint64, changed bool) {
	table = tableFor(addr)
	bit := hashBit(addr)
	if f.refs[table][bit] != 0xff {
		f.refs[table][bit]++
	}
	old := f.value[table]
	f.value[table] |= 1 << bit
	return table, f.value[table], f.value[table] != old
}

// remove dereferences the hash bit for addr. The bit is cleared only
// when its reference count drops to zero.
func (f *macFilter) remove(addr [6]byte) (table HashTable, value uint64, changed bool) {
	table = tableFor(addr)
	bit := hashBit(addr)
	if f.refs[table][bit] == 0 {
		return table, f.value[table], false
	}
	f.refs[table][bit]--
	if f.refs[table][bit] == 0 {
		f.value[table] &^= 1 << bit
		return table, f.value[table], true
	}
	return table, f.value[table], false
}
