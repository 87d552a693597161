package register

// Snapshot is a detached copy of the whole table
// Reads outside the table report zero
type Snapshot []uint16

// Value returns the register at addr, zero when out of range
func (s Snapshot) Value(addr int) uint16 {
	if addr < 0 || addr >= len(s) {
		return 0
	}
	return s[addr]
}

// Bit reports whether the register at addr is non-zero
func (s Snapshot) Bit(addr int) bool {
	return s.Value(addr) != 0
}
