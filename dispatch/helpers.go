package dispatch

import "github.com/lixenwraith/virtuaplant/register"

// SetIfChanged writes value only when it differs from the current register
func SetIfChanged(regs register.ReadWriter, addr, value int) error {
	cur, err := regs.Get(addr)
	if err != nil {
		return err
	}
	if cur == uint16(value) {
		return nil
	}
	return regs.Set(addr, value)
}

// Increment adds one to a counter register, wrapping at 2^16
func Increment(regs register.ReadWriter, addr int) error {
	cur, err := regs.Get(addr)
	if err != nil {
		return err
	}
	return regs.Set(addr, int(cur)+1)
}
