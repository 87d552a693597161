// Package scan runs the PLC control program once per tick
package scan

import "github.com/lixenwraith/virtuaplant/register"

// Write is one actuator value produced by a program
type Write struct {
	Addr  int
	Value uint16
}

// Logic is a plant control program
// Evaluate must be total over every snapshot and depend on nothing else
type Logic interface {
	Name() string
	Outputs() []int
	Evaluate(s register.Snapshot) []Write
}

func out(addr int, on bool) Write {
	return Write{Addr: addr, Value: uint16(register.Bool(on))}
}
