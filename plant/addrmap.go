package plant

import (
	"fmt"

	"github.com/lixenwraith/virtuaplant/register"
)

// MapVersion is the only address layout served
// It matches the layout the attack and inspection tools were written against
const MapVersion = 2

// Register names shared by both variants
const (
	Run = "run"

	LevelSensor = "levelSensor"
	LimitSwitch = "limitSwitch"
	Motor       = "motor"
	Nozzle      = "nozzle"

	FeedPump          = "feedPump"
	TankLevel         = "tankLevel"
	OutletValve       = "outletValve"
	SeparatorVessel   = "separatorVessel"
	SeparatorFeed     = "separatorFeed"
	OilSpillCount     = "oilSpillCount"
	SpillDetected     = "spillDetected"
	OilProcessedCount = "oilProcessedCount"
	WasteValve        = "wasteValve"
)

// Entry names one register
type Entry struct {
	Name string        `json:"name"`
	Addr int           `json:"addr"`
	Role register.Role `json:"role"`
}

// AddressMap is the register layout of one variant
type AddressMap struct {
	Variant string  `json:"variant"`
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// Addr returns the address of a named register
func (m AddressMap) Addr(name string) (int, bool) {
	for _, e := range m.Entries {
		if e.Name == name {
			return e.Addr, true
		}
	}
	return 0, false
}

// mustAddr is for builder code whose names are fixed at compile time
func (m AddressMap) mustAddr(name string) int {
	a, ok := m.Addr(name)
	if !ok {
		panic(fmt.Sprintf("address map %s has no %q", m.Variant, name))
	}
	return a
}

// Name returns the register name at addr, empty if unmapped
func (m AddressMap) Name(addr int) string {
	for _, e := range m.Entries {
		if e.Addr == addr {
			return e.Name
		}
	}
	return ""
}

// Validate checks every address fits the table and none is shared
func (m AddressMap) Validate(size int) error {
	seen := make(map[int]string, len(m.Entries))
	for _, e := range m.Entries {
		if e.Addr < 0 || e.Addr >= size {
			return fmt.Errorf("%s: %s at %#x: %w", m.Variant, e.Name, e.Addr, register.ErrAddressOutOfRange)
		}
		if prev, dup := seen[e.Addr]; dup {
			return fmt.Errorf("%s: %s and %s share address %#x", m.Variant, prev, e.Name, e.Addr)
		}
		seen[e.Addr] = e.Name
	}
	return nil
}

var bottleMap = AddressMap{
	Variant: "bottle-filling",
	Version: MapVersion,
	Entries: []Entry{
		{LevelSensor, 0x01, register.SensorInput},
		{LimitSwitch, 0x02, register.SensorInput},
		{Motor, 0x03, register.ActuatorOutput},
		{Nozzle, 0x04, register.ActuatorOutput},
		{Run, 0x10, register.RunFlag},
	},
}

var oilMap = AddressMap{
	Variant: "oil-refinery",
	Version: MapVersion,
	Entries: []Entry{
		{FeedPump, 0x01, register.ActuatorOutput},
		{TankLevel, 0x02, register.SensorInput},
		{OutletValve, 0x03, register.ActuatorOutput},
		{SeparatorVessel, 0x04, register.ActuatorOutput},
		{SeparatorFeed, 0x05, register.SensorInput},
		{OilSpillCount, 0x06, register.Counter},
		{OilProcessedCount, 0x07, register.Counter},
		{WasteValve, 0x08, register.ActuatorOutput},
		{SpillDetected, 0x09, register.SensorInput},
		{Run, 0x10, register.RunFlag},
	},
}
