// Package world is a deterministic 2D rigid-body world with sensor probes
package world

// Class is the collision category of a shape
// The set is closed; handlers and lifecycle rules key on it
type Class uint8

const (
	BottleBottom Class = iota + 1
	BottleSide
	Liquid
	SensorProbe
	ActuatorZone
	Floor
	SpawnTrigger
)

func (c Class) String() string {
	switch c {
	case BottleBottom:
		return "bottle-bottom"
	case BottleSide:
		return "bottle-side"
	case Liquid:
		return "liquid"
	case SensorProbe:
		return "sensor-probe"
	case ActuatorZone:
		return "actuator-zone"
	case Floor:
		return "floor"
	case SpawnTrigger:
		return "spawn-trigger"
	default:
		return "unknown"
	}
}

// Sensor reports whether shapes of this class detect overlap without colliding
func (c Class) Sensor() bool {
	return c == SensorProbe || c == SpawnTrigger
}

// Phase of a probe contact
type Phase uint8

const (
	Begin Phase = iota + 1
	Separate
)

func (p Phase) String() string {
	switch p {
	case Begin:
		return "begin"
	case Separate:
		return "separate"
	default:
		return "unknown"
	}
}
