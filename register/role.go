package register

import "fmt"

// Role describes who owns a register in an address map
type Role uint8

const (
	// SensorInput is written by collision handlers
	SensorInput Role = iota + 1
	// ActuatorOutput is written by the scan cycle
	ActuatorOutput
	// RunFlag gates the scan cycle and is written by operators
	RunFlag
	// Counter accumulates events and is written by collision handlers
	Counter
)

func (r Role) String() string {
	switch r {
	case SensorInput:
		return "sensor"
	case ActuatorOutput:
		return "actuator"
	case RunFlag:
		return "run"
	case Counter:
		return "counter"
	default:
		return "unknown"
	}
}

// Bool converts a condition to a register value
func Bool(b bool) int {
	if b {
		return 1
	}
	return 0
}

// MarshalText renders the role by name in JSON and TOML
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a role name written by MarshalText
func (r *Role) UnmarshalText(text []byte) error {
	for _, c := range []Role{SensorInput, ActuatorOutput, RunFlag, Counter} {
		if c.String() == string(text) {
			*r = c
			return nil
		}
	}
	return fmt.Errorf("unknown register role %q", text)
}
