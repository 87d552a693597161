package register

import (
	"encoding/json"
	"testing"
)

func TestRoleString(t *testing.T) {
	tests := map[Role]string{
		SensorInput:    "sensor",
		ActuatorOutput: "actuator",
		RunFlag:        "run",
		Counter:        "counter",
		Role(0):        "unknown",
	}
	for r, want := range tests {
		if got := r.String(); got != want {
			t.Errorf("Role(%d).String() = %q, expected %q", r, got, want)
		}
	}
	if Bool(true) != 1 || Bool(false) != 0 {
		t.Error("Bool conversion wrong")
	}
}

func TestRoleTextRoundTrip(t *testing.T) {
	type entry struct {
		Role Role `json:"role"`
	}
	for _, r := range []Role{SensorInput, ActuatorOutput, RunFlag, Counter} {
		data, err := json.Marshal(entry{Role: r})
		if err != nil {
			t.Fatalf("Marshal(%s): %v", r, err)
		}
		var back entry
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if back.Role != r {
			t.Errorf("Expected %s, got %s", r, back.Role)
		}
	}

	var r Role
	if err := r.UnmarshalText([]byte("valve")); err == nil {
		t.Error("Expected unknown role name rejected")
	}
	if err := r.UnmarshalText([]byte("unknown")); err == nil {
		t.Error("Expected the unknown placeholder rejected")
	}
}
