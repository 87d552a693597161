// Package plant wires the physics world, handlers, lifecycle rules and control logic of
// each plant variant, and drives them on a fixed tick
package plant

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/lixenwraith/virtuaplant/dispatch"
	"github.com/lixenwraith/virtuaplant/lifecycle"
	"github.com/lixenwraith/virtuaplant/modbus"
	"github.com/lixenwraith/virtuaplant/register"
	"github.com/lixenwraith/virtuaplant/scan"
	"github.com/lixenwraith/virtuaplant/world"
)

// ErrUnknownVariant is returned by Lookup for names not in Names()
var ErrUnknownVariant = errors.New("unknown plant variant")

// Limits caps transient bodies
type Limits struct {
	MaxBottles   int
	MaxParticles int
}

// DefaultLimits bounds memory for an unattended plant
func DefaultLimits() Limits {
	return Limits{MaxBottles: 8, MaxParticles: 400}
}

// Env is what a variant builds into
type Env struct {
	World      *world.World
	Dispatcher *dispatch.Dispatcher
	Lifecycle  *lifecycle.Manager
	Rand       *rand.Rand
	Limits     Limits
}

// Variant is one plant: scenery, probe handlers, spawn rules and PLC program
type Variant interface {
	Name() string
	Map() AddressMap
	Identity() modbus.Identity
	Logic() scan.Logic

	// Setup creates static scenery and initial bodies, registers handlers and rules
	Setup(env *Env) error

	// Actuate applies actuator registers to the world before a step
	Actuate(env *Env, image register.Snapshot)
}

var variants = map[string]func() Variant{
	bottleMap.Variant: newBottleFilling,
	oilMap.Variant:    newOilRefinery,
}

// Lookup returns a fresh variant by name
func Lookup(name string) (Variant, error) {
	mk, ok := variants[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownVariant, name, Names())
	}
	return mk(), nil
}

// Names lists the available variants
func Names() []string {
	names := make([]string, 0, len(variants))
	for n := range variants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
