package plant

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/lixenwraith/virtuaplant/dispatch"
	"github.com/lixenwraith/virtuaplant/lifecycle"
	"github.com/lixenwraith/virtuaplant/modbus"
	"github.com/lixenwraith/virtuaplant/register"
	"github.com/lixenwraith/virtuaplant/scan"
	"github.com/lixenwraith/virtuaplant/world"
)

// Bottle line geometry in world units, y up
var (
	bottleOrigin  = mgl64.Vec2{130, 300}
	conveyorShift = mgl64.Vec2{0.25, 0}
	nozzleAt      = mgl64.Vec2{180, 430}
	limitAt       = mgl64.Vec2{200, 300}
	levelAt       = mgl64.Vec2{155, 380}
	bottleInAt    = mgl64.Vec2{40, 300}
	dropY         = 410.0
)

const (
	bottleMass     = 10
	bottleFriction = 0.94
	dropRadius     = 3
	dropMass       = 0.01
	dropMaxSpeed   = 120
	bottleStageX   = 750 // 600 wide stage + 150
	bottleStageY   = 150
)

type bottleFilling struct {
	m AddressMap

	run, level, limit, motor, nozzle int
}

func newBottleFilling() Variant {
	return &bottleFilling{
		m:      bottleMap,
		run:    bottleMap.mustAddr(Run),
		level:  bottleMap.mustAddr(LevelSensor),
		limit:  bottleMap.mustAddr(LimitSwitch),
		motor:  bottleMap.mustAddr(Motor),
		nozzle: bottleMap.mustAddr(Nozzle),
	}
}

func (b *bottleFilling) Name() string    { return b.m.Variant }
func (b *bottleFilling) Map() AddressMap { return b.m }

func (b *bottleFilling) Identity() modbus.Identity {
	return modbus.Identity{
		VendorName:  "MockPLCs",
		ProductCode: "MP",
		Revision:    "1.0",
		VendorURL:   "http://github.com/bashwork/pymodbus/",
		ProductName: "MockPLC 3000",
		ModelName:   "MockPLC Ultimate",
	}
}

func (b *bottleFilling) Logic() scan.Logic {
	return scan.BottleFilling{Run: b.run, Level: b.level, Limit: b.limit, Motor: b.motor, Nozzle: b.nozzle}
}

// bottleSpec is an empty bottle at the start of the conveyor
// Shape 0 is the bottom, so the body is tracked as BottleBottom
func bottleSpec() world.BodySpec {
	return world.BodySpec{
		Position:  bottleOrigin,
		Mass:      bottleMass,
		Kinematic: true,
		Shapes: []world.Shape{
			world.NewSegment(world.BottleBottom, mgl64.Vec2{-150, 0}, mgl64.Vec2{-100, 0}, 2).WithFriction(bottleFriction),
			world.NewSegment(world.BottleSide, mgl64.Vec2{-150, 0}, mgl64.Vec2{-150, 100}, 2).WithFriction(bottleFriction),
			world.NewSegment(world.BottleSide, mgl64.Vec2{-100, 0}, mgl64.Vec2{-100, 100}, 2).WithFriction(bottleFriction),
		},
	}
}

func dropSpec(x float64) world.BodySpec {
	return world.BodySpec{
		Position: mgl64.Vec2{x, dropY},
		Velocity: mgl64.Vec2{0, -dropMaxSpeed},
		Mass:     dropMass,
		MaxSpeed: dropMaxSpeed,
		Shapes:   []world.Shape{world.NewCircle(world.Liquid, mgl64.Vec2{}, dropRadius)},
	}
}

func offStage(x, y float64) func(world.Body) bool {
	return func(b world.Body) bool {
		return b.Position.X() > x || b.Position.Y() < y
	}
}

func (b *bottleFilling) Setup(env *Env) error {
	w := env.World
	w.Add(world.BodySpec{
		Position: mgl64.Vec2{300, 290},
		Shapes:   []world.Shape{world.NewBox(world.Floor, mgl64.Vec2{}, 600, 20).WithFriction(1)},
	})
	w.Add(world.BodySpec{
		Position: nozzleAt,
		Shapes:   []world.Shape{world.NewBox(world.ActuatorZone, mgl64.Vec2{}, 15, 20)},
	})
	w.Add(world.BodySpec{
		Position: limitAt,
		Shapes:   []world.Shape{world.NewCircle(world.SensorProbe, mgl64.Vec2{}, 2).WithProbe(LimitSwitch, b.limit)},
	})
	w.Add(world.BodySpec{
		Position: levelAt,
		Shapes:   []world.Shape{world.NewCircle(world.SensorProbe, mgl64.Vec2{}, 3).WithProbe(LevelSensor, b.level)},
	})
	w.Add(world.BodySpec{
		Position: bottleInAt,
		Shapes:   []world.Shape{world.NewCircle(world.SpawnTrigger, mgl64.Vec2{}, 2).WithProbe("bottleIn", -1)},
	})

	d := env.Dispatcher
	// Limit switch follows the bottom over it; the level latch clears once the
	// bottle has left the filling station
	d.Register(world.SensorProbe, world.BottleBottom,
		b.onProbe(b.limit, func(regs register.ReadWriter, c world.Contact) error {
			return dispatch.SetIfChanged(regs, b.limit, 1)
		}),
		b.onProbe(b.limit, func(regs register.ReadWriter, c world.Contact) error {
			if c.Overlaps > 0 {
				return nil
			}
			if err := dispatch.SetIfChanged(regs, b.limit, 0); err != nil {
				return err
			}
			return dispatch.SetIfChanged(regs, b.level, 0)
		}))
	// Liquid at the level probe marks the bottle full
	d.Register(world.SensorProbe, world.Liquid,
		b.onProbe(b.level, func(regs register.ReadWriter, c world.Contact) error {
			return dispatch.SetIfChanged(regs, b.level, 1)
		}), nil)

	lc := env.Lifecycle
	if err := lc.AddRule(lifecycle.Rule{
		Class: world.BottleBottom,
		Cap:   env.Limits.MaxBottles,
		Spawn: func(t lifecycle.Tick) []world.BodySpec {
			var out []world.BodySpec
			for _, c := range t.Contacts {
				if c.ProbeClass == world.SpawnTrigger && c.Other == world.BottleBottom && c.Phase == world.Separate {
					out = append(out, bottleSpec())
				}
			}
			return out
		},
		Retire: offStage(bottleStageX, bottleStageY),
	}); err != nil {
		return err
	}
	if err := lc.AddRule(lifecycle.Rule{
		Class: world.Liquid,
		Cap:   env.Limits.MaxParticles,
		Spawn: func(t lifecycle.Tick) []world.BodySpec {
			if !t.Image.Bit(b.nozzle) || !b.spoutClear(env) {
				return nil
			}
			return []world.BodySpec{dropSpec(181 + float64(env.Rand.Intn(2)))}
		},
		Retire: offStage(bottleStageX, bottleStageY),
	}); err != nil {
		return err
	}
	_, err := lc.Spawn(world.BottleBottom, bottleSpec())
	return err
}

// spoutClear reports whether the newest drop has fallen a diameter below the
// spout, so consecutive drops never spawn overlapping
func (b *bottleFilling) spoutClear(env *Env) bool {
	live := env.Lifecycle.Live(world.Liquid)
	if len(live) == 0 {
		return true
	}
	last, ok := env.World.Body(live[len(live)-1])
	return !ok || last.Position.Y() <= dropY-2*dropRadius
}

// onProbe restricts a handler to contacts on the probe bound to addr
func (b *bottleFilling) onProbe(addr int, h dispatch.Handler) dispatch.Handler {
	return func(regs register.ReadWriter, c world.Contact) error {
		if c.Probe.Addr != addr {
			return nil
		}
		return h(regs, c)
	}
}

func (b *bottleFilling) Actuate(env *Env, image register.Snapshot) {
	if !image.Bit(b.motor) {
		return
	}
	for _, id := range env.Lifecycle.Live(world.BottleBottom) {
		env.World.Move(id, conveyorShift)
	}
}
