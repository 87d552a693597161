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

// Refinery geometry in world units, y up
var (
	unitOrigin     = mgl64.Vec2{300, 300}
	pumpAt         = mgl64.Vec2{70, 585}
	outletValveAt  = mgl64.Vec2{70, 410}
	separatorAt    = mgl64.Vec2{327, 218}
	wasteValveAt   = mgl64.Vec2{226, 225}
	tankLevelAt    = mgl64.Vec2{71, 470}
	separatorInAt  = mgl64.Vec2{328, 226}
	processedAt    = mgl64.Vec2{328, 205}
	oilDropY       = 565.0
	spillLineY     = 75.0
	refineryStageW = 580.0
)

const (
	pipeRadius   = 5
	oilRadius    = 2
	oilMass      = 0.01
	oilMaxSpeed  = 120
	oilStageX    = 730 // 580 wide stage + 150
	oilStageY    = 0
	valveRadius  = 2
	spillRadius  = 7
	sensorRadius = 3
)

// pipework of the pretreatment unit relative to unitOrigin
var pipework = [][2]mgl64.Vec2{
	{{-278, 270}, {-278, 145}}, // tank left wall
	{{-278, 145}, {-246, 107}},
	{{-180, 270}, {-180, 145}}, // tank right wall
	{{-180, 145}, {-215, 107}},
	{{-246, 107}, {-246, 53}},
	{{-246, 53}, {-19, 53}},
	{{-19, 53}, {-19, 33}},
	{{-215, 107}, {-215, 80}},
	{{-215, 80}, {7, 80}},
	{{7, 80}, {7, 33}},
	{{-19, 31}, {-95, 31}}, // separator
	{{-95, 31}, {-95, -23}},
	{{-95, -23}, {-83, -23}},
	{{-83, -23}, {-80, -80}}, // waste exit
	{{-68, -80}, {-65, -23}},
	{{-65, -23}, {-45, -23}},
	{{-45, -23}, {-45, -67}},
	{{-45, -67}, {13, -67}},
	{{13, -67}, {13, -82}}, // separator exit
	{{43, -82}, {43, -67}},
	{{43, -67}, {65, -62}},
	{{65, -62}, {77, 31}},
	{{77, 31}, {7, 31}},
	{{-3, -67}, {-3, 10}}, // separator baffle
	{{43, -85}, {43, -113}}, // product line
	{{43, -113}, {580, -113}},
	{{13, -85}, {13, -140}},
	{{13, -140}, {580, -140}},
	{{-87, -85}, {-87, -112}}, // waste line
	{{-60, -85}, {-60, -140}},
	{{-87, -112}, {-163, -112}},
	{{-60, -140}, {-134, -140}},
	{{-163, -112}, {-163, -185}},
	{{-134, -140}, {-134, -185}},
}

type oilRefinery struct {
	m AddressMap

	run, feedPump, tankLevel, outletValve, separatorVessel int
	separatorFeed, spill, processed, wasteValve             int
	spillDetected                                           int

	// gated valve bodies, set by Setup
	outlet, separator, waste world.BodyID
}

func newOilRefinery() Variant {
	return &oilRefinery{
		m:               oilMap,
		run:             oilMap.mustAddr(Run),
		feedPump:        oilMap.mustAddr(FeedPump),
		tankLevel:       oilMap.mustAddr(TankLevel),
		outletValve:     oilMap.mustAddr(OutletValve),
		separatorVessel: oilMap.mustAddr(SeparatorVessel),
		separatorFeed:   oilMap.mustAddr(SeparatorFeed),
		spill:           oilMap.mustAddr(OilSpillCount),
		processed:       oilMap.mustAddr(OilProcessedCount),
		wasteValve:      oilMap.mustAddr(WasteValve),
		spillDetected:   oilMap.mustAddr(SpillDetected),
	}
}

func (o *oilRefinery) Name() string    { return o.m.Variant }
func (o *oilRefinery) Map() AddressMap { return o.m }

func (o *oilRefinery) Identity() modbus.Identity {
	return modbus.Identity{
		VendorName:  "Simmons Oil Refining Platform",
		ProductCode: "SORP",
		Revision:    "2.09.01",
		VendorURL:   "http://simmons.com/markets/oil-gas/pages/refining-industry.html",
		ProductName: "SORP 3850",
		ModelName:   "Simmons ORP 3850",
	}
}

func (o *oilRefinery) Logic() scan.Logic {
	return scan.OilRefinery{
		Run:             o.run,
		TankLevel:       o.tankLevel,
		SeparatorFeed:   o.separatorFeed,
		Spill:           o.spillDetected,
		FeedPump:        o.feedPump,
		OutletValve:     o.outletValve,
		SeparatorVessel: o.separatorVessel,
		WasteValve:      o.wasteValve,
	}
}

func valve(at mgl64.Vec2, half float64) world.BodySpec {
	return world.BodySpec{
		Position: at,
		Shapes: []world.Shape{
			world.NewSegment(world.ActuatorZone, mgl64.Vec2{-half, 0}, mgl64.Vec2{half, 0}, valveRadius),
		},
	}
}

func probeAt(at mgl64.Vec2, name string, addr int) world.BodySpec {
	return world.BodySpec{
		Position: at,
		Shapes:   []world.Shape{world.NewCircle(world.SensorProbe, mgl64.Vec2{}, sensorRadius).WithProbe(name, addr)},
	}
}

func (o *oilRefinery) Setup(env *Env) error {
	w := env.World

	pipes := make([]world.Shape, 0, len(pipework))
	for _, seg := range pipework {
		pipes = append(pipes, world.NewSegment(world.Floor, seg[0], seg[1], pipeRadius))
	}
	w.Add(world.BodySpec{Position: unitOrigin, Shapes: pipes})
	w.Add(world.BodySpec{
		Position: pumpAt,
		Shapes:   []world.Shape{world.NewBox(world.ActuatorZone, mgl64.Vec2{}, 15, 20)},
	})
	o.outlet = w.Add(valve(outletValveAt, 14))
	o.separator = w.Add(valve(separatorAt, 15))
	o.waste = w.Add(valve(wasteValveAt, 8))

	w.Add(probeAt(tankLevelAt, TankLevel, o.tankLevel))
	w.Add(probeAt(separatorInAt, SeparatorFeed, o.separatorFeed))
	w.Add(probeAt(processedAt, OilProcessedCount, o.processed))
	w.Add(world.BodySpec{
		Shapes: []world.Shape{
			world.NewSegment(world.SensorProbe, mgl64.Vec2{0, spillLineY}, mgl64.Vec2{refineryStageW, spillLineY}, spillRadius).
				WithProbe(OilSpillCount, o.spill),
		},
	})

	// Level probes report presence; counters count arrivals; the spill line
	// does both, counting into oilSpillCount and flagging spillDetected
	presence := func(regs register.ReadWriter, addr int, c world.Contact) error {
		return dispatch.SetIfChanged(regs, addr, register.Bool(c.Overlaps > 0))
	}
	env.Dispatcher.Register(world.SensorProbe, world.Liquid,
		func(regs register.ReadWriter, c world.Contact) error {
			switch c.Probe.Addr {
			case o.spill:
				if err := dispatch.Increment(regs, o.spill); err != nil {
					return err
				}
				return presence(regs, o.spillDetected, c)
			case o.processed:
				return dispatch.Increment(regs, c.Probe.Addr)
			default:
				return presence(regs, c.Probe.Addr, c)
			}
		},
		func(regs register.ReadWriter, c world.Contact) error {
			switch c.Probe.Addr {
			case o.spill:
				return presence(regs, o.spillDetected, c)
			case o.processed:
				return nil
			default:
				return presence(regs, c.Probe.Addr, c)
			}
		})

	return env.Lifecycle.AddRule(lifecycle.Rule{
		Class: world.Liquid,
		Cap:   env.Limits.MaxParticles,
		Spawn: func(t lifecycle.Tick) []world.BodySpec {
			if !t.Image.Bit(o.feedPump) {
				return nil
			}
			return []world.BodySpec{{
				Position: mgl64.Vec2{69 + float64(env.Rand.Intn(2)), oilDropY},
				Mass:     oilMass,
				MaxSpeed: oilMaxSpeed,
				Shapes:   []world.Shape{world.NewCircle(world.Liquid, mgl64.Vec2{}, oilRadius)},
			}}
		},
		Retire: offStage(oilStageX, oilStageY),
	})
}

func (o *oilRefinery) Actuate(env *Env, image register.Snapshot) {
	env.World.SetGate(o.outlet, image.Bit(o.outletValve))
	env.World.SetGate(o.separator, image.Bit(o.separatorVessel))
	env.World.SetGate(o.waste, image.Bit(o.wasteValve))
}
