package dispatch

import (
	"errors"
	"testing"

	"github.com/lixenwraith/virtuaplant/register"
	"github.com/lixenwraith/virtuaplant/status"
	"github.com/lixenwraith/virtuaplant/world"
)

func setup(t *testing.T) (*register.Table, *Dispatcher, *status.Registry) {
	t.Helper()
	reg := status.NewRegistry()
	tbl, err := register.NewTable(16, reg)
	if err != nil {
		t.Fatal(err)
	}
	return tbl, New(tbl, nil, reg), reg
}

func contact(phase world.Phase, probe, other world.Class, addr int) world.Contact {
	return world.Contact{
		Phase:      phase,
		ProbeClass: probe,
		Other:      other,
		Probe:      world.Probe{Name: "p", Addr: addr},
	}
}

func presence(regs register.ReadWriter, c world.Contact) error {
	return regs.Set(c.Probe.Addr, register.Bool(c.Phase == world.Begin))
}

func TestRegisterOrderIndependent(t *testing.T) {
	tbl, d, _ := setup(t)
	d.Register(world.BottleBottom, world.SensorProbe, presence, presence)

	d.Dispatch([]world.Contact{contact(world.Begin, world.SensorProbe, world.BottleBottom, 2)})
	if v, _ := tbl.Get(2); v != 1 {
		t.Errorf("Expected 1 after Begin, got %d", v)
	}
	d.Dispatch([]world.Contact{contact(world.Separate, world.SensorProbe, world.BottleBottom, 2)})
	if v, _ := tbl.Get(2); v != 0 {
		t.Errorf("Expected 0 after Separate, got %d", v)
	}
}

func TestNilPhaseAndReplace(t *testing.T) {
	tbl, d, reg := setup(t)
	d.Register(world.SensorProbe, world.Liquid, presence, nil)
	d.Dispatch([]world.Contact{
		contact(world.Begin, world.SensorProbe, world.Liquid, 1),
		contact(world.Separate, world.SensorProbe, world.Liquid, 1),
	})
	if v, _ := tbl.Get(1); v != 1 {
		t.Errorf("Expected Separate ignored, got %d", v)
	}
	if got := reg.Counter("dispatch.unhandled").Load(); got != 1 {
		t.Errorf("Expected 1 unhandled, got %d", got)
	}

	d.Register(world.Liquid, world.SensorProbe, nil, presence)
	d.Dispatch([]world.Contact{contact(world.Separate, world.SensorProbe, world.Liquid, 1)})
	if v, _ := tbl.Get(1); v != 0 {
		t.Errorf("Expected replaced handler to clear, got %d", v)
	}
}

func TestFailurePolicy(t *testing.T) {
	tbl, d, reg := setup(t)
	d.Register(world.SensorProbe, world.Liquid, presence, nil)
	d.Register(world.SensorProbe, world.BottleSide, func(register.ReadWriter, world.Contact) error {
		panic("boom")
	}, nil)

	n := d.Dispatch([]world.Contact{
		contact(world.Begin, world.SensorProbe, world.Liquid, 99),
		contact(world.Begin, world.SensorProbe, world.BottleSide, 3),
		contact(world.Begin, world.SensorProbe, world.Liquid, 4),
	})
	if n != 1 {
		t.Errorf("Expected 1 successful event, got %d", n)
	}
	if got := reg.Counter("dispatch.dropped").Load(); got != 2 {
		t.Errorf("Expected 2 dropped, got %d", got)
	}
	if v, _ := tbl.Get(4); v != 1 {
		t.Errorf("Expected dispatch to continue after failures, got %d", v)
	}
}

func TestRecorderJournal(t *testing.T) {
	tbl, d, _ := setup(t)
	rec := NewRecorder(0)
	d.Record(rec)
	d.Register(world.SensorProbe, world.Liquid, func(regs register.ReadWriter, c world.Contact) error {
		return SetIfChanged(regs, c.Probe.Addr, 1)
	}, nil)
	d.Register(world.SensorProbe, world.Floor, func(regs register.ReadWriter, c world.Contact) error {
		return Increment(regs, c.Probe.Addr)
	}, nil)

	c := contact(world.Begin, world.SensorProbe, world.Liquid, 5)
	c.Tick = 9
	d.Dispatch([]world.Contact{c, c, contact(world.Begin, world.SensorProbe, world.Floor, 6)})

	got := rec.Drain()
	want := []Write{{Tick: 9, Addr: 5, Value: 1}, {Tick: 0, Addr: 6, Value: 1}}
	if len(got) != len(want) {
		t.Fatalf("Expected %d writes, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d: got %+v, expected %+v", i, got[i], want[i])
		}
	}
	if len(rec.Writes()) != 0 {
		t.Error("Expected journal empty after Drain")
	}
	if v, _ := tbl.Get(6); v != 1 {
		t.Errorf("Expected counter 1, got %d", v)
	}
}

func TestRecorderLimit(t *testing.T) {
	rec := NewRecorder(2)
	for i := 0; i < 5; i++ {
		rec.add(Write{Addr: i})
	}
	w := rec.Writes()
	if len(w) != 2 || w[0].Addr != 3 || w[1].Addr != 4 {
		t.Errorf("Expected last two writes kept, got %+v", w)
	}
}

func TestIncrementWraps(t *testing.T) {
	tbl, _ := register.NewTable(2, nil)
	_ = tbl.Set(0, 65535)
	if err := Increment(tbl, 0); err != nil {
		t.Fatal(err)
	}
	if v, _ := tbl.Get(0); v != 0 {
		t.Errorf("Expected wrap to 0, got %d", v)
	}
	if err := Increment(tbl, 5); !errors.Is(err, register.ErrAddressOutOfRange) {
		t.Errorf("Expected out of range, got %v", err)
	}
}
