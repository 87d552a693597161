package world

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

const dt = 1.0 / 50

func zeroG() Config {
	cfg := DefaultConfig()
	cfg.Gravity = mgl64.Vec2{}
	return cfg
}

func particle(x, y float64) BodySpec {
	return BodySpec{
		Position: mgl64.Vec2{x, y},
		Mass:     0.01,
		MaxSpeed: 120,
		Shapes:   []Shape{NewCircle(Liquid, mgl64.Vec2{}, 3)},
	}
}

func probe(x, y, r float64, addr int) BodySpec {
	return BodySpec{
		Position: mgl64.Vec2{x, y},
		Shapes:   []Shape{NewCircle(SensorProbe, mgl64.Vec2{}, r).WithProbe("probe", addr)},
	}
}

func TestAddRemoveDeferred(t *testing.T) {
	w := New(DefaultConfig())
	a := w.Add(particle(0, 0))
	b := w.Add(particle(10, 0))
	if b <= a {
		t.Fatalf("Expected ascending ids, got %d then %d", a, b)
	}
	w.Remove(a)
	w.Remove(a)
	if w.Len() != 2 || w.Count(Liquid) != 2 {
		t.Fatalf("Expected removal deferred until Flush, len=%d count=%d", w.Len(), w.Count(Liquid))
	}
	if ids := w.Bodies(Liquid); len(ids) != 1 || ids[0] != b {
		t.Errorf("Expected marked body hidden from Bodies, got %v", ids)
	}
	if n := w.Flush(); n != 1 {
		t.Errorf("Expected 1 body flushed, got %d", n)
	}
	if _, ok := w.Body(a); ok {
		t.Error("Expected removed body gone")
	}
	if w.Len() != 1 || w.Count(Liquid) != 1 {
		t.Errorf("Expected 1 body left, len=%d count=%d", w.Len(), w.Count(Liquid))
	}
	if c := w.Add(particle(0, 0)); c <= b {
		t.Errorf("Expected ids never reused, got %d after %d", c, b)
	}
}

func TestParticleRestsOnFloor(t *testing.T) {
	w := New(DefaultConfig())
	w.Add(BodySpec{
		Position: mgl64.Vec2{300, 290},
		Shapes:   []Shape{NewBox(Floor, mgl64.Vec2{}, 600, 20).WithFriction(1)},
	})
	id := w.Add(particle(300, 320))
	for i := 0; i < 200; i++ {
		w.Step(dt)
	}
	b, _ := w.Body(id)
	if y := b.Position.Y(); y < 301.5 || y > 303.5 {
		t.Errorf("Expected particle resting near y=303, got %.3f", y)
	}
	if math.Abs(b.Position.X()-300) > 0.01 {
		t.Errorf("Expected no sideways drift, got x=%.3f", b.Position.X())
	}
}

func TestProbeBeginSeparate(t *testing.T) {
	w := New(zeroG())
	w.Add(probe(0, 0, 2, 7))
	mover := w.Add(BodySpec{
		Position:  mgl64.Vec2{-10, 0},
		Mass:      10,
		Kinematic: true,
		Shapes:    []Shape{NewCircle(BottleBottom, mgl64.Vec2{}, 2)},
	})

	var events []Contact
	steps := map[Phase]int{}
	for i := 1; i <= 20; i++ {
		w.Move(mover, mgl64.Vec2{1, 0})
		for _, c := range w.Step(dt) {
			events = append(events, c)
			steps[c.Phase] = i
		}
	}
	if len(events) != 2 {
		t.Fatalf("Expected exactly 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Phase != Begin || steps[Begin] != 7 {
		t.Errorf("Expected Begin at step 7, got %v at %d", events[0].Phase, steps[Begin])
	}
	if events[1].Phase != Separate || steps[Separate] != 14 {
		t.Errorf("Expected Separate at step 14, got %v at %d", events[1].Phase, steps[Separate])
	}
	if events[0].Probe.Addr != 7 || events[0].Other != BottleBottom || events[0].ProbeClass != SensorProbe {
		t.Errorf("Unexpected contact fields %+v", events[0])
	}
	if events[0].Overlaps != 1 || events[1].Overlaps != 0 {
		t.Errorf("Expected overlap counts 1 then 0, got %d then %d", events[0].Overlaps, events[1].Overlaps)
	}
}

func TestProbeImpartsNoMomentum(t *testing.T) {
	with := New(DefaultConfig())
	with.Add(probe(0, -20, 5, 1))
	a := with.Add(particle(0, 0))

	without := New(DefaultConfig())
	b := without.Add(particle(0, 0))

	hits := 0
	for i := 0; i < 30; i++ {
		hits += len(with.Step(dt))
		without.Step(dt)
	}
	ba, _ := with.Body(a)
	bb, _ := without.Body(b)
	if ba.Position != bb.Position || ba.Velocity != bb.Velocity {
		t.Errorf("Expected identical motion, got %v/%v vs %v/%v", ba.Position, ba.Velocity, bb.Position, bb.Velocity)
	}
	if hits != 2 {
		t.Errorf("Expected the particle to pass through the probe (2 events), got %d", hits)
	}
}

func TestContactsSortedWithCounts(t *testing.T) {
	w := New(zeroG())
	w.Add(probe(0, 0, 10, 3))
	var ids []BodyID
	for i := 0; i < 3; i++ {
		ids = append(ids, w.Add(particle(float64(i*7-7), 0)))
	}
	cs := w.Step(dt)
	if len(cs) != 3 {
		t.Fatalf("Expected 3 begins, got %d", len(cs))
	}
	for i, c := range cs {
		if c.OtherBody != ids[i] || c.Phase != Begin || c.Overlaps != i+1 {
			t.Errorf("contact %d: got body %d phase %v overlaps %d", i, c.OtherBody, c.Phase, c.Overlaps)
		}
		if c.Tick != 1 {
			t.Errorf("Expected tick 1, got %d", c.Tick)
		}
	}
}

func TestRemoveEmitsSeparate(t *testing.T) {
	w := New(zeroG())
	w.Add(probe(0, 0, 3, 2))
	id := w.Add(particle(0, 0))
	if cs := w.Step(dt); len(cs) != 1 || cs[0].Phase != Begin {
		t.Fatalf("Expected one Begin, got %+v", cs)
	}
	w.Remove(id)
	w.Flush()
	cs := w.Step(dt)
	if len(cs) != 1 || cs[0].Phase != Separate || cs[0].OtherBody != id {
		t.Fatalf("Expected Separate for removed body, got %+v", cs)
	}
	if cs[0].Probe.Addr != 2 || cs[0].Other != Liquid || cs[0].Overlaps != 0 {
		t.Errorf("Unexpected separate contact %+v", cs[0])
	}
	if cs := w.Step(dt); len(cs) != 0 {
		t.Errorf("Expected no further events, got %+v", cs)
	}
}

func TestGatedZone(t *testing.T) {
	tests := []struct {
		name string
		open bool
	}{
		{"closed", false},
		{"open", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(DefaultConfig())
			gate := w.Add(BodySpec{
				Shapes: []Shape{NewSegment(ActuatorZone, mgl64.Vec2{-20, 0}, mgl64.Vec2{20, 0}, 2)},
			})
			w.SetGate(gate, tt.open)
			if w.GateOpen(gate) != tt.open {
				t.Fatalf("Expected gate open=%v", tt.open)
			}
			id := w.Add(particle(0, 10))
			for i := 0; i < 100; i++ {
				w.Step(dt)
			}
			b, _ := w.Body(id)
			if tt.open && b.Position.Y() > -10 {
				t.Errorf("Expected particle through open gate, y=%.2f", b.Position.Y())
			}
			if !tt.open && b.Position.Y() < 0 {
				t.Errorf("Expected particle held by closed gate, y=%.2f", b.Position.Y())
			}
		})
	}
}

func TestColumnKeepsVolume(t *testing.T) {
	w := New(DefaultConfig())
	// Walls 6 apart hold a single-file column
	w.Add(BodySpec{
		Position: mgl64.Vec2{0, 0},
		Shapes: []Shape{
			NewSegment(BottleBottom, mgl64.Vec2{-5, 0}, mgl64.Vec2{5, 0}, 2),
			NewSegment(BottleSide, mgl64.Vec2{-5, 0}, mgl64.Vec2{-5, 200}, 2),
			NewSegment(BottleSide, mgl64.Vec2{5, 0}, mgl64.Vec2{5, 200}, 2),
		},
	})
	const n = 20
	var ids []BodyID
	for i := 0; i < n; i++ {
		ids = append(ids, w.Add(particle(0, 6+float64(i)*8)))
	}
	for i := 0; i < 500; i++ {
		w.Step(dt)
	}

	lowest, highest := math.Inf(1), math.Inf(-1)
	for _, id := range ids {
		b, _ := w.Body(id)
		lowest = math.Min(lowest, b.Position.Y())
		highest = math.Max(highest, b.Position.Y())
	}
	if lowest < 4 {
		t.Errorf("Expected the bottom particle held above the floor, y=%.2f", lowest)
	}
	// 20 particles of diameter 6 stand about 114 above the lowest centre
	if span := highest - lowest; span < 100 {
		t.Errorf("Expected the column to keep its height, span %.2f", span)
	}
}

func buildPile(seed int) (*World, []BodyID) {
	w := New(DefaultConfig())
	w.Add(BodySpec{
		Position: mgl64.Vec2{300, 290},
		Shapes:   []Shape{NewBox(Floor, mgl64.Vec2{}, 600, 20).WithFriction(1)},
	})
	w.Add(probe(300, 305, 4, 1))
	var ids []BodyID
	for i := 0; i < 60; i++ {
		x := 280 + float64((i*seed)%40)
		y := 320 + float64(i)*4
		ids = append(ids, w.Add(particle(x, y)))
	}
	return w, ids
}

func TestStepDeterministic(t *testing.T) {
	w1, ids1 := buildPile(7)
	w2, ids2 := buildPile(7)
	for i := 0; i < 300; i++ {
		c1 := w1.Step(dt)
		c2 := w2.Step(dt)
		if len(c1) != len(c2) {
			t.Fatalf("step %d: contact count %d vs %d", i, len(c1), len(c2))
		}
		for j := range c1 {
			if c1[j] != c2[j] {
				t.Fatalf("step %d: contact %d differs: %+v vs %+v", i, j, c1[j], c2[j])
			}
		}
	}
	for i := range ids1 {
		b1, _ := w1.Body(ids1[i])
		b2, _ := w2.Body(ids2[i])
		if b1.Position != b2.Position {
			t.Fatalf("body %d diverged: %v vs %v", i, b1.Position, b2.Position)
		}
	}
}

func TestOverlapPrimitives(t *testing.T) {
	seg := placed{kind: Segment, a: mgl64.Vec2{0, 0}, b: mgl64.Vec2{10, 0}, radius: 1}
	tests := []struct {
		name string
		p    placed
		want bool
	}{
		{"circle touching segment", placed{kind: Circle, center: mgl64.Vec2{5, 2.5}, radius: 2}, true},
		{"circle clear of segment", placed{kind: Circle, center: mgl64.Vec2{5, 4}, radius: 2}, false},
		{"crossing segment", placed{kind: Segment, a: mgl64.Vec2{5, -5}, b: mgl64.Vec2{5, 5}}, true},
		{"parallel segment", placed{kind: Segment, a: mgl64.Vec2{0, 3}, b: mgl64.Vec2{10, 3}, radius: 1}, false},
		{"box over segment", placed{kind: Box, center: mgl64.Vec2{5, 1}, half: mgl64.Vec2{1, 1}}, true},
	}
	for _, tt := range tests {
		if got := overlap(tt.p, seg); got != tt.want {
			t.Errorf("%s: overlap = %v, expected %v", tt.name, got, tt.want)
		}
	}
}
