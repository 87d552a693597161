package world

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Config holds solver parameters
type Config struct {
	Gravity    mgl64.Vec2
	Iterations int     // velocity iterations per step
	Relax      int     // position correction passes per step
	Slop       float64 // penetration allowed before positional correction
	Correction float64 // fraction of penetration removed per pass
	Margin     float64 // broadphase fattening so probes see post-solve positions
}

// DefaultConfig returns the plant world parameters
func DefaultConfig() Config {
	return Config{
		Gravity:    mgl64.Vec2{0, -900},
		Iterations: 8,
		Relax:      4,
		Slop:       0.05,
		Correction: 0.8,
		Margin:     1,
	}
}

// World owns every body and advances them in fixed steps
// Not safe for concurrent use; the simulator goroutine is the only caller
type World struct {
	cfg Config

	bodies map[BodyID]*Body
	order  []BodyID // ascending; drives every result-affecting loop
	nextID BodyID
	tick   uint64

	shift   map[BodyID]mgl64.Vec2 // kinematic displacement since last step
	open    map[BodyID]bool       // gated actuator zones currently passable
	marked  []BodyID
	classes map[Class]int

	active  map[pairKey]Class // live probe overlaps -> other class
	counts  map[countKey]int
	pending []Contact // separates caused by removal, emitted next step
}

// New creates an empty world
func New(cfg Config) *World {
	if cfg.Iterations <= 0 {
		cfg.Iterations = 1
	}
	if cfg.Relax <= 0 {
		cfg.Relax = 1
	}
	return &World{
		cfg:     cfg,
		bodies:  make(map[BodyID]*Body),
		shift:   make(map[BodyID]mgl64.Vec2),
		open:    make(map[BodyID]bool),
		classes: make(map[Class]int),
		active:  make(map[pairKey]Class),
		counts:  make(map[countKey]int),
	}
}

// Add creates a body and returns its id
func (w *World) Add(spec BodySpec) BodyID {
	w.nextID++
	b := &Body{
		ID:        w.nextID,
		Position:  spec.Position,
		Velocity:  spec.Velocity,
		Mass:      spec.Mass,
		Kinematic: spec.Kinematic,
		MaxSpeed:  spec.MaxSpeed,
		Shapes:    append([]Shape(nil), spec.Shapes...),
	}
	if spec.Mass > 0 && !spec.Kinematic {
		b.invMass = 1 / spec.Mass
	}
	w.bodies[b.ID] = b
	w.order = append(w.order, b.ID)
	w.classes[b.Class()]++
	return b.ID
}

// Remove marks a body for removal at the next Flush
// Unknown or already marked ids are ignored
func (w *World) Remove(id BodyID) {
	b, ok := w.bodies[id]
	if !ok || b.removed {
		return
	}
	b.removed = true
	w.marked = append(w.marked, id)
}

// Flush sweeps marked bodies and returns how many were removed
// Probe overlaps held by removed bodies end with a Separate in the next step
func (w *World) Flush() int {
	if len(w.marked) == 0 {
		return 0
	}
	gone := make(map[BodyID]bool, len(w.marked))
	for _, id := range w.marked {
		gone[id] = true
		w.classes[w.bodies[id].Class()]--
		delete(w.bodies, id)
		delete(w.shift, id)
		delete(w.open, id)
	}
	w.marked = w.marked[:0]

	for k, other := range w.active {
		if !gone[k.probe] && !gone[k.other] {
			continue
		}
		delete(w.active, k)
		c := Contact{
			Phase:      Separate,
			ProbeBody:  k.probe,
			ProbeShape: k.probeShape,
			Other:      other,
			OtherBody:  k.other,
			OtherShape: k.otherShape,
		}
		if p, ok := w.bodies[k.probe]; ok {
			s := &p.Shapes[k.probeShape]
			c.ProbeClass = s.Class
			c.Probe = *s.Probe
		}
		w.pending = append(w.pending, c)
	}

	kept := w.order[:0]
	for _, id := range w.order {
		if !gone[id] {
			kept = append(kept, id)
		}
	}
	w.order = kept
	return len(gone)
}

// Move displaces a kinematic or static body
// The displacement counts as velocity for contacts in the next step
func (w *World) Move(id BodyID, delta mgl64.Vec2) bool {
	b, ok := w.bodies[id]
	if !ok || b.removed || b.Dynamic() {
		return false
	}
	b.Position = b.Position.Add(delta)
	w.shift[id] = w.shift[id].Add(delta)
	return true
}

// SetGate opens or closes the actuator zones of a body
// Open zones let bodies pass; closed zones are solid
func (w *World) SetGate(id BodyID, open bool) bool {
	if _, ok := w.bodies[id]; !ok {
		return false
	}
	if open {
		w.open[id] = true
	} else {
		delete(w.open, id)
	}
	return true
}

// GateOpen reports the gate state of a body
func (w *World) GateOpen(id BodyID) bool {
	return w.open[id]
}

// Body returns a copy of the body state
func (w *World) Body(id BodyID) (Body, bool) {
	b, ok := w.bodies[id]
	if !ok {
		return Body{}, false
	}
	return *b, true
}

// Bodies returns live body ids of a class in ascending order
func (w *World) Bodies(class Class) []BodyID {
	var ids []BodyID
	for _, id := range w.order {
		b := w.bodies[id]
		if !b.removed && b.Class() == class {
			ids = append(ids, id)
		}
	}
	return ids
}

// Count returns the number of bodies of a class present in the world
// Marked bodies count until flushed
func (w *World) Count(class Class) int {
	return w.classes[class]
}

// Len returns the number of bodies present
func (w *World) Len() int {
	return len(w.order)
}

// Tick returns the number of completed steps
func (w *World) Tick() uint64 {
	return w.tick
}

// Step advances the world by dt and returns the probe transitions of this step, sorted
func (w *World) Step(dt float64) []Contact {
	w.tick++
	w.integrate(dt)

	pairs := w.broadphase()
	manifolds := w.narrowphase(pairs)
	w.solve(manifolds)

	contacts := w.probes(pairs)
	for id := range w.shift {
		if b := w.bodies[id]; b != nil {
			b.Velocity = mgl64.Vec2{}
		}
		delete(w.shift, id)
	}
	return contacts
}

func (w *World) integrate(dt float64) {
	for _, id := range w.order {
		b := w.bodies[id]
		if b.removed {
			continue
		}
		if !b.Dynamic() {
			if d, ok := w.shift[id]; ok && dt > 0 {
				b.Velocity = d.Mul(1 / dt)
			}
			continue
		}
		b.Velocity = b.Velocity.Add(w.cfg.Gravity.Mul(dt))
		if b.MaxSpeed > 0 {
			if s := b.Velocity.Len(); s > b.MaxSpeed {
				b.Velocity = b.Velocity.Mul(b.MaxSpeed / s)
			}
		}
		b.Position = b.Position.Add(b.Velocity.Mul(dt))
	}
}

// proxy is one shape in the broadphase
type proxy struct {
	body  *Body
	shape int
	box   aabb
}

// pair is a broadphase candidate; a precedes b in sweep order
type pair struct {
	a, b *proxy
}

// broadphase sweeps shapes along x and returns bounding-box overlaps
// Pairs where neither body moves are skipped
func (w *World) broadphase() []pair {
	proxies := make([]*proxy, 0, len(w.order))
	for _, id := range w.order {
		b := w.bodies[id]
		if b.removed {
			continue
		}
		for i := range b.Shapes {
			p := b.Shapes[i].place(b.Position)
			proxies = append(proxies, &proxy{body: b, shape: i, box: p.bounds(w.cfg.Margin)})
		}
	}
	sort.Slice(proxies, func(i, j int) bool {
		pi, pj := proxies[i], proxies[j]
		if pi.box.min.X() != pj.box.min.X() {
			return pi.box.min.X() < pj.box.min.X()
		}
		if pi.body.ID != pj.body.ID {
			return pi.body.ID < pj.body.ID
		}
		return pi.shape < pj.shape
	})

	var pairs []pair
	var live []*proxy
	for _, p := range proxies {
		kept := live[:0]
		for _, q := range live {
			if q.box.max.X() >= p.box.min.X() {
				kept = append(kept, q)
			}
		}
		live = kept
		for _, q := range live {
			if q.body == p.body || (q.body.Static() && p.body.Static()) {
				continue
			}
			if q.box.overlaps(p.box) {
				pairs = append(pairs, pair{a: q, b: p})
			}
		}
		live = append(live, p)
	}
	return pairs
}

// manifold is a solid contact; a holds a circle, normal points from b toward a
type manifold struct {
	a, b       *Body
	sa, sb     *Shape
	normal     mgl64.Vec2
	depth      float64
	friction   float64
	elasticity float64
	support    float64 // height of the lower body, solve order key
}

// stackNormal is the vertical normal component above which a dynamic pair is
// treated as one body resting on another
const stackNormal = 0.5

// resting reports which side of a dynamic pair bears the load
// It returns +1 when a rests on b, -1 when b rests on a, 0 for side contacts
func (m *manifold) resting() int {
	if !m.a.Dynamic() || !m.b.Dynamic() {
		return 0
	}
	switch {
	case m.normal.Y() > stackNormal:
		return 1
	case m.normal.Y() < -stackNormal:
		return -1
	}
	return 0
}

// weights returns the inverse masses used for one contact
// In shock mode the supporting body of a stacked pair is held fixed
func (m *manifold) weights(shock bool) (float64, float64) {
	ia, ib := m.a.invMass, m.b.invMass
	if !shock {
		return ia, ib
	}
	switch m.resting() {
	case 1:
		return ia, 0
	case -1:
		return 0, ib
	}
	return ia, ib
}

func (w *World) solid(b *Body, s *Shape) bool {
	if s.Class.Sensor() {
		return false
	}
	return !(s.Class == ActuatorZone && w.open[b.ID])
}

func (w *World) narrowphase(pairs []pair) []manifold {
	var ms []manifold
	for _, pr := range pairs {
		a, b := pr.a, pr.b
		if !a.body.Dynamic() && !b.body.Dynamic() {
			continue
		}
		sa, sb := &a.body.Shapes[a.shape], &b.body.Shapes[b.shape]
		if !w.solid(a.body, sa) || !w.solid(b.body, sb) {
			continue
		}
		// Dynamic bodies carry circles; orient so the circle is on side a
		if sa.Kind != Circle {
			a, b = b, a
			sa, sb = sb, sa
		}
		if sa.Kind != Circle {
			continue
		}
		pa, pb := sa.place(a.body.Position), sb.place(b.body.Position)
		n, depth, hit := circleVs(pa.center, pa.radius, pb)
		if !hit {
			continue
		}
		support := a.body.Position.Y()
		if b.body.Dynamic() {
			support = math.Min(support, b.body.Position.Y())
		}
		ms = append(ms, manifold{
			a:          a.body,
			b:          b.body,
			sa:         sa,
			sb:         sb,
			normal:     n,
			depth:      depth,
			friction:   sa.Friction * sb.Friction,
			elasticity: math.Max(sa.Elasticity, sb.Elasticity),
			support:    support,
		})
	}

	// Bottom up, fixed bodies first at equal height, so load passes up a stack in one sweep
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].support != ms[j].support {
			return ms[i].support < ms[j].support
		}
		return !ms[i].b.Dynamic() && ms[j].b.Dynamic()
	})
	return ms
}

// solve applies sequential normal and friction impulses, then positional correction
// The last velocity pass and every position pass hold the lower body of a
// stacked dynamic pair fixed, so piles keep their volume
func (w *World) solve(ms []manifold) {
	for iter := 0; iter < w.cfg.Iterations; iter++ {
		shock := iter == w.cfg.Iterations-1
		for i := range ms {
			m := &ms[i]
			ia, ib := m.weights(shock)
			inv := ia + ib
			if inv == 0 {
				continue
			}
			rv := m.a.Velocity.Sub(m.b.Velocity)
			vn := rv.Dot(m.normal)
			if vn >= 0 {
				continue
			}
			e := 0.0
			if iter == 0 {
				e = m.elasticity
			}
			jn := -(1 + e) * vn / inv
			impulse := m.normal.Mul(jn)

			tangent := rv.Sub(m.normal.Mul(vn))
			if tl := tangent.Len(); tl > 1e-9 && m.friction > 0 {
				tangent = tangent.Mul(1 / tl)
				jt := -rv.Dot(tangent) / inv
				limit := m.friction * jn
				jt = math.Max(-limit, math.Min(limit, jt))
				impulse = impulse.Add(tangent.Mul(jt))
			}
			m.a.Velocity = m.a.Velocity.Add(impulse.Mul(ia))
			m.b.Velocity = m.b.Velocity.Sub(impulse.Mul(ib))
		}
	}

	for pass := 0; pass < w.cfg.Relax; pass++ {
		for i := range ms {
			m := &ms[i]
			// Earlier corrections move bodies; measure again
			if pass > 0 {
				pa, pb := m.sa.place(m.a.Position), m.sb.place(m.b.Position)
				n, depth, hit := circleVs(pa.center, pa.radius, pb)
				if !hit {
					continue
				}
				m.normal, m.depth = n, depth
			}
			ia, ib := m.weights(true)
			inv := ia + ib
			excess := m.depth - w.cfg.Slop
			if inv == 0 || excess <= 0 {
				continue
			}
			push := m.normal.Mul(excess * w.cfg.Correction / inv)
			m.a.Position = m.a.Position.Add(push.Mul(ia))
			m.b.Position = m.b.Position.Sub(push.Mul(ib))
		}
	}
}

// probes diffs current sensor overlaps against the previous step
func (w *World) probes(pairs []pair) []Contact {
	current := make(map[pairKey]Class)
	contacts := w.pending
	w.pending = nil

	for _, pr := range pairs {
		for _, side := range [2][2]*proxy{{pr.a, pr.b}, {pr.b, pr.a}} {
			probe, other := side[0], side[1]
			ps, os := &probe.body.Shapes[probe.shape], &other.body.Shapes[other.shape]
			if ps.Probe == nil || !ps.Class.Sensor() || os.Class.Sensor() || other.body.Static() {
				continue
			}
			if !overlap(ps.place(probe.body.Position), os.place(other.body.Position)) {
				continue
			}
			k := pairKey{probe.body.ID, probe.shape, other.body.ID, other.shape}
			current[k] = os.Class
			if _, was := w.active[k]; !was {
				contacts = append(contacts, Contact{
					Phase:      Begin,
					Probe:      *ps.Probe,
					ProbeClass: ps.Class,
					ProbeBody:  k.probe,
					ProbeShape: k.probeShape,
					Other:      os.Class,
					OtherBody:  k.other,
					OtherShape: k.otherShape,
				})
			}
		}
	}

	for k, other := range w.active {
		if _, still := current[k]; still {
			continue
		}
		p := w.bodies[k.probe]
		s := &p.Shapes[k.probeShape]
		contacts = append(contacts, Contact{
			Phase:      Separate,
			Probe:      *s.Probe,
			ProbeClass: s.Class,
			ProbeBody:  k.probe,
			ProbeShape: k.probeShape,
			Other:      other,
			OtherBody:  k.other,
			OtherShape: k.otherShape,
		})
	}
	w.active = current

	sortContacts(contacts)
	for i := range contacts {
		c := &contacts[i]
		c.Tick = w.tick
		ck := countKey{c.ProbeBody, c.ProbeShape, c.Other}
		if c.Phase == Begin {
			w.counts[ck]++
		} else if w.counts[ck] > 0 {
			w.counts[ck]--
		}
		c.Overlaps = w.counts[ck]
		if c.Overlaps == 0 {
			delete(w.counts, ck)
		}
	}
	return contacts
}
