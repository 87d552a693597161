package world

import "github.com/go-gl/mathgl/mgl64"

// ShapeKind selects the collision primitive
type ShapeKind uint8

const (
	Circle ShapeKind = iota + 1
	Segment
	Box
)

// Probe binds a sensor shape to a register
type Probe struct {
	Name string
	Addr int
}

// Shape is a collision primitive in body-local coordinates
// Bodies never rotate, so local offsets translate directly to world space
type Shape struct {
	Kind  ShapeKind
	Class Class

	Center mgl64.Vec2 // circle centre, box centre
	A, B   mgl64.Vec2 // segment endpoints
	Radius float64    // circle radius, segment thickness
	Half   mgl64.Vec2 // box half extents

	Friction   float64
	Elasticity float64

	// Probe is set on sensor shapes only
	Probe *Probe
}

// NewCircle creates a circle shape
func NewCircle(class Class, center mgl64.Vec2, radius float64) Shape {
	return Shape{Kind: Circle, Class: class, Center: center, Radius: radius}
}

// NewSegment creates a rounded segment shape
func NewSegment(class Class, a, b mgl64.Vec2, radius float64) Shape {
	return Shape{Kind: Segment, Class: class, A: a, B: b, Radius: radius}
}

// NewBox creates an axis-aligned box of the given width and height
func NewBox(class Class, center mgl64.Vec2, w, h float64) Shape {
	return Shape{Kind: Box, Class: class, Center: center, Half: mgl64.Vec2{w / 2, h / 2}}
}

// WithFriction returns a copy with the friction coefficient set
func (s Shape) WithFriction(f float64) Shape {
	s.Friction = f
	return s
}

// WithProbe returns a copy bound to a register
func (s Shape) WithProbe(name string, addr int) Shape {
	s.Probe = &Probe{Name: name, Addr: addr}
	return s
}

// placed is a shape translated to world space
type placed struct {
	kind   ShapeKind
	center mgl64.Vec2
	a, b   mgl64.Vec2
	radius float64
	half   mgl64.Vec2
}

func (s *Shape) place(pos mgl64.Vec2) placed {
	return placed{
		kind:   s.Kind,
		center: pos.Add(s.Center),
		a:      pos.Add(s.A),
		b:      pos.Add(s.B),
		radius: s.Radius,
		half:   s.Half,
	}
}

// aabb is an axis-aligned bounding box
type aabb struct {
	min, max mgl64.Vec2
}

func (p placed) bounds(margin float64) aabb {
	var lo, hi mgl64.Vec2
	switch p.kind {
	case Circle:
		r := mgl64.Vec2{p.radius, p.radius}
		lo, hi = p.center.Sub(r), p.center.Add(r)
	case Segment:
		r := mgl64.Vec2{p.radius, p.radius}
		lo = mgl64.Vec2{min(p.a.X(), p.b.X()), min(p.a.Y(), p.b.Y())}.Sub(r)
		hi = mgl64.Vec2{max(p.a.X(), p.b.X()), max(p.a.Y(), p.b.Y())}.Add(r)
	case Box:
		lo, hi = p.center.Sub(p.half), p.center.Add(p.half)
	}
	m := mgl64.Vec2{margin, margin}
	return aabb{min: lo.Sub(m), max: hi.Add(m)}
}

func (a aabb) overlaps(b aabb) bool {
	return a.min.X() <= b.max.X() && b.min.X() <= a.max.X() &&
		a.min.Y() <= b.max.Y() && b.min.Y() <= a.max.Y()
}
