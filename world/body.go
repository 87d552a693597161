package world

import "github.com/go-gl/mathgl/mgl64"

// BodyID identifies a body for its lifetime; ids are never reused
type BodyID uint64

// BodySpec describes a body to create
// Mass 0 makes a static body; Kinematic bodies move only through World.Move
type BodySpec struct {
	Position  mgl64.Vec2
	Velocity  mgl64.Vec2
	Mass      float64
	Kinematic bool
	MaxSpeed  float64 // 0 disables the clamp
	Shapes    []Shape
}

// Body is a rigid body owned by a World
type Body struct {
	ID        BodyID
	Position  mgl64.Vec2
	Velocity  mgl64.Vec2
	Mass      float64
	Kinematic bool
	MaxSpeed  float64
	Shapes    []Shape

	invMass float64
	removed bool
}

// Static reports whether the body never moves
func (b *Body) Static() bool {
	return b.Mass == 0 && !b.Kinematic
}

// Dynamic reports whether the body is integrated under gravity
func (b *Body) Dynamic() bool {
	return b.invMass > 0
}

// Class returns the class of the first shape
// Bodies are grouped by it for lifecycle caps and counts
func (b *Body) Class() Class {
	if len(b.Shapes) == 0 {
		return 0
	}
	return b.Shapes[0].Class
}
