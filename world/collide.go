package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var up = mgl64.Vec2{0, 1}

// closestOnSegment returns the point of segment ab nearest to p
func closestOnSegment(p, a, b mgl64.Vec2) mgl64.Vec2 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return a
	}
	t := p.Sub(a).Dot(ab) / l2
	t = math.Max(0, math.Min(1, t))
	return a.Add(ab.Mul(t))
}

// separation of point c from point q when closer than reach
// Normal points from q toward c
func separation(c, q mgl64.Vec2, reach float64) (mgl64.Vec2, float64, bool) {
	d := c.Sub(q)
	dist2 := d.Dot(d)
	if dist2 >= reach*reach {
		return mgl64.Vec2{}, 0, false
	}
	dist := math.Sqrt(dist2)
	if dist == 0 {
		return up, reach, true
	}
	return d.Mul(1 / dist), reach - dist, true
}

// circleVs tests a circle against any placed shape
// Normal points from the other shape toward the circle centre
func circleVs(c mgl64.Vec2, r float64, o placed) (mgl64.Vec2, float64, bool) {
	switch o.kind {
	case Circle:
		return separation(c, o.center, r+o.radius)
	case Segment:
		q := closestOnSegment(c, o.a, o.b)
		n, depth, hit := separation(c, q, r+o.radius)
		if hit && c == q {
			// Centre on the spine: push along the segment normal
			ab := o.b.Sub(o.a)
			if ab.Dot(ab) > 0 {
				n = mgl64.Vec2{-ab.Y(), ab.X()}.Normalize()
			}
		}
		return n, depth, hit
	case Box:
		lo, hi := o.center.Sub(o.half), o.center.Add(o.half)
		q := mgl64.Vec2{
			math.Max(lo.X(), math.Min(hi.X(), c.X())),
			math.Max(lo.Y(), math.Min(hi.Y(), c.Y())),
		}
		if q != c {
			return separation(c, q, r)
		}
		// Centre inside: leave through the nearest face
		left, right := c.X()-lo.X(), hi.X()-c.X()
		bottom, top := c.Y()-lo.Y(), hi.Y()-c.Y()
		n, d := mgl64.Vec2{0, 1}, top
		if bottom < d {
			n, d = mgl64.Vec2{0, -1}, bottom
		}
		if left < d {
			n, d = mgl64.Vec2{-1, 0}, left
		}
		if right < d {
			n, d = mgl64.Vec2{1, 0}, right
		}
		return n, d + r, true
	}
	return mgl64.Vec2{}, 0, false
}

func cross(a, b mgl64.Vec2) float64 {
	return a.X()*b.Y() - a.Y()*b.X()
}

// segmentsIntersect reports whether segments pq and rs cross
func segmentsIntersect(p, q, r, s mgl64.Vec2) bool {
	d1 := cross(s.Sub(r), p.Sub(r))
	d2 := cross(s.Sub(r), q.Sub(r))
	d3 := cross(q.Sub(p), r.Sub(p))
	d4 := cross(q.Sub(p), s.Sub(p))
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func segmentDistance(p, q, r, s mgl64.Vec2) float64 {
	if segmentsIntersect(p, q, r, s) {
		return 0
	}
	d := p.Sub(closestOnSegment(p, r, s)).Len()
	d = math.Min(d, q.Sub(closestOnSegment(q, r, s)).Len())
	d = math.Min(d, r.Sub(closestOnSegment(r, p, q)).Len())
	d = math.Min(d, s.Sub(closestOnSegment(s, p, q)).Len())
	return d
}

// overlap reports whether two placed shapes intersect
// Used for probes, which never need a normal
func overlap(p, q placed) bool {
	switch {
	case p.kind == Circle:
		_, _, hit := circleVs(p.center, p.radius, q)
		return hit
	case q.kind == Circle:
		_, _, hit := circleVs(q.center, q.radius, p)
		return hit
	case p.kind == Segment && q.kind == Segment:
		return segmentDistance(p.a, p.b, q.a, q.b) < p.radius+q.radius
	case p.kind == Segment && q.kind == Box:
		return segmentVsBox(p, q)
	case p.kind == Box && q.kind == Segment:
		return segmentVsBox(q, p)
	default:
		return p.bounds(0).overlaps(q.bounds(0))
	}
}

// segmentVsBox samples the segment ends and the point nearest the box centre
func segmentVsBox(s, box placed) bool {
	for _, pt := range []mgl64.Vec2{s.a, s.b, closestOnSegment(box.center, s.a, s.b)} {
		if _, _, hit := circleVs(pt, s.radius, box); hit {
			return true
		}
	}
	return false
}
