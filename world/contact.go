package world

import "sort"

// Contact is a probe overlap transition produced by Step
type Contact struct {
	Tick  uint64
	Phase Phase

	Probe      Probe
	ProbeClass Class
	ProbeBody  BodyID
	ProbeShape int

	Other      Class
	OtherBody  BodyID
	OtherShape int

	// Overlaps is the number of shapes of class Other touching the probe after this event
	Overlaps int
}

// pairKey orders probe overlaps; probe side first
type pairKey struct {
	probe      BodyID
	probeShape int
	other      BodyID
	otherShape int
}

func (k pairKey) less(o pairKey) bool {
	if k.probe != o.probe {
		return k.probe < o.probe
	}
	if k.probeShape != o.probeShape {
		return k.probeShape < o.probeShape
	}
	if k.other != o.other {
		return k.other < o.other
	}
	return k.otherShape < o.otherShape
}

func (c *Contact) key() pairKey {
	return pairKey{c.ProbeBody, c.ProbeShape, c.OtherBody, c.OtherShape}
}

// countKey tracks overlaps per probe shape and other class
type countKey struct {
	probe      BodyID
	probeShape int
	other      Class
}

func sortContacts(cs []Contact) {
	sort.Slice(cs, func(i, j int) bool {
		return cs[i].key().less(cs[j].key())
	})
}
