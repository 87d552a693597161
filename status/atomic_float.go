package status

import (
	"math"
	"sync/atomic"
)

// Gauge holds a float64 sample using bit conversion
// Zero value is ready to use (represents 0.0)
type Gauge struct {
	bits atomic.Uint64
}

// Set stores the current sample
func (g *Gauge) Set(val float64) {
	g.bits.Store(math.Float64bits(val))
}

// Load returns the last stored sample
func (g *Gauge) Load() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Smooth folds a new sample into an exponential moving average
// alpha in (0,1]; 1 replaces the value outright
func (g *Gauge) Smooth(sample, alpha float64) float64 {
	for {
		old := g.bits.Load()
		prev := math.Float64frombits(old)
		next := prev + alpha*(sample-prev)
		if old == 0 {
			next = sample
		}
		if g.bits.CompareAndSwap(old, math.Float64bits(next)) {
			return next
		}
	}
}
