package status

import "sync/atomic"

// Registry is the process-wide set of observable counters
// Components resolve their pointers at construction; hot paths only touch atomics
type Registry struct {
	Counters *MetricMap[atomic.Int64]
	Gauges   *MetricMap[Gauge]
	Flags    *MetricMap[atomic.Bool]
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		Counters: NewMetricMap[atomic.Int64](),
		Gauges:   NewMetricMap[Gauge](),
		Flags:    NewMetricMap[atomic.Bool](),
	}
}

// Counter is shorthand for Counters.Get
// A nil registry yields a detached counter so components can run unobserved
func (r *Registry) Counter(name string) *atomic.Int64 {
	if r == nil {
		return new(atomic.Int64)
	}
	return r.Counters.Get(name)
}

// Gauge is shorthand for Gauges.Get with the same nil behavior as Counter
func (r *Registry) Gauge(name string) *Gauge {
	if r == nil {
		return new(Gauge)
	}
	return r.Gauges.Get(name)
}

// Flag is shorthand for Flags.Get with the same nil behavior as Counter
func (r *Registry) Flag(name string) *atomic.Bool {
	if r == nil {
		return new(atomic.Bool)
	}
	return r.Flags.Get(name)
}

// Snapshot is a point-in-time copy of every metric
type Snapshot struct {
	Counters map[string]int64   `json:"counters"`
	Gauges   map[string]float64 `json:"gauges"`
	Flags    map[string]bool    `json:"flags"`
}

// Snapshot copies all current values
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		Counters: make(map[string]int64, r.Counters.Len()),
		Gauges:   make(map[string]float64, r.Gauges.Len()),
		Flags:    make(map[string]bool, r.Flags.Len()),
	}
	r.Counters.Each(func(name string, c *atomic.Int64) { s.Counters[name] = c.Load() })
	r.Gauges.Each(func(name string, g *Gauge) { s.Gauges[name] = g.Load() })
	r.Flags.Each(func(name string, f *atomic.Bool) { s.Flags[name] = f.Load() })
	return s
}

// Total returns the number of registered metrics across kinds
func (r *Registry) Total() int {
	return r.Counters.Len() + r.Gauges.Len() + r.Flags.Len()
}
