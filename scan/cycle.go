package scan

import (
	"io"
	"log"
	"sync/atomic"

	"github.com/lixenwraith/virtuaplant/register"
	"github.com/lixenwraith/virtuaplant/status"
)

// Image is the part of the register table a scan needs
type Image interface {
	Snapshot() register.Snapshot
	Set(addr int, value int) error
}

// Cycle applies a Logic to a register image
// Actuator writes are individual sets; clients may overwrite them until the next cycle
type Cycle struct {
	logic  Logic
	image  Image
	logger *log.Logger

	last map[int]uint16 // value this cycle last wrote per output

	scans     *atomic.Int64
	overrides *atomic.Int64
	failures  *atomic.Int64
}

// NewCycle binds logic to image
func NewCycle(logic Logic, image Image, logger *log.Logger, reg *status.Registry) *Cycle {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Cycle{
		logic:     logic,
		image:     image,
		logger:    logger,
		last:      make(map[int]uint16),
		scans:     reg.Counter("scan.cycles"),
		overrides: reg.Counter("scan.overrides"),
		failures:  reg.Counter("scan.failures"),
	}
}

// Logic returns the bound program
func (c *Cycle) Logic() Logic {
	return c.logic
}

// Run performs one scan and returns the writes applied
func (c *Cycle) Run() []Write {
	snap := c.image.Snapshot()
	writes := c.logic.Evaluate(snap)
	for _, w := range writes {
		// A value that differs from our last write was put there by someone else
		if prev, ok := c.last[w.Addr]; ok && snap.Value(w.Addr) != prev && w.Value != snap.Value(w.Addr) {
			c.overrides.Add(1)
		}
		if err := c.image.Set(w.Addr, int(w.Value)); err != nil {
			c.failures.Add(1)
			c.logger.Printf("[scan] %s write %d=%d: %v", c.logic.Name(), w.Addr, w.Value, err)
			continue
		}
		c.last[w.Addr] = w.Value
	}
	c.scans.Add(1)
	return writes
}
