// Package dispatch turns probe contacts into register writes
package dispatch

import (
	"fmt"
	"io"
	"log"
	"sync/atomic"

	"github.com/lixenwraith/virtuaplant/register"
	"github.com/lixenwraith/virtuaplant/status"
	"github.com/lixenwraith/virtuaplant/world"
)

// Handler maps one contact and the current registers to register writes
// Handlers may only touch registers; returning an error drops the event
type Handler func(regs register.ReadWriter, c world.Contact) error

type classPair struct {
	lo, hi world.Class
}

func keyOf(a, b world.Class) classPair {
	if a > b {
		a, b = b, a
	}
	return classPair{a, b}
}

type entry struct {
	begin    Handler
	separate Handler
}

// Dispatcher routes contacts to handlers keyed by unordered class pair
// Used from the simulator goroutine only
type Dispatcher struct {
	regs     register.ReadWriter
	handlers map[classPair]entry
	recorder *Recorder
	logger   *log.Logger

	dispatched *atomic.Int64
	dropped    *atomic.Int64
	unhandled  *atomic.Int64
}

// New creates a dispatcher writing to regs
func New(regs register.ReadWriter, logger *log.Logger, reg *status.Registry) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{
		regs:       regs,
		handlers:   make(map[classPair]entry),
		logger:     logger,
		dispatched: reg.Counter("dispatch.events"),
		dropped:    reg.Counter("dispatch.dropped"),
		unhandled:  reg.Counter("dispatch.unhandled"),
	}
}

// Register installs handlers for a class pair in either order
// A nil handler means no writes for that phase; registering again replaces both
func (d *Dispatcher) Register(a, b world.Class, onBegin, onSeparate Handler) {
	d.handlers[keyOf(a, b)] = entry{begin: onBegin, separate: onSeparate}
}

// Record attaches a journal that captures every write made by handlers
// Pass nil to detach
func (d *Dispatcher) Record(r *Recorder) {
	d.recorder = r
}

// Dispatch runs handlers for contacts in the order given and returns how many succeeded
func (d *Dispatcher) Dispatch(contacts []world.Contact) int {
	ok := 0
	for _, c := range contacts {
		e, found := d.handlers[keyOf(c.ProbeClass, c.Other)]
		h := e.begin
		if c.Phase == world.Separate {
			h = e.separate
		}
		if !found || h == nil {
			d.unhandled.Add(1)
			continue
		}
		if err := d.invoke(h, c); err != nil {
			d.dropped.Add(1)
			d.logger.Printf("[dispatch] tick %d %s %s/%s on %q dropped: %v",
				c.Tick, c.Phase, c.ProbeClass, c.Other, c.Probe.Name, err)
			continue
		}
		d.dispatched.Add(1)
		ok++
	}
	return ok
}

func (d *Dispatcher) invoke(h Handler, c world.Contact) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	var regs register.ReadWriter = d.regs
	if d.recorder != nil {
		regs = recording{ReadWriter: d.regs, rec: d.recorder, tick: c.Tick}
	}
	return h(regs, c)
}
