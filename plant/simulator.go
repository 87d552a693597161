package plant

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/virtuaplant/core"
	"github.com/lixenwraith/virtuaplant/dispatch"
	"github.com/lixenwraith/virtuaplant/lifecycle"
	"github.com/lixenwraith/virtuaplant/register"
	"github.com/lixenwraith/virtuaplant/scan"
	"github.com/lixenwraith/virtuaplant/status"
	"github.com/lixenwraith/virtuaplant/world"
)

// Config tunes the tick loop
type Config struct {
	TickRate     int   // ticks per second
	Seed         int64 // liquid spawn jitter
	StartRunning bool  // set the run register before the first tick
	Limits       Limits
	World        world.Config
	JournalLimit int // handler writes kept for telemetry; 0 disables the journal
}

// DefaultConfig returns the 50 Hz plant
func DefaultConfig() Config {
	return Config{
		TickRate:     50,
		Seed:         1,
		Limits:       DefaultLimits(),
		World:        world.DefaultConfig(),
		JournalLimit: 256,
	}
}

// Frame is the per-tick summary handed to observers
type Frame struct {
	Tick      uint64           `json:"tick"`
	Registers []uint16         `json:"registers"`
	Bottles   int              `json:"bottles"`
	Particles int              `json:"particles"`
	Contacts  int              `json:"contacts"`
	Writes    []dispatch.Write `json:"writes,omitempty"`
}

// Simulator advances one plant on a fixed tick
// Tick order: actuate, step, dispatch, lifecycle, scan, flush, publish
type Simulator struct {
	variant Variant
	table   *register.Table
	cfg     Config
	env     Env
	cycle   *scan.Cycle
	journal *dispatch.Recorder
	logger  *log.Logger

	tickInterval time.Duration
	dt           float64
	tickCount    atomic.Uint64

	sinkMu sync.RWMutex
	sinks  []chan<- Frame

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool

	statTicks    *atomic.Int64
	statOverruns *atomic.Int64
	statDropped  *atomic.Int64
	statTickTime *status.Gauge
	statBodies   *status.Gauge
}

// NewSimulator builds the variant into a fresh world over table
func NewSimulator(v Variant, table *register.Table, cfg Config, logger *log.Logger, reg *status.Registry) (*Simulator, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.TickRate <= 0 {
		return nil, fmt.Errorf("tick rate %d must be positive", cfg.TickRate)
	}
	if err := v.Map().Validate(table.Size()); err != nil {
		return nil, err
	}

	w := world.New(cfg.World)
	s := &Simulator{
		variant: v,
		table:   table,
		cfg:     cfg,
		env: Env{
			World:      w,
			Dispatcher: dispatch.New(table, logger, reg),
			Lifecycle:  lifecycle.New(w, logger, reg),
			Rand:       rand.New(rand.NewSource(cfg.Seed)),
			Limits:     cfg.Limits,
		},
		cycle:        scan.NewCycle(v.Logic(), table, logger, reg),
		logger:       logger,
		tickInterval: time.Second / time.Duration(cfg.TickRate),
		dt:           1 / float64(cfg.TickRate),
		stopChan:     make(chan struct{}),
		statTicks:    reg.Counter("sim.ticks"),
		statOverruns: reg.Counter("sim.overruns"),
		statDropped:  reg.Counter("sim.frames_dropped"),
		statTickTime: reg.Gauge("sim.tick_ms"),
		statBodies:   reg.Gauge("sim.bodies"),
	}
	if cfg.JournalLimit > 0 {
		s.journal = dispatch.NewRecorder(cfg.JournalLimit)
		s.env.Dispatcher.Record(s.journal)
	}
	if err := v.Setup(&s.env); err != nil {
		return nil, fmt.Errorf("%s setup: %w", v.Name(), err)
	}
	if cfg.StartRunning {
		if err := table.Set(v.Map().mustAddr(Run), 1); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Variant returns the simulated plant
func (s *Simulator) Variant() Variant { return s.variant }

// World exposes the physics world to tests and tools on the simulator goroutine
func (s *Simulator) World() *world.World { return s.env.World }

// Env exposes the build environment
func (s *Simulator) Env() *Env { return &s.env }

// Ticks returns the number of completed ticks
func (s *Simulator) Ticks() uint64 { return s.tickCount.Load() }

// Subscribe registers a frame sink
// Sends never block: a full sink misses that frame
func (s *Simulator) Subscribe(ch chan<- Frame) {
	s.sinkMu.Lock()
	s.sinks = append(s.sinks, ch)
	s.sinkMu.Unlock()
}

// Tick runs one full cycle synchronously
func (s *Simulator) Tick() Frame {
	start := time.Now()
	env := &s.env

	s.variant.Actuate(env, s.table.Snapshot())
	contacts := env.World.Step(s.dt)
	env.Dispatcher.Dispatch(contacts)
	env.Lifecycle.Apply(lifecycle.Tick{
		Number:   env.World.Tick(),
		Contacts: contacts,
		Image:    s.table.Snapshot(),
	})
	s.cycle.Run()
	env.World.Flush()

	n := s.tickCount.Add(1)
	s.statTicks.Add(1)
	s.statTickTime.Smooth(float64(time.Since(start).Microseconds())/1000, 0.1)
	s.statBodies.Set(float64(env.World.Len()))

	f := Frame{
		Tick:      n,
		Registers: s.table.Snapshot(),
		Bottles:   env.World.Count(world.BottleBottom),
		Particles: env.World.Count(world.Liquid),
		Contacts:  len(contacts),
	}
	if s.journal != nil {
		f.Writes = s.journal.Drain()
	}
	s.publish(f)
	return f
}

func (s *Simulator) publish(f Frame) {
	s.sinkMu.RLock()
	defer s.sinkMu.RUnlock()
	for _, ch := range s.sinks {
		select {
		case ch <- f:
		default:
			s.statDropped.Add(1)
		}
	}
}

// Name implements service.Service
func (s *Simulator) Name() string { return "simulator" }

// Dependencies implements service.Service
func (s *Simulator) Dependencies() []string { return nil }

// Init implements service.Service
func (s *Simulator) Init() error { return nil }

// Start launches the tick loop
func (s *Simulator) Start() error {
	if s.running.CompareAndSwap(false, true) {
		s.wg.Add(1)
		core.Go(s.loop)
		s.logger.Printf("[sim] %s running at %d Hz", s.variant.Name(), s.cfg.TickRate)
	}
	return nil
}

// Stop halts the tick loop and waits for the current tick
func (s *Simulator) Stop() error {
	s.stopOnce.Do(func() {
		if s.running.CompareAndSwap(true, false) {
			close(s.stopChan)
			s.wg.Wait()
			s.logger.Printf("[sim] stopped after %d ticks", s.Ticks())
		}
	})
	return nil
}

// loop ticks on deadlines with drift correction
// Falling more than two intervals behind resynchronizes instead of bursting
func (s *Simulator) loop() {
	defer s.wg.Done()

	next := time.Now().Add(s.tickInterval)
	timer := time.NewTimer(s.tickInterval)
	defer timer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-timer.C:
		}

		s.Tick()

		now := time.Now()
		next = next.Add(s.tickInterval)
		if now.Sub(next) > 2*s.tickInterval {
			s.statOverruns.Add(1)
			next = now.Add(s.tickInterval)
		}
		wait := next.Sub(now)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}
