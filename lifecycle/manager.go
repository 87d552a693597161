// Package lifecycle spawns and retires transient bodies under per-class caps
package lifecycle

import (
	"fmt"
	"io"
	"log"
	"sync/atomic"

	"github.com/lixenwraith/virtuaplant/register"
	"github.com/lixenwraith/virtuaplant/status"
	"github.com/lixenwraith/virtuaplant/world"
)

// Tick is what a spawn rule sees of the current tick
type Tick struct {
	Number   uint64
	Contacts []world.Contact
	Image    register.Snapshot
}

// SpawnFunc returns bodies to create this tick
type SpawnFunc func(t Tick) []world.BodySpec

// RetireFunc reports whether a live body has left the stage
type RetireFunc func(b world.Body) bool

// Rule governs one transient class
type Rule struct {
	Class  world.Class
	Cap    int // 0 means unbounded
	Spawn  SpawnFunc
	Retire RetireFunc
}

type tracked struct {
	rule Rule
	live []world.BodyID // oldest first
}

// Manager is the only creator and destroyer of transient bodies
// Used from the simulator goroutine only
type Manager struct {
	world  *world.World
	rules  []*tracked
	index  map[world.Class]*tracked
	logger *log.Logger

	spawned *atomic.Int64
	retired *atomic.Int64
	evicted *atomic.Int64
}

// New creates a manager over w
func New(w *world.World, logger *log.Logger, reg *status.Registry) *Manager {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Manager{
		world:   w,
		index:   make(map[world.Class]*tracked),
		logger:  logger,
		spawned: reg.Counter("lifecycle.spawned"),
		retired: reg.Counter("lifecycle.retired"),
		evicted: reg.Counter("lifecycle.evicted"),
	}
}

// AddRule registers a rule; rules run in registration order
func (m *Manager) AddRule(r Rule) error {
	if _, dup := m.index[r.Class]; dup {
		return fmt.Errorf("lifecycle rule for %s already registered", r.Class)
	}
	if r.Cap < 0 {
		return fmt.Errorf("lifecycle cap %d for %s is negative", r.Cap, r.Class)
	}
	t := &tracked{rule: r}
	m.rules = append(m.rules, t)
	m.index[r.Class] = t
	return nil
}

// Spawn creates a body of a managed class outside the rule schedule
// The plant uses it for the initial bottle
func (m *Manager) Spawn(class world.Class, spec world.BodySpec) (world.BodyID, error) {
	t, ok := m.index[class]
	if !ok {
		return 0, fmt.Errorf("no lifecycle rule for %s", class)
	}
	return m.spawn(t, spec), nil
}

// Apply retires bodies past their thresholds, then runs spawn rules
func (m *Manager) Apply(tick Tick) {
	for _, t := range m.rules {
		m.retire(t)
	}
	for _, t := range m.rules {
		if t.rule.Spawn == nil {
			continue
		}
		for _, spec := range t.rule.Spawn(tick) {
			m.spawn(t, spec)
		}
	}
}

// Live returns live body ids of class, oldest first
func (m *Manager) Live(class world.Class) []world.BodyID {
	t, ok := m.index[class]
	if !ok {
		return nil
	}
	return append([]world.BodyID(nil), t.live...)
}

func (m *Manager) retire(t *tracked) {
	if t.rule.Retire == nil {
		return
	}
	kept := t.live[:0]
	for _, id := range t.live {
		b, ok := m.world.Body(id)
		if !ok || t.rule.Retire(b) {
			m.world.Remove(id)
			m.retired.Add(1)
			continue
		}
		kept = append(kept, id)
	}
	t.live = kept
}

func (m *Manager) spawn(t *tracked, spec world.BodySpec) world.BodyID {
	if t.rule.Cap > 0 && len(t.live) >= t.rule.Cap {
		oldest := t.live[0]
		t.live = t.live[1:]
		m.world.Remove(oldest)
		if m.evicted.Add(1) == 1 {
			m.logger.Printf("[lifecycle] %s cap %d reached, evicting oldest", t.rule.Class, t.rule.Cap)
		}
	}
	id := m.world.Add(spec)
	t.live = append(t.live, id)
	m.spawned.Add(1)
	return id
}
