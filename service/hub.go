package service

import (
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
)

// Hub owns service instances and runs their lifecycle in dependency order
type Hub struct {
	mu       sync.Mutex
	services map[string]Service
	sorted   []string // topological order, computed on InitAll
	started  []string // services that completed Start, for rollback
	logger   *log.Logger
}

// NewHub creates an empty hub
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Hub{
		services: make(map[string]Service),
		logger:   logger,
	}
}

// Register adds a service
func (h *Hub) Register(svc Service) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := svc.Name()
	if _, exists := h.services[name]; exists {
		return fmt.Errorf("service already registered: %s", name)
	}
	h.services[name] = svc
	h.sorted = nil
	return nil
}

// Get returns a service by name
func (h *Hub) Get(name string) (Service, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	svc, ok := h.services[name]
	return svc, ok
}

// Order returns the resolved start order, empty before InitAll
func (h *Hub) Order() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sorted...)
}

// InitAll resolves dependencies and initializes every service
func (h *Hub) InitAll() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sorted == nil {
		order, err := h.topologicalSort()
		if err != nil {
			return err
		}
		h.sorted = order
	}
	for _, name := range h.sorted {
		if err := h.services[name].Init(); err != nil {
			return fmt.Errorf("service %s init failed: %w", name, err)
		}
	}
	return nil
}

// StartAll starts services in dependency order
// On failure, already-started services are stopped in reverse order
func (h *Hub) StartAll() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sorted == nil {
		return fmt.Errorf("StartAll called before InitAll")
	}
	h.started = nil
	for _, name := range h.sorted {
		if err := h.services[name].Start(); err != nil {
			h.stopStarted()
			return fmt.Errorf("service %s start failed: %w", name, err)
		}
		h.logger.Printf("[hub] started %s", name)
		h.started = append(h.started, name)
	}
	return nil
}

// StopAll stops started services in reverse order
// Every service gets Stop called; errors are logged
func (h *Hub) StopAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopStarted()
}

func (h *Hub) stopStarted() {
	for i := len(h.started) - 1; i >= 0; i-- {
		name := h.started[i]
		if err := h.services[name].Stop(); err != nil {
			h.logger.Printf("[hub] stop %s: %v", name, err)
			continue
		}
		h.logger.Printf("[hub] stopped %s", name)
	}
	h.started = nil
}

// topologicalSort orders services with Kahn's algorithm
// Ties break by name so the order is stable across runs
func (h *Hub) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(h.services))
	dependents := make(map[string][]string)

	names := make([]string, 0, len(h.services))
	for name := range h.services {
		names = append(names, name)
		inDegree[name] = 0
	}
	sort.Strings(names)

	for _, name := range names {
		for _, dep := range h.services[name].Dependencies() {
			if _, exists := h.services[dep]; !exists {
				return nil, fmt.Errorf("service %s depends on unregistered service: %s", name, dep)
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for _, name := range names {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var result []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		result = append(result, name)

		var ready []string
		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(result) != len(h.services) {
		return nil, fmt.Errorf("circular dependency detected in services")
	}
	return result, nil
}
