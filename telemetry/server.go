// Package telemetry serves register snapshots, metrics and a websocket tick feed over HTTP
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lixenwraith/virtuaplant/core"
	"github.com/lixenwraith/virtuaplant/plant"
	"github.com/lixenwraith/virtuaplant/register"
	"github.com/lixenwraith/virtuaplant/status"
)

// Source publishes tick frames
type Source interface {
	Subscribe(ch chan<- plant.Frame)
}

// Snapshotter reads the whole register table
type Snapshotter interface {
	Snapshot() register.Snapshot
}

// Register is one named value in GET /registers
type Register struct {
	Name  string        `json:"name"`
	Addr  int           `json:"addr"`
	Role  register.Role `json:"role"`
	Value uint16        `json:"value"`
}

// Registers is the GET /registers document
type Registers struct {
	Variant    string     `json:"variant"`
	MapVersion int        `json:"map_version"`
	Registers  []Register `json:"registers"`
}

// Server is the telemetry HTTP service
type Server struct {
	config *Config
	source Source
	table  Snapshotter
	addrs  plant.AddressMap
	reg    *status.Registry
	logger *log.Logger

	upgrader websocket.Upgrader
	http     *http.Server
	listener net.Listener
	frames   chan plant.Frame

	mu      sync.Mutex
	clients map[uint64]*client
	nextID  atomic.Uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	statClients   *status.Gauge
	statSent      *atomic.Int64
	statDropped   *atomic.Int64
	statEncodeErr *atomic.Int64
	statServing   *atomic.Bool
}

// NewServer creates a telemetry server over the plant's frames and table
func NewServer(cfg *Config, source Source, table Snapshotter, addrs plant.AddressMap, logger *log.Logger, reg *status.Registry) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.EveryTicks <= 0 {
		cfg.EveryTicks = 1
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 1
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if reg == nil {
		reg = status.NewRegistry()
	}
	s := &Server{
		config:        cfg,
		source:        source,
		table:         table,
		addrs:         addrs,
		reg:           reg,
		logger:        logger,
		frames:        make(chan plant.Frame, 8),
		clients:       make(map[uint64]*client),
		stopCh:        make(chan struct{}),
		statClients:   reg.Gauge("telemetry.clients"),
		statSent:      reg.Counter("telemetry.sent"),
		statDropped:   reg.Counter("telemetry.dropped"),
		statEncodeErr: reg.Counter("telemetry.encode_errors"),
		statServing:   reg.Flag("telemetry.serving"),
	}
	// Loopback tooling only; origin is not checked
	s.upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /registers", s.handleRegisters)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

func (s *Server) handleRegisters(w http.ResponseWriter, r *http.Request) {
	snap := s.table.Snapshot()
	doc := Registers{
		Variant:    s.addrs.Variant,
		MapVersion: s.addrs.Version,
		Registers:  make([]Register, 0, len(s.addrs.Entries)),
	}
	for _, e := range s.addrs.Entries {
		doc.Registers = append(doc.Registers, Register{Name: e.Name, Addr: e.Addr, Role: e.Role, Value: snap.Value(e.Addr)})
	}
	s.writeJSON(w, doc)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.reg.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.statEncodeErr.Add(1)
		s.logger.Printf("[telemetry] encode: %v", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("[telemetry] upgrade: %v", err)
		return
	}

	c := newClient(s.nextID.Add(1), conn, s.config.SendQueueSize)
	s.mu.Lock()
	select {
	case <-s.stopCh:
		s.mu.Unlock()
		conn.Close()
		return
	default:
	}
	s.clients[c.id] = c
	s.statClients.Set(float64(len(s.clients)))
	s.mu.Unlock()

	s.logger.Printf("[telemetry] client %d connected from %s", c.id, c.addr)
	c.run(s.config, func() { s.removeClient(c) })
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.statClients.Set(float64(len(s.clients)))
	s.mu.Unlock()
}

// ClientCount returns connected websocket clients
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// broadcastLoop fans sampled frames out to clients
// A client whose queue is full is dropped, never waited on
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case f := <-s.frames:
			if f.Tick%uint64(s.config.EveryTicks) != 0 {
				continue
			}
			s.Broadcast(f)
		}
	}
}

// Broadcast encodes f once and offers it to every client
func (s *Server) Broadcast(f plant.Frame) {
	msg, err := json.Marshal(f)
	if err != nil {
		s.statEncodeErr.Add(1)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		if c.offer(msg) {
			s.statSent.Add(1)
			continue
		}
		s.statDropped.Add(1)
		s.logger.Printf("[telemetry] dropping slow client %d", id)
		delete(s.clients, id)
		c.Close()
	}
	s.statClients.Set(float64(len(s.clients)))
}

// Addr returns the bound address, nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Name implements service.Service
func (s *Server) Name() string { return "telemetry" }

// Dependencies implements service.Service
func (s *Server) Dependencies() []string { return []string{"simulator"} }

// Init implements service.Service
func (s *Server) Init() error {
	if s.source != nil {
		s.source.Subscribe(s.frames)
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// Start implements service.Service
func (s *Server) Start() error {
	if !s.config.Enabled || !s.running.CompareAndSwap(false, true) {
		return nil
	}
	if s.http == nil {
		if err := s.Init(); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.running.Store(false)
		return err
	}
	s.listener = ln
	s.statServing.Store(true)
	s.logger.Printf("[telemetry] serving on http://%s", ln.Addr())

	s.wg.Add(2)
	core.Go(s.broadcastLoop)
	core.Go(func() {
		defer s.wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("[telemetry] serve: %v", err)
		}
	})
	return nil
}

// Stop implements service.Service
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	close(s.stopCh)
	for id, c := range s.clients {
		c.Close()
		delete(s.clients, id)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.http.Shutdown(ctx)
	s.wg.Wait()
	s.statServing.Store(false)
	s.logger.Printf("[telemetry] stopped")
	return err
}
