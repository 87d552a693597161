package modbus

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/virtuaplant/core"
	"github.com/lixenwraith/virtuaplant/status"
)

// SessionID identifies a client connection
type SessionID uint32

// session is one connected client
type session struct {
	ID       SessionID
	Addr     string
	LastSeen atomic.Int64 // UnixNano

	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	closeCh   chan struct{}
	closeOnce sync.Once
}

func newSession(id SessionID, conn net.Conn, cfg *Config) *session {
	s := &session{
		ID:      id,
		Addr:    conn.RemoteAddr().String(),
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, cfg.ReadBufferSize),
		writer:  bufio.NewWriterSize(conn, cfg.WriteBufferSize),
		closeCh: make(chan struct{}),
	}
	s.LastSeen.Store(time.Now().UnixNano())
	return s
}

// Close ends the session once
func (s *session) Close() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.conn.Close()
	})
}

// Server accepts Modbus/TCP clients, one goroutine per connection
type Server struct {
	config   *Config
	handler  *Handler
	logger   *log.Logger
	listener net.Listener

	mu       sync.Mutex
	sessions map[SessionID]*session
	nextID   atomic.Uint32

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	statAccepted   *atomic.Int64
	statRejected   *atomic.Int64
	statRequests   *atomic.Int64
	statExceptions *atomic.Int64
	statMalformed  *atomic.Int64
	statTimeouts   *atomic.Int64
	statLost       *atomic.Int64
	statClients    *status.Gauge
}

// NewServer creates a server over regs
func NewServer(cfg *Config, regs Registers, logger *log.Logger, reg *status.Registry) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 1024
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = 1024
	}
	return &Server{
		config:         cfg,
		handler:        NewHandler(regs, cfg.Identity),
		logger:         logger,
		sessions:       make(map[SessionID]*session),
		stopCh:         make(chan struct{}),
		statAccepted:   reg.Counter("modbus.accepted"),
		statRejected:   reg.Counter("modbus.rejected"),
		statRequests:   reg.Counter("modbus.requests"),
		statExceptions: reg.Counter("modbus.exceptions"),
		statMalformed:  reg.Counter("modbus.malformed"),
		statTimeouts:   reg.Counter("modbus.timeouts"),
		statLost:       reg.Counter("modbus.lost"),
		statClients:    reg.Gauge("modbus.clients"),
	}
}

// Start binds the listener and begins accepting
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return nil // Already running
	}

	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.running.Store(false)
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.stopCh = make(chan struct{})
	s.mu.Unlock()
	s.logger.Printf("[modbus] listening on %s", ln.Addr())

	s.wg.Add(1)
	core.Go(s.acceptLoop)
	return nil
}

// Addr returns the bound address, nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// acceptLoop handles incoming connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Printf("[modbus] accept: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		s.addSession(conn)
	}
}

// addSession registers a client or rejects it at the cap
func (s *Server) addSession(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.stopCh:
		conn.Close()
		return
	default:
	}

	if s.config.MaxClients > 0 && len(s.sessions) >= s.config.MaxClients {
		conn.Close()
		s.statRejected.Add(1)
		s.logger.Printf("[modbus] rejected %s: max clients reached", conn.RemoteAddr())
		return
	}

	id := SessionID(s.nextID.Add(1))
	sess := newSession(id, conn, s.config)
	s.sessions[id] = sess
	s.statAccepted.Add(1)
	s.statClients.Set(float64(len(s.sessions)))

	s.wg.Add(1)
	core.Go(func() { s.serve(sess) })
}

// removeSession forgets a closed client
func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	s.statClients.Set(float64(len(s.sessions)))
	s.mu.Unlock()
}

// serve runs the request loop of one client
// Any framing error ends this connection only
func (s *Server) serve(sess *session) {
	defer s.wg.Done()
	defer s.removeSession(sess)
	defer sess.Close()

	for {
		if s.config.IdleTimeout > 0 {
			sess.conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		} else {
			sess.conn.SetReadDeadline(time.Time{})
		}

		h, err := ReadHeader(sess.reader)
		if err != nil {
			s.connError(sess, err)
			return
		}

		if s.config.RequestTimeout > 0 {
			sess.conn.SetDeadline(time.Now().Add(s.config.RequestTimeout))
		}

		pdu, err := ReadPDU(sess.reader, h)
		if err != nil {
			s.connError(sess, err)
			return
		}
		sess.LastSeen.Store(time.Now().UnixNano())
		s.statRequests.Add(1)

		resp := s.handler.Handle(pdu)
		if code, ok := IsException(resp); ok {
			s.statExceptions.Add(1)
			s.logger.Printf("[modbus] %s fn %#04x exception %#04x", sess.Addr, pdu[0], code)
		}

		if err := WriteFrame(sess.writer, Frame{Transaction: h.Transaction, Unit: h.Unit, PDU: resp}); err != nil {
			s.connError(sess, err)
			return
		}
		if err := sess.writer.Flush(); err != nil {
			s.connError(sess, err)
			return
		}
		sess.conn.SetWriteDeadline(time.Time{})
	}
}

// connError classifies why a session ended
func (s *Server) connError(sess *session, err error) {
	select {
	case <-s.stopCh:
		return
	default:
	}

	var ne net.Error
	switch {
	case errors.Is(err, ErrMalformedRequest):
		s.statMalformed.Add(1)
		s.logger.Printf("[modbus] %s closed: %v", sess.Addr, err)
	case errors.As(err, &ne) && ne.Timeout():
		s.statTimeouts.Add(1)
		s.logger.Printf("[modbus] %s timed out", sess.Addr)
	case errors.Is(err, ErrConnectionLost):
		// Client hung up between requests
	default:
		s.statLost.Add(1)
		s.logger.Printf("[modbus] %s: %v", sess.Addr, errors.Join(ErrConnectionLost, err))
	}
}

// Stop closes the listener and every connection, then waits for the goroutines
// A stopped server can be started again
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	close(s.stopCh)
	for _, sess := range s.sessions {
		sess.Close()
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	s.logger.Printf("[modbus] stopped")
	return nil
}

// ClientCount returns connected client count
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// IsRunning returns server state
func (s *Server) IsRunning() bool {
	return s.running.Load()
}
