package modbus

import (
	"log"
	"net"

	"github.com/lixenwraith/virtuaplant/status"
)

// Service wraps Server as a hub-managed service
type Service struct {
	config *Config
	regs   Registers
	logger *log.Logger
	reg    *status.Registry

	server *Server
}

// NewService creates the protocol service over regs
func NewService(cfg *Config, regs Registers, logger *log.Logger, reg *status.Registry) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Service{config: cfg, regs: regs, logger: logger, reg: reg}
}

// Name implements service.Service
func (s *Service) Name() string {
	return "modbus"
}

// Dependencies implements service.Service
func (s *Service) Dependencies() []string {
	return nil
}

// Init implements service.Service
func (s *Service) Init() error {
	s.server = NewServer(s.config, s.regs, s.logger, s.reg)
	return nil
}

// Start implements service.Service
func (s *Service) Start() error {
	if s.server == nil {
		return nil
	}
	return s.server.Start()
}

// Stop implements service.Service
func (s *Service) Stop() error {
	if s.server != nil {
		return s.server.Stop()
	}
	return nil
}

// Addr returns the bound address once started
func (s *Service) Addr() net.Addr {
	if s.server == nil {
		return nil
	}
	return s.server.Addr()
}

// ClientCount returns connected client count
func (s *Service) ClientCount() int {
	if s.server == nil {
		return 0
	}
	return s.server.ClientCount()
}
