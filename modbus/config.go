package modbus

import "time"

// Config holds Modbus/TCP server configuration
type Config struct {
	// Address to bind
	Address string

	// Connection limit, 0 = unlimited
	MaxClients int

	// Timing
	IdleTimeout    time.Duration // waiting for the next frame header, 0 = none
	RequestTimeout time.Duration // rest of the frame, table access and response write

	// Buffer sizes
	ReadBufferSize  int
	WriteBufferSize int

	// Identity reported by Read Device Identification
	Identity Identity
}

// DefaultConfig returns the defaults used by cmd/virtuaplant
func DefaultConfig() *Config {
	return &Config{
		Address:         ":5020",
		MaxClients:      16,
		IdleTimeout:     60 * time.Second,
		RequestTimeout:  5 * time.Second,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// LocalConfig returns a config bound to addr for tests and tools
func LocalConfig(addr string) *Config {
	cfg := DefaultConfig()
	cfg.Address = addr
	return cfg
}
