package telemetry

import "time"

// Config holds telemetry feed configuration
type Config struct {
	Enabled bool
	Address string

	// EveryTicks publishes one frame out of every N to websocket clients
	EveryTicks int

	// Per-client send queue; a full queue drops the client
	SendQueueSize int

	// Websocket keepalive, as in the motion demo server
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
}

// DefaultConfig returns a loopback feed at 10 frames per second for a 50 Hz plant
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		Address:       "127.0.0.1:8502",
		EveryTicks:    5,
		SendQueueSize: 16,
		PingInterval:  25 * time.Second,
		PongWait:      60 * time.Second,
		WriteWait:     10 * time.Second,
	}
}
