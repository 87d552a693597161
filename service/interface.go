// Package service sequences the long-lived parts of the plant process
package service

// Service is a long-lived subsystem: the simulator, the protocol server, the telemetry feed
//
// Lifecycle:
//  1. Construction
//  2. Init() - validate configuration and acquire nothing that needs Stop
//  3. Start() - bind listeners and launch goroutines
//  4. [runtime operation]
//  5. Stop() - halt goroutines and release resources
type Service interface {
	// Name returns the unique identifier for this service
	Name() string

	// Dependencies returns names of services that must start before this one
	Dependencies() []string

	// Init checks configuration before anything starts
	Init() error

	// Start begins operation
	// Called after every service has initialized
	Start() error

	// Stop halts operation
	// Must be idempotent
	Stop() error
}
