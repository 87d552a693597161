// Package config loads plant configuration from TOML, .env files and the environment
package config

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lixenwraith/virtuaplant/modbus"
	"github.com/lixenwraith/virtuaplant/plant"
	"github.com/lixenwraith/virtuaplant/register"
	"github.com/lixenwraith/virtuaplant/telemetry"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration written as "5s" in TOML
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Limits bounds transient bodies
type Limits struct {
	MaxBottles   int `toml:"max_bottles"`
	MaxParticles int `toml:"max_particles"`
}

// Modbus configures the protocol server
type Modbus struct {
	Address        string   `toml:"address"`
	MaxClients     int      `toml:"max_clients"`
	IdleTimeout    Duration `toml:"idle_timeout"`
	RequestTimeout Duration `toml:"request_timeout"`
}

// Telemetry configures the HTTP feed
type Telemetry struct {
	Enabled    bool   `toml:"enabled"`
	Address    string `toml:"address"`
	EveryTicks int    `toml:"every_ticks"`
}

// Log configures output
type Log struct {
	File  string `toml:"file"`
	Quiet bool   `toml:"quiet"`
}

// Config is the full process configuration
type Config struct {
	Plant        string    `toml:"plant"`
	MapVersion   int       `toml:"map_version"`
	Registers    int       `toml:"registers"`
	TickRate     int       `toml:"tick_rate"`
	Seed         int64     `toml:"seed"`
	StartRunning bool      `toml:"start_running"`
	Limits       Limits    `toml:"limits"`
	Modbus       Modbus    `toml:"modbus"`
	Telemetry    Telemetry `toml:"telemetry"`
	Log          Log       `toml:"log"`
}

// Default returns the built-in configuration
func Default() Config {
	mb := modbus.DefaultConfig()
	tel := telemetry.DefaultConfig()
	sim := plant.DefaultConfig()
	return Config{
		Plant:        "bottle-filling",
		MapVersion:   plant.MapVersion,
		Registers:    100,
		TickRate:     sim.TickRate,
		Seed:         sim.Seed,
		StartRunning: true,
		Limits: Limits{
			MaxBottles:   sim.Limits.MaxBottles,
			MaxParticles: sim.Limits.MaxParticles,
		},
		Modbus: Modbus{
			Address:        mb.Address,
			MaxClients:     mb.MaxClients,
			IdleTimeout:    Duration{mb.IdleTimeout},
			RequestTimeout: Duration{mb.RequestTimeout},
		},
		Telemetry: Telemetry{
			Enabled:    tel.Enabled,
			Address:    tel.Address,
			EveryTicks: tel.EveryTicks,
		},
	}
}

// Load decodes path over the defaults
// Unknown keys are an error so typos do not silently fall back to defaults
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("load %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return cfg, fmt.Errorf("load %s: unknown keys %s: %w", path, strings.Join(keys, ", "), ErrInvalid)
	}
	return cfg, nil
}

// Write encodes cfg as TOML
func Write(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// Validate rejects values no component can run with
func (c Config) Validate() error {
	var errs []error
	if _, err := plant.Lookup(c.Plant); err != nil {
		errs = append(errs, err)
	}
	if c.MapVersion != plant.MapVersion {
		errs = append(errs, fmt.Errorf("map_version %d unsupported, want %d", c.MapVersion, plant.MapVersion))
	}
	if c.Registers <= 0 || c.Registers > register.MaxSize {
		errs = append(errs, fmt.Errorf("registers %d outside 1..%d", c.Registers, register.MaxSize))
	}
	if c.TickRate < 1 || c.TickRate > 1000 {
		errs = append(errs, fmt.Errorf("tick_rate %d outside 1..1000", c.TickRate))
	}
	if c.Limits.MaxBottles < 1 || c.Limits.MaxParticles < 1 {
		errs = append(errs, fmt.Errorf("limits must be positive"))
	}
	if c.Modbus.Address == "" {
		errs = append(errs, fmt.Errorf("modbus.address empty"))
	}
	if c.Modbus.MaxClients < 0 || c.Modbus.IdleTimeout.Duration < 0 || c.Modbus.RequestTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("modbus limits must not be negative"))
	}
	if c.Telemetry.Enabled && (c.Telemetry.Address == "" || c.Telemetry.EveryTicks < 1) {
		errs = append(errs, fmt.Errorf("telemetry needs an address and every_ticks >= 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// PlantConfig maps onto the simulator settings
func (c Config) PlantConfig() plant.Config {
	sim := plant.DefaultConfig()
	sim.TickRate = c.TickRate
	sim.Seed = c.Seed
	sim.StartRunning = c.StartRunning
	sim.Limits = plant.Limits{MaxBottles: c.Limits.MaxBottles, MaxParticles: c.Limits.MaxParticles}
	return sim
}

// ModbusConfig maps onto the protocol server settings
func (c Config) ModbusConfig(identity modbus.Identity) *modbus.Config {
	mb := modbus.DefaultConfig()
	mb.Address = c.Modbus.Address
	mb.MaxClients = c.Modbus.MaxClients
	mb.IdleTimeout = c.Modbus.IdleTimeout.Duration
	mb.RequestTimeout = c.Modbus.RequestTimeout.Duration
	mb.Identity = identity
	return mb
}

// TelemetryConfig maps onto the telemetry server settings
func (c Config) TelemetryConfig() *telemetry.Config {
	tel := telemetry.DefaultConfig()
	tel.Enabled = c.Telemetry.Enabled
	tel.Address = c.Telemetry.Address
	tel.EveryTicks = c.Telemetry.EveryTicks
	return tel
}
