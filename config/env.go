package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix marks variables read by ApplyEnv
const EnvPrefix = "VIRTUAPLANT_"

// envSetters maps variable suffixes onto config fields
var envSetters = map[string]func(c *Config, v string) error{
	"PLANT":           func(c *Config, v string) error { c.Plant = v; return nil },
	"REGISTERS":       intField(func(c *Config) *int { return &c.Registers }),
	"TICK_RATE":       intField(func(c *Config) *int { return &c.TickRate }),
	"SEED":            seedField,
	"START_RUNNING":   boolField(func(c *Config) *bool { return &c.StartRunning }),
	"MAX_BOTTLES":     intField(func(c *Config) *int { return &c.Limits.MaxBottles }),
	"MAX_PARTICLES":   intField(func(c *Config) *int { return &c.Limits.MaxParticles }),
	"LISTEN":          func(c *Config, v string) error { c.Modbus.Address = v; return nil },
	"MAX_CLIENTS":     intField(func(c *Config) *int { return &c.Modbus.MaxClients }),
	"IDLE_TIMEOUT":    durationField(func(c *Config) *time.Duration { return &c.Modbus.IdleTimeout.Duration }),
	"REQUEST_TIMEOUT": durationField(func(c *Config) *time.Duration { return &c.Modbus.RequestTimeout.Duration }),
	"TELEMETRY":       func(c *Config, v string) error { c.Telemetry.Address = v; return nil },
	"TELEMETRY_ON":    boolField(func(c *Config) *bool { return &c.Telemetry.Enabled }),
	"LOG_FILE":        func(c *Config, v string) error { c.Log.File = v; return nil },
	"QUIET":           boolField(func(c *Config) *bool { return &c.Log.Quiet }),
}

func seedField(c *Config, v string) error {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return err
	}
	c.Seed = n
	return nil
}

func intField(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolField(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationField(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

// ReadEnvFiles collects VIRTUAPLANT_ variables from .env files, later files winning
// Missing files are skipped
func ReadEnvFiles(files ...string) (map[string]string, error) {
	out := make(map[string]string)
	for _, f := range files {
		vars, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vars {
			if strings.HasPrefix(k, EnvPrefix) {
				out[k] = v
			}
		}
	}
	return out, nil
}

// ApplyEnv overlays .env file values, then the process environment
func (c *Config) ApplyEnv(files ...string) error {
	vars, err := ReadEnvFiles(files...)
	if err != nil {
		return err
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			vars[k] = v
		}
	}
	return c.applyVars(vars)
}

func (c *Config) applyVars(vars map[string]string) error {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		v := vars[k]
		set, ok := envSetters[strings.TrimPrefix(k, EnvPrefix)]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown variable %s", k))
			continue
		}
		if err := set(c, v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", k, v, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
