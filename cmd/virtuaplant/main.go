// Command virtuaplant runs a simulated industrial plant behind a Modbus/TCP server
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lixenwraith/virtuaplant/config"
	"github.com/lixenwraith/virtuaplant/core"
	"github.com/lixenwraith/virtuaplant/modbus"
	"github.com/lixenwraith/virtuaplant/plant"
	"github.com/lixenwraith/virtuaplant/register"
	"github.com/lixenwraith/virtuaplant/service"
	"github.com/lixenwraith/virtuaplant/status"
	"github.com/lixenwraith/virtuaplant/telemetry"
)

var (
	configFlag    = flag.String("config", "", "TOML configuration file")
	plantFlag     = flag.String("plant", "", "Plant variant: bottle-filling, oil-refinery")
	listenFlag    = flag.String("listen", "", "Modbus/TCP listen address")
	telemetryFlag = flag.String("telemetry", "", "Telemetry HTTP address, \"off\" disables")
	quietFlag     = flag.Bool("quiet", false, "Discard log output")
	dumpFlag      = flag.Bool("dump-config", false, "Print the effective configuration and exit")
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			core.HandleCrash(r)
		}
	}()

	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "virtuaplant: %v\n", err)
		os.Exit(2)
	}
	if *dumpFlag {
		if err := config.Write(os.Stdout, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "virtuaplant: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if logFile := setupLogging(cfg.Log.File, cfg.Log.Quiet); logFile != nil {
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.Default(), status.NewRegistry()); err != nil {
		log.Printf("[main] %v", err)
		fmt.Fprintf(os.Stderr, "virtuaplant: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers file, .env, environment and flags, in that order
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configFlag)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(".env"); err != nil {
		return cfg, err
	}

	if *plantFlag != "" {
		cfg.Plant = *plantFlag
	}
	if *listenFlag != "" {
		cfg.Modbus.Address = *listenFlag
	}
	switch *telemetryFlag {
	case "":
	case "off":
		cfg.Telemetry.Enabled = false
	default:
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Address = *telemetryFlag
	}
	if *quietFlag {
		cfg.Log.Quiet = true
	}
	return cfg, cfg.Validate()
}

// run wires the plant services and blocks until ctx is cancelled
func run(ctx context.Context, cfg config.Config, logger *log.Logger, reg *status.Registry) error {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	variant, err := plant.Lookup(cfg.Plant)
	if err != nil {
		return err
	}
	table, err := register.NewTable(cfg.Registers, reg)
	if err != nil {
		return err
	}
	sim, err := plant.NewSimulator(variant, table, cfg.PlantConfig(), logger, reg)
	if err != nil {
		return err
	}

	hub := service.NewHub(logger)
	services := []service.Service{
		sim,
		modbus.NewService(cfg.ModbusConfig(variant.Identity()), table, logger, reg),
	}
	if cfg.Telemetry.Enabled {
		services = append(services, telemetry.NewServer(cfg.TelemetryConfig(), sim, table, variant.Map(), logger, reg))
	}
	for _, svc := range services {
		if err := hub.Register(svc); err != nil {
			return err
		}
	}

	if err := hub.InitAll(); err != nil {
		return err
	}
	if err := hub.StartAll(); err != nil {
		return err
	}
	logger.Printf("[main] %s plant up, services %v", variant.Name(), hub.Order())

	<-ctx.Done()
	logger.Printf("[main] shutting down")
	hub.StopAll()
	return nil
}
