// Command attack runs a scripted Modbus client against a running plant
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lixenwraith/virtuaplant/attack"
	"github.com/lixenwraith/virtuaplant/plant"
	"github.com/lixenwraith/virtuaplant/plc"
)

var (
	targetFlag   = flag.String("t", "localhost:5020", "Target Modbus/TCP address")
	plantFlag    = flag.String("plant", "", "Plant map to address; defaults to the scenario's plant")
	intervalFlag = flag.Duration("interval", 20*time.Millisecond, "Delay between rounds")
	listFlag     = flag.Bool("list", false, "List scenarios and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: attack [flags] <scenario>\n\nscenarios: %s\n\n", strings.Join(attack.Names(), ", "))
		flag.PrintDefaults()
	}
	flag.Parse()

	if *listFlag {
		for _, name := range attack.Names() {
			s, _ := attack.Lookup(name)
			fmt.Printf("%-18s %s\n", name, s.Description)
		}
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	scenario, err := attack.Lookup(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "attack: %v\n", err)
		os.Exit(2)
	}

	variantName := *plantFlag
	if variantName == "" {
		variantName = scenario.Plant
	}
	if variantName == "" {
		variantName = "bottle-filling"
	}
	variant, err := plant.Lookup(variantName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attack: %v\n", err)
		os.Exit(2)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	client, err := plc.Dial(*targetFlag, variant.Map(), 2*time.Second)
	if err != nil {
		logger.Fatalf("[attack] unable to connect: %v", err)
	}
	defer client.Close()

	runner, err := attack.NewRunner(client, scenario, *intervalFlag, logger)
	if err != nil {
		logger.Fatalf("[attack] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("[attack] %s against %s at %s", scenario.Name, variant.Name(), *targetFlag)
	if err := runner.Run(ctx); err != nil {
		logger.Printf("[attack] connection lost: %v", err)
		os.Exit(1)
	}
}
