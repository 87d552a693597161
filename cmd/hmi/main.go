// Command hmi is a terminal operator panel polling a plant over Modbus/TCP
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/virtuaplant/core"
	"github.com/lixenwraith/virtuaplant/plant"
	"github.com/lixenwraith/virtuaplant/plc"
)

var (
	targetFlag   = flag.String("t", "localhost:5020", "Plant Modbus/TCP address")
	plantFlag    = flag.String("plant", "bottle-filling", "Plant variant: bottle-filling, oil-refinery")
	intervalFlag = flag.Duration("interval", time.Second, "Poll interval")
	muteFlag     = flag.Bool("mute", false, "Disable the audible alarm")
)

// hmi holds the panel state between polls
type hmi struct {
	screen  tcell.Screen
	variant plant.Variant
	target  string
	alarm   *alarm
	client  *plc.Client
	last    *plc.Image
}

func main() {
	flag.Parse()

	variant, err := plant.Lookup(*plantFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hmi: %v\n", err)
		os.Exit(2)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hmi: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "hmi: %v\n", err)
		os.Exit(1)
	}
	core.SetCrashHook(screen.Fini)
	defer func() {
		if r := recover(); r != nil {
			core.HandleCrash(r)
		}
	}()
	defer screen.Fini()

	// No audio device leaves a silent alarm
	a, _ := newAlarm(*muteFlag)
	defer a.close()

	h := &hmi{screen: screen, variant: variant, target: *targetFlag, alarm: a}
	defer h.disconnect()
	h.run(*intervalFlag)
}

func (h *hmi) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	events := make(chan tcell.Event, 16)
	core.Go(func() {
		for {
			ev := h.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	})

	h.poll()
	for {
		select {
		case ev := <-events:
			if !h.handleEvent(ev) {
				return
			}
		case <-ticker.C:
			h.poll()
		}
	}
}

// poll reads the plant, reconnecting when needed, and redraws
func (h *hmi) poll() {
	if h.client == nil {
		c, err := plc.Dial(h.target, h.variant.Map(), time.Second)
		if err != nil {
			h.last = nil
			render(h.screen, h.variant.Name(), nil, h.target)
			return
		}
		h.client = c
	}

	im, err := h.client.Read()
	if err != nil {
		h.disconnect()
		h.last = nil
		render(h.screen, h.variant.Name(), nil, h.target)
		return
	}
	if len(alarms(h.last, &im)) > 0 {
		h.alarm.sound()
	}
	h.last = &im
	render(h.screen, h.variant.Name(), &im, h.target)
}

func (h *hmi) disconnect() {
	if h.client != nil {
		h.client.Close()
		h.client = nil
	}
}

// setRun writes the run flag and refreshes
func (h *hmi) setRun(v uint16) {
	if h.client == nil {
		return
	}
	if err := h.client.Write(plant.Run, v); err != nil {
		h.disconnect()
	}
	h.poll()
}

func (h *hmi) toggleRun() {
	if h.client == nil {
		return
	}
	if _, err := h.client.Toggle(plant.Run); err != nil {
		h.disconnect()
	}
	h.poll()
}

func (h *hmi) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return false
		}
		if ev.Key() == tcell.KeyRune {
			switch ev.Rune() {
			case 'q':
				return false
			case 'r':
				h.setRun(1)
			case 's':
				h.setRun(0)
			case ' ':
				h.toggleRun()
			}
		}
	case *tcell.EventResize:
		h.screen.Sync()
		render(h.screen, h.variant.Name(), h.last, h.target)
	}
	return true
}
