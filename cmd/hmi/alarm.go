package main

import (
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"github.com/lixenwraith/virtuaplant/plant"
	"github.com/lixenwraith/virtuaplant/plc"
)

const sampleRate = beep.SampleRate(44100)

// alarm plays a two-tone siren; without an audio device it stays silent
type alarm struct {
	ready bool
}

func newAlarm(mute bool) (*alarm, error) {
	if mute {
		return &alarm{}, nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return &alarm{}, err
	}
	return &alarm{ready: true}, nil
}

func (a *alarm) sound() {
	if !a.ready {
		return
	}
	hi, err := generators.SineTone(sampleRate, 880)
	if err != nil {
		return
	}
	lo, err := generators.SineTone(sampleRate, 660)
	if err != nil {
		return
	}
	d := sampleRate.N(150 * time.Millisecond)
	speaker.Play(beep.Seq(beep.Take(d, hi), beep.Take(d, lo), beep.Take(d, hi)))
}

func (a *alarm) close() {
	if a.ready {
		speaker.Close()
	}
}

// alarms names the transitions between two reads that should sound
func alarms(prev, cur *plc.Image) []string {
	if prev == nil || cur == nil {
		return nil
	}
	var out []string
	if prev.Bit(plant.Run) && !cur.Bit(plant.Run) {
		out = append(out, "process stopped")
	}
	if _, ok := cur.Map.Addr(plant.OilSpillCount); ok && cur.Get(plant.OilSpillCount) != prev.Get(plant.OilSpillCount) {
		out = append(out, "oil spill")
	}
	if cur.Bit(plant.Motor) && cur.Bit(plant.Nozzle) && !(prev.Bit(plant.Motor) && prev.Bit(plant.Nozzle)) {
		out = append(out, "nozzle open on moving conveyor")
	}
	return out
}
