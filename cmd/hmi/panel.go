package main

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/virtuaplant/plant"
	"github.com/lixenwraith/virtuaplant/plc"
)

// row is one status line: a label and the words for set and clear
type row struct {
	label string
	name  string
	on    string
	off   string
	count bool // show the raw value instead of on/off
}

var panels = map[string][]row{
	"bottle-filling": {
		{label: "Bottle in position", name: plant.LimitSwitch, on: "YES", off: "NO"},
		{label: "Nozzle status", name: plant.Nozzle, on: "OPEN", off: "CLOSED"},
		{label: "Motor status", name: plant.Motor, on: "ON", off: "OFF"},
		{label: "Level hit", name: plant.LevelSensor, on: "YES", off: "NO"},
		{label: "Process status", name: plant.Run, on: "RUNNING", off: "STOPPED"},
	},
	"oil-refinery": {
		{label: "Feed pump", name: plant.FeedPump, on: "ON", off: "OFF"},
		{label: "Tank level", name: plant.TankLevel, on: "FULL", off: "FILLING"},
		{label: "Outlet valve", name: plant.OutletValve, on: "OPEN", off: "CLOSED"},
		{label: "Separator feed", name: plant.SeparatorFeed, on: "YES", off: "NO"},
		{label: "Separator vessel", name: plant.SeparatorVessel, on: "OPEN", off: "CLOSED"},
		{label: "Waste valve", name: plant.WasteValve, on: "OPEN", off: "CLOSED"},
		{label: "Oil processed", name: plant.OilProcessedCount, count: true},
		{label: "Oil spilled", name: plant.OilSpillCount, count: true},
		{label: "Spill detected", name: plant.SpillDetected, on: "YES", off: "NO"},
		{label: "Process status", name: plant.Run, on: "RUNNING", off: "STOPPED"},
	},
}

var (
	styleTitle = tcell.StyleDefault.Bold(true)
	styleLabel = tcell.StyleDefault
	styleOn    = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleOff   = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	styleNA    = tcell.StyleDefault.Foreground(tcell.ColorGray).Bold(true)
	styleHelp  = tcell.StyleDefault.Foreground(tcell.ColorGray)
)

const valueColumn = 22

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}

// render draws the panel; a nil image shows every value as N/A
func render(s tcell.Screen, variant string, im *plc.Image, target string) {
	s.Clear()

	drawText(s, 1, 1, styleTitle, fmt.Sprintf("%s process status", variant))
	y := 3
	for _, r := range panels[variant] {
		drawText(s, 1, y, styleLabel, r.label)
		switch {
		case im == nil:
			drawText(s, valueColumn, y, styleNA, "N/A")
		case r.count:
			drawText(s, valueColumn, y, styleOn, fmt.Sprintf("%d", im.Get(r.name)))
		case im.Bit(r.name):
			drawText(s, valueColumn, y, styleOn, r.on)
		default:
			drawText(s, valueColumn, y, styleOff, r.off)
		}
		y++
	}

	y++
	drawText(s, 1, y, styleLabel, "Connection status")
	if im == nil {
		drawText(s, valueColumn, y, styleOff, "OFFLINE")
	} else {
		drawText(s, valueColumn, y, styleOn, "ONLINE")
	}
	drawText(s, 1, y+2, styleHelp, fmt.Sprintf("[r] run  [s] stop  [space] toggle  [q] quit   %s", target))
	s.Show()
}
