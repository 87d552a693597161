package scan

import "github.com/lixenwraith/virtuaplant/register"

// OilRefinery keeps the feed tank between pump and outlet and drains the separator
//
//	run=0: everything off
//	run=1: feedPump = !tankLevel && !spillDetected, outletValve = tankLevel,
//	       separatorVessel = wasteValve = separatorFeed
//
// feedPump and outletValve are never both on; oil crossing the spill line
// holds the pump off
type OilRefinery struct {
	Run             int
	TankLevel       int
	SeparatorFeed   int
	Spill           int
	FeedPump        int
	OutletValve     int
	SeparatorVessel int
	WasteValve      int
}

func (o OilRefinery) Name() string { return "oil-refinery" }

func (o OilRefinery) Outputs() []int {
	return []int{o.FeedPump, o.OutletValve, o.SeparatorVessel, o.WasteValve}
}

func (o OilRefinery) Evaluate(s register.Snapshot) []Write {
	run, tank, feed := s.Bit(o.Run), s.Bit(o.TankLevel), s.Bit(o.SeparatorFeed)
	spill := s.Bit(o.Spill)
	return []Write{
		out(o.FeedPump, run && !tank && !spill),
		out(o.OutletValve, run && tank),
		out(o.SeparatorVessel, run && feed),
		out(o.WasteValve, run && feed),
	}
}
