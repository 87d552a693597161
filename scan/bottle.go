package scan

import "github.com/lixenwraith/virtuaplant/register"

// BottleFilling drives the conveyor and the fill nozzle
//
//	run level limit | motor nozzle
//	 0    -     -   |   0     0
//	 1    0     0   |   1     0    no bottle at the nozzle: convey
//	 1    0     1   |   0     1    bottle positioned, not full: fill
//	 1    1     0   |   1     0    full bottle leaving: convey
//	 1    1     1   |   1     0    full bottle at the nozzle: convey
//
// motor and nozzle are never both on
type BottleFilling struct {
	Run    int
	Level  int
	Limit  int
	Motor  int
	Nozzle int
}

func (b BottleFilling) Name() string { return "bottle-filling" }

func (b BottleFilling) Outputs() []int { return []int{b.Motor, b.Nozzle} }

func (b BottleFilling) Evaluate(s register.Snapshot) []Write {
	run, level, limit := s.Bit(b.Run), s.Bit(b.Level), s.Bit(b.Limit)
	return []Write{
		out(b.Motor, run && (!limit || level)),
		out(b.Nozzle, run && limit && !level),
	}
}
