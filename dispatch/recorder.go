package dispatch

import (
	"sync"

	"github.com/lixenwraith/virtuaplant/register"
)

// Write is one register mutation made by a handler
type Write struct {
	Tick  uint64 `json:"tick"`
	Addr  int    `json:"addr"`
	Value uint16 `json:"value"`
}

// Recorder is an append-only journal of handler writes
type Recorder struct {
	mu     sync.Mutex
	writes []Write
	limit  int
}

// NewRecorder keeps at most limit writes, dropping the oldest; 0 keeps all
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) add(w Write) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, w)
	if r.limit > 0 && len(r.writes) > r.limit {
		r.writes = append(r.writes[:0], r.writes[len(r.writes)-r.limit:]...)
	}
}

// Writes returns a copy of the journal
func (r *Recorder) Writes() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Write(nil), r.writes...)
}

// Drain returns the journal and empties it
func (r *Recorder) Drain() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.writes
	r.writes = nil
	return out
}

type recording struct {
	register.ReadWriter
	rec  *Recorder
	tick uint64
}

func (r recording) Set(addr int, value int) error {
	if err := r.ReadWriter.Set(addr, value); err != nil {
		return err
	}
	r.rec.add(Write{Tick: r.tick, Addr: addr, Value: uint16(value)})
	return nil
}
