// Package register holds the process image shared by the physics side, the scan cycle
// and protocol clients
package register

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lixenwraith/virtuaplant/status"
)

// MaxSize is the largest table addressable by a 16-bit protocol address
const MaxSize = 1 << 16

// ErrAddressOutOfRange is returned for any address outside [0, size)
var ErrAddressOutOfRange = errors.New("register address out of range")

// ReadWriter is the handle given to collision handlers and control logic
type ReadWriter interface {
	Get(addr int) (uint16, error)
	Set(addr int, value int) error
}

// Table is a fixed-size array of 16-bit registers
// Every operation takes the lock for its own duration only; concurrent writers are last-write-wins
type Table struct {
	mu     sync.RWMutex
	values []uint16

	outOfRange *atomic.Int64
}

// NewTable creates a zeroed table of size registers
func NewTable(size int, reg *status.Registry) (*Table, error) {
	if size <= 0 || size > MaxSize {
		return nil, fmt.Errorf("register table size %d not in [1, %d]", size, MaxSize)
	}
	return &Table{
		values:     make([]uint16, size),
		outOfRange: reg.Counter("register.out_of_range"),
	}, nil
}

// Size returns the number of registers
func (t *Table) Size() int {
	return len(t.values)
}

// Get returns the value at addr
func (t *Table) Get(addr int) (uint16, error) {
	if err := t.check(addr, 1); err != nil {
		return 0, err
	}
	t.mu.RLock()
	v := t.values[addr]
	t.mu.RUnlock()
	return v, nil
}

// Set stores value truncated to 16 bits
// Negative and oversized values wrap modulo 2^16
func (t *Table) Set(addr int, value int) error {
	if err := t.check(addr, 1); err != nil {
		return err
	}
	t.mu.Lock()
	t.values[addr] = uint16(value)
	t.mu.Unlock()
	return nil
}

// GetRange returns n consecutive registers starting at addr under one lock
func (t *Table) GetRange(addr, n int) ([]uint16, error) {
	if err := t.check(addr, n); err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	t.mu.RLock()
	copy(out, t.values[addr:addr+n])
	t.mu.RUnlock()
	return out, nil
}

// SetRange stores values starting at addr under one lock
// Bounds are checked before any write: either all values land or none do
func (t *Table) SetRange(addr int, values []uint16) error {
	if err := t.check(addr, len(values)); err != nil {
		return err
	}
	t.mu.Lock()
	copy(t.values[addr:], values)
	t.mu.Unlock()
	return nil
}

// Snapshot copies every register under one read lock
func (t *Table) Snapshot() Snapshot {
	t.mu.RLock()
	s := make(Snapshot, len(t.values))
	copy(s, t.values)
	t.mu.RUnlock()
	return s
}

func (t *Table) check(addr, n int) error {
	if n < 1 || addr < 0 || addr >= len(t.values) || n > len(t.values)-addr {
		t.outOfRange.Add(1)
		if n == 1 {
			return fmt.Errorf("%w: %d (size %d)", ErrAddressOutOfRange, addr, len(t.values))
		}
		return fmt.Errorf("%w: %d+%d (size %d)", ErrAddressOutOfRange, addr, n, len(t.values))
	}
	return nil
}
