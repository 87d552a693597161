package register

import (
	"errors"
	"sync"
	"testing"

	"github.com/lixenwraith/virtuaplant/status"
)

func newTable(t *testing.T, size int) *Table {
	t.Helper()
	tbl, err := NewTable(size, nil)
	if err != nil {
		t.Fatalf("NewTable(%d): %v", size, err)
	}
	return tbl
}

func TestNewTableRejectsBadSize(t *testing.T) {
	for _, size := range []int{0, -1, MaxSize + 1} {
		if _, err := NewTable(size, nil); err == nil {
			t.Errorf("Expected error for size %d", size)
		}
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	tbl := newTable(t, 100)
	tests := []struct {
		value int
		want  uint16
	}{
		{0, 0},
		{1, 1},
		{65535, 65535},
		{65536, 0},
		{65537, 1},
		{-1, 65535},
		{-65536, 0},
		{1 << 20, 0},
	}
	for addr := 0; addr < tbl.Size(); addr++ {
		for _, tt := range tests {
			if err := tbl.Set(addr, tt.value); err != nil {
				t.Fatalf("Set(%d, %d): %v", addr, tt.value, err)
			}
			got, err := tbl.Get(addr)
			if err != nil {
				t.Fatalf("Get(%d): %v", addr, err)
			}
			if got != tt.want {
				t.Errorf("addr %d: Set(%d) then Get = %d, expected %d", addr, tt.value, got, tt.want)
			}
		}
	}
}

func TestBounds(t *testing.T) {
	reg := status.NewRegistry()
	tbl, _ := NewTable(10, reg)
	for _, addr := range []int{-1, 10, 11, 1 << 16} {
		if _, err := tbl.Get(addr); !errors.Is(err, ErrAddressOutOfRange) {
			t.Errorf("Get(%d): expected ErrAddressOutOfRange, got %v", addr, err)
		}
		if err := tbl.Set(addr, 1); !errors.Is(err, ErrAddressOutOfRange) {
			t.Errorf("Set(%d): expected ErrAddressOutOfRange, got %v", addr, err)
		}
	}
	for addr := 0; addr < 10; addr++ {
		if v, _ := tbl.Get(addr); v != 0 {
			t.Fatalf("Expected untouched table, addr %d = %d", addr, v)
		}
	}
	if got := reg.Counter("register.out_of_range").Load(); got != 8 {
		t.Errorf("Expected 8 out-of-range errors counted, got %d", got)
	}
}

func TestRangeAllOrNothing(t *testing.T) {
	tbl := newTable(t, 10)
	if err := tbl.SetRange(8, []uint16{1, 2, 3}); !errors.Is(err, ErrAddressOutOfRange) {
		t.Fatalf("Expected ErrAddressOutOfRange, got %v", err)
	}
	if v, _ := tbl.Get(8); v != 0 {
		t.Errorf("Expected no partial write, addr 8 = %d", v)
	}
	if err := tbl.SetRange(7, []uint16{1, 2, 3}); err != nil {
		t.Fatalf("SetRange: %v", err)
	}
	vals, err := tbl.GetRange(6, 4)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	want := []uint16{0, 1, 2, 3}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("GetRange[%d] = %d, expected %d", i, vals[i], want[i])
		}
	}
	if _, err := tbl.GetRange(0, 0); !errors.Is(err, ErrAddressOutOfRange) {
		t.Errorf("Expected zero-length range rejected, got %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	tbl := newTable(t, 4)
	_ = tbl.Set(1, 7)
	snap := tbl.Snapshot()
	_ = tbl.Set(1, 9)
	if snap.Value(1) != 7 {
		t.Errorf("Expected snapshot to keep 7, got %d", snap.Value(1))
	}
	if !snap.Bit(1) || snap.Bit(0) || snap.Bit(99) || snap.Value(-1) != 0 {
		t.Error("Unexpected Bit/Value results on snapshot")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tbl := newTable(t, 100)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				addr := (w*13 + i) % tbl.Size()
				_ = tbl.Set(addr, i)
				_, _ = tbl.Get(addr)
				_ = tbl.Snapshot()
				_, _ = tbl.GetRange(0, 10)
			}
		}(w)
	}
	wg.Wait()
}
