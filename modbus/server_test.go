package modbus

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"

	mb "github.com/simonvetter/modbus"

	"github.com/lixenwraith/virtuaplant/register"
	"github.com/lixenwraith/virtuaplant/status"
)

func startServer(t *testing.T, mutate func(*Config)) (*Server, *register.Table, *status.Registry) {
	t.Helper()
	reg := status.NewRegistry()
	tbl, err := register.NewTable(100, reg)
	if err != nil {
		t.Fatal(err)
	}
	cfg := LocalConfig("127.0.0.1:0")
	cfg.Identity = Identity{VendorName: "MockPLCs", ProductCode: "MP", Revision: "1.0"}
	if mutate != nil {
		mutate(cfg)
	}
	s := NewServer(cfg, tbl, nil, reg)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Stop() })
	return s, tbl, reg
}

func dialRaw(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.Addr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, f Frame) Frame {
	t.Helper()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if err := WriteFrame(conn, f); err != nil {
		t.Fatal(err)
	}
	resp, err := ReadFrame(bufio.NewReader(conn))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerRequestResponse(t *testing.T) {
	s, tbl, _ := startServer(t, nil)
	_ = tbl.Set(0x10, 1)
	conn := dialRaw(t, s)

	resp := roundTrip(t, conn, Frame{Transaction: 42, Unit: 3, PDU: []byte{0x03, 0x00, 0x10, 0x00, 0x01}})
	if resp.Transaction != 42 || resp.Unit != 3 {
		t.Errorf("Expected transaction and unit echoed, got %+v", resp)
	}
	if len(resp.PDU) != 4 || resp.PDU[3] != 1 {
		t.Errorf("Expected run register 1, got % x", resp.PDU)
	}

	resp = roundTrip(t, conn, Frame{Transaction: 43, Unit: 3, PDU: []byte{0x03, 0x00, 0x64, 0x00, 0x01}})
	if code, ok := IsException(resp.PDU); !ok || code != ExIllegalDataAddress {
		t.Errorf("Expected exception 2, got % x", resp.PDU)
	}
}

func TestMalformedFrameClosesOnlyThatConnection(t *testing.T) {
	s, _, reg := startServer(t, nil)
	good := dialRaw(t, s)
	bad := dialRaw(t, s)
	waitFor(t, "two clients", func() bool { return s.ClientCount() == 2 })

	// Protocol id 1
	bad.SetDeadline(time.Now().Add(2 * time.Second))
	bad.Write([]byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x06, 0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	if _, err := bad.Read(make([]byte, 1)); err == nil {
		t.Errorf("Expected server to close the malformed connection, got %v", err)
	}

	resp := roundTrip(t, good, Frame{Transaction: 1, Unit: 1, PDU: []byte{0x03, 0x00, 0x00, 0x00, 0x01}})
	if _, ok := IsException(resp.PDU); ok {
		t.Errorf("Expected the other client unaffected, got % x", resp.PDU)
	}
	waitFor(t, "malformed counted", func() bool { return reg.Counter("modbus.malformed").Load() == 1 })
	if s.ClientCount() != 1 {
		t.Errorf("Expected 1 client, got %d", s.ClientCount())
	}
}

func TestMaxClients(t *testing.T) {
	s, _, reg := startServer(t, func(c *Config) { c.MaxClients = 1 })
	first := dialRaw(t, s)
	waitFor(t, "first client", func() bool { return s.ClientCount() == 1 })

	second := dialRaw(t, s)
	second.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := second.Read(make([]byte, 1)); err == nil {
		t.Error("Expected the second client rejected")
	}
	if got := reg.Counter("modbus.rejected").Load(); got != 1 {
		t.Errorf("Expected 1 rejection, got %d", got)
	}

	resp := roundTrip(t, first, Frame{Transaction: 1, Unit: 1, PDU: []byte{0x04, 0x00, 0x00, 0x00, 0x01}})
	if resp.Transaction != 1 {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestIdleTimeout(t *testing.T) {
	s, _, reg := startServer(t, func(c *Config) { c.IdleTimeout = 50 * time.Millisecond })
	conn := dialRaw(t, s)
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("Expected idle connection closed")
	}
	waitFor(t, "timeout counted", func() bool { return reg.Counter("modbus.timeouts").Load() == 1 })
}

func TestStopClosesClients(t *testing.T) {
	s, _, _ := startServer(t, nil)
	conn := dialRaw(t, s)
	waitFor(t, "client", func() bool { return s.ClientCount() == 1 })

	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("Expected connection closed on stop")
	}
	if s.IsRunning() {
		t.Error("Expected server stopped")
	}
}

func TestServerRestart(t *testing.T) {
	s, tbl, _ := startServer(t, nil)
	_ = tbl.Set(0x01, 7)

	for round := 0; round < 2; round++ {
		if err := s.Stop(); err != nil {
			t.Fatalf("round %d: Stop: %v", round, err)
		}
		if s.IsRunning() {
			t.Fatalf("round %d: expected stopped", round)
		}
		if err := s.Start(); err != nil {
			t.Fatalf("round %d: Start: %v", round, err)
		}
		conn := dialRaw(t, s)
		resp := roundTrip(t, conn, Frame{Transaction: uint16(round), PDU: []byte{0x03, 0x00, 0x01, 0x00, 0x01}})
		if len(resp.PDU) != 4 || resp.PDU[3] != 7 {
			t.Errorf("round %d: unexpected response % x", round, resp.PDU)
		}
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Expected a second Stop to be a no-op, got %v", err)
	}
}

func TestClientInterop(t *testing.T) {
	s, tbl, reg := startServer(t, nil)

	client, err := mb.NewClient(&mb.ClientConfiguration{
		URL:     "tcp://" + s.Addr().String(),
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Open(); err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if err := client.WriteRegister(0x10, 1); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	if v, _ := tbl.Get(0x10); v != 1 {
		t.Errorf("Expected run 1 in table, got %d", v)
	}

	if err := client.WriteCoil(0x03, true); err != nil {
		t.Fatalf("WriteCoil: %v", err)
	}
	coils, err := client.ReadCoils(0x01, 4)
	if err != nil {
		t.Fatalf("ReadCoils: %v", err)
	}
	if coils[0] || coils[1] || !coils[2] || coils[3] {
		t.Errorf("Expected only motor set, got %v", coils)
	}

	if err := client.WriteRegisters(0x01, []uint16{1, 0, 1}); err != nil {
		t.Fatalf("WriteRegisters: %v", err)
	}
	regs, err := client.ReadRegisters(0x01, 3, mb.HOLDING_REGISTER)
	if err != nil {
		t.Fatalf("ReadRegisters: %v", err)
	}
	if regs[0] != 1 || regs[1] != 0 || regs[2] != 1 {
		t.Errorf("Expected [1 0 1], got %v", regs)
	}
	if v, err := client.ReadRegister(0x10, mb.INPUT_REGISTER); err != nil || v != 1 {
		t.Errorf("Expected input register view of run, got %d %v", v, err)
	}

	if err := client.WriteCoils(0x01, []bool{false, false, false, false}); err != nil {
		t.Fatalf("WriteCoils: %v", err)
	}
	inputs, err := client.ReadDiscreteInputs(0x01, 4)
	if err != nil {
		t.Fatalf("ReadDiscreteInputs: %v", err)
	}
	for i, b := range inputs {
		if b {
			t.Errorf("Expected input %d cleared", i+1)
		}
	}

	if _, err := client.ReadRegisters(0x63, 2, mb.HOLDING_REGISTER); !errors.Is(err, mb.ErrIllegalDataAddress) {
		t.Errorf("Expected illegal data address, got %v", err)
	}
	if reg.Counter("modbus.exceptions").Load() != 1 {
		t.Errorf("Expected 1 exception counted, got %d", reg.Counter("modbus.exceptions").Load())
	}
}
