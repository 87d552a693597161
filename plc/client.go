// Package plc is a Modbus/TCP client that addresses plant registers by name
package plc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/simonvetter/modbus"

	"github.com/lixenwraith/virtuaplant/plant"
)

// ErrUnknownTag is returned for names absent from the address map
var ErrUnknownTag = errors.New("unknown register name")

// Image is one read of every mapped register
type Image struct {
	Map    plant.AddressMap
	Values []uint16 // indexed by address, 0 through the highest mapped address
}

// Get returns the value of a named register, 0 when unmapped
func (im Image) Get(name string) uint16 {
	a, ok := im.Map.Addr(name)
	if !ok || a >= len(im.Values) {
		return 0
	}
	return im.Values[a]
}

// Bit reports a named register as a boolean
func (im Image) Bit(name string) bool {
	return im.Get(name) != 0
}

// Client talks to one plant
type Client struct {
	mb   *modbus.ModbusClient
	m    plant.AddressMap
	span int
}

// Dial connects to addr (host:port) for the plant described by m
func Dial(addr string, m plant.AddressMap, timeout time.Duration) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "tcp://" + addr
	}
	mb, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     addr,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := mb.Open(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	span := 0
	for _, e := range m.Entries {
		if e.Addr+1 > span {
			span = e.Addr + 1
		}
	}
	return &Client{mb: mb, m: m, span: span}, nil
}

// Close ends the connection
func (c *Client) Close() error {
	return c.mb.Close()
}

// Map returns the plant layout
func (c *Client) Map() plant.AddressMap {
	return c.m
}

// Read fetches every mapped register in one request
func (c *Client) Read() (Image, error) {
	values, err := c.mb.ReadRegisters(0, uint16(c.span), modbus.HOLDING_REGISTER)
	if err != nil {
		return Image{}, err
	}
	return Image{Map: c.m, Values: values}, nil
}

// Write sets one named register
func (c *Client) Write(name string, value uint16) error {
	a, ok := c.m.Addr(name)
	if !ok {
		return fmt.Errorf("%s: %q: %w", c.m.Variant, name, ErrUnknownTag)
	}
	return c.mb.WriteRegister(uint16(a), value)
}

// Toggle flips a named register between 0 and 1 and returns the new value
func (c *Client) Toggle(name string) (uint16, error) {
	im, err := c.Read()
	if err != nil {
		return 0, err
	}
	var v uint16
	if !im.Bit(name) {
		v = 1
	}
	return v, c.Write(name, v)
}
