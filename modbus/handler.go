package modbus

import (
	"encoding/binary"
	"errors"

	"github.com/lixenwraith/virtuaplant/register"
)

// Quantity limits from the Modbus application protocol
const (
	maxReadRegisters  = 125
	maxWriteRegisters = 123
	maxReadBits       = 2000
	maxWriteBits      = 1968
)

// Device identification read codes and conformity level
const (
	idBasic      byte = 0x01
	idRegular    byte = 0x02
	idExtended   byte = 0x03
	idIndividual byte = 0x04

	conformity byte = 0x82 // regular stream + individual access
)

// Registers is the table view the handler serves
// Every register class maps onto the same addresses
type Registers interface {
	GetRange(addr, n int) ([]uint16, error)
	SetRange(addr int, values []uint16) error
	Set(addr int, value int) error
}

// Handler turns request PDUs into response PDUs
// Only bounds and widths are checked; any in-range write is accepted
type Handler struct {
	regs     Registers
	identity Identity
}

// NewHandler serves regs and reports identity
func NewHandler(regs Registers, identity Identity) *Handler {
	return &Handler{regs: regs, identity: identity}
}

// Handle executes one request; the result is always a complete response PDU
func (h *Handler) Handle(pdu []byte) []byte {
	fn := pdu[0]
	data := pdu[1:]

	switch fn {
	case FuncReadCoils, FuncReadDiscreteInputs:
		return h.readBits(fn, data)
	case FuncReadHoldingRegisters, FuncReadInputRegisters:
		return h.readRegisters(fn, data)
	case FuncWriteSingleCoil:
		return h.writeCoil(fn, data)
	case FuncWriteSingleRegister:
		return h.writeRegister(fn, data)
	case FuncWriteMultipleCoils:
		return h.writeCoils(fn, data)
	case FuncWriteMultipleRegisters:
		return h.writeRegisters(fn, data)
	case FuncEncapsulatedInterface:
		return h.deviceID(fn, data)
	default:
		return exception(fn, ExIllegalFunction)
	}
}

// addrQty decodes the common [addr:2][qty:2] request prefix
func addrQty(data []byte) (int, int) {
	return int(binary.BigEndian.Uint16(data[0:2])), int(binary.BigEndian.Uint16(data[2:4]))
}

// tableError maps a table error onto an exception code
func tableError(fn byte, err error) []byte {
	if errors.Is(err, register.ErrAddressOutOfRange) {
		return exception(fn, ExIllegalDataAddress)
	}
	return exception(fn, ExIllegalDataValue)
}

func (h *Handler) readBits(fn byte, data []byte) []byte {
	if len(data) != 4 {
		return exception(fn, ExIllegalDataValue)
	}
	addr, qty := addrQty(data)
	if qty < 1 || qty > maxReadBits {
		return exception(fn, ExIllegalDataValue)
	}
	values, err := h.regs.GetRange(addr, qty)
	if err != nil {
		return tableError(fn, err)
	}

	n := (qty + 7) / 8
	resp := make([]byte, 2+n)
	resp[0] = fn
	resp[1] = byte(n)
	for i, v := range values {
		if v != 0 {
			resp[2+i/8] |= 1 << (i % 8)
		}
	}
	return resp
}

func (h *Handler) readRegisters(fn byte, data []byte) []byte {
	if len(data) != 4 {
		return exception(fn, ExIllegalDataValue)
	}
	addr, qty := addrQty(data)
	if qty < 1 || qty > maxReadRegisters {
		return exception(fn, ExIllegalDataValue)
	}
	values, err := h.regs.GetRange(addr, qty)
	if err != nil {
		return tableError(fn, err)
	}

	resp := make([]byte, 2+2*qty)
	resp[0] = fn
	resp[1] = byte(2 * qty)
	for i, v := range values {
		binary.BigEndian.PutUint16(resp[2+2*i:], v)
	}
	return resp
}

func (h *Handler) writeCoil(fn byte, data []byte) []byte {
	if len(data) != 4 {
		return exception(fn, ExIllegalDataValue)
	}
	addr, raw := addrQty(data)
	var value int
	switch raw {
	case 0xFF00:
		value = 1
	case 0x0000:
	default:
		return exception(fn, ExIllegalDataValue)
	}
	if err := h.regs.Set(addr, value); err != nil {
		return tableError(fn, err)
	}
	return append([]byte{fn}, data...)
}

func (h *Handler) writeRegister(fn byte, data []byte) []byte {
	if len(data) != 4 {
		return exception(fn, ExIllegalDataValue)
	}
	addr, value := addrQty(data)
	if err := h.regs.Set(addr, value); err != nil {
		return tableError(fn, err)
	}
	return append([]byte{fn}, data...)
}

func (h *Handler) writeCoils(fn byte, data []byte) []byte {
	if len(data) < 6 {
		return exception(fn, ExIllegalDataValue)
	}
	addr, qty := addrQty(data)
	count := int(data[4])
	if qty < 1 || qty > maxWriteBits || count != (qty+7)/8 || len(data) != 5+count {
		return exception(fn, ExIllegalDataValue)
	}

	values := make([]uint16, qty)
	for i := range values {
		if data[5+i/8]&(1<<(i%8)) != 0 {
			values[i] = 1
		}
	}
	if err := h.regs.SetRange(addr, values); err != nil {
		return tableError(fn, err)
	}
	return append([]byte{fn}, data[:4]...)
}

func (h *Handler) writeRegisters(fn byte, data []byte) []byte {
	if len(data) < 7 {
		return exception(fn, ExIllegalDataValue)
	}
	addr, qty := addrQty(data)
	count := int(data[4])
	if qty < 1 || qty > maxWriteRegisters || count != 2*qty || len(data) != 5+count {
		return exception(fn, ExIllegalDataValue)
	}

	values := make([]uint16, qty)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(data[5+2*i:])
	}
	if err := h.regs.SetRange(addr, values); err != nil {
		return tableError(fn, err)
	}
	return append([]byte{fn}, data[:4]...)
}

// deviceID answers MEI 0x0E
// Stream reads starting at an unknown object restart at object 0
func (h *Handler) deviceID(fn byte, data []byte) []byte {
	if len(data) < 1 || data[0] != meiReadDeviceID {
		return exception(fn, ExIllegalFunction)
	}
	if len(data) != 3 {
		return exception(fn, ExIllegalDataValue)
	}
	code, start := data[1], data[2]

	var first, last byte
	switch code {
	case idBasic:
		first, last = 0x00, 0x02
	case idRegular, idExtended:
		first, last = 0x00, 0x05
	case idIndividual:
		if _, ok := h.identity.object(start); !ok {
			return exception(fn, ExIllegalDataAddress)
		}
		first, last = start, start
	default:
		return exception(fn, ExIllegalDataValue)
	}
	if code != idIndividual && start >= first && start <= last {
		first = start
	}

	resp := []byte{fn, meiReadDeviceID, code, conformity, 0x00, 0x00, 0x00}
	n := 0
	for id := first; id <= last; id++ {
		v, _ := h.identity.object(id)
		if len(v) > 0xFF {
			v = v[:0xFF]
		}
		resp = append(resp, id, byte(len(v)))
		resp = append(resp, v...)
		n++
	}
	resp[6] = byte(n)
	return resp
}
