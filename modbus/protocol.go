package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Sentinel errors
var (
	ErrMalformedRequest = errors.New("malformed modbus request")
	ErrConnectionLost   = errors.New("modbus connection lost")
)

// Function codes
const (
	FuncReadCoils              byte = 0x01
	FuncReadDiscreteInputs     byte = 0x02
	FuncReadHoldingRegisters   byte = 0x03
	FuncReadInputRegisters     byte = 0x04
	FuncWriteSingleCoil        byte = 0x05
	FuncWriteSingleRegister    byte = 0x06
	FuncWriteMultipleCoils     byte = 0x0F
	FuncWriteMultipleRegisters byte = 0x10
	FuncEncapsulatedInterface  byte = 0x2B

	meiReadDeviceID byte = 0x0E
	exceptionFlag   byte = 0x80
)

// Exception codes
const (
	ExIllegalFunction    byte = 0x01
	ExIllegalDataAddress byte = 0x02
	ExIllegalDataValue   byte = 0x03
)

// MBAP header precedes every PDU
// Fixed 7 bytes: [Transaction:2][Protocol:2][Length:2][Unit:1]
// Length counts the unit byte and the PDU
const HeaderSize = 7

const (
	minLength = 2   // unit + function code
	maxLength = 254 // unit + 253 byte PDU
)

// Header is a decoded MBAP header
type Header struct {
	Transaction uint16
	Protocol    uint16
	Length      uint16
	Unit        byte
}

// Frame is one request or response
type Frame struct {
	Transaction uint16
	Unit        byte
	PDU         []byte // function code first
}

// ReadHeader reads and validates one MBAP header
// A clean close before any byte returns ErrConnectionLost; anything else wrong is ErrMalformedRequest
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return Header{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return Header{}, fmt.Errorf("%w: truncated header", ErrMalformedRequest)
		default:
			return Header{}, err
		}
	}

	h := Header{
		Transaction: binary.BigEndian.Uint16(buf[0:2]),
		Protocol:    binary.BigEndian.Uint16(buf[2:4]),
		Length:      binary.BigEndian.Uint16(buf[4:6]),
		Unit:        buf[6],
	}
	if h.Protocol != 0 {
		return h, fmt.Errorf("%w: protocol id %d", ErrMalformedRequest, h.Protocol)
	}
	if h.Length < minLength || h.Length > maxLength {
		return h, fmt.Errorf("%w: length %d", ErrMalformedRequest, h.Length)
	}
	return h, nil
}

// ReadPDU reads the PDU announced by h
func ReadPDU(r io.Reader, h Header) ([]byte, error) {
	pdu := make([]byte, int(h.Length)-1)
	if _, err := io.ReadFull(r, pdu); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated pdu", ErrMalformedRequest)
		}
		return nil, err
	}
	return pdu, nil
}

// ReadFrame reads a header and its PDU
func ReadFrame(r io.Reader) (Frame, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Frame{}, err
	}
	pdu, err := ReadPDU(r, h)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Transaction: h.Transaction, Unit: h.Unit, PDU: pdu}, nil
}

// WriteFrame encodes f with its MBAP header
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.PDU) == 0 || len(f.PDU)+1 > maxLength {
		return fmt.Errorf("pdu size %d out of bounds", len(f.PDU))
	}

	buf := make([]byte, HeaderSize+len(f.PDU))
	binary.BigEndian.PutUint16(buf[0:2], f.Transaction)
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(f.PDU)+1))
	buf[6] = f.Unit
	copy(buf[HeaderSize:], f.PDU)

	_, err := w.Write(buf)
	return err
}

// exception builds the error response for fn
func exception(fn, code byte) []byte {
	return []byte{fn | exceptionFlag, code}
}

// IsException reports whether a response PDU carries an exception, and its code
func IsException(pdu []byte) (byte, bool) {
	if len(pdu) == 2 && pdu[0]&exceptionFlag != 0 {
		return pdu[1], true
	}
	return 0, false
}
