package modbus

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

// Frame is an MBAP header (7 bytes) followed by the PDU.
type Frame struct {
	TransactionID uint16
	ProtocolID    uint16
	UnitID        uint8
	FunctionCode  uint8
	Data          []byte
}

const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleRegisters = 0x10

	exceptionFlag = 0x80
	headerLen     = 7
	maxFrameLen   = 260
)

var exceptionNames = map[byte]string{
	0x01: "illegal function",
	0x02: "illegal data address",
	0x03: "illegal data value",
	0x04: "server device failure",
	0x06: "server device busy",
	0x0B: "gateway target failed to respond",
}

// Encode writes the complete TCP frame.
func (f *Frame) Encode(buf *bytes.Buffer) {
	var hdr [headerLen + 1]byte
	binary.BigEndian.PutUint16(hdr[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(hdr[2:4], f.ProtocolID)
	// length counts unit id, function code and data
	binary.BigEndian.PutUint16(hdr[4:6], uint16(len(f.Data)+2))
	hdr[6] = f.UnitID
	hdr[7] = f.FunctionCode
	buf.Write(hdr[:])
	buf.Write(f.Data)
}

// DecodeFrame parses one received frame.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < headerLen+1 {
		return nil, comm.Parsing("frame too short: %d bytes", len(data))
	}
	f := &Frame{
		TransactionID: binary.BigEndian.Uint16(data[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(data[2:4]),
		UnitID:        data[6],
		FunctionCode:  data[7],
	}
	if f.ProtocolID != 0 {
		return nil, comm.Parsing("invalid protocol ID: 0x%04X", f.ProtocolID)
	}
	if n := int(binary.BigEndian.Uint16(data[4:6])); n != len(data)-6 {
		return nil, comm.Parsing("length field %d, frame carries %d", n, len(data)-6)
	}
	f.Data = data[headerLen+1:]
	return f, nil
}

// ScanFrame is a bufio.SplitFunc cutting frames by their MBAP length.
func ScanFrame(data []byte, atEOF bool) (int, []byte, error) {
	if len(data) >= 6 {
		n := 6 + int(binary.BigEndian.Uint16(data[4:6]))
		if n > maxFrameLen {
			return 0, nil, comm.Parsing("frame length %d exceeds %d", n, maxFrameLen)
		}
		if len(data) >= n {
			return n, data[:n], nil
		}
	}
	if atEOF && len(data) > 0 {
		return 0, nil, comm.Parsing("truncated frame: %d bytes", len(data))
	}
	return 0, nil, nil
}

// check matches a response to the request it answers.
func (f *Frame) check(req *Frame) error {
	if f.TransactionID != req.TransactionID {
		return comm.Parsing("transaction ID mismatch: expected %d, got %d", req.TransactionID, f.TransactionID)
	}
	if f.UnitID != req.UnitID {
		return comm.Parsing("unit ID mismatch: expected %d, got %d", req.UnitID, f.UnitID)
	}
	if f.FunctionCode == req.FunctionCode|exceptionFlag {
		code := byte(0)
		if len(f.Data) > 0 {
			code = f.Data[0]
		}
		name := exceptionNames[code]
		if name == "" {
			name = fmt.Sprintf("code 0x%02X", code)
		}
		return comm.Parsing("modbus exception: %s", name)
	}
	if f.FunctionCode != req.FunctionCode {
		return comm.Parsing("function code 0x%02X, expected 0x%02X", f.FunctionCode, req.FunctionCode)
	}
	return nil
}

// wordPair encodes two big-endian words: an address and a quantity or value.
func wordPair(addr, quantity uint16) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], quantity)
	return data
}

// registers parses a register read response.
func (f *Frame) registers(quantity int) ([]uint16, error) {
	if len(f.Data) < 1 {
		return nil, comm.Parsing("response too short")
	}
	byteCount := int(f.Data[0])
	if len(f.Data) != byteCount+1 || byteCount != quantity*2 {
		return nil, comm.Parsing("register response of %d bytes, expected %d", byteCount, quantity*2)
	}
	regs := make([]uint16, quantity)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(f.Data[1+i*2:])
	}
	return regs, nil
}

// bits parses a coil or discrete input read response.
func (f *Frame) bits() ([]byte, error) {
	if len(f.Data) < 2 || len(f.Data) != int(f.Data[0])+1 {
		return nil, comm.Parsing("incomplete bit response")
	}
	return f.Data[1:], nil
}
