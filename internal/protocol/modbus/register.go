package modbus

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

func registerQuantity(dt types.DataType) int {
	switch dt {
	case types.DataTypeInt32, types.DataTypeUint32, types.DataTypeFloat32:
		return 2
	default:
		return 1
	}
}

func scale(f float64) float64 {
	if f == 0 {
		return 1
	}
	return f
}

// convertRegisters turns raw registers into a scaled value. Bools stay
// bools; everything else becomes float64.
func convertRegisters(regs []uint16, reg *types.RegisterDefinition) any {
	sf := scale(reg.ScaleFactor)
	switch reg.DataType {
	case types.DataTypeBool:
		return regs[0] != 0
	case types.DataTypeInt16:
		return float64(int16(regs[0])) * sf
	case types.DataTypeUint32:
		return float64(uint32(regs[0])<<16|uint32(regs[1])) * sf
	case types.DataTypeInt32:
		return float64(int32(uint32(regs[0])<<16|uint32(regs[1]))) * sf
	case types.DataTypeFloat32:
		return float64(math.Float32frombits(uint32(regs[0])<<16|uint32(regs[1]))) * sf
	default:
		return float64(regs[0]) * sf
	}
}

// encodeRegisters converts a value to write into raw registers.
func encodeRegisters(value any, reg *types.RegisterDefinition) ([]uint16, error) {
	var f float64
	switch v := value.(type) {
	case bool:
		if v {
			f = 1
		}
	case int:
		f = float64(v)
	case int16:
		f = float64(v)
	case uint16:
		f = float64(v)
	case float64:
		f = v
	default:
		return nil, fmt.Errorf("unsupported value type: %T", value)
	}
	raw := f / scale(reg.ScaleFactor)

	switch reg.DataType {
	case types.DataTypeFloat32:
		bits := math.Float32bits(float32(raw))
		return []uint16{uint16(bits >> 16), uint16(bits)}, nil
	case types.DataTypeInt32, types.DataTypeUint32:
		u := uint32(int64(math.Round(raw)))
		return []uint16{uint16(u >> 16), uint16(u)}, nil
	case types.DataTypeInt16:
		return []uint16{uint16(int16(math.Round(raw)))}, nil
	default:
		return []uint16{uint16(math.Round(raw))}, nil
	}
}

func readFunction(t types.RegisterType) uint8 {
	switch t {
	case types.RegisterTypeCoil:
		return FuncCodeReadCoils
	case types.RegisterTypeDiscreteInput:
		return FuncCodeReadDiscreteInputs
	case types.RegisterTypeInputRegister:
		return FuncCodeReadInputRegisters
	default:
		return FuncCodeReadHoldingRegisters
	}
}

// RegisterProp reads or writes one profile register.
type RegisterProp struct {
	TransactionID uint16
	Unit          uint8
	Register      *types.RegisterDefinition

	// Value is the decoded value after a read and the value to store
	// for a write.
	Value any

	sent *Frame
}

func (p *RegisterProp) isBit() bool {
	return p.Register.Type == types.RegisterTypeCoil || p.Register.Type == types.RegisterTypeDiscreteInput
}

func (p *RegisterProp) EncodeQuery(buf *bytes.Buffer) error {
	quantity := 1
	if !p.isBit() {
		quantity = registerQuantity(p.Register.DataType)
	}
	p.sent = &Frame{
		TransactionID: p.TransactionID,
		UnitID:        p.Unit,
		FunctionCode:  readFunction(p.Register.Type),
		Data:          wordPair(p.Register.Address, uint16(quantity)),
	}
	p.sent.Encode(buf)
	return nil
}

func (p *RegisterProp) DecodeQuery(resp []byte) error {
	f, err := p.response(resp)
	if err != nil {
		return err
	}
	if p.isBit() {
		bits, err := f.bits()
		if err != nil {
			return err
		}
		p.Value = bits[0]&0x01 != 0
		return nil
	}
	regs, err := f.registers(registerQuantity(p.Register.DataType))
	if err != nil {
		return err
	}
	p.Value = convertRegisters(regs, p.Register)
	return nil
}

func (p *RegisterProp) EncodeStore(buf *bytes.Buffer) error {
	reg := p.Register
	if reg.Access != types.AccessTypeReadWrite {
		return &comm.ConfigError{Controller: reg.Name, Reason: "register is read-only"}
	}
	f := &Frame{TransactionID: p.TransactionID, UnitID: p.Unit}

	switch reg.Type {
	case types.RegisterTypeCoil:
		on, ok := p.Value.(bool)
		if !ok {
			return &comm.ConfigError{Controller: reg.Name, Reason: fmt.Sprintf("coil value must be bool, got %T", p.Value)}
		}
		var v uint16
		if on {
			v = 0xFF00
		}
		f.FunctionCode = FuncCodeWriteSingleCoil
		f.Data = wordPair(reg.Address, v)
	case types.RegisterTypeHoldingRegister:
		regs, err := encodeRegisters(p.Value, reg)
		if err != nil {
			return &comm.ConfigError{Controller: reg.Name, Reason: err.Error()}
		}
		if len(regs) == 1 {
			f.FunctionCode = FuncCodeWriteSingleRegister
			f.Data = wordPair(reg.Address, regs[0])
			break
		}
		f.FunctionCode = FuncCodeWriteMultipleRegisters
		f.Data = wordPair(reg.Address, uint16(len(regs)))
		f.Data = append(f.Data, byte(len(regs)*2))
		for _, r := range regs {
			f.Data = binary.BigEndian.AppendUint16(f.Data, r)
		}
	default:
		return &comm.ConfigError{Controller: reg.Name, Reason: "register type " + string(reg.Type) + " is not writable"}
	}
	p.sent = f
	f.Encode(buf)
	return nil
}

func (p *RegisterProp) DecodeStore(resp []byte) error {
	_, err := p.response(resp)
	return err
}

func (p *RegisterProp) response(resp []byte) (*Frame, error) {
	f, err := DecodeFrame(resp)
	if err != nil {
		return nil, err
	}
	if p.sent == nil {
		return nil, comm.Parsing("response without request")
	}
	if err := f.check(p.sent); err != nil {
		return nil, err
	}
	return f, nil
}
