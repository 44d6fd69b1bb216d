package smartsensor

import (
	"bytes"
	"strings"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

// Every request starts with this header and the sensor drop; every
// response echoes the drop.
const header = "Z0"

const (
	cmdMemoryRead  = "XR"
	cmdMemoryWrite = "XW"
	cmdBinnedData  = "XD"
	cmdVersion     = "XV"

	writeSuccess = "Success"
)

func putRequest(buf *bytes.Buffer, drop int, cmd string, fields ...string) {
	buf.WriteString(header)
	buf.WriteString(comm.HexField(drop, 4))
	buf.WriteString(cmd)
	for _, f := range fields {
		buf.WriteString(f)
	}
	buf.WriteByte('\r')
}

// payload strips the drop echo from a response line.
func payload(drop int, resp []byte) (string, error) {
	line := strings.TrimRight(string(resp), "\r\n")
	line = strings.TrimLeft(line, "\n")
	want := comm.HexField(drop, 4)
	if len(line) < len(want) || line[:len(want)] != want {
		return "", comm.Parsing("response for wrong sensor: %q", line)
	}
	return line[len(want):], nil
}

// memory is one block of sensor memory, read and written as hex digits.
type memory interface {
	address() int
	length() int
	format() string
	parse(buf string) error
}

// MemoryProp reads or writes a memory block of the sensor at Drop.
type MemoryProp struct {
	Drop int
	mem  memory
}

func (p *MemoryProp) EncodeQuery(buf *bytes.Buffer) error {
	putRequest(buf, p.Drop, cmdMemoryRead,
		comm.HexField(p.mem.address(), 6), comm.HexField(p.mem.length(), 4))
	return nil
}

func (p *MemoryProp) DecodeQuery(resp []byte) error {
	data, err := payload(p.Drop, resp)
	if err != nil {
		return err
	}
	if len(data) != p.mem.length() {
		return comm.Parsing("memory read of %d digits, expected %d: %q", len(data), p.mem.length(), data)
	}
	return p.mem.parse(data)
}

func (p *MemoryProp) EncodeStore(buf *bytes.Buffer) error {
	putRequest(buf, p.Drop, cmdMemoryWrite,
		comm.HexField(p.mem.address(), 6), comm.HexField(p.mem.length(), 4), p.mem.format())
	return nil
}

func (p *MemoryProp) DecodeStore(resp []byte) error {
	data, err := payload(p.Drop, resp)
	if err != nil {
		return err
	}
	if data != writeSuccess {
		return comm.Parsing("memory write rejected: %q", data)
	}
	return nil
}
