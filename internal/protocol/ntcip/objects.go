package ntcip

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

// Object is one MIB object instance with its value.
type Object interface {
	Name() string
	OID() OID
	// Value returns the value formatted for display.
	Value() string

	encodeValue(buf *bytes.Buffer)
	decodeValue(t tlv) error
}

// Integer is an INTEGER object.
type Integer struct {
	name string
	oid  OID
	Int  int
}

func (o *Integer) Name() string  { return o.name }
func (o *Integer) OID() OID      { return o.oid }
func (o *Integer) Value() string { return strconv.Itoa(o.Int) }

func (o *Integer) encodeValue(buf *bytes.Buffer) { putInteger(buf, int64(o.Int)) }

func (o *Integer) decodeValue(t tlv) error {
	if err := expect(t, tagInteger); err != nil {
		return fmt.Errorf("%s: %w", o.name, err)
	}
	v, err := decodeInteger(t.value)
	if err != nil {
		return fmt.Errorf("%s: %w", o.name, err)
	}
	o.Int = int(v)
	return nil
}

// Enum is an enumerated INTEGER. Values outside the known range clamp to
// the undefined value 0 instead of failing.
type Enum struct {
	Integer
	labels []string
}

// Set assigns v, clamping unknown values to undefined.
func (o *Enum) Set(v int) {
	if v < 0 || v >= len(o.labels) {
		v = 0
	}
	o.Int = v
}

func (o *Enum) Value() string {
	if o.Int < 0 || o.Int >= len(o.labels) {
		return o.labels[0]
	}
	return o.labels[o.Int]
}

func (o *Enum) decodeValue(t tlv) error {
	if err := o.Integer.decodeValue(t); err != nil {
		return err
	}
	o.Set(o.Int)
	return nil
}

// OctetString is an OCTET STRING object.
type OctetString struct {
	name    string
	oid     OID
	display bool
	Bytes   []byte
}

func (o *OctetString) Name() string { return o.name }
func (o *OctetString) OID() OID     { return o.oid }

func (o *OctetString) Value() string {
	if o.display {
		return string(o.Bytes)
	}
	return fmt.Sprintf("% X", o.Bytes)
}

func (o *OctetString) encodeValue(buf *bytes.Buffer) { putTLV(buf, tagOctetString, o.Bytes) }

func (o *OctetString) decodeValue(t tlv) error {
	if err := expect(t, tagOctetString); err != nil {
		return fmt.Errorf("%s: %w", o.name, err)
	}
	o.Bytes = append([]byte(nil), t.value...)
	return nil
}

// Bitmap is an OCTET STRING of failure bits, bit 0 of the first byte
// being position 1.
type Bitmap struct {
	OctetString
}

// Positions returns the 1-based positions of all set bits.
func (o *Bitmap) Positions() []int {
	var pos []int
	f := 1
	for _, b := range o.Bytes {
		for bit := uint(0); bit < 8; bit, f = bit+1, f+1 {
			if comm.Bit(b, bit) {
				pos = append(pos, f)
			}
		}
	}
	return pos
}

// Value lists the failed positions as "#1, #3", or "None".
func (o *Bitmap) Value() string {
	pos := o.Positions()
	if len(pos) == 0 {
		return "None"
	}
	parts := make([]string, len(pos))
	for i, p := range pos {
		parts[i] = "#" + strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}

// MemoryType is the message memory of a MessageIDCode.
type MemoryType int

const (
	MemoryUndefined MemoryType = iota
	MemoryOther
	MemoryPermanent
	MemoryChangeable
	MemoryVolatile
	MemoryCurrentBuffer
	MemorySchedule
	MemoryBlank
)

// MessageIDCode identifies a sign message: memory type, message number
// and CRC packed into five octets.
type MessageIDCode struct {
	name   string
	oid    OID
	Memory MemoryType
	Number int
	CRC    int
}

func (o *MessageIDCode) Name() string { return o.name }
func (o *MessageIDCode) OID() OID     { return o.oid }

func (o *MessageIDCode) Value() string {
	return fmt.Sprintf("memory %d number %d crc 0x%04X", o.Memory, o.Number, o.CRC)
}

func (o *MessageIDCode) encodeValue(buf *bytes.Buffer) {
	putTLV(buf, tagOctetString, []byte{
		byte(o.Memory),
		byte(o.Number >> 8), byte(o.Number),
		byte(o.CRC >> 8), byte(o.CRC),
	})
}

func (o *MessageIDCode) decodeValue(t tlv) error {
	if err := expect(t, tagOctetString); err != nil {
		return fmt.Errorf("%s: %w", o.name, err)
	}
	if len(t.value) != 5 {
		return comm.Parsing("%s: message id code length %d", o.name, len(t.value))
	}
	p := t.value
	o.Memory = MemoryType(p[0])
	o.Number = int(p[1])<<8 | int(p[2])
	o.CRC = int(p[3])<<8 | int(p[4])
	return nil
}
