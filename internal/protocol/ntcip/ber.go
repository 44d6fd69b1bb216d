package ntcip

import (
	"bytes"
	"fmt"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

// BER tags used by SNMP v1.
const (
	tagInteger     byte = 0x02
	tagOctetString byte = 0x04
	tagNull        byte = 0x05
	tagOID         byte = 0x06
	tagSequence    byte = 0x30

	tagGetRequest  byte = 0xA0
	tagGetNext     byte = 0xA1
	tagGetResponse byte = 0xA2
	tagSetRequest  byte = 0xA3
)

// tlv is one decoded BER element.
type tlv struct {
	tag   byte
	value []byte
}

func putLength(buf *bytes.Buffer, n int) {
	switch {
	case n < 0x80:
		buf.WriteByte(byte(n))
	case n <= 0xFF:
		buf.WriteByte(0x81)
		buf.WriteByte(byte(n))
	default:
		buf.WriteByte(0x82)
		buf.WriteByte(byte(n >> 8))
		buf.WriteByte(byte(n))
	}
}

func putTLV(buf *bytes.Buffer, tag byte, value []byte) {
	buf.WriteByte(tag)
	putLength(buf, len(value))
	buf.Write(value)
}

func encodeInteger(v int64) []byte {
	out := []byte{byte(v)}
	for {
		next := v >> 8
		// Stop once the remaining bits are pure sign extension.
		if (next == 0 && out[0]&0x80 == 0) || (next == -1 && out[0]&0x80 != 0) {
			return out
		}
		v = next
		out = append([]byte{byte(v)}, out...)
	}
}

func putInteger(buf *bytes.Buffer, v int64) {
	putTLV(buf, tagInteger, encodeInteger(v))
}

func decodeInteger(p []byte) (int64, error) {
	if len(p) == 0 || len(p) > 8 {
		return 0, comm.Parsing("invalid integer length %d", len(p))
	}
	v := int64(int8(p[0]))
	for _, b := range p[1:] {
		v = v<<8 | int64(b)
	}
	return v, nil
}

func encodeOID(oid OID) ([]byte, error) {
	if len(oid) < 2 {
		return nil, fmt.Errorf("oid too short: %s", oid)
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(oid[0]*40 + oid[1]))
	for _, sub := range oid[2:] {
		putBase128(&buf, sub)
	}
	return buf.Bytes(), nil
}

func putBase128(buf *bytes.Buffer, v int) {
	var tmp [5]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7F)
	for v >>= 7; v > 0; v >>= 7 {
		i--
		tmp[i] = byte(v&0x7F) | 0x80
	}
	buf.Write(tmp[i:])
}

func decodeOID(p []byte) (OID, error) {
	if len(p) == 0 {
		return nil, comm.Parsing("empty oid")
	}
	oid := OID{int(p[0]) / 40, int(p[0]) % 40}
	v := 0
	for i, b := range p[1:] {
		v = v<<7 | int(b&0x7F)
		if b&0x80 == 0 {
			oid = append(oid, v)
			v = 0
		} else if i == len(p)-2 {
			return nil, comm.Parsing("truncated oid % X", p)
		}
	}
	return oid, nil
}

// readTLV splits the first element off p.
func readTLV(p []byte) (tlv, []byte, error) {
	if len(p) < 2 {
		return tlv{}, nil, comm.Parsing("short BER element: %d bytes", len(p))
	}
	tag := p[0]
	n, hdr, err := readLength(p[1:])
	if err != nil {
		return tlv{}, nil, err
	}
	start := 1 + hdr
	if len(p) < start+n {
		return tlv{}, nil, comm.Parsing("BER length %d exceeds %d bytes", n, len(p)-start)
	}
	return tlv{tag: tag, value: p[start : start+n]}, p[start+n:], nil
}

// readLength returns the content length and the size of the length field.
func readLength(p []byte) (int, int, error) {
	if len(p) == 0 {
		return 0, 0, comm.Parsing("missing BER length")
	}
	if p[0] < 0x80 {
		return int(p[0]), 1, nil
	}
	octets := int(p[0] & 0x7F)
	if octets == 0 || octets > 2 || len(p) < 1+octets {
		return 0, 0, comm.Parsing("invalid BER length 0x%02X", p[0])
	}
	n := 0
	for _, b := range p[1 : 1+octets] {
		n = n<<8 | int(b)
	}
	return n, 1 + octets, nil
}

func expect(t tlv, tag byte) error {
	if t.tag != tag {
		return comm.Parsing("expected tag 0x%02X, got 0x%02X", tag, t.tag)
	}
	return nil
}

// ScanMessage frames a byte stream into complete BER messages.
func ScanMessage(data []byte, atEOF bool) (int, []byte, error) {
	if len(data) < 2 {
		if atEOF && len(data) > 0 {
			return 0, nil, comm.Parsing("truncated message")
		}
		return 0, nil, nil
	}
	if data[0] != tagSequence {
		return 0, nil, comm.Parsing("expected SEQUENCE, got 0x%02X", data[0])
	}
	if data[1] >= 0x80 && len(data) < 2+int(data[1]&0x7F) {
		return 0, nil, nil
	}
	n, hdr, err := readLength(data[1:])
	if err != nil {
		return 0, nil, err
	}
	total := 1 + hdr + n
	if len(data) < total {
		if atEOF {
			return 0, nil, comm.Parsing("truncated message: %d of %d bytes", len(data), total)
		}
		return 0, nil, nil
	}
	return total, data[:total], nil
}
