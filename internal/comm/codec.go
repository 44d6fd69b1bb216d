package comm

import (
	"bytes"
	"fmt"
	"strconv"
)

// PutBCD2 writes v (0-99) as one packed BCD byte.
func PutBCD2(buf *bytes.Buffer, v int) error {
	if v < 0 || v > 99 {
		return fmt.Errorf("bcd2 value out of range: %d", v)
	}
	buf.WriteByte(byte(v/10<<4 | v%10))
	return nil
}

// PutBCD4 writes v (0-9999) as two packed BCD bytes, high digits first.
func PutBCD4(buf *bytes.Buffer, v int) error {
	if v < 0 || v > 9999 {
		return fmt.Errorf("bcd4 value out of range: %d", v)
	}
	if err := PutBCD2(buf, v/100); err != nil {
		return err
	}
	return PutBCD2(buf, v%100)
}

// BCD2 decodes one packed BCD byte.
func BCD2(b byte) (int, error) {
	hi, lo := int(b>>4), int(b&0x0F)
	if hi > 9 || lo > 9 {
		return 0, Parsing("invalid BCD byte 0x%02X", b)
	}
	return hi*10 + lo, nil
}

// BCD4 decodes two packed BCD bytes, high digits first.
func BCD4(p []byte) (int, error) {
	if len(p) < 2 {
		return 0, Parsing("short BCD4 field: %d bytes", len(p))
	}
	hi, err := BCD2(p[0])
	if err != nil {
		return 0, err
	}
	lo, err := BCD2(p[1])
	if err != nil {
		return 0, err
	}
	return hi*100 + lo, nil
}

// HexField formats v as exactly width upper-case hex digits.
func HexField(v, width int) string {
	s := fmt.Sprintf("%0*X", width, v)
	if len(s) > width {
		s = s[len(s)-width:]
	}
	return s
}

// ParseHexField parses a hex digit field.
func ParseHexField(s string) (int, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, Parsing("invalid hex field %q", s)
	}
	return int(v), nil
}

// XORChecksum returns the XOR of all bytes in p.
func XORChecksum(p []byte) byte {
	var sum byte
	for _, b := range p {
		sum ^= b
	}
	return sum
}

// Bit reports whether bit n of b is set.
func Bit(b byte, n uint) bool { return b&(1<<n) != 0 }

// SetBit returns b with bit n set when on is true.
func SetBit(b byte, n uint, on bool) byte {
	if on {
		return b | 1<<n
	}
	return b
}
