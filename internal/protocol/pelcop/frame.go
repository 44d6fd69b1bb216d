package pelcop

import (
	"bytes"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

// Frame delimiters. The checksum byte after ETX is the XOR of every byte
// from STX through ETX.
const (
	stx = 0xA0
	etx = 0xAF
)

func putFrame(buf *bytes.Buffer, body []byte) {
	start := buf.Len()
	buf.WriteByte(stx)
	buf.Write(body)
	buf.WriteByte(etx)
	buf.WriteByte(comm.XORChecksum(buf.Bytes()[start:]))
}

// ScanFrame is a bufio.SplitFunc returning frame bodies. Bytes before STX
// are discarded.
func ScanFrame(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.IndexByte(data, stx)
	if start < 0 {
		return len(data), nil, nil
	}
	if start > 0 {
		return start, nil, nil
	}
	end := bytes.IndexByte(data, etx)
	if end < 0 || len(data) < end+2 {
		if atEOF {
			return 0, nil, comm.Parsing("truncated frame: %d bytes", len(data))
		}
		return 0, nil, nil
	}
	if sum := comm.XORChecksum(data[:end+1]); sum != data[end+1] {
		return 0, nil, comm.Parsing("checksum 0x%02X, expected 0x%02X", data[end+1], sum)
	}
	return end + 2, data[1:end], nil
}
