package mndot

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

// Message categories. The category shares the first byte with the drop
// address: drop in the high five bits, category in the low three.
const (
	catShutUp          = 0
	catLevel1Restart   = 1
	catSynchronizeTime = 2
	catQueryRecord     = 3
	catSendNextRecord  = 4
	catDeleteRecord    = 5
	catWriteMemory     = 6
	catReadMemory      = 7
)

// Response status codes, in the low three bits of the response header.
const (
	statOK              = 0
	statBadMessage      = 1
	statBadPollChecksum = 2
	statDownloadRequest = 3
	statWriteProtect    = 4
	statMessageSize     = 5
	statNoData          = 6
	statNoRAM           = 7
)

var statusNames = [...]string{
	"OK", "bad message", "bad poll checksum", "download request",
	"write protect", "message size", "no data", "no RAM",
}

const (
	maxDrop    = 31
	maxPayload = 0xFF
)

// ErrDownloadRequest is returned when the controller asks to be
// reinitialized.
var ErrDownloadRequest = errors.New("controller requested download")

func putMessage(buf *bytes.Buffer, drop int, cat byte, payload []byte) error {
	if drop < 1 || drop > maxDrop {
		return &comm.ConfigError{Controller: fmt.Sprintf("drop %d", drop), Reason: "drop out of range"}
	}
	if len(payload) > maxPayload {
		return &comm.ConfigError{Controller: fmt.Sprintf("drop %d", drop), Reason: "payload too long"}
	}
	start := buf.Len()
	buf.WriteByte(byte(drop<<3) | cat)
	buf.WriteByte(byte(len(payload)))
	buf.Write(payload)
	buf.WriteByte(comm.XORChecksum(buf.Bytes()[start:]))
	return nil
}

// ScanMessage is a bufio.SplitFunc returning whole messages, header and
// checksum included.
func ScanMessage(data []byte, atEOF bool) (int, []byte, error) {
	if len(data) >= 2 {
		n := 2 + int(data[1]) + 1
		if len(data) >= n {
			return n, data[:n], nil
		}
	}
	if atEOF && len(data) > 0 {
		return 0, nil, comm.Parsing("truncated message: %d bytes", len(data))
	}
	return 0, nil, nil
}

// parseResponse checks the framing and status of a response from drop
// and returns its payload.
func parseResponse(drop int, msg []byte) ([]byte, error) {
	if len(msg) < 3 || len(msg) != 2+int(msg[1])+1 {
		return nil, comm.Parsing("bad message length % X", msg)
	}
	if sum := comm.XORChecksum(msg[:len(msg)-1]); sum != msg[len(msg)-1] {
		return nil, comm.Parsing("checksum 0x%02X, expected 0x%02X", msg[len(msg)-1], sum)
	}
	if got := int(msg[0] >> 3); got != drop {
		return nil, comm.Parsing("response from drop %d, expected %d", got, drop)
	}
	switch stat := msg[0] & 0x07; stat {
	case statOK:
		return msg[2 : len(msg)-1], nil
	case statDownloadRequest:
		return nil, &comm.ParsingError{Detail: statusNames[stat], Err: ErrDownloadRequest}
	default:
		return nil, comm.Parsing("controller status: %s", statusNames[stat])
	}
}
