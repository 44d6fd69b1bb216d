package monstream

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

// Separators of the text protocol. Fields are split by unit separators and
// every message ends with a record separator.
const (
	unitSep   = 0x1F
	recordSep = 0x1E
)

// Style is the presentation of one monitor.
type Style struct {
	Accent      string
	ForceAspect bool
	FontSz      int
}

// DefaultStyle applies to monitors without a configured style.
var DefaultStyle = Style{Accent: "000080", FontSz: 20}

// Monitor is a video monitor bound to a controller pin.
type Monitor interface {
	comm.ControllerIO
	MonNum() int
	Style() (Style, bool)
}

func putRecord(buf *bytes.Buffer, fields ...string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(unitSep)
		}
		buf.WriteString(f)
	}
	buf.WriteByte(recordSep)
}

// MonitorProp configures the monitor on one controller pin. Pins without a
// monitor are sent with an empty label so the decoder releases them.
type MonitorProp struct {
	Pin     int
	Monitor Monitor
}

func (p *MonitorProp) label() string {
	if p.Monitor == nil {
		return ""
	}
	if n := p.Monitor.MonNum(); n > 0 {
		return strconv.Itoa(n)
	}
	return p.Monitor.Name()
}

func (p *MonitorProp) style() Style {
	if p.Monitor != nil {
		if s, ok := p.Monitor.Style(); ok {
			return s
		}
	}
	return DefaultStyle
}

func (p *MonitorProp) EncodeStore(buf *bytes.Buffer) error {
	s := p.style()
	aspect := "0"
	if s.ForceAspect {
		aspect = "1"
	}
	putRecord(buf, "monitor", strconv.Itoa(p.Pin-1), p.label(), s.Accent, aspect, strconv.Itoa(s.FontSz))
	return nil
}

func (p *MonitorProp) DecodeStore(resp []byte) error { return nil }

func (p *MonitorProp) NoReply() bool { return true }

func (p *MonitorProp) String() string { return "monitor: " + strconv.Itoa(p.Pin) }

// SwitchProp tells the decoder on one pin to play a camera stream.
type SwitchProp struct {
	Pin      int
	Camera   string
	URI      string
	Encoding string
	Latency  int
}

func (p *SwitchProp) EncodeStore(buf *bytes.Buffer) error {
	if p.Camera != "" && p.URI == "" {
		return &comm.ConfigError{Controller: p.Camera, Reason: "camera has no stream URI"}
	}
	putRecord(buf, "play", strconv.Itoa(p.Pin-1), p.Camera, p.URI, p.Encoding, strconv.Itoa(p.Latency))
	return nil
}

func (p *SwitchProp) DecodeStore(resp []byte) error { return nil }

func (p *SwitchProp) NoReply() bool { return true }

// Status is one status record reported by a decoder.
type Status struct {
	Pin    int
	Camera string
	Stat   string
}

// StatusProp queries decoder status and decodes one status record.
type StatusProp struct {
	Status Status
}

func (p *StatusProp) EncodeQuery(buf *bytes.Buffer) error {
	putRecord(buf, "query")
	return nil
}

func (p *StatusProp) DecodeQuery(resp []byte) error {
	st, err := ParseStatus(resp)
	if err != nil {
		return err
	}
	p.Status = st
	return nil
}

// ParseStatus parses a status record without its record separator.
func ParseStatus(rec []byte) (Status, error) {
	fields := strings.Split(string(rec), string(rune(unitSep)))
	if len(fields) != 4 || fields[0] != "status" {
		return Status{}, comm.Parsing("invalid status record %q", rec)
	}
	mon, err := strconv.Atoi(fields[1])
	if err != nil || mon < 0 {
		return Status{}, comm.Parsing("invalid monitor %q", fields[1])
	}
	return Status{Pin: mon + 1, Camera: fields[2], Stat: fields[3]}, nil
}
