package vicon

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

const (
	// CameraNone is reported when a monitor shows no camera.
	CameraNone = -1

	minValue = -256
	maxValue = 256
)

const (
	cmdSelectMonitor = "A"
	cmdSelectCamera  = "B"
	cmdStartTour     = "C"
	cmdGetCamera     = "f"
	cmdGetTour       = "j"
)

func clampValue(v int) int {
	return max(min(v, maxValue), minValue)
}

func putRequest(buf *bytes.Buffer, monitor int, cmd string, arg ...int) {
	buf.WriteString(cmdSelectMonitor)
	buf.WriteString(strconv.Itoa(clampValue(monitor)))
	buf.WriteString(cmd)
	if len(arg) > 0 {
		buf.WriteString(strconv.Itoa(clampValue(arg[0])))
	}
	buf.WriteByte('\r')
}

// SelectCameraProp switches a monitor to a camera.
type SelectCameraProp struct {
	Monitor int
	Camera  int
}

func (p *SelectCameraProp) EncodeStore(buf *bytes.Buffer) error {
	putRequest(buf, p.Monitor, cmdSelectCamera, p.Camera)
	return nil
}

func (p *SelectCameraProp) DecodeStore(resp []byte) error { return nil }

func (p *SelectCameraProp) NoReply() bool { return true }

// StartTourProp starts a camera tour on a monitor.
type StartTourProp struct {
	Monitor int
	Tour    int
}

func (p *StartTourProp) EncodeStore(buf *bytes.Buffer) error {
	putRequest(buf, p.Monitor, cmdStartTour, p.Tour)
	return nil
}

func (p *StartTourProp) DecodeStore(resp []byte) error { return nil }

func (p *StartTourProp) NoReply() bool { return true }

// CameraProp queries the camera shown on a monitor.
type CameraProp struct {
	Monitor int
	Camera  int
}

func (p *CameraProp) EncodeQuery(buf *bytes.Buffer) error {
	putRequest(buf, p.Monitor, cmdGetCamera)
	return nil
}

func (p *CameraProp) DecodeQuery(resp []byte) (err error) {
	p.Camera, err = parseValue(resp)
	return err
}

// TourProp queries the tour running on a monitor.
type TourProp struct {
	Monitor int
	Tour    int
}

func (p *TourProp) EncodeQuery(buf *bytes.Buffer) error {
	putRequest(buf, p.Monitor, cmdGetTour)
	return nil
}

func (p *TourProp) DecodeQuery(resp []byte) (err error) {
	p.Tour, err = parseValue(resp)
	return err
}

func parseValue(resp []byte) (int, error) {
	s := strings.TrimSpace(string(resp))
	v, err := strconv.Atoi(s)
	if err != nil || v < minValue || v > maxValue {
		return 0, comm.Parsing("invalid value %q", s)
	}
	return v, nil
}
