package pelcop

import (
	"bytes"
	"fmt"
	"math"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

const (
	reqCamControl = 0xC0
	respMonStatus = 0xB1

	camControlLen = 10

	deadZone = 6
	maxPan   = 64
	maxTilt  = 63
)

// Control byte 0 bits.
const (
	bitFocusFar = iota
	bitFocusNear
	bitIrisOpen
	bitIrisClose
)

// Control byte 1 bits.
const (
	bitExtended = iota
	bitPanRight
	bitPanLeft
	bitTiltUp
	bitTiltDown
	bitZoomIn
	bitZoomOut
)

// Extended commands carried in control byte 1.
const (
	extClearPreset  = 0x05
	extStorePreset  = 0x03
	extRecallPreset = 0x07
	extMask         = 0xC1
)

// Storing these presets drives the camera on-screen menu.
const (
	menuOpenPreset   = 77
	menuEnterPreset  = 78
	menuCancelPreset = 79
)

// Action is the preset or menu request of a camera command.
type Action int

const (
	ActionNone Action = iota
	ActionRecallPreset
	ActionStorePreset
	ActionClearPreset
	ActionMenuOpen
	ActionMenuEnter
	ActionMenuCancel
)

func (a Action) String() string {
	switch a {
	case ActionRecallPreset:
		return "recall_preset"
	case ActionStorePreset:
		return "store_preset"
	case ActionClearPreset:
		return "clear_preset"
	case ActionMenuOpen:
		return "menu_open"
	case ActionMenuEnter:
		return "menu_enter"
	case ActionMenuCancel:
		return "menu_cancel"
	default:
		return "none"
	}
}

// CamCommand is one camera control request from a keyboard. Pan, Tilt and
// Zoom range over [-1, 1]; Focus and Iris are -1, 0 or 1.
type CamCommand struct {
	Monitor int
	Camera  int

	Pan, Tilt, Zoom float32
	Focus, Iris     int

	Action Action
	Preset int
}

func (c CamCommand) String() string {
	if c.Action != ActionNone {
		return fmt.Sprintf("mon %d cam %d %s %d", c.Monitor, c.Camera, c.Action, c.Preset)
	}
	return fmt.Sprintf("mon %d cam %d ptz %.2f/%.2f/%.0f focus %d iris %d",
		c.Monitor, c.Camera, c.Pan, c.Tilt, c.Zoom, c.Focus, c.Iris)
}

// DecodeCamControl parses a camera control frame body.
func DecodeCamControl(body []byte) (CamCommand, error) {
	var cmd CamCommand
	if len(body) != camControlLen || body[0] != reqCamControl {
		return cmd, comm.Parsing("camera control: bad body % X", body)
	}
	monLo, err := comm.BCD2(body[1])
	if err != nil {
		return cmd, err
	}
	if cmd.Camera, err = comm.BCD4(body[2:4]); err != nil {
		return cmd, err
	}
	c0, c1, c2, c3 := body[4], body[5], body[6], body[7]
	monHi, err := comm.BCD2(body[8])
	if err != nil {
		return cmd, err
	}
	if body[9] != 0 {
		return cmd, comm.Parsing("PTZ")
	}
	cmd.Monitor = monHi*100 + monLo

	switch {
	case c0 != 0:
		if cmd.Focus, err = direction(c0, bitFocusFar, bitFocusNear, "FOCUS"); err != nil {
			return cmd, err
		}
		if cmd.Iris, err = direction(c0, bitIrisOpen, bitIrisClose, "IRIS"); err != nil {
			return cmd, err
		}
	case !comm.Bit(c1, bitExtended):
		pan, err := direction(c1, bitPanRight, bitPanLeft, "PAN")
		if err != nil {
			return cmd, err
		}
		tilt, err := direction(c1, bitTiltUp, bitTiltDown, "TILT")
		if err != nil {
			return cmd, err
		}
		zoom, err := direction(c1, bitZoomIn, bitZoomOut, "ZOOM")
		if err != nil {
			return cmd, err
		}
		cmd.Pan = float32(pan) * speed(c2, maxPan)
		cmd.Tilt = float32(tilt) * speed(c3, maxTilt)
		cmd.Zoom = float32(zoom)
	default:
		if c1&extMask != 1 {
			return cmd, comm.Parsing("EXT")
		}
		if cmd.Preset, err = comm.BCD2(c3); err != nil {
			return cmd, err
		}
		cmd.Action = extendedAction(c1, cmd.Preset)
	}
	return cmd, nil
}

func direction(b byte, plus, minus uint, name string) (int, error) {
	p, m := comm.Bit(b, plus), comm.Bit(b, minus)
	switch {
	case p && m:
		return 0, comm.Parsing("%s", name)
	case p:
		return 1, nil
	case m:
		return -1, nil
	}
	return 0, nil
}

func speed(b byte, max int) float32 {
	v := int(b)
	if v <= deadZone {
		return 0
	}
	if v > max {
		v = max
	}
	return float32(v-deadZone) / float32(max-deadZone)
}

func speedByte(v float32, max int) byte {
	v = float32(math.Abs(float64(v)))
	if v == 0 {
		return 0
	}
	if v > 1 {
		v = 1
	}
	return byte(math.Round(float64(v)*float64(max-deadZone))) + deadZone
}

func extendedAction(c1 byte, preset int) Action {
	switch c1 {
	case extStorePreset:
		switch preset {
		case menuOpenPreset:
			return ActionMenuOpen
		case menuEnterPreset:
			return ActionMenuEnter
		case menuCancelPreset:
			return ActionMenuCancel
		}
		return ActionStorePreset
	case extRecallPreset:
		return ActionRecallPreset
	case extClearPreset:
		return ActionClearPreset
	}
	return ActionNone
}

// EncodeCamControl writes cmd as a keyboard request frame.
func EncodeCamControl(buf *bytes.Buffer, cmd CamCommand) error {
	var body bytes.Buffer
	body.WriteByte(reqCamControl)
	if err := comm.PutBCD2(&body, cmd.Monitor%100); err != nil {
		return err
	}
	if err := comm.PutBCD4(&body, cmd.Camera); err != nil {
		return err
	}

	var c0, c1, c2, c3 byte
	switch {
	case cmd.Action != ActionNone:
		preset := cmd.Preset
		switch cmd.Action {
		case ActionRecallPreset:
			c1 = extRecallPreset
		case ActionClearPreset:
			c1 = extClearPreset
		case ActionMenuOpen:
			c1, preset = extStorePreset, menuOpenPreset
		case ActionMenuEnter:
			c1, preset = extStorePreset, menuEnterPreset
		case ActionMenuCancel:
			c1, preset = extStorePreset, menuCancelPreset
		default:
			c1 = extStorePreset
		}
		var p bytes.Buffer
		if err := comm.PutBCD2(&p, preset); err != nil {
			return err
		}
		c3 = p.Bytes()[0]
	case cmd.Focus != 0 || cmd.Iris != 0:
		c0 = comm.SetBit(c0, bitFocusFar, cmd.Focus > 0)
		c0 = comm.SetBit(c0, bitFocusNear, cmd.Focus < 0)
		c0 = comm.SetBit(c0, bitIrisOpen, cmd.Iris > 0)
		c0 = comm.SetBit(c0, bitIrisClose, cmd.Iris < 0)
	default:
		c1 = comm.SetBit(c1, bitPanRight, cmd.Pan > 0)
		c1 = comm.SetBit(c1, bitPanLeft, cmd.Pan < 0)
		c1 = comm.SetBit(c1, bitTiltUp, cmd.Tilt > 0)
		c1 = comm.SetBit(c1, bitTiltDown, cmd.Tilt < 0)
		c1 = comm.SetBit(c1, bitZoomIn, cmd.Zoom > 0)
		c1 = comm.SetBit(c1, bitZoomOut, cmd.Zoom < 0)
		c2 = speedByte(cmd.Pan, maxPan)
		c3 = speedByte(cmd.Tilt, maxTilt)
	}
	body.Write([]byte{c0, c1, c2, c3})
	if err := comm.PutBCD2(&body, cmd.Monitor/100); err != nil {
		return err
	}
	body.WriteByte(0)
	putFrame(buf, body.Bytes())
	return nil
}

// encodeMonStatus writes the monitor status reply sent after every
// camera request.
func encodeMonStatus(buf *bytes.Buffer, monitor, camera int) error {
	var body bytes.Buffer
	body.WriteByte(respMonStatus)
	if err := comm.PutBCD2(&body, monitor%100); err != nil {
		return err
	}
	if err := comm.PutBCD4(&body, camera); err != nil {
		return err
	}
	if err := comm.PutBCD2(&body, monitor/100); err != nil {
		return err
	}
	putFrame(buf, body.Bytes())
	return nil
}
