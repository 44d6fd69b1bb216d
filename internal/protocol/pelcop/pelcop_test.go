package pelcop

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/comm/commtest"
)

func roundTrip(t *testing.T, cmd CamCommand) CamCommand {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, EncodeCamControl(&buf, cmd))
	adv, body, err := ScanFrame(buf.Bytes(), false)
	require.NoError(t, err)
	require.Equal(t, buf.Len(), adv)
	got, err := DecodeCamControl(body)
	require.NoError(t, err)
	return got
}

func TestCamControlRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cmd  CamCommand
	}{
		{"pan right tilt down zoom in", CamCommand{Monitor: 123, Camera: 4512, Pan: 0.5, Tilt: -1, Zoom: 1}},
		{"stopped", CamCommand{Monitor: 1, Camera: 1}},
		{"focus near iris open", CamCommand{Monitor: 7, Camera: 30, Focus: -1, Iris: 1}},
		{"recall preset", CamCommand{Monitor: 2, Camera: 9999, Action: ActionRecallPreset, Preset: 12}},
		{"store preset", CamCommand{Monitor: 2, Camera: 5, Action: ActionStorePreset, Preset: 3}},
		{"clear preset", CamCommand{Monitor: 2, Camera: 5, Action: ActionClearPreset, Preset: 99}},
		{"menu enter", CamCommand{Monitor: 2, Camera: 5, Action: ActionMenuEnter, Preset: menuEnterPreset}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.cmd, roundTrip(t, tt.cmd))
		})
	}
}

// camCommand maps arbitrary inputs onto a legal keyboard command. Speeds
// are taken from the wire steps so they survive quantization.
func camCommand(mon, cam uint16, mode, a, b, c uint8) CamCommand {
	cmd := CamCommand{Monitor: int(mon) % 10000, Camera: int(cam) % 10000}
	sign := func(x uint8) int { return int(x%3) - 1 }
	switch mode % 4 {
	case 0:
		cmd.Pan = float32(sign(a)) * speed(byte(deadZone+1+int(b)%(maxPan-deadZone)), maxPan)
		cmd.Tilt = float32(sign(a/3)) * speed(byte(deadZone+1+int(c)%(maxTilt-deadZone)), maxTilt)
		cmd.Zoom = float32(sign(a / 9))
	case 1:
		cmd.Focus, cmd.Iris = sign(a), sign(b)
	case 2:
		cmd.Action = []Action{ActionRecallPreset, ActionClearPreset}[a%2]
		cmd.Preset = int(b) % 100
	default:
		cmd.Action = ActionStorePreset
		cmd.Preset = int(b) % 100
		switch cmd.Preset {
		case menuOpenPreset:
			cmd.Action = ActionMenuOpen
		case menuEnterPreset:
			cmd.Action = ActionMenuEnter
		case menuCancelPreset:
			cmd.Action = ActionMenuCancel
		}
	}
	return cmd
}

func TestCamControlRoundTripLegalDomain(t *testing.T) {
	f := func(mon, cam uint16, mode, a, b, c uint8) bool {
		cmd := camCommand(mon, cam, mode, a, b, c)
		var buf bytes.Buffer
		if EncodeCamControl(&buf, cmd) != nil {
			return false
		}
		adv, body, err := ScanFrame(buf.Bytes(), false)
		if err != nil || adv != buf.Len() {
			return false
		}
		got, err := DecodeCamControl(body)
		return err == nil && got == cmd
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 5000}))
}

func TestStoringMenuPresetsDrivesMenu(t *testing.T) {
	for preset, want := range map[int]Action{
		menuOpenPreset:   ActionMenuOpen,
		menuEnterPreset:  ActionMenuEnter,
		menuCancelPreset: ActionMenuCancel,
		76:               ActionStorePreset,
	} {
		got, err := DecodeCamControl(rawBody(0, extStorePreset, 0, byte(preset/10<<4|preset%10), 0))
		require.NoError(t, err)
		assert.Equal(t, want, got.Action, "preset %d", preset)
		assert.Equal(t, preset, got.Preset)
	}
}

func TestSpeedDeadZone(t *testing.T) {
	assert.Zero(t, speed(0, maxPan))
	assert.Zero(t, speed(deadZone, maxPan))
	assert.InDelta(t, 1.0/58, speed(deadZone+1, maxPan), 1e-6)
	assert.Equal(t, float32(1), speed(maxPan, maxPan))
	assert.Equal(t, float32(1), speed(0x7F, maxPan))
	assert.Equal(t, float32(1), speed(maxTilt, maxTilt))

	for b := deadZone + 1; b <= maxPan; b++ {
		assert.Equal(t, byte(b), speedByte(speed(byte(b), maxPan), maxPan))
	}
	assert.Zero(t, speedByte(0, maxPan))
}

// rawBody builds a camera control body for monitor 1, camera 12.
func rawBody(c0, c1, c2, c3, trailer byte) []byte {
	return []byte{reqCamControl, 0x01, 0x00, 0x12, c0, c1, c2, c3, 0x00, trailer}
}

func TestDecodeRejectsConflictingFlags(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want string
	}{
		{"focus", rawBody(0x03, 0, 0, 0, 0), "FOCUS"},
		{"iris", rawBody(0x0C, 0, 0, 0, 0), "IRIS"},
		{"pan", rawBody(0, 0x06, 20, 0, 0), "PAN"},
		{"tilt", rawBody(0, 0x18, 0, 20, 0), "TILT"},
		{"zoom", rawBody(0, 0x60, 0, 0, 0), "ZOOM"},
		{"extended", rawBody(0, 0x41, 0, 0x01, 0), "EXT"},
		{"trailer", rawBody(0, 0, 0, 0, 0x01), "PTZ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCamControl(tt.body)
			require.Error(t, err)
			assert.Equal(t, comm.ClassParsing, comm.Classify(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := DecodeCamControl([]byte{reqCamControl, 0x01})
	assert.Error(t, err)
	_, err = DecodeCamControl([]byte{reqCamControl, 0x1A, 0x00, 0x12, 0, 0, 0, 0, 0, 0})
	assert.Error(t, err, "invalid BCD monitor")
}

func TestScanFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeCamControl(&buf, CamCommand{Monitor: 1, Camera: 12}))
	frame := buf.Bytes()

	adv, token, err := ScanFrame(append([]byte{0x11, 0x22}, frame...), false)
	require.NoError(t, err)
	assert.Equal(t, 2, adv)
	assert.Nil(t, token)

	adv, token, err = ScanFrame([]byte{0x11, 0x22}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, adv)
	assert.Nil(t, token)

	adv, token, err = ScanFrame(frame[:5], false)
	require.NoError(t, err)
	assert.Zero(t, adv)
	assert.Nil(t, token)

	_, _, err = ScanFrame(frame[:5], true)
	assert.Error(t, err)

	bad := append([]byte(nil), frame...)
	bad[len(bad)-1] ^= 0xFF
	_, _, err = ScanFrame(bad, false)
	assert.Equal(t, comm.ClassParsing, comm.Classify(err))
}

type camera struct {
	num int

	mu   sync.Mutex
	cmds []CamCommand
}

func (c *camera) Name() string { return "C012" }

func (c *camera) Number() int { return c.num }

func (c *camera) Control(cmd CamCommand) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmds = append(c.cmds, cmd)
}

func (c *camera) commands() []CamCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CamCommand(nil), c.cmds...)
}

func TestKeyboardSession(t *testing.T) {
	link := comm.NewCommLink("kbd1", Name, "tcp://10.2.0.5:4001")
	ctl := comm.NewController("ctl-kbd1", 1)
	link.AddController(ctl)
	cam := &camera{num: 12}
	ctl.Bind(1, cam)

	m := commtest.NewMessenger(100 * time.Millisecond)
	p := NewPoller(link, m, commtest.StartSelector(t), comm.DefaultPollerConfig(), nil, zap.NewNop(), nil)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Destroy)

	// Two requests arriving in one read, preceded by line noise.
	var in bytes.Buffer
	in.WriteByte(0x55)
	require.NoError(t, EncodeCamControl(&in, CamCommand{Monitor: 3, Camera: 12, Pan: -1}))
	require.NoError(t, EncodeCamControl(&in, CamCommand{Monitor: 3, Camera: 12, Action: ActionRecallPreset, Preset: 4}))
	m.Feed(in.Bytes())

	finished := make(chan int, 1)
	done := comm.NewCompleter("30s", func(c *comm.Completer) { finished <- c.Failed() })
	p.Poll30Second(ctl, done)
	done.Seal()

	select {
	case failed := <-finished:
		assert.Zero(t, failed)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}

	cmds := cam.commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, float32(-1), cmds[0].Pan)
	assert.Equal(t, ActionRecallPreset, cmds[1].Action)
	assert.Equal(t, 4, cmds[1].Preset)

	var status bytes.Buffer
	require.NoError(t, encodeMonStatus(&status, 3, 12))
	writes := m.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, status.Bytes(), writes[0])

	mon, ok := p.MonitorCamera(3)
	assert.True(t, ok)
	assert.Equal(t, 12, mon)
	assert.False(t, p.IsAddressValid(0))
}
