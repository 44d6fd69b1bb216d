package devices

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/comm/commtest"
	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol/pelcop"
	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

const catalogYAML = `
links:
  - name: switcher1
    protocol: vicon
    uri: tcp://10.2.0.9:4001
    poll: 30s
    controllers:
      - name: vsw1
        drop: 1
        devices:
          - {name: MON3, kind: monitor, pin: 1, number: 3}
          - {name: MON4, kind: monitor, pin: 2, number: 4}
  - name: keyboard1
    protocol: pelcop
    uri: tcp://10.2.0.10:4002
    controllers:
      - name: kbd1
        drop: 1
        devices:
          - {name: C101, kind: camera, pin: 1, number: 101}
  - name: dms1
    protocol: ntcip
    uri: udp://10.1.1.1:161
    poll: 5m
    active: false
    controllers:
      - name: ctl-dms1
        drop: 1
        devices:
          - {name: V35W01, kind: sign, pin: 1}
`

type sink struct {
	mu     sync.Mutex
	events []Event
}

func (s *sink) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *sink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

func TestValidateCatalog(t *testing.T) {
	v := newValidator(t)
	require.NoError(t, v.ValidateCatalog([]byte(catalogYAML)))

	tests := []struct {
		name string
		doc  string
	}{
		{"unknown protocol", "links: [{name: l1, protocol: canoga, uri: tcp://x:1}]"},
		{"missing uri", "links: [{name: l1, protocol: vicon}]"},
		{"bad poll", "links: [{name: l1, protocol: vicon, uri: tcp://x:1, poll: 10s}]"},
		{"negative drop", "links: [{name: l1, protocol: vicon, uri: tcp://x:1, controllers: [{name: c, drop: -1}]}]"},
		{"unknown field", "links: [{name: l1, protocol: vicon, uri: tcp://x:1, speed: 9600}]"},
		{"bad accent", "links: [{name: l1, protocol: monstream, uri: udp://x:1, controllers: [{name: c, drop: 0, devices: [{name: m, kind: monitor, pin: 1, style: {accent: blue}}]}]}]"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, v.ValidateCatalog([]byte(tt.doc)))
		})
	}
}

func TestLinkLoaderMergesFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(a, []byte(catalogYAML), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("links: [{name: feed1, protocol: msgfeed, uri: http://feed/msgs}]"), 0o644))

	l := NewLinkLoader(newValidator(t))
	cat, err := l.Load(a, b)
	require.NoError(t, err)
	require.Len(t, cat.Links, 4)
	assert.Equal(t, "feed1", cat.Links[3].Name)
	assert.Equal(t, 3, cat.Links[0].Controllers[0].Devices[0].Number)
	assert.False(t, types.IsActive(cat.Links[2].Active))

	_, err = l.Load(a, a)
	assert.ErrorContains(t, err, "already defined")

	_, err = l.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

const profileYAML = `
profile: {id: pump-station, vendor: Acme, model: PS-2}
registers:
  - {name: water_level, address: 10, type: holding_register, data_type: uint16, scale_factor: 0.01, access: read_only}
  - {name: run_hours, address: 40, type: input_register, data_type: uint32, access: read_only}
register_groups:
  - {name: maintenance, poll: 5m, registers: [run_hours]}
`

func TestProfileLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pump-station.yaml"), []byte(profileYAML), 0o644))
	bad := strings.Replace(profileYAML, "[run_hours]", "[hours]", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(bad), 0o644))

	l := NewProfileLoader(newValidator(t), []string{filepath.Join(dir, "none"), dir})
	p, err := l.Load("pump-station")
	require.NoError(t, err)
	assert.Equal(t, "Acme", p.Profile.Vendor)
	reg, ok := p.Register("water_level")
	require.True(t, ok)
	assert.Equal(t, 0.01, reg.ScaleFactor)

	again, err := l.Load("pump-station")
	require.NoError(t, err)
	assert.Same(t, p, again)

	_, err = l.Load("broken")
	assert.ErrorContains(t, err, "unknown register hours")
	_, err = l.Load("absent")
	assert.ErrorContains(t, err, "profile not found")
}

func TestComposer(t *testing.T) {
	c := NewComposer(nil, zap.NewNop())
	comp, err := c.Compose(types.LinkConfig{
		Name: "l1", Protocol: "vicon", URI: "tcp://x:1", Poll: "5m", TimeoutMs: 750,
		Controllers: []types.ControllerConfig{{
			Name: "c1", Drop: 2, Password: "pw",
			Devices: []types.DeviceConfig{{Name: "M1", Kind: types.KindMonitor, Pin: 1, Number: 9}},
		}},
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, comm.Poll5Min, comp.Link.Poll)
	assert.Equal(t, 750*time.Millisecond, comp.Link.Timeout)
	ctl, ok := comp.Link.Controller("c1")
	require.True(t, ok)
	assert.Equal(t, "pw", ctl.Password)
	io, ok := ctl.IO(1)
	require.True(t, ok)
	assert.Equal(t, 9, io.(*Monitor).MonNum())

	_, err = c.Compose(types.LinkConfig{
		Name: "l2", Protocol: "vicon",
		Controllers: []types.ControllerConfig{{
			Name: "c1",
			Devices: []types.DeviceConfig{
				{Name: "M1", Kind: types.KindMonitor, Pin: 1},
				{Name: "M2", Kind: types.KindMonitor, Pin: 1},
			},
		}},
	}, time.Second)
	assert.ErrorContains(t, err, "pin 1 bound twice")

	_, err = c.Compose(types.LinkConfig{Name: "l3", Poll: "1h"}, time.Second)
	assert.Error(t, err)
}

func TestDeviceObjects(t *testing.T) {
	events := &sink{}
	mon := NewObject(types.DeviceConfig{Name: "MON1", Kind: types.KindMonitor, Pin: 1, Number: 1,
		Style: &types.MonitorStyle{Accent: "FF0000", FontSz: 14}}, "c1", events).(*Monitor)
	style, ok := mon.Style()
	require.True(t, ok)
	assert.Equal(t, "FF0000", style.Accent)

	inactive := false
	det := NewObject(types.DeviceConfig{Name: "D1", Kind: types.KindDetector, Active: &inactive}, "c1", events).(*Detector)
	assert.False(t, det.IsActive())

	cam := NewObject(types.DeviceConfig{Name: "C1", Kind: types.KindCamera, Number: 7}, "c1", events).(*Camera)
	cam.Control(pelcop.CamCommand{Monitor: 2, Camera: 7, Action: pelcop.ActionRecallPreset, Preset: 3})
	v, _ := cam.Value("preset")
	assert.Equal(t, 3, v)

	cam.CommFailed(errors.New("timeout"))
	cam.CommFailed(errors.New("timeout"))
	cam.CommRestored()
	st := cam.Status()
	assert.False(t, st.Failed)
	assert.Equal(t, "timeout", st.LastError)
	assert.Equal(t, []string{EventCameraCommand, EventCommFailed, EventCommRestored}, events.types())

	meter := NewObject(types.DeviceConfig{Name: "RM1", Kind: types.KindMeter}, "c2", nil)
	meter.Record("meter_rate", "rate 4")
	assert.Equal(t, "rate 4", meter.Status().Values["meter_rate"])
}

type switcher struct {
	mu      sync.Mutex
	cameras map[string]string
}

func (s *switcher) respond(req []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := strings.TrimSuffix(string(req), "\r")
	if strings.HasSuffix(r, "j") {
		return []byte("0\r")
	}
	return []byte(s.cameras[r] + "\r")
}

func newTestManager(t *testing.T, events EventSink) (*Manager, map[string]*commtest.Messenger) {
	t.Helper()
	sw := &switcher{cameras: map[string]string{"A3f": "145", "A4f": "-1"}}
	messengers := make(map[string]*commtest.Messenger)
	var mu sync.Mutex

	m := NewManager(Options{
		Selectors: commtest.StartSelector(t),
		Poller:    comm.DefaultPollerConfig(),
		Events:    events,
		NewMessenger: func(uri string, timeout time.Duration) (comm.Messenger, error) {
			msgr := commtest.NewMessenger(timeout)
			if strings.HasPrefix(uri, "tcp://10.2.0.9") {
				msgr.Respond = sw.respond
			}
			mu.Lock()
			messengers[uri] = msgr
			mu.Unlock()
			return msgr, nil
		},
	}, zap.NewNop())

	cat, err := NewLinkLoader(newValidator(t)).Parse([]byte(catalogYAML))
	require.NoError(t, err)
	require.NoError(t, m.Load(cat))
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { m.StopAll(context.Background()) })
	return m, messengers
}

func TestManagerPoll(t *testing.T) {
	events := &sink{}
	m, _ := newTestManager(t, events)

	finished := make(chan int, 1)
	m.Poll(comm.Poll30Sec, func(c *comm.Completer) { finished <- c.Failed() })
	select {
	case failed := <-finished:
		assert.Zero(t, failed)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not complete")
	}

	obj, ok := m.Object("MON3")
	require.True(t, ok)
	assert.Equal(t, 145, obj.Status().Values["camera"])
	obj, _ = m.Object("MON4")
	assert.Equal(t, -1, obj.Status().Values["camera"])
	assert.Contains(t, events.types(), EventValue)

	st, ok := m.Link("switcher1")
	require.True(t, ok)
	assert.Equal(t, "30s", st.Poll)
	require.Len(t, st.Controllers, 1)
	assert.Equal(t, int64(2), st.Controllers[0].Successes)

	// The 5-minute round has nothing to do on these links.
	m.Poll(comm.Poll5Min, func(c *comm.Completer) { finished <- c.Failed() })
	assert.Zero(t, <-finished)
}

func TestManagerLookups(t *testing.T) {
	m, _ := newTestManager(t, nil)

	assert.Len(t, m.Links(), 3)
	assert.Len(t, m.Objects(), 4)

	cam, ok := m.Camera(101)
	require.True(t, ok)
	assert.Equal(t, "C101", cam.Name())
	_, ok = m.Camera(5)
	assert.False(t, ok)

	sign, ok := m.Sign("V35W01")
	require.True(t, ok)
	sign.SetFeedMessage("[jl2]CRASH AHEAD")
	obj, _ := m.Object("V35W01")
	assert.Equal(t, "[jl2]CRASH AHEAD", obj.(*Sign).FeedMessage())
	_, ok = m.Sign("MON3")
	assert.False(t, ok)

	assert.ErrorIs(t, m.Download("nope", false), ErrNotFound)
	assert.ErrorIs(t, m.Download("ctl-dms1", false), ErrInactive)
	assert.NoError(t, m.Test("vsw1"))
	assert.ErrorIs(t, m.WriteRegister(context.Background(), "vsw1", "level", 1.0), ErrUnsupported)
}

func TestManagerLoadRejectsBadCatalog(t *testing.T) {
	m := NewManager(Options{
		NewMessenger: func(string, time.Duration) (comm.Messenger, error) { return commtest.NewMessenger(time.Second), nil },
	}, zap.NewNop())

	err := m.Load(&types.LinkCatalog{Links: []types.LinkConfig{
		{Name: "ss1", Protocol: "smartsensor", URI: "tcp://x:1", Controllers: []types.ControllerConfig{{Name: "c1", Drop: 10000}}},
	}})
	assert.ErrorContains(t, err, "invalid drop 10000")

	err = m.Load(&types.LinkCatalog{Links: []types.LinkConfig{
		{Name: "a", Protocol: "vicon", URI: "tcp://x:1", Controllers: []types.ControllerConfig{{Name: "c1", Drop: 1}}},
		{Name: "b", Protocol: "vicon", URI: "tcp://x:2", Controllers: []types.ControllerConfig{{Name: "c1", Drop: 1}}},
	}})
	assert.ErrorContains(t, err, "defined on another link")

	err = m.Load(&types.LinkCatalog{Links: []types.LinkConfig{
		{Name: "p", Protocol: "modbus", URI: "tcp://x:502", Profile: "pump"},
	}})
	assert.ErrorContains(t, err, "no profile loader")
	assert.Empty(t, m.Links())
}

func TestShippedCatalogLoads(t *testing.T) {
	v := newValidator(t)
	cat, err := NewLinkLoader(v).Load(filepath.Join("..", "..", "configs", "links.yaml"))
	require.NoError(t, err)

	m := NewManager(Options{
		Profiles: NewProfileLoader(v, []string{filepath.Join("..", "..", "configs", "profiles")}),
		NewMessenger: func(string, time.Duration) (comm.Messenger, error) {
			return commtest.NewMessenger(time.Second), nil
		},
	}, zap.NewNop())
	require.NoError(t, m.Load(cat))

	names := make([]string, 0)
	for _, l := range m.Links() {
		names = append(names, l.Protocol)
	}
	assert.ElementsMatch(t, []string{"mndot", "modbus", "monstream", "msgfeed", "ntcip", "pelcop", "smartsensor", "vicon"}, names)

	st, ok := m.Link("pump-underpass")
	require.True(t, ok)
	assert.Equal(t, "pump-station", st.Profile)
	_, ok = m.Camera(102)
	assert.True(t, ok)
}
