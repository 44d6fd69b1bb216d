package monstream

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/comm/commtest"
)

type monitor struct {
	name  string
	num   int
	style *Style

	mu     sync.Mutex
	values map[string]any
}

func newMonitor(name string, num int) *monitor {
	return &monitor{name: name, num: num, values: make(map[string]any)}
}

func (m *monitor) Name() string { return m.name }

func (m *monitor) MonNum() int { return m.num }

func (m *monitor) Style() (Style, bool) {
	if m.style == nil {
		return Style{}, false
	}
	return *m.style, true
}

func (m *monitor) Record(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *monitor) get(key string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

func TestMonitorPropEncoding(t *testing.T) {
	tests := []struct {
		name string
		prop *MonitorProp
		want string
	}{
		{
			name: "numbered monitor with default style",
			prop: &MonitorProp{Pin: 1, Monitor: newMonitor("MON1", 12)},
			want: "monitor\x1f0\x1f12\x1f000080\x1f0\x1f20\x1e",
		},
		{
			name: "unnumbered monitor uses name",
			prop: &MonitorProp{Pin: 3, Monitor: &monitor{name: "WALL_A", style: &Style{Accent: "FF0000", ForceAspect: true, FontSz: 32}}},
			want: "monitor\x1f2\x1fWALL_A\x1fFF0000\x1f1\x1f32\x1e",
		},
		{
			name: "empty pin",
			prop: &MonitorProp{Pin: 2},
			want: "monitor\x1f1\x1f\x1f000080\x1f0\x1f20\x1e",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tt.prop.EncodeStore(&buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestSwitchPropRequiresURI(t *testing.T) {
	var buf bytes.Buffer
	err := (&SwitchProp{Pin: 1, Camera: "C101"}).EncodeStore(&buf)
	assert.Equal(t, comm.ClassConfiguration, comm.Classify(err))

	buf.Reset()
	require.NoError(t, (&SwitchProp{Pin: 2, Camera: "C101", URI: "rtsp://cam/1", Encoding: "H264", Latency: 50}).EncodeStore(&buf))
	assert.Equal(t, "play\x1f1\x1fC101\x1frtsp://cam/1\x1fH264\x1f50\x1e", buf.String())

	buf.Reset()
	require.NoError(t, (&SwitchProp{Pin: 1}).EncodeStore(&buf))
	assert.Equal(t, "play\x1f0\x1f\x1f\x1f\x1f0\x1e", buf.String())
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus([]byte("status\x1f4\x1fC220\x1fplaying"))
	require.NoError(t, err)
	assert.Equal(t, Status{Pin: 5, Camera: "C220", Stat: "playing"}, st)

	for _, bad := range []string{"", "status", "stats\x1f0\x1fC1\x1fok", "status\x1fx\x1fC1\x1fok", "status\x1f-1\x1fC1\x1fok"} {
		_, err := ParseStatus([]byte(bad))
		assert.Equal(t, comm.ClassParsing, comm.Classify(err), bad)
	}
}

func startPoller(t *testing.T) (*Poller, *comm.Controller, *commtest.Messenger) {
	t.Helper()
	link := comm.NewCommLink("mons1", Name, "udp://10.3.0.9:7001")
	ctl := comm.NewController("ctl-mons1", 0)
	link.AddController(ctl)

	m := commtest.NewMessenger(time.Second)
	p := NewPoller(link, m, commtest.StartSelector(t), comm.DefaultPollerConfig(), nil, zap.NewNop())
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Destroy)
	return p, ctl, m
}

func TestDownloadConfiguresEveryPin(t *testing.T) {
	p, ctl, m := startPoller(t)
	ctl.Bind(1, newMonitor("MON1", 1))
	ctl.Bind(3, newMonitor("MON3", 3))

	p.Download(ctl, false, comm.PriorityDownload)

	require.Eventually(t, func() bool { return len(m.Writes()) == 3 }, 2*time.Second, 5*time.Millisecond)
	writes := m.Writes()
	assert.Equal(t, "monitor\x1f0\x1f1\x1f000080\x1f0\x1f20\x1e", string(writes[0]))
	assert.Equal(t, "monitor\x1f1\x1f\x1f000080\x1f0\x1f20\x1e", string(writes[1]))
	assert.Equal(t, "monitor\x1f2\x1f3\x1f000080\x1f0\x1f20\x1e", string(writes[2]))
}

func TestPollStatusRecordsEveryMonitor(t *testing.T) {
	p, ctl, m := startPoller(t)
	mon1, mon2 := newMonitor("MON1", 1), newMonitor("MON2", 2)
	ctl.Bind(1, mon1)
	ctl.Bind(2, mon2)
	m.Respond = func(req []byte) []byte {
		if string(req) != "query\x1e" {
			return nil
		}
		return []byte("status\x1f0\x1fC101\x1fplaying\x1estatus\x1f1\x1f\x1fstopped\x1e")
	}

	finished := make(chan int, 1)
	done := comm.NewCompleter("30s", func(c *comm.Completer) { finished <- c.Failed() })
	p.Poll30Second(ctl, done)
	done.Seal()

	select {
	case failed := <-finished:
		assert.Zero(t, failed)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not complete")
	}
	assert.Equal(t, "C101", mon1.get("camera"))
	assert.Equal(t, "playing", mon1.get("stat"))
	assert.Equal(t, "", mon2.get("camera"))
	assert.Equal(t, "stopped", mon2.get("stat"))
}

func TestSwitchRecordsCamera(t *testing.T) {
	p, ctl, m := startPoller(t)
	mon := newMonitor("MON1", 1)
	ctl.Bind(1, mon)

	op := p.Switch(ctl, &SwitchProp{Pin: 1, Camera: "C300", URI: "udp://239.0.0.1:5000", Encoding: "MPEG2"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, op.Wait(ctx))

	assert.Equal(t, comm.StateSucceeded, op.State())
	assert.Equal(t, "C300", mon.get("camera"))
	require.Len(t, m.Writes(), 1)
}
