package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/config"
	"github.com/KevinKickass/OpenRoadwayCore/internal/devices"
	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to SystemState
		ok       bool
	}{
		{StateInitializing, StateRunning, true},
		{StateRunning, StateReloading, true},
		{StateReloading, StateRunning, true},
		{StateRunning, StateStopping, true},
		{StateStopping, StateStopped, true},
		{StateError, StateStopping, true},
		{StateStopped, StateRunning, false},
		{StateInitializing, StateReloading, false},
		{StateReloading, StateReloading, false},
		{SystemState(42), StateRunning, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLinkHealth(t *testing.T) {
	ok := comm.ControllerStatus{Name: "c1", Active: true}
	failed := comm.ControllerStatus{Name: "c2", Active: true, Failed: true}
	idle := comm.ControllerStatus{Name: "c3", Active: false, Failed: true}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING,
		linkHealth(devices.LinkStatus{Active: true, Controllers: []comm.ControllerStatus{ok, failed}}))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING,
		linkHealth(devices.LinkStatus{Active: true, Controllers: []comm.ControllerStatus{failed, idle}}))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING,
		linkHealth(devices.LinkStatus{Active: true}))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING,
		linkHealth(devices.LinkStatus{Active: false, Controllers: []comm.ControllerStatus{ok}}))
}

func check(t *testing.T, h *healthReporter, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestHealthReporter(t *testing.T) {
	h := newHealthReporter()
	links := []devices.LinkStatus{
		{Name: "dms1", Active: true},
		{Name: "cam1", Active: false},
	}

	h.update(true, links)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, h, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, h, "link/dms1"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, h, "link/cam1"))

	h.update(true, links[:1])
	assert.Equal(t, healthpb.HealthCheckResponse_SERVICE_UNKNOWN, check(t, h, "link/cam1"))

	h.update(false, links[:1])
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, h, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, h, "link/dms1"))
}

func TestSnapshots(t *testing.T) {
	events := devices.EventSink(nil)
	mon := devices.NewObject(types.DeviceConfig{Name: "MON3", Kind: types.KindMonitor, Pin: 1, Number: 3}, "vsw1", events)
	mon.Record("camera", 145)
	sign := devices.NewObject(types.DeviceConfig{Name: "V35W01", Kind: types.KindSign, Pin: 1}, "ctl-dms1", events)
	sign.CommFailed(assert.AnError)

	now := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	snaps := snapshots([]devices.Object{mon, sign}, now)
	require.Len(t, snaps, 2)

	assert.Equal(t, "MON3", snaps[0].DeviceName)
	assert.Equal(t, "monitor", snaps[0].Kind)
	assert.Equal(t, "vsw1", snaps[0].Controller)
	assert.Equal(t, 145, snaps[0].Fields["camera"])
	assert.Equal(t, now, snaps[0].RecordedAt)

	assert.True(t, snaps[1].Failed)
	assert.Equal(t, assert.AnError.Error(), snaps[1].LastError)
}

const oneLink = `
links:
  - name: dms1
    protocol: ntcip
    uri: udp://127.0.0.1:161
    poll: 5m
    active: false
    controllers:
      - name: ctl-dms1
        drop: 1
        devices:
          - {name: V35W01, kind: sign, pin: 1}
`

const twoLinks = oneLink + `
  - name: switcher1
    protocol: vicon
    uri: tcp://127.0.0.1:4001
    active: false
    controllers:
      - name: vsw1
        drop: 1
        devices:
          - {name: MON3, kind: monitor, pin: 1, number: 3}
`

func testConfig(t *testing.T, catalog string) (*config.Config, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "links.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o644))
	return &config.Config{
		Comm: config.CommConfig{
			DefaultTimeout: time.Second,
			DefaultRetries: 1,
			SelectorTick:   10 * time.Millisecond,
			Poll30s:        time.Hour,
			Poll5m:         time.Hour,
		},
		Links: config.LinksConfig{Files: []string{path}},
	}, path
}

func TestLifecycleStartReloadShutdown(t *testing.T) {
	cfg, path := testConfig(t, oneLink)
	lm, err := NewLifecycleManager(nil, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, lm.Storage())

	require.NoError(t, lm.Start(context.Background()))
	t.Cleanup(func() { lm.Shutdown(context.Background()) })

	require.Eventually(t, func() bool { return lm.GetCurrentStatus().SelectorRunning }, 2*time.Second, 10*time.Millisecond)
	status := lm.GetCurrentStatus()
	assert.Equal(t, "RUNNING", status.State)
	assert.Equal(t, 1, status.LinkCount)
	assert.Zero(t, status.ActiveLinks)
	assert.Equal(t, 1, status.DeviceCount)
	assert.NotNil(t, lm.Metrics().Gatherer())

	require.NoError(t, os.WriteFile(path, []byte(twoLinks), 0o644))
	require.NoError(t, lm.Reload(context.Background()))
	status = lm.GetCurrentStatus()
	assert.Equal(t, "RUNNING", status.State)
	assert.Equal(t, 2, status.LinkCount)
	_, ok := lm.DeviceManager().Object("MON3")
	assert.True(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("links: [{name: x}]"), 0o644))
	assert.Error(t, lm.Reload(context.Background()))
	assert.Equal(t, 2, lm.GetCurrentStatus().LinkCount)
	assert.Equal(t, StateRunning, lm.State())

	require.NoError(t, lm.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, lm.State())
	select {
	case <-lm.Done():
	default:
		t.Fatal("Done not closed after shutdown")
	}
	assert.Error(t, lm.Reload(context.Background()))
}

func TestLifecycleRejectsDatabaseCatalogWithoutDatabase(t *testing.T) {
	cfg, _ := testConfig(t, oneLink)
	cfg.Links.FromDatabase = true
	lm, err := NewLifecycleManager(nil, cfg, zap.NewNop())
	require.NoError(t, err)

	err = lm.Start(context.Background())
	assert.ErrorContains(t, err, "requires the database")
	assert.Equal(t, StateError, lm.State())
	assert.NoError(t, lm.Shutdown(context.Background()))
}
