package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/api/websocket"
	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/comm/commtest"
	"github.com/KevinKickass/OpenRoadwayCore/internal/config"
	"github.com/KevinKickass/OpenRoadwayCore/internal/devices"
	"github.com/KevinKickass/OpenRoadwayCore/internal/interfaces"
	"github.com/KevinKickass/OpenRoadwayCore/internal/storage"
	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

type fakeStore struct {
	snaps map[string]storage.StatusSnapshot
}

func (f *fakeStore) SaveSnapshots(ctx context.Context, snaps []storage.StatusSnapshot) error {
	for _, s := range snaps {
		f.snaps[s.DeviceName] = s
	}
	return nil
}

func (f *fakeStore) LatestSnapshot(ctx context.Context, device string) (*storage.StatusSnapshot, error) {
	s, ok := f.snaps[device]
	if !ok {
		return nil, storage.ErrNoSnapshot
	}
	return &s, nil
}

type fakeLifecycle struct {
	cfg      *config.Config
	dm       *devices.Manager
	metrics  *comm.Metrics
	store    storage.StatusStore
	shutdown chan struct{}
}

func (f *fakeLifecycle) Config() *config.Config          { return f.cfg }
func (f *fakeLifecycle) Storage() storage.StatusStore    { return f.store }
func (f *fakeLifecycle) DeviceManager() *devices.Manager { return f.dm }
func (f *fakeLifecycle) Metrics() *comm.Metrics          { return f.metrics }

func (f *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "running", SelectorRunning: true, LinkCount: len(f.dm.Links())}
}

func (f *fakeLifecycle) Shutdown(ctx context.Context) error {
	close(f.shutdown)
	return nil
}

func inactive() *bool {
	b := false
	return &b
}

func newTestServer(t *testing.T, store storage.StatusStore) (*Server, *fakeLifecycle) {
	t.Helper()
	dm := devices.NewManager(devices.Options{
		Selectors: commtest.StartSelector(t),
		Poller:    comm.DefaultPollerConfig(),
		NewMessenger: func(uri string, timeout time.Duration) (comm.Messenger, error) {
			return commtest.NewMessenger(timeout), nil
		},
	}, zap.NewNop())

	require.NoError(t, dm.Load(&types.LinkCatalog{Links: []types.LinkConfig{
		{
			Name: "switcher1", Protocol: "vicon", URI: "tcp://10.2.0.9:4001", Poll: "30s",
			Controllers: []types.ControllerConfig{{
				Name: "vsw1", Drop: 1,
				Devices: []types.DeviceConfig{
					{Name: "MON3", Kind: types.KindMonitor, Pin: 1, Number: 3},
					{Name: "MON4", Kind: types.KindMonitor, Pin: 2, Number: 4},
				},
			}},
		},
		{
			Name: "dms1", Protocol: "ntcip", URI: "udp://10.1.1.1:161", Poll: "5m", Active: inactive(),
			Controllers: []types.ControllerConfig{{
				Name: "ctl-dms1", Drop: 1,
				Devices: []types.DeviceConfig{{Name: "V35W01", Kind: types.KindSign, Pin: 1}},
			}},
		},
	}}))
	require.NoError(t, dm.Start(context.Background()))
	t.Cleanup(func() { dm.StopAll(context.Background()) })

	metrics, err := comm.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	lm := &fakeLifecycle{
		cfg:      &config.Config{Server: config.ServerConfig{HTTPPort: 0}},
		dm:       dm,
		metrics:  metrics,
		store:    store,
		shutdown: make(chan struct{}),
	}
	return NewServer(lm.cfg, lm, zap.NewNop(), websocket.NewHub(zap.NewNop())), lm
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decode(t, rec)["status"])

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["link_count"])
}

func TestLinkRoutes(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/links", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["count"])

	rec = do(t, s, http.MethodGet, "/api/v1/links/switcher1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var link devices.LinkStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))
	assert.Equal(t, "vicon", link.Protocol)
	assert.Equal(t, "30s", link.Poll)
	require.Len(t, link.Controllers, 1)
	assert.Equal(t, "vsw1", link.Controllers[0].Name)

	rec = do(t, s, http.MethodGet, "/api/v1/links/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "LINK_NOT_FOUND", errorCode(t, rec))
}

func TestControllerRoutes(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/controllers/vsw1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "switcher1", decode(t, rec)["link"])

	rec = do(t, s, http.MethodGet, "/api/v1/controllers/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	tests := []struct {
		name string
		path string
		body any
		code int
		err  string
	}{
		{"download", "/api/v1/controllers/vsw1/download", DownloadRequest{Reset: true}, http.StatusAccepted, ""},
		{"download without body", "/api/v1/controllers/vsw1/download", nil, http.StatusAccepted, ""},
		{"download unknown", "/api/v1/controllers/nope/download", nil, http.StatusNotFound, "CONTROLLER_NOT_FOUND"},
		{"download inactive", "/api/v1/controllers/ctl-dms1/download", nil, http.StatusConflict, "CONTROLLER_INACTIVE"},
		{"test", "/api/v1/controllers/vsw1/test", nil, http.StatusAccepted, ""},
		{"register on switcher", "/api/v1/controllers/vsw1/registers/level", body{"value": 1}, http.StatusBadRequest, "UNSUPPORTED"},
		{"register without value", "/api/v1/controllers/vsw1/registers/level", body{}, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code)
			if tt.err != "" {
				assert.Equal(t, tt.err, errorCode(t, rec))
			}
		})
	}
}

type body map[string]any

func TestDeviceRoutes(t *testing.T) {
	store := &fakeStore{snaps: map[string]storage.StatusSnapshot{}}
	s, lm := newTestServer(t, store)

	obj, ok := lm.dm.Object("MON3")
	require.True(t, ok)
	obj.Record("camera", 145)

	rec := do(t, s, http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode(t, rec)["count"])

	rec = do(t, s, http.MethodGet, "/api/v1/devices?kind=sign", nil)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	rec = do(t, s, http.MethodGet, "/api/v1/devices/MON3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st devices.DeviceStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "vsw1", st.Controller)
	assert.EqualValues(t, 145, st.Values["camera"])

	rec = do(t, s, http.MethodGet, "/api/v1/devices/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/devices/MON3/snapshot", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, store.SaveSnapshots(context.Background(), []storage.StatusSnapshot{
		{DeviceName: "MON3", Kind: "monitor", Controller: "vsw1", Fields: map[string]any{"camera": 145}},
	}))
	rec = do(t, s, http.MethodGet, "/api/v1/devices/MON3/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "monitor", decode(t, rec)["kind"])
}

func TestSnapshotWithoutStorage(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/devices/MON3/snapshot", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "STORAGE_DISABLED", errorCode(t, rec))
}

func TestShutdownRoute(t *testing.T) {
	s, lm := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/api/v1/system/shutdown", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case <-lm.shutdown:
	case <-time.After(time.Second):
		t.Fatal("shutdown not requested")
	}
}
