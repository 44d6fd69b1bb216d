package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/devices"
	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, hub *Hub, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.GetClientCount() == want }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubBroadcastsDeviceEvents(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url, 1)

	hub.Publish(devices.Event{Type: devices.EventCommFailed, Device: "V35W01", Kind: types.KindSign,
		Error: "timeout", Timestamp: time.Now()})

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeCommFailed, msg.Type)
	assert.Equal(t, "V35W01", msg.Device)
	data := msg.Data.(map[string]any)
	assert.Equal(t, "sign", data["kind"])
	assert.Equal(t, "timeout", data["error"])
}

func TestHubSubscription(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url, 1)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "subscribe", Devices: []string{"MON3"}}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.wants("MON4") {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	hub.Publish(devices.Event{Type: devices.EventValue, Device: "MON4", Key: "camera", Value: 7})
	hub.Publish(devices.Event{Type: devices.EventValue, Device: "MON3", Key: "camera", Value: 145})
	hub.Broadcast(NewMessage(MessageTypeSystemStatus, map[string]any{"links": 2}))

	msg := readMessage(t, conn)
	assert.Equal(t, "MON3", msg.Device)
	assert.Equal(t, MessageTypeDeviceValue, msg.Type)
	raw, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"","key":"camera","value":145}`, string(raw))

	msg = readMessage(t, conn)
	assert.Equal(t, MessageTypeSystemStatus, msg.Type)
}

func TestHubUnregistersClosedClient(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url, 1)
	dial(t, hub, url, 2)

	conn.Close()
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
}
