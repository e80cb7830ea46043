package services

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/godocompany/meetsession-api/signaling"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, args ...interface{}) {
	t.Helper()
	data, err := signaling.EncodeFrame(event, args...)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func expectFrame(t *testing.T, conn *websocket.Conn, event string) *signaling.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		frame, err := signaling.DecodeFrame(data)
		require.NoError(t, err)
		if frame.Event == event {
			return frame
		}
	}
}

func TestWebSocketsService_PairingAndRelay(t *testing.T) {
	hub := signaling.NewHub(signaling.NewRegistry())
	srv := httptest.NewServer(&WebSocketsService{Hub: hub})
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	host := dialHub(t, url)
	send(t, host, "join-room", "m1", "host-1")
	require.Eventually(t, func() bool {
		return len(hub.Registry().Members("m1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	guest := dialHub(t, url)
	send(t, guest, "join-room", "m1", "guest-1")

	// The second joiner learns the first joiner's connection id
	connected := expectFrame(t, guest, "user-connected")
	hostID := connected.StringArg(0)
	assert.Equal(t, hub.Registry().Members("m1")[0], hostID)

	send(t, guest, "offer", hostID, json.RawMessage(`{"type":"offer","sdp":"v=0"}`))
	offer := expectFrame(t, host, "offer")
	assert.NotEmpty(t, offer.StringArg(0))
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(offer.Arg(1)))

	// A closed connection is reported to the rest of the room
	guest.Close()
	disconnected := expectFrame(t, host, "user-disconnected")
	assert.Equal(t, offer.StringArg(0), disconnected.StringArg(0))
}

func TestCheckOrigin(t *testing.T) {
	check := CheckOrigin([]string{"https://app.example"})

	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://app.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}
