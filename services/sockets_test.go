package services

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"testing"

	"github.com/godocompany/meetsession-api/signaling"
	socketio "github.com/googollee/go-socket.io"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type socketEmit struct {
	event string
	args  []interface{}
}

// fakeSocket is a socket.io connection that records what it is sent
type fakeSocket struct {
	socketio.Conn
	id string

	mu     sync.Mutex
	rooms  []string
	emits  []socketEmit
	leaves int
}

func (f *fakeSocket) ID() string { return f.id }

func (f *fakeSocket) RemoteHeader() http.Header { return http.Header{} }

func (f *fakeSocket) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP("10.0.0.7"), Port: 4000}
}

func (f *fakeSocket) Emit(event string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, socketEmit{event: event, args: args})
}

func (f *fakeSocket) Join(room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, room)
}

func (f *fakeSocket) LeaveAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
}

func (f *fakeSocket) sent() []socketEmit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]socketEmit(nil), f.emits...)
}

func newSocketsService(t *testing.T) (*SocketsService, *fakeSocket, *fakeSocket) {
	t.Helper()
	svc := &SocketsService{Hub: signaling.NewHub(signaling.NewRegistry())}
	host := &fakeSocket{id: "conn-host"}
	guest := &fakeSocket{id: "conn-guest"}
	require.NoError(t, svc.OnConnect(host))
	require.NoError(t, svc.OnConnect(guest))

	svc.OnJoinRoom(host, "m1", "host-1")
	svc.OnJoinRoom(guest, "m1", "guest-1")
	return svc, host, guest
}

func TestSocketsService_JoinPairsSecondJoiner(t *testing.T) {
	_, host, guest := newSocketsService(t)

	// Only the second joiner hears about the first
	assert.Empty(t, host.sent())
	require.Len(t, guest.sent(), 1)
	assert.Equal(t, "user-connected", guest.sent()[0].event)
	assert.Equal(t, []interface{}{"conn-host"}, guest.sent()[0].args)
	assert.Equal(t, []string{"m1"}, host.rooms)
}

func TestSocketsService_RelayCarriesSender(t *testing.T) {
	svc, host, guest := newSocketsService(t)
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)

	svc.relayHandler(signaling.KindOffer)(guest, "conn-host", offer)

	require.Len(t, host.sent(), 1)
	sent := host.sent()[0]
	assert.Equal(t, "offer", sent.event)
	require.Len(t, sent.args, 2)
	assert.Equal(t, "conn-guest", sent.args[0])
	assert.JSONEq(t, string(offer), string(sent.args[1].(json.RawMessage)))
}

func TestSocketsService_RoomEventsSkipSender(t *testing.T) {
	svc, host, guest := newSocketsService(t)
	guestBefore := len(guest.sent())

	svc.payloadHandler(signaling.KindChatMessage)(host, "m1", json.RawMessage(`{"sender":"Ana","text":"Oi","timestamp":"t0","isHost":true}`))
	svc.roomHandler(signaling.KindEndCall)(host, "m1")

	assert.Empty(t, host.sent())
	sent := guest.sent()[guestBefore:]
	require.Len(t, sent, 2)
	assert.Equal(t, "chat-message", sent[0].event)
	msg, ok := sent[0].args[0].(*signaling.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "Oi", msg.Text)
	assert.Equal(t, "call-ended", sent[1].event)
	assert.Empty(t, sent[1].args)
}

func TestSocketsService_DisconnectNotifiesRoom(t *testing.T) {
	svc, host, guest := newSocketsService(t)

	svc.OnDisconnect(guest, "transport close")

	require.Len(t, host.sent(), 1)
	assert.Equal(t, "user-disconnected", host.sent()[0].event)
	assert.Equal(t, []interface{}{"conn-guest"}, host.sent()[0].args)
	assert.Equal(t, 1, guest.leaves)
	assert.Equal(t, signaling.Stats{Rooms: 1, Connections: 1}, svc.Hub.Stats())
}
