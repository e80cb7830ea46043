package services

import (
	"encoding/json"

	"github.com/godocompany/meetsession-api/signaling"
	"github.com/godocompany/meetsession-api/utils"
	socketio "github.com/googollee/go-socket.io"
	"github.com/sirupsen/logrus"
)

// SocketsService binds the signaling hub to the socket.io server. Event
// names and argument order match what the browser client emits.
type SocketsService struct {
	Server *socketio.Server
	Hub    *signaling.Hub
}

func (s *SocketsService) Setup() {

	// Add handlers to the socket server
	s.Server.OnConnect("/", s.OnConnect)
	s.Server.OnDisconnect("/", s.OnDisconnect)
	s.Server.OnError("/", func(conn socketio.Conn, err error) {
		entry := s.log().WithError(err)
		if conn != nil {
			entry = entry.WithField("conn_id", conn.ID())
		}
		entry.Warn("socket error")
	})

	// Register all of the event handlers
	s.Server.OnEvent("/", string(signaling.KindJoinRoom), s.OnJoinRoom)
	s.Server.OnEvent("/", string(signaling.KindOffer), s.relayHandler(signaling.KindOffer))
	s.Server.OnEvent("/", string(signaling.KindAnswer), s.relayHandler(signaling.KindAnswer))
	s.Server.OnEvent("/", string(signaling.KindICECandidate), s.relayHandler(signaling.KindICECandidate))
	s.Server.OnEvent("/", string(signaling.KindChatMessage), s.payloadHandler(signaling.KindChatMessage))
	s.Server.OnEvent("/", string(signaling.KindTranscriptionSegment), s.payloadHandler(signaling.KindTranscriptionSegment))
	s.Server.OnEvent("/", string(signaling.KindTranscriptionStarted), s.roomHandler(signaling.KindTranscriptionStarted))
	s.Server.OnEvent("/", string(signaling.KindTranscriptionStopped), s.roomHandler(signaling.KindTranscriptionStopped))
	s.Server.OnEvent("/", string(signaling.KindEndCall), s.roomHandler(signaling.KindEndCall))

}

func (s *SocketsService) log() *logrus.Entry {
	return logrus.WithField("component", "socketio")
}

//====================================================================================================
// Connection lifecycle
//====================================================================================================

func (s *SocketsService) OnConnect(conn socketio.Conn) error {
	s.log().WithFields(logrus.Fields{
		"conn_id": conn.ID(),
		"ip":      utils.GetIpAddress(conn.RemoteHeader(), conn.RemoteAddr()),
	}).Info("client connected")
	s.Hub.Connect(conn)
	return nil
}

// OnDisconnect runs when a socket disconnects, graceful or not
func (s *SocketsService) OnDisconnect(conn socketio.Conn, reason string) {
	s.log().WithFields(logrus.Fields{
		"conn_id": conn.ID(),
		"reason":  reason,
	}).Info("client disconnected")
	s.Hub.Leave(conn)
	conn.LeaveAll()
}

//====================================================================================================
// join-room event handler
// Called when a participant opens the meeting page
//====================================================================================================

func (s *SocketsService) OnJoinRoom(conn socketio.Conn, roomID string, participantID string) {

	// Keep socket.io's own room bookkeeping in step with the hub
	if roomID != "" {
		conn.Join(roomID)
	}

	s.Hub.Dispatch(conn, signaling.Event{
		Kind:          signaling.KindJoinRoom,
		RoomID:        roomID,
		ParticipantID: participantID,
	})

}

//====================================================================================================
// offer / answer / ice-candidate event handlers
// Point-to-point WebRTC handshake relay
//====================================================================================================

func (s *SocketsService) relayHandler(kind signaling.Kind) func(socketio.Conn, string, json.RawMessage) {
	return func(conn socketio.Conn, targetID string, payload json.RawMessage) {
		s.Hub.Dispatch(conn, signaling.Event{
			Kind:     kind,
			TargetID: targetID,
			Payload:  payload,
		})
	}
}

//====================================================================================================
// chat-message / transcription-segment event handlers
// Room-scoped events carrying a payload
//====================================================================================================

func (s *SocketsService) payloadHandler(kind signaling.Kind) func(socketio.Conn, string, json.RawMessage) {
	return func(conn socketio.Conn, roomID string, payload json.RawMessage) {
		s.Hub.Dispatch(conn, signaling.Event{
			Kind:    kind,
			RoomID:  roomID,
			Payload: payload,
		})
	}
}

//====================================================================================================
// transcription-started / transcription-stopped / end-call event handlers
// Room-scoped events without a payload
//====================================================================================================

func (s *SocketsService) roomHandler(kind signaling.Kind) func(socketio.Conn, string) {
	return func(conn socketio.Conn, roomID string) {
		s.Hub.Dispatch(conn, signaling.Event{
			Kind:   kind,
			RoomID: roomID,
		})
	}
}
