package signaling

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// Hub relays session control and WebRTC handshake messages between the
// members of a room. It knows nothing about calls, media or persistence.
// Malformed events are dropped without telling the sender.
type Hub struct {
	registry *Registry
	log      *logrus.Entry
	now      func() time.Time
}

// NewHub creates a hub over the given registry
func NewHub(registry *Registry) *Hub {
	if registry == nil {
		panic("Registry cannot be nil for Hub")
	}
	return &Hub{
		registry: registry,
		log:      logrus.WithField("component", "signaling_hub"),
		now:      time.Now,
	}
}

// Registry returns the registry the hub was built on
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Stats reports the current room and connection counts
func (h *Hub) Stats() Stats {
	return h.registry.Stats()
}

// Connect registers a newly opened connection
func (h *Hub) Connect(conn Conn) {
	if err := h.registry.Register(conn); err != nil {
		h.log.WithField("conn_id", conn.ID()).WithError(err).Warn("Connection refused")
		return
	}
	h.log.WithField("conn_id", conn.ID()).Debug("Connection registered")
}

// Dispatch routes one inbound event to the matching operation
func (h *Hub) Dispatch(conn Conn, ev Event) {
	var err error
	switch ev.Kind {
	case KindJoinRoom:
		err = h.Join(conn, ev.RoomID, ev.ParticipantID)
	case KindOffer, KindAnswer, KindICECandidate:
		err = h.Relay(conn, ev.Kind, ev.TargetID, ev.Payload)
	case KindChatMessage, KindTranscriptionStarted, KindTranscriptionStopped:
		err = h.BroadcastControl(conn, ev.Kind, ev.RoomID, ev.Payload)
	case KindEndCall:
		err = h.BroadcastControl(conn, KindCallEnded, ev.RoomID, nil)
	case KindTranscriptionSegment:
		err = h.RelayTranscriptionSegment(conn, ev.RoomID, ev.Payload)
	default:
		err = ErrUnsupportedEvent
	}
	if err != nil {
		h.log.WithFields(logrus.Fields{
			"conn_id": conn.ID(),
			"room_id": ev.RoomID,
			"event":   ev.Kind,
		}).WithError(err).Debug("Event dropped")
	}
}

// Join puts the connection in the room. If someone is already there, only
// the joiner is told who, which makes the second joiner the initiator.
func (h *Hub) Join(conn Conn, roomID, participantID string) error {
	if roomID == "" {
		return ErrMissingRoom
	}

	other, err := h.registry.Join(roomID, conn.ID())
	if err != nil {
		return err
	}

	h.log.WithFields(logrus.Fields{
		"conn_id":        conn.ID(),
		"room_id":        roomID,
		"participant_id": participantID,
	}).Info("Joined room")

	if other != "" {
		conn.Emit(string(KindUserConnected), other)
	}
	return nil
}

// Relay forwards a handshake message to a single connection. The target is
// not required to share a room with the sender.
func (h *Hub) Relay(conn Conn, kind Kind, targetID string, payload json.RawMessage) error {
	if kind != KindOffer && kind != KindAnswer && kind != KindICECandidate {
		return ErrUnsupportedEvent
	}
	if targetID == "" {
		return ErrMissingTarget
	}
	if err := ValidateSignal(payload); err != nil {
		return err
	}

	target, ok := h.registry.Lookup(targetID)
	if !ok {
		h.log.WithFields(logrus.Fields{
			"conn_id":   conn.ID(),
			"target_id": targetID,
			"event":     kind,
		}).Debug("Relay target not connected")
		return nil
	}
	target.Emit(string(kind), conn.ID(), payload)
	return nil
}

// BroadcastControl delivers a control event to every other member of the
// room. The sender never receives its own event.
func (h *Hub) BroadcastControl(conn Conn, kind Kind, roomID string, payload json.RawMessage) error {
	if roomID == "" {
		return ErrMissingRoom
	}

	var args []interface{}
	switch kind {
	case KindChatMessage:
		msg, err := SanitizeChat(payload)
		if err != nil {
			return err
		}
		args = []interface{}{msg}
	case KindTranscriptionStarted, KindTranscriptionStopped, KindCallEnded:
	default:
		return ErrUnsupportedEvent
	}

	h.emitOthers(conn, roomID, kind, args...)
	return nil
}

// RelayTranscriptionSegment sanitizes a segment and delivers it to the other
// members of the room.
func (h *Hub) RelayTranscriptionSegment(conn Conn, roomID string, payload json.RawMessage) error {
	if roomID == "" {
		return ErrMissingRoom
	}
	seg, err := SanitizeSegment(payload, h.now())
	if err != nil {
		return err
	}
	h.emitOthers(conn, roomID, KindTranscriptionSegment, seg)
	return nil
}

// Leave removes the connection from all of its rooms and tells whoever is
// left. Abrupt disconnects reach here once the transport notices them.
func (h *Hub) Leave(conn Conn) {
	remaining := h.registry.Remove(conn.ID())
	for roomID, members := range remaining {
		h.log.WithFields(logrus.Fields{
			"conn_id":   conn.ID(),
			"room_id":   roomID,
			"remaining": len(members),
		}).Info("Left room")
		for _, member := range members {
			member.Emit(string(KindUserDisconnected), conn.ID())
		}
	}
}

// Close shuts the registry down
func (h *Hub) Close() {
	h.registry.Close()
}

func (h *Hub) emitOthers(conn Conn, roomID string, kind Kind, args ...interface{}) {
	for _, member := range h.registry.Others(roomID, conn.ID()) {
		member.Emit(string(kind), args...)
	}
}
