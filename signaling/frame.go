package signaling

import (
	"encoding/json"
	"errors"
)

// Frame is the websocket envelope: one event name and its positional args,
// the same shape socket.io puts on the wire.
type Frame struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

// ErrMalformedFrame is returned for frames that cannot be decoded
var ErrMalformedFrame = errors.New("signaling: malformed frame")

// EncodeFrame serializes an outbound event
func EncodeFrame(event string, args ...interface{}) ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return nil, err
		}
		raw = append(raw, b)
	}
	return json.Marshal(Frame{Event: event, Args: raw})
}

// DecodeFrame parses a frame without interpreting its arguments
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
		return nil, ErrMalformedFrame
	}
	return &f, nil
}

// ParseEvent turns an inbound frame into a typed event. Missing positional
// arguments decode as empty values and are caught by the hub.
func ParseEvent(data []byte) (Event, error) {
	f, err := DecodeFrame(data)
	if err != nil {
		return Event{}, err
	}

	ev := Event{Kind: Kind(f.Event)}
	switch ev.Kind {
	case KindJoinRoom:
		ev.RoomID = f.StringArg(0)
		ev.ParticipantID = f.StringArg(1)
	case KindOffer, KindAnswer, KindICECandidate:
		ev.TargetID = f.StringArg(0)
		ev.Payload = f.Arg(1)
	case KindChatMessage, KindTranscriptionSegment:
		ev.RoomID = f.StringArg(0)
		ev.Payload = f.Arg(1)
	case KindTranscriptionStarted, KindTranscriptionStopped, KindEndCall:
		ev.RoomID = f.StringArg(0)
	default:
		return Event{}, ErrUnsupportedEvent
	}
	return ev, nil
}

// Arg returns the raw argument at i, or nil when absent
func (f *Frame) Arg(i int) json.RawMessage {
	if i < 0 || i >= len(f.Args) {
		return nil
	}
	return f.Args[i]
}

// StringArg returns the argument at i when it is a JSON string
func (f *Frame) StringArg(i int) string {
	var s string
	if err := json.Unmarshal(f.Arg(i), &s); err != nil {
		return ""
	}
	return s
}
