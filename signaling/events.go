package signaling

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind names an event crossing the signaling channel. The values are the
// wire event names.
type Kind string

const (
	KindJoinRoom             Kind = "join-room"
	KindUserConnected        Kind = "user-connected"
	KindUserDisconnected     Kind = "user-disconnected"
	KindOffer                Kind = "offer"
	KindAnswer               Kind = "answer"
	KindICECandidate         Kind = "ice-candidate"
	KindChatMessage          Kind = "chat-message"
	KindTranscriptionSegment Kind = "transcription-segment"
	KindTranscriptionStarted Kind = "transcription-started"
	KindTranscriptionStopped Kind = "transcription-stopped"
	KindEndCall              Kind = "end-call"
	KindCallEnded            Kind = "call-ended"
)

// Limits applied to payloads coming from browsers
const (
	MaxSegmentTextLength  = 4000
	MaxChatTextLength     = 4000
	MaxSenderLength       = 120
	MaxAttachmentField    = 2048
	MaxSignalPayloadBytes = 64 * 1024
)

// Sender roles of a transcription segment
const (
	RoleHost  = "host"
	RoleGuest = "guest"
)

var (
	ErrMissingRoom      = errors.New("signaling: missing room id")
	ErrMissingTarget    = errors.New("signaling: missing target id")
	ErrInvalidPayload   = errors.New("signaling: invalid payload")
	ErrPayloadTooLarge  = errors.New("signaling: payload too large")
	ErrUnsupportedEvent = errors.New("signaling: unsupported event")
)

// Event is one inbound message from a connection, already split into its
// positional arguments. Which fields are meaningful depends on Kind.
type Event struct {
	Kind          Kind
	RoomID        string
	TargetID      string
	ParticipantID string
	Payload       json.RawMessage
}

// Segment is a transcription segment as relayed to the other room members
type Segment struct {
	Text       string `json:"text"`
	SenderRole string `json:"senderRole"`
	Timestamp  int64  `json:"timestamp"`
}

// Attachment describes a file shared in chat
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// ChatMessage is a chat message as relayed to the other room members
type ChatMessage struct {
	IsHost     bool        `json:"isHost"`
	Sender     string      `json:"sender"`
	Text       string      `json:"text"`
	Timestamp  string      `json:"timestamp"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// SanitizeSegment validates a transcription segment sent by a browser. The
// text is truncated, the role is "host" only for that exact literal, and a
// missing timestamp is replaced with the receipt time.
func SanitizeSegment(raw json.RawMessage, now time.Time) (*Segment, error) {

	// The payload must be an object with a string text field
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, ErrInvalidPayload
	}
	var text string
	if err := json.Unmarshal(fields["text"], &text); err != nil {
		return nil, ErrInvalidPayload
	}

	var role string
	_ = json.Unmarshal(fields["senderRole"], &role)
	if role != RoleHost {
		role = RoleGuest
	}

	ts := readTimestamp(fields["timestamp"])
	if ts == 0 {
		ts = readTimestamp(fields["timestampMs"])
	}
	if ts == 0 {
		ts = now.UnixMilli()
	}

	return &Segment{
		Text:       truncate(text, MaxSegmentTextLength),
		SenderRole: role,
		Timestamp:  ts,
	}, nil

}

func readTimestamp(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || f <= 0 {
		return 0
	}
	return int64(f)
}

// SanitizeChat validates a chat message sent by a browser and bounds the
// size of every string field.
func SanitizeChat(raw json.RawMessage) (*ChatMessage, error) {
	if !isObject(raw) {
		return nil, ErrInvalidPayload
	}
	var msg ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, ErrInvalidPayload
	}
	msg.Sender = truncate(strings.TrimSpace(msg.Sender), MaxSenderLength)
	msg.Text = truncate(msg.Text, MaxChatTextLength)
	msg.Timestamp = truncate(msg.Timestamp, 64)
	if msg.Attachment != nil {
		msg.Attachment.Name = truncate(msg.Attachment.Name, 255)
		msg.Attachment.URL = truncate(msg.Attachment.URL, MaxAttachmentField)
		msg.Attachment.Type = truncate(msg.Attachment.Type, 100)
		if msg.Attachment.Size < 0 {
			msg.Attachment.Size = 0
		}
	}
	if msg.Text == "" && msg.Attachment == nil {
		return nil, ErrInvalidPayload
	}
	return &msg, nil
}

// ValidateSignal checks an SDP or ICE payload. It is relayed verbatim once
// it passes.
func ValidateSignal(raw json.RawMessage) error {
	if len(raw) > MaxSignalPayloadBytes {
		return ErrPayloadTooLarge
	}
	if !isObject(raw) {
		return ErrInvalidPayload
	}
	return nil
}

func isObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(raw, &obj) == nil && obj != nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
