package session

import (
	"context"
	"encoding/json"

	"github.com/godocompany/meetsession-api/gateway"
	"github.com/godocompany/meetsession-api/transcription"
)

// Track is one local media track
type Track interface {
	Kind() string
	SetEnabled(enabled bool)
	Stop()
}

// Stream is a set of media tracks, local or remote
type Stream interface {
	Tracks() []Track
	// TapAudio returns a fresh tap on the stream's audio for transcription
	TapAudio() (transcription.AudioSource, error)
}

// MediaDevices acquires the local camera and microphone
type MediaDevices interface {
	GetUserMedia(ctx context.Context, video, audio bool) (Stream, error)
}

// VideoSink is a place a stream is rendered
type VideoSink interface {
	Attach(stream Stream)
	Detach()
}

// PeerConfig configures a new peer connection. Callbacks may run on any
// goroutine, including synchronously from NewPeer or Signal.
type PeerConfig struct {
	Initiator bool
	Trickle   bool
	Stream    Stream
	OnSignal  func(data json.RawMessage)
	OnStream  func(remote Stream)
	OnError   func(err error)
}

// Peer is a peer media connection
type Peer interface {
	// Signal applies a session description or candidate from the remote side
	Signal(data json.RawMessage) error
	Close() error
}

// PeerFactory creates peer connections
type PeerFactory interface {
	NewPeer(cfg PeerConfig) (Peer, error)
}

// Calendar is the calendar service the meeting belongs to
type Calendar interface {
	UpdateStatus(ctx context.Context, calendarEventID string, status int) error
}

// Notification is a transient message for the user
type Notification struct {
	Title string
	Err   error
}

// Notifier shows notifications to the user
type Notifier interface {
	Notify(n Notification)
}

// API is the meeting REST API, satisfied by *gateway.Client
type API interface {
	GetMeeting(ctx context.Context, meetingID string) (*gateway.Meeting, error)
	LoadMessages(ctx context.Context, meetingID string) ([]gateway.ChatMessage, error)
	SaveTranscript(ctx context.Context, meetingID, transcript string) error
	SaveMessages(ctx context.Context, meetingID string, messages []gateway.ChatMessage) (*gateway.SaveResult, error)
	UpdateMeetingStatus(ctx context.Context, meetingID string, status int) error
	UploadAttachment(ctx context.Context, meetingID, name, mimeType string, data []byte) (*gateway.Attachment, error)
}

var _ API = (*gateway.Client)(nil)
