package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godocompany/meetsession-api/gateway"
	"github.com/godocompany/meetsession-api/signaling"
	"github.com/godocompany/meetsession-api/transcription"
	"github.com/stretchr/testify/require"
)

type fakeTrack struct {
	kind    string
	mu      sync.Mutex
	stops   int
	enabled bool
}

func (t *fakeTrack) Kind() string { return t.kind }

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
}

func (t *fakeTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type fakeStream struct {
	tracks []*fakeTrack
	tap    func() (transcription.AudioSource, error)
}

func newFakeStream() *fakeStream {
	return &fakeStream{tracks: []*fakeTrack{
		{kind: "audio", enabled: true},
		{kind: "video", enabled: true},
	}}
}

func (s *fakeStream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *fakeStream) TapAudio() (transcription.AudioSource, error) {
	if s.tap != nil {
		return s.tap()
	}
	return nil, errors.New("no audio tap")
}

type fakeMedia struct {
	stream *fakeStream
	err    error
}

func (m *fakeMedia) GetUserMedia(ctx context.Context, video, audio bool) (Stream, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stream, nil
}

// fakePeer completes a non-trickle negotiation as soon as both descriptions
// have been exchanged
type fakePeer struct {
	cfg    PeerConfig
	mu     sync.Mutex
	closes int
}

type fakePeerFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
}

func (f *fakePeerFactory) NewPeer(cfg PeerConfig) (Peer, error) {
	p := &fakePeer{cfg: cfg}
	f.mu.Lock()
	f.peers = append(f.peers, p)
	f.mu.Unlock()
	if cfg.Initiator {
		cfg.OnSignal(json.RawMessage(`{"type":"offer","sdp":"fake-offer"}`))
	}
	return p, nil
}

// slowPeerFactory returns its peers some time after they have already sent
// their offer
type slowPeerFactory struct {
	*fakePeerFactory
	delay time.Duration
}

func (f *slowPeerFactory) NewPeer(cfg PeerConfig) (Peer, error) {
	peer, err := f.fakePeerFactory.NewPeer(cfg)
	time.Sleep(f.delay)
	return peer, err
}

func (p *fakePeer) Signal(data json.RawMessage) error {
	var desc struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return err
	}
	switch {
	case desc.Type == "offer" && !p.cfg.Initiator:
		p.cfg.OnSignal(json.RawMessage(`{"type":"answer","sdp":"fake-answer"}`))
		p.cfg.OnStream(&fakeStream{})
	case desc.Type == "answer" && p.cfg.Initiator:
		p.cfg.OnStream(&fakeStream{})
	}
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

type fakeAPI struct {
	mu          sync.Mutex
	meeting     *gateway.Meeting
	history     []gateway.ChatMessage
	transcripts []string
	batches     [][]gateway.ChatMessage
	statusCalls int
	statusErr   error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{meeting: &gateway.Meeting{MeetingID: "m1", CalendarID: "cal-1"}}
}

func (a *fakeAPI) GetMeeting(ctx context.Context, meetingID string) (*gateway.Meeting, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := *a.meeting
	return &m, nil
}

func (a *fakeAPI) LoadMessages(ctx context.Context, meetingID string) ([]gateway.ChatMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]gateway.ChatMessage(nil), a.history...), nil
}

func (a *fakeAPI) SaveTranscript(ctx context.Context, meetingID, transcript string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transcripts = append(a.transcripts, transcript)
	return nil
}

func (a *fakeAPI) SaveMessages(ctx context.Context, meetingID string, messages []gateway.ChatMessage) (*gateway.SaveResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches = append(a.batches, messages)
	return &gateway.SaveResult{SavedCount: len(messages), TotalReceived: len(messages)}, nil
}

func (a *fakeAPI) UpdateMeetingStatus(ctx context.Context, meetingID string, status int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusCalls++
	return a.statusErr
}

func (a *fakeAPI) UploadAttachment(ctx context.Context, meetingID, name, mimeType string, data []byte) (*gateway.Attachment, error) {
	return &gateway.Attachment{Name: name, URL: "https://app.example/uploads/meetings/" + name, Type: mimeType, Size: int64(len(data))}, nil
}

func (a *fakeAPI) savedTranscripts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.transcripts...)
}

type fakeCalendar struct {
	mu    sync.Mutex
	calls []string
}

func (c *fakeCalendar) UpdateStatus(ctx context.Context, calendarEventID string, status int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, calendarEventID)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (n *recordingNotifier) Notify(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *recordingNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.notes...)
}

type emittedFrame struct {
	event string
	args  []interface{}
}

// fakeSignaler records emits and hands the test the session's frame handler
type fakeSignaler struct {
	mu      sync.Mutex
	emitted []emittedFrame
	closes  int
	handler FrameHandler
	onLost  func(error)
	onEmit  func(event string)
}

func (s *fakeSignaler) dial(ctx context.Context, url string, handler FrameHandler, onLost func(error)) (Signaler, error) {
	s.handler = handler
	s.onLost = onLost
	return s, nil
}

func (s *fakeSignaler) Emit(event string, args ...interface{}) error {
	s.mu.Lock()
	s.emitted = append(s.emitted, emittedFrame{event: event, args: args})
	onEmit := s.onEmit
	s.mu.Unlock()
	if onEmit != nil {
		onEmit(event)
	}
	return nil
}

func (s *fakeSignaler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSignaler) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.emitted))
	for i, e := range s.emitted {
		out[i] = e.event
	}
	return out
}

func (s *fakeSignaler) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// deliver feeds the session a frame as if it came from the hub
func (s *fakeSignaler) deliver(t *testing.T, event signaling.Kind, args ...interface{}) {
	t.Helper()
	s.handler(buildFrame(t, event, args...))
}

func buildFrame(t *testing.T, event signaling.Kind, args ...interface{}) *signaling.Frame {
	t.Helper()
	data, err := signaling.EncodeFrame(string(event), args...)
	require.NoError(t, err)
	frame, err := signaling.DecodeFrame(data)
	require.NoError(t, err)
	return frame
}
