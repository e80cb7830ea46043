package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/godocompany/meetsession-api/gateway"
	"github.com/godocompany/meetsession-api/signaling"
	"github.com/godocompany/meetsession-api/transcription"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrMediaAcquisition means the camera or microphone could not be
	// acquired. The session ends in StateFailed.
	ErrMediaAcquisition = errors.New("media acquisition failed")
	// ErrSignalingChannel means the hub could not be reached or dropped the
	// connection. The session ends in StateFailed.
	ErrSignalingChannel = errors.New("signaling channel failed")
	// ErrNotHost is returned for host-only actions called by the guest
	ErrNotHost = errors.New("only the host can do this")
	// ErrTranscriptionUnavailable is returned when no speech URL is set
	ErrTranscriptionUnavailable = errors.New("transcription is not configured")
	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = errors.New("session already started")
)

// Config identifies the participant and the endpoints of a session
type Config struct {
	MeetingID       string
	CalendarEventID string
	ParticipantID   string
	DisplayName     string
	Role            transcription.Role
	SignalingURL    string
	SpeechURL       string
}

// DialFunc connects to the signaling hub
type DialFunc func(ctx context.Context, url string, handler FrameHandler, onLost func(error)) (Signaler, error)

// Deps are the collaborators of a session. LocalVideo, RemoteVideo,
// Calendar and Notifier are optional.
type Deps struct {
	API         API
	Media       MediaDevices
	Peers       PeerFactory
	Calendar    Calendar
	Notifier    Notifier
	LocalVideo  VideoSink
	RemoteVideo VideoSink
	Clock       gateway.Clock
	Dial        DialFunc
}

// Controller drives one participant through a call: media, signaling, peer
// negotiation, chat, transcription and teardown.
type Controller struct {
	cfg  Config
	deps Deps
	log  *logrus.Entry

	transcript *transcription.Transcript
	router     *transcription.Router
	saver      *gateway.TranscriptSaver
	queue      *gateway.MessageQueue

	mu           sync.Mutex
	state        State
	participants int
	local        Stream
	peer         Peer
	peerID       string
	pending      []json.RawMessage
	signaler     Signaler
	pipeline     *transcription.Pipeline
	transcribing bool
	tornDown     bool
}

// New creates a session in StateIdle
func New(cfg Config, deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = gateway.RealClock{}
	}
	if deps.Dial == nil {
		deps.Dial = dialWebSocket
	}

	c := &Controller{
		cfg:          cfg,
		deps:         deps,
		participants: 1,
		transcript:   transcription.NewTranscript(""),
		log: logrus.WithFields(logrus.Fields{
			"meeting_id": cfg.MeetingID,
			"role":       cfg.Role,
		}),
	}
	c.saver = gateway.NewTranscriptSaver(deps.API, cfg.MeetingID, deps.Clock, func(err error) {
		c.notify("Falha ao salvar a transcrição", err)
	})
	c.queue = gateway.NewMessageQueue(deps.API, cfg.MeetingID, deps.Clock, func(err error) {
		c.notify("Falha ao salvar as mensagens", err)
	})
	c.router = &transcription.Router{
		Role:       cfg.Role,
		Transcript: c.transcript,
		Saver:      c.saver,
		Relay:      c.relaySegment,
		Now:        deps.Clock.Now,
	}
	return c
}

func dialWebSocket(ctx context.Context, url string, handler FrameHandler, onLost func(error)) (Signaler, error) {
	client, err := DialSignaling(ctx, url, handler, onLost)
	if err != nil {
		return nil, err
	}
	return client, nil
}

//====================================================================================================
// Lifecycle
//====================================================================================================

// Start loads the meeting, acquires media and joins the room. A meeting that
// already ended moves straight to StateEnded.
func (c *Controller) Start(ctx context.Context) error {

	c.mu.Lock()
	if c.state != StateIdle || c.tornDown {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.mu.Unlock()

	// Get the meeting and its chat history, once
	meeting, err := c.deps.API.GetMeeting(ctx, c.cfg.MeetingID)
	if err != nil {
		c.log.WithError(err).Warn("Failed to load meeting")
	} else {
		if meeting.IsEnded() {
			c.setState(StateEnded)
			return nil
		}
		c.transcript.Set(meeting.Transcription)
		if c.cfg.CalendarEventID == "" {
			c.cfg.CalendarEventID = meeting.CalendarID
		}
	}
	history, err := c.deps.API.LoadMessages(ctx, c.cfg.MeetingID)
	if err != nil {
		c.log.WithError(err).Warn("Failed to load chat history")
	} else {
		c.queue.Load(history)
	}

	// Get the camera and microphone
	c.setState(StateAcquiringMedia)
	stream, err := c.deps.Media.GetUserMedia(ctx, true, true)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
		c.fail("Não foi possível acessar câmera e microfone", err)
		return err
	}
	c.mu.Lock()
	c.local = stream
	c.mu.Unlock()
	if c.deps.LocalVideo != nil {
		c.deps.LocalVideo.Attach(stream)
	}

	// Connect to the hub
	signaler, err := c.deps.Dial(ctx, c.cfg.SignalingURL, c.handleFrame, c.signalingLost)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrSignalingChannel, err)
		c.fail("Não foi possível conectar à sessão", err)
		return err
	}
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		signaler.Close()
		return nil
	}
	c.signaler = signaler
	c.state = StateAwaitingPeer
	c.mu.Unlock()
	c.log.WithField("state", StateAwaitingPeer).Info("Session state changed")

	// Join the room. Frames may arrive as soon as this is sent.
	if err := signaler.Emit(string(signaling.KindJoinRoom), c.cfg.MeetingID, c.cfg.ParticipantID); err != nil {
		err = fmt.Errorf("%w: %v", ErrSignalingChannel, err)
		c.fail("Não foi possível conectar à sessão", err)
		return err
	}
	return nil

}

// EndCall ends the call for both participants: the room is told, the
// calendar event and the meeting are marked ended concurrently, and the
// session is torn down even if those updates fail.
func (c *Controller) EndCall(ctx context.Context) error {

	c.mu.Lock()
	if c.state.Terminal() || c.tornDown {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// Tell the other participant
	if err := c.emit(signaling.KindEndCall, c.cfg.MeetingID); err != nil {
		c.log.WithError(err).Warn("Failed to send end-call")
	}

	// Update the calendar and the meeting in parallel
	g, gctx := errgroup.WithContext(ctx)
	if c.deps.Calendar != nil && c.cfg.CalendarEventID != "" {
		g.Go(func() error {
			return c.deps.Calendar.UpdateStatus(gctx, c.cfg.CalendarEventID, gateway.MeetingStatusEnded)
		})
	}
	g.Go(func() error {
		return c.deps.API.UpdateMeetingStatus(gctx, c.cfg.MeetingID, gateway.MeetingStatusEnded)
	})
	err := g.Wait()
	if err != nil {
		err = fmt.Errorf("%w: %v", gateway.ErrPersistence, err)
		c.notify("Falha ao encerrar a sessão", err)
	}

	c.end()
	return err

}

// Teardown releases everything the session holds. Safe to call more than
// once and from any goroutine.
func (c *Controller) Teardown() {

	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		return
	}
	c.tornDown = true
	pipeline := c.pipeline
	local := c.local
	peer := c.peer
	signaler := c.signaler
	c.pipeline = nil
	c.transcribing = false
	c.local = nil
	c.peer = nil
	c.pending = nil
	c.signaler = nil
	c.participants = 1
	c.mu.Unlock()

	// Stop transcription capture
	if pipeline != nil {
		pipeline.Stop()
	}

	// Stop all of the local tracks
	if local != nil {
		for _, track := range local.Tracks() {
			track.Stop()
		}
	}

	// Detach the video outputs
	if c.deps.LocalVideo != nil {
		c.deps.LocalVideo.Detach()
	}
	if c.deps.RemoteVideo != nil {
		c.deps.RemoteVideo.Detach()
	}

	// Close the peer connection and leave the hub
	if peer != nil {
		if err := peer.Close(); err != nil {
			c.log.WithError(err).Debug("Failed to close peer")
		}
	}
	if signaler != nil {
		if err := signaler.Close(); err != nil {
			c.log.WithError(err).Debug("Failed to close signaling")
		}
	}

	// Last save attempt, then drop the timers
	if c.isHost() {
		c.saver.Flush()
	}
	c.saver.Stop()
	c.queue.Flush()
	c.queue.Stop()

	c.log.Info("Session torn down")

}

// PageHidden saves whatever is waiting on a debounce timer
func (c *Controller) PageHidden() {
	if c.isHost() {
		c.saver.Flush()
	}
	c.queue.Flush()
}

// Unload attempts a final save of the transcript and chat, then tears the
// session down
func (c *Controller) Unload() {
	if c.isHost() {
		c.saver.FlushNow()
	}
	c.queue.FlushNow()
	c.Teardown()
}

// end tears down and marks the call ended, unless it already failed
func (c *Controller) end() {
	c.Teardown()
	c.mu.Lock()
	if c.state == StateFailed {
		c.mu.Unlock()
		return
	}
	c.state = StateEnded
	c.mu.Unlock()
	c.log.WithField("state", StateEnded).Info("Session state changed")
}

// fail tears down and moves to StateFailed
func (c *Controller) fail(title string, err error) {
	c.log.WithError(err).Error("Session failed")
	c.Teardown()
	c.setState(StateFailed)
	c.notify(title, err)
}

func (c *Controller) signalingLost(err error) {
	c.mu.Lock()
	tornDown := c.tornDown
	c.mu.Unlock()
	if tornDown {
		return
	}
	c.fail("Conexão com a sessão perdida", fmt.Errorf("%w: %v", ErrSignalingChannel, err))
}

//====================================================================================================
// Hub events
//====================================================================================================

func (c *Controller) handleFrame(frame *signaling.Frame) {
	c.mu.Lock()
	tornDown := c.tornDown
	c.mu.Unlock()
	if tornDown {
		return
	}

	switch signaling.Kind(frame.Event) {
	case signaling.KindUserConnected:
		c.onUserConnected(frame.StringArg(0))
	case signaling.KindOffer:
		c.onOffer(frame.StringArg(0), frame.Arg(1))
	case signaling.KindAnswer:
		c.onAnswer(frame.Arg(1))
	case signaling.KindICECandidate:
		c.onCandidate(frame.Arg(1))
	case signaling.KindChatMessage:
		c.onChatMessage(frame.Arg(0))
	case signaling.KindTranscriptionSegment:
		c.onSegment(frame.Arg(0))
	case signaling.KindTranscriptionStarted:
		go func() {
			_ = c.startCapture(context.Background())
		}()
	case signaling.KindTranscriptionStopped:
		c.stopCapture()
	case signaling.KindCallEnded:
		c.notify("O outro participante encerrou a sessão", nil)
		c.end()
	case signaling.KindUserDisconnected:
		c.onUserDisconnected(frame.StringArg(0))
	default:
		c.log.WithField("event", frame.Event).Debug("Unhandled hub event")
	}
}

// onUserConnected makes this side the offerer towards the peer already in
// the room
func (c *Controller) onUserConnected(peerID string) {
	c.mu.Lock()
	if c.state != StateAwaitingPeer || peerID == "" {
		c.mu.Unlock()
		return
	}
	c.state = StateOffering
	c.peerID = peerID
	local := c.local
	c.mu.Unlock()
	c.log.WithFields(logrus.Fields{"state": StateOffering, "peer_id": peerID}).Info("Session state changed")

	peer, err := c.deps.Peers.NewPeer(c.peerConfig(true, peerID, local))
	if err != nil {
		c.notify("Falha ao iniciar a conexão", err)
		return
	}
	c.adoptPeer(peer, nil)
}

// onOffer makes this side the answerer when an offer arrives first
func (c *Controller) onOffer(from string, sdp json.RawMessage) {
	c.mu.Lock()
	if c.state != StateAwaitingPeer || from == "" {
		c.mu.Unlock()
		c.log.WithField("from", from).Debug("Offer ignored")
		return
	}
	c.state = StateAnswering
	c.peerID = from
	local := c.local
	c.mu.Unlock()
	c.log.WithFields(logrus.Fields{"state": StateAnswering, "peer_id": from}).Info("Session state changed")

	peer, err := c.deps.Peers.NewPeer(c.peerConfig(false, from, local))
	if err != nil {
		c.notify("Falha ao iniciar a conexão", err)
		return
	}
	c.adoptPeer(peer, sdp)
}

func (c *Controller) onAnswer(sdp json.RawMessage) {
	c.mu.Lock()
	if c.state != StateOffering {
		c.mu.Unlock()
		return
	}
	peer := c.peer
	if peer == nil {
		// The offer can go out before NewPeer returns
		c.pending = append(c.pending, sdp)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	if err := peer.Signal(sdp); err != nil {
		c.notify("Falha ao iniciar a conexão", err)
	}
}

// onCandidate only sees traffic when trickling is enabled on the peers
func (c *Controller) onCandidate(candidate json.RawMessage) {
	c.mu.Lock()
	peer := c.peer
	if peer == nil {
		if c.state == StateOffering || c.state == StateAnswering {
			c.pending = append(c.pending, candidate)
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	if err := peer.Signal(candidate); err != nil {
		c.log.WithError(err).Debug("Failed to apply candidate")
	}
}

func (c *Controller) onRemoteStream(remote Stream) {
	c.mu.Lock()
	if c.state != StateOffering && c.state != StateAnswering {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.participants = 2
	c.mu.Unlock()
	c.log.WithField("state", StateConnected).Info("Session state changed")

	if c.deps.RemoteVideo != nil {
		c.deps.RemoteVideo.Attach(remote)
	}
}

func (c *Controller) onUserDisconnected(connID string) {
	c.mu.Lock()
	state := c.state
	peerID := c.peerID
	c.mu.Unlock()
	if !state.negotiating() {
		return
	}
	if connID != "" && peerID != "" && connID != peerID {
		return
	}
	c.notify("O outro participante saiu da sessão", nil)
	c.end()
}

func (c *Controller) onChatMessage(raw json.RawMessage) {
	var msg gateway.ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.WithError(err).Debug("Unreadable chat message")
		return
	}
	c.queue.AddIncoming(msg)
}

func (c *Controller) onSegment(raw json.RawMessage) {
	var seg transcription.Segment
	if err := json.Unmarshal(raw, &seg); err != nil {
		c.log.WithError(err).Debug("Unreadable transcription segment")
		return
	}
	c.router.Relayed(seg)
}

//====================================================================================================
// Peer connection
//====================================================================================================

func (c *Controller) peerConfig(initiator bool, peerID string, local Stream) PeerConfig {
	return PeerConfig{
		Initiator: initiator,
		Trickle:   false,
		Stream:    local,
		OnSignal: func(data json.RawMessage) {
			kind := signaling.KindAnswer
			if initiator {
				kind = signaling.KindOffer
			}
			if isCandidate(data) {
				kind = signaling.KindICECandidate
			}
			if err := c.emit(kind, peerID, data); err != nil {
				c.log.WithError(err).WithField("event", kind).Warn("Failed to relay signal")
			}
		},
		OnStream: c.onRemoteStream,
		OnError: func(err error) {
			c.notify("Falha na conexão com o outro participante", err)
		},
	}
}

// adoptPeer stores the new peer unless the session was torn down meanwhile,
// then applies first followed by any remote signals that arrived before the
// peer was stored
func (c *Controller) adoptPeer(peer Peer, first json.RawMessage) {
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		peer.Close()
		return
	}
	c.peer = peer
	signals := c.pending
	c.pending = nil
	c.mu.Unlock()

	if first != nil {
		signals = append([]json.RawMessage{first}, signals...)
	}
	for _, data := range signals {
		if err := peer.Signal(data); err != nil {
			c.notify("Falha ao iniciar a conexão", err)
			return
		}
	}
}

func isCandidate(data json.RawMessage) bool {
	var probe struct {
		Type      string          `json:"type"`
		Candidate json.RawMessage `json:"candidate"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Type == "candidate" || (probe.Type == "" && len(probe.Candidate) > 0)
}

//====================================================================================================
// User actions
//====================================================================================================

// SendChat sends a text message to the room and queues it for saving
func (c *Controller) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return c.sendMessage(gateway.ChatMessage{Text: text})
}

// SendAttachment uploads a file and sends it to the room as a chat message
func (c *Controller) SendAttachment(ctx context.Context, name, mimeType string, data []byte) error {
	if len(data) > gateway.MaxAttachmentSize {
		err := fmt.Errorf("%w: file exceeds 10MB", gateway.ErrUploadRejected)
		c.notify("Arquivo muito grande", err)
		return err
	}

	attachment, err := c.deps.API.UploadAttachment(ctx, c.cfg.MeetingID, name, mimeType, data)
	if err != nil {
		c.notify("Erro no upload", err)
		return err
	}
	return c.sendMessage(gateway.ChatMessage{Attachment: attachment})
}

func (c *Controller) sendMessage(msg gateway.ChatMessage) error {
	msg.IsHost = c.isHost()
	msg.Sender = c.cfg.DisplayName
	msg.Timestamp = c.deps.Clock.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")

	c.queue.AddOutgoing(msg)
	if err := c.emit(signaling.KindChatMessage, c.cfg.MeetingID, msg); err != nil {
		c.log.WithError(err).Debug("Chat message not relayed")
	}
	return nil
}

// SetMicEnabled mutes or unmutes the local audio tracks
func (c *Controller) SetMicEnabled(enabled bool) {
	c.setTracksEnabled("audio", enabled)
}

// SetCameraEnabled turns the local video tracks on or off
func (c *Controller) SetCameraEnabled(enabled bool) {
	c.setTracksEnabled("video", enabled)
}

func (c *Controller) setTracksEnabled(kind string, enabled bool) {
	c.mu.Lock()
	local := c.local
	c.mu.Unlock()
	if local == nil {
		return
	}
	for _, track := range local.Tracks() {
		if track.Kind() == kind {
			track.SetEnabled(enabled)
		}
	}
}

// EditTranscript replaces the transcript with the host's manual edit
func (c *Controller) EditTranscript(text string) error {
	if !c.isHost() {
		return ErrNotHost
	}
	c.transcript.Set(text)
	c.saver.Schedule(text)
	return nil
}

// ToggleTranscription starts or stops transcription on both sides of the
// call. Only the host can toggle it.
func (c *Controller) ToggleTranscription(ctx context.Context) error {
	if !c.isHost() {
		return ErrNotHost
	}
	if c.cfg.SpeechURL == "" {
		c.notify("Funcionalidade indisponível", ErrTranscriptionUnavailable)
		return ErrTranscriptionUnavailable
	}

	c.mu.Lock()
	on := !c.transcribing
	c.mu.Unlock()

	if !on {
		if err := c.emit(signaling.KindTranscriptionStopped, c.cfg.MeetingID); err != nil {
			c.log.WithError(err).Debug("transcription-stopped not relayed")
		}
		c.stopCapture()
		return nil
	}

	if err := c.emit(signaling.KindTranscriptionStarted, c.cfg.MeetingID); err != nil {
		c.log.WithError(err).Debug("transcription-started not relayed")
	}
	return c.startCapture(ctx)
}

func (c *Controller) startCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.tornDown || c.transcribing || c.local == nil || c.cfg.SpeechURL == "" {
		c.mu.Unlock()
		return nil
	}
	c.transcribing = true
	local := c.local
	c.mu.Unlock()

	source, err := local.TapAudio()
	if err == nil {
		pipeline := &transcription.Pipeline{
			URL:    c.cfg.SpeechURL,
			Source: source,
			OnText: c.router.Recognized,
			OnError: func(err error) {
				c.notify("Erro de Transcrição", err)
			},
		}
		if err = pipeline.Start(ctx); err == nil {
			c.mu.Lock()
			if c.tornDown || !c.transcribing {
				c.mu.Unlock()
				pipeline.Stop()
				return nil
			}
			c.pipeline = pipeline
			c.mu.Unlock()
			return nil
		}
		source.Stop()
	}

	c.mu.Lock()
	c.transcribing = false
	c.mu.Unlock()
	if !errors.Is(err, transcription.ErrTranscriptionService) {
		err = fmt.Errorf("%w: %v", transcription.ErrTranscriptionService, err)
	}
	c.notify("Erro de Transcrição", err)
	return err
}

func (c *Controller) stopCapture() {
	c.mu.Lock()
	pipeline := c.pipeline
	c.pipeline = nil
	c.transcribing = false
	c.mu.Unlock()
	if pipeline != nil {
		pipeline.Stop()
	}
}

func (c *Controller) relaySegment(seg transcription.Segment) error {
	return c.emit(signaling.KindTranscriptionSegment, c.cfg.MeetingID, seg)
}

//====================================================================================================
// Accessors
//====================================================================================================

// State is the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ParticipantsCount is 2 while connected to the peer, 1 otherwise
func (c *Controller) ParticipantsCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participants
}

// Transcribing reports whether local audio is being transcribed
func (c *Controller) Transcribing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcribing
}

// Transcript is the transcript as this side knows it
func (c *Controller) Transcript() string {
	return c.transcript.String()
}

// Messages is the chat in arrival order
func (c *Controller) Messages() []gateway.ChatMessage {
	return c.queue.Messages()
}

func (c *Controller) isHost() bool {
	return c.cfg.Role == transcription.RoleHost
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.log.WithField("state", s).Info("Session state changed")
}

func (c *Controller) emit(kind signaling.Kind, args ...interface{}) error {
	c.mu.Lock()
	signaler := c.signaler
	c.mu.Unlock()
	if signaler == nil {
		return ErrSignalingClosed
	}
	return signaler.Emit(string(kind), args...)
}

func (c *Controller) notify(title string, err error) {
	if err != nil {
		c.log.WithError(err).Warn(title)
	}
	if c.deps.Notifier != nil {
		c.deps.Notifier.Notify(Notification{Title: title, Err: err})
	}
}
