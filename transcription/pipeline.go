package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrTranscriptionService is reported when the speech service can't be
// reached or fails mid-stream. The call goes on without transcription.
var ErrTranscriptionService = errors.New("transcription service unavailable")

const (
	writeWait = 10 * time.Second

	eofFrame = `{"eof" : 1}`
)

// AudioSource is a tap on the local outgoing audio. Frames are mono float32
// samples at SampleRate; the channel closes once the source is stopped.
type AudioSource interface {
	SampleRate() int
	Frames() <-chan []float32
	Stop()
}

type configFrame struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
	} `json:"config"`
}

type recognitionResult struct {
	Text string `json:"text"`
}

// Pipeline streams local audio to the speech service and reports every
// finalized utterance to OnText
type Pipeline struct {
	URL     string
	Source  AudioSource
	OnText  func(text string)
	OnError func(err error)
	Dialer  *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	stopped bool
	done    chan struct{}
	log     *logrus.Entry
}

// Start connects to the speech service, sends the config frame and starts
// streaming. A pipeline runs once.
func (p *Pipeline) Start(ctx context.Context) error {
	p.log = logrus.WithField("component", "transcription")

	dialer := p.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, p.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTranscriptionService, err)
	}

	var cfg configFrame
	cfg.Config.SampleRate = TargetSampleRate
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(cfg); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrTranscriptionService, err)
	}

	p.mu.Lock()
	p.conn = conn
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.pumpAudio(NewResampler(p.Source.SampleRate(), TargetSampleRate))
	go p.readResults()

	p.log.WithField("url", p.URL).Info("transcription started")
	return nil
}

// Stop sends the end-of-stream frame, closes the connection and stops the
// audio source. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	conn := p.conn
	if conn != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(eofFrame))
		conn.Close()
	}
	if p.done != nil {
		close(p.done)
	}
	p.mu.Unlock()

	if p.Source != nil {
		p.Source.Stop()
	}
	if p.log != nil {
		p.log.Info("transcription stopped")
	}
}

func (p *Pipeline) pumpAudio(resampler *Resampler) {
	frames := p.Source.Frames()
	for {
		select {
		case <-p.done:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			pcm := EncodePCM(resampler.Resample(frame))
			if len(pcm) == 0 {
				continue
			}

			p.mu.Lock()
			if p.stopped {
				p.mu.Unlock()
				return
			}
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := p.conn.WriteMessage(websocket.BinaryMessage, pcm)
			p.mu.Unlock()
			if err != nil {
				p.fail(err)
				return
			}
		}
	}
}

func (p *Pipeline) readResults() {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.fail(err)
			return
		}

		var result recognitionResult
		if err := json.Unmarshal(data, &result); err != nil {
			p.log.WithError(err).Debug("unreadable recognition result")
			continue
		}
		if result.Text != "" && p.OnText != nil {
			p.OnText(result.Text)
		}
	}
}

// fail reports a stream error unless the pipeline is being stopped
func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}

	p.log.WithError(err).Warn("transcription stream failed")
	if p.OnError != nil {
		p.OnError(fmt.Errorf("%w: %v", ErrTranscriptionService, err))
	}
}
