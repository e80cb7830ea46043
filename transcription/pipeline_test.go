package transcription

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSource struct {
	rate   int
	frames chan []float32
	once   sync.Once
}

func newChanSource(rate int) *chanSource {
	return &chanSource{rate: rate, frames: make(chan []float32, 4)}
}

func (s *chanSource) SampleRate() int          { return s.rate }
func (s *chanSource) Frames() <-chan []float32 { return s.frames }
func (s *chanSource) Stop()                    { s.once.Do(func() { close(s.frames) }) }

// fakeSpeechServer answers every audio frame with one finalized utterance
type fakeSpeechServer struct {
	mu       sync.Mutex
	config   string
	binary   int
	gotEOF   bool
	upgrader websocket.Upgrader
}

func (f *fakeSpeechServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f.mu.Lock()
		switch {
		case kind == websocket.BinaryMessage:
			f.binary++
			f.mu.Unlock()
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"partial":"olá"}`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"olá mundo"}`))
			continue
		case f.config == "":
			f.config = string(data)
		case string(data) == `{"eof" : 1}`:
			f.gotEOF = true
		}
		f.mu.Unlock()
	}
}

func (f *fakeSpeechServer) snapshot() (string, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config, f.binary, f.gotEOF
}

func TestPipeline_StreamsAndReportsText(t *testing.T) {
	speech := &fakeSpeechServer{}
	srv := httptest.NewServer(speech)
	defer srv.Close()

	texts := make(chan string, 4)
	source := newChanSource(48000)
	p := &Pipeline{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Source: source,
		OnText: func(text string) { texts <- text },
	}
	require.NoError(t, p.Start(context.Background()))

	source.frames <- make([]float32, 4096)

	select {
	case text := <-texts:
		assert.Equal(t, "olá mundo", text)
	case <-time.After(2 * time.Second):
		t.Fatal("no recognized text")
	}

	p.Stop()
	p.Stop()

	assert.Eventually(t, func() bool {
		_, _, eof := speech.snapshot()
		return eof
	}, 2*time.Second, 10*time.Millisecond)
	config, frames, _ := speech.snapshot()
	assert.JSONEq(t, `{"config":{"sample_rate":16000}}`, config)
	assert.Equal(t, 1, frames)
}

func TestPipeline_UnreachableService(t *testing.T) {
	p := &Pipeline{URL: "ws://127.0.0.1:1/", Source: newChanSource(16000)}
	err := p.Start(context.Background())
	assert.ErrorIs(t, err, ErrTranscriptionService)
}
