package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TranscriptDebounce is the quiet period before a transcript is saved
const TranscriptDebounce = 5 * time.Second

// saveTimeout bounds a single save request
const saveTimeout = 15 * time.Second

// TranscriptStore is where transcripts are written
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, meetingID, transcript string) error
}

// TranscriptSaver writes the full transcript after it stops changing for
// TranscriptDebounce. Every write overwrites the last one.
type TranscriptSaver struct {
	store     TranscriptStore
	meetingID string
	debouncer *Debouncer
	onError   func(error)
	log       *logrus.Entry

	mu     sync.Mutex
	latest string
}

// NewTranscriptSaver creates a saver. onError receives ErrPersistence
// wrapped failures and may be nil.
func NewTranscriptSaver(store TranscriptStore, meetingID string, clock Clock, onError func(error)) *TranscriptSaver {
	return &TranscriptSaver{
		store:     store,
		meetingID: meetingID,
		debouncer: NewDebouncer(TranscriptDebounce, clock),
		onError:   onError,
		log: logrus.WithFields(logrus.Fields{
			"component":  "transcript_saver",
			"meeting_id": meetingID,
		}),
	}
}

// Schedule records the current transcript and rearms the save timer
func (s *TranscriptSaver) Schedule(transcript string) {
	s.mu.Lock()
	s.latest = transcript
	s.mu.Unlock()
	s.debouncer.Trigger(s.save)
}

// Flush saves now if a save is pending
func (s *TranscriptSaver) Flush() {
	s.debouncer.Flush()
}

// FlushNow cancels the timer and attempts a save regardless, as done when
// the page is hidden or unloaded
func (s *TranscriptSaver) FlushNow() {
	s.debouncer.Cancel()
	s.save()
}

// Stop drops any pending save
func (s *TranscriptSaver) Stop() {
	s.debouncer.Cancel()
}

func (s *TranscriptSaver) save() {
	s.mu.Lock()
	transcript := s.latest
	s.mu.Unlock()

	// Nothing worth writing yet
	if strings.TrimSpace(transcript) == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.store.SaveTranscript(ctx, s.meetingID, transcript); err != nil {
		s.log.WithError(err).Warn("Failed to save transcript")
		if s.onError != nil {
			s.onError(fmt.Errorf("%w: save transcript: %v", ErrPersistence, err))
		}
		return
	}
	s.log.WithField("length", len(transcript)).Debug("Transcript saved")
}
