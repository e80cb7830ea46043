package transcription

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Segment is one recognized utterance as relayed between participants
type Segment struct {
	Text       string `json:"text"`
	SenderRole string `json:"senderRole"`
	Timestamp  int64  `json:"timestamp"`
}

// Scheduler receives the transcript after every change, e.g. a debounced saver
type Scheduler interface {
	Schedule(transcript string)
}

// Router sends recognized speech where it belongs. The host appends to the
// transcript and schedules a save; the guest relays the segment so the host
// stays the only writer of the transcript.
type Router struct {
	Role       Role
	Transcript *Transcript
	Saver      Scheduler
	Relay      func(Segment) error
	Now        func() time.Time
	OnChange   func(transcript string)
}

// Recognized handles an utterance recognized from local audio
func (r *Router) Recognized(text string) {
	if text == "" {
		return
	}
	now := r.now()

	if r.Role != RoleHost {
		seg := Segment{
			Text:       text,
			SenderRole: string(RoleGuest),
			Timestamp:  now.UnixMilli(),
		}
		if r.Relay == nil {
			return
		}
		if err := r.Relay(seg); err != nil {
			logrus.WithError(err).Warn("Failed to relay transcription segment")
		}
		return
	}

	r.append(FormatLine(RoleHost, text, now))
}

// Relayed handles a segment received from the other participant. Only the
// host keeps guest speech.
func (r *Router) Relayed(seg Segment) {
	if r.Role != RoleHost || ParseRole(seg.SenderRole) != RoleGuest || seg.Text == "" {
		return
	}
	at := r.now()
	if seg.Timestamp > 0 {
		at = time.UnixMilli(seg.Timestamp)
	}
	r.append(FormatLine(RoleGuest, seg.Text, at))
}

func (r *Router) append(line string) {
	if r.Transcript == nil {
		return
	}
	transcript := r.Transcript.Append(line)
	if r.OnChange != nil {
		r.OnChange(transcript)
	}
	if r.Saver != nil {
		r.Saver.Schedule(transcript)
	}
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
