package transcription

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Role is which side of the call produced speech
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// ParseRole maps anything that isn't exactly "host" to guest
func ParseRole(s string) Role {
	if s == string(RoleHost) {
		return RoleHost
	}
	return RoleGuest
}

// Label is the speaker label written in the transcript
func (r Role) Label() string {
	if r == RoleHost {
		return "Profissional"
	}
	return "Paciente"
}

// FormatLine renders one transcript line
func FormatLine(role Role, text string, at time.Time) string {
	return fmt.Sprintf("[%s] [%s]: %s\n", at.Format("15:04:05"), role.Label(), strings.TrimSpace(text))
}

// Transcript is the durable meeting transcript held by the host
type Transcript struct {
	mu   sync.Mutex
	text string
}

// NewTranscript starts from a previously stored transcript
func NewTranscript(initial string) *Transcript {
	return &Transcript{text: initial}
}

// Append adds a line and returns the whole transcript
func (t *Transcript) Append(line string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text += line
	return t.text
}

// Set replaces the transcript with a manual edit
func (t *Transcript) Set(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = text
}

func (t *Transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}
