package models

import (
	"database/sql"
	"time"
)

// MeetingStatus is the lifecycle state of a meeting
type MeetingStatus int

const (
	MeetingStatusScheduled MeetingStatus = 0
	MeetingStatusEnded     MeetingStatus = 1
)

// Meeting is a single video session between a professional (the host) and
// a guest. Its Identifier doubles as the signaling room id.
type Meeting struct {
	ID              uint64        `gorm:"primaryKey" json:"-"`
	Identifier      string        `gorm:"size:64;uniqueIndex;not null" json:"meeting_id"`
	CalendarEventID string        `gorm:"size:64;index" json:"calendar_id"`
	HostID          string        `gorm:"size:64" json:"host_id"`
	GuestUserID     string        `gorm:"size:64" json:"user_id"`
	Status          MeetingStatus `json:"status"`
	Transcript      string        `gorm:"type:text" json:"transcription"`
	Link            string        `json:"meeting_link"`
	CreatedDate     time.Time     `json:"created_at"`
	EndedDate       sql.NullTime  `json:"-"`
}

// IsEnded determines if the meeting can no longer be joined
func (m *Meeting) IsEnded() bool {
	return m.Status == MeetingStatusEnded
}
