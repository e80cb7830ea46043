package models

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"
)

// MeetingMessage is a chat message persisted for a meeting. Rows are
// created once and never updated or deleted.
type MeetingMessage struct {
	ID                uint64 `gorm:"primaryKey"`
	MeetingIdentifier string `gorm:"size:64;index;not null"`
	IsHost            bool
	Sender            string         `gorm:"size:255"`
	Text              string         `gorm:"type:text"`
	Timestamp         string         `gorm:"size:64"`
	AttachmentName    sql.NullString `gorm:"size:255"`
	AttachmentURL     sql.NullString
	AttachmentType    sql.NullString `gorm:"size:100"`
	AttachmentSize    sql.NullInt64
	DedupKey          string    `gorm:"size:64;uniqueIndex:idx_meeting_messages_dedup;not null"`
	CreatedDate       time.Time `gorm:"index"`
}

// MessageDedupKey hashes the natural key of a chat message. A missing
// attachment is distinguished from an attachment with an empty name.
func MessageDedupKey(meetingID, sender, text, timestamp string, attachmentName sql.NullString) string {
	h := sha256.New()
	for _, part := range []string{meetingID, sender, text, timestamp} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	if attachmentName.Valid {
		h.Write([]byte{1})
		h.Write([]byte(attachmentName.String))
	} else {
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
