package models

import "time"

// MeetingFile is an attachment uploaded during a meeting
type MeetingFile struct {
	ID                uint64    `gorm:"primaryKey" json:"-"`
	MeetingIdentifier string    `gorm:"size:64;index;not null" json:"meeting_id"`
	Filename          string    `gorm:"size:255;not null" json:"filename"`
	OriginalName      string    `gorm:"size:255;not null" json:"original_name"`
	FilePath          string    `gorm:"type:text;not null" json:"-"`
	FileURL           string    `gorm:"type:text;not null" json:"url"`
	FileSize          int64     `json:"size"`
	MimeType          string    `gorm:"size:100;not null" json:"mime_type"`
	UploadedDate      time.Time `gorm:"index" json:"uploaded_at"`
}
