package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godocompany/meetsession-api/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrMeetingNotFound is returned when no meeting has the requested id
	ErrMeetingNotFound = errors.New("meeting not found")
	// ErrInvalidStatus is returned for a status change other than Scheduled to Ended
	ErrInvalidStatus = errors.New("invalid meeting status")
)

// MeetingsService manages the durable meeting record
type MeetingsService struct {
	DB          *gorm.DB
	FrontendURL string
}

// CreateMeeting creates a scheduled meeting for a calendar event
func (s *MeetingsService) CreateMeeting(
	ctx context.Context,
	calendarEventID string,
	hostID string,
	guestUserID string,
) (*models.Meeting, error) {

	// Generate the room identifier and the link guests open
	identifier := uuid.NewString()
	meeting := models.Meeting{
		Identifier:      identifier,
		CalendarEventID: calendarEventID,
		HostID:          hostID,
		GuestUserID:     guestUserID,
		Status:          models.MeetingStatusScheduled,
		Link:            fmt.Sprintf("%s/meet/%s", strings.TrimRight(s.FrontendURL, "/"), identifier),
		CreatedDate:     time.Now(),
	}
	if err := s.DB.WithContext(ctx).Create(&meeting).Error; err != nil {
		return nil, err
	}
	return &meeting, nil

}

// GetMeetingByIdentifier gets the meeting with the provided identifier
func (s *MeetingsService) GetMeetingByIdentifier(ctx context.Context, identifier string) (*models.Meeting, error) {
	var meeting models.Meeting
	err := s.DB.
		WithContext(ctx).
		Where("identifier = ?", identifier).
		First(&meeting).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &meeting, nil
}

// GetMeetingByCalendarEvent gets the meeting started for a calendar event
func (s *MeetingsService) GetMeetingByCalendarEvent(ctx context.Context, calendarEventID string) (*models.Meeting, error) {
	var meeting models.Meeting
	err := s.DB.
		WithContext(ctx).
		Where("calendar_event_id = ?", calendarEventID).
		Order("created_date DESC").
		First(&meeting).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &meeting, nil
}

// UpdateStatus moves a meeting to the given status. Only Scheduled to Ended
// is a real transition; ending an ended meeting again changes nothing.
func (s *MeetingsService) UpdateStatus(ctx context.Context, identifier string, status models.MeetingStatus) error {

	// Make sure the meeting exists
	meeting, err := s.GetMeetingByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if meeting == nil {
		return ErrMeetingNotFound
	}

	switch {
	case status == meeting.Status:
		return nil
	case status != models.MeetingStatusEnded:
		return ErrInvalidStatus
	}

	// The status condition keeps a racing second end request from rewriting the end date
	return s.DB.
		WithContext(ctx).
		Model(&models.Meeting{}).
		Where("identifier = ?", identifier).
		Where("status = ?", models.MeetingStatusScheduled).
		Updates(map[string]interface{}{
			"status":     models.MeetingStatusEnded,
			"ended_date": sql.NullTime{Valid: true, Time: time.Now()},
		}).
		Error

}

// UpdateTranscript overwrites the transcript of a meeting
func (s *MeetingsService) UpdateTranscript(ctx context.Context, identifier, transcript string) error {

	// Make sure the meeting exists
	meeting, err := s.GetMeetingByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if meeting == nil {
		return ErrMeetingNotFound
	}

	// Last writer wins
	return s.DB.
		WithContext(ctx).
		Model(&models.Meeting{}).
		Where("id = ?", meeting.ID).
		Update("transcript", transcript).
		Error

}
