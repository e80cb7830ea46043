package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/godocompany/meetsession-api/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DedupMode selects how a batch of chat messages is deduplicated on write
type DedupMode string

const (
	// DedupAtomic inserts each message with a single conditional insert on
	// the unique natural-key hash
	DedupAtomic DedupMode = "atomic"
	// DedupCheckThenInsert looks the message up and inserts it when absent.
	// Two overlapping flushes can both pass the lookup; the unique index on
	// dedup_key then rejects the second insert, so duplicate rows only
	// appear in a store without that index.
	DedupCheckThenInsert DedupMode = "check-then-insert"
)

// ParseDedupMode parses a configured mode, defaulting to DedupAtomic
func ParseDedupMode(s string) DedupMode {
	if DedupMode(s) == DedupCheckThenInsert {
		return DedupCheckThenInsert
	}
	return DedupAtomic
}

// ChatAttachment is the attachment of an incoming or stored chat message
type ChatAttachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// ChatMessageInput is one chat message as posted by a client
type ChatMessageInput struct {
	IsHost     bool            `json:"isHost"`
	Sender     string          `json:"sender"`
	Text       string          `json:"text"`
	Timestamp  string          `json:"timestamp"`
	Attachment *ChatAttachment `json:"attachment"`
}

// SaveBatchResult reports how many messages of a batch were new
type SaveBatchResult struct {
	SavedCount    int `json:"savedCount"`
	TotalReceived int `json:"totalReceived"`
}

// MessageStore is the storage the messages service writes through
type MessageStore interface {
	Exists(ctx context.Context, dedupKey string) (bool, error)
	Insert(ctx context.Context, msg *models.MeetingMessage) error
	InsertIfAbsent(ctx context.Context, msg *models.MeetingMessage) (bool, error)
	ListByMeeting(ctx context.Context, meetingIdentifier string) ([]*models.MeetingMessage, error)
}

// MessagesService persists meeting chat messages idempotently
type MessagesService struct {
	Store MessageStore
	Mode  DedupMode
}

// SaveBatch stores every message of the batch that isn't stored yet
func (s *MessagesService) SaveBatch(
	ctx context.Context,
	meetingIdentifier string,
	messages []ChatMessageInput,
) (*SaveBatchResult, error) {

	log := logrus.WithFields(logrus.Fields{
		"meeting_id": meetingIdentifier,
		"batch_size": len(messages),
		"dedup_mode": s.Mode,
	})

	result := &SaveBatchResult{TotalReceived: len(messages)}
	for i := range messages {
		row := newMessageRow(meetingIdentifier, &messages[i])

		saved, err := s.saveOne(ctx, row)
		if err != nil {
			log.WithError(err).Error("Failed to save chat message")
			return result, err
		}
		if saved {
			result.SavedCount++
		}
	}

	log.WithField("saved_count", result.SavedCount).Debug("Chat batch saved")
	return result, nil

}

func (s *MessagesService) saveOne(ctx context.Context, row *models.MeetingMessage) (bool, error) {
	if s.Mode != DedupCheckThenInsert {
		return s.Store.InsertIfAbsent(ctx, row)
	}

	// Look the message up, then insert it. Not atomic.
	exists, err := s.Store.Exists(ctx, row.DedupKey)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := s.Store.Insert(ctx, row); err != nil {
		// Lost the race to a concurrent flush
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListMessages gets the whole chat history of a meeting in creation order
func (s *MessagesService) ListMessages(ctx context.Context, meetingIdentifier string) ([]*models.MeetingMessage, error) {
	return s.Store.ListByMeeting(ctx, meetingIdentifier)
}

func newMessageRow(meetingIdentifier string, msg *ChatMessageInput) *models.MeetingMessage {
	row := &models.MeetingMessage{
		MeetingIdentifier: meetingIdentifier,
		IsHost:            msg.IsHost,
		Sender:            msg.Sender,
		Text:              msg.Text,
		Timestamp:         msg.Timestamp,
		CreatedDate:       time.Now(),
	}
	if msg.Attachment != nil {
		row.AttachmentName = sql.NullString{Valid: true, String: msg.Attachment.Name}
		row.AttachmentURL = sql.NullString{Valid: true, String: msg.Attachment.URL}
		row.AttachmentType = sql.NullString{Valid: true, String: msg.Attachment.Type}
		row.AttachmentSize = sql.NullInt64{Valid: true, Int64: msg.Attachment.Size}
	}
	row.DedupKey = models.MessageDedupKey(
		meetingIdentifier,
		row.Sender,
		row.Text,
		row.Timestamp,
		row.AttachmentName,
	)
	return row
}

//====================================================================================================
// Gorm-backed message store
//====================================================================================================

// GormMessageStore stores chat messages in the relational database
type GormMessageStore struct {
	DB *gorm.DB
}

// Exists determines if a message with the natural-key hash is stored
func (s *GormMessageStore) Exists(ctx context.Context, dedupKey string) (bool, error) {
	var count int64
	err := s.DB.
		WithContext(ctx).
		Model(&models.MeetingMessage{}).
		Where("dedup_key = ?", dedupKey).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Insert stores the message unconditionally
func (s *GormMessageStore) Insert(ctx context.Context, msg *models.MeetingMessage) error {
	return s.DB.WithContext(ctx).Create(msg).Error
}

// InsertIfAbsent stores the message unless one with the same natural-key
// hash is already stored, in one statement
func (s *GormMessageStore) InsertIfAbsent(ctx context.Context, msg *models.MeetingMessage) (bool, error) {
	res := s.DB.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}},
			DoNothing: true,
		}).
		Create(msg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListByMeeting gets all messages of a meeting ordered by creation date
func (s *GormMessageStore) ListByMeeting(ctx context.Context, meetingIdentifier string) ([]*models.MeetingMessage, error) {
	var messages []*models.MeetingMessage
	err := s.DB.
		WithContext(ctx).
		Where("meeting_identifier = ?", meetingIdentifier).
		Order("created_date ASC").
		Order("id ASC").
		Find(&messages).
		Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}
