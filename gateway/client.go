package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// MaxAttachmentSize is checked on the client before an upload is attempted
const MaxAttachmentSize = 10 * 1024 * 1024

var (
	// ErrPersistence wraps every failed save. Saves are not retried until
	// the next debounce cycle or lifecycle flush.
	ErrPersistence = errors.New("persistence failed")
	// ErrUploadRejected is returned for attachments refused by size or type
	ErrUploadRejected = errors.New("upload rejected")
	// ErrNotFound is returned when the API answers 404
	ErrNotFound = errors.New("not found")
)

// MeetingStatusEnded is the meeting status sent when a call ends
const MeetingStatusEnded = 1

// Meeting is the meeting as returned by the API
type Meeting struct {
	MeetingID     string `json:"meeting_id"`
	CalendarID    string `json:"calendar_id"`
	HostID        string `json:"host_id"`
	UserID        string `json:"user_id"`
	Status        int    `json:"status"`
	Transcription string `json:"transcription"`
	Link          string `json:"meeting_link"`
}

// IsEnded reports whether the meeting was already ended
func (m *Meeting) IsEnded() bool {
	return m.Status == MeetingStatusEnded
}

// Attachment is a file attached to a chat message
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// ChatMessage is a chat message as the client keeps it. Saved tracks
// whether the server already has it.
type ChatMessage struct {
	ID         string      `json:"id,omitempty"`
	IsHost     bool        `json:"isHost"`
	Sender     string      `json:"sender"`
	Text       string      `json:"text"`
	Timestamp  string      `json:"timestamp"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Saved      bool        `json:"isSaved"`
}

// SaveResult is the server's answer to a batch save
type SaveResult struct {
	SavedCount    int `json:"savedCount"`
	TotalReceived int `json:"totalReceived"`
}

// APIError is a non-2xx answer from the API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUploadRejected:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusRequestEntityTooLarge
	}
	return false
}

// Client talks to the meeting REST API mounted under BaseURL (e.g.
// https://api.example/v1).
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client with a bounded request timeout
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetMeeting loads a meeting by its identifier
func (c *Client) GetMeeting(ctx context.Context, meetingID string) (*Meeting, error) {
	var meeting Meeting
	if err := c.do(ctx, http.MethodGet, "/meeting/"+url.PathEscape(meetingID), nil, &meeting); err != nil {
		return nil, err
	}
	return &meeting, nil
}

// LoadMessages loads the chat history, oldest first, all marked saved
func (c *Client) LoadMessages(ctx context.Context, meetingID string) ([]ChatMessage, error) {
	var messages []ChatMessage
	if err := c.do(ctx, http.MethodGet, "/meeting/messages/"+url.PathEscape(meetingID), nil, &messages); err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].Saved = true
	}
	return messages, nil
}

// SaveTranscript overwrites the stored transcript
func (c *Client) SaveTranscript(ctx context.Context, meetingID, transcript string) error {
	return c.do(ctx, http.MethodPost, "/meeting/transcription", map[string]string{
		"meetingId":     meetingID,
		"transcription": transcript,
	}, nil)
}

// SaveMessages posts a batch of chat messages
func (c *Client) SaveMessages(ctx context.Context, meetingID string, messages []ChatMessage) (*SaveResult, error) {
	var result SaveResult
	err := c.do(ctx, http.MethodPost, "/meeting/messages", map[string]interface{}{
		"meetingId": meetingID,
		"messages":  messages,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateMeetingStatus sets the meeting status
func (c *Client) UpdateMeetingStatus(ctx context.Context, meetingID string, status int) error {
	return c.do(ctx, http.MethodPost, "/meeting/status", map[string]interface{}{
		"meetingId": meetingID,
		"status":    status,
	}, nil)
}

// UploadAttachment uploads a file for the meeting and returns it as an
// attachment ready to be sent in a chat message
func (c *Client) UploadAttachment(
	ctx context.Context,
	meetingID string,
	name string,
	mimeType string,
	data []byte,
) (*Attachment, error) {

	if len(data) > MaxAttachmentSize {
		return nil, fmt.Errorf("%w: file exceeds 10MB", ErrUploadRejected)
	}

	// Build the multipart body
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("meetingId", meetingID); err != nil {
		return nil, err
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/meeting/upload", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result struct {
		URL string `json:"url"`
	}
	if err := c.send(req, &result); err != nil {
		return nil, err
	}
	return &Attachment{
		Name: name,
		URL:  result.URL,
		Type: mimeType,
		Size: int64(len(data)),
	}, nil

}

func (c *Client) do(ctx context.Context, method, path string, in interface{}, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.send(req, out)
}

// send runs the request and unwraps the {"data": ...} / {"error": ...}
// envelope into out
func (c *Client) send(req *http.Request, out interface{}) error {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	res, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	decodeErr := json.NewDecoder(io.LimitReader(res.Body, 16<<20)).Decode(&envelope)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg := envelope.Error
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		return &APIError{StatusCode: res.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}
