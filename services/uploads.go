package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/godocompany/meetsession-api/models"
	"github.com/godocompany/meetsession-api/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrUploadRejected is the parent of every reason an upload is refused
	ErrUploadRejected = errors.New("upload rejected")
	ErrFileTooLarge   = fmt.Errorf("%w: file exceeds the size limit", ErrUploadRejected)
	ErrMimeNotAllowed = fmt.Errorf("%w: file type not allowed", ErrUploadRejected)
	ErrFileNotFound   = errors.New("file not found")
)

// DefaultMaxUploadSize is the largest attachment accepted
const DefaultMaxUploadSize = 10 * 1024 * 1024

// AllowedUploadMimes is the allow-list of attachment types
var AllowedUploadMimes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
}

var extensionMimes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
}

// UploadsService stores meeting attachments on local disk
type UploadsService struct {
	DB              *gorm.DB
	MeetingsService *MeetingsService
	Dir             string
	BaseURL         string
	MaxSize         int64
}

// CheckUpload validates the size and type of an upload before anything is written
func (s *UploadsService) CheckUpload(size int64, mimeType string) error {
	maxSize := s.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	if size > maxSize {
		return ErrFileTooLarge
	}
	if !AllowedUploadMimes[mimeType] {
		return ErrMimeNotAllowed
	}
	return nil
}

// SaveUpload stores a multipart file for a meeting and records it
func (s *UploadsService) SaveUpload(
	ctx context.Context,
	meetingIdentifier string,
	header *multipart.FileHeader,
) (*models.MeetingFile, error) {

	// Validate before touching the disk
	mimeType := header.Header.Get("Content-Type")
	if err := s.CheckUpload(header.Size, mimeType); err != nil {
		return nil, err
	}

	// Make sure the meeting exists
	meeting, err := s.MeetingsService.GetMeetingByIdentifier(ctx, meetingIdentifier)
	if err != nil {
		return nil, err
	}
	if meeting == nil {
		return nil, ErrMeetingNotFound
	}

	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	// Write the file under a generated unique name
	filename := fmt.Sprintf(
		"meeting-%d-%s-%s",
		time.Now().UnixMilli(),
		uuid.NewString()[:8],
		utils.SanitizeFileName(header.Filename),
	)
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(s.Dir, filename)
	if err := writeFile(path, src); err != nil {
		os.Remove(path)
		return nil, err
	}

	// Record the file
	file := models.MeetingFile{
		MeetingIdentifier: meetingIdentifier,
		Filename:          filename,
		OriginalName:      header.Filename,
		FilePath:          path,
		FileURL:           fmt.Sprintf("%s/uploads/meetings/%s", strings.TrimRight(s.BaseURL, "/"), filename),
		FileSize:          header.Size,
		MimeType:          mimeType,
		UploadedDate:      time.Now(),
	}
	if err := s.DB.WithContext(ctx).Create(&file).Error; err != nil {
		os.Remove(path)
		return nil, err
	}
	return &file, nil

}

// OpenUpload resolves a stored file name to its path and content type
func (s *UploadsService) OpenUpload(filename string) (string, string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", "", ErrFileNotFound
	}
	path := filepath.Join(s.Dir, filename)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return "", "", ErrFileNotFound
	}
	contentType, ok := extensionMimes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		contentType = "application/octet-stream"
	}
	return path, contentType, nil
}

func writeFile(path string, src io.Reader) error {
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
