package services

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFileHeader(t *testing.T, filename, mimeType string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["file"][0]
}

func newUploadsService(t *testing.T) (*UploadsService, string) {
	db := openTestDB(t)
	meetings := &MeetingsService{DB: db}
	meeting, err := meetings.CreateMeeting(context.Background(), "cal", "h", "g")
	require.NoError(t, err)
	return &UploadsService{
		DB:              db,
		MeetingsService: meetings,
		Dir:             t.TempDir(),
		BaseURL:         "https://app.example",
		MaxSize:         DefaultMaxUploadSize,
	}, meeting.Identifier
}

func TestUploadsService_SaveUpload(t *testing.T) {
	svc, meetingID := newUploadsService(t)

	header := buildFileHeader(t, "exame de sangue.pdf", "application/pdf", []byte("%PDF-1.4"))
	file, err := svc.SaveUpload(context.Background(), meetingID, header)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(file.Filename, "meeting-"))
	assert.True(t, strings.HasSuffix(file.Filename, "-exame_de_sangue.pdf"))
	assert.Equal(t, "https://app.example/uploads/meetings/"+file.Filename, file.FileURL)
	assert.Equal(t, "exame de sangue.pdf", file.OriginalName)

	data, err := os.ReadFile(file.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	path, contentType, err := svc.OpenUpload(file.Filename)
	require.NoError(t, err)
	assert.Equal(t, file.FilePath, path)
	assert.Equal(t, "application/pdf", contentType)
}

func TestUploadsService_Rejections(t *testing.T) {
	svc, meetingID := newUploadsService(t)
	ctx := context.Background()

	_, err := svc.SaveUpload(ctx, meetingID, buildFileHeader(t, "run.sh", "application/x-sh", []byte("#!")))
	assert.ErrorIs(t, err, ErrMimeNotAllowed)
	assert.ErrorIs(t, err, ErrUploadRejected)

	svc.MaxSize = 4
	_, err = svc.SaveUpload(ctx, meetingID, buildFileHeader(t, "a.txt", "text/plain", []byte("12345")))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	svc.MaxSize = DefaultMaxUploadSize
	_, err = svc.SaveUpload(ctx, "missing", buildFileHeader(t, "a.txt", "text/plain", []byte("1")))
	assert.ErrorIs(t, err, ErrMeetingNotFound)

	// Nothing was left behind
	entries, err := os.ReadDir(svc.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadsService_OpenUpload_RejectsTraversal(t *testing.T) {
	svc, _ := newUploadsService(t)
	for _, name := range []string{"", "../secret", ".env", "a/b.txt"} {
		_, _, err := svc.OpenUpload(name)
		assert.ErrorIs(t, err, ErrFileNotFound, name)
	}
}
