package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/godocompany/meetsession-api/services"
	"github.com/godocompany/meetsession-api/signaling"
	"github.com/godocompany/meetsession-api/v1/hooks"
	"github.com/godocompany/meetsession-api/v1/middleware"
)

// Server is the API server instance
type Server struct {
	MeetingsService *services.MeetingsService
	MessagesService *services.MessagesService
	UploadsService  *services.UploadsService
	Hub             *signaling.Hub
}

// Setup mounts the API server to the given group
func (s *Server) Setup(g *gin.RouterGroup) {

	// Register middleware for all routes
	g.Use(middleware.RequestLogger())

	// Register the meeting routes
	s.setupMeetingHooks(g)

	// Register operator routes
	g.GET("/signaling/stats", hooks.SignalingStats(s.Hub))

}

// SetupUploads mounts the route serving stored meeting attachments
func (s *Server) SetupUploads(r gin.IRoutes) {
	r.GET("/uploads/meetings/:filename", hooks.MeetingUploadServe(s.UploadsService))
}

// setupMeetingHooks mounts the meeting, transcript and chat routes
func (s *Server) setupMeetingHooks(g *gin.RouterGroup) {

	g.POST("/meeting/create", hooks.MeetingCreate(s.MeetingsService))
	g.POST("/meeting/status", hooks.MeetingStatus(s.MeetingsService))
	g.POST("/meeting/transcription", hooks.MeetingTranscription(s.MeetingsService))
	g.POST("/meeting/upload", hooks.MeetingUpload(s.UploadsService))
	g.POST("/meeting/messages", hooks.MeetingMessagesSave(s.MessagesService))
	g.GET("/meeting/messages/:meetingId", hooks.MeetingMessagesList(s.MessagesService))
	g.GET("/meeting/calendar/:calendarId", hooks.MeetingGetByCalendar(s.MeetingsService))
	g.GET("/meeting/:meetingId", hooks.MeetingGet(s.MeetingsService))

}
