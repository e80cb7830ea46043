package hooks

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/godocompany/meetsession-api/models"
	"github.com/godocompany/meetsession-api/services"
)

type MeetingCreateReq struct {
	CalendarID string `json:"calendarId" binding:"required"`
	HostID     string `json:"hostId" binding:"required"`
	UserID     string `json:"userId"`
}

func MeetingCreate(meetingsService *services.MeetingsService) gin.HandlerFunc {
	return func(c *gin.Context) {

		// Get the request body
		var req MeetingCreateReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Create the meeting for the calendar event
		meeting, err := meetingsService.CreateMeeting(
			c.Request.Context(),
			req.CalendarID,
			req.HostID,
			req.UserID,
		)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"data": meeting,
		})

	}
}

func MeetingGet(meetingsService *services.MeetingsService) gin.HandlerFunc {
	return func(c *gin.Context) {

		// Get the meeting with the identifier
		meeting, err := meetingsService.GetMeetingByIdentifier(c.Request.Context(), c.Param("meetingId"))
		if err != nil {
			respondError(c, err)
			return
		}
		if meeting == nil {
			respondError(c, services.ErrMeetingNotFound)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": meeting,
		})

	}
}

func MeetingGetByCalendar(meetingsService *services.MeetingsService) gin.HandlerFunc {
	return func(c *gin.Context) {

		// Get the meeting started for the calendar event
		meeting, err := meetingsService.GetMeetingByCalendarEvent(c.Request.Context(), c.Param("calendarId"))
		if err != nil {
			respondError(c, err)
			return
		}
		if meeting == nil {
			respondError(c, services.ErrMeetingNotFound)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": meeting,
		})

	}
}

type MeetingStatusReq struct {
	MeetingID string                `json:"meetingId" binding:"required"`
	Status    *models.MeetingStatus `json:"status" binding:"required"`
}

func MeetingStatus(meetingsService *services.MeetingsService) gin.HandlerFunc {
	return func(c *gin.Context) {

		// Get the request body
		var req MeetingStatusReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Update the status of the meeting
		if err := meetingsService.UpdateStatus(c.Request.Context(), req.MeetingID, *req.Status); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": gin.H{},
		})

	}
}

type MeetingTranscriptionReq struct {
	MeetingID     string `json:"meetingId" binding:"required"`
	Transcription string `json:"transcription"`
}

func MeetingTranscription(meetingsService *services.MeetingsService) gin.HandlerFunc {
	return func(c *gin.Context) {

		// Get the request body
		var req MeetingTranscriptionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Overwrite the stored transcript
		if err := meetingsService.UpdateTranscript(c.Request.Context(), req.MeetingID, req.Transcription); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": gin.H{},
		})

	}
}
