package hooks

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/godocompany/meetsession-api/models"
	"github.com/godocompany/meetsession-api/services"
)

type MeetingMessagesSaveReq struct {
	MeetingID string                      `json:"meetingId" binding:"required"`
	Messages  []services.ChatMessageInput `json:"messages"`
}

func MeetingMessagesSave(messagesService *services.MessagesService) gin.HandlerFunc {
	return func(c *gin.Context) {

		// Get the request body
		var req MeetingMessagesSaveReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Store the messages that aren't stored yet
		result, err := messagesService.SaveBatch(c.Request.Context(), req.MeetingID, req.Messages)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": result,
		})

	}
}

func MeetingMessagesList(messagesService *services.MessagesService) gin.HandlerFunc {
	return func(c *gin.Context) {

		// Get the whole history of the meeting
		rows, err := messagesService.ListMessages(c.Request.Context(), c.Param("meetingId"))
		if err != nil {
			respondError(c, err)
			return
		}

		// Serialize the messages in the shape the client composes them
		messages := make([]gin.H, 0, len(rows))
		for _, row := range rows {
			messages = append(messages, serializeMessage(row))
		}

		c.JSON(http.StatusOK, gin.H{
			"data": messages,
		})

	}
}

func serializeMessage(row *models.MeetingMessage) gin.H {
	msg := gin.H{
		"id":        strconv.FormatUint(row.ID, 10),
		"isHost":    row.IsHost,
		"sender":    row.Sender,
		"text":      row.Text,
		"timestamp": row.Timestamp,
		"isSaved":   true,
	}
	if row.AttachmentName.Valid {
		msg["attachment"] = gin.H{
			"name": row.AttachmentName.String,
			"url":  row.AttachmentURL.String,
			"type": row.AttachmentType.String,
			"size": row.AttachmentSize.Int64,
		}
	}
	return msg
}
