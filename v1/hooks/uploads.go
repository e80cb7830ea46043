package hooks

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/godocompany/meetsession-api/services"
)

func MeetingUpload(uploadsService *services.UploadsService) gin.HandlerFunc {
	return func(c *gin.Context) {

		// Refuse oversized bodies before parsing the form
		maxSize := uploadsService.MaxSize
		if maxSize <= 0 {
			maxSize = services.DefaultMaxUploadSize
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+1<<20)

		// Get the file and the meeting it belongs to
		header, err := c.FormFile("file")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, services.ErrFileTooLarge)
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no file was sent"})
			return
		}
		meetingID := c.PostForm("meetingId")
		if meetingID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "meetingId is required"})
			return
		}

		// Store the file
		file, err := uploadsService.SaveUpload(c.Request.Context(), meetingID, header)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": gin.H{
				"url":  file.FileURL,
				"file": file,
			},
		})

	}
}

func MeetingUploadServe(uploadsService *services.UploadsService) gin.HandlerFunc {
	return func(c *gin.Context) {

		// Resolve the stored file
		path, contentType, err := uploadsService.OpenUpload(c.Param("filename"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition", `inline; filename="`+c.Param("filename")+`"`)
		c.File(path)

	}
}
