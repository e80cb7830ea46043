package hooks

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/godocompany/meetsession-api/services"
	"github.com/sirupsen/logrus"
)

// respondError writes the error envelope with a status matching the error
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUploadRejected), errors.Is(err, services.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrMeetingNotFound), errors.Is(err, services.ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logrus.WithField("path", c.FullPath()).WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
