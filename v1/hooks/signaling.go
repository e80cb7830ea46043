package hooks

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/godocompany/meetsession-api/signaling"
)

func SignalingStats(hub *signaling.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"data": hub.Stats(),
		})
	}
}
