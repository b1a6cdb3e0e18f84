package handlers

import (
	"net/http"

	"github.com/tariel-x/callsupport/internal/turn"

	"github.com/gin-gonic/gin"
)

// GetTURNConfig returns the ICE servers both parties use once a call is accepted.
func (h *Handlers) GetTURNConfig(c *gin.Context) {
	servers := []turn.ICEServer{}
	if h.turnServer != nil {
		servers = h.turnServer.ICEServers(c.Request.Host)
	}

	h.logger.Debug("turn config requested", "host", c.Request.Host, "servers", len(servers))
	c.JSON(http.StatusOK, gin.H{"iceServers": servers})
}
