package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type clientConfigResponse struct {
	Debug          bool    `json:"debug"`
	RoomTTLSeconds float64 `json:"roomTtlSeconds"`
}

func (h *Handlers) GetClientConfig(c *gin.Context) {
	resp := clientConfigResponse{}
	if h.config != nil {
		resp.Debug = h.config.LogLevel == "debug"
		resp.RoomTTLSeconds = h.config.RoomTTL.Seconds()
	}
	c.JSON(http.StatusOK, resp)
}
