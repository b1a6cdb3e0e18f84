package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tariel-x/callsupport/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 70 * time.Second
	wsPingPeriod   = 30 * time.Second
	wsSendBuffer   = 32
	wsMaxReadBytes = 4096
)

// HandleWebSocket streams NotificationEvents addressed to the authenticated
// user. The token comes from the token query parameter (browsers cannot set
// headers on a websocket handshake) or the Authorization header.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = c.GetHeader("Authorization")
	}
	userID, err := h.parseToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		userID: userID,
	}
	h.events.Add(client)
	h.logger.Debug("ws connected", "user_id", userID, "ip", c.ClientIP())

	go h.writePump(client)
	h.readPump(client)
}

// readPump only keeps the connection alive; the stream is server to client.
func (h *Handlers) readPump(client *wsClient) {
	defer func() {
		h.logger.Debug("ws disconnect", "user_id", client.userID)
		_ = client.conn.Close()
		h.events.Remove(client)
	}()

	client.conn.SetReadLimit(wsMaxReadBytes)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handlers) writePump(client *wsClient) {
	defer func() {
		_ = client.conn.Close()
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// notify delivers ev to the live streams of userID and reports how many
// streams accepted it. Delivery is best effort.
func (h *Handlers) notify(userID string, ev models.NotificationEvent) int {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event failed", "type", ev.Type, "error", err)
		return 0
	}
	n := h.events.SendTo(userID, payload)
	h.logger.Debug("event sent", "type", ev.Type, "room_id", ev.RoomID, "to", userID, "streams", n)
	return n
}
