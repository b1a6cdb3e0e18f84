package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tariel-x/callsupport/internal/models"

	"github.com/gorilla/websocket"
)

const wsCloseWait = time.Second

var (
	ErrChannelClosed = errors.New("notification channel closed")
	ErrUnauthorized  = errors.New("notification channel: unauthorized")
)

// WSChannel receives the user's notification events from the call-support
// server over a websocket. It is owned by whoever opened it; nothing is shared
// between two WSChannel values.
type WSChannel struct {
	endpoint string
	dialer   *websocket.Dialer
	logger   *slog.Logger
	hub      *Hub

	mu     sync.Mutex
	conn   *websocket.Conn
	done   chan struct{}
	closed bool
}

// NewWSChannel builds a channel for the server at baseURL (http or https).
// token is sent as the bearer credential of the stream.
func NewWSChannel(baseURL, token string, logger *slog.Logger) (*WSChannel, error) {
	endpoint, err := streamURL(baseURL, token)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WSChannel{
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		logger: logger,
		hub:    NewHub(),
		done:   make(chan struct{}),
	}, nil
}

func streamURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += "/api/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open dials the server and starts dispatching events to subscribers.
func (c *WSChannel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	if c.conn != nil {
		return nil
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, http.Header{})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("open notification channel: %w", ErrUnauthorized)
		}
		return fmt.Errorf("open notification channel: %w", err)
	}

	c.conn = conn
	go c.readLoop(conn)
	c.logger.Debug("notification channel open")
	return nil
}

func (c *WSChannel) Subscribe(buffer int) *Subscription {
	return c.hub.Subscribe(buffer)
}

// Done is closed once the connection is gone, whether by Close or by the server.
func (c *WSChannel) Done() <-chan struct{} {
	return c.done
}

func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.hub.Close()
		close(c.done)
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseWait))
	err := conn.Close()
	<-c.done
	return err
}

func (c *WSChannel) readLoop(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
		c.hub.Close()
		close(c.done)
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debug("notification channel read ended", "error", err)
			return
		}

		var ev models.NotificationEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			c.logger.Debug("notification channel bad json", "error", err)
			continue
		}
		if ev.Type == "" {
			continue
		}

		n := c.hub.Publish(ev)
		c.logger.Debug("notification received", "type", ev.Type, "room_id", ev.RoomID, "subscribers", n)
	}
}
