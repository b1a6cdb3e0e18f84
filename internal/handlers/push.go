package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tariel-x/callsupport/internal/config"
	"github.com/tariel-x/callsupport/internal/models"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Pusher delivers an out-of-band notification to every device of a user.
type Pusher interface {
	Push(userID, title, body string, data map[string]any) error
}

type PushSubscribeKeys struct {
	P256DH string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

type PushSubscribeRequest struct {
	Endpoint string            `json:"endpoint" binding:"required"`
	Keys     PushSubscribeKeys `json:"keys" binding:"required"`
}

func (h *Handlers) GetVAPIDPublicKey(c *gin.Context) {
	if h.config.VAPIDKeys == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push is not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": h.config.VAPIDKeys.PublicKey})
}

func (h *Handlers) SubscribePush(c *gin.Context) {
	userID := c.GetString("user_id")

	var req PushSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateSubscriptionKeys(req.Keys.P256DH, req.Keys.Auth); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Only the latest subscription per user is kept.
	if err := h.db.Where("user_id = ?", userID).Delete(&models.PushSubscription{}).Error; err != nil {
		h.logger.Warn("push: drop old subscriptions failed", "user_id", userID, "error", err)
	}

	subscription := models.PushSubscription{
		UserID:   userID,
		Endpoint: req.Endpoint,
		P256DH:   strings.TrimSpace(req.Keys.P256DH),
		Auth:     strings.TrimSpace(req.Keys.Auth),
	}
	if err := h.db.Create(&subscription).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subscription"})
		return
	}

	h.logger.Debug("push: subscribed", "user_id", userID, "subscription_id", subscription.ID)
	c.JSON(http.StatusCreated, subscription)
}

func (h *Handlers) UnsubscribePush(c *gin.Context) {
	userID := c.GetString("user_id")

	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var subscription models.PushSubscription
	if err := h.db.Where("user_id = ? AND endpoint = ?", userID, req.Endpoint).First(&subscription).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if err := h.db.Delete(&subscription).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unsubscribed"})
}

// WebPusher sends web push notifications to the subscriptions stored in db.
type WebPusher struct {
	db     *gorm.DB
	keys   *config.VAPIDKeys
	logger *slog.Logger
}

func NewWebPusher(db *gorm.DB, keys *config.VAPIDKeys, logger *slog.Logger) *WebPusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebPusher{db: db, keys: keys, logger: logger}
}

func (p *WebPusher) Push(userID, title, body string, data map[string]any) error {
	if p.keys == nil {
		return nil
	}

	var subscriptions []models.PushSubscription
	if err := p.db.Where("user_id = ?", userID).Find(&subscriptions).Error; err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	if len(subscriptions) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"title":   title,
		"body":    body,
		"data":    data,
		"urgency": "high",
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	sent := 0
	for i := range subscriptions {
		sub := subscriptions[i]
		if err := validateSubscriptionKeys(sub.P256DH, sub.Auth); err != nil {
			p.logger.Warn("push: dropping subscription with bad keys", "user_id", userID, "subscription_id", sub.ID, "error", err)
			p.db.Delete(&sub)
			continue
		}

		resp, err := webpush.SendNotification(payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256DH, Auth: sub.Auth},
		}, &webpush.Options{
			Subscriber:      p.keys.Subject,
			VAPIDPublicKey:  p.keys.PublicKey,
			VAPIDPrivateKey: p.keys.PrivateKey,
			TTL:             30,
			Urgency:         webpush.UrgencyHigh,
		})
		if err != nil {
			p.logger.Warn("push: send failed", "user_id", userID, "subscription_id", sub.ID, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			p.logger.Debug("push: subscription gone", "user_id", userID, "subscription_id", sub.ID, "status", resp.StatusCode)
			p.db.Delete(&sub)
			continue
		}
		sent++
	}

	p.logger.Debug("push: delivered", "user_id", userID, "sent", sent, "total", len(subscriptions))
	return nil
}

// validateSubscriptionKeys checks that p256dh is an uncompressed P-256 point
// and auth is a 16 byte secret. Browsers send URL-safe base64, sometimes padded.
func validateSubscriptionKeys(p256dh, auth string) error {
	p256dhBytes, err := decodeKey(p256dh)
	if err != nil {
		return fmt.Errorf("decode p256dh: %w", err)
	}
	if len(p256dhBytes) != 65 || p256dhBytes[0] != 0x04 {
		return errors.New("p256dh must be a 65 byte uncompressed point")
	}

	authBytes, err := decodeKey(auth)
	if err != nil {
		return fmt.Errorf("decode auth: %w", err)
	}
	if len(authBytes) != 16 {
		return errors.New("auth must be 16 bytes")
	}
	return nil
}

func decodeKey(key string) ([]byte, error) {
	key = strings.TrimRight(strings.TrimSpace(key), "=")
	if b, err := base64.RawURLEncoding.DecodeString(key); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(key)
}
