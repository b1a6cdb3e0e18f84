package models

// Notification event types delivered over the in-app channel.
const (
	EventCallRequest  = "call-request"  // caller -> trainer: a room is waiting
	EventCallRejected = "call-rejected" // rejector -> counterpart: room closed
	EventCallAccepted = "call-accepted" // trainer -> caller: room accepted
)

// NotificationEvent is a tagged payload pushed to a single user.
type NotificationEvent struct {
	Type       string `json:"type"`
	RoomID     string `json:"roomId"`
	From       string `json:"from,omitempty"`
	CallerName string `json:"callerName,omitempty"`
}
