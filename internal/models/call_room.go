package models

import "time"

// CallRoomStatus is the lifecycle state of a call room.
// Keep values stable because they are part of the public API.
type CallRoomStatus string

const (
	CallRoomPending  CallRoomStatus = "pending"
	CallRoomAccepted CallRoomStatus = "accepted"
	CallRoomRejected CallRoomStatus = "rejected"
	CallRoomExpired  CallRoomStatus = "expired"
)

// Resolved reports whether the room left the pending state.
func (s CallRoomStatus) Resolved() bool {
	return s != CallRoomPending
}

type CallRoom struct {
	ID         string         `gorm:"type:varchar(32);primaryKey" json:"roomId"`
	UserID     string         `gorm:"type:varchar(36);not null;index" json:"userId"`
	TrainerID  string         `gorm:"type:varchar(36);not null;index" json:"trainerId"`
	Status     CallRoomStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	ResolvedBy string         `gorm:"type:varchar(36)" json:"resolvedBy,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	ExpiresAt  time.Time      `json:"expiresAt"`
}

// IsParticipant reports whether userID is the requester or the callee.
func (r *CallRoom) IsParticipant(userID string) bool {
	return userID != "" && (userID == r.UserID || userID == r.TrainerID)
}

// Counterpart returns the other participant of the room.
func (r *CallRoom) Counterpart(userID string) string {
	if userID == r.UserID {
		return r.TrainerID
	}
	return r.UserID
}
