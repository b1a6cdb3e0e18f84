// Package callflow drives both ends of a trainer call request: the caller's
// waiting popup and the trainer's incoming-call screen.
package callflow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tariel-x/callsupport/internal/callsupport"
	"github.com/tariel-x/callsupport/internal/models"
)

var (
	ErrMissingRoom      = errors.New("no call room selected")
	ErrMissingUser      = errors.New("no current user")
	ErrMissingTrainer   = errors.New("no trainer selected")
	ErrActionInFlight   = errors.New("call action already in progress")
	ErrInvitationClosed = errors.New("call invitation is no longer open")
)

// Messages shown to the user. Remote failures are never detailed.
const (
	msgGenericFailure = "Something went wrong. Please try again."
	msgCallGone       = "This call is no longer available."
	msgMissingRoom    = "There is no call to cancel."
	msgMissingUser    = "Please sign in again."
	msgMissingTrainer = "Please choose a trainer to call."
)

// RoomCreator opens call rooms.
type RoomCreator interface {
	CreateRoom(ctx context.Context, userID, trainerID string) (*models.CallRoom, error)
}

// Rejecter closes a pending call room.
type Rejecter interface {
	RejectCall(ctx context.Context, roomID, rejectorID string) error
}

// InvitationService is what the callee needs from the call-support service.
type InvitationService interface {
	Rejecter
	ValidateRoom(ctx context.Context, roomID, currentUserID string) (*callsupport.Response, error)
	AcceptCall(ctx context.Context, roomID, acceptorID string) error
}

// ActionState tags the outcome of the last user action on a popup or screen.
type ActionState int

const (
	ActionIdle ActionState = iota
	ActionPending
	ActionConfirmed
	ActionFailed
)

func (s ActionState) String() string {
	switch s {
	case ActionIdle:
		return "idle"
	case ActionPending:
		return "pending"
	case ActionConfirmed:
		return "confirmed"
	case ActionFailed:
		return "failed"
	}
	return "unknown"
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
