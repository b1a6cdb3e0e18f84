package callflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tariel-x/callsupport/internal/callsupport"
)

// ScreenState is the lifecycle of an incoming-call screen.
type ScreenState int

const (
	ScreenUnvalidated ScreenState = iota
	ScreenValidating
	ScreenValid
	ScreenInvalid
	ScreenAccepting
	ScreenAccepted
	ScreenRejecting
	ScreenRejected
	ScreenClosed
)

func (s ScreenState) String() string {
	switch s {
	case ScreenUnvalidated:
		return "unvalidated"
	case ScreenValidating:
		return "validating"
	case ScreenValid:
		return "valid"
	case ScreenInvalid:
		return "invalid"
	case ScreenAccepting:
		return "accepting"
	case ScreenAccepted:
		return "accepted"
	case ScreenRejecting:
		return "rejecting"
	case ScreenRejected:
		return "rejected"
	case ScreenClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether the screen will never show a prompt again.
func (s ScreenState) Terminal() bool {
	switch s {
	case ScreenInvalid, ScreenAccepted, ScreenRejected, ScreenClosed:
		return true
	}
	return false
}

// Invitation is the callee-side view of a proposed call. It lives only as
// long as the screen showing it.
type Invitation struct {
	RoomID     string
	CallerName string
}

// Prompt is the accept/reject UI of a validated invitation.
type Prompt struct {
	Invitation
	screen *IncomingCall
}

func (p *Prompt) OnAccept(ctx context.Context) error { return p.screen.Accept(ctx) }
func (p *Prompt) OnReject(ctx context.Context) error { return p.screen.Reject(ctx) }

type IncomingOption func(*IncomingCall)

func WithIncomingToaster(t Toaster) IncomingOption {
	return func(s *IncomingCall) { s.toaster = t }
}

func WithIncomingLogger(l *slog.Logger) IncomingOption {
	return func(s *IncomingCall) { s.logger = l }
}

// IncomingCall is the trainer's screen for one invitation. It validates the
// room once on Mount and renders nothing unless that validation succeeded.
type IncomingCall struct {
	userID  string
	inv     Invitation
	calls   InvitationService
	toaster Toaster
	logger  *slog.Logger

	mu    sync.Mutex
	state ScreenState
}

func NewIncomingCall(userID string, inv Invitation, calls InvitationService, opts ...IncomingOption) *IncomingCall {
	s := &IncomingCall{
		userID:  userID,
		inv:     inv,
		calls:   calls,
		toaster: LogToaster{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = loggerOrDefault(s.logger)
	return s
}

func (s *IncomingCall) Invitation() Invitation { return s.inv }

func (s *IncomingCall) State() ScreenState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mount validates the invitation. Only the first call does any work; a
// failed validation is silent.
func (s *IncomingCall) Mount(ctx context.Context) ScreenState {
	s.mu.Lock()
	if s.state != ScreenUnvalidated {
		defer s.mu.Unlock()
		return s.state
	}
	if s.inv.RoomID == "" || s.inv.CallerName == "" {
		s.state = ScreenInvalid
		s.mu.Unlock()
		return ScreenInvalid
	}
	s.state = ScreenValidating
	s.mu.Unlock()

	resp, err := s.calls.ValidateRoom(ctx, s.inv.RoomID, s.userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ScreenValidating {
		return s.state
	}
	switch {
	case err != nil:
		s.logger.Debug("call room validation failed", "room_id", s.inv.RoomID, "error", err)
		s.state = ScreenInvalid
	case resp == nil || resp.StatusCode != http.StatusOK:
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		s.logger.Debug("call room not valid", "room_id", s.inv.RoomID, "status", status)
		s.state = ScreenInvalid
	default:
		s.state = ScreenValid
	}
	return s.state
}

// Prompt returns the accept/reject prompt, or nil when there is nothing to render.
func (s *IncomingCall) Prompt() *Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ScreenValid {
		return nil
	}
	return &Prompt{Invitation: s.inv, screen: s}
}

func (s *IncomingCall) Accept(ctx context.Context) error {
	return s.resolve(ctx, ScreenAccepting, ScreenAccepted, s.calls.AcceptCall)
}

func (s *IncomingCall) Reject(ctx context.Context) error {
	return s.resolve(ctx, ScreenRejecting, ScreenRejected, s.calls.RejectCall)
}

// Close discards the invitation. Results of in-flight requests are ignored.
func (s *IncomingCall) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ScreenClosed
}

func (s *IncomingCall) resolve(ctx context.Context, during, done ScreenState, call func(context.Context, string, string) error) error {
	s.mu.Lock()
	switch s.state {
	case ScreenValid:
	case ScreenAccepting, ScreenRejecting:
		s.mu.Unlock()
		return ErrActionInFlight
	default:
		s.mu.Unlock()
		return ErrInvitationClosed
	}
	if s.userID == "" {
		s.mu.Unlock()
		s.toaster.Toast(ToastError, msgMissingUser)
		return ErrMissingUser
	}
	s.state = during
	s.mu.Unlock()

	err := call(ctx, s.inv.RoomID, s.userID)

	s.mu.Lock()
	if s.state != during {
		s.mu.Unlock()
		return err
	}
	if err == nil {
		s.state = done
		s.mu.Unlock()
		s.logger.Info("call invitation resolved", "room_id", s.inv.RoomID, "state", done.String())
		return nil
	}

	msg := msgGenericFailure
	if roomGone(err) {
		s.state = ScreenInvalid
		msg = msgCallGone
	} else {
		s.state = ScreenValid
	}
	s.mu.Unlock()

	s.logger.Warn("call invitation action failed", "room_id", s.inv.RoomID, "action", during.String(), "error", err)
	s.toaster.Toast(ToastError, msg)
	return fmt.Errorf("%s call %s: %w", during.String(), s.inv.RoomID, err)
}

// roomGone reports errors after which the room can never be acted on again.
func roomGone(err error) bool {
	return errors.Is(err, callsupport.ErrConflict) ||
		errors.Is(err, callsupport.ErrGone) ||
		errors.Is(err, callsupport.ErrRoomNotFound)
}
