package callflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tariel-x/callsupport/internal/models"
	"github.com/tariel-x/callsupport/internal/notify"
)

// CloseReason says why a visible popup went away.
type CloseReason string

const (
	CloseCancelled CloseReason = "cancelled" // caller cancelled and the service confirmed
	CloseRejected  CloseReason = "rejected"  // a call-rejected event arrived for the room
)

type PopupOption func(*Popup)

func WithPopupToaster(t Toaster) PopupOption {
	return func(p *Popup) { p.toaster = t }
}

func WithPopupLogger(l *slog.Logger) PopupOption {
	return func(p *Popup) { p.logger = l }
}

// WithOnClose registers fn to run, outside the popup lock, whenever the popup
// closes itself.
func WithOnClose(fn func(roomID string, reason CloseReason)) PopupOption {
	return func(p *Popup) { p.onClose = fn }
}

// Popup is the caller's "waiting for the trainer" modal. While it is visible
// with a room bound it listens for call-rejected on that room; everything it
// holds on the notification source is released as soon as the binding changes.
type Popup struct {
	userID  string
	calls   Rejecter
	events  notify.Source
	toaster Toaster
	logger  *slog.Logger
	onClose func(roomID string, reason CloseReason)

	mu      sync.Mutex
	visible bool
	roomID  string
	action  ActionState
	sub     *notify.Subscription
	gen     uint64
	closed  bool
}

func NewPopup(userID string, calls Rejecter, events notify.Source, opts ...PopupOption) *Popup {
	p := &Popup{
		userID:  userID,
		calls:   calls,
		events:  events,
		toaster: LogToaster{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = loggerOrDefault(p.logger)
	return p
}

// Show makes the popup visible for roomID.
func (p *Popup) Show(roomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindLocked(true, roomID)
}

// Hide makes the popup invisible. The room stays bound but is no longer watched.
func (p *Popup) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindLocked(false, p.roomID)
}

// Close unmounts the popup. It cannot be shown again.
func (p *Popup) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindLocked(false, "")
	p.closed = true
}

func (p *Popup) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

func (p *Popup) RoomID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roomID
}

func (p *Popup) Action() ActionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.action
}

// Cancel asks the service to reject the bound room on behalf of the caller.
// Every failure is also shown through the toaster; on failure the popup keeps
// its room and stays visible. A popup bound to another room (or to none) by
// the time the request returns ignores the result.
func (p *Popup) Cancel(ctx context.Context) error {
	p.mu.Lock()
	switch {
	case p.roomID == "":
		p.mu.Unlock()
		p.toaster.Toast(ToastError, msgMissingRoom)
		return ErrMissingRoom
	case p.userID == "":
		p.mu.Unlock()
		p.toaster.Toast(ToastError, msgMissingUser)
		return ErrMissingUser
	case p.action == ActionPending:
		p.mu.Unlock()
		return ErrActionInFlight
	}
	p.action = ActionPending
	roomID := p.roomID
	p.mu.Unlock()

	err := p.calls.RejectCall(ctx, roomID, p.userID)

	p.mu.Lock()
	if p.roomID != roomID {
		if p.action == ActionPending {
			p.action = ActionIdle
		}
		p.mu.Unlock()
		p.logger.Debug("cancel result ignored, popup moved on", "room_id", roomID, "error", err)
		return err
	}
	if err != nil {
		p.action = ActionFailed
		p.mu.Unlock()
		p.logger.Warn("cancel call failed", "room_id", roomID, "error", err)
		p.toaster.Toast(ToastError, msgGenericFailure)
		return fmt.Errorf("cancel call %s: %w", roomID, err)
	}
	p.bindLocked(false, "")
	p.action = ActionConfirmed
	p.mu.Unlock()

	p.logger.Info("call cancelled", "room_id", roomID)
	p.fireClose(roomID, CloseCancelled)
	return nil
}

func (p *Popup) watch(sub *notify.Subscription, gen uint64) {
	for ev := range sub.Events() {
		p.handleEvent(gen, ev)
	}
}

func (p *Popup) handleEvent(gen uint64, ev models.NotificationEvent) {
	p.mu.Lock()
	if gen != p.gen || !p.visible || ev.Type != models.EventCallRejected || ev.RoomID != p.roomID {
		p.mu.Unlock()
		return
	}
	roomID := p.roomID
	p.bindLocked(false, "")
	p.action = ActionConfirmed
	p.mu.Unlock()

	p.logger.Info("call rejected", "room_id", roomID, "by", ev.From)
	p.fireClose(roomID, CloseRejected)
}

// bindLocked moves the popup to (visible, roomID). Any change drops the
// current subscription and starts a new generation.
func (p *Popup) bindLocked(visible bool, roomID string) {
	if p.closed {
		return
	}
	if visible == p.visible && roomID == p.roomID && (p.sub != nil || !visible || roomID == "") {
		return
	}

	if p.sub != nil {
		p.sub.Close()
		p.sub = nil
	}
	p.gen++
	// A cancel in flight outlives the binding; it settles the tag itself.
	if p.action != ActionPending {
		p.action = ActionIdle
	}
	p.visible = visible
	p.roomID = roomID

	if visible && roomID != "" && p.events != nil {
		p.sub = p.events.Subscribe(0)
		go p.watch(p.sub, p.gen)
	}
}

func (p *Popup) fireClose(roomID string, reason CloseReason) {
	if p.onClose != nil {
		p.onClose(roomID, reason)
	}
}
