package callflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tariel-x/callsupport/internal/models"
	"github.com/tariel-x/callsupport/internal/notify"
)

type RingerOption func(*Ringer)

func WithRingerToaster(t Toaster) RingerOption {
	return func(r *Ringer) { r.toaster = t }
}

func WithRingerLogger(l *slog.Logger) RingerOption {
	return func(r *Ringer) { r.logger = l }
}

// Ringer turns call-request events into incoming-call screens for the
// trainer, one at a time. Requests that arrive while an invitation is still
// open are dropped.
type Ringer struct {
	userID       string
	calls        InvitationService
	events       notify.Source
	onInvitation func(*IncomingCall)
	toaster      Toaster
	logger       *slog.Logger

	mu      sync.Mutex
	current *IncomingCall
	sub     *notify.Subscription
	done    chan struct{}
}

func NewRinger(userID string, calls InvitationService, events notify.Source, onInvitation func(*IncomingCall), opts ...RingerOption) *Ringer {
	r := &Ringer{
		userID:       userID,
		calls:        calls,
		events:       events,
		onInvitation: onInvitation,
		toaster:      LogToaster{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = loggerOrDefault(r.logger)
	return r
}

// Start subscribes to the notification source. ctx bounds the validation
// requests made for incoming invitations.
func (r *Ringer) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return
	}
	r.sub = r.events.Subscribe(0)
	r.done = make(chan struct{})
	go r.loop(ctx, r.sub, r.done)
}

// Stop releases the subscription and waits for the dispatch loop to finish.
func (r *Ringer) Stop() {
	r.mu.Lock()
	sub, done := r.sub, r.done
	r.sub = nil
	r.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Close()
	<-done
}

// Current returns the open invitation, if any.
func (r *Ringer) Current() *IncomingCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.current.State().Terminal() {
		return nil
	}
	return r.current
}

// Release closes screen and lets the next request ring. A screen that is no
// longer the current invitation is closed without touching the current one.
func (r *Ringer) Release(screen *IncomingCall) {
	if screen == nil {
		return
	}
	r.mu.Lock()
	if r.current == screen {
		r.current = nil
	}
	r.mu.Unlock()

	screen.Close()
}

func (r *Ringer) loop(ctx context.Context, sub *notify.Subscription, done chan struct{}) {
	defer close(done)
	for ev := range sub.Events() {
		if ev.Type != models.EventCallRequest {
			continue
		}
		r.ring(ctx, ev)
	}
}

func (r *Ringer) ring(ctx context.Context, ev models.NotificationEvent) {
	r.mu.Lock()
	if r.current != nil && !r.current.State().Terminal() {
		busy := r.current.Invitation().RoomID
		r.mu.Unlock()
		r.logger.Debug("call request dropped, invitation already open", "room_id", ev.RoomID, "open_room_id", busy)
		return
	}
	screen := NewIncomingCall(r.userID, Invitation{RoomID: ev.RoomID, CallerName: ev.CallerName}, r.calls,
		WithIncomingToaster(r.toaster), WithIncomingLogger(r.logger))
	r.current = screen
	r.mu.Unlock()

	if screen.Mount(ctx) != ScreenValid {
		r.mu.Lock()
		if r.current == screen {
			r.current = nil
		}
		r.mu.Unlock()
		return
	}

	r.logger.Info("incoming call", "room_id", ev.RoomID, "caller", ev.CallerName)
	if r.onInvitation != nil {
		r.onInvitation(screen)
	}
}
