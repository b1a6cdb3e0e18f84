package callflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tariel-x/callsupport/internal/models"
	"github.com/tariel-x/callsupport/internal/notify"
)

type closeEvent struct {
	roomID string
	reason CloseReason
}

func newTestPopup(userID string, svc *fakeService, hub *notify.Hub, toasts *ToastRecorder) (*Popup, chan closeEvent) {
	closes := make(chan closeEvent, 4)
	p := NewPopup(userID, svc, hub,
		WithPopupToaster(toasts),
		WithOnClose(func(roomID string, reason CloseReason) {
			closes <- closeEvent{roomID: roomID, reason: reason}
		}),
	)
	return p, closes
}

func waitClose(t *testing.T, closes chan closeEvent) closeEvent {
	t.Helper()
	select {
	case ev := <-closes:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for popup to close")
	}
	return closeEvent{}
}

func TestPopupCancelRejectsOnce(t *testing.T) {
	svc := &fakeService{}
	hub := notify.NewHub()
	p, closes := newTestPopup("member-1", svc, hub, &ToastRecorder{})

	p.Show("room-1")
	if err := p.Cancel(context.Background()); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if len(svc.rejects) != 1 || svc.rejects[0] != (roomCall{roomID: "room-1", userID: "member-1"}) {
		t.Fatalf("expected one reject for room-1 by member-1, got %+v", svc.rejects)
	}
	if p.Visible() || p.RoomID() != "" {
		t.Fatalf("popup should be hidden and cleared, visible=%v room=%q", p.Visible(), p.RoomID())
	}
	if p.Action() != ActionConfirmed {
		t.Fatalf("expected confirmed action, got %s", p.Action())
	}
	if hub.Len() != 0 {
		t.Fatalf("expected subscription released, %d left", hub.Len())
	}
	if ev := waitClose(t, closes); ev.reason != CloseCancelled || ev.roomID != "room-1" {
		t.Fatalf("unexpected close %+v", ev)
	}
}

func TestPopupCancelFailureKeepsState(t *testing.T) {
	svc := &fakeService{rejectErr: errors.New("connection reset")}
	toasts := &ToastRecorder{}
	p, _ := newTestPopup("member-1", svc, notify.NewHub(), toasts)

	p.Show("room-1")
	if err := p.Cancel(context.Background()); err == nil {
		t.Fatalf("expected cancel to fail")
	}

	if !p.Visible() || p.RoomID() != "room-1" {
		t.Fatalf("failed cancel must keep the popup, visible=%v room=%q", p.Visible(), p.RoomID())
	}
	if p.Action() != ActionFailed {
		t.Fatalf("expected failed action, got %s", p.Action())
	}
	got := toasts.Toasts()
	if len(got) != 1 || got[0].Kind != ToastError || got[0].Message != msgGenericFailure {
		t.Fatalf("expected one generic error toast, got %+v", got)
	}

	svc.rejectErr = nil
	if err := p.Cancel(context.Background()); err != nil {
		t.Fatalf("retry by the user should succeed: %v", err)
	}
	if len(svc.rejects) != 2 {
		t.Fatalf("expected two reject calls, got %d", len(svc.rejects))
	}
}

func TestPopupCancelRequiresRoomAndUser(t *testing.T) {
	svc := &fakeService{}
	toasts := &ToastRecorder{}

	noRoom, _ := newTestPopup("member-1", svc, notify.NewHub(), toasts)
	noRoom.Show("")
	if err := noRoom.Cancel(context.Background()); !errors.Is(err, ErrMissingRoom) {
		t.Fatalf("expected ErrMissingRoom, got %v", err)
	}

	noUser, _ := newTestPopup("", svc, notify.NewHub(), toasts)
	noUser.Show("room-1")
	if err := noUser.Cancel(context.Background()); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}

	if len(svc.rejects) != 0 {
		t.Fatalf("no network call expected, got %d", len(svc.rejects))
	}
	if len(toasts.Toasts()) != 2 {
		t.Fatalf("expected a toast per validation error, got %+v", toasts.Toasts())
	}
}

func TestPopupClosesOnCallRejectedEvent(t *testing.T) {
	svc := &fakeService{}
	hub := notify.NewHub()
	p, closes := newTestPopup("member-1", svc, hub, &ToastRecorder{})

	p.Show("room-1")
	hub.Publish(models.NotificationEvent{Type: models.EventCallRejected, RoomID: "room-1", From: "trainer-1"})

	if ev := waitClose(t, closes); ev.reason != CloseRejected || ev.roomID != "room-1" {
		t.Fatalf("unexpected close %+v", ev)
	}
	if p.Visible() || p.RoomID() != "" {
		t.Fatalf("popup should be hidden and cleared")
	}
	if len(svc.rejects) != 0 {
		t.Fatalf("a rejected event must not trigger a reject call")
	}
}

func TestPopupIgnoresUnrelatedEvents(t *testing.T) {
	p, _ := newTestPopup("member-1", &fakeService{}, notify.NewHub(), &ToastRecorder{})
	p.Show("room-1")

	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()

	p.handleEvent(gen, models.NotificationEvent{Type: models.EventCallRejected, RoomID: "room-2"})
	p.handleEvent(gen, models.NotificationEvent{Type: models.EventCallAccepted, RoomID: "room-1"})

	if !p.Visible() || p.RoomID() != "room-1" {
		t.Fatalf("unrelated events must not close the popup")
	}
}

func TestPopupReleasesSubscriptionOnBindingChange(t *testing.T) {
	hub := notify.NewHub()
	p, _ := newTestPopup("member-1", &fakeService{}, hub, &ToastRecorder{})

	p.Show("room-1")
	p.mu.Lock()
	firstGen := p.gen
	p.mu.Unlock()

	p.Show("room-2")
	if hub.Len() != 1 {
		t.Fatalf("expected exactly one live subscription, got %d", hub.Len())
	}

	// An event still queued for the former binding must not act.
	p.handleEvent(firstGen, models.NotificationEvent{Type: models.EventCallRejected, RoomID: "room-2"})
	if !p.Visible() || p.RoomID() != "room-2" {
		t.Fatalf("stale subscription acted on the new room")
	}

	p.Hide()
	if hub.Len() != 0 {
		t.Fatalf("hidden popup must not hold a subscription, got %d", hub.Len())
	}
	if n := hub.Publish(models.NotificationEvent{Type: models.EventCallRejected, RoomID: "room-2"}); n != 0 {
		t.Fatalf("event reached a hidden popup")
	}
	if p.RoomID() != "room-2" {
		t.Fatalf("hide should keep the room, got %q", p.RoomID())
	}

	p.Show("room-2")
	p.Close()
	if hub.Len() != 0 {
		t.Fatalf("closed popup must not hold a subscription")
	}
	p.Show("room-3")
	if p.Visible() {
		t.Fatalf("closed popup cannot be shown again")
	}
}

func TestPopupGuardsDoubleCancel(t *testing.T) {
	svc := &fakeService{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	p, _ := newTestPopup("member-1", svc, notify.NewHub(), &ToastRecorder{})
	p.Show("room-1")

	first := make(chan error, 1)
	go func() { first <- p.Cancel(context.Background()) }()
	<-svc.started

	if p.Action() != ActionPending {
		t.Fatalf("expected pending action, got %s", p.Action())
	}
	if err := p.Cancel(context.Background()); !errors.Is(err, ErrActionInFlight) {
		t.Fatalf("expected ErrActionInFlight, got %v", err)
	}

	close(svc.gate)
	if err := <-first; err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}
	if svc.count(&svc.rejects) != 1 {
		t.Fatalf("expected one reject call, got %d", svc.count(&svc.rejects))
	}
}

func TestPopupIgnoresCancelResultAfterRejectedEvent(t *testing.T) {
	svc := &fakeService{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	hub := notify.NewHub()
	p, closes := newTestPopup("member-1", svc, hub, &ToastRecorder{})
	p.Show("room-1")

	result := make(chan error, 1)
	go func() { result <- p.Cancel(context.Background()) }()
	<-svc.started

	hub.Publish(models.NotificationEvent{Type: models.EventCallRejected, RoomID: "room-1"})
	if ev := waitClose(t, closes); ev.reason != CloseRejected {
		t.Fatalf("expected close by event, got %+v", ev)
	}

	close(svc.gate)
	if err := <-result; err != nil {
		t.Fatalf("cancel returned %v", err)
	}
	select {
	case ev := <-closes:
		t.Fatalf("popup closed twice: %+v", ev)
	default:
	}
	if p.Visible() {
		t.Fatalf("popup should stay hidden")
	}
}

func TestPopupRebindKeepsCancelInFlight(t *testing.T) {
	svc := &fakeService{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	hub := notify.NewHub()
	p, closes := newTestPopup("member-1", svc, hub, &ToastRecorder{})
	p.Show("room-1")

	first := make(chan error, 1)
	go func() { first <- p.Cancel(context.Background()) }()
	<-svc.started

	p.Hide()
	p.Show("room-1")
	if p.Action() != ActionPending {
		t.Fatalf("rebinding must keep the pending action, got %s", p.Action())
	}
	if err := p.Cancel(context.Background()); !errors.Is(err, ErrActionInFlight) {
		t.Fatalf("expected ErrActionInFlight, got %v", err)
	}

	close(svc.gate)
	if err := <-first; err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}
	if svc.count(&svc.rejects) != 1 {
		t.Fatalf("expected one reject call, got %d", svc.count(&svc.rejects))
	}
	if ev := waitClose(t, closes); ev.roomID != "room-1" || ev.reason != CloseCancelled {
		t.Fatalf("unexpected close %+v", ev)
	}
	if p.Visible() || p.RoomID() != "" || p.Action() != ActionConfirmed {
		t.Fatalf("popup should be closed and confirmed, visible=%v room=%q action=%s", p.Visible(), p.RoomID(), p.Action())
	}
}

func TestPopupCancelResultIgnoredAfterRoomChange(t *testing.T) {
	svc := &fakeService{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	p, closes := newTestPopup("member-1", svc, notify.NewHub(), &ToastRecorder{})
	p.Show("room-1")

	first := make(chan error, 1)
	go func() { first <- p.Cancel(context.Background()) }()
	<-svc.started

	p.Show("room-2")
	close(svc.gate)
	if err := <-first; err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}

	select {
	case ev := <-closes:
		t.Fatalf("popup for room-2 closed by room-1 result: %+v", ev)
	default:
	}
	if !p.Visible() || p.RoomID() != "room-2" || p.Action() != ActionIdle {
		t.Fatalf("room-2 binding should be intact, visible=%v room=%q action=%s", p.Visible(), p.RoomID(), p.Action())
	}
}
