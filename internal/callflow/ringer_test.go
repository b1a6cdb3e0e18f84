package callflow

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/tariel-x/callsupport/internal/callsupport"
	"github.com/tariel-x/callsupport/internal/models"
	"github.com/tariel-x/callsupport/internal/notify"
)

func TestRingerKeepsOneInvitationOpen(t *testing.T) {
	svc := validService()
	hub := notify.NewHub()
	rung := make(chan *IncomingCall, 2)
	r := NewRinger("trainer-1", svc, hub, func(s *IncomingCall) { rung <- s })
	r.Start(context.Background())

	hub.Publish(models.NotificationEvent{Type: models.EventCallRequest, RoomID: "room-1", CallerName: "Ana"})

	var screen *IncomingCall
	select {
	case screen = <-rung:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for invitation")
	}
	if screen.Invitation().CallerName != "Ana" || screen.Prompt() == nil {
		t.Fatalf("unexpected invitation %+v", screen.Invitation())
	}

	hub.Publish(models.NotificationEvent{Type: models.EventCallRequest, RoomID: "room-2", CallerName: "Ben"})
	r.Stop()

	if svc.count(&svc.validates) != 1 {
		t.Fatalf("second request should be dropped, got %d validations", svc.count(&svc.validates))
	}
	if r.Current() != screen {
		t.Fatalf("first invitation should still be current")
	}

	r.Release(screen)
	if r.Current() != nil || screen.State() != ScreenClosed {
		t.Fatalf("release should close the invitation")
	}
}

func TestRingerDropsInvalidInvitation(t *testing.T) {
	svc := &fakeService{validateRes: &callsupport.Response{StatusCode: http.StatusGone}}
	hub := notify.NewHub()
	rung := make(chan *IncomingCall, 1)
	r := NewRinger("trainer-1", svc, hub, func(s *IncomingCall) { rung <- s })
	r.Start(context.Background())

	hub.Publish(models.NotificationEvent{Type: models.EventCallRejected, RoomID: "room-0"})
	hub.Publish(models.NotificationEvent{Type: models.EventCallRequest, RoomID: "room-1", CallerName: "Ana"})
	r.Stop()

	select {
	case s := <-rung:
		t.Fatalf("invalid invitation was shown: %+v", s.Invitation())
	default:
	}
	if r.Current() != nil {
		t.Fatalf("no invitation should be open")
	}
	if svc.count(&svc.validates) != 1 {
		t.Fatalf("expected one validation, got %d", svc.count(&svc.validates))
	}
}

func TestRingerReleaseKeepsNewerInvitation(t *testing.T) {
	svc := validService()
	hub := notify.NewHub()
	rung := make(chan *IncomingCall, 2)
	r := NewRinger("trainer-1", svc, hub, func(s *IncomingCall) { rung <- s })
	r.Start(context.Background())
	defer r.Stop()

	next := func() *IncomingCall {
		t.Helper()
		select {
		case s := <-rung:
			return s
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for invitation")
		}
		return nil
	}

	hub.Publish(models.NotificationEvent{Type: models.EventCallRequest, RoomID: "room-1", CallerName: "Ana"})
	first := next()
	if err := first.Accept(context.Background()); err != nil {
		t.Fatalf("accept: %v", err)
	}

	hub.Publish(models.NotificationEvent{Type: models.EventCallRequest, RoomID: "room-2", CallerName: "Ben"})
	second := next()
	if second.Invitation().RoomID != "room-2" {
		t.Fatalf("unexpected invitation %+v", second.Invitation())
	}

	r.Release(first)
	if r.Current() != second {
		t.Fatalf("releasing the finished invitation must keep the new one current")
	}
	if second.State() != ScreenValid || second.Prompt() == nil {
		t.Fatalf("new invitation should still prompt, state %s", second.State())
	}

	r.Release(second)
	if r.Current() != nil || second.State() != ScreenClosed {
		t.Fatalf("release should close the new invitation, state %s", second.State())
	}
}
