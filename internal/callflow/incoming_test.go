package callflow

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/tariel-x/callsupport/internal/callsupport"
)

func validService() *fakeService {
	return &fakeService{validateRes: &callsupport.Response{StatusCode: http.StatusOK}}
}

func TestIncomingSkipsValidationWithoutRoomOrCaller(t *testing.T) {
	for _, inv := range []Invitation{
		{RoomID: "", CallerName: "Ana"},
		{RoomID: "room-1", CallerName: ""},
	} {
		svc := validService()
		screen := NewIncomingCall("trainer-1", inv, svc)

		if got := screen.Mount(context.Background()); got != ScreenInvalid {
			t.Fatalf("%+v: expected invalid, got %s", inv, got)
		}
		if len(svc.validates) != 0 {
			t.Fatalf("%+v: no validation request expected", inv)
		}
		if screen.Prompt() != nil {
			t.Fatalf("%+v: screen must render nothing", inv)
		}
	}
}

func TestIncomingInvalidOnNon200Status(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone, http.StatusForbidden, http.StatusAccepted} {
		svc := &fakeService{validateRes: &callsupport.Response{StatusCode: status, Message: "whatever"}}
		screen := NewIncomingCall("trainer-1", Invitation{RoomID: "room-1", CallerName: "Ana"}, svc)

		if got := screen.Mount(context.Background()); got != ScreenInvalid {
			t.Fatalf("status %d: expected invalid, got %s", status, got)
		}
		if screen.Prompt() != nil {
			t.Fatalf("status %d: screen must render nothing", status)
		}
	}
}

func TestIncomingInvalidWhenValidationFails(t *testing.T) {
	svc := &fakeService{validateErr: errors.New("dial tcp: refused")}
	toasts := &ToastRecorder{}
	screen := NewIncomingCall("trainer-1", Invitation{RoomID: "room-1", CallerName: "Ana"}, svc, WithIncomingToaster(toasts))

	if got := screen.Mount(context.Background()); got != ScreenInvalid {
		t.Fatalf("expected invalid, got %s", got)
	}
	if screen.Prompt() != nil {
		t.Fatalf("screen must render nothing")
	}
	if len(toasts.Toasts()) != 0 {
		t.Fatalf("validation failures are silent, got %+v", toasts.Toasts())
	}
}

func TestIncomingValidatesOnce(t *testing.T) {
	svc := validService()
	screen := NewIncomingCall("trainer-1", Invitation{RoomID: "room-1", CallerName: "Ana"}, svc)

	if got := screen.Mount(context.Background()); got != ScreenValid {
		t.Fatalf("expected valid, got %s", got)
	}
	screen.Mount(context.Background())

	if len(svc.validates) != 1 || svc.validates[0] != (roomCall{roomID: "room-1", userID: "trainer-1"}) {
		t.Fatalf("expected a single validation with room and user, got %+v", svc.validates)
	}
	prompt := screen.Prompt()
	if prompt == nil || prompt.CallerName != "Ana" || prompt.RoomID != "room-1" {
		t.Fatalf("unexpected prompt %+v", prompt)
	}
}

func TestIncomingAcceptThroughPrompt(t *testing.T) {
	svc := validService()
	screen := NewIncomingCall("trainer-1", Invitation{RoomID: "room-1", CallerName: "Ana"}, svc)
	screen.Mount(context.Background())

	if err := screen.Prompt().OnAccept(context.Background()); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if screen.State() != ScreenAccepted {
		t.Fatalf("expected accepted, got %s", screen.State())
	}
	if len(svc.accepts) != 1 || svc.accepts[0] != (roomCall{roomID: "room-1", userID: "trainer-1"}) {
		t.Fatalf("unexpected accept calls %+v", svc.accepts)
	}
	if err := screen.Reject(context.Background()); !errors.Is(err, ErrInvitationClosed) {
		t.Fatalf("expected ErrInvitationClosed after accept, got %v", err)
	}
	if screen.Prompt() != nil {
		t.Fatalf("resolved screen renders nothing")
	}
}

func TestIncomingRejectThroughPrompt(t *testing.T) {
	svc := validService()
	screen := NewIncomingCall("trainer-1", Invitation{RoomID: "room-1", CallerName: "Ana"}, svc)
	screen.Mount(context.Background())

	if err := screen.Prompt().OnReject(context.Background()); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if screen.State() != ScreenRejected {
		t.Fatalf("expected rejected, got %s", screen.State())
	}
	if len(svc.rejects) != 1 || svc.rejects[0].userID != "trainer-1" {
		t.Fatalf("unexpected reject calls %+v", svc.rejects)
	}
}

func TestIncomingAcceptFailureOutcomes(t *testing.T) {
	svc := validService()
	svc.acceptErr = errors.New("timeout")
	toasts := &ToastRecorder{}
	screen := NewIncomingCall("trainer-1", Invitation{RoomID: "room-1", CallerName: "Ana"}, svc, WithIncomingToaster(toasts))
	screen.Mount(context.Background())

	if err := screen.Accept(context.Background()); err == nil {
		t.Fatalf("expected accept to fail")
	}
	if screen.State() != ScreenValid {
		t.Fatalf("transient failure keeps the prompt, got %s", screen.State())
	}

	svc.acceptErr = &callsupport.StatusError{StatusCode: http.StatusConflict, Message: "call room already resolved"}
	if err := screen.Accept(context.Background()); !errors.Is(err, callsupport.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if screen.State() != ScreenInvalid {
		t.Fatalf("a resolved room invalidates the screen, got %s", screen.State())
	}

	got := toasts.Toasts()
	if len(got) != 2 || got[0].Message != msgGenericFailure || got[1].Message != msgCallGone {
		t.Fatalf("unexpected toasts %+v", got)
	}
}

func TestIncomingGuardsDoubleAction(t *testing.T) {
	svc := validService()
	svc.gate = make(chan struct{})
	svc.started = make(chan struct{}, 1)
	screen := NewIncomingCall("trainer-1", Invitation{RoomID: "room-1", CallerName: "Ana"}, svc)
	screen.Mount(context.Background())

	first := make(chan error, 1)
	go func() { first <- screen.Accept(context.Background()) }()
	<-svc.started

	if err := screen.Reject(context.Background()); !errors.Is(err, ErrActionInFlight) {
		t.Fatalf("expected ErrActionInFlight, got %v", err)
	}
	close(svc.gate)
	if err := <-first; err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if svc.count(&svc.rejects) != 0 || svc.count(&svc.accepts) != 1 {
		t.Fatalf("expected exactly one accept call")
	}
}

func TestIncomingInvalidWhenStatusMissing(t *testing.T) {
	svc := &fakeService{validateRes: &callsupport.Response{Message: "room closed"}}
	screen := NewIncomingCall("trainer-1", Invitation{RoomID: "room-1", CallerName: "Ana"}, svc)

	if state := screen.Mount(context.Background()); state != ScreenInvalid {
		t.Fatalf("expected invalid screen, got %s", state)
	}
	if screen.Prompt() != nil {
		t.Fatalf("invalid screen must not prompt")
	}
}
