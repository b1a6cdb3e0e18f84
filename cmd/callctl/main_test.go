package main

import (
	"context"
	"net/http"
	"testing"

	"github.com/tariel-x/callsupport/internal/callflow"
	"github.com/tariel-x/callsupport/internal/callsupport"
)

type stubService struct {
	accepted, rejected int
}

func (s *stubService) ValidateRoom(ctx context.Context, roomID, currentUserID string) (*callsupport.Response, error) {
	return &callsupport.Response{StatusCode: http.StatusOK}, nil
}

func (s *stubService) AcceptCall(ctx context.Context, roomID, acceptorID string) error {
	s.accepted++
	return nil
}

func (s *stubService) RejectCall(ctx context.Context, roomID, rejectorID string) error {
	s.rejected++
	return nil
}

func mountedScreen(t *testing.T, svc *stubService) *callflow.IncomingCall {
	t.Helper()
	screen := callflow.NewIncomingCall("trainer-1", callflow.Invitation{RoomID: "room-1", CallerName: "Anna"}, svc)
	if state := screen.Mount(context.Background()); state != callflow.ScreenValid {
		t.Fatalf("expected valid screen, got %s", state)
	}
	return screen
}

func TestAnswerAuto(t *testing.T) {
	svc := &stubService{}
	screen := mountedScreen(t, svc)

	if err := answer(context.Background(), screen, "accept", nil); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if svc.accepted != 1 || screen.State() != callflow.ScreenAccepted {
		t.Fatalf("expected accepted screen, got %s (accepts=%d)", screen.State(), svc.accepted)
	}
}

func TestAnswerInteractiveSkipsUnknownInput(t *testing.T) {
	svc := &stubService{}
	screen := mountedScreen(t, svc)

	answers := make(chan string, 2)
	answers <- "maybe"
	answers <- "r"
	if err := answer(context.Background(), screen, "", answers); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if svc.rejected != 1 || svc.accepted != 0 {
		t.Fatalf("unexpected calls: accepts=%d rejects=%d", svc.accepted, svc.rejected)
	}
	if screen.State() != callflow.ScreenRejected {
		t.Fatalf("expected rejected screen, got %s", screen.State())
	}
}

func TestCancelWaitingAfterRoomReleased(t *testing.T) {
	svc := &stubService{}
	toasts := &callflow.ToastRecorder{}
	popup := callflow.NewPopup("member-1", svc, nil, callflow.WithPopupToaster(toasts))
	popup.Show("room-1")
	popup.Close()

	cancelled, err := cancelWaiting(popup)
	if err != nil || cancelled {
		t.Fatalf("expected nothing to cancel, got cancelled=%v err=%v", cancelled, err)
	}
	if svc.rejected != 0 || len(toasts.Toasts()) != 0 {
		t.Fatalf("expected no request and no toast, rejects=%d toasts=%v", svc.rejected, toasts.Toasts())
	}
}

func TestCancelWaitingRejectsBoundRoom(t *testing.T) {
	svc := &stubService{}
	popup := callflow.NewPopup("member-1", svc, nil)
	popup.Show("room-1")

	cancelled, err := cancelWaiting(popup)
	if err != nil || !cancelled {
		t.Fatalf("expected cancel, got cancelled=%v err=%v", cancelled, err)
	}
	if svc.rejected != 1 || popup.RoomID() != "" {
		t.Fatalf("expected one reject and a cleared popup, rejects=%d room=%q", svc.rejected, popup.RoomID())
	}
}
