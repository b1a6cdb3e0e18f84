package callflow

import (
	"context"
	"fmt"

	"github.com/tariel-x/callsupport/internal/models"
)

// Dial opens a room between the popup's user and trainerID and shows the
// popup for it.
func Dial(ctx context.Context, calls RoomCreator, popup *Popup, trainerID string) (*models.CallRoom, error) {
	if popup.userID == "" {
		popup.toaster.Toast(ToastError, msgMissingUser)
		return nil, ErrMissingUser
	}
	if trainerID == "" {
		popup.toaster.Toast(ToastError, msgMissingTrainer)
		return nil, ErrMissingTrainer
	}

	room, err := calls.CreateRoom(ctx, popup.userID, trainerID)
	if err != nil {
		popup.logger.Warn("create call room failed", "trainer_id", trainerID, "error", err)
		popup.toaster.Toast(ToastError, msgGenericFailure)
		return nil, fmt.Errorf("create call room: %w", err)
	}

	popup.Show(room.ID)
	popup.logger.Info("waiting for trainer", "room_id", room.ID, "trainer_id", trainerID)
	return room, nil
}
