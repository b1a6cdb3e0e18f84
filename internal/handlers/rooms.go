package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/tariel-x/callsupport/internal/models"
	"github.com/tariel-x/callsupport/internal/rooms"

	"github.com/gin-gonic/gin"
)

// callResponse is the envelope of every /CallSupport endpoint. statusCode
// repeats the HTTP status so clients that only look at the body still work.
type callResponse struct {
	StatusCode int              `json:"statusCode"`
	Message    string           `json:"message,omitempty"`
	Room       *models.CallRoom `json:"room,omitempty"`
	CallerName string           `json:"callerName,omitempty"`
}

type createRoomRequest struct {
	UserID    string `json:"userId" binding:"required"`
	TrainerID string `json:"trainerId" binding:"required"`
}

type rejectCallRequest struct {
	RoomID     string `json:"roomId" binding:"required"`
	RejectorID string `json:"rejectorId" binding:"required"`
}

type acceptCallRequest struct {
	RoomID     string `json:"roomId" binding:"required"`
	AcceptorID string `json:"acceptorId" binding:"required"`
}

func respond(c *gin.Context, status int, resp callResponse) {
	resp.StatusCode = status
	c.JSON(status, resp)
}

func (h *Handlers) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, callResponse{Message: err.Error()})
		return
	}

	userID := c.GetString("user_id")
	if req.UserID != userID {
		respond(c, http.StatusForbidden, callResponse{Message: "userId does not match the token"})
		return
	}

	var caller, trainer models.User
	if err := h.db.First(&caller, "id = ?", userID).Error; err != nil {
		respond(c, http.StatusUnauthorized, callResponse{Message: "unknown user"})
		return
	}
	if err := h.db.First(&trainer, "id = ? AND role = ?", req.TrainerID, models.RoleTrainer).Error; err != nil {
		respond(c, http.StatusNotFound, callResponse{Message: "trainer not found"})
		return
	}

	room, err := h.rooms.Create(userID, trainer.ID, h.nowFn())
	if err != nil {
		h.writeRoomError(c, err)
		return
	}

	h.logger.Info("call room created", "room_id", room.ID, "user_id", room.UserID, "trainer_id", room.TrainerID)

	streams := h.notify(trainer.ID, models.NotificationEvent{
		Type:       models.EventCallRequest,
		RoomID:     room.ID,
		From:       caller.ID,
		CallerName: caller.DisplayName,
	})
	if h.pusher != nil {
		go func(trainerID, roomID, callerName string, streams int) {
			err := h.pusher.Push(trainerID, "Incoming call", callerName+" is calling", map[string]any{
				"type":       models.EventCallRequest,
				"roomId":     roomID,
				"callerName": callerName,
			})
			if err != nil {
				h.logger.Warn("push call-request failed", "room_id", roomID, "trainer_id", trainerID, "online_streams", streams, "error", err)
			}
		}(trainer.ID, room.ID, caller.DisplayName, streams)
	}

	respond(c, http.StatusCreated, callResponse{Room: room, CallerName: caller.DisplayName})
}

func (h *Handlers) ValidateRoom(c *gin.Context) {
	userID := c.GetString("user_id")
	if current := c.Query("currentUserId"); current != "" && current != userID {
		respond(c, http.StatusForbidden, callResponse{Message: "currentUserId does not match the token"})
		return
	}

	room, err := h.rooms.Validate(c.Param("room_id"), userID, h.nowFn())
	if err != nil {
		status, msg := roomErrorStatus(err)
		if errors.Is(err, rooms.ErrRoomResolved) {
			status = http.StatusGone
		}
		respond(c, status, callResponse{Message: msg})
		return
	}

	resp := callResponse{Room: room}
	var caller models.User
	if err := h.db.First(&caller, "id = ?", room.UserID).Error; err == nil {
		resp.CallerName = caller.DisplayName
	}
	respond(c, http.StatusOK, resp)
}

func (h *Handlers) RejectCall(c *gin.Context) {
	var req rejectCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, callResponse{Message: err.Error()})
		return
	}

	userID := c.GetString("user_id")
	if req.RejectorID != userID {
		respond(c, http.StatusForbidden, callResponse{Message: "rejectorId does not match the token"})
		return
	}

	room, err := h.rooms.Reject(req.RoomID, userID, h.nowFn())
	if err != nil {
		h.writeRoomError(c, err)
		return
	}

	h.logger.Info("call rejected", "room_id", room.ID, "by", userID)
	h.notify(room.Counterpart(userID), models.NotificationEvent{
		Type:   models.EventCallRejected,
		RoomID: room.ID,
		From:   userID,
	})

	respond(c, http.StatusOK, callResponse{Message: "rejected", Room: room})
}

func (h *Handlers) AcceptCall(c *gin.Context) {
	var req acceptCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, callResponse{Message: err.Error()})
		return
	}

	userID := c.GetString("user_id")
	if req.AcceptorID != userID {
		respond(c, http.StatusForbidden, callResponse{Message: "acceptorId does not match the token"})
		return
	}

	room, err := h.rooms.Accept(req.RoomID, userID, h.nowFn())
	if err != nil {
		h.writeRoomError(c, err)
		return
	}

	h.logger.Info("call accepted", "room_id", room.ID, "by", userID)
	h.notify(room.UserID, models.NotificationEvent{
		Type:   models.EventCallAccepted,
		RoomID: room.ID,
		From:   userID,
	})

	respond(c, http.StatusOK, callResponse{Message: "accepted", Room: room})
}

// ListPendingRooms returns the rooms waiting for the authenticated trainer.
func (h *Handlers) ListPendingRooms(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	list, err := h.rooms.ListPending(c.GetString("user_id"), limit, h.nowFn())
	if err != nil {
		h.logger.Error("list pending rooms failed", "error", err)
		respond(c, http.StatusInternalServerError, callResponse{Message: "internal error"})
		return
	}
	if list == nil {
		list = []models.CallRoom{}
	}
	c.JSON(http.StatusOK, gin.H{"statusCode": http.StatusOK, "rooms": list})
}

func (h *Handlers) writeRoomError(c *gin.Context, err error) {
	status, msg := roomErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("call room operation failed", "error", err)
	}
	respond(c, status, callResponse{Message: msg})
}

func roomErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		return http.StatusNotFound, "call room not found"
	case errors.Is(err, rooms.ErrNotParticipant):
		return http.StatusForbidden, "not allowed for this call room"
	case errors.Is(err, rooms.ErrSelfCall):
		return http.StatusBadRequest, "cannot call yourself"
	case errors.Is(err, rooms.ErrRoomResolved):
		return http.StatusConflict, "call room already resolved"
	case errors.Is(err, rooms.ErrRoomExpired):
		return http.StatusGone, "call room expired"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
