package rooms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tariel-x/callsupport/internal/models"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"
)

var (
	ErrRoomNotFound   = errors.New("call room not found")
	ErrRoomResolved   = errors.New("call room already resolved")
	ErrRoomExpired    = errors.New("call room expired")
	ErrNotParticipant = errors.New("user is not allowed to act on this call room")
	ErrSelfCall       = errors.New("cannot call yourself")
)

const DefaultTTL = 2 * time.Minute

// Store persists call rooms. Transitions are serialized by mu; the database
// only sees the result.
type Store struct {
	mu  sync.Mutex
	db  *gorm.DB
	ttl time.Duration
}

func NewStore(db *gorm.DB, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{db: db, ttl: ttl}
}

func (s *Store) Create(userID, trainerID string, now time.Time) (*models.CallRoom, error) {
	if userID == trainerID {
		return nil, ErrSelfCall
	}

	id, err := gonanoid.New(16)
	if err != nil {
		return nil, err
	}

	now = now.UTC()
	room := &models.CallRoom{
		ID:        id,
		UserID:    userID,
		TrainerID: trainerID,
		Status:    models.CallRoomPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Create(room).Error; err != nil {
		return nil, fmt.Errorf("create call room: %w", err)
	}
	return room, nil
}

func (s *Store) Get(roomID string, now time.Time) (*models.CallRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(roomID, now)
}

// Validate checks that the room is still pending and that userID takes part in it.
func (s *Store) Validate(roomID, userID string, now time.Time) (*models.CallRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.loadLocked(roomID, now)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(userID) {
		return room, ErrNotParticipant
	}
	if err := statusErr(room.Status); err != nil {
		return room, err
	}
	return room, nil
}

// Accept moves a pending room to accepted. Only the trainer may accept.
func (s *Store) Accept(roomID, acceptorID string, now time.Time) (*models.CallRoom, error) {
	return s.resolve(roomID, acceptorID, models.CallRoomAccepted, now)
}

// Reject moves a pending room to rejected. Either participant may reject;
// the requester rejecting is how a caller cancels.
func (s *Store) Reject(roomID, rejectorID string, now time.Time) (*models.CallRoom, error) {
	return s.resolve(roomID, rejectorID, models.CallRoomRejected, now)
}

// ListPending returns the pending rooms waiting for trainerID, oldest first.
func (s *Store) ListPending(trainerID string, limit int, now time.Time) ([]models.CallRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.expireLocked(now); err != nil {
		return nil, err
	}

	q := s.db.Where("trainer_id = ? AND status = ?", trainerID, models.CallRoomPending).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rooms []models.CallRoom
	if err := q.Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

// ExpireStale marks every pending room past its deadline as expired.
func (s *Store) ExpireStale(now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expireLocked(now)
}

// RunSweeper expires stale rooms every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration, nowFn func() time.Time) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.ExpireStale(nowFn())
		}
	}
}

func (s *Store) resolve(roomID, actorID string, target models.CallRoomStatus, now time.Time) (*models.CallRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.loadLocked(roomID, now)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(actorID) {
		return room, ErrNotParticipant
	}
	if target == models.CallRoomAccepted && actorID != room.TrainerID {
		return room, ErrNotParticipant
	}
	if err := statusErr(room.Status); err != nil {
		return room, err
	}

	res := s.db.Model(&models.CallRoom{}).
		Where("id = ? AND status = ?", room.ID, models.CallRoomPending).
		Updates(map[string]any{
			"status":      target,
			"resolved_by": actorID,
			"updated_at":  now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("update call room: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return room, ErrRoomResolved
	}

	room.Status = target
	room.ResolvedBy = actorID
	room.UpdatedAt = now
	return room, nil
}

func (s *Store) loadLocked(roomID string, now time.Time) (*models.CallRoom, error) {
	var room models.CallRoom
	if err := s.db.First(&room, "id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	if room.Status == models.CallRoomPending && !room.ExpiresAt.IsZero() && now.After(room.ExpiresAt) {
		err := s.db.Model(&room).Updates(map[string]any{
			"status":     models.CallRoomExpired,
			"updated_at": now,
		}).Error
		if err != nil {
			return nil, fmt.Errorf("expire call room: %w", err)
		}
		room.Status = models.CallRoomExpired
		room.UpdatedAt = now
	}

	return &room, nil
}

func (s *Store) expireLocked(now time.Time) (int64, error) {
	now = now.UTC()
	res := s.db.Model(&models.CallRoom{}).
		Where("status = ? AND expires_at < ?", models.CallRoomPending, now).
		Updates(map[string]any{
			"status":     models.CallRoomExpired,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

func statusErr(status models.CallRoomStatus) error {
	switch status {
	case models.CallRoomPending:
		return nil
	case models.CallRoomExpired:
		return ErrRoomExpired
	default:
		return ErrRoomResolved
	}
}
