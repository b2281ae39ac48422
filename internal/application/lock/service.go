package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskboard/taskboard/internal/domain/event"
	"github.com/taskboard/taskboard/internal/domain/lock"
)

// Service is the lock manager: the single source of truth for who may
// mutate what right now. Atomicity lives in the repository; the service
// validates input, routes the typed outcome and broadcasts transitions.
type Service struct {
	repo   lock.Repository
	hub    event.Hub
	logger zerolog.Logger
}

func NewService(repo lock.Repository, hub event.Hub, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		hub:    hub,
		logger: logger.With().Str("service", "lock").Logger(),
	}
}

// Acquire attempts to take the kind lock on a task for holder. A denial is
// returned as a Grant value carrying the blocking holder, not as an error.
// Re-acquiring a self-held lock succeeds without refreshing the TTL clock.
func (s *Service) Acquire(ctx context.Context, taskID uuid.UUID, kind lock.Kind, holder lock.Holder) (*lock.Grant, error) {
	if taskID == uuid.Nil || holder.ID == uuid.Nil {
		return nil, fmt.Errorf("task_id and holder_id are required")
	}
	if !kind.Valid() {
		return nil, lock.ErrInvalidKind
	}

	grant, err := s.repo.Acquire(ctx, taskID, kind, holder, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if grant.Granted {
		s.broadcast(kind, event.LockActionAcquired, taskID, &holder)
		s.logger.Debug().
			Str("task_id", taskID.String()).
			Str("kind", string(kind)).
			Str("holder", holder.Name).
			Msg("lock acquired")
	}
	return grant, nil
}

// Release frees the kind lock on a task if held by exactly holderID.
// Anything else is a no-op returning false.
func (s *Service) Release(ctx context.Context, taskID uuid.UUID, kind lock.Kind, holderID uuid.UUID) (bool, error) {
	if taskID == uuid.Nil || holderID == uuid.Nil {
		return false, fmt.Errorf("task_id and holder_id are required")
	}
	if !kind.Valid() {
		return false, lock.ErrInvalidKind
	}

	released, err := s.repo.Release(ctx, taskID, kind, holderID)
	if err != nil {
		return false, err
	}
	if released {
		s.broadcast(kind, event.LockActionReleased, taskID, nil)
	}
	return released, nil
}

// ForceRelease frees the kind lock regardless of holder. Used by the expiry
// scheduler; emits the distinct expired notification so observers can tell
// abandonment from a cooperative release. Safe to call redundantly.
func (s *Service) ForceRelease(ctx context.Context, taskID uuid.UUID, kind lock.Kind) (bool, error) {
	if !kind.Valid() {
		return false, lock.ErrInvalidKind
	}

	released, err := s.repo.ForceRelease(ctx, taskID, kind)
	if err != nil {
		return false, err
	}
	if released {
		s.broadcast(kind, event.LockActionExpired, taskID, nil)
		s.logger.Info().
			Str("task_id", taskID.String()).
			Str("kind", string(kind)).
			Msg("lock force-released")
	}
	return released, nil
}

// Get returns the current state of one lock.
func (s *Service) Get(ctx context.Context, taskID uuid.UUID, kind lock.Kind) (*lock.Lock, error) {
	if !kind.Valid() {
		return nil, lock.ErrInvalidKind
	}
	l, err := s.repo.Get(ctx, taskID, kind)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, lock.ErrNotFound
	}
	return l, nil
}

// ListExpired returns held locks acquired before threshold, oldest first.
func (s *Service) ListExpired(ctx context.Context, threshold time.Time, limit int) ([]*lock.HeldLock, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListExpired(ctx, threshold, limit)
}

func (s *Service) broadcast(kind lock.Kind, action event.LockAction, taskID uuid.UUID, holder *lock.Holder) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToAll(event.NewSSEMessage(
		event.ForLock(kind, action),
		event.LockPayload{TaskID: taskID, Holder: holder},
	))
}
