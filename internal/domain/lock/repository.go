package lock

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for per-task lock records. Acquire, Release
// and ForceRelease must each execute as one atomic unit so that two racing
// callers targeting the same task cannot both succeed.
type Repository interface {
	// Acquire attempts the acquire transition for holder at now.
	// Returns ErrNotFound when no lock record exists for the task.
	Acquire(ctx context.Context, taskID uuid.UUID, kind Kind, holder Holder, now time.Time) (*Grant, error)

	// Release frees the lock only when held by exactly holderID.
	Release(ctx context.Context, taskID uuid.UUID, kind Kind, holderID uuid.UUID) (bool, error)

	// ForceRelease frees the lock regardless of holder. False when already free.
	ForceRelease(ctx context.Context, taskID uuid.UUID, kind Kind) (bool, error)

	// Get returns the current lock state, or ErrNotFound.
	Get(ctx context.Context, taskID uuid.UUID, kind Kind) (*Lock, error)

	// ListExpired returns held locks of any kind with acquired_at before
	// threshold, oldest first.
	ListExpired(ctx context.Context, threshold time.Time, limit int) ([]*HeldLock, error)
}
