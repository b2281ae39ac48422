package task

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for board tasks. Create seeds the task's
// lock records alongside the row; UpdateOrderIndexes commits all pairs as
// one atomic batch or none.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, taskID uuid.UUID) (*Task, error)
	List(ctx context.Context) ([]*Task, error)
	ListByStatus(ctx context.Context, status Status) ([]*Task, error)
	ListIDsByStatus(ctx context.Context, status Status) ([]uuid.UUID, error)
	UpdateContent(ctx context.Context, taskID uuid.UUID, title, description string, updatedAt time.Time) (bool, error)

	// MoveToEnd reassigns the task to status at the end of that column and
	// returns the new order index.
	MoveToEnd(ctx context.Context, taskID uuid.UUID, status Status, updatedAt time.Time) (int, error)

	UpdateOrderIndexes(ctx context.Context, positions []Position, updatedAt time.Time) error
	Delete(ctx context.Context, taskID uuid.UUID) (bool, error)
}
