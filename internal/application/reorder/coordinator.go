package reorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskboard/taskboard/internal/domain/event"
	"github.com/taskboard/taskboard/internal/domain/lock"
	"github.com/taskboard/taskboard/internal/domain/task"
)

var (
	ErrLockNotHeld        = errors.New("position lock not held by caller")
	ErrIncompleteOrdering = errors.New("ordered ids do not match column membership")
)

// LockManager is the slice of the lock service the coordinator needs.
type LockManager interface {
	Get(ctx context.Context, taskID uuid.UUID, kind lock.Kind) (*lock.Lock, error)
	Release(ctx context.Context, taskID uuid.UUID, kind lock.Kind, holderID uuid.UUID) (bool, error)
}

// Coordinator renumbers one board column into a dense 1-based sequence
// under protection of the dragged task's position lock.
type Coordinator struct {
	tasks  task.Repository
	locks  LockManager
	hub    event.Hub
	logger zerolog.Logger
}

func NewCoordinator(tasks task.Repository, locks LockManager, hub event.Hub, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		tasks:  tasks,
		locks:  locks,
		hub:    hub,
		logger: logger.With().Str("service", "reorder").Logger(),
	}
}

// Reorder applies orderedIDs as the complete final ordering of the dragged
// task's column. The write happens in two phases (spread to a disjoint
// high range, then compact to dense 1-based indexes), each committed as one
// atomic batch. The position lock is released and the new positions
// broadcast only after both phases commit.
func (c *Coordinator) Reorder(ctx context.Context, draggedID uuid.UUID, holder lock.Holder, orderedIDs []uuid.UUID) ([]task.Position, error) {
	if draggedID == uuid.Nil || holder.ID == uuid.Nil {
		return nil, fmt.Errorf("dragged_id and holder_id are required")
	}
	if len(orderedIDs) == 0 {
		return nil, fmt.Errorf("ordered_ids is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, dup := seen[id]; dup {
			return nil, ErrIncompleteOrdering
		}
		seen[id] = struct{}{}
	}

	dragged, err := c.tasks.GetByID(ctx, draggedID)
	if err != nil {
		return nil, err
	}
	if dragged == nil {
		return nil, task.ErrNotFound
	}

	l, err := c.locks.Get(ctx, draggedID, lock.KindPosition)
	if err != nil {
		return nil, err
	}
	if l == nil || !l.HeldBy(holder.ID) {
		return nil, ErrLockNotHeld
	}

	// The caller declares the full column; fail closed on any omission,
	// duplicate or foreign id rather than reindex a partial set.
	members, err := c.tasks.ListIDsByStatus(ctx, dragged.Status)
	if err != nil {
		return nil, err
	}
	if len(members) != len(orderedIDs) {
		return nil, ErrIncompleteOrdering
	}
	for _, id := range members {
		if _, ok := seen[id]; !ok {
			return nil, ErrIncompleteOrdering
		}
	}

	now := time.Now().UTC()

	spread := make([]task.Position, len(orderedIDs))
	compact := make([]task.Position, len(orderedIDs))
	for i, id := range orderedIDs {
		spread[i] = task.Position{TaskID: id, OrderIndex: task.SpreadOffset + i + 1}
		compact[i] = task.Position{TaskID: id, OrderIndex: i + 1}
	}

	if err := c.tasks.UpdateOrderIndexes(ctx, spread, now); err != nil {
		return nil, fmt.Errorf("spread phase: %w", err)
	}
	if err := c.tasks.UpdateOrderIndexes(ctx, compact, now); err != nil {
		return nil, fmt.Errorf("compact phase: %w", err)
	}

	if _, err := c.locks.Release(ctx, draggedID, lock.KindPosition, holder.ID); err != nil {
		c.logger.Warn().Err(err).
			Str("task_id", draggedID.String()).
			Msg("failed to release position lock after reorder")
	}

	if c.hub != nil {
		c.hub.BroadcastToAll(event.NewSSEMessage(
			event.TypeTaskReordered,
			event.ReorderPayload{Positions: compact},
		))
	}

	c.logger.Debug().
		Str("task_id", draggedID.String()).
		Str("status", string(dragged.Status)).
		Int("count", len(compact)).
		Msg("column reordered")

	return compact, nil
}
