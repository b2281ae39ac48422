package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskboard/taskboard/internal/domain/event"
	"github.com/taskboard/taskboard/internal/domain/task"
)

// Service owns task CRUD. Lock negotiation is the caller's responsibility
// (the lock manager is consulted by the HTTP layer and the replay engine);
// this service performs the mutation and broadcasts the entity event.
type Service struct {
	repo   task.Repository
	hub    event.Hub
	logger zerolog.Logger
}

func NewService(repo task.Repository, hub event.Hub, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		hub:    hub,
		logger: logger.With().Str("service", "task").Logger(),
	}
}

// CreateInput creates a new task at the end of a column.
type CreateInput struct {
	Title       string
	Description string
	Status      task.Status
	Actor       string
}

// Create inserts the task with a server-assigned id and seeds its lock
// records, then broadcasts task_created with the full entity so offline
// creators can reconcile their placeholder.
func (s *Service) Create(ctx context.Context, in CreateInput) (*task.Task, error) {
	title := strings.TrimSpace(in.Title)
	status := in.Status
	if status == "" {
		status = task.StatusTodo
	}

	now := time.Now().UTC()
	t := &task.Task{
		TaskID:      uuid.New(),
		Title:       title,
		Description: in.Description,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if actor := strings.TrimSpace(in.Actor); actor != "" {
		t.CreatedBy = &actor
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	s.broadcast(event.TypeTaskCreated, event.TaskPayload{Task: t})
	s.logger.Debug().Str("task_id", t.TaskID.String()).Msg("task created")
	return t, nil
}

// UpdateContentInput edits title and description.
type UpdateContentInput struct {
	TaskID      uuid.UUID
	Title       string
	Description string
}

// UpdateContent overwrites the task's content fields. There is no version
// check: a replayed offline edit can overwrite a newer concurrent edit
// (last write wins under the lock protocol).
func (s *Service) UpdateContent(ctx context.Context, in UpdateContentInput) (*task.Task, error) {
	if in.TaskID == uuid.Nil {
		return nil, fmt.Errorf("task_id is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, task.ErrEmptyTitle
	}

	now := time.Now().UTC()
	updated, err := s.repo.UpdateContent(ctx, in.TaskID, title, in.Description, now)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, task.ErrNotFound
	}

	t, err := s.repo.GetByID(ctx, in.TaskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, task.ErrNotFound
	}

	s.broadcast(event.TypeTaskUpdated, event.TaskPayload{Task: t})
	return t, nil
}

// Move reassigns the task to the end of the target column and compacts the
// column it left. Explicit in-column placement is the reorder coordinator's
// job, not Move's.
func (s *Service) Move(ctx context.Context, taskID uuid.UUID, status task.Status) (*task.Task, error) {
	if taskID == uuid.Nil {
		return nil, fmt.Errorf("task_id is required")
	}
	if !status.Valid() {
		return nil, task.ErrInvalidStatus
	}

	t, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, task.ErrNotFound
	}
	from := t.Status

	now := time.Now().UTC()
	idx, err := s.repo.MoveToEnd(ctx, taskID, status, now)
	if err != nil {
		return nil, err
	}
	t.Status = status
	t.OrderIndex = idx
	t.UpdatedAt = now

	s.broadcast(event.TypeTaskUpdated, event.TaskPayload{Task: t})

	// A move disturbs the column the task left (or, within a column, the
	// slot it vacated); renumber if a hole formed.
	if positions, err := s.compactColumn(ctx, from, now); err != nil {
		s.logger.Warn().Err(err).Str("status", string(from)).Msg("failed to compact source column")
	} else if len(positions) > 0 {
		s.broadcast(event.TypeTaskReordered, event.ReorderPayload{Positions: positions})
	}
	return t, nil
}

// Delete removes the task (lock records cascade) and compacts its column.
func (s *Service) Delete(ctx context.Context, taskID uuid.UUID) error {
	if taskID == uuid.Nil {
		return fmt.Errorf("task_id is required")
	}

	t, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if t == nil {
		return task.ErrNotFound
	}

	deleted, err := s.repo.Delete(ctx, taskID)
	if err != nil {
		return err
	}
	if !deleted {
		return task.ErrNotFound
	}

	s.broadcast(event.TypeTaskDeleted, event.DeletePayload{TaskID: taskID})

	now := time.Now().UTC()
	if positions, err := s.compactColumn(ctx, t.Status, now); err != nil {
		s.logger.Warn().Err(err).Str("status", string(t.Status)).Msg("failed to compact column after delete")
	} else if len(positions) > 0 {
		s.broadcast(event.TypeTaskReordered, event.ReorderPayload{Positions: positions})
	}
	return nil
}

// Get returns one task.
func (s *Service) Get(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	t, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, task.ErrNotFound
	}
	return t, nil
}

// List returns the whole board ordered by column then index.
func (s *Service) List(ctx context.Context) ([]*task.Task, error) {
	return s.repo.List(ctx)
}

// compactColumn renumbers a column densely after a removal, using the same
// spread/compact batches as the reorder coordinator to avoid transient
// collisions on the unique order index.
func (s *Service) compactColumn(ctx context.Context, status task.Status, now time.Time) ([]task.Position, error) {
	remaining, err := s.repo.ListByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	dense := true
	for i, t := range remaining {
		if t.OrderIndex != i+1 {
			dense = false
			break
		}
	}
	if dense {
		return nil, nil
	}

	spread := make([]task.Position, len(remaining))
	compact := make([]task.Position, len(remaining))
	for i, t := range remaining {
		spread[i] = task.Position{TaskID: t.TaskID, OrderIndex: task.SpreadOffset + i + 1}
		compact[i] = task.Position{TaskID: t.TaskID, OrderIndex: i + 1}
	}
	if err := s.repo.UpdateOrderIndexes(ctx, spread, now); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateOrderIndexes(ctx, compact, now); err != nil {
		return nil, err
	}
	return compact, nil
}

func (s *Service) broadcast(eventType event.Type, payload interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToAll(event.NewSSEMessage(eventType, payload))
}
