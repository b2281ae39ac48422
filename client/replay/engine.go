// Package replay pushes queued offline mutations to the server once
// connectivity returns. Replay is sequential and FIFO; a mutation that
// loses a lock race or targets a vanished task is recorded as a conflict
// and skipped rather than aborting the pass.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskboard/taskboard/client"
	"github.com/taskboard/taskboard/client/queue"
)

// ErrReplayInProgress means another replay pass is already running.
var ErrReplayInProgress = errors.New("replay already in progress")

// API is the slice of the server client that replay drives.
type API interface {
	CreateTask(ctx context.Context, title, description, status string) (*client.Task, error)
	UpdateTaskContent(ctx context.Context, taskID uuid.UUID, title, description string) (*client.Task, error)
	MoveTask(ctx context.Context, taskID uuid.UUID, status string) (*client.Task, error)
	DeleteTask(ctx context.Context, taskID uuid.UUID) error
	Reorder(ctx context.Context, taskID uuid.UUID, holder client.Holder, orderedIDs []uuid.UUID) ([]client.Position, error)

	AcquireLock(ctx context.Context, taskID uuid.UUID, holder client.Holder) (*client.AcquireResult, error)
	ReleaseLock(ctx context.Context, taskID uuid.UUID, holder client.Holder) error
	AcquireEditLock(ctx context.Context, taskID uuid.UUID, holder client.Holder) (*client.AcquireResult, error)
	ReleaseEditLock(ctx context.Context, taskID uuid.UUID, holder client.Holder) error
}

// Queue is the slice of the mutation store replay drains.
type Queue interface {
	Drain(ctx context.Context) ([]queue.Mutation, error)
	Remove(ctx context.Context, localID int64) error
	Clear(ctx context.Context) error
}

// Created correlates an offline placeholder with the server-created task.
type Created struct {
	TempID uuid.UUID
	Title  string
	Task   *client.Task
}

// Conflict is one mutation that could not be applied.
type Conflict struct {
	LocalID int64
	Kind    queue.Kind
	TaskID  uuid.UUID
	Reason  string
}

// Report summarizes one replay pass.
type Report struct {
	Replayed  int
	Created   []Created
	Conflicts []Conflict
	Dropped   int
}

// Engine replays the offline queue against the server.
type Engine struct {
	api     API
	queue   Queue
	holder  client.Holder
	logger  zerolog.Logger
	running atomic.Bool
}

func New(api API, q Queue, holder client.Holder, logger zerolog.Logger) *Engine {
	return &Engine{
		api:    api,
		queue:  q,
		holder: holder,
		logger: logger.With().Str("component", "replay").Logger(),
	}
}

// Replay drains the queue in FIFO order. Only one pass runs at a time;
// a concurrent call returns ErrReplayInProgress. Whatever a pass could
// not apply is discarded at the end: the queue never carries mutations
// into a second pass.
func (e *Engine) Replay(ctx context.Context) (*Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrReplayInProgress
	}
	defer e.running.Store(false)

	mutations, err := e.queue.Drain(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, m := range mutations {
		created, err := e.apply(ctx, m)
		if err != nil {
			reason := err.Error()
			e.logger.Warn().
				Int64("local_id", m.LocalID).
				Str("kind", string(m.Kind)).
				Str("reason", reason).
				Msg("mutation not applied")
			report.Conflicts = append(report.Conflicts, Conflict{
				LocalID: m.LocalID,
				Kind:    m.Kind,
				TaskID:  mutationTaskID(m),
				Reason:  reason,
			})
			continue
		}
		if err := e.queue.Remove(ctx, m.LocalID); err != nil {
			return report, err
		}
		report.Replayed++
		if created != nil {
			report.Created = append(report.Created, *created)
		}
	}

	// One pass only: anything still queued (conflicts, transient
	// failures) is dropped so stale edits cannot resurface later.
	report.Dropped = len(mutations) - report.Replayed
	if err := e.queue.Clear(ctx); err != nil {
		return report, err
	}
	return report, nil
}

func (e *Engine) apply(ctx context.Context, m queue.Mutation) (*Created, error) {
	switch m.Kind {
	case queue.KindCreate:
		return e.applyCreate(ctx, m)
	case queue.KindUpdateContent:
		return nil, e.applyUpdateContent(ctx, m)
	case queue.KindUpdatePosition:
		return nil, e.applyUpdatePosition(ctx, m)
	case queue.KindReorder:
		return nil, e.applyReorder(ctx, m)
	case queue.KindDelete:
		return nil, e.applyDelete(ctx, m)
	default:
		return nil, fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
}

// applyCreate needs no lock: the task does not exist on the server yet.
// The response is correlated back to the placeholder via TempID.
func (e *Engine) applyCreate(ctx context.Context, m queue.Mutation) (*Created, error) {
	var p queue.CreatePayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return nil, err
	}
	t, err := e.api.CreateTask(ctx, p.Title, p.Description, p.Status)
	if err != nil {
		return nil, err
	}
	return &Created{TempID: p.TempID, Title: p.Title, Task: t}, nil
}

func (e *Engine) applyUpdateContent(ctx context.Context, m queue.Mutation) error {
	var p queue.UpdateContentPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return err
	}
	if err := e.withEditLock(ctx, p.TaskID, func() error {
		_, err := e.api.UpdateTaskContent(ctx, p.TaskID, p.Title, p.Description)
		return err
	}); err != nil {
		return err
	}
	return nil
}

func (e *Engine) applyUpdatePosition(ctx context.Context, m queue.Mutation) error {
	var p queue.UpdatePositionPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return err
	}
	grant, err := e.api.AcquireLock(ctx, p.TaskID, e.holder)
	if err != nil {
		return err
	}
	if !grant.Granted {
		return lockedByErr(grant)
	}
	_, moveErr := e.api.MoveTask(ctx, p.TaskID, p.Status)
	if relErr := e.api.ReleaseLock(ctx, p.TaskID, e.holder); relErr != nil {
		e.logger.Warn().Err(relErr).Str("task_id", p.TaskID.String()).Msg("failed to release position lock")
	}
	return moveErr
}

// applyReorder relies on the server releasing the position lock itself
// after a successful reorder; the explicit release only happens on failure.
func (e *Engine) applyReorder(ctx context.Context, m queue.Mutation) error {
	var p queue.ReorderPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return err
	}
	grant, err := e.api.AcquireLock(ctx, p.TaskID, e.holder)
	if err != nil {
		return err
	}
	if !grant.Granted {
		return lockedByErr(grant)
	}
	if _, err := e.api.Reorder(ctx, p.TaskID, e.holder, p.OrderedIDs); err != nil {
		if relErr := e.api.ReleaseLock(ctx, p.TaskID, e.holder); relErr != nil {
			e.logger.Warn().Err(relErr).Str("task_id", p.TaskID.String()).Msg("failed to release position lock")
		}
		return err
	}
	return nil
}

// applyDelete holds the position lock while deleting; the lock row is
// removed with the task, so there is nothing to release on success.
func (e *Engine) applyDelete(ctx context.Context, m queue.Mutation) error {
	var p queue.DeletePayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return err
	}
	grant, err := e.api.AcquireLock(ctx, p.TaskID, e.holder)
	if err != nil {
		return err
	}
	if !grant.Granted {
		return lockedByErr(grant)
	}
	if err := e.api.DeleteTask(ctx, p.TaskID); err != nil {
		if relErr := e.api.ReleaseLock(ctx, p.TaskID, e.holder); relErr != nil {
			e.logger.Warn().Err(relErr).Str("task_id", p.TaskID.String()).Msg("failed to release position lock")
		}
		return err
	}
	return nil
}

func (e *Engine) withEditLock(ctx context.Context, taskID uuid.UUID, fn func() error) error {
	grant, err := e.api.AcquireEditLock(ctx, taskID, e.holder)
	if err != nil {
		return err
	}
	if !grant.Granted {
		return lockedByErr(grant)
	}
	fnErr := fn()
	if relErr := e.api.ReleaseEditLock(ctx, taskID, e.holder); relErr != nil {
		e.logger.Warn().Err(relErr).Str("task_id", taskID.String()).Msg("failed to release content lock")
	}
	return fnErr
}

func lockedByErr(grant *client.AcquireResult) error {
	if grant.LockedBy != nil {
		return fmt.Errorf("%w: locked by %s", client.ErrConflict, grant.LockedBy.Name)
	}
	return client.ErrConflict
}

func mutationTaskID(m queue.Mutation) uuid.UUID {
	var probe struct {
		TaskID uuid.UUID `json:"task_id"`
	}
	_ = json.Unmarshal(m.Payload, &probe)
	return probe.TaskID
}
