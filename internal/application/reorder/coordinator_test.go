package reorder

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/taskboard/taskboard/internal/domain/lock"
	"github.com/taskboard/taskboard/internal/domain/task"
	"github.com/taskboard/taskboard/internal/domain/task/mocks"
)

// fakeLocks holds a single position lock for the configured holder.
type fakeLocks struct {
	holderID uuid.UUID
	held     bool
	released bool
}

func (f *fakeLocks) Get(_ context.Context, _ uuid.UUID, _ lock.Kind) (*lock.Lock, error) {
	if !f.held {
		return &lock.Lock{}, nil
	}
	now := time.Now().UTC()
	id := f.holderID
	name := "alice"
	return &lock.Lock{Held: true, HolderID: &id, HolderName: &name, AcquiredAt: &now}, nil
}

func (f *fakeLocks) Release(_ context.Context, _ uuid.UUID, _ lock.Kind, holderID uuid.UUID) (bool, error) {
	if f.held && f.holderID == holderID {
		f.held = false
		f.released = true
		return true, nil
	}
	return false, nil
}

func TestReorderMoveLastToFront(t *testing.T) {
	ctrl := gomock.NewController(t)
	tasks := mocks.NewMockRepository(ctrl)

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	dragged := ids[4]
	holder := lock.Holder{ID: uuid.New(), Name: "alice"}
	locks := &fakeLocks{holderID: holder.ID, held: true}

	// Final ordering: the 5th card moved to position 1.
	ordered := []uuid.UUID{ids[4], ids[0], ids[1], ids[2], ids[3]}

	tasks.EXPECT().GetByID(gomock.Any(), dragged).
		Return(&task.Task{TaskID: dragged, Title: "t5", Status: task.StatusTodo, OrderIndex: 5}, nil)
	tasks.EXPECT().ListIDsByStatus(gomock.Any(), task.StatusTodo).Return(ids, nil)

	var phases [][]task.Position
	tasks.EXPECT().
		UpdateOrderIndexes(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, positions []task.Position, _ time.Time) error {
			phases = append(phases, positions)
			return nil
		}).
		Times(2)

	c := NewCoordinator(tasks, locks, nil, zerolog.Nop())
	got, err := c.Reorder(context.Background(), dragged, holder, ordered)
	require.NoError(t, err)

	// Dense, duplicate-free, bijective onto the input order.
	require.Len(t, got, 5)
	for i, p := range got {
		assert.Equal(t, ordered[i], p.TaskID)
		assert.Equal(t, i+1, p.OrderIndex)
	}

	// Spread phase went first and used the disjoint high range.
	require.Len(t, phases, 2)
	for i, p := range phases[0] {
		assert.Equal(t, task.SpreadOffset+i+1, p.OrderIndex)
	}
	assert.Equal(t, got, phases[1])

	assert.True(t, locks.released, "position lock must be released after both phases")
}

func TestReorderWithoutLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	tasks := mocks.NewMockRepository(ctrl)

	dragged := uuid.New()
	tasks.EXPECT().GetByID(gomock.Any(), dragged).
		Return(&task.Task{TaskID: dragged, Title: "t", Status: task.StatusTodo}, nil)

	c := NewCoordinator(tasks, &fakeLocks{}, nil, zerolog.Nop())
	_, err := c.Reorder(context.Background(), dragged, lock.Holder{ID: uuid.New(), Name: "bob"}, []uuid.UUID{dragged})
	assert.ErrorIs(t, err, ErrLockNotHeld)
}

func TestReorderLockHeldByOther(t *testing.T) {
	ctrl := gomock.NewController(t)
	tasks := mocks.NewMockRepository(ctrl)

	dragged := uuid.New()
	tasks.EXPECT().GetByID(gomock.Any(), dragged).
		Return(&task.Task{TaskID: dragged, Title: "t", Status: task.StatusTodo}, nil)

	locks := &fakeLocks{holderID: uuid.New(), held: true}
	c := NewCoordinator(tasks, locks, nil, zerolog.Nop())
	_, err := c.Reorder(context.Background(), dragged, lock.Holder{ID: uuid.New(), Name: "bob"}, []uuid.UUID{dragged})
	assert.ErrorIs(t, err, ErrLockNotHeld)
}

func TestReorderRejectsIncompleteMembership(t *testing.T) {
	ctrl := gomock.NewController(t)
	tasks := mocks.NewMockRepository(ctrl)

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	dragged := ids[0]
	holder := lock.Holder{ID: uuid.New(), Name: "alice"}
	locks := &fakeLocks{holderID: holder.ID, held: true}

	tasks.EXPECT().GetByID(gomock.Any(), dragged).
		Return(&task.Task{TaskID: dragged, Title: "t", Status: task.StatusTodo}, nil).
		AnyTimes()
	tasks.EXPECT().ListIDsByStatus(gomock.Any(), task.StatusTodo).Return(ids, nil).AnyTimes()

	c := NewCoordinator(tasks, locks, nil, zerolog.Nop())

	// Omitted id.
	_, err := c.Reorder(context.Background(), dragged, holder, ids[:2])
	assert.ErrorIs(t, err, ErrIncompleteOrdering)

	// Foreign id in place of a member.
	foreign := []uuid.UUID{ids[0], ids[1], uuid.New()}
	_, err = c.Reorder(context.Background(), dragged, holder, foreign)
	assert.ErrorIs(t, err, ErrIncompleteOrdering)

	assert.True(t, locks.held, "a rejected reorder must not release the lock")
}

func TestReorderRejectsDuplicateIDs(t *testing.T) {
	ctrl := gomock.NewController(t)
	tasks := mocks.NewMockRepository(ctrl)

	dragged := uuid.New()
	c := NewCoordinator(tasks, &fakeLocks{}, nil, zerolog.Nop())
	_, err := c.Reorder(context.Background(), dragged, lock.Holder{ID: uuid.New()}, []uuid.UUID{dragged, dragged})
	assert.ErrorIs(t, err, ErrIncompleteOrdering)
}

func TestReorderUnknownTask(t *testing.T) {
	ctrl := gomock.NewController(t)
	tasks := mocks.NewMockRepository(ctrl)

	dragged := uuid.New()
	tasks.EXPECT().GetByID(gomock.Any(), dragged).Return(nil, nil)

	c := NewCoordinator(tasks, &fakeLocks{}, nil, zerolog.Nop())
	_, err := c.Reorder(context.Background(), dragged, lock.Holder{ID: uuid.New()}, []uuid.UUID{dragged})
	assert.ErrorIs(t, err, task.ErrNotFound)
}
