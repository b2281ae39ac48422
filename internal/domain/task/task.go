package task

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the board column a task lives in.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// SpreadOffset is the base of the staging range used when a whole column is
// renumbered in two phases. Indexes above it never collide with the dense
// 1..N range, so each phase satisfies the per-column uniqueness constraint.
const SpreadOffset = 10000

// Valid reports whether s names a known column.
func (s Status) Valid() bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusDone
}

var (
	ErrNotFound      = errors.New("task not found")
	ErrInvalidStatus = errors.New("invalid task status")
	ErrEmptyTitle    = errors.New("title is required")
)

// Task is one board item. OrderIndex is dense and unique within its Status
// column; column-wide renumbering goes through the reorder coordinator.
type Task struct {
	ID          int64     `json:"id"`
	TaskID      uuid.UUID `json:"taskId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	OrderIndex  int       `json:"orderIndex"`
	CreatedBy   *string   `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks the fields a caller controls.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if !t.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Position pairs a task with its order index, the minimal payload a reorder
// broadcast carries.
type Position struct {
	TaskID     uuid.UUID `json:"id"`
	OrderIndex int       `json:"orderIndex"`
}
