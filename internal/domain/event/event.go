package event

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/taskboard/internal/domain/lock"
	"github.com/taskboard/taskboard/internal/domain/task"
)

// Type names one broadcast notification. Payloads are deliberately minimal:
// observers update their local view by identity-keyed overwrite, so a type
// plus the affected ids is enough.
type Type string

const (
	TypeLockAcquired Type = "lock_acquired"
	TypeLockReleased Type = "lock_released"
	TypeLockExpired  Type = "lock_expired"

	TypeEditLockAcquired Type = "edit_lock_acquired"
	TypeEditLockReleased Type = "edit_lock_released"
	TypeEditLockExpired  Type = "edit_lock_expired"

	TypeTaskCreated   Type = "task_created"
	TypeTaskUpdated   Type = "task_updated"
	TypeTaskReordered Type = "task_reordered"
	TypeTaskDeleted   Type = "task_deleted"
)

var (
	ErrClientNotFound = errors.New("SSE client not found")
	ErrChannelFull    = errors.New("SSE message channel full")
)

// LockAction distinguishes the three lock transitions when mapping to a Type.
type LockAction string

const (
	LockActionAcquired LockAction = "acquired"
	LockActionReleased LockAction = "released"
	LockActionExpired  LockAction = "expired"
)

// ForLock returns the notification type for a transition on a lock kind.
// A scheduler-forced release is "expired", never "released", so observers
// can tell abandonment from a cooperative release.
func ForLock(kind lock.Kind, action LockAction) Type {
	switch kind {
	case lock.KindContent:
		switch action {
		case LockActionAcquired:
			return TypeEditLockAcquired
		case LockActionReleased:
			return TypeEditLockReleased
		default:
			return TypeEditLockExpired
		}
	default:
		switch action {
		case LockActionAcquired:
			return TypeLockAcquired
		case LockActionReleased:
			return TypeLockReleased
		default:
			return TypeLockExpired
		}
	}
}

// LockPayload is broadcast for lock transitions. Holder is set only on
// acquire.
type LockPayload struct {
	TaskID uuid.UUID    `json:"taskId"`
	Holder *lock.Holder `json:"holder,omitempty"`
}

// TaskPayload is broadcast for task create and update.
type TaskPayload struct {
	Task *task.Task `json:"task"`
}

// ReorderPayload is broadcast after a column renumber: index pairs only,
// not full entities.
type ReorderPayload struct {
	Positions []task.Position `json:"positions"`
}

// DeletePayload is broadcast for task deletion.
type DeletePayload struct {
	TaskID uuid.UUID `json:"id"`
}

// SSEClient is one active observer connection.
type SSEClient struct {
	ClientID    string
	UserID      *string
	ConnectedAt time.Time
	MessageChan chan *SSEMessage
}

// NewSSEClient creates a connected observer with a buffered channel;
// delivery is best-effort and a full channel drops the message.
func NewSSEClient(clientID string, userID *string) *SSEClient {
	return &SSEClient{
		ClientID:    clientID,
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *SSEMessage, 100),
	}
}

// Close closes the client's message channel.
func (c *SSEClient) Close() {
	close(c.MessageChan)
}

// SSEMessage is one wire notification.
type SSEMessage struct {
	ID        string          `json:"id"`
	Event     Type            `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewSSEMessage builds a message, marshaling the payload. A payload that
// fails to marshal yields a message with empty data rather than an error;
// broadcast is best-effort by contract.
func NewSSEMessage(eventType Type, payload interface{}) *SSEMessage {
	var data json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			data = b
		}
	}
	return &SSEMessage{
		ID:        uuid.New().String(),
		Event:     eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Hub is the injectable fan-out channel every state-changing service
// broadcasts through. Delivery is at-most-once per observer and not
// guaranteed; observers must tolerate duplicates and reordering.
type Hub interface {
	Register(client *SSEClient)
	Unregister(client *SSEClient)
	GetClient(clientID string) *SSEClient
	GetClientCount() int

	BroadcastToAll(message *SSEMessage)
	SendToClient(clientID string, message *SSEMessage) error
}
