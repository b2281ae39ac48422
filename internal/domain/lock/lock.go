package lock

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind identifies one independently coordinated concern on a task. The
// position lock guards drag-reordering, the content lock guards edits; the
// two never interact.
type Kind string

const (
	KindPosition Kind = "position"
	KindContent  Kind = "content"
)

// Kinds lists every lock kind seeded for a task.
var Kinds = []Kind{KindPosition, KindContent}

// Valid reports whether k names a known lock kind.
func (k Kind) Valid() bool {
	return k == KindPosition || k == KindContent
}

var (
	ErrNotFound    = errors.New("lock not found")
	ErrInvalidKind = errors.New("invalid lock kind")
)

// Holder is the identity requesting or owning a lock.
type Holder struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Lock is the state of one lockable concern on one task.
// Invariant: Held=false implies HolderID, HolderName and AcquiredAt are nil.
type Lock struct {
	Held       bool       `json:"held"`
	HolderID   *uuid.UUID `json:"holderId,omitempty"`
	HolderName *string    `json:"holderName,omitempty"`
	AcquiredAt *time.Time `json:"acquiredAt,omitempty"`
}

// Holder returns the current holder, or nil when free.
func (l *Lock) Holder() *Holder {
	if !l.Held || l.HolderID == nil {
		return nil
	}
	h := Holder{ID: *l.HolderID}
	if l.HolderName != nil {
		h.Name = *l.HolderName
	}
	return &h
}

// HeldBy reports whether the lock is currently held by holderID.
func (l *Lock) HeldBy(holderID uuid.UUID) bool {
	return l.Held && l.HolderID != nil && *l.HolderID == holderID
}

// Acquire applies the acquire transition and reports whether it was granted.
// A free lock transitions to held by h at now. Re-acquiring a self-held lock
// succeeds without touching AcquiredAt, so a holder cannot extend the TTL
// clock by polling. A lock held by someone else is left unchanged.
func (l *Lock) Acquire(h Holder, now time.Time) bool {
	if l.Held {
		return l.HeldBy(h.ID)
	}
	name := h.Name
	id := h.ID
	l.Held = true
	l.HolderID = &id
	l.HolderName = &name
	l.AcquiredAt = &now
	return true
}

// Release applies the cooperative release transition. Only the current
// holder may release; any other caller is a no-op returning false.
func (l *Lock) Release(holderID uuid.UUID) bool {
	if !l.HeldBy(holderID) {
		return false
	}
	l.clear()
	return true
}

// ForceRelease unconditionally frees the lock regardless of holder.
// Returns false if it was already free.
func (l *Lock) ForceRelease() bool {
	if !l.Held {
		return false
	}
	l.clear()
	return true
}

// ExpiredBefore reports whether the lock is held and was acquired strictly
// before threshold.
func (l *Lock) ExpiredBefore(threshold time.Time) bool {
	return l.Held && l.AcquiredAt != nil && l.AcquiredAt.Before(threshold)
}

func (l *Lock) clear() {
	l.Held = false
	l.HolderID = nil
	l.HolderName = nil
	l.AcquiredAt = nil
}

// Grant is the typed outcome of an acquire attempt. A denial is a value,
// not an error: callers branch on LockedBy to show who is blocking.
type Grant struct {
	Granted    bool       `json:"granted"`
	LockedBy   *Holder    `json:"lockedBy,omitempty"`
	AcquiredAt *time.Time `json:"acquiredAt,omitempty"`
}

// HeldLock is one held lock row as seen by the expiry sweep.
type HeldLock struct {
	TaskID     uuid.UUID `json:"taskId"`
	Kind       Kind      `json:"kind"`
	Holder     Holder    `json:"holder"`
	AcquiredAt time.Time `json:"acquiredAt"`
}
