package lock

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireFreeLock(t *testing.T) {
	h := Holder{ID: uuid.New(), Name: "alice"}
	now := time.Now().UTC()

	var l Lock
	granted := l.Acquire(h, now)

	require.True(t, granted)
	assert.True(t, l.Held)
	require.NotNil(t, l.HolderID)
	assert.Equal(t, h.ID, *l.HolderID)
	require.NotNil(t, l.AcquiredAt)
	assert.Equal(t, now, *l.AcquiredAt)
}

func TestReacquireKeepsTimestamp(t *testing.T) {
	h := Holder{ID: uuid.New(), Name: "alice"}
	t0 := time.Now().UTC()

	var l Lock
	require.True(t, l.Acquire(h, t0))

	granted := l.Acquire(h, t0.Add(90*time.Second))
	require.True(t, granted)
	assert.Equal(t, t0, *l.AcquiredAt, "re-acquire must not refresh the TTL clock")
}

func TestAcquireHeldByOther(t *testing.T) {
	h1 := Holder{ID: uuid.New(), Name: "alice"}
	h2 := Holder{ID: uuid.New(), Name: "bob"}
	now := time.Now().UTC()

	var l Lock
	require.True(t, l.Acquire(h1, now))

	granted := l.Acquire(h2, now.Add(time.Second))
	assert.False(t, granted)
	assert.Equal(t, h1.ID, *l.HolderID, "denied acquire must leave state unchanged")
	assert.Equal(t, now, *l.AcquiredAt)
}

func TestReleaseByHolder(t *testing.T) {
	h := Holder{ID: uuid.New(), Name: "alice"}
	var l Lock
	require.True(t, l.Acquire(h, time.Now().UTC()))

	released := l.Release(h.ID)
	require.True(t, released)
	assert.False(t, l.Held)
	assert.Nil(t, l.HolderID)
	assert.Nil(t, l.HolderName)
	assert.Nil(t, l.AcquiredAt)
}

func TestReleaseByNonHolder(t *testing.T) {
	h := Holder{ID: uuid.New(), Name: "alice"}
	var l Lock
	require.True(t, l.Acquire(h, time.Now().UTC()))

	released := l.Release(uuid.New())
	assert.False(t, released)
	assert.True(t, l.Held)
	assert.Equal(t, h.ID, *l.HolderID)
}

func TestReleaseFreeLock(t *testing.T) {
	var l Lock
	assert.False(t, l.Release(uuid.New()))
}

func TestForceRelease(t *testing.T) {
	h := Holder{ID: uuid.New(), Name: "alice"}
	var l Lock
	require.True(t, l.Acquire(h, time.Now().UTC()))

	require.True(t, l.ForceRelease())
	assert.False(t, l.Held)

	assert.False(t, l.ForceRelease(), "second force-release is an idempotent no-op")
}

func TestExpiredBefore(t *testing.T) {
	h := Holder{ID: uuid.New(), Name: "alice"}
	t0 := time.Now().UTC()

	var l Lock
	require.True(t, l.Acquire(h, t0))

	assert.False(t, l.ExpiredBefore(t0.Add(-time.Minute)))
	assert.False(t, l.ExpiredBefore(t0))
	assert.True(t, l.ExpiredBefore(t0.Add(time.Minute)))

	l.ForceRelease()
	assert.False(t, l.ExpiredBefore(t0.Add(time.Minute)))
}

func TestKindValid(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindPosition, true},
		{KindContent, true},
		{Kind(""), false},
		{Kind("status"), false},
	}
	for _, tc := range tests {
		if got := tc.kind.Valid(); got != tc.want {
			t.Fatalf("Valid(%q) = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestHolderAccessor(t *testing.T) {
	var l Lock
	assert.Nil(t, l.Holder())

	h := Holder{ID: uuid.New(), Name: "alice"}
	require.True(t, l.Acquire(h, time.Now().UTC()))
	got := l.Holder()
	require.NotNil(t, got)
	assert.Equal(t, h, *got)
}
