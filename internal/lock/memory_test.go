package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiplatform/internal/common/clock"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	clk := &clock.Fixed{T: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	l := NewMemoryLocker(clk)
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, RechargeKey("comp-1"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok2, err := l.Acquire(ctx, RechargeKey("comp-1"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok2, "second acquire on same key must be rejected")

	// Independent keys do not contend.
	_, ok3, err := l.Acquire(ctx, RechargeKey("comp-2"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok3)

	require.NoError(t, release(ctx))

	_, ok4, err := l.Acquire(ctx, RechargeKey("comp-1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok4, "lock must be free after release")
}

func TestMemoryLockerTTLExpiry(t *testing.T) {
	clk := &clock.Fixed{T: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	l := NewMemoryLocker(clk)
	ctx := context.Background()

	staleRelease, ok, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clk.Advance(2 * time.Minute)

	// Expired lock can be taken by a new holder.
	_, ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// The stale holder's release must not free the new holder's lock.
	require.NoError(t, staleRelease(ctx))
	_, ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRechargeKey(t *testing.T) {
	assert.Equal(t, "autorecharge:lock:comp-1", RechargeKey("comp-1"))
}
