package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client, "catalogbridge:merge-lock:", time.Minute)
}

func TestAcquireThenReleaseAllowsReacquire(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "device-1")
	require.NoError(t, err)

	require.NoError(t, m.Release(ctx, h))

	h2, err := m.Acquire(ctx, "device-1")
	require.NoError(t, err)
	require.NotNil(t, h2)
}

func TestAcquireTwiceFailsWithErrHeld(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "device-1")
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "device-1")
	require.ErrorIs(t, err, ErrHeld)
}

func TestAcquireOnDifferentDevicesDoesNotConflict(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "device-1")
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "device-2")
	require.NoError(t, err)
}

func TestHeldReflectsLockState(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	held, err := m.Held(ctx, "device-1")
	require.NoError(t, err)
	require.False(t, held)

	_, err = m.Acquire(ctx, "device-1")
	require.NoError(t, err)

	held, err = m.Held(ctx, "device-1")
	require.NoError(t, err)
	require.True(t, held)
}

func TestReleaseWithStaleTokenFails(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "device-1")
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, h))

	_, err = m.Acquire(ctx, "device-1")
	require.NoError(t, err)

	require.Error(t, m.Release(ctx, h))
}
