// Package lock enforces the single-writer-per-device merge contract with a
// redis-backed mutual exclusion lock: a SetNX guard plus a Lua script for
// safe release so a merge can never release a lock another merge already
// reacquired after its TTL expired.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"catalogbridge/internal/config"
)

// ErrHeld is returned by Acquire when another merge already holds the lock
// for the given device.
var ErrHeld = errors.New("lock: already held")

// releaseScript only deletes the key if its value still matches the token
// the caller was given at acquisition time, so a merge can never release a
// lock it no longer owns.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Manager acquires and releases per-device merge locks.
type Manager struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// New builds a Manager from cfg.
func New(cfg config.LockConfig) *Manager {
	return &Manager{
		client:    redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
	}
}

// NewWithClient builds a Manager around an existing client, for tests
// against a miniredis instance.
func NewWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *Manager {
	return &Manager{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (m *Manager) key(deviceID string) string {
	return m.keyPrefix + deviceID
}

// Handle represents a held lock; it must be released exactly once.
type Handle struct {
	deviceID string
	token    string
}

// Acquire takes the merge lock for deviceID, failing with ErrHeld if another
// merge already holds it.
func (m *Manager) Acquire(ctx context.Context, deviceID string) (*Handle, error) {
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, m.key(deviceID), token, m.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", deviceID, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Handle{deviceID: deviceID, token: token}, nil
}

// Release frees h's lock, but only if it is still the current holder.
func (m *Manager) Release(ctx context.Context, h *Handle) error {
	res, err := m.client.Eval(ctx, releaseScript, []string{m.key(h.deviceID)}, h.token).Result()
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", h.deviceID, err)
	}
	if n, ok := res.(int64); ok && n == 0 {
		return fmt.Errorf("lock: release %s: no longer the holder", h.deviceID)
	}
	return nil
}

// Held reports whether deviceID currently has a lock outstanding.
func (m *Manager) Held(ctx context.Context, deviceID string) (bool, error) {
	n, err := m.client.Exists(ctx, m.key(deviceID)).Result()
	if err != nil {
		return false, fmt.Errorf("lock: check %s: %w", deviceID, err)
	}
	return n > 0, nil
}
