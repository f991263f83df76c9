package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tableloom/internal/domain"
)

const lockTTL = 30 * time.Second

func lockKey(sessionID string) string {
	return "lock:session:" + sessionID
}

// SessionLock is a Redis SET-NX-PX advisory lock, defending per-session
// exclusivity against duplicate client connections per SPEC_FULL.md §4.12.
type SessionLock struct {
	client *redis.Client
}

// NewSessionLock wraps an existing Redis client.
func NewSessionLock(client *redis.Client) *SessionLock {
	return &SessionLock{client: client}
}

func (l *SessionLock) Acquire(ctx context.Context, sessionID string) (func(), error) {
	token := uuid.NewString()
	key := lockKey(sessionID)

	ok, err := l.client.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSessionLocked
	}

	release := func() {
		// Best-effort compare-and-delete via a small Lua script so we only
		// release a lock we still own (it may have expired and been
		// re-acquired by another request by the time the turn completes).
		script := redis.NewScript(`
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			end
			return 0
		`)
		_ = script.Run(context.Background(), l.client, []string{key}, token).Err()
	}

	return release, nil
}
