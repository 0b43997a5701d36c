package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/perpstack/simcore/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's token,
// so one holder can never release another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// SessionLocker implements domain.SessionLocker using Redis SETNX with a TTL
// and a Lua-based conditional unlock. It gives the session slot cross-process
// exclusivity when several simulator instances share one Redis.
type SessionLocker struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewSessionLocker creates a SessionLocker backed by the given Client.
func NewSessionLocker(c *Client) *SessionLocker {
	return &SessionLocker{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire attempts to obtain the slot for the given key with the specified
// TTL. On success it returns an unlock function, safe to call more than once.
// It returns domain.ErrLockHeld when another party holds the slot.
func (sl *SessionLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(key)

	ok, err := sl.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true

		// Background context so unlock succeeds even if the caller's context
		// is already cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = sl.unlockSc.Run(unlockCtx, sl.rdb, []string{lk}, token).Err()
	}
	return unlock, nil
}

var _ domain.SessionLocker = (*SessionLocker)(nil)
