package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

const (
	lockPrefix = "lock:"

	// unlockTimeout bounds the release round-trip. Release runs on a fresh
	// context because the holder's context is often already cancelled by
	// the time the deferred unlock fires.
	unlockTimeout = 5 * time.Second
)

// releaseLua deletes the lock key only when it still carries the holder's
// token, so a holder whose lock expired cannot free a lock someone else
// has since taken.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager on top of SET NX with a TTL.
// The matcher takes a per-side lock each cycle so only one replica walks
// the pending set at a time; the TTL keeps a crashed holder from wedging
// the other replicas.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:     c.Underlying(),
		release: redis.NewScript(releaseLua),
	}
}

// Acquire takes the named lock for at most ttl and returns the function
// that releases it. Calling the release function more than once is fine;
// only the first call talks to redis. Returns domain.ErrLockHeld when
// another holder already owns the key.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	redisKey := lockPrefix + key

	ok, err := lm.rdb.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer cancel()
			_ = lm.release.Run(unlockCtx, lm.rdb, []string{redisKey}, token).Err()
		})
	}

	return unlock, nil
}
