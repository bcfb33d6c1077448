package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's unique
// token, so one holder cannot release another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RunLock serializes runs that share a run key, so two processes replaying
// the same keyed run do not race on the persistence sinks. Built on SETNX
// with a TTL and a Lua-based conditional unlock.
type RunLock struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewRunLock creates a RunLock backed by the given Client.
func NewRunLock(c *Client) *RunLock {
	return &RunLock{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(runID string) string {
	return "run:" + runID + ":lock"
}

// Acquire attempts to obtain the lock for runID with the specified TTL. On
// success it returns an unlock function that must be called to release the
// lock; the function is safe to call multiple times.
//
// It returns domain.ErrLockHeld if another process holds the lock.
func (rl *RunLock) Acquire(ctx context.Context, runID string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(runID)

	ok, err := rl.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire run lock %s: %w", runID, err)
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

		// A background context lets the unlock succeed even when the run's
		// context is already cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = rl.unlockSc.Run(unlockCtx, rl.rdb, []string{lk}, token).Err()
	}
	return unlock, nil
}
