package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if its value still matches the
// token this holder set, and clears active-jobs membership in the same
// step, so a lock that already expired and was reclaimed by another
// worker is never deleted out from under it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	redis.call("srem", KEYS[2], ARGV[2])
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// redisLock is the Lock implementation returned by RedisBackend.AcquireLock.
// It is not self-renewing: a handler that outlives its TTL risks a second
// worker acquiring the lock for the job's next retry incarnation.
type redisLock struct {
	client   *redis.Client
	id       uuid.UUID
	token    string
	released bool
}

func (l *redisLock) Release(ctx context.Context) error {
	if l.released {
		return nil
	}
	_, err := releaseScript.Run(ctx, l.client, []string{lockKey(l.id), activeJobsKey}, l.token, l.id.String()).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("queue: release lock %s: %w", l.id, err)
	}
	l.released = true
	return nil
}

// acquireLock implements the set-if-absent-with-expiry primitive from the
// distributed lock section: SET NX EX, and on success adds id to the
// active-jobs set in a second call (stats readers tolerate the brief
// window where the lock exists but the set doesn't yet).
func acquireLock(ctx context.Context, client *redis.Client, id uuid.UUID, ttl time.Duration) (Lock, error) {
	token := uuid.New().String()
	ok, err := client.SetNX(ctx, lockKey(id), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: acquire lock %s: %w", id, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	if err := client.SAdd(ctx, activeJobsKey, id.String()).Err(); err != nil {
		return nil, fmt.Errorf("queue: mark active %s: %w", id, err)
	}
	return &redisLock{client: client, id: id, token: token}, nil
}
