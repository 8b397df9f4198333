package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another worker owns the lock.
var ErrLockHeld = errors.New("task already running")

// TaskLockKey builds redis keys guarding single-instance background tasks.
func TaskLockKey(kind string) string {
	return fmt.Sprintf("tabacchi:task:%s:lock", kind)
}

// TaskLock keeps at most one background task of a kind running at a time.
type TaskLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTaskLock constructs the lock helper.
func NewTaskLock(client *redis.Client, ttl time.Duration) *TaskLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TaskLock{client: client, ttl: ttl}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Acquire takes the lock for kind. The returned func releases it; it only
// deletes the key when this holder still owns it.
func (l *TaskLock) Acquire(ctx context.Context, kind string) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return func(context.Context) error { return nil }, nil
	}
	key := TaskLockKey(kind)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}
