package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"beatvault/logger"
)

// DefaultLeaseKey guards scheduler ticks across processes.
const DefaultLeaseKey = "beatvault:scheduler:tick"

// ErrLeaseNotHeld is returned when releasing a lease another holder owns.
var ErrLeaseNotHeld = errors.New("lease not held")

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Guard excludes overlapping ticks. TryAcquire never blocks; ok is false
// when someone else holds the guard.
type Guard interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// RedisLease is a Guard backed by SET NX with a TTL. The TTL must outlive the
// longest tick; an expired lease simply lets the next tick in.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLease creates a lease on key.
func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	if key == "" {
		key = DefaultLeaseKey
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisLease{client: client, key: key, ttl: ttl}
}

func (l *RedisLease) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// The tick context may already be done.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.release(rctx, token); err != nil {
			logger.Warn("failed to release scheduler lease", logger.Key(l.key), logger.ErrorField(err))
		}
	}
	return release, true, nil
}

func (l *RedisLease) release(ctx context.Context, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	if n == 0 {
		return ErrLeaseNotHeld
	}
	return nil
}
