package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

var ErrLockLost = errors.New("instance lock lost")

var (
	renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// InstanceLock is a lease that lets exactly one bot instance run the mute
// scheduler against a shared store. Standby instances wait in Acquire.
type InstanceLock struct {
	rdb        *goredis.Client
	key        string
	instanceID string
	ttl        time.Duration
	clock      clockwork.Clock
}

func NewInstanceLock(rdb *goredis.Client, key, instanceID string, ttl time.Duration, clock clockwork.Clock) *InstanceLock {
	return &InstanceLock{rdb: rdb, key: key, instanceID: instanceID, ttl: ttl, clock: clock}
}

// TryAcquire takes the lease if nobody holds it.
func (l *InstanceLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	return ok, nil
}

// Acquire blocks until the lease is taken or ctx ends, retrying every half TTL.
func (l *InstanceLock) Acquire(ctx context.Context) error {
	for {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Instance lock unavailable", "error", err)
		}
		if ok {
			slog.InfoContext(ctx, "Instance lock acquired", "instance", l.instanceID)
			return nil
		}

		slog.DebugContext(ctx, "Another instance is active, waiting", "key", l.key)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(l.ttl / 2):
		}
	}
}

// Renew extends the lease. It returns ErrLockLost when another instance
// holds it or it expired.
func (l *InstanceLock) Renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to renew instance lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Hold renews the lease every half TTL until ctx ends, then releases it. It
// returns ErrLockLost as soon as the lease is gone; transient renewal errors
// are retried while the lease may still be valid.
func (l *InstanceLock) Hold(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return l.Release(releaseCtx)
		case <-ticker.Chan():
			err := l.Renew(ctx)
			if errors.Is(err, ErrLockLost) {
				return err
			}
			if err != nil {
				slog.WarnContext(ctx, "Instance lock renewal failed", "error", err)
			}
		}
	}
}

// Release gives the lease up if this instance still holds it.
func (l *InstanceLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to release instance lock: %w", err)
	}
	return nil
}
