package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/glizzus/cronrelay/internal/generator"
)

var ErrLockNotAcquired = errors.New("unique lock is held by another publisher")

// Deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type uniqueLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	tokens generator.Generator[string]
	logger *slog.Logger
}

func (l *uniqueLocker) key(uniqueID string) string {
	return l.prefix + ":" + uniqueID
}

// acquire blocks until the lock for uniqueID is held or l.wait elapses.
// The returned func releases it.
func (l *uniqueLocker) acquire(ctx context.Context, uniqueID string) (func(), error) {
	token, err := l.tokens.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to generate lock token: %w", err)
	}
	key := l.key(uniqueID)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = l.wait
	policy.Reset()

	err = backoff.Retry(func() error {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrLockNotAcquired
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to lock uniqueID %q: %w", uniqueID, err)
	}

	release := func() {
		err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
		if err != nil {
			l.logger.Warn("failed to release unique lock", slog.String("uniqueID", uniqueID), slog.Any("error", err))
		}
	}
	return release, nil
}
