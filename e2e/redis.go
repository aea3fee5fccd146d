package e2e

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	redisOnce      sync.Once
	redisContainer *tcredis.RedisContainer
	redisOptions   *redis.Options
	redisStartErr  error
	redisWG        sync.WaitGroup
)

// UseRedis signals that the test is using Redis.
// This will either provision or reuse a Redis container for the test and
// returns a client that is closed when the test ends.
// The database is shared across tests; use UniqueName to keep queues apart.
func UseRedis(t *testing.T) *redis.Client {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	redisOnce.Do(func() {
		ctx := context.Background()
		redisContainer, redisStartErr = tcredis.Run(ctx, "redis:7-alpine")
		if redisStartErr != nil {
			return
		}
		var connStr string
		connStr, redisStartErr = redisContainer.ConnectionString(ctx)
		if redisStartErr != nil {
			return
		}
		redisOptions, redisStartErr = redis.ParseURL(connStr)
	})

	if redisStartErr != nil {
		t.Fatalf("failed to start redis container: %v", redisStartErr)
	}
	redisWG.Add(1)
	t.Cleanup(redisWG.Done)

	client := redis.NewClient(redisOptions)
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("failed to close redis client: %v", err)
		}
	})
	if err := client.Ping(t.Context()).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}
	return client
}

// UniqueName returns an app name that no other test uses.
// It never contains a colon, so it is safe inside a key namespace.
func UniqueName(t *testing.T) string {
	t.Helper()
	name := strings.NewReplacer("/", "-", ":", "-", " ", "-").Replace(t.Name())
	return strings.ToLower(name) + "-" + uuid.NewString()[:8]
}

func TerminateRedisForE2E() {
	redisWG.Wait()
	if redisContainer != nil {
		if err := redisContainer.Terminate(context.Background()); err != nil {
			fmt.Printf("failed to terminate redis container: %v", err)
		}
	}
}
