package lock

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) string {
	t.Helper()
	if os.Getenv("PARKING_INTEGRATION") != "1" {
		t.Skip("set PARKING_INTEGRATION=1 to run redis integration tests")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, mappedPort.Port())
}

func TestRedisLocker(t *testing.T) {
	uri := setupRedis(t)
	ctx := context.Background()

	client, err := Connect(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	locker := &RedisLocker{Client: client, Prefix: "parking:test:", TTL: 5 * time.Second}

	t.Run("mutual exclusion", func(t *testing.T) {
		var (
			inside  atomic.Int32
			maxSeen atomic.Int32
			wg      sync.WaitGroup
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(ctx, NodeKey("n1"))
				if !assert.NoError(t, err) {
					return
				}
				defer unlock()

				cur := inside.Add(1)
				if cur > maxSeen.Load() {
					maxSeen.Store(cur)
				}
				time.Sleep(5 * time.Millisecond)
				inside.Add(-1)
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), maxSeen.Load())
	})

	t.Run("gives up when context ends", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, UserKey("u"))
		require.NoError(t, err)
		defer unlock()

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(waitCtx, UserKey("u"))
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("lease expires without release", func(t *testing.T) {
		short := &RedisLocker{Client: client, Prefix: "parking:test:", TTL: 100 * time.Millisecond}
		_, err := short.Lock(ctx, NodeKey("abandoned"))
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		unlock, err := short.Lock(waitCtx, NodeKey("abandoned"))
		require.NoError(t, err)
		unlock()
	})
}
