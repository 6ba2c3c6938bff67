package redis_test

import (
	"context"
	"testing"
	"time"

	redisadapter "github.com/lumenfest/checkout-engine/internal/adapters/redis"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redisclient.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redisclient.NewClient(&redisclient.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	client := startRedis(t)
	idemp := redisadapter.NewIdempotency(client)
	ctx := context.Background()

	missing, err := idemp.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	original := redisadapter.StoredResponse{Status: 201, Body: []byte(`{"tx_ref":"LMF-1-cafe"}`)}
	require.NoError(t, idemp.Set(ctx, "key-1", original, time.Minute))

	stored, err := idemp.Get(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 201, stored.Status)
	assert.JSONEq(t, `{"tx_ref":"LMF-1-cafe"}`, string(stored.Body))

	// A racing retry must not overwrite the recorded outcome.
	require.NoError(t, idemp.Set(ctx, "key-1", redisadapter.StoredResponse{Status: 409}, time.Minute))
	stored, err = idemp.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, 201, stored.Status)

	// Keys live under the checkout namespace.
	exists, err := client.Exists(ctx, "checkout:idemp:key-1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestCacheIncrWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	client := startRedis(t)
	cache := redisadapter.NewCache(client)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := cache.IncrWindow(ctx, "rl:test", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	ttl, err := client.TTL(ctx, "rl:test").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}