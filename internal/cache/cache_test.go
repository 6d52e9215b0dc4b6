package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	Points  []float64 `json:"points"`
	Summary string    `json:"summary"`
}

func TestLRUEviction(t *testing.T) {
	// Initialize the cache with a size of 2.
	c, err := NewLRU[result](2)
	require.NoError(t, err, "Failed to initialize cache")
	ctx := context.Background()

	// cache miss
	_, ok, err := c.Get(ctx, "request1")
	assert.NoError(t, err)
	assert.False(t, ok, "Expected miss on empty cache")

	require.NoError(t, c.Add(ctx, "request1", result{Summary: "response-request1"}))

	// cache hit
	cached, ok, err := c.Get(ctx, "request1")
	assert.NoError(t, err)
	assert.True(t, ok, "Expected hit after add")
	assert.Equal(t, "response-request1", cached.Summary, "Unexpected response for cached request")

	require.NoError(t, c.Add(ctx, "request2", result{Summary: "response-request2"}))
	require.NoError(t, c.Add(ctx, "request3", result{Summary: "response-request3"}))

	// The first request should have been evicted due to cache size.
	evicted, ok, err := c.Get(ctx, "request1")
	assert.NoError(t, err)
	assert.False(t, ok, "Expected first request to be evicted from cache")
	assert.Empty(t, evicted.Summary, "Evicted cache entry should be zero")
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.Purge(ctx))
	assert.Zero(t, c.Len())
}

func TestLRUInvalidSize(t *testing.T) {
	_, err := NewLRU[result](0)
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	type req struct {
		User   string `json:"user"`
		Series string `json:"series"`
	}
	a, err := Key("fetch", req{User: "u1", Series: "health.stepcount"})
	require.NoError(t, err)
	assert.Equal(t, `fetch:{"user":"u1","series":"health.stepcount"}`, a)

	b, err := Key("fetch", req{User: "u2", Series: "health.stepcount"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = Key("fetch", make(chan int))
	assert.Error(t, err)
}

// TestRedis runs against a live server when SERIESFETCH_TEST_REDIS_ADDR is
// set.
func TestRedis(t *testing.T) {
	addr := os.Getenv("SERIESFETCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SERIESFETCH_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	c := NewRedis[result](client, "seriesfetch-test", time.Minute)
	require.NoError(t, c.Purge(ctx))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	want := result{Points: []float64{1, 2.5}, Summary: "s"}
	require.NoError(t, c.Add(ctx, "k", want))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	require.NoError(t, c.Purge(ctx))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
