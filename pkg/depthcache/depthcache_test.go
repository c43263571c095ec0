package depthcache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/matchbook/pkg/core"
)

// setupTestRedis connects to a local Redis and flushes the test DB.
// Skips when no Redis is reachable.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Skipping Redis tests: cannot connect to Redis (%v)", err)
	}
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return client
}

func sampleDepth() core.DepthView {
	return core.DepthView{
		Bids: []core.DepthLevel{
			{Price: 10000, Quantity: 12},
			{Price: 9990, Quantity: 3},
		},
		Asks: []core.DepthLevel{
			{Price: 10010, Quantity: 7},
		},
	}
}

func TestPublishAndReadDepth(t *testing.T) {
	client := setupTestRedis(t)
	p := NewPublisher(client, zerolog.Nop())
	ctx := context.Background()

	want := sampleDepth()
	p.PublishDepth(ctx, "BTCUSD", want)

	got, err := p.ReadDepth(ctx, "BTCUSD")
	require.NoError(t, err)
	assert.Equal(t, want.Bids, got.Bids)
	assert.Equal(t, want.Asks, got.Asks)
}

func TestPublishOverwritesPrevious(t *testing.T) {
	client := setupTestRedis(t)
	p := NewPublisher(client, zerolog.Nop())
	ctx := context.Background()

	p.PublishDepth(ctx, "BTCUSD", sampleDepth())

	updated := core.DepthView{
		Bids: []core.DepthLevel{{Price: 10005, Quantity: 4}},
		Asks: []core.DepthLevel{},
	}
	p.PublishDepth(ctx, "BTCUSD", updated)

	got, err := p.ReadDepth(ctx, "BTCUSD")
	require.NoError(t, err)
	require.Len(t, got.Bids, 1)
	assert.Equal(t, core.Price(10005), got.Bids[0].Price)
	assert.Empty(t, got.Asks)
}

func TestReadDepthMissingBook(t *testing.T) {
	client := setupTestRedis(t)
	p := NewPublisher(client, zerolog.Nop())

	got, err := p.ReadDepth(context.Background(), "UNKNOWN")
	require.NoError(t, err)
	assert.Empty(t, got.Bids)
	assert.Empty(t, got.Asks)
}

func TestDeleteDepth(t *testing.T) {
	client := setupTestRedis(t)
	p := NewPublisher(client, zerolog.Nop())
	ctx := context.Background()

	p.PublishDepth(ctx, "BTCUSD", sampleDepth())
	p.Delete(ctx, "BTCUSD")

	exists, err := client.Exists(ctx, "book:BTCUSD").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestPublishDepthFailureDoesNotPanic(t *testing.T) {
	// A client pointed at a dead address: publishing logs and returns.
	client := redis.NewClient(&redis.Options{Addr: "localhost:1"})
	defer client.Close()

	p := NewPublisher(client, zerolog.Nop())
	p.PublishDepth(context.Background(), "BTCUSD", sampleDepth())
}
