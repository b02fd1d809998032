package redis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradekit/bookfeed/pkg/book"
	"github.com/tradekit/bookfeed/pkg/messaging"
)

// setupTestRedis initializes a Redis client for testing.
// It assumes Redis is running on localhost:6379.
// Flushes the DB before returning the client.
func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   0,
	})
	_, err := client.Ping(context.Background()).Result()
	if err != nil {
		t.Skipf("Skipping Redis tests: Cannot connect to Redis (%v)", err)
	}
	err = client.FlushDB(context.Background()).Err()
	if err != nil {
		t.Fatalf("Failed to flush Redis DB: %v", err)
	}
	return client
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testState() *book.BookState {
	return &book.BookState{
		Sequence: 0,
		Bids: []book.LevelSnapshot{
			{Price: dec("100"), TotalSize: dec("2"), Orders: []book.OrderSnapshot{{ID: "100", Price: dec("100"), Size: dec("2"), Side: book.Buy}}},
			{Price: dec("99"), TotalSize: dec("1"), Orders: []book.OrderSnapshot{{ID: "99", Price: dec("99"), Size: dec("1"), Side: book.Buy}}},
		},
		Asks: []book.LevelSnapshot{
			{Price: dec("101"), TotalSize: dec("3"), Orders: []book.OrderSnapshot{{ID: "101", Price: dec("101"), Size: dec("3"), Side: book.Sell}}},
		},
	}
}

func TestMirrorSnapshotAndBest(t *testing.T) {
	client := setupTestRedis(t)
	m := NewMirror(client, "test:mirror", zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.ApplySnapshot(ctx, "BTC-USD", testState()))

	price, size, ok, err := m.BestBid(ctx, "BTC-USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(dec("100")))
	assert.True(t, size.Equal(dec("2")))

	price, size, ok, err = m.BestAsk(ctx, "BTC-USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(dec("101")))
	assert.True(t, size.Equal(dec("3")))

	seq, err := m.Sequence(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
}

func TestMirrorApplyLevel(t *testing.T) {
	client := setupTestRedis(t)
	m := NewMirror(client, "test:mirror", zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.ApplySnapshot(ctx, "BTC-USD", testState()))

	// Replace the best bid
	require.NoError(t, m.ApplyLevel(ctx, "BTC-USD", &messaging.LevelMessage{
		ProductID: "BTC-USD",
		Price:     dec("100"),
		Size:      dec("7"),
		Side:      "buy",
	}, 1))

	price, size, ok, err := m.BestBid(ctx, "BTC-USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(dec("100")))
	assert.True(t, size.Equal(dec("7")))

	seq, err := m.Sequence(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	// Zero size removes the level; the next one down becomes best
	require.NoError(t, m.ApplyLevel(ctx, "BTC-USD", &messaging.LevelMessage{
		ProductID: "BTC-USD",
		Price:     dec("100"),
		Size:      dec("0"),
		Side:      "buy",
	}, 2))

	price, _, ok, err = m.BestBid(ctx, "BTC-USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(dec("99")))
}

func TestMirrorClear(t *testing.T) {
	client := setupTestRedis(t)
	m := NewMirror(client, "test:mirror", zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.ApplySnapshot(ctx, "BTC-USD", testState()))
	require.NoError(t, m.Clear(ctx, "BTC-USD"))

	_, _, ok, err := m.BestBid(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.False(t, ok)

	seq, err := m.Sequence(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), seq)

	keys, err := client.Keys(ctx, "test:mirror:*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMirrorEmptySide(t *testing.T) {
	client := setupTestRedis(t)
	m := NewMirror(client, "test:mirror", zap.NewNop())
	ctx := context.Background()

	state := testState()
	state.Asks = nil
	require.NoError(t, m.ApplySnapshot(ctx, "BTC-USD", state))

	_, _, ok, err := m.BestAsk(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.False(t, ok)
}
