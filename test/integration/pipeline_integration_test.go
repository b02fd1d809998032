package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradekit/bookfeed/pkg/messaging"
	redismirror "github.com/tradekit/bookfeed/pkg/mirror/redis"
	"github.com/tradekit/bookfeed/pkg/orderbook"
	"github.com/tradekit/bookfeed/pkg/testutil"
)

const redisAddr = "localhost:6379"

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// TestSnapshotDeltaMirrorPipeline runs a snapshot plus deltas through a full
// engine with a live Redis mirror and checks both sides agree.
func TestSnapshotDeltaMirrorPipeline(t *testing.T) {
	testutil.SkipIfRedisUnavailable(t, redisAddr)

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()
	require.NoError(t, client.FlushDB(context.Background()).Err())

	mirror := redismirror.NewMirror(client, "itest:bookfeed", zap.NewNop())
	sender := messaging.NewMockEventSender()
	engine := orderbook.NewLiveOrderbook(orderbook.Config{
		ProductID: "BTC-USD",
		Sender:    sender,
		Mirror:    mirror,
		Logger:    zerolog.Nop(),
	})
	ctx := context.Background()

	engine.Ingest(ctx, &messaging.SnapshotMessage{
		ProductID:      "BTC-USD",
		Sequence:       1000,
		SourceSequence: 1000,
		Time:           time.Now(),
		Bids: []messaging.PriceLevel{
			{Price: dec("100"), TotalSize: dec("2")},
			{Price: dec("99"), TotalSize: dec("5")},
		},
		Asks: []messaging.PriceLevel{
			{Price: dec("101"), TotalSize: dec("3")},
		},
	})

	updates := []*messaging.LevelMessage{
		{ProductID: "BTC-USD", Time: time.Now(), Price: dec("100"), Size: dec("7"), Side: "buy", Sequence: 1001},
		{ProductID: "BTC-USD", Time: time.Now(), Price: dec("101"), Size: dec("0"), Side: "sell", Sequence: 1002},
	}
	for _, upd := range updates {
		engine.Ingest(ctx, upd)
	}

	// The mirror's view matches the canonical book
	price, size, ok, err := mirror.BestBid(ctx, "BTC-USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(engine.Book().HighestBid().Price()))
	assert.True(t, size.Equal(engine.Book().HighestBid().TotalSize()))

	_, _, ok, err = mirror.BestAsk(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.False(t, ok, "ask side should be empty after removal")

	seq, err := mirror.Sequence(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, engine.Book().Sequence(), seq)
}
