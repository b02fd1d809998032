package orderbook

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradekit/bookfeed/pkg/messaging"
)

func TestManagerRoutesByProduct(t *testing.T) {
	sender := messaging.NewMockEventSender()
	m := NewManager(Config{Sender: sender, Logger: zerolog.Nop()})
	ctx := context.Background()

	btc := snapshot(100, [][2]string{{"100", "1"}}, nil)
	eth := snapshot(200, [][2]string{{"10", "5"}}, nil)
	eth.ProductID = "ETH-USD"

	m.Ingest(ctx, btc)
	m.Ingest(ctx, eth)

	require.ElementsMatch(t, []string{"BTC-USD", "ETH-USD"}, m.Products())
	assert.Equal(t, int64(100), m.Get("BTC-USD").SourceSequence())
	assert.Equal(t, int64(200), m.Get("ETH-USD").SourceSequence())

	// Deltas only touch their own product
	ethLevel := level(201, "buy", "10", "9")
	ethLevel.ProductID = "ETH-USD"
	m.Ingest(ctx, ethLevel)

	assert.Equal(t, int64(0), m.Get("BTC-USD").Book().Sequence())
	assert.Equal(t, int64(1), m.Get("ETH-USD").Book().Sequence())
}

func TestManagerReturnsSameEngine(t *testing.T) {
	m := NewManager(Config{Logger: zerolog.Nop()})
	a := m.Get("BTC-USD")
	b := m.Get("BTC-USD")
	assert.Same(t, a, b)
}
