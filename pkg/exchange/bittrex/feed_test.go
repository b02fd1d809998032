package bittrex

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradekit/bookfeed/pkg/exchange"
	"github.com/tradekit/bookfeed/pkg/messaging"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestFeed() *Feed {
	return NewFeed(&exchange.FeedConfig{
		Exchange: "bittrex",
		Products: []string{"BTC-USD"},
	}, zerolog.Nop())
}

func frame(method string, args ...interface{}) []byte {
	rawArgs := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			panic(err)
		}
		rawArgs = append(rawArgs, b)
	}
	b, err := json.Marshal(hubMessage{M: method, A: rawArgs})
	if err != nil {
		panic(err)
	}
	return b
}

func TestMessageCounter(t *testing.T) {
	c := newMessageCounter()
	// No base yet
	assert.Equal(t, int64(-1), c.nextSequence())

	c.setSnapshotSequence(100)
	assert.Equal(t, int64(101), c.nextSequence())
	assert.Equal(t, int64(102), c.nextSequence())
	assert.Equal(t, int64(100), c.snapshotSequence())

	// A fresh snapshot resets the offset
	c.setSnapshotSequence(200)
	assert.Equal(t, int64(201), c.nextSequence())
}

func TestProductSymbolConvention(t *testing.T) {
	f := newTestFeed()
	sym, ok := f.products.ExchangeSymbol("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, "USD-BTC", sym)
}

func TestHandleSnapshotFrame(t *testing.T) {
	f := newTestFeed()

	msgs := f.handleFrame(frame("exchangeState", exchangeState{
		MarketName: "USD-BTC",
		Nonce:      5000,
		Buys: []orderDelta{
			{Rate: dec("100"), Quantity: dec("2")},
		},
		Sells: []orderDelta{
			{Rate: dec("101"), Quantity: dec("3")},
		},
	}))

	require.Len(t, msgs, 1)
	snap, ok := msgs[0].(*messaging.SnapshotMessage)
	require.True(t, ok)
	assert.Equal(t, "BTC-USD", snap.ProductID)
	assert.Equal(t, int64(5000), snap.Sequence)
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Asks, 1)
	assert.True(t, snap.Bids[0].Price.Equal(dec("100")))
}

func TestHandleDeltaFrame(t *testing.T) {
	f := newTestFeed()
	f.handleFrame(frame("exchangeState", exchangeState{MarketName: "USD-BTC", Nonce: 5000}))

	msgs := f.handleFrame(frame("updateExchangeState", exchangeState{
		MarketName: "USD-BTC",
		Nonce:      5001,
		Buys: []orderDelta{
			{Rate: dec("100"), Quantity: dec("5")},
			{Rate: dec("99"), Quantity: dec("0")},
		},
		Sells: []orderDelta{
			{Rate: dec("101"), Quantity: dec("1")},
		},
		Fills: []fill{
			{OrderType: "SELL", Rate: dec("100"), Quantity: dec("0.5"), TimeStamp: "2024-06-01T12:00:00"},
		},
	}))

	require.Len(t, msgs, 4)

	// Levels get contiguous synthesized sequences above the snapshot nonce
	l0 := msgs[0].(*messaging.LevelMessage)
	l1 := msgs[1].(*messaging.LevelMessage)
	l2 := msgs[2].(*messaging.LevelMessage)
	assert.Equal(t, int64(5001), l0.Sequence)
	assert.Equal(t, int64(5002), l1.Sequence)
	assert.Equal(t, int64(5003), l2.Sequence)
	assert.Equal(t, "buy", l0.Side)
	assert.Equal(t, "sell", l2.Side)
	assert.Equal(t, int64(5001), l0.SourceSequence)
	assert.True(t, l1.Size.IsZero())

	trade := msgs[3].(*messaging.TradeMessage)
	assert.Equal(t, "sell", trade.Side)
	assert.True(t, trade.Price.Equal(dec("100")))
	assert.Equal(t, 2024, trade.Time.Year())
}

func TestDeltaBeforeSnapshotNonceDropped(t *testing.T) {
	f := newTestFeed()
	f.handleFrame(frame("exchangeState", exchangeState{MarketName: "USD-BTC", Nonce: 5000}))

	msgs := f.handleFrame(frame("updateExchangeState", exchangeState{
		MarketName: "USD-BTC",
		Nonce:      5000,
		Buys:       []orderDelta{{Rate: dec("100"), Quantity: dec("5")}},
	}))
	assert.Empty(t, msgs)
}

func TestHandleSummaryFrame(t *testing.T) {
	f := newTestFeed()

	msgs := f.handleFrame(frame("updateSummaryState", summaryState{
		Deltas: []marketSummary{
			{MarketName: "USD-BTC", Bid: dec("100"), Ask: dec("101"), Last: dec("100.5"), Volume: dec("12")},
			{MarketName: "USD-XYZ", Bid: dec("1"), Ask: dec("2")},
		},
	}))

	// Unknown markets are ignored
	require.Len(t, msgs, 1)
	ticker := msgs[0].(*messaging.TickerMessage)
	assert.Equal(t, "BTC-USD", ticker.ProductID)
	assert.True(t, ticker.Ask.Equal(dec("101")))
}

func TestUnknownFrameIgnored(t *testing.T) {
	f := newTestFeed()
	assert.Nil(t, f.handleFrame([]byte(`{"M":"heartbeat","A":[]}`)))
	assert.Nil(t, f.handleFrame([]byte(`not json`)))
}
