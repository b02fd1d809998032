package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradekit/bookfeed/pkg/messaging"
	"github.com/tradekit/bookfeed/pkg/orderbook"
)

func main() {
	// Build an engine with an in-process event sink
	sender := messaging.NewMockEventSender()
	engine := orderbook.NewLiveOrderbook(orderbook.Config{
		ProductID: "BTC-USD",
		Sender:    sender,
		Logger:    zerolog.Nop(),
	})
	ctx := context.Background()

	// Seed the book with a snapshot
	engine.Ingest(ctx, &messaging.SnapshotMessage{
		ProductID:      "BTC-USD",
		Sequence:       1000,
		SourceSequence: 1000,
		Time:           time.Now(),
		Bids: []messaging.PriceLevel{
			{Price: decimal.NewFromInt(100), TotalSize: decimal.NewFromInt(2)},
			{Price: decimal.NewFromInt(99), TotalSize: decimal.NewFromInt(5)},
		},
		Asks: []messaging.PriceLevel{
			{Price: decimal.NewFromInt(101), TotalSize: decimal.NewFromInt(3)},
		},
	})

	fmt.Printf("After snapshot: state=%s bids=%d asks=%d\n",
		engine.State(), engine.Book().NumBids(), engine.Book().NumAsks())

	// Apply two contiguous level updates
	engine.Ingest(ctx, &messaging.LevelMessage{
		ProductID: "BTC-USD",
		Time:      time.Now(),
		Price:     decimal.NewFromInt(100),
		Size:      decimal.NewFromInt(7),
		Side:      "buy",
		Sequence:  1001,
	})
	engine.Ingest(ctx, &messaging.LevelMessage{
		ProductID: "BTC-USD",
		Time:      time.Now(),
		Price:     decimal.NewFromInt(99),
		Size:      decimal.Zero, // removes the level
		Side:      "buy",
		Sequence:  1002,
	})

	best := engine.Book().HighestBid()
	fmt.Printf("After deltas: sequence=%d best bid %s x %s\n",
		engine.Book().Sequence(), best.Price(), best.TotalSize())

	// Skip ahead to trigger gap detection
	engine.Ingest(ctx, &messaging.LevelMessage{
		ProductID: "BTC-USD",
		Time:      time.Now(),
		Price:     decimal.NewFromInt(98),
		Size:      decimal.NewFromInt(1),
		Side:      "buy",
		Sequence:  1007,
	})

	for _, event := range sender.ByKind(messaging.EventSkippedMessage) {
		fmt.Printf("Gap detected: expected %d, got %d\n",
			event.Skipped.ExpectedSequence, event.Skipped.Sequence)
	}
	fmt.Printf("Engine is now %s and waiting for a fresh snapshot\n", engine.State())
}
