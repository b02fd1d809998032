package messaging

import (
	"context"
	"time"
)

// EventKind tags an outward book event
type EventKind string

// Outward event kinds
const (
	EventSnapshotApplied EventKind = "snapshot-applied"
	EventBookUpdated     EventKind = "book-updated"
	EventSkippedMessage  EventKind = "skipped-message"
	EventTrade           EventKind = "trade"
	EventTicker          EventKind = "ticker"
	EventResyncRequested EventKind = "resync-requested"
)

// BookEvent is the envelope published to downstream consumers. Exactly one of
// the payload pointers is set, matching Kind.
type BookEvent struct {
	Kind      EventKind            `json:"kind"`
	ProductID string               `json:"productId"`
	Sequence  int64                `json:"sequence"`
	Time      time.Time            `json:"time"`
	Level     *LevelMessage        `json:"level,omitempty"`
	Trade     *TradeMessage        `json:"trade,omitempty"`
	Ticker    *TickerMessage       `json:"ticker,omitempty"`
	Skipped   *SkippedMessageEvent `json:"skipped,omitempty"`
}

// EventSender defines an interface for publishing book events.
// This helps decouple the orderbook package from specific implementations
// like Kafka in the kafka subpackage.
type EventSender interface {
	SendBookEvent(ctx context.Context, event *BookEvent) error
	Close() error
}
