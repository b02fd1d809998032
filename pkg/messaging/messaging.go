// Package messaging defines the canonical message types exchanged between the
// exchange feed adapters, the reconciliation engine and downstream consumers.
// Keeping these shapes free of engine types lets adapters and senders evolve
// without dragging the book internals along.
package messaging

import (
	"time"

	"github.com/shopspring/decimal"
)

// MessageType tags a canonical stream message
type MessageType string

// Canonical stream message types
const (
	TypeSnapshot MessageType = "snapshot"
	TypeLevel    MessageType = "level"
	TypeTrade    MessageType = "trade"
	TypeTicker   MessageType = "ticker"
)

// StreamMessage is any canonical message an exchange adapter can emit
type StreamMessage interface {
	Type() MessageType
	Product() string
}

// Order is the wire shape of a single resting order
type Order struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Side  string          `json:"side"`
}

// PriceLevel is the wire shape of one aggregated price level
type PriceLevel struct {
	Price     decimal.Decimal `json:"price"`
	TotalSize decimal.Decimal `json:"totalSize"`
	Orders    []Order         `json:"orders"`
}

// SnapshotMessage is a full, self-consistent replacement of book state.
// Sequence is the exchange-assigned (or adapter-synthesized) baseline the
// following deltas count from; SourceSequence is the raw exchange snapshot id
// kept for diagnostics and replay only.
type SnapshotMessage struct {
	ProductID      string           `json:"productId"`
	Sequence       int64            `json:"sequence"`
	SourceSequence int64            `json:"sourceSequence"`
	Time           time.Time        `json:"time"`
	Bids           []PriceLevel     `json:"bids"`
	Asks           []PriceLevel     `json:"asks"`
	OrderPool      map[string]Order `json:"orderPool,omitempty"`
}

// Type implements StreamMessage
func (m *SnapshotMessage) Type() MessageType { return TypeSnapshot }

// Product implements StreamMessage
func (m *SnapshotMessage) Product() string { return m.ProductID }

// LevelMessage is an incremental book update. Size is the new resting size at
// Price, not a delta amount; a zero Size removes the level.
type LevelMessage struct {
	ProductID      string          `json:"productId"`
	Time           time.Time       `json:"time"`
	Price          decimal.Decimal `json:"price"`
	Size           decimal.Decimal `json:"size"`
	Side           string          `json:"side"`
	Sequence       int64           `json:"sequence"`
	SourceSequence int64           `json:"sourceSequence,omitempty"`
	Count          int             `json:"count"`
}

// Type implements StreamMessage
func (m *LevelMessage) Type() MessageType { return TypeLevel }

// Product implements StreamMessage
func (m *LevelMessage) Product() string { return m.ProductID }

// TradeMessage reports an execution on the exchange. Trades are informational
// only and never mutate the book.
type TradeMessage struct {
	ProductID string          `json:"productId"`
	Time      time.Time       `json:"time"`
	TradeID   string          `json:"tradeId"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Side      string          `json:"side"`
}

// Type implements StreamMessage
func (m *TradeMessage) Type() MessageType { return TypeTrade }

// Product implements StreamMessage
func (m *TradeMessage) Product() string { return m.ProductID }

// TickerMessage carries the exchange's own top-of-book summary
type TickerMessage struct {
	ProductID string          `json:"productId"`
	Time      time.Time       `json:"time"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
}

// Type implements StreamMessage
func (m *TickerMessage) Type() MessageType { return TypeTicker }

// Product implements StreamMessage
func (m *TickerMessage) Product() string { return m.ProductID }

// SkippedMessageEvent is emitted outward when the sequence gate detects a gap
type SkippedMessageEvent struct {
	ExpectedSequence int64 `json:"expected_sequence"`
	Sequence         int64 `json:"sequence"`
}
