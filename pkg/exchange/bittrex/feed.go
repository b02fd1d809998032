// Package bittrex adapts Bittrex's hub stream into the canonical message
// format. Bittrex numbers whole delta batches with one nonce, so canonical
// sequences are synthesized from the snapshot nonce plus a per-product offset
// that counts every emitted level.
package bittrex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradekit/bookfeed/pkg/exchange"
	"github.com/tradekit/bookfeed/pkg/logging"
	"github.com/tradekit/bookfeed/pkg/messaging"
)

const defaultWSURL = "wss://socket.bittrex.com/signalr"

const timestampLayout = "2006-01-02T15:04:05"

// hubMessage is one frame off the hub socket
type hubMessage struct {
	M string            `json:"M"`
	A []json.RawMessage `json:"A"`
}

type exchangeState struct {
	MarketName string       `json:"MarketName"`
	Nonce      int64        `json:"Nounce"`
	Buys       []orderDelta `json:"Buys"`
	Sells      []orderDelta `json:"Sells"`
	Fills      []fill       `json:"Fills"`
}

type orderDelta struct {
	Type     int             `json:"Type"`
	Rate     decimal.Decimal `json:"Rate"`
	Quantity decimal.Decimal `json:"Quantity"`
}

type fill struct {
	OrderType string          `json:"OrderType"`
	Rate      decimal.Decimal `json:"Rate"`
	Quantity  decimal.Decimal `json:"Quantity"`
	TimeStamp string          `json:"TimeStamp"`
}

type summaryState struct {
	Deltas []marketSummary `json:"Deltas"`
}

type marketSummary struct {
	MarketName string          `json:"MarketName"`
	Bid        decimal.Decimal `json:"Bid"`
	Ask        decimal.Decimal `json:"Ask"`
	Last       decimal.Decimal `json:"Last"`
	Volume     decimal.Decimal `json:"Volume"`
	TimeStamp  string          `json:"TimeStamp"`
}

// messageCounter synthesizes canonical sequences as a snapshot nonce base
// plus an offset that grows with every emitted level
type messageCounter struct {
	base   int64
	offset int64
}

func newMessageCounter() *messageCounter {
	return &messageCounter{base: -1}
}

func (c *messageCounter) setSnapshotSequence(sequence int64) {
	c.base = sequence
	c.offset = 0
}

func (c *messageCounter) snapshotSequence() int64 {
	return c.base
}

// nextSequence returns -1 when no snapshot has set a base yet
func (c *messageCounter) nextSequence() int64 {
	if c.base < 1 {
		return -1
	}
	c.offset++
	return c.base + c.offset
}

// Feed streams order deltas, fills and market summaries
type Feed struct {
	cfg      *exchange.FeedConfig
	products *exchange.ProductMap
	logger   zerolog.Logger

	msgs    chan messaging.StreamMessage
	resyncs chan string

	mu       sync.Mutex
	counters map[string]*messageCounter
	conn     *exchange.Conn
}

// NewFeed creates a Bittrex adapter for the configured products
func NewFeed(cfg *exchange.FeedConfig, logger zerolog.Logger) *Feed {
	pairs := make(map[string]string, len(cfg.Products))
	for _, p := range cfg.Products {
		if sym, ok := cfg.ProductSymbols[p]; ok {
			pairs[p] = sym
		} else {
			// "BTC-USD" -> "USD-BTC": Bittrex quotes base-last
			parts := strings.SplitN(p, "-", 2)
			if len(parts) == 2 {
				pairs[p] = parts[1] + "-" + parts[0]
			} else {
				pairs[p] = p
			}
		}
	}

	return &Feed{
		cfg:      cfg,
		products: exchange.NewProductMap(pairs),
		logger:   logger.With().Str("exchange", "bittrex").Logger(),
		msgs:     make(chan messaging.StreamMessage, 1024),
		resyncs:  make(chan string, 16),
		counters: make(map[string]*messageCounter),
	}
}

// Name implements exchange.Feed
func (f *Feed) Name() string { return "bittrex" }

// Messages implements exchange.Feed
func (f *Feed) Messages() <-chan messaging.StreamMessage { return f.msgs }

// Resync implements exchange.Feed
func (f *Feed) Resync(productID string) {
	select {
	case f.resyncs <- productID:
	default:
	}
}

// Run connects the hub socket, subscribes every product and pumps messages
// until ctx ends or the socket dies
func (f *Feed) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wsURL := f.cfg.WSURL
	if wsURL == "" {
		wsURL = defaultWSURL
	}

	conn, err := exchange.Dial(ctx, wsURL, f.cfg.StaleTimeout, f.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx = logging.WithSession(ctx, conn.SessionID())

	f.mu.Lock()
	f.conn = conn
	for _, product := range f.products.Products() {
		f.counters[product] = newMessageCounter()
	}
	f.mu.Unlock()

	for _, product := range f.products.Products() {
		symbol, _ := f.products.ExchangeSymbol(product)
		if err := conn.WriteJSON(hubCall("SubscribeToExchangeDeltas", symbol)); err != nil {
			return err
		}
		f.Resync(product)
	}

	go func() {
		keepalive := time.NewTicker(30 * time.Second)
		defer keepalive.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-keepalive.C:
				if err := conn.Ping(); err != nil {
					f.logger.Warn().Err(err).Msg("Keepalive ping failed")
				}
			case product := <-f.resyncs:
				symbol, ok := f.products.ExchangeSymbol(product)
				if !ok {
					continue
				}
				if err := conn.WriteJSON(hubCall("QueryExchangeState", symbol)); err != nil {
					logger := logging.FromContext(logging.WithProduct(ctx, product))
					logger.Error().Err(err).Msg("Snapshot query failed")
				}
			}
		}
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read hub socket: %w", err)
		}
		for _, msg := range f.handleFrame(data) {
			select {
			case f.msgs <- msg:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func hubCall(method, market string) map[string]interface{} {
	return map[string]interface{}{
		"H": "c2",
		"M": method,
		"A": []string{market},
	}
}

// handleFrame translates one hub frame into canonical messages
func (f *Feed) handleFrame(data []byte) []messaging.StreamMessage {
	var frame hubMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		f.logger.Error().Err(err).Msg("Bad hub frame")
		return nil
	}

	switch frame.M {
	case "exchangeState":
		return f.handleSnapshots(frame.A)
	case "updateExchangeState":
		return f.handleDeltas(frame.A)
	case "updateSummaryState":
		return f.handleSummaries(frame.A)
	default:
		f.logger.Debug().Str("method", frame.M).Msg("Unknown hub method")
		return nil
	}
}

func (f *Feed) handleSnapshots(args []json.RawMessage) []messaging.StreamMessage {
	var out []messaging.StreamMessage
	for _, raw := range args {
		var state exchangeState
		if err := json.Unmarshal(raw, &state); err != nil {
			f.logger.Error().Err(err).Msg("Bad exchange state")
			continue
		}
		product, ok := f.products.GenericProduct(state.MarketName)
		if !ok {
			continue
		}
		f.mu.Lock()
		counter := f.counters[product]
		if counter == nil {
			counter = newMessageCounter()
			f.counters[product] = counter
		}
		counter.setSnapshotSequence(state.Nonce)
		f.mu.Unlock()
		out = append(out, translateSnapshot(product, &state))
	}
	return out
}

func (f *Feed) handleDeltas(args []json.RawMessage) []messaging.StreamMessage {
	var out []messaging.StreamMessage
	for _, raw := range args {
		var state exchangeState
		if err := json.Unmarshal(raw, &state); err != nil {
			f.logger.Error().Err(err).Msg("Bad exchange delta")
			continue
		}
		product, ok := f.products.GenericProduct(state.MarketName)
		if !ok {
			continue
		}

		f.mu.Lock()
		counter := f.counters[product]
		if counter == nil || state.Nonce <= counter.snapshotSequence() {
			// Deltas at or before the snapshot nonce are already reflected
			f.mu.Unlock()
			continue
		}
		for _, delta := range state.Buys {
			out = append(out, levelMessage(product, "buy", counter.nextSequence(), state.Nonce, delta))
		}
		for _, delta := range state.Sells {
			out = append(out, levelMessage(product, "sell", counter.nextSequence(), state.Nonce, delta))
		}
		f.mu.Unlock()

		for _, fl := range state.Fills {
			out = append(out, &messaging.TradeMessage{
				ProductID: product,
				Time:      parseTimestamp(fl.TimeStamp),
				TradeID:   "0",
				Price:     fl.Rate,
				Size:      fl.Quantity,
				Side:      strings.ToLower(fl.OrderType),
			})
		}
	}
	return out
}

func (f *Feed) handleSummaries(args []json.RawMessage) []messaging.StreamMessage {
	var out []messaging.StreamMessage
	for _, raw := range args {
		var summary summaryState
		if err := json.Unmarshal(raw, &summary); err != nil {
			f.logger.Error().Err(err).Msg("Bad summary state")
			continue
		}
		for _, s := range summary.Deltas {
			product, ok := f.products.GenericProduct(s.MarketName)
			if !ok {
				continue
			}
			out = append(out, &messaging.TickerMessage{
				ProductID: product,
				Time:      parseTimestamp(s.TimeStamp),
				Bid:       s.Bid,
				Ask:       s.Ask,
				Price:     s.Last,
				Volume:    s.Volume,
			})
		}
	}
	return out
}

func levelMessage(product, side string, seq, nonce int64, delta orderDelta) *messaging.LevelMessage {
	return &messaging.LevelMessage{
		ProductID:      product,
		Time:           time.Now(),
		Price:          delta.Rate,
		Size:           delta.Quantity,
		Side:           side,
		Sequence:       seq,
		SourceSequence: nonce,
		Count:          1,
	}
}

func translateSnapshot(product string, state *exchangeState) *messaging.SnapshotMessage {
	msg := &messaging.SnapshotMessage{
		ProductID:      product,
		Sequence:       state.Nonce,
		SourceSequence: state.Nonce,
		Time:           time.Now(),
	}
	for _, order := range state.Buys {
		msg.Bids = append(msg.Bids, messaging.PriceLevel{
			Price:     order.Rate,
			TotalSize: order.Quantity,
		})
	}
	for _, order := range state.Sells {
		msg.Asks = append(msg.Asks, messaging.PriceLevel{
			Price:     order.Rate,
			TotalSize: order.Quantity,
		})
	}
	return msg
}

func parseTimestamp(raw string) time.Time {
	if ts, err := time.Parse(timestampLayout, raw); err == nil {
		return ts
	}
	return time.Now()
}
