// Package orderbook reconciles exchange message streams into canonical books.
// A LiveOrderbook owns one product: it applies snapshots, gates level updates
// by sequence, buffers deltas that race the snapshot, and publishes events to
// downstream consumers. Ingest never returns an error; a message that cannot
// be applied is dropped, logged and counted, and a gap triggers a resync
// instead of failing the caller.
package orderbook

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradekit/bookfeed/pkg/book"
	"github.com/tradekit/bookfeed/pkg/db/queue"
	"github.com/tradekit/bookfeed/pkg/messaging"
	"github.com/tradekit/bookfeed/pkg/otel"
	"github.com/tradekit/bookfeed/pkg/sequence"
)

// State describes the reconciliation lifecycle of one product
type State int

// LiveOrderbook states
const (
	StateAwaitingSnapshot State = iota
	StateLive
)

// String returns the lowercase state name
func (s State) String() string {
	switch s {
	case StateAwaitingSnapshot:
		return "awaiting-snapshot"
	case StateLive:
		return "live"
	default:
		return "unknown"
	}
}

// Mirror projects book changes into an external store. Implementations must
// tolerate being called from a single goroutine per product.
type Mirror interface {
	ApplySnapshot(ctx context.Context, productID string, state *book.BookState) error
	ApplyLevel(ctx context.Context, productID string, msg *messaging.LevelMessage, sequence int64) error
	Clear(ctx context.Context, productID string) error
}

// ResyncFunc is invoked when a product needs a fresh snapshot
type ResyncFunc func(productID string)

// Config wires a LiveOrderbook's collaborators. Only ProductID is required.
type Config struct {
	ProductID   string
	Sender      messaging.EventSender
	Mirror      Mirror
	Alerts      queue.AlertSender
	Resync      ResyncFunc
	Logger      zerolog.Logger
	BufferLimit int
}

// LiveOrderbook keeps one product's canonical book in sync with its feed
type LiveOrderbook struct {
	mu             sync.Mutex
	productID      string
	book           *book.BookBuilder
	gate           *sequence.Gate
	pending        *sequence.PendingBuffer
	state          State
	sourceSequence int64

	sender  messaging.EventSender
	mirror  Mirror
	alerts  queue.AlertSender
	resync  ResyncFunc
	logger  zerolog.Logger
	metrics *otel.BookMetrics
}

// NewLiveOrderbook creates an engine in the awaiting-snapshot state
func NewLiveOrderbook(cfg Config) *LiveOrderbook {
	logger := cfg.Logger.With().Str("product_id", cfg.ProductID).Logger()
	return &LiveOrderbook{
		productID: cfg.ProductID,
		book:      book.NewBookBuilder(logger),
		gate:      sequence.NewGate(),
		pending:   sequence.NewPendingBuffer(cfg.BufferLimit),
		state:     StateAwaitingSnapshot,
		sender:    cfg.Sender,
		mirror:    cfg.Mirror,
		alerts:    cfg.Alerts,
		resync:    cfg.Resync,
		logger:    logger,
		metrics:   otel.GetBookMetrics(),
	}
}

// ProductID returns the product this engine reconciles
func (lo *LiveOrderbook) ProductID() string {
	return lo.productID
}

// Book exposes the canonical book for queries
func (lo *LiveOrderbook) Book() *book.BookBuilder {
	return lo.book
}

// State returns the current lifecycle state
func (lo *LiveOrderbook) State() State {
	lo.mu.Lock()
	defer lo.mu.Unlock()
	return lo.state
}

// SourceSequence returns the raw exchange sequence of the last snapshot
func (lo *LiveOrderbook) SourceSequence() int64 {
	lo.mu.Lock()
	defer lo.mu.Unlock()
	return lo.sourceSequence
}

// Ingest routes one canonical message into the engine. It never fails: bad
// messages are dropped with a log line and gaps schedule a resync.
func (lo *LiveOrderbook) Ingest(ctx context.Context, msg messaging.StreamMessage) {
	lo.mu.Lock()
	defer lo.mu.Unlock()

	switch m := msg.(type) {
	case *messaging.SnapshotMessage:
		lo.applySnapshotLocked(ctx, m)
	case *messaging.LevelMessage:
		lo.handleLevelLocked(ctx, m)
	case *messaging.TradeMessage:
		lo.emitLocked(ctx, &messaging.BookEvent{
			Kind:      messaging.EventTrade,
			ProductID: lo.productID,
			Sequence:  lo.book.Sequence(),
			Time:      m.Time,
			Trade:     m,
		})
	case *messaging.TickerMessage:
		lo.emitLocked(ctx, &messaging.BookEvent{
			Kind:      messaging.EventTicker,
			ProductID: lo.productID,
			Sequence:  lo.book.Sequence(),
			Time:      m.Time,
			Ticker:    m,
		})
	default:
		lo.logger.Warn().Str("type", string(msg.Type())).Msg("Unhandled message type")
	}
}

func (lo *LiveOrderbook) applySnapshotLocked(ctx context.Context, m *messaging.SnapshotMessage) {
	state, err := stateFromSnapshot(m)
	if err != nil {
		lo.logger.Error().Err(err).Int64("source_sequence", m.Sequence).
			Msg("Rejecting malformed snapshot")
		return
	}

	if err := lo.book.FromState(state); err != nil {
		lo.logger.Error().Err(err).Msg("Failed to load snapshot into book")
		return
	}
	// The internal sequence restarts at zero on every snapshot; the exchange
	// numbering survives only through the gate and sourceSequence.
	lo.book.SetSequence(0)
	lo.sourceSequence = m.SourceSequence
	lo.gate.SeedSnapshot(m.Sequence)
	lo.state = StateLive

	lo.metrics.RecordSnapshot(ctx, lo.productID)
	lo.logger.Info().
		Int64("source_sequence", m.SourceSequence).
		Int("bids", lo.book.NumBids()).
		Int("asks", lo.book.NumAsks()).
		Msg("Snapshot applied")

	if lo.mirror != nil {
		if err := lo.mirror.ApplySnapshot(ctx, lo.productID, lo.book.State()); err != nil {
			lo.logger.Error().Err(err).Msg("Failed to mirror snapshot")
		}
	}

	lo.emitLocked(ctx, &messaging.BookEvent{
		Kind:      messaging.EventSnapshotApplied,
		ProductID: lo.productID,
		Sequence:  0,
		Time:      m.Time,
	})

	// Replay deltas that arrived while the snapshot was in flight. The gate
	// silently discards those the snapshot already covers.
	for _, pending := range lo.pending.Drain() {
		lo.handleLevelLocked(ctx, pending)
	}
}

func (lo *LiveOrderbook) handleLevelLocked(ctx context.Context, m *messaging.LevelMessage) {
	if lo.state == StateAwaitingSnapshot {
		if overflow := lo.pending.Push(m); overflow {
			lo.metrics.RecordBufferOverflow(ctx, lo.productID)
			lo.logger.Warn().Msg("Pending buffer overflow, forcing resync")
			lo.requestResyncLocked(ctx)
		}
		return
	}

	switch lo.gate.Check(m.Sequence) {
	case sequence.StatusOK:
		lo.applyLevelLocked(ctx, m)
	case sequence.StatusAlreadyProcessed:
		lo.metrics.RecordDuplicate(ctx, lo.productID)
		lo.logger.Debug().Int64("sequence", m.Sequence).Msg("Discarding stale message")
	case sequence.StatusSkip:
		lo.handleGapLocked(ctx, m)
	case sequence.StatusUnseeded:
		// Live without a seeded gate shouldn't happen; treat as pre-snapshot
		lo.pending.Push(m)
	}
}

func (lo *LiveOrderbook) applyLevelLocked(ctx context.Context, m *messaging.LevelMessage) {
	side, err := book.ParseSide(m.Side)
	if err != nil {
		lo.logger.Error().Err(err).Str("side", m.Side).Msg("Dropping message with bad side")
		return
	}
	if m.Size.IsNegative() {
		lo.logger.Error().
			Str("price", m.Price.String()).
			Str("size", m.Size.String()).
			Msg("Dropping message with negative aggregate size")
		return
	}

	level := book.NewAggregatedLevel(m.Price, m.Size, side)
	if err := lo.book.SetLevel(side, level); err != nil {
		lo.logger.Error().Err(err).
			Str("price", m.Price.String()).
			Str("size", m.Size.String()).
			Msg("Failed to apply level update")
		return
	}
	seq := lo.book.AdvanceSequence()
	lo.metrics.RecordDeltas(ctx, lo.productID, 1)

	if lo.mirror != nil {
		if err := lo.mirror.ApplyLevel(ctx, lo.productID, m, seq); err != nil {
			lo.logger.Error().Err(err).Msg("Failed to mirror level update")
		}
	}

	lo.emitLocked(ctx, &messaging.BookEvent{
		Kind:      messaging.EventBookUpdated,
		ProductID: lo.productID,
		Sequence:  seq,
		Time:      m.Time,
		Level:     m,
	})
}

func (lo *LiveOrderbook) handleGapLocked(ctx context.Context, m *messaging.LevelMessage) {
	skipped := &messaging.SkippedMessageEvent{
		ExpectedSequence: lo.gate.Expected(),
		Sequence:         m.Sequence,
	}
	lo.metrics.RecordGap(ctx, lo.productID)
	lo.logger.Warn().
		Int64("expected_sequence", skipped.ExpectedSequence).
		Int64("sequence", skipped.Sequence).
		Msg("Sequence gap detected")

	lo.emitLocked(ctx, &messaging.BookEvent{
		Kind:      messaging.EventSkippedMessage,
		ProductID: lo.productID,
		Sequence:  lo.book.Sequence(),
		Time:      m.Time,
		Skipped:   skipped,
	})

	if lo.alerts != nil {
		alert := &queue.GapAlert{
			ProductID: lo.productID,
			Time:      time.Now(),
			Skipped:   *skipped,
		}
		if err := lo.alerts.SendGapAlert(alert); err != nil {
			lo.logger.Error().Err(err).Msg("Failed to publish gap alert")
		}
	}

	// Back to buffering until a fresh snapshot reseeds the gate. The gapped
	// message itself is lost; the buffer starts with whatever follows it.
	lo.state = StateAwaitingSnapshot
	lo.requestResyncLocked(ctx)
}

func (lo *LiveOrderbook) requestResyncLocked(ctx context.Context) {
	lo.metrics.RecordResync(ctx, lo.productID)
	lo.emitLocked(ctx, &messaging.BookEvent{
		Kind:      messaging.EventResyncRequested,
		ProductID: lo.productID,
		Sequence:  lo.book.Sequence(),
		Time:      time.Now(),
	})
	if lo.resync != nil {
		lo.resync(lo.productID)
	}
}

func (lo *LiveOrderbook) emitLocked(ctx context.Context, event *messaging.BookEvent) {
	if lo.sender == nil {
		return
	}
	if err := lo.sender.SendBookEvent(ctx, event); err != nil {
		lo.logger.Error().Err(err).Str("kind", string(event.Kind)).
			Msg("Failed to publish book event")
	}
}

// stateFromSnapshot converts a wire snapshot into book state. Levels without
// per-order detail get a single aggregate order at the level price.
func stateFromSnapshot(m *messaging.SnapshotMessage) (*book.BookState, error) {
	state := &book.BookState{Sequence: 0}

	convert := func(levels []messaging.PriceLevel, side book.Side) ([]book.LevelSnapshot, error) {
		out := make([]book.LevelSnapshot, 0, len(levels))
		for _, l := range levels {
			snap := book.LevelSnapshot{
				Price:     l.Price,
				TotalSize: l.TotalSize,
			}
			if len(l.Orders) == 0 {
				snap.Orders = []book.OrderSnapshot{{
					ID:    l.Price.String(),
					Price: l.Price,
					Size:  l.TotalSize,
					Side:  side,
				}}
			} else {
				snap.Orders = make([]book.OrderSnapshot, 0, len(l.Orders))
				for _, o := range l.Orders {
					orderSide, err := book.ParseSide(o.Side)
					if err != nil {
						return nil, err
					}
					snap.Orders = append(snap.Orders, book.OrderSnapshot{
						ID:    o.ID,
						Price: o.Price,
						Size:  o.Size,
						Side:  orderSide,
					})
				}
			}
			out = append(out, snap)
		}
		return out, nil
	}

	bids, err := convert(m.Bids, book.Buy)
	if err != nil {
		return nil, err
	}
	asks, err := convert(m.Asks, book.Sell)
	if err != nil {
		return nil, err
	}
	state.Bids = bids
	state.Asks = asks
	return state, nil
}
