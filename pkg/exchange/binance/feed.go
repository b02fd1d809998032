// Package binance adapts Binance's combined depth and trade streams into the
// canonical message format.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradekit/bookfeed/pkg/exchange"
	"github.com/tradekit/bookfeed/pkg/logging"
	"github.com/tradekit/bookfeed/pkg/messaging"
)

const (
	defaultWSURL   = "wss://stream.binance.com:9443/ws/"
	defaultRESTURL = "https://api.binance.com"
	snapshotDepth  = 1000
)

// Feed streams depth and trades for a set of products
type Feed struct {
	cfg      *exchange.FeedConfig
	products *exchange.ProductMap
	client   *http.Client
	logger   zerolog.Logger

	msgs    chan messaging.StreamMessage
	resyncs chan string

	mu       sync.Mutex
	trackers map[string]*depthTracker
}

// NewFeed creates a Binance adapter for the configured products
func NewFeed(cfg *exchange.FeedConfig, logger zerolog.Logger) *Feed {
	pairs := make(map[string]string, len(cfg.Products))
	for _, p := range cfg.Products {
		if sym, ok := cfg.ProductSymbols[p]; ok {
			pairs[p] = sym
		} else {
			pairs[p] = strings.ToUpper(strings.ReplaceAll(p, "-", ""))
		}
	}

	return &Feed{
		cfg:      cfg,
		products: exchange.NewProductMap(pairs),
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: true,
			},
		},
		logger:   logger.With().Str("exchange", "binance").Logger(),
		msgs:     make(chan messaging.StreamMessage, 1024),
		resyncs:  make(chan string, 16),
		trackers: make(map[string]*depthTracker),
	}
}

// Name implements exchange.Feed
func (f *Feed) Name() string { return "binance" }

// Messages implements exchange.Feed
func (f *Feed) Messages() <-chan messaging.StreamMessage { return f.msgs }

// Resync implements exchange.Feed. The snapshot fetch happens on the feed's
// own goroutine; duplicate requests while one is queued are dropped.
func (f *Feed) Resync(productID string) {
	select {
	case f.resyncs <- productID:
	default:
	}
}

// Run connects every product's sockets and pumps messages until ctx ends or
// a socket dies
func (f *Feed) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2*len(f.products.Products())+1)
	var wg sync.WaitGroup

	wsURL := f.cfg.WSURL
	if wsURL == "" {
		wsURL = defaultWSURL
	}

	for _, product := range f.products.Products() {
		symbol, _ := f.products.ExchangeSymbol(product)
		f.mu.Lock()
		f.trackers[symbol] = newDepthTracker()
		f.mu.Unlock()

		stream := strings.ToLower(symbol)
		wg.Add(2)
		go func(product, symbol string) {
			defer wg.Done()
			pctx := logging.WithProduct(ctx, product)
			errc <- f.readLoop(pctx, wsURL+stream+"@depth", func(ctx context.Context, data []byte) {
				f.handleDepth(ctx, product, symbol, data)
			})
		}(product, symbol)
		go func(product, symbol string) {
			defer wg.Done()
			pctx := logging.WithProduct(ctx, product)
			errc <- f.readLoop(pctx, wsURL+stream+"@trade", func(ctx context.Context, data []byte) {
				f.handleTrade(ctx, product, data)
			})
		}(product, symbol)

		// The first snapshot races the depth stream on purpose; early
		// updates queue in the tracker until it lands
		f.Resync(product)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.snapshotLoop(ctx)
		errc <- nil
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	cancel()
	wg.Wait()
	return err
}

func (f *Feed) readLoop(ctx context.Context, url string, handle func(context.Context, []byte)) error {
	conn, err := exchange.Dial(ctx, url, f.cfg.StaleTimeout, f.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Handlers log through the context so every line carries the session id
	ctx = logging.WithSession(ctx, conn.SessionID())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", url, err)
		}
		handle(ctx, data)
	}
}

func (f *Feed) snapshotLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case product := <-f.resyncs:
			if err := f.fetchSnapshot(ctx, product); err != nil {
				f.logger.Error().Err(err).Str("product_id", product).
					Msg("Snapshot fetch failed")
				// Try again after a beat rather than spinning
				select {
				case <-ctx.Done():
					return
				case <-time.After(2 * time.Second):
					f.Resync(product)
				}
			}
		}
	}
}

func (f *Feed) fetchSnapshot(ctx context.Context, product string) error {
	symbol, ok := f.products.ExchangeSymbol(product)
	if !ok {
		return fmt.Errorf("unknown product %s", product)
	}

	restURL := f.cfg.RESTURL
	if restURL == "" {
		restURL = defaultRESTURL
	}
	url := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d", restURL, symbol, snapshotDepth)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("depth snapshot returned status %d", resp.StatusCode)
	}

	var snap depthSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("decode depth snapshot: %w", err)
	}

	msg, err := translateSnapshot(product, &snap)
	if err != nil {
		return err
	}

	f.mu.Lock()
	tracker := f.trackers[symbol]
	bridge, resync := tracker.seed(snap.LastUpdateID)
	if resync {
		f.mu.Unlock()
		f.logger.Warn().Str("product_id", product).
			Msg("Queued updates do not bridge the snapshot, refetching")
		f.Resync(product)
		return nil
	}
	var levels []*messaging.LevelMessage
	for _, u := range bridge {
		ls, err := translateDepth(product, tracker, u)
		if err != nil {
			f.mu.Unlock()
			return err
		}
		levels = append(levels, ls...)
	}

	// Pushed while still holding the lock: a live update validated after the
	// seed must not reach the channel ahead of the snapshot, or the engine
	// replays it post-snapshot and sees a phantom gap.
	f.push(ctx, msg)
	for _, l := range levels {
		f.push(ctx, l)
	}
	f.mu.Unlock()
	return nil
}

func (f *Feed) handleDepth(ctx context.Context, product, symbol string, data []byte) {
	logger := logging.FromContext(ctx)
	var update depthUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		logger.Error().Err(err).Msg("Bad depth frame")
		return
	}

	f.mu.Lock()
	tracker := f.trackers[symbol]
	apply, resync := tracker.onDepth(&update)
	if resync {
		f.mu.Unlock()
		logger.Warn().Int64("first_update_id", update.FirstUpdateID).
			Msg("Depth stream skipped ahead, refetching snapshot")
		f.Resync(product)
		return
	}
	var levels []*messaging.LevelMessage
	var translateErr error
	for _, u := range apply {
		ls, err := translateDepth(product, tracker, u)
		if err != nil {
			translateErr = err
			break
		}
		levels = append(levels, ls...)
	}
	if translateErr != nil {
		f.mu.Unlock()
		logger.Error().Err(translateErr).Msg("Bad depth level")
		return
	}
	// Same locking rule as fetchSnapshot: validate-then-push is atomic so
	// levels hit the channel in the order the tracker admitted them.
	for _, l := range levels {
		f.push(ctx, l)
	}
	f.mu.Unlock()
}

func (f *Feed) handleTrade(ctx context.Context, product string, data []byte) {
	logger := logging.FromContext(ctx)
	var trade tradeEvent
	if err := json.Unmarshal(data, &trade); err != nil {
		logger.Error().Err(err).Msg("Bad trade frame")
		return
	}
	msg, err := translateTrade(product, &trade)
	if err != nil {
		logger.Error().Err(err).Msg("Bad trade values")
		return
	}
	f.push(ctx, msg)
}

func (f *Feed) push(ctx context.Context, msg messaging.StreamMessage) {
	select {
	case f.msgs <- msg:
	case <-ctx.Done():
	}
}

// translateSnapshot converts a REST depth snapshot. The canonical sequence is
// zero; the exchange's lastUpdateId survives as sourceSequence.
func translateSnapshot(product string, snap *depthSnapshot) (*messaging.SnapshotMessage, error) {
	msg := &messaging.SnapshotMessage{
		ProductID:      product,
		Sequence:       0,
		SourceSequence: snap.LastUpdateID,
		Time:           time.Now(),
	}
	var err error
	if msg.Bids, err = translateLevels(snap.Bids); err != nil {
		return nil, err
	}
	if msg.Asks, err = translateLevels(snap.Asks); err != nil {
		return nil, err
	}
	return msg, nil
}

func translateLevels(raw [][2]string) ([]messaging.PriceLevel, error) {
	out := make([]messaging.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("bad price %q: %w", pair[0], err)
		}
		size, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("bad size %q: %w", pair[1], err)
		}
		out = append(out, messaging.PriceLevel{Price: price, TotalSize: size})
	}
	return out, nil
}

// translateDepth fans one validated update out into level messages, one
// canonical sequence per level
func translateDepth(product string, tracker *depthTracker, u *depthUpdate) ([]*messaging.LevelMessage, error) {
	ts := time.UnixMilli(u.Time)
	out := make([]*messaging.LevelMessage, 0, len(u.Bids)+len(u.Asks))

	appendLevels := func(raw [][2]string, side string) error {
		for _, pair := range raw {
			price, err := decimal.NewFromString(pair[0])
			if err != nil {
				return fmt.Errorf("bad price %q: %w", pair[0], err)
			}
			size, err := decimal.NewFromString(pair[1])
			if err != nil {
				return fmt.Errorf("bad size %q: %w", pair[1], err)
			}
			out = append(out, &messaging.LevelMessage{
				ProductID:      product,
				Time:           ts,
				Price:          price,
				Size:           size,
				Side:           side,
				Sequence:       tracker.nextSequence(),
				SourceSequence: u.FinalUpdateID,
				Count:          1,
			})
		}
		return nil
	}

	if err := appendLevels(u.Bids, "buy"); err != nil {
		return nil, err
	}
	if err := appendLevels(u.Asks, "sell"); err != nil {
		return nil, err
	}
	return out, nil
}

func translateTrade(product string, t *tradeEvent) (*messaging.TradeMessage, error) {
	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return nil, fmt.Errorf("bad trade price %q: %w", t.Price, err)
	}
	size, err := decimal.NewFromString(t.Quantity)
	if err != nil {
		return nil, fmt.Errorf("bad trade size %q: %w", t.Quantity, err)
	}
	side := "buy"
	if t.BuyerIsMaker {
		side = "sell"
	}
	return &messaging.TradeMessage{
		ProductID: product,
		Time:      time.UnixMilli(t.Time),
		TradeID:   fmt.Sprintf("%d", t.TradeID),
		Price:     price,
		Size:      size,
		Side:      side,
	}, nil
}
