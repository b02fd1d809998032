// Package redis projects canonical books into Redis so other processes can
// read best-of-book and level data without holding their own feed.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradekit/bookfeed/pkg/book"
	"github.com/tradekit/bookfeed/pkg/messaging"
)

// RedisOptions represents configuration options for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

var defaultOptions = &RedisOptions{
	Addr:     "localhost:6379",
	Password: "",
	DB:       0,
}

// SetDefaultRedisOptions sets the default options for Redis connections
func SetDefaultRedisOptions(options *RedisOptions) {
	defaultOptions = options
}

// GetRedisClient creates a new Redis client using the default options
func GetRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     defaultOptions.Addr,
		Password: defaultOptions.Password,
		DB:       defaultOptions.DB,
	})
}

// bestBidScript returns the highest bid price and its size atomically
var bestBidScript = redis.NewScript(`
local best = redis.call('ZREVRANGE', KEYS[1], 0, 0)
if #best == 0 then return false end
local size = redis.call('HGET', KEYS[2] .. best[1], 'totalSize')
return {best[1], size or '0'}
`)

// bestAskScript returns the lowest ask price and its size atomically
var bestAskScript = redis.NewScript(`
local best = redis.call('ZRANGE', KEYS[1], 0, 0)
if #best == 0 then return false end
local size = redis.call('HGET', KEYS[2] .. best[1], 'totalSize')
return {best[1], size or '0'}
`)

// Mirror writes book state into Redis. Per product it keeps two price ZSETs,
// one HASH per level and an info HASH with sequence and running totals.
type Mirror struct {
	sync.Mutex
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewMirror creates a mirror writing under the given key prefix
func NewMirror(client *redis.Client, prefix string, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (m *Mirror) sideKey(productID string, side book.Side) string {
	if side == book.Buy {
		return fmt.Sprintf("%s:%s:bids", m.prefix, productID)
	}
	return fmt.Sprintf("%s:%s:asks", m.prefix, productID)
}

func (m *Mirror) levelKeyPrefix(productID string, side book.Side) string {
	return fmt.Sprintf("%s:%s:level:%s:", m.prefix, productID, side)
}

func (m *Mirror) levelKey(productID string, side book.Side, price decimal.Decimal) string {
	return m.levelKeyPrefix(productID, side) + price.String()
}

func (m *Mirror) infoKey(productID string) string {
	return fmt.Sprintf("%s:%s:info", m.prefix, productID)
}

// ApplySnapshot replaces everything stored for productID with state
func (m *Mirror) ApplySnapshot(ctx context.Context, productID string, state *book.BookState) error {
	m.Lock()
	defer m.Unlock()

	if err := m.clearLocked(ctx, productID); err != nil {
		return err
	}

	pipe := m.client.Pipeline()
	bidsTotal, bidsValue := m.writeSide(ctx, pipe, productID, book.Buy, state.Bids)
	asksTotal, asksValue := m.writeSide(ctx, pipe, productID, book.Sell, state.Asks)

	pipe.HSet(ctx, m.infoKey(productID),
		"sequence", state.Sequence,
		"bidsTotal", bidsTotal.String(),
		"bidsValueTotal", bidsValue.String(),
		"asksTotal", asksTotal.String(),
		"asksValueTotal", asksValue.String(),
	)

	if _, err := pipe.Exec(ctx); err != nil {
		m.logger.Error("failed to mirror snapshot",
			zap.String("productID", productID),
			zap.Error(err))
		return err
	}
	return nil
}

func (m *Mirror) writeSide(ctx context.Context, pipe redis.Pipeliner, productID string, side book.Side, levels []book.LevelSnapshot) (total, value decimal.Decimal) {
	sideKey := m.sideKey(productID, side)
	for _, level := range levels {
		score, _ := level.Price.Float64()
		pipe.ZAdd(ctx, sideKey, redis.Z{
			Score:  score,
			Member: level.Price.String(),
		})
		levelValue := level.TotalSize.Mul(level.Price)
		pipe.HSet(ctx, m.levelKey(productID, side, level.Price),
			"totalSize", level.TotalSize.String(),
			"totalValue", levelValue.String(),
			"orders", len(level.Orders),
		)
		total = total.Add(level.TotalSize)
		value = value.Add(levelValue)
	}
	return total, value
}

// ApplyLevel mirrors one level update. The old level is removed and the new
// one written in a single pipeline so readers never see a half-applied level.
func (m *Mirror) ApplyLevel(ctx context.Context, productID string, msg *messaging.LevelMessage, sequence int64) error {
	m.Lock()
	defer m.Unlock()

	side, err := book.ParseSide(msg.Side)
	if err != nil {
		return err
	}

	sideKey := m.sideKey(productID, side)
	levelKey := m.levelKey(productID, side, msg.Price)

	// Read the outgoing size so the running totals can be adjusted
	oldSize := decimal.Zero
	raw, err := m.client.HGet(ctx, levelKey, "totalSize").Result()
	if err != nil && err != redis.Nil {
		return err
	}
	if err == nil {
		oldSize, err = decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("corrupt level size %q: %w", raw, err)
		}
	}

	sizeDelta := msg.Size.Sub(oldSize)
	valueDelta := sizeDelta.Mul(msg.Price)

	totalField, valueField := "bidsTotal", "bidsValueTotal"
	if side == book.Sell {
		totalField, valueField = "asksTotal", "asksValueTotal"
	}

	pipe := m.client.Pipeline()
	pipe.ZRem(ctx, sideKey, msg.Price.String())
	pipe.Del(ctx, levelKey)
	if msg.Size.IsPositive() {
		score, _ := msg.Price.Float64()
		pipe.ZAdd(ctx, sideKey, redis.Z{
			Score:  score,
			Member: msg.Price.String(),
		})
		pipe.HSet(ctx, levelKey,
			"totalSize", msg.Size.String(),
			"totalValue", msg.Size.Mul(msg.Price).String(),
			"orders", 1,
		)
	}
	infoKey := m.infoKey(productID)
	sizeF, _ := sizeDelta.Float64()
	valueF, _ := valueDelta.Float64()
	pipe.HIncrByFloat(ctx, infoKey, totalField, sizeF)
	pipe.HIncrByFloat(ctx, infoKey, valueField, valueF)
	pipe.HSet(ctx, infoKey, "sequence", sequence)

	if _, err := pipe.Exec(ctx); err != nil {
		m.logger.Error("failed to mirror level",
			zap.String("productID", productID),
			zap.String("price", msg.Price.String()),
			zap.Error(err))
		return err
	}
	return nil
}

// BestBid returns the highest mirrored bid price and size. ok is false when
// the side is empty.
func (m *Mirror) BestBid(ctx context.Context, productID string) (price, size decimal.Decimal, ok bool, err error) {
	return m.best(ctx, bestBidScript, productID, book.Buy)
}

// BestAsk returns the lowest mirrored ask price and size
func (m *Mirror) BestAsk(ctx context.Context, productID string) (price, size decimal.Decimal, ok bool, err error) {
	return m.best(ctx, bestAskScript, productID, book.Sell)
}

func (m *Mirror) best(ctx context.Context, script *redis.Script, productID string, side book.Side) (price, size decimal.Decimal, ok bool, err error) {
	keys := []string{m.sideKey(productID, side), m.levelKeyPrefix(productID, side)}
	res, err := script.Run(ctx, m.client, keys).Result()
	if err == redis.Nil {
		return decimal.Zero, decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, decimal.Zero, false, err
	}

	pair, isSlice := res.([]interface{})
	if !isSlice || len(pair) != 2 {
		return decimal.Zero, decimal.Zero, false, fmt.Errorf("unexpected script result %v", res)
	}
	price, err = decimal.NewFromString(fmt.Sprint(pair[0]))
	if err != nil {
		return decimal.Zero, decimal.Zero, false, err
	}
	if pair[1] != nil {
		size, err = decimal.NewFromString(fmt.Sprint(pair[1]))
		if err != nil {
			return decimal.Zero, decimal.Zero, false, err
		}
	}
	return price, size, true, nil
}

// Sequence reads the mirrored internal sequence for productID
func (m *Mirror) Sequence(ctx context.Context, productID string) (int64, error) {
	raw, err := m.client.HGet(ctx, m.infoKey(productID), "sequence").Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// Clear removes everything stored for productID
func (m *Mirror) Clear(ctx context.Context, productID string) error {
	m.Lock()
	defer m.Unlock()
	return m.clearLocked(ctx, productID)
}

func (m *Mirror) clearLocked(ctx context.Context, productID string) error {
	pipe := m.client.Pipeline()
	for _, side := range []book.Side{book.Buy, book.Sell} {
		sideKey := m.sideKey(productID, side)
		prices, err := m.client.ZRange(ctx, sideKey, 0, -1).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		for _, p := range prices {
			pipe.Del(ctx, m.levelKeyPrefix(productID, side)+p)
		}
		pipe.Del(ctx, sideKey)
	}
	pipe.Del(ctx, m.infoKey(productID))
	_, err := pipe.Exec(ctx)
	return err
}
