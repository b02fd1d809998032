package book

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BookBuilder maintains an in-memory aggregated order book for one product.
// Each side is a red-black tree of price levels and every order is tracked in
// a global pool shared by reference with the levels, so a single mutation
// updates both views.
//
// One writer applies mutations; concurrent readers are safe behind the
// embedded RWMutex. A writer holds the lock for the whole of one operation
// (a snapshot load or a single level replacement), never longer, so readers
// observe either the pre- or the post-state and nothing in between.
type BookBuilder struct {
	mu sync.RWMutex

	bids *levelTree
	asks *levelTree
	pool OrderPool

	sequence int64

	bidsTotal      decimal.Decimal
	bidsValueTotal decimal.Decimal
	asksTotal      decimal.Decimal
	asksValueTotal decimal.Decimal

	logger zerolog.Logger
}

// OrderSnapshot is an immutable copy of one order inside a BookState
type OrderSnapshot struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Side  Side            `json:"side"`
}

// LevelSnapshot is an immutable copy of one price level inside a BookState
type LevelSnapshot struct {
	Price     decimal.Decimal `json:"price"`
	TotalSize decimal.Decimal `json:"totalSize"`
	Orders    []OrderSnapshot `json:"orders"`
}

// BookState is a hierarchical copy of the book, best levels first. It is used
// to re-seed mirrors and to answer state queries from downstream consumers.
type BookState struct {
	Sequence int64           `json:"sequence"`
	Bids     []LevelSnapshot `json:"bids"`
	Asks     []LevelSnapshot `json:"asks"`
}

// NewBookBuilder creates an empty book. The sequence starts at -1 and stays
// there until the first snapshot is loaded.
func NewBookBuilder(logger zerolog.Logger) *BookBuilder {
	return &BookBuilder{
		bids:           newLevelTree(Buy),
		asks:           newLevelTree(Sell),
		pool:           make(OrderPool),
		sequence:       -1,
		bidsTotal:      decimal.Zero,
		bidsValueTotal: decimal.Zero,
		asksTotal:      decimal.Zero,
		asksValueTotal: decimal.Zero,
		logger:         logger,
	}
}

// Sequence returns the last applied sequence number, -1 before any snapshot
func (b *BookBuilder) Sequence() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sequence
}

// SetSequence replaces the book's sequence counter
func (b *BookBuilder) SetSequence(seq int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sequence = seq
}

// AdvanceSequence increments the sequence counter and returns the new value
func (b *BookBuilder) AdvanceSequence() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sequence++
	return b.sequence
}

// Add inserts an order at its price level, creating the level when this is
// the first order at that price. Returns false when the order id is already
// in the pool; the caller decides whether that is fatal.
func (b *BookBuilder) Add(order *Order) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLocked(order)
}

func (b *BookBuilder) addLocked(order *Order) bool {
	if _, exists := b.pool[order.ID()]; exists {
		b.logger.Warn().Str("order_id", order.ID()).Msg("duplicate order id rejected")
		return false
	}

	tree := b.treeFor(order.Side())
	level, found := tree.get(order.Price())
	if !found {
		level = NewPriceLevel(order.Price())
		tree.put(level)
	}
	if err := level.AddOrder(order); err != nil {
		if level.NumOrders() == 0 {
			tree.remove(level.Price())
		}
		b.logger.Warn().Err(err).Str("order_id", order.ID()).Msg("order rejected by level")
		return false
	}
	b.pool[order.ID()] = order
	b.addToTotal(order.Size(), order.Side(), order.Price())
	return true
}

// Modify changes an existing order's size in place. A newSize of zero removes
// the order (and its level, when it was the last resident); a negative
// newSize is an error. Returns false when the order id is unknown.
func (b *BookBuilder) Modify(id string, newSize decimal.Decimal) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, exists := b.pool[id]
	if !exists {
		return false, nil
	}
	return b.modifyLocked(order, newSize, order.Side())
}

// ModifySide is Modify with side-switch support: when newSide differs from
// the order's current side, the order moves to the matching level on the
// other tree.
func (b *BookBuilder) ModifySide(id string, newSize decimal.Decimal, newSide Side) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, exists := b.pool[id]
	if !exists {
		return false, nil
	}
	return b.modifyLocked(order, newSize, newSide)
}

func (b *BookBuilder) modifyLocked(order *Order, newSize decimal.Decimal, newSide Side) (bool, error) {
	if newSize.IsNegative() {
		return false, ErrInvalidSize
	}

	// Same side and a positive size is a plain resize: adjust the resident
	// order and the running totals in place.
	if newSide == order.Side() && newSize.IsPositive() {
		if level, found := b.treeFor(order.Side()).get(order.Price()); found {
			b.subtractFromTotal(order.Size(), order.Side(), order.Price())
			level.resizeOrder(order, newSize)
			b.addToTotal(newSize, order.Side(), order.Price())
			return true, nil
		}
	}

	if _, err := b.removeLocked(order.ID()); err != nil {
		return false, err
	}
	if newSize.IsZero() {
		return true, nil
	}

	order.setSize(newSize)
	order.setSide(newSide)
	if !b.addLocked(order) {
		return false, ErrDuplicateOrderID
	}
	return true, nil
}

// Remove deletes an order from its level and the pool. Draining a level to
// zero orders removes the level from the tree; empty levels never persist.
func (b *BookBuilder) Remove(id string) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(id)
}

func (b *BookBuilder) removeLocked(id string) (*Order, error) {
	order, exists := b.pool[id]
	if !exists {
		return nil, ErrOrderNotFound
	}

	tree := b.treeFor(order.Side())
	level, found := tree.get(order.Price())
	if !found {
		// pool and tree disagree; repair the pool and surface loudly
		delete(b.pool, id)
		b.logger.Error().Str("order_id", id).Msg("order in pool without a level")
		return nil, ErrOrderNotFound
	}

	if _, err := level.RemoveOrder(id); err != nil {
		return nil, err
	}
	delete(b.pool, id)
	b.subtractFromTotal(order.Size(), order.Side(), order.Price())

	if level.NumOrders() == 0 {
		tree.remove(level.Price())
	}
	return order, nil
}

// GetOrder returns the pooled order for id
func (b *BookBuilder) GetOrder(id string) (*Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	order, exists := b.pool[id]
	return order, exists
}

// NumOrders returns the size of the order pool
func (b *BookBuilder) NumOrders() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pool)
}

// GetLevel returns the level resting at the exact price, nil when absent
func (b *BookBuilder) GetLevel(side Side, price decimal.Decimal) *PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	level, found := b.treeFor(side).get(price)
	if !found {
		return nil
	}
	return level
}

// HighestBid returns the best bid level, nil when the bid side is empty
func (b *BookBuilder) HighestBid() *PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.best()
}

// LowestAsk returns the best ask level, nil when the ask side is empty
func (b *BookBuilder) LowestAsk() *PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.best()
}

// NumBids returns the number of bid levels
func (b *BookBuilder) NumBids() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.size()
}

// NumAsks returns the number of ask levels
func (b *BookBuilder) NumAsks() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.size()
}

// BidsTotal returns the summed size over all bid levels
func (b *BookBuilder) BidsTotal() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bidsTotal
}

// BidsValueTotal returns the summed size*price over all bid levels
func (b *BookBuilder) BidsValueTotal() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bidsValueTotal
}

// AsksTotal returns the summed size over all ask levels
func (b *BookBuilder) AsksTotal() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asksTotal
}

// AsksValueTotal returns the summed size*price over all ask levels
func (b *BookBuilder) AsksValueTotal() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asksValueTotal
}

// AddLevel bulk-inserts a fully formed level. A level already resting at that
// price is a hard error: it means the snapshot or gate logic let two inserts
// through for one price, and merging silently would hide the corruption.
func (b *BookBuilder) AddLevel(side Side, level *PriceLevel) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLevelLocked(side, level)
}

func (b *BookBuilder) addLevelLocked(side Side, level *PriceLevel) error {
	if !level.consistent() {
		return ErrInvalidSize
	}
	tree := b.treeFor(side)
	if _, found := tree.get(level.Price()); found {
		return ErrLevelExists
	}
	tree.put(level)
	for _, order := range level.orders {
		b.pool[order.ID()] = order
	}
	b.addToTotal(level.TotalSize(), side, level.Price())
	return nil
}

// RemoveLevel removes the level at the given price along with its pool
// entries. Returns false when no level rests there; deltas clearing an
// already-cleared level are tolerated.
func (b *BookBuilder) RemoveLevel(side Side, price decimal.Decimal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLevelLocked(side, price)
}

func (b *BookBuilder) removeLevelLocked(side Side, price decimal.Decimal) bool {
	tree := b.treeFor(side)
	level, found := tree.get(price)
	if !found {
		return false
	}
	tree.remove(price)
	for _, order := range level.orders {
		delete(b.pool, order.ID())
	}
	b.subtractFromTotal(level.TotalSize(), side, level.Price())
	return true
}

// SetLevel replaces whatever rests at the level's price with the new level,
// as one atomic step under the write lock. The incoming level is validated
// before the old one is touched, so a rejected level leaves the book exactly
// as it was; a level arriving with zero orders is a deletion and nothing is
// re-added.
func (b *BookBuilder) SetLevel(side Side, level *PriceLevel) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !level.consistent() {
		return ErrInvalidSize
	}
	b.removeLevelLocked(side, level.Price())
	if level.NumOrders() == 0 {
		return nil
	}
	return b.addLevelLocked(side, level)
}

// Clear empties both sides, the pool and the totals. The sequence counter is
// left alone; loading the replacement snapshot owns it.
func (b *BookBuilder) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
}

func (b *BookBuilder) clearLocked() {
	b.bids.clear()
	b.asks.clear()
	b.pool = make(OrderPool)
	b.bidsTotal = decimal.Zero
	b.bidsValueTotal = decimal.Zero
	b.asksTotal = decimal.Zero
	b.asksValueTotal = decimal.Zero
}

// State returns a hierarchical copy of the book, best levels first. The
// snapshot shares nothing with the live book.
func (b *BookBuilder) State() *BookState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state := &BookState{
		Sequence: b.sequence,
		Bids:     make([]LevelSnapshot, 0, b.bids.size()),
		Asks:     make([]LevelSnapshot, 0, b.asks.size()),
	}
	for _, level := range b.bids.levels() {
		state.Bids = append(state.Bids, snapshotLevel(level))
	}
	for _, level := range b.asks.levels() {
		state.Asks = append(state.Asks, snapshotLevel(level))
	}
	return state
}

// FromState clears the book and bulk-loads the given state. Readers observe
// either the old book or the fully loaded one.
func (b *BookBuilder) FromState(state *BookState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clearLocked()
	for i := range state.Bids {
		level, err := levelFromSnapshot(&state.Bids[i], Buy)
		if err != nil {
			return err
		}
		if err := b.addLevelLocked(Buy, level); err != nil {
			return err
		}
	}
	for i := range state.Asks {
		level, err := levelFromSnapshot(&state.Asks[i], Sell)
		if err != nil {
			return err
		}
		if err := b.addLevelLocked(Sell, level); err != nil {
			return err
		}
	}
	b.sequence = state.Sequence
	return nil
}

func (b *BookBuilder) treeFor(side Side) *levelTree {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

func (b *BookBuilder) addToTotal(amount decimal.Decimal, side Side, price decimal.Decimal) {
	if side == Buy {
		b.bidsTotal = b.bidsTotal.Add(amount)
		b.bidsValueTotal = b.bidsValueTotal.Add(amount.Mul(price))
	} else {
		b.asksTotal = b.asksTotal.Add(amount)
		b.asksValueTotal = b.asksValueTotal.Add(amount.Mul(price))
	}
}

func (b *BookBuilder) subtractFromTotal(amount decimal.Decimal, side Side, price decimal.Decimal) {
	if side == Buy {
		b.bidsTotal = b.bidsTotal.Sub(amount)
		b.bidsValueTotal = b.bidsValueTotal.Sub(amount.Mul(price))
	} else {
		b.asksTotal = b.asksTotal.Sub(amount)
		b.asksValueTotal = b.asksValueTotal.Sub(amount.Mul(price))
	}
}

// consistent reports whether the level's totals equal the sum over its
// orders. Bulk inserts re-verify instead of trusting supplied aggregates.
func (l *PriceLevel) consistent() bool {
	size := decimal.Zero
	value := decimal.Zero
	for _, order := range l.orders {
		size = size.Add(order.Size())
		value = value.Add(order.Value())
	}
	return size.Equal(l.totalSize) && value.Equal(l.totalValue)
}

func snapshotLevel(level *PriceLevel) LevelSnapshot {
	snap := LevelSnapshot{
		Price:     level.Price(),
		TotalSize: level.TotalSize(),
		Orders:    make([]OrderSnapshot, 0, level.NumOrders()),
	}
	for _, order := range level.orders {
		snap.Orders = append(snap.Orders, OrderSnapshot{
			ID:    order.ID(),
			Price: order.Price(),
			Size:  order.Size(),
			Side:  order.Side(),
		})
	}
	return snap
}

func levelFromSnapshot(snap *LevelSnapshot, side Side) (*PriceLevel, error) {
	level := NewPriceLevel(snap.Price)
	for _, o := range snap.Orders {
		order, err := NewOrder(o.ID, o.Price, o.Size, side)
		if err != nil {
			return nil, err
		}
		if err := level.AddOrder(order); err != nil {
			return nil, err
		}
	}
	return level, nil
}
