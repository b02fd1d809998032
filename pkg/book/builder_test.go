package book

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBook() *BookBuilder {
	return NewBookBuilder(zerolog.Nop())
}

// checkTotals recomputes both sides by full scan and compares against the
// incrementally maintained totals.
func checkTotals(t *testing.T, b *BookBuilder) {
	t.Helper()

	bidsSum := decimal.Zero
	for _, level := range b.bids.levels() {
		assert.True(t, level.consistent(), "bid level %s inconsistent", level.Price())
		bidsSum = bidsSum.Add(level.TotalSize())
	}
	asksSum := decimal.Zero
	for _, level := range b.asks.levels() {
		assert.True(t, level.consistent(), "ask level %s inconsistent", level.Price())
		asksSum = asksSum.Add(level.TotalSize())
	}
	assert.True(t, bidsSum.Equal(b.BidsTotal()), "bids total drift: scan %s, running %s", bidsSum, b.BidsTotal())
	assert.True(t, asksSum.Equal(b.AsksTotal()), "asks total drift: scan %s, running %s", asksSum, b.AsksTotal())
}

func mustOrder(t *testing.T, id, price, size string, side Side) *Order {
	t.Helper()
	order, err := NewOrder(id, dec(price), dec(size), side)
	require.NoError(t, err)
	return order
}

func TestBookBuilder_Add(t *testing.T) {
	b := newTestBook()

	assert.True(t, b.Add(mustOrder(t, "b1", "100", "2", Buy)))
	assert.True(t, b.Add(mustOrder(t, "b2", "100", "3", Buy)))
	assert.True(t, b.Add(mustOrder(t, "a1", "101", "1", Sell)))

	// duplicate id is rejected across both sides
	assert.False(t, b.Add(mustOrder(t, "b1", "99", "1", Sell)))

	level := b.GetLevel(Buy, dec("100"))
	require.NotNil(t, level)
	assert.Equal(t, 2, level.NumOrders())
	assert.True(t, level.TotalSize().Equal(dec("5")))
	assert.Equal(t, 1, b.NumBids())
	assert.Equal(t, 1, b.NumAsks())
	checkTotals(t, b)
}

func TestBookBuilder_BestOfBook(t *testing.T) {
	b := newTestBook()
	b.Add(mustOrder(t, "b1", "99", "1", Buy))
	b.Add(mustOrder(t, "b2", "101", "1", Buy))
	b.Add(mustOrder(t, "b3", "100", "1", Buy))
	b.Add(mustOrder(t, "a1", "103", "1", Sell))
	b.Add(mustOrder(t, "a2", "102", "1", Sell))
	b.Add(mustOrder(t, "a3", "104", "1", Sell))

	require.NotNil(t, b.HighestBid())
	require.NotNil(t, b.LowestAsk())
	assert.True(t, b.HighestBid().Price().Equal(dec("101")))
	assert.True(t, b.LowestAsk().Price().Equal(dec("102")))

	// state is ordered best-first
	state := b.State()
	require.Len(t, state.Bids, 3)
	require.Len(t, state.Asks, 3)
	assert.True(t, state.Bids[0].Price.Equal(dec("101")))
	assert.True(t, state.Bids[2].Price.Equal(dec("99")))
	assert.True(t, state.Asks[0].Price.Equal(dec("102")))
	assert.True(t, state.Asks[2].Price.Equal(dec("104")))
}

func TestBookBuilder_EmptyBook(t *testing.T) {
	b := newTestBook()
	assert.Nil(t, b.HighestBid())
	assert.Nil(t, b.LowestAsk())
	assert.Nil(t, b.GetLevel(Buy, dec("1")))
	assert.EqualValues(t, -1, b.Sequence())
}

func TestBookBuilder_Modify(t *testing.T) {
	b := newTestBook()
	b.Add(mustOrder(t, "o1", "100", "2", Buy))
	b.Add(mustOrder(t, "o2", "100", "1", Buy))

	ok, err := b.Modify("o1", dec("5"))
	require.NoError(t, err)
	assert.True(t, ok)

	level := b.GetLevel(Buy, dec("100"))
	require.NotNil(t, level)
	assert.True(t, level.TotalSize().Equal(dec("6")))
	// a resize happens in place; o1 keeps its spot at the front of the level
	assert.Equal(t, "o1", level.Orders()[0].ID())
	assert.Equal(t, 2, level.NumOrders())
	checkTotals(t, b)

	// unknown order id is not an error, just a false
	ok, err = b.Modify("nope", dec("1"))
	require.NoError(t, err)
	assert.False(t, ok)

	// negative size is never clamped
	ok, err = b.Modify("o1", dec("-1"))
	assert.ErrorIs(t, err, ErrInvalidSize)
	assert.False(t, ok)
	checkTotals(t, b)
}

func TestBookBuilder_ModifyToZeroDrainsLevel(t *testing.T) {
	b := newTestBook()
	b.Add(mustOrder(t, "only", "55", "3", Sell))

	ok, err := b.Modify("only", decimal.Zero)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Nil(t, b.GetLevel(Sell, dec("55")))
	assert.Equal(t, 0, b.NumAsks())
	assert.True(t, b.AsksTotal().IsZero())
	_, exists := b.GetOrder("only")
	assert.False(t, exists)
	checkTotals(t, b)
}

func TestBookBuilder_ModifySideSwitch(t *testing.T) {
	b := newTestBook()
	b.Add(mustOrder(t, "flip", "100", "2", Buy))

	ok, err := b.ModifySide("flip", dec("2"), Sell)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Nil(t, b.GetLevel(Buy, dec("100")))
	require.NotNil(t, b.GetLevel(Sell, dec("100")))
	assert.True(t, b.BidsTotal().IsZero())
	assert.True(t, b.AsksTotal().Equal(dec("2")))
	checkTotals(t, b)
}

func TestBookBuilder_AddLevel(t *testing.T) {
	b := newTestBook()
	level := NewAggregatedLevel(dec("100"), dec("4"), Buy)
	require.NoError(t, b.AddLevel(Buy, level))

	// a second level at the same price is a hard error, never merged
	again := NewAggregatedLevel(dec("100"), dec("9"), Buy)
	assert.ErrorIs(t, b.AddLevel(Buy, again), ErrLevelExists)

	assert.True(t, b.BidsTotal().Equal(dec("4")))
	checkTotals(t, b)
}

func TestBookBuilder_AddLevel_InconsistentTotals(t *testing.T) {
	b := newTestBook()
	level := NewAggregatedLevel(dec("100"), dec("4"), Buy)
	level.totalSize = dec("40") // claims more than its orders sum to

	assert.ErrorIs(t, b.AddLevel(Buy, level), ErrInvalidSize)
	assert.Equal(t, 0, b.NumBids())
}

func TestBookBuilder_SetLevel_InconsistentLeavesOldLevel(t *testing.T) {
	b := newTestBook()
	require.NoError(t, b.AddLevel(Buy, NewAggregatedLevel(dec("100"), dec("4"), Buy)))

	bad := NewAggregatedLevel(dec("100"), dec("7"), Buy)
	bad.totalSize = dec("70") // claims more than its orders sum to

	assert.ErrorIs(t, b.SetLevel(Buy, bad), ErrInvalidSize)

	// the rejected level must not have evicted the resting one
	level := b.GetLevel(Buy, dec("100"))
	require.NotNil(t, level)
	assert.True(t, level.TotalSize().Equal(dec("4")))
	assert.True(t, b.BidsTotal().Equal(dec("4")))
	checkTotals(t, b)
}

func TestBookBuilder_RemoveLevel(t *testing.T) {
	b := newTestBook()
	require.NoError(t, b.AddLevel(Sell, NewAggregatedLevel(dec("200"), dec("1.5"), Sell)))

	assert.True(t, b.RemoveLevel(Sell, dec("200")))
	assert.Nil(t, b.GetLevel(Sell, dec("200")))
	assert.True(t, b.AsksTotal().IsZero())

	// clearing an already-cleared level is tolerated
	assert.False(t, b.RemoveLevel(Sell, dec("200")))
	checkTotals(t, b)
}

func TestBookBuilder_SetLevelReplacement(t *testing.T) {
	b := newTestBook()

	old := NewPriceLevel(dec("100"))
	for _, id := range []string{"x1", "x2", "x3"} {
		require.NoError(t, old.AddOrder(mustOrder(t, id, "100", "2", Buy)))
	}
	require.NoError(t, b.AddLevel(Buy, old))
	require.True(t, b.BidsTotal().Equal(dec("6")))

	replacement := NewPriceLevel(dec("100"))
	require.NoError(t, replacement.AddOrder(mustOrder(t, "y1", "100", "1.5", Buy)))
	require.NoError(t, b.SetLevel(Buy, replacement))

	level := b.GetLevel(Buy, dec("100"))
	require.NotNil(t, level)
	assert.Equal(t, 1, level.NumOrders())
	assert.Equal(t, "y1", level.Orders()[0].ID())
	// old total fully subtracted, new total fully added, no double count
	assert.True(t, b.BidsTotal().Equal(dec("1.5")))

	_, exists := b.GetOrder("x1")
	assert.False(t, exists)
	checkTotals(t, b)
}

func TestBookBuilder_SetLevelEmptyDeletes(t *testing.T) {
	b := newTestBook()
	require.NoError(t, b.AddLevel(Buy, NewAggregatedLevel(dec("100"), dec("2"), Buy)))

	require.NoError(t, b.SetLevel(Buy, NewAggregatedLevel(dec("100"), decimal.Zero, Buy)))
	assert.Nil(t, b.GetLevel(Buy, dec("100")))
	assert.Equal(t, 0, b.NumBids())
	assert.True(t, b.BidsTotal().IsZero())
	checkTotals(t, b)
}

func TestBookBuilder_Clear(t *testing.T) {
	b := newTestBook()
	b.Add(mustOrder(t, "b1", "100", "2", Buy))
	b.Add(mustOrder(t, "a1", "101", "2", Sell))
	b.SetSequence(42)

	b.Clear()
	assert.Equal(t, 0, b.NumBids())
	assert.Equal(t, 0, b.NumAsks())
	assert.Equal(t, 0, b.NumOrders())
	assert.True(t, b.BidsTotal().IsZero())
	assert.True(t, b.AsksValueTotal().IsZero())
	// sequence survives a clear; the snapshot load owns it
	assert.EqualValues(t, 42, b.Sequence())
}

func TestBookBuilder_StateRoundTrip(t *testing.T) {
	b := newTestBook()
	b.Add(mustOrder(t, "b1", "99.5", "2", Buy))
	b.Add(mustOrder(t, "b2", "99.5", "1", Buy))
	b.Add(mustOrder(t, "a1", "100.5", "4", Sell))
	b.SetSequence(7)

	restored := newTestBook()
	require.NoError(t, restored.FromState(b.State()))

	assert.EqualValues(t, 7, restored.Sequence())
	assert.True(t, restored.BidsTotal().Equal(b.BidsTotal()))
	assert.True(t, restored.AsksTotal().Equal(b.AsksTotal()))
	level := restored.GetLevel(Buy, dec("99.5"))
	require.NotNil(t, level)
	assert.Equal(t, 2, level.NumOrders())
	checkTotals(t, restored)
}

func TestBookBuilder_NoDuplicatePricePerSide(t *testing.T) {
	b := newTestBook()
	b.Add(mustOrder(t, "o1", "100", "1", Buy))
	b.Add(mustOrder(t, "o2", "100", "2", Buy))
	b.Add(mustOrder(t, "o3", "100", "3", Buy))

	seen := map[string]bool{}
	for _, level := range b.bids.levels() {
		key := level.Price().String()
		assert.False(t, seen[key], "price %s appears twice on the bid side", key)
		seen[key] = true
	}
	assert.Equal(t, 1, b.NumBids())
}
