package book

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPriceLevel_AddOrder(t *testing.T) {
	level := NewPriceLevel(dec("100.5"))

	o1, err := NewOrder("o1", dec("100.5"), dec("2"), Buy)
	require.NoError(t, err)
	require.NoError(t, level.AddOrder(o1))

	o2, err := NewOrder("o2", dec("100.5"), dec("3.25"), Buy)
	require.NoError(t, err)
	require.NoError(t, level.AddOrder(o2))

	assert.Equal(t, 2, level.NumOrders())
	assert.True(t, level.TotalSize().Equal(dec("5.25")))
	assert.True(t, level.TotalValue().Equal(dec("5.25").Mul(dec("100.5"))))
}

func TestPriceLevel_AddOrder_DuplicateID(t *testing.T) {
	level := NewPriceLevel(dec("10"))
	o1, _ := NewOrder("o1", dec("10"), dec("1"), Sell)
	require.NoError(t, level.AddOrder(o1))

	dup, _ := NewOrder("o1", dec("10"), dec("2"), Sell)
	err := level.AddOrder(dup)
	assert.ErrorIs(t, err, ErrDuplicateOrderID)
	assert.True(t, level.TotalSize().Equal(dec("1")))
}

func TestPriceLevel_AddOrder_WrongPrice(t *testing.T) {
	level := NewPriceLevel(dec("10"))
	o1, _ := NewOrder("o1", dec("11"), dec("1"), Sell)
	assert.ErrorIs(t, level.AddOrder(o1), ErrPriceMismatch)
}

func TestPriceLevel_RemoveOrder(t *testing.T) {
	level := NewPriceLevel(dec("10"))
	o1, _ := NewOrder("o1", dec("10"), dec("1"), Buy)
	o2, _ := NewOrder("o2", dec("10"), dec("4"), Buy)
	require.NoError(t, level.AddOrder(o1))
	require.NoError(t, level.AddOrder(o2))

	removed, err := level.RemoveOrder("o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", removed.ID())
	assert.Equal(t, 1, level.NumOrders())
	assert.True(t, level.TotalSize().Equal(dec("4")))
	assert.True(t, level.TotalValue().Equal(dec("40")))

	_, err = level.RemoveOrder("missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestNewAggregatedLevel(t *testing.T) {
	level := NewAggregatedLevel(dec("250.1"), dec("7"), Sell)
	require.Equal(t, 1, level.NumOrders())
	assert.Equal(t, "250.1", level.Orders()[0].ID())
	assert.True(t, level.TotalSize().Equal(dec("7")))
	assert.True(t, level.consistent())

	// zero size aggregates to an empty level, used for deletions
	empty := NewAggregatedLevel(dec("250.1"), decimal.Zero, Sell)
	assert.Equal(t, 0, empty.NumOrders())
	assert.True(t, empty.TotalSize().IsZero())
}

func TestSideParsing(t *testing.T) {
	side, err := ParseSide("buy")
	require.NoError(t, err)
	assert.Equal(t, Buy, side)

	side, err = ParseSide("sell")
	require.NoError(t, err)
	assert.Equal(t, Sell, side)

	_, err = ParseSide("hold")
	assert.ErrorIs(t, err, ErrInvalidSide)

	assert.Equal(t, "buy", Buy.String())
}
