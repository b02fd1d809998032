package book

import (
	"github.com/shopspring/decimal"
)

// PriceLevel aggregates all resting orders at one exact price on one side of
// the book. The running totals are maintained on every order mutation and
// always equal the sum over the resident orders; totals supplied from outside
// are never trusted, the level recomputes them order by order.
type PriceLevel struct {
	price      decimal.Decimal
	totalSize  decimal.Decimal
	totalValue decimal.Decimal
	orders     []*Order
}

// NewPriceLevel creates an empty level at the given price
func NewPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{
		price:      price,
		totalSize:  decimal.Zero,
		totalValue: decimal.Zero,
		orders:     make([]*Order, 0, 1),
	}
}

// NewAggregatedLevel builds a level holding one synthetic order carrying the
// whole aggregate, for feeds that only publish per-price totals. The synthetic
// order id is the price string, unique per price per side.
func NewAggregatedLevel(price, size decimal.Decimal, side Side) *PriceLevel {
	level := NewPriceLevel(price)
	if size.IsPositive() {
		order := &Order{
			id:    price.String(),
			price: price,
			size:  size,
			side:  side,
		}
		level.orders = append(level.orders, order)
		level.totalSize = size
		level.totalValue = size.Mul(price)
	}
	return level
}

// Price returns the level's price, the tree key
func (l *PriceLevel) Price() decimal.Decimal {
	return l.price
}

// TotalSize returns the summed size over resident orders
func (l *PriceLevel) TotalSize() decimal.Decimal {
	return l.totalSize
}

// TotalValue returns totalSize * price, summed per order
func (l *PriceLevel) TotalValue() decimal.Decimal {
	return l.totalValue
}

// NumOrders returns the count of resident orders
func (l *PriceLevel) NumOrders() int {
	return len(l.orders)
}

// Orders returns the resident orders in arrival order. The slice is a copy,
// the order records are not.
func (l *PriceLevel) Orders() []*Order {
	out := make([]*Order, len(l.orders))
	copy(out, l.orders)
	return out
}

// AddOrder appends an order to the level and grows the totals. The order must
// rest at the level's price.
func (l *PriceLevel) AddOrder(order *Order) error {
	if !order.Price().Equal(l.price) {
		return ErrPriceMismatch
	}
	if order.Size().IsNegative() {
		return ErrInvalidSize
	}
	for _, existing := range l.orders {
		if existing.ID() == order.ID() {
			return ErrDuplicateOrderID
		}
	}
	l.orders = append(l.orders, order)
	l.totalSize = l.totalSize.Add(order.Size())
	l.totalValue = l.totalValue.Add(order.Value())
	return nil
}

// RemoveOrder removes the order with the given id and shrinks the totals.
// The caller owns deleting the level once NumOrders reaches zero.
func (l *PriceLevel) RemoveOrder(id string) (*Order, error) {
	for i, order := range l.orders {
		if order.ID() == id {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			l.totalSize = l.totalSize.Sub(order.Size())
			l.totalValue = l.totalValue.Sub(order.Value())
			return order, nil
		}
	}
	return nil, ErrOrderNotFound
}

// resizeOrder adjusts the totals for an in-place size change of a resident
// order. newSize must be non-negative and is validated by the caller.
func (l *PriceLevel) resizeOrder(order *Order, newSize decimal.Decimal) {
	l.totalSize = l.totalSize.Sub(order.Size()).Add(newSize)
	l.totalValue = l.totalValue.Sub(order.Value()).Add(newSize.Mul(l.price))
	order.setSize(newSize)
}
