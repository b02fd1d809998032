package book

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Order is a single resting order. Orders are owned by the book's OrderPool
// and referenced, never copied, by the price level they rest at: mutating an
// order through either handle is visible through the other.
type Order struct {
	id    string
	price decimal.Decimal
	size  decimal.Decimal
	side  Side
}

// NewOrder creates a new resting order record
func NewOrder(id string, price, size decimal.Decimal, side Side) (*Order, error) {
	if id == "" {
		return nil, ErrOrderNotFound
	}
	if price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	if size.IsNegative() {
		return nil, ErrInvalidSize
	}
	return &Order{
		id:    id,
		price: price,
		size:  size,
		side:  side,
	}, nil
}

// ID returns the order id
func (o *Order) ID() string {
	return o.id
}

// Price returns the resting price
func (o *Order) Price() decimal.Decimal {
	return o.price
}

// Size returns the current resting size
func (o *Order) Size() decimal.Decimal {
	return o.size
}

// Side returns the side of the order
func (o *Order) Side() Side {
	return o.side
}

// Value returns price * size
func (o *Order) Value() decimal.Decimal {
	return o.price.Mul(o.size)
}

// setSize replaces the order's size. Negative sizes are rejected by the
// callers before they reach here; the book never clamps silently.
func (o *Order) setSize(size decimal.Decimal) {
	o.size = size
}

func (o *Order) setSide(side Side) {
	o.side = side
}

// MarshalJSON implements json.Marshaler
func (o *Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID    string `json:"id"`
		Price string `json:"price"`
		Size  string `json:"size"`
		Side  string `json:"side"`
	}{
		ID:    o.id,
		Price: o.price.String(),
		Size:  o.size.String(),
		Side:  o.side.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (o *Order) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    string `json:"id"`
		Price string `json:"price"`
		Size  string `json:"size"`
		Side  string `json:"side"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	price, err := decimal.NewFromString(raw.Price)
	if err != nil {
		return err
	}
	size, err := decimal.NewFromString(raw.Size)
	if err != nil {
		return err
	}
	side, err := ParseSide(raw.Side)
	if err != nil {
		return err
	}

	o.id = raw.ID
	o.price = price
	o.size = size
	o.side = side
	return nil
}

// OrderPool is the flat arena of every order resting in the book, keyed by
// order id. Entries are shared by reference with exactly one PriceLevel.
type OrderPool map[string]*Order
