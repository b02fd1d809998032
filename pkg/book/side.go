package book

import "encoding/json"

// Side represents the buy or sell side of the book
type Side int

// Book sides
const (
	Sell Side = iota
	Buy
)

// String returns the wire representation of the side
func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide converts a wire-level side string to a Side
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy", "bid", "BUY":
		return Buy, nil
	case "sell", "ask", "SELL":
		return Sell, nil
	default:
		return 0, ErrInvalidSide
	}
}

// MarshalJSON implements json.Marshaler
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	side, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = side
	return nil
}
