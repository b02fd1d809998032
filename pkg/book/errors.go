package book

import "errors"

// Errors
var (
	ErrDuplicateOrderID = errors.New("duplicate order id")
	ErrOrderNotFound    = errors.New("order not found")
	ErrLevelExists      = errors.New("level already exists")
	ErrInvalidSize      = errors.New("invalid size")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidSide      = errors.New("invalid side")
	ErrPriceMismatch    = errors.New("order price does not match level price")
)
