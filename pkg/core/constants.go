package core

import "errors"

// Errors
var (
	ErrSymbolNotFound        = errors.New("symbol not found")
	ErrSymbolExists          = errors.New("symbol already registered")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrInvalidPrice          = errors.New("invalid price")
	ErrOrderNotFound         = errors.New("order not found")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)
