package curve

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidRequest = errors.New("invalid generation request")
	ErrStrategyPanic  = errors.New("generation strategy panicked")
)
