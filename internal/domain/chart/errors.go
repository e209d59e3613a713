package chart

import "errors"

// Sentinel error kinds for this package.
var (
	ErrUnknownQuality = errors.New("unknown star quality")
	ErrInvalidChart   = errors.New("invalid chart")
	ErrDateOutOfRange = errors.New("date outside supported calendar range")
	ErrLookupPanic    = errors.New("horoscope lookup panicked")
)
