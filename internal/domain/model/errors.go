package model

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidTimeline = errors.New("invalid timeline")
	ErrIndexOutOfRange = errors.New("point index out of range")
)
