package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("timeline not found")
	ErrInvalidKey    = errors.New("invalid timeline key")
	ErrStaleTimeline = errors.New("stored timeline was replaced")
)
