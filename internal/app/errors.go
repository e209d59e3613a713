package service

import "errors"

// Sentinel error kinds for the service.
var (
	ErrChartNotFound   = errors.New("chart not found")
	ErrSuperseded      = errors.New("generation superseded by a newer request")
	ErrUnknownStrategy = errors.New("unknown strategy")
)
