package narrative

import (
	"context"
	"errors"
)

// Sentinel error kinds for this package. Backends wrap their failures with
// ErrAuth or ErrTransport so the fallback can classify them.
var (
	ErrParse     = errors.New("narrative response not parseable")
	ErrAuth      = errors.New("narrative backend rejected credentials")
	ErrTransport = errors.New("narrative backend unreachable")
	ErrTimeout   = errors.New("narrative backend timed out")
)

// Reason classifies an error for metrics and notices.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "error"
	}
}
