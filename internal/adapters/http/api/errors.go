package api

import (
	"context"
	"errors"
	"net/http"

	eventqueue "github.com/okian/kline/internal/adapters/mq/queue"
	"github.com/okian/kline/internal/adapters/narrative"
	repository "github.com/okian/kline/internal/adapters/repository"
	service "github.com/okian/kline/internal/app"
	"github.com/okian/kline/internal/domain/curve"
	"github.com/okian/kline/internal/domain/model"
	"github.com/okian/kline/internal/testcharts"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
)

// classify maps an error to its HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrChartNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, curve.ErrInvalidRequest),
		errors.Is(err, testcharts.ErrInvalidFixture),
		errors.Is(err, service.ErrUnknownStrategy),
		errors.Is(err, model.ErrIndexOutOfRange),
		errors.Is(err, model.ErrInvalidTimeline),
		errors.Is(err, repository.ErrInvalidKey):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, eventqueue.ErrFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, eventqueue.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, narrative.ErrTimeout):
		return http.StatusGatewayTimeout, "backend_timeout"
	case errors.Is(err, narrative.ErrAuth), errors.Is(err, narrative.ErrTransport):
		return http.StatusBadGateway, "backend_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
