package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/okian/kline/internal/adapters/narrative"
	"github.com/okian/kline/pkg/logger"
	"github.com/okian/kline/pkg/metrics"
)

// GuardOption configures a Guard.
type GuardOption func(*guardConfig)

type guardConfig struct {
	timeout   time.Duration
	rps       float64
	burst     int
	threshold uint32
	cooldown  time.Duration
	log       logger.Logger
}

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(d time.Duration) GuardOption {
	return func(c *guardConfig) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit allows rps requests per second with the given burst. Zero
// rps disables limiting.
func WithRateLimit(rps float64, burst int) GuardOption {
	return func(c *guardConfig) {
		if rps >= 0 {
			c.rps = rps
		}
		if burst > 0 {
			c.burst = burst
		}
	}
}

// WithBreakerThreshold opens the breaker after n consecutive failures.
func WithBreakerThreshold(n uint32) GuardOption {
	return func(c *guardConfig) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithBreakerCooldown sets how long the breaker stays open.
func WithBreakerCooldown(d time.Duration) GuardOption {
	return func(c *guardConfig) {
		if d > 0 {
			c.cooldown = d
		}
	}
}

// WithGuardLogger sets the logger.
func WithGuardLogger(l logger.Logger) GuardOption {
	return func(c *guardConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// Guard wraps a backend with a circuit breaker, a rate limiter, a request
// timeout and request metrics.
type Guard struct {
	next     narrative.Backend
	provider string
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	timeout  time.Duration
	log      logger.Logger
}

var _ narrative.Backend = (*Guard)(nil)

// NewGuard wraps next. provider labels metrics and the breaker.
func NewGuard(next narrative.Backend, provider string, opts ...GuardOption) *Guard {
	c := guardConfig{
		burst:     1,
		threshold: 3,
		cooldown:  60 * time.Second,
		log:       logger.Get().Named("llm"),
	}
	for _, opt := range opts {
		opt(&c)
	}

	g := &Guard{next: next, provider: provider, timeout: c.timeout, log: c.log}
	if c.rps > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(c.rps), c.burst)
	}
	st := gobreaker.Settings{Name: "llm-" + provider}
	st.Interval = 60 * time.Second
	st.Timeout = c.cooldown
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= c.threshold
	}
	// Unparseable answers and cancelled callers say nothing about the
	// provider's health.
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, narrative.ErrParse) || errors.Is(err, context.Canceled)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		metrics.UpdateBreakerState(name, int(to))
		g.log.Warn(context.Background(), "breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
	g.breaker = gobreaker.NewCircuitBreaker(st)
	metrics.UpdateBreakerState(st.Name, int(gobreaker.StateClosed))
	return g
}

// Provider returns the provider label.
func (g *Guard) Provider() string { return g.provider }

// State returns the breaker state.
func (g *Guard) State() gobreaker.State { return g.breaker.State() }

// Complete implements narrative.Backend.
func (g *Guard) Complete(ctx context.Context, p narrative.Prompt) (string, error) {
	parent := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			if parent.Err() != nil {
				return "", parent.Err()
			}
			if ctx.Err() != nil {
				return "", g.timedOut(ctx.Err())
			}
			return "", fmt.Errorf("%w: rate limit: %w", narrative.ErrTransport, err)
		}
	}

	start := time.Now()
	out, err := g.breaker.Execute(func() (any, error) {
		return g.next.Complete(ctx, p)
	})
	took := time.Since(start)
	if err != nil && parent.Err() == nil && ctx.Err() != nil {
		err = g.timedOut(err)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordBackendRequest(g.provider, "open", 0)
		return "", fmt.Errorf("%w: %s: %w", narrative.ErrTransport, g.provider, err)
	}
	outcome := "success"
	if err != nil {
		outcome = narrative.Reason(err)
	}
	metrics.RecordBackendRequest(g.provider, outcome, float64(took.Milliseconds()))
	if err != nil {
		g.log.Warn(ctx, "backend request failed",
			logger.String("provider", g.provider),
			logger.String("outcome", outcome),
			logger.Duration("took", took),
			logger.Error(err),
		)
		return "", err
	}
	return out.(string), nil
}

// timedOut marks err as the guard's own deadline firing while the caller
// was still waiting.
func (g *Guard) timedOut(err error) error {
	return fmt.Errorf("%w: %s after %s: %w", narrative.ErrTimeout, g.provider, g.timeout, err)
}
