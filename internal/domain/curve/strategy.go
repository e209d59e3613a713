package curve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/model"
	"github.com/okian/kline/pkg/logger"
	"github.com/okian/kline/pkg/metrics"
)

// Progress stages reported through ProgressFunc.
const (
	StageDigest     = "digest"
	StageRequest    = "request"
	StageParse      = "parse"
	StageRepair     = "repair"
	StageSynthesize = "synthesize"
	StageFallback   = "fallback"
	StageDone       = "done"
)

// Progress is one progress notification.
type Progress struct {
	Strategy string  `json:"strategy"`
	Stage    string  `json:"stage"`
	Message  string  `json:"message,omitempty"`
	Fraction float64 `json:"fraction"`
}

// ProgressFunc receives progress notifications. It must not block.
type ProgressFunc func(Progress)

// Request is the input of a Strategy.
type Request struct {
	Chart     chart.Chart
	BirthYear int
	Progress  ProgressFunc
}

// Report forwards a notification when a ProgressFunc is set.
func (r Request) Report(strategy, stage, msg string, fraction float64) {
	if r.Progress != nil {
		r.Progress(Progress{Strategy: strategy, Stage: stage, Message: msg, Fraction: fraction})
	}
}

// Validate checks the request can be served.
func (r Request) Validate() error {
	if r.Chart == nil {
		return fmt.Errorf("%w: nil chart", ErrInvalidRequest)
	}
	if n := len(r.Chart.Palaces()); n != chart.PalaceCount {
		return fmt.Errorf("%w: chart has %d palaces", ErrInvalidRequest, n)
	}
	if r.BirthYear <= 0 {
		return fmt.Errorf("%w: birth year %d", ErrInvalidRequest, r.BirthYear)
	}
	return nil
}

// Strategy produces a lifetime timeline for a chart.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, req Request) (*model.Timeline, error)
}

// StrategyDeterministic names the algorithmic strategy.
const StrategyDeterministic = "deterministic"

// Deterministic is the algorithmic Strategy backed by a Synthesizer.
type Deterministic struct {
	synth *Synthesizer
}

var _ Strategy = (*Deterministic)(nil)

// NewDeterministic wraps s.
func NewDeterministic(s *Synthesizer) *Deterministic { return &Deterministic{synth: s} }

// Name implements Strategy.
func (d *Deterministic) Name() string { return StrategyDeterministic }

// Generate implements Strategy.
func (d *Deterministic) Generate(ctx context.Context, req Request) (*model.Timeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Report(d.Name(), StageSynthesize, "", 0)
	tl := d.synth.LifetimeContext(ctx, req.Chart, req.BirthYear)
	req.Report(d.Name(), StageDone, "", 1)
	return tl, nil
}

// FallbackOption configures a Fallback.
type FallbackOption func(*Fallback)

// WithReason classifies primary failures for metrics and notices.
func WithReason(fn func(error) string) FallbackOption {
	return func(f *Fallback) {
		if fn != nil {
			f.reason = fn
		}
	}
}

// WithFallbackLogger sets the logger.
func WithFallbackLogger(l logger.Logger) FallbackOption {
	return func(f *Fallback) {
		if l != nil {
			f.log = l
		}
	}
}

// Fallback runs Primary and, when it fails for any reason other than
// cancellation, Secondary. The substitution is reported as a notice on the
// returned timeline and through progress.
type Fallback struct {
	primary   Strategy
	secondary Strategy
	reason    func(error) string
	log       logger.Logger
}

var _ Strategy = (*Fallback)(nil)

// NewFallback composes primary with secondary.
func NewFallback(primary, secondary Strategy, opts ...FallbackOption) *Fallback {
	f := &Fallback{
		primary:   primary,
		secondary: secondary,
		reason:    func(error) string { return "error" },
		log:       logger.Get().Named("fallback"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Strategy.
func (f *Fallback) Name() string { return f.primary.Name() }

// Generate implements Strategy.
func (f *Fallback) Generate(ctx context.Context, req Request) (*model.Timeline, error) {
	tl, err := f.runPrimary(ctx, req)
	if err == nil {
		return tl, nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrInvalidRequest) {
		return nil, err
	}

	reason := f.reason(err)
	metrics.RecordFallback(reason)
	f.log.Warn(ctx, "primary strategy failed, falling back",
		logger.String("primary", f.primary.Name()),
		logger.String("secondary", f.secondary.Name()),
		logger.String("reason", reason),
		logger.Error(err),
	)
	notice := fmt.Sprintf("%s generation failed (%s); showing %s result", f.primary.Name(), reason, f.secondary.Name())
	req.Report(f.primary.Name(), StageFallback, notice, 0)

	start := time.Now()
	tl, err2 := f.secondary.Generate(ctx, req)
	if err2 != nil {
		return nil, errors.Join(err, err2)
	}
	tl.AddNotice(notice)
	f.log.Debug(ctx, "fallback finished", logger.Duration("took", time.Since(start)))
	return tl, nil
}

// runPrimary reports a panicking primary as an ErrStrategyPanic failure.
func (f *Fallback) runPrimary(ctx context.Context, req Request) (tl *model.Timeline, err error) {
	defer func() {
		if r := recover(); r != nil {
			tl, err = nil, fmt.Errorf("%w: %s: %v", ErrStrategyPanic, f.primary.Name(), r)
		}
	}()
	return f.primary.Generate(ctx, req)
}
