// Package narrative produces lifetime timelines by asking a text generation
// backend to reason over a chart digest, then parsing and repairing its
// answer into the same Timeline shape the deterministic strategy returns.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/kline/internal/domain/curve"
	"github.com/okian/kline/internal/domain/model"
	"github.com/okian/kline/pkg/logger"
	"github.com/okian/kline/pkg/metrics"
)

// Option configures a Strategy.
type Option func(*Strategy)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Strategy) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxTokens bounds the backend response length.
func WithMaxTokens(n int) Option {
	return func(s *Strategy) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature passed to the backend.
func WithTemperature(t float64) Option {
	return func(s *Strategy) {
		if t >= 0 {
			s.temperature = t
		}
	}
}

// Strategy is the backend-driven curve.Strategy.
type Strategy struct {
	backend     Backend
	synth       *curve.Synthesizer
	log         logger.Logger
	maxTokens   int
	temperature float64
}

var _ curve.Strategy = (*Strategy)(nil)

// NewStrategy returns a Strategy that sends requests to b and decorates the
// parsed timeline with synth.
func NewStrategy(b Backend, synth *curve.Synthesizer, opts ...Option) *Strategy {
	s := &Strategy{
		backend:     b,
		synth:       synth,
		log:         logger.Get().Named("narrative"),
		maxTokens:   8192,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements curve.Strategy.
func (s *Strategy) Name() string { return StrategyNarrative }

// Generate implements curve.Strategy.
func (s *Strategy) Generate(ctx context.Context, req curve.Request) (*model.Timeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	params := s.synth.Model().Curve()

	req.Report(s.Name(), curve.StageDigest, "", 0.05)
	digest := Digest(req.Chart, req.BirthYear, params.Points, s.synth.Model())

	req.Report(s.Name(), curve.StageRequest, "", 0.1)
	prompt := LifetimePrompt(digest, params.Points)
	prompt.MaxTokens = s.maxTokens
	prompt.Temperature = s.temperature
	start := time.Now()
	text, err := s.backend.Complete(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrAuth) && !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return nil, err
	}
	s.log.Debug(ctx, "backend responded",
		logger.Int("bytes", len(text)), logger.Duration("took", time.Since(start)))

	req.Report(s.Name(), curve.StageParse, "", 0.8)
	entries, stage, err := ParseEntries(text)
	if err != nil {
		s.log.Warn(ctx, "backend response not parseable", logger.Int("bytes", len(text)), logger.Error(err))
		return nil, err
	}
	if stage != StageJSON {
		metrics.RecordParseRepair(stage)
	}

	req.Report(s.Name(), curve.StageRepair, "", 0.9)
	tl, rep, err := Assemble(entries, params.Points, params.Seed)
	if err != nil {
		return nil, err
	}
	if rep.Total() > 0 {
		metrics.RecordParseRepair("assemble")
		s.log.Info(ctx, "backend series repaired",
			logger.Int("filled", rep.Filled),
			logger.Int("rechained", rep.Rechained),
			logger.Int("rebounded", rep.Rebounded),
		)
	}

	s.synth.DecorateContext(ctx, req.Chart, req.BirthYear, tl)
	tl.Strategy = StrategyNarrative
	if err := tl.Validate(); err != nil {
		tl.Normalize()
		if err := tl.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req.Report(s.Name(), curve.StageDone, "", 1)
	return tl, nil
}
