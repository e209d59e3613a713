package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/kline/internal/adapters/llm"
	"github.com/okian/kline/internal/adapters/narrative"
	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/curve"
	"github.com/okian/kline/internal/domain/model"
	"github.com/okian/kline/pkg/logger"
	"github.com/okian/kline/pkg/metrics"
)

// generation is one in-flight narrative computation of a chart.
type generation struct {
	id     uint64
	cancel context.CancelCauseFunc
}

// ComputeDeterministicTimeline synthesizes the lifetime timeline of c.
// Concurrent calls for the same chart and birth year share one computation
// and each caller receives its own copy.
func (s *Service) ComputeDeterministicTimeline(ctx context.Context, c chart.Chart, birthYear int) (*model.Timeline, error) {
	req := curve.Request{Chart: c, BirthYear: birthYear}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	key := curve.Fingerprint(c) + ":" + strconv.Itoa(birthYear)
	v, err, shared := s.group.Do(key, func() (any, error) {
		return curve.NewDeterministic(s.synth).Generate(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	tl := v.(*model.Timeline)
	if shared {
		tl = tl.Clone()
	}
	return s.finish(tl, start), nil
}

// ComputeNarrativeTimeline asks the backend described by cfg for a lifetime
// timeline and falls back to the deterministic synthesizer when the backend
// fails or answers with something unusable. Zero fields of cfg take the
// service defaults. A newer call for the same chart supersedes this one,
// which then returns ErrSuperseded.
func (s *Service) ComputeNarrativeTimeline(ctx context.Context, c chart.Chart, birthYear int, cfg llm.Config, onProgress curve.ProgressFunc) (*model.Timeline, error) {
	req := curve.Request{Chart: c, BirthYear: birthYear, Progress: onProgress}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, done := s.supersede(ctx, "narrative:"+curve.Fingerprint(c))
	defer done()

	cfg = s.mergeBackend(cfg)
	backend, err := s.backendFor(cfg)
	if err != nil {
		s.logger.Warn(ctx, "narrative backend unavailable",
			logger.String("provider", cfg.Provider), logger.Error(err))
		backendErr := err
		backend = narrative.BackendFunc(func(context.Context, narrative.Prompt) (string, error) {
			return "", backendErr
		})
	}

	primary := narrative.NewStrategy(backend, s.synth,
		narrative.WithLogger(s.logger.Named("narrative")),
		narrative.WithMaxTokens(cfg.MaxTokens),
		narrative.WithTemperature(cfg.Temperature),
	)
	strategy := curve.NewFallback(primary, curve.NewDeterministic(s.synth),
		curve.WithReason(narrative.Reason),
		curve.WithFallbackLogger(s.logger.Named("fallback")),
	)

	tl, err := strategy.Generate(ctx, req)
	if errors.Is(context.Cause(ctx), ErrSuperseded) {
		metrics.RecordSuperseded()
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	return s.finish(tl, start), nil
}

// ComputeDecadeSeries builds one point per decade palace of c.
func (s *Service) ComputeDecadeSeries(ctx context.Context, c chart.Chart, birthYear int) (*model.Timeline, error) {
	if err := (curve.Request{Chart: c, BirthYear: birthYear}).Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	return s.finish(s.synth.DecadesContext(ctx, c, birthYear), start), nil
}

// ComputeYearSeries builds the yearly series of c starting at startYear.
func (s *Service) ComputeYearSeries(ctx context.Context, c chart.Chart, startYear int) (*model.Timeline, error) {
	if err := (curve.Request{Chart: c, BirthYear: startYear}).Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	return s.finish(s.synth.YearsContext(ctx, c, startYear), start), nil
}

// ComputeMonthSeries builds the twelve monthly points of year for c.
func (s *Service) ComputeMonthSeries(ctx context.Context, c chart.Chart, year int) (*model.Timeline, error) {
	if err := (curve.Request{Chart: c, BirthYear: year}).Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	return s.finish(s.synth.MonthsContext(ctx, c, year), start), nil
}

// finish stamps a freshly generated timeline and records it.
func (s *Service) finish(tl *model.Timeline, start time.Time) *model.Timeline {
	tl.ID = uuid.NewString()
	tl.CreatedAt = time.Now().UTC()
	metrics.RecordTimelineGenerated(tl.Strategy, string(tl.Kind), float64(time.Since(start).Milliseconds()))
	return tl
}

// supersede registers a generation under key, cancelling the one it
// replaces. The returned func releases the registration.
func (s *Service) supersede(ctx context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	s.mu.Lock()
	s.gen++
	id := s.gen
	if prev, ok := s.inflight[key]; ok {
		prev.cancel(ErrSuperseded)
	}
	s.inflight[key] = generation{id: id, cancel: cancel}
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		if cur, ok := s.inflight[key]; ok && cur.id == id {
			delete(s.inflight, key)
		}
		s.mu.Unlock()
		cancel(nil)
	}
}

// seriesYear resolves the year parameter of a series request.
func seriesYear(kind model.Kind, year int) (int, error) {
	switch kind {
	case model.KindYear, model.KindMonth:
		if year == 0 {
			return time.Now().Year(), nil
		}
		if year < 0 {
			return 0, fmt.Errorf("%w: year %d", curve.ErrInvalidRequest, year)
		}
		return year, nil
	}
	return 0, nil
}
