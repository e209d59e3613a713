package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/kline/internal/adapters/llm"
	"github.com/okian/kline/internal/adapters/narrative"
	repository "github.com/okian/kline/internal/adapters/repository"
	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/curve"
	"github.com/okian/kline/internal/domain/model"
	types "github.com/okian/kline/internal/domain/types"
	"github.com/okian/kline/pkg/logger"
	"github.com/okian/kline/pkg/metrics"
)

type chartEntry struct {
	chart chart.Chart
	info  types.ChartInfo
}

// RegisterChart stores c under a new ID.
func (s *Service) RegisterChart(ctx context.Context, c chart.Chart, birthYear int) (types.ChartInfo, error) {
	if err := (curve.Request{Chart: c, BirthYear: birthYear}).Validate(); err != nil {
		return types.ChartInfo{}, err
	}
	info := types.ChartInfo{
		ID:           uuid.NewString(),
		BirthYear:    birthYear,
		Fingerprint:  curve.Fingerprint(c),
		RegisteredAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.charts[info.ID] = chartEntry{chart: c, info: info}
	n := len(s.charts)
	s.mu.Unlock()

	metrics.UpdateChartsRegistered(n)
	s.logger.Debug(ctx, "chart registered",
		logger.String("chart", info.ID), logger.Int("birth_year", birthYear))
	return info, nil
}

// ChartInfo returns the registration of chartID.
func (s *Service) ChartInfo(chartID string) (types.ChartInfo, error) {
	e, err := s.chart(chartID)
	if err != nil {
		return types.ChartInfo{}, err
	}
	return e.info, nil
}

// RemoveChart forgets chartID, its stored timelines and its cached decade
// scores. Narrative generations still running for it are cancelled.
func (s *Service) RemoveChart(ctx context.Context, chartID string) error {
	s.mu.Lock()
	e, ok := s.charts[chartID]
	if ok {
		delete(s.charts, chartID)
	}
	n := len(s.charts)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrChartNotFound, chartID)
	}
	metrics.UpdateChartsRegistered(n)

	removed, err := s.store.DeleteChart(ctx, chartID)
	if err != nil {
		return fmt.Errorf("delete timelines: %w", err)
	}
	// Another registration of the same chart keeps the shared decade scores.
	if !s.fingerprintInUse(e.info.Fingerprint) {
		s.synth.Cache().Invalidate(e.info.Fingerprint)
	}
	s.logger.Debug(ctx, "chart removed",
		logger.String("chart", chartID), logger.Int("timelines", removed))
	return nil
}

func (s *Service) fingerprintInUse(fp string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.charts {
		if e.info.Fingerprint == fp {
			return true
		}
	}
	return false
}

func (s *Service) chart(chartID string) (chartEntry, error) {
	s.mu.RLock()
	e, ok := s.charts[chartID]
	s.mu.RUnlock()
	if !ok {
		return chartEntry{}, fmt.Errorf("%w: %s", ErrChartNotFound, chartID)
	}
	return e, nil
}

// Timeline returns the lifetime timeline of a registered chart. A stored
// timeline of the requested strategy is served unless refresh is set. An
// empty strategy accepts whatever is stored and computes a deterministic
// one otherwise. Narrative requests use the default backend.
func (s *Service) Timeline(ctx context.Context, chartID, strategy string, refresh bool, onProgress curve.ProgressFunc) (*model.Timeline, error) {
	switch strategy {
	case "", curve.StrategyDeterministic, narrative.StrategyNarrative:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	e, err := s.chart(chartID)
	if err != nil {
		return nil, err
	}
	key := repository.Key{ChartID: chartID, Kind: model.KindLifetime}
	if !refresh {
		if tl, ok := s.cached(ctx, key); ok && (strategy == "" || tl.Strategy == strategy) {
			return tl, nil
		}
	}

	var tl *model.Timeline
	if strategy == narrative.StrategyNarrative {
		tl, err = s.ComputeNarrativeTimeline(ctx, e.chart, e.info.BirthYear, llm.Config{}, onProgress)
	} else {
		tl, err = s.ComputeDeterministicTimeline(ctx, e.chart, e.info.BirthYear)
	}
	if err != nil {
		return nil, err
	}
	s.save(ctx, key, tl)
	return tl, nil
}

// Series returns a decade, year or month series of a registered chart.
// year is the start year of a year series and the calendar year of a month
// series; zero means the current year.
func (s *Service) Series(ctx context.Context, chartID string, kind model.Kind, year int, refresh bool) (*model.Timeline, error) {
	if kind == model.KindLifetime {
		return s.Timeline(ctx, chartID, "", refresh, nil)
	}
	e, err := s.chart(chartID)
	if err != nil {
		return nil, err
	}
	year, err = seriesYear(kind, year)
	if err != nil {
		return nil, err
	}
	key := repository.Key{ChartID: chartID, Kind: kind, Year: year}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !refresh {
		if tl, ok := s.cached(ctx, key); ok {
			return tl, nil
		}
	}

	var tl *model.Timeline
	switch kind {
	case model.KindDecade:
		tl, err = s.ComputeDecadeSeries(ctx, e.chart, e.info.BirthYear)
	case model.KindYear:
		tl, err = s.ComputeYearSeries(ctx, e.chart, year)
	default:
		tl, err = s.ComputeMonthSeries(ctx, e.chart, year)
	}
	if err != nil {
		return nil, err
	}
	s.save(ctx, key, tl)
	return tl, nil
}

// cached reads a stored timeline. Store failures are logged and treated as
// a miss.
func (s *Service) cached(ctx context.Context, key repository.Key) (*model.Timeline, bool) {
	tl, err := s.store.Get(ctx, key)
	if err == nil {
		return tl, true
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn(ctx, "timeline store read failed",
			logger.String("key", key.String()), logger.Error(err))
	}
	return nil, false
}

func (s *Service) save(ctx context.Context, key repository.Key, tl *model.Timeline) {
	if err := s.store.Put(ctx, key, tl); err != nil {
		s.logger.Warn(ctx, "timeline store write failed",
			logger.String("key", key.String()), logger.Error(err))
	}
}
