package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/kline/internal/adapters/llm"
	eventqueue "github.com/okian/kline/internal/adapters/mq/queue"
	"github.com/okian/kline/internal/adapters/narrative"
	repository "github.com/okian/kline/internal/adapters/repository"
	"github.com/okian/kline/internal/domain/model"
	types "github.com/okian/kline/internal/domain/types"
	"github.com/okian/kline/pkg/logger"
	"github.com/okian/kline/pkg/metrics"
)

// RequestNarratives queues one-line narratives for points of a stored (or
// freshly computed) timeline of chartID. No indices means every point.
// Points already queued or annotated for the same timeline count as
// duplicates.
func (s *Service) RequestNarratives(ctx context.Context, chartID string, kind model.Kind, year int, indices []int) (queued, duplicates int, err error) {
	tl, err := s.Series(ctx, chartID, kind, year, false)
	if err != nil {
		return 0, 0, err
	}
	if kind != model.KindLifetime {
		year, _ = seriesYear(kind, year)
	}
	if len(indices) == 0 {
		indices = make([]int, 0, tl.Len())
		for _, p := range tl.Points {
			indices = append(indices, p.Index)
		}
	}
	for _, idx := range indices {
		if idx < 0 || idx >= tl.Len() {
			return queued, duplicates, fmt.Errorf("%w: %d", model.ErrIndexOutOfRange, idx)
		}
	}

	for _, idx := range indices {
		job := types.NewAnnotationJob(chartID, tl, year, idx)
		if s.deduper.SeenAndRecord(ctx, job.DedupeKey()) {
			metrics.RecordAnnotationDuplicate()
			duplicates++
			continue
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.deduper.Unrecord(ctx, job.DedupeKey())
			return queued, duplicates, fmt.Errorf("enqueue annotation: %w", err)
		}
		queued++
	}
	s.logger.Debug(ctx, "narratives requested",
		logger.String("chart", chartID),
		logger.String("kind", string(kind)),
		logger.Int("queued", queued),
		logger.Int("duplicates", duplicates),
	)
	return queued, duplicates, nil
}

// annotate is the worker handler for annotation jobs.
func (s *Service) annotate(ctx context.Context, j eventqueue.Job) error {
	e, err := s.chart(j.ChartID)
	if err != nil {
		return err
	}
	key := repository.Key{ChartID: j.ChartID, Kind: j.Kind, Year: j.Year}
	tl, err := s.store.Get(ctx, key)
	if err != nil {
		s.deduper.Unrecord(ctx, j.DedupeKey())
		return fmt.Errorf("load timeline: %w", err)
	}
	if tl.ID != j.TimelineID {
		s.logger.Debug(ctx, "skipping annotation of replaced timeline",
			logger.String("job", j.ID), logger.String("timeline", j.TimelineID))
		return nil
	}
	var pt *model.Point
	for i := range tl.Points {
		if tl.Points[i].Index == j.Index {
			pt = &tl.Points[i]
			break
		}
	}
	if pt == nil {
		return fmt.Errorf("%w: %d", model.ErrIndexOutOfRange, j.Index)
	}
	if pt.Narrative != "" {
		return nil
	}

	backend, err := s.backendFor(llm.Config{})
	if err != nil {
		s.deduper.Unrecord(ctx, j.DedupeKey())
		return err
	}
	text, err := narrative.NewAnnotator(backend, s.synth.Model()).Annotate(ctx, e.chart, e.info.BirthYear, *pt)
	if err != nil {
		s.deduper.Unrecord(ctx, j.DedupeKey())
		return err
	}
	if err := s.store.AttachNarrative(ctx, key, j.TimelineID, j.Index, text); err != nil {
		if errors.Is(err, repository.ErrStaleTimeline) {
			s.logger.Debug(ctx, "timeline replaced while annotating",
				logger.String("job", j.ID), logger.String("timeline", j.TimelineID))
			return nil
		}
		s.deduper.Unrecord(ctx, j.DedupeKey())
		return fmt.Errorf("attach narrative: %w", err)
	}
	return nil
}
