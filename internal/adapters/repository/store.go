// Package repository stores generated timelines so callers can serve them
// again without recomputing. A newer generation replaces the stored one
// wholesale.
package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/kline/internal/domain/model"
)

// Key identifies a stored timeline: a chart, a timeline kind and, for
// year and month series, the year the series starts at.
type Key struct {
	ChartID string
	Kind    model.Kind
	Year    int
}

// String renders the key as "chart:kind" or "chart:kind:year".
func (k Key) String() string {
	if k.Year != 0 {
		return k.ChartID + ":" + string(k.Kind) + ":" + strconv.Itoa(k.Year)
	}
	return k.ChartID + ":" + string(k.Kind)
}

// Validate checks the key can address a timeline.
func (k Key) Validate() error {
	if k.ChartID == "" || strings.Contains(k.ChartID, ":") {
		return fmt.Errorf("%w: chart id %q", ErrInvalidKey, k.ChartID)
	}
	if _, err := model.ParseKind(string(k.Kind)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return nil
}

// Store provides read/write access to generated timelines.
type Store interface {
	// Put stores tl under key, replacing any previous timeline.
	Put(ctx context.Context, key Key, tl *model.Timeline) error

	// Get returns a copy of the timeline under key.
	// Returns ErrNotFound if nothing is stored.
	Get(ctx context.Context, key Key) (*model.Timeline, error)

	// AttachNarrative sets the narrative of one point of the stored timeline
	// timelineID. Returns ErrStaleTimeline if another generation is stored
	// under key.
	AttachNarrative(ctx context.Context, key Key, timelineID string, index int, text string) error

	// DeleteChart removes every timeline of a chart and reports how many.
	DeleteChart(ctx context.Context, chartID string) (int, error)

	// Count returns the number of stored timelines.
	Count(ctx context.Context) int
}
