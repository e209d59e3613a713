// Package types contains common types used across the application
package types

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/kline/internal/domain/model"
)

// AnnotationJob asks for a one-line narrative of one point of a stored
// timeline.
type AnnotationJob struct {
	ID         string     `json:"id"`
	ChartID    string     `json:"chart_id"`
	TimelineID string     `json:"timeline_id"`
	Kind       model.Kind `json:"kind"`
	Year       int        `json:"year,omitempty"`
	Index      int        `json:"index"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}

// NewAnnotationJob returns a job with a fresh ID for point index of tl.
func NewAnnotationJob(chartID string, tl *model.Timeline, year, index int) AnnotationJob {
	return AnnotationJob{
		ID:         uuid.NewString(),
		ChartID:    chartID,
		TimelineID: tl.ID,
		Kind:       tl.Kind,
		Year:       year,
		Index:      index,
		EnqueuedAt: time.Now(),
	}
}

// DedupeKey identifies the (timeline, point) pair a job annotates. A newer
// generation of the same chart has a different timeline ID.
func (j AnnotationJob) DedupeKey() string {
	return j.TimelineID + "#" + strconv.Itoa(j.Index)
}

// ChartInfo describes a registered chart.
type ChartInfo struct {
	ID           string    `json:"id"`
	BirthYear    int       `json:"birth_year"`
	Fingerprint  string    `json:"fingerprint"`
	RegisteredAt time.Time `json:"registered_at"`
}
