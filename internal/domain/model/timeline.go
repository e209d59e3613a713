package model

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Kind is the resolution of a timeline.
type Kind string

// Timeline kinds.
const (
	KindLifetime Kind = "lifetime"
	KindDecade   Kind = "decade"
	KindYear     Kind = "year"
	KindMonth    Kind = "month"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindLifetime, KindDecade, KindYear, KindMonth:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidTimeline, s)
}

// continuityTolerance absorbs float noise on values already rounded to one decimal.
const continuityTolerance = 1e-9

// Timeline is an ordered series of points of one kind.
type Timeline struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Strategy  string    `json:"strategy"`
	BirthYear int       `json:"birth_year,omitempty"`
	Points    []Point   `json:"points"`
	Notices   []string  `json:"notices,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Len returns the number of points.
func (t *Timeline) Len() int { return len(t.Points) }

// Validate checks the structural invariants: consecutive indices, valid
// OHLC on every point and, for lifetime timelines, open equal to the
// previous close.
func (t *Timeline) Validate() error {
	for i, p := range t.Points {
		if i > 0 && p.Index != t.Points[i-1].Index+1 {
			return fmt.Errorf("%w: index %d follows %d", ErrInvalidTimeline, p.Index, t.Points[i-1].Index)
		}
		if !p.Valid() {
			return fmt.Errorf("%w: point %d has OHLC %.1f/%.1f/%.1f/%.1f score %.1f",
				ErrInvalidTimeline, p.Index, p.Open, p.High, p.Low, p.Close, p.Score)
		}
		if t.Kind == KindLifetime && i > 0 && math.Abs(p.Open-t.Points[i-1].Close) > continuityTolerance {
			return fmt.Errorf("%w: point %d opens at %.1f after close %.1f",
				ErrInvalidTimeline, p.Index, p.Open, t.Points[i-1].Close)
		}
	}
	return nil
}

// Normalize clamps every value into range, re-derives high and low so
// that they bound open and close, renumbers indices from zero and refreshes
// levels. It never moves open or close except to clamp them.
func (t *Timeline) Normalize() {
	for i := range t.Points {
		p := &t.Points[i]
		p.Index = i
		p.Open = Clamp(p.Open, MinScore, MaxScore)
		p.Close = Clamp(p.Close, MinScore, MaxScore)
		hi, lo := p.High, p.Low
		if math.IsNaN(hi) {
			hi = MinScore
		}
		if math.IsNaN(lo) {
			lo = MaxScore
		}
		p.High = Clamp(math.Max(hi, math.Max(p.Open, p.Close)), MinScore, MaxScore)
		p.Low = Clamp(math.Min(lo, math.Min(p.Open, p.Close)), MinScore, MaxScore)
		p.Score = Clamp(p.Score, MinScore, MaxScore)
		p.Level = LevelFor(p.Score)
	}
}

// Chain makes each point open at its predecessor's close and widens high
// and low to keep the candle valid. Only meaningful for lifetime timelines.
func (t *Timeline) Chain() {
	for i := 1; i < len(t.Points); i++ {
		p := &t.Points[i]
		p.Open = t.Points[i-1].Close
		p.High = math.Max(p.High, math.Max(p.Open, p.Close))
		p.Low = math.Min(p.Low, math.Min(p.Open, p.Close))
	}
}

// MarkTrends sets each point's trend against the previous close. The first
// point compares its close with its own open.
func (t *Timeline) MarkTrends() {
	for i := range t.Points {
		prev := t.Points[i].Open
		if i > 0 {
			prev = t.Points[i-1].Close
		}
		t.Points[i].Trend = TrendOf(prev, t.Points[i].Close)
	}
}

// AttachNarrative sets the narrative text of the point at index. Numeric
// fields are left untouched.
func (t *Timeline) AttachNarrative(index int, text string) error {
	for i := range t.Points {
		if t.Points[i].Index == index {
			t.Points[i].Narrative = text
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
}

// AddNotice records a non-fatal message about how the timeline was made.
func (t *Timeline) AddNotice(msg string) { t.Notices = append(t.Notices, msg) }

// Clone returns a deep copy of t.
func (t *Timeline) Clone() *Timeline {
	if t == nil {
		return nil
	}
	c := *t
	c.Notices = slices.Clone(t.Notices)
	c.Points = make([]Point, len(t.Points))
	for i, p := range t.Points {
		p.Tags = slices.Clone(p.Tags)
		p.Events = slices.Clone(p.Events)
		if p.DecadeRange != nil {
			r := *p.DecadeRange
			p.DecadeRange = &r
		}
		c.Points[i] = p
	}
	return &c
}
