// Package model contains the timeline values passed between layers.
package model

import (
	"math"

	"github.com/okian/kline/internal/domain/chart"
)

// Score bounds shared by every numeric point field.
const (
	MinScore = 0
	MaxScore = 100
)

// Dimension names one of the four projected life dimensions.
type Dimension string

// Dimensions in presentation order.
const (
	DimensionCareer       Dimension = "career"
	DimensionWealth       Dimension = "wealth"
	DimensionRelationship Dimension = "relationship"
	DimensionHealth       Dimension = "health"
)

// AllDimensions lists every dimension in presentation order.
var AllDimensions = []Dimension{DimensionCareer, DimensionWealth, DimensionRelationship, DimensionHealth}

// Dimensions holds one 0..100 value per life dimension.
type Dimensions struct {
	Career       float64 `json:"career"`
	Wealth       float64 `json:"wealth"`
	Relationship float64 `json:"relationship"`
	Health       float64 `json:"health"`
}

// Get returns the value of d.
func (ds Dimensions) Get(d Dimension) float64 {
	switch d {
	case DimensionCareer:
		return ds.Career
	case DimensionWealth:
		return ds.Wealth
	case DimensionRelationship:
		return ds.Relationship
	case DimensionHealth:
		return ds.Health
	}
	return 0
}

// Set assigns v to d. Unknown dimensions are ignored.
func (ds *Dimensions) Set(d Dimension, v float64) {
	switch d {
	case DimensionCareer:
		ds.Career = v
	case DimensionWealth:
		ds.Wealth = v
	case DimensionRelationship:
		ds.Relationship = v
	case DimensionHealth:
		ds.Health = v
	}
}

// EventKind classifies a point marker.
type EventKind string

// Event kinds.
const (
	EventLu         EventKind = "lu"
	EventJi         EventKind = "ji"
	EventAuspicious EventKind = "auspicious_convergence"
	EventMalefic    EventKind = "malefic_convergence"
	EventPeak       EventKind = "peak"
	EventTrough     EventKind = "trough"
)

// Event is a notable marker attached to a point.
type Event struct {
	Kind     EventKind `json:"kind"`
	Label    string    `json:"label"`
	Positive bool      `json:"positive"`
}

// Point is one OHLC candle of a timeline.
type Point struct {
	Index       int             `json:"index"`
	Label       string          `json:"label"`
	Age         int             `json:"age,omitempty"`
	Year        int             `json:"year,omitempty"`
	Month       int             `json:"month,omitempty"`
	StemBranch  string          `json:"stem_branch,omitempty"`
	DecadeName  string          `json:"decade_name,omitempty"`
	DecadeRange *chart.AgeRange `json:"decade_range,omitempty"`
	Open        float64         `json:"open"`
	High        float64         `json:"high"`
	Low         float64         `json:"low"`
	Close       float64         `json:"close"`
	Score       float64         `json:"score"`
	Level       Level           `json:"level"`
	Trend       Trend           `json:"trend"`
	Dimensions  Dimensions      `json:"dimensions"`
	Composite   float64         `json:"composite"`
	Tags        []string        `json:"tags,omitempty"`
	Events      []Event         `json:"events,omitempty"`
	Narrative   string          `json:"narrative,omitempty"`
}

// Midpoint returns the mean of open and close.
func (p Point) Midpoint() float64 { return (p.Open + p.Close) / 2 }

// Valid reports whether the OHLC ordering and range invariants hold.
func (p Point) Valid() bool {
	for _, v := range []float64{p.Open, p.High, p.Low, p.Close, p.Score} {
		if math.IsNaN(v) || v < MinScore || v > MaxScore {
			return false
		}
	}
	return p.Low <= math.Min(p.Open, p.Close) && math.Max(p.Open, p.Close) <= p.High
}

// Clamp limits v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 { return math.Round(v*10) / 10 }
