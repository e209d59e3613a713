// Package scoring turns qualitative chart features into scalar scores.
//
// A Model bundles the static tables (star base scores, brightness
// multipliers, transformation modifiers, palace to dimension mapping) and
// the curve tunables. Models are immutable once built; options always
// operate on a private copy.
package scoring

import (
	"maps"
	"slices"

	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/model"
)

// Raw palace scores are rescaled from this interval into 0..100.
const (
	defaultRawMin = 20
	defaultRawMax = 90
)

// defaultDiffuseWeight scales transformations whose star sits outside the
// active palace.
const defaultDiffuseWeight = 0.25

// TagTable maps a transformation tag to its score contribution.
type TagTable map[chart.Tag]float64

// Sum adds up the contributions of tags. Unknown tags contribute 0.
func (t TagTable) Sum(tags ...chart.Tag) float64 {
	var s float64
	for _, tag := range tags {
		s += t[tag]
	}
	return s
}

// PalaceWeight is one palace contributing to a dimension.
type PalaceWeight struct {
	Palace string
	Weight float64
}

// CycleTables holds the transformation tables used per time cycle.
type CycleTables struct {
	Yearly       TagTable
	Monthly      TagTable
	DecadalMonth TagTable
	DecadalYear  TagTable
	Weekly       TagTable
}

// CurveParams are the tunables of the lifetime curve and its perturbations.
type CurveParams struct {
	// Seed is the open of the first lifetime point.
	Seed float64 `koanf:"seed" json:"seed"`
	// MoveMin and MoveMax bound the fraction of the gap to the target
	// covered by one step.
	MoveMin float64 `koanf:"move_min" json:"move_min"`
	MoveMax float64 `koanf:"move_max" json:"move_max"`
	// CloseNoise is the symmetric amplitude added to each close.
	CloseNoise float64 `koanf:"close_noise" json:"close_noise"`
	// Volatility scales the wick length by the gap to the target.
	Volatility float64 `koanf:"volatility" json:"volatility"`
	WickNoise  float64 `koanf:"wick_noise" json:"wick_noise"`
	// YearNoise is the symmetric amplitude of the yearly modifier.
	YearNoise float64 `koanf:"year_noise" json:"year_noise"`
	// DimensionNoise perturbs decade series dimensions.
	DimensionNoise float64 `koanf:"dimension_noise" json:"dimension_noise"`
	Points         int     `koanf:"points" json:"points"`
}

// DefaultCurveParams returns the shipped curve tunables.
func DefaultCurveParams() CurveParams {
	return CurveParams{
		Seed:           50,
		MoveMin:        0.3,
		MoveMax:        0.7,
		CloseNoise:     3,
		Volatility:     0.35,
		WickNoise:      2,
		YearNoise:      4,
		DimensionNoise: 7.5,
		Points:         100,
	}
}

// valid reports whether p can drive a curve.
func (p CurveParams) valid() bool {
	return p.Points > 0 && p.MoveMin >= 0 && p.MoveMax >= p.MoveMin && p.MoveMax <= 1 &&
		p.Seed >= model.MinScore && p.Seed <= model.MaxScore &&
		p.CloseNoise >= 0 && p.Volatility >= 0 && p.WickNoise >= 0 && p.YearNoise >= 0 && p.DimensionNoise >= 0
}

// Model is the immutable set of scoring tables and tunables.
type Model struct {
	stars         map[string]float64
	brightness    map[chart.Brightness]float64
	tags          TagTable
	cycles        CycleTables
	dimensions    map[model.Dimension][]PalaceWeight
	composite     map[model.Dimension]float64
	diffuseWeight float64
	rawMin        float64
	rawMax        float64
	curve         CurveParams
}

// Option configures a Model under construction.
type Option func(*Model)

// WithStarScores overrides or adds star base scores.
func WithStarScores(scores map[string]float64) Option {
	return func(m *Model) {
		maps.Copy(m.stars, scores)
	}
}

// WithBrightness overrides brightness multipliers.
func WithBrightness(mult map[chart.Brightness]float64) Option {
	return func(m *Model) {
		for b, v := range mult {
			if v >= 0 {
				m.brightness[b] = v
			}
		}
	}
}

// WithTagModifiers overrides the natal transformation modifiers.
func WithTagModifiers(t TagTable) Option {
	return func(m *Model) {
		maps.Copy(m.tags, t)
	}
}

// WithCurveParams replaces the curve tunables. Invalid params are ignored.
func WithCurveParams(p CurveParams) Option {
	return func(m *Model) {
		if p.valid() {
			m.curve = p
		}
	}
}

// WithDiffuseWeight sets the weight of transformations outside the active palace.
func WithDiffuseWeight(w float64) Option {
	return func(m *Model) {
		if w >= 0 && w <= 1 {
			m.diffuseWeight = w
		}
	}
}

// New builds a Model from the shipped tables and applies opts.
func New(opts ...Option) *Model {
	m := &Model{
		stars:         maps.Clone(starScores),
		brightness:    maps.Clone(brightnessMultipliers),
		tags:          maps.Clone(tagModifiers),
		cycles:        cloneCycles(cycleTables),
		dimensions:    cloneDimensions(dimensionPalaces),
		composite:     maps.Clone(compositeWeights),
		diffuseWeight: defaultDiffuseWeight,
		rawMin:        defaultRawMin,
		rawMax:        defaultRawMax,
		curve:         DefaultCurveParams(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Default returns a Model with the shipped tables.
func Default() *Model { return New() }

// With returns a copy of m with opts applied. m itself is not modified.
func (m *Model) With(opts ...Option) *Model {
	c := &Model{
		stars:         maps.Clone(m.stars),
		brightness:    maps.Clone(m.brightness),
		tags:          maps.Clone(m.tags),
		cycles:        cloneCycles(m.cycles),
		dimensions:    cloneDimensions(m.dimensions),
		composite:     maps.Clone(m.composite),
		diffuseWeight: m.diffuseWeight,
		rawMin:        m.rawMin,
		rawMax:        m.rawMax,
		curve:         m.curve,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StarScore returns the base score of a star; unknown stars score 0.
func (m *Model) StarScore(name string) float64 { return m.stars[name] }

// BrightnessMultiplier returns the multiplier of b; unknown or empty is 1.
func (m *Model) BrightnessMultiplier(b chart.Brightness) float64 {
	if v, ok := m.brightness[b]; ok {
		return v
	}
	return 1
}

// TagModifier returns the natal contribution of t; unknown tags give 0.
func (m *Model) TagModifier(t chart.Tag) float64 { return m.tags[t] }

// Cycles returns the per-cycle transformation tables.
func (m *Model) Cycles() CycleTables { return m.cycles }

// DiffuseWeight returns the weight of transformations outside the active palace.
func (m *Model) DiffuseWeight() float64 { return m.diffuseWeight }

// Curve returns the curve tunables.
func (m *Model) Curve() CurveParams { return m.curve }

// Normalize rescales a raw palace score into 0..100.
func (m *Model) Normalize(raw float64) float64 {
	return model.Clamp((raw-m.rawMin)/(m.rawMax-m.rawMin)*100, model.MinScore, model.MaxScore)
}

// Composite weighs the four dimensions into one score.
func (m *Model) Composite(d model.Dimensions) float64 {
	var s, w float64
	for _, dim := range model.AllDimensions {
		s += d.Get(dim) * m.composite[dim]
		w += m.composite[dim]
	}
	if w == 0 {
		return 0
	}
	return s / w
}

func cloneCycles(c CycleTables) CycleTables {
	return CycleTables{
		Yearly:       maps.Clone(c.Yearly),
		Monthly:      maps.Clone(c.Monthly),
		DecadalMonth: maps.Clone(c.DecadalMonth),
		DecadalYear:  maps.Clone(c.DecadalYear),
		Weekly:       maps.Clone(c.Weekly),
	}
}

func cloneDimensions(d map[model.Dimension][]PalaceWeight) map[model.Dimension][]PalaceWeight {
	out := make(map[model.Dimension][]PalaceWeight, len(d))
	for k, v := range d {
		out[k] = slices.Clone(v)
	}
	return out
}
