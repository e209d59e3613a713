// Package curve synthesizes OHLC timelines from cycle scores.
//
// The lifetime curve is path-continuous: each point opens at the previous
// close, and every value is rounded to one decimal before it is carried so
// that continuity holds exactly. Decade, year and month series are
// self-contained: each point takes its OHLC from its own sub-period scores.
package curve

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/cycle"
	"github.com/okian/kline/internal/domain/model"
	"github.com/okian/kline/internal/domain/noise"
	"github.com/okian/kline/internal/domain/scoring"
	"github.com/okian/kline/pkg/logger"
)

// defaultYearSpan is the number of years in a year series.
const defaultYearSpan = 4

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithModel sets the scoring model.
func WithModel(m *scoring.Model) Option {
	return func(s *Synthesizer) {
		if m != nil {
			s.model = m
		}
	}
}

// WithCache shares a decade cache between synthesizers.
func WithCache(c *DecadeCache) Option {
	return func(s *Synthesizer) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithNoise sets the random source factory.
func WithNoise(f noise.Factory) Option {
	return func(s *Synthesizer) {
		if f != nil {
			s.noise = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.log = l
		}
	}
}

// WithYearSpan sets the number of years in a year series.
func WithYearSpan(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.yearSpan = n
		}
	}
}

// Synthesizer builds timelines. It is safe for concurrent use; every
// computation draws its own random source.
type Synthesizer struct {
	model    *scoring.Model
	cache    *DecadeCache
	noise    noise.Factory
	log      logger.Logger
	yearSpan int
}

// NewSynthesizer returns a Synthesizer with the default model, a private
// cache and clock-seeded noise unless overridden.
func NewSynthesizer(opts ...Option) *Synthesizer {
	s := &Synthesizer{
		model:    scoring.Default(),
		cache:    NewDecadeCache(),
		noise:    noise.Entropy(),
		log:      logger.Get().Named("curve"),
		yearSpan: defaultYearSpan,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the scoring model.
func (s *Synthesizer) Model() *scoring.Model { return s.model }

// Cache returns the decade cache.
func (s *Synthesizer) Cache() *DecadeCache { return s.cache }

// Lifetime synthesizes the continuous lifetime timeline for ages 1..N.
func (s *Synthesizer) Lifetime(c chart.Chart, birthYear int) *model.Timeline {
	return s.LifetimeContext(context.Background(), c, birthYear)
}

// LifetimeContext is Lifetime with a context for log records.
func (s *Synthesizer) LifetimeContext(ctx context.Context, c chart.Chart, birthYear int) *model.Timeline {
	src := s.noise()
	agg := s.aggregator(ctx, c, src)
	palaces := c.Palaces()
	key := Fingerprint(c)
	natal := s.model.ScorePalaces(palaces, scoring.PeriodProfile)
	p := s.model.Curve()

	tl := &model.Timeline{
		Kind:      model.KindLifetime,
		Strategy:  StrategyDeterministic,
		BirthYear: birthYear,
		Points:    make([]model.Point, 0, p.Points),
	}
	prevClose := model.Round1(p.Seed)
	for age := 1; age <= p.Points; age++ {
		year := birthYear + age - 1
		decade := governing(palaces, age)
		base := s.decadeBase(key, decade)
		yr := agg.Year(year)
		target := model.Clamp(base+yr.Modifier, model.MinScore, model.MaxScore)

		open := prevClose
		gap := target - open
		closeV := open + gap*noise.Uniform(src, p.MoveMin, p.MoveMax) + noise.Symmetric(src, p.CloseNoise)
		closeV = model.Round1(model.Clamp(closeV, model.MinScore, model.MaxScore))
		wick := math.Abs(gap) * p.Volatility
		high := model.Round1(model.Clamp(math.Max(open, closeV)+wick+noise.Uniform(src, 0, p.WickNoise), model.MinScore, model.MaxScore))
		low := model.Round1(model.Clamp(math.Min(open, closeV)-wick-noise.Uniform(src, 0, p.WickNoise), model.MinScore, model.MaxScore))

		pt := model.Point{
			Index:      age - 1,
			Label:      fmt.Sprintf("%d岁", age),
			Age:        age,
			Year:       year,
			StemBranch: yr.Period.StemBranch(),
			Open:       open,
			High:       high,
			Low:        low,
			Close:      closeV,
			Tags:       tagStrings(yr.Tags),
		}
		pt.Score = model.Round1((open + closeV) / 2)
		pt.Level = model.LevelFor(pt.Score)
		s.setDimensions(&pt, s.model.Project(natal, pt.Score-50))
		setDecade(&pt, decade, age)
		tl.Points = append(tl.Points, pt)
		prevClose = closeV
	}
	tl.MarkTrends()

	if n := agg.Recoveries(); n > 0 {
		s.log.Info(ctx, "lifetime synthesized with substituted lookups",
			logger.Int("recoveries", n), logger.Int("birth_year", birthYear))
	}
	return tl
}

// Decades builds one self-contained point per decade palace, ordered by age.
func (s *Synthesizer) Decades(c chart.Chart, birthYear int) *model.Timeline {
	return s.DecadesContext(context.Background(), c, birthYear)
}

// DecadesContext is Decades with a context for log records.
func (s *Synthesizer) DecadesContext(ctx context.Context, c chart.Chart, birthYear int) *model.Timeline {
	src := s.noise()
	agg := s.aggregator(ctx, c, src)
	palaces := c.Palaces()
	natal := s.model.ScorePalaces(palaces, scoring.PeriodProfile)
	p := s.model.Curve()

	decades := chart.Decades(palaces)
	if len(decades) == 0 {
		decades = []chart.Palace{lifePalace(palaces)}
	}
	tl := &model.Timeline{Kind: model.KindDecade, Strategy: StrategyDeterministic, BirthYear: birthYear}
	for _, dp := range decades {
		if dp.Decadal != nil && dp.Decadal.Start > p.Points {
			continue
		}
		res := agg.Decade(dp, birthYear)
		pt := candle(res.Scores())
		pt.Index = len(tl.Points)
		pt.Label = dp.Name
		if dp.Decadal != nil {
			pt.Label = fmt.Sprintf("%d-%d", dp.Decadal.Start, dp.Decadal.End)
			pt.Age = dp.Decadal.Start
			pt.Year = birthYear + dp.Decadal.Start - 1
		}
		pt.StemBranch = dp.Stem + dp.Branch
		pt.DecadeName = dp.Name
		pt.DecadeRange = cloneRange(dp.Decadal)
		s.setDimensions(&pt, s.jitter(src, s.model.Project(natal, pt.Score-50)))
		pt.Events = decadeEvents(dp)
		tl.Points = append(tl.Points, pt)
	}
	tl.MarkTrends()
	return tl
}

// Years builds one point per calendar year from startYear, each from its
// twelve month scores.
func (s *Synthesizer) Years(c chart.Chart, startYear int) *model.Timeline {
	return s.YearsContext(context.Background(), c, startYear)
}

// YearsContext is Years with a context for log records.
func (s *Synthesizer) YearsContext(ctx context.Context, c chart.Chart, startYear int) *model.Timeline {
	agg := s.aggregator(ctx, c, s.noise())
	palaces := c.Palaces()
	natal := s.model.ScorePalaces(palaces, scoring.PeriodProfile)
	birthYear, hasBirth := birthYearOf(c)

	tl := &model.Timeline{Kind: model.KindYear, Strategy: StrategyDeterministic, BirthYear: birthYear}
	for year := startYear; year < startYear+s.yearSpan; year++ {
		months := make([]float64, 12)
		for m := 1; m <= 12; m++ {
			months[m-1] = agg.Month(year, m)
		}
		yr := agg.Year(year)
		pt := candle(months)
		pt.Index = len(tl.Points)
		pt.Label = fmt.Sprintf("%d", year)
		pt.Year = year
		pt.StemBranch = yr.Period.StemBranch()
		pt.Tags = tagStrings(yr.Tags)
		s.setDimensions(&pt, s.model.Project(natal, pt.Score-50))
		pt.Events = peakEvents(months)
		if hasBirth {
			pt.Age = year - birthYear + 1
			setDecade(&pt, governing(palaces, pt.Age), pt.Age)
		}
		tl.Points = append(tl.Points, pt)
	}
	tl.MarkTrends()
	return tl
}

// Months builds one point per month of year, each from its four weekly scores.
func (s *Synthesizer) Months(c chart.Chart, year int) *model.Timeline {
	return s.MonthsContext(context.Background(), c, year)
}

// MonthsContext is Months with a context for log records.
func (s *Synthesizer) MonthsContext(ctx context.Context, c chart.Chart, year int) *model.Timeline {
	agg := s.aggregator(ctx, c, s.noise())
	natal := s.model.ScorePalaces(c.Palaces(), scoring.PeriodProfile)
	birthYear, hasBirth := birthYearOf(c)

	tl := &model.Timeline{Kind: model.KindMonth, Strategy: StrategyDeterministic, BirthYear: birthYear}
	for m := 1; m <= 12; m++ {
		md := agg.MonthDetail(year, m)
		weeks := agg.Weeks(year, m, md.Score)
		pt := candle(weeks[:])
		pt.Index = m - 1
		pt.Label = fmt.Sprintf("%d-%02d", year, m)
		pt.Year = year
		pt.Month = m
		pt.Score = model.Round1(md.Score)
		pt.Level = model.LevelFor(pt.Score)
		pt.StemBranch = md.Period.StemBranch()
		pt.Tags = tagStrings(md.Tags)
		s.setDimensions(&pt, s.model.Project(natal, pt.Score-50))
		pt.Events = tagEvents(md.Tags)
		if hasBirth {
			pt.Age = year - birthYear + 1
		}
		tl.Points = append(tl.Points, pt)
	}
	tl.MarkTrends()
	return tl
}

// Decorate fills the age metadata of a lifetime timeline produced elsewhere:
// calendar year, stem-branch, governing decade, yearly tags, dimensions,
// level and trend. Open, high, low and close are not modified.
func (s *Synthesizer) Decorate(c chart.Chart, birthYear int, tl *model.Timeline) {
	s.DecorateContext(context.Background(), c, birthYear, tl)
}

// DecorateContext is Decorate with a context for log records.
func (s *Synthesizer) DecorateContext(ctx context.Context, c chart.Chart, birthYear int, tl *model.Timeline) {
	agg := s.aggregator(ctx, c, noise.Flat()())
	palaces := c.Palaces()
	natal := s.model.ScorePalaces(palaces, scoring.PeriodProfile)
	tl.BirthYear = birthYear
	for i := range tl.Points {
		pt := &tl.Points[i]
		if pt.Age <= 0 {
			pt.Age = i + 1
		}
		pt.Year = birthYear + pt.Age - 1
		yr := agg.Year(pt.Year)
		pt.StemBranch = yr.Period.StemBranch()
		if len(pt.Tags) == 0 {
			pt.Tags = tagStrings(yr.Tags)
		}
		if pt.Label == "" {
			pt.Label = fmt.Sprintf("%d岁", pt.Age)
		}
		pt.Level = model.LevelFor(pt.Score)
		s.setDimensions(pt, s.model.Project(natal, pt.Midpoint()-50))
		pt.Events = nil
		setDecade(pt, governing(palaces, pt.Age), pt.Age)
	}
	tl.MarkTrends()
}

func (s *Synthesizer) aggregator(ctx context.Context, c chart.Chart, src noise.Source) *cycle.Aggregator {
	return cycle.New(c, s.model, src, cycle.WithLogger(s.log), cycle.WithContext(ctx))
}

// decadeBase returns the memoized DecadeProfile score of a governing palace.
func (s *Synthesizer) decadeBase(chartKey string, p chart.Palace) float64 {
	key := DecadeKey{Chart: chartKey, Range: chart.AgeRange{Start: -p.Index - 1, End: -p.Index - 1}}
	if p.Decadal != nil {
		key.Range = *p.Decadal
	}
	return s.cache.Lookup(key, func() float64 {
		return s.model.ScorePalace(p, scoring.DecadeProfile)
	})
}

// setDimensions stores d on pt together with its weighted composite.
func (s *Synthesizer) setDimensions(pt *model.Point, d model.Dimensions) {
	pt.Dimensions = d
	pt.Composite = model.Round1(model.Clamp(s.model.Composite(d), model.MinScore, model.MaxScore))
}

// jitter perturbs each dimension within the configured amplitude.
func (s *Synthesizer) jitter(src noise.Source, d model.Dimensions) model.Dimensions {
	amp := s.model.Curve().DimensionNoise
	for _, dim := range model.AllDimensions {
		v := d.Get(dim) + noise.Symmetric(src, amp)
		d.Set(dim, model.Round1(model.Clamp(v, model.MinScore, model.MaxScore)))
	}
	return d
}

// candle derives a self-contained point from sub-period scores: first
// opens, last closes, extremes bound, mean scores.
func candle(scores []float64) model.Point {
	var pt model.Point
	if len(scores) == 0 {
		return pt
	}
	r := func(v float64) float64 { return model.Round1(model.Clamp(v, model.MinScore, model.MaxScore)) }
	var sum float64
	for _, v := range scores {
		sum += v
	}
	pt.Open = r(scores[0])
	pt.Close = r(scores[len(scores)-1])
	pt.High = r(slices.Max(scores))
	pt.Low = r(slices.Min(scores))
	pt.Score = r(sum / float64(len(scores)))
	pt.Level = model.LevelFor(pt.Score)
	return pt
}

// governing returns the decade palace of age, or the life palace for ages
// before the first decade.
func governing(palaces []chart.Palace, age int) chart.Palace {
	if p, ok := chart.DecadeFor(palaces, age); ok {
		return p
	}
	return lifePalace(palaces)
}

func lifePalace(palaces []chart.Palace) chart.Palace {
	for _, p := range palaces {
		if p.Name == chart.PalaceLife {
			return p
		}
	}
	if len(palaces) > 0 {
		return palaces[0]
	}
	return chart.Palace{}
}

// setDecade records the governing decade of pt and marks its events on the
// first year of the decade.
func setDecade(pt *model.Point, decade chart.Palace, age int) {
	pt.DecadeName = decade.Name
	if decade.Decadal != nil && decade.Decadal.Contains(age) {
		pt.DecadeRange = cloneRange(decade.Decadal)
		if age == decade.Decadal.Start {
			pt.Events = append(pt.Events, decadeEvents(decade)...)
		}
	}
}

func cloneRange(r *chart.AgeRange) *chart.AgeRange {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// birthYearOf extracts the birth year from charts that expose one.
func birthYearOf(c chart.Chart) (int, bool) {
	if b, ok := c.(interface{ BirthYear() int }); ok && b.BirthYear() > 0 {
		return b.BirthYear(), true
	}
	return 0, false
}
