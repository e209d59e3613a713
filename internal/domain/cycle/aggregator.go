// Package cycle aggregates palace scores across nested time cycles.
//
// An Aggregator is bound to one chart, one scoring model and one random
// source, and lives for a single computation. It is not safe for concurrent
// use. Horoscope lookup failures never escape: the last good score of the
// same scope is substituted and the recovery is counted.
package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/model"
	"github.com/okian/kline/internal/domain/noise"
	"github.com/okian/kline/internal/domain/scoring"
	"github.com/okian/kline/pkg/logger"
	"github.com/okian/kline/pkg/metrics"
)

// Period score bounds.
const (
	monthMin = 15
	monthMax = 95
	weekMin  = 10
	weekMax  = 95
)

// monthBaseline is the neutral month score before modifiers.
const monthBaseline = 50

// Days of the month sampled for the weekly breakdown.
var weekDays = [4]int{7, 14, 21, 28}

// YearResult is the yearly modifier of one calendar year.
type YearResult struct {
	Year     int
	Modifier float64
	Period   chart.Period
	Tags     []chart.TaggedStar
	// Recovered is set when the horoscope lookup failed and a substitute was used.
	Recovered bool
}

// MonthResult is the score of one calendar month.
type MonthResult struct {
	Year      int
	Month     int
	Score     float64
	Period    chart.Period
	Tags      []chart.TaggedStar
	Recovered bool
}

// YearScore is the decadal score of one year inside a decade.
type YearScore struct {
	Year  int
	Age   int
	Score float64
}

// DecadeResult holds the per-year scores of a decade palace.
type DecadeResult struct {
	Palace chart.Palace
	Base   float64
	Years  []YearScore
}

// Scores returns the yearly scores in order.
func (d DecadeResult) Scores() []float64 {
	out := make([]float64, len(d.Years))
	for i, y := range d.Years {
		out[i] = y.Score
	}
	return out
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger used to report recoveries.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

// WithContext sets the context attached to log records.
func WithContext(ctx context.Context) Option {
	return func(a *Aggregator) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

// Aggregator computes period scores for one chart.
type Aggregator struct {
	chart   chart.Chart
	palaces []chart.Palace
	model   *scoring.Model
	src     noise.Source
	log     logger.Logger
	ctx     context.Context

	lastGood   map[string]float64
	recoveries int
}

// New binds an Aggregator to c.
func New(c chart.Chart, m *scoring.Model, src noise.Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		chart:    c,
		palaces:  c.Palaces(),
		model:    m,
		src:      src,
		log:      logger.Get().Named("cycle"),
		ctx:      context.Background(),
		lastGood: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Recoveries returns how many lookups were substituted so far.
func (a *Aggregator) Recoveries() int { return a.recoveries }

// Year computes the yearly modifier: transformation modifiers of the year
// (full weight inside the active palace, diffuse weight elsewhere), the
// reduced contribution of the active palace, and bounded noise.
func (a *Aggregator) Year(year int) YearResult {
	res := YearResult{Year: year}
	h, err := a.horoscope(date(year, time.June, 15))
	if err != nil {
		res.Modifier = a.substitute("year", 0, err)
		res.Recovered = true
		return res
	}

	res.Period = h.Yearly
	res.Tags = h.Yearly.Tagged()
	active, hasActive := a.palace(h.Yearly.PalaceIndex)
	table := a.model.Cycles().Yearly
	for _, ts := range res.Tags {
		w := a.model.DiffuseWeight()
		if hasActive {
			if _, in := active.Star(ts.Star); in {
				w = 1
			}
		}
		res.Modifier += table.Sum(ts.Tag) * w
	}
	if hasActive {
		res.Modifier += a.model.ScorePalace(active, scoring.ModifierProfile)
	}
	res.Modifier += noise.Symmetric(a.src, a.model.Curve().YearNoise)
	a.lastGood["year"] = res.Modifier
	return res
}

// Month computes the score of one calendar month.
func (a *Aggregator) Month(year, month int) float64 { return a.MonthDetail(year, month).Score }

// MonthDetail computes the score of one calendar month with the
// transformations that drove it.
func (a *Aggregator) MonthDetail(year, month int) MonthResult {
	res := MonthResult{Year: year, Month: month}
	h, err := a.horoscope(date(year, time.Month(month), 15))
	if err != nil {
		res.Score = a.substitute("month", monthBaseline, err)
		res.Recovered = true
		return res
	}

	cycles := a.model.Cycles()
	res.Period = h.Monthly
	res.Tags = h.Monthly.Tagged()
	s := float64(monthBaseline)
	for _, ts := range res.Tags {
		s += cycles.Monthly.Sum(ts.Tag)
	}
	for _, ts := range h.Yearly.Tagged() {
		s += cycles.Yearly.Sum(ts.Tag)
	}
	if p, ok := a.palace(h.Monthly.PalaceIndex); ok {
		s += a.model.ScorePalace(p, scoring.ModifierProfile)
	}
	res.Score = model.Clamp(s, monthMin, monthMax)
	a.lastGood["month"] = res.Score
	return res
}

// Weeks breaks a month into four weekly scores around monthScore.
func (a *Aggregator) Weeks(year, month int, monthScore float64) [4]float64 {
	var out [4]float64
	weekly := a.model.Cycles().Weekly
	for i, day := range weekDays {
		h, err := a.horoscope(date(year, time.Month(month), day))
		if err != nil {
			out[i] = model.Clamp(a.substitute("week", monthScore, err), weekMin, weekMax)
			continue
		}
		s := monthScore
		for _, ts := range h.Daily.Tagged() {
			s += weekly.Sum(ts.Tag)
		}
		out[i] = model.Clamp(s, weekMin, weekMax)
		a.lastGood["week"] = out[i]
	}
	return out
}

// Decade scores every year of p's decadal range as the mean of twelve
// decadal month scores. Without a range the palace base is replicated as
// a minimal three-point spread.
func (a *Aggregator) Decade(p chart.Palace, birthYear int) DecadeResult {
	base := a.model.ScorePalace(p, scoring.DecadeProfile)
	res := DecadeResult{Palace: p, Base: base}
	if p.Decadal == nil || p.Decadal.End < p.Decadal.Start {
		res.Years = []YearScore{{Score: base}, {Score: base * 0.95}, {Score: base * 1.05}}
		return res
	}

	scope := fmt.Sprintf("decade/%d", p.Index)
	cycles := a.model.Cycles()
	for age := p.Decadal.Start; age <= p.Decadal.End; age++ {
		year := birthYear + age - 1
		var sum float64
		for m := 1; m <= 12; m++ {
			h, err := a.horoscope(date(year, time.Month(m), 15))
			if err != nil {
				sum += a.substitute(scope, base, err)
				continue
			}
			s := base
			for _, ts := range h.Monthly.Tagged() {
				s += cycles.DecadalMonth.Sum(ts.Tag)
			}
			for _, ts := range h.Yearly.Tagged() {
				s += cycles.DecadalYear.Sum(ts.Tag)
			}
			s = model.Clamp(s, monthMin, monthMax)
			a.lastGood[scope] = s
			sum += s
		}
		res.Years = append(res.Years, YearScore{Year: year, Age: age, Score: sum / 12})
	}
	return res
}

func (a *Aggregator) horoscope(d time.Time) (chart.Horoscope, error) {
	return chart.SafeHoroscope(a.chart, d)
}

// substitute returns the last good score of scope, or fallback when none.
func (a *Aggregator) substitute(scope string, fallback float64, err error) float64 {
	a.recoveries++
	metrics.RecordChartRecovery()
	v, ok := a.lastGood[scope]
	if !ok {
		v = fallback
	}
	a.log.Warn(a.ctx, "horoscope lookup failed, substituting score",
		logger.String("scope", scope),
		logger.Float64("substitute", v),
		logger.Error(err),
	)
	return v
}

func (a *Aggregator) palace(i int) (chart.Palace, bool) {
	if i < 0 || i >= len(a.palaces) {
		return chart.Palace{}, false
	}
	return a.palaces[i], true
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}
