package narrative

import (
	"fmt"
	"math"

	"github.com/okian/kline/internal/domain/model"
)

// StrategyNarrative names the backend-driven strategy.
const StrategyNarrative = "narrative"

// continuityTolerance is the open/previous-close drift accepted without
// counting a rechain.
const continuityTolerance = 0.05

// Repairs summarizes what Assemble had to fix.
type Repairs struct {
	// Filled counts ages absent from the response.
	Filled int
	// Rechained counts ages whose open did not match the previous close.
	Rechained int
	// Rebounded counts ages whose high or low had to be widened.
	Rebounded int
}

// Total is the number of repaired ages.
func (r Repairs) Total() int { return r.Filled + r.Rechained + r.Rebounded }

// Assemble turns parsed entries into a continuous lifetime timeline for ages
// 1..points. Age 1 opens at seed and every later age is rechained to open at
// the previous close. Missing ages carry the previous close forward. Entries
// outside the age range and duplicates after the first are ignored.
func Assemble(entries []Entry, points int, seed float64) (*model.Timeline, Repairs, error) {
	var rep Repairs
	byAge := make(map[int]Entry, len(entries))
	for _, e := range entries {
		if e.Age < 1 || e.Age > points {
			continue
		}
		if _, dup := byAge[e.Age]; !dup {
			byAge[e.Age] = e
		}
	}
	if len(byAge) == 0 {
		return nil, rep, fmt.Errorf("%w: no entries for ages 1-%d", ErrParse, points)
	}

	r := func(v float64) float64 { return model.Round1(model.Clamp(v, model.MinScore, model.MaxScore)) }
	tl := &model.Timeline{
		Kind:     model.KindLifetime,
		Strategy: StrategyNarrative,
		Points:   make([]model.Point, 0, points),
	}
	prevClose := r(seed)
	for age := 1; age <= points; age++ {
		pt := model.Point{Index: age - 1, Age: age, Open: prevClose, High: prevClose, Low: prevClose, Close: prevClose}
		e, ok := byAge[age]
		if !ok {
			rep.Filled++
		} else {
			if e.Open != nil && math.Abs(*e.Open-prevClose) > continuityTolerance {
				rep.Rechained++
				if age > 1 {
					pt.Open = r(*e.Open)
				}
			}
			if e.Close != nil {
				pt.Close = r(*e.Close)
			}
			pt.High = math.Max(pt.Open, pt.Close)
			pt.Low = math.Min(pt.Open, pt.Close)
			if e.High != nil {
				h := r(*e.High)
				if h < pt.High {
					rep.Rebounded++
				}
				pt.High = math.Max(pt.High, h)
			}
			if e.Low != nil {
				l := r(*e.Low)
				if l > pt.Low {
					rep.Rebounded++
				}
				pt.Low = math.Min(pt.Low, l)
			}
			pt.Narrative = e.Brief
		}
		tl.Points = append(tl.Points, pt)
		prevClose = pt.Close
	}
	tl.Chain()
	for i := range tl.Points {
		pt := &tl.Points[i]
		pt.Score = model.Round1(pt.Midpoint())
		pt.Level = model.LevelFor(pt.Score)
	}
	return tl, rep, nil
}
