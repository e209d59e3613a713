package cycle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/cycle"
	"github.com/okian/kline/internal/domain/noise"
	"github.com/okian/kline/internal/domain/scoring"
	"github.com/okian/kline/internal/testcharts"
	. "github.com/smartystreets/goconvey/convey"
)

var errLookup = errors.New("calendar edge")

// plainPalaces returns twelve palaces with 天机 in the life palace.
func plainPalaces() []chart.Palace {
	ps := make([]chart.Palace, chart.PalaceCount)
	for i, name := range chart.PalaceNames {
		ps[i] = chart.Palace{Index: i, Name: name, Branch: chart.BranchAt(i)}
	}
	ps[0].MajorStars = []chart.Star{{Name: "天机", Brightness: chart.BrightnessNeutral}}
	ps[0].Decadal = &chart.AgeRange{Start: 3, End: 12}
	return ps
}

func yearly(mutagen ...string) chart.Horoscope {
	return chart.Horoscope{
		Yearly:  chart.Period{Kind: chart.KindYearly, Mutagen: mutagen, PalaceIndex: 0},
		Monthly: chart.Period{Kind: chart.KindMonthly, PalaceIndex: -1},
		Daily:   chart.Period{Kind: chart.KindDaily, PalaceIndex: -1},
	}
}

func TestAggregator_Year(t *testing.T) {
	Convey("Given a chart whose yearly active palace holds 天机", t, func() {
		m := scoring.Default()
		src := noise.Flat()()

		plain := &testcharts.Scripted{List: plainPalaces(), Fn: func(time.Time) (chart.Horoscope, error) {
			return yearly(), nil
		}}
		jiInside := &testcharts.Scripted{List: plainPalaces(), Fn: func(time.Time) (chart.Horoscope, error) {
			return yearly("", "", "", "天机"), nil
		}}
		jiOutside := &testcharts.Scripted{List: plainPalaces(), Fn: func(time.Time) (chart.Horoscope, error) {
			return yearly("", "", "", "太阴"), nil
		}}

		Convey("When the year transforms 天机 with ji", func() {
			base := cycle.New(plain, m, src).Year(2030)
			inside := cycle.New(jiInside, m, src).Year(2030)

			Convey("Then the modifier drops by the full ji weight", func() {
				So(inside.Modifier, ShouldBeLessThan, base.Modifier)
				So(inside.Modifier, ShouldAlmostEqual, base.Modifier-10, 1e-9)
				So(inside.Tags, ShouldHaveLength, 1)
				So(inside.Tags[0].String(), ShouldEqual, "天机化忌")
			})
		})

		Convey("When ji falls on a star outside the active palace", func() {
			base := cycle.New(plain, m, src).Year(2030)
			outside := cycle.New(jiOutside, m, src).Year(2030)

			Convey("Then only the diffuse weight applies", func() {
				So(outside.Modifier, ShouldAlmostEqual, base.Modifier-10*m.DiffuseWeight(), 1e-9)
			})
		})

		Convey("When noise is flat", func() {
			res := cycle.New(plain, m, src).Year(2030)
			Convey("Then the modifier is the active palace contribution", func() {
				So(res.Modifier, ShouldAlmostEqual, 10*0.9*0.3, 1e-9)
			})
		})

		Convey("When noise is seeded", func() {
			a := cycle.New(plain, m, noise.Seeded(7)()).Year(2030)
			b := cycle.New(plain, m, noise.Seeded(7)()).Year(2030)
			Convey("Then it stays within the year noise bound and replays", func() {
				So(a.Modifier, ShouldEqual, b.Modifier)
				So(a.Modifier-10*0.9*0.3, ShouldBeBetweenOrEqual, -m.Curve().YearNoise, m.Curve().YearNoise)
			})
		})
	})
}

func TestAggregator_Recovery(t *testing.T) {
	Convey("Given a chart whose lookups fail for one month", t, func() {
		m := scoring.Default()
		c := &testcharts.Scripted{List: plainPalaces(), Fn: func(d time.Time) (chart.Horoscope, error) {
			if d.Month() == time.March {
				return chart.Horoscope{}, errLookup
			}
			h := yearly()
			h.Monthly = chart.Period{Kind: chart.KindMonthly, Mutagen: []string{"天机"}, PalaceIndex: 0}
			return h, nil
		}}
		agg := cycle.New(c, m, noise.Flat()())

		Convey("When months are scored in order", func() {
			feb := agg.Month(2031, 2)
			mar := agg.MonthDetail(2031, 3)

			Convey("Then the failed month reuses the last good score", func() {
				So(mar.Recovered, ShouldBeTrue)
				So(mar.Score, ShouldEqual, feb)
				So(agg.Recoveries(), ShouldEqual, 1)
			})
		})

		Convey("When the first lookup fails", func() {
			mar := agg.Month(2031, 3)
			Convey("Then the neutral baseline is used", func() {
				So(mar, ShouldEqual, 50)
			})
		})

		Convey("When a decade spans the failing month", func() {
			p := c.List[0]
			res := agg.Decade(p, 2000)

			Convey("Then every year is scored and failures are counted", func() {
				So(res.Years, ShouldHaveLength, 10)
				So(agg.Recoveries(), ShouldEqual, 10)
				for _, y := range res.Years {
					So(y.Score, ShouldBeBetweenOrEqual, 15, 95)
				}
				So(res.Years[0].Age, ShouldEqual, 3)
				So(res.Years[0].Year, ShouldEqual, 2002)
			})
		})
	})

	Convey("Given a chart whose lookups panic", t, func() {
		c := &testcharts.Scripted{List: plainPalaces(), Fn: func(time.Time) (chart.Horoscope, error) {
			panic("calculator bug")
		}}

		Convey("Then the aggregator recovers", func() {
			agg := cycle.New(c, scoring.Default(), noise.Flat()())
			So(func() { agg.Year(2030) }, ShouldNotPanic)
			So(agg.Recoveries(), ShouldEqual, 1)
		})
	})
}

func TestAggregator_MonthAndWeeks(t *testing.T) {
	Convey("Given transformations on the month and day", t, func() {
		c := &testcharts.Scripted{List: plainPalaces(), Fn: func(d time.Time) (chart.Horoscope, error) {
			h := yearly("太阳")
			h.Monthly = chart.Period{Kind: chart.KindMonthly, Mutagen: []string{"", "", "", "巨门"}, PalaceIndex: -1}
			if d.Day() == 14 {
				h.Daily = chart.Period{Kind: chart.KindDaily, Mutagen: []string{"武曲"}, PalaceIndex: -1}
			}
			return h, nil
		}}
		agg := cycle.New(c, scoring.Default(), noise.Flat()())

		Convey("When a month is scored", func() {
			res := agg.MonthDetail(2031, 5)
			Convey("Then monthly and yearly tables both apply", func() {
				So(res.Score, ShouldAlmostEqual, 50-15+8, 1e-9)
				So(res.Tags[0].Tag, ShouldEqual, chart.TagJi)
			})
		})

		Convey("When weeks are derived", func() {
			weeks := agg.Weeks(2031, 5, 60)
			Convey("Then only the tagged day moves", func() {
				So(weeks, ShouldResemble, [4]float64{60, 63, 60, 60})
			})
		})

		Convey("When weeks would exceed the ceiling", func() {
			weeks := agg.Weeks(2031, 5, 94)
			So(weeks[1], ShouldEqual, 95)
		})
	})
}

func TestAggregator_DecadeWithoutRange(t *testing.T) {
	Convey("Given a palace without a decadal range", t, func() {
		m := scoring.Default()
		p := plainPalaces()[0]
		p.Decadal = nil
		agg := cycle.New(&testcharts.Scripted{List: plainPalaces()}, m, noise.Flat()())

		Convey("Then the base is replicated as a three-point spread", func() {
			res := agg.Decade(p, 1990)
			b := m.ScorePalace(p, scoring.DecadeProfile)
			So(res.Scores(), ShouldResemble, []float64{b, b * 0.95, b * 1.05})
		})
	})
}
