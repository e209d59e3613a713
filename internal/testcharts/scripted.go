package testcharts

import (
	"time"

	"github.com/okian/kline/internal/domain/chart"
)

// Scripted is a Chart whose horoscope is supplied by a function. It lets
// tests pin the active palaces and transformations of any date.
type Scripted struct {
	List []chart.Palace
	Fn   func(date time.Time) (chart.Horoscope, error)
}

var _ chart.Chart = (*Scripted)(nil)

// Palaces implements chart.Chart.
func (s *Scripted) Palaces() []chart.Palace { return s.List }

// Horoscope implements chart.Chart.
func (s *Scripted) Horoscope(date time.Time) (chart.Horoscope, error) {
	if s.Fn == nil {
		return chart.Horoscope{}, nil
	}
	return s.Fn(date)
}

// Flaky wraps c so that Horoscope fails for every date fail reports true.
type Flaky struct {
	chart.Chart
	Fail func(date time.Time) bool
	Err  error
}

// Horoscope implements chart.Chart.
func (f *Flaky) Horoscope(date time.Time) (chart.Horoscope, error) {
	if f.Fail != nil && f.Fail(date) {
		return chart.Horoscope{}, f.Err
	}
	return f.Chart.Horoscope(date)
}
