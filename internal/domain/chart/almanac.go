package chart

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Sexagenary cycle glyphs.
const (
	Stems    = "甲乙丙丁戊己庚辛壬癸"
	Branches = "子丑寅卯辰巳午未申酉戌亥"
)

// Default supported calendar range of the Almanac.
const (
	defaultMinYear = 1900
	defaultMaxYear = 2200
)

// dayCycleOrigin is a 甲子 day; day pillars are counted from it.
var dayCycleOrigin = time.Date(1949, time.October, 1, 0, 0, 0, 0, time.UTC)

// stemTransformations lists, per heavenly stem, the stars receiving lu,
// quan, ke and ji.
var stemTransformations = [10][4]string{
	{"廉贞", "破军", "武曲", "太阳"}, // 甲
	{"天机", "天梁", "紫微", "太阴"}, // 乙
	{"天同", "天机", "文昌", "廉贞"}, // 丙
	{"太阴", "天同", "天机", "巨门"}, // 丁
	{"贪狼", "太阴", "右弼", "天机"}, // 戊
	{"武曲", "贪狼", "天梁", "文曲"}, // 己
	{"太阳", "武曲", "太阴", "天同"}, // 庚
	{"巨门", "太阳", "文曲", "文昌"}, // 辛
	{"天梁", "紫微", "左辅", "武曲"}, // 壬
	{"破军", "巨门", "太阴", "贪狼"}, // 癸
}

// StemAt returns the stem glyph at cycle position i (any integer).
func StemAt(i int) string { return string([]rune(Stems)[mod(i, 10)]) }

// BranchAt returns the branch glyph at cycle position i (any integer).
func BranchAt(i int) string { return string([]rune(Branches)[mod(i, 12)]) }

// StemIndex returns the cycle position of a stem glyph, or -1.
func StemIndex(stem string) int { return slices.Index([]rune(Stems), firstRune(stem)) }

// BranchIndex returns the cycle position of a branch glyph, or -1.
func BranchIndex(branch string) int { return slices.Index([]rune(Branches), firstRune(branch)) }

// Transformations returns the lu, quan, ke, ji stars of a stem.
func Transformations(stem string) []string {
	i := StemIndex(stem)
	if i < 0 {
		return nil
	}
	t := stemTransformations[i]
	return t[:]
}

// AlmanacOption configures an Almanac.
type AlmanacOption func(*Almanac)

// WithCalendarRange restricts the years Horoscope resolves.
func WithCalendarRange(minYear, maxYear int) AlmanacOption {
	return func(a *Almanac) {
		if minYear > 0 && maxYear >= minYear {
			a.minYear = minYear
			a.maxYear = maxYear
		}
	}
}

// Almanac is a reference Chart over a fixed palace list. Its horoscope
// projection follows the solar year, not the lunar new year, so periods
// near the turn of the year are approximate.
type Almanac struct {
	palaces   []Palace
	birthYear int
	byBranch  map[int]int
	minYear   int
	maxYear   int
}

var _ Chart = (*Almanac)(nil)

// NewAlmanac validates palaces and builds an Almanac for a person born in
// birthYear.
func NewAlmanac(birthYear int, palaces []Palace, opts ...AlmanacOption) (*Almanac, error) {
	if len(palaces) != PalaceCount {
		return nil, fmt.Errorf("%w: want %d palaces, got %d", ErrInvalidChart, PalaceCount, len(palaces))
	}
	a := &Almanac{
		palaces:   slices.Clone(palaces),
		birthYear: birthYear,
		byBranch:  make(map[int]int, PalaceCount),
		minYear:   defaultMinYear,
		maxYear:   defaultMaxYear,
	}
	for _, opt := range opts {
		opt(a)
	}
	for i := range a.palaces {
		a.palaces[i].Index = i
		b := BranchIndex(a.palaces[i].Branch)
		if b < 0 {
			return nil, fmt.Errorf("%w: palace %q has branch %q", ErrInvalidChart, a.palaces[i].Name, a.palaces[i].Branch)
		}
		if _, dup := a.byBranch[b]; dup {
			return nil, fmt.Errorf("%w: branch %q used twice", ErrInvalidChart, a.palaces[i].Branch)
		}
		a.byBranch[b] = i
	}
	return a, nil
}

// BirthYear returns the birth year the Almanac was built for.
func (a *Almanac) BirthYear() int { return a.birthYear }

// Palaces implements Chart.
func (a *Almanac) Palaces() []Palace { return a.palaces }

// Horoscope implements Chart.
func (a *Almanac) Horoscope(date time.Time) (Horoscope, error) {
	y := date.Year()
	if y < a.minYear || y > a.maxYear {
		return Horoscope{}, fmt.Errorf("%w: %s", ErrDateOutOfRange, date.Format(time.DateOnly))
	}

	yearStem, yearBranch := y-4, y-4
	yearly := a.period(KindYearly, yearStem, yearBranch)

	m := int(date.Month())
	// The first month of a year is 寅; its stem follows the year stem.
	monthStem := mod(yearStem, 5)*2 + 2 + m - 1
	monthly := a.period(KindMonthly, monthStem, m+1)
	monthly.PalaceIndex, monthly.PalaceNames = a.palaceAt(yearBranch + m - 1)

	days := int(math.Floor(date.Sub(dayCycleOrigin).Hours() / 24))
	daily := a.period(KindDaily, days, days)
	daily.PalaceIndex, daily.PalaceNames = a.palaceAt(yearBranch + m - 1 + date.Day() - 1)

	decadal := Period{Kind: KindDecadal, PalaceIndex: -1}
	if p, ok := DecadeFor(a.palaces, y-a.birthYear+1); ok {
		decadal = Period{
			Kind:        KindDecadal,
			Stem:        p.Stem,
			Branch:      p.Branch,
			Mutagen:     Transformations(p.Stem),
			PalaceIndex: p.Index,
			PalaceNames: []string{p.Name},
		}
	}

	return Horoscope{Decadal: decadal, Yearly: yearly, Monthly: monthly, Daily: daily}, nil
}

// period builds a Period whose active palace sits on its own branch.
func (a *Almanac) period(kind PeriodKind, stem, branch int) Period {
	p := Period{
		Kind:    kind,
		Stem:    StemAt(stem),
		Branch:  BranchAt(branch),
		Mutagen: Transformations(StemAt(stem)),
	}
	p.PalaceIndex, p.PalaceNames = a.palaceAt(branch)
	return p
}

func (a *Almanac) palaceAt(branch int) (int, []string) {
	i, ok := a.byBranch[mod(branch, 12)]
	if !ok {
		return -1, nil
	}
	return i, []string{a.palaces[i].Name}
}

func mod(a, n int) int { return ((a % n) + n) % n }

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
