// Package chart defines the read-only chart contract consumed by the engine.
//
// A chart is produced by an external calculator. The engine only reads it
// through the Chart interface: the twelve palace snapshots and the horoscope
// projection for a given date.
package chart

import (
	"fmt"
	"slices"
	"time"
)

// PalaceCount is the number of palaces in a chart.
const PalaceCount = 12

// Canonical palace names.
const (
	PalaceLife     = "命宫"
	PalaceSiblings = "兄弟"
	PalaceSpouse   = "夫妻"
	PalaceChildren = "子女"
	PalaceWealth   = "财帛"
	PalaceHealth   = "疾厄"
	PalaceTravel   = "迁移"
	PalaceFriends  = "仆役"
	PalaceCareer   = "官禄"
	PalaceProperty = "田宅"
	PalaceFortune  = "福德"
	PalaceParents  = "父母"
)

// PalaceNames lists the palaces in their conventional order.
var PalaceNames = []string{
	PalaceLife, PalaceSiblings, PalaceSpouse, PalaceChildren,
	PalaceWealth, PalaceHealth, PalaceTravel, PalaceFriends,
	PalaceCareer, PalaceProperty, PalaceFortune, PalaceParents,
}

// Chart is the query contract of the external chart calculator.
type Chart interface {
	// Palaces returns the twelve palace snapshots in chart order.
	Palaces() []Palace
	// Horoscope projects the chart onto date. It fails for dates the
	// calculator cannot resolve.
	Horoscope(date time.Time) (Horoscope, error)
}

// SafeHoroscope calls c.Horoscope and turns a panic inside the calculator
// into an ErrLookupPanic error.
func SafeHoroscope(c Chart, date time.Time) (h Horoscope, err error) {
	defer func() {
		if r := recover(); r != nil {
			h = Horoscope{}
			err = fmt.Errorf("%w: %s: %v", ErrLookupPanic, date.Format(time.DateOnly), r)
		}
	}()
	return c.Horoscope(date)
}

// Star is one star placement inside a palace.
type Star struct {
	Name       string     `json:"name" yaml:"name"`
	Brightness Brightness `json:"brightness,omitempty" yaml:"brightness,omitempty"`
	Tag        Tag        `json:"tag,omitempty" yaml:"tag,omitempty"`
}

// AgeRange is an inclusive nominal-age interval.
type AgeRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Contains reports whether age falls inside r.
func (r AgeRange) Contains(age int) bool { return age >= r.Start && age <= r.End }

// Palace is a snapshot of one life domain.
type Palace struct {
	Index          int       `json:"index" yaml:"index"`
	Name           string    `json:"name" yaml:"name"`
	Stem           string    `json:"stem" yaml:"stem"`
	Branch         string    `json:"branch" yaml:"branch"`
	MajorStars     []Star    `json:"major_stars" yaml:"major_stars"`
	MinorStars     []Star    `json:"minor_stars" yaml:"minor_stars"`
	AdjectiveStars []string  `json:"adjective_stars,omitempty" yaml:"adjective_stars,omitempty"`
	Decadal        *AgeRange `json:"decadal,omitempty" yaml:"decadal,omitempty"`
}

// Star looks a star up by name among major and minor stars.
func (p Palace) Star(name string) (Star, bool) {
	for _, s := range p.MajorStars {
		if s.Name == name {
			return s, true
		}
	}
	for _, s := range p.MinorStars {
		if s.Name == name {
			return s, true
		}
	}
	return Star{}, false
}

// StarNames returns the names of major then minor stars.
func (p Palace) StarNames() []string {
	names := make([]string, 0, len(p.MajorStars)+len(p.MinorStars))
	for _, s := range p.MajorStars {
		names = append(names, s.Name)
	}
	for _, s := range p.MinorStars {
		names = append(names, s.Name)
	}
	return names
}

// PeriodKind identifies the cycle a Period belongs to.
type PeriodKind string

// Period kinds.
const (
	KindDecadal PeriodKind = "decadal"
	KindYearly  PeriodKind = "yearly"
	KindMonthly PeriodKind = "monthly"
	KindDaily   PeriodKind = "daily"
)

// Period is one layer of a horoscope projection.
type Period struct {
	Kind   PeriodKind `json:"kind"`
	Stem   string     `json:"stem"`
	Branch string     `json:"branch"`
	// Mutagen holds the stars receiving lu, quan, ke and ji, in that order.
	Mutagen     []string `json:"mutagen"`
	PalaceIndex int      `json:"palace_index"`
	PalaceNames []string `json:"palace_names"`
}

// TaggedStar pairs a star with the transformation it receives.
type TaggedStar struct {
	Star string `json:"star"`
	Tag  Tag    `json:"tag"`
}

// String renders the pair the way charts print it, e.g. "天机化禄".
func (t TaggedStar) String() string { return t.Star + "化" + t.Tag.Glyph() }

// Tagged returns the transformations of p paired with their stars.
func (p Period) Tagged() []TaggedStar {
	out := make([]TaggedStar, 0, len(p.Mutagen))
	for i, name := range p.Mutagen {
		if i >= len(TagOrder) {
			break
		}
		if name == "" {
			continue
		}
		out = append(out, TaggedStar{Star: name, Tag: TagOrder[i]})
	}
	return out
}

// StemBranch returns the two-glyph cycle name of p.
func (p Period) StemBranch() string { return p.Stem + p.Branch }

// Horoscope is the full projection of a chart onto one date.
type Horoscope struct {
	Decadal Period `json:"decadal"`
	Yearly  Period `json:"yearly"`
	Monthly Period `json:"monthly"`
	Daily   Period `json:"daily"`
}

// DecadeFor returns the palace whose decadal range covers age.
func DecadeFor(palaces []Palace, age int) (Palace, bool) {
	for _, p := range palaces {
		if p.Decadal != nil && p.Decadal.Contains(age) {
			return p, true
		}
	}
	return Palace{}, false
}

// Decades returns the palaces that carry a decadal range, ordered by start age.
func Decades(palaces []Palace) []Palace {
	out := make([]Palace, 0, len(palaces))
	for _, p := range palaces {
		if p.Decadal != nil {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Palace) int { return a.Decadal.Start - b.Decadal.Start })
	return out
}

// ByName indexes palaces by name.
func ByName(palaces []Palace) map[string]Palace {
	m := make(map[string]Palace, len(palaces))
	for _, p := range palaces {
		m[p.Name] = p
	}
	return m
}
