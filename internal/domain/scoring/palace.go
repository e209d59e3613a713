package scoring

import (
	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/model"
)

// Profile parameterizes ScorePalace for one use.
type Profile struct {
	Name            string
	Baseline        float64
	MajorWeight     float64
	MinorWeight     float64
	AdjectiveWeight float64
	TagScale        float64
	// Min and Max clamp the result when Max > Min.
	Min float64
	Max float64
}

// Shipped profiles.
var (
	// PeriodProfile is the raw score of a palace, fed to the dimension projection.
	PeriodProfile = Profile{
		Name: "period", Baseline: 50,
		MajorWeight: 1, MinorWeight: 1, AdjectiveWeight: 0.5, TagScale: 1,
	}
	// DecadeProfile is the base score of a governing decade palace.
	DecadeProfile = Profile{
		Name: "decade", Baseline: 45,
		MajorWeight: 0.5, MinorWeight: 0.3, AdjectiveWeight: 0.25, TagScale: 0.55,
		Min: 20, Max: 90,
	}
	// ModifierProfile is the reduced contribution of an active period palace.
	ModifierProfile = Profile{
		Name: "modifier", Baseline: 0,
		MajorWeight: 0.3, MinorWeight: 0.2, AdjectiveWeight: 0, TagScale: 0.45,
	}
)

// ScorePalace scores p under prof. It is pure: the same palace and profile
// always give the same result.
func (m *Model) ScorePalace(p chart.Palace, prof Profile) float64 {
	s := prof.Baseline
	for _, star := range p.MajorStars {
		s += m.StarScore(star.Name)*m.BrightnessMultiplier(star.Brightness)*prof.MajorWeight +
			m.TagModifier(star.Tag)*prof.TagScale
	}
	for _, star := range p.MinorStars {
		s += m.StarScore(star.Name)*prof.MinorWeight + m.TagModifier(star.Tag)*prof.TagScale
	}
	if prof.AdjectiveWeight != 0 {
		for _, name := range p.AdjectiveStars {
			s += m.StarScore(name) * prof.AdjectiveWeight
		}
	}
	if prof.Max > prof.Min {
		s = model.Clamp(s, prof.Min, prof.Max)
	}
	return s
}

// ScorePalaces scores every palace under prof, keyed by palace name.
func (m *Model) ScorePalaces(palaces []chart.Palace, prof Profile) map[string]float64 {
	out := make(map[string]float64, len(palaces))
	for _, p := range palaces {
		out[p.Name] = m.ScorePalace(p, prof)
	}
	return out
}
