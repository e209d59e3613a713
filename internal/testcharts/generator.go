// Package testcharts generates valid twelve-palace charts for property
// tests, demos and the CLI.
package testcharts

import (
	"math/rand"

	"github.com/okian/kline/internal/domain/chart"
)

// Star pools placed by the generator.
var (
	majorStars = []string{
		"紫微", "天机", "太阳", "武曲", "天同", "廉贞", "天府",
		"太阴", "贪狼", "巨门", "天相", "天梁", "七杀", "破军",
	}
	minorStars = []string{
		"左辅", "右弼", "文昌", "文曲", "天魁", "天钺",
		"擎羊", "陀罗", "火星", "铃星", "地空", "地劫", "禄存", "天马",
	}
	adjectiveStars = []string{
		"红鸾", "天喜", "天刑", "天姚", "天哭", "天虚", "龙池", "凤阁",
		"华盖", "咸池", "天德", "月德", "天官", "天福", "解神", "阴煞",
	}
)

// Generator produces random but structurally valid charts.
type Generator struct {
	rng *rand.Rand
}

// New returns a Generator replaying the sequence of seed.
func New(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))} //nolint:gosec // fixtures only
}

// Palaces returns twelve palaces for someone born in birthYear: unique
// branches, every major and minor star placed once, natal transformations
// from the birth-year stem, and twelve consecutive decadal ranges.
func (g *Generator) Palaces(birthYear int) []chart.Palace {
	lifeBranch := g.rng.Intn(12)
	yearStem := birthYear - 4
	bureau := 2 + g.rng.Intn(5)
	forward := g.rng.Intn(2) == 0

	palaces := make([]chart.Palace, chart.PalaceCount)
	for i, name := range chart.PalaceNames {
		branch := lifeBranch - i
		palaces[i] = chart.Palace{
			Index:  i,
			Name:   name,
			Branch: chart.BranchAt(branch),
			Stem:   chart.StemAt(mod(yearStem, 5)*2 + 2 + mod(branch-2, 12)),
		}
		step := i
		if !forward && i > 0 {
			step = chart.PalaceCount - i
		}
		start := bureau + step*10
		palaces[i].Decadal = &chart.AgeRange{Start: start, End: start + 9}
	}

	for _, name := range majorStars {
		p := &palaces[g.rng.Intn(len(palaces))]
		p.MajorStars = append(p.MajorStars, chart.Star{Name: name, Brightness: g.brightness()})
	}
	for _, name := range minorStars {
		p := &palaces[g.rng.Intn(len(palaces))]
		p.MinorStars = append(p.MinorStars, chart.Star{Name: name})
	}
	for _, name := range adjectiveStars {
		if g.rng.Intn(2) == 0 {
			p := &palaces[g.rng.Intn(len(palaces))]
			p.AdjectiveStars = append(p.AdjectiveStars, name)
		}
	}

	for i, star := range chart.Transformations(chart.StemAt(yearStem)) {
		applyTag(palaces, star, chart.TagOrder[i])
	}
	return palaces
}

// Almanac generates palaces for birthYear and wraps them in an Almanac.
func (g *Generator) Almanac(birthYear int) (*chart.Almanac, error) {
	return chart.NewAlmanac(birthYear, g.Palaces(birthYear))
}

// Fixture generates a serializable chart fixture.
func (g *Generator) Fixture(birthYear int) Fixture {
	return Fixture{BirthYear: birthYear, Palaces: g.Palaces(birthYear)}
}

func (g *Generator) brightness() chart.Brightness {
	// two in nine stars carry no brightness
	i := g.rng.Intn(len(chart.BrightnessLevels) + 2)
	if i >= len(chart.BrightnessLevels) {
		return ""
	}
	return chart.BrightnessLevels[i]
}

func applyTag(palaces []chart.Palace, star string, tag chart.Tag) {
	for i := range palaces {
		for j := range palaces[i].MajorStars {
			if palaces[i].MajorStars[j].Name == star {
				palaces[i].MajorStars[j].Tag = tag
				return
			}
		}
		for j := range palaces[i].MinorStars {
			if palaces[i].MinorStars[j].Name == star {
				palaces[i].MinorStars[j].Tag = tag
				return
			}
		}
	}
}

func mod(a, n int) int { return ((a % n) + n) % n }
