package curve

import (
	"fmt"
	"slices"
	"strings"

	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/model"
	"github.com/okian/kline/internal/domain/scoring"
)

// peakSpread is the monthly spread above which a year gets peak and
// trough markers.
const peakSpread = 15

// convergenceCount is the number of group stars that makes a convergence.
const convergenceCount = 2

// decadeEvents marks lu and ji stars of a decade palace and star convergences.
func decadeEvents(p chart.Palace) []model.Event {
	var out []model.Event
	for _, group := range [][]chart.Star{p.MajorStars, p.MinorStars} {
		for _, s := range group {
			switch s.Tag {
			case chart.TagLu:
				out = append(out, model.Event{Kind: model.EventLu, Label: s.Name + "化禄", Positive: true})
			case chart.TagJi:
				out = append(out, model.Event{Kind: model.EventJi, Label: s.Name + "化忌"})
			}
		}
	}
	names := p.StarNames()
	if hit := present(names, scoring.AuspiciousAssistants); len(hit) >= convergenceCount {
		out = append(out, model.Event{
			Kind: model.EventAuspicious, Label: "吉星汇聚: " + strings.Join(hit, " "), Positive: true,
		})
	}
	if hit := present(names, scoring.Malefics); len(hit) >= convergenceCount {
		out = append(out, model.Event{Kind: model.EventMalefic, Label: "煞星汇聚: " + strings.Join(hit, " ")})
	}
	return out
}

// tagEvents marks lu and ji transformations of a period.
func tagEvents(tags []chart.TaggedStar) []model.Event {
	var out []model.Event
	for _, t := range tags {
		switch t.Tag {
		case chart.TagLu:
			out = append(out, model.Event{Kind: model.EventLu, Label: t.String(), Positive: true})
		case chart.TagJi:
			out = append(out, model.Event{Kind: model.EventJi, Label: t.String()})
		}
	}
	return out
}

// peakEvents marks the best and worst month when they differ enough.
func peakEvents(months []float64) []model.Event {
	if len(months) == 0 {
		return nil
	}
	hi, lo := slices.Max(months), slices.Min(months)
	if hi-lo <= peakSpread {
		return nil
	}
	return []model.Event{
		{Kind: model.EventPeak, Label: fmt.Sprintf("%d月运势高峰", slices.Index(months, hi)+1), Positive: true},
		{Kind: model.EventTrough, Label: fmt.Sprintf("%d月运势低谷", slices.Index(months, lo)+1)},
	}
}

func present(names, group []string) []string {
	var hit []string
	for _, g := range group {
		if slices.Contains(names, g) {
			hit = append(hit, g)
		}
	}
	return hit
}

func tagStrings(tags []chart.TaggedStar) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.String()
	}
	return out
}
