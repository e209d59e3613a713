package model

// Level is the qualitative band of a score.
type Level string

// Score levels, best first.
const (
	LevelGreatFortune    Level = "great_fortune"    // 大吉
	LevelFortune         Level = "fortune"          // 吉
	LevelNeutral         Level = "neutral"          // 平
	LevelMisfortune      Level = "misfortune"       // 凶
	LevelGreatMisfortune Level = "great_misfortune" // 大凶
)

var levelGlyphs = map[Level]string{
	LevelGreatFortune:    "大吉",
	LevelFortune:         "吉",
	LevelNeutral:         "平",
	LevelMisfortune:      "凶",
	LevelGreatMisfortune: "大凶",
}

// LevelFor bands a 0..100 score.
func LevelFor(score float64) Level {
	switch {
	case score >= 80:
		return LevelGreatFortune
	case score >= 60:
		return LevelFortune
	case score >= 40:
		return LevelNeutral
	case score >= 20:
		return LevelMisfortune
	default:
		return LevelGreatMisfortune
	}
}

// Glyph returns the chart-style label of l.
func (l Level) Glyph() string { return levelGlyphs[l] }

// Trend is the direction of a point relative to its predecessor.
type Trend string

// Trends.
const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// trendEpsilon is below the one-decimal resolution of stored values.
const trendEpsilon = 0.05

// TrendOf compares cur against prev.
func TrendOf(prev, cur float64) Trend {
	switch d := cur - prev; {
	case d > trendEpsilon:
		return TrendUp
	case d < -trendEpsilon:
		return TrendDown
	default:
		return TrendFlat
	}
}
