package chart

import (
	"fmt"
	"strings"
)

// Brightness is the seven-level strength of a star in its palace.
type Brightness string

// Brightness levels, strongest first.
const (
	BrightnessTemple     Brightness = "temple"     // 庙
	BrightnessProsperous Brightness = "prosperous" // 旺
	BrightnessGained     Brightness = "gained"     // 得
	BrightnessFavorable  Brightness = "favorable"  // 利
	BrightnessNeutral    Brightness = "neutral"    // 平
	BrightnessWeak       Brightness = "weak"       // 不
	BrightnessFallen     Brightness = "fallen"     // 陷
)

// BrightnessLevels lists every level, strongest first.
var BrightnessLevels = []Brightness{
	BrightnessTemple, BrightnessProsperous, BrightnessGained, BrightnessFavorable,
	BrightnessNeutral, BrightnessWeak, BrightnessFallen,
}

var brightnessGlyphs = map[string]Brightness{
	"庙": BrightnessTemple,
	"旺": BrightnessProsperous,
	"得": BrightnessGained,
	"利": BrightnessFavorable,
	"平": BrightnessNeutral,
	"不": BrightnessWeak,
	"陷": BrightnessFallen,
}

// ParseBrightness accepts English level names and chart glyphs.
// The empty string parses to the empty level.
func ParseBrightness(s string) (Brightness, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if b, ok := brightnessGlyphs[s]; ok {
		return b, nil
	}
	for _, b := range BrightnessLevels {
		if strings.EqualFold(s, string(b)) {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: brightness %q", ErrUnknownQuality, s)
}

// Rank orders levels from 0 (temple) to 6 (fallen); unknown levels rank -1.
func (b Brightness) Rank() int {
	for i, l := range BrightnessLevels {
		if l == b {
			return i
		}
	}
	return -1
}

// Glyph returns the chart glyph of b, or "" for unknown levels.
func (b Brightness) Glyph() string {
	for g, l := range brightnessGlyphs {
		if l == b {
			return g
		}
	}
	return ""
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Brightness) UnmarshalText(text []byte) error {
	v, err := ParseBrightness(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Tag is one of the four transformations a star can receive.
type Tag string

// Transformation tags. Lu, quan and ke are auspicious; ji is not.
const (
	TagLu   Tag = "lu"   // 禄
	TagQuan Tag = "quan" // 权
	TagKe   Tag = "ke"   // 科
	TagJi   Tag = "ji"   // 忌
)

// TagOrder is the order transformations appear in a period's mutagen list.
var TagOrder = []Tag{TagLu, TagQuan, TagKe, TagJi}

var tagGlyphs = map[Tag]string{TagLu: "禄", TagQuan: "权", TagKe: "科", TagJi: "忌"}

// ParseTag accepts English tag names, single glyphs and forms like "化忌".
func ParseTag(s string) (Tag, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "化")
	if s == "" {
		return "", nil
	}
	for t, g := range tagGlyphs {
		if s == g || strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: tag %q", ErrUnknownQuality, s)
}

// Glyph returns the chart glyph of t.
func (t Tag) Glyph() string { return tagGlyphs[t] }

// Auspicious reports whether t is one of the favorable transformations.
func (t Tag) Auspicious() bool { return t == TagLu || t == TagQuan || t == TagKe }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tag) UnmarshalText(text []byte) error {
	v, err := ParseTag(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
