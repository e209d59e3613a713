package narrative

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/scoring"
)

// lifetimeInstruction is the fixed output contract sent with every digest.
const lifetimeInstruction = `你是一位精通紫微斗数的命理分析师。根据用户提供的命盘摘要，推演此人 1 到 %[1]d 岁每一年的运势走势，并以 K 线形式给出。

输出要求：
1. 只输出一个 JSON 数组，不要输出任何其他文字。
2. 数组必须恰好包含 %[1]d 个对象，按年龄从 1 到 %[1]d 排列。
3. 每个对象格式为 {"age": 整数, "open": 数字, "close": 数字, "high": 数字, "low": 数字, "brief": 字符串}。
4. 所有数值在 0 到 100 之间；high 不低于 open 和 close，low 不高于 open 和 close。
5. 第 1 岁的 open 为 50，之后每一年的 open 等于上一年的 close。
6. brief 用不超过 20 个汉字概括当年运势要点。`

// briefInstruction asks for a one-line reading of a single point.
const briefInstruction = `你是一位精通紫微斗数的命理分析师。根据命盘摘要和指定年份的运势数据，用不超过 40 个汉字给出当年的运势点评。只输出点评正文。`

// Digest renders the chart as the textual summary sent to a backend:
// palaces with their stars, brightness and transformations, decadal ranges,
// palace strength, and the yearly transformations of every age.
func Digest(c chart.Chart, birthYear, points int, m *scoring.Model) string {
	var b strings.Builder
	fmt.Fprintf(&b, "出生年: %d\n", birthYear)
	b.WriteString("命盘十二宫:\n")
	for _, p := range c.Palaces() {
		fmt.Fprintf(&b, "- %s [%s%s]", p.Name, p.Stem, p.Branch)
		if p.Decadal != nil {
			fmt.Fprintf(&b, " 大限 %d-%d岁", p.Decadal.Start, p.Decadal.End)
		}
		fmt.Fprintf(&b, " 强度 %.0f", m.Normalize(m.ScorePalace(p, scoring.PeriodProfile)))
		b.WriteString("\n  主星: ")
		writeStars(&b, p.MajorStars)
		b.WriteString("\n  辅星: ")
		writeStars(&b, p.MinorStars)
		if len(p.AdjectiveStars) > 0 {
			b.WriteString("\n  杂曜: ")
			b.WriteString(strings.Join(p.AdjectiveStars, " "))
		}
		b.WriteString("\n")
	}

	b.WriteString("流年四化:\n")
	for age := 1; age <= points; age++ {
		year := birthYear + age - 1
		h, err := chart.SafeHoroscope(c, time.Date(year, time.June, 15, 12, 0, 0, 0, time.UTC))
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%d岁 %d %s:", age, year, h.Yearly.StemBranch())
		for _, t := range h.Yearly.Tagged() {
			b.WriteString(" ")
			b.WriteString(t.String())
		}
		if len(h.Decadal.PalaceNames) > 0 {
			fmt.Fprintf(&b, " 大限%s", h.Decadal.PalaceNames[0])
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeStars(b *strings.Builder, stars []chart.Star) {
	if len(stars) == 0 {
		b.WriteString("无")
		return
	}
	for i, s := range stars {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(s.Name)
		var q []string
		if g := s.Brightness.Glyph(); g != "" {
			q = append(q, g)
		}
		if s.Tag != "" {
			q = append(q, "化"+s.Tag.Glyph())
		}
		if len(q) > 0 {
			b.WriteString("(" + strings.Join(q, ",") + ")")
		}
	}
}

// LifetimePrompt builds the request for a full lifetime series.
func LifetimePrompt(digest string, points int) Prompt {
	return Prompt{
		System: fmt.Sprintf(lifetimeInstruction, points),
		User:   digest,
		JSON:   true,
	}
}

// BriefPrompt builds the request for a one-line reading of one year.
func BriefPrompt(digest string, age, year int, open, closeV, score float64) Prompt {
	return Prompt{
		System: briefInstruction,
		User: fmt.Sprintf("%s\n指定年份: %d岁 (%d年)\n开盘 %.1f 收盘 %.1f 综合 %.1f",
			digest, age, year, open, closeV, score),
	}
}
