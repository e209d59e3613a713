package narrative_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/okian/kline/internal/adapters/narrative"
	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/curve"
	"github.com/okian/kline/internal/domain/noise"
	"github.com/okian/kline/internal/domain/scoring"
	"github.com/okian/kline/internal/testcharts"
	. "github.com/smartystreets/goconvey/convey"
)

const testPoints = 10

func synthesizer() *curve.Synthesizer {
	p := scoring.DefaultCurveParams()
	p.Points = testPoints
	return curve.NewSynthesizer(
		curve.WithModel(scoring.New(scoring.WithCurveParams(p))),
		curve.WithNoise(noise.Seeded(3)),
	)
}

func series(n int) string {
	var b strings.Builder
	b.WriteString("```json\n[")
	prev := 50.0
	for age := 1; age <= n; age++ {
		closeV := 40 + float64(age*7%30)
		fmt.Fprintf(&b, `{"age": %d, "open": %.1f, "close": %.1f, "high": %.1f, "low": %.1f, "brief": "第%d年"},`,
			age, prev, closeV, max(prev, closeV)+2, min(prev, closeV)-2, age)
		prev = closeV
	}
	b.WriteString("]\n```")
	return b.String()
}

func TestStrategy_Generate(t *testing.T) {
	Convey("Given a narrative strategy and a chart", t, func() {
		c, err := testcharts.New(7).Almanac(1988)
		So(err, ShouldBeNil)
		req := curve.Request{Chart: c, BirthYear: 1988}

		Convey("When the backend answers with a fenced series", func() {
			var got narrative.Prompt
			backend := narrative.BackendFunc(func(_ context.Context, p narrative.Prompt) (string, error) {
				got = p
				return series(testPoints), nil
			})
			var stages []string
			req.Progress = func(p curve.Progress) { stages = append(stages, p.Stage) }
			tl, err := narrative.NewStrategy(backend, synthesizer(), narrative.WithMaxTokens(1000)).
				Generate(context.Background(), req)

			Convey("Then the timeline carries the backend values and chart metadata", func() {
				So(err, ShouldBeNil)
				So(tl.Strategy, ShouldEqual, narrative.StrategyNarrative)
				So(tl.Points, ShouldHaveLength, testPoints)
				So(tl.Validate(), ShouldBeNil)
				So(tl.Points[0].Open, ShouldEqual, 50)
				So(tl.Points[0].Narrative, ShouldEqual, "第1年")
				So(tl.Points[4].Year, ShouldEqual, 1992)
				So(tl.Points[4].StemBranch, ShouldNotBeEmpty)
				So(tl.Points[4].DecadeName, ShouldNotBeEmpty)
			})

			Convey("Then the prompt carries the digest and contract", func() {
				So(got.JSON, ShouldBeTrue)
				So(got.MaxTokens, ShouldEqual, 1000)
				So(got.User, ShouldContainSubstring, "出生年: 1988")
				So(got.System, ShouldContainSubstring, "JSON")
			})

			Convey("Then progress reaches done", func() {
				So(stages, ShouldContain, curve.StageParse)
				So(stages[len(stages)-1], ShouldEqual, curve.StageDone)
			})
		})

		Convey("When the backend fails", func() {
			backend := narrative.BackendFunc(func(context.Context, narrative.Prompt) (string, error) {
				return "", errors.New("connection reset")
			})
			_, err := narrative.NewStrategy(backend, synthesizer()).Generate(context.Background(), req)

			Convey("Then the error is a transport error", func() {
				So(errors.Is(err, narrative.ErrTransport), ShouldBeTrue)
			})
		})

		Convey("When the backend rejects credentials", func() {
			backend := narrative.BackendFunc(func(context.Context, narrative.Prompt) (string, error) {
				return "", fmt.Errorf("%w: 401", narrative.ErrAuth)
			})
			_, err := narrative.NewStrategy(backend, synthesizer()).Generate(context.Background(), req)

			Convey("Then the auth kind is kept", func() {
				So(narrative.Reason(err), ShouldEqual, "auth")
			})
		})

		Convey("When composed with a deterministic fallback and the answer is prose", func() {
			backend := narrative.BackendFunc(func(context.Context, narrative.Prompt) (string, error) {
				return "命主一生平顺。", nil
			})
			synth := synthesizer()
			fb := curve.NewFallback(narrative.NewStrategy(backend, synth), curve.NewDeterministic(synth),
				curve.WithReason(narrative.Reason))
			tl, err := fb.Generate(context.Background(), req)

			Convey("Then the deterministic timeline is returned with a notice", func() {
				So(err, ShouldBeNil)
				So(tl.Strategy, ShouldEqual, curve.StrategyDeterministic)
				So(tl.Points, ShouldHaveLength, testPoints)
				So(tl.Notices[0], ShouldContainSubstring, "parse")
			})
		})

		Convey("When the context is cancelled during the request", func() {
			ctx, cancel := context.WithCancel(context.Background())
			backend := narrative.BackendFunc(func(ctx context.Context, _ narrative.Prompt) (string, error) {
				cancel()
				return "", ctx.Err()
			})
			_, err := narrative.NewStrategy(backend, synthesizer()).Generate(ctx, req)

			Convey("Then cancellation is reported as such", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestStrategy_PanickingChart(t *testing.T) {
	Convey("Given a chart whose horoscope lookups panic", t, func() {
		c := &testcharts.Scripted{
			List: testcharts.New(7).Palaces(1988),
			Fn: func(time.Time) (chart.Horoscope, error) {
				panic("calendar edge")
			},
		}
		req := curve.Request{Chart: c, BirthYear: 1988}
		synth := synthesizer()

		Convey("When the digest is built", func() {
			digest := narrative.Digest(c, 1988, testPoints, synth.Model())

			Convey("Then the failed years are left out", func() {
				So(digest, ShouldContainSubstring, "命盘十二宫")
				So(digest, ShouldNotContainSubstring, "1岁 1988")
			})
		})

		Convey("When the backend answers", func() {
			backend := narrative.BackendFunc(func(context.Context, narrative.Prompt) (string, error) {
				return series(testPoints), nil
			})
			fb := curve.NewFallback(narrative.NewStrategy(backend, synth), curve.NewDeterministic(synth),
				curve.WithReason(narrative.Reason))
			tl, err := fb.Generate(context.Background(), req)

			Convey("Then the narrative timeline is still produced", func() {
				So(err, ShouldBeNil)
				So(tl.Strategy, ShouldEqual, narrative.StrategyNarrative)
				So(tl.Points, ShouldHaveLength, testPoints)
				So(tl.Validate(), ShouldBeNil)
			})
		})

		Convey("When the backend fails", func() {
			backend := narrative.BackendFunc(func(context.Context, narrative.Prompt) (string, error) {
				return "", fmt.Errorf("%w: 503", narrative.ErrTransport)
			})
			fb := curve.NewFallback(narrative.NewStrategy(backend, synth), curve.NewDeterministic(synth),
				curve.WithReason(narrative.Reason))
			tl, err := fb.Generate(context.Background(), req)

			Convey("Then the deterministic timeline is returned", func() {
				So(err, ShouldBeNil)
				So(tl.Strategy, ShouldEqual, curve.StrategyDeterministic)
				So(tl.Points, ShouldHaveLength, testPoints)
				So(tl.Validate(), ShouldBeNil)
				So(tl.Notices[0], ShouldContainSubstring, "transport")
			})
		})
	})
}

func TestAnnotator(t *testing.T) {
	Convey("Given an annotator and a deterministic point", t, func() {
		c, err := testcharts.New(2).Almanac(1990)
		So(err, ShouldBeNil)
		tl := synthesizer().Lifetime(c, 1990)

		Convey("When the backend answers with a fenced quoted line", func() {
			a := narrative.NewAnnotator(narrative.BackendFunc(func(_ context.Context, p narrative.Prompt) (string, error) {
				So(p.User, ShouldContainSubstring, "指定年份: 3岁")
				return "```\n“财运渐旺，宜守成。”\n多余内容\n```", nil
			}), nil)
			brief, err := a.Annotate(context.Background(), c, 1990, tl.Points[2])

			Convey("Then the first line is kept without decoration", func() {
				So(err, ShouldBeNil)
				So(brief, ShouldEqual, "财运渐旺，宜守成。")
			})
		})

		Convey("When the backend answers with nothing", func() {
			a := narrative.NewAnnotator(narrative.BackendFunc(func(context.Context, narrative.Prompt) (string, error) {
				return "  ", nil
			}), nil)
			_, err := a.Annotate(context.Background(), c, 1990, tl.Points[0])

			Convey("Then it is a parse error", func() {
				So(errors.Is(err, narrative.ErrParse), ShouldBeTrue)
			})
		})
	})
}
