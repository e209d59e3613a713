package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/okian/kline/internal/adapters/llm"
	"github.com/okian/kline/internal/adapters/narrative"
	service "github.com/okian/kline/internal/app"
	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/curve"
	"github.com/okian/kline/internal/domain/model"
	"github.com/okian/kline/internal/domain/noise"
	"github.com/okian/kline/internal/domain/scoring"
	"github.com/okian/kline/internal/testcharts"
	"github.com/okian/kline/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const testPoints = 10

func synthesizer() *curve.Synthesizer {
	p := scoring.DefaultCurveParams()
	p.Points = testPoints
	return curve.NewSynthesizer(
		curve.WithModel(scoring.New(scoring.WithCurveParams(p))),
		curve.WithNoise(noise.Seeded(11)),
		curve.WithLogger(logger.Nop()),
	)
}

func newService(b narrative.Backend, opts ...service.Option) *service.Service {
	opts = append([]service.Option{
		service.WithSynthesizer(synthesizer()),
		service.WithLogger(logger.Nop()),
		service.WithWorkerCount(2),
		service.WithBackendConfig(llm.Config{Provider: llm.ProviderCustom, APIKey: "k", BaseURL: "http://backend", Model: "m"}),
		service.WithBackendFactory(func(llm.Config) (narrative.Backend, error) { return b, nil }),
	}, opts...)
	return service.New(opts...)
}

func testChart(seed int64, birthYear int) chart.Chart {
	c, err := testcharts.New(seed).Almanac(birthYear)
	if err != nil {
		panic(err)
	}
	return c
}

func series(n int) string {
	var b strings.Builder
	b.WriteString("[")
	prev := 50.0
	for age := 1; age <= n; age++ {
		closeV := 45 + float64(age*3%20)
		fmt.Fprintf(&b, `{"age": %d, "open": %.1f, "close": %.1f, "high": %.1f, "low": %.1f, "brief": "第%d年"},`,
			age, prev, closeV, max(prev, closeV)+1, min(prev, closeV)-1, age)
		prev = closeV
	}
	b.WriteString("]")
	return b.String()
}

func failing(err error) narrative.Backend {
	return narrative.BackendFunc(func(context.Context, narrative.Prompt) (string, error) { return "", err })
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := newService(failing(narrative.ErrTransport))
		ctx := context.Background()

		Convey("Then it reports defaults before starting", func() {
			stats := svc.GetStats(ctx)
			So(stats["started"], ShouldEqual, false)
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats["charts"], ShouldEqual, 0)
		})

		Convey("When it is started and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats(ctx)["started"], ShouldEqual, true)

			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			So(svc.Stop(stopCtx), ShouldBeNil)

			Convey("Then it is marked as stopped", func() {
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
				So(svc.Stop(stopCtx), ShouldBeNil)
			})
		})
	})
}

func TestService_ComputeDeterministicTimeline(t *testing.T) {
	Convey("Given a service and a chart", t, func() {
		svc := newService(failing(narrative.ErrTransport))
		ctx := context.Background()
		c := testChart(5, 1990)

		Convey("When the lifetime timeline is computed", func() {
			tl, err := svc.ComputeDeterministicTimeline(ctx, c, 1990)

			Convey("Then it is a stamped continuous deterministic series", func() {
				So(err, ShouldBeNil)
				So(tl.ID, ShouldNotBeEmpty)
				So(tl.CreatedAt.IsZero(), ShouldBeFalse)
				So(tl.Strategy, ShouldEqual, curve.StrategyDeterministic)
				So(tl.Points, ShouldHaveLength, testPoints)
				So(tl.Validate(), ShouldBeNil)
				So(tl.Points[0].Age, ShouldEqual, 1)
				So(tl.Points[testPoints-1].Age, ShouldEqual, testPoints)
			})

			Convey("Then computing again gives the same values under a new ID", func() {
				again, err := svc.ComputeDeterministicTimeline(ctx, c, 1990)
				So(err, ShouldBeNil)
				So(again.ID, ShouldNotEqual, tl.ID)
				So(cmp.Diff(tl.Points, again.Points), ShouldBeEmpty)
			})
		})

		Convey("When many callers ask at once", func() {
			var wg sync.WaitGroup
			results := make([]*model.Timeline, 8)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], _ = svc.ComputeDeterministicTimeline(ctx, c, 1990)
				}(i)
			}
			wg.Wait()

			Convey("Then each gets its own timeline", func() {
				ids := map[string]bool{}
				for _, tl := range results {
					So(tl, ShouldNotBeNil)
					ids[tl.ID] = true
				}
				So(ids, ShouldHaveLength, len(results))
				results[0].Points[0].Close = -1
				So(results[1].Points[0].Close, ShouldBeGreaterThanOrEqualTo, 0)
			})
		})

		Convey("When the request is invalid", func() {
			_, err := svc.ComputeDeterministicTimeline(ctx, nil, 1990)
			So(errors.Is(err, curve.ErrInvalidRequest), ShouldBeTrue)
			_, err = svc.ComputeDeterministicTimeline(ctx, c, 0)
			So(errors.Is(err, curve.ErrInvalidRequest), ShouldBeTrue)
		})
	})
}

func TestService_ComputeNarrativeTimeline(t *testing.T) {
	Convey("Given a chart", t, func() {
		ctx := context.Background()
		c := testChart(9, 1985)

		Convey("When the backend answers with a series", func() {
			svc := newService(narrative.BackendFunc(func(context.Context, narrative.Prompt) (string, error) {
				return series(testPoints), nil
			}))
			var stages []string
			var mu sync.Mutex
			tl, err := svc.ComputeNarrativeTimeline(ctx, c, 1985, llm.Config{}, func(p curve.Progress) {
				mu.Lock()
				stages = append(stages, p.Stage)
				mu.Unlock()
			})

			Convey("Then the narrative timeline is returned", func() {
				So(err, ShouldBeNil)
				So(tl.Strategy, ShouldEqual, narrative.StrategyNarrative)
				So(tl.ID, ShouldNotBeEmpty)
				So(tl.Points, ShouldHaveLength, testPoints)
				So(tl.Validate(), ShouldBeNil)
				So(tl.Points[0].Narrative, ShouldEqual, "第1年")
				So(tl.Notices, ShouldBeEmpty)
				So(stages, ShouldContain, curve.StageDone)
			})
		})

		Convey("When the backend fails", func() {
			svc := newService(failing(fmt.Errorf("%w: connection refused", narrative.ErrTransport)))
			var stages []string
			tl, err := svc.ComputeNarrativeTimeline(ctx, c, 1985, llm.Config{}, func(p curve.Progress) {
				stages = append(stages, p.Stage)
			})

			Convey("Then the deterministic timeline is returned with a notice", func() {
				So(err, ShouldBeNil)
				So(tl.Strategy, ShouldEqual, curve.StrategyDeterministic)
				So(tl.Notices, ShouldHaveLength, 1)
				So(stages, ShouldContain, curve.StageFallback)

				want, err := svc.ComputeDeterministicTimeline(ctx, c, 1985)
				So(err, ShouldBeNil)
				So(cmp.Diff(want.Points, tl.Points), ShouldBeEmpty)
			})
		})

		Convey("When the backend cannot be built", func() {
			svc := newService(nil, service.WithBackendFactory(func(llm.Config) (narrative.Backend, error) {
				return nil, narrative.ErrAuth
			}))
			tl, err := svc.ComputeNarrativeTimeline(ctx, c, 1985, llm.Config{}, nil)

			Convey("Then it falls back", func() {
				So(err, ShouldBeNil)
				So(tl.Strategy, ShouldEqual, curve.StrategyDeterministic)
				So(tl.Notices[0], ShouldContainSubstring, "auth")
			})
		})

		Convey("When a newer request for the same chart arrives", func() {
			var calls atomic.Int32
			entered := make(chan struct{})
			svc := newService(narrative.BackendFunc(func(ctx context.Context, _ narrative.Prompt) (string, error) {
				if calls.Add(1) == 1 {
					close(entered)
					<-ctx.Done()
					return "", ctx.Err()
				}
				return series(testPoints), nil
			}))

			errc := make(chan error, 1)
			go func() {
				_, err := svc.ComputeNarrativeTimeline(ctx, c, 1985, llm.Config{}, nil)
				errc <- err
			}()
			<-entered
			tl, err := svc.ComputeNarrativeTimeline(ctx, c, 1985, llm.Config{}, nil)

			Convey("Then the older one is discarded", func() {
				So(err, ShouldBeNil)
				So(tl.Strategy, ShouldEqual, narrative.StrategyNarrative)
				So(errors.Is(<-errc, service.ErrSuperseded), ShouldBeTrue)
				So(svc.GetStats(ctx)["inflight"], ShouldEqual, 0)
			})
		})

		Convey("When the caller cancels", func() {
			svc := newService(narrative.BackendFunc(func(ctx context.Context, _ narrative.Prompt) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}))
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := svc.ComputeNarrativeTimeline(cctx, c, 1985, llm.Config{}, nil)

			Convey("Then nothing is substituted", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestService_ComputeSeries(t *testing.T) {
	Convey("Given a service and a chart", t, func() {
		svc := newService(failing(narrative.ErrTransport))
		ctx := context.Background()
		c := testChart(21, 1978)

		Convey("Then decades are ordered by age", func() {
			tl, err := svc.ComputeDecadeSeries(ctx, c, 1978)
			So(err, ShouldBeNil)
			So(tl.Kind, ShouldEqual, model.KindDecade)
			So(tl.Points, ShouldNotBeEmpty)
			for i := 1; i < len(tl.Points); i++ {
				So(tl.Points[i].Age, ShouldBeGreaterThan, tl.Points[i-1].Age)
			}
		})

		Convey("Then years start at the requested year", func() {
			tl, err := svc.ComputeYearSeries(ctx, c, 2030)
			So(err, ShouldBeNil)
			So(tl.Kind, ShouldEqual, model.KindYear)
			So(tl.Points[0].Year, ShouldEqual, 2030)
			So(tl.Points[0].Age, ShouldEqual, 2030-1978+1)
		})

		Convey("Then months cover the calendar year", func() {
			tl, err := svc.ComputeMonthSeries(ctx, c, 2030)
			So(err, ShouldBeNil)
			So(tl.Points, ShouldHaveLength, 12)
			So(tl.Points[11].Month, ShouldEqual, 12)
			for _, p := range tl.Points {
				So(p.Valid(), ShouldBeTrue)
			}
		})

		Convey("Then a nil chart is rejected", func() {
			_, err := svc.ComputeMonthSeries(ctx, nil, 2030)
			So(errors.Is(err, curve.ErrInvalidRequest), ShouldBeTrue)
		})
	})
}

func TestService_Charts(t *testing.T) {
	Convey("Given a registered chart", t, func() {
		svc := newService(failing(narrative.ErrTransport))
		ctx := context.Background()
		info, err := svc.RegisterChart(ctx, testChart(3, 1995), 1995)
		So(err, ShouldBeNil)
		So(info.ID, ShouldNotBeEmpty)
		So(info.Fingerprint, ShouldNotBeEmpty)

		Convey("When its timeline is fetched twice", func() {
			a, err := svc.Timeline(ctx, info.ID, "", false, nil)
			So(err, ShouldBeNil)
			b, err := svc.Timeline(ctx, info.ID, curve.StrategyDeterministic, false, nil)
			So(err, ShouldBeNil)

			Convey("Then the stored timeline is served", func() {
				So(b.ID, ShouldEqual, a.ID)
				So(svc.GetStats(ctx)["timelinesStored"], ShouldEqual, 1)
			})

			Convey("Then refresh replaces it", func() {
				c, err := svc.Timeline(ctx, info.ID, "", true, nil)
				So(err, ShouldBeNil)
				So(c.ID, ShouldNotEqual, a.ID)
				d, _ := svc.Timeline(ctx, info.ID, "", false, nil)
				So(d.ID, ShouldEqual, c.ID)
			})
		})

		Convey("When a narrative timeline is asked for", func() {
			tl, err := svc.Timeline(ctx, info.ID, narrative.StrategyNarrative, false, nil)

			Convey("Then the fallback result is stored", func() {
				So(err, ShouldBeNil)
				So(tl.Notices, ShouldNotBeEmpty)
				stored, err := svc.Timeline(ctx, info.ID, "", false, nil)
				So(err, ShouldBeNil)
				So(stored.ID, ShouldEqual, tl.ID)
			})
		})

		Convey("When series are fetched", func() {
			y, err := svc.Series(ctx, info.ID, model.KindYear, 2040, false)
			So(err, ShouldBeNil)
			again, err := svc.Series(ctx, info.ID, model.KindYear, 2040, false)
			So(err, ShouldBeNil)
			m, err := svc.Series(ctx, info.ID, model.KindMonth, 0, false)
			So(err, ShouldBeNil)

			Convey("Then each year is stored separately", func() {
				So(again.ID, ShouldEqual, y.ID)
				So(m.Points[0].Year, ShouldEqual, time.Now().Year())
				other, err := svc.Series(ctx, info.ID, model.KindYear, 2041, false)
				So(err, ShouldBeNil)
				So(other.ID, ShouldNotEqual, y.ID)
			})
		})

		Convey("When the chart is removed", func() {
			_, err := svc.Timeline(ctx, info.ID, "", false, nil)
			So(err, ShouldBeNil)
			So(svc.RemoveChart(ctx, info.ID), ShouldBeNil)

			Convey("Then it and its timelines are gone", func() {
				_, err := svc.ChartInfo(info.ID)
				So(errors.Is(err, service.ErrChartNotFound), ShouldBeTrue)
				So(svc.GetStats(ctx)["timelinesStored"], ShouldEqual, 0)
				So(errors.Is(svc.RemoveChart(ctx, info.ID), service.ErrChartNotFound), ShouldBeTrue)
			})
		})

		Convey("Then unknown charts and strategies are rejected", func() {
			_, err := svc.Timeline(ctx, "nope", "", false, nil)
			So(errors.Is(err, service.ErrChartNotFound), ShouldBeTrue)
			_, err = svc.Timeline(ctx, info.ID, "astral", false, nil)
			So(errors.Is(err, service.ErrUnknownStrategy), ShouldBeTrue)
			_, err = svc.Series(ctx, info.ID, model.KindYear, -4, false)
			So(errors.Is(err, curve.ErrInvalidRequest), ShouldBeTrue)
		})
	})
}
