package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/kline/internal/adapters/http/api"
	"github.com/okian/kline/internal/adapters/llm"
	"github.com/okian/kline/internal/adapters/narrative"
	service "github.com/okian/kline/internal/app"
	"github.com/okian/kline/internal/domain/curve"
	"github.com/okian/kline/internal/domain/model"
	"github.com/okian/kline/internal/domain/noise"
	"github.com/okian/kline/internal/domain/scoring"
	types "github.com/okian/kline/internal/domain/types"
	"github.com/okian/kline/internal/testcharts"
	"github.com/okian/kline/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func newMux() (*http.ServeMux, *service.Service) {
	p := scoring.DefaultCurveParams()
	p.Points = 12
	synth := curve.NewSynthesizer(
		curve.WithModel(scoring.New(scoring.WithCurveParams(p))),
		curve.WithNoise(noise.Seeded(1)),
		curve.WithLogger(logger.Nop()),
	)
	svc := service.New(
		service.WithSynthesizer(synth),
		service.WithLogger(logger.Nop()),
		service.WithWorkerCount(1),
		service.WithBackendFactory(func(llm.Config) (narrative.Backend, error) {
			return narrative.BackendFunc(func(context.Context, narrative.Prompt) (string, error) {
				return "", narrative.ErrTransport
			}), nil
		}),
	)
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(mux)
	return mux, svc
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func register(mux *http.ServeMux) types.ChartInfo {
	var buf bytes.Buffer
	So(json.NewEncoder(&buf).Encode(testcharts.New(4).Fixture(1991)), ShouldBeNil)
	w := do(mux, http.MethodPost, "/v1/charts", buf.String())
	So(w.Code, ShouldEqual, http.StatusCreated)
	var info types.ChartInfo
	So(json.Unmarshal(w.Body.Bytes(), &info), ShouldBeNil)
	return info
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux, _ := newMux()

		Convey("Then health, stats and metrics respond", func() {
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "decadeCache")
			w = do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("Then unknown routes are not found", func() {
			So(do(mux, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestCharts(t *testing.T) {
	Convey("Given an API server", t, func() {
		mux, _ := newMux()

		Convey("When a chart is registered", func() {
			info := register(mux)

			Convey("Then it can be read and deleted", func() {
				So(info.ID, ShouldNotBeEmpty)
				So(info.BirthYear, ShouldEqual, 1991)
				So(do(mux, http.MethodGet, "/v1/charts/"+info.ID, "").Code, ShouldEqual, http.StatusOK)
				So(do(mux, http.MethodDelete, "/v1/charts/"+info.ID, "").Code, ShouldEqual, http.StatusNoContent)
				So(do(mux, http.MethodGet, "/v1/charts/"+info.ID, "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("Then malformed charts are rejected", func() {
			So(do(mux, http.MethodPost, "/v1/charts", "{").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/v1/charts", `{"birth_year": 1990, "palaces": []}`).Code,
				ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestTimelines(t *testing.T) {
	Convey("Given a registered chart", t, func() {
		mux, _ := newMux()
		info := register(mux)
		base := "/v1/charts/" + info.ID

		Convey("When the lifetime timeline is fetched", func() {
			w := do(mux, http.MethodGet, base+"/timeline", "")
			var tl model.Timeline
			So(json.Unmarshal(w.Body.Bytes(), &tl), ShouldBeNil)

			Convey("Then it is the deterministic series", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(tl.Points, ShouldHaveLength, 12)
				So(tl.Strategy, ShouldEqual, curve.StrategyDeterministic)
				So(tl.Validate(), ShouldBeNil)
			})
		})

		Convey("When a narrative timeline is streamed", func() {
			w := do(mux, http.MethodGet, base+"/timeline?strategy=narrative&stream=true", "")

			Convey("Then progress precedes the fallback timeline", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/x-ndjson")
				var lines []map[string]json.RawMessage
				sc := bufio.NewScanner(w.Body)
				sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
				for sc.Scan() {
					var ev map[string]json.RawMessage
					So(json.Unmarshal(sc.Bytes(), &ev), ShouldBeNil)
					lines = append(lines, ev)
				}
				So(len(lines), ShouldBeGreaterThan, 1)
				So(lines[0], ShouldContainKey, "progress")
				last := lines[len(lines)-1]
				So(last, ShouldContainKey, "timeline")
				var tl model.Timeline
				So(json.Unmarshal(last["timeline"], &tl), ShouldBeNil)
				So(tl.Notices, ShouldNotBeEmpty)
			})
		})

		Convey("When series are fetched", func() {
			So(do(mux, http.MethodGet, base+"/decades", "").Code, ShouldEqual, http.StatusOK)
			w := do(mux, http.MethodGet, base+"/years?start=2035", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var years model.Timeline
			So(json.Unmarshal(w.Body.Bytes(), &years), ShouldBeNil)
			So(years.Points[0].Year, ShouldEqual, 2035)

			w = do(mux, http.MethodGet, base+"/months?year=2035", "")
			var months model.Timeline
			So(json.Unmarshal(w.Body.Bytes(), &months), ShouldBeNil)
			So(months.Points, ShouldHaveLength, 12)
		})

		Convey("Then bad parameters are rejected", func() {
			So(do(mux, http.MethodGet, base+"/years?start=soon", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, base+"/timeline?strategy=astral", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, base+"/timeline?refresh=maybe", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/v1/charts/missing/decades", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestNarratives(t *testing.T) {
	Convey("Given a started service with a registered chart", t, func() {
		mux, svc := newMux()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer func() {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			_ = svc.Stop(stopCtx)
		}()
		info := register(mux)
		base := "/v1/charts/" + info.ID

		Convey("When narratives are requested", func() {
			w := do(mux, http.MethodPost, base+"/narratives", `{"kind": "lifetime", "indices": [0, 1]}`)

			Convey("Then they are accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"queued":2`)
			})
		})

		Convey("Then invalid requests are rejected", func() {
			So(do(mux, http.MethodPost, base+"/narratives", `{"kind": "weekly"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, base+"/narratives", `{"indices": [99]}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, base+"/narratives", `not json`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}
