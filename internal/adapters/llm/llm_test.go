package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/okian/kline/internal/adapters/llm"
	"github.com/okian/kline/internal/adapters/narrative"
	. "github.com/smartystreets/goconvey/convey"
)

func TestConfig_Resolve(t *testing.T) {
	Convey("Given provider configs", t, func() {
		Convey("When a known provider has a key", func() {
			cfg, err := llm.Config{Provider: " Kimi ", APIKey: "k"}.Resolve()

			Convey("Then its defaults are filled", func() {
				So(err, ShouldBeNil)
				So(cfg.Provider, ShouldEqual, llm.ProviderKimi)
				So(cfg.BaseURL, ShouldEqual, "https://api.moonshot.cn/v1")
				So(cfg.Model, ShouldEqual, "kimi-k2-0905-preview")
			})
		})

		Convey("When overrides are given", func() {
			cfg, err := llm.Config{Provider: "deepseek", APIKey: "k", BaseURL: "http://local/v1/", Model: "m"}.Resolve()
			So(err, ShouldBeNil)
			So(cfg.BaseURL, ShouldEqual, "http://local/v1")
			So(cfg.Model, ShouldEqual, "m")
		})

		Convey("When the provider is unknown", func() {
			_, err := llm.Config{Provider: "oracle", APIKey: "k"}.Resolve()
			So(errors.Is(err, llm.ErrUnknownProvider), ShouldBeTrue)
		})

		Convey("When custom has no base URL", func() {
			_, err := llm.Config{Provider: "custom", APIKey: "k", Model: "m"}.Resolve()
			So(errors.Is(err, llm.ErrIncompleteConfig), ShouldBeTrue)
		})

		Convey("When the key is missing", func() {
			_, err := llm.Config{Provider: "claude"}.Resolve()
			So(errors.Is(err, narrative.ErrAuth), ShouldBeTrue)
		})

		Convey("Then every listed provider is known", func() {
			for _, p := range llm.Providers() {
				_, err := llm.Config{Provider: p, APIKey: "k", BaseURL: "http://x", Model: "m"}.Resolve()
				So(err, ShouldBeNil)
			}
		})
	})
}

func TestChat(t *testing.T) {
	Convey("Given an OpenAI-compatible server", t, func() {
		var gotAuth, gotPath string
		var gotBody map[string]any
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotPath = r.URL.Path
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &gotBody)
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"[{\"age\":1}]"}}]}`)
		}))
		defer srv.Close()
		cfg, err := llm.Config{Provider: "custom", APIKey: "secret", BaseURL: srv.URL + "/v1", Model: "m1"}.Resolve()
		So(err, ShouldBeNil)
		backend := llm.NewChat(cfg, srv.Client())

		Convey("When a prompt is completed", func() {
			out, err := backend.Complete(context.Background(), narrative.Prompt{System: "sys", User: "usr", MaxTokens: 10})

			Convey("Then the request follows the protocol", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, `[{"age":1}]`)
				So(gotAuth, ShouldEqual, "Bearer secret")
				So(gotPath, ShouldEqual, "/v1/chat/completions")
				So(gotBody["model"], ShouldEqual, "m1")
				So(gotBody["max_tokens"], ShouldEqual, 10.0)
				So(gotBody["messages"], ShouldHaveLength, 2)
			})
		})

		Convey("When the server rejects the key", func() {
			status = http.StatusUnauthorized
			_, err := backend.Complete(context.Background(), narrative.Prompt{User: "u"})
			So(errors.Is(err, narrative.ErrAuth), ShouldBeTrue)
		})

		Convey("When the server fails", func() {
			status = http.StatusBadGateway
			_, err := backend.Complete(context.Background(), narrative.Prompt{User: "u"})
			So(errors.Is(err, narrative.ErrTransport), ShouldBeTrue)
		})
	})

	Convey("Given an unreachable endpoint", t, func() {
		cfg, _ := llm.Config{Provider: "custom", APIKey: "k", BaseURL: "http://127.0.0.1:1", Model: "m"}.Resolve()
		_, err := llm.NewChat(cfg, nil).Complete(context.Background(), narrative.Prompt{User: "u"})

		Convey("Then it is a transport error", func() {
			So(errors.Is(err, narrative.ErrTransport), ShouldBeTrue)
		})
	})
}

func TestMessages(t *testing.T) {
	Convey("Given a messages server", t, func() {
		var gotKey, gotVersion, gotPath string
		var gotBody map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("x-api-key")
			gotVersion = r.Header.Get("anthropic-version")
			gotPath = r.URL.Path
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &gotBody)
			_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"hello "},{"type":"text","text":"world"}]}`)
		}))
		defer srv.Close()
		cfg, err := llm.Config{Provider: "claude", APIKey: "ak", BaseURL: srv.URL + "/v1"}.Resolve()
		So(err, ShouldBeNil)

		Convey("When a prompt is completed", func() {
			out, err := llm.NewMessages(cfg, srv.Client()).Complete(context.Background(), narrative.Prompt{System: "s", User: "u"})

			Convey("Then text blocks are joined and headers set", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, "hello world")
				So(gotKey, ShouldEqual, "ak")
				So(gotVersion, ShouldEqual, "2023-06-01")
				So(gotPath, ShouldEqual, "/v1/messages")
				So(gotBody["system"], ShouldEqual, "s")
				So(gotBody["model"], ShouldEqual, "claude-opus-4-5-20251124")
			})
		})
	})
}

func TestGemini(t *testing.T) {
	Convey("Given a generateContent server", t, func() {
		var gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"[]"}]}}]}`)
		}))
		defer srv.Close()
		cfg, err := llm.Config{Provider: "gemini", APIKey: "gk", BaseURL: srv.URL}.Resolve()
		So(err, ShouldBeNil)
		backend, err := llm.NewGemini(cfg)
		So(err, ShouldBeNil)

		Convey("When a prompt is completed", func() {
			out, err := backend.Complete(context.Background(), narrative.Prompt{System: "s", User: "u", JSON: true})

			Convey("Then the candidate text is returned", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, "[]")
				So(gotPath, ShouldContainSubstring, "gemini-3.0-flash:generateContent")
			})
		})
	})
}

func TestGuard(t *testing.T) {
	Convey("Given a guard around a failing backend", t, func() {
		var calls atomic.Int32
		failing := narrative.BackendFunc(func(context.Context, narrative.Prompt) (string, error) {
			calls.Add(1)
			return "", narrative.ErrTransport
		})
		g := llm.NewGuard(failing, "test", llm.WithBreakerThreshold(2), llm.WithBreakerCooldown(time.Hour))

		Convey("When it fails past the threshold", func() {
			for i := 0; i < 2; i++ {
				_, _ = g.Complete(context.Background(), narrative.Prompt{})
			}
			_, err := g.Complete(context.Background(), narrative.Prompt{})

			Convey("Then the breaker opens and short-circuits", func() {
				So(g.State(), ShouldEqual, gobreaker.StateOpen)
				So(calls.Load(), ShouldEqual, 2)
				So(errors.Is(err, narrative.ErrTransport), ShouldBeTrue)
				So(errors.Is(err, gobreaker.ErrOpenState), ShouldBeTrue)
			})
		})
	})

	Convey("Given a guard around a backend with unparseable answers", t, func() {
		bad := narrative.BackendFunc(func(context.Context, narrative.Prompt) (string, error) {
			return "", narrative.ErrParse
		})
		g := llm.NewGuard(bad, "parse", llm.WithBreakerThreshold(1))

		Convey("Then parse failures do not open the breaker", func() {
			for i := 0; i < 3; i++ {
				_, err := g.Complete(context.Background(), narrative.Prompt{})
				So(errors.Is(err, narrative.ErrParse), ShouldBeTrue)
			}
			So(g.State(), ShouldEqual, gobreaker.StateClosed)
		})
	})

	Convey("Given a slow backend and a short timeout", t, func() {
		slow := narrative.BackendFunc(func(ctx context.Context, _ narrative.Prompt) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
		g := llm.NewGuard(slow, "slow", llm.WithTimeout(20*time.Millisecond))

		Convey("Then the request ends as a backend timeout", func() {
			_, err := g.Complete(context.Background(), narrative.Prompt{})
			So(errors.Is(err, narrative.ErrTimeout), ShouldBeTrue)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(narrative.Reason(err), ShouldEqual, "timeout")
		})

		Convey("Then a caller that gives up first is reported as cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(time.Millisecond, cancel)
			long := llm.NewGuard(slow, "slow", llm.WithTimeout(time.Minute))
			_, err := long.Complete(ctx, narrative.Prompt{})
			So(errors.Is(err, narrative.ErrTimeout), ShouldBeFalse)
			So(narrative.Reason(err), ShouldEqual, "cancelled")
		})
	})

	Convey("Given a rate limited guard and a cancelled caller", t, func() {
		ok := narrative.BackendFunc(func(context.Context, narrative.Prompt) (string, error) { return "ok", nil })
		g := llm.NewGuard(ok, "limited", llm.WithRateLimit(0.001, 1))
		out, err := g.Complete(context.Background(), narrative.Prompt{})
		So(err, ShouldBeNil)
		So(out, ShouldEqual, "ok")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = g.Complete(ctx, narrative.Prompt{})

		Convey("Then the wait is abandoned", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestNew(t *testing.T) {
	Convey("Given a config for a custom endpoint", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"done"}}]}`)
		}))
		defer srv.Close()
		g, err := llm.New(llm.Config{Provider: "custom", APIKey: "k", BaseURL: srv.URL, Model: "m", RateLimit: 100},
			llm.WithHTTPClient(srv.Client()))
		So(err, ShouldBeNil)

		Convey("Then the guarded backend completes", func() {
			out, err := g.Complete(context.Background(), narrative.Prompt{User: "u"})
			So(err, ShouldBeNil)
			So(strings.TrimSpace(out), ShouldEqual, "done")
			So(g.Provider(), ShouldEqual, llm.ProviderCustom)
		})
	})
}
