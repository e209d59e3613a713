package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with defaults", func() {
			So(Init(), ShouldBeNil)
			So(Get(), ShouldNotBeNil)
			So(Sync(), ShouldBeNil)
		})

		Convey("When initialized with an unknown format", func() {
			So(InitWithOptions(Options{Format: "xml"}), ShouldNotBeNil)
		})

		Convey("When initialized with an unknown level", func() {
			So(InitWithOptions(Options{Level: "loud"}), ShouldNotBeNil)
		})
	})
}

func TestLoggerJSONOutput(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWithOptions(Options{Level: "debug", Format: FormatJSON, Writer: &buf}), ShouldBeNil)
		defer func() { _ = Init() }()

		Convey("When a named logger writes structured fields", func() {
			Named("curve").Info(context.Background(), "timeline generated",
				String("strategy", "deterministic"),
				Int("points", 100),
				Float64("score", 61.5),
				Bool("fallback", false),
				Duration("took", 5*time.Millisecond),
				Error(errors.New("boom")),
			)

			Convey("Then one JSON record carries every field", func() {
				var rec map[string]any
				So(json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec), ShouldBeNil)
				So(rec["msg"], ShouldEqual, "timeline generated")
				So(rec["logger"], ShouldEqual, "curve")
				So(rec["strategy"], ShouldEqual, "deterministic")
				So(rec["points"], ShouldEqual, 100.0)
				So(rec["fallback"], ShouldEqual, false)
				So(rec["error"], ShouldEqual, "boom")
				So(rec["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level is raised", func() {
			So(SetLevelString("error"), ShouldBeNil)
			Get().Info(context.Background(), "hidden")
			Get().Error(context.Background(), "shown")

			Convey("Then lower records are dropped", func() {
				So(strings.Contains(buf.String(), "hidden"), ShouldBeFalse)
				So(strings.Contains(buf.String(), "shown"), ShouldBeTrue)
			})
		})
	})
}

func TestNop(t *testing.T) {
	Convey("Given the no-op logger", t, func() {
		l := Nop().Named("x")
		So(func() { l.Info(context.Background(), "ignored", Any("k", 1)) }, ShouldNotPanic)
	})
}
