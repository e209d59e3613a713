package types_test

import (
	"testing"

	"github.com/okian/kline/internal/domain/model"
	types "github.com/okian/kline/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAnnotationJob(t *testing.T) {
	Convey("Given a stored timeline", t, func() {
		tl := &model.Timeline{ID: "tl-1", Kind: model.KindYear}

		Convey("When jobs are created for its points", func() {
			a := types.NewAnnotationJob("c1", tl, 2030, 2)
			b := types.NewAnnotationJob("c1", tl, 2030, 2)
			c := types.NewAnnotationJob("c1", tl, 2030, 3)

			Convey("Then each job has its own ID", func() {
				So(a.ID, ShouldNotBeEmpty)
				So(a.ID, ShouldNotEqual, b.ID)
				So(a.Kind, ShouldEqual, model.KindYear)
				So(a.EnqueuedAt.IsZero(), ShouldBeFalse)
			})

			Convey("Then the same point shares a dedupe key", func() {
				So(a.DedupeKey(), ShouldEqual, "tl-1#2")
				So(a.DedupeKey(), ShouldEqual, b.DedupeKey())
				So(a.DedupeKey(), ShouldNotEqual, c.DedupeKey())
			})
		})

		Convey("When a newer generation replaces it", func() {
			newer := &model.Timeline{ID: "tl-2", Kind: model.KindYear}

			Convey("Then its points are annotated again", func() {
				So(types.NewAnnotationJob("c1", newer, 2030, 2).DedupeKey(),
					ShouldNotEqual, types.NewAnnotationJob("c1", tl, 2030, 2).DedupeKey())
			})
		})
	})
}
