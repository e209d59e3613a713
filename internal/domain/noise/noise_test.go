package noise_test

import (
	"testing"

	"github.com/okian/kline/internal/domain/noise"
	. "github.com/smartystreets/goconvey/convey"
)

func draw(s noise.Source, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Float64()
	}
	return out
}

func TestFactories(t *testing.T) {
	Convey("Given a seeded factory", t, func() {
		f := noise.Seeded(42)

		Convey("Then every source replays the same sequence", func() {
			So(draw(f(), 20), ShouldResemble, draw(f(), 20))
		})

		Convey("Then another seed diverges", func() {
			So(draw(noise.Seeded(43)(), 20), ShouldNotResemble, draw(f(), 20))
		})
	})

	Convey("Given the flat factory", t, func() {
		s := noise.Flat()()

		Convey("Then symmetric perturbations vanish", func() {
			So(noise.Symmetric(s, 5), ShouldEqual, 0)
			So(noise.Uniform(s, 2, 4), ShouldEqual, 3)
		})
	})

	Convey("Given an entropy source", t, func() {
		s := noise.Entropy()()

		Convey("Then draws stay inside their bounds", func() {
			for range 1000 {
				So(noise.Uniform(s, -1, 3), ShouldBeBetweenOrEqual, -1, 3)
				v := noise.Symmetric(s, 0.5)
				So(v, ShouldBeGreaterThanOrEqualTo, -0.5)
				So(v, ShouldBeLessThan, 0.5)
			}
		})

		Convey("Then degenerate bounds collapse", func() {
			So(noise.Uniform(s, 2, 2), ShouldEqual, 2)
			So(noise.Uniform(s, 3, 1), ShouldEqual, 3)
			So(noise.Symmetric(s, 0), ShouldEqual, 0)
			So(noise.Symmetric(s, -1), ShouldEqual, 0)
		})
	})
}
