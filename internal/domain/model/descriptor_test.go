package model_test

import (
	"errors"
	"math"
	"testing"

	model "github.com/okian/rollcall/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestDescriptor(t *testing.T) {
	convey.Convey("Given descriptors", t, func() {
		convey.Convey("When validating", func() {
			convey.So(model.Descriptor{0.1, 0.2}.Validate(), convey.ShouldBeNil)
			convey.So(errors.Is(model.Descriptor{}.Validate(), model.ErrInvalidDescriptor), convey.ShouldBeTrue)
			convey.So(errors.Is(model.Descriptor{1, math.NaN()}.Validate(), model.ErrInvalidDescriptor), convey.ShouldBeTrue)
			convey.So(errors.Is(model.Descriptor{math.Inf(1)}.Validate(), model.ErrInvalidDescriptor), convey.ShouldBeTrue)
		})

		convey.Convey("When cloning", func() {
			d := model.Descriptor{1, 2, 3}
			c := d.Clone()
			c[0] = 42

			convey.Convey("Then the original is untouched", func() {
				convey.So(d[0], convey.ShouldEqual, 1)
				convey.So(c.Len(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When averaging four enrollment samples", func() {
			mean, err := model.Mean([]model.Descriptor{{1, 0}, {1, 0.1}, {0.9, 0}, {1, 0}})

			convey.Convey("Then the mean is coordinate-wise", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(mean[0], convey.ShouldAlmostEqual, 0.975, 1e-12)
				convey.So(mean[1], convey.ShouldAlmostEqual, 0.025, 1e-12)
			})
		})

		convey.Convey("When averaging samples of different lengths", func() {
			_, err := model.Mean([]model.Descriptor{{1, 0}, {1, 0, 0}})

			convey.Convey("Then it fails as an invalid descriptor", func() {
				convey.So(errors.Is(err, model.ErrInvalidDescriptor), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When averaging nothing", func() {
			_, err := model.Mean(nil)
			convey.So(errors.Is(err, model.ErrInvalidDescriptor), convey.ShouldBeTrue)
		})
	})
}

func TestFaceErrors(t *testing.T) {
	convey.Convey("Given the multiple-faces error", t, func() {
		convey.Convey("Then it is a kind of no-face error", func() {
			convey.So(errors.Is(model.ErrMultipleFaces, model.ErrNoFaceDetected), convey.ShouldBeTrue)
			convey.So(errors.Is(model.ErrNoFaceDetected, model.ErrMultipleFaces), convey.ShouldBeFalse)
		})
	})
}
