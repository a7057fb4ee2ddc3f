package extractor_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/adapters/extractor"
	"github.com/okian/rollcall/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type slowExtractor struct{ delay time.Duration }

func (s slowExtractor) Extract(ctx context.Context, _ model.Frame) ([]model.Face, error) {
	select {
	case <-time.After(s.delay):
		return []model.Face{{Descriptor: model.Descriptor{1}}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestPrecomputed(t *testing.T) {
	Convey("Given the precomputed extractor", t, func() {
		ctx := context.Background()

		Convey("When the frame carries descriptors", func() {
			desc := model.Descriptor{0.1, 0.2}
			frame := model.Frame{Faces: []model.Face{{Descriptor: desc, Region: model.Region{X: 4}}}}
			faces, err := extractor.Precomputed{}.Extract(ctx, frame)

			Convey("Then they are returned as copies", func() {
				So(err, ShouldBeNil)
				So(faces, ShouldHaveLength, 1)
				So(faces[0].Region.X, ShouldEqual, 4)
				faces[0].Descriptor[0] = 9
				So(desc[0], ShouldEqual, 0.1)
			})
		})

		Convey("When the frame is empty", func() {
			faces, err := extractor.Precomputed{}.Extract(ctx, model.Frame{})
			So(err, ShouldBeNil)
			So(faces, ShouldBeEmpty)
		})

		Convey("When the frame only has an image", func() {
			_, err := extractor.Precomputed{}.Extract(ctx, model.Frame{Image: []byte{0xff}})
			So(errors.Is(err, extractor.ErrImageUnsupported), ShouldBeTrue)
		})
	})
}

func TestTimed(t *testing.T) {
	Convey("Given a timed extractor", t, func() {
		ctx := context.Background()

		Convey("When the model answers in time", func() {
			faces, err := extractor.WithTimeout(slowExtractor{delay: time.Millisecond}, time.Second).Extract(ctx, model.Frame{})
			So(err, ShouldBeNil)
			So(faces, ShouldHaveLength, 1)
		})

		Convey("When the model is too slow", func() {
			_, err := extractor.WithTimeout(slowExtractor{delay: time.Second}, 10*time.Millisecond).Extract(ctx, model.Frame{})

			Convey("Then a timeout error is returned", func() {
				So(errors.Is(err, extractor.ErrTimeout), ShouldBeTrue)
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}

func TestRemote(t *testing.T) {
	Convey("Given an embedding service", t, func() {
		ctx := context.Background()
		var gotBody []byte
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			if string(gotBody) == "broken" {
				http.Error(w, "model crashed", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"faces":[{"descriptor":[0.5,0.25],"box":{"x":1,"y":2,"width":30,"height":40}}]}`))
		}))
		defer srv.Close()
		remote := extractor.NewRemote(srv.URL, extractor.WithHTTPClient(srv.Client()))

		Convey("When an image is posted", func() {
			faces, err := remote.Extract(ctx, model.Frame{Image: []byte("jpeg")})

			Convey("Then descriptors and boxes are decoded", func() {
				So(err, ShouldBeNil)
				So(string(gotBody), ShouldEqual, "jpeg")
				So(faces, ShouldHaveLength, 1)
				So(faces[0].Descriptor, ShouldResemble, model.Descriptor{0.5, 0.25})
				So(faces[0].Region, ShouldResemble, model.Region{X: 1, Y: 2, Width: 30, Height: 40})
			})
		})

		Convey("When the service fails", func() {
			_, err := remote.Extract(ctx, model.Frame{Image: []byte("broken")})
			So(errors.Is(err, extractor.ErrRemote), ShouldBeTrue)
		})

		Convey("When chained behind precomputed descriptors", func() {
			chain := extractor.Chain{Server: remote}
			faces, err := chain.Extract(ctx, model.Frame{Faces: []model.Face{{Descriptor: model.Descriptor{1, 1}}}})

			Convey("Then the service is not called", func() {
				So(err, ShouldBeNil)
				So(gotBody, ShouldBeNil)
				So(faces[0].Descriptor, ShouldResemble, model.Descriptor{1, 1})
			})
		})
	})
}
