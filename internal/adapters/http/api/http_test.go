package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/adapters/http/api"
	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type harness struct {
	svc *service.Service
	mux *http.ServeMux
}

func newHarness(opts ...api.Option) *harness {
	svc := service.New(
		service.WithPoses([]string{"center", "left"}),
		service.WithMatchThreshold(0.5),
		service.WithWorkerCount(1),
	)
	So(svc.Start(context.Background()), ShouldBeNil)
	mux := http.NewServeMux()
	api.NewServer(svc, opts...).Register(context.Background(), mux)
	return &harness{svc: svc, mux: mux}
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			So(json.NewEncoder(&buf).Encode(body), ShouldBeNil)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

func face(d ...float64) map[string]any {
	return map[string]any{"faces": []map[string]any{{"descriptor": d}}}
}

// enrollOverHTTP runs a full two-pose session and returns the new identity id.
func (h *harness) enrollOverHTTP(name string, d ...float64) int64 {
	w := h.do(http.MethodPost, "/enrollments", map[string]any{"display_name": name})
	So(w.Code, ShouldEqual, http.StatusCreated)
	sessionID := decode[map[string]any](w)["session_id"].(string)

	for i := 0; i < 2; i++ {
		w = h.do(http.MethodPost, "/enrollments/"+sessionID+"/frames", face(d...))
		So(w.Code, ShouldEqual, http.StatusOK)
	}
	w = h.do(http.MethodPost, "/enrollments/"+sessionID+"/finalize", nil)
	So(w.Code, ShouldEqual, http.StatusCreated)
	return int64(decode[map[string]any](w)["id"].(float64))
}

func TestEnrollmentRoutes(t *testing.T) {
	Convey("Given the API over a running service", t, func() {
		h := newHarness()
		defer h.svc.Stop()

		Convey("When a session is started", func() {
			w := h.do(http.MethodPost, "/enrollments", map[string]any{"display_name": "Ada", "external_ref": "R-1"})
			So(w.Code, ShouldEqual, http.StatusCreated)
			view := decode[map[string]any](w)
			sessionID := view["session_id"].(string)

			Convey("Then it reports the first pose", func() {
				So(view["current_pose"], ShouldEqual, "center")
				So(view["total"], ShouldEqual, 2.0)
			})

			Convey("And a frame without a face is a 422", func() {
				w := h.do(http.MethodPost, "/enrollments/"+sessionID+"/frames", map[string]any{"faces": []any{}})
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(decode[map[string]any](w)["code"], ShouldEqual, "no_face")
			})

			Convey("And finalizing early is a 409", func() {
				w := h.do(http.MethodPost, "/enrollments/"+sessionID+"/finalize", nil)
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode[map[string]any](w)["code"], ShouldEqual, "session_incomplete")
			})

			Convey("And a malformed descriptor is a 400", func() {
				_ = h.do(http.MethodPost, "/enrollments/"+sessionID+"/frames", face(1, 0))
				w := h.do(http.MethodPost, "/enrollments/"+sessionID+"/frames", face(1, 0, 0))
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode[map[string]any](w)["code"], ShouldEqual, "invalid_descriptor")
			})

			Convey("And cancelling removes it", func() {
				So(h.do(http.MethodDelete, "/enrollments/"+sessionID, nil).Code, ShouldEqual, http.StatusNoContent)
				w := h.do(http.MethodDelete, "/enrollments/"+sessionID, nil)
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decode[map[string]any](w)["code"], ShouldEqual, "session_not_found")
			})
		})

		Convey("When the display name is missing", func() {
			w := h.do(http.MethodPost, "/enrollments", map[string]any{})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the body is not JSON", func() {
			w := h.do(http.MethodPost, "/enrollments", "{nope")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[map[string]any](w)["code"], ShouldEqual, "bad_request")
		})

		Convey("When a full session is finalized", func() {
			id := h.enrollOverHTTP("Ada", 0, 0)

			Convey("Then the identity is listed without its descriptor", func() {
				w := h.do(http.MethodGet, "/identities", nil)
				So(w.Code, ShouldEqual, http.StatusOK)
				ids := decode[[]map[string]any](w)
				So(ids, ShouldHaveLength, 1)
				So(ids[0]["display_name"], ShouldEqual, "Ada")
				So(ids[0]["dimension"], ShouldEqual, 2.0)
				So(ids[0], ShouldNotContainKey, "descriptor")

				w = h.do(http.MethodGet, fmt.Sprintf("/identities/%d", id), nil)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And it can be deleted once", func() {
				So(h.do(http.MethodDelete, fmt.Sprintf("/identities/%d", id), nil).Code, ShouldEqual, http.StatusNoContent)
				So(h.do(http.MethodDelete, fmt.Sprintf("/identities/%d", id), nil).Code, ShouldEqual, http.StatusNotFound)
				So(h.do(http.MethodGet, fmt.Sprintf("/identities/%d", id), nil).Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When an identity id is not a number", func() {
			w := h.do(http.MethodGet, "/identities/abc", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRecognitionRoutes(t *testing.T) {
	Convey("Given an API with one enrolled identity", t, func() {
		h := newHarness()
		defer h.svc.Stop()
		id := h.enrollOverHTTP("Ada", 0, 0)

		Convey("When a matching frame is recognized", func() {
			body := face(0, 0.1)
			body["source"] = "gate-2"
			w := h.do(http.MethodPost, "/recognize", body)
			So(w.Code, ShouldEqual, http.StatusOK)
			report := decode[map[string]any](w)
			faces := report["faces"].([]any)
			first := faces[0].(map[string]any)

			Convey("Then the face is recognized and marked", func() {
				So(report["outcome"], ShouldEqual, "recognized")
				So(first["identity_id"], ShouldEqual, float64(id))
				So(first["marked"], ShouldBeTrue)
				So(first["distance"], ShouldAlmostEqual, 0.1, 1e-9)
				record := first["record"].(map[string]any)
				So(record["location"], ShouldEqual, "gate-2")
			})

			Convey("And a second look is deduplicated", func() {
				w := h.do(http.MethodPost, "/recognize", face(0, 0.1))
				f := decode[map[string]any](w)["faces"].([]any)[0].(map[string]any)
				So(f["deduplicated"], ShouldBeTrue)
				So(f["marked"], ShouldBeFalse)
			})
		})

		Convey("When a frame has no face", func() {
			w := h.do(http.MethodPost, "/recognize", map[string]any{})
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[map[string]any](w)["outcome"], ShouldEqual, "no_face")
		})

		Convey("When a stranger is seen", func() {
			w := h.do(http.MethodPost, "/recognize", face(9, 9))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[map[string]any](w)["outcome"], ShouldEqual, "unrecognized")
		})

		Convey("When the probe length differs from the gallery", func() {
			w := h.do(http.MethodPost, "/recognize", face(0, 0.1, 0))

			Convey("Then the request fails as an invalid descriptor", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode[map[string]any](w)["code"], ShouldEqual, "invalid_descriptor")
			})
		})

		Convey("When only an image is sent and no extractor is configured", func() {
			w := h.do(http.MethodPost, "/recognize", map[string]any{"image": []byte("jpeg")})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[map[string]any](w)["code"], ShouldEqual, "image_unsupported")
		})

		Convey("When a frame is queued twice", func() {
			body := face(0, 0.2)
			body["id"] = "frame-9"
			first := h.do(http.MethodPost, "/frames", body)
			second := h.do(http.MethodPost, "/frames", body)

			Convey("Then the replay is acknowledged as a duplicate", func() {
				So(first.Code, ShouldEqual, http.StatusAccepted)
				So(decode[map[string]any](first)["status"], ShouldEqual, "accepted")
				So(second.Code, ShouldEqual, http.StatusOK)
				So(decode[map[string]any](second)["duplicate"], ShouldBeTrue)
			})
		})
	})

	Convey("Given a rate limited API", t, func() {
		h := newHarness(api.WithRateLimit(1, 2))
		defer h.svc.Stop()

		Convey("When requests exceed the burst", func() {
			codes := make([]int, 0, 3)
			for i := 0; i < 3; i++ {
				codes = append(codes, h.do(http.MethodPost, "/recognize", map[string]any{}).Code)
			}

			Convey("Then the extra request is refused", func() {
				So(codes[:2], ShouldResemble, []int{http.StatusOK, http.StatusOK})
				So(codes[2], ShouldEqual, http.StatusTooManyRequests)
			})

			Convey("And other routes are unaffected", func() {
				So(h.do(http.MethodGet, "/attendance", nil).Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestAttendanceRoutes(t *testing.T) {
	Convey("Given an API with two enrolled identities", t, func() {
		h := newHarness()
		defer h.svc.Stop()
		ada := h.enrollOverHTTP("Ada", 0, 0)
		bo := h.enrollOverHTTP("Bo", 10, 10)
		at := time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)

		Convey("When attendance is marked by hand", func() {
			w := h.do(http.MethodPost, "/attendance", map[string]any{"identity_id": ada, "location": "desk", "timestamp": at})
			So(w.Code, ShouldEqual, http.StatusCreated)
			rec := decode[model.AttendanceRecord](w)

			Convey("Then it is listed", func() {
				So(rec.Manual, ShouldBeTrue)
				So(rec.Timestamp.Equal(at), ShouldBeTrue)

				all := decode[[]model.AttendanceRecord](h.do(http.MethodGet, "/attendance", nil))
				So(all, ShouldHaveLength, 1)
				mine := decode[[]model.AttendanceRecord](h.do(http.MethodGet, fmt.Sprintf("/attendance?identity_id=%d", bo), nil))
				So(mine, ShouldBeEmpty)
			})

			Convey("And it can be cleared per identity", func() {
				w := h.do(http.MethodDelete, fmt.Sprintf("/attendance/%d", ada), nil)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[map[string]int](w)["removed"], ShouldEqual, 1)
			})
		})

		Convey("When every record is cleared", func() {
			_ = h.do(http.MethodPost, "/attendance", map[string]any{"identity_id": ada})
			_ = h.do(http.MethodPost, "/attendance", map[string]any{"identity_id": bo})
			w := h.do(http.MethodDelete, "/attendance", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[map[string]int](w)["removed"], ShouldEqual, 2)
		})

		Convey("When the identity is unknown", func() {
			w := h.do(http.MethodPost, "/attendance", map[string]any{"identity_id": 77})
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the filter is malformed", func() {
			w := h.do(http.MethodGet, "/attendance?identity_id=x", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestOperationalRoutes(t *testing.T) {
	Convey("Given the API", t, func() {
		h := newHarness()
		defer h.svc.Stop()

		Convey("When stats are requested", func() {
			w := h.do(http.MethodGet, "/stats", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[map[string]any](w)["started"], ShouldBeTrue)
		})

		Convey("When metrics are scraped", func() {
			_ = h.do(http.MethodGet, "/stats", nil)
			w := h.do(http.MethodGet, "/healthz", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "rollcall_")
		})

		Convey("When the service has stopped", func() {
			h.svc.Stop()
			w := h.do(http.MethodGet, "/identities", nil)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(strings.Contains(w.Body.String(), "unavailable"), ShouldBeTrue)

			w = h.do(http.MethodGet, "/stats", nil)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decode[map[string]any](w)["started"], ShouldBeFalse)
		})

		Convey("When a route does not exist for the method", func() {
			w := h.do(http.MethodPut, "/attendance", nil)
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}
