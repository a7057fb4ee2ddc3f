// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/domain/capture"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/recognition"
)

// maxBodyBytes bounds request bodies; frames may carry an encoded image.
const maxBodyBytes = 8 << 20

// IdentityDependencies reads and removes enrolled identities.
type IdentityDependencies interface {
	ListIdentities(ctx context.Context) ([]model.Identity, error)
	GetIdentity(ctx context.Context, id int64) (model.Identity, error)
	RemoveIdentity(ctx context.Context, id int64) error
}

// EnrollmentDependencies drives pose-guided enrollment sessions.
type EnrollmentDependencies interface {
	BeginEnrollment(ctx context.Context, subject capture.Subject) (service.EnrollmentView, error)
	SubmitEnrollmentFrame(ctx context.Context, sessionID string, frame model.Frame) (service.EnrollmentView, error)
	FinalizeEnrollment(ctx context.Context, sessionID string) (model.Identity, error)
	CancelEnrollment(ctx context.Context, sessionID string) error
}

// RecognitionDependencies recognizes frames synchronously or via the queue.
type RecognitionDependencies interface {
	Recognize(ctx context.Context, frame model.Frame) (recognition.Report, error)
	EnqueueFrame(ctx context.Context, frame model.Frame) (bool, error)
}

// AttendanceDependencies reads and edits the attendance ledger.
type AttendanceDependencies interface {
	ListAttendance(ctx context.Context) ([]model.AttendanceRecord, error)
	ListAttendanceFor(ctx context.Context, identityID int64) ([]model.AttendanceRecord, error)
	MarkManual(ctx context.Context, identityID int64, location string, at time.Time) (model.AttendanceRecord, error)
	ClearAttendance(ctx context.Context) (int, error)
	ClearAttendanceFor(ctx context.Context, identityID int64) (int, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	IdentityDependencies
	EnrollmentDependencies
	RecognitionDependencies
	AttendanceDependencies
	StatsProvider
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithRateLimit limits recognition and frame submission to rps requests per
// second each, with the given burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.recognizeLimiter = rate.NewLimiter(rate.Limit(rps), burst)
		s.framesLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	identityHandler    *IdentityHandler
	enrollmentHandler  *EnrollmentHandler
	recognitionHandler *RecognitionHandler
	attendanceHandler  *AttendanceHandler

	recognizeLimiter *rate.Limiter
	framesLimiter    *rate.Limiter
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		identityHandler:    NewIdentityHandler(deps),
		enrollmentHandler:  NewEnrollmentHandler(deps),
		recognitionHandler: NewRecognitionHandler(deps),
		attendanceHandler:  NewAttendanceHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /identities", MetricsMiddleware(s.identityHandler.HandleList, "identities"))
	mux.HandleFunc("GET /identities/{id}", MetricsMiddleware(s.identityHandler.HandleGet, "identity"))
	mux.HandleFunc("DELETE /identities/{id}", MetricsMiddleware(s.identityHandler.HandleDelete, "identity"))

	mux.HandleFunc("POST /enrollments", MetricsMiddleware(s.enrollmentHandler.HandleBegin, "enrollments"))
	mux.HandleFunc("POST /enrollments/{id}/frames", MetricsMiddleware(s.enrollmentHandler.HandleFrame, "enrollment_frames"))
	mux.HandleFunc("POST /enrollments/{id}/finalize", MetricsMiddleware(s.enrollmentHandler.HandleFinalize, "enrollment_finalize"))
	mux.HandleFunc("DELETE /enrollments/{id}", MetricsMiddleware(s.enrollmentHandler.HandleCancel, "enrollment"))

	mux.HandleFunc("POST /recognize", MetricsMiddleware(
		RateLimitMiddleware(s.recognitionHandler.HandleRecognize, s.recognizeLimiter, "recognize"), "recognize"))
	mux.HandleFunc("POST /frames", MetricsMiddleware(
		RateLimitMiddleware(s.recognitionHandler.HandleEnqueue, s.framesLimiter, "frames"), "frames"))

	mux.HandleFunc("GET /attendance", MetricsMiddleware(s.attendanceHandler.HandleList, "attendance"))
	mux.HandleFunc("POST /attendance", MetricsMiddleware(s.attendanceHandler.HandleMark, "attendance"))
	mux.HandleFunc("DELETE /attendance", MetricsMiddleware(s.attendanceHandler.HandleClear, "attendance"))
	mux.HandleFunc("DELETE /attendance/{identity_id}", MetricsMiddleware(s.attendanceHandler.HandleClearFor, "attendance_identity"))
}

// faceRequest is one client-side detection.
type faceRequest struct {
	Descriptor []float64    `json:"descriptor"`
	Box        model.Region `json:"box"`
}

// frameRequest mirrors the OpenAPI Frame schema.
type frameRequest struct {
	ID         string        `json:"id"`
	Source     string        `json:"source"`
	CapturedAt time.Time     `json:"captured_at"`
	Image      []byte        `json:"image"` // base64 in JSON
	Faces      []faceRequest `json:"faces"`
}

func (f *frameRequest) validate() error {
	for i, face := range f.Faces {
		if len(face.Descriptor) == 0 {
			return fmt.Errorf("faces[%d]: missing descriptor", i)
		}
	}
	return nil
}

func (f *frameRequest) frame() model.Frame {
	frame := model.Frame{
		ID:         strings.TrimSpace(f.ID),
		Source:     strings.TrimSpace(f.Source),
		CapturedAt: f.CapturedAt,
		Image:      f.Image,
	}
	if len(f.Faces) > 0 {
		frame.Faces = make([]model.Face, len(f.Faces))
		for i, face := range f.Faces {
			frame.Faces[i] = model.Face{Descriptor: face.Descriptor, Region: face.Box}
		}
	}
	return frame
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrBadRequest, name, raw)
	}
	return id, nil
}
