package api

import (
	"errors"
	"net/http"

	"github.com/okian/rollcall/internal/adapters/extractor"
	"github.com/okian/rollcall/internal/adapters/repository"
	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/domain/capture"
	"github.com/okian/rollcall/internal/domain/ledger"
	"github.com/okian/rollcall/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// statusFor maps a domain error to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrMultipleFaces):
		return http.StatusUnprocessableEntity, "multiple_faces"
	case errors.Is(err, model.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity, "no_face"
	case errors.Is(err, capture.ErrSessionIncomplete):
		return http.StatusConflict, "session_incomplete"
	case errors.Is(err, capture.ErrInconsistentSamples):
		return http.StatusConflict, "inconsistent_samples"
	case errors.Is(err, capture.ErrSessionClosed):
		return http.StatusConflict, "session_closed"
	case errors.Is(err, model.ErrInvalidDescriptor):
		return http.StatusBadRequest, "invalid_descriptor"
	case errors.Is(err, extractor.ErrImageUnsupported):
		return http.StatusBadRequest, "image_unsupported"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ledger.ErrInvalidMark),
		errors.Is(err, repository.ErrInvalidID):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, extractor.ErrTimeout):
		return http.StatusGatewayTimeout, "extract_timeout"
	case errors.Is(err, extractor.ErrRemote):
		return http.StatusBadGateway, "extractor_failed"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}
