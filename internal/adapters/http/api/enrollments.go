package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/rollcall/internal/domain/capture"
)

// EnrollmentHandler drives enrollment sessions over HTTP.
type EnrollmentHandler struct {
	deps EnrollmentDependencies
}

// NewEnrollmentHandler creates a new enrollment handler.
func NewEnrollmentHandler(deps EnrollmentDependencies) *EnrollmentHandler {
	return &EnrollmentHandler{deps: deps}
}

type beginRequest struct {
	DisplayName string `json:"display_name"`
	ExternalRef string `json:"external_ref"`
	IdentityID  int64  `json:"identity_id"`
}

func (b *beginRequest) validate() error {
	switch {
	case b.IdentityID < 0:
		return errors.New("identity_id must be positive")
	case b.IdentityID == 0 && strings.TrimSpace(b.DisplayName) == "":
		return errors.New("missing display_name")
	}
	return nil
}

// HandleBegin handles POST /enrollments requests.
func (h *EnrollmentHandler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	view, err := h.deps.BeginEnrollment(r.Context(), capture.Subject{
		IdentityID:  req.IdentityID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		ExternalRef: strings.TrimSpace(req.ExternalRef),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HandleFrame handles POST /enrollments/{id}/frames requests.
func (h *EnrollmentHandler) HandleFrame(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	view, err := h.deps.SubmitEnrollmentFrame(r.Context(), r.PathValue("id"), req.frame())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleFinalize handles POST /enrollments/{id}/finalize requests.
func (h *EnrollmentHandler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	identity, err := h.deps.FinalizeEnrollment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIdentityResponse(identity))
}

// HandleCancel handles DELETE /enrollments/{id} requests.
func (h *EnrollmentHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.CancelEnrollment(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
