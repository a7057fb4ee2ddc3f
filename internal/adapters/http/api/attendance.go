package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// AttendanceHandler serves the attendance ledger.
type AttendanceHandler struct {
	deps AttendanceDependencies
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(deps AttendanceDependencies) *AttendanceHandler {
	return &AttendanceHandler{deps: deps}
}

type markRequest struct {
	IdentityID int64     `json:"identity_id"`
	Location   string    `json:"location"`
	Timestamp  time.Time `json:"timestamp"`
}

type clearResponse struct {
	Removed int `json:"removed"`
}

// HandleList handles GET /attendance requests, optionally filtered by ?identity_id=.
func (h *AttendanceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var (
		recs []model.AttendanceRecord
		err  error
	)
	if raw := r.URL.Query().Get("identity_id"); raw != "" {
		id, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid identity_id %q", raw))
			return
		}
		recs, err = h.deps.ListAttendanceFor(r.Context(), id)
	} else {
		recs, err = h.deps.ListAttendance(r.Context())
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if recs == nil {
		recs = []model.AttendanceRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// HandleMark handles POST /attendance requests.
func (h *AttendanceHandler) HandleMark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.IdentityID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing identity_id"))
		return
	}
	rec, err := h.deps.MarkManual(r.Context(), req.IdentityID, strings.TrimSpace(req.Location), req.Timestamp)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleClear handles DELETE /attendance requests.
func (h *AttendanceHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.ClearAttendance(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Removed: n})
}

// HandleClearFor handles DELETE /attendance/{identity_id} requests.
func (h *AttendanceHandler) HandleClearFor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "identity_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	n, err := h.deps.ClearAttendanceFor(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Removed: n})
}
