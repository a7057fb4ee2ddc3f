package api

import (
	"math"
	"net/http"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/recognition"
)

// RecognitionHandler serves synchronous and queued recognition.
type RecognitionHandler struct {
	deps RecognitionDependencies
}

// NewRecognitionHandler creates a new recognition handler.
func NewRecognitionHandler(deps RecognitionDependencies) *RecognitionHandler {
	return &RecognitionHandler{deps: deps}
}

type faceResponse struct {
	Box          model.Region            `json:"box"`
	Outcome      recognition.Outcome     `json:"outcome"`
	IdentityID   int64                   `json:"identity_id,omitempty"`
	Tied         []int64                 `json:"tied,omitempty"`
	Distance     *float64                `json:"distance,omitempty"`
	Confidence   float64                 `json:"confidence"`
	Marked       bool                    `json:"marked"`
	Deduplicated bool                    `json:"deduplicated"`
	Record       *model.AttendanceRecord `json:"record,omitempty"`
	Error        string                  `json:"error,omitempty"`
}

type reportResponse struct {
	FrameID    string              `json:"frame_id,omitempty"`
	Source     string              `json:"source,omitempty"`
	CapturedAt time.Time           `json:"captured_at"`
	Outcome    recognition.Outcome `json:"outcome"`
	Faces      []faceResponse      `json:"faces"`
}

func toReportResponse(report recognition.Report) reportResponse { //nolint:gocritic // hugeParam
	out := reportResponse{
		FrameID:    report.FrameID,
		Source:     report.Source,
		CapturedAt: report.CapturedAt,
		Outcome:    report.Outcome(),
		Faces:      make([]faceResponse, len(report.Faces)),
	}
	for i, f := range report.Faces {
		fr := faceResponse{
			Box:          f.Region,
			Outcome:      f.Outcome,
			IdentityID:   f.IdentityID,
			Tied:         f.Tied,
			Confidence:   f.Confidence,
			Marked:       f.Marked,
			Deduplicated: f.Deduplicated,
			Record:       f.Record,
		}
		// JSON has no infinity; an empty gallery leaves the distance out.
		if !math.IsInf(f.Distance, 0) && !math.IsNaN(f.Distance) {
			d := f.Distance
			fr.Distance = &d
		}
		if f.Err != nil {
			fr.Error = f.Err.Error()
		}
		out.Faces[i] = fr
	}
	return out
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// HandleRecognize handles POST /recognize requests.
func (h *RecognitionHandler) HandleRecognize(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	report, err := h.deps.Recognize(r.Context(), req.frame())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(report))
}

// HandleEnqueue handles POST /frames requests.
func (h *RecognitionHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	duplicate, err := h.deps.EnqueueFrame(r.Context(), req.frame())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
