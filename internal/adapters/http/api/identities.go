package api

import (
	"net/http"

	"github.com/okian/rollcall/internal/domain/model"
)

// IdentityHandler serves the gallery.
type IdentityHandler struct {
	deps IdentityDependencies
}

// NewIdentityHandler creates a new identity handler.
func NewIdentityHandler(deps IdentityDependencies) *IdentityHandler {
	return &IdentityHandler{deps: deps}
}

type identityResponse struct {
	model.Identity
	Dimension int `json:"dimension"`
}

func toIdentityResponse(id model.Identity) identityResponse { //nolint:gocritic // hugeParam
	return identityResponse{Identity: id, Dimension: id.Descriptor.Len()}
}

// HandleList handles GET /identities requests.
func (h *IdentityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ids, err := h.deps.ListIdentities(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]identityResponse, len(ids))
	for i, id := range ids {
		out[i] = toIdentityResponse(id)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /identities/{id} requests.
func (h *IdentityHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	identity, err := h.deps.GetIdentity(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// HandleDelete handles DELETE /identities/{id} requests.
func (h *IdentityHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.deps.RemoveIdentity(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
