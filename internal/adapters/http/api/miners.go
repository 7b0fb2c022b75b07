package api

import (
	"net/http"
	"strings"

	"github.com/okian/minerwatch/internal/domain/types"
)

// MinersHandler serves miner records.
type MinersHandler struct {
	deps Dependencies
}

// NewMinersHandler creates a new miners handler.
func NewMinersHandler(deps Dependencies) *MinersHandler {
	return &MinersHandler{deps: deps}
}

type minersResponse struct {
	Count  int               `json:"count"`
	Miners []types.MinerView `json:"miners"`
}

// HandleList handles GET /miners requests.
func (h *MinersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	miners := h.deps.Miners(r.Context())
	if miners == nil {
		miners = []types.MinerView{}
	}
	writeJSON(w, http.StatusOK, minersResponse{Count: len(miners), Miners: miners})
}

// HandleGet handles GET /miners/{id}; id is a primary key or a signature.
func (h *MinersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/miners/")
	if strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	view, err := h.deps.Lookup(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
