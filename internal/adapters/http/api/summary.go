package api

import (
	"context"
	"net/http"

	"github.com/okian/mastery/internal/domain/model"
)

// SummaryDependencies defines the interface for the catalog summary.
type SummaryDependencies interface {
	Summary(ctx context.Context) (model.CatalogSummary, error)
}

// SummaryHandler handles filter option and statistics requests.
type SummaryHandler struct {
	deps SummaryDependencies
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(deps SummaryDependencies) *SummaryHandler {
	return &SummaryHandler{deps: deps}
}

// HandleSummary handles GET /summary requests.
func (h *SummaryHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	s, err := h.deps.Summary(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, http.StatusOK, s)
}
