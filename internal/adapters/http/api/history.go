package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/internal/domain/types"
)

// HistoryDependencies defines the interface for history reads.
type HistoryDependencies interface {
	History(ctx context.Context, id model.VehicleID) ([]model.HistorySnapshot, error)
}

// HistoryHandler handles per-vehicle history requests.
type HistoryHandler struct {
	deps HistoryDependencies
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps HistoryDependencies) *HistoryHandler {
	return &HistoryHandler{deps: deps}
}

// HandleHistory handles GET /history?id={vehicle_id} requests.
func (h *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, types.CodeBadRequest, fmt.Errorf("%w: id must be a positive integer", ErrBadRequest))
		return
	}

	list, err := h.deps.History(r.Context(), model.VehicleID(id))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []model.HistorySnapshot{}
	}
	writeOK(w, http.StatusOK, types.HistoryList{List: list})
}
