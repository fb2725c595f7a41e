package api

import (
	"context"
	"net/http"

	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/internal/domain/types"
)

// TriggerDependencies defines the interface for on-demand runs.
type TriggerDependencies interface {
	Trigger(ctx context.Context, job, source string) error
}

// TriggerHandler queues on-demand runs.
type TriggerHandler struct {
	deps TriggerDependencies
}

// NewTriggerHandler creates a new trigger handler.
func NewTriggerHandler(deps TriggerDependencies) *TriggerHandler {
	return &TriggerHandler{deps: deps}
}

// For returns the handler of GET|POST requests that queue a run of job.
// The run happens in the background; the response only confirms the queueing.
func (h *TriggerHandler) For(job string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
			return
		}
		if err := h.deps.Trigger(r.Context(), job, model.TriggerManual); err != nil {
			writeStoreError(w, err)
			return
		}
		writeOK(w, http.StatusAccepted, types.TriggerAck{Job: job, Status: "queued"})
	}
}
