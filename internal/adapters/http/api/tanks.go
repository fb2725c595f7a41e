package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/okian/mastery/internal/adapters/repository"
	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/internal/domain/types"
)

const defaultPageSize = 40

// TanksDependencies defines the interface for catalog listing.
type TanksDependencies interface {
	ListVehicles(ctx context.Context, q repository.ListQuery) ([]model.VehicleRecord, int, error)
}

// TanksHandler handles catalog list requests.
type TanksHandler struct {
	deps    TanksDependencies
	maxSize int
}

// NewTanksHandler creates a new catalog list handler.
func NewTanksHandler(deps TanksDependencies, maxSize int) *TanksHandler {
	return &TanksHandler{deps: deps, maxSize: maxSize}
}

// HandleListTanks handles GET /tanks requests.
//
// Filters: nation, type, tier, premium (0/1), collector_vehicle (0/1).
// Paging: page (1-based), size (default 40, capped). Sorting applies when
// both sort and order are given; order "ascend" sorts ascending, anything
// else descending. The default order is mastery_95 descending.
func (h *TanksHandler) HandleListTanks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	q, err := h.parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, types.CodeBadRequest, err)
		return
	}

	list, total, err := h.deps.ListVehicles(r.Context(), q)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []model.VehicleRecord{}
	}
	writeOK(w, http.StatusOK, types.VehiclePage{List: list, Total: total})
}

func (h *TanksHandler) parseQuery(v url.Values) (repository.ListQuery, error) {
	q := repository.ListQuery{
		Nation: v.Get("nation"),
		Type:   v.Get("type"),
		Page:   1,
		Size:   defaultPageSize,
	}

	var err error
	if q.Tier, err = optionalInt(v, "tier"); err != nil {
		return q, err
	}
	if q.Premium, err = optionalFlag(v, "premium"); err != nil {
		return q, err
	}
	if q.Collector, err = optionalFlag(v, "collector_vehicle"); err != nil {
		return q, err
	}

	if p, err := optionalInt(v, "page"); err != nil {
		return q, err
	} else if p != nil {
		if *p < 1 {
			return q, fmt.Errorf("%w: page must be positive", ErrBadRequest)
		}
		q.Page = *p
	}
	if s, err := optionalInt(v, "size"); err != nil {
		return q, err
	} else if s != nil {
		if *s < 1 {
			return q, fmt.Errorf("%w: size must be positive", ErrBadRequest)
		}
		q.Size = min(*s, h.maxSize)
	}

	if sort, order := v.Get("sort"), v.Get("order"); sort != "" && order != "" {
		q.Sort = sort
		q.Ascending = order == "ascend"
	}
	return q, nil
}

func optionalInt(v url.Values, key string) (*int, error) {
	if !v.Has(key) {
		return nil, nil
	}
	n, err := strconv.Atoi(v.Get(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, key)
	}
	return &n, nil
}

func optionalFlag(v url.Values, key string) (*bool, error) {
	n, err := optionalInt(v, key)
	if err != nil || n == nil {
		return nil, err
	}
	switch *n {
	case 0:
		return model.Ptr(false), nil
	case 1:
		return model.Ptr(true), nil
	}
	return nil, fmt.Errorf("%w: %s must be 0 or 1", ErrBadRequest, key)
}
