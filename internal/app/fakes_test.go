package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/mastery/internal/adapters/upstream"
	"github.com/okian/mastery/internal/domain/model"
)

var errUpstream = errors.New("upstream unavailable")

// fakeRanking serves fixed pages per tier. Pages past the configured ones are
// empty unless endless is set.
type fakeRanking struct {
	mu       sync.Mutex
	pages    map[model.MasteryTier][][]model.RankingRow
	requests map[model.MasteryTier]int
	failures map[model.MasteryTier]int
	endless  bool
}

func newFakeRanking() *fakeRanking {
	return &fakeRanking{
		pages:    make(map[model.MasteryTier][][]model.RankingRow),
		requests: make(map[model.MasteryTier]int),
		failures: make(map[model.MasteryTier]int),
	}
}

func (f *fakeRanking) FetchPage(_ context.Context, tier model.MasteryTier, page, _ int) (upstream.RankingPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests[tier]++
	if f.failures[tier] > 0 {
		f.failures[tier]--
		return upstream.RankingPage{}, errUpstream
	}
	if f.endless {
		return upstream.RankingPage{Page: page, Rows: rows(page*1000, 1, 100)}, nil
	}
	pages := f.pages[tier]
	if page > len(pages) {
		return upstream.RankingPage{Page: page}, nil
	}
	return upstream.RankingPage{Page: page, Rows: pages[page-1]}, nil
}

func (f *fakeRanking) requestCount(tier model.MasteryTier) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[tier]
}

// rows builds n ranking rows with consecutive ids starting at first.
func rows(first, n, mastery int) []model.RankingRow {
	out := make([]model.RankingRow, n)
	for i := range out {
		id := first + i
		out[i] = model.RankingRow{
			VehicleID: model.VehicleID(id),
			Name:      fmt.Sprintf("vehicle-%d", id),
			Icon:      fmt.Sprintf("%d.png", id),
			Mastery:   mastery,
		}
	}
	return out
}

type fakeCatalogs struct {
	primary   map[model.VehicleID]model.RegionalEntry
	secondary map[model.VehicleID]model.RegionalEntry
	err       error
}

func (f *fakeCatalogs) FetchCatalogs(context.Context) (map[model.VehicleID]model.RegionalEntry, map[model.VehicleID]model.RegionalEntry, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.primary, f.secondary, nil
}

type fakeReferences struct {
	mu      sync.Mutex
	list    upstream.ReferenceList
	entries map[string]model.ReferenceEntry
	asked   []string
}

func (f *fakeReferences) ListSlugs(context.Context) (upstream.ReferenceList, error) {
	return f.list, nil
}

func (f *fakeReferences) FetchVehicle(_ context.Context, version, slug string) (model.ReferenceEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, version+"/"+slug)
	e, ok := f.entries[slug]
	if !ok {
		return model.ReferenceEntry{}, upstream.ErrHTTPStatus
	}
	return e, nil
}

func noSleep(context.Context, time.Duration) error { return nil }
