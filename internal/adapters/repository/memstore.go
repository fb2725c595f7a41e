package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/metrics"
)

const defaultMetricsUpdateInterval = 30 * time.Second

type historyKey struct {
	id     model.VehicleID
	bucket int64
}

// MemStore is an in-memory Store. Values are copied on the way in and out so
// callers never share state with the store.
type MemStore struct {
	mu        sync.RWMutex
	vehicles  map[model.VehicleID]model.VehicleRecord
	history   map[historyKey]model.HistorySnapshot
	reference map[model.VehicleID]model.ReferenceEntry

	metricsUpdateInterval time.Duration
	stop                  chan struct{}
	stopOnce              sync.Once
}

// NewMemStore creates an empty store and starts its metrics updater.
func NewMemStore(ctx context.Context, opts ...Option) *MemStore {
	s := &MemStore{
		vehicles:              make(map[model.VehicleID]model.VehicleRecord),
		history:               make(map[historyKey]model.HistorySnapshot),
		reference:             make(map[model.VehicleID]model.ReferenceEntry),
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stop:                  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.startMetricsUpdater(ctx)

	return s
}

// Close stops the background metrics updater.
func (s *MemStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// FindByID implements CatalogStore.
func (s *MemStore) FindByID(_ context.Context, id model.VehicleID) (model.VehicleRecord, error) {
	defer observeQuery(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.vehicles[id]
	if !ok {
		return model.VehicleRecord{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Exists implements CatalogStore.
func (s *MemStore) Exists(_ context.Context, id model.VehicleID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vehicles[id]
	return ok, nil
}

// InsertMany implements CatalogStore.
func (s *MemStore) InsertMany(_ context.Context, recs []model.VehicleRecord) (InsertResult, error) {
	defer observeUpdate(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	var res InsertResult
	for i := range recs {
		id := recs[i].ID
		if _, ok := s.vehicles[id]; ok {
			res.Conflicts = append(res.Conflicts, id)
			continue
		}
		s.vehicles[id] = cloneRecord(recs[i])
		res.Inserted++
	}

	metrics.RecordInserted(CollectionVehicles, res.Inserted)
	metrics.RecordConflicts(CollectionVehicles, len(res.Conflicts))
	return res, nil
}

// UpdateByID implements CatalogStore.
func (s *MemStore) UpdateByID(_ context.Context, id model.VehicleID, patch model.VehiclePatch) error {
	defer observeUpdate(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.vehicles[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return ErrNotFound
	}
	patch.Apply(&rec)
	s.vehicles[id] = rec

	metrics.RecordUpdated(CollectionVehicles, 1)
	return nil
}

// FindIncomplete implements CatalogStore.
func (s *MemStore) FindIncomplete(_ context.Context) ([]model.VehicleRecord, error) {
	defer observeQuery(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.VehicleRecord
	for _, rec := range s.vehicles {
		if rec.Incomplete() {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// List implements CatalogStore.
func (s *MemStore) List(_ context.Context, q ListQuery) ([]model.VehicleRecord, int, error) {
	defer observeQuery(time.Now())

	q, err := q.normalize()
	if err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	matched := make([]model.VehicleRecord, 0, len(s.vehicles))
	for _, rec := range s.vehicles {
		if matches(rec, q) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	sortRecords(matched, q.Sort, q.Ascending)

	total := len(matched)
	lo := min(q.offset(), total)
	hi := min(lo+q.Size, total)

	out := make([]model.VehicleRecord, 0, hi-lo)
	for _, rec := range matched[lo:hi] {
		out = append(out, cloneRecord(rec))
	}
	return out, total, nil
}

// Summary implements CatalogStore.
func (s *MemStore) Summary(_ context.Context) (model.CatalogSummary, error) {
	defer observeQuery(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := model.CatalogSummary{
		Nations: []string{},
		Types:   append([]string(nil), model.VehicleTypes...),
		Tiers:   summaryTiers(),
	}
	nations := make(map[string]struct{})
	var last time.Time
	for _, rec := range s.vehicles {
		if rec.Nation != "" {
			nations[rec.Nation] = struct{}{}
		}
		if rec.Tier >= summaryMinTier {
			sum.Total++
		}
		if rec.Mastery95 != nil {
			sum.HasMastery++
		}
		if rec.UpdateDate.After(last) {
			last = rec.UpdateDate
		}
	}
	for n := range nations {
		sum.Nations = append(sum.Nations, n)
	}
	sort.Strings(sum.Nations)
	if !last.IsZero() {
		sum.LastUpdate = &last
	}
	return sum, nil
}

// Count implements CatalogStore.
func (s *MemStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vehicles), nil
}

// UpsertHistory implements HistoryStore.
func (s *MemStore) UpsertHistory(_ context.Context, snap model.HistorySnapshot) error {
	defer observeUpdate(time.Now())

	key := historyKey{id: snap.VehicleID, bucket: snap.Bucket.UTC().UnixNano()}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.history[key]
	if !ok {
		cur = model.HistorySnapshot{VehicleID: snap.VehicleID, Bucket: snap.Bucket.UTC()}
	}
	s.history[key] = cur.Merge(snap)

	metrics.RecordHistoryUpsert()
	return nil
}

// ListHistory implements HistoryStore.
func (s *MemStore) ListHistory(_ context.Context, id model.VehicleID) ([]model.HistorySnapshot, error) {
	defer observeQuery(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.HistorySnapshot{}
	for k, snap := range s.history {
		if k.id == id {
			out = append(out, model.HistorySnapshot{VehicleID: snap.VehicleID, Bucket: snap.Bucket}.Merge(snap))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })
	return out, nil
}

// FindReference implements ReferenceStore.
func (s *MemStore) FindReference(_ context.Context, id model.VehicleID) (model.ReferenceEntry, error) {
	defer observeQuery(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.reference[id]
	if !ok {
		return model.ReferenceEntry{}, ErrNotFound
	}
	return e, nil
}

// InsertReferences implements ReferenceStore.
func (s *MemStore) InsertReferences(_ context.Context, entries []model.ReferenceEntry) (InsertResult, error) {
	defer observeUpdate(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	var res InsertResult
	for _, e := range entries {
		if _, ok := s.reference[e.ID]; ok {
			res.Conflicts = append(res.Conflicts, e.ID)
			continue
		}
		s.reference[e.ID] = e
		res.Inserted++
	}

	metrics.RecordInserted(CollectionReference, res.Inserted)
	metrics.RecordConflicts(CollectionReference, len(res.Conflicts))
	return res, nil
}

// startMetricsUpdater periodically publishes the catalog size.
func (s *MemStore) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(s.metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			n, _ := s.Count(ctx)
			metrics.UpdateCatalogSize(n)
		}
	}
}

func matches(rec model.VehicleRecord, q ListQuery) bool {
	switch {
	case q.Nation != "" && rec.Nation != q.Nation:
		return false
	case q.Type != "" && rec.Type != q.Type:
		return false
	case q.Tier != nil && rec.Tier != *q.Tier:
		return false
	case q.Premium != nil && rec.Premium != *q.Premium:
		return false
	case q.Collector != nil && rec.CollectorVehicle != *q.Collector:
		return false
	}
	return true
}

// sortRecords orders by field, treating missing values as the smallest and
// breaking ties by id.
func sortRecords(recs []model.VehicleRecord, field string, asc bool) {
	sort.SliceStable(recs, func(i, j int) bool {
		c := compareField(recs[i], recs[j], field)
		if c == 0 {
			return recs[i].ID < recs[j].ID
		}
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func compareField(a, b model.VehicleRecord, field string) int {
	switch field {
	case "id":
		return cmpInt(int64(a.ID), int64(b.ID))
	case "tier":
		return cmpInt(int64(a.Tier), int64(b.Tier))
	case "name":
		return cmpString(a.Name, b.Name)
	case "nation":
		return cmpString(a.Nation, b.Nation)
	case "mastery_65":
		return cmpIntPtr(a.Mastery65, b.Mastery65)
	case "mastery_85":
		return cmpIntPtr(a.Mastery85, b.Mastery85)
	case "mastery_95":
		return cmpIntPtr(a.Mastery95, b.Mastery95)
	case "rank":
		return cmpIntPtr(a.Rank, b.Rank)
	case "rank_delta":
		return cmpIntPtr(a.RankDelta, b.RankDelta)
	case "update_date":
		return a.UpdateDate.Compare(b.UpdateDate)
	}
	return 0
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpIntPtr(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return cmpInt(int64(*a), int64(*b))
}

func cloneRecord(r model.VehicleRecord) model.VehicleRecord {
	r.Mastery65 = cloneInt(r.Mastery65)
	r.Mastery85 = cloneInt(r.Mastery85)
	r.Mastery95 = cloneInt(r.Mastery95)
	r.Ace = cloneInt(r.Ace)
	r.Rank = cloneInt(r.Rank)
	r.RankDelta = cloneInt(r.RankDelta)
	return r
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
}

func observeUpdate(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
}
