package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/logger"
	"github.com/okian/mastery/pkg/metrics"
)

const (
	defaultChunkSize    = 500
	defaultMaxConns     = 10
	maxConnLifetime     = time.Hour
	maxConnIdleTime     = 30 * time.Minute
	vehicleColumns      = "id, nation, type, role, tier, name, short_name, en_name, en_short_name, tech_name, premium, collector_vehicle, tank_icon, mastery_65, mastery_85, mastery_95, ace, rank, rank_delta, insert_date, update_date"
	referenceColumns    = "id, nation, type, role, tier, name, en_name, short_name, en_short_name, tech_name, insert_date"
	historyColumns      = "vehicle_id, bucket, mastery_65, mastery_85, mastery_95, ace"
	incompletePredicate = "nation = '' OR type = '' OR tier = 0"
)

// PGStore is a Store backed by Postgres through a pgx pool.
type PGStore struct {
	pool      *pgxpool.Pool
	chunkSize int
	logger    logger.Logger
}

// Connect opens a pool for url and verifies it with a ping.
func Connect(ctx context.Context, url string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	cfg.MaxConns = int32(maxConns) //nolint:gosec // bounded by config
	cfg.MaxConnLifetime = maxConnLifetime
	cfg.MaxConnIdleTime = maxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// NewPGStore wraps an open pool.
func NewPGStore(pool *pgxpool.Pool, opts ...PGOption) *PGStore {
	s := &PGStore{
		pool:      pool,
		chunkSize: defaultChunkSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("pgstore")
	}

	return s
}

// Close releases the pool.
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

// FindByID implements CatalogStore.
func (s *PGStore) FindByID(ctx context.Context, id model.VehicleID) (model.VehicleRecord, error) {
	defer observeQuery(time.Now())

	row := s.pool.QueryRow(ctx, "SELECT "+vehicleColumns+" FROM vehicles WHERE id = $1", int64(id))
	rec, err := scanVehicle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.VehicleRecord{}, ErrNotFound
	}
	if err != nil {
		return model.VehicleRecord{}, fmt.Errorf("find vehicle %d: %w", id, err)
	}
	return rec, nil
}

// Exists implements CatalogStore.
func (s *PGStore) Exists(ctx context.Context, id model.VehicleID) (bool, error) {
	defer observeQuery(time.Now())

	var ok bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM vehicles WHERE id = $1)", int64(id)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("vehicle exists %d: %w", id, err)
	}
	return ok, nil
}

// InsertMany implements CatalogStore. Rows are sent in batches; a duplicate
// id affects zero rows and is reported as a conflict.
func (s *PGStore) InsertMany(ctx context.Context, recs []model.VehicleRecord) (InsertResult, error) {
	defer observeUpdate(time.Now())

	var res InsertResult
	for lo := 0; lo < len(recs); lo += s.chunkSize {
		chunk := recs[lo:min(lo+s.chunkSize, len(recs))]

		b := &pgx.Batch{}
		for i := range chunk {
			r := &chunk[i]
			b.Queue(
				"INSERT INTO vehicles ("+vehicleColumns+") "+
					"VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21) "+
					"ON CONFLICT (id) DO NOTHING",
				int64(r.ID), r.Nation, r.Type, r.Role, r.Tier, r.Name, r.ShortName, r.EnName,
				r.EnShortName, r.TechName, r.Premium, r.CollectorVehicle, r.TankIcon,
				r.Mastery65, r.Mastery85, r.Mastery95, r.Ace, r.Rank, r.RankDelta,
				r.InsertDate, nullTime(r.UpdateDate),
			)
		}

		if err := s.execInserts(ctx, b, len(chunk), func(i int) model.VehicleID { return chunk[i].ID }, &res); err != nil {
			return res, fmt.Errorf("insert vehicles: %w", err)
		}
	}

	s.logger.Debug(ctx, "inserted vehicles",
		logger.Int("inserted", res.Inserted),
		logger.Int("conflicts", len(res.Conflicts)),
	)
	metrics.RecordInserted(CollectionVehicles, res.Inserted)
	metrics.RecordConflicts(CollectionVehicles, len(res.Conflicts))
	return res, nil
}

// UpdateByID implements CatalogStore.
func (s *PGStore) UpdateByID(ctx context.Context, id model.VehicleID, patch model.VehiclePatch) error {
	defer observeUpdate(time.Now())

	sets, args := patchAssignments(patch)
	if len(sets) == 0 {
		ok, err := s.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return nil
	}

	args = append(args, int64(id))
	query := fmt.Sprintf("UPDATE vehicles SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "update_failed")
		return fmt.Errorf("update vehicle %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		metrics.RecordErrorByComponent("repository", "not_found")
		return ErrNotFound
	}

	metrics.RecordUpdated(CollectionVehicles, 1)
	return nil
}

// FindIncomplete implements CatalogStore.
func (s *PGStore) FindIncomplete(ctx context.Context) ([]model.VehicleRecord, error) {
	defer observeQuery(time.Now())

	rows, err := s.pool.Query(ctx, "SELECT "+vehicleColumns+" FROM vehicles WHERE "+incompletePredicate+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("find incomplete: %w", err)
	}
	return collectVehicles(rows)
}

// List implements CatalogStore.
func (s *PGStore) List(ctx context.Context, q ListQuery) ([]model.VehicleRecord, int, error) {
	defer observeQuery(time.Now())

	q, err := q.normalize()
	if err != nil {
		return nil, 0, err
	}

	where, args := listFilter(q)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM vehicles"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count vehicles: %w", err)
	}

	// Missing values order as the smallest, matching the in-memory store.
	order := "DESC NULLS LAST"
	if q.Ascending {
		order = "ASC NULLS FIRST"
	}
	args = append(args, q.Size, q.offset())
	query := fmt.Sprintf("SELECT %s FROM vehicles%s ORDER BY %s %s, id LIMIT $%d OFFSET $%d",
		vehicleColumns, where, sortable[q.Sort], order, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list vehicles: %w", err)
	}
	out, err := collectVehicles(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Summary implements CatalogStore.
func (s *PGStore) Summary(ctx context.Context) (model.CatalogSummary, error) {
	defer observeQuery(time.Now())

	sum := model.CatalogSummary{
		Types: append([]string(nil), model.VehicleTypes...),
		Tiers: summaryTiers(),
	}

	var last *time.Time
	err := s.pool.QueryRow(ctx, `SELECT
			count(*) FILTER (WHERE tier >= $1),
			count(*) FILTER (WHERE mastery_95 IS NOT NULL),
			max(update_date)
		FROM vehicles`, summaryMinTier).Scan(&sum.Total, &sum.HasMastery, &last)
	if err != nil {
		return sum, fmt.Errorf("summary counts: %w", err)
	}
	sum.LastUpdate = last

	rows, err := s.pool.Query(ctx, "SELECT DISTINCT nation FROM vehicles WHERE nation <> '' ORDER BY nation")
	if err != nil {
		return sum, fmt.Errorf("summary nations: %w", err)
	}
	nations, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return sum, fmt.Errorf("summary nations: %w", err)
	}
	sum.Nations = append([]string{}, nations...)
	return sum, nil
}

// Count implements CatalogStore.
func (s *PGStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM vehicles").Scan(&n); err != nil {
		return 0, fmt.Errorf("count vehicles: %w", err)
	}
	metrics.UpdateCatalogSize(n)
	return n, nil
}

// UpsertHistory implements HistoryStore. Only the metrics present in snap
// overwrite the stored row.
func (s *PGStore) UpsertHistory(ctx context.Context, snap model.HistorySnapshot) error {
	defer observeUpdate(time.Now())

	_, err := s.pool.Exec(ctx, `INSERT INTO history_snapshots (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (vehicle_id, bucket) DO UPDATE SET
			mastery_65 = COALESCE(EXCLUDED.mastery_65, history_snapshots.mastery_65),
			mastery_85 = COALESCE(EXCLUDED.mastery_85, history_snapshots.mastery_85),
			mastery_95 = COALESCE(EXCLUDED.mastery_95, history_snapshots.mastery_95),
			ace        = COALESCE(EXCLUDED.ace, history_snapshots.ace)`,
		int64(snap.VehicleID), snap.Bucket.UTC(), snap.Mastery65, snap.Mastery85, snap.Mastery95, snap.Ace)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "history_upsert_failed")
		return fmt.Errorf("upsert history %d: %w", snap.VehicleID, err)
	}

	metrics.RecordHistoryUpsert()
	return nil
}

// ListHistory implements HistoryStore.
func (s *PGStore) ListHistory(ctx context.Context, id model.VehicleID) ([]model.HistorySnapshot, error) {
	defer observeQuery(time.Now())

	rows, err := s.pool.Query(ctx,
		"SELECT "+historyColumns+" FROM history_snapshots WHERE vehicle_id = $1 ORDER BY bucket", int64(id))
	if err != nil {
		return nil, fmt.Errorf("list history %d: %w", id, err)
	}
	defer rows.Close()

	out := []model.HistorySnapshot{}
	for rows.Next() {
		var (
			snap model.HistorySnapshot
			vid  int64
		)
		if err := rows.Scan(&vid, &snap.Bucket, &snap.Mastery65, &snap.Mastery85, &snap.Mastery95, &snap.Ace); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		snap.VehicleID = model.VehicleID(vid)
		snap.Bucket = snap.Bucket.UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}

// FindReference implements ReferenceStore.
func (s *PGStore) FindReference(ctx context.Context, id model.VehicleID) (model.ReferenceEntry, error) {
	defer observeQuery(time.Now())

	var (
		e   model.ReferenceEntry
		rid int64
	)
	err := s.pool.QueryRow(ctx, "SELECT "+referenceColumns+" FROM reference_entries WHERE id = $1", int64(id)).Scan(
		&rid, &e.Nation, &e.Type, &e.Role, &e.Tier, &e.Name, &e.EnName, &e.ShortName, &e.EnShortName, &e.TechName, &e.InsertDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ReferenceEntry{}, ErrNotFound
	}
	if err != nil {
		return model.ReferenceEntry{}, fmt.Errorf("find reference %d: %w", id, err)
	}
	e.ID = model.VehicleID(rid)
	return e, nil
}

// InsertReferences implements ReferenceStore.
func (s *PGStore) InsertReferences(ctx context.Context, entries []model.ReferenceEntry) (InsertResult, error) {
	defer observeUpdate(time.Now())

	var res InsertResult
	for lo := 0; lo < len(entries); lo += s.chunkSize {
		chunk := entries[lo:min(lo+s.chunkSize, len(entries))]

		b := &pgx.Batch{}
		for _, e := range chunk {
			b.Queue(
				"INSERT INTO reference_entries ("+referenceColumns+") "+
					"VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) ON CONFLICT (id) DO NOTHING",
				int64(e.ID), e.Nation, e.Type, e.Role, e.Tier, e.Name, e.EnName, e.ShortName,
				e.EnShortName, e.TechName, e.InsertDate,
			)
		}

		if err := s.execInserts(ctx, b, len(chunk), func(i int) model.VehicleID { return chunk[i].ID }, &res); err != nil {
			return res, fmt.Errorf("insert references: %w", err)
		}
	}

	metrics.RecordInserted(CollectionReference, res.Inserted)
	metrics.RecordConflicts(CollectionReference, len(res.Conflicts))
	return res, nil
}

// execInserts sends b and sorts each statement into inserted or conflict.
func (s *PGStore) execInserts(ctx context.Context, b *pgx.Batch, n int, idAt func(int) model.VehicleID, res *InsertResult) error {
	br := s.pool.SendBatch(ctx, b)
	for i := 0; i < n; i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return err
		}
		if tag.RowsAffected() == 0 {
			res.Conflicts = append(res.Conflicts, idAt(i))
			continue
		}
		res.Inserted++
	}
	return br.Close()
}

func scanVehicle(row pgx.Row) (model.VehicleRecord, error) {
	var (
		r      model.VehicleRecord
		id     int64
		update *time.Time
	)
	err := row.Scan(&id, &r.Nation, &r.Type, &r.Role, &r.Tier, &r.Name, &r.ShortName, &r.EnName,
		&r.EnShortName, &r.TechName, &r.Premium, &r.CollectorVehicle, &r.TankIcon,
		&r.Mastery65, &r.Mastery85, &r.Mastery95, &r.Ace, &r.Rank, &r.RankDelta,
		&r.InsertDate, &update)
	if err != nil {
		return model.VehicleRecord{}, err
	}
	r.ID = model.VehicleID(id)
	r.InsertDate = r.InsertDate.UTC()
	if update != nil {
		r.UpdateDate = update.UTC()
	}
	return r, nil
}

func collectVehicles(rows pgx.Rows) ([]model.VehicleRecord, error) {
	defer rows.Close()

	var out []model.VehicleRecord
	for rows.Next() {
		rec, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func listFilter(q ListQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if q.Nation != "" {
		add("nation", q.Nation)
	}
	if q.Type != "" {
		add("type", q.Type)
	}
	if q.Tier != nil {
		add("tier", *q.Tier)
	}
	if q.Premium != nil {
		add("premium", *q.Premium)
	}
	if q.Collector != nil {
		add("collector_vehicle", *q.Collector)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func patchAssignments(p model.VehiclePatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Nation != nil {
		set("nation", *p.Nation)
	}
	if p.Type != nil {
		set("type", *p.Type)
	}
	if p.Role != nil {
		set("role", *p.Role)
	}
	if p.Tier != nil {
		set("tier", *p.Tier)
	}
	if p.Name != nil {
		set("name", *p.Name)
	}
	if p.ShortName != nil {
		set("short_name", *p.ShortName)
	}
	if p.EnName != nil {
		set("en_name", *p.EnName)
	}
	if p.EnShortName != nil {
		set("en_short_name", *p.EnShortName)
	}
	if p.TechName != nil {
		set("tech_name", *p.TechName)
	}
	if p.TankIcon != nil {
		set("tank_icon", *p.TankIcon)
	}
	if p.Mastery65 != nil {
		set("mastery_65", *p.Mastery65)
	}
	if p.Mastery85 != nil {
		set("mastery_85", *p.Mastery85)
	}
	if p.Mastery95 != nil {
		set("mastery_95", *p.Mastery95)
	}
	if p.Rank != nil {
		set("rank", *p.Rank)
	}
	if p.RankDelta != nil {
		set("rank_delta", *p.RankDelta)
	}
	if p.UpdateDate != nil {
		set("update_date", *p.UpdateDate)
	}
	return sets, args
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
