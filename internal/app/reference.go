package service

import (
	"context"

	"github.com/okian/mastery/internal/adapters/mq/worker"
	"github.com/okian/mastery/internal/adapters/repository"
	"github.com/okian/mastery/internal/adapters/upstream"
	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/logger"
)

// ReferenceFetcher reads the reference catalog mirror.
type ReferenceFetcher interface {
	ListSlugs(ctx context.Context) (upstream.ReferenceList, error)
	FetchVehicle(ctx context.Context, version, slug string) (model.ReferenceEntry, error)
}

// SyncResult summarizes a reference sync.
type SyncResult struct {
	Version   string `json:"version"`
	Slugs     int    `json:"slugs"`
	Fetched   int    `json:"fetched"`
	Inserted  int    `json:"inserted"`
	Conflicts int    `json:"conflicts"`
}

// ReferenceSyncer copies the mirror into the reference store. Entries that
// already exist are kept.
type ReferenceSyncer struct {
	client  ReferenceFetcher
	store   repository.ReferenceStore
	runner  *worker.Runner
	version string
	logger  logger.Logger
}

// NewReferenceSyncer creates a syncer. An empty version uses the newest
// version the mirror advertises.
func NewReferenceSyncer(client ReferenceFetcher, store repository.ReferenceStore, runner *worker.Runner, version string, log logger.Logger) *ReferenceSyncer {
	return &ReferenceSyncer{client: client, store: store, runner: runner, version: version, logger: log}
}

// Sync lists the mirror, fetches every vehicle through the batch runner and
// inserts the result.
func (s *ReferenceSyncer) Sync(ctx context.Context, rc model.RunContext) (SyncResult, error) {
	list, err := s.client.ListSlugs(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	version := s.version
	if version == "" {
		version = list.Version
	}
	res := SyncResult{Version: version, Slugs: len(list.Slugs)}

	tasks := make([]worker.Task[model.ReferenceEntry], 0, len(list.Slugs))
	for _, slug := range list.Slugs {
		tasks = append(tasks, func(ctx context.Context) (model.ReferenceEntry, error) {
			return s.client.FetchVehicle(ctx, version, slug)
		})
	}

	entries, err := worker.Run(ctx, s.runner, tasks)
	res.Fetched = len(entries)
	if err != nil {
		return res, err
	}

	for i := range entries {
		entries[i].InsertDate = rc.StartedAt
	}

	ins, err := s.store.InsertReferences(ctx, entries)
	if err != nil {
		return res, err
	}
	res.Inserted = ins.Inserted
	res.Conflicts = len(ins.Conflicts)

	s.logger.Info(ctx, "reference synced",
		logger.String("run_id", rc.RunID.String()),
		logger.String("version", version),
		logger.Int("slugs", res.Slugs),
		logger.Int("fetched", res.Fetched),
		logger.Int("inserted", res.Inserted),
	)
	return res, nil
}
