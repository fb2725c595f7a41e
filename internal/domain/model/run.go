package model

import (
	"time"

	"github.com/google/uuid"
)

// Jobs the scheduler knows how to run.
const (
	JobMastery   = "mastery"
	JobReference = "reference"
)

// Trigger sources.
const (
	TriggerCron    = "cron"
	TriggerManual  = "manual"
	TriggerStartup = "startup"
	TriggerCLI     = "cli"
)

// RunContext is the immutable state shared by every stage of one run.
type RunContext struct {
	RunID     uuid.UUID
	Job       string
	Trigger   string
	StartedAt time.Time
	// Bucket is StartedAt truncated to the snapshot bucket size. All history
	// rows written during the run use it.
	Bucket time.Time
}

// NewRunContext stamps a run started at now.
// A non-positive bucket size falls back to one hour.
func NewRunContext(job, trigger string, now time.Time, bucket time.Duration) RunContext {
	if bucket <= 0 {
		bucket = time.Hour
	}
	now = now.UTC()
	return RunContext{
		RunID:     uuid.New(),
		Job:       job,
		Trigger:   trigger,
		StartedAt: now,
		Bucket:    now.Truncate(bucket),
	}
}

// CatalogSummary backs the filter/summary endpoint.
type CatalogSummary struct {
	Nations    []string   `json:"nations"`
	Types      []string   `json:"types"`
	Tiers      []int      `json:"tiers"`
	Total      int        `json:"total"`
	HasMastery int        `json:"hasMastery"`
	LastUpdate *time.Time `json:"lastUpdate"`
}
