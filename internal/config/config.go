// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Flat koanf keys; environment variables use the MASTERY_ prefix.
// - Provide New() initializer to build a Config with defaults.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DatabaseURL selects the Postgres store; empty keeps everything in memory.
	DatabaseURL      string `koanf:"database_url"`
	DatabaseMaxConns int    `koanf:"database_max_conns"`

	// RedisAddr enables the cross-process run lock; empty uses an in-process lock.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	LockTTLS      int    `koanf:"lock_ttl_s"`

	// Cron expressions for the two scheduled jobs.
	MasteryCron   string `koanf:"mastery_cron"`
	ReferenceCron string `koanf:"reference_cron"`
	// RunOnStart triggers the reference job once at start-up.
	RunOnStart bool `koanf:"run_on_start"`
	// TriggerQueueSize bounds pending on-demand/scheduled triggers.
	TriggerQueueSize int `koanf:"trigger_queue_size"`

	// Upstream HTTP behaviour.
	HTTPTimeoutMS     int     `koanf:"http_timeout_ms"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Batch runner pacing for the reference catalog download.
	BatchSliceSize  int `koanf:"batch_slice_size"`
	BatchSleepMS    int `koanf:"batch_sleep_ms"`
	BatchRetryCount int `koanf:"batch_retry_count"`

	// CatalogRetryCount bounds attempts of the regional catalog fetch.
	CatalogRetryCount int `koanf:"catalog_retry_count"`

	// Ranking crawl.
	RankingURL         string `koanf:"ranking_url"`
	RankingPageSize    int    `koanf:"ranking_page_size"`
	RankingTierFilter  string `koanf:"ranking_tier_filter"`
	MaxPages           int    `koanf:"max_pages"`
	PageRetryCount     int    `koanf:"page_retry_count"`
	PageRetryBackoffMS int    `koanf:"page_retry_backoff_ms"`

	// Regional catalogs. The primary region drives the merge.
	PrimaryCatalogURL   string `koanf:"primary_catalog_url"`
	SecondaryCatalogURL string `koanf:"secondary_catalog_url"`
	PrimaryLanguage     string `koanf:"primary_language"`
	SecondaryLanguage   string `koanf:"secondary_language"`

	// Reference catalog mirror.
	ReferenceListURL    string `koanf:"reference_list_url"`
	ReferenceVehicleURL string `koanf:"reference_vehicle_url"`
	ReferenceVersion    string `koanf:"reference_version"`

	// SnapshotBucketMinutes sizes the history bucket.
	SnapshotBucketMinutes int `koanf:"snapshot_bucket_minutes"`

	// MaxListSize caps GET /tanks?size.
	MaxListSize int `koanf:"max_list_size"`

	// Metric naming: <namespace>_<subsystem>_<prefix>_<name>.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	MetricsPrefix    string `koanf:"metrics_prefix"`
	// MetricsRefreshS is the period of the gauges derived from service stats.
	MetricsRefreshS int `koanf:"metrics_refresh_s"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		DatabaseMaxConns:      10,
		LockTTLS:              3600,
		MasteryCron:           "0 12 * * *",
		ReferenceCron:         "0 8 * * *",
		RunOnStart:            true,
		TriggerQueueSize:      8,
		HTTPTimeoutMS:         15_000,
		RequestsPerSecond:     10,
		BatchSliceSize:        20,
		BatchSleepMS:          3_000,
		BatchRetryCount:       3,
		CatalogRetryCount:     3,
		RankingURL:            "https://tbox.wot.360.cn/rank/more",
		RankingPageSize:       40,
		RankingTierFilter:     "5,6,7,8,9,10",
		MaxPages:              500,
		PageRetryCount:        3,
		PageRetryBackoffMS:    1_000,
		PrimaryCatalogURL:     "https://worldoftanks.asia/wotpbe/tankopedia/api/vehicles/by_filters/",
		SecondaryCatalogURL:   "https://wotgame.cn/wotpbe/tankopedia/api/vehicles/by_filters/",
		PrimaryLanguage:       "en",
		SecondaryLanguage:     "zh-cn",
		ReferenceListURL:      "https://tanks.gg/api/list",
		ReferenceVehicleURL:   "https://tanks.gg/api",
		SnapshotBucketMinutes: 60,
		MaxListSize:           200,
		MetricsNamespace:      "mastery",
		MetricsSubsystem:      "pipeline",
		MetricsRefreshS:       15,
	}
}

// HTTPTimeout returns the upstream request timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// BatchSleep returns the pause between batch slices.
func (c *Config) BatchSleep() time.Duration {
	return time.Duration(c.BatchSleepMS) * time.Millisecond
}

// PageRetryBackoff returns the initial ranking page retry interval.
func (c *Config) PageRetryBackoff() time.Duration {
	return time.Duration(c.PageRetryBackoffMS) * time.Millisecond
}

// SnapshotBucket returns the history bucket size.
func (c *Config) SnapshotBucket() time.Duration {
	return time.Duration(c.SnapshotBucketMinutes) * time.Minute
}

// LockTTL returns the run lock expiry.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLS) * time.Second
}

// MetricsRefresh returns the stats gauge refresh period.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshS) * time.Second
}

// Validate checks the fields the pipeline cannot run without.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.RankingPageSize < 1:
		return fmt.Errorf("%w: ranking_page_size must be positive", ErrInvalidConfig)
	case c.BatchSliceSize < 1:
		return fmt.Errorf("%w: batch_slice_size must be positive", ErrInvalidConfig)
	case c.MaxPages < 1:
		return fmt.Errorf("%w: max_pages must be positive", ErrInvalidConfig)
	case c.MetricsRefreshS < 1:
		return fmt.Errorf("%w: metrics_refresh_s must be positive", ErrInvalidConfig)
	case c.SnapshotBucketMinutes < 1:
		return fmt.Errorf("%w: snapshot_bucket_minutes must be positive", ErrInvalidConfig)
	case strings.TrimSpace(c.MasteryCron) == "" || strings.TrimSpace(c.ReferenceCron) == "":
		return fmt.Errorf("%w: cron expressions must not be empty", ErrInvalidConfig)
	}
	return nil
}
