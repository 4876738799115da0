// Package config defines pipeline configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load(ctx) layers a YAML file and BIKEFLOW_ environment variables on top.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the admin HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// S3-compatible object store holding the medallion buckets.
	S3Endpoint  string `koanf:"s3_endpoint"`
	S3Region    string `koanf:"s3_region"`
	S3AccessKey string `koanf:"s3_access_key"`
	S3SecretKey string `koanf:"s3_secret_key"`
	S3PathStyle bool   `koanf:"s3_path_style"`

	BronzeBucket     string `koanf:"bronze_bucket"`
	SilverBucket     string `koanf:"silver_bucket"`
	GoldBucket       string `koanf:"gold_bucket"`
	HistoricalBucket string `koanf:"historical_bucket"`

	// RawExtension is the file extension of raw bronze events.
	RawExtension string `koanf:"raw_extension"`

	// DiscoveryWindowMinutes bounds cold-start lookback; 0 scans everything.
	DiscoveryWindowMinutes int `koanf:"discovery_window_minutes"`

	// PoorShareThreshold is the maximum POOR share admitted by the gate.
	PoorShareThreshold float64 `koanf:"poor_share_threshold"`

	// PoorShareThresholds overrides PoorShareThreshold per source type.
	PoorShareThresholds map[string]float64 `koanf:"poor_share_thresholds"`

	// ScoringWorkers bounds per-record scoring parallelism.
	ScoringWorkers int `koanf:"scoring_workers"`

	// StationReference is a CSV file of station_id,lat,lon. Empty disables resolution checks.
	StationReference      string `koanf:"station_reference"`
	StationCacheTTLSecond int    `koanf:"station_cache_ttl_seconds"`

	// Remote public archive bucket for historical backfill.
	ArchiveBucket   string `koanf:"archive_bucket"`
	ArchiveRegion   string `koanf:"archive_region"`
	ArchivePrefix   string `koanf:"archive_prefix"`
	ArchiveLimit    int    `koanf:"archive_limit"` // unseen archives staged per run; 0 = all
	ArchiveWorkers  int    `koanf:"archive_workers"`
	ArchiveMaxDepth int    `koanf:"archive_max_depth"`
	ArchiveMaxBytes int64  `koanf:"archive_max_bytes"`

	// RetryMaxAttempts bounds retries of a stage after a transient store error.
	RetryMaxAttempts int `koanf:"retry_max_attempts"`

	// MaxLagMinutes is the bronze freshness bound used by the health check.
	MaxLagMinutes int `koanf:"max_lag_minutes"`

	// AlertsPath is the append-only alert log.
	AlertsPath string `koanf:"alerts_path"`

	// RealtimeIntervalSeconds schedules realtime runs in serve mode; 0 disables the schedule.
	RealtimeIntervalSeconds int `koanf:"realtime_interval_seconds"`

	// Firehose generator settings.
	FirehoseRate     float64 `koanf:"firehose_rate"`
	FirehoseBadRatio float64 `koanf:"firehose_bad_ratio"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		Addr:                    ":9080",
		S3Region:                "us-east-1",
		S3PathStyle:             true,
		BronzeBucket:            "bronze",
		SilverBucket:            "silver",
		GoldBucket:              "gold",
		HistoricalBucket:        "historical",
		RawExtension:            ".json",
		PoorShareThreshold:      0.20,
		PoorShareThresholds:     map[string]float64{},
		ScoringWorkers:          runtime.NumCPU(),
		StationCacheTTLSecond:   3600,
		ArchiveBucket:           "tripdata",
		ArchiveRegion:           "us-east-1",
		ArchiveLimit:            0,
		ArchiveWorkers:          4,
		ArchiveMaxDepth:         3,
		ArchiveMaxBytes:         4 << 30,
		RetryMaxAttempts:        5,
		MaxLagMinutes:           30,
		AlertsPath:              "alerts.log",
		RealtimeIntervalSeconds: 300,
		FirehoseRate:            5,
		FirehoseBadRatio:        0.1,
	}
}

// ThresholdFor returns the gate threshold for a source type.
func (c *Config) ThresholdFor(sourceType string) float64 {
	if v, ok := c.PoorShareThresholds[sourceType]; ok {
		return v
	}
	return c.PoorShareThreshold
}
