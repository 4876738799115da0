package main

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/bikeflow/internal/adapters/reference"
	"github.com/okian/bikeflow/internal/adapters/repository"
	service "github.com/okian/bikeflow/internal/app"
	"github.com/okian/bikeflow/internal/config"
	"github.com/okian/bikeflow/internal/domain/gate"
	"github.com/okian/bikeflow/internal/domain/scoring"
	"github.com/okian/bikeflow/internal/historical"
	"github.com/okian/bikeflow/internal/monitoring"
	"github.com/okian/bikeflow/pkg/logger"
)

// stores opens the medallion store and the anonymous public archive store.
func stores(ctx context.Context, cfg *config.Config) (repository.ObjectStore, repository.ObjectStore, error) {
	store, err := repository.NewS3Store(ctx, repository.S3Config{
		Endpoint:       cfg.S3Endpoint,
		Region:         cfg.S3Region,
		AccessKey:      cfg.S3AccessKey,
		SecretKey:      cfg.S3SecretKey,
		ForcePathStyle: cfg.S3PathStyle,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("medallion store: %w", err)
	}
	archives, err := repository.NewS3Store(ctx, repository.S3Config{
		Region:    cfg.ArchiveRegion,
		Anonymous: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("archive store: %w", err)
	}
	return store, archives, nil
}

// serviceOptions maps configuration onto pipeline options.
func serviceOptions(cfg *config.Config, log logger.Logger, archives repository.ObjectStore) []service.Option {
	stations := reference.New(reference.FileLoader(cfg.StationReference),
		time.Duration(cfg.StationCacheTTLSecond)*time.Second)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithBuckets(service.Buckets{
			Bronze:     cfg.BronzeBucket,
			Silver:     cfg.SilverBucket,
			Gold:       cfg.GoldBucket,
			Historical: cfg.HistoricalBucket,
		}),
		service.WithGate(gate.New(
			gate.WithThreshold(cfg.PoorShareThreshold),
			gate.WithSourceThresholds(cfg.PoorShareThresholds),
		)),
		service.WithStations(func(ctx context.Context) scoring.StationLookup { return stations.Snapshot(ctx) }),
		service.WithAlertSink(monitoring.NewFileAlertSink(cfg.AlertsPath, nil, log)),
		service.WithScoringWorkers(cfg.ScoringWorkers),
		service.WithDiscoveryWindow(time.Duration(cfg.DiscoveryWindowMinutes) * time.Minute),
		service.WithRawExtension(cfg.RawExtension),
		service.WithArchiveWorkers(cfg.ArchiveWorkers),
		service.WithMaxArchives(cfg.ArchiveLimit),
		service.WithArchiveLimits(historical.Limits{MaxDepth: cfg.ArchiveMaxDepth, MaxBytes: cfg.ArchiveMaxBytes}),
		service.WithRetry(cfg.RetryMaxAttempts, 0),
		service.WithMaxLag(time.Duration(cfg.MaxLagMinutes) * time.Minute),
	}
	if archives != nil {
		opts = append(opts, service.WithArchiveSource(
			historical.NewStoreSource(archives, cfg.ArchiveBucket, cfg.ArchivePrefix)))
	}
	return opts
}

// newService constructs the clients once and injects them.
func (c *cli) newService(ctx context.Context) (*service.Service, repository.ObjectStore, error) {
	store, archives, err := stores(ctx, c.cfg)
	if err != nil {
		return nil, nil, err
	}
	return service.New(store, serviceOptions(c.cfg, c.log, archives)...), store, nil
}
