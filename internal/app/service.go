// Package service wires the medallion stages into pipeline runs and keeps
// the outcome of the latest run of each flow for the admin API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/domain/gate"
	"github.com/okian/bikeflow/internal/domain/model"
	"github.com/okian/bikeflow/internal/domain/scoring"
	"github.com/okian/bikeflow/internal/domain/types"
	"github.com/okian/bikeflow/internal/historical"
	"github.com/okian/bikeflow/internal/medallion"
	"github.com/okian/bikeflow/internal/monitoring"
	"github.com/okian/bikeflow/pkg/logger"
	"github.com/okian/bikeflow/pkg/metrics"
)

// Flow names.
const (
	FlowRealtime   = "realtime"
	FlowHistorical = "historical"
	FlowStage      = "stage"
	FlowMonitor    = "monitor"
)

// ErrNoArchiveSource is returned by StageHistorical when no remote source is configured.
var ErrNoArchiveSource = errors.New("no archive source configured")

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	RunID      string            `json:"run_id"`
	Flow       string            `json:"flow"`
	Status     types.RunStatus   `json:"status"`
	Err        error             `json:"-"`
	Error      string            `json:"error,omitempty"`
	Discovered int               `json:"discovered"`
	Records    int               `json:"records"`
	Metrics    *scoring.Metrics  `json:"metrics,omitempty"`
	Checks     *scoring.Checks   `json:"checks,omitempty"`
	StagingKey string            `json:"staging_key,omitempty"`
	Silver     *model.BatchRef   `json:"silver,omitempty"`
	Gold       map[string]string `json:"gold,omitempty"`
	ReportKey  string            `json:"report_key,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// MonitorResult is the outcome of a monitor run.
type MonitorResult struct {
	Health      monitoring.Health   `json:"health"`
	Snapshot    monitoring.Snapshot `json:"snapshot"`
	SnapshotKey string              `json:"snapshot_key"`
	Alerted     bool                `json:"alerted"`
}

// Service runs the realtime, historical, staging and monitor flows.
type Service struct {
	mu    sync.RWMutex
	runMu sync.Mutex

	store    repository.ObjectStore
	buckets  Buckets
	gate     *gate.QualityGate
	stations medallion.StationSource
	archives historical.ArchiveSource
	alerts   monitoring.AlertSink

	// Configuration
	scoringWorkers int
	window         time.Duration
	rawExt         string
	archiveWorkers int
	maxArchives    int
	limits         historical.Limits
	maxAttempts    int
	retryInterval  time.Duration
	maxLag         time.Duration

	// Stages
	discoverer *medallion.Discoverer
	scorer     *medallion.QualityScorer
	promoter   *medallion.SilverPromoter
	aggregator *medallion.GoldAggregator
	reports    *medallion.ReportEmitter
	manifest   *historical.ManifestStore
	loader     *historical.BronzeLoader
	monitor    *monitoring.Monitor

	// State
	last    map[string]RunResult
	lastMon *MonitorResult

	clock  func() time.Time
	logger logger.Logger
}

// New constructs a Service over store.
func New(store repository.ObjectStore, opts ...Option) *Service {
	s := &Service{
		store:          store,
		buckets:        DefaultBuckets(),
		gate:           gate.New(),
		scoringWorkers: runtime.NumCPU(),
		rawExt:         ".json",
		archiveWorkers: 4,
		maxAttempts:    5,
		retryInterval:  500 * time.Millisecond,
		maxLag:         30 * time.Minute,
		last:           make(map[string]RunResult),
		clock:          time.Now,
		logger:         logger.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("pipeline")

	mopts := []medallion.Option{
		medallion.WithClock(s.clock),
		medallion.WithLogger(s.logger),
		medallion.WithWorkers(s.scoringWorkers),
		medallion.WithWindow(s.window),
		medallion.WithRawExtension(s.rawExt),
	}
	checkpoints := medallion.NewCheckpointStore(store, s.buckets.Gold, mopts...)
	s.discoverer = medallion.NewDiscoverer(store, checkpoints, s.buckets.Bronze, mopts...)
	s.scorer = medallion.NewQualityScorer(store, s.buckets.Bronze, s.buckets.Silver, s.stations, mopts...)
	s.promoter = medallion.NewSilverPromoter(store, s.buckets.Silver, mopts...)
	s.aggregator = medallion.NewGoldAggregator(store, s.buckets.Gold, mopts...)
	s.reports = medallion.NewReportEmitter(store, s.buckets.Gold, s.gate, mopts...)
	s.manifest = historical.NewManifestStore(store, s.buckets.Historical, s.clock, s.logger)
	s.loader = historical.NewBronzeLoader(store, s.buckets.Historical, s.buckets.Bronze, s.manifest, s.logger)
	s.monitor = monitoring.New(store, monitoring.Buckets{
		Bronze: s.buckets.Bronze,
		Silver: s.buckets.Silver,
		Gold:   s.buckets.Gold,
	}, s.clock, s.logger)
	return s
}

// RunRealtime discovers new bronze events, scores them and promotes the batch
// when the gate admits it.
func (s *Service) RunRealtime(ctx context.Context) RunResult {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	res := s.begin(FlowRealtime)
	var objects []repository.ObjectInfo
	err := s.retry(ctx, "discover", func() (err error) {
		objects, err = s.discoverer.Discover(ctx)
		return err
	})
	if err != nil {
		return s.finish(ctx, res, err)
	}
	res.Discovered = len(objects)
	if len(objects) == 0 {
		res.Status = types.RunEmpty
		return s.finish(ctx, res, nil)
	}
	return s.finish(ctx, res, s.scoreAndPromote(ctx, &res, objects, types.SourceRealtime))
}

// RunHistorical loads pending historical batches into bronze, then scores
// and promotes them. Pending batches are archived only once the batch has a
// final outcome; on error they stay pending for the next run.
func (s *Service) RunHistorical(ctx context.Context) RunResult {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	res := s.begin(FlowHistorical)
	var load historical.Load
	err := s.retry(ctx, "bronze_load", func() error {
		v, err := s.loader.ValidatePending(ctx)
		if err != nil {
			return err
		}
		if len(v.Invalid) > 0 {
			s.logger.Warn(ctx, "invalid pending batches left in place", logger.Any("keys", v.Invalid))
		}
		load, err = s.loader.LoadToBronze(ctx, v.Valid)
		return err
	})
	if err != nil {
		return s.finish(ctx, res, err)
	}
	res.Discovered = len(load.Bronze)
	if len(load.Pending) == 0 {
		res.Status = types.RunEmpty
		return s.finish(ctx, res, nil)
	}

	if len(load.Bronze) == 0 {
		res.Status = types.RunEmpty
	} else if err := s.scoreAndPromote(ctx, &res, load.Bronze, types.SourceHistorical); err != nil {
		return s.finish(ctx, res, err)
	}

	err = s.retry(ctx, "complete", func() error {
		return s.loader.Complete(ctx, load.Pending)
	})
	return s.finish(ctx, res, err)
}

func (s *Service) scoreAndPromote(ctx context.Context, res *RunResult, objects []repository.ObjectInfo,
	source types.SourceType,
) error {
	var out medallion.ScoreOutcome
	err := s.retry(ctx, "score", func() (err error) {
		out, err = s.scorer.ScoreObjects(ctx, objects, source)
		return err
	})
	if err != nil {
		return err
	}
	res.Records = out.Metrics.Records
	res.Metrics = &out.Metrics
	res.Checks = &out.Checks
	res.StagingKey = out.StagingKey
	if out.Empty() {
		res.Status = types.RunEmpty
		return nil
	}

	err = s.retry(ctx, "report", func() (err error) {
		res.ReportKey, err = s.reports.Emit(ctx, out.Metrics, out.Checks)
		return err
	})
	if err != nil {
		return err
	}

	admitted := s.gate.Admit(out.Metrics)
	metrics.RecordGateDecision(admitted, string(source))
	if !admitted {
		s.logger.Warn(ctx, "quality gate blocked batch",
			logger.String("staging_key", out.StagingKey),
			logger.Float64("poor_share", out.Metrics.PoorShare),
			logger.Float64("threshold", s.gate.Threshold(string(source))))
		res.Status = types.RunBlocked
		return nil
	}

	var batch model.BatchRef
	err = s.retry(ctx, "promote", func() (err error) {
		batch, err = s.promoter.Promote(ctx, out.StagingKey)
		return err
	})
	if err != nil {
		return err
	}
	res.Silver = &batch
	if batch.Empty() {
		res.Status = types.RunEmpty
		return nil
	}

	err = s.retry(ctx, "aggregate", func() (err error) {
		res.Gold, err = s.aggregator.Aggregate(ctx, batch)
		return err
	})
	if err != nil {
		return err
	}
	res.Status = types.RunCompleted
	return nil
}

// StageHistorical downloads and stages remote archives the manifest has not
// seen. Per-archive failures are logged and leave those archives for the
// next run.
func (s *Service) StageHistorical(ctx context.Context) (historical.StageResult, RunResult) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	res := s.begin(FlowStage)
	if s.archives == nil {
		return historical.StageResult{}, s.finish(ctx, res, ErrNoArchiveSource)
	}
	stager := historical.NewStager(s.archives, s.store, s.buckets.Historical, s.manifest,
		historical.WithStageWorkers(s.archiveWorkers),
		historical.WithMaxArchives(s.maxArchives),
		historical.WithLimits(s.limits),
		historical.WithStageClock(s.clock),
		historical.WithStageLogger(s.logger))

	var staged historical.StageResult
	err := s.retry(ctx, "stage", func() (err error) {
		staged, err = stager.Run(ctx)
		return err
	})
	if err != nil {
		return staged, s.finish(ctx, res, err)
	}
	res.Discovered = len(staged.Staged) + len(staged.Empty) + len(staged.Skipped) + len(staged.Failed)
	res.Records = len(staged.Staged)
	res.Status = types.RunCompleted
	if len(staged.Staged) == 0 {
		res.Status = types.RunEmpty
	}
	return staged, s.finish(ctx, res, nil)
}

// Monitor checks bronze freshness, writes the observability snapshot and
// raises an alert when bronze is stale.
func (s *Service) Monitor(ctx context.Context) (MonitorResult, error) {
	var out MonitorResult
	err := s.retry(ctx, "monitor", func() (err error) {
		out.Health, err = s.monitor.CheckHealth(ctx, s.maxLag)
		if err != nil {
			return err
		}
		out.Snapshot, out.SnapshotKey, err = s.monitor.Snapshot(ctx)
		return err
	})
	if err != nil {
		metrics.RecordRunOutcome(FlowMonitor, string(types.RunError))
		return MonitorResult{}, err
	}

	if !out.Health.Healthy && s.alerts != nil {
		msg := monitoring.AlertMessage(out.Health, out.SnapshotKey)
		if err := s.alerts.Alert(ctx, msg); err != nil {
			s.logger.Error(ctx, "alert delivery failed", logger.Error(err))
		} else {
			out.Alerted = true
		}
	}
	metrics.RecordRunOutcome(FlowMonitor, string(types.RunCompleted))

	s.mu.Lock()
	s.lastMon = &out
	s.mu.Unlock()
	return out, nil
}

// LatestReport returns the most recent quality report.
func (s *Service) LatestReport(ctx context.Context) (medallion.Report, error) {
	return s.reports.Latest(ctx)
}

// LastRun returns the latest result of a flow.
func (s *Service) LastRun(flow string) (RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.last[flow]
	return r, ok
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make(map[string]RunResult, len(s.last))
	for flow, r := range s.last {
		runs[flow] = r
	}
	stats := map[string]interface{}{
		"buckets": map[string]string{
			"bronze":     s.buckets.Bronze,
			"silver":     s.buckets.Silver,
			"gold":       s.buckets.Gold,
			"historical": s.buckets.Historical,
		},
		"scoringWorkers": s.scoringWorkers,
		"runs":           runs,
	}
	if s.lastMon != nil {
		stats["monitor"] = *s.lastMon
	}
	return stats
}

func (s *Service) begin(flow string) RunResult {
	return RunResult{RunID: uuid.NewString(), Flow: flow, StartedAt: s.clock().UTC()}
}

// finish stamps the result, records it and publishes the flow status.
func (s *Service) finish(ctx context.Context, res RunResult, err error) RunResult {
	res.FinishedAt = s.clock().UTC()
	if err != nil {
		res.Status = types.RunError
		res.Err = err
		res.Error = err.Error()
	}

	fields := []logger.Field{
		logger.String("run_id", res.RunID),
		logger.String("flow", res.Flow),
		logger.String("status", string(res.Status)),
		logger.Int("records", res.Records),
	}
	if err != nil {
		s.logger.Error(ctx, "pipeline run failed", append(fields, logger.Error(err))...)
	} else {
		s.logger.Info(ctx, "pipeline run finished", fields...)
	}
	metrics.RecordRunOutcome(res.Flow, string(res.Status))

	status := monitoring.FlowStatus{
		Flow:      res.Flow,
		Status:    string(res.Status),
		Records:   res.Records,
		UpdatedAt: res.FinishedAt,
		Error:     res.Error,
	}
	if werr := s.monitor.WriteFlowStatus(context.WithoutCancel(ctx), status); werr != nil {
		s.logger.Warn(ctx, "flow status not written", logger.String("flow", res.Flow), logger.Error(werr))
	}

	s.mu.Lock()
	s.last[res.Flow] = res
	s.mu.Unlock()
	return res
}

// retry runs op with exponential backoff while it fails with a transient
// store error.
func (s *Service) retry(ctx context.Context, stage string, op func() error) error {
	start := time.Now()
	defer func() {
		metrics.RecordStageLatency(stage, float64(time.Since(start).Milliseconds()))
	}()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retryInterval
	eb.MaxInterval = 30 * s.retryInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(s.maxAttempts-1, 0))), ctx)

	err := backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !repository.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		metrics.RecordStageRetry(stage)
		s.logger.Warn(ctx, "transient failure, retrying",
			logger.String("stage", stage),
			logger.Duration("wait", wait),
			logger.Error(err))
	})
	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	return nil
}
