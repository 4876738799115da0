package historical

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/okian/bikeflow/internal/adapters/dataset"
	"github.com/okian/bikeflow/internal/adapters/mq/queue"
	"github.com/okian/bikeflow/internal/adapters/mq/worker"
	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/domain/dedupe"
	"github.com/okian/bikeflow/internal/domain/model"
	"github.com/okian/bikeflow/internal/domain/types"
	"github.com/okian/bikeflow/pkg/logger"
	"github.com/okian/bikeflow/pkg/metrics"
)

// Key prefixes inside the historical bucket.
const (
	PendingPrefix   = "pending/"
	ProcessedPrefix = "processed/"
	stampLayout     = "20060102T150405Z"
)

// PendingKey names a staged archive batch.
func PendingKey(slug string, now time.Time) string {
	return fmt.Sprintf("%sarchive=%s/historical_%s_%s%s", PendingPrefix, slug, slug,
		now.UTC().Format(stampLayout), dataset.ParquetExt)
}

// StageResult summarises one staging pass.
type StageResult struct {
	Staged  []model.ArchiveEntry `json:"staged"`
	Empty   []string             `json:"empty"`
	Skipped []string             `json:"skipped"`
	Failed  map[string]string    `json:"failed"`
}

// Stager downloads eligible archives, normalizes them and stages one parquet
// batch per archive under the pending prefix.
type Stager struct {
	source     ArchiveSource
	store      repository.ObjectStore
	bucket     string
	manifest   *ManifestStore
	normalizer *Normalizer
	limits     Limits
	workers    int
	perRun     int
	clock      func() time.Time
	log        logger.Logger

	mu     sync.Mutex
	result StageResult
}

// StagerOption configures a Stager.
type StagerOption func(*Stager)

// WithStageWorkers sets the number of concurrent archive downloads.
func WithStageWorkers(n int) StagerOption {
	return func(s *Stager) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxArchives caps how many unseen archives one pass stages. Archives
// the manifest already tracks do not count, so later passes move on to the
// next ones. Non-positive means no cap.
func WithMaxArchives(n int) StagerOption {
	return func(s *Stager) { s.perRun = max(n, 0) }
}

// WithLimits bounds archive extraction.
func WithLimits(l Limits) StagerOption {
	return func(s *Stager) {
		if l.MaxDepth > 0 {
			s.limits.MaxDepth = l.MaxDepth
		}
		if l.MaxBytes > 0 {
			s.limits.MaxBytes = l.MaxBytes
		}
	}
}

// WithStageClock overrides the time source.
func WithStageClock(clock func() time.Time) StagerOption {
	return func(s *Stager) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithStageLogger sets the logger.
func WithStageLogger(l logger.Logger) StagerOption {
	return func(s *Stager) {
		if l != nil {
			s.log = l
		}
	}
}

// NewStager creates a stager writing into the historical bucket.
func NewStager(source ArchiveSource, store repository.ObjectStore, bucket string, manifest *ManifestStore,
	opts ...StagerOption,
) *Stager {
	s := &Stager{
		source:   source,
		store:    store,
		bucket:   bucket,
		manifest: manifest,
		limits:   Limits{MaxDepth: 3, MaxBytes: 4 << 30},
		workers:  4,
		clock:    time.Now,
		log:      logger.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("stager")
	s.normalizer = NewNormalizer(s.clock)
	return s
}

// Run stages every eligible archive the manifest has not seen. Archive
// failures are recorded in the result and leave the archive unseen; only
// listing and manifest failures abort the pass.
func (s *Stager) Run(ctx context.Context) (StageResult, error) {
	s.mu.Lock()
	s.result = StageResult{Failed: map[string]string{}}
	s.mu.Unlock()

	m, err := s.manifest.Load(ctx)
	if err != nil {
		return StageResult{}, err
	}
	archives, err := s.source.List(ctx)
	if err != nil {
		return StageResult{}, err
	}

	q := queue.NewInMemoryQueue(queue.WithCapacity(max(len(archives), 1)))
	seen := make(map[string]bool, len(archives))
	deferred := 0
	for _, a := range archives {
		if m.Done(a.Key) || seen[a.Key] {
			s.record(func(r *StageResult) { r.Skipped = append(r.Skipped, a.Key) })
			metrics.RecordArchive("skipped")
			continue
		}
		if s.perRun > 0 && len(seen) >= s.perRun {
			deferred++
			continue
		}
		seen[a.Key] = true
		job := model.ArchiveJob{Name: a.Key, Slug: Slug(strings.TrimSuffix(a.Name, path.Ext(a.Name))), Size: a.Size}
		if !q.Enqueue(ctx, job) {
			return StageResult{}, fmt.Errorf("%w: %s", queue.ErrQueueFull, a.Key)
		}
	}
	if err := q.Close(); err != nil {
		return StageResult{}, err
	}

	pool := worker.NewPool(s.workers, q, worker.HandlerFunc(s.stage), worker.WithLogger(s.log))
	pool.Start(ctx)
	if err := pool.Wait(ctx); err != nil {
		// In-flight jobs finish before Run returns.
		_ = pool.Shutdown(context.WithoutCancel(ctx))
		s.log.Warn(ctx, "historical staging cancelled",
			logger.Int("abandoned", q.Len(ctx)),
			logger.Int("processed", int(pool.Processed())),
			logger.Int("failed", int(pool.Failed())))
		return s.snapshot(), err
	}

	res := s.snapshot()
	s.log.Info(ctx, "historical staging finished",
		logger.Int("staged", len(res.Staged)),
		logger.Int("empty", len(res.Empty)),
		logger.Int("skipped", len(res.Skipped)),
		logger.Int("deferred", deferred),
		logger.Int("failed", int(pool.Failed())))
	return res, nil
}

func (s *Stager) record(f func(*StageResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.result)
}

func (s *Stager) snapshot() StageResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := StageResult{
		Staged:  slices.Clone(s.result.Staged),
		Empty:   slices.Clone(s.result.Empty),
		Skipped: slices.Clone(s.result.Skipped),
		Failed:  make(map[string]string, len(s.result.Failed)),
	}
	for k, v := range s.result.Failed {
		out.Failed[k] = v
	}
	slices.SortFunc(out.Staged, func(a, b model.ArchiveEntry) int { return strings.Compare(a.Name, b.Name) })
	slices.Sort(out.Empty)
	return out
}

// stage handles one archive job. The manifest is only advanced after the
// staged object is durable.
func (s *Stager) stage(ctx context.Context, job worker.Job) error {
	entry, err := s.stageArchive(ctx, job)
	if err != nil {
		metrics.RecordArchive("failed")
		s.record(func(r *StageResult) { r.Failed[job.Name] = err.Error() })
		s.log.Warn(ctx, "archive staging failed", logger.String("archive", job.Name), logger.Error(err))
		return err
	}
	if entry.Status == types.ArchiveProcessed {
		metrics.RecordArchive("empty")
		s.record(func(r *StageResult) { r.Empty = append(r.Empty, job.Name) })
		return nil
	}
	metrics.RecordArchive("staged")
	s.record(func(r *StageResult) { r.Staged = append(r.Staged, entry) })
	return nil
}

func (s *Stager) stageArchive(ctx context.Context, job worker.Job) (model.ArchiveEntry, error) {
	if job.Size > s.limits.MaxBytes {
		return model.ArchiveEntry{}, fmt.Errorf("%w: %d bytes", ErrArchiveTooLarge, job.Size)
	}
	data, err := s.source.Fetch(ctx, job.Name)
	if err != nil {
		return model.ArchiveEntry{}, err
	}
	members, err := Extract(data, job.Slug, s.limits)
	if err != nil {
		return model.ArchiveEntry{}, err
	}

	var rows []model.TripRecord
	for _, member := range members {
		normalized, err := s.normalizer.Normalize(member.Data, member.Slug)
		if err != nil {
			return model.ArchiveEntry{}, fmt.Errorf("%w: %s: %v", ErrArchiveFetch, member.Name, err)
		}
		s.log.Debug(ctx, "member normalized",
			logger.String("member", member.Name), logger.Int("rows", len(normalized)))
		rows = append(rows, normalized...)
	}
	rows = dedupe.KeepLast(rows, model.TripRecord.ID)

	if err := ctx.Err(); err != nil {
		return model.ArchiveEntry{}, err
	}
	entry := model.ArchiveEntry{Name: job.Name, Slug: job.Slug}
	if len(rows) == 0 {
		entry.Status = types.ArchiveProcessed
		return entry, s.manifest.Merge(ctx, entry)
	}

	encoded, err := dataset.Encode(rows)
	if err != nil {
		return model.ArchiveEntry{}, err
	}
	entry.Status = types.ArchivePending
	entry.StagedKey = PendingKey(job.Slug, s.clock())
	if err := s.store.Put(ctx, s.bucket, entry.StagedKey, encoded); err != nil {
		return model.ArchiveEntry{}, err
	}
	if err := s.manifest.Merge(ctx, entry); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			s.log.Warn(ctx, "archive advanced elsewhere", logger.String("archive", job.Name))
		}
		// Every pending batch is tracked by the manifest.
		if derr := s.store.Delete(context.WithoutCancel(ctx), s.bucket, entry.StagedKey); derr != nil {
			s.log.Error(ctx, "orphaned pending batch",
				logger.String("staged_key", entry.StagedKey), logger.Error(derr))
		}
		return model.ArchiveEntry{}, err
	}
	s.log.Info(ctx, "archive staged",
		logger.String("archive", job.Name),
		logger.String("staged_key", entry.StagedKey),
		logger.Int("rows", len(rows)))
	return entry, nil
}
