package testevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/medallion"
	"github.com/okian/bikeflow/pkg/logger"
	"github.com/okian/bikeflow/pkg/metrics"
)

// ErrUnbounded is returned when a run has neither a count nor a duration.
var ErrUnbounded = errors.New("firehose needs a count or a duration")

// Firehose writes synthetic events into the bronze bucket.
type Firehose struct {
	store  repository.ObjectStore
	bucket string
	ext    string
	clock  func() time.Time
	log    logger.Logger
}

// NewFirehose creates a firehose writing ext-suffixed events into bucket.
func NewFirehose(store repository.ObjectStore, bucket, ext string, clock func() time.Time, log logger.Logger) *Firehose {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logger.Default()
	}
	if ext == "" {
		ext = ".json"
	}
	return &Firehose{store: store, bucket: bucket, ext: ext, clock: clock, log: log.Named("firehose")}
}

// Run generates events until the count or duration is reached or ctx ends.
// Individual write failures are counted and do not stop the run.
func (f *Firehose) Run(ctx context.Context, cfg Config) (Stats, error) {
	if cfg.Count <= 0 && cfg.Duration <= 0 {
		return Stats{}, ErrUnbounded
	}
	stats := Stats{Variants: map[string]int{}, StartTime: f.clock()}

	parent := ctx
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, cfg.Duration)
		defer cancel()
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)
	gen := NewGenerator(cfg.Seed, cfg.BadRatio)

	f.log.Info(ctx, "firehose started",
		logger.Float64("rate", cfg.Rate),
		logger.Int("count", cfg.Count),
		logger.Duration("duration", cfg.Duration),
		logger.Float64("bad_ratio", cfg.BadRatio))

	var err error
	for idx := 0; cfg.Count <= 0 || idx < cfg.Count; idx++ {
		if err = limiter.Wait(ctx); err != nil {
			break
		}
		variant := gen.PickVariant()
		if werr := f.write(ctx, gen.Event(idx, variant, f.clock())); werr != nil {
			stats.EventsFailed++
			f.log.Warn(ctx, "event write failed", logger.Int("index", idx), logger.Error(werr))
		} else {
			stats.EventsWritten++
		}
		stats.EventsGenerated++
		stats.Variants[variant]++
		metrics.RecordEventGenerated(variant)
	}

	stats.EndTime = f.clock()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	f.log.Info(ctx, "firehose finished",
		logger.Int("generated", stats.EventsGenerated),
		logger.Int("written", stats.EventsWritten),
		logger.Int("failed", stats.EventsFailed))

	// Reaching the configured duration is a normal stop.
	if err != nil && cfg.Duration > 0 && parent.Err() == nil {
		err = nil
	}
	if err != nil {
		return stats, fmt.Errorf("firehose stopped: %w", err)
	}
	return stats, nil
}

func (f *Firehose) write(ctx context.Context, event map[string]any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := medallion.BronzeEventKey(f.clock(), uuid.NewString(), f.ext)
	return f.store.Put(ctx, f.bucket, key, data)
}
