package medallion

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/domain/model"
	"github.com/okian/bikeflow/pkg/logger"
)

// Discoverer finds bronze events landed after the checkpoint.
type Discoverer struct {
	store       repository.ObjectStore
	checkpoints *CheckpointStore
	bucket      string
	ext         string
	window      time.Duration
	clock       func() time.Time
	log         logger.Logger
}

// NewDiscoverer creates a discoverer over the bronze bucket.
func NewDiscoverer(store repository.ObjectStore, checkpoints *CheckpointStore, bronzeBucket string, opts ...Option) *Discoverer {
	o := applyOptions(opts)
	return &Discoverer{
		store:       store,
		checkpoints: checkpoints,
		bucket:      bronzeBucket,
		ext:         o.rawExt,
		window:      o.window,
		clock:       o.clock,
		log:         o.log.Named("discover"),
	}
}

// Discover returns the new bronze objects in (LastModified, Key) order and
// advances the checkpoint to the last one. An empty result leaves the
// checkpoint untouched.
func (d *Discoverer) Discover(ctx context.Context) ([]repository.ObjectInfo, error) {
	cp, err := d.checkpoints.Load(ctx)
	if err != nil {
		return nil, err
	}

	objects, err := d.store.List(ctx, d.bucket, "")
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if cp.IsZero() && d.window > 0 {
		cutoff = d.clock().Add(-d.window)
	}

	fresh := make([]repository.ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if strings.HasPrefix(obj.Key, HistoricalPrefix) || !strings.HasSuffix(obj.Key, d.ext) {
			continue
		}
		if !cp.IsZero() && cp.Covers(obj.LastModified, obj.Key) {
			continue
		}
		if !cutoff.IsZero() && obj.LastModified.Before(cutoff) {
			continue
		}
		fresh = append(fresh, obj)
	}
	slices.SortFunc(fresh, compareObjects)

	if len(fresh) == 0 {
		d.log.Debug(ctx, "no new bronze objects")
		return nil, nil
	}

	last := fresh[len(fresh)-1]
	if _, err := d.checkpoints.Advance(ctx, model.Checkpoint{LastModified: last.LastModified, LastKey: last.Key}); err != nil {
		return nil, err
	}
	d.log.Info(ctx, "discovered bronze objects",
		logger.Int("count", len(fresh)),
		logger.String("last_key", last.Key))
	return fresh, nil
}

func compareObjects(a, b repository.ObjectInfo) int {
	if c := a.LastModified.Compare(b.LastModified); c != 0 {
		return c
	}
	return strings.Compare(a.Key, b.Key)
}
