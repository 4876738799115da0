package medallion

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/okian/bikeflow/internal/adapters/dataset"
	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/domain/model"
	"github.com/okian/bikeflow/pkg/logger"
)

// SilverPromoter moves an admitted staging batch into date/hour partitions.
type SilverPromoter struct {
	store  repository.ObjectStore
	bucket string
	clock  func() time.Time
	log    logger.Logger
}

// NewSilverPromoter creates a promoter over the silver bucket.
func NewSilverPromoter(store repository.ObjectStore, silverBucket string, opts ...Option) *SilverPromoter {
	o := applyOptions(opts)
	return &SilverPromoter{
		store:  store,
		bucket: silverBucket,
		clock:  o.clock,
		log:    o.log.Named("promote"),
	}
}

type partition struct{ date, hour string }

// Promote writes one silver object per partition and then deletes the staging
// object. An empty or missing staging batch produces an empty reference and
// touches nothing.
func (p *SilverPromoter) Promote(ctx context.Context, stagingKey string) (model.BatchRef, error) {
	ref := model.BatchRef{Bucket: p.bucket}
	if stagingKey == "" {
		return ref, nil
	}

	data, err := p.store.Get(ctx, p.bucket, stagingKey)
	if errors.Is(err, repository.ErrNotFound) {
		p.log.Warn(ctx, "staging batch missing", logger.String("key", stagingKey))
		return ref, nil
	}
	if err != nil {
		return ref, err
	}
	rows, err := dataset.Decode[model.ScoredRecord](data)
	if err != nil {
		return ref, fmt.Errorf("%w: %s: %v", ErrStagingRead, stagingKey, err)
	}
	if len(rows) == 0 {
		return ref, nil
	}

	groups := make(map[partition][]model.ScoredRecord)
	for _, r := range rows {
		date, hour := r.Partition()
		k := partition{date: date, hour: hour}
		groups[k] = append(groups[k], r)
	}
	parts := make([]partition, 0, len(groups))
	for k := range groups {
		parts = append(parts, k)
	}
	slices.SortFunc(parts, func(a, b partition) int {
		return cmp.Or(strings.Compare(a.date, b.date), strings.Compare(a.hour, b.hour))
	})

	now := p.clock()
	for _, part := range parts {
		encoded, err := dataset.Encode(groups[part])
		if err != nil {
			return model.BatchRef{Bucket: p.bucket}, err
		}
		key := SilverKey(part.date, part.hour, now)
		if err := p.store.Put(ctx, p.bucket, key, encoded); err != nil {
			return model.BatchRef{Bucket: p.bucket}, err
		}
		ref.Keys = append(ref.Keys, key)
		ref.Last = key
	}

	if err := p.store.Delete(ctx, p.bucket, stagingKey); err != nil {
		return ref, err
	}
	p.log.Info(ctx, "batch promoted to silver",
		logger.String("staging_key", stagingKey),
		logger.Int("partitions", len(ref.Keys)),
		logger.Int("records", len(rows)))
	return ref, nil
}
