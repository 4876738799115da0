package medallion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/domain/model"
	"github.com/okian/bikeflow/pkg/logger"
)

// CheckpointStore persists the discovery cursor as a small JSON document.
type CheckpointStore struct {
	mu     sync.Mutex
	store  repository.ObjectStore
	bucket string
	key    string
	clock  func() time.Time
	log    logger.Logger
}

// NewCheckpointStore creates a store writing to bucket/CheckpointKey.
func NewCheckpointStore(store repository.ObjectStore, bucket string, opts ...Option) *CheckpointStore {
	o := applyOptions(opts)
	return &CheckpointStore{
		store:  store,
		bucket: bucket,
		key:    CheckpointKey,
		clock:  o.clock,
		log:    o.log.Named("checkpoint"),
	}
}

// Load returns the stored cursor. Missing and corrupt documents both yield a
// zero cursor; only transient store failures are returned.
func (c *CheckpointStore) Load(ctx context.Context) (model.Checkpoint, error) {
	cp, err := c.read(ctx)
	switch {
	case err == nil:
		return cp, nil
	case errors.Is(err, repository.ErrNotFound):
		return model.Checkpoint{}, nil
	case errors.Is(err, ErrCheckpointCorrupt):
		c.log.Warn(ctx, "checkpoint unreadable, rescanning", logger.Error(err))
		return model.Checkpoint{}, nil
	default:
		return model.Checkpoint{}, err
	}
}

func (c *CheckpointStore) read(ctx context.Context) (model.Checkpoint, error) {
	data, err := c.store.Get(ctx, c.bucket, c.key)
	if err != nil {
		return model.Checkpoint{}, err
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return model.Checkpoint{}, fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
	}
	return cp, nil
}

// Advance stores next unless the persisted cursor is already at or past it.
// It returns the cursor in effect afterwards.
func (c *CheckpointStore) Advance(ctx context.Context, next model.Checkpoint) (model.Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.Load(ctx)
	if err != nil {
		return model.Checkpoint{}, err
	}
	if !current.Less(next) {
		return current, nil
	}

	next.UpdatedAt = c.clock().UTC()
	data, err := json.Marshal(next)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := c.store.Put(ctx, c.bucket, c.key, data); err != nil {
		return model.Checkpoint{}, err
	}
	return next, nil
}
