package historical

import (
	"context"
	"errors"
	"path"
	"slices"
	"strings"

	"github.com/okian/bikeflow/internal/adapters/dataset"
	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/domain/model"
	"github.com/okian/bikeflow/internal/domain/types"
	"github.com/okian/bikeflow/pkg/logger"
)

// BronzePrefix is where historical batches land in the bronze bucket.
const BronzePrefix = "historical/"

var requiredColumns = []string{model.FieldTripID, model.FieldStartTime, model.FieldEndTime}

// Validation splits pending batches by whether they can be loaded.
type Validation struct {
	Valid   []string `json:"valid_files"`
	Invalid []string `json:"invalid_files"`
}

// BronzeLoader moves staged historical batches into bronze.
type BronzeLoader struct {
	store      repository.ObjectStore
	histBucket string
	bronze     string
	manifest   *ManifestStore
	log        logger.Logger
}

// NewBronzeLoader creates a loader.
func NewBronzeLoader(store repository.ObjectStore, historicalBucket, bronzeBucket string, manifest *ManifestStore,
	log logger.Logger,
) *BronzeLoader {
	if log == nil {
		log = logger.Default()
	}
	return &BronzeLoader{
		store:      store,
		histBucket: historicalBucket,
		bronze:     bronzeBucket,
		manifest:   manifest,
		log:        log.Named("bronze-loader"),
	}
}

// BronzeKey returns the bronze key of a pending batch.
func BronzeKey(pendingKey string) string {
	stem := strings.TrimSuffix(path.Base(pendingKey), path.Ext(pendingKey))
	return BronzePrefix + stem + "/" + stem + dataset.ParquetExt
}

// ProcessedKey returns where a pending batch is archived after loading.
func ProcessedKey(pendingKey string) string {
	return ProcessedPrefix + strings.TrimPrefix(pendingKey, PendingPrefix)
}

// ValidatePending lists pending parquet batches. Undecodable batches and
// batches lacking trip_id, start_time or end_time are invalid.
func (l *BronzeLoader) ValidatePending(ctx context.Context) (Validation, error) {
	objects, err := l.store.List(ctx, l.histBucket, PendingPrefix)
	if err != nil {
		return Validation{}, err
	}
	var keys []string
	for _, o := range objects {
		if strings.HasSuffix(o.Key, dataset.ParquetExt) {
			keys = append(keys, o.Key)
		}
	}
	slices.Sort(keys)

	var v Validation
	for _, key := range keys {
		data, err := l.store.Get(ctx, l.histBucket, key)
		if err != nil {
			return Validation{}, err
		}
		cols, err := dataset.Columns(data)
		if err != nil || !hasAll(cols, requiredColumns) {
			l.log.Warn(ctx, "pending batch invalid", logger.String("key", key))
			v.Invalid = append(v.Invalid, key)
			continue
		}
		v.Valid = append(v.Valid, key)
	}
	return v, nil
}

func hasAll(have, want []string) bool {
	for _, w := range want {
		if !slices.Contains(have, w) {
			return false
		}
	}
	return true
}

// Load is the outcome of LoadToBronze.
type Load struct {
	Pending []string                // pending keys loaded, empty batches included
	Bronze  []repository.ObjectInfo // bronze objects written
}

// LoadToBronze copies each valid batch to bronze. Pending batches stay where
// they are until Complete, so a run that fails downstream loads them again.
// Bronze keys are derived from pending keys, which makes a reload overwrite
// rather than duplicate. Empty batches are loaded without a bronze write.
func (l *BronzeLoader) LoadToBronze(ctx context.Context, valid []string) (Load, error) {
	var out Load
	for _, key := range valid {
		data, err := l.store.Get(ctx, l.histBucket, key)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return out, err
		}
		rows, err := dataset.Decode[model.TripRecord](data)
		if err != nil {
			return out, err
		}

		if len(rows) > 0 {
			for i := range rows {
				rows[i].SourceType = string(types.SourceHistorical)
			}
			encoded, err := dataset.Encode(rows)
			if err != nil {
				return out, err
			}
			bronzeKey := BronzeKey(key)
			if err := l.store.Put(ctx, l.bronze, bronzeKey, encoded); err != nil {
				return out, err
			}
			out.Bronze = append(out.Bronze, repository.ObjectInfo{Bucket: l.bronze, Key: bronzeKey, Size: int64(len(encoded))})
		}
		out.Pending = append(out.Pending, key)
		l.log.Info(ctx, "historical batch loaded",
			logger.String("pending_key", key), logger.Int("rows", len(rows)))
	}
	return out, nil
}

// Complete archives loaded batches under processed/ and marks their manifest
// entries processed. Batches already moved are only marked, so a retried
// call is safe.
func (l *BronzeLoader) Complete(ctx context.Context, pending []string) error {
	for _, key := range pending {
		if err := l.moveToProcessed(ctx, key); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := l.markProcessed(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (l *BronzeLoader) moveToProcessed(ctx context.Context, key string) error {
	if err := l.store.Copy(ctx, l.histBucket, key, ProcessedKey(key)); err != nil {
		return err
	}
	return l.store.Delete(ctx, l.histBucket, key)
}

func (l *BronzeLoader) markProcessed(ctx context.Context, key string) error {
	m, err := l.manifest.Load(ctx)
	if err != nil {
		return err
	}
	entry, ok := m.ByStagedKey(key)
	if !ok {
		return nil
	}
	entry.Status = types.ArchiveProcessed
	return l.manifest.Merge(ctx, entry)
}
