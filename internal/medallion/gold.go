package medallion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/bikeflow/internal/adapters/dataset"
	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/domain/dedupe"
	"github.com/okian/bikeflow/internal/domain/model"
	"github.com/okian/bikeflow/internal/domain/types"
	"github.com/okian/bikeflow/pkg/logger"
	"github.com/okian/bikeflow/pkg/metrics"
)

// GoldAggregator folds silver batches into the gold rollup tables. Merges are
// read-modify-write of whole tables, so one aggregator serialises them.
type GoldAggregator struct {
	mu     sync.Mutex
	store  repository.ObjectStore
	bucket string
	log    logger.Logger
}

// NewGoldAggregator creates an aggregator writing to the gold bucket.
func NewGoldAggregator(store repository.ObjectStore, goldBucket string, opts ...Option) *GoldAggregator {
	o := applyOptions(opts)
	return &GoldAggregator{
		store:  store,
		bucket: goldBucket,
		log:    o.log.Named("gold"),
	}
}

// Aggregate rolls up every object of batch and upserts the three gold tables.
// It returns the key of each table written.
func (g *GoldAggregator) Aggregate(ctx context.Context, batch model.BatchRef) (map[string]string, error) {
	if batch.Empty() {
		return map[string]string{}, nil
	}

	var rows []model.ScoredRecord
	for _, key := range batch.Keys {
		data, err := g.store.Get(ctx, batch.Bucket, key)
		if err != nil {
			return nil, err
		}
		part, err := dataset.Decode[model.ScoredRecord](data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSilverRead, key, err)
		}
		rows = append(rows, part...)
	}
	if len(rows) == 0 {
		return map[string]string{}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]string, 3)
	var err error
	if out[model.TableStationStatus], err = upsert(ctx, g, model.TableStationStatus,
		StationRollup(rows), model.CompareStationStatus); err != nil {
		return nil, err
	}
	if out[model.TableHourlyUsage], err = upsert(ctx, g, model.TableHourlyUsage,
		HourlyRollup(rows), model.CompareHourlyUsage); err != nil {
		return nil, err
	}
	if out[model.TableQualityTrends], err = upsert(ctx, g, model.TableQualityTrends,
		TrendRollup(rows), model.CompareQualityTrend); err != nil {
		return nil, err
	}
	return out, nil
}

// upsert merges fresh into the stored table keeping the last row per key.
func upsert[T any](ctx context.Context, g *GoldAggregator, table string, fresh []T, cmp func(a, b T) int) (string, error) {
	key := GoldKey(table)
	existing, err := ReadTable[T](ctx, g.store, g.bucket, table)
	if err != nil {
		return "", err
	}

	merged := dedupe.SortKeepLast(append(existing, fresh...), cmp)
	data, err := dataset.Encode(merged)
	if err != nil {
		return "", err
	}
	if err := g.store.Put(ctx, g.bucket, key, data); err != nil {
		return "", err
	}
	metrics.RecordGoldRows(table, len(merged))
	g.log.Info(ctx, "gold table upserted",
		logger.String("table", table),
		logger.Int("incoming", len(fresh)),
		logger.Int("rows", len(merged)))
	return key, nil
}

// ReadTable loads a gold table. A missing table is empty.
func ReadTable[T any](ctx context.Context, store repository.ObjectStore, bucket, table string) ([]T, error) {
	data, err := store.Get(ctx, bucket, GoldKey(table))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rows, err := dataset.Decode[T](data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrGoldRead, table, err)
	}
	return rows, nil
}

type stationKey struct {
	source  string
	station int64
}

type hourKey struct {
	source string
	hour   time.Time
}

type dateKey struct {
	source string
	date   string
}

type stats struct {
	trips int64
	n     int
	sum   float64
	poor  int
}

func (s *stats) add(r model.ScoredRecord) {
	if r.TripID != nil {
		s.trips++
	}
	s.n++
	s.sum += r.QualityScore
	if r.Band() == types.BandPoor {
		s.poor++
	}
}

func (s *stats) mean() float64 { return s.sum / float64(s.n) }

// StationRollup counts trips started and averages quality per start station.
// Rows without a start station are dropped.
func StationRollup(rows []model.ScoredRecord) []model.StationStatus {
	groups := make(map[stationKey]*stats)
	for _, r := range rows {
		if r.StartStationID == nil {
			continue
		}
		k := stationKey{source: r.SourceType, station: *r.StartStationID}
		groupOf(groups, k).add(r)
	}
	out := make([]model.StationStatus, 0, len(groups))
	for k, s := range groups {
		out = append(out, model.StationStatus{
			SourceType:     k.source,
			StartStationID: k.station,
			TripsStarted:   s.trips,
			AvgQuality:     s.mean(),
		})
	}
	return dedupe.SortKeepLast(out, model.CompareStationStatus)
}

// HourlyRollup counts trips and averages quality per start hour.
// Rows without a start time are dropped.
func HourlyRollup(rows []model.ScoredRecord) []model.HourlyUsage {
	groups := make(map[hourKey]*stats)
	for _, r := range rows {
		if r.StartTime == nil {
			continue
		}
		k := hourKey{source: r.SourceType, hour: r.StartTime.UTC().Truncate(time.Hour)}
		groupOf(groups, k).add(r)
	}
	out := make([]model.HourlyUsage, 0, len(groups))
	for k, s := range groups {
		out = append(out, model.HourlyUsage{
			SourceType: k.source,
			Hour:       k.hour,
			Trips:      s.trips,
			AvgQuality: s.mean(),
		})
	}
	return dedupe.SortKeepLast(out, model.CompareHourlyUsage)
}

// TrendRollup averages quality and computes the POOR share per start date.
// Rows without a start time are dropped.
func TrendRollup(rows []model.ScoredRecord) []model.QualityTrend {
	groups := make(map[dateKey]*stats)
	for _, r := range rows {
		if r.StartTime == nil {
			continue
		}
		k := dateKey{source: r.SourceType, date: r.StartTime.UTC().Format(partitionDateLayout)}
		groupOf(groups, k).add(r)
	}
	out := make([]model.QualityTrend, 0, len(groups))
	for k, s := range groups {
		out = append(out, model.QualityTrend{
			SourceType:  k.source,
			Date:        k.date,
			MeanQuality: s.mean(),
			PoorShare:   float64(s.poor) / float64(s.n),
		})
	}
	return dedupe.SortKeepLast(out, model.CompareQualityTrend)
}

func groupOf[K comparable](groups map[K]*stats, k K) *stats {
	s, ok := groups[k]
	if !ok {
		s = &stats{}
		groups[k] = s
	}
	return s
}
