package medallion

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/bikeflow/internal/adapters/dataset"
	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/domain/model"
	"github.com/okian/bikeflow/internal/domain/scoring"
	"github.com/okian/bikeflow/internal/domain/types"
	"github.com/okian/bikeflow/pkg/logger"
	"github.com/okian/bikeflow/pkg/metrics"
)

// StationSource yields the station table for one scoring pass.
type StationSource func(ctx context.Context) scoring.StationLookup

// ScoreOutcome is the result of one scoring pass. StagingKey is empty when
// there was nothing to score.
type ScoreOutcome struct {
	StagingKey string          `json:"staging_key,omitempty"`
	Metrics    scoring.Metrics `json:"metrics"`
	Checks     scoring.Checks  `json:"checks"`
	Skipped    int             `json:"skipped_objects"`
}

// Empty reports whether nothing was staged.
func (o ScoreOutcome) Empty() bool { return o.StagingKey == "" }

// QualityScorer grades raw records and stages the scored batch in silver.
type QualityScorer struct {
	store        repository.ObjectStore
	bronzeBucket string
	silverBucket string
	stations     StationSource
	workers      int
	clock        func() time.Time
	log          logger.Logger
}

// NewQualityScorer creates a scorer. A nil station source scores without a
// station reference.
func NewQualityScorer(store repository.ObjectStore, bronzeBucket, silverBucket string,
	stations StationSource, opts ...Option,
) *QualityScorer {
	o := applyOptions(opts)
	if stations == nil {
		stations = func(context.Context) scoring.StationLookup { return scoring.Stations{} }
	}
	return &QualityScorer{
		store:        store,
		bronzeBucket: bronzeBucket,
		silverBucket: silverBucket,
		stations:     stations,
		workers:      o.workers,
		clock:        o.clock,
		log:          o.log.Named("scorer"),
	}
}

// ScoreObjects reads bronze objects and scores their rows. Realtime passes
// tag untagged rows as realtime; historical passes keep historical rows only.
// Objects that cannot be decoded are skipped and counted.
func (q *QualityScorer) ScoreObjects(ctx context.Context, objects []repository.ObjectInfo,
	source types.SourceType,
) (ScoreOutcome, error) {
	var rows []scoring.Row
	skipped := 0
	for _, obj := range objects {
		data, err := q.store.Get(ctx, q.bronzeBucket, obj.Key)
		if errors.Is(err, repository.ErrNotFound) {
			skipped++
			continue
		}
		if err != nil {
			return ScoreOutcome{}, err
		}
		decoded, err := dataset.DecodeRows(obj.Key, data, model.TripRecord.Row)
		if err != nil {
			q.log.Warn(ctx, "skipping undecodable bronze object",
				logger.String("key", obj.Key), logger.Error(err))
			skipped++
			continue
		}
		for _, raw := range decoded {
			if row, ok := selectRow(raw, source); ok {
				rows = append(rows, row)
			}
		}
	}

	out, err := q.Score(ctx, rows, source)
	out.Skipped = skipped
	return out, err
}

func selectRow(raw map[string]any, source types.SourceType) (scoring.Row, bool) {
	row := scoring.Row(raw)
	tag := scoring.StringField(row, model.FieldSourceType)
	switch source {
	case types.SourceHistorical:
		return row, tag.Ok() && source.Matches(tag.Value)
	default:
		if !tag.Ok() {
			row[model.FieldSourceType] = string(source)
		}
		return row, true
	}
}

// Score grades rows in parallel and writes the scored batch to staging.
// Scoring is order independent; the staged batch keeps input order.
func (q *QualityScorer) Score(ctx context.Context, rows []scoring.Row, source types.SourceType) (ScoreOutcome, error) {
	now := q.clock()
	acc := scoring.NewAccumulator(len(rows))
	if len(rows) == 0 {
		return ScoreOutcome{Metrics: acc.Metrics(string(source), now), Checks: acc.Checks()}, nil
	}

	stations := q.stations(ctx)
	scored := make([]model.ScoredRecord, len(rows))
	results := make([]scoring.Result, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.workers)
	chunk := (len(rows) + q.workers - 1) / q.workers
	for lo := 0; lo < len(rows); lo += chunk {
		hi := min(lo+chunk, len(rows))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				r := scoring.Score(rows[i], stations)
				if r.Trip.SourceType == "" {
					r.Trip.SourceType = string(source)
				}
				results[i] = r
				scored[i] = model.NewScoredRecord(r.Trip, r.Grade())
				acc.Add(r)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ScoreOutcome{}, err
	}

	for _, r := range results {
		metrics.RecordRecordScored(string(r.Band), string(source))
		metrics.RecordPenalty("schema", r.SchemaPenalty)
		metrics.RecordPenalty("validity", r.ValidityPenalty)
		metrics.RecordPenalty("business", r.BusinessPenalty)
	}

	out := ScoreOutcome{Metrics: acc.Metrics(string(source), now), Checks: acc.Checks()}
	metrics.RecordDuplicateTripIDs(out.Checks.DuplicateIDs)

	data, err := dataset.Encode(scored)
	if err != nil {
		return ScoreOutcome{}, err
	}
	key := StagingKey(string(source), now)
	if err := q.store.Put(ctx, q.silverBucket, key, data); err != nil {
		return ScoreOutcome{}, err
	}
	out.StagingKey = key

	q.log.Info(ctx, "scored batch staged",
		logger.String("staging_key", key),
		logger.Int("records", out.Metrics.Records),
		logger.Float64("poor_share", out.Metrics.PoorShare),
		logger.Float64("pass_rate", out.Metrics.QualityPassRate),
		logger.Int("issues_found", out.Checks.IssuesFound))
	return out, nil
}
