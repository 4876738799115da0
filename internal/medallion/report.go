package medallion

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/domain/gate"
	"github.com/okian/bikeflow/internal/domain/scoring"
	"github.com/okian/bikeflow/internal/domain/types"
	"github.com/okian/bikeflow/pkg/logger"
)

// Report statuses.
const (
	StatusHealthy   = "healthy"
	StatusAttention = "attention"
)

// Report is the JSON quality summary of one scoring run.
type Report struct {
	GeneratedAt        time.Time          `json:"generated_at"`
	Records            int                `json:"records"`
	QualityPassRate    float64            `json:"quality_pass_rate"`
	PoorShare          float64            `json:"poor_share"`
	AvgQualityScore    float64            `json:"avg_quality_score"`
	BandCounts         map[types.Band]int `json:"band_counts"`
	SchemaPenaltyAvg   float64            `json:"schema_penalty_avg"`
	ValidityPenaltyAvg float64            `json:"validity_penalty_avg"`
	BusinessPenaltyAvg float64            `json:"business_penalty_avg"`
	SourceType         string             `json:"source_type"`
	Status             string             `json:"status"`
	Checks             scoring.Checks     `json:"checks"`
}

// ReportEmitter writes quality reports to the gold bucket.
type ReportEmitter struct {
	store  repository.ObjectStore
	bucket string
	gate   *gate.QualityGate
	clock  func() time.Time
	log    logger.Logger
}

// NewReportEmitter creates an emitter. The gate supplies the poor-share
// threshold deciding the report status.
func NewReportEmitter(store repository.ObjectStore, goldBucket string, g *gate.QualityGate, opts ...Option) *ReportEmitter {
	o := applyOptions(opts)
	if g == nil {
		g = gate.New()
	}
	return &ReportEmitter{
		store:  store,
		bucket: goldBucket,
		gate:   g,
		clock:  o.clock,
		log:    o.log.Named("report"),
	}
}

// Build assembles a report without writing it.
func (r *ReportEmitter) Build(m scoring.Metrics, checks scoring.Checks) Report {
	bands := make(map[types.Band]int, len(types.Bands))
	for _, b := range types.Bands {
		bands[b] = m.BandCounts[b]
	}
	status := StatusHealthy
	if !r.gate.Admit(m) {
		status = StatusAttention
	}
	return Report{
		GeneratedAt:        r.clock().UTC(),
		Records:            m.Records,
		QualityPassRate:    m.QualityPassRate,
		PoorShare:          m.PoorShare,
		AvgQualityScore:    m.AvgQualityScore,
		BandCounts:         bands,
		SchemaPenaltyAvg:   m.SchemaPenaltyAvg,
		ValidityPenaltyAvg: m.ValidityPenaltyAvg,
		BusinessPenaltyAvg: m.BusinessPenaltyAvg,
		SourceType:         m.SourceType,
		Status:             status,
		Checks:             checks,
	}
}

// Emit writes the report and returns its key.
func (r *ReportEmitter) Emit(ctx context.Context, m scoring.Metrics, checks scoring.Checks) (string, error) {
	report := r.Build(m, checks)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	key := ReportKey(report.GeneratedAt)
	if err := r.store.Put(ctx, r.bucket, key, data); err != nil {
		return "", err
	}
	r.log.Info(ctx, "quality report written",
		logger.String("key", key),
		logger.String("status", report.Status),
		logger.String("source_type", report.SourceType))
	return key, nil
}

// Latest returns the most recent report.
func (r *ReportEmitter) Latest(ctx context.Context) (Report, error) {
	objects, err := r.store.List(ctx, r.bucket, ReportsPrefix)
	if err != nil {
		return Report{}, err
	}
	objects = slices.DeleteFunc(objects, func(o repository.ObjectInfo) bool {
		return !strings.HasSuffix(o.Key, ".json")
	})
	if len(objects) == 0 {
		return Report{}, fmt.Errorf("%w: no reports", repository.ErrNotFound)
	}
	latest := slices.MaxFunc(objects, func(a, b repository.ObjectInfo) int { return strings.Compare(a.Key, b.Key) })

	data, err := r.store.Get(ctx, r.bucket, latest.Key)
	if err != nil {
		return Report{}, err
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, fmt.Errorf("decode report %s: %w", latest.Key, err)
	}
	return report, nil
}
