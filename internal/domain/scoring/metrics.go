package scoring

import (
	"sync"
	"time"

	"github.com/okian/bikeflow/internal/domain/dedupe"
	"github.com/okian/bikeflow/internal/domain/types"
)

// Metrics summarises one scoring pass.
type Metrics struct {
	Records            int                `json:"records"`
	QualityPassRate    float64            `json:"quality_pass_rate"`
	PoorShare          float64            `json:"poor_share"`
	BandCounts         map[types.Band]int `json:"quality_band_counts"`
	AvgQualityScore    float64            `json:"avg_quality_score"`
	AvgDeductions      float64            `json:"avg_deductions"`
	SchemaPenaltyAvg   float64            `json:"schema_penalty_avg"`
	ValidityPenaltyAvg float64            `json:"validity_penalty_avg"`
	BusinessPenaltyAvg float64            `json:"business_penalty_avg"`
	SourceType         string             `json:"source_type"`
	EvaluatedAt        time.Time          `json:"evaluated_at"`
}

// Checks are batch-level data checks computed in the scoring pass.
type Checks struct {
	Records             int `json:"records"`
	IssuesFound         int `json:"issues_found"`
	MissingValues       int `json:"missing_values"`
	DuplicateIDs        int `json:"duplicate_ids"`
	NonPositiveDuration int `json:"non_positive_duration"`
}

// Accumulator folds per-record results into Metrics and Checks. It is safe
// for concurrent use.
type Accumulator struct {
	mu          sync.Mutex
	records     int
	bands       map[types.Band]int
	score       float64
	deductions  float64
	schema      float64
	validity    float64
	business    float64
	missing     int
	nonPositive int
	ids         dedupe.Tracker
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator(expected int) *Accumulator {
	return &Accumulator{
		bands: make(map[types.Band]int, len(types.Bands)),
		ids:   dedupe.NewTracker(dedupe.WithCapacity(expected)),
	}
}

// Add folds one result.
func (a *Accumulator) Add(r Result) {
	if id := r.Trip.ID(); id != "" {
		a.ids.SeenAndRecord(id)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.records++
	a.bands[r.Band]++
	a.score += r.Score
	a.deductions += r.Deductions
	a.schema += r.SchemaPenalty
	a.validity += r.ValidityPenalty
	a.business += r.BusinessPenalty
	a.missing += r.MissingFields
	if r.Trip.TripDuration == nil || *r.Trip.TripDuration <= 0 {
		a.nonPositive++
	}
}

// Metrics returns the pass summary, rounded the way reports present it.
func (a *Accumulator) Metrics(sourceType string, now time.Time) Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := Metrics{
		Records:     a.records,
		BandCounts:  make(map[types.Band]int, len(a.bands)),
		SourceType:  sourceType,
		EvaluatedAt: now.UTC(),
	}
	for b, n := range a.bands {
		m.BandCounts[b] = n
	}
	if a.records == 0 {
		return m
	}
	n := float64(a.records)
	passing := a.bands[types.BandExcellent] + a.bands[types.BandGood]
	m.QualityPassRate = round(float64(passing)/n*100, 2)
	m.PoorShare = round(float64(a.bands[types.BandPoor])/n, 4)
	m.AvgQualityScore = round(a.score/n, 4)
	m.AvgDeductions = round(a.deductions/n, 2)
	m.SchemaPenaltyAvg = round(a.schema/n, 2)
	m.ValidityPenaltyAvg = round(a.validity/n, 2)
	m.BusinessPenaltyAvg = round(a.business/n, 2)
	return m
}

// Checks returns the batch checks.
func (a *Accumulator) Checks() Checks {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := Checks{
		Records:             a.records,
		MissingValues:       a.missing,
		DuplicateIDs:        a.ids.Duplicates(),
		NonPositiveDuration: a.nonPositive,
	}
	c.IssuesFound = c.MissingValues + c.DuplicateIDs + c.NonPositiveDuration
	return c
}
