package model

import (
	"time"

	"github.com/okian/bikeflow/internal/domain/types"
)

// ScoredRecord is a TripRecord plus its quality grade. It is created once per
// scoring pass and persisted unchanged to staging and then silver.
type ScoredRecord struct {
	TripID         *string    `parquet:"trip_id" json:"trip_id,omitempty"`
	BikeID         *int64     `parquet:"bike_id" json:"bike_id,omitempty"`
	StartTime      *time.Time `parquet:"start_time" json:"start_time,omitempty"`
	EndTime        *time.Time `parquet:"end_time" json:"end_time,omitempty"`
	StartStationID *int64     `parquet:"start_station_id" json:"start_station_id,omitempty"`
	EndStationID   *int64     `parquet:"end_station_id" json:"end_station_id,omitempty"`
	RiderAge       *int64     `parquet:"rider_age" json:"rider_age,omitempty"`
	TripDuration   *int64     `parquet:"trip_duration" json:"trip_duration,omitempty"`
	BikeType       *string    `parquet:"bike_type" json:"bike_type,omitempty"`
	MemberCasual   *string    `parquet:"member_casual" json:"member_casual,omitempty"`
	IngestedAt     *time.Time `parquet:"ingested_at" json:"ingested_at,omitempty"`
	SourceType     string     `parquet:"source_type" json:"source_type"`

	QualityScore    float64 `parquet:"quality_score" json:"quality_score"`
	Deductions      float64 `parquet:"deductions" json:"deductions"`
	QualityBand     string  `parquet:"quality_band" json:"quality_band"`
	SchemaPenalty   float64 `parquet:"schema_penalty" json:"schema_penalty"`
	ValidityPenalty float64 `parquet:"validity_penalty" json:"validity_penalty"`
	BusinessPenalty float64 `parquet:"business_penalty" json:"business_penalty"`
}

// Grade carries the scoring outcome attached to a trip.
type Grade struct {
	Score           float64
	Deductions      float64
	Band            types.Band
	SchemaPenalty   float64
	ValidityPenalty float64
	BusinessPenalty float64
}

// NewScoredRecord attaches a grade to a trip.
func NewScoredRecord(t TripRecord, g Grade) ScoredRecord {
	return ScoredRecord{
		TripID:          t.TripID,
		BikeID:          t.BikeID,
		StartTime:       t.StartTime,
		EndTime:         t.EndTime,
		StartStationID:  t.StartStationID,
		EndStationID:    t.EndStationID,
		RiderAge:        t.RiderAge,
		TripDuration:    t.TripDuration,
		BikeType:        t.BikeType,
		MemberCasual:    t.MemberCasual,
		IngestedAt:      t.IngestedAt,
		SourceType:      t.SourceType,
		QualityScore:    g.Score,
		Deductions:      g.Deductions,
		QualityBand:     string(g.Band),
		SchemaPenalty:   g.SchemaPenalty,
		ValidityPenalty: g.ValidityPenalty,
		BusinessPenalty: g.BusinessPenalty,
	}
}

// Band returns the record's quality band.
func (s ScoredRecord) Band() types.Band { return types.Band(s.QualityBand) }

// Partition returns the silver partition (date, hour) derived from start_time.
// Records without a start time fall into the "unknown" partition.
func (s ScoredRecord) Partition() (date, hour string) {
	if s.StartTime == nil {
		return "unknown", "unknown"
	}
	ts := s.StartTime.UTC()
	return ts.Format("2006-01-02"), ts.Format("15")
}
