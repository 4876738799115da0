package model

import (
	"cmp"
	"time"
)

// Gold table names.
const (
	TableStationStatus = "station_status"
	TableHourlyUsage   = "hourly_usage"
	TableQualityTrends = "quality_trends"
)

// StationStatus is keyed by (source_type, start_station_id).
type StationStatus struct {
	SourceType     string  `parquet:"source_type" json:"source_type"`
	StartStationID int64   `parquet:"start_station_id" json:"start_station_id"`
	TripsStarted   int64   `parquet:"trips_started" json:"trips_started"`
	AvgQuality     float64 `parquet:"avg_quality" json:"avg_quality"`
}

// CompareStationStatus orders rows by their key.
func CompareStationStatus(a, b StationStatus) int {
	if c := cmp.Compare(a.SourceType, b.SourceType); c != 0 {
		return c
	}
	return cmp.Compare(a.StartStationID, b.StartStationID)
}

// HourlyUsage is keyed by (source_type, hour), hour being start_time floored to the hour.
type HourlyUsage struct {
	SourceType string    `parquet:"source_type" json:"source_type"`
	Hour       time.Time `parquet:"hour" json:"hour"`
	Trips      int64     `parquet:"trips" json:"trips"`
	AvgQuality float64   `parquet:"avg_quality" json:"avg_quality"`
}

// CompareHourlyUsage orders rows by their key.
func CompareHourlyUsage(a, b HourlyUsage) int {
	if c := cmp.Compare(a.SourceType, b.SourceType); c != 0 {
		return c
	}
	return a.Hour.Compare(b.Hour)
}

// QualityTrend is keyed by (source_type, date).
type QualityTrend struct {
	SourceType  string  `parquet:"source_type" json:"source_type"`
	Date        string  `parquet:"date" json:"date"`
	MeanQuality float64 `parquet:"mean_quality" json:"mean_quality"`
	PoorShare   float64 `parquet:"poor_share" json:"poor_share"`
}

// CompareQualityTrend orders rows by their key.
func CompareQualityTrend(a, b QualityTrend) int {
	if c := cmp.Compare(a.SourceType, b.SourceType); c != 0 {
		return c
	}
	return cmp.Compare(a.Date, b.Date)
}
