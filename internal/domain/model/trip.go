// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/bikeflow/internal/domain/types"
)

// Field names of a trip record.
const (
	FieldTripID         = "trip_id"
	FieldBikeID         = "bike_id"
	FieldStartTime      = "start_time"
	FieldEndTime        = "end_time"
	FieldStartStationID = "start_station_id"
	FieldEndStationID   = "end_station_id"
	FieldRiderAge       = "rider_age"
	FieldTripDuration   = "trip_duration"
	FieldBikeType       = "bike_type"
	FieldMemberCasual   = "member_casual"
	FieldIngestedAt     = "ingested_at"
	FieldSourceType     = "source_type"
)

// RequiredFields is the fixed set of fields every trip must carry.
var RequiredFields = []string{
	FieldTripID,
	FieldBikeID,
	FieldStartTime,
	FieldEndTime,
	FieldStartStationID,
	FieldEndStationID,
	FieldRiderAge,
	FieldTripDuration,
	FieldBikeType,
	FieldMemberCasual,
}

// AllowedFields is RequiredFields plus provenance columns.
var AllowedFields = append(append([]string{}, RequiredFields...), FieldIngestedAt, FieldSourceType)

// TripRecord is one bicycle trip. Nil pointers are absent (or unparseable) values.
type TripRecord struct {
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
}

// Row flattens the record into a raw field map holding only present values.
func (t TripRecord) Row() map[string]any {
	row := make(map[string]any, len(AllowedFields))
	putString(row, FieldTripID, t.TripID)
	putInt(row, FieldBikeID, t.BikeID)
	putTime(row, FieldStartTime, t.StartTime)
	putTime(row, FieldEndTime, t.EndTime)
	putInt(row, FieldStartStationID, t.StartStationID)
	putInt(row, FieldEndStationID, t.EndStationID)
	putInt(row, FieldRiderAge, t.RiderAge)
	putInt(row, FieldTripDuration, t.TripDuration)
	putString(row, FieldBikeType, t.BikeType)
	putString(row, FieldMemberCasual, t.MemberCasual)
	putTime(row, FieldIngestedAt, t.IngestedAt)
	if t.SourceType != "" {
		row[FieldSourceType] = t.SourceType
	}
	return row
}

// ID returns the trip id or "" when absent.
func (t TripRecord) ID() string {
	if t.TripID == nil {
		return ""
	}
	return *t.TripID
}

// Source returns the record's source type as a typed value.
func (t TripRecord) Source() types.SourceType { return types.SourceType(t.SourceType) }

func putString(row map[string]any, key string, v *string) {
	if v != nil {
		row[key] = *v
	}
}

func putInt(row map[string]any, key string, v *int64) {
	if v != nil {
		row[key] = *v
	}
}

func putTime(row map[string]any, key string, v *time.Time) {
	if v != nil {
		row[key] = *v
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
