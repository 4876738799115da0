package historical

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/okian/bikeflow/internal/domain/model"
	"github.com/okian/bikeflow/internal/domain/scoring"
	"github.com/okian/bikeflow/internal/domain/types"
)

const (
	colBirthYear = "birth_year"

	// Surrogate bike ids live above real fleet ids.
	surrogateBikeBase  = 900_000_000
	surrogateBikeRange = 99_999_999

	unknownCategory = "unknown"
)

var columnAliases = map[string]string{
	"ride_id":           model.FieldTripID,
	"tripid":            model.FieldTripID,
	"tripduration":      model.FieldTripDuration,
	"starttime":         model.FieldStartTime,
	"started_at":        model.FieldStartTime,
	"stoptime":          model.FieldEndTime,
	"ended_at":          model.FieldEndTime,
	"bikeid":            model.FieldBikeID,
	"usertype":          model.FieldMemberCasual,
	"rideable_type":     model.FieldBikeType,
	"member_birth_year": colBirthYear,
	"birthyear":         colBirthYear,
	"birth_year":        colBirthYear,
}

var memberAliases = map[string]string{
	"subscriber": "member",
	"member":     "member",
	"annual":     "member",
	"customer":   "casual",
	"casual":     "casual",
	"day_pass":   "casual",
}

var nonColumnChars = regexp.MustCompile(`[^0-9a-z]+`)

// ColumnName lower-cases a header and collapses other characters to "_".
func ColumnName(name string) string {
	clean := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
	return strings.Trim(nonColumnChars.ReplaceAllString(clean, "_"), "_")
}

// Normalizer maps heterogeneous trip CSVs onto TripRecord.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a normalizer stamping ingested_at from now.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize converts one CSV member. Rows without a parseable start or end
// time are dropped. Missing trip ids become "<slug>_<row>".
func (n *Normalizer) Normalize(data []byte, slug string) ([]model.TripRecord, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		name := ColumnName(h)
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		columns[i] = name
	}

	ingested := n.now().UTC()
	var out []model.TripRecord
	for row := 0; ; row++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}
		values := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(rec) {
				if v, ok := cell(rec[i]); ok {
					values[col] = v
				}
			}
		}
		if t, ok := n.record(values, slug, row, ingested); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (n *Normalizer) record(values map[string]string, slug string, row int, ingested time.Time) (model.TripRecord, bool) {
	start, okStart := scoring.ParseTime(values[model.FieldStartTime])
	end, okEnd := scoring.ParseTime(values[model.FieldEndTime])
	if !okStart || !okEnd {
		return model.TripRecord{}, false
	}

	tripID, ok := values[model.FieldTripID]
	if !ok {
		tripID = fmt.Sprintf("%s_%d", slug, row)
	}

	t := model.TripRecord{
		TripID:         &tripID,
		StartTime:      &start,
		EndTime:        &end,
		StartStationID: intValue(values[model.FieldStartStationID], math.Trunc),
		EndStationID:   intValue(values[model.FieldEndStationID], math.Trunc),
		TripDuration:   intValue(values[model.FieldTripDuration], math.Round),
		BikeType:       model.Ptr(category(values[model.FieldBikeType], nil)),
		MemberCasual:   model.Ptr(category(values[model.FieldMemberCasual], memberAliases)),
		IngestedAt:     &ingested,
		SourceType:     string(types.SourceHistorical),
	}

	t.BikeID = intValue(values[model.FieldBikeID], math.Trunc)
	if t.BikeID == nil {
		t.BikeID = model.Ptr(SurrogateBikeID(tripID))
	}
	if t.TripDuration == nil {
		t.TripDuration = model.Ptr(int64(math.Round(end.Sub(start).Seconds())))
	}
	if by, ok := values[colBirthYear]; ok {
		if year := intValue(by, math.Trunc); year != nil {
			t.RiderAge = model.Ptr(int64(start.Year()) - *year)
		}
	} else {
		t.RiderAge = intValue(values[model.FieldRiderAge], math.Trunc)
	}
	return t, true
}

// SurrogateBikeID derives a stable bike id from a trip id.
func SurrogateBikeID(tripID string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tripID))
	return surrogateBikeBase + int64(h.Sum32())%surrogateBikeRange + 1
}

func cell(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "", "none", "nan", "null":
		return "", false
	}
	return v, true
}

func intValue(raw string, conv func(float64) float64) *int64 {
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return model.Ptr(int64(conv(f)))
}

// category lower-cases a value and maps it through aliases when given.
// Empty values and values missing from aliases become "unknown".
func category(raw string, aliases map[string]string) string {
	v := strings.ToLower(raw)
	if v == "" {
		return unknownCategory
	}
	if aliases == nil {
		return v
	}
	if mapped, ok := aliases[v]; ok {
		return mapped
	}
	return unknownCategory
}
