// Package scoring grades trip records against the weighted data-quality rubric.
//
// Score is a pure function of one raw row and a station lookup, so results are
// identical whether records are scored one at a time or in parallel.
package scoring

import (
	"maps"
	"math"
	"slices"
	"time"

	"github.com/okian/bikeflow/internal/domain/model"
	"github.com/okian/bikeflow/internal/domain/types"
)

// Rubric constants.
const (
	BaseScore = 100

	SchemaCap   = 40
	ValidityCap = 40
	BusinessCap = 20

	missingFieldPenalty  = 10
	invalidFieldPenalty  = 5
	unexpectedColPenalty = 2

	startAfterEndPenalty    = 25
	durationMismatchPenalty = 15
	riderAgePenalty         = 20
	stationPenalty          = 10

	durationRangePenalty = 15
	roundTripPenalty     = 5
	speedingPenalty      = 10

	durationToleranceSeconds = 60
	minRiderAge              = 16
	maxRiderAge              = 100
	minTripSeconds           = 60
	maxTripSeconds           = 86_400
	roundTripSeconds         = 3_600
	maxSpeedKMH              = 30
)

// Rule names reported in Result.Violations.
const (
	RuleMissingField     = "missing_field"
	RuleInvalidField     = "invalid_field"
	RuleUnexpectedColumn = "unexpected_column"
	RuleStartAfterEnd    = "start_not_before_end"
	RuleDurationMismatch = "duration_mismatch"
	RuleRiderAge         = "rider_age_out_of_range"
	RuleStation          = "station_unresolved"
	RuleDurationRange    = "duration_out_of_range"
	RuleRoundTrip        = "round_trip_anomaly"
	RuleSpeeding         = "speeding"
)

// Row is one raw record as a field map. Values may be strings, numbers
// (including json.Number), booleans, time values or nil.
type Row map[string]any

// Result is the grade of one record.
type Result struct {
	Score           float64
	Deductions      float64
	Band            types.Band
	SchemaPenalty   float64
	ValidityPenalty float64
	BusinessPenalty float64

	// Violations lists every rule that fired, before capping.
	Violations []string

	// MissingFields counts required fields that were absent.
	MissingFields int

	// Trip holds the typed values; invalid values are left nil.
	Trip model.TripRecord
}

// Grade converts the result into the persisted grade.
func (r Result) Grade() model.Grade {
	return model.Grade{
		Score:           r.Score,
		Deductions:      r.Deductions,
		Band:            r.Band,
		SchemaPenalty:   r.SchemaPenalty,
		ValidityPenalty: r.ValidityPenalty,
		BusinessPenalty: r.BusinessPenalty,
	}
}

// BandFor maps a score on the 0..100 scale to its band. Thresholds are
// inclusive lower bounds checked top-down.
func BandFor(points float64) types.Band {
	switch {
	case points >= 90:
		return types.BandExcellent
	case points >= 75:
		return types.BandGood
	case points >= 60:
		return types.BandFair
	default:
		return types.BandPoor
	}
}

type parsed struct {
	tripID       Field[string]
	bikeType     Field[string]
	memberCasual Field[string]
	start        Field[time.Time]
	end          Field[time.Time]
	bikeID       Field[float64]
	startStation Field[float64]
	endStation   Field[float64]
	riderAge     Field[float64]
	duration     Field[float64]
}

func parse(row Row) parsed {
	return parsed{
		tripID:       StringField(row, model.FieldTripID),
		bikeType:     StringField(row, model.FieldBikeType),
		memberCasual: StringField(row, model.FieldMemberCasual),
		start:        TimeField(row, model.FieldStartTime),
		end:          TimeField(row, model.FieldEndTime),
		bikeID:       NumberField(row, model.FieldBikeID),
		startStation: NumberField(row, model.FieldStartStationID),
		endStation:   NumberField(row, model.FieldEndStationID),
		riderAge:     NumberField(row, model.FieldRiderAge),
		duration:     NumberField(row, model.FieldTripDuration),
	}
}

func (p parsed) outcomes() []Outcome {
	return []Outcome{
		p.tripID.Outcome, p.bikeID.Outcome, p.start.Outcome, p.end.Outcome,
		p.startStation.Outcome, p.endStation.Outcome, p.riderAge.Outcome,
		p.duration.Outcome, p.bikeType.Outcome, p.memberCasual.Outcome,
	}
}

type tally struct {
	points     float64
	violations *[]string
}

func (t *tally) add(rule string, points float64) {
	t.points += points
	*t.violations = append(*t.violations, rule)
}

func (t *tally) capped(limit float64) float64 { return math.Min(t.points, limit) }

// Score grades one record.
func Score(row Row, stations StationLookup) Result {
	p := parse(row)
	var violations []string
	schema := tally{violations: &violations}
	validity := tally{violations: &violations}
	business := tally{violations: &violations}

	missingCount := 0
	for _, o := range p.outcomes() {
		switch o {
		case Missing:
			missingCount++
			schema.add(RuleMissingField, missingFieldPenalty)
		case Invalid:
			schema.add(RuleInvalidField, invalidFieldPenalty)
		}
	}
	for _, key := range slices.Sorted(maps.Keys(row)) {
		if !slices.Contains(model.AllowedFields, key) {
			schema.add(RuleUnexpectedColumn, unexpectedColPenalty)
		}
	}

	// Effective duration: declared when usable, otherwise end - start.
	duration := p.duration
	if p.start.Ok() && p.end.Ok() {
		if !p.start.Value.Before(p.end.Value) {
			validity.add(RuleStartAfterEnd, startAfterEndPenalty)
		}
		delta := p.end.Value.Sub(p.start.Value).Seconds()
		if duration.Ok() {
			if math.Abs(delta-duration.Value) > durationToleranceSeconds {
				validity.add(RuleDurationMismatch, durationMismatchPenalty)
			}
		} else {
			duration = present(delta)
		}
	}

	if p.riderAge.Ok() && (p.riderAge.Value < minRiderAge || p.riderAge.Value > maxRiderAge) {
		validity.add(RuleRiderAge, riderAgePenalty)
	}

	startCoord, startResolved := resolveStation(p.startStation, stations, &validity)
	endCoord, endResolved := resolveStation(p.endStation, stations, &validity)

	if duration.Ok() {
		if duration.Value < minTripSeconds || duration.Value > maxTripSeconds {
			business.add(RuleDurationRange, durationRangePenalty)
		}
		if p.startStation.Ok() && p.endStation.Ok() &&
			stationID(p.startStation.Value) == stationID(p.endStation.Value) &&
			duration.Value > roundTripSeconds {
			business.add(RuleRoundTrip, roundTripPenalty)
		}
		if startResolved && endResolved && duration.Value > 0 {
			hours := duration.Value / 3600
			if Haversine(startCoord, endCoord)/hours > maxSpeedKMH {
				business.add(RuleSpeeding, speedingPenalty)
			}
		}
	}

	schemaPts := schema.capped(SchemaCap)
	validityPts := validity.capped(ValidityCap)
	businessPts := business.capped(BusinessCap)
	deductions := schemaPts + validityPts + businessPts
	points := math.Max(BaseScore-deductions, 0)

	return Result{
		Score:           round(points/BaseScore, 4),
		Deductions:      deductions,
		Band:            BandFor(points),
		SchemaPenalty:   schemaPts,
		ValidityPenalty: validityPts,
		BusinessPenalty: businessPts,
		Violations:      violations,
		MissingFields:   missingCount,
		Trip:            p.trip(row),
	}
}

// resolveStation applies the station penalty: non-numeric ids always, unknown
// ids only when a reference is loaded.
func resolveStation(f Field[float64], stations StationLookup, validity *tally) (Coord, bool) {
	switch f.Outcome {
	case Missing:
		return Coord{}, false
	case Invalid:
		validity.add(RuleStation, stationPenalty)
		return Coord{}, false
	}
	if stations == nil || stations.Len() == 0 {
		return Coord{}, false
	}
	c, ok := stations.Lookup(stationID(f.Value))
	if !ok {
		validity.add(RuleStation, stationPenalty)
	}
	return c, ok
}

func stationID(v float64) int64 { return int64(math.Trunc(v)) }

func (p parsed) trip(row Row) model.TripRecord {
	t := model.TripRecord{
		TripID:         p.tripID.Ptr(),
		BikeType:       p.bikeType.Ptr(),
		MemberCasual:   p.memberCasual.Ptr(),
		StartTime:      p.start.Ptr(),
		EndTime:        p.end.Ptr(),
		BikeID:         intPtr(p.bikeID, math.Trunc),
		StartStationID: intPtr(p.startStation, math.Trunc),
		EndStationID:   intPtr(p.endStation, math.Trunc),
		RiderAge:       intPtr(p.riderAge, math.Trunc),
		TripDuration:   intPtr(p.duration, math.Round),
	}
	t.IngestedAt = TimeField(row, model.FieldIngestedAt).Ptr()
	if src := StringField(row, model.FieldSourceType); src.Ok() {
		t.SourceType = src.Value
	}
	return t
}

func intPtr(f Field[float64], conv func(float64) float64) *int64 {
	if !f.Ok() {
		return nil
	}
	v := int64(conv(f.Value))
	return &v
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
