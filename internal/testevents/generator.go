// Package testevents generates synthetic trip events straight into bronze.
package testevents

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Generator builds synthetic trip events.
type Generator struct {
	rnd      *rand.Rand
	badRatio float64
}

// NewGenerator creates a generator. A zero seed is replaced by the clock.
func NewGenerator(seed uint64, badRatio float64) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{rnd: rand.New(rand.NewPCG(seed, seed>>1|1)), badRatio: badRatio}
}

// PickVariant returns clean, or a random defect with probability badRatio.
func (g *Generator) PickVariant() string {
	if g.rnd.Float64() < g.badRatio {
		return DefectVariants[g.rnd.IntN(len(DefectVariants))]
	}
	return VariantClean
}

// Event builds event idx of the given variant relative to now.
func (g *Generator) Event(idx int, variant string, now time.Time) map[string]any {
	now = now.UTC()
	start := now.Add(-time.Duration(g.rnd.IntN(maxStartOffsetMin+1)) * time.Minute)
	duration := minDurationSeconds + g.rnd.IntN(maxDurationSeconds-minDurationSeconds+1)
	end := start.Add(time.Duration(duration) * time.Second)

	event := map[string]any{
		"trip_id":          fmt.Sprintf("load-%d-%s", idx, uuid.NewString()[:tripSuffixLen]),
		"bike_id":          idx,
		"start_time":       start.Format(time.RFC3339),
		"end_time":         end.Format(time.RFC3339),
		"start_station_id": pick(g.rnd, startStations),
		"end_station_id":   pick(g.rnd, endStations),
		"rider_age":        minRiderAge + g.rnd.IntN(maxRiderAge-minRiderAge+1),
		"trip_duration":    duration,
		"bike_type":        pick(g.rnd, bikeTypes),
		"member_casual":    pick(g.rnd, memberTypes),
	}

	switch variant {
	case VariantMissingFields:
		delete(event, "bike_type")
		event["end_time"] = event["start_time"]
	case VariantTypeErrors:
		event["rider_age"] = "NaN"
		event["trip_duration"] = -50
	case VariantSpeeding:
		event["start_station_id"] = 123
		event["end_station_id"] = 456
		event["trip_duration"] = speedingSeconds
	}
	return event
}

func pick[T any](rnd *rand.Rand, from []T) T { return from[rnd.IntN(len(from))] }
