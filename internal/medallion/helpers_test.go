package medallion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/domain/scoring"
	"github.com/okian/bikeflow/pkg/logger"
)

const (
	bronze = "bronze"
	silver = "silver"
	gold   = "gold"
)

var base = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func testStations(context.Context) scoring.StationLookup {
	return scoring.Stations{
		101: {Lat: 40.7128, Lon: -74.0060},
		201: {Lat: 40.7200, Lon: -74.0000},
	}
}

func testOpts() []Option {
	return []Option{
		WithClock(func() time.Time { return base }),
		WithLogger(logger.Nop()),
		WithWorkers(3),
	}
}

func cleanTrip(id string, start time.Time) map[string]any {
	return map[string]any{
		"trip_id":          id,
		"bike_id":          42,
		"start_time":       start.Format(time.RFC3339),
		"end_time":         start.Add(5 * time.Minute).Format(time.RFC3339),
		"start_station_id": 101,
		"end_station_id":   201,
		"rider_age":        28,
		"trip_duration":    300,
		"bike_type":        "classic",
		"member_casual":    "member",
	}
}

func poorTrip(id string, start time.Time) map[string]any {
	return map[string]any{
		"trip_id":       id,
		"start_time":    start.Format(time.RFC3339),
		"end_time":      start.Format(time.RFC3339),
		"rider_age":     "NaN",
		"trip_duration": -50,
	}
}

func putEvent(s *repository.MemoryStore, key string, row map[string]any, modified time.Time) {
	data, _ := json.Marshal(row)
	s.PutAt(bronze, key, data, modified)
}

func rowsOf(raw ...map[string]any) []scoring.Row {
	out := make([]scoring.Row, len(raw))
	for i, r := range raw {
		out[i] = scoring.Row(r)
	}
	return out
}
