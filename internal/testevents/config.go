package testevents

import "time"

// Config holds configuration for a firehose run.
type Config struct {
	Rate     float64       // events per second; non-positive means unthrottled
	Count    int           // stop after this many events; 0 means unbounded
	Duration time.Duration // stop after this long; 0 means unbounded
	BadRatio float64       // share of events carrying a defect
	Seed     uint64        // random seed; 0 picks one from the clock
}

// Stats holds firehose statistics.
type Stats struct {
	EventsGenerated int            `json:"events_generated"`
	EventsWritten   int            `json:"events_written"`
	EventsFailed    int            `json:"events_failed"`
	Variants        map[string]int `json:"variants"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	Duration        time.Duration  `json:"duration"`
}
