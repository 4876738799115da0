// Package types contains small enumerations shared across the pipeline.
package types

import "strings"

// Band is the ordinal quality grade derived from a quality score.
type Band string

const (
	BandExcellent Band = "EXCELLENT"
	BandGood      Band = "GOOD"
	BandFair      Band = "FAIR"
	BandPoor      Band = "POOR"
)

// Bands lists every band from best to worst.
var Bands = []Band{BandExcellent, BandGood, BandFair, BandPoor}

// Rank orders bands from 0 (POOR) to 3 (EXCELLENT). Unknown bands rank -1.
func (b Band) Rank() int {
	switch b {
	case BandExcellent:
		return 3
	case BandGood:
		return 2
	case BandFair:
		return 1
	case BandPoor:
		return 0
	default:
		return -1
	}
}

// Passing reports whether the band counts toward the pass rate.
func (b Band) Passing() bool { return b == BandExcellent || b == BandGood }

// SourceType tags the ingestion path a record arrived through.
type SourceType string

const (
	SourceRealtime   SourceType = "realtime"
	SourceHistorical SourceType = "historical"
)

// Matches compares a raw source_type value case-insensitively.
func (s SourceType) Matches(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), string(s))
}

// RunStatus is the terminal outcome of a pipeline run.
type RunStatus string

const (
	RunEmpty     RunStatus = "empty"
	RunBlocked   RunStatus = "blocked"
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
)

// ArchiveStatus is the lifecycle state of a remote historical archive.
type ArchiveStatus string

const (
	ArchiveUnseen    ArchiveStatus = "unseen"
	ArchivePending   ArchiveStatus = "pending"
	ArchiveProcessed ArchiveStatus = "processed"
)

// Order returns the position of the status in unseen -> pending -> processed.
func (s ArchiveStatus) Order() int {
	switch s {
	case ArchivePending:
		return 1
	case ArchiveProcessed:
		return 2
	default:
		return 0
	}
}

// CanAdvanceTo reports whether moving to next keeps the lifecycle monotonic.
func (s ArchiveStatus) CanAdvanceTo(next ArchiveStatus) bool {
	return next.Order() >= s.Order()
}
