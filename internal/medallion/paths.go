package medallion

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/bikeflow/internal/adapters/dataset"
)

// Fixed key layout inside the buckets.
const (
	StagingPrefix       = "staging/"
	HistoricalPrefix    = "historical/"
	CheckpointKey       = "control/realtime_checkpoint.json"
	ReportsPrefix       = "reports/"
	stampLayout         = "20060102T150405Z"
	partitionDateLayout = "2006-01-02"
)

// GoldKey returns the object key of a gold table.
func GoldKey(table string) string { return table + dataset.ParquetExt }

// StagingKey names a scored batch awaiting the gate. The suffix keeps
// concurrent runs from overwriting each other.
func StagingKey(source string, now time.Time) string {
	return fmt.Sprintf("%s%s_%s_%s%s", StagingPrefix, source, now.UTC().Format(stampLayout),
		shortID(), dataset.ParquetExt)
}

// SilverKey names one date/hour partition file.
func SilverKey(date, hour string, now time.Time) string {
	return fmt.Sprintf("date=%s/hour=%s/silver_%s_%s_%d%s", date, hour, date, hour,
		now.UTC().UnixNano(), dataset.ParquetExt)
}

// ReportKey names a quality report. Keys sort by emission time down to the
// nanosecond; the suffix separates reports emitted at the same instant.
func ReportKey(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%squality_report_%s_%09d_%s.json", ReportsPrefix, now.Format(stampLayout),
		now.Nanosecond(), shortID())
}

// BronzeEventKey names a realtime bronze event.
func BronzeEventKey(ts time.Time, id, ext string) string {
	ts = ts.UTC()
	return fmt.Sprintf("date=%s/hour=%s/event_%s%s", ts.Format(partitionDateLayout), ts.Format("15"), id, ext)
}

// Stem returns the base name of key without its extension.
func Stem(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}

func shortID() string { return uuid.NewString()[:8] }
