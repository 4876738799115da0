package service

import (
	"time"

	"github.com/okian/bikeflow/internal/domain/gate"
	"github.com/okian/bikeflow/internal/historical"
	"github.com/okian/bikeflow/internal/medallion"
	"github.com/okian/bikeflow/internal/monitoring"
	"github.com/okian/bikeflow/pkg/logger"
)

// Buckets names the medallion buckets.
type Buckets struct {
	Bronze     string
	Silver     string
	Gold       string
	Historical string
}

// DefaultBuckets returns the conventional bucket names.
func DefaultBuckets() Buckets {
	return Buckets{Bronze: "bronze", Silver: "silver", Gold: "gold", Historical: "historical"}
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithBuckets sets the bucket names.
func WithBuckets(b Buckets) Option {
	return func(s *Service) { s.buckets = b }
}

// WithGate sets the quality gate.
func WithGate(g *gate.QualityGate) Option {
	return func(s *Service) {
		if g != nil {
			s.gate = g
		}
	}
}

// WithStations sets the station reference used when scoring.
func WithStations(src medallion.StationSource) Option {
	return func(s *Service) { s.stations = src }
}

// WithArchiveSource sets the remote archive source. Without one, staging
// runs are rejected.
func WithArchiveSource(src historical.ArchiveSource) Option {
	return func(s *Service) { s.archives = src }
}

// WithAlertSink sets where monitor alerts go.
func WithAlertSink(sink monitoring.AlertSink) Option {
	return func(s *Service) { s.alerts = sink }
}

// WithScoringWorkers bounds per-record scoring parallelism.
func WithScoringWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.scoringWorkers = n
		}
	}
}

// WithDiscoveryWindow bounds cold-start discovery.
func WithDiscoveryWindow(d time.Duration) Option {
	return func(s *Service) { s.window = d }
}

// WithRawExtension sets the extension of raw bronze events.
func WithRawExtension(ext string) Option {
	return func(s *Service) {
		if ext != "" {
			s.rawExt = ext
		}
	}
}

// WithArchiveWorkers sets the number of concurrent archive downloads.
func WithArchiveWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.archiveWorkers = n
		}
	}
}

// WithMaxArchives caps how many unseen archives one stage run downloads.
func WithMaxArchives(n int) Option {
	return func(s *Service) { s.maxArchives = n }
}

// WithArchiveLimits bounds archive extraction.
func WithArchiveLimits(l historical.Limits) Option {
	return func(s *Service) { s.limits = l }
}

// WithRetry sets the attempt bound and first backoff interval for stages
// failing with transient store errors.
func WithRetry(maxAttempts int, initial time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if initial > 0 {
			s.retryInterval = initial
		}
	}
}

// WithMaxLag sets the bronze freshness bound used by monitor runs.
func WithMaxLag(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxLag = d
		}
	}
}
