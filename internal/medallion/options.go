package medallion

import (
	"runtime"
	"time"

	"github.com/okian/bikeflow/internal/adapters/dataset"
	"github.com/okian/bikeflow/pkg/logger"
)

type options struct {
	clock   func() time.Time
	log     logger.Logger
	workers int
	window  time.Duration
	rawExt  string
}

// Option configures medallion components.
type Option func(*options)

func applyOptions(opts []Option) options {
	o := options{
		clock:   time.Now,
		log:     logger.Default(),
		workers: runtime.NumCPU(),
		rawExt:  dataset.JSONExt,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithWorkers bounds the number of goroutines scoring a batch.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithWindow bounds cold-start discovery to objects modified within d.
// Zero means unbounded.
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.window = d
		}
	}
}

// WithRawExtension sets the extension of realtime bronze events.
func WithRawExtension(ext string) Option {
	return func(o *options) {
		if ext != "" {
			o.rawExt = ext
		}
	}
}
