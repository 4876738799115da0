package dedupe

// Option applies a configuration option to the in-memory tracker.
type Option func(*inMemoryTracker)

// WithCapacity pre-sizes the tracker for the expected number of keys.
func WithCapacity(capacity int) Option {
	return func(t *inMemoryTracker) {
		if capacity > 0 {
			t.capacity = capacity
		}
	}
}
