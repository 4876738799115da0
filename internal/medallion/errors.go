package medallion

import "errors"

var (
	// ErrCheckpointCorrupt marks an unreadable checkpoint document. Callers
	// treat it as "no checkpoint".
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")
	// ErrStagingRead is returned when a staged batch cannot be decoded.
	ErrStagingRead = errors.New("staging batch unreadable")
	// ErrSilverRead is returned when a promoted silver object cannot be decoded.
	ErrSilverRead = errors.New("silver object unreadable")
	// ErrGoldRead is returned when an existing gold table cannot be decoded.
	ErrGoldRead = errors.New("gold table unreadable")
)
