package historical

import "errors"

var (
	// ErrArchiveFetch marks a download or unpack failure of one archive. The
	// archive stays unseen and is retried on the next pass.
	ErrArchiveFetch = errors.New("archive fetch failed")
	// ErrArchiveTooLarge is returned when unpacking exceeds the size budget.
	ErrArchiveTooLarge = errors.New("archive exceeds size budget")
	// ErrArchiveTooDeep is returned when nested archives exceed the depth bound.
	ErrArchiveTooDeep = errors.New("archive nesting too deep")
	// ErrManifestCorrupt marks an unreadable manifest; it is treated as empty.
	ErrManifestCorrupt = errors.New("archive manifest corrupt")
	// ErrInvalidTransition rejects a backward manifest transition.
	ErrInvalidTransition = errors.New("invalid archive status transition")
)
