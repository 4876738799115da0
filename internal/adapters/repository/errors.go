package repository

import "errors"

// Sentinel kinds for object store errors.
var (
	ErrNotFound   = errors.New("object not found")
	ErrTransient  = errors.New("transient object store error")
	ErrInvalidKey = errors.New("invalid object key")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
