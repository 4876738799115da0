package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrReportRead = errors.New("report read failed")
	ErrNoReport   = errors.New("no quality report")
)

// wrapKind annotates err with the operation and error kind.
func wrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}
