package queue

import "errors"

// ErrQueueFull is returned when an archive job is refused because the
// backlog is at capacity or the queue is closed.
var ErrQueueFull = errors.New("archive queue full")
