package monitoring

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/bikeflow/pkg/logger"
)

// AlertSink delivers alert messages.
type AlertSink interface {
	Alert(ctx context.Context, message string) error
}

// FileAlertSink appends "<ts> | <message>" lines to a file.
type FileAlertSink struct {
	mu    sync.Mutex
	path  string
	clock func() time.Time
	log   logger.Logger
}

// NewFileAlertSink creates a sink appending to path.
func NewFileAlertSink(path string, clock func() time.Time, log logger.Logger) *FileAlertSink {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logger.Default()
	}
	return &FileAlertSink{path: path, clock: clock, log: log.Named("alerts")}
}

// Alert appends one line and logs the message as a warning.
func (s *FileAlertSink) Alert(ctx context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create alert dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open alert log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s | %s\n", s.clock().UTC().Format(time.RFC3339), message)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write alert: %w", err)
	}
	s.log.Warn(ctx, message)
	return nil
}

// AlertFunc adapts a function to AlertSink.
type AlertFunc func(ctx context.Context, message string) error

// Alert calls f.
func (f AlertFunc) Alert(ctx context.Context, message string) error { return f(ctx, message) }
