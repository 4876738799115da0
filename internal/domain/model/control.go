package model

import (
	"time"

	"github.com/okian/bikeflow/internal/domain/types"
)

// Checkpoint is the discovery cursor. Cursors are totally ordered by
// (LastModified, LastKey).
type Checkpoint struct {
	LastModified time.Time `json:"last_modified"`
	LastKey      string    `json:"last_key"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsZero reports whether no cursor has been recorded.
func (c Checkpoint) IsZero() bool { return c.LastModified.IsZero() && c.LastKey == "" }

// Covers reports whether the object (modified, key) sorts at or before the cursor.
func (c Checkpoint) Covers(modified time.Time, key string) bool {
	if modified.Before(c.LastModified) {
		return true
	}
	return modified.Equal(c.LastModified) && key <= c.LastKey
}

// Less orders two cursors.
func (c Checkpoint) Less(o Checkpoint) bool {
	if !c.LastModified.Equal(o.LastModified) {
		return c.LastModified.Before(o.LastModified)
	}
	return c.LastKey < o.LastKey
}

// ArchiveEntry is the manifest record of one remote historical archive.
type ArchiveEntry struct {
	Name      string              `json:"name"`
	Slug      string              `json:"slug"`
	Status    types.ArchiveStatus `json:"status"`
	StagedKey string              `json:"staged_key,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// BatchRef points at every object written for one promoted batch.
type BatchRef struct {
	Bucket string   `json:"bucket"`
	Keys   []string `json:"keys"`
	Last   string   `json:"last"`
}

// Empty reports whether the batch references nothing.
func (b BatchRef) Empty() bool { return len(b.Keys) == 0 }

// ArchiveJob is one remote archive scheduled for staging.
type ArchiveJob struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
	Size int64  `json:"size"`
}
