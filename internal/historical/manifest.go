package historical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/domain/model"
	"github.com/okian/bikeflow/internal/domain/types"
	"github.com/okian/bikeflow/pkg/logger"
)

// ManifestKey is the manifest location inside the historical bucket.
const ManifestKey = "control/archive_manifest.json"

// Manifest maps archive names to their lifecycle entry.
type Manifest struct {
	Archives map[string]model.ArchiveEntry `json:"archives"`
}

// Status returns the archive's status; archives not listed are unseen.
func (m Manifest) Status(name string) types.ArchiveStatus {
	if e, ok := m.Archives[name]; ok {
		return e.Status
	}
	return types.ArchiveUnseen
}

// Done reports whether the archive must not be downloaded again.
func (m Manifest) Done(name string) bool {
	s := m.Status(name)
	return s == types.ArchivePending || s == types.ArchiveProcessed
}

// ByStagedKey finds the entry pointing at a staged object.
func (m Manifest) ByStagedKey(key string) (model.ArchiveEntry, bool) {
	for _, e := range m.Archives {
		if e.StagedKey == key {
			return e, true
		}
	}
	return model.ArchiveEntry{}, false
}

// ManifestStore reads and merges the manifest document. Writes merge against
// the stored copy so entries only move forward.
type ManifestStore struct {
	mu     sync.Mutex
	store  repository.ObjectStore
	bucket string
	clock  func() time.Time
	log    logger.Logger
}

// NewManifestStore creates a manifest store in the historical bucket.
func NewManifestStore(store repository.ObjectStore, bucket string, clock func() time.Time, log logger.Logger) *ManifestStore {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logger.Default()
	}
	return &ManifestStore{store: store, bucket: bucket, clock: clock, log: log.Named("manifest")}
}

// Load returns the manifest. Missing or corrupt documents yield an empty one.
func (s *ManifestStore) Load(ctx context.Context) (Manifest, error) {
	empty := Manifest{Archives: map[string]model.ArchiveEntry{}}
	data, err := s.store.Get(ctx, s.bucket, ManifestKey)
	if errors.Is(err, repository.ErrNotFound) {
		return empty, nil
	}
	if err != nil {
		return empty, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		s.log.Warn(ctx, "manifest unreadable, starting empty",
			logger.Error(fmt.Errorf("%w: %v", ErrManifestCorrupt, err)))
		return empty, nil
	}
	if m.Archives == nil {
		m.Archives = map[string]model.ArchiveEntry{}
	}
	return m, nil
}

// Advance moves one archive to next, recording stagedKey. A processed entry
// has its staged key cleared.
func (s *ManifestStore) Advance(ctx context.Context, name, slug string, next types.ArchiveStatus, stagedKey string) error {
	return s.Merge(ctx, model.ArchiveEntry{Name: name, Slug: slug, Status: next, StagedKey: stagedKey})
}

// Merge applies updates on top of the stored manifest. Any backward update
// fails the whole merge with ErrInvalidTransition and writes nothing.
func (s *ManifestStore) Merge(ctx context.Context, updates ...model.ArchiveEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.Load(ctx)
	if err != nil {
		return err
	}
	now := s.clock().UTC()
	for _, u := range updates {
		current := m.Status(u.Name)
		if !current.CanAdvanceTo(u.Status) {
			return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, u.Name, current, u.Status)
		}
		if u.Status == types.ArchiveProcessed {
			u.StagedKey = ""
		}
		if u.Slug == "" {
			u.Slug = m.Archives[u.Name].Slug
		}
		u.UpdatedAt = now
		m.Archives[u.Name] = u
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return s.store.Put(ctx, s.bucket, ManifestKey, data)
}
