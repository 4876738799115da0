package historical

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/okian/bikeflow/internal/adapters/repository"
)

// RemoteArchive is one downloadable archive.
type RemoteArchive struct {
	Key  string
	Name string
	Size int64
}

// ArchiveSource lists and downloads remote trip archives.
type ArchiveSource interface {
	List(ctx context.Context) ([]RemoteArchive, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// StoreSource serves archives out of a bucket, typically the public trip
// data bucket reached through an anonymous S3 client.
type StoreSource struct {
	store  repository.ObjectStore
	bucket string
	prefix string
}

// NewStoreSource creates a source over the keys of bucket under prefix.
func NewStoreSource(store repository.ObjectStore, bucket, prefix string) *StoreSource {
	return &StoreSource{store: store, bucket: bucket, prefix: prefix}
}

// List returns eligible archives sorted by key.
func (s *StoreSource) List(ctx context.Context) ([]RemoteArchive, error) {
	objects, err := s.store.List(ctx, s.bucket, s.prefix)
	if err != nil {
		return nil, err
	}

	var out []RemoteArchive
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if !Eligible(name) {
			continue
		}
		out = append(out, RemoteArchive{Key: obj.Key, Name: name, Size: obj.Size})
	}
	slices.SortFunc(out, func(a, b RemoteArchive) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// Fetch downloads one archive.
func (s *StoreSource) Fetch(ctx context.Context, key string) ([]byte, error) {
	data, err := s.store.Get(ctx, s.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArchiveFetch, key, err)
	}
	return data, nil
}

// Eligible reports whether an archive file name is a trip archive worth
// staging: a zip whose name starts with a digit, excluding Jersey City
// ("JC") archives.
func Eligible(name string) bool {
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		return false
	}
	if name == "" || name[0] < '0' || name[0] > '9' {
		return false
	}
	return !strings.HasPrefix(strings.ToUpper(name), "JC")
}

var nonAlnum = regexp.MustCompile(`[^0-9a-zA-Z]+`)

// Slug turns a name into a lower-case identifier of letters, digits and
// underscores.
func Slug(name string) string {
	return strings.ToLower(strings.Trim(nonAlnum.ReplaceAllString(name, "_"), "_"))
}
