package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

type object struct {
	data     []byte
	modified time.Time
}

// OpStats counts mutating calls made against a MemoryStore.
type OpStats struct {
	Puts    int
	Copies  int
	Deletes int
}

// MemoryStore is an in-process ObjectStore.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]object
	clock   func() time.Time
	stats   OpStats
	faults  map[string][]error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]map[string]object),
		clock:   time.Now,
		faults:  make(map[string][]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailNext makes the next call to op ("list", "get", "put", "copy", "delete")
// fail with err. Queued faults are consumed in order.
func (s *MemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

// Stats returns the mutating call counters.
func (s *MemoryStore) Stats() OpStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// PutAt writes an object with an explicit modification time.
func (s *MemoryStore) PutAt(bucket, key string, data []byte, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(bucket)[key] = object{data: slices.Clone(data), modified: modified.UTC()}
}

// fault must be called with s.mu held.
func (s *MemoryStore) fault(op string) error {
	q := s.faults[op]
	if len(q) == 0 {
		return nil
	}
	s.faults[op] = q[1:]
	return q[0]
}

// bucket must be called with s.mu held.
func (s *MemoryStore) bucket(name string) map[string]object {
	b, ok := s.buckets[name]
	if !ok {
		b = make(map[string]object)
		s.buckets[name] = b
	}
	return b
}

func (s *MemoryStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("list"); err != nil {
		return nil, err
	}

	var out []ObjectInfo
	for key, obj := range s.buckets[bucket] {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Bucket: bucket, Key: key, LastModified: obj.modified, Size: int64(len(obj.data))})
		}
	}
	slices.SortFunc(out, func(a, b ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("get"); err != nil {
		return nil, err
	}

	obj, ok := s.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	return slices.Clone(obj.data), nil
}

func (s *MemoryStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("put"); err != nil {
		return err
	}

	s.bucket(bucket)[key] = object{data: slices.Clone(data), modified: s.clock().UTC()}
	s.stats.Puts++
	return nil
}

func (s *MemoryStore) Copy(ctx context.Context, bucket, srcKey, dstKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("copy"); err != nil {
		return err
	}

	b := s.bucket(bucket)
	obj, ok := b[srcKey]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, srcKey)
	}
	b[dstKey] = object{data: slices.Clone(obj.data), modified: s.clock().UTC()}
	s.stats.Copies++
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("delete"); err != nil {
		return err
	}

	delete(s.bucket(bucket), key)
	s.stats.Deletes++
	return nil
}
