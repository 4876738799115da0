// Package dedupe provides duplicate tracking and keep-last collapsing of keyed rows.
package dedupe

import (
	"slices"
	"sync"
)

// Tracker records keys seen within one batch.
type Tracker interface {
	// SeenAndRecord reports whether key was already recorded and records it if not.
	SeenAndRecord(key string) bool

	// Duplicates returns how many SeenAndRecord calls hit an already recorded key.
	Duplicates() int

	Size() int
}

type inMemoryTracker struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	capacity   int
	duplicates int
}

// NewTracker creates an unbounded in-memory tracker.
func NewTracker(opts ...Option) Tracker {
	t := &inMemoryTracker{}
	for _, opt := range opts {
		opt(t)
	}
	t.seen = make(map[string]struct{}, t.capacity)
	return t
}

func (t *inMemoryTracker) SeenAndRecord(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[key]; ok {
		t.duplicates++
		return true
	}
	t.seen[key] = struct{}{}
	return false
}

func (t *inMemoryTracker) Duplicates() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duplicates
}

func (t *inMemoryTracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// KeepLast collapses rows sharing a key, keeping the last occurrence.
// Surviving rows keep their relative input order.
func KeepLast[T any, K comparable](rows []T, key func(T) K) []T {
	last := make(map[K]int, len(rows))
	for i, r := range rows {
		last[key(r)] = i
	}
	out := make([]T, 0, len(last))
	for i, r := range rows {
		if last[key(r)] == i {
			out = append(out, r)
		}
	}
	return out
}

// SortKeepLast stable-sorts rows by cmp and drops all but the last row of every
// run of equal keys. Rows appended later win over earlier rows with the same key.
func SortKeepLast[T any](rows []T, cmp func(a, b T) int) []T {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, cmp)

	out := make([]T, 0, len(sorted))
	for i, r := range sorted {
		if i+1 < len(sorted) && cmp(r, sorted[i+1]) == 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}
