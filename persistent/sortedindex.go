package persistent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dkowalski/hybridindex/record"
)

// SortedIndex is the read-optimized persistent-index collaborator: a
// bulk-built, sorted key/value pair of slices searched with binary search.
// It honors a Build-once / Insert-is-expensive contract, deliberately
// favoring fast point and range lookups over cheap point inserts.
type SortedIndex struct {
	mu     sync.RWMutex
	keys   []uint64
	values []uint64
	built  bool
}

// NewSortedIndex returns an empty, unbuilt SortedIndex.
func NewSortedIndex() *SortedIndex {
	return &SortedIndex{}
}

// Build bulk-loads data (already sorted by Key) using numThreads workers to
// fan out the copy into the index's backing slices. Must be called exactly
// once.
func (s *SortedIndex) Build(ctx context.Context, data []record.Record, numThreads int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.built {
		return fmt.Errorf("persistent: Build called more than once")
	}

	n := len(data)
	keys := make([]uint64, n)
	values := make([]uint64, n)

	if numThreads < 1 {
		numThreads = 1
	}
	if numThreads > n {
		numThreads = n
	}

	if n > 0 {
		chunk := (n + numThreads - 1) / numThreads
		g, gctx := errgroup.WithContext(ctx)
		for start := 0; start < n; start += chunk {
			start := start
			end := start + chunk
			if end > n {
				end = n
			}
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				for i := start; i < end; i++ {
					keys[i] = data[i].Key
					values[i] = data[i].Value
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("persistent: build: %w", err)
		}
	}

	s.keys = keys
	s.values = values
	s.built = true
	return nil
}

// Insert adds one record in its sorted position, shifting subsequent
// entries. Comparatively expensive relative to Build; callers (the hybrid
// coordinator) are expected to call this in key-sorted order during a
// drain to keep the amount of shifting bounded.
func (s *SortedIndex) Insert(rec record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= rec.Key })
	if idx < len(s.keys) && s.keys[idx] == rec.Key {
		s.values[idx] = rec.Value
		return
	}

	s.keys = append(s.keys, 0)
	s.values = append(s.values, 0)
	copy(s.keys[idx+1:], s.keys[idx:])
	copy(s.values[idx+1:], s.values[idx:])
	s.keys[idx] = rec.Key
	s.values[idx] = rec.Value
}

// EqualityLookup returns the value for key, or NotFound.
func (s *SortedIndex) EqualityLookup(key uint64) record.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= key })
	if idx < len(s.keys) && s.keys[idx] == key {
		return record.Found(s.values[idx])
	}
	return record.NotFoundResult()
}

// RangeQuery sums values for lo <= key <= hi.
func (s *SortedIndex) RangeQuery(lo, hi uint64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum uint64
	idx := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= lo })
	for ; idx < len(s.keys) && s.keys[idx] <= hi; idx++ {
		sum += s.values[idx]
	}
	return sum
}

// Len reports the number of records held.
func (s *SortedIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

var _ Index = (*SortedIndex)(nil)
