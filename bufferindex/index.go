// Package bufferindex implements the write-optimized buffer-slot collaborator
// the hybrid coordinator rotates between its "active" and "flushing" roles.
// Callers depend only on the Index contract below, never on SkipBuffer's
// internals, so an alternate buffer implementation can be swapped in
// without touching the coordinator.
package bufferindex

import "github.com/dkowalski/hybridindex/record"

// Index is the collaborator contract every buffer slot satisfies. None of
// these methods are safe for a writer and the background worker to call on
// the same instance at once; the coordinator's swap/flush locks are what
// make that safe in practice (see coordinator.Hybrid).
type Index interface {
	// Insert appends or overwrites one record. Always succeeds; a buffer
	// slot never rejects a write.
	Insert(rec record.Record)

	// EqualityLookup returns the layer-local answer for key: Found(v),
	// NotFound, or Overflow ("ask the next layer").
	EqualityLookup(key uint64) record.Result

	// RangeQuery returns the sum of values for lo <= key <= hi.
	RangeQuery(lo, hi uint64) uint64

	// Export drains the slot's logical contents in key-sorted order. The
	// slot's state is unchanged; callers that want an empty slot afterward
	// must call Clear separately.
	Export() []record.Record

	// Clear empties the slot in O(1) amortized.
	Clear()

	// Len reports the number of live records currently held.
	Len() int
}
