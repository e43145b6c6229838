// Package persistent implements the read-optimized persistent-index
// collaborator the hybrid coordinator drains into. Its internals are out
// of scope for the coordinator; only the Index contract matters to
// callers.
package persistent

import (
	"context"

	"github.com/dkowalski/hybridindex/record"
)

// Index is the collaborator contract for the persistent, read-optimized
// layer. Build is called exactly once, before any Insert.
type Index interface {
	// Build bulk-loads data, which must already be sorted by Key, using up
	// to numThreads workers. It must not be called more than once.
	Build(ctx context.Context, data []record.Record, numThreads int) error

	// Insert adds one record after Build. Permitted but comparatively
	// expensive relative to Build; the coordinator always calls this in
	// key-sorted order during a drain.
	Insert(rec record.Record)

	// EqualityLookup returns the value for key, or NotFound. A persistent
	// index never returns Overflow: it is the last layer consulted.
	EqualityLookup(key uint64) record.Result

	// RangeQuery returns the sum of values for lo <= key <= hi.
	RangeQuery(lo, hi uint64) uint64

	// Len reports the number of records held.
	Len() int
}
