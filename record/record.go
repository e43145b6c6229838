// Package record defines the key-value entity shared by every layer of the
// hybrid index and the sentinel values buffer layers use to signal
// "not answered here, try the next layer".
package record

// Record is a single key-value pair. Keys are totally ordered unsigned
// 64-bit integers; values are an opaque uint64 payload.
type Record struct {
	Key   uint64
	Value uint64
}

// Sentinel values reserved at the top of the value space for "not found"
// and "consult the next layer". The layers' EqualityLookup methods report
// these cases through Result's Outcome rather than as values, and neither
// sentinel is ever returned from the hybrid's public EqualityLookup.
const (
	NotFound = ^uint64(0)     // math.MaxUint64
	Overflow = ^uint64(0) - 1 // math.MaxUint64 - 1
)

// ByKey sorts a slice of Records by Key ascending.
type ByKey []Record

func (b ByKey) Len() int           { return len(b) }
func (b ByKey) Less(i, j int) bool { return b[i].Key < b[j].Key }
func (b ByKey) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }

// Result is the sum-typed outcome of a layer-local lookup: a value was
// found, the key is not present, or the layer could not answer definitively
// and the caller should fall through to the next layer. Overflow and
// NotFound are handled identically by every caller in this module; the
// distinction exists for layers (e.g. a PGM-style buffer index) whose
// internal structure can legitimately be unsure.
type Result struct {
	Value   uint64
	Outcome Outcome
}

// Outcome tags a Result.
type Outcome int

const (
	OutcomeFound Outcome = iota
	OutcomeNotFound
	OutcomeOverflow
)

// Found builds a Result carrying v.
func Found(v uint64) Result { return Result{Value: v, Outcome: OutcomeFound} }

// NotFoundResult is the canonical "key absent" Result.
func NotFoundResult() Result { return Result{Outcome: OutcomeNotFound} }

// OverflowResult is the canonical "layer could not answer" Result.
func OverflowResult() Result { return Result{Outcome: OutcomeOverflow} }

// FallThrough reports whether the caller should consult the next layer,
// i.e. the Result is neither Found.
func (r Result) FallThrough() bool { return r.Outcome != OutcomeFound }
