package bufferindex

import (
	"encoding/binary"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/dkowalski/hybridindex/record"
)

const (
	recordSize    = 16 // 8 bytes key + 8 bytes value, little-endian
	minArenaSlots = 1024
)

// SkipBuffer is a write-optimized buffer-slot collaborator. It holds
// records in an anonymously mmap'd arena indexed by a plain Go map for
// O(1) equality lookups, and derives a sorted key order on demand for
// range queries and export. It grows by doubling rather than ever
// rejecting a write: Insert always succeeds.
type SkipBuffer struct {
	mu sync.Mutex

	arena   []byte
	cleanup func()
	slots   int // capacity, in records

	index map[uint64]int // key -> slot index
	n     int            // live records

	sortedDirty bool
	sortedKeys  []uint64
}

// NewSkipBuffer allocates a SkipBuffer with room for at least capacityHint
// records (rounded up, minimum minArenaSlots).
func NewSkipBuffer(capacityHint int) *SkipBuffer {
	slots := capacityHint
	if slots < minArenaSlots {
		slots = minArenaSlots
	}
	arena, cleanup := mmapArena(slots)
	return &SkipBuffer{
		arena:   arena,
		cleanup: cleanup,
		slots:   slots,
		index:   make(map[uint64]int, slots),
	}
}

func mmapArena(slots int) ([]byte, func()) {
	size := alignPage(slots * recordSize)
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		// Anonymous mmap failing means we're out of address space or on a
		// platform without it; fall back to a plain heap slice rather than
		// surfacing a fallible Insert path the interface doesn't have.
		return make([]byte, size), func() {}
	}
	cleanup := func() { runtime.KeepAlive(data) }
	runtime.SetFinalizer(&data, func(d *[]byte) {
		if d != nil && len(*d) > 0 {
			unix.Munmap(*d)
		}
	})
	return data, cleanup
}

func alignPage(size int) int {
	const pageSize = 4096
	return ((size + pageSize - 1) / pageSize) * pageSize
}

// Insert appends rec, or overwrites the value in place if the key already
// has a slot. Grows the arena by doubling when full.
func (b *SkipBuffer) Insert(rec record.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if slot, ok := b.index[rec.Key]; ok {
		b.putValue(slot, rec.Value)
		return
	}

	if b.n >= b.slots {
		b.grow()
	}

	slot := b.n
	b.putRecord(slot, rec)
	b.index[rec.Key] = slot
	b.n++
	b.sortedDirty = true
}

func (b *SkipBuffer) grow() {
	newSlots := b.slots * 2
	newArena, newCleanup := mmapArena(newSlots)
	copy(newArena, b.arena[:b.n*recordSize])
	b.cleanup()
	b.arena = newArena
	b.cleanup = newCleanup
	b.slots = newSlots
}

func (b *SkipBuffer) putRecord(slot int, rec record.Record) {
	off := slot * recordSize
	binary.LittleEndian.PutUint64(b.arena[off:off+8], rec.Key)
	binary.LittleEndian.PutUint64(b.arena[off+8:off+16], rec.Value)
}

func (b *SkipBuffer) putValue(slot int, value uint64) {
	off := slot*recordSize + 8
	binary.LittleEndian.PutUint64(b.arena[off:off+8], value)
}

func (b *SkipBuffer) recordAt(slot int) record.Record {
	off := slot * recordSize
	return record.Record{
		Key:   binary.LittleEndian.Uint64(b.arena[off : off+8]),
		Value: binary.LittleEndian.Uint64(b.arena[off+8 : off+16]),
	}
}

// EqualityLookup never returns Overflow: a SkipBuffer either has the key or
// it doesn't.
func (b *SkipBuffer) EqualityLookup(key uint64) record.Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot, ok := b.index[key]
	if !ok {
		return record.NotFoundResult()
	}
	off := slot*recordSize + 8
	return record.Found(binary.LittleEndian.Uint64(b.arena[off : off+8]))
}

// RangeQuery sums values for lo <= key <= hi.
func (b *SkipBuffer) RangeQuery(lo, hi uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ensureSortedLocked()
	var sum uint64
	idx := sort.Search(len(b.sortedKeys), func(i int) bool { return b.sortedKeys[i] >= lo })
	for ; idx < len(b.sortedKeys) && b.sortedKeys[idx] <= hi; idx++ {
		slot := b.index[b.sortedKeys[idx]]
		off := slot*recordSize + 8
		sum += binary.LittleEndian.Uint64(b.arena[off : off+8])
	}
	return sum
}

// Export drains the slot's logical contents in key-sorted order.
func (b *SkipBuffer) Export() []record.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ensureSortedLocked()
	out := make([]record.Record, len(b.sortedKeys))
	for i, k := range b.sortedKeys {
		slot := b.index[k]
		out[i] = b.recordAt(slot)
	}
	return out
}

// Clear empties the slot; the arena itself is reused, not reallocated.
func (b *SkipBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.n = 0
	b.index = make(map[uint64]int, b.slots)
	b.sortedKeys = b.sortedKeys[:0]
	b.sortedDirty = false
}

// Len reports the number of live records.
func (b *SkipBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func (b *SkipBuffer) ensureSortedLocked() {
	if !b.sortedDirty && len(b.sortedKeys) == b.n {
		return
	}
	keys := make([]uint64, 0, b.n)
	for k := range b.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	b.sortedKeys = keys
	b.sortedDirty = false
}

var _ Index = (*SkipBuffer)(nil)
