// Package coordinator implements the hybrid index's core: the flush
// coordinator that routes inserts into a front buffer, atomically rotates a
// full buffer into a flushing slot, drains that slot into a persistent
// index on a background worker, and answers lookups correctly throughout
// the rotation. The front/flushing buffer slots and the persistent index
// are black-box collaborators (packages bufferindex and persistent); this
// package owns only the routing, rotation, and drain protocol.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dkowalski/hybridindex/bufferindex"
	"github.com/dkowalski/hybridindex/persistent"
	"github.com/dkowalski/hybridindex/record"
)

// Sink receives every batch drained from the flushing slot just before it
// is inserted into the persistent index. It exists purely for optional
// write-ahead observability (e.g. shipping a copy of each drained batch to
// blob storage, see package shipping) and never affects correctness: a
// failing or absent Sink still leaves every record in the persistent
// index.
type Sink interface {
	ShipBatch(batch []record.Record) error
}

// Hybrid is the flush coordinator: it owns exactly two buffer slots
// (active, flushing), one persistent index, one flush-state record, and one
// background worker.
type Hybrid struct {
	cfg Config

	active   atomic.Pointer[bufferindex.Index]
	flushing atomic.Pointer[bufferindex.Index]
	persist  persistent.Index

	// swapMu guards only the swap of slot identities: never held while
	// acquiring flushMu.
	swapMu sync.Mutex

	// flushMu guards the contents of the flushing slot during a drain:
	// exclusive for the worker's export and its final clear, shared for a
	// lookup's B-slot read.
	flushMu sync.RWMutex

	insertCount    atomic.Uint64
	flushThreshold atomic.Uint64
	draining       atomic.Bool // flushing_flag: true iff a drain is in flight or pending
	stopped        atomic.Bool
	built          atomic.Bool

	flushSignal chan struct{}
	doneCh      chan struct{}
	wg          sync.WaitGroup

	totalSwaps  atomic.Uint64
	totalDrains atomic.Uint64

	lastDrainElapsed atomic.Int64 // nanoseconds

	sink   Sink
	logger *zap.Logger
	metric *metrics

	instanceID uuid.UUID

	// drainHook, when set by a test in this package, is invoked once per
	// drain after the export releases flushMu and before the exported
	// batch is inserted into the persistent index. The flushing slot still
	// holds the batch at that point, so it lets tests observe or pause the
	// window where a lookup must be answered from the flushing slot.
	drainHook func()
}

// New constructs a Hybrid and immediately spawns its background worker.
// Build must be called at most once, before any Insert.
func New(cfg Config) (*Hybrid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	h := &Hybrid{
		cfg:         cfg,
		persist:     persistent.NewSortedIndex(),
		flushSignal: make(chan struct{}, 1),
		doneCh:      make(chan struct{}),
		sink:        cfg.Sink,
		logger:      cfg.Logger,
		metric:      newMetrics(cfg.Registry),
		instanceID:  uuid.New(),
	}
	var initialActive bufferindex.Index = bufferindex.NewSkipBuffer(cfg.BufferCapacityHint)
	var initialFlushing bufferindex.Index = bufferindex.NewSkipBuffer(cfg.BufferCapacityHint)
	h.active.Store(&initialActive)
	h.flushing.Store(&initialFlushing)
	h.flushThreshold.Store(cfg.InitialFlushThreshold)
	h.metric.setFlushThreshold(cfg.InitialFlushThreshold)

	h.wg.Add(1)
	go h.flushWorker()

	return h, nil
}

// Build bulk-loads the persistent index exactly once, before any Insert.
func (h *Hybrid) Build(ctx context.Context, data []record.Record, numThreads int) (time.Duration, error) {
	if !h.built.CompareAndSwap(false, true) {
		return 0, fmt.Errorf("coordinator: Build called more than once")
	}
	if numThreads <= 0 {
		numThreads = h.cfg.NumBuildThreads
	}

	start := time.Now()
	err := h.persist.Build(ctx, data, numThreads)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, fmt.Errorf("coordinator: build: %w", err)
	}

	h.logger.Info("build complete",
		zap.String("instance", h.instanceID.String()),
		zap.Int("records", len(data)),
		zap.Duration("elapsed", elapsed),
	)
	return elapsed, nil
}

// Insert appends rec to the active buffer, then rotates active/flushing if
// the insert count has crossed the current threshold and no drain is
// already in flight.
func (h *Hybrid) Insert(rec record.Record, threadID int) {
	(*h.active.Load()).Insert(rec)
	h.metric.observeInsert()

	n := h.insertCount.Add(1)
	threshold := h.flushThreshold.Load()
	if n < threshold {
		return
	}
	if !h.draining.CompareAndSwap(false, true) {
		return
	}

	h.swapMu.Lock()
	oldActive := h.active.Load()
	oldFlushing := h.flushing.Load()
	h.active.Store(oldFlushing)
	h.flushing.Store(oldActive)
	h.insertCount.Store(0)
	h.swapMu.Unlock()

	h.totalSwaps.Add(1)
	h.metric.observeSwap()

	select {
	case h.flushSignal <- struct{}{}:
	default:
		// Worker already has a pending wakeup queued; it will see the swap
		// on its next iteration regardless.
	}
}

// EqualityLookup consults active, then flushing (under a shared flushMu
// hold), then the persistent index, in that order, so a key never
// transiently disappears while a rotation is in progress. Overflow and
// NotFound are both treated as "fall through"; the public result collapses
// them to a plain boolean.
func (h *Hybrid) EqualityLookup(key uint64, threadID int) (uint64, bool) {
	if r := (*h.active.Load()).EqualityLookup(key); !r.FallThrough() {
		return r.Value, true
	}

	h.flushMu.RLock()
	r := (*h.flushing.Load()).EqualityLookup(key)
	h.flushMu.RUnlock()
	if !r.FallThrough() {
		return r.Value, true
	}

	if r := h.persist.EqualityLookup(key); r.Outcome == record.OutcomeFound {
		return r.Value, true
	}

	h.metric.observeLookupMiss()
	return 0, false
}

// RangeQuery sums the per-layer aggregates across active, flushing, and
// persistent. This is not a snapshot: a record drained between the
// flushing-slot read and the persistent-index read may be counted twice,
// never zero times.
func (h *Hybrid) RangeQuery(lo, hi uint64, threadID int) uint64 {
	sum := (*h.active.Load()).RangeQuery(lo, hi)

	h.flushMu.RLock()
	sum += (*h.flushing.Load()).RangeQuery(lo, hi)
	h.flushMu.RUnlock()

	sum += h.persist.RangeQuery(lo, hi)
	return sum
}

// Size returns the sum of the three component sizes, in bytes (approximated
// as 16 bytes per record: an 8-byte key plus an 8-byte value). It may
// double-count a record momentarily during a drain.
func (h *Hybrid) Size() uint64 {
	const bytesPerRecord = 16
	n := uint64((*h.active.Load()).Len()) + uint64((*h.flushing.Load()).Len()) + uint64(h.persist.Len())
	return n * bytesPerRecord
}

// Name identifies this collaborator to the benchmark harness.
func (h *Hybrid) Name() string { return "HybridDoubleBuffer" }

// Applicable reports whether this index can serve the given workload
// shape: it requires unique keys and a single writer.
func (h *Hybrid) Applicable(unique, rangeQuery, insert, multithread bool, opsFile string) bool {
	return unique && !multithread
}

// Stats is a point-in-time snapshot of coordinator bookkeeping.
type Stats struct {
	TotalInserts    uint64
	TotalSwaps      uint64
	TotalDrains     uint64
	ActiveLen       int
	FlushingLen     int
	PersistentLen   int
	FlushThreshold  uint64
	DrainInProgress bool
	LastDrainNanos  int64
}

// Stats returns a snapshot of the coordinator's current bookkeeping.
func (h *Hybrid) Stats() Stats {
	return Stats{
		TotalSwaps:      h.totalSwaps.Load(),
		TotalDrains:     h.totalDrains.Load(),
		ActiveLen:       (*h.active.Load()).Len(),
		FlushingLen:     (*h.flushing.Load()).Len(),
		PersistentLen:   h.persist.Len(),
		FlushThreshold:  h.flushThreshold.Load(),
		DrainInProgress: h.draining.Load(),
		LastDrainNanos:  h.lastDrainElapsed.Load(),
	}
}

// Close raises the stop flag, wakes the background worker, and joins it.
// Idempotent: calling it more than once is a no-op. Any records still in
// active or flushing are discarded — durability is a non-goal.
func (h *Hybrid) Close() error {
	if !h.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(h.doneCh)
	h.wg.Wait()
	return nil
}

// flushWorker is the background drain thread: it waits on flushSignal until
// woken by a swap or shutdown, drains exactly once per wakeup, and exits
// once doneCh is closed. A closed doneCh is always selectable, so shutdown
// never races a pending signal.
func (h *Hybrid) flushWorker() {
	defer h.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("flush worker panic", zap.Any("panic", r), zap.String("instance", h.instanceID.String()))
		}
	}()

	for {
		select {
		case <-h.doneCh:
			return
		case <-h.flushSignal:
			h.drain()
			h.draining.Store(false)
		}
	}
}

// drain exports the flushing slot under an exclusive flushMu hold, hands
// the batch to the Sink (if any), inserts it into the persistent index
// without holding flushMu, and only then clears the flushing slot under
// flushMu again. Lookups are never blocked by persistent-index insert cost,
// and every drained record stays visible in the flushing slot until it is
// in the persistent index.
func (h *Hybrid) drain() {
	h.flushMu.Lock()
	slot := *h.flushing.Load()
	buf := slot.Export()
	h.flushMu.Unlock()

	if h.drainHook != nil {
		h.drainHook()
	}

	if !sort.IsSorted(record.ByKey(buf)) {
		sort.Sort(record.ByKey(buf))
	}

	if h.sink != nil {
		if err := h.sink.ShipBatch(buf); err != nil {
			h.logger.Warn("drain sink failed", zap.Error(err), zap.String("instance", h.instanceID.String()))
		}
	}

	start := time.Now()
	for _, rec := range buf {
		h.persist.Insert(rec)
	}
	elapsed := time.Since(start)

	h.flushMu.Lock()
	slot.Clear()
	h.flushMu.Unlock()

	h.lastDrainElapsed.Store(elapsed.Nanoseconds())
	h.totalDrains.Add(1)
	h.metric.observeDrain(elapsed)
	h.adjustThreshold(elapsed)

	h.logger.Info("drain complete",
		zap.String("instance", h.instanceID.String()),
		zap.Int("records", len(buf)),
		zap.Duration("elapsed", elapsed),
		zap.Uint64("next_threshold", h.flushThreshold.Load()),
	)
}

// adjustThreshold implements an AIMD-style adaptive flush threshold: halve
// down to the floor after a slow drain, raise by the configured step up to
// the ceiling after a fast one.
func (h *Hybrid) adjustThreshold(elapsed time.Duration) {
	cur := h.flushThreshold.Load()
	var next uint64
	if elapsed > h.cfg.AdaptiveDrainBudget {
		next = cur / 2
		if next < h.cfg.MinFlushThreshold {
			next = h.cfg.MinFlushThreshold
		}
	} else {
		next = cur + h.cfg.AdaptiveStep
		if next > h.cfg.MaxFlushThreshold {
			next = h.cfg.MaxFlushThreshold
		}
	}
	h.flushThreshold.Store(next)
	h.metric.setFlushThreshold(next)
}
