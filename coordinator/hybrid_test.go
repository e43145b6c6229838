package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkowalski/hybridindex/record"
)

func newTestHybrid(t *testing.T, threshold uint64) *Hybrid {
	t.Helper()
	cfg := DefaultConfig()
	cfg.InitialFlushThreshold = threshold
	cfg.MinFlushThreshold = threshold
	h, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHybrid_BuildThenLookup(t *testing.T) {
	h := newTestHybrid(t, 1000)

	_, err := h.Build(context.Background(), []record.Record{{Key: 1, Value: 10}, {Key: 2, Value: 20}, {Key: 3, Value: 30}}, 2)
	require.NoError(t, err)

	v, ok := h.EqualityLookup(2, 0)
	require.True(t, ok)
	assert.Equal(t, uint64(20), v)

	_, ok = h.EqualityLookup(4, 0)
	assert.False(t, ok)
}

// An insert below the flush threshold never triggers a drain.
func TestHybrid_InsertBelowThreshold(t *testing.T) {
	h := newTestHybrid(t, 1000)

	h.Insert(record.Record{Key: 5, Value: 50}, 0)
	h.Insert(record.Record{Key: 7, Value: 70}, 0)

	v, ok := h.EqualityLookup(5, 0)
	require.True(t, ok)
	assert.Equal(t, uint64(50), v)

	v, ok = h.EqualityLookup(7, 0)
	require.True(t, ok)
	assert.Equal(t, uint64(70), v)

	stats := h.Stats()
	assert.Equal(t, 0, stats.FlushingLen)
	assert.Equal(t, 2, stats.ActiveLen)
	assert.False(t, stats.DrainInProgress)
}

// An insert crossing the flush threshold triggers a drain; every key is
// still found afterward and the flushing slot ends up empty.
func TestHybrid_InsertCrossingThreshold(t *testing.T) {
	h := newTestHybrid(t, 4)

	for k := uint64(1); k <= 8; k++ {
		h.Insert(record.Record{Key: k, Value: k * 10}, 0)
	}

	require.Eventually(t, func() bool {
		return !h.Stats().DrainInProgress
	}, time.Second, time.Millisecond)

	stats := h.Stats()
	assert.Equal(t, 0, stats.FlushingLen)
	assert.Equal(t, 4, stats.PersistentLen)
	assert.Equal(t, 4, stats.ActiveLen)

	for k := uint64(1); k <= 8; k++ {
		v, ok := h.EqualityLookup(k, 0)
		require.True(t, ok, "key %d", k)
		assert.Equal(t, k*10, v)
	}
}

// A range query sums across all three layers after a drain.
func TestHybrid_RangeQueryAcrossLayers(t *testing.T) {
	h := newTestHybrid(t, 4)

	for k := uint64(1); k <= 8; k++ {
		h.Insert(record.Record{Key: k, Value: k}, 0)
	}
	require.Eventually(t, func() bool {
		return !h.Stats().DrainInProgress
	}, time.Second, time.Millisecond)

	sum := h.RangeQuery(2, 6, 0)
	assert.Equal(t, uint64(2+3+4+5+6), sum)
}

// Shutdown with a pending/in-flight drain joins cleanly rather than hanging.
func TestHybrid_ShutdownWithPendingDrain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialFlushThreshold = 4
	cfg.MinFlushThreshold = 4
	h, err := New(cfg)
	require.NoError(t, err)

	for k := uint64(1); k <= 4; k++ {
		h.Insert(record.Record{Key: k, Value: k}, 0)
	}

	done := make(chan struct{})
	go func() {
		h.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return: possible deadlock")
	}

	// Calling Close again must not panic or hang.
	assert.NoError(t, h.Close())
}

func TestHybrid_BuildCalledTwiceErrors(t *testing.T) {
	h := newTestHybrid(t, 1000)
	_, err := h.Build(context.Background(), nil, 1)
	require.NoError(t, err)

	_, err = h.Build(context.Background(), nil, 1)
	assert.Error(t, err)
}

func TestHybrid_SizeAdditivity(t *testing.T) {
	h := newTestHybrid(t, 1000)
	_, err := h.Build(context.Background(), []record.Record{{Key: 1, Value: 1}}, 1)
	require.NoError(t, err)

	for k := uint64(2); k <= 10; k++ {
		h.Insert(record.Record{Key: k, Value: k}, 0)
	}

	stats := h.Stats()
	expected := uint64(stats.ActiveLen+stats.FlushingLen+stats.PersistentLen) * 16
	assert.Equal(t, expected, h.Size())
}

func TestHybrid_NameAndApplicable(t *testing.T) {
	h := newTestHybrid(t, 1000)
	assert.Equal(t, "HybridDoubleBuffer", h.Name())
	assert.True(t, h.Applicable(true, true, true, false, ""))
	assert.False(t, h.Applicable(true, true, true, true, ""))
	assert.False(t, h.Applicable(false, true, true, false, ""))
}

func TestHybrid_AdaptiveThresholdRaisesOnFastDrain(t *testing.T) {
	h := newTestHybrid(t, 4)
	h.cfg.MaxFlushThreshold = 1_000_000
	h.cfg.AdaptiveStep = 50_000

	for k := uint64(1); k <= 4; k++ {
		h.Insert(record.Record{Key: k, Value: k}, 0)
	}
	require.Eventually(t, func() bool { return h.Stats().TotalDrains == 1 }, time.Second, time.Millisecond)

	assert.Greater(t, h.Stats().FlushThreshold, uint64(4))
}
