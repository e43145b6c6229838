package coordinator

import (
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config holds the tunables forwarded to the hybrid's two buffer slots and
// its persistent index at construction.
type Config struct {
	// InitialFlushThreshold is the starting insert_count value that
	// triggers a rotation (default: 100000).
	InitialFlushThreshold uint64

	// MinFlushThreshold is the adaptive-threshold floor (default: 50000).
	MinFlushThreshold uint64

	// MaxFlushThreshold is the adaptive-threshold ceiling (default: 1000000).
	MaxFlushThreshold uint64

	// AdaptiveStep is how much the threshold is raised after a fast drain
	// (default: 50000).
	AdaptiveStep uint64

	// AdaptiveDrainBudget is the elapsed-drain-time boundary: above it the
	// threshold is halved, at or below it the threshold is raised
	// (default: 200ms).
	AdaptiveDrainBudget time.Duration

	// BufferCapacityHint is forwarded to each buffer slot as a
	// preallocation hint (default: 1<<16 records).
	BufferCapacityHint int

	// NumBuildThreads is the default fan-out width for persistent-index
	// Build (default: runtime.NumCPU()).
	NumBuildThreads int

	// Logger receives structured swap/drain/panic diagnostics. Defaults to
	// a no-op logger.
	Logger *zap.Logger

	// Registry, if non-nil, receives the hybrid's prometheus collectors.
	// A nil Registry disables metrics entirely (no global registration).
	Registry *prometheus.Registry

	// Sink, if non-nil, receives a copy of every drained batch for
	// optional write-ahead shipping (see package shipping). Purely
	// additive: a failing or nil Sink never affects correctness.
	Sink Sink
}

// DefaultConfig returns the reference implementation's numeric defaults.
func DefaultConfig() Config {
	return Config{
		InitialFlushThreshold: 100_000,
		MinFlushThreshold:     50_000,
		MaxFlushThreshold:     1_000_000,
		AdaptiveStep:          50_000,
		AdaptiveDrainBudget:   200 * time.Millisecond,
		BufferCapacityHint:    1 << 16,
		NumBuildThreads:       runtime.NumCPU(),
	}
}

// Validate clamps out-of-range fields to sane defaults rather than failing;
// it only errors when the floor/ceiling relationship is nonsensical and
// cannot be auto-corrected.
func (c *Config) Validate() error {
	if c.InitialFlushThreshold == 0 {
		c.InitialFlushThreshold = 100_000
	}
	if c.MinFlushThreshold == 0 {
		c.MinFlushThreshold = 50_000
	}
	if c.MaxFlushThreshold == 0 {
		c.MaxFlushThreshold = 1_000_000
	}
	if c.MinFlushThreshold > c.MaxFlushThreshold {
		return fmt.Errorf("coordinator: MinFlushThreshold (%d) exceeds MaxFlushThreshold (%d)", c.MinFlushThreshold, c.MaxFlushThreshold)
	}
	if c.InitialFlushThreshold < c.MinFlushThreshold {
		c.InitialFlushThreshold = c.MinFlushThreshold
	}
	if c.InitialFlushThreshold > c.MaxFlushThreshold {
		c.InitialFlushThreshold = c.MaxFlushThreshold
	}
	if c.AdaptiveStep == 0 {
		c.AdaptiveStep = 50_000
	}
	if c.AdaptiveDrainBudget <= 0 {
		c.AdaptiveDrainBudget = 200 * time.Millisecond
	}
	if c.BufferCapacityHint <= 0 {
		c.BufferCapacityHint = 1 << 16
	}
	if c.NumBuildThreads <= 0 {
		c.NumBuildThreads = runtime.NumCPU()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return nil
}
