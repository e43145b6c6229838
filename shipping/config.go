// Package shipping is an optional write-ahead sidecar for the hybrid
// coordinator: it ships a copy of every drained batch to GCS for
// after-the-fact debugging of drains. It intentionally does not make the
// hybrid index itself durable — there is no replay-on-restart path, so the
// index's in-memory-only behavior is unaffected by whether a Sink is wired
// in.
package shipping

import (
	"fmt"
	"time"
)

// Config configures a GCSSink.
type Config struct {
	// Bucket is the destination GCS bucket (required).
	Bucket string

	// ObjectPrefix is prepended to every shipped object's name.
	ObjectPrefix string

	// SpillDir is the local directory used to stage an encoded batch
	// before it is uploaded (default: os.TempDir()).
	SpillDir string

	// MaxRetries is the number of additional upload attempts after the
	// first failure (default: 3).
	MaxRetries int

	// RetryDelay is the wait between attempts (default: 5s).
	RetryDelay time.Duration

	// GRPCPoolSize is the GCS client's gRPC connection pool size
	// (default: 64).
	GRPCPoolSize int

	// ChannelBufferSize bounds how many ship requests may queue before
	// ShipBatch starts dropping batches (default: 100).
	ChannelBufferSize int
}

// DefaultConfig returns baseline defaults for bucket.
func DefaultConfig(bucket string) Config {
	return Config{
		Bucket:            bucket,
		MaxRetries:        3,
		RetryDelay:        5 * time.Second,
		GRPCPoolSize:      64,
		ChannelBufferSize: 100,
	}
}

// Validate checks required fields and applies defaults.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("shipping: Bucket is required")
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.GRPCPoolSize <= 0 {
		c.GRPCPoolSize = 64
	}
	if c.ChannelBufferSize <= 0 {
		c.ChannelBufferSize = 100
	}
	if c.SpillDir == "" {
		c.SpillDir = ""
	}
	return nil
}
