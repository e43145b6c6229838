package shipping

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/dkowalski/hybridindex/record"
)

// Sink is what the coordinator hands each drained batch to. It matches
// coordinator.Sink structurally so a *GCSSink can be passed straight into
// coordinator.Config.Sink without this package importing coordinator.
type Sink interface {
	ShipBatch(batch []record.Record) error
}

// Stats tracks shipping statistics.
type Stats struct {
	TotalBatches int64
	Successful   int64
	Failed       int64
	TotalBytes   int64
}

// GCSSink stages each drained batch as a small local file, then ships it to
// GCS asynchronously with retries. There is no chunked-compose path: a
// drained batch is small enough that a single object write always
// suffices.
type GCSSink struct {
	cfg    Config
	client *storage.Client

	uploadChan chan string
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	statsMu sync.RWMutex
	stats   Stats

	stopOnce sync.Once
}

// NewGCSSink creates a GCS-backed sink and starts its background upload
// worker.
func NewGCSSink(ctx context.Context, cfg Config) (*GCSSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	client, err := storage.NewClient(ctx, option.WithGRPCConnectionPool(cfg.GRPCPoolSize))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("shipping: create storage client: %w", err)
	}

	s := &GCSSink{
		cfg:        cfg,
		client:     client,
		uploadChan: make(chan string, cfg.ChannelBufferSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	s.wg.Add(1)
	go s.uploadWorker()

	return s, nil
}

// ShipBatch encodes batch as 16-byte key/value records into a spill file
// and enqueues it for upload. Non-blocking: if the upload queue is full the
// batch is dropped and counted as failed rather than blocking the caller.
func (s *GCSSink) ShipBatch(batch []record.Record) error {
	if len(batch) == 0 {
		return nil
	}

	path, err := s.spill(batch)
	if err != nil {
		return fmt.Errorf("shipping: spill batch: %w", err)
	}

	select {
	case s.uploadChan <- path:
		return nil
	default:
		os.Remove(path)
		s.statsMu.Lock()
		s.stats.Failed++
		s.statsMu.Unlock()
		return fmt.Errorf("shipping: upload queue full, dropped batch of %d records", len(batch))
	}
}

func (s *GCSSink) spill(batch []record.Record) (string, error) {
	f, err := os.CreateTemp(s.cfg.SpillDir, "hybrid-drain-*.rec")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.Write(encodeBatch(batch)); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// encodeBatch lays out a batch as consecutive 16-byte records (8-byte
// little-endian key, 8-byte little-endian value).
func encodeBatch(batch []record.Record) []byte {
	buf := make([]byte, 16*len(batch))
	for i, rec := range batch {
		off := i * 16
		binary.LittleEndian.PutUint64(buf[off:off+8], rec.Key)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], rec.Value)
	}
	return buf
}

// decodeBatch is encodeBatch's inverse, used by tests and by any future
// offline inspection of a shipped spill file.
func decodeBatch(buf []byte) []record.Record {
	out := make([]record.Record, len(buf)/16)
	for i := range out {
		off := i * 16
		out[i] = record.Record{
			Key:   binary.LittleEndian.Uint64(buf[off : off+8]),
			Value: binary.LittleEndian.Uint64(buf[off+8 : off+16]),
		}
	}
	return out
}

// Stop drains the upload queue, stops the background worker, and closes
// the GCS client. Idempotent.
func (s *GCSSink) Stop() {
	s.stopOnce.Do(func() {
		close(s.uploadChan)
		s.wg.Wait()
		s.cancel()
		s.client.Close()
	})
}

// GetStats returns a snapshot of upload statistics.
func (s *GCSSink) GetStats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

func (s *GCSSink) uploadWorker() {
	defer s.wg.Done()

	for path := range s.uploadChan {
		if err := s.uploadWithRetry(path); err != nil {
			log.Printf("[shipping] upload failed for %s after %d attempts: %v", path, s.cfg.MaxRetries+1, err)
			s.statsMu.Lock()
			s.stats.Failed++
			s.statsMu.Unlock()
			continue
		}
		s.statsMu.Lock()
		s.stats.Successful++
		s.stats.TotalBatches++
		s.statsMu.Unlock()
	}
}

func (s *GCSSink) uploadWithRetry(path string) error {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-s.ctx.Done():
				return fmt.Errorf("sink stopped")
			case <-time.After(s.cfg.RetryDelay):
			}
		}

		if err := s.uploadOnce(path); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", s.cfg.MaxRetries+1, lastErr)
}

func (s *GCSSink) uploadOnce(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open spill file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat spill file: %w", err)
	}

	objectName := s.cfg.ObjectPrefix + filepath.Base(path)
	w := s.client.Bucket(s.cfg.Bucket).Object(objectName).NewWriter(s.ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object writer: %w", err)
	}

	s.statsMu.Lock()
	s.stats.TotalBytes += info.Size()
	s.statsMu.Unlock()

	return os.Remove(path)
}

var _ Sink = (*GCSSink)(nil)
