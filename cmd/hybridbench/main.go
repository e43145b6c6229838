// Command hybridbench exercises a coordinator.Hybrid with a synthetic
// workload: flag-driven configuration, a periodic stats ticker, and a
// final summary printed on shutdown. It is not a benchmark harness in its
// own right (use `go test -bench` for that); it's just enough to drive the
// public interface end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dkowalski/hybridindex/coordinator"
	"github.com/dkowalski/hybridindex/record"
)

func main() {
	buildSize := flag.Int("build-size", 1_000_000, "number of records to bulk-build the persistent index with")
	buildThreads := flag.Int("build-threads", 0, "parallel build threads (0 = runtime.NumCPU())")
	insertCount := flag.Int("inserts", 2_000_000, "number of inserts to replay after Build")
	lookupCount := flag.Int("lookups", 500_000, "number of equality lookups to replay after inserts")
	flushThreshold := flag.Uint64("flush-threshold", 100_000, "initial adaptive flush threshold")
	statsInterval := flag.Duration("stats-interval", 5*time.Second, "periodic stats print interval")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg := coordinator.DefaultConfig()
	cfg.InitialFlushThreshold = *flushThreshold
	cfg.Logger = logger
	if *buildThreads > 0 {
		cfg.NumBuildThreads = *buildThreads
	}

	h, err := coordinator.New(cfg)
	if err != nil {
		log.Fatalf("failed to create hybrid index: %v", err)
	}
	defer h.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopStats := make(chan struct{})
	go printStatsPeriodically(h, *statsInterval, stopStats)
	defer close(stopStats)

	log.Printf("building persistent index with %d records across %d threads", *buildSize, cfg.NumBuildThreads)
	buildData := make([]record.Record, *buildSize)
	for i := range buildData {
		k := uint64(rand.Int63())
		buildData[i] = record.Record{Key: k, Value: k}
	}
	sort.Sort(record.ByKey(buildData))
	elapsed, err := h.Build(ctx, buildData, cfg.NumBuildThreads)
	if err != nil {
		log.Fatalf("build failed: %v", err)
	}
	log.Printf("build completed in %s", elapsed)

	log.Printf("replaying %d inserts", *insertCount)
	start := time.Now()
	for i := 0; i < *insertCount; i++ {
		if ctx.Err() != nil {
			log.Println("interrupted during insert replay")
			break
		}
		k := uint64(rand.Int63())
		h.Insert(record.Record{Key: k, Value: k}, 0)
	}
	log.Printf("inserts completed in %s", time.Since(start))

	log.Printf("replaying %d lookups", *lookupCount)
	start = time.Now()
	hits := 0
	for i := 0; i < *lookupCount; i++ {
		if ctx.Err() != nil {
			log.Println("interrupted during lookup replay")
			break
		}
		k := buildData[i%len(buildData)].Key
		if _, ok := h.EqualityLookup(k, 0); ok {
			hits++
		}
	}
	log.Printf("lookups completed in %s (%d/%d hits)", time.Since(start), hits, *lookupCount)

	printStats(h)
}

func printStatsPeriodically(h *coordinator.Hybrid, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			printStats(h)
		}
	}
}

func printStats(h *coordinator.Hybrid) {
	s := h.Stats()
	fmt.Printf("stats: active=%d flushing=%d persistent=%d swaps=%d drains=%d draining=%v threshold=%d size_bytes=%d\n",
		s.ActiveLen, s.FlushingLen, s.PersistentLen, s.TotalSwaps, s.TotalDrains, s.DrainInProgress, s.FlushThreshold, h.Size())
}
