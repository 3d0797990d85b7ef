// Command kernelbench drives one region's editor and audio roles as
// concurrent goroutines under errgroup.Group, exercising the two-thread
// model spec.md §5 describes: a single-writer editor issuing inserts and
// deletes against the command ring while a single-reader
// consumer polls and walks the chain at audio rate. Not a kerneld — this
// is a manual stress tool and the concurrency shape the race-sensitive
// kernel tests are grounded on.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Conceptual-Machines/magda-api/internal/kernel/bridge"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/consumer"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/mmu"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/region"
)

func main() {
	nodeCapacity := flag.Uint("nodes", 4096, "node capacity")
	duration := flag.Duration("duration", 5*time.Second, "run duration")
	editorHz := flag.Int("editor-hz", 200, "editor mutation rate (ops/sec)")
	quantumTicks := flag.Uint64("quantum-ticks", 120, "consumer quantum size in ticks")
	flag.Parse()

	r := region.NewRegion(region.Config{
		NodeCapacity:  uint32(*nodeCapacity),
		PPQ:           480,
		TempoBPM:      120,
		SafeZoneTicks: 240,
		InstanceID:    "kernelbench",
	})
	m := mmu.New(r)
	b := bridge.New(r, m)
	c := consumer.New(r, m, *quantumTicks)
	c.EventLog = make([]consumer.Event, 0, 4096)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return runEditor(gctx, b, *editorHz) })
	g.Go(func() error { return runConsumer(gctx, b, c) })

	if err := g.Wait(); err != nil && err != context.DeadlineExceeded {
		fmt.Println("bench error:", err)
	}

	stats := b.Stats()
	fmt.Printf("live_nodes=%d free_count=%d telemetry_ops=%d events_emitted=%d error_code=%s\n",
		stats.LiveNodes, stats.FreeCount, stats.TelemetryOps, len(c.EventLog), stats.ErrorCode)
}

// runEditor is the single-writer role: it issues a steady stream of
// debounced inserts, occasional deletes, and a tick each loop iteration so
// the bridge's debounce/reclaim machinery runs concurrently with the
// consumer's audio-context polling.
func runEditor(ctx context.Context, b *bridge.Bridge, hz int) error {
	if hz <= 0 {
		hz = 1
	}
	interval := time.Second / time.Duration(hz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(1))
	live := make([]int32, 0, 1024)
	baseTick := uint32(0)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.Tick()
			if rng.Intn(4) == 0 && len(live) > 0 {
				idx := rng.Intn(len(live))
				b.DeleteNoteDebounced(live[idx])
				live[idx] = live[len(live)-1]
				live = live[:len(live)-1]
				continue
			}
			sourceID := b.GenerateSourceID()
			baseTick += uint32(rng.Intn(240) + 1)
			code := b.InsertNoteDebounced(region.OpNote, uint8(36+rng.Intn(48)), uint8(40+rng.Intn(87)),
				uint32(60+rng.Intn(480)), baseTick, false, sourceID, 0, 0)
			if code == 0 {
				live = append(live, sourceID)
			}
		}
	}
}

// runConsumer is the single-reader role: it polls and walks the chain at
// the region's quantum resolution.
func runConsumer(ctx context.Context, b *bridge.Bridge, c *consumer.Consumer) error {
	ppq := b.Region.Header.PPQ.Load()
	bpm := b.Region.Header.TempoBPM.Load()
	quantumInterval := time.Minute / time.Duration(uint64(bpm)*uint64(ppq)) * time.Duration(c.QuantumTicks)
	if quantumInterval <= 0 {
		quantumInterval = time.Millisecond
	}

	ticker := time.NewTicker(quantumInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Process()
		}
	}
}
