package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yairfalse/pulse/internal/cache"
	"github.com/yairfalse/pulse/internal/lod"
	"github.com/yairfalse/pulse/internal/render"
	"github.com/yairfalse/pulse/pkg/types"
)

func newBenchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive the pool, cache and scheduler hot paths and print statistics",
		RunE:  runBench,
	}

	cmd.Flags().Int("iterations", 10000, "iterations per stage")
	cmd.Flags().Int("points", 2000, "points per synthetic batch")

	return cmd
}

func runBench(cmd *cobra.Command, args []string) error {
	iterations, _ := cmd.Flags().GetInt("iterations")
	batchSize, _ := cmd.Flags().GetInt("points")

	l, err := buildLoop(cfg)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Println("pulse bench")
	fmt.Printf("  iterations: %d, batch size: %d\n\n", iterations, batchSize)

	batch := syntheticBatch(batchSize)

	// Stage 1: sized buffer churn through the pool.
	start := time.Now()
	for i := 0; i < iterations; i++ {
		buf, err := l.buffers.AcquireSized(batchSize)
		if err != nil {
			return err
		}
		l.buffers.Release(buf)
	}
	poolElapsed := time.Since(start)

	// Stage 2: summary computation with cache in front.
	start = time.Now()
	for i := 0; i < iterations; i++ {
		key := fmt.Sprintf("summary-%d", i%64)
		if _, ok := l.summaries.Get(key); !ok {
			l.summaries.Set(key, lod.StatisticalSummary(batch))
		}
	}
	cacheElapsed := time.Since(start)

	// Stage 3: request-scoped descriptor cache.
	start = time.Now()
	for i := 0; i < iterations; i++ {
		scope := cache.NewScoped[string, []types.Point]()
		scope.Set("viewport", batch)
		scope.Get("viewport")
		scope.Close()
	}
	scopedElapsed := time.Since(start)

	// Stage 4: dirty-region coalescing into forced frames.
	var frames int
	l.sched.RegisterTask(render.Task{
		ID:       "bench",
		Priority: 1,
		Run:      func([]types.Rect) { frames++ },
	})
	start = time.Now()
	for i := 0; i < iterations; i++ {
		l.sched.MarkDirty(types.Rect{X: float64(i % 100), Y: 0, Width: 10, Height: 10})
		if i%100 == 99 {
			l.sched.ForceRender()
		}
	}
	l.sched.CancelRender()
	schedElapsed := time.Since(start)

	// Stage 5: leak registry churn and a cleanup pass.
	start = time.Now()
	for i := 0; i < iterations; i++ {
		id := fmt.Sprintf("obj-%d", i)
		l.registry.Register(id, "bench", 1024)
		if i > 0 {
			l.registry.Link(id, fmt.Sprintf("obj-%d", i-1))
		}
	}
	l.coord.ExecuteAll(context.Background())
	leakElapsed := time.Since(start)

	printBenchRow("pool acquire/release", iterations, poolElapsed)
	printBenchRow("cached summaries", iterations, cacheElapsed)
	printBenchRow("scoped descriptor cache", iterations, scopedElapsed)
	printBenchRow("dirty-mark + frames", iterations, schedElapsed)
	printBenchRow("registry churn + cleanup", iterations, leakElapsed)

	fmt.Println()
	ps := l.buffers.Stats()
	cs := l.summaries.Stats()
	fmt.Printf("  pool: free=%d active=%d total=%d\n", ps.Free, ps.Active, ps.Total)
	fmt.Printf("  cache: size=%d hits=%d misses=%d evictions=%d\n", cs.Size, cs.Hits, cs.Misses, cs.Evictions)
	fmt.Printf("  frames executed: %d (from %d dirty marks)\n", frames, iterations)

	return nil
}

func printBenchRow(name string, n int, elapsed time.Duration) {
	perOp := elapsed / time.Duration(n)
	fmt.Printf("  %-28s %10s total  %8s/op\n", name, elapsed.Round(time.Microsecond), perOp)
}
