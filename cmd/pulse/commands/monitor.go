package commands

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/yairfalse/pulse/internal/cache"
	"github.com/yairfalse/pulse/internal/cleanup"
	"github.com/yairfalse/pulse/internal/config"
	"github.com/yairfalse/pulse/internal/leak"
	"github.com/yairfalse/pulse/internal/lod"
	"github.com/yairfalse/pulse/internal/monitor"
	"github.com/yairfalse/pulse/internal/pool"
	"github.com/yairfalse/pulse/internal/render"
	"github.com/yairfalse/pulse/pkg/types"
)

func newMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the render loop against a synthetic feed and watch it live",
		Long: `Starts the full subsystem against a synthetic point feed: the LOD
selector picks a strategy, drawing borrows pooled buffers and cached
summaries, the scheduler batches repaints into throttled frames, and the
memory monitor raises alerts that trigger cleanup.

Thresholds reload live when the config file changes.`,
		RunE: runMonitor,
	}

	cmd.Flags().Duration("duration", 30*time.Second, "how long to run (0 = until interrupted)")
	cmd.Flags().Int("points", 5000, "synthetic points per batch")
	cmd.Flags().Float64("zoom", 1.0, "initial zoom level")

	return cmd
}

// drawContext is the per-frame scratch state a drawing backend holds:
// the current transform and a reusable point slice. Constructing one per
// frame is exactly the churn the pool exists to avoid.
type drawContext struct {
	transform [6]float64
	scratch   []types.Point
}

// loop bundles the wired subsystem for the monitor and bench commands.
type loop struct {
	buffers   *pool.BufferPool
	contexts  *pool.Pool[*drawContext]
	summaries *cache.Cache[string, lod.Summary]
	registry  *leak.Registry
	coord     *cleanup.Coordinator
	mon       *monitor.Monitor
	sched     *render.Scheduler
	selector  *lod.Selector
}

// buildLoop wires every component from configuration the way a host
// dashboard would.
func buildLoop(cfg *config.Config) (*loop, error) {
	lg := log.WithField("component", "loop")

	buffers := pool.NewBufferPool("render-buffers", cfg.Pool.BufferMaxSize, lg)
	contexts, err := pool.New(pool.Config[*drawContext]{
		Name:    "draw-contexts",
		MaxSize: cfg.Pool.ContextMaxSize,
		Factory: func() (*drawContext, error) {
			return &drawContext{
				transform: [6]float64{1, 0, 0, 1, 0, 0},
				scratch:   make([]types.Point, 0, 1024),
			}, nil
		},
		Reset: func(dc *drawContext) {
			dc.transform = [6]float64{1, 0, 0, 1, 0, 0}
			dc.scratch = dc.scratch[:0]
		},
		Logger: lg,
	})
	if err != nil {
		return nil, err
	}
	summaries := cache.New[string, lod.Summary](cfg.Cache.Capacity, lg)
	registry := leak.NewRegistry(cfg.Leak.StalenessWindow, lg)
	coord := cleanup.NewCoordinator(lg)
	sched := render.NewScheduler(cfg.Render.FrameInterval(), lg)

	levels := make([]lod.Level, 0, len(cfg.LOD.Levels))
	for _, l := range cfg.LOD.Levels {
		levels = append(levels, lod.Level{Threshold: l.Threshold, Strategy: lod.Strategy(l.Strategy)})
	}
	if len(levels) == 0 {
		levels = lod.DefaultLevels()
	}
	selector, err := lod.NewSelector(levels, lg)
	if err != nil {
		return nil, err
	}

	// Cleanup tasks reclaim what the pool, cache and registry hold.
	coord.RegisterTask(cleanup.Task{
		ID:          "cache-clear",
		Description: "drop cached summaries",
		Priority:    cleanup.PriorityHigh,
		Action: func(context.Context) error {
			summaries.Clear()
			return nil
		},
	})
	coord.RegisterTask(cleanup.Task{
		ID:          "registry-sweep",
		Description: "remove stale unreferenced tracked objects",
		Priority:    cleanup.PriorityMedium,
		Action: func(context.Context) error {
			registry.Cleanup()
			return nil
		},
	})
	coord.RegisterTask(cleanup.Task{
		ID:          "full-reclaim",
		Description: "cache drop then registry sweep",
		Priority:    cleanup.PriorityCritical,
		DependsOn:   []string{"cache-clear", "registry-sweep"},
		Action: func(context.Context) error {
			return nil
		},
	})

	mon := monitor.New(monitor.Config{
		Thresholds:     thresholdsFrom(cfg.Monitor),
		PollInterval:   cfg.Monitor.PollInterval,
		MinPollSpacing: cfg.Monitor.MinPollSpacing,
	}, monitor.RuntimeSource{Leaks: registry, Frames: sched}, lg)
	monitor.InstallDefaultCatalog(mon, coord)

	return &loop{
		buffers:   buffers,
		contexts:  contexts,
		summaries: summaries,
		registry:  registry,
		coord:     coord,
		mon:       mon,
		sched:     sched,
		selector:  selector,
	}, nil
}

func thresholdsFrom(mc config.MonitorConfig) monitor.Thresholds {
	return monitor.Thresholds{
		MemoryCeilingBytes:       mc.MemoryCeilingMB * 1024 * 1024,
		GrowthCeilingBytesPerSec: mc.GrowthCeilingMBMin * 1024 * 1024 / 60,
		LeakCountCeiling:         mc.LeakCountCeiling,
		FPSFloor:                 mc.FPSFloor,
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	duration, _ := cmd.Flags().GetDuration("duration")
	batchSize, _ := cmd.Flags().GetInt("points")
	zoom, _ := cmd.Flags().GetFloat64("zoom")

	l, err := buildLoop(cfg)
	if err != nil {
		return err
	}
	l.selector.SetZoom(zoom)

	// Live threshold reload when the config file changes.
	cfgPath := viper.ConfigFileUsed()
	if cfgPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfgPath = filepath.Join(home, ".pulse", "config.yaml")
		}
	}
	if cfgPath != "" {
		watcher := config.NewWatcher(cfgPath, log)
		watcher.Subscribe(func(next *config.Config) {
			l.mon.UpdateThresholds(thresholdsFrom(next.Monitor))
			l.sched.SetInterval(next.Render.FrameInterval())
		})
		if err := watcher.Start(); err != nil {
			log.Error("config watcher unavailable, thresholds are fixed", err)
		} else {
			defer watcher.Stop()
		}
	}

	l.mon.AddListener(func(a monitor.Alert) {
		color.Red("ALERT [%s] %s", a.Severity, a.Message)
	})

	vp := types.Viewport{Width: 800, Height: 400, Zoom: zoom}
	l.registry.Register("chart", "view", 4096)

	var frameSeq int
	l.sched.RegisterTask(render.Task{
		ID:       "chart",
		Priority: 10,
		Run: func(regions []types.Rect) {
			batch := syntheticBatch(batchSize)

			// Each batch becomes a tracked series retained by the chart; the
			// slots recycle so older series go stale and the registry has
			// something real to sweep.
			frameSeq++
			seriesID := fmt.Sprintf("series-%d", frameSeq%16)
			l.registry.Register(seriesID, "series", int64(len(batch))*24)
			l.registry.Link("chart", seriesID)
			l.registry.Touch("chart")

			key := fmt.Sprintf("summary-%s-%d", l.selector.CurrentLevel().Strategy, len(batch))
			if _, ok := l.summaries.Get(key); !ok {
				l.summaries.Set(key, lod.StatisticalSummary(batch))
			}

			l.selector.Render(batch, vp, func(strategy lod.Strategy, pts []types.Point, vp types.Viewport) {
				dc, err := l.contexts.Acquire()
				if err != nil {
					log.Error("draw context acquire failed", err)
					return
				}
				defer l.contexts.Release(dc)

				buf, err := l.buffers.AcquireSized(len(pts))
				if err != nil {
					log.Error("buffer acquire failed", err)
					return
				}
				defer l.buffers.Release(buf)

				dc.Value.scratch = append(dc.Value.scratch[:0], pts...)
				for i, p := range pts {
					buf.Value[i] = p.Value
				}
			})
		},
	})

	l.mon.Start()
	defer l.mon.Stop()
	l.coord.StartPeriodic(cfg.Cleanup.PeriodicInterval)
	defer l.coord.StopPeriodic()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	feed := time.NewTicker(10 * time.Millisecond)
	defer feed.Stop()
	display := time.NewTicker(time.Second)
	defer display.Stop()

	var deadline <-chan time.Time
	if duration > 0 {
		deadline = time.After(duration)
	}

	fmt.Println("pulse monitor running (ctrl-c to stop)")
	for {
		select {
		case <-feed.C:
			l.sched.MarkDirty(types.Rect{X: rand.Float64() * vp.Width, Y: rand.Float64() * vp.Height, Width: 64, Height: 64})
		case <-display.C:
			printLoopStats(l)
		case <-sigCh:
			fmt.Println()
			return nil
		case <-deadline:
			printLoopStats(l)
			return nil
		}
	}
}

func printLoopStats(l *loop) {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	ps := l.buffers.Stats()
	cs := l.summaries.Stats()
	rs := l.sched.Stats()
	ls := l.registry.Stats()

	line := fmt.Sprintf("fps=%.0f frames=%d coalesced=%d | pool %d/%d (%.0f%%) | cache %d hit=%.0f%% | tracked=%d orphans=%d",
		rs.FPS, rs.Frames, rs.Coalesced,
		ps.Active, ps.Total, ps.Utilization*100,
		cs.Size, cs.HitRatio*100,
		ls.Registered, ls.OrphanCandidates)
	if len(line) > width {
		line = line[:width]
	}

	if active := l.mon.GetActiveAlerts(); len(active) > 0 {
		color.Yellow("%s | alerts=%d", line, len(active))
	} else {
		color.Green("%s", line)
	}
}

// syntheticBatch produces one batch of pseudo-live points.
func syntheticBatch(n int) []types.Point {
	now := time.Now()
	pts := make([]types.Point, n)
	for i := range pts {
		pts[i] = types.Point{
			Timestamp: now.Add(-time.Duration(n-i) * time.Millisecond),
			Value:     math.Sin(float64(i)/50) * 100,
			Category:  "synthetic",
		}
	}
	return pts
}
