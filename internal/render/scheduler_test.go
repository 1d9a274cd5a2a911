package render

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/pulse/pkg/types"
)

// holdScheduler creates a scheduler whose next frame is a long way out,
// so tests can inspect pending state without racing the frame timer.
func holdScheduler(t *testing.T) *Scheduler {
	t.Helper()

	s := NewScheduler(time.Hour, nil)
	s.mu.Lock()
	s.lastFrame = time.Now()
	s.mu.Unlock()
	t.Cleanup(s.CancelRender)
	return s
}

func TestScheduler_MergeOverlappingRegions(t *testing.T) {
	s := holdScheduler(t)

	s.MarkDirty(types.Rect{X: 0, Y: 0, Width: 10, Height: 10})
	s.MarkDirty(types.Rect{X: 5, Y: 5, Width: 10, Height: 10})

	regions := s.PendingRegions()
	require.Len(t, regions, 1, "overlapping rects collapse into one")
	assert.Equal(t, types.Rect{X: 0, Y: 0, Width: 15, Height: 15}, regions[0])
}

func TestScheduler_DisjointRegionsStaySeparate(t *testing.T) {
	s := holdScheduler(t)

	s.MarkDirty(types.Rect{X: 0, Y: 0, Width: 10, Height: 10})
	s.MarkDirty(types.Rect{X: 100, Y: 100, Width: 10, Height: 10})

	assert.Len(t, s.PendingRegions(), 2)
}

func TestScheduler_TransitiveMerge(t *testing.T) {
	s := holdScheduler(t)

	// a and c are disjoint; b bridges them, so all three collapse.
	s.MarkDirty(types.Rect{X: 0, Y: 0, Width: 10, Height: 10})
	s.MarkDirty(types.Rect{X: 20, Y: 0, Width: 10, Height: 10})
	s.MarkDirty(types.Rect{X: 5, Y: 0, Width: 20, Height: 10})

	regions := s.PendingRegions()
	require.Len(t, regions, 1)
	assert.Equal(t, types.Rect{X: 0, Y: 0, Width: 30, Height: 10}, regions[0])
}

func TestScheduler_EmptyRegionsIgnored(t *testing.T) {
	s := holdScheduler(t)

	s.MarkDirty(types.Rect{})
	s.MarkDirty(types.Rect{X: 1, Y: 1, Width: 0, Height: 5})

	assert.Empty(t, s.PendingRegions())
	assert.True(t, s.Pending(), "a whole-surface repaint is still scheduled")
}

func TestScheduler_CoalescesMarksIntoOneFrame(t *testing.T) {
	s := NewScheduler(50*time.Millisecond, nil)
	s.mu.Lock()
	s.lastFrame = time.Now()
	s.mu.Unlock()

	var frames atomic.Uint64
	s.RegisterTask(Task{ID: "count", Run: func([]types.Rect) { frames.Add(1) }})

	for i := 0; i < 10; i++ {
		s.MarkDirty(types.Rect{X: float64(i), Y: 0, Width: 5, Height: 5})
	}

	assert.Eventually(t, func() bool { return frames.Load() == 1 },
		time.Second, 5*time.Millisecond, "ten marks inside one window produce one frame")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, uint64(1), frames.Load(), "no further frames without new marks")
	assert.GreaterOrEqual(t, s.Stats().Coalesced, uint64(9))
}

func TestScheduler_TasksRunInPriorityOrder(t *testing.T) {
	s := holdScheduler(t)

	var mu sync.Mutex
	var ran []string
	record := func(id string) func([]types.Rect) {
		return func([]types.Rect) {
			mu.Lock()
			ran = append(ran, id)
			mu.Unlock()
		}
	}

	s.RegisterTask(Task{ID: "grid", Priority: 5, Run: record("grid")})
	s.RegisterTask(Task{ID: "axes", Priority: 5, Run: record("axes")})
	s.RegisterTask(Task{ID: "chart", Priority: 10, Run: record("chart")})
	s.RegisterTask(Task{ID: "tooltip", Priority: 1, Run: record("tooltip")})

	s.ForceRender()

	assert.Equal(t, []string{"chart", "grid", "axes", "tooltip"}, ran,
		"descending priority, ties in registration order")
}

func TestScheduler_RenderReceivesMergedRegions(t *testing.T) {
	s := holdScheduler(t)

	var got []types.Rect
	s.RegisterTask(Task{ID: "chart", Run: func(regions []types.Rect) { got = regions }})

	s.MarkDirty(types.Rect{X: 0, Y: 0, Width: 10, Height: 10})
	s.MarkDirty(types.Rect{X: 5, Y: 5, Width: 10, Height: 10})
	s.MarkDirty(types.Rect{X: 200, Y: 200, Width: 10, Height: 10})

	s.ForceRender()

	require.Len(t, got, 2)
	assert.Contains(t, got, types.Rect{X: 0, Y: 0, Width: 15, Height: 15})
	assert.Contains(t, got, types.Rect{X: 200, Y: 200, Width: 10, Height: 10})
	assert.Empty(t, s.PendingRegions(), "frame consumes the pending set")
}

func TestScheduler_CancelRender(t *testing.T) {
	s := holdScheduler(t)

	var frames atomic.Uint64
	s.RegisterTask(Task{ID: "count", Run: func([]types.Rect) { frames.Add(1) }})

	s.MarkDirty(types.Rect{X: 0, Y: 0, Width: 10, Height: 10})
	require.True(t, s.Pending())

	s.CancelRender()
	assert.False(t, s.Pending())
	assert.Empty(t, s.PendingRegions())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, uint64(0), frames.Load())

	s.CancelRender()
}

func TestScheduler_ForceRenderIgnoresThrottle(t *testing.T) {
	s := holdScheduler(t)

	var frames atomic.Uint64
	s.RegisterTask(Task{ID: "count", Run: func([]types.Rect) { frames.Add(1) }})

	s.ForceRender()
	s.ForceRender()

	assert.Equal(t, uint64(2), frames.Load())
	assert.Equal(t, uint64(2), s.FrameCount())
	assert.GreaterOrEqual(t, s.FPS(), 2.0)
}

func TestScheduler_MarkDirtyDuringRenderSchedulesNextFrame(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, nil)
	t.Cleanup(s.CancelRender)

	var frames atomic.Uint64
	s.RegisterTask(Task{ID: "remark", Run: func([]types.Rect) {
		if frames.Add(1) == 1 {
			s.MarkDirty(types.Rect{X: 1, Y: 1, Width: 2, Height: 2})
		}
	}})

	s.ForceRender()

	assert.Eventually(t, func() bool { return frames.Load() == 2 },
		time.Second, time.Millisecond, "dirty state from mid-render is picked up as a follow-up frame")
}

func TestScheduler_ReregisterKeepsTieBreakPosition(t *testing.T) {
	s := holdScheduler(t)

	var mu sync.Mutex
	var ran []string
	record := func(id string) func([]types.Rect) {
		return func([]types.Rect) {
			mu.Lock()
			ran = append(ran, id)
			mu.Unlock()
		}
	}

	s.RegisterTask(Task{ID: "first", Priority: 5, Run: record("first")})
	s.RegisterTask(Task{ID: "second", Priority: 5, Run: record("second")})
	s.RegisterTask(Task{ID: "first", Priority: 5, Run: record("first")})

	s.ForceRender()
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestScheduler_UnregisterTask(t *testing.T) {
	s := holdScheduler(t)

	var frames atomic.Uint64
	s.RegisterTask(Task{ID: "count", Run: func([]types.Rect) { frames.Add(1) }})
	s.UnregisterTask("count")

	s.ForceRender()
	assert.Equal(t, uint64(0), frames.Load())
	assert.Equal(t, 0, s.Stats().Tasks)
}
