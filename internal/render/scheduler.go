package render

import (
	"sort"
	"sync"
	"time"

	"github.com/yairfalse/pulse/internal/logger"
	"github.com/yairfalse/pulse/pkg/types"
)

// Task is a registered render action. Tasks execute in strictly
// descending priority order within one frame; ties keep registration
// order. Run receives the frame's merged dirty regions (empty when the
// whole surface repaints).
type Task struct {
	ID       string
	Priority int
	Run      func(regions []types.Rect)
}

// Stats is a snapshot of scheduler activity.
type Stats struct {
	Frames         uint64  `json:"frames"`
	Coalesced      uint64  `json:"coalesced"`
	FPS            float64 `json:"fps"`
	PendingRegions int     `json:"pending_regions"`
	Tasks          int     `json:"tasks"`
}

// Scheduler coalesces damage regions and throttles repaint to a target
// frame interval. At most one render is ever in flight; marking dirty
// during a render records state for the next frame without starting a
// second concurrent render.
type Scheduler struct {
	mu       sync.Mutex
	interval time.Duration
	log      logger.Logger

	tasks map[string]Task
	order map[string]int
	seq   int

	dirty     bool
	regions   []types.Rect
	timer     *time.Timer
	scheduled bool
	rendering bool
	lastFrame time.Time

	frames     uint64
	coalesced  uint64
	frameTimes []time.Time

	now func() time.Time
}

// NewScheduler creates a scheduler targeting the given frame interval.
// Non-positive intervals fall back to 16ms (roughly 60fps).
func NewScheduler(interval time.Duration, log logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		interval: interval,
		log:      log,
		tasks:    make(map[string]Task),
		order:    make(map[string]int),
		now:      time.Now,
	}
}

// RegisterTask adds a render task. Re-registering an id overwrites the
// task but keeps its original position in the tie-break order.
func (s *Scheduler) RegisterTask(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; !ok {
		s.seq++
		s.order[t.ID] = s.seq
	}
	s.tasks[t.ID] = t
}

// UnregisterTask removes a task. Unknown ids are a no-op.
func (s *Scheduler) UnregisterTask(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, id)
	delete(s.order, id)
}

// MarkDirty flags the surface for repaint and schedules a frame if none
// is pending. Supplied regions are merged into the pending set: any two
// mutually overlapping rectangles collapse into their bounding box, so
// the stored set never holds overlapping entries.
func (s *Scheduler) MarkDirty(regions ...types.Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty || s.scheduled {
		s.coalesced++
	}
	s.dirty = true
	for _, r := range regions {
		if !r.Empty() {
			s.mergeRegionLocked(r)
		}
	}
	s.scheduleLocked()
}

// ForceRender cancels any pending schedule and renders synchronously,
// ignoring the throttle.
func (s *Scheduler) ForceRender() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.scheduled = false
	s.mu.Unlock()

	s.render()
}

// CancelRender cancels any pending schedule and clears dirty state
// without rendering. Idempotent no-op when nothing is scheduled.
func (s *Scheduler) CancelRender() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.scheduled = false
	s.dirty = false
	s.regions = nil
}

// Pending reports whether a frame is currently scheduled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.scheduled
}

// PendingRegions returns a copy of the merged dirty-region set.
func (s *Scheduler) PendingRegions() []types.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Rect, len(s.regions))
	copy(out, s.regions)
	return out
}

// SetInterval retargets the frame interval. Takes effect on the next
// schedule.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d > 0 {
		s.interval = d
	}
}

// FrameCount returns the number of executed frames.
func (s *Scheduler) FrameCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.frames
}

// FPS returns frames executed over the trailing second.
func (s *Scheduler) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return float64(s.recentFramesLocked())
}

// Stats returns a snapshot of scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Frames:         s.frames,
		Coalesced:      s.coalesced,
		FPS:            float64(s.recentFramesLocked()),
		PendingRegions: len(s.regions),
		Tasks:          len(s.tasks),
	}
}

// mergeRegionLocked folds r into the pending set, merging transitively:
// a union that comes to overlap further stored rects absorbs them too.
// Merge is commutative and associative, so arrival order cannot change
// the final set. Caller holds the lock.
func (s *Scheduler) mergeRegionLocked(r types.Rect) {
	merged := r
	for {
		absorbed := false
		kept := s.regions[:0]
		for _, existing := range s.regions {
			if merged.Overlaps(existing) {
				merged = merged.Union(existing)
				absorbed = true
			} else {
				kept = append(kept, existing)
			}
		}
		s.regions = kept
		if !absorbed {
			break
		}
	}
	s.regions = append(s.regions, merged)
}

// scheduleLocked arms the frame timer. If the last frame is older than
// the target interval the frame runs on the next callback; otherwise it
// runs after the remaining delta, so frames are never spaced tighter
// than the interval. Caller holds the lock.
func (s *Scheduler) scheduleLocked() {
	if s.scheduled || s.rendering {
		return
	}

	var delay time.Duration
	if elapsed := s.now().Sub(s.lastFrame); elapsed < s.interval {
		delay = s.interval - elapsed
	}

	s.scheduled = true
	s.timer = time.AfterFunc(delay, s.render)
}

// render executes all registered tasks in descending priority order,
// then clears the dirty flag and region set. The rendering guard keeps
// a second render from starting while one runs.
func (s *Scheduler) render() {
	s.mu.Lock()
	if s.rendering {
		s.mu.Unlock()
		return
	}
	s.rendering = true
	s.scheduled = false
	s.timer = nil

	regions := s.regions
	s.regions = nil
	s.dirty = false

	tasks := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	order := s.order
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return order[tasks[i].ID] < order[tasks[j].ID]
	})
	s.mu.Unlock()

	for _, t := range tasks {
		if t.Run != nil {
			t.Run(regions)
		}
	}

	s.mu.Lock()
	now := s.now()
	s.rendering = false
	s.lastFrame = now
	s.frames++
	s.frameTimes = append(s.frameTimes, now)
	if len(s.frameTimes) > 240 {
		s.frameTimes = s.frameTimes[len(s.frameTimes)-240:]
	}
	// A MarkDirty that landed mid-render left state but could not
	// schedule; pick it up now.
	if s.dirty && !s.scheduled {
		s.scheduleLocked()
	}
	s.mu.Unlock()
}

// recentFramesLocked counts frames within the trailing second. Caller
// holds the lock.
func (s *Scheduler) recentFramesLocked() int {
	cutoff := s.now().Add(-time.Second)
	count := 0
	for i := len(s.frameTimes) - 1; i >= 0; i-- {
		if s.frameTimes[i].Before(cutoff) {
			break
		}
		count++
	}
	return count
}
