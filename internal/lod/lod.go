package lod

import (
	"fmt"
	"sync"

	"github.com/yairfalse/pulse/internal/logger"
	"github.com/yairfalse/pulse/pkg/types"
)

// Strategy names the rendering approach a level selects.
type Strategy string

const (
	// StrategyPixel collapses the data to one summarized point per pixel
	// column. Used at extreme zoom-out.
	StrategyPixel Strategy = "pixel"
	// StrategyStatistical renders a box-plot-style summary: min, max,
	// median, quartiles.
	StrategyStatistical Strategy = "statistical"
	// StrategyAggregated renders fixed-width time buckets with per-bucket
	// averages.
	StrategyAggregated Strategy = "aggregated"
	// StrategyDetailed renders every point.
	StrategyDetailed Strategy = "detailed"
)

// Level pairs a zoom threshold with a strategy. Levels are configured in
// ascending threshold order.
type Level struct {
	Threshold float64  `json:"threshold"`
	Strategy  Strategy `json:"strategy"`
}

// DrawFunc is the pure drawing primitive supplied by the drawing layer.
type DrawFunc func(strategy Strategy, points []types.Point, vp types.Viewport)

// Selector maps a continuous zoom signal to one of a small fixed set of
// levels. Selection is a linear scan over the (small, bounded) level
// list; the first level whose threshold is >= the current zoom wins, and
// the coarsest (last) level catches everything beyond.
type Selector struct {
	mu      sync.RWMutex
	levels  []Level
	current int
	log     logger.Logger
}

// DefaultLevels is the reference four-level configuration.
func DefaultLevels() []Level {
	return []Level{
		{Threshold: 0.1, Strategy: StrategyPixel},
		{Threshold: 0.5, Strategy: StrategyStatistical},
		{Threshold: 2.0, Strategy: StrategyAggregated},
		{Threshold: 10.0, Strategy: StrategyDetailed},
	}
}

// NewSelector creates a selector over the given levels. Levels must be
// non-empty and strictly ascending by threshold.
func NewSelector(levels []Level, log logger.Logger) (*Selector, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("lod: at least one level required")
	}
	for i := 1; i < len(levels); i++ {
		if levels[i].Threshold <= levels[i-1].Threshold {
			return nil, fmt.Errorf("lod: level thresholds must be strictly ascending (level %d)", i)
		}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Selector{
		levels:  levels,
		current: len(levels) - 1,
		log:     log,
	}, nil
}

// SetZoom selects the active level: the first level whose threshold is
// >= z, or the coarsest (last) level when none qualifies.
func (s *Selector) SetZoom(z float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = len(s.levels) - 1
	for i, lvl := range s.levels {
		if lvl.Threshold >= z {
			s.current = i
			break
		}
	}
}

// CurrentLevel returns the active level.
func (s *Selector) CurrentLevel() Level {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.levels[s.current]
}

// Render dispatches the active level's strategy over the data and hands
// the derived points to draw. Strategies are pure with respect to the
// selector; only the active level parameterizes them.
func (s *Selector) Render(points []types.Point, vp types.Viewport, draw DrawFunc) {
	if draw == nil {
		return
	}
	level := s.CurrentLevel()

	switch level.Strategy {
	case StrategyPixel:
		draw(level.Strategy, SummarizeColumns(points, int(vp.Width)), vp)
	case StrategyStatistical:
		draw(level.Strategy, StatisticalSummary(points).Points(), vp)
	case StrategyAggregated:
		draw(level.Strategy, AggregateBuckets(points, DefaultBucketCount), vp)
	case StrategyDetailed:
		draw(level.Strategy, points, vp)
	default:
		s.log.WithField("strategy", string(level.Strategy)).Warn("unknown strategy, falling back to detailed")
		draw(StrategyDetailed, points, vp)
	}
}
