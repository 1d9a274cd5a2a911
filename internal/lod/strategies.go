package lod

import (
	"math"
	"sort"
	"time"

	"github.com/yairfalse/pulse/pkg/types"
)

// DefaultBucketCount is the bucket count used by the aggregated strategy
// when the caller does not size buckets explicitly.
const DefaultBucketCount = 100

// Summary holds the box-plot statistics of a point set.
type Summary struct {
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// Points renders the summary as five labeled points so the generic draw
// primitive can paint it.
func (s Summary) Points() []types.Point {
	if s.Count == 0 {
		return nil
	}
	return []types.Point{
		{Value: s.Min, Category: "min"},
		{Value: s.Q1, Category: "q1"},
		{Value: s.Median, Category: "median"},
		{Value: s.Q3, Category: "q3"},
		{Value: s.Max, Category: "max"},
	}
}

// SummarizeColumns collapses points into one averaged point per pixel
// column. Columns partition the time range evenly across width; empty
// columns produce no point.
func SummarizeColumns(points []types.Point, width int) []types.Point {
	if len(points) == 0 || width < 1 {
		return nil
	}

	minT, maxT := timeRange(points)
	span := maxT.Sub(minT)
	if span <= 0 {
		// All points share a timestamp; a single averaged point remains.
		return []types.Point{averageOf(points)}
	}

	type column struct {
		sum   float64
		count int
		first time.Time
	}
	cols := make([]column, width)

	for _, p := range points {
		idx := int(float64(width) * float64(p.Timestamp.Sub(minT)) / float64(span))
		if idx >= width {
			idx = width - 1
		}
		c := &cols[idx]
		if c.count == 0 {
			c.first = p.Timestamp
		}
		c.sum += p.Value
		c.count++
	}

	out := make([]types.Point, 0, width)
	for _, c := range cols {
		if c.count == 0 {
			continue
		}
		out = append(out, types.Point{
			Timestamp: c.first,
			Value:     c.sum / float64(c.count),
		})
	}
	return out
}

// StatisticalSummary computes min/max/median/quartiles of the values.
func StatisticalSummary(points []types.Point) Summary {
	if len(points) == 0 {
		return Summary{}
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	sort.Float64s(values)

	return Summary{
		Min:    values[0],
		Q1:     Quantile(values, 0.25),
		Median: Quantile(values, 0.5),
		Q3:     Quantile(values, 0.75),
		Max:    values[len(values)-1],
		Count:  len(values),
	}
}

// AggregateBuckets splits the time range into count fixed-width buckets
// and emits one point per non-empty bucket carrying the bucket average,
// stamped at the bucket start.
func AggregateBuckets(points []types.Point, count int) []types.Point {
	if len(points) == 0 || count < 1 {
		return nil
	}

	minT, maxT := timeRange(points)
	span := maxT.Sub(minT)
	if span <= 0 {
		return []types.Point{averageOf(points)}
	}
	bucketWidth := span / time.Duration(count)
	if bucketWidth <= 0 {
		bucketWidth = time.Nanosecond
	}

	type bucket struct {
		sum   float64
		count int
	}
	buckets := make([]bucket, count)

	for _, p := range points {
		idx := int(p.Timestamp.Sub(minT) / bucketWidth)
		if idx >= count {
			idx = count - 1
		}
		buckets[idx].sum += p.Value
		buckets[idx].count++
	}

	out := make([]types.Point, 0, count)
	for i, b := range buckets {
		if b.count == 0 {
			continue
		}
		out = append(out, types.Point{
			Timestamp: minT.Add(time.Duration(i) * bucketWidth),
			Value:     b.sum / float64(b.count),
		})
	}
	return out
}

// Quantile computes the p-quantile of ascending-sorted values using
// linear interpolation between order statistics (the R-7 method):
// idx = (n-1)*p, interpolated between the floor and ceil neighbors
// weighted by the fractional part.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	idx := float64(n-1) * p
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func timeRange(points []types.Point) (time.Time, time.Time) {
	minT, maxT := points[0].Timestamp, points[0].Timestamp
	for _, p := range points[1:] {
		if p.Timestamp.Before(minT) {
			minT = p.Timestamp
		}
		if p.Timestamp.After(maxT) {
			maxT = p.Timestamp
		}
	}
	return minT, maxT
}

func averageOf(points []types.Point) types.Point {
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return types.Point{
		Timestamp: points[0].Timestamp,
		Value:     sum / float64(len(points)),
	}
}
