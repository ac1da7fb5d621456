package utils

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LatencyStats summarises observed call durations.
type LatencyStats struct {
	Count int
	P50   time.Duration
	P95   time.Duration
	Max   time.Duration
}

// LatencyTracker keeps a bounded window of recent call durations.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []float64
	maxSize int
}

// NewLatencyTracker creates a tracker storing up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &LatencyTracker{maxSize: maxSize}
}

// Observe records a new duration, evicting the oldest sample when full.
func (l *LatencyTracker) Observe(d time.Duration) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples = append(l.samples, d.Seconds())
	if len(l.samples) > l.maxSize {
		l.samples = append(l.samples[:0], l.samples[len(l.samples)-l.maxSize:]...)
	}
}

// Stats returns percentile statistics over the retained samples.
func (l *LatencyTracker) Stats() LatencyStats {
	if l == nil {
		return LatencyStats{}
	}
	l.mu.Lock()
	sorted := append([]float64(nil), l.samples...)
	l.mu.Unlock()

	if len(sorted) == 0 {
		return LatencyStats{}
	}
	sort.Float64s(sorted)
	return LatencyStats{
		Count: len(sorted),
		P50:   seconds(stat.Quantile(0.50, stat.Empirical, sorted, nil)),
		P95:   seconds(stat.Quantile(0.95, stat.Empirical, sorted, nil)),
		Max:   seconds(sorted[len(sorted)-1]),
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
