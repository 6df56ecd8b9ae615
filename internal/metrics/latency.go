package metrics

import (
	"sort"
	"sync"
	"time"
)

// LatencyWindow accumulates per-event processing latencies between resets
// and summarizes them as throughput and 99th percentile.
type LatencyWindow struct {
	mu        sync.Mutex
	latencies []float64 // milliseconds
	count     int
	start     time.Time
	now       func() time.Time
}

// LatencySummary is one reporting interval.
type LatencySummary struct {
	Count          int
	ThroughputPerS float64
	P99Ms          float64
}

// NewLatencyWindow creates an empty window starting now.
func NewLatencyWindow() *LatencyWindow {
	return newLatencyWindow(time.Now)
}

func newLatencyWindow(now func() time.Time) *LatencyWindow {
	return &LatencyWindow{
		latencies: make([]float64, 0, 4096),
		start:     now(),
		now:       now,
	}
}

// Record adds one processing latency sample.
func (w *LatencyWindow) Record(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.latencies = append(w.latencies, float64(d.Nanoseconds())/1e6)
	w.count++
}

// Summary reports throughput since the last reset and the p99 latency.
// An empty window reports zeros.
func (w *LatencyWindow) Summary() LatencySummary {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.summaryLocked()
}

// Flush returns the current summary and starts a new interval.
func (w *LatencyWindow) Flush() LatencySummary {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.summaryLocked()
	w.latencies = w.latencies[:0]
	w.count = 0
	w.start = w.now()
	return s
}

func (w *LatencyWindow) summaryLocked() LatencySummary {
	if w.count == 0 {
		return LatencySummary{}
	}

	elapsed := w.now().Sub(w.start).Seconds()
	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(w.count) / elapsed
	}

	return LatencySummary{
		Count:          w.count,
		ThroughputPerS: throughput,
		P99Ms:          Percentile(w.latencies, 0.99),
	}
}

// Percentile returns the nearest-rank value at q (0..1) of samples.
// samples is not modified.
func Percentile(samples []float64, q float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	idx := int(q * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
