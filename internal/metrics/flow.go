package metrics

import (
	"sync"
	"time"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

const (
	eventWindow = 10 * time.Second
	tradeWindow = 30 * time.Second
)

// FlowTracker tracks market activity over rolling windows of feed time.
// The driver records; report readers query concurrently.
type FlowTracker struct {
	mu sync.RWMutex

	// Rolling window for events_per_sec (last 10 seconds)
	eventWindow []time.Time

	// Rolling window for net_flow (last 30 seconds)
	tradeWindow []timestampedTrade
}

// timestampedTrade represents a trade with aggressor side for flow calculation.
type timestampedTrade struct {
	timestamp time.Time
	volume    float64
	isBuy     bool // true if aggressive buy, false if aggressive sell
}

// NewFlowTracker creates a new flow tracker.
func NewFlowTracker() *FlowTracker {
	return &FlowTracker{
		eventWindow: make([]time.Time, 0, 1024),
		tradeWindow: make([]timestampedTrade, 0, 1024),
	}
}

// RecordEvent records a book event of any type for rate calculation.
func (ft *FlowTracker) RecordEvent(ts time.Time) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.eventWindow = append(ft.eventWindow, ts)
	ft.pruneEventWindow(ts)
}

// RecordTrade records an execution with its aggressor side.
func (ft *FlowTracker) RecordTrade(ts time.Time, volume float64, isBuy bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.tradeWindow = append(ft.tradeWindow, timestampedTrade{
		timestamp: ts,
		volume:    volume,
		isBuy:     isBuy,
	})
	ft.pruneTradeWindow(ts)
}

// Reset discards all recorded activity, e.g. after a book clear.
func (ft *FlowTracker) Reset() {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.eventWindow = ft.eventWindow[:0]
	ft.tradeWindow = ft.tradeWindow[:0]
}

// pruneEventWindow removes events older than the event window.
func (ft *FlowTracker) pruneEventWindow(now time.Time) {
	cutoff := now.Add(-eventWindow)

	keepIdx := 0
	for keepIdx < len(ft.eventWindow) && ft.eventWindow[keepIdx].Before(cutoff) {
		keepIdx++
	}

	if keepIdx > 0 {
		ft.eventWindow = append(ft.eventWindow[:0], ft.eventWindow[keepIdx:]...)
	}
}

// pruneTradeWindow removes trades older than the trade window.
func (ft *FlowTracker) pruneTradeWindow(now time.Time) {
	cutoff := now.Add(-tradeWindow)

	keepIdx := 0
	for keepIdx < len(ft.tradeWindow) && ft.tradeWindow[keepIdx].timestamp.Before(cutoff) {
		keepIdx++
	}

	if keepIdx > 0 {
		ft.tradeWindow = append(ft.tradeWindow[:0], ft.tradeWindow[keepIdx:]...)
	}
}

// EventsPerSec returns the average event rate over the last 10 seconds.
func (ft *FlowTracker) EventsPerSec(now time.Time) float64 {
	ft.mu.RLock()
	defer ft.mu.RUnlock()

	cutoff := now.Add(-eventWindow)

	count := 0
	for _, ts := range ft.eventWindow {
		if !ts.Before(cutoff) && !ts.After(now) {
			count++
		}
	}

	return float64(count) / eventWindow.Seconds()
}

// NetFlow returns aggressive buy volume minus aggressive sell volume over the
// last 30 seconds. Positive means net buying pressure.
func (ft *FlowTracker) NetFlow(now time.Time) float64 {
	ft.mu.RLock()
	defer ft.mu.RUnlock()

	cutoff := now.Add(-tradeWindow)

	var buyVolume, sellVolume float64
	for _, trade := range ft.tradeWindow {
		if trade.timestamp.Before(cutoff) || trade.timestamp.After(now) {
			continue
		}
		if trade.isBuy {
			buyVolume += trade.volume
		} else {
			sellVolume += trade.volume
		}
	}

	return buyVolume - sellVolume
}

// GetMetrics returns both flow metrics at once.
func (ft *FlowTracker) GetMetrics(now time.Time) models.FlowMetrics {
	return models.FlowMetrics{
		EventsPerSec: roundToDecimal(ft.EventsPerSec(now), 4),
		NetFlow:      roundToDecimal(ft.NetFlow(now), 8),
	}
}
