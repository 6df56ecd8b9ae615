// Package report builds periodic state reports from driver snapshots and
// publishes them to a cache for dashboards and other readers.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/athiyenarivalagan/hft-market-making/internal/driver"
	"github.com/athiyenarivalagan/hft-market-making/internal/instrumentation"
	"github.com/athiyenarivalagan/hft-market-making/internal/metrics"
	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// ReportVersion is the schema version stamped on every report.
const ReportVersion = "1.0.0"

const depthTopN = 20

// ReportPublisher publishes generated reports (typically to Redis cache).
type ReportPublisher interface {
	Publish(ctx context.Context, symbol string, report *models.StateReport) error
}

// StateSource provides the latest driver snapshot and activity tracker.
type StateSource interface {
	Snapshot() *driver.Snapshot
	Flow() *metrics.FlowTracker
}

// Reporter publishes a state report on a fixed interval.
type Reporter struct {
	source    StateSource
	publisher ReportPublisher
	interval  time.Duration
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
	now       func() time.Time
}

// NewReporter creates a reporter. m may be nil.
func NewReporter(source StateSource, publisher ReportPublisher, interval time.Duration, logger *slog.Logger, m *instrumentation.Metrics) *Reporter {
	return &Reporter{
		source:    source,
		publisher: publisher,
		interval:  interval,
		logger:    logger.With("component", "reporter"),
		metrics:   m,
		now:       time.Now,
	}
}

// Run publishes until ctx is cancelled. Publish failures are logged and
// counted; the next tick tries again.
func (r *Reporter) Run(ctx context.Context) error {
	r.logger.Info("reporter_starting", "interval_ms", r.interval.Milliseconds())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reporter_stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := r.PublishOnce(ctx); err != nil {
				r.logger.Error("report_failed", "error", err)
			}
		}
	}
}

// PublishOnce builds, validates and publishes one report.
func (r *Reporter) PublishOnce(ctx context.Context) error {
	start := r.now()
	snap := r.source.Snapshot()

	flowNow := start
	if snap.LastEventTs > 0 {
		// Flow windows run on feed time.
		flowNow = time.Unix(0, snap.LastEventTs)
	}
	flow := r.source.Flow().GetMetrics(flowNow)

	report := Build(snap, flow, start, r.logger)
	if err := models.ValidateReport(report); err != nil {
		if r.metrics != nil {
			r.metrics.RecordError("reporter", "validation_failed")
		}
		return fmt.Errorf("report validation failed: %w", err)
	}

	if err := r.publisher.Publish(ctx, snap.Symbol, report); err != nil {
		if r.metrics != nil {
			r.metrics.RecordError("reporter", "publish_failed")
		}
		return fmt.Errorf("publish failed: %w", err)
	}

	if r.metrics != nil {
		r.metrics.RecordReportAge(start.Sub(snap.UpdatedAt).Milliseconds())
	}
	return nil
}

// Build converts a snapshot into a report. Spread fields stay zero unless the
// book is two-sided.
func Build(snap *driver.Snapshot, flow models.FlowMetrics, now time.Time, logger *slog.Logger) *models.StateReport {
	report := &models.StateReport{
		Symbol:        snap.Symbol,
		GeneratedAt:   now,
		LastEventTs:   snap.LastEventTs,
		EventsApplied: snap.EventsApplied,
		ReportVersion: ReportVersion,
		Crossed:       snap.Top.Crossed(),
		Flow:          flow,
		Inventory: models.Inventory{
			Position:    snap.Strategy.Position,
			Cash:        snap.Strategy.Cash,
			LastQuoteTs: snap.Strategy.LastQuoteTs,
			OrderSeq:    snap.Strategy.OrderSeq,
		},
		Quotes: snap.Orders,
	}
	if report.Quotes == nil {
		report.Quotes = []models.OwnedOrder{}
	}

	top := snap.Top
	if top.HasBid {
		report.BestBid = models.PriceQty{Price: top.BidPrice, Qty: top.BidSize}
	}
	if top.HasAsk {
		report.BestAsk = models.PriceQty{Price: top.AskPrice, Qty: top.AskSize}
	}

	if top.TwoSided() {
		spread, err := metrics.CalculateSpread(top.BidPrice, top.BidSize, top.AskPrice, top.AskSize)
		if err != nil {
			logger.Error("spread_calculation_failed", "symbol", snap.Symbol, "error", err)
		} else {
			report.SpreadBps = spread.SpreadBps
			report.MidPrice = spread.MidPrice
			report.MicroPrice = spread.MicroPrice
		}
	}

	depth, err := metrics.CalculateDepth(snap.Bids, snap.Asks, depthTopN)
	if err != nil {
		logger.Error("depth_calculation_failed", "symbol", snap.Symbol, "error", err)
	} else {
		report.Depth = *depth
	}

	return report
}
