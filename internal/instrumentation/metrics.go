package instrumentation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the market-making service.
type Metrics struct {
	// Feed intake
	FeedLatencyMs  prometheus.Histogram
	RecordsDropped *prometheus.CounterVec

	// Event processing
	EventsProcessed *prometheus.CounterVec
	ProcessLatency  prometheus.Histogram
	CrossedBook     prometheus.Counter

	// Strategy
	QuotesPlaced    *prometheus.CounterVec
	QuotesWithdrawn *prometheus.CounterVec
	LedgerRejects   *prometheus.CounterVec
	Position        prometheus.Gauge
	Cash            prometheus.Gauge

	// Order transmission
	LedgerEventsDelivered *prometheus.CounterVec

	// Reporting
	ReportAgeMs prometheus.Gauge

	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// Tests pass a fresh prometheus.NewRegistry(); main passes the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Sender wall clock to local arrival
		FeedLatencyMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mm_feed_latency_ms",
			Help:    "Feed arrival latency between sender timestamp and local receipt in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 25, 50, 100},
		}),

		RecordsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mm_records_dropped_total",
			Help: "Feed records dropped before reaching the book, by reason",
		}, []string{"reason"}),

		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mm_events_processed_total",
			Help: "Book events applied, by action",
		}, []string{"action"}),

		// Book apply + strategy evaluation for one record
		ProcessLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mm_process_latency_ms",
			Help:    "Internal processing latency per event in milliseconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		CrossedBook: factory.NewCounter(prometheus.CounterOpts{
			Name: "mm_crossed_book_total",
			Help: "Events after which the best bid was at or above the best ask",
		}),

		QuotesPlaced: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mm_quotes_placed_total",
			Help: "Quotes placed or replaced, by side",
		}, []string{"side"}),

		QuotesWithdrawn: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mm_quotes_withdrawn_total",
			Help: "Quotes withdrawn without replacement, by side and reason",
		}, []string{"side", "reason"}),

		LedgerRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mm_ledger_rejects_total",
			Help: "Quote registrations rejected by the order ledger, by side",
		}, []string{"side"}),

		Position: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mm_position",
			Help: "Signed net position from own fills",
		}),

		Cash: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mm_cash",
			Help: "Cash balance from own fills",
		}),

		LedgerEventsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mm_ledger_events_delivered_total",
			Help: "Ledger mutation events delivered to the order sink, by sink and type",
		}, []string{"sink", "type"}),

		ReportAgeMs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mm_report_age_ms",
			Help: "Age of the snapshot in the most recent state report in milliseconds",
		}),

		// Errors by component and type
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mm_errors_total",
			Help: "Total number of errors by component and type",
		}, []string{"component", "error_type"}),
	}
}

// RecordFeedLatency records the arrival latency of one framed feed line.
func (m *Metrics) RecordFeedLatency(latencyMs float64) {
	m.FeedLatencyMs.Observe(latencyMs)
}

// RecordDropped increments the dropped record counter.
func (m *Metrics) RecordDropped(reason string) {
	m.RecordsDropped.WithLabelValues(reason).Inc()
}

// RecordEventProcessed increments the event counter for action.
func (m *Metrics) RecordEventProcessed(action string) {
	m.EventsProcessed.WithLabelValues(action).Inc()
}

// RecordProcessLatency records internal processing latency for one event.
func (m *Metrics) RecordProcessLatency(latencyMs float64) {
	m.ProcessLatency.Observe(latencyMs)
}

// RecordCrossedBook counts a crossed top of book.
func (m *Metrics) RecordCrossedBook() {
	m.CrossedBook.Inc()
}

// RecordQuotePlaced counts a quote placement.
func (m *Metrics) RecordQuotePlaced(side string) {
	m.QuotesPlaced.WithLabelValues(side).Inc()
}

// RecordQuoteWithdrawn counts a quote withdrawal.
func (m *Metrics) RecordQuoteWithdrawn(side, reason string) {
	m.QuotesWithdrawn.WithLabelValues(side, reason).Inc()
}

// RecordLedgerReject counts a rejected registration.
func (m *Metrics) RecordLedgerReject(side string) {
	m.LedgerRejects.WithLabelValues(side).Inc()
}

// SetInventory publishes position and cash.
func (m *Metrics) SetInventory(position, cash float64) {
	m.Position.Set(position)
	m.Cash.Set(cash)
}

// RecordLedgerDelivered counts a delivered ledger event.
func (m *Metrics) RecordLedgerDelivered(sink, eventType string) {
	m.LedgerEventsDelivered.WithLabelValues(sink, eventType).Inc()
}

// RecordReportAge records the data age of the latest report.
func (m *Metrics) RecordReportAge(ageMs int64) {
	m.ReportAgeMs.Set(float64(ageMs))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
