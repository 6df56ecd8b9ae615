package models

import "time"

// StateReport is the periodic snapshot of book, strategy and inventory state
// published for reporting and monitoring.
type StateReport struct {
	// Identification
	Symbol        string    `json:"symbol"`
	GeneratedAt   time.Time `json:"generated_at"`
	LastEventTs   int64     `json:"last_event_ts"`
	EventsApplied uint64    `json:"events_applied"`
	ReportVersion string    `json:"schemaVersion"`

	// L1 / Spread
	BestBid    PriceQty `json:"best_bid"`
	BestAsk    PriceQty `json:"best_ask"`
	SpreadBps  float64  `json:"spread_bps"`
	MidPrice   float64  `json:"mid_price"`
	MicroPrice float64  `json:"micro_price"`
	Crossed    bool     `json:"crossed"`

	// Depth (top levels)
	Depth DepthMetrics `json:"depth"`

	// Flow Metrics
	Flow FlowMetrics `json:"flow"`

	// Strategy
	Inventory Inventory    `json:"inventory"`
	Quotes    []OwnedOrder `json:"quotes"`
}

// PriceQty represents a price-quantity pair.
type PriceQty struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// DepthMetrics contains order book depth analysis.
type DepthMetrics struct {
	TopBid    []PriceQty `json:"top_bid"`
	TopAsk    []PriceQty `json:"top_ask"`
	SumBid    float64    `json:"sum_bid"`
	SumAsk    float64    `json:"sum_ask"`
	Imbalance float64    `json:"imbalance"`
}

// FlowMetrics represents market activity intensity.
type FlowMetrics struct {
	EventsPerSec float64 `json:"events_per_sec"`
	NetFlow      float64 `json:"net_flow"`
}

// Inventory is the engine's position and cash.
type Inventory struct {
	Position    float64 `json:"position"`
	Cash        float64 `json:"cash"`
	LastQuoteTs int64   `json:"last_quote_ts"`
	OrderSeq    uint64  `json:"order_seq"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
