package metrics

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// SpreadMetrics contains calculated spread-related metrics.
type SpreadMetrics struct {
	SpreadBps  float64 `json:"spread_bps"`  // Spread in basis points, negative when crossed
	MidPrice   float64 `json:"mid_price"`   // Mid price (bid + ask) / 2
	MicroPrice float64 `json:"micro_price"` // Size-weighted mid price
}

// Mid returns the arithmetic mid of the best prices.
func Mid(bidPrice, askPrice float64) float64 {
	return (bidPrice + askPrice) / 2.0
}

// Microprice returns the size-weighted fair price
// (ask × bid_qty + bid × ask_qty) / (bid_qty + ask_qty).
// It leans toward the side with less resting size. When either size is not
// positive it falls back to the plain mid.
func Microprice(bidPrice, bidQty, askPrice, askQty float64) float64 {
	if bidQty <= 0 || askQty <= 0 {
		return Mid(bidPrice, askPrice)
	}
	return (askPrice*bidQty + bidPrice*askQty) / (bidQty + askQty)
}

// CalculateSpread computes spread metrics from best bid and ask.
// A crossed book yields a non-positive spread rather than an error.
func CalculateSpread(bidPrice, bidQty, askPrice, askQty float64) (*SpreadMetrics, error) {
	if bidPrice <= 0 || askPrice <= 0 {
		return nil, fmt.Errorf("invalid prices: bid=%f ask=%f (must be > 0)", bidPrice, askPrice)
	}

	if bidQty < 0 || askQty < 0 {
		return nil, fmt.Errorf("invalid quantities: bidQty=%f askQty=%f (must be >= 0)", bidQty, askQty)
	}

	// spread_bps = (ask - bid) / bid * 10000
	spreadBps := (askPrice - bidPrice) / bidPrice * 10000.0

	return &SpreadMetrics{
		SpreadBps:  roundToDecimal(spreadBps, 4),
		MidPrice:   roundToDecimal(Mid(bidPrice, askPrice), 8),
		MicroPrice: roundToDecimal(Microprice(bidPrice, bidQty, askPrice, askQty), 8),
	}, nil
}

// roundToDecimal rounds half away from zero at the given number of decimal
// places, working on the shortest decimal representation of value so that
// inputs like 2.675 round the way they print. Non-finite values pass through.
func roundToDecimal(value float64, decimals int) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	return decimal.NewFromFloat(value).Round(int32(decimals)).InexactFloat64()
}
