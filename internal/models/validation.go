package models

import (
	"fmt"
	"math"
)

// ValidateReport validates a state report before it is published.
// A crossed or one-sided book is a legal feed state and is not rejected here.
func ValidateReport(report *StateReport) error {
	if report.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	if report.GeneratedAt.IsZero() {
		return fmt.Errorf("generated_at is required")
	}

	if report.BestBid.Price < 0 || report.BestAsk.Price < 0 {
		return fmt.Errorf("best prices must be non-negative")
	}

	if report.Depth.Imbalance < -1.0 || report.Depth.Imbalance > 1.0 {
		return fmt.Errorf("imbalance must be in [-1, 1], got %f", report.Depth.Imbalance)
	}

	if math.IsNaN(report.Inventory.Position) || math.IsNaN(report.Inventory.Cash) {
		return fmt.Errorf("inventory must be a number")
	}

	for _, q := range report.Quotes {
		if q.Price <= 0 || q.Size <= 0 {
			return fmt.Errorf("quote %d has non-positive price or size", q.OrderID)
		}
		if q.Side != SideBid && q.Side != SideAsk {
			return fmt.Errorf("quote %d has invalid side %s", q.OrderID, q.Side)
		}
	}

	return nil
}
