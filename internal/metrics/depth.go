package metrics

import (
	"fmt"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// CalculateDepth computes order book depth metrics.
//
// bids must be sorted best first (descending), asks best first (ascending).
// Sums and imbalance cover every level passed in; only the first topN are
// copied into the result. A one-sided or empty book is reported with a
// zero-qty side rather than rejected.
//
// imbalance = (ΣQ_bid − ΣQ_ask) / (ΣQ_bid + ΣQ_ask), in [-1, 1].
func CalculateDepth(bids, asks []models.PriceQty, topN int) (*models.DepthMetrics, error) {
	if topN <= 0 {
		return nil, fmt.Errorf("topN must be positive, got %d", topN)
	}

	if err := validateBidSorting(bids); err != nil {
		return nil, err
	}
	if err := validateAskSorting(asks); err != nil {
		return nil, err
	}

	totalBidQty := sumQuantities(bids)
	totalAskQty := sumQuantities(asks)

	imbalance, err := CalculateImbalance(totalBidQty, totalAskQty)
	if err != nil {
		imbalance = 0
	}

	return &models.DepthMetrics{
		TopBid:    extractTopLevels(bids, topN),
		TopAsk:    extractTopLevels(asks, topN),
		SumBid:    roundToDecimal(totalBidQty, 8),
		SumAsk:    roundToDecimal(totalAskQty, 8),
		Imbalance: roundToDecimal(imbalance, 6),
	}, nil
}

// extractTopLevels extracts top N levels from order book side.
func extractTopLevels(levels []models.PriceQty, topN int) []models.PriceQty {
	n := min(topN, len(levels))

	result := make([]models.PriceQty, n)
	for i := 0; i < n; i++ {
		result[i] = models.PriceQty{
			Price: roundToDecimal(levels[i].Price, 8),
			Qty:   roundToDecimal(levels[i].Qty, 8),
		}
	}

	return result
}

// sumQuantities calculates the total quantity across all levels.
func sumQuantities(levels []models.PriceQty) float64 {
	total := 0.0
	for _, level := range levels {
		total += level.Qty
	}
	return total
}

// validateBidSorting checks that bids are sorted descending by price.
func validateBidSorting(bids []models.PriceQty) error {
	for i := 1; i < len(bids); i++ {
		if bids[i].Price > bids[i-1].Price {
			return fmt.Errorf("bids not sorted descending: bid[%d].price=%f > bid[%d].price=%f",
				i, bids[i].Price, i-1, bids[i-1].Price)
		}
	}
	return nil
}

// validateAskSorting checks that asks are sorted ascending by price.
func validateAskSorting(asks []models.PriceQty) error {
	for i := 1; i < len(asks); i++ {
		if asks[i].Price < asks[i-1].Price {
			return fmt.Errorf("asks not sorted ascending: ask[%d].price=%f < ask[%d].price=%f",
				i, asks[i].Price, i-1, asks[i-1].Price)
		}
	}
	return nil
}

// CalculateImbalance is a standalone function to calculate imbalance.
func CalculateImbalance(totalBidQty, totalAskQty float64) (float64, error) {
	if totalBidQty < 0 || totalAskQty < 0 {
		return 0, fmt.Errorf("negative quantities: bid=%f ask=%f", totalBidQty, totalAskQty)
	}

	if totalBidQty == 0 && totalAskQty == 0 {
		return 0, fmt.Errorf("both quantities are zero")
	}

	return (totalBidQty - totalAskQty) / (totalBidQty + totalAskQty), nil
}
