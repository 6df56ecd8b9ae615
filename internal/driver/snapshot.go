package driver

import (
	"time"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
	"github.com/athiyenarivalagan/hft-market-making/internal/strategy"
)

// Snapshot is an immutable view of the driver-owned state. Readers on other
// goroutines only ever see snapshots, never the live book or engine.
type Snapshot struct {
	Symbol        string              `json:"symbol"`
	EventsApplied uint64              `json:"events_applied"`
	LastEventTs   int64               `json:"last_event_ts"`
	Top           models.TopOfBook    `json:"top_of_book"`
	Bids          []models.PriceQty   `json:"bids"`
	Asks          []models.PriceQty   `json:"asks"`
	BookOrders    int                 `json:"book_orders"`
	Strategy      strategy.State      `json:"strategy"`
	Orders        []models.OwnedOrder `json:"orders"`
	UpdatedAt     time.Time           `json:"updated_at"`
}
