package handlers

import (
	"log/slog"
	"net/http"

	"github.com/athiyenarivalagan/hft-market-making/internal/driver"
	"github.com/athiyenarivalagan/hft-market-making/internal/models"
	"github.com/athiyenarivalagan/hft-market-making/internal/strategy"
)

// SnapshotReader exposes the latest published driver state.
type SnapshotReader interface {
	Snapshot() *driver.Snapshot
}

// StateHandler serves read-only views of the latest driver snapshot. It never
// touches the live book or engine.
type StateHandler struct {
	state  SnapshotReader
	logger *slog.Logger
}

// NewStateHandler creates the query handlers.
func NewStateHandler(state SnapshotReader, logger *slog.Logger) *StateHandler {
	return &StateHandler{
		state:  state,
		logger: logger.With("handler", "state"),
	}
}

type topOfBookResponse struct {
	Symbol      string            `json:"symbol"`
	LastEventTs int64             `json:"last_event_ts"`
	Crossed     bool              `json:"crossed"`
	Top         models.TopOfBook  `json:"top_of_book"`
	Bids        []models.PriceQty `json:"bids"`
	Asks        []models.PriceQty `json:"asks"`
}

// TopOfBook handles GET /top_of_book. Depth is returned with the top level so
// a client can render the ladder from one response.
func (h *StateHandler) TopOfBook(w http.ResponseWriter, r *http.Request) {
	snap := h.state.Snapshot()
	writeJSON(w, http.StatusOK, topOfBookResponse{
		Symbol:      snap.Symbol,
		LastEventTs: snap.LastEventTs,
		Crossed:     snap.Top.Crossed(),
		Top:         snap.Top,
		Bids:        nonNil(snap.Bids),
		Asks:        nonNil(snap.Asks),
	})
}

type inventoryResponse struct {
	Symbol string         `json:"symbol"`
	State  strategy.State `json:"state"`
}

// Inventory handles GET /inventory.
func (h *StateHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	snap := h.state.Snapshot()
	writeJSON(w, http.StatusOK, inventoryResponse{
		Symbol: snap.Symbol,
		State:  snap.Strategy,
	})
}

type ordersResponse struct {
	Symbol string              `json:"symbol"`
	Orders []models.OwnedOrder `json:"orders"`
}

// Orders handles GET /orders, listing working orders sorted by id.
func (h *StateHandler) Orders(w http.ResponseWriter, r *http.Request) {
	snap := h.state.Snapshot()
	orders := snap.Orders
	if orders == nil {
		orders = []models.OwnedOrder{}
	}
	h.logger.Debug("orders_served", "count", len(orders))
	writeJSON(w, http.StatusOK, ordersResponse{Symbol: snap.Symbol, Orders: orders})
}

func nonNil(levels []models.PriceQty) []models.PriceQty {
	if levels == nil {
		return []models.PriceQty{}
	}
	return levels
}
