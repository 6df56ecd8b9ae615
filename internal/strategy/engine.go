// Package strategy implements the market-making decision engine: it quotes
// one bid and one ask around the microprice, widens the spread with
// inventory, enforces hard position limits and throttles quote placement.
package strategy

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/athiyenarivalagan/hft-market-making/internal/instrumentation"
	"github.com/athiyenarivalagan/hft-market-making/internal/metrics"
	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// TopOfBookSource is anything that can report the current best prices and sizes.
type TopOfBookSource interface {
	TopOfBook() models.TopOfBook
}

// OrderLedger is the subset of the order ledger the engine mutates.
type OrderLedger interface {
	Register(id uint64, side models.Side, price, size float64, ts int64) error
	Cancel(id uint64)
}

// Quote is a working quote on one side. A nil *Quote means NoQuote.
type Quote struct {
	OrderID uint64  `json:"order_id"`
	Price   float64 `json:"price"`
}

// State is a point-in-time copy of the engine state.
type State struct {
	Position    float64 `json:"position"`
	Cash        float64 `json:"cash"`
	LastQuoteTs int64   `json:"last_quote_ts"`
	OrderSeq    uint64  `json:"order_seq"`
	Bid         *Quote  `json:"bid,omitempty"`
	Ask         *Quote  `json:"ask,omitempty"`
}

// Engine is the market-making state machine. It is not safe for concurrent
// use; the driver owns it together with the book and ledger.
type Engine struct {
	cfg Config

	bid *Quote
	ask *Quote

	position float64
	cash     float64

	lastQuoteTs int64
	hasQuoted   bool
	orderSeq    uint64

	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// New creates an engine with flat inventory. m may be nil.
func New(cfg Config, logger *slog.Logger, m *instrumentation.Metrics) *Engine {
	return &Engine{
		cfg:     cfg,
		logger:  logger.With("component", "strategy"),
		metrics: m,
	}
}

// OnBookEvent re-evaluates both quotes after a book event. It must be called
// once per applied record, in arrival order.
func (e *Engine) OnBookEvent(src TopOfBookSource, l OrderLedger, ts int64) {
	top := src.TopOfBook()
	if !top.TwoSided() {
		return
	}

	// Hard rate limit on placements. An engine that has never quoted is not throttled.
	if e.hasQuoted && ts-e.lastQuoteTs < e.cfg.MinQuoteIntervalNs {
		return
	}

	micro := metrics.Microprice(top.BidPrice, top.BidSize, top.AskPrice, top.AskSize)
	spread := e.workingSpread()
	bidPx := micro - spread/2.0
	askPx := micro + spread/2.0

	if e.position >= e.cfg.MaxPosition {
		e.withdraw(models.SideBid, l, "max_position")
	} else {
		e.updateQuote(models.SideBid, bidPx, l, ts)
	}

	if e.position <= -e.cfg.MaxPosition {
		e.withdraw(models.SideAsk, l, "max_position")
	} else {
		e.updateQuote(models.SideAsk, askPx, l, ts)
	}
}

// OnOwnTrade applies a venue-reported execution of one of the engine's orders.
// It is the only path that changes position and cash.
func (e *Engine) OnOwnTrade(side models.Side, price, size float64) error {
	switch side {
	case models.SideBid:
		e.position += size
		e.cash -= price * size
	case models.SideAsk:
		e.position -= size
		e.cash += price * size
	default:
		return fmt.Errorf("strategy: own trade with side %s", side)
	}

	e.logger.Info("own_trade",
		"side", side.String(),
		"price", price,
		"size", size,
		"position", e.position,
		"cash", e.cash,
	)
	if e.metrics != nil {
		e.metrics.SetInventory(e.position, e.cash)
	}
	return nil
}

// Position returns the signed net position.
func (e *Engine) Position() float64 {
	return e.position
}

// Cash returns the cash balance accumulated from own trades.
func (e *Engine) Cash() float64 {
	return e.cash
}

// Snapshot copies the current engine state.
func (e *Engine) Snapshot() State {
	s := State{
		Position:    e.position,
		Cash:        e.cash,
		LastQuoteTs: e.lastQuoteTs,
		OrderSeq:    e.orderSeq,
	}
	if e.bid != nil {
		q := *e.bid
		s.Bid = &q
	}
	if e.ask != nil {
		q := *e.ask
		s.Ask = &q
	}
	return s
}

// workingSpread widens the base spread with inventory deviation, clamped to
// [MinSpread, MaxSpread].
func (e *Engine) workingSpread() float64 {
	deviation := math.Abs(e.position - e.cfg.InventoryTarget)
	widened := e.cfg.BaseSpread * (1.0 + e.cfg.InventorySensitivity*deviation)
	return math.Max(e.cfg.MinSpread, math.Min(widened, e.cfg.MaxSpread))
}

func (e *Engine) quoteRef(side models.Side) **Quote {
	if side == models.SideBid {
		return &e.bid
	}
	return &e.ask
}

// updateQuote places or replaces the quote on side when there is none or the
// candidate moved at least the configured threshold. Replacement is cancel
// then register, never an in-place amend.
func (e *Engine) updateQuote(side models.Side, price float64, l OrderLedger, ts int64) {
	ref := e.quoteRef(side)
	cur := *ref

	if cur != nil && math.Abs(price-cur.Price) < e.cfg.PriceMoveThresholdTicks*e.cfg.TickSize {
		return
	}

	if cur != nil {
		l.Cancel(cur.OrderID)
		*ref = nil
	}

	e.orderSeq++
	id := e.orderSeq
	if err := l.Register(id, side, price, e.cfg.QuoteSize, ts); err != nil {
		// Side stays NoQuote and the throttle clock does not move.
		e.logger.Warn("quote_rejected",
			"side", side.String(),
			"order_id", id,
			"price", price,
			"error", err,
		)
		if e.metrics != nil {
			e.metrics.RecordLedgerReject(side.String())
		}
		return
	}

	*ref = &Quote{OrderID: id, Price: price}
	e.lastQuoteTs = ts
	e.hasQuoted = true

	e.logger.Debug("quote_placed",
		"side", side.String(),
		"order_id", id,
		"price", price,
		"replaced", cur != nil,
		"ts", ts,
	)
	if e.metrics != nil {
		e.metrics.RecordQuotePlaced(side.String())
	}
}

// withdraw cancels any working quote on side.
func (e *Engine) withdraw(side models.Side, l OrderLedger, reason string) {
	ref := e.quoteRef(side)
	cur := *ref
	if cur == nil {
		return
	}

	l.Cancel(cur.OrderID)
	*ref = nil

	e.logger.Info("quote_withdrawn",
		"side", side.String(),
		"order_id", cur.OrderID,
		"reason", reason,
		"position", e.position,
	)
	if e.metrics != nil {
		e.metrics.RecordQuoteWithdrawn(side.String(), reason)
	}
}
