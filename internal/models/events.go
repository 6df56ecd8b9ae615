package models

import "fmt"

// Action is the book-changing verb carried by a feed record.
type Action uint8

const (
	ActionAdd    Action = iota + 1 // A
	ActionModify                   // M
	ActionCancel                   // C
	ActionTrade                    // T
	ActionFill                     // F
	ActionClear                    // R, N
)

var actionNames = map[Action]string{
	ActionAdd:    "ADD",
	ActionModify: "MOD",
	ActionCancel: "CXL",
	ActionTrade:  "TRD",
	ActionFill:   "FILL",
	ActionClear:  "CLR",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// ActionFromCode maps a single feed action letter to an Action.
// Unrecognized letters report ok=false and the record must be dropped.
func ActionFromCode(code string) (Action, bool) {
	switch code {
	case "A":
		return ActionAdd, true
	case "M":
		return ActionModify, true
	case "C":
		return ActionCancel, true
	case "T":
		return ActionTrade, true
	case "F":
		return ActionFill, true
	case "R", "N":
		return ActionClear, true
	}
	return 0, false
}

// Side is the feed side tag. The value is the raw letter so that an
// unsupported tag survives parsing and is rejected by the book.
type Side byte

const (
	SideBid  Side = 'B'
	SideAsk  Side = 'A'
	SideNone Side = 'N'
)

// Valid reports whether s is one of the three supported tags.
func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk || s == SideNone
}

func (s Side) String() string {
	switch s {
	case SideBid:
		return "BID"
	case SideAsk:
		return "ASK"
	case SideNone:
		return "NONE"
	}
	return fmt.Sprintf("Side(%q)", byte(s))
}

// MarshalText encodes the side as its feed letter.
func (s Side) MarshalText() ([]byte, error) {
	return []byte{byte(s)}, nil
}

// UnmarshalText accepts a single feed letter. Validity is checked by consumers.
func (s *Side) UnmarshalText(text []byte) error {
	if len(text) != 1 {
		return fmt.Errorf("side must be a single letter, got %q", text)
	}
	*s = Side(text[0])
	return nil
}

// UnknownInstrument is the instrument of records whose feed line has no symbol.
const UnknownInstrument = "UNKNOWN"

// Record is one normalized book-changing event for a single instrument.
type Record struct {
	Ts         int64   `json:"ts"` // event time, ns since epoch
	Action     Action  `json:"action"`
	OrderID    uint64  `json:"order_id"`
	Side       Side    `json:"side"`
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	Instrument string  `json:"instrument"`
}

// TopOfBook is the best price and resting size on each side of the book.
// HasBid/HasAsk are false when the corresponding side is empty.
type TopOfBook struct {
	BidPrice float64 `json:"bid_price"`
	BidSize  float64 `json:"bid_size"`
	AskPrice float64 `json:"ask_price"`
	AskSize  float64 `json:"ask_size"`
	HasBid   bool    `json:"has_bid"`
	HasAsk   bool    `json:"has_ask"`
}

// TwoSided reports whether both sides of the market are present.
func (t TopOfBook) TwoSided() bool {
	return t.HasBid && t.HasAsk
}

// Crossed reports a two-sided book whose best bid is at or above the best ask.
func (t TopOfBook) Crossed() bool {
	return t.TwoSided() && t.BidPrice >= t.AskPrice
}

// OwnedOrder is one of the engine's own working orders.
type OwnedOrder struct {
	OrderID uint64  `json:"order_id"`
	Side    Side    `json:"side"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
	Ts      int64   `json:"ts"`
}

// LedgerEventType names a ledger mutation.
type LedgerEventType string

const (
	LedgerRegister LedgerEventType = "register"
	LedgerModify   LedgerEventType = "modify"
	LedgerCancel   LedgerEventType = "cancel"
)

// LedgerEvent is a ledger mutation with the full order attributes, handed to
// the order transmission layer for delivery to a venue.
type LedgerEvent struct {
	ID    string          `json:"id"`
	Type  LedgerEventType `json:"type"`
	Order OwnedOrder      `json:"order"`
}

// Fill is a venue-reported execution of one of the engine's own orders.
type Fill struct {
	Side  Side    `json:"side"`
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}
