// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the engine — venues, order
// book levels, the strategy state enum, and the normalized order-event
// vocabulary. It has no dependencies on internal packages, so it can be
// imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Venues and sides
// ————————————————————————————————————————————————————————————————————————

// Venue identifies one of the two trading venues the engine arbitrages
// between. The set is closed: exactly CEX and DEX.
type Venue string

const (
	CEX Venue = "CEX"
	DEX Venue = "DEX"
)

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ————————————————————————————————————————————————————————————————————————
// Order book data model
// ————————————————————————————————————————————————————————————————————————

// Level is a single price/size entry in an order book. Orders is advisory
// order count at that level; venues that omit it report 1.
type Level struct {
	Price  decimal.Decimal
	Size   decimal.Decimal
	Orders int
}

// L2Book is a top-of-book-or-deeper snapshot for one venue/symbol at a
// point in time. Bids are sorted descending by price, asks ascending.
// EventTime is a millisecond timestamp: the DEX adapter copies the
// venue's own, the CEX adapter stamps the local receive time.
type L2Book struct {
	Venue     Venue
	Symbol    string
	Bids      []Level
	Asks      []Level
	EventTime int64 // monotonic-millisecond
}

// Valid reports the book invariant: when both sides are non-empty, the
// best bid must be strictly below the best ask. An empty side is valid
// (one-sided book); callers that need both sides check that separately.
func (b L2Book) Valid() bool {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return true
	}
	return b.Bids[0].Price.LessThan(b.Asks[0].Price)
}

// ————————————————————————————————————————————————————————————————————————
// PriceBoard data model
// ————————————————————————————————————————————————————————————————————————

// Ticker is the latest top-of-book snapshot PriceBoard holds for one
// venue. Zero-valued BidPrice means "never received a tick".
type Ticker struct {
	BidPrice      decimal.Decimal
	AskPrice      decimal.Decimal
	LocalRecvTime time.Time
}

// Initialized reports whether this ticker has ever been written.
func (t Ticker) Initialized() bool {
	return !t.BidPrice.IsZero()
}

// FeeSchedule holds a venue's maker and taker fee as decimal fractions
// (e.g. 0.0002 for 2bps).
type FeeSchedule struct {
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal
}

// ————————————————————————————————————————————————————————————————————————
// Strategy state
// ————————————————————————————————————————————————————————————————————————

// StrategyState is the tagged ten-variant execution state. Transitions
// between these are owned exclusively by the strategy state machine.
type StrategyState string

const (
	OpenCondition     StrategyState = "OPEN_CONDITION"
	CloseCondition    StrategyState = "CLOSE_CONDITION"
	OpenLeg1Waiting   StrategyState = "OPEN_LEG1_WAITING"
	OpenLeg1Canceling StrategyState = "OPEN_LEG1_CANCELING"
	OpenLeg2Waiting   StrategyState = "OPEN_LEG2_WAITING"
	OpenLeg2Chasing   StrategyState = "OPEN_LEG2_CHASING"
	CloseLeg1Waiting  StrategyState = "CLOSE_LEG1_WAITING"
	CloseLeg1Canceling StrategyState = "CLOSE_LEG1_CANCELING"
	CloseLeg2Waiting  StrategyState = "CLOSE_LEG2_WAITING"
	CloseLeg2Chasing  StrategyState = "CLOSE_LEG2_CHASING"
)

// HasActiveOrder reports whether this state belongs to the set of states
// in which exactly one order may be outstanding (§3 invariant 1).
func (s StrategyState) HasActiveOrder() bool {
	switch s {
	case OpenLeg1Waiting, OpenLeg1Canceling, OpenLeg2Waiting, OpenLeg2Chasing,
		CloseLeg1Waiting, CloseLeg1Canceling, CloseLeg2Waiting, CloseLeg2Chasing:
		return true
	default:
		return false
	}
}

// ————————————————————————————————————————————————————————————————————————
// Normalized order-event vocabulary (OrderEventNormalizer output)
// ————————————————————————————————————————————————————————————————————————

// OrderEventKind is the closed set of terminal order outcomes the
// normalizer reduces every venue-specific event to.
type OrderEventKind string

const (
	AllFilled             OrderEventKind = "ALL_FILLED"
	PartialFilledCanceled OrderEventKind = "PARTIAL_FILLED_CANCELED"
	AllCanceled           OrderEventKind = "ALL_CANCELED"
)

// NormalizedOrderEvent is what OrderEventNormalizer hands to the strategy
// state machine: one terminal outcome per order, with the order's total
// cumulative filled quantity at that point.
type NormalizedOrderEvent struct {
	Venue        Venue
	OrderID      string
	Kind         OrderEventKind
	CumFilledQty decimal.Decimal
}

// RawOrderEvent is the venue-agnostic shape a VenueClient's user-stream
// callback delivers; OrderEventNormalizer reduces these to
// NormalizedOrderEvent, dropping non-terminal partial-fill progress
// reports per spec.
type RawOrderEvent struct {
	Venue        Venue
	OrderID      string
	Status       string // venue-native status string
	CumFilledQty decimal.Decimal
	TotalQty     decimal.Decimal // only meaningful for venues that need it (DEX cumSz==sz check)
}

// ————————————————————————————————————————————————————————————————————————
// VenueClient request/response vocabulary
// ————————————————————————————————————————————————————————————————————————

// PlaceOrderRequest describes an order to place. A nil Price means market
// order. Quantity and Price must already be rounded to venue precision by
// the caller (the state machine).
type PlaceOrderRequest struct {
	Venue    Venue
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
	Price    *decimal.Decimal
}

// PlaceOrderResult is the outcome of a placement: an order id extracted
// from whatever shape the venue's response took, or Ok=false if no id
// could be parsed (a placement failure per spec §4.C/§7.2).
type PlaceOrderResult struct {
	OrderID string
	Ok      bool
}

// CancelOrderRequest identifies an order to cancel.
type CancelOrderRequest struct {
	Venue   Venue
	Symbol  string
	OrderID string
}

// Balance reports a venue's settlement-asset balance.
type Balance struct {
	Total     decimal.Decimal
	Available decimal.Decimal
	Locked    decimal.Decimal
}

// PositionSide distinguishes a reported position's direction.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
	PositionFlat  PositionSide = "FLAT"
)

// Position is a venue's reported position for one symbol. Empty is true
// when the venue reports no open position.
type Position struct {
	Size       decimal.Decimal
	Side       PositionSide
	EntryPrice decimal.Decimal
	Empty      bool
}
