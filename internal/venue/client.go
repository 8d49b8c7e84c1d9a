// Package venue implements the VenueClient abstraction (spec component C)
// and the MarketFeed adapters (spec component B) for the two trading
// venues. CEX and DEX are a small closed-world set, expressed as one
// interface with two concrete implementations rather than a deep
// hierarchy, per spec.md §9.
package venue

import (
	"context"

	"github.com/shopspring/decimal"

	"arbengine/pkg/types"
)

// UserStreamHandler is installed via SubscribeUserStream and fires once
// per order lifecycle event delivered by the venue's user-data stream.
type UserStreamHandler func(types.RawOrderEvent)

// Client is the capability set the strategy state machine and
// StartupReconciler need from a venue. CEX and DEX adapters translate
// their own wire formats to this shape; the core never sees venue-native
// payloads.
type Client interface {
	// PlaceOrder places an order and blocks for the REST round-trip.
	// price == nil means market order. Quantity and price must already
	// be rounded to venue precision by the caller.
	PlaceOrder(ctx context.Context, req types.PlaceOrderRequest) (types.PlaceOrderResult, error)

	// CancelOrder cancels a previously placed order by id.
	CancelOrder(ctx context.Context, req types.CancelOrderRequest) error

	// Balance returns the venue's settlement-asset balance.
	Balance(ctx context.Context) (types.Balance, error)

	// Position returns the current position for symbol, or Empty=true if flat.
	Position(ctx context.Context, symbol string) (types.Position, error)

	// SubscribeUserStream installs handler to fire on every order
	// lifecycle event. Blocks until ctx is cancelled; reconnects
	// internally with backoff.
	SubscribeUserStream(ctx context.Context, handler UserStreamHandler) error

	// SubscribeMarketStream installs onBook to fire on every top-of-book
	// update. Blocks until ctx is cancelled; reconnects internally.
	SubscribeMarketStream(ctx context.Context, onBook func(types.L2Book)) error

	// Venue identifies which venue this client talks to.
	Venue() types.Venue
}

// RoundPrice rounds a price to the venue's configured precision,
// half-up, per spec.md §3 invariant 4.
func RoundPrice(d decimal.Decimal, precision int32) decimal.Decimal {
	return d.Round(precision)
}

// RoundQty rounds a quantity to the venue's configured precision,
// half-up, per spec.md §3 invariant 4.
func RoundQty(d decimal.Decimal, precision int32) decimal.Decimal {
	return d.Round(precision)
}
