// Package priceboard maintains the engine's only shared, mutable market
// data: one Ticker per venue, written exclusively by MarketFeed and read
// by the strategy state machine and its signal functions.
//
// It is the Go-native replacement for the teacher's internal/market.Book:
// where Book mirrored a single binary market's YES/NO order books, Board
// mirrors exactly two venues' top-of-book under one write-exclusive lock,
// and additionally folds in the fee schedule so callers get net spreads
// directly rather than recomputing fee math at every call site.
package priceboard

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"arbengine/pkg/types"
)

// Board holds the latest Ticker for each of the two venues and the fee
// schedule used to compute fee-adjusted net spreads.
type Board struct {
	mu       sync.RWMutex
	tickers  map[types.Venue]types.Ticker
	fees     map[types.Venue]types.FeeSchedule
	maxDelay time.Duration

	now func() time.Time // overridable for tests
}

// New creates a Board for the two venues with their fee schedules and a
// freshness bound (default 1s per spec).
func New(cexFees, dexFees types.FeeSchedule, maxDelay time.Duration) *Board {
	return &Board{
		tickers: map[types.Venue]types.Ticker{
			types.CEX: {},
			types.DEX: {},
		},
		fees: map[types.Venue]types.FeeSchedule{
			types.CEX: cexFees,
			types.DEX: dexFees,
		},
		maxDelay: maxDelay,
		now:      time.Now,
	}
}

// Update writes the ticker for venue and stamps the receive time. This is
// the single write path into the board — called only by MarketFeed.
func (b *Board) Update(venue types.Venue, bid, ask decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tickers[venue] = types.Ticker{
		BidPrice:      bid,
		AskPrice:      ask,
		LocalRecvTime: b.now(),
	}
}

// GetPrice returns the requested side's price, or ok=false if the ticker
// was never initialized or has gone stale (now - recv_time > max_delay).
func (b *Board) GetPrice(venue types.Venue, side types.Side) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.tickers[venue]
	if !ok || !t.Initialized() {
		return decimal.Zero, false
	}
	if b.now().Sub(t.LocalRecvTime) > b.maxDelay {
		return decimal.Zero, false
	}
	if side == types.Buy {
		return t.BidPrice, true
	}
	return t.AskPrice, true
}

// GetSpread returns the raw crossbook spreads, ignoring fees:
// (dex_bid - cex_ask, cex_bid - dex_ask). Either value is none if either
// ticker is uninitialized or stale.
func (b *Board) GetSpread() (dir1, dir2 *decimal.Decimal) {
	cexBid, cexBidOK := b.GetPrice(types.CEX, types.Buy)
	cexAsk, cexAskOK := b.GetPrice(types.CEX, types.Sell)
	dexBid, dexBidOK := b.GetPrice(types.DEX, types.Buy)
	dexAsk, dexAskOK := b.GetPrice(types.DEX, types.Sell)

	if dexBidOK && cexAskOK {
		v := dexBid.Sub(cexAsk)
		dir1 = &v
	}
	if cexBidOK && dexAskOK {
		v := cexBid.Sub(dexAsk)
		dir2 = &v
	}
	return dir1, dir2
}

// GetSpreadWithFees returns fee-adjusted net spreads for the two arbitrage
// directions:
//
//	Direction A (buy CEX taker, sell DEX maker):
//	  revenue = dex_bid * (1 - dex_maker_fee); cost = cex_ask * (1 + cex_taker_fee)
//	  net = revenue - cost
//	Direction B (buy DEX taker, sell CEX maker): symmetric with venue roles swapped.
//
// Either value is nil if its required ticker is uninitialized or stale.
func (b *Board) GetSpreadWithFees() (dirA, dirB *decimal.Decimal) {
	b.mu.RLock()
	cexFees := b.fees[types.CEX]
	dexFees := b.fees[types.DEX]
	b.mu.RUnlock()

	cexBid, cexBidOK := b.GetPrice(types.CEX, types.Buy)
	cexAsk, cexAskOK := b.GetPrice(types.CEX, types.Sell)
	dexBid, dexBidOK := b.GetPrice(types.DEX, types.Buy)
	dexAsk, dexAskOK := b.GetPrice(types.DEX, types.Sell)

	if dexBidOK && cexAskOK {
		revenue := dexBid.Mul(decimal.NewFromInt(1).Sub(dexFees.MakerFee))
		cost := cexAsk.Mul(decimal.NewFromInt(1).Add(cexFees.TakerFee))
		net := revenue.Sub(cost)
		dirA = &net
	}
	if cexBidOK && dexAskOK {
		revenue := cexBid.Mul(decimal.NewFromInt(1).Sub(cexFees.MakerFee))
		cost := dexAsk.Mul(decimal.NewFromInt(1).Add(dexFees.TakerFee))
		net := revenue.Sub(cost)
		dirB = &net
	}
	return dirA, dirB
}

// SetClock overrides the board's time source. Test-only.
func (b *Board) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}
