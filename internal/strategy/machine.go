// Package strategy implements the StrategyStateMachine (the core) and
// the TickLoop that drives its timeout sweep. This is the heart of the
// engine: a ten-state machine that opens a DEX-maker/CEX-taker position
// when the fee-adjusted cross-venue spread clears a threshold, then
// closes it the same way in reverse.
//
// Grounded on the teacher's internal/strategy/maker.go for the overall
// event-loop and mutex-guarded-context shape; all quoting/inventory math
// is new, since the teacher's single-venue Avellaneda-Stoikov model has
// no equivalent in a two-venue arbitrage engine.
package strategy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"arbengine/internal/config"
	"arbengine/internal/normalizer"
	"arbengine/internal/priceboard"
	"arbengine/internal/venue"
	"arbengine/pkg/types"
)

// epsilon is the residual-quantity tolerance below which a leg is
// considered fully closed out, guarding against decimal rounding noise
// rather than genuine leftover size.
var epsilon = decimal.New(1, -8)

// chaseStepPct is the per-step aggressiveness of the Leg-2 chase ladder:
// step k crosses the book by k * chaseStepPct.
var chaseStepPct = decimal.New(1, -3) // 0.001

// MachineContext holds everything the state machine mutates across a
// two-leg episode. Exclusively owned by Machine; all access holds the
// machine's mutex.
type MachineContext struct {
	ActiveOrderID     string
	ActiveVenue       types.Venue
	ActiveOrderTime   time.Time
	PendingChaseRetry bool // Open Question 2: set when a chase placement fails outright

	Leg1FilledQty   decimal.Decimal
	Leg2FilledQty   decimal.Decimal
	CurrentPosition decimal.Decimal // DEX-side net exposure only; always >= 0

	ChaseRetryCount int

	LastCumFilledQty map[string]decimal.Decimal
}

// Machine is the strategy state machine. One instance per running
// engine; serializes all state transitions behind mu.
type Machine struct {
	mu    sync.Mutex
	state types.StrategyState
	ctx   MachineContext

	board *priceboard.Board
	cex   venue.Client
	dex   venue.Client
	norm  *normalizer.Normalizer
	pool  *CancelPool

	cexCfg config.CEXConfig
	dexCfg config.DEXConfig
	strat  config.StrategyConfig

	logger *slog.Logger
}

// New creates a Machine starting in initialState (decided at startup by
// the StartupReconciler) with currentPosition as reconciled.
func New(
	board *priceboard.Board,
	cex, dex venue.Client,
	norm *normalizer.Normalizer,
	pool *CancelPool,
	cexCfg config.CEXConfig,
	dexCfg config.DEXConfig,
	strat config.StrategyConfig,
	initialState types.StrategyState,
	currentPosition decimal.Decimal,
	logger *slog.Logger,
) *Machine {
	return &Machine{
		state: initialState,
		ctx: MachineContext{
			CurrentPosition:  currentPosition,
			LastCumFilledQty: make(map[string]decimal.Decimal),
		},
		board:  board,
		cex:    cex,
		dex:    dex,
		norm:   norm,
		pool:   pool,
		cexCfg: cexCfg,
		dexCfg: dexCfg,
		strat:  strat,
		logger: logger.With("component", "strategy_machine"),
	}
}

// State returns the machine's current state. Test/inspection only.
func (m *Machine) State() types.StrategyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the current MachineContext. Test/inspection only.
func (m *Machine) Snapshot() MachineContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.ctx
	cp.LastCumFilledQty = make(map[string]decimal.Decimal, len(m.ctx.LastCumFilledQty))
	for k, v := range m.ctx.LastCumFilledQty {
		cp.LastCumFilledQty[k] = v
	}
	return cp
}

// ————————————————————————————————————————————————————————————————————————
// Signal evaluation — entrypoints from MarketFeed (spec component E)
// ————————————————————————————————————————————————————————————————————————

// CheckAndExecuteOpen opens the position: buy DEX (maker), with signalFn
// re-evaluated inside the lock to guard against a stale spread check
// made by the caller before acquiring it.
func (m *Machine) CheckAndExecuteOpen(ctx context.Context, signalFn func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != types.OpenCondition {
		return
	}
	if !signalFn() {
		return
	}

	dexBid, ok := m.board.GetPrice(types.DEX, types.Buy)
	if !ok {
		return
	}
	price := venue.RoundPrice(dexBid, m.dexCfg.PricePrecision)
	qty := venue.RoundQty(m.strat.BaseQuantity, m.dexCfg.QtyPrecision)
	if qty.IsZero() || qty.IsNegative() {
		return
	}

	result, err := m.dex.PlaceOrder(ctx, types.PlaceOrderRequest{
		Venue: types.DEX, Symbol: m.dexCfg.Symbol, Side: types.Buy, Quantity: qty, Price: &price,
	})
	if err != nil || !result.Ok {
		m.logger.Error("open leg1 placement failed", "err", err)
		return
	}

	m.ctx.ActiveOrderID = result.OrderID
	m.ctx.ActiveVenue = types.DEX
	m.ctx.ActiveOrderTime = time.Now()
	m.ctx.Leg1FilledQty = decimal.Zero
	m.ctx.LastCumFilledQty[result.OrderID] = decimal.Zero
	m.norm.Track(types.DEX, result.OrderID)
	m.state = types.OpenLeg1Waiting
	m.logger.Info("open leg1 placed", "order_id", result.OrderID, "price", price, "qty", qty)
}

// CheckAndExecuteClose closes the position: sell DEX (maker) for the
// full current position.
func (m *Machine) CheckAndExecuteClose(ctx context.Context, signalFn func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != types.CloseCondition {
		return
	}
	if m.ctx.CurrentPosition.LessThanOrEqual(epsilon) {
		return
	}
	if !signalFn() {
		return
	}

	dexAsk, ok := m.board.GetPrice(types.DEX, types.Sell)
	if !ok {
		return
	}
	price := venue.RoundPrice(dexAsk, m.dexCfg.PricePrecision)
	qty := venue.RoundQty(m.ctx.CurrentPosition, m.dexCfg.QtyPrecision)
	if qty.IsZero() || qty.IsNegative() {
		return
	}

	result, err := m.dex.PlaceOrder(ctx, types.PlaceOrderRequest{
		Venue: types.DEX, Symbol: m.dexCfg.Symbol, Side: types.Sell, Quantity: qty, Price: &price,
	})
	if err != nil || !result.Ok {
		m.logger.Error("close leg1 placement failed", "err", err)
		return
	}

	m.ctx.ActiveOrderID = result.OrderID
	m.ctx.ActiveVenue = types.DEX
	m.ctx.ActiveOrderTime = time.Now()
	m.ctx.Leg1FilledQty = decimal.Zero
	m.ctx.LastCumFilledQty[result.OrderID] = decimal.Zero
	m.norm.Track(types.DEX, result.OrderID)
	m.state = types.CloseLeg1Waiting
	m.logger.Info("close leg1 placed", "order_id", result.OrderID, "price", price, "qty", qty)
}

// ————————————————————————————————————————————————————————————————————————
// Order-event handling
// ————————————————————————————————————————————————————————————————————————

// OnOrderUpdate applies one normalized terminal event. Mismatched order
// ids (stale or unknown) are ignored. ev.CumFilledQty is the order's
// cumulative filled quantity at its terminal event; progress events are
// never delivered here. Each order reaches the machine once, and the leg's
// fill counter is zeroed when the leg starts, so accumulating with += sums
// the fills of every order placed for that leg.
func (m *Machine) OnOrderUpdate(ctx context.Context, ev types.NormalizedOrderEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.OrderID != m.ctx.ActiveOrderID {
		return
	}
	inc := ev.CumFilledQty
	delete(m.ctx.LastCumFilledQty, ev.OrderID)

	switch m.state {
	case types.OpenLeg1Waiting:
		m.handleLeg1Event(ctx, ev.Kind, inc, true)
	case types.OpenLeg1Canceling:
		m.handleLeg1CancelingEvent(ctx, ev.Kind, inc, true)
	case types.OpenLeg2Waiting, types.OpenLeg2Chasing:
		m.handleLeg2Event(ctx, ev.Kind, inc, true)
	case types.CloseLeg1Waiting:
		m.handleLeg1Event(ctx, ev.Kind, inc, false)
	case types.CloseLeg1Canceling:
		m.handleLeg1CancelingEvent(ctx, ev.Kind, inc, false)
	case types.CloseLeg2Waiting, types.CloseLeg2Chasing:
		m.handleLeg2Event(ctx, ev.Kind, inc, false)
	}
}

// handleLeg1Event handles events while waiting on the DEX leg of either
// episode. isOpen selects which episode (open buys DEX, close sells DEX).
func (m *Machine) handleLeg1Event(ctx context.Context, kind types.OrderEventKind, inc decimal.Decimal, isOpen bool) {
	switch kind {
	case types.AllFilled:
		m.ctx.Leg1FilledQty = m.ctx.Leg1FilledQty.Add(inc)
		m.applyLeg1PositionDelta(inc, isOpen)
		m.startLeg2(ctx, m.ctx.Leg1FilledQty, true, leg2WaitingState(isOpen), isOpen)
	case types.PartialFilledCanceled:
		m.ctx.Leg1FilledQty = m.ctx.Leg1FilledQty.Add(inc)
		m.applyLeg1PositionDelta(inc, isOpen)
		m.dispatchCancel(m.ctx.ActiveVenue, m.dexSymbol(), m.ctx.ActiveOrderID)
		m.state = leg1CancelingState(isOpen)
		m.startLeg2(ctx, m.ctx.Leg1FilledQty, true, leg2WaitingState(isOpen), isOpen)
	case types.AllCanceled:
		// Leg1 canceled with zero fill while still "Waiting" shouldn't
		// normally arrive without a cancel request in flight, but the
		// venue may reject/expire it unprompted; treat the same as the
		// OpenLeg1Canceling+AllCanceled, zero-fill case.
		m.state = conditionState(isOpen)
		m.clearActiveOrder()
	}
}

// handleLeg1CancelingEvent handles events while our own cancel of the
// Leg1 order is in flight.
func (m *Machine) handleLeg1CancelingEvent(ctx context.Context, kind types.OrderEventKind, inc decimal.Decimal, isOpen bool) {
	switch kind {
	case types.AllCanceled:
		if m.ctx.Leg1FilledQty.IsZero() {
			m.state = conditionState(isOpen)
			m.clearActiveOrder()
			return
		}
		// Defensive: should have arrived as PartialFilledCanceled, but
		// handle a zero-fill-looking AllCanceled with nonzero ledger the
		// same as a partial.
		m.startLeg2(ctx, m.ctx.Leg1FilledQty, true, leg2WaitingState(isOpen), isOpen)
	case types.PartialFilledCanceled:
		m.ctx.Leg1FilledQty = m.ctx.Leg1FilledQty.Add(inc)
		m.applyLeg1PositionDelta(inc, isOpen)
		m.startLeg2(ctx, m.ctx.Leg1FilledQty, true, leg2WaitingState(isOpen), isOpen)
	case types.AllFilled:
		// Raced: our cancel lost the race against a fill. Start Leg2
		// without resetting the chase count, directly into *Chasing.
		m.ctx.Leg1FilledQty = m.ctx.Leg1FilledQty.Add(inc)
		m.applyLeg1PositionDelta(inc, isOpen)
		m.startLeg2(ctx, m.ctx.Leg1FilledQty, false, leg2ChasingState(isOpen), isOpen)
	}
}

// handleLeg2Event handles events while the CEX hedge leg is resting or
// being chased.
func (m *Machine) handleLeg2Event(ctx context.Context, kind types.OrderEventKind, inc decimal.Decimal, isOpen bool) {
	m.ctx.Leg2FilledQty = m.ctx.Leg2FilledQty.Add(inc)

	switch kind {
	case types.AllFilled:
		target := m.ctx.Leg1FilledQty
		remaining := target.Sub(m.ctx.Leg2FilledQty)
		if remaining.Abs().LessThanOrEqual(epsilon) {
			m.resetEpisode()
			m.state = m.episodeCompleteState(isOpen)
			return
		}
		m.chaseStep(ctx, isOpen)
	case types.PartialFilledCanceled:
		m.chaseStep(ctx, isOpen)
	case types.AllCanceled:
		m.chaseStep(ctx, isOpen)
	}
}

// ————————————————————————————————————————————————————————————————————————
// Leg2 placement and chase ladder
// ————————————————————————————————————————————————————————————————————————

// startLeg2 places the CEX hedge leg for qtyFilled (the quantity the DEX
// leg just settled at) and transitions to targetState. resetChaseCount
// clears the chase-retry counter for a fresh episode; the
// OpenLeg1Canceling+AllFilled race leaves it intact.
func (m *Machine) startLeg2(ctx context.Context, qtyFilled decimal.Decimal, resetChaseCount bool, targetState types.StrategyState, isOpen bool) {
	if resetChaseCount {
		m.ctx.ChaseRetryCount = 0
	}
	m.ctx.Leg2FilledQty = decimal.Zero

	qty := venue.RoundQty(qtyFilled, m.cexCfg.QtyPrecision)
	if qty.IsZero() || qty.IsNegative() {
		m.resetEpisode()
		m.state = m.episodeCompleteState(isOpen)
		return
	}

	side := types.Sell
	if !isOpen {
		side = types.Buy
	}

	result, err := m.cex.PlaceOrder(ctx, types.PlaceOrderRequest{
		Venue: types.CEX, Symbol: m.cexCfg.Symbol, Side: side, Quantity: qty,
	})
	if err != nil || !result.Ok {
		m.logger.Error("leg2 placement failed", "err", err)
		m.ctx.ActiveOrderID = ""
		m.ctx.PendingChaseRetry = true
		m.ctx.ActiveOrderTime = time.Now()
		m.state = targetState
		return
	}

	m.ctx.ActiveOrderID = result.OrderID
	m.ctx.ActiveVenue = types.CEX
	m.ctx.ActiveOrderTime = time.Now()
	m.ctx.PendingChaseRetry = false
	m.ctx.LastCumFilledQty[result.OrderID] = decimal.Zero
	m.norm.Track(types.CEX, result.OrderID)
	m.state = targetState
	m.logger.Info("leg2 placed", "order_id", result.OrderID, "side", side, "qty", qty, "state", targetState)
}

// chaseStep places the next rung of the Leg-2 chase ladder for the
// remaining unfilled quantity, crossing the book progressively (Open
// Question 1 resolution): SELL at bid*(1-0.001k), BUY at ask*(1+0.001k)
// for k = chase_retry_count+1, escalating to a market order past
// max_chase_retries.
func (m *Machine) chaseStep(ctx context.Context, isOpen bool) {
	remaining := m.ctx.Leg1FilledQty.Sub(m.ctx.Leg2FilledQty)
	if remaining.LessThanOrEqual(epsilon) {
		m.resetEpisode()
		m.state = m.episodeCompleteState(isOpen)
		return
	}
	qty := venue.RoundQty(remaining, m.cexCfg.QtyPrecision)

	side := types.Sell
	if !isOpen {
		side = types.Buy
	}

	var price *decimal.Decimal
	if m.ctx.ChaseRetryCount < m.strat.MaxChaseRetries {
		k := decimal.NewFromInt(int64(m.ctx.ChaseRetryCount + 1))
		step := chaseStepPct.Mul(k)
		var refPrice decimal.Decimal
		var ok bool
		if side == types.Sell {
			refPrice, ok = m.board.GetPrice(types.CEX, types.Buy) // bid
		} else {
			refPrice, ok = m.board.GetPrice(types.CEX, types.Sell) // ask
		}
		if ok {
			var p decimal.Decimal
			if side == types.Sell {
				p = refPrice.Mul(decimal.NewFromInt(1).Sub(step))
			} else {
				p = refPrice.Mul(decimal.NewFromInt(1).Add(step))
			}
			p = venue.RoundPrice(p, m.cexCfg.PricePrecision)
			price = &p
		}
		// No fresh price available: fall through to a market order.
	}

	result, err := m.cex.PlaceOrder(ctx, types.PlaceOrderRequest{
		Venue: types.CEX, Symbol: m.cexCfg.Symbol, Side: side, Quantity: qty, Price: price,
	})
	m.ctx.ChaseRetryCount++
	targetState := leg2ChasingState(isOpen)

	if err != nil || !result.Ok {
		m.logger.Error("chase step placement failed", "err", err, "retry", m.ctx.ChaseRetryCount)
		// Open Question 2 resolution: no active order id, but keep a
		// pending-retry marker and a fresh timestamp so the timeout
		// sweep still drives the next attempt instead of stalling forever.
		m.ctx.ActiveOrderID = ""
		m.ctx.PendingChaseRetry = true
		m.ctx.ActiveOrderTime = time.Now()
		m.state = targetState
		return
	}

	m.ctx.ActiveOrderID = result.OrderID
	m.ctx.ActiveVenue = types.CEX
	m.ctx.ActiveOrderTime = time.Now()
	m.ctx.PendingChaseRetry = false
	m.ctx.LastCumFilledQty[result.OrderID] = decimal.Zero
	m.norm.Track(types.CEX, result.OrderID)
	m.state = targetState
}

// ————————————————————————————————————————————————————————————————————————
// Timeout sweep — TickLoop entrypoint
// ————————————————————————————————————————————————————————————————————————

// Tick runs the 1Hz timeout sweep: an active leg whose deadline has
// passed gets cancelled (Leg1) or re-chased (Leg2); a chase step that
// failed to place (PendingChaseRetry) is retried here too, since it left
// no active order for the usual deadline check to see.
func (m *Machine) Tick(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.PendingChaseRetry {
		if time.Since(m.ctx.ActiveOrderTime) > m.strat.OrderTimeout {
			isOpen := isOpenState(m.state)
			m.chaseStep(ctx, isOpen)
		}
		return
	}

	if m.ctx.ActiveOrderID == "" {
		return
	}
	if time.Since(m.ctx.ActiveOrderTime) <= m.strat.OrderTimeout {
		return
	}

	switch m.state {
	case types.OpenLeg1Waiting:
		m.dispatchCancel(types.DEX, m.dexCfg.Symbol, m.ctx.ActiveOrderID)
		m.state = types.OpenLeg1Canceling
	case types.CloseLeg1Waiting:
		m.dispatchCancel(types.DEX, m.dexCfg.Symbol, m.ctx.ActiveOrderID)
		m.state = types.CloseLeg1Canceling
	case types.OpenLeg2Waiting, types.OpenLeg2Chasing, types.CloseLeg2Waiting, types.CloseLeg2Chasing:
		m.dispatchCancel(types.CEX, m.cexCfg.Symbol, m.ctx.ActiveOrderID)
	}
}

// dispatchCancel fires a cancel on the pool, never holding the machine
// mutex across the REST round-trip.
func (m *Machine) dispatchCancel(v types.Venue, symbol, orderID string) {
	client := m.cex
	if v == types.DEX {
		client = m.dex
	}
	m.pool.Go(func() {
		cctx, cancel := context.WithTimeout(context.Background(), m.strat.OrderTimeout)
		defer cancel()
		if err := client.CancelOrder(cctx, types.CancelOrderRequest{Venue: v, Symbol: symbol, OrderID: orderID}); err != nil {
			m.logger.Warn("async cancel failed", "venue", v, "order_id", orderID, "err", err)
		}
	})
}

// ————————————————————————————————————————————————————————————————————————
// Small state-table helpers
// ————————————————————————————————————————————————————————————————————————

func (m *Machine) applyLeg1PositionDelta(inc decimal.Decimal, isOpen bool) {
	if isOpen {
		m.ctx.CurrentPosition = m.ctx.CurrentPosition.Add(inc)
	} else {
		m.ctx.CurrentPosition = m.ctx.CurrentPosition.Sub(inc)
		if m.ctx.CurrentPosition.IsNegative() {
			m.ctx.CurrentPosition = decimal.Zero
		}
	}
}

func (m *Machine) resetEpisode() {
	m.ctx.Leg1FilledQty = decimal.Zero
	m.ctx.Leg2FilledQty = decimal.Zero
	m.ctx.ChaseRetryCount = 0
	m.clearActiveOrder()
}

func (m *Machine) clearActiveOrder() {
	m.ctx.ActiveOrderID = ""
	m.ctx.ActiveVenue = ""
	m.ctx.PendingChaseRetry = false
}

func (m *Machine) dexSymbol() string { return m.dexCfg.Symbol }

func leg1CancelingState(isOpen bool) types.StrategyState {
	if isOpen {
		return types.OpenLeg1Canceling
	}
	return types.CloseLeg1Canceling
}

func leg2WaitingState(isOpen bool) types.StrategyState {
	if isOpen {
		return types.OpenLeg2Waiting
	}
	return types.CloseLeg2Waiting
}

func leg2ChasingState(isOpen bool) types.StrategyState {
	if isOpen {
		return types.OpenLeg2Chasing
	}
	return types.CloseLeg2Chasing
}

func conditionState(isOpen bool) types.StrategyState {
	if isOpen {
		return types.OpenCondition
	}
	return types.CloseCondition
}

// episodeCompleteState is where a fully hedged episode lands. An Open
// episode always moves to CloseCondition: there is now a position to
// unwind. A Close episode moves to OpenCondition only if the position is
// now flat; if residual size remains (the unusual case where Leg1 only
// partially closed the position), it stays in CloseCondition to finish
// the job on the next signal.
func (m *Machine) episodeCompleteState(isOpen bool) types.StrategyState {
	if isOpen {
		return types.CloseCondition
	}
	if m.ctx.CurrentPosition.LessThanOrEqual(epsilon) {
		return types.OpenCondition
	}
	return types.CloseCondition
}

func isOpenState(s types.StrategyState) bool {
	switch s {
	case types.OpenCondition, types.OpenLeg1Waiting, types.OpenLeg1Canceling, types.OpenLeg2Waiting, types.OpenLeg2Chasing:
		return true
	default:
		return false
	}
}
