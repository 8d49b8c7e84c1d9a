package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arbengine/internal/config"
	"arbengine/internal/normalizer"
	"arbengine/internal/priceboard"
	"arbengine/internal/venue"
	"arbengine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// fakeClient is a scripted venue.Client used to drive the state machine
// through specific scenarios without any network I/O.
type fakeClient struct {
	venue types.Venue

	mu           sync.Mutex
	placeQueue   []types.PlaceOrderResult
	placeErr     error
	placeCalls   []types.PlaceOrderRequest
	cancelCalls  []types.CancelOrderRequest
}

func (f *fakeClient) PlaceOrder(ctx context.Context, req types.PlaceOrderRequest) (types.PlaceOrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeCalls = append(f.placeCalls, req)
	if f.placeErr != nil {
		return types.PlaceOrderResult{}, f.placeErr
	}
	if len(f.placeQueue) == 0 {
		return types.PlaceOrderResult{Ok: false}, nil
	}
	r := f.placeQueue[0]
	f.placeQueue = f.placeQueue[1:]
	return r, nil
}

func (f *fakeClient) CancelOrder(ctx context.Context, req types.CancelOrderRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, req)
	return nil
}

func (f *fakeClient) Balance(ctx context.Context) (types.Balance, error) { return types.Balance{}, nil }

func (f *fakeClient) Position(ctx context.Context, symbol string) (types.Position, error) {
	return types.Position{Empty: true}, nil
}

func (f *fakeClient) SubscribeUserStream(ctx context.Context, handler venue.UserStreamHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeClient) SubscribeMarketStream(ctx context.Context, onBook func(types.L2Book)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeClient) Venue() types.Venue { return f.venue }

func (f *fakeClient) lastPlaceCall() types.PlaceOrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.placeCalls[len(f.placeCalls)-1]
}

func (f *fakeClient) placeCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placeCalls)
}

func (f *fakeClient) cancelCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelCalls)
}

func testStrategyConfig() config.StrategyConfig {
	return config.StrategyConfig{
		MinSpreadThreshold: decimal.Zero,
		BaseQuantity:       d("0.001"),
		OrderTimeout:       5 * time.Second,
		MaxChaseRetries:    3,
		MaxDelay:           time.Second,
		CancelWorkers:      4,
	}
}

func testVenueConfigs() (config.CEXConfig, config.DEXConfig) {
	cexCfg := config.CEXConfig{Symbol: "BTCUSDT", PricePrecision: 1, QtyPrecision: 4}
	dexCfg := config.DEXConfig{Symbol: "BTC", PricePrecision: 1, QtyPrecision: 4}
	return cexCfg, dexCfg
}

func newTestMachine(t *testing.T, cex, dex *fakeClient, initialState types.StrategyState, initialPosition decimal.Decimal) (*Machine, *priceboard.Board) {
	t.Helper()
	board := priceboard.New(types.FeeSchedule{TakerFee: d("0.0004")}, types.FeeSchedule{MakerFee: d("0.0002")}, time.Second)
	cexCfg, dexCfg := testVenueConfigs()
	m := New(board, cex, dex, normalizer.New(), NewCancelPool(2), cexCfg, dexCfg, testStrategyConfig(), initialState, initialPosition, testLogger())
	return m, board
}

// Scenario 1: clean open, clean close.
func TestScenarioCleanOpenClose(t *testing.T) {
	t.Parallel()

	cex := &fakeClient{venue: types.CEX, placeQueue: []types.PlaceOrderResult{{OrderID: "c1", Ok: true}}}
	dex := &fakeClient{venue: types.DEX, placeQueue: []types.PlaceOrderResult{{OrderID: "d1", Ok: true}}}
	m, board := newTestMachine(t, cex, dex, types.OpenCondition, decimal.Zero)

	board.Update(types.CEX, d("60000"), d("60000"))
	board.Update(types.DEX, d("60100"), d("60100"))

	ctx := context.Background()
	m.CheckAndExecuteOpen(ctx, func() bool { return true })

	if m.State() != types.OpenLeg1Waiting {
		t.Fatalf("state = %v, want OpenLeg1Waiting", m.State())
	}
	if m.Snapshot().ActiveOrderID != "d1" {
		t.Fatalf("active order id = %q, want d1", m.Snapshot().ActiveOrderID)
	}

	m.OnOrderUpdate(ctx, types.NormalizedOrderEvent{Venue: types.DEX, OrderID: "d1", Kind: types.AllFilled, CumFilledQty: d("0.001")})

	if m.State() != types.OpenLeg2Waiting {
		t.Fatalf("state = %v, want OpenLeg2Waiting", m.State())
	}
	if m.Snapshot().ActiveOrderID != "c1" {
		t.Fatalf("active order id = %q, want c1", m.Snapshot().ActiveOrderID)
	}

	m.OnOrderUpdate(ctx, types.NormalizedOrderEvent{Venue: types.CEX, OrderID: "c1", Kind: types.AllFilled, CumFilledQty: d("0.001")})

	if m.State() != types.CloseCondition {
		t.Fatalf("state = %v, want CloseCondition", m.State())
	}
	if got := m.Snapshot().CurrentPosition; !got.Equal(d("0.001")) {
		t.Errorf("current_position = %v, want 0.001", got)
	}
}

// Scenario 3: Leg-2 chase ladder crosses the book progressively, then
// escalates to a market order past max_chase_retries.
func TestScenarioChaseLadder(t *testing.T) {
	t.Parallel()

	cex := &fakeClient{venue: types.CEX, placeQueue: []types.PlaceOrderResult{
		{OrderID: "c2", Ok: true}, {OrderID: "c3", Ok: true}, {OrderID: "c4", Ok: true}, {OrderID: "c5", Ok: true},
	}}
	dex := &fakeClient{venue: types.DEX}
	m, board := newTestMachine(t, cex, dex, types.OpenLeg2Waiting, decimal.Zero)
	board.Update(types.CEX, d("60000"), d("60010"))

	m.mu.Lock()
	m.ctx.ActiveOrderID = "c1"
	m.ctx.ActiveVenue = types.CEX
	m.ctx.Leg1FilledQty = d("0.001")
	m.mu.Unlock()

	ctx := context.Background()
	orderIDs := []string{"c1", "c2", "c3", "c4"}
	wantSteps := []string{"0.999", "0.998", "0.997"} // bid*(1-0.001k) for k=1,2,3

	for i, id := range orderIDs {
		m.OnOrderUpdate(ctx, types.NormalizedOrderEvent{Venue: types.CEX, OrderID: id, Kind: types.AllCanceled, CumFilledQty: decimal.Zero})

		call := cex.lastPlaceCall()
		if i < len(wantSteps) {
			if call.Price == nil {
				t.Fatalf("step %d: expected a limit price, got market order", i)
			}
			want := d("60000").Mul(d(wantSteps[i]))
			if !call.Price.Equal(want) {
				t.Errorf("step %d: price = %v, want %v", i, call.Price, want)
			}
		} else {
			if call.Price != nil {
				t.Errorf("step %d: expected market order (nil price), got %v", i, call.Price)
			}
		}
	}

	if got := m.Snapshot().ChaseRetryCount; got != 4 {
		t.Errorf("chase_retry_count = %d, want 4", got)
	}
}

// Scenario 4: cancel race — Leg1 cancel loses the race to a fill; Leg2
// starts with the full filled quantity and the chase count is preserved.
func TestScenarioCancelRace(t *testing.T) {
	t.Parallel()

	cex := &fakeClient{venue: types.CEX, placeQueue: []types.PlaceOrderResult{{OrderID: "c1", Ok: true}}}
	dex := &fakeClient{venue: types.DEX}
	m, _ := newTestMachine(t, cex, dex, types.OpenLeg1Canceling, decimal.Zero)

	m.mu.Lock()
	m.ctx.ActiveOrderID = "d1"
	m.ctx.ActiveVenue = types.DEX
	m.ctx.ChaseRetryCount = 2
	m.mu.Unlock()

	ctx := context.Background()
	m.OnOrderUpdate(ctx, types.NormalizedOrderEvent{Venue: types.DEX, OrderID: "d1", Kind: types.AllFilled, CumFilledQty: d("0.001")})

	if m.State() != types.OpenLeg2Chasing {
		t.Fatalf("state = %v, want OpenLeg2Chasing", m.State())
	}
	if got := m.Snapshot().ChaseRetryCount; got != 2 {
		t.Errorf("chase_retry_count = %d, want unchanged at 2", got)
	}
	if call := cex.lastPlaceCall(); !call.Quantity.Equal(d("0.001")) {
		t.Errorf("leg2 quantity = %v, want 0.001", call.Quantity)
	}
}

// Scenario 5: stale market data suppresses signal evaluation entirely.
func TestScenarioStaleDataSuppression(t *testing.T) {
	t.Parallel()

	cex := &fakeClient{venue: types.CEX}
	dex := &fakeClient{venue: types.DEX, placeQueue: []types.PlaceOrderResult{{OrderID: "d1", Ok: true}}}
	m, board := newTestMachine(t, cex, dex, types.OpenCondition, decimal.Zero)

	now := time.Now()
	board.SetClock(func() time.Time { return now })
	board.Update(types.DEX, d("60100"), d("60110"))
	board.SetClock(func() time.Time { return now.Add(1200 * time.Millisecond) })

	m.CheckAndExecuteOpen(context.Background(), func() bool { return true })

	if m.State() != types.OpenCondition {
		t.Fatalf("state = %v, want OpenCondition (no signal should fire on stale data)", m.State())
	}
	if dex.placeCallCount() != 0 {
		t.Errorf("expected no placement on stale data, got %d calls", dex.placeCallCount())
	}
}

func TestPlacementFailureStaysInCondition(t *testing.T) {
	t.Parallel()

	cex := &fakeClient{venue: types.CEX}
	dex := &fakeClient{venue: types.DEX, placeErr: errors.New("network error")}
	m, board := newTestMachine(t, cex, dex, types.OpenCondition, decimal.Zero)
	board.Update(types.DEX, d("60100"), d("60110"))

	m.CheckAndExecuteOpen(context.Background(), func() bool { return true })

	if m.State() != types.OpenCondition {
		t.Fatalf("state = %v, want OpenCondition after a placement failure", m.State())
	}
}
