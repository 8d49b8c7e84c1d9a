package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"arbengine/internal/venue"
	"arbengine/pkg/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeClient struct {
	venue    types.Venue
	position types.Position
	posErr   error
}

func (f *fakeClient) PlaceOrder(ctx context.Context, req types.PlaceOrderRequest) (types.PlaceOrderResult, error) {
	return types.PlaceOrderResult{}, errors.New("not implemented")
}
func (f *fakeClient) CancelOrder(ctx context.Context, req types.CancelOrderRequest) error {
	return errors.New("not implemented")
}
func (f *fakeClient) Balance(ctx context.Context) (types.Balance, error) { return types.Balance{}, nil }
func (f *fakeClient) Position(ctx context.Context, symbol string) (types.Position, error) {
	return f.position, f.posErr
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

func TestReconcileFlatStartsOpen(t *testing.T) {
	t.Parallel()

	cex := &fakeClient{venue: types.CEX, position: types.Position{Empty: true}}
	dex := &fakeClient{venue: types.DEX, position: types.Position{Empty: true}}

	res, err := Reconcile(context.Background(), cex, dex, "BTCUSDT", "BTC", testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != types.OpenCondition {
		t.Errorf("state = %v, want OpenCondition", res.State)
	}
	if !res.CurrentPosition.IsZero() {
		t.Errorf("current_position = %v, want 0", res.CurrentPosition)
	}
}

func TestReconcileMatchedHedgeStartsClose(t *testing.T) {
	t.Parallel()

	cex := &fakeClient{venue: types.CEX, position: types.Position{Side: types.PositionShort, Size: d("0.001")}}
	dex := &fakeClient{venue: types.DEX, position: types.Position{Side: types.PositionLong, Size: d("0.001")}}

	res, err := Reconcile(context.Background(), cex, dex, "BTCUSDT", "BTC", testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != types.CloseCondition {
		t.Errorf("state = %v, want CloseCondition", res.State)
	}
	if !res.CurrentPosition.Equal(d("0.001")) {
		t.Errorf("current_position = %v, want 0.001", res.CurrentPosition)
	}
}

func TestReconcileMismatchRefusesToStart(t *testing.T) {
	t.Parallel()

	cex := &fakeClient{venue: types.CEX, position: types.Position{Side: types.PositionShort, Size: d("0.002")}}
	dex := &fakeClient{venue: types.DEX, position: types.Position{Side: types.PositionLong, Size: d("0.001")}}

	_, err := Reconcile(context.Background(), cex, dex, "BTCUSDT", "BTC", testLogger())
	if err == nil {
		t.Fatal("expected an error for an unreconcilable position pair")
	}
}

func TestReconcilePropagatesPositionQueryError(t *testing.T) {
	t.Parallel()

	cex := &fakeClient{venue: types.CEX, posErr: errors.New("timeout")}
	dex := &fakeClient{venue: types.DEX, position: types.Position{Empty: true}}

	_, err := Reconcile(context.Background(), cex, dex, "BTCUSDT", "BTC", testLogger())
	if err == nil {
		t.Fatal("expected the position query error to propagate")
	}
}
