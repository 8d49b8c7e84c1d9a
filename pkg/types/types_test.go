package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestL2BookValid(t *testing.T) {
	t.Parallel()

	d := func(s string) decimal.Decimal {
		v, _ := decimal.NewFromString(s)
		return v
	}

	tests := []struct {
		name string
		book L2Book
		want bool
	}{
		{
			name: "crossed book is invalid",
			book: L2Book{
				Bids: []Level{{Price: d("100")}},
				Asks: []Level{{Price: d("99")}},
			},
			want: false,
		},
		{
			name: "normal book is valid",
			book: L2Book{
				Bids: []Level{{Price: d("99")}},
				Asks: []Level{{Price: d("100")}},
			},
			want: true,
		},
		{
			name: "one-sided book is valid",
			book: L2Book{Bids: []Level{{Price: d("99")}}},
			want: true,
		},
		{
			name: "empty book is valid",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.book.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTickerInitialized(t *testing.T) {
	t.Parallel()

	var zero Ticker
	if zero.Initialized() {
		t.Error("zero-valued Ticker should not be initialized")
	}

	tk := Ticker{BidPrice: decimal.RequireFromString("100"), AskPrice: decimal.RequireFromString("101"), LocalRecvTime: time.Now()}
	if !tk.Initialized() {
		t.Error("Ticker with nonzero bid should be initialized")
	}
}

func TestStrategyStateHasActiveOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state StrategyState
		want  bool
	}{
		{OpenCondition, false},
		{CloseCondition, false},
		{OpenLeg1Waiting, true},
		{OpenLeg1Canceling, true},
		{OpenLeg2Waiting, true},
		{OpenLeg2Chasing, true},
		{CloseLeg1Waiting, true},
		{CloseLeg1Canceling, true},
		{CloseLeg2Waiting, true},
		{CloseLeg2Chasing, true},
	}

	for _, tt := range tests {
		if got := tt.state.HasActiveOrder(); got != tt.want {
			t.Errorf("%s.HasActiveOrder() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
