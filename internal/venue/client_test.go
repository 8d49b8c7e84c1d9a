package venue

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRoundPrice(t *testing.T) {
	t.Parallel()

	got := RoundPrice(decimal.RequireFromString("60123.456"), 1)
	want := decimal.RequireFromString("60123.5")
	if !got.Equal(want) {
		t.Errorf("RoundPrice = %v, want %v", got, want)
	}
}

func TestRoundQty(t *testing.T) {
	t.Parallel()

	got := RoundQty(decimal.RequireFromString("0.0012349"), 4)
	want := decimal.RequireFromString("0.0012")
	if !got.Equal(want) {
		t.Errorf("RoundQty = %v, want %v", got, want)
	}
}
