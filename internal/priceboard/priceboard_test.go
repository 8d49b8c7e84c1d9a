package priceboard

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arbengine/pkg/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestGetPriceUninitialized(t *testing.T) {
	t.Parallel()

	b := New(types.FeeSchedule{}, types.FeeSchedule{}, time.Second)
	if _, ok := b.GetPrice(types.CEX, types.Buy); ok {
		t.Error("expected ok=false for an uninitialized ticker")
	}
}

func TestGetPriceStale(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := New(types.FeeSchedule{}, types.FeeSchedule{}, time.Second)
	b.SetClock(func() time.Time { return now })
	b.Update(types.CEX, d("100"), d("101"))

	b.SetClock(func() time.Time { return now.Add(1200 * time.Millisecond) })
	if _, ok := b.GetPrice(types.CEX, types.Buy); ok {
		t.Error("expected ok=false once the ticker exceeds max_delay")
	}
}

func TestGetPriceFresh(t *testing.T) {
	t.Parallel()

	b := New(types.FeeSchedule{}, types.FeeSchedule{}, time.Second)
	b.Update(types.DEX, d("100.5"), d("101.5"))

	bid, ok := b.GetPrice(types.DEX, types.Buy)
	if !ok || !bid.Equal(d("100.5")) {
		t.Errorf("GetPrice(Buy) = %v, %v; want 100.5, true", bid, ok)
	}
	ask, ok := b.GetPrice(types.DEX, types.Sell)
	if !ok || !ask.Equal(d("101.5")) {
		t.Errorf("GetPrice(Sell) = %v, %v; want 101.5, true", ask, ok)
	}
}

func TestGetSpreadWithFees(t *testing.T) {
	t.Parallel()

	cexFees := types.FeeSchedule{MakerFee: d("0.0002"), TakerFee: d("0.0004")}
	dexFees := types.FeeSchedule{MakerFee: d("0.0002"), TakerFee: d("0.0005")}
	b := New(cexFees, dexFees, time.Second)

	b.Update(types.CEX, d("59990"), d("60000"))
	b.Update(types.DEX, d("60100"), d("60110"))

	dirA, dirB := b.GetSpreadWithFees()
	if dirA == nil {
		t.Fatal("expected direction A to be computable")
	}
	// revenue = 60100*(1-0.0002), cost = 60000*(1+0.0004)
	wantA := d("60100").Mul(d("1").Sub(d("0.0002"))).Sub(d("60000").Mul(d("1").Add(d("0.0004"))))
	if !dirA.Equal(wantA) {
		t.Errorf("dirA = %v, want %v", dirA, wantA)
	}

	if dirB == nil {
		t.Fatal("expected direction B to be computable")
	}
	wantB := d("59990").Mul(d("1").Sub(d("0.0002"))).Sub(d("60110").Mul(d("1").Add(d("0.0005"))))
	if !dirB.Equal(wantB) {
		t.Errorf("dirB = %v, want %v", dirB, wantB)
	}
}

func TestGetSpreadWithFeesMissingSide(t *testing.T) {
	t.Parallel()

	b := New(types.FeeSchedule{}, types.FeeSchedule{}, time.Second)
	b.Update(types.CEX, d("100"), d("101"))
	// DEX never updated.

	dirA, dirB := b.GetSpreadWithFees()
	if dirA != nil || dirB != nil {
		t.Errorf("expected both directions nil with one venue uninitialized, got %v, %v", dirA, dirB)
	}
}

func TestFeeAdjustedSpreadMonotonicity(t *testing.T) {
	t.Parallel()

	zeroFees := types.FeeSchedule{}
	withFees := types.FeeSchedule{MakerFee: d("0.001"), TakerFee: d("0.001")}

	bZero := New(zeroFees, zeroFees, time.Second)
	bZero.Update(types.CEX, d("100"), d("100.5"))
	bZero.Update(types.DEX, d("101"), d("101.5"))
	rawA, _ := bZero.GetSpreadWithFees()

	bFees := New(withFees, withFees, time.Second)
	bFees.Update(types.CEX, d("100"), d("100.5"))
	bFees.Update(types.DEX, d("101"), d("101.5"))
	feesA, _ := bFees.GetSpreadWithFees()

	if !feesA.LessThanOrEqual(*rawA) {
		t.Errorf("fee-adjusted spread %v should not exceed raw spread %v", feesA, rawA)
	}
}
