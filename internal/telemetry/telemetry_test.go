package telemetry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"arbengine/pkg/types"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestReportUpdatesGauges(t *testing.T) {
	t.Parallel()

	r := NewReporter(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	spreadA := decimal.RequireFromString("12.5")
	r.Report(Snapshot{
		State:           types.OpenLeg1Waiting,
		CurrentPosition: decimal.RequireFromString("0.001"),
		Leg1FilledQty:   decimal.RequireFromString("0.0005"),
		ChaseRetryCount: 2,
		SpreadA:         &spreadA,
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(r.position) != 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := testutil.ToFloat64(r.position); got != 0.001 {
		t.Errorf("position gauge = %v, want 0.001", got)
	}
	if got := testutil.ToFloat64(r.leg1Filled); got != 0.0005 {
		t.Errorf("leg1_filled gauge = %v, want 0.0005", got)
	}
	if got := testutil.ToFloat64(r.chaseRetries); got != 2 {
		t.Errorf("chase_retries gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.spreadA); got != 12.5 {
		t.Errorf("spread_a gauge = %v, want 12.5", got)
	}
	if got := testutil.ToFloat64(r.stateGauge.WithLabelValues(string(types.OpenLeg1Waiting))); got != 1 {
		t.Errorf("state gauge for OpenLeg1Waiting = %v, want 1", got)
	}
}

func TestReportDropsWhenChannelFull(t *testing.T) {
	t.Parallel()

	r := NewReporter(testLogger())
	// Never started: Run is not draining, so the buffered channel fills up.
	for i := 0; i < 100; i++ {
		r.Report(Snapshot{State: types.OpenCondition})
	}
	// Reaching here without blocking forever is the assertion: Report must
	// never stall the caller even once the channel saturates.
}
