// Package telemetry reports the strategy machine's state to Prometheus.
//
// Grounded on the teacher's internal/risk/manager.go report/observe
// pattern (a buffered, non-blocking Report() channel drained by a Run()
// loop) — repurposed here from portfolio kill-switch enforcement, which
// has no equivalent in a fixed-pair, fixed-size arbitrage engine, into
// a pure metrics sink using github.com/prometheus/client_golang, the
// same library other_examples/fd1az-arbitrage-bot and
// chidi150c-coinbase expose for observability.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"arbengine/pkg/types"
)

// Snapshot is one point-in-time view of the strategy machine, submitted
// by the engine once per tick.
type Snapshot struct {
	State           types.StrategyState
	CurrentPosition decimal.Decimal
	Leg1FilledQty   decimal.Decimal
	Leg2FilledQty   decimal.Decimal
	ChaseRetryCount int
	SpreadA         *decimal.Decimal
	SpreadB         *decimal.Decimal
}

// Reporter drains Snapshots and updates Prometheus gauges. One instance
// per process; register its Collectors with the default registry (or a
// custom one) before Run starts.
type Reporter struct {
	logger *slog.Logger

	reportCh chan Snapshot

	stateGauge   *prometheus.GaugeVec
	position     prometheus.Gauge
	leg1Filled   prometheus.Gauge
	leg2Filled   prometheus.Gauge
	chaseRetries prometheus.Gauge
	spreadA      prometheus.Gauge
	spreadB      prometheus.Gauge
}

// NewReporter creates a Reporter and its gauges, ready to Register().
func NewReporter(logger *slog.Logger) *Reporter {
	return &Reporter{
		logger:   logger.With("component", "telemetry"),
		reportCh: make(chan Snapshot, 64),

		stateGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arbengine",
			Name:      "strategy_state",
			Help:      "1 for the strategy machine's current state, labeled by state name; 0 otherwise.",
		}, []string{"state"}),
		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbengine",
			Name:      "current_position",
			Help:      "Net DEX-side position size.",
		}),
		leg1Filled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbengine",
			Name:      "leg1_filled_qty",
			Help:      "Cumulative fill quantity of the current episode's Leg 1 (DEX) order.",
		}),
		leg2Filled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbengine",
			Name:      "leg2_filled_qty",
			Help:      "Cumulative fill quantity of the current episode's Leg 2 (CEX) order.",
		}),
		chaseRetries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbengine",
			Name:      "chase_retry_count",
			Help:      "Chase-ladder attempts used in the current Leg-2 episode.",
		}),
		spreadA: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbengine",
			Name:      "spread_direction_a",
			Help:      "Fee-adjusted net spread, direction A (buy CEX, sell DEX).",
		}),
		spreadB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbengine",
			Name:      "spread_direction_b",
			Help:      "Fee-adjusted net spread, direction B (buy DEX, sell CEX).",
		}),
	}
}

// Collectors returns every metric for registration with a
// prometheus.Registerer.
func (r *Reporter) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.stateGauge, r.position, r.leg1Filled, r.leg2Filled, r.chaseRetries, r.spreadA, r.spreadB,
	}
}

// Report submits a snapshot without blocking the caller; a full channel
// drops the snapshot rather than stall the strategy machine's tick.
func (r *Reporter) Report(s Snapshot) {
	select {
	case r.reportCh <- s:
	default:
		r.logger.Warn("telemetry channel full, dropping snapshot")
	}
}

// Run drains submitted snapshots into the gauges until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	var lastState types.StrategyState
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-r.reportCh:
			if lastState != "" && lastState != s.State {
				r.stateGauge.WithLabelValues(string(lastState)).Set(0)
			}
			r.stateGauge.WithLabelValues(string(s.State)).Set(1)
			lastState = s.State

			setGaugeDecimal(r.position, s.CurrentPosition)
			setGaugeDecimal(r.leg1Filled, s.Leg1FilledQty)
			setGaugeDecimal(r.leg2Filled, s.Leg2FilledQty)
			r.chaseRetries.Set(float64(s.ChaseRetryCount))
			if s.SpreadA != nil {
				setGaugeDecimal(r.spreadA, *s.SpreadA)
			}
			if s.SpreadB != nil {
				setGaugeDecimal(r.spreadB, *s.SpreadB)
			}
		}
	}
}

func setGaugeDecimal(g prometheus.Gauge, d decimal.Decimal) {
	f, _ := d.Float64()
	g.Set(f)
}
