// Package engine is the Supervisor (spec component H): it constructs
// every other component, wires them together, and owns the process
// lifecycle from startup reconciliation through graceful shutdown.
//
// Grounded on the teacher's internal/engine/engine.go orchestration
// shape (New/Start/Stop, context-cancel-driven goroutine shutdown), but
// the teacher's per-market slot/scanner model has no place in a
// fixed-pair two-venue arbitrage engine — this Supervisor wires exactly
// one strategy Machine against exactly one CEX and one DEX client.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"arbengine/internal/config"
	"arbengine/internal/normalizer"
	"arbengine/internal/priceboard"
	"arbengine/internal/reconcile"
	"arbengine/internal/strategy"
	"arbengine/internal/telemetry"
	"arbengine/internal/venue"
	"arbengine/pkg/types"
)

// Engine owns the lifecycle of every running goroutine: both market
// feeds, both user streams, and the TickLoop.
type Engine struct {
	cfg config.Config

	cex venue.Client
	dex venue.Client

	board    *priceboard.Board
	norm     *normalizer.Normalizer
	machine  *strategy.Machine
	tick     *strategy.TickLoop
	reporter *telemetry.Reporter

	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs the Supervisor's dependency graph: venue clients,
// PriceBoard, the normalizer, and the telemetry Reporter. The strategy
// Machine and the TickLoop are built later, in Start, once the reconciled
// starting state is known. New does not start any goroutine. registry
// receives the telemetry Reporter's Prometheus collectors.
func New(cfg config.Config, registry prometheus.Registerer, logger *slog.Logger) (*Engine, error) {
	cex := venue.NewCEXClient(cfg.CEX, cfg.DryRun, logger)
	dex, err := venue.NewDEXClient(cfg.DEX, cfg.DryRun, logger)
	if err != nil {
		return nil, fmt.Errorf("construct dex client: %w", err)
	}

	cexFees := types.FeeSchedule{MakerFee: cfg.CEX.MakerFee, TakerFee: cfg.CEX.TakerFee}
	dexFees := types.FeeSchedule{MakerFee: cfg.DEX.MakerFee, TakerFee: cfg.DEX.TakerFee}
	board := priceboard.New(cexFees, dexFees, cfg.Strategy.MaxDelay)

	reporter := telemetry.NewReporter(logger)
	for _, c := range reporter.Collectors() {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register telemetry collector: %w", err)
		}
	}

	return &Engine{
		cfg:      cfg,
		cex:      cex,
		dex:      dex,
		board:    board,
		norm:     normalizer.New(),
		reporter: reporter,
		logger:   logger.With("component", "engine"),
	}, nil
}

// Start runs StartupReconciler, builds the strategy Machine at the
// reconciled state, and launches the market feeds, user streams, and
// TickLoop as background goroutines. Returns once everything is
// running; call Stop to shut down.
func (e *Engine) Start(ctx context.Context) error {
	reconcileCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	result, err := reconcile.Reconcile(reconcileCtx, e.cex, e.dex, e.cfg.CEX.Symbol, e.cfg.DEX.Symbol, e.logger)
	cancel()
	if err != nil {
		return fmt.Errorf("startup reconciliation: %w", err)
	}

	pool := strategy.NewCancelPool(e.cfg.Strategy.CancelWorkers)
	e.machine = strategy.New(
		e.board, e.cex, e.dex, e.norm, pool,
		e.cfg.CEX, e.cfg.DEX, e.cfg.Strategy,
		result.State, result.CurrentPosition, e.logger,
	)
	e.tick = strategy.NewTickLoop(e.machine, time.Second)

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(7)
	go e.runMarketFeed(runCtx, e.cex)
	go e.runMarketFeed(runCtx, e.dex)
	go e.runUserStream(runCtx, e.cex)
	go e.runUserStream(runCtx, e.dex)
	go func() {
		defer e.wg.Done()
		e.tick.Run(runCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.reporter.Run(runCtx)
	}()
	go e.reportLoop(runCtx)

	e.logger.Info("engine started", "initial_state", result.State, "current_position", result.CurrentPosition)
	return nil
}

// Stop cancels all background goroutines and waits for them to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info("engine stopped")
}

// runMarketFeed drains one venue's L2 book stream into PriceBoard. The
// CEX feed additionally re-evaluates the open/close signal after every
// update — the faster, more liquid venue's tick drives decisions, per
// spec.md §4.B; the DEX feed only ever updates the board.
func (e *Engine) runMarketFeed(ctx context.Context, v venue.Client) {
	defer e.wg.Done()

	onBook := func(book types.L2Book) {
		if !book.Valid() || len(book.Bids) == 0 || len(book.Asks) == 0 {
			return
		}
		e.board.Update(v.Venue(), book.Bids[0].Price, book.Asks[0].Price)

		if v.Venue() != types.CEX {
			return
		}
		// Direction A (buy CEX taker, sell DEX maker) is the close leg;
		// direction B (buy DEX taker, sell CEX maker) is the open leg.
		// signalFn recomputes from the board inside the machine's lock
		// rather than closing over a value captured here, so the
		// re-evaluation spec.md §4.E requires sees the freshest spread.
		e.machine.CheckAndExecuteOpen(ctx, func() bool {
			_, dirB := e.board.GetSpreadWithFees()
			return dirB != nil && dirB.GreaterThan(e.cfg.Strategy.MinSpreadThreshold)
		})
		e.machine.CheckAndExecuteClose(ctx, func() bool {
			dirA, _ := e.board.GetSpreadWithFees()
			return dirA != nil && dirA.GreaterThan(e.cfg.Strategy.MinSpreadThreshold)
		})
	}

	if err := v.SubscribeMarketStream(ctx, onBook); err != nil && ctx.Err() == nil {
		e.logger.Error("market stream exited", "venue", v.Venue(), "err", err)
	}
}

// runUserStream drains one venue's order-lifecycle stream through the
// normalizer into the strategy machine.
func (e *Engine) runUserStream(ctx context.Context, v venue.Client) {
	defer e.wg.Done()

	handler := func(raw types.RawOrderEvent) {
		ev, ok := e.norm.Normalize(raw)
		if !ok {
			return
		}
		e.machine.OnOrderUpdate(ctx, ev)
	}

	if err := v.SubscribeUserStream(ctx, handler); err != nil && ctx.Err() == nil {
		e.logger.Error("user stream exited", "venue", v.Venue(), "err", err)
	}
}

// reportLoop pushes a telemetry snapshot once per second. It runs on its
// own ticker rather than piggybacking on TickLoop so a slow Prometheus
// scrape path can never perturb the strategy machine's timeout sweep.
func (e *Engine) reportLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := e.machine.Snapshot()
			dirA, dirB := e.board.GetSpreadWithFees()
			e.reporter.Report(telemetry.Snapshot{
				State:           e.machine.State(),
				CurrentPosition: snap.CurrentPosition,
				Leg1FilledQty:   snap.Leg1FilledQty,
				Leg2FilledQty:   snap.Leg2FilledQty,
				ChaseRetryCount: snap.ChaseRetryCount,
				SpreadA:         dirA,
				SpreadB:         dirB,
			})
		}
	}
}

// State returns the strategy machine's current state, for the health
// endpoint. Returns the empty state if called before Start completes.
func (e *Engine) State() types.StrategyState {
	if e.machine == nil {
		return ""
	}
	return e.machine.State()
}
