// Package reconcile implements the StartupReconciler (spec component G):
// before the strategy machine starts, it queries each venue's reported
// position and decides the only two safe starting states, refusing to
// start on anything else.
//
// Grounded on original_source/trade_engine.py's InitialStateChecker
// (Req_Investment_position), reworked into Go's explicit-error-return
// idiom in place of the original's process-exit-on-mismatch behavior.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"arbengine/internal/venue"
	"arbengine/pkg/types"
)

// epsilon is the size-matching tolerance between the CEX short leg and
// the DEX long leg when reconciling into CloseCondition.
var epsilon = decimal.New(1, -6)

// Result is the reconciler's verdict: the state to start the strategy
// machine in and the DEX-side position size to seed MachineContext with.
type Result struct {
	State           types.StrategyState
	CurrentPosition decimal.Decimal
}

// Reconcile queries balances (informational, logged only) and positions
// on both venues and returns the safe starting state, or an error if the
// reported positions don't match a known-safe pattern. The caller is
// expected to treat a non-nil error as fatal (spec.md §6: non-zero exit).
func Reconcile(ctx context.Context, cex, dex venue.Client, cexSymbol, dexSymbol string, logger *slog.Logger) (Result, error) {
	cexBalance, err := cex.Balance(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("query cex balance: %w", err)
	}
	dexBalance, err := dex.Balance(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("query dex balance: %w", err)
	}
	logger.Info("startup balances",
		"cex_available", cexBalance.Available, "dex_available", dexBalance.Available)

	cexPos, err := cex.Position(ctx, cexSymbol)
	if err != nil {
		return Result{}, fmt.Errorf("query cex position: %w", err)
	}
	dexPos, err := dex.Position(ctx, dexSymbol)
	if err != nil {
		return Result{}, fmt.Errorf("query dex position: %w", err)
	}

	switch {
	case cexPos.Empty && dexPos.Empty:
		logger.Info("startup reconciliation: flat on both venues, starting in OpenCondition")
		return Result{State: types.OpenCondition, CurrentPosition: decimal.Zero}, nil

	case cexPos.Side == types.PositionShort && dexPos.Side == types.PositionLong &&
		cexPos.Size.Sub(dexPos.Size).Abs().LessThanOrEqual(epsilon):
		logger.Info("startup reconciliation: matched short CEX / long DEX, starting in CloseCondition",
			"size", dexPos.Size)
		return Result{State: types.CloseCondition, CurrentPosition: dexPos.Size}, nil

	default:
		return Result{}, fmt.Errorf(
			"refusing to start: unreconcilable position pair (cex=%s %s, dex=%s %s) — flatten or rebalance manually",
			cexPos.Side, cexPos.Size, dexPos.Side, dexPos.Size)
	}
}
