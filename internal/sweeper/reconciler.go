package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ln9swrd/coinpulse-sub000/config"
	"github.com/ln9swrd/coinpulse-sub000/internal/database"
	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

// Reconciler is the backstop for signals that slipped past both the
// position monitor and the sweeper. Signals still pending several days
// after emission get a one-shot resolution against daily candles: did
// the target or the stop ever trade during the holding window? Within a
// single day the target is credited first, which biases ambiguous days
// toward win; the bias is accepted because daily bars cannot order
// intraday extremes.
type Reconciler struct {
	loader *config.Loader
	client upbit.MarketData
	store  database.SignalStore
	logger zerolog.Logger
}

func NewReconciler(loader *config.Loader, client upbit.MarketData, store database.SignalStore, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		loader: loader,
		client: client,
		store:  store,
		logger: logger.With().Str("component", "reconciler").Logger(),
	}
}

// RunCycle finalizes every signal older than the reconcile window
func (r *Reconciler) RunCycle(ctx context.Context) error {
	cfg := r.loader.Reload()
	cutoff := time.Now().AddDate(0, 0, -cfg.SweeperConfig.ReconcileAfterDays)

	signals, err := r.store.GetPendingOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load overdue signals: %w", err)
	}

	for _, sig := range signals {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := r.reconcileSignal(ctx, sig); err != nil {
			r.logger.Warn().Err(err).Str("symbol", sig.Symbol).Int64("signal_id", sig.ID).Msg("reconcile failed")
		}
	}
	return nil
}

func (r *Reconciler) reconcileSignal(ctx context.Context, sig *database.Signal) error {
	// Daily candles arrive newest first; fetch enough to cover the whole
	// window since detection, plus slack for exchange downtime days.
	days := int(time.Since(sig.DetectedAt).Hours()/24) + 2
	if days > upbit.MaxCandleCount {
		days = upbit.MaxCandleCount
	}

	callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	candles, err := r.client.GetDayCandles(callCtx, sig.Symbol, days, "")
	if err != nil {
		return fmt.Errorf("candles: %w", err)
	}

	closure, ok := Resolve(sig, candles)
	if !ok {
		return nil
	}

	err = r.store.CloseSignal(ctx, sig.ID, closure)
	if errors.Is(err, database.ErrAlreadyClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record closure: %w", err)
	}

	r.logger.Info().
		Str("symbol", sig.Symbol).
		Str("status", closure.Status).
		Float64("exit", closure.ExitPrice).
		Msg("overdue signal reconciled")
	return nil
}

// Resolve walks the holding window oldest to newest looking for the
// first day the target or stop traded. If neither ever did, the signal
// finalizes neutral at the latest close. Returns false when no candle
// covers the window.
func Resolve(sig *database.Signal, candles []upbit.Candle) (database.Closure, bool) {
	if len(candles) == 0 {
		return database.Closure{}, false
	}

	detectedDay := sig.DetectedAt.Truncate(24 * time.Hour)
	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		if c.Time().Before(detectedDay) {
			continue
		}
		if c.HighPrice >= sig.TargetPrice {
			return closureAt(sig, sig.TargetPrice, database.StatusWin, database.CloseReasonTarget), true
		}
		if c.LowPrice <= sig.StopLossPrice {
			return closureAt(sig, sig.StopLossPrice, database.StatusLose, database.CloseReasonStopLoss), true
		}
	}

	// Neither boundary traded: neutral expiry at the most recent close.
	return closureAt(sig, candles[0].TradePrice, database.StatusClosed, database.CloseReasonNeutral), true
}

func closureAt(sig *database.Signal, exitPrice float64, status, reason string) database.Closure {
	return database.Closure{
		Status:            status,
		ExitPrice:         exitPrice,
		CloseReason:       reason,
		ProfitLossPercent: (exitPrice - sig.EntryPrice) / sig.EntryPrice * 100,
	}
}
