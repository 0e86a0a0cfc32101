package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ln9swrd/coinpulse-sub000/config"
	"github.com/ln9swrd/coinpulse-sub000/internal/database"
	"github.com/ln9swrd/coinpulse-sub000/internal/monitor"
	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

// Sweeper force-closes alert-only signals that never turned into a trade.
// Conditions are checked in order and the first match wins. Peak price is
// raised with the latest observed price before any check runs, so a new
// high set this very cycle is never counted as a drop from peak.
type Sweeper struct {
	loader *config.Loader
	client upbit.MarketData
	stream monitor.PriceSource
	store  database.SignalStore
	logger zerolog.Logger
}

func New(
	loader *config.Loader,
	client upbit.MarketData,
	stream monitor.PriceSource,
	store database.SignalStore,
	logger zerolog.Logger,
) *Sweeper {
	return &Sweeper{
		loader: loader,
		client: client,
		stream: stream,
		store:  store,
		logger: logger.With().Str("component", "sweeper").Logger(),
	}
}

// RunCycle sweeps every untraded pending signal once
func (s *Sweeper) RunCycle(ctx context.Context) error {
	cfg := s.loader.Reload()
	if !cfg.SweeperConfig.Enabled {
		return nil
	}

	signals, err := s.store.GetUntradedPendingSignals(ctx)
	if err != nil {
		return fmt.Errorf("load pending signals: %w", err)
	}

	for _, sig := range signals {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.sweepSignal(ctx, sig, cfg.SweeperConfig); err != nil {
			s.logger.Warn().Err(err).Str("symbol", sig.Symbol).Int64("signal_id", sig.ID).Msg("sweep failed")
		}
	}
	return nil
}

func (s *Sweeper) sweepSignal(ctx context.Context, sig *database.Signal, cfg config.SweeperConfig) error {
	price, err := s.currentPrice(ctx, sig.Symbol)
	if err != nil {
		return err
	}

	peak, err := s.store.RaisePeakPrice(ctx, sig.ID, price)
	if err != nil {
		if errors.Is(err, database.ErrAlreadyClosed) || errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("peak update: %w", err)
	}

	status, reason, stale := Evaluate(sig, price, peak, time.Now(), cfg)
	if !stale {
		return nil
	}

	pnlPercent := (price - sig.EntryPrice) / sig.EntryPrice * 100
	err = s.store.CloseSignal(ctx, sig.ID, database.Closure{
		Status:            status,
		ExitPrice:         price,
		CloseReason:       reason,
		ProfitLossPercent: pnlPercent,
	})
	if errors.Is(err, database.ErrAlreadyClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record closure: %w", err)
	}

	s.logger.Info().
		Str("symbol", sig.Symbol).
		Str("status", status).
		Str("reason", reason).
		Float64("entry", sig.EntryPrice).
		Float64("exit", price).
		Msg("stale signal closed")
	return nil
}

// Evaluate applies the stale-close conditions in order against an
// untraded pending signal. peak must already include the current price.
func Evaluate(sig *database.Signal, price, peak float64, now time.Time, cfg config.SweeperConfig) (status, reason string, stale bool) {
	age := now.Sub(sig.DetectedAt)

	if age >= time.Duration(cfg.MaxAgeHours)*time.Hour {
		return database.StatusExpired, database.CloseReasonExpired, true
	}

	if peak > 0 {
		dropFromPeak := (peak - price) / peak * 100
		if dropFromPeak >= cfg.PeakDropPercent {
			return database.StatusClosed, database.CloseReasonPeakDrop, true
		}
	}

	changePercent := (price - sig.EntryPrice) / sig.EntryPrice * 100
	if changePercent <= -cfg.LossPercent {
		return database.StatusClosed, database.CloseReasonBelowEntry, true
	}

	if age >= time.Duration(cfg.StagnationHours)*time.Hour {
		if changePercent < cfg.StagnationPercent && changePercent > -cfg.StagnationPercent {
			return database.StatusClosed, database.CloseReasonStagnation, true
		}
	}

	if age >= time.Duration(cfg.SlowProgressHours)*time.Hour {
		targetGain := sig.TargetPrice - sig.EntryPrice
		if targetGain > 0 {
			progress := (price - sig.EntryPrice) / targetGain * 100
			if progress < cfg.SlowProgressPercent {
				return database.StatusClosed, database.CloseReasonSlowProgress, true
			}
		}
	}

	return "", "", false
}

func (s *Sweeper) currentPrice(ctx context.Context, market string) (float64, error) {
	if s.stream != nil {
		if price, ok := s.stream.Price(market); ok {
			return price, nil
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.client.GetCurrentPrice(callCtx, market)
}
