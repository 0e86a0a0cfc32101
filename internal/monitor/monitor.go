package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ln9swrd/coinpulse-sub000/config"
	"github.com/ln9swrd/coinpulse-sub000/internal/database"
	"github.com/ln9swrd/coinpulse-sub000/internal/notification"
	"github.com/ln9swrd/coinpulse-sub000/internal/scoring"
	"github.com/ln9swrd/coinpulse-sub000/internal/trader"
	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

// PriceSource provides a near-realtime price without a REST round trip.
// Returns false when no fresh price is available for the market.
type PriceSource interface {
	Price(market string) (float64, bool)
}

// Monitor watches open traded positions and closes them when the target,
// stop-loss, or a weakening-signal exit fires. Exit checks run in strict
// priority order: target first, then stop-loss, then the score-based
// exits. The score-based exits only engage while the position is not
// losing more than the small-loss band, so they never preempt the
// stop-loss on a fast drop.
type Monitor struct {
	loader *config.Loader
	client upbit.MarketData
	stream PriceSource
	engine *scoring.Engine
	store  database.SignalStore
	trader *trader.Trader
	notify *notification.Manager
	logger zerolog.Logger

	mu        sync.RWMutex
	lastCheck time.Time
	openCount int
}

// Score-based exits engage only while the loss is at most this deep.
// Deeper losses are left for the stop-loss to handle.
const aiExitLossBandPercent = -2.0

func New(
	loader *config.Loader,
	client upbit.MarketData,
	stream PriceSource,
	engine *scoring.Engine,
	store database.SignalStore,
	trd *trader.Trader,
	notify *notification.Manager,
	logger zerolog.Logger,
) *Monitor {
	return &Monitor{
		loader: loader,
		client: client,
		stream: stream,
		engine: engine,
		store:  store,
		trader: trd,
		notify: notify,
		logger: logger.With().Str("component", "monitor").Logger(),
	}
}

// RunCycle checks every open traded position once
func (m *Monitor) RunCycle(ctx context.Context) error {
	cfg := m.loader.Reload()
	if !cfg.MonitorConfig.Enabled {
		return nil
	}

	positions, err := m.store.GetActiveTradedSignals(ctx)
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}

	m.mu.Lock()
	m.lastCheck = time.Now()
	m.openCount = len(positions)
	m.mu.Unlock()

	for _, pos := range positions {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := m.checkPosition(ctx, pos, cfg); err != nil {
			m.logger.Warn().Err(err).Str("symbol", pos.Symbol).Int64("signal_id", pos.ID).Msg("position check failed")
		}
	}
	return nil
}

func (m *Monitor) checkPosition(ctx context.Context, pos *database.Signal, cfg *config.Config) error {
	price, err := m.currentPrice(ctx, pos.Symbol)
	if err != nil {
		return err
	}

	// Peak updates happen unconditionally so the trailing history stays
	// accurate even when the position survives this pass.
	if _, err := m.store.RaisePeakPrice(ctx, pos.ID, price); err != nil {
		if errors.Is(err, database.ErrAlreadyClosed) || errors.Is(err, database.ErrNotFound) {
			// Another loop finalized the row between the query and now.
			return nil
		}
		m.logger.Warn().Err(err).Int64("signal_id", pos.ID).Msg("peak update failed")
	}

	if price >= pos.TargetPrice {
		return m.exit(ctx, pos, price, database.StatusWin, database.CloseReasonTarget)
	}
	if price <= pos.StopLossPrice {
		return m.exit(ctx, pos, price, database.StatusLose, database.CloseReasonStopLoss)
	}

	pnlPercent := (price - pos.EntryPrice) / pos.EntryPrice * 100
	if pnlPercent < aiExitLossBandPercent {
		return nil
	}

	reason, triggered, err := m.weakeningExit(ctx, pos, price, cfg)
	if err != nil {
		return err
	}
	if !triggered {
		return nil
	}
	return m.exit(ctx, pos, price, database.StatusClosed, reason)
}

// weakeningExit re-scores the symbol and applies the three score-based
// exit rules against the fresh result.
func (m *Monitor) weakeningExit(ctx context.Context, pos *database.Signal, price float64, cfg *config.Config) (string, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	candles, err := m.client.GetDayCandles(callCtx, pos.Symbol, cfg.DetectorConfig.CandleCount, "")
	if err != nil {
		return "", false, fmt.Errorf("candles for re-score: %w", err)
	}
	result := m.engine.Score(pos.Symbol, candles, price)

	return EvaluateWeakening(pos.Score, result)
}

// EvaluateWeakening applies the score-based exit rules to a re-scored
// position. Exported so the rules are testable without a live exchange.
func EvaluateWeakening(entryScore float64, result *scoring.ScoreResult) (string, bool, error) {
	switch {
	case entryScore-result.Score >= 30:
		return database.CloseReasonSignalWeakening, true, nil
	case result.RSI > 70 && result.Score < 40:
		return database.CloseReasonOverbought, true, nil
	case result.VolumeRatio < 0.5 && result.Score < 50:
		return database.CloseReasonMomentumLoss, true, nil
	}
	return "", false, nil
}

// exit sells the position and records the closure using the actual fill
// price. A failed sell leaves the row open for the next pass to retry.
func (m *Monitor) exit(ctx context.Context, pos *database.Signal, observedPrice float64, status, reason string) error {
	exitPrice := observedPrice
	if pos.TradeVolume != nil && *pos.TradeVolume > 0 && m.trader != nil {
		fill, err := m.trader.ClosePosition(ctx, pos.Symbol, *pos.TradeVolume)
		if err != nil {
			return fmt.Errorf("sell failed, retrying next cycle: %w", err)
		}
		if fill.AvgPrice > 0 {
			exitPrice = fill.AvgPrice
		}
	}

	pnlPercent := (exitPrice - pos.EntryPrice) / pos.EntryPrice * 100
	var pnl float64
	if pos.TradeAmount != nil {
		pnl = *pos.TradeAmount * pnlPercent / 100
	}

	err := m.store.CloseSignal(ctx, pos.ID, database.Closure{
		Status:            status,
		ExitPrice:         exitPrice,
		CloseReason:       reason,
		ProfitLoss:        pnl,
		ProfitLossPercent: pnlPercent,
	})
	if errors.Is(err, database.ErrAlreadyClosed) {
		// Another path already finalized this row; the sell still happened,
		// which is the outcome that matters.
		return nil
	}
	if err != nil {
		return fmt.Errorf("record closure: %w", err)
	}

	m.logger.Info().
		Str("symbol", pos.Symbol).
		Str("status", status).
		Str("reason", reason).
		Float64("entry", pos.EntryPrice).
		Float64("exit", exitPrice).
		Float64("pnl_percent", pnlPercent).
		Msg("position closed")

	if sendErr := m.notify.SendPositionClosed(pos.Symbol, pos.EntryPrice, exitPrice, pnl, pnlPercent, reason); sendErr != nil {
		m.logger.Warn().Err(sendErr).Str("symbol", pos.Symbol).Msg("close notice failed")
	}
	return nil
}

// currentPrice prefers the websocket stream, falling back to REST
func (m *Monitor) currentPrice(ctx context.Context, market string) (float64, error) {
	if m.stream != nil {
		if price, ok := m.stream.Price(market); ok {
			return price, nil
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.GetCurrentPrice(callCtx, market)
}

// OpenPositions reports the count seen on the last pass, for the status API
func (m *Monitor) OpenPositions() (int, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openCount, m.lastCheck
}
