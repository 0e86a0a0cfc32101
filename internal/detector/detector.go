package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ln9swrd/coinpulse-sub000/config"
	"github.com/ln9swrd/coinpulse-sub000/internal/database"
	"github.com/ln9swrd/coinpulse-sub000/internal/notification"
	"github.com/ln9swrd/coinpulse-sub000/internal/scoring"
	"github.com/ln9swrd/coinpulse-sub000/internal/selector"
	"github.com/ln9swrd/coinpulse-sub000/internal/trader"
	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

// CycleStats summarizes the most recent detection pass
type CycleStats struct {
	StartedAt      time.Time `json:"started_at"`
	Duration       string    `json:"duration"`
	SymbolsScanned int       `json:"symbols_scanned"`
	AlertsEmitted  int       `json:"alerts_emitted"`
	TradesOpened   int       `json:"trades_opened"`
	Errors         int       `json:"errors"`
}

// Detector runs the detection cycle: watchlist -> score each symbol ->
// deduplicate -> persist signal -> notify -> optionally open a position.
// Symbols are walked strictly in watchlist order and sequentially; the
// client's pacing provides the inter-request spacing the exchange expects.
type Detector struct {
	loader   *config.Loader
	client   upbit.MarketData
	selector *selector.Selector
	engine   *scoring.Engine
	store    database.SignalStore
	dedup    *Deduper
	notifier *notification.Manager
	trader   *trader.Trader
	logger   zerolog.Logger

	// Called after each cycle with the active watchlist, used to retarget
	// the websocket price stream.
	WatchlistChanged func([]string)

	mu        sync.RWMutex
	lastCycle CycleStats
}

// New creates a detector
func New(
	loader *config.Loader,
	client upbit.MarketData,
	sel *selector.Selector,
	engine *scoring.Engine,
	store database.SignalStore,
	dedup *Deduper,
	notifier *notification.Manager,
	trd *trader.Trader,
	logger zerolog.Logger,
) *Detector {
	return &Detector{
		loader:   loader,
		client:   client,
		selector: sel,
		engine:   engine,
		store:    store,
		dedup:    dedup,
		notifier: notifier,
		trader:   trd,
		logger:   logger.With().Str("component", "detector").Logger(),
	}
}

// RunCycle executes one full detection pass. A single symbol failing never
// aborts the cycle; an empty watchlist does, because it means detection
// would silently scan nothing.
func (d *Detector) RunCycle(ctx context.Context) error {
	cfg := d.loader.Reload()
	if !cfg.DetectorConfig.Enabled {
		return nil
	}

	start := time.Now()
	stats := CycleStats{StartedAt: start}

	watchlist := d.selector.Select(ctx, cfg.SelectorConfig)
	if len(watchlist) == 0 {
		return fmt.Errorf("empty watchlist, skipping cycle")
	}
	if d.WatchlistChanged != nil {
		d.WatchlistChanged(watchlist)
	}

	stillHot := make(map[string]bool)
	for _, symbol := range watchlist {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := d.scoreSymbol(ctx, symbol, cfg)
		if err != nil {
			stats.Errors++
			d.logger.Warn().Err(err).Str("symbol", symbol).Msg("symbol skipped")
			// An errored symbol never cooled off; keep its dedup mark so a
			// transient fetch failure cannot cause a duplicate alert.
			if d.dedup.Marked(symbol) {
				stillHot[symbol] = true
			}
			continue
		}

		if result.Score < cfg.DetectorConfig.MinAlertScore {
			continue
		}
		stillHot[symbol] = true

		if d.dedup.Marked(symbol) {
			continue
		}

		opened, err := d.emitSignal(ctx, result, cfg)
		if err != nil {
			stats.Errors++
			d.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to emit signal")
			continue
		}

		stats.AlertsEmitted++
		if opened {
			stats.TradesOpened++
		}
		d.dedup.Mark(symbol)
	}

	// Symbols that cooled off may alert again next time the setup fires.
	d.dedup.Reconcile(stillHot)

	stats.Duration = time.Since(start).String()
	stats.SymbolsScanned = len(watchlist)

	d.mu.Lock()
	d.lastCycle = stats
	d.mu.Unlock()

	d.logger.Info().
		Int("scanned", stats.SymbolsScanned).
		Int("alerts", stats.AlertsEmitted).
		Int("trades", stats.TradesOpened).
		Int("errors", stats.Errors).
		Dur("took", time.Since(start)).
		Msg("detection cycle complete")
	return nil
}

// scoreSymbol fetches fresh market data and runs the scoring engine
func (d *Detector) scoreSymbol(ctx context.Context, symbol string, cfg *config.Config) (*scoring.ScoreResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	candles, err := d.client.GetDayCandles(callCtx, symbol, cfg.DetectorConfig.CandleCount, "")
	if err != nil {
		return nil, fmt.Errorf("candles: %w", err)
	}

	price, err := d.client.GetCurrentPrice(callCtx, symbol)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}

	return d.engine.Score(symbol, candles, price), nil
}

// emitSignal persists the signal row, dispatches the alert and, on the
// auto-trading path, opens the position. Returns whether a trade opened.
func (d *Detector) emitSignal(ctx context.Context, result *scoring.ScoreResult, cfg *config.Config) (bool, error) {
	det := cfg.DetectorConfig

	breakdown, err := json.Marshal(result.Signals)
	if err != nil {
		breakdown = nil
	}

	signal := &database.Signal{
		Symbol:         result.Symbol,
		DetectedAt:     result.EvaluatedAt,
		Score:          result.Score,
		Pattern:        result.Pattern,
		Timing:         result.Timing,
		Recommendation: result.Recommendation,
		Breakdown:      breakdown,
		EntryPrice:     result.CurrentPrice,
		TargetPrice:    result.CurrentPrice * (1 + det.TargetPercent/100),
		StopLossPrice:  result.CurrentPrice * (1 - det.StopLossPercent/100),
		PeakPrice:      result.CurrentPrice,
		Status:         database.StatusPending,
	}

	if err := d.store.CreateSignal(ctx, signal); err != nil {
		return false, fmt.Errorf("persist signal: %w", err)
	}

	d.logger.Info().
		Str("symbol", signal.Symbol).
		Float64("score", signal.Score).
		Str("pattern", signal.Pattern).
		Str("timing", signal.Timing).
		Str("recommendation", signal.Recommendation).
		Msg("surge signal detected")

	// Alert delivery failing is an operator problem, not a cycle problem
	if err := d.notifier.SendSurgeAlert(result, signal.TargetPrice, signal.StopLossPrice); err != nil {
		d.logger.Warn().Err(err).Str("symbol", signal.Symbol).Msg("alert dispatch failed")
	}

	if !d.shouldTrade(result, det) {
		return false, nil
	}

	fill, err := d.trader.OpenPosition(ctx, signal.Symbol, det.TradeAmountKRW)
	if err != nil {
		// The alert already went out; the signal simply stays alert-only.
		d.logger.Error().Err(err).Str("symbol", signal.Symbol).Msg("auto-trade open failed")
		return false, nil
	}

	if err := d.store.MarkTraded(ctx, signal.ID, fill.AmountKRW, fill.Volume, fill.OrderUUID); err != nil {
		d.logger.Error().Err(err).Int64("signal_id", signal.ID).Msg("failed to record trade on signal")
		return false, nil
	}

	if err := d.notifier.SendPositionOpened(signal.Symbol, fill.AvgPrice, fill.Volume, fill.AmountKRW); err != nil {
		d.logger.Warn().Err(err).Str("symbol", signal.Symbol).Msg("open notice failed")
	}
	return true, nil
}

func (d *Detector) shouldTrade(result *scoring.ScoreResult, det config.DetectorConfig) bool {
	if !det.AutoTrade || d.trader == nil {
		return false
	}
	if result.Score < det.MinTradeScore {
		return false
	}
	// Timing already gated the recommendation; only act on buy verdicts.
	return result.Recommendation == scoring.RecStrongBuy || result.Recommendation == scoring.RecBuy
}

// LastCycle returns stats from the most recent pass, for the status API
func (d *Detector) LastCycle() CycleStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastCycle
}
