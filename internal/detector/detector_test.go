package detector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ln9swrd/coinpulse-sub000/config"
	"github.com/ln9swrd/coinpulse-sub000/internal/database"
	"github.com/ln9swrd/coinpulse-sub000/internal/notification"
	"github.com/ln9swrd/coinpulse-sub000/internal/scoring"
	"github.com/ln9swrd/coinpulse-sub000/internal/selector"
	"github.com/ln9swrd/coinpulse-sub000/internal/trader"
	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

// hotCandles builds a history that scores above the alert threshold: a
// quiet base, a week of building volume in a tight range and a first-day
// volume spike with modest momentum.
func hotCandles() []upbit.Candle {
	candles := make([]upbit.Candle, 60)
	for i := 15; i < 60; i++ {
		candles[i] = upbit.Candle{OpeningPrice: 1070, HighPrice: 1078, LowPrice: 1066, TradePrice: 1072, CandleAccTradeVolume: 100}
	}
	candles[25].HighPrice = 1090
	for i := 6; i <= 14; i++ {
		close := 1000.0 + float64(i-5)*8
		candles[i] = upbit.Candle{OpeningPrice: close + 8, HighPrice: close + 12, LowPrice: close - 6, TradePrice: close, CandleAccTradeVolume: 100}
	}
	candles[5] = upbit.Candle{OpeningPrice: 995, HighPrice: 1008, LowPrice: 990, TradePrice: 1000, CandleAccTradeVolume: 185}
	candles[4] = upbit.Candle{OpeningPrice: 1000, HighPrice: 1015, LowPrice: 985, TradePrice: 1010, CandleAccTradeVolume: 185}
	candles[3] = upbit.Candle{OpeningPrice: 1010, HighPrice: 1022, LowPrice: 1006, TradePrice: 1018, CandleAccTradeVolume: 185}
	candles[2] = upbit.Candle{OpeningPrice: 1018, HighPrice: 1030, LowPrice: 1014, TradePrice: 1026, CandleAccTradeVolume: 185}
	candles[1] = upbit.Candle{OpeningPrice: 1026, HighPrice: 1038, LowPrice: 1022, TradePrice: 1034, CandleAccTradeVolume: 160}
	candles[0] = upbit.Candle{OpeningPrice: 1034, HighPrice: 1048, LowPrice: 1030, TradePrice: 1045, CandleAccTradeVolume: 262}
	return candles
}

var errSeeded = errors.New("seeded exchange failure")

// coldCandles builds a flat history that scores near zero
func coldCandles() []upbit.Candle {
	candles := make([]upbit.Candle, 60)
	for i := range candles {
		candles[i] = upbit.Candle{OpeningPrice: 500, HighPrice: 520, LowPrice: 480, TradePrice: 500, CandleAccTradeVolume: 100}
	}
	return candles
}

func newTestLoader(t *testing.T, body string) *config.Loader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return config.NewLoader(path, cfg)
}

func newTestDetector(t *testing.T, loader *config.Loader, mock *upbit.MockClient, store database.SignalStore, trd *trader.Trader) *Detector {
	t.Helper()
	logger := zerolog.Nop()
	sel := selector.NewSelector(mock, selector.NewWatchlistCache(nil), logger)
	return New(loader, mock, sel, scoring.NewEngine(), store, NewDeduper(),
		notification.NewManager(false), trd, logger)
}

func seedMarket(mock *upbit.MockClient, symbol string, candles []upbit.Candle, price float64) {
	mock.Markets = append(mock.Markets, upbit.Market{Market: symbol, MarketWarning: upbit.WarningNone})
	mock.Tickers[symbol] = upbit.Ticker{
		Market:            symbol,
		TradePrice:        price,
		AccTradePrice24h:  1e9,
		AccTradeVolume24h: 1e6,
	}
	mock.Candles[symbol] = candles
}

func TestDetectorAlertsOncePerHotStreak(t *testing.T) {
	loader := newTestLoader(t, `{}`)
	mock := upbit.NewMockClient()
	seedMarket(mock, "KRW-HOT", hotCandles(), 1050)
	store := database.NewMemoryStore()

	det := newTestDetector(t, loader, mock, store, nil)
	ctx := context.Background()

	if err := det.RunCycle(ctx); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	if err := det.RunCycle(ctx); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}

	pending, err := store.GetUntradedPendingSignals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("a symbol staying hot across cycles must alert once, got %d signals", len(pending))
	}

	sig := pending[0]
	if sig.Symbol != "KRW-HOT" {
		t.Errorf("unexpected symbol %s", sig.Symbol)
	}
	if sig.EntryPrice != 1050 {
		t.Errorf("entry should be the observed price 1050, got %.1f", sig.EntryPrice)
	}
	if sig.TargetPrice <= sig.EntryPrice || sig.StopLossPrice >= sig.EntryPrice {
		t.Errorf("target/stop must bracket the entry: entry=%.1f target=%.1f stop=%.1f",
			sig.EntryPrice, sig.TargetPrice, sig.StopLossPrice)
	}
	if sig.Traded {
		t.Error("auto-trading is off, signal must stay alert-only")
	}
}

func TestDetectorReAlertsAfterCoolOff(t *testing.T) {
	loader := newTestLoader(t, `{}`)
	mock := upbit.NewMockClient()
	seedMarket(mock, "KRW-HOT", hotCandles(), 1050)
	store := database.NewMemoryStore()

	det := newTestDetector(t, loader, mock, store, nil)
	ctx := context.Background()

	if err := det.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	// Cool off: the deduper must evict the symbol
	mock.Candles["KRW-HOT"] = coldCandles()
	mock.SetPrice("KRW-HOT", 500)
	if err := det.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	// Hot again: a fresh alert is expected
	mock.Candles["KRW-HOT"] = hotCandles()
	mock.SetPrice("KRW-HOT", 1050)
	if err := det.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	pending, _ := store.GetUntradedPendingSignals(ctx)
	if len(pending) != 2 {
		t.Fatalf("a symbol that cooled off and reheated should alert twice, got %d", len(pending))
	}
}

func TestDetectorKeepsDedupeThroughTransientError(t *testing.T) {
	loader := newTestLoader(t, `{}`)
	mock := upbit.NewMockClient()
	seedMarket(mock, "KRW-HOT", hotCandles(), 1050)
	store := database.NewMemoryStore()

	det := newTestDetector(t, loader, mock, store, nil)
	ctx := context.Background()

	if err := det.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	// One cycle where the symbol's data fetch fails. It never cooled off,
	// so its dedup mark must survive the error.
	mock.FailNext = errSeeded
	if err := det.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	if err := det.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	pending, _ := store.GetUntradedPendingSignals(ctx)
	if len(pending) != 1 {
		t.Fatalf("a hot symbol with one failed fetch in between must alert once, got %d", len(pending))
	}
}

func TestDetectorAutoTradePath(t *testing.T) {
	loader := newTestLoader(t, `{"detector": {"auto_trade": true, "trade_amount_krw": 100000}}`)
	mock := upbit.NewMockClient()
	seedMarket(mock, "KRW-HOT", hotCandles(), 1050)
	store := database.NewMemoryStore()
	trd := trader.New(mock, zerolog.Nop())

	det := newTestDetector(t, loader, mock, store, trd)
	if err := det.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(mock.PlacedOrders) != 1 {
		t.Fatalf("expected exactly one buy order, got %d", len(mock.PlacedOrders))
	}
	order := mock.PlacedOrders[0]
	if order.Side != upbit.SideBid || order.OrdType != upbit.OrdTypePrice {
		t.Errorf("auto-trade should market-buy by KRW amount, got side=%s ord_type=%s", order.Side, order.OrdType)
	}

	active, err := store.GetActiveTradedSignals(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("expected one active traded signal, got %d", len(active))
	}
	sig := active[0]
	if !sig.Traded || sig.Status != database.StatusActive {
		t.Errorf("traded signal should be active, got traded=%v status=%s", sig.Traded, sig.Status)
	}
	if sig.OrderUUID == nil || *sig.OrderUUID == "" {
		t.Error("traded signal should record the order UUID")
	}
}

func TestDetectorSkipsFailingSymbol(t *testing.T) {
	loader := newTestLoader(t, `{}`)
	mock := upbit.NewMockClient()
	seedMarket(mock, "KRW-AAA", hotCandles(), 1050)
	seedMarket(mock, "KRW-BBB", hotCandles(), 1050)
	store := database.NewMemoryStore()

	det := newTestDetector(t, loader, mock, store, nil)
	ctx := context.Background()

	if err := det.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	pending, _ := store.GetUntradedPendingSignals(ctx)
	if len(pending) != 2 {
		t.Fatalf("expected both symbols to alert, got %d", len(pending))
	}
	stats := det.LastCycle()
	if stats.SymbolsScanned != 2 || stats.AlertsEmitted != 2 {
		t.Errorf("cycle stats off: scanned=%d alerts=%d", stats.SymbolsScanned, stats.AlertsEmitted)
	}

	// The watchlist is fresh now, so the next exchange call the cycle makes
	// is the first symbol's candle fetch. Failing it must not abort the
	// cycle or disturb the other symbol.
	mock.FailNext = errSeeded
	if err := det.RunCycle(ctx); err != nil {
		t.Fatalf("one failing symbol must not fail the cycle: %v", err)
	}
	if got := det.LastCycle().Errors; got != 1 {
		t.Errorf("expected 1 per-symbol error, got %d", got)
	}
}

func TestDetectorDisabled(t *testing.T) {
	loader := newTestLoader(t, `{"detector": {"enabled": false}}`)
	mock := upbit.NewMockClient()
	seedMarket(mock, "KRW-HOT", hotCandles(), 1050)
	store := database.NewMemoryStore()

	det := newTestDetector(t, loader, mock, store, nil)
	if err := det.RunCycle(context.Background()); err != nil {
		t.Fatalf("disabled detector should no-op, got %v", err)
	}
	pending, _ := store.GetUntradedPendingSignals(context.Background())
	if len(pending) != 0 {
		t.Errorf("disabled detector must not emit signals, got %d", len(pending))
	}
}
