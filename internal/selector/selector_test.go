package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ln9swrd/coinpulse-sub000/config"
	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

func selectorConfig() config.SelectorConfig {
	return config.SelectorConfig{
		WatchCount:   2,
		RefreshHours: 24,
		MinPrice:     100,
		MaxPrice:     2000000,
	}
}

func seedTicker(mock *upbit.MockClient, symbol string, price, value, volume float64) {
	mock.Tickers[symbol] = upbit.Ticker{
		Market:            symbol,
		TradePrice:        price,
		AccTradePrice24h:  value,
		AccTradeVolume24h: volume,
	}
}

func newTestSelector(mock *upbit.MockClient) *Selector {
	return NewSelector(mock, NewWatchlistCache(nil), zerolog.Nop())
}

func TestRefreshFiltersWarningsAndNonKRW(t *testing.T) {
	mock := upbit.NewMockClient()
	mock.Markets = []upbit.Market{
		{Market: "KRW-AAA", MarketWarning: upbit.WarningNone},
		{Market: "KRW-BBB", MarketWarning: upbit.WarningCaution}, // flagged, must never rank
		{Market: "KRW-CCC", MarketWarning: upbit.WarningNone},
		{Market: "BTC-DDD", MarketWarning: upbit.WarningNone}, // wrong quote currency
	}
	seedTicker(mock, "KRW-AAA", 1000, 5e9, 1e6)
	seedTicker(mock, "KRW-BBB", 1000, 9e9, 9e6) // highest volume, still excluded
	seedTicker(mock, "KRW-CCC", 1000, 3e9, 1e6)

	sel := newTestSelector(mock)
	if err := sel.Refresh(context.Background(), selectorConfig()); err != nil {
		t.Fatal(err)
	}

	symbols := sel.Current(context.Background())
	if len(symbols) != 2 {
		t.Fatalf("expected 2 symbols, got %v", symbols)
	}
	for _, s := range symbols {
		if s == "KRW-BBB" {
			t.Error("a market under exchange warning must never be selected")
		}
		if s == "BTC-DDD" {
			t.Error("non-KRW markets must never be selected")
		}
	}
	if symbols[0] != "KRW-AAA" {
		t.Errorf("highest traded value should rank first, got %v", symbols)
	}
}

func TestRefreshFailureKeepsPreviousSelection(t *testing.T) {
	mock := upbit.NewMockClient()
	mock.Markets = []upbit.Market{{Market: "KRW-AAA", MarketWarning: upbit.WarningNone}}
	seedTicker(mock, "KRW-AAA", 1000, 5e9, 1e6)

	sel := newTestSelector(mock)
	cfg := selectorConfig()
	ctx := context.Background()

	if err := sel.Refresh(ctx, cfg); err != nil {
		t.Fatal(err)
	}

	mock.FailNext = errors.New("exchange down")
	if err := sel.Refresh(ctx, cfg); err == nil {
		t.Fatal("refresh should report the failure")
	}

	symbols := sel.Current(ctx)
	if len(symbols) != 1 || symbols[0] != "KRW-AAA" {
		t.Errorf("failed refresh must keep the previous selection, got %v", symbols)
	}
}

func TestRefreshRejectsEmptyUniverse(t *testing.T) {
	mock := upbit.NewMockClient()
	mock.Markets = []upbit.Market{
		{Market: "KRW-AAA", MarketWarning: upbit.WarningCaution},
	}

	sel := newTestSelector(mock)
	if err := sel.Refresh(context.Background(), selectorConfig()); err == nil {
		t.Error("an all-flagged universe must fail the refresh, not produce an empty watchlist")
	}
}

func TestSelectRefreshesOnlyWhenStale(t *testing.T) {
	mock := upbit.NewMockClient()
	mock.Markets = []upbit.Market{{Market: "KRW-AAA", MarketWarning: upbit.WarningNone}}
	seedTicker(mock, "KRW-AAA", 1000, 5e9, 1e6)

	sel := newTestSelector(mock)
	cfg := selectorConfig()
	ctx := context.Background()

	first := sel.Select(ctx, cfg)
	if len(first) != 1 {
		t.Fatalf("expected 1 symbol, got %v", first)
	}
	stamp := sel.LastRefresh()

	// Within the TTL the same selection is served without touching the
	// exchange, so an injected failure is never consumed.
	mock.FailNext = errors.New("should not be called")
	second := sel.Select(ctx, cfg)
	if len(second) != 1 || sel.LastRefresh() != stamp {
		t.Error("select within the TTL must not refresh")
	}
}

func TestPriceBandScore(t *testing.T) {
	if got := priceBandScore(1000, 100, 2000000); got != 1.0 {
		t.Errorf("in-band price should score 1.0, got %.2f", got)
	}
	if got := priceBandScore(50, 100, 2000000); got >= 0.5 {
		t.Errorf("sub-minimum price should be penalized, got %.2f", got)
	}
	if got := priceBandScore(4000000, 100, 2000000); got >= 0.5 {
		t.Errorf("super-maximum price should be penalized, got %.2f", got)
	}
}
