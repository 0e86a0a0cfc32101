package selector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ln9swrd/coinpulse-sub000/config"
	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

// WatchlistEntry is one ranked candidate; the set is recomputed wholesale
// on every refresh and never persisted beyond the cache.
type WatchlistEntry struct {
	Symbol string  `json:"symbol"`
	Score  float64 `json:"score"`
}

// Selector ranks KRW markets by liquidity and maintains the bounded
// watchlist the detector scans. A refresh that fails at any stage falls
// back to the previous selection: an empty watchlist would silently stop
// detection, which is worse than a stale one.
type Selector struct {
	client upbit.MarketData
	cache  *WatchlistCache
	logger zerolog.Logger

	mu          sync.RWMutex
	entries     []WatchlistEntry
	lastRefresh time.Time
}

// NewSelector creates a market selector
func NewSelector(client upbit.MarketData, cache *WatchlistCache, logger zerolog.Logger) *Selector {
	return &Selector{
		client: client,
		cache:  cache,
		logger: logger.With().Str("component", "selector").Logger(),
	}
}

// Select returns the current watchlist, refreshing it first when the TTL
// has lapsed.
func (s *Selector) Select(ctx context.Context, cfg config.SelectorConfig) []string {
	s.mu.RLock()
	age := time.Since(s.lastRefresh)
	have := len(s.entries) > 0
	s.mu.RUnlock()

	ttl := time.Duration(cfg.RefreshHours) * time.Hour
	if !have || age >= ttl {
		if err := s.Refresh(ctx, cfg); err != nil {
			s.logger.Warn().Err(err).Msg("watchlist refresh failed, serving previous selection")
		}
	}
	return s.Current(ctx)
}

// Current returns the watchlist symbols without refreshing
func (s *Selector) Current(ctx context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) > 0 {
		out := make([]string, len(s.entries))
		for i, e := range s.entries {
			out[i] = e.Symbol
		}
		return out
	}
	// Fresh process with no successful refresh yet: try the cache.
	return s.cache.Load(ctx)
}

// Refresh recomputes the watchlist from scratch. Any empty stage aborts
// the refresh and keeps the previous selection.
func (s *Selector) Refresh(ctx context.Context, cfg config.SelectorConfig) error {
	markets, err := s.client.GetMarkets(ctx)
	if err != nil {
		return fmt.Errorf("market list: %w", err)
	}

	candidates := make([]string, 0, len(markets))
	for _, m := range markets {
		if !strings.HasPrefix(m.Market, "KRW-") {
			continue
		}
		// A warning flag means the exchange itself thinks the market is
		// unhealthy; volume rank never overrides that.
		if m.MarketWarning != "" && m.MarketWarning != upbit.WarningNone {
			continue
		}
		candidates = append(candidates, m.Market)
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no eligible markets after warning filter")
	}

	tickers, err := s.client.GetTickers(ctx, candidates)
	if err != nil {
		return fmt.Errorf("tickers: %w", err)
	}
	if len(tickers) == 0 {
		return fmt.Errorf("empty ticker response")
	}

	entries := rankTickers(tickers, cfg)
	if len(entries) == 0 {
		return fmt.Errorf("ranking produced no entries")
	}

	if cfg.WatchCount > 0 && len(entries) > cfg.WatchCount {
		entries = entries[:cfg.WatchCount]
	}

	symbols := make([]string, len(entries))
	for i, e := range entries {
		symbols[i] = e.Symbol
	}

	s.mu.Lock()
	s.entries = entries
	s.lastRefresh = time.Now()
	s.mu.Unlock()

	s.cache.Store(ctx, symbols, time.Duration(cfg.RefreshHours+1)*time.Hour)
	s.logger.Info().Int("markets", len(markets)).Int("selected", len(symbols)).Msg("watchlist refreshed")
	return nil
}

// Entries returns the ranked watchlist with scores, for the status API
func (s *Selector) Entries() []WatchlistEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]WatchlistEntry(nil), s.entries...)
}

// LastRefresh returns when the watchlist was last recomputed
func (s *Selector) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

// rankTickers scores every ticker by weighted 24h traded value, 24h volume
// and price band, then sorts descending.
func rankTickers(tickers []upbit.Ticker, cfg config.SelectorConfig) []WatchlistEntry {
	var maxValue, maxVolume float64
	for _, t := range tickers {
		if t.AccTradePrice24h > maxValue {
			maxValue = t.AccTradePrice24h
		}
		if t.AccTradeVolume24h > maxVolume {
			maxVolume = t.AccTradeVolume24h
		}
	}
	if maxValue == 0 {
		return nil
	}

	entries := make([]WatchlistEntry, 0, len(tickers))
	for _, t := range tickers {
		if t.TradePrice <= 0 {
			continue
		}

		score := 0.7 * (t.AccTradePrice24h / maxValue)
		if maxVolume > 0 {
			score += 0.2 * (t.AccTradeVolume24h / maxVolume)
		}
		score += 0.1 * priceBandScore(t.TradePrice, cfg.MinPrice, cfg.MaxPrice)

		entries = append(entries, WatchlistEntry{Symbol: t.Market, Score: score})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score == entries[j].Score {
			return entries[i].Symbol < entries[j].Symbol
		}
		return entries[i].Score > entries[j].Score
	})
	return entries
}

// priceBandScore penalizes the extremes: very cheap coins are pump bait,
// very expensive ones rarely surge.
func priceBandScore(price, minPrice, maxPrice float64) float64 {
	switch {
	case minPrice > 0 && price < minPrice:
		return price / minPrice * 0.5
	case maxPrice > 0 && price > maxPrice:
		return maxPrice / price * 0.5
	default:
		return 1.0
	}
}
