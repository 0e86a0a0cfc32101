package selector

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const watchlistKey = "coinpulse:watchlist"

// WatchlistCache persists the last good market selection. The watchlist is
// a pure cache: losing it only costs a re-selection, so redis is optional
// and an in-memory shadow always holds the latest copy.
type WatchlistCache struct {
	rdb *redis.Client // nil when redis is disabled

	mu     sync.RWMutex
	shadow []string
}

// NewWatchlistCache creates a cache. rdb may be nil.
func NewWatchlistCache(rdb *redis.Client) *WatchlistCache {
	return &WatchlistCache{rdb: rdb}
}

// Store saves a selection to redis and the in-memory shadow
func (c *WatchlistCache) Store(ctx context.Context, symbols []string, ttl time.Duration) {
	c.mu.Lock()
	c.shadow = append([]string(nil), symbols...)
	c.mu.Unlock()

	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(symbols)
	if err != nil {
		return
	}
	// Redis keeps the watchlist across restarts; failures are tolerable
	// because the shadow copy still serves this process.
	c.rdb.Set(ctx, watchlistKey, data, ttl)
}

// Load returns the cached selection, preferring the in-memory shadow and
// falling back to redis (e.g. right after a restart).
func (c *WatchlistCache) Load(ctx context.Context) []string {
	c.mu.RLock()
	if len(c.shadow) > 0 {
		out := append([]string(nil), c.shadow...)
		c.mu.RUnlock()
		return out
	}
	c.mu.RUnlock()

	if c.rdb == nil {
		return nil
	}

	data, err := c.rdb.Get(ctx, watchlistKey).Bytes()
	if err != nil {
		return nil
	}
	var symbols []string
	if err := json.Unmarshal(data, &symbols); err != nil {
		return nil
	}

	c.mu.Lock()
	c.shadow = append([]string(nil), symbols...)
	c.mu.Unlock()
	return symbols
}
