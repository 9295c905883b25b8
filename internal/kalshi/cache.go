package kalshi

import (
	"sync"
	"time"

	"kalshi-trader/internal/domain"
)

type cachedMarket struct {
	market domain.Market
	at     time.Time
}

// marketCache holds single-market reads for a short TTL.
type marketCache struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]cachedMarket
}

func newMarketCache(ttl time.Duration) *marketCache {
	return &marketCache{ttl: ttl, m: make(map[string]cachedMarket)}
}

func (c *marketCache) get(ticker string, now time.Time) (*domain.Market, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[ticker]
	if !ok || now.Sub(e.at) >= c.ttl {
		return nil, false
	}
	m := e.market
	return &m, true
}

func (c *marketCache) put(m domain.Market, now time.Time) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[m.Ticker] = cachedMarket{market: m, at: now}
}

func (c *marketCache) drop(ticker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, ticker)
}
