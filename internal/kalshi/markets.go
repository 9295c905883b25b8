package kalshi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/gateway"
)

// Paging defaults.
const (
	DefaultTradePageSize  = 1000
	DefaultTradeMaxPages  = 15
	DefaultMarketPageSize = 200
	DefaultMarketMaxPages = 200
	eventsPageSize        = 100
)

// RecentTrades pages backwards through public trades until Since, newest first.
func (c *Client) RecentTrades(ctx context.Context, f gateway.TradeFilter) ([]domain.Trade, error) {
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = DefaultTradePageSize
	}
	maxPages := f.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultTradeMaxPages
	}

	var out []domain.Trade
	cursor := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(pageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		if f.Ticker != "" {
			q.Set("ticker", f.Ticker)
		}
		if !f.Since.IsZero() {
			q.Set("min_ts", strconv.FormatInt(f.Since.Unix(), 10))
		}

		var resp tradesResponse
		if err := c.do(ctx, call{op: "trades", method: http.MethodGet, path: "/markets/trades", query: q}, &resp); err != nil {
			if len(out) > 0 && !errors.Is(err, context.Canceled) {
				c.log.Warn().Err(err).Int("page", page).Msg("trade paging stopped early")
				return out, nil
			}
			return nil, fmt.Errorf("list trades: %w", err)
		}

		reachedCutoff := false
		for _, w := range resp.Trades {
			t := w.toDomain()
			if !f.Since.IsZero() && t.CreatedAt.Before(f.Since) {
				reachedCutoff = true
				continue
			}
			out = append(out, t)
		}
		if reachedCutoff || resp.Cursor == "" || len(resp.Trades) == 0 {
			break
		}
		cursor = resp.Cursor
	}
	return out, nil
}

// OpenMarkets lists markets across pages.
func (c *Client) OpenMarkets(ctx context.Context, f gateway.MarketFilter) ([]domain.Market, error) {
	status := f.Status
	if status == "" {
		status = domain.MarketOpen
	}
	maxPages := f.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMarketMaxPages
	}

	now := c.now()
	var out []domain.Market
	cursor := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("status", status)
		q.Set("limit", strconv.Itoa(DefaultMarketPageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		if f.SeriesTicker != "" {
			q.Set("series_ticker", f.SeriesTicker)
		}
		if f.EventTicker != "" {
			q.Set("event_ticker", f.EventTicker)
		}

		var resp marketsResponse
		if err := c.do(ctx, call{op: "markets", method: http.MethodGet, path: "/markets", query: q}, &resp); err != nil {
			return nil, fmt.Errorf("list markets: %w", err)
		}
		for _, w := range resp.Markets {
			m := w.toDomain()
			if f.SeriesTicker != "" {
				m.SeriesTicker = f.SeriesTicker
			}
			if m.Category == "" {
				m.Category = c.cachedCategory(m.EventTicker)
			}
			c.markets.put(m, now)
			out = append(out, m)
		}
		if resp.Cursor == "" || len(resp.Markets) == 0 {
			break
		}
		cursor = resp.Cursor
	}
	return out, nil
}

// GetMarket returns a single market, served from cache within the TTL.
// The exchange category is filled from the parent event.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*domain.Market, error) {
	now := c.now()
	if m, ok := c.markets.get(ticker, now); ok {
		return m, nil
	}

	var resp marketResponse
	path := "/markets/" + url.PathEscape(ticker)
	if err := c.do(ctx, call{op: "market", method: http.MethodGet, path: path}, &resp); err != nil {
		return nil, fmt.Errorf("get market %s: %w", ticker, err)
	}
	m := resp.Market.toDomain()
	if m.Category == "" {
		m.Category = c.eventCategory(ctx, m.EventTicker)
	}
	c.markets.put(m, now)
	return &m, nil
}

// Invalidate implements gateway.CacheInvalidator.
func (c *Client) Invalidate(ticker string) {
	c.markets.drop(ticker)
}

func (c *Client) cachedCategory(eventTicker string) string {
	if v, ok := c.categories.Load(eventTicker); ok {
		return v.(string)
	}
	return ""
}

// eventCategory looks up and caches an event's category. Failures yield "".
func (c *Client) eventCategory(ctx context.Context, eventTicker string) string {
	if eventTicker == "" {
		return ""
	}
	if v, ok := c.categories.Load(eventTicker); ok {
		return v.(string)
	}
	var resp eventResponse
	path := "/events/" + url.PathEscape(eventTicker)
	if err := c.do(ctx, call{op: "event", method: http.MethodGet, path: path}, &resp); err != nil {
		return ""
	}
	c.categories.Store(eventTicker, resp.Event.Category)
	return resp.Event.Category
}

// GetOrderbook returns resting bids for both sides.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (*domain.Orderbook, error) {
	var resp orderbookResponse
	path := "/markets/" + url.PathEscape(ticker) + "/orderbook"
	if err := c.do(ctx, call{op: "orderbook", method: http.MethodGet, path: path}, &resp); err != nil {
		return nil, fmt.Errorf("get orderbook %s: %w", ticker, err)
	}
	return resp.Orderbook.toDomain(ticker), nil
}

// ListSeries returns every series on the venue.
func (c *Client) ListSeries(ctx context.Context) ([]domain.Series, error) {
	q := url.Values{}
	q.Set("limit", "10000")

	var resp seriesResponse
	if err := c.do(ctx, call{op: "series", method: http.MethodGet, path: "/series", query: q}, &resp); err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	out := make([]domain.Series, 0, len(resp.Series))
	for _, s := range resp.Series {
		out = append(out, domain.Series{Ticker: s.Ticker, Title: s.Title, Category: s.Category})
	}
	return out, nil
}

// Milestones returns event schedules keyed by event ticker.
// Primary event links take precedence over related ones.
// A failing series is logged and skipped.
func (c *Client) Milestones(ctx context.Context, seriesTickers []string) (map[string]domain.Milestone, error) {
	primary := make(map[string]domain.Milestone)
	related := make(map[string]domain.Milestone)

	var lastErr error
	failed := 0
	for _, series := range seriesTickers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q := url.Values{}
		q.Set("series_ticker", series)
		q.Set("limit", strconv.Itoa(eventsPageSize))
		q.Set("with_milestones", "true")

		var resp eventsResponse
		if err := c.do(ctx, call{op: "milestones", method: http.MethodGet, path: "/events", query: q}, &resp); err != nil {
			c.log.Warn().Err(err).Str("series", series).Msg("milestones fetch failed")
			lastErr = err
			failed++
			continue
		}

		for _, w := range resp.Milestones {
			start := parseTime(w.StartDate)
			if start.IsZero() {
				continue
			}
			ms := domain.Milestone{Title: w.Title, Start: start, End: parseTime(w.EndDate)}
			for _, et := range w.PrimaryEventTickers {
				ms.EventTicker = et
				primary[et] = ms
			}
			for _, et := range w.RelatedEventTickers {
				if _, ok := related[et]; !ok {
					ms.EventTicker = et
					related[et] = ms
				}
			}
		}
	}
	if failed > 0 && failed == len(seriesTickers) {
		return nil, fmt.Errorf("milestones: %w", lastErr)
	}

	for et, ms := range related {
		if _, ok := primary[et]; !ok {
			primary[et] = ms
		}
	}
	return primary, nil
}
