package kalshi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"kalshi-trader/internal/domain"
)

const positionsMaxPages = 20

// CreateOrder places a limit order. The price is expressed for req.Side and
// sent as the YES price. A client order id is generated when absent.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderStatus, error) {
	if !req.Price.Tradable() {
		return nil, fmt.Errorf("create order %s: price %d out of range", req.Ticker, req.Price)
	}
	if req.Count <= 0 {
		return nil, fmt.Errorf("create order %s: count %d", req.Ticker, req.Count)
	}
	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = c.newID()
	}

	body := createOrderRequest{
		Ticker:        req.Ticker,
		Side:          string(req.Side),
		Action:        string(req.Action),
		Type:          "limit",
		Count:         req.Count,
		YesPrice:      int64(req.Side.PriceFromYes(req.Price)), // complement is its own inverse
		ClientOrderID: clientID,
	}

	var resp orderResponse
	err := c.do(ctx, call{
		op:     "create_order",
		method: http.MethodPost,
		path:   "/portfolio/orders",
		body:   body,
		auth:   true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("create order %s: %w", req.Ticker, err)
	}
	if resp.Order.OrderID == "" {
		return nil, fmt.Errorf("create order %s: empty order id", req.Ticker)
	}

	st := resp.Order.toDomain()
	if st.Ticker == "" {
		st.Ticker = req.Ticker
	}
	if st.Side == "" {
		st.Side = req.Side
	}
	if st.Action == "" {
		st.Action = req.Action
	}
	return st, nil
}

// CancelOrder requests cancellation. 200 and 204 both mean accepted.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := "/portfolio/orders/" + url.PathEscape(orderID)
	if err := c.do(ctx, call{op: "cancel_order", method: http.MethodDelete, path: path, auth: true}, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetOrder returns the current order status.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*domain.OrderStatus, error) {
	var resp orderResponse
	path := "/portfolio/orders/" + url.PathEscape(orderID)
	if err := c.do(ctx, call{op: "get_order", method: http.MethodGet, path: path, auth: true}, &resp); err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	st := resp.Order.toDomain()
	if st.OrderID == "" {
		st.OrderID = orderID
	}
	return st, nil
}

// Balance returns available cash in cents.
func (c *Client) Balance(ctx context.Context) (domain.Cents, error) {
	var resp balanceResponse
	if err := c.do(ctx, call{op: "balance", method: http.MethodGet, path: "/portfolio/balance", auth: true}, &resp); err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return domain.Cents(resp.Balance), nil
}

// Positions returns nonzero positions held on the account.
func (c *Client) Positions(ctx context.Context) ([]domain.ExchangePosition, error) {
	var out []domain.ExchangePosition
	cursor := ""
	for page := 0; page < positionsMaxPages; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(DefaultMarketPageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var resp positionsResponse
		err := c.do(ctx, call{
			op:     "positions",
			method: http.MethodGet,
			path:   "/portfolio/positions",
			query:  q,
			auth:   true,
		}, &resp)
		if err != nil {
			return nil, fmt.Errorf("get positions: %w", err)
		}
		for _, p := range resp.MarketPositions {
			if p.Ticker == "" || p.Position == 0 {
				continue
			}
			out = append(out, domain.ExchangePosition{Ticker: p.Ticker, Position: p.Position})
		}
		if resp.Cursor == "" || len(resp.MarketPositions) == 0 {
			break
		}
		cursor = resp.Cursor
	}
	return out, nil
}
