package kalshi

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kalshi-trader/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// dollarsToCents converts a dollar amount to whole cents, rounding half away from zero.
func dollarsToCents(d decimal.NullDecimal) domain.Cents {
	if !d.Valid {
		return 0
	}
	return domain.Cents(d.Decimal.Mul(hundred).Round(0).IntPart())
}

// price prefers the dollar field and falls back to the legacy cent field.
func price(dollars decimal.NullDecimal, cents *int64) domain.Cents {
	if dollars.Valid {
		return dollarsToCents(dollars)
	}
	if cents != nil {
		return domain.Cents(*cents)
	}
	return 0
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// seriesOf derives the series ticker from an event ticker (prefix before the first dash).
func seriesOf(eventTicker string) string {
	if i := strings.IndexByte(eventTicker, '-'); i > 0 {
		return eventTicker[:i]
	}
	return eventTicker
}

type wireMarket struct {
	Ticker           string              `json:"ticker"`
	EventTicker      string              `json:"event_ticker"`
	Title            string              `json:"title"`
	Subtitle         string              `json:"subtitle"`
	YesSubTitle      string              `json:"yes_sub_title"`
	Category         string              `json:"category"`
	Status           string              `json:"status"`
	Result           string              `json:"result"`
	YesBid           *int64              `json:"yes_bid"`
	YesAsk           *int64              `json:"yes_ask"`
	LastPrice        *int64              `json:"last_price"`
	YesBidDollars    decimal.NullDecimal `json:"yes_bid_dollars"`
	YesAskDollars    decimal.NullDecimal `json:"yes_ask_dollars"`
	LastPriceDollars decimal.NullDecimal `json:"last_price_dollars"`
	Volume24h        int64               `json:"volume_24h"`
	OpenInterest     int64               `json:"open_interest"`
	CloseTime        string              `json:"close_time"`
}

func (w wireMarket) toDomain() domain.Market {
	sub := w.Subtitle
	if sub == "" {
		sub = w.YesSubTitle
	}
	return domain.Market{
		Ticker:       w.Ticker,
		EventTicker:  w.EventTicker,
		SeriesTicker: seriesOf(w.EventTicker),
		Title:        w.Title,
		Subtitle:     sub,
		Category:     w.Category,
		Status:       w.Status,
		Result:       strings.ToLower(w.Result),
		YesBid:       price(w.YesBidDollars, w.YesBid),
		YesAsk:       price(w.YesAskDollars, w.YesAsk),
		LastPrice:    price(w.LastPriceDollars, w.LastPrice),
		Volume24h:    w.Volume24h,
		OpenInterest: w.OpenInterest,
		CloseTime:    parseTime(w.CloseTime),
	}
}

type marketsResponse struct {
	Markets []wireMarket `json:"markets"`
	Cursor  string       `json:"cursor"`
}

type marketResponse struct {
	Market wireMarket `json:"market"`
}

type wireTrade struct {
	TradeID         string              `json:"trade_id"`
	Ticker          string              `json:"ticker"`
	Count           int                 `json:"count"`
	YesPrice        *int64              `json:"yes_price"`
	YesPriceDollars decimal.NullDecimal `json:"yes_price_dollars"`
	TakerSide       string              `json:"taker_side"`
	CreatedTime     string              `json:"created_time"`
}

func (w wireTrade) toDomain() domain.Trade {
	return domain.Trade{
		ID:        w.TradeID,
		Ticker:    w.Ticker,
		Count:     w.Count,
		YesPrice:  price(w.YesPriceDollars, w.YesPrice),
		TakerSide: domain.Side(strings.ToLower(w.TakerSide)),
		CreatedAt: parseTime(w.CreatedTime),
	}
}

type tradesResponse struct {
	Trades []wireTrade `json:"trades"`
	Cursor string      `json:"cursor"`
}

type wireOrderbook struct {
	Yes        [][]decimal.Decimal `json:"yes"`
	No         [][]decimal.Decimal `json:"no"`
	YesDollars [][]decimal.Decimal `json:"yes_dollars"`
	NoDollars  [][]decimal.Decimal `json:"no_dollars"`
}

type orderbookResponse struct {
	Orderbook wireOrderbook `json:"orderbook"`
}

// levels converts [price, quantity] pairs. Dollar prices are scaled to cents.
func levels(cents, dollars [][]decimal.Decimal) []domain.Level {
	src, scale := cents, decimal.NewFromInt(1)
	if len(src) == 0 && len(dollars) > 0 {
		src, scale = dollars, hundred
	}
	out := make([]domain.Level, 0, len(src))
	for _, pair := range src {
		if len(pair) < 2 {
			continue
		}
		out = append(out, domain.Level{
			Price:    domain.Cents(pair[0].Mul(scale).Round(0).IntPart()),
			Quantity: int(pair[1].IntPart()),
		})
	}
	return out
}

func (w wireOrderbook) toDomain(ticker string) *domain.Orderbook {
	return &domain.Orderbook{
		Ticker: ticker,
		Yes:    levels(w.Yes, w.YesDollars),
		No:     levels(w.No, w.NoDollars),
	}
}

type wireSeries struct {
	Ticker   string `json:"ticker"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

type seriesResponse struct {
	Series []wireSeries `json:"series"`
}

type wireEvent struct {
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	Category    string `json:"category"`
}

type eventResponse struct {
	Event wireEvent `json:"event"`
}

type wireMilestone struct {
	Title               string   `json:"title"`
	StartDate           string   `json:"start_date"`
	EndDate             string   `json:"end_date"`
	PrimaryEventTickers []string `json:"primary_event_tickers"`
	RelatedEventTickers []string `json:"related_event_tickers"`
}

type eventsResponse struct {
	Milestones []wireMilestone `json:"milestones"`
}

type createOrderRequest struct {
	Ticker        string `json:"ticker"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Type          string `json:"type"`
	Count         int    `json:"count"`
	YesPrice      int64  `json:"yes_price"`
	ClientOrderID string `json:"client_order_id"`
}

type wireOrder struct {
	OrderID          string              `json:"order_id"`
	Ticker           string              `json:"ticker"`
	Side             string              `json:"side"`
	Action           string              `json:"action"`
	Status           string              `json:"status"`
	FillCount        int                 `json:"fill_count"`
	RemainingCount   int                 `json:"remaining_count"`
	AverageFillPrice decimal.NullDecimal `json:"average_fill_price"`
	TakerFillCost    int64               `json:"taker_fill_cost"`
	MakerFillCost    int64               `json:"maker_fill_cost"`
}

// orderState maps exchange status strings. Both spellings of canceled occur.
func orderState(status string) domain.OrderState {
	switch strings.ToLower(status) {
	case "executed", "filled":
		return domain.OrderFilled
	case "canceled", "cancelled":
		return domain.OrderCanceled
	case "resting", "pending":
		return domain.OrderPending
	default:
		return domain.OrderUnknown
	}
}

func (w wireOrder) toDomain() *domain.OrderStatus {
	st := &domain.OrderStatus{
		OrderID:     w.OrderID,
		Ticker:      w.Ticker,
		Side:        domain.Side(strings.ToLower(w.Side)),
		Action:      domain.OrderAction(strings.ToLower(w.Action)),
		State:       orderState(w.Status),
		FilledCount: w.FillCount,
		Remaining:   w.RemainingCount,
	}
	switch {
	case w.AverageFillPrice.Valid:
		st.AvgFillPrice = domain.Cents(w.AverageFillPrice.Decimal.Round(0).IntPart())
	case w.FillCount > 0 && w.TakerFillCost+w.MakerFillCost > 0:
		st.AvgFillPrice = domain.Cents((w.TakerFillCost + w.MakerFillCost) / int64(w.FillCount))
	}
	return st
}

type orderResponse struct {
	Order wireOrder `json:"order"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

type wirePosition struct {
	Ticker   string `json:"ticker"`
	Position int    `json:"position"`
}

type positionsResponse struct {
	MarketPositions []wirePosition `json:"market_positions"`
	Cursor          string         `json:"cursor"`
}
