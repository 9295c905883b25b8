package domain

// OrderState is the lifecycle state of an exchange order.
type OrderState string

const (
	OrderPending         OrderState = "pending"
	OrderPartiallyFilled OrderState = "partially_filled"
	OrderFilled          OrderState = "filled"
	OrderCanceled        OrderState = "canceled"
	OrderUnknown         OrderState = "unknown"
)

// Terminal reports whether the state can no longer change.
func (s OrderState) Terminal() bool {
	return s == OrderFilled || s == OrderCanceled
}

// OrderRequest is a limit order submitted to the exchange. Price is for Side.
type OrderRequest struct {
	Ticker        string
	Side          Side
	Action        OrderAction
	Count         int
	Price         Cents
	ClientOrderID string
}

// OrderStatus is a point-in-time view of an order as reported by the exchange.
type OrderStatus struct {
	OrderID      string
	Ticker       string
	Side         Side
	Action       OrderAction
	State        OrderState
	FilledCount  int
	Remaining    int
	AvgFillPrice Cents // price of Side, zero when nothing filled
}

// Order tracks one placed order and its reconciled outcome.
type Order struct {
	ID             string
	ClientOrderID  string
	Ticker         string
	Side           Side
	Action         OrderAction
	RequestedCount int
	LimitPrice     Cents
	FilledCount    int
	AvgFillPrice   Cents
	Status         OrderState
}

// NewOrder builds a pending order from a request and the exchange-assigned id.
func NewOrder(id string, req OrderRequest) *Order {
	return &Order{
		ID:             id,
		ClientOrderID:  req.ClientOrderID,
		Ticker:         req.Ticker,
		Side:           req.Side,
		Action:         req.Action,
		RequestedCount: req.Count,
		LimitPrice:     req.Price,
		Status:         OrderPending,
	}
}

// Apply folds an observed status into the order.
// Terminal orders are never changed and fills are clamped to the requested count.
// Returns true if the order changed.
func (o *Order) Apply(st *OrderStatus) bool {
	if o.Status.Terminal() || st == nil {
		return false
	}

	filled := st.FilledCount
	if filled > o.RequestedCount {
		filled = o.RequestedCount
	}
	if filled < o.FilledCount {
		filled = o.FilledCount
	}

	state := st.State
	switch {
	case state == OrderFilled || (filled == o.RequestedCount && filled > 0):
		state = OrderFilled
	case state == OrderCanceled:
	case filled > 0:
		state = OrderPartiallyFilled
	case state == "":
		state = OrderUnknown
	}

	changed := filled != o.FilledCount || state != o.Status
	o.FilledCount = filled
	o.Status = state
	if st.AvgFillPrice > 0 {
		o.AvgFillPrice = st.AvgFillPrice
	} else if filled > 0 && o.AvgFillPrice == 0 {
		o.AvgFillPrice = o.LimitPrice
	}
	return changed
}

// Cost returns the filled notional.
func (o *Order) Cost() Cents {
	return Cents(o.FilledCount) * o.AvgFillPrice
}

// Execution is the authoritative fill accepted for a signal.
type Execution struct {
	OrderID      string
	Ticker       string
	Side         Side
	Action       OrderAction
	Requested    int
	FilledCount  int
	LimitPrice   Cents
	AvgFillPrice Cents
	SlippagePct  float64
	Simulated    bool
}

// Cost returns the filled notional.
func (e *Execution) Cost() Cents {
	return Cents(e.FilledCount) * e.AvgFillPrice
}

// ExecutionFromOrder converts a reconciled order into an execution.
func ExecutionFromOrder(o *Order, slippagePct float64) *Execution {
	return &Execution{
		OrderID:      o.ID,
		Ticker:       o.Ticker,
		Side:         o.Side,
		Action:       o.Action,
		Requested:    o.RequestedCount,
		FilledCount:  o.FilledCount,
		LimitPrice:   o.LimitPrice,
		AvgFillPrice: o.AvgFillPrice,
		SlippagePct:  slippagePct,
	}
}
