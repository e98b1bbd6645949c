package domain

import (
	"fmt"
	"strings"
	"time"
)

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// ParseTradeSide normalizes and validates a side string.
func ParseTradeSide(s string) (TradeSide, error) {
	switch TradeSide(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("invalid trade side %q", s)
	}
}

// OrderType distinguishes immediate market trades from resting limit orders.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// ParseOrderType normalizes and validates an order type string.
func ParseOrderType(s string) (OrderType, error) {
	switch OrderType(strings.ToUpper(strings.TrimSpace(s))) {
	case OrderMarket:
		return OrderMarket, nil
	case OrderLimit:
		return OrderLimit, nil
	default:
		return "", fmt.Errorf("invalid order type %q", s)
	}
}

// OrderStatus is the lifecycle state of a limit order. OPEN is the only
// state that transitions; FILLED, CANCELLED and EXPIRED are terminal.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "OPEN"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderExpired   OrderStatus = "EXPIRED"
)

// TxnStatus is the lifecycle state of a transaction record.
type TxnStatus string

const (
	TxnPending  TxnStatus = "PENDING"
	TxnExecuted TxnStatus = "EXECUTED"
	TxnFailed   TxnStatus = "FAILED"
)

// Portfolio is one user's cash account. Each user has exactly one.
type Portfolio struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	CashBalance Money     `json:"cash_balance"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Position is a holding of one ticker within a portfolio. A position
// exists if and only if its quantity is positive; closing a position
// deletes the row.
type Position struct {
	ID          int64     `json:"id"`
	PortfolioID int64     `json:"portfolio_id"`
	Ticker      string    `json:"ticker"`
	Quantity    Quantity  `json:"quantity"`
	AvgCost     Money     `json:"avg_cost"`
	LastPrice   Money     `json:"last_price"`
	LastUpdated time.Time `json:"last_updated"`
}

// CurrentValue is quantity × last observed price.
func (p *Position) CurrentValue() Money {
	return p.LastPrice.MulQuantity(p.Quantity)
}

// CostBasis is quantity × average cost.
func (p *Position) CostBasis() Money {
	return p.AvgCost.MulQuantity(p.Quantity)
}

// UnrealizedPnL is current value minus cost basis.
func (p *Position) UnrealizedPnL() Money {
	return p.CurrentValue().Sub(p.CostBasis())
}

// Transaction is the immutable audit record of one trade attempt.
// EXECUTED rows record trades that moved the ledger; FAILED rows record
// rejected attempts with the rejection reason in Notes. Rows are never
// updated after reaching a terminal status.
type Transaction struct {
	ID          int64      `json:"id"`
	Reference   string     `json:"reference"`
	PortfolioID int64      `json:"portfolio_id"`
	Ticker      string     `json:"ticker"`
	Side        TradeSide  `json:"side"`
	Quantity    Quantity   `json:"quantity"`
	Price       Money      `json:"price"`
	TotalAmount Money      `json:"total_amount"`
	Status      TxnStatus  `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Order is a resting limit order. Market trades execute immediately and
// never create an Order row.
type Order struct {
	ID            int64       `json:"id"`
	Reference     string      `json:"reference"`
	PortfolioID   int64       `json:"portfolio_id"`
	Ticker        string      `json:"ticker"`
	Side          TradeSide   `json:"side"`
	OrderType     OrderType   `json:"order_type"`
	Quantity      Quantity    `json:"quantity"`
	LimitPrice    Money       `json:"limit_price"`
	Status        OrderStatus `json:"status"`
	TransactionID *int64      `json:"transaction_id,omitempty"`
	ExpiresAt     time.Time   `json:"expires_at"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// IsOpen reports whether the order can still fill, cancel or expire.
func (o *Order) IsOpen() bool {
	return o.Status == OrderOpen
}

// ReservedCash is the cash held back for an open BUY limit order:
// quantity × limit price. SELL orders reserve nothing.
func (o *Order) ReservedCash() Money {
	if o.Side != SideBuy {
		return MoneyZero
	}
	return o.LimitPrice.MulQuantity(o.Quantity)
}

// Performance accumulates realized results per portfolio. A closing sell
// with positive realized P&L counts as a win, negative as a loss;
// break-even sells count as neither.
type Performance struct {
	PortfolioID   int64     `json:"portfolio_id"`
	RealizedPnL   Money     `json:"realized_pnl"`
	WinningTrades int64     `json:"winning_trades"`
	LosingTrades  int64     `json:"losing_trades"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// WinRate is winning trades over decided trades, or 0 with no history.
func (p *Performance) WinRate() float64 {
	decided := p.WinningTrades + p.LosingTrades
	if decided == 0 {
		return 0
	}
	return float64(p.WinningTrades) / float64(decided)
}

// Candle is one bar of price history.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Forecast is a projected price with model confidence in [0, 1].
type Forecast struct {
	Ticker     string    `json:"ticker"`
	Horizon    int       `json:"horizon_days"`
	TargetDate time.Time `json:"target_date"`
	Predicted  float64   `json:"predicted_price"`
	Confidence float64   `json:"confidence"`
	Generated  time.Time `json:"generated_at"`
}
