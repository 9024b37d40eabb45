package models

import "time"

// OrderType is the routing style of an order. The core only ever produces
// MARKET orders (stop and take-profit exits fill at the trigger level, not
// via a resting LIMIT order), but LIMIT is modeled for completeness of the
// state machine.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus is a node in the order state machine (see trading.Transition).
type OrderStatus string

const (
	OrderCreated       OrderStatus = "CREATED"
	OrderSubmitted     OrderStatus = "SUBMITTED"
	OrderPartialFilled OrderStatus = "PARTIAL_FILLED"
	OrderFilled        OrderStatus = "FILLED"
	OrderRejected      OrderStatus = "REJECTED"
	OrderCancelled     OrderStatus = "CANCELLED"
)

// CommissionBreakdown itemizes the HKEX fee components charged on a single
// fill. Each component is individually banker's-rounded to 2 decimals; the
// Total is the sum of the rounded components.
type CommissionBreakdown struct {
	Commission              float64
	TradingFee              float64
	SettlementFee           float64
	CCASSFee                float64
	StampDuty               float64
	InvestorCompensationFee float64
	Total                   float64
}

// Order is a single trade intent moving through the state machine enforced
// by trading.Transition. Orders are immutable once FILLED.
type Order struct {
	ID              string
	Symbol          string
	Side            Side
	Type            OrderType
	Quantity        int
	SuggestedPrice  float64
	ExecutedPrice   float64
	ExecutedQty     int
	Commission      CommissionBreakdown
	Status          OrderStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Position is the open exposure in one symbol. The core is long-only:
// Quantity never goes negative.
type Position struct {
	Symbol        string
	Quantity      int
	AvgCost       float64
	RealizedPnL   float64
	UnrealizedPnL float64
	OpenTime      time.Time
	LastUpdate    time.Time
	EntrySignal   *TradingSignal
	StopLoss      float64
	TakeProfit    float64
	HighWaterMark float64
	Strategy      StrategyTag

	// EntryPrice is the fill price of the position's opening trade,
	// independent of AvgCost once partial tiered exits have reduced
	// Quantity without changing the remaining shares' cost basis.
	EntryPrice float64
	// EntryQuantity is the original filled quantity, kept so a tiered
	// take-profit ladder can size each tier as a fraction of the original
	// position rather than of whatever remains.
	EntryQuantity int
	// TrailingActive is set once unrealized gain has reached the +5%
	// threshold that arms MACD-trend's trailing stop, which sits 3% below
	// HighWaterMark (spec §4.5 exit precedence).
	TrailingActive bool
	// TakeProfitStage counts how many tiers of a tiered take-profit
	// ladder (MACD-trend's 30/40/30 split at +5%/+8%/+10%) have already
	// fired, so the next bar only evaluates the remaining tiers.
	TakeProfitStage int
	// RegimeMismatchBars counts consecutive bars where the market regime
	// has left the position's strategy's home regime, for the
	// regime-change exit rule (3 consecutive bars).
	RegimeMismatchBars int
}

// MarketValue returns the position's value at the given mark price.
func (p *Position) MarketValue(markPrice float64) float64 {
	return float64(p.Quantity) * markPrice
}
