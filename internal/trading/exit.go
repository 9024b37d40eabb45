package trading

import (
	"time"

	"hkbacktest/internal/models"
)

// Portfolio is the single-symbol cash/position/trade-history ledger a
// Simulator replay loop owns exclusively (spec §5's "Portfolio is owned
// exclusively by the replay loop" resource rule — no locking).
//
// Grounded on the donor's DefaultExitManager/DefaultPositionManager pair
// (a stateful manager tracking per-symbol config plus a running mutation
// log), collapsed into one concrete ledger since this core manages a
// single deterministic replay rather than a live, concurrently-polled
// broker connection.
type Portfolio struct {
	Cash        float64
	Position    *models.Position
	Trades      []models.Trade
	EquityCurve []models.EquityPoint

	peakEquity      float64
	consecutiveLoss int
}

// NewPortfolio creates a ledger seeded with initialCapital cash and no
// open position.
func NewPortfolio(initialCapital float64) *Portfolio {
	return &Portfolio{Cash: initialCapital, peakEquity: initialCapital}
}

// Open records a newly filled entry, deducting notional and commission
// from cash and creating the open Position.
func (p *Portfolio) Open(symbol string, qty int, price float64, commission models.CommissionBreakdown, at time.Time, strat models.StrategyTag, stopLoss, takeProfit float64) {
	notional := float64(qty) * price
	p.Cash -= notional + commission.Total
	p.Position = &models.Position{
		Symbol:        symbol,
		Quantity:      qty,
		AvgCost:       price,
		OpenTime:      at,
		LastUpdate:    at,
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
		HighWaterMark: price,
		Strategy:      strat,
		EntryPrice:    price,
		EntryQuantity: qty,
	}
}

// Close realizes qty shares of the open position at price, crediting cash
// with the proceeds net of commission and appending a completed Trade. A
// qty of 0, or a qty equal to the remaining quantity, closes the position
// entirely. Partial closes (tiered take-profit) reduce Quantity in place
// and keep the position open.
func (p *Portfolio) Close(qty int, price float64, commission models.CommissionBreakdown, at time.Time, reason string) models.Trade {
	pos := p.Position
	if qty <= 0 || qty > pos.Quantity {
		qty = pos.Quantity
	}

	proceeds := float64(qty) * price
	p.Cash += proceeds - commission.Total

	costBasis := float64(qty) * pos.EntryPrice
	pnl := proceeds - costBasis - commission.Total
	pnlPercent := 0.0
	if costBasis != 0 {
		pnlPercent = pnl / costBasis * 100
	}

	trade := models.Trade{
		Symbol:       pos.Symbol,
		Strategy:     pos.Strategy,
		Side:         models.SideSell,
		Quantity:     qty,
		EntryTime:    pos.OpenTime,
		EntryPrice:   pos.EntryPrice,
		ExitTime:     at,
		ExitPrice:    price,
		ExitReason:   reason,
		Commission:   commission.Total,
		PnL:          pnl,
		PnLPercent:   pnlPercent,
		HoldDuration: at.Sub(pos.OpenTime),
	}
	p.Trades = append(p.Trades, trade)

	if pnl > 0 {
		p.consecutiveLoss = 0
	} else {
		p.consecutiveLoss++
	}

	pos.Quantity -= qty
	pos.LastUpdate = at
	if pos.Quantity == 0 {
		p.Position = nil
	}
	return trade
}

// MarkToMarket values any open position at markPrice, appends an equity
// snapshot, and updates the running peak/drawdown.
func (p *Portfolio) MarkToMarket(markPrice float64, at time.Time) models.EquityPoint {
	equity := p.Cash
	if p.Position != nil {
		p.Position.UnrealizedPnL = float64(p.Position.Quantity) * (markPrice - p.Position.EntryPrice)
		equity += float64(p.Position.Quantity) * markPrice
	}
	if equity > p.peakEquity {
		p.peakEquity = equity
	}
	drawdown := 0.0
	if p.peakEquity > 0 {
		drawdown = (p.peakEquity - equity) / p.peakEquity
	}
	point := models.EquityPoint{Timestamp: at, Equity: equity, Cash: p.Cash, Drawdown: drawdown}
	p.EquityCurve = append(p.EquityCurve, point)
	return point
}

// CurrentDrawdown returns the most recent equity snapshot's drawdown, or
// 0 before any bar has been marked to market.
func (p *Portfolio) CurrentDrawdown() float64 {
	if len(p.EquityCurve) == 0 {
		return 0
	}
	return p.EquityCurve[len(p.EquityCurve)-1].Drawdown
}

// ConsecutiveLosses returns the number of closed trades, most-recent
// first, that lost money since the last winning trade.
func (p *Portfolio) ConsecutiveLosses() int { return p.consecutiveLoss }

// RealizedLossOn sums the absolute loss of every losing trade whose exit
// falls on the same calendar day as day, for the risk sizer's daily-loss
// check.
func (p *Portfolio) RealizedLossOn(day time.Time) float64 {
	y, m, d := day.Date()
	loss := 0.0
	for _, t := range p.Trades {
		ty, tm, td := t.ExitTime.Date()
		if ty == y && tm == m && td == d && t.PnL < 0 {
			loss += -t.PnL
		}
	}
	return loss
}
