// Package risk implements the pre-trade validator chain and position-
// sizing formula of §4.6: a short-circuiting sequence of checks against
// a signal's proposed trade, followed by a sizing calculation that scales
// down with volatility, signal strength, and the strategy's recent win
// rate.
//
// Grounded on the donor's RiskChecker/execution-gate chain (a sequential,
// short-circuit sequence of named checks, each returning a pass/fail plus
// reason) kept for its shape; the specific checks and the sizing formula
// are new, built directly from spec §4.6 since the donor's Indian-market
// margin/SEBI checks have no HK-equities analogue.
package risk

import (
	"hkbacktest/internal/commission"
	"hkbacktest/internal/errors"
	"hkbacktest/internal/models"
)

// Limits are the account-level risk parameters a backtest run is
// configured with.
type Limits struct {
	MaxSinglePosition    float64
	MaxDailyLoss         float64 // fraction of total capital, e.g. 0.02
	ConsecutiveLossLimit int
	MaxDrawdown          float64 // fraction of peak equity
}

// Account is the subset of portfolio state the validator chain and sizer
// need, supplied fresh by the simulator on every signal.
type Account struct {
	Cash              float64
	TotalCapital      float64
	RealizedLossToday float64
	ConsecutiveLosses int
	CurrentDrawdown   float64
}

// Sizer validates a candidate trade against account limits and, once
// approved, computes how many shares to buy.
type Sizer struct {
	limits   Limits
	schedule commission.Schedule
}

// New builds a Sizer using the given limits and fee schedule.
func New(limits Limits, schedule commission.Schedule) *Sizer {
	return &Sizer{limits: limits, schedule: schedule}
}

// Validate runs the 5-step pre-trade chain (spec §4.6) against a proposed
// buy of qty shares at price, short-circuiting on the first failure.
func (s *Sizer) Validate(acc Account, qty int, price float64) error {
	notional := float64(qty) * price
	estFees := s.schedule.Compute(models.SideBuy, qty, price, false).Total

	if acc.Cash-notional-estFees < 0 {
		return errors.NewRiskError("capital_usage", acc.Cash-notional-estFees, 0, "post-trade cash would go negative")
	}
	if notional > s.limits.MaxSinglePosition {
		return errors.NewRiskError("single_trade_notional", notional, s.limits.MaxSinglePosition, "trade notional exceeds the single-position cap")
	}
	maxDailyLossAmount := s.limits.MaxDailyLoss * acc.TotalCapital
	if acc.RealizedLossToday > maxDailyLossAmount {
		return errors.NewRiskError("daily_loss", acc.RealizedLossToday, maxDailyLossAmount, "today's realized loss exceeds the daily loss cap")
	}
	if acc.ConsecutiveLosses >= s.limits.ConsecutiveLossLimit {
		return errors.NewRiskError("consecutive_losses", float64(acc.ConsecutiveLosses), float64(s.limits.ConsecutiveLossLimit), "consecutive loss limit reached")
	}
	if acc.CurrentDrawdown > s.limits.MaxDrawdown {
		return errors.NewRiskError("max_drawdown", acc.CurrentDrawdown, s.limits.MaxDrawdown, "running drawdown exceeds the drawdown cap")
	}
	return nil
}

// minPositionValue is the sizing formula's fixed floor (spec §4.6).
const minPositionValue = 20000

// Size computes the position notional for an approved signal, clamps it
// to [20000, maxSinglePosition], and quantizes it down to a whole number
// of lots at price.
//
// atr and atr20DayMean come from the primary timeframe's ATR indicator;
// strength is the scorer's weighted total (0-100); winRate is the
// strategy's rolling 30-trade win rate, or 0.5 if fewer than 10 trades
// have been recorded.
func (s *Sizer) Size(price, atr, atr20DayMean, strength, winRate float64, lotSize int) int {
	atrRatio := 1.0
	if atr20DayMean != 0 {
		atrRatio = atr / atr20DayMean
	}
	atrRatio = clamp(atrRatio, 0.5, 1.5)

	signalStrengthFactor := strength / 100
	winRateFactor := winRate

	basePosition := s.limits.MaxSinglePosition
	notional := basePosition * (2 - atrRatio) * signalStrengthFactor * (0.5 + winRateFactor*0.5)
	notional = clamp(notional, minPositionValue, s.limits.MaxSinglePosition)

	if price <= 0 || lotSize <= 0 {
		return 0
	}
	shares := notional / price
	lots := int(shares / float64(lotSize))
	return lots * lotSize
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
