package models

import "time"

// Trade represents one completed round-trip (entry fill through exit fill)
// in a backtest run.
type Trade struct {
	Symbol       string
	Strategy     StrategyTag
	Side         Side
	Quantity     int
	EntryTime    time.Time
	EntryPrice   float64
	ExitTime     time.Time
	ExitPrice    float64
	ExitReason   string
	Commission   float64
	PnL          float64
	PnLPercent   float64
	HoldDuration time.Duration
}

// EquityPoint is one sample of the equity curve, recorded at every bar
// close.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
	Cash      float64
	Drawdown  float64
}

// TradingSignal is produced by the Signal Engine at most once per primary
// bar. It is immutable once constructed and consumed at most once by the
// simulator.
type TradingSignal struct {
	Symbol       string
	Strategy     StrategyTag
	Side         Side
	Price        float64
	Strength     float64
	LayerScores  map[string]float64
	Regime       Regime
	GeneratedAt  time.Time
}
