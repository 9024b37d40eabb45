// Package signal ties the layered scorer, cross-timeframe resonance gate,
// regime classifier, and per-regime strategies together into the single
// entry point the backtest simulator calls once per primary bar: at most
// one models.TradingSignal out, or nil.
//
// Grounded on the donor's ExecutionChecker (a stateful gate object with
// one CheckExecution-per-event entry point, fed a running ExecutionState
// of cooldowns/consecutive-losses/daily-trade-counts) for the performance-
// guard shape; the scoring/resonance/regime/strategy wiring is new, built
// directly from spec §4.4 since the donor has no regime-dependent
// strategy dispatch to adapt.
package signal

import (
	"hkbacktest/internal/analysis/indicators"
	"hkbacktest/internal/analysis/patterns"
	"hkbacktest/internal/analysis/scoring"
	"hkbacktest/internal/models"
	"hkbacktest/internal/strategy"
)

// performanceWindow is the rolling trade count the guard's win-rate check
// looks back over.
const performanceWindow = 30

// recoveryTradesNeeded is how many winning trades, from any strategy, lift
// a suppression once triggered.
const recoveryTradesNeeded = 2

// Engine produces at most one trading signal per bar for one symbol. Not
// safe for concurrent use; the backtest simulator holds one Engine per
// symbol being replayed.
type Engine struct {
	symbol string

	scorer     *scoring.Scorer
	divergence *patterns.DivergenceDetector

	strategies map[models.Regime]strategy.Strategy

	prevClose     float64
	haveHist      bool
	prevHistogram float64

	results          []bool // ring of recent trade outcomes, true = win
	consecutiveLoss  int
	suppressed       bool
	recoveryProgress int
}

// New builds a signal engine for one symbol using the spec's default
// strategy-to-regime mapping: MACD-trend for TRENDING, BOLL-reversion for
// RANGING, Volume-breakout for BREAKOUT. NEUTRAL has no home strategy.
func New(symbol string) *Engine {
	return &Engine{
		symbol:     symbol,
		scorer:     scoring.New(),
		divergence: patterns.NewDivergenceDetector(),
		strategies: map[models.Regime]strategy.Strategy{
			models.RegimeTrending: strategy.NewMACDTrend(),
			models.RegimeRanging:  strategy.NewBollReversion(),
			models.RegimeBreakout: strategy.NewVolumeBreakout(),
		},
	}
}

// StrategyFor returns the strategy instance bound to a regime, or nil for
// NEUTRAL / an unmapped regime. The simulator uses this to find the
// strategy that owns an already-open position so it can call CheckExit.
func (e *Engine) StrategyFor(regime models.Regime) strategy.Strategy {
	return e.strategies[regime]
}

// Evaluate scores the current bar and returns a signal if every gate
// passes: the regime has a home strategy (and the performance guard has
// not suppressed it to NEUTRAL), the layered score clears its thresholds,
// the timeframes resonate, and the regime's strategy reports an entry.
// It always returns the bar's raw (unsuppressed) regime classification
// alongside the signal, since the simulator needs the true regime for its
// own regime-change exit tracking even when the guard suppresses entries.
func (e *Engine) Evaluate(primary, confirm indicators.Snapshot, candle models.Candle) (*models.TradingSignal, models.Regime) {
	histIncreasing := e.haveHist && primary.MACD.Histogram > e.prevHistogram
	divType, divReady := e.divergence.Update(primary.Close, primary.MACD.Histogram, primary.MACD.Ready)
	bearishDivergence := divReady && divType == patterns.DivergenceBearish

	prevClose := e.prevClose
	e.prevClose = primary.Close
	e.prevHistogram, e.haveHist = primary.MACD.Histogram, true

	regime := strategy.ClassifyRegime(primary)

	effectiveRegime := regime
	if e.suppressed {
		effectiveRegime = models.RegimeNeutral
	}
	strat := e.strategies[effectiveRegime]
	if strat == nil {
		return nil, regime
	}

	result := e.scorer.Evaluate(primary, confirm, prevClose, bearishDivergence, histIncreasing)
	if !result.Passed {
		return nil, regime
	}
	if !scoring.Resonance(primary, confirm) {
		return nil, regime
	}
	if !strat.Generate(primary, confirm, candle) {
		return nil, regime
	}

	sig := &models.TradingSignal{
		Symbol:   e.symbol,
		Strategy: strat.Tag(),
		Side:     models.SideBuy,
		Price:    primary.Close,
		Strength: result.Total,
		LayerScores: map[string]float64{
			"market_state": result.Layers.MarketState,
			"macd":         result.Layers.MACD,
			"bollinger":    result.Layers.Bollinger,
			"volume":       result.Layers.Volume,
		},
		Regime:      regime,
		GeneratedAt: candle.Timestamp,
	}
	return sig, regime
}

// RecordTrade updates the rolling performance guard with one closed
// trade's outcome. Once the trailing 30-trade win rate drops below 30% or
// three consecutive losses occur, every strategy is suppressed to NEUTRAL
// until two winning trades (from any strategy) are recorded.
func (e *Engine) RecordTrade(trade models.Trade) {
	win := trade.PnL > 0

	e.results = append(e.results, win)
	if len(e.results) > performanceWindow {
		e.results = e.results[len(e.results)-performanceWindow:]
	}

	if win {
		e.consecutiveLoss = 0
	} else {
		e.consecutiveLoss++
	}

	if e.suppressed {
		if win {
			e.recoveryProgress++
			if e.recoveryProgress >= recoveryTradesNeeded {
				e.suppressed = false
				e.recoveryProgress = 0
				e.consecutiveLoss = 0
			}
		}
		return
	}

	// The win-rate leg needs enough samples to be meaningful; below that,
	// only the consecutive-loss leg can trigger suppression.
	if e.consecutiveLoss >= 3 || (len(e.results) >= 10 && e.winRate() < 0.30) {
		e.suppressed = true
		e.recoveryProgress = 0
	}
}

// Suppressed reports whether the performance guard currently forces every
// regime to NEUTRAL.
func (e *Engine) Suppressed() bool { return e.suppressed }

// WinRate reports the rolling win rate over the trailing performanceWindow
// trades, for the risk sizer's §4.6 winRateFactor term. Per spec, fewer
// than 10 samples falls back to the neutral 0.5 default rather than an
// unrepresentative early ratio.
func (e *Engine) WinRate() float64 {
	if len(e.results) < 10 {
		return 0.5
	}
	return e.winRate()
}

func (e *Engine) winRate() float64 {
	if len(e.results) == 0 {
		return 1 // no history yet: do not suppress on win rate alone
	}
	wins := 0
	for _, w := range e.results {
		if w {
			wins++
		}
	}
	return float64(wins) / float64(len(e.results))
}
