// Package scoring computes the four-layer weighted signal score (spec
// §4.4): market-state, MACD, Bollinger, and volume/price confirmation
// layers, each scored in [0,100], combined into a weighted total that
// gates signal emission.
//
// Grounded on the donor's SignalScorer (weighted-component-map-plus-
// Score() shape, IndicatorWeights struct) kept for its architecture; the
// donor's seven RSI/MACD/Stochastic/SuperTrend/ADX/EMA/Volume components
// each independently derived from a full indicator recompute are replaced
// by the spec's four fixed layers computed directly off the indicator
// engine's incremental Snapshot, since the donor's per-component
// "Calculate(candles) -> values" batch style cannot serve a bar-by-bar
// replay.
package scoring

import (
	"hkbacktest/internal/analysis/indicators"
)

// Weights are the four layers' contribution to the weighted total; they
// sum to 1.00 per spec §4.4.
type Weights struct {
	MarketState float64
	MACD        float64
	Bollinger   float64
	Volume      float64
}

// DefaultWeights returns the spec's layer weights.
func DefaultWeights() Weights {
	return Weights{MarketState: 0.15, MACD: 0.35, Bollinger: 0.25, Volume: 0.25}
}

// Layer pass thresholds (spec §4.4 table).
const (
	marketStateThreshold = 50.0
	macdThreshold        = 60.0
	bollingerThreshold   = 50.0
	volumeThreshold      = 60.0
	totalThreshold       = 70.0
)

// LayerScores holds the four individual layer scores, each in [0,100].
type LayerScores struct {
	MarketState float64
	MACD        float64
	Bollinger   float64
	Volume      float64
}

// Result is the outcome of scoring one bar: the per-layer scores, the
// weighted Total (the signal's eventual Strength), and whether every
// layer met its threshold and the weighted total reached 70.
type Result struct {
	Layers LayerScores
	Total  float64
	Passed bool
}

// Scorer computes the layered score for one bar given the primary and
// confirmation snapshots plus the inputs only the caller has: whether a
// bearish MACD divergence was detected over the trailing 20 bars, and
// whether the histogram is increasing versus the prior bar.
type Scorer struct {
	weights Weights
}

// New creates a Scorer using the spec's default weights.
func New() *Scorer {
	return &Scorer{weights: DefaultWeights()}
}

// NewWithWeights creates a Scorer with custom layer weights, for
// parameter sweeps; weights need not sum to 1.00 but the spec's defaults
// do.
func NewWithWeights(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Evaluate scores one bar. prevClose is the previous bar's close (for the
// volume layer's price-delta sign); bearishDivergence and histIncreasing
// are pre-computed by the caller from a patterns.DivergenceDetector and
// the prior bar's histogram, respectively.
func (s *Scorer) Evaluate(primary, confirm indicators.Snapshot, prevClose float64, bearishDivergence, histIncreasing bool) Result {
	layers := LayerScores{
		MarketState: marketStateScore(primary.ATR.ATR, primary.Close, primary.Bollinger.Bandwidth),
		MACD:        macdScore(primary, confirm, bearishDivergence, histIncreasing),
		Bollinger:   bollingerScore(primary.Close, primary.Bollinger),
		Volume:      volumeScore(primary.VolumeRatio, primary.Close-prevClose),
	}

	total := layers.MarketState*s.weights.MarketState +
		layers.MACD*s.weights.MACD +
		layers.Bollinger*s.weights.Bollinger +
		layers.Volume*s.weights.Volume

	passed := layers.MarketState >= marketStateThreshold &&
		layers.MACD >= macdThreshold &&
		layers.Bollinger >= bollingerThreshold &&
		layers.Volume >= volumeThreshold &&
		total >= totalThreshold

	return Result{Layers: layers, Total: total, Passed: passed}
}

// marketStateScore scores regime suitability from the ATR-ratio (ATR
// expressed as a fraction of price) and Bollinger bandwidth.
func marketStateScore(atr, close, bandwidth float64) float64 {
	atrRatio := 0.0
	if close != 0 {
		atrRatio = atr / close
	}
	score := 100 * clamp((atrRatio-0.005)/(0.05-0.005), 0, 1)
	if bandwidth >= 0.03 && bandwidth <= 0.15 {
		score += 20
	}
	if score > 100 {
		score = 100
	}
	return score
}

// macdScore awards 20 points each for a bullish primary MACD/signal order,
// a positive histogram, and cross-timeframe MACD agreement; 30 for the
// absence of bearish divergence; 10 for an increasing histogram.
func macdScore(primary, confirm indicators.Snapshot, bearishDivergence, histIncreasing bool) float64 {
	score := 0.0
	if primary.MACD.Ready && primary.MACD.Line > primary.MACD.Signal {
		score += 20
	}
	if primary.MACD.Ready && primary.MACD.Histogram > 0 {
		score += 20
	}
	if confirm.Confirm.Ready && confirm.Confirm.MACD.Line > confirm.Confirm.MACD.Signal {
		score += 20
	}
	if !bearishDivergence {
		score += 30
	}
	if histIncreasing {
		score += 10
	}
	return score
}

// bollingerScore awards 50 for price sitting between the middle and upper
// band, 30 for sitting between the lower and middle band, plus 50 for a
// bandwidth in the "tradeable volatility" range (0.03, 0.15).
func bollingerScore(close float64, boll indicators.BollingerValue) float64 {
	if !boll.Ready {
		return 0
	}
	score := 0.0
	switch {
	case close > boll.Middle && close < boll.Upper:
		score = 50
	case close > boll.Lower && close < boll.Middle:
		score = 30
	}
	if boll.Bandwidth > 0.03 && boll.Bandwidth < 0.15 {
		score += 50
	}
	return score
}

// volumeScore awards up to 50 for elevated volume ratio, plus 50 for a
// price-volume relationship consistent with conviction: price up on
// volume, or price down on dried-up volume.
func volumeScore(volumeRatio, priceDelta float64) float64 {
	score := 0.0
	if volumeRatio >= 1.5 {
		score += 30
	}
	if volumeRatio >= 2.0 {
		score += 20
	}
	switch {
	case priceDelta > 0 && volumeRatio > 1.2:
		score += 50
	case priceDelta < 0 && volumeRatio < 0.8:
		score += 50
	}
	return score
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

// Resonance reports whether the primary and confirmation timeframes agree
// in sign on MACD direction, Bollinger price-vs-middle position, and
// EMA20-vs-EMA50 order — the spec's multi-timeframe resonance gate. A
// candidate signal failing any of these is discarded regardless of its
// layer score.
func Resonance(primary, confirm indicators.Snapshot) bool {
	if !confirm.Confirm.Ready {
		return false
	}
	macdAgree := sign(primary.MACD.Line-primary.MACD.Signal) == sign(confirm.Confirm.MACD.Line-confirm.Confirm.MACD.Signal)
	bollAgree := sign(primary.Close-primary.Bollinger.Middle) == sign(confirm.Confirm.Close-confirm.Confirm.Bollinger.Middle)
	emaAgree := sign(primary.EMA20-primary.EMA50) == sign(confirm.Confirm.EMA20-confirm.Confirm.EMA50)
	return macdAgree && bollAgree && emaAgree
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
