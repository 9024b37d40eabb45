// Package patterns detects single-bar candlestick shapes, used by the
// BOLL-reversion strategy's reversal confirmation, and MACD/price
// divergence, used by the signal engine's MACD layer.
package patterns

import (
	"hkbacktest/internal/analysis"
	"hkbacktest/internal/models"
)

const (
	hammerShadowRatio = 2.0
	hammerUpperRatio  = 0.3
	dojiBodyRatio     = 0.05
)

// CandlestickDetector recognizes the hammer and doji shapes on a single
// bar. Grounded on the donor's CandlestickDetector (body/shadow/range
// helpers, volume-confirmation gate), trimmed from its 16-pattern,
// whole-history scan down to the two shapes the spec defines formulas for.
type CandlestickDetector struct {
	volumeConfirmRatio float64
}

// NewCandlestickDetector creates a detector using the donor's 1.5x
// volume-confirmation threshold.
func NewCandlestickDetector() *CandlestickDetector {
	return &CandlestickDetector{volumeConfirmRatio: 1.5}
}

func (d *CandlestickDetector) Name() string { return "CandlestickDetector" }

func bodySize(c models.Candle) float64    { return absf(c.Close - c.Open) }
func candleRange(c models.Candle) float64 { return c.High - c.Low }
func upperShadow(c models.Candle) float64 { return c.High - maxf(c.Open, c.Close) }
func lowerShadow(c models.Candle) float64 { return minf(c.Open, c.Close) - c.Low }

// bodyInUpperThird reports whether the candle's body sits in the upper
// third of its full high-low range, as the hammer definition requires.
func bodyInUpperThird(c models.Candle) bool {
	rng := candleRange(c)
	if rng == 0 {
		return false
	}
	bodyTop := maxf(c.Open, c.Close)
	return (bodyTop-c.Low)/rng >= 2.0/3.0
}

// Hammer reports whether c is a hammer: lower shadow at least twice the
// body, upper shadow no more than 0.3x the body, and the body sitting in
// the upper third of the bar's range.
func Hammer(c models.Candle) bool {
	body := bodySize(c)
	if body == 0 {
		return false
	}
	return lowerShadow(c) >= hammerShadowRatio*body &&
		upperShadow(c) <= hammerUpperRatio*body &&
		bodyInUpperThird(c)
}

// Doji reports whether c is a doji: body no more than 5% of the full
// high-low range.
func Doji(c models.Candle) bool {
	rng := candleRange(c)
	if rng == 0 {
		return false
	}
	return bodySize(c)/rng <= dojiBodyRatio
}

// Detect evaluates the current bar and returns any hammer/doji pattern
// found, gated by volume confirmation against the trailing average volume
// supplied by the caller (typically the indicator engine's volume SMA).
func (d *CandlestickDetector) Detect(c models.Candle, avgVolume float64) *analysis.Pattern {
	volumeConfirm := avgVolume > 0 && c.Volume >= avgVolume*d.volumeConfirmRatio
	strength := 0.0

	switch {
	case Hammer(c):
		strength = 0.7
		if volumeConfirm {
			strength = minf(1.0, strength*1.2)
		}
		return &analysis.Pattern{Name: "Hammer", Direction: analysis.PatternBullish, Strength: strength}
	case Doji(c):
		strength = 0.5
		if volumeConfirm {
			strength = minf(1.0, strength*1.2)
		}
		return &analysis.Pattern{Name: "Doji", Direction: analysis.PatternNeutral, Strength: strength}
	default:
		return nil
	}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
