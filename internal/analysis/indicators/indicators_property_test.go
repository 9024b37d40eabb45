package indicators

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"hkbacktest/internal/models"
)

// candleGen generates a single valid OHLCV candle.
func candleGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.Candle{}), map[string]gopter.Gen{
		"Timestamp": gen.TimeRange(time.Now().Add(-365*24*time.Hour), time.Hour),
		"Open":      gen.Float64Range(100.0, 1000.0),
		"High":      gen.Float64Range(100.0, 1000.0),
		"Low":       gen.Float64Range(100.0, 1000.0),
		"Close":     gen.Float64Range(100.0, 1000.0),
		"Volume":    gen.Float64Range(1000.0, 10000000.0),
	}).Map(normalizeCandle)
}

func normalizeCandle(c models.Candle) models.Candle {
	if c.Open <= 0 {
		c.Open = 100.0
	}
	if c.High <= 0 {
		c.High = 100.0
	}
	if c.Low <= 0 {
		c.Low = 100.0
	}
	if c.Close <= 0 {
		c.Close = 100.0
	}
	c.High = math.Max(c.High, math.Max(c.Open, c.Close))
	c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
	if c.Low > c.High {
		c.Low, c.High = c.High, c.Low
	}
	if c.High <= c.Low {
		c.High = c.Low + 1.0
	}
	return c
}

// candleSliceGen generates a chronologically ordered run of at least minLen
// candles, each individually valid.
func candleSliceGen(minLen, maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, candleGen()).Map(func(candles []models.Candle) []models.Candle {
		for len(candles) < minLen {
			candles = append(candles, candles[len(candles)-1])
		}
		base := time.Now().Add(-365 * 24 * time.Hour)
		for i := range candles {
			candles[i] = normalizeCandle(candles[i])
			candles[i].Timestamp = base.Add(time.Duration(i) * time.Hour)
		}
		return candles
	})
}

func TestProperty_RSIWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("RSI values are within [0, 100] once ready", prop.ForAll(
		func(candles []models.Candle) bool {
			rsi := NewRSI(14)
			for _, c := range candles {
				v, ready := rsi.Update(c.Close)
				if ready && (v < 0 || v > 100) {
					return false
				}
			}
			return true
		},
		candleSliceGen(20, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_ADXWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("ADX, +DI, -DI values are within [0, 100] once ready", prop.ForAll(
		func(candles []models.Candle) bool {
			adx := NewADX(14)
			for _, c := range candles {
				v := adx.Update(c.High, c.Low, c.Close)
				if !v.Ready {
					continue
				}
				if v.ADX < 0 || v.ADX > 100 || v.PlusDI < 0 || v.PlusDI > 100 || v.MinusDI < 0 || v.MinusDI > 100 {
					return false
				}
			}
			return true
		},
		candleSliceGen(35, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_BollingerBandsOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Bollinger Bands: Lower <= Middle <= Upper", prop.ForAll(
		func(candles []models.Candle) bool {
			bb := NewBollinger(20, 2.0)
			for _, c := range candles {
				v := bb.Update(c.Close)
				if !v.Ready {
					continue
				}
				if v.Lower > v.Middle || v.Middle > v.Upper {
					return false
				}
			}
			return true
		},
		candleSliceGen(25, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_ATRIsNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("ATR values are non-negative", prop.ForAll(
		func(candles []models.Candle) bool {
			atr := NewATR(14)
			for _, c := range candles {
				v := atr.Update(c.High, c.Low, c.Close)
				if v.Ready && v.ATR < 0 {
					return false
				}
			}
			return true
		},
		candleSliceGen(20, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_EMAConvergesOnConstantSeries(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("EMA of a constant series equals that constant", prop.ForAll(
		func(v float64) bool {
			ema := NewEMA(20)
			var last float64
			var ready bool
			for i := 0; i < 60; i++ {
				last, ready = ema.Update(v)
			}
			return ready && math.Abs(last-v) < 1e-9
		},
		gen.Float64Range(1.0, 1000.0),
	))

	properties.TestingRun(t)
}

// TestIncrementalMatchesBatchMACD verifies the "incremental == batch" law:
// feeding a fixed close sequence through a fresh MACD accumulator one bar at
// a time yields, at the final bar, the same MACD value as replaying the
// identical sequence through a second fresh accumulator in one uninterrupted
// pass — i.e. incremental state carries no hidden order dependency beyond
// the sequence itself.
func TestIncrementalMatchesBatchMACD(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("replaying the same sequence twice yields identical MACD", prop.ForAll(
		func(candles []models.Candle) bool {
			a := NewMACD(12, 26, 9)
			b := NewMACD(12, 26, 9)
			var lastA, lastB MACDValue
			for _, c := range candles {
				lastA = a.Update(c.Close)
			}
			for _, c := range candles {
				lastB = b.Update(c.Close)
			}
			if lastA.Ready != lastB.Ready {
				return false
			}
			if !lastA.Ready {
				return true
			}
			return math.Abs(lastA.Line-lastB.Line) < 1e-9 &&
				math.Abs(lastA.Histogram-lastB.Histogram) < 1e-9
		},
		candleSliceGen(40, 120),
	))

	properties.TestingRun(t)
}

func TestProperty_VolumeRatioNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("volume ratio is never negative once the SMA window is full", prop.ForAll(
		func(candles []models.Candle) bool {
			symbol := "0700.HK"
			for i := range candles {
				candles[i].Symbol = symbol
			}
			se := NewSymbolEngine(symbol)
			for _, c := range candles {
				snap := se.Update(c)
				if snap.VolumeRatio < 0 {
					return false
				}
			}
			return true
		},
		candleSliceGen(25, 80),
	))

	properties.TestingRun(t)
}
