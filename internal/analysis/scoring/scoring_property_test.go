package scoring

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"hkbacktest/internal/analysis/indicators"
)

// Property: Evaluate's Total always lands in [0,100], and Passed is true
// if and only if every layer clears its own threshold and Total clears
// 70 — the two conditions spec §4.4 requires.
func TestProperty_EvaluateTotalBoundedAndPassedMatchesGate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Total in [0,100] and Passed matches the per-layer gate", prop.ForAll(
		func(atr, close, bandwidth, macdLine, macdSignal, hist, confirmMacdLine, confirmMacdSignal,
			boMid, boUpper, boLower, volRatio, priceDelta float64, bearishDiv, histInc bool) bool {
			if close == 0 {
				close = 1
			}
			primary := indicators.Snapshot{
				Close: close,
				ATR:   indicators.ATRValue{ATR: atr, Ready: true},
				MACD:  indicators.MACDValue{Line: macdLine, Signal: macdSignal, Histogram: hist, Ready: true},
				Bollinger: indicators.BollingerValue{
					Middle: boMid, Upper: boMid + abs(boUpper), Lower: boMid - abs(boLower), Bandwidth: bandwidth, Ready: true,
				},
				VolumeRatio: volRatio,
				Confirm:     indicators.ConfirmSnapshot{Ready: true, MACD: indicators.MACDValue{Line: confirmMacdLine, Signal: confirmMacdSignal, Ready: true}},
			}
			confirm := primary

			s := New()
			result := s.Evaluate(primary, confirm, close-priceDelta, bearishDiv, histInc)

			if result.Total < 0 || result.Total > 100 {
				return false
			}
			expectedPass := result.Layers.MarketState >= marketStateThreshold &&
				result.Layers.MACD >= macdThreshold &&
				result.Layers.Bollinger >= bollingerThreshold &&
				result.Layers.Volume >= volumeThreshold &&
				result.Total >= totalThreshold
			return result.Passed == expectedPass
		},
		gen.Float64Range(0, 50),
		gen.Float64Range(1, 500),
		gen.Float64Range(0, 0.5),
		gen.Float64Range(-10, 10),
		gen.Float64Range(-10, 10),
		gen.Float64Range(-5, 5),
		gen.Float64Range(-10, 10),
		gen.Float64Range(-10, 10),
		gen.Float64Range(1, 500),
		gen.Float64Range(0, 50),
		gen.Float64Range(0, 50),
		gen.Float64Range(0, 4),
		gen.Float64Range(-20, 20),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestMarketStateScore_ClampsAndAwardsBandwidthBonus(t *testing.T) {
	if s := marketStateScore(0.001, 100, 0.01); s != 0 {
		t.Fatalf("expected 0 for atrRatio below floor, got %v", s)
	}
	if s := marketStateScore(5, 100, 0.10); s != 100 {
		t.Fatalf("expected clamp to 100, got %v", s)
	}
}

func TestBollingerScore_Zones(t *testing.T) {
	boll := indicators.BollingerValue{Middle: 100, Upper: 110, Lower: 90, Bandwidth: 0.05, Ready: true}
	if s := bollingerScore(105, boll); s != 100 {
		t.Fatalf("expected 50+50 for upper zone with good bandwidth, got %v", s)
	}
	if s := bollingerScore(95, boll); s != 80 {
		t.Fatalf("expected 30+50 for lower-middle zone, got %v", s)
	}
	if s := bollingerScore(120, boll); s != 50 {
		t.Fatalf("expected 0+50 outside bands with good bandwidth, got %v", s)
	}
}

func TestVolumeScore_Thresholds(t *testing.T) {
	if s := volumeScore(2.5, 1.0); s != 100 {
		t.Fatalf("expected 30+20+50, got %v", s)
	}
	if s := volumeScore(1.0, 1.0); s != 0 {
		t.Fatalf("expected 0 for low volume ratio and no confirm, got %v", s)
	}
}
