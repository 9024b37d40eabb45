package strategy

import (
	"testing"

	"hkbacktest/internal/analysis/indicators"
	"hkbacktest/internal/models"
)

func readySnapshot(close, adx, bandwidth, volRatio, high20 float64) indicators.Snapshot {
	return indicators.Snapshot{
		Close:       close,
		Bollinger:   indicators.BollingerValue{Middle: close, Upper: close * 1.05, Lower: close * 0.95, Bandwidth: bandwidth, Ready: true},
		ADX:         indicators.ADXValue{ADX: adx, Ready: true},
		VolumeRatio: volRatio,
		High20Day:   high20,
		Ready:       true,
	}
}

func TestClassifyRegime(t *testing.T) {
	cases := []struct {
		name string
		snap indicators.Snapshot
		want models.Regime
	}{
		{"trending", readySnapshot(100, 30, 0.12, 1.0, 200), models.RegimeTrending},
		{"ranging", readySnapshot(100, 15, 0.02, 1.0, 200), models.RegimeRanging},
		{"breakout", readySnapshot(200, 22, 0.07, 2.5, 150), models.RegimeBreakout},
		{"neutral", readySnapshot(100, 22, 0.07, 1.0, 200), models.RegimeNeutral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyRegime(tc.snap); got != tc.want {
				t.Fatalf("ClassifyRegime() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMACDTrend_GenerateRequiresGoldenCrossAndConfirmation(t *testing.T) {
	s := NewMACDTrend()
	candle := models.Candle{Open: 100, High: 101, Low: 99, Close: 100}

	below := indicators.Snapshot{
		Ready: true,
		MACD:  indicators.MACDValue{Line: -1, Signal: 0, Histogram: -1, Ready: true},
		Bollinger: indicators.BollingerValue{Middle: 100, Ready: true},
		Confirm: indicators.ConfirmSnapshot{Ready: true, MACD: indicators.MACDValue{Line: 1, Signal: 0, Ready: true}},
	}
	if s.Generate(below, below, candle) {
		t.Fatalf("expected no entry on first bar (no previous snapshot yet)")
	}

	above := indicators.Snapshot{
		Close:       101,
		Ready:       true,
		MACD:        indicators.MACDValue{Line: 1, Signal: 0, Histogram: 1, Ready: true},
		Bollinger:   indicators.BollingerValue{Middle: 100, Ready: true},
		VolumeRatio: 2.0,
		Confirm:     indicators.ConfirmSnapshot{Ready: true, MACD: indicators.MACDValue{Line: 1, Signal: 0, Ready: true}},
	}
	if !s.Generate(above, above, candle) {
		t.Fatalf("expected golden-cross entry to fire once MACD crosses above signal with confirmation")
	}
}

func TestMACDTrend_InitialStopLossTakesTheHigherFloor(t *testing.T) {
	s := NewMACDTrend()
	snap := indicators.Snapshot{ATR: indicators.ATRValue{ATR: 0.5, Ready: true}}
	// entry*0.97 = 97; entry-1.5*atr = 99.25 -> the ATR floor should win here.
	if got := s.InitialStopLoss(100, snap); got != 99.25 {
		t.Fatalf("expected ATR-based stop 99.25, got %v", got)
	}

	wide := indicators.Snapshot{ATR: indicators.ATRValue{ATR: 5, Ready: true}}
	// entry-1.5*atr = 92.5; entry*0.97 = 97 -> the percentage floor should win here.
	if got := s.InitialStopLoss(100, wide); got != 97 {
		t.Fatalf("expected percentage-based stop 97, got %v", got)
	}
}

func TestMACDTrend_CheckExit_HardStopTakesPrecedence(t *testing.T) {
	s := NewMACDTrend()
	pos := &models.Position{EntryPrice: 100, StopLoss: 95, EntryQuantity: 900, TakeProfit: 110}
	bar := models.AdjustedCandle{Candle: models.Candle{High: 101, Low: 94, Close: 96}}

	d := s.CheckExit(pos, bar, indicators.Snapshot{}, 0)
	if !d.Triggered || d.Reason != ExitStopLoss {
		t.Fatalf("expected hard stop-loss exit, got %+v", d)
	}
}

func TestMACDTrend_CheckExit_TieredTakeProfit(t *testing.T) {
	s := NewMACDTrend()
	pos := &models.Position{EntryPrice: 100, StopLoss: 90, EntryQuantity: 1000}
	bar := models.AdjustedCandle{Candle: models.Candle{High: 105, Low: 99, Close: 104}}

	d := s.CheckExit(pos, bar, indicators.Snapshot{}, 0)
	if !d.Triggered || d.Reason != ExitTakeProfit || d.Qty != 300 {
		t.Fatalf("expected first tier to close 30%% (300 shares), got %+v", d)
	}
}

func TestMACDTrend_CheckExit_RegimeChangeAfterThreeBars(t *testing.T) {
	s := NewMACDTrend()
	pos := &models.Position{EntryPrice: 100, StopLoss: 90, EntryQuantity: 1000, TakeProfitStage: len(macdTrendTPLevels)}
	bar := models.AdjustedCandle{Candle: models.Candle{High: 101, Low: 99, Close: 100}}

	if d := s.CheckExit(pos, bar, indicators.Snapshot{}, 2); d.Triggered {
		t.Fatalf("expected no exit before 3 consecutive mismatched bars, got %+v", d)
	}
	d := s.CheckExit(pos, bar, indicators.Snapshot{}, 3)
	if !d.Triggered || d.Reason != ExitRegimeChange {
		t.Fatalf("expected regime-change exit at 3 consecutive bars, got %+v", d)
	}
}

func TestBollReversion_InitialStopLossIsFixedTwoPercent(t *testing.T) {
	s := NewBollReversion()
	if got := s.InitialStopLoss(100, indicators.Snapshot{}); got != 98 {
		t.Fatalf("expected fixed -2%% stop at 98, got %v", got)
	}
}

func TestVolumeBreakout_InitialStopLossIsFixedFourPercent(t *testing.T) {
	s := NewVolumeBreakout()
	if got := s.InitialStopLoss(100, indicators.Snapshot{}); got != 96 {
		t.Fatalf("expected fixed -4%% stop at 96, got %v", got)
	}
}

func TestVolumeBreakout_CheckExit_TakeProfitAtFixedTarget(t *testing.T) {
	s := NewVolumeBreakout()
	pos := &models.Position{EntryPrice: 100, StopLoss: 96, TakeProfit: 106}
	bar := models.AdjustedCandle{Candle: models.Candle{High: 107, Low: 100, Close: 106}}

	d := s.CheckExit(pos, bar, indicators.Snapshot{}, 0)
	if !d.Triggered || d.Reason != ExitTakeProfit {
		t.Fatalf("expected take-profit exit, got %+v", d)
	}
}
