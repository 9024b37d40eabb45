package signal

import (
	"testing"

	"hkbacktest/internal/models"
)

func TestRecordTrade_SuppressesAfterThreeConsecutiveLosses(t *testing.T) {
	e := New("0700.HK")
	if e.Suppressed() {
		t.Fatalf("expected not suppressed before any trades")
	}
	for i := 0; i < 3; i++ {
		e.RecordTrade(models.Trade{PnL: -100})
	}
	if !e.Suppressed() {
		t.Fatalf("expected suppression after 3 consecutive losses")
	}
}

func TestRecordTrade_RecoversAfterTwoWins(t *testing.T) {
	e := New("0700.HK")
	for i := 0; i < 3; i++ {
		e.RecordTrade(models.Trade{PnL: -100})
	}
	if !e.Suppressed() {
		t.Fatalf("expected suppression after losses")
	}
	e.RecordTrade(models.Trade{PnL: 100})
	if !e.Suppressed() {
		t.Fatalf("expected to remain suppressed after only one winning trade")
	}
	e.RecordTrade(models.Trade{PnL: 100})
	if e.Suppressed() {
		t.Fatalf("expected recovery after two winning trades")
	}
}

func TestRecordTrade_SuppressesOnLowWinRate(t *testing.T) {
	e := New("0700.HK")
	// 11 trades, only 3 wins (~27%) -> under the 30% win-rate floor, with
	// wins spaced so no run ever reaches 3 consecutive losses.
	outcomes := []float64{-1, -1, 1, -1, -1, 1, -1, -1, 1, -1, -1}
	for _, pnl := range outcomes {
		e.RecordTrade(models.Trade{PnL: pnl})
	}
	if !e.Suppressed() {
		t.Fatalf("expected suppression once trailing win rate drops below 30%%")
	}
}

func TestStrategyFor_MapsRegimesAndLeavesNeutralUnmapped(t *testing.T) {
	e := New("0700.HK")
	if e.StrategyFor(models.RegimeTrending) == nil {
		t.Fatalf("expected a strategy bound to TRENDING")
	}
	if e.StrategyFor(models.RegimeRanging) == nil {
		t.Fatalf("expected a strategy bound to RANGING")
	}
	if e.StrategyFor(models.RegimeBreakout) == nil {
		t.Fatalf("expected a strategy bound to BREAKOUT")
	}
	if e.StrategyFor(models.RegimeNeutral) != nil {
		t.Fatalf("expected NEUTRAL to have no home strategy")
	}
}
