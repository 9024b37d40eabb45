package risk

import (
	"errors"
	"testing"

	hkerrors "hkbacktest/internal/errors"
	"hkbacktest/internal/commission"
)

func testLimits() Limits {
	return Limits{
		MaxSinglePosition:    200000,
		MaxDailyLoss:         0.02,
		ConsecutiveLossLimit: 3,
		MaxDrawdown:          0.20,
	}
}

func TestValidate_PassesWithinAllLimits(t *testing.T) {
	s := New(testLimits(), commission.DefaultSchedule())
	acc := Account{Cash: 500000, TotalCapital: 1000000}
	if err := s.Validate(acc, 1000, 50); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_RejectsNegativePostTradeCash(t *testing.T) {
	s := New(testLimits(), commission.DefaultSchedule())
	acc := Account{Cash: 1000, TotalCapital: 1000000}
	err := s.Validate(acc, 1000, 50)
	if err == nil || !errors.Is(err, hkerrors.ErrRiskRejected) {
		t.Fatalf("expected a risk-rejected error, got %v", err)
	}
}

func TestValidate_RejectsOverSinglePositionCap(t *testing.T) {
	s := New(testLimits(), commission.DefaultSchedule())
	acc := Account{Cash: 10000000, TotalCapital: 10000000}
	err := s.Validate(acc, 100000, 50) // notional 5,000,000 >> 200,000 cap
	if err == nil {
		t.Fatalf("expected single-position cap to reject")
	}
}

func TestValidate_RejectsOverDailyLossCap(t *testing.T) {
	s := New(testLimits(), commission.DefaultSchedule())
	acc := Account{Cash: 10000000, TotalCapital: 1000000, RealizedLossToday: 30000}
	if err := s.Validate(acc, 100, 50); err == nil {
		t.Fatalf("expected daily loss cap (2%% of 1,000,000 = 20,000) to reject")
	}
}

func TestValidate_RejectsAtConsecutiveLossLimit(t *testing.T) {
	s := New(testLimits(), commission.DefaultSchedule())
	acc := Account{Cash: 10000000, TotalCapital: 10000000, ConsecutiveLosses: 3}
	if err := s.Validate(acc, 100, 50); err == nil {
		t.Fatalf("expected consecutive-loss limit to reject at the configured limit")
	}
}

func TestValidate_RejectsOverMaxDrawdown(t *testing.T) {
	s := New(testLimits(), commission.DefaultSchedule())
	acc := Account{Cash: 10000000, TotalCapital: 10000000, CurrentDrawdown: 0.25}
	if err := s.Validate(acc, 100, 50); err == nil {
		t.Fatalf("expected max-drawdown cap to reject")
	}
}

func TestSize_ClampsToFloorAndQuantizesToLots(t *testing.T) {
	limits := Limits{MaxSinglePosition: 200000, MaxDailyLoss: 0.02, ConsecutiveLossLimit: 3, MaxDrawdown: 0.20}
	s := New(limits, commission.DefaultSchedule())

	// Weak signal strength and win rate should clamp the raw formula down
	// to the 20,000 floor, then quantize to the nearest lower lot multiple.
	qty := s.Size(33.33, 1, 1, 10, 0.1, 100)
	notional := float64(qty) * 33.33
	if notional > minPositionValue+3333 || notional < minPositionValue-3333 {
		t.Fatalf("expected sized notional near the 20,000 floor, got %v (qty=%d)", notional, qty)
	}
	if qty%100 != 0 {
		t.Fatalf("expected qty to be a multiple of the 100-share lot size, got %d", qty)
	}
}

func TestSize_StrongSignalApproachesMaxSinglePosition(t *testing.T) {
	limits := Limits{MaxSinglePosition: 200000, MaxDailyLoss: 0.02, ConsecutiveLossLimit: 3, MaxDrawdown: 0.20}
	s := New(limits, commission.DefaultSchedule())

	// atrRatio=0.5 (the floor) maximizes (2-atrRatio)=1.5; full strength and
	// win rate should push the raw formula above maxSinglePosition, which
	// then clamps back down to the cap.
	qty := s.Size(100, 0.5, 1.0, 100, 1.0, 100)
	notional := float64(qty) * 100
	if notional > limits.MaxSinglePosition {
		t.Fatalf("expected notional clamped at or below max single position, got %v", notional)
	}
	if notional < limits.MaxSinglePosition-100 {
		t.Fatalf("expected notional to approach the cap, got %v", notional)
	}
}
