// Package strategy implements the three per-regime entry/exit strategies
// (spec §4.5) plus the regime classifier (spec §4.4's regime selector)
// that dispatches to them: MACD-trend for TRENDING markets, BOLL-
// reversion for RANGING, and Volume-breakout for BREAKOUT.
//
// Grounded on the donor's DefaultExitManager (trailing-stop/scale-out/
// time-exit config structs, one struct-plus-methods manager per concern)
// for the exit-side shape; entry conditions and the regime classifier are
// new, built directly from spec §4.4/§4.5 since the donor never modeled
// regime-dependent strategy selection.
package strategy

import (
	"hkbacktest/internal/analysis/indicators"
	"hkbacktest/internal/analysis/patterns"
	"hkbacktest/internal/models"
)

// ClassifyRegime implements the spec §4.4 regime selector.
func ClassifyRegime(primary indicators.Snapshot) models.Regime {
	switch {
	case primary.ADX.ADX >= 25 && primary.Bollinger.Bandwidth > 0.10:
		return models.RegimeTrending
	case primary.ADX.ADX < 20 && primary.Bollinger.Bandwidth < 0.05:
		return models.RegimeRanging
	case primary.VolumeRatio > 2.0 && (primary.Close > primary.Bollinger.Upper || primary.Close > primary.High20Day):
		return models.RegimeBreakout
	default:
		return models.RegimeNeutral
	}
}

// ExitReason names which exit rule fired, matching the spec's exit
// precedence list.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTrailing     ExitReason = "TRAILING_STOP"
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitRegimeChange ExitReason = "REGIME_CHANGE"
)

// ExitDecision is one strategy's verdict on whether an open position
// should be (partly) closed on this bar.
type ExitDecision struct {
	Triggered bool
	// Qty is the number of shares to close; 0 means "close everything
	// remaining" (the common case for every exit except a tiered
	// take-profit).
	Qty    int
	Price  float64
	Reason ExitReason
}

// Strategy is the per-regime entry/exit policy contract (spec §4.5).
type Strategy interface {
	Tag() models.StrategyTag
	HomeRegime() models.Regime

	// Generate evaluates the current bar's primary/confirmation snapshots
	// (plus the candle, for candlestick-pattern strategies) and reports
	// whether an entry should fire.
	Generate(primary, confirm indicators.Snapshot, candle models.Candle) bool

	// InitialStopLoss computes the stop level to attach to a freshly
	// opened position.
	InitialStopLoss(entryPrice float64, snap indicators.Snapshot) float64

	// InitialTakeProfit computes the take-profit level to attach to a
	// freshly opened position, for reporting; strategies whose actual
	// take-profit trigger reads a live indicator value (rather than a
	// level fixed at entry) still return their best entry-time estimate
	// of it here.
	InitialTakeProfit(entryPrice float64, snap indicators.Snapshot) float64

	// CheckExit applies the strategy's stop-loss/trailing/take-profit/
	// regime-change precedence to an open position for the current bar.
	// snap is the current bar's indicator snapshot, needed by strategies
	// whose take-profit condition reads a live indicator (the Bollinger
	// band, RSI) rather than a level fixed at entry. regimeBarsOutside is
	// how many consecutive bars (including this one) the market has spent
	// outside the strategy's home regime.
	CheckExit(pos *models.Position, bar models.AdjustedCandle, snap indicators.Snapshot, regimeBarsOutside int) ExitDecision
}

// hardStopExit is shared by every strategy: if the bar's low trades
// through the stop level, the position exits at the stop price (adjusted
// for slippage by the caller), using the bar's low per spec §4.9 step 2.
func hardStopExit(pos *models.Position, bar models.AdjustedCandle) (ExitDecision, bool) {
	if bar.Low <= pos.StopLoss {
		return ExitDecision{Triggered: true, Price: pos.StopLoss, Reason: ExitStopLoss}, true
	}
	return ExitDecision{}, false
}

// regimeChangeExit closes the whole position once the market has spent
// 3 consecutive bars outside the strategy's home regime.
func regimeChangeExit(bar models.AdjustedCandle, regimeBarsOutside int) (ExitDecision, bool) {
	if regimeBarsOutside >= 3 {
		return ExitDecision{Triggered: true, Price: bar.Close, Reason: ExitRegimeChange}, true
	}
	return ExitDecision{}, false
}

// ---- MACD-trend ----

// MACDTrend enters on a primary-timeframe golden cross confirmed by
// cross-timeframe MACD agreement, volume, and price above the middle
// band; exits via a trailing stop 3% below the high-water mark (armed
// once the bar's close is 5% above entry; the trail distance does not use
// ATR) and a tiered 30/40/30 take-profit ladder at +5%/+8%/+10%.
type MACDTrend struct {
	prev     indicators.Snapshot
	havePrev bool
}

// NewMACDTrend creates a MACD-trend strategy instance. One instance
// tracks state for exactly one symbol's bar stream.
func NewMACDTrend() *MACDTrend { return &MACDTrend{} }

func (s *MACDTrend) Tag() models.StrategyTag   { return models.StrategyMACD }
func (s *MACDTrend) HomeRegime() models.Regime { return models.RegimeTrending }

func (s *MACDTrend) Generate(primary, confirm indicators.Snapshot, candle models.Candle) bool {
	prev, havePrev := s.prev, s.havePrev
	s.prev, s.havePrev = primary, true

	if !havePrev || !primary.Ready || !confirm.Confirm.Ready {
		return false
	}
	goldenCross := prev.MACD.Line <= prev.MACD.Signal && primary.MACD.Line > primary.MACD.Signal
	histPositive := primary.MACD.Histogram > 0
	crossTFAgree := confirm.Confirm.MACD.Line > confirm.Confirm.MACD.Signal
	volumeOK := primary.VolumeRatio >= 1.5
	aboveMiddle := primary.Close > primary.Bollinger.Middle

	return goldenCross && histPositive && crossTFAgree && volumeOK && aboveMiddle
}

func (s *MACDTrend) InitialStopLoss(entryPrice float64, snap indicators.Snapshot) float64 {
	atrStop := entryPrice - 1.5*snap.ATR.ATR
	pctStop := entryPrice * 0.97
	if atrStop > pctStop {
		return atrStop
	}
	return pctStop
}

// InitialTakeProfit reports the first tier of the 30/40/30 ladder; the
// remaining tiers are computed directly from EntryPrice in CheckExit.
func (s *MACDTrend) InitialTakeProfit(entryPrice float64, snap indicators.Snapshot) float64 {
	return entryPrice * (1 + macdTrendTPLevels[0].gain)
}

// macdTrendTPLevels are the three take-profit tiers and the fraction of
// the *original* entry quantity each one closes.
var macdTrendTPLevels = [3]struct {
	gain     float64
	fraction float64
}{
	{gain: 0.05, fraction: 0.30},
	{gain: 0.08, fraction: 0.40},
	{gain: 0.10, fraction: 0.30},
}

func (s *MACDTrend) CheckExit(pos *models.Position, bar models.AdjustedCandle, snap indicators.Snapshot, regimeBarsOutside int) ExitDecision {
	if d, ok := hardStopExit(pos, bar); ok {
		return d
	}

	gain := (bar.Close - pos.EntryPrice) / pos.EntryPrice
	if gain >= 0.05 {
		pos.TrailingActive = true
	}
	if pos.TrailingActive {
		if bar.High > pos.HighWaterMark {
			pos.HighWaterMark = bar.High
		}
		trailLevel := pos.HighWaterMark * 0.97
		if trailLevel > pos.StopLoss && bar.Low <= trailLevel {
			return ExitDecision{Triggered: true, Price: trailLevel, Reason: ExitTrailing}
		}
	}

	if pos.TakeProfitStage < len(macdTrendTPLevels) {
		tier := macdTrendTPLevels[pos.TakeProfitStage]
		target := pos.EntryPrice * (1 + tier.gain)
		if bar.High >= target {
			qty := int(float64(pos.EntryQuantity) * tier.fraction)
			if pos.TakeProfitStage == len(macdTrendTPLevels)-1 {
				qty = 0 // final tier closes whatever remains
			}
			return ExitDecision{Triggered: true, Qty: qty, Price: target, Reason: ExitTakeProfit}
		}
	}

	if d, ok := regimeChangeExit(bar, regimeBarsOutside); ok {
		return d
	}
	return ExitDecision{}
}

// ---- BOLL-reversion ----

// BollReversion enters on a mean-reversion setup near the lower band
// confirmed by oversold RSI, a shrinking MACD histogram, 120-minute
// upward momentum, and a hammer/doji reversal candle; exits on a fixed
// -2% stop or when price reaches the upper band / RSI exceeds 70.
type BollReversion struct {
	prev     indicators.Snapshot
	havePrev bool
	detector *patterns.CandlestickDetector
}

// NewBollReversion creates a BOLL-reversion strategy instance.
func NewBollReversion() *BollReversion {
	return &BollReversion{detector: patterns.NewCandlestickDetector()}
}

func (s *BollReversion) Tag() models.StrategyTag   { return models.StrategyBOLL }
func (s *BollReversion) HomeRegime() models.Regime { return models.RegimeRanging }

func (s *BollReversion) Generate(primary, confirm indicators.Snapshot, candle models.Candle) bool {
	prev, havePrev := s.prev, s.havePrev
	s.prev, s.havePrev = primary, true

	if !havePrev || !primary.Ready || !confirm.Confirm.Ready || primary.Bollinger.Lower == 0 {
		return false
	}
	nearLowerBand := primary.Close <= primary.Bollinger.Lower*1.01
	oversold := primary.RSI < 30
	shrinkingHistogram := absf(primary.MACD.Histogram) < absf(prev.MACD.Histogram)
	// 120m confirmation: the confirmation timeframe's own close trading
	// above its own prior close signals the higher timeframe has stopped
	// making new lows.
	confirmRising := confirm.Confirm.Close > prev.Confirm.Close

	// Volume confirmation only affects the detected pattern's strength, not
	// whether a reversal shape is present at all, so 0 disables that bonus
	// here — this strategy gates on shape alone.
	pattern := s.detector.Detect(candle, 0)
	reversalCandle := pattern != nil

	return nearLowerBand && oversold && shrinkingHistogram && confirmRising && reversalCandle
}

func (s *BollReversion) InitialStopLoss(entryPrice float64, snap indicators.Snapshot) float64 {
	return entryPrice * 0.98
}

// InitialTakeProfit reports the upper band observed at entry as an
// estimate; the live CheckExit check re-reads the current bar's band.
func (s *BollReversion) InitialTakeProfit(entryPrice float64, snap indicators.Snapshot) float64 {
	return snap.Bollinger.Upper
}

// CheckExit exits on the fixed -2% stop, or once price touches the
// current bar's upper band or RSI clears 70 — both read live rather than
// fixed at entry, since mean-reversion targets move with volatility.
func (s *BollReversion) CheckExit(pos *models.Position, bar models.AdjustedCandle, snap indicators.Snapshot, regimeBarsOutside int) ExitDecision {
	if d, ok := hardStopExit(pos, bar); ok {
		return d
	}
	if snap.Bollinger.Ready && bar.High >= snap.Bollinger.Upper {
		return ExitDecision{Triggered: true, Price: snap.Bollinger.Upper, Reason: ExitTakeProfit}
	}
	if snap.RSI > 70 {
		return ExitDecision{Triggered: true, Price: bar.Close, Reason: ExitTakeProfit}
	}
	if d, ok := regimeChangeExit(bar, regimeBarsOutside); ok {
		return d
	}
	return ExitDecision{}
}

// ---- Volume-breakout ----

// VolumeBreakout enters on a volume surge with the MACD histogram
// crossing positive and price clearing the upper band or the 20-day high,
// confirmed by 120-minute upward momentum; exits on a fixed -4% stop or
// +6% target.
type VolumeBreakout struct {
	prev     indicators.Snapshot
	havePrev bool
}

// NewVolumeBreakout creates a Volume-breakout strategy instance.
func NewVolumeBreakout() *VolumeBreakout { return &VolumeBreakout{} }

func (s *VolumeBreakout) Tag() models.StrategyTag   { return models.StrategyVolume }
func (s *VolumeBreakout) HomeRegime() models.Regime { return models.RegimeBreakout }

func (s *VolumeBreakout) Generate(primary, confirm indicators.Snapshot, candle models.Candle) bool {
	prev, havePrev := s.prev, s.havePrev
	s.prev, s.havePrev = primary, true

	if !havePrev || !primary.Ready || !confirm.Confirm.Ready {
		return false
	}
	volumeSurge := primary.VolumeRatio > 2.0
	histogramCross := prev.MACD.Histogram <= 0 && primary.MACD.Histogram > 0
	breaksOut := primary.Close > primary.Bollinger.Upper || primary.Close > primary.High20Day
	confirmMomentum := confirm.Confirm.Close > prev.Confirm.Close

	return volumeSurge && histogramCross && breaksOut && confirmMomentum
}

func (s *VolumeBreakout) InitialStopLoss(entryPrice float64, snap indicators.Snapshot) float64 {
	return entryPrice * 0.96
}

func (s *VolumeBreakout) InitialTakeProfit(entryPrice float64, snap indicators.Snapshot) float64 {
	return entryPrice * 1.06
}

func (s *VolumeBreakout) CheckExit(pos *models.Position, bar models.AdjustedCandle, snap indicators.Snapshot, regimeBarsOutside int) ExitDecision {
	if d, ok := hardStopExit(pos, bar); ok {
		return d
	}
	if bar.High >= pos.TakeProfit {
		return ExitDecision{Triggered: true, Price: pos.TakeProfit, Reason: ExitTakeProfit}
	}
	if d, ok := regimeChangeExit(bar, regimeBarsOutside); ok {
		return d
	}
	return ExitDecision{}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
