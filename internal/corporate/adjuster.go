// Package corporate adjusts a candle sequence for corporate actions
// (dividends, splits, bonuses, rights issues), producing either a
// backward- or forward-adjusted sequence.
//
// Grounded on the donor trading package's CorporateActionsHandler, whose
// bonus/split factor math is reused; the dividend and rights-issue factor
// formulas are new, since the donor left rights issues unadjusted
// (factor 1.0) and never modeled dividends as a price-adjustment input.
package corporate

import (
	"sort"
	"time"

	"hkbacktest/internal/commission"
	"hkbacktest/internal/models"
)

// Adjuster computes and applies adjustment factors for one symbol's
// corporate action history. It does not mutate its input and is safe to
// call repeatedly with the same arguments (idempotent).
type Adjuster struct{}

// New creates an Adjuster.
func New() *Adjuster {
	return &Adjuster{}
}

// eventFactor returns the per-event backward adjustment factor for one
// corporate action, given the close of the last trading day strictly
// before its ex-date.
func eventFactor(action models.CorporateAction, preClose float64) float64 {
	switch action.Kind {
	case models.ActionDividend:
		if preClose == 0 {
			return 1
		}
		return (preClose - action.DividendPerShare) / preClose
	case models.ActionSplit:
		if action.SplitOld == 0 || action.SplitNew == 0 {
			return 1
		}
		ratio := float64(action.SplitNew) / float64(action.SplitOld)
		return 1 / ratio
	case models.ActionBonus:
		b := float64(action.BonusBase)
		e := float64(action.BonusExtra)
		if b+e == 0 {
			return 1
		}
		return b / (b + e)
	case models.ActionRightsIssue:
		b := float64(action.RightsBase)
		e := float64(action.RightsExtra)
		if b+e == 0 || preClose == 0 {
			return 1
		}
		return (preClose*b + e*action.RightsPrice) / ((b + e) * preClose)
	default:
		return 1
	}
}

// preCloseBefore finds the close of the last candle strictly before exDate
// in the (assumed chronologically sorted, unadjusted) candle sequence.
func preCloseBefore(candles []models.Candle, exDate time.Time) float64 {
	var preClose float64
	for _, c := range candles {
		if !c.Timestamp.Before(exDate) {
			break
		}
		preClose = c.Close
	}
	return preClose
}

// AdjustBackward produces the backward-adjusted sequence: candles strictly
// before an ex-date are multiplied by the cumulative product of every
// later event's per-event factor; candles on or after the latest ex-date
// are unchanged. Volume is never adjusted. The input slice is not mutated;
// output prices are rounded to 4 decimals.
func (a *Adjuster) AdjustBackward(candles []models.Candle, actions []models.CorporateAction) []models.AdjustedCandle {
	sorted := sortedByExDate(actions)

	out := make([]models.AdjustedCandle, len(candles))
	for i, c := range candles {
		factor := 1.0
		rehab := models.RehabNone
		for _, act := range sorted {
			if c.Timestamp.Before(act.ExDate) {
				pre := preCloseBefore(candles, act.ExDate)
				factor *= eventFactor(act, pre)
				rehab = models.RehabBackward
			}
		}
		out[i] = applyFactor(c, factor, rehab)
	}
	return out
}

// AdjustForward produces the forward-adjusted sequence: candles on or
// after an ex-date are multiplied by the reciprocal of the cumulative
// product of every earlier event's per-event factor; candles before the
// earliest event are unchanged.
func (a *Adjuster) AdjustForward(candles []models.Candle, actions []models.CorporateAction) []models.AdjustedCandle {
	sorted := sortedByExDate(actions)

	out := make([]models.AdjustedCandle, len(candles))
	for i, c := range candles {
		factor := 1.0
		rehab := models.RehabNone
		for _, act := range sorted {
			if !c.Timestamp.Before(act.ExDate) {
				pre := preCloseBefore(candles, act.ExDate)
				factor *= 1 / eventFactor(act, pre)
				rehab = models.RehabForward
			}
		}
		out[i] = applyFactor(c, factor, rehab)
	}
	return out
}

func applyFactor(c models.Candle, factor float64, rehab models.RehabType) models.AdjustedCandle {
	return models.AdjustedCandle{
		Candle: models.Candle{
			Symbol:    c.Symbol,
			Timestamp: c.Timestamp,
			Open:      round4(c.Open * factor),
			High:      round4(c.High * factor),
			Low:       round4(c.Low * factor),
			Close:     round4(c.Close * factor),
			Volume:    c.Volume,
			Turnover:  c.Turnover,
		},
		Rehab: rehab,
	}
}

func sortedByExDate(actions []models.CorporateAction) []models.CorporateAction {
	sorted := make([]models.CorporateAction, len(actions))
	copy(sorted, actions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ExDate.Before(sorted[j].ExDate) })
	return sorted
}

func round4(v float64) float64 {
	return commission.RoundBankers(v, 4)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
