// Package commission implements the HKEX fee schedule: six components, each
// with its own rate and min/max caps, individually banker's-rounded to 2
// decimals before being summed into a CommissionBreakdown.
package commission

import (
	"math"

	"hkbacktest/internal/models"
)

// Component describes one fee line: a rate applied to trade value, bounded
// below by Min and (optionally) above by Max.
type Component struct {
	Rate float64
	Min  float64
	Max  float64 // 0 means uncapped
	// SellOnly restricts the component to sell-side trades.
	SellOnly bool
	// WaivedForETF zeroes the component entirely for ETF symbols.
	WaivedForETF bool
}

// Schedule is the full set of HKEX fee components. Every numeric value is
// a tunable parameter, loaded from config with these as defaults.
type Schedule struct {
	Commission              Component
	TradingFee              Component
	SettlementFee           Component
	CCASSFee                Component
	StampDuty               Component
	InvestorCompensationFee Component
}

// DefaultSchedule returns the HKEX fee schedule as specified. The stamp
// duty minimum of 1.00 HKD is frozen for reproducibility per the core's
// design notes even though published HKEX rules have varied by year; it is
// exposed as a config override (see internal/config).
func DefaultSchedule() Schedule {
	return Schedule{
		Commission:              Component{Rate: 0.00025, Min: 5.00, Max: 100.00},
		TradingFee:              Component{Rate: 0.00005, Min: 0.01, Max: 100.00},
		SettlementFee:           Component{Rate: 0.00002, Min: 2.00, Max: 100.00},
		CCASSFee:                Component{Rate: 0.00002, Min: 2.00, Max: 100.00},
		StampDuty:               Component{Rate: 0.0013, Min: 1.00, SellOnly: true, WaivedForETF: true},
		InvestorCompensationFee: Component{Rate: 0.00002, Max: 100.00, SellOnly: true},
	}
}

// apply computes one bounded, banker's-rounded fee component on the given
// trade value; side and isETF gate SellOnly/WaivedForETF components.
func (c Component) apply(value float64, side models.Side, isETF bool) float64 {
	if c.SellOnly && side != models.SideSell {
		return 0
	}
	if c.WaivedForETF && isETF {
		return 0
	}
	fee := value * c.Rate
	if c.Min > 0 && fee < c.Min {
		fee = c.Min
	}
	if c.Max > 0 && fee > c.Max {
		fee = c.Max
	}
	return RoundBankers(fee, 2)
}

// Compute returns the full CommissionBreakdown for a fill of qty shares at
// price, on the given side, for a symbol whose ETF flag is isETF.
func (s Schedule) Compute(side models.Side, qty int, price float64, isETF bool) models.CommissionBreakdown {
	value := float64(qty) * price

	b := models.CommissionBreakdown{
		Commission:              s.Commission.apply(value, side, isETF),
		TradingFee:              s.TradingFee.apply(value, side, isETF),
		SettlementFee:           s.SettlementFee.apply(value, side, isETF),
		CCASSFee:                s.CCASSFee.apply(value, side, isETF),
		StampDuty:               s.StampDuty.apply(value, side, isETF),
		InvestorCompensationFee: s.InvestorCompensationFee.apply(value, side, isETF),
	}
	b.Total = b.Commission + b.TradingFee + b.SettlementFee + b.CCASSFee + b.StampDuty + b.InvestorCompensationFee
	return b
}

// RoundBankers rounds v to the given number of decimal places using
// round-half-to-even (banker's rounding), as the fee model and the
// corporate-action adjuster both require.
func RoundBankers(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	scaled := v * scale
	floor := math.Floor(scaled)
	diff := scaled - floor
	const eps = 1e-9
	switch {
	case diff < 0.5-eps:
		return floor / scale
	case diff > 0.5+eps:
		return (floor + 1) / scale
	default:
		// Exactly (within float tolerance) on the boundary: round to even.
		if math.Mod(floor, 2) == 0 {
			return floor / scale
		}
		return (floor + 1) / scale
	}
}
