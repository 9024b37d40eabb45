// Package cli provides the command-line front-end for the backtest
// engine: a thin cobra command tree wiring config load, logger
// construction, store open, and simulator Run, plus formatted report
// output. This is glue only; none of the core's algorithms live here.
package cli

import (
	"fmt"
	"strings"
	"time"
)

// hkLocation is Hong Kong's IANA timezone, used to render every
// timestamp the CLI prints.
func hkLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Hong_Kong")
	if err != nil {
		return time.UTC
	}
	return loc
}

// FormatHKD formats an amount in Hong Kong dollars with thousands
// separators and 2 decimal places, e.g. FormatHKD(1234567.8) == "HK$1,234,567.80".
func FormatHKD(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.SplitN(str, ".", 2)
	intPart := groupThousands(parts[0])

	result := "HK$" + intPart + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts commas every three digits from the right,
// Western grouping (1,234,567), the convention HKEX statements use.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	lead := n % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(s[:lead])
	for i := lead; i < n; i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a fraction (e.g. 0.125) as a signed percentage
// string, e.g. "+12.50%".
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value*100)
}

// FormatRatio formats a plain (non-percentage) ratio such as Sharpe or
// profit factor to 2 decimal places.
func FormatRatio(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

// FormatPnL formats a P&L amount in HKD with an explicit sign.
func FormatPnL(pnl float64) string {
	formatted := FormatHKD(pnl)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}

// FormatQuantity formats a share quantity with thousands separators.
func FormatQuantity(qty int) string {
	negative := qty < 0
	if negative {
		qty = -qty
	}
	s := groupThousands(fmt.Sprintf("%d", qty))
	if negative {
		return "-" + s
	}
	return s
}

// FormatPrice formats a price to 4 decimal places, matching the
// candle model's minimum fractional precision (spec 3).
func FormatPrice(price float64) string {
	return fmt.Sprintf("%.4f", price)
}

// FormatVolume formats a share-volume figure in compact K/M/B form.
func FormatVolume(volume float64) string {
	abs := volume
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", volume/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", volume/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", volume/1e3)
	default:
		return fmt.Sprintf("%.0f", volume)
	}
}

// FormatDate formats a date in Hong Kong local time.
func FormatDate(t time.Time) string {
	return t.In(hkLocation()).Format("02-Jan-2006")
}

// FormatDateTime formats a date and time in Hong Kong local time.
func FormatDateTime(t time.Time) string {
	return t.In(hkLocation()).Format("02-Jan-2006 15:04:05")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		days := int(d.Hours()) / 24
		hours := int(d.Hours()) % 24
		return fmt.Sprintf("%dd %dh", days, hours)
	}
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// PadRight pads a string to the right.
func PadRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

// PadLeft pads a string to the left.
func PadLeft(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return strings.Repeat(" ", length-len(s)) + s
}

// Center centers a string within length.
func Center(s string, length int) string {
	if len(s) >= length {
		return s
	}
	padding := length - len(s)
	left := padding / 2
	right := padding - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}
