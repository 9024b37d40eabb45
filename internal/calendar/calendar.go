// Package calendar implements the HK trading calendar: weekdays minus an
// embedded per-year public-holiday set, plus the HKEX trading-hours grid
// used to validate candle timestamps.
package calendar

import "time"

// Session bounds for a single HK trading day (HKT, two sessions).
var (
	morningOpen  = hm(9, 30)
	morningClose = hm(12, 0)
	afternoonOpen  = hm(13, 0)
	afternoonClose = hm(16, 0)
)

type hourMin struct {
	hour, min int
}

func hm(h, m int) hourMin { return hourMin{h, m} }

// holidayDates holds explicit (year, month, day) entries, fixed plus lunar,
// for the years the engine ships data for. This is intentionally a static
// table rather than a lunar-calendar calculator: HKEX publishes the
// official list each year and the core treats it as input data.
var holidayDates = map[string]bool{
	// Fixed holidays, every year: Jan 1, May 1, Jul 1, Oct 1, Dec 25-26.
	// Lunar holidays (Chinese New Year, Qingming, Buddha's Birthday, Tuen Ng,
	// Mid-Autumn) for the years this table covers.
	"2023-01-02": true, "2023-01-23": true, "2023-01-24": true, "2023-01-25": true,
	"2023-04-05": true, "2023-05-01": true, "2023-05-26": true, "2023-06-22": true,
	"2023-07-01": true, "2023-10-02": true, "2023-09-29": true, "2023-12-25": true, "2023-12-26": true,
	"2024-01-01": true, "2024-02-10": true, "2024-02-12": true, "2024-02-13": true,
	"2024-04-04": true, "2024-05-01": true, "2024-05-15": true, "2024-06-10": true,
	"2024-07-01": true, "2024-09-18": true, "2024-10-01": true, "2024-12-25": true, "2024-12-26": true,
	"2025-01-01": true, "2025-01-29": true, "2025-01-30": true, "2025-01-31": true,
	"2025-04-04": true, "2025-05-01": true, "2025-05-05": true, "2025-05-31": true,
	"2025-07-01": true, "2025-10-01": true, "2025-10-07": true, "2025-12-25": true, "2025-12-26": true,
	"2026-01-01": true, "2026-02-17": true, "2026-02-18": true, "2026-02-19": true,
	"2026-04-04": true, "2026-05-01": true, "2026-05-25": true, "2026-06-19": true,
	"2026-07-01": true, "2026-09-26": true, "2026-10-01": true, "2026-12-25": true, "2026-12-26": true,
}

// IsHoliday reports whether the given date (ignoring time of day) is an HK
// public holiday per the embedded table.
func IsHoliday(t time.Time) bool {
	return holidayDates[t.Format("2006-01-02")]
}

// IsTradingDay reports whether t falls on an HK trading day: a weekday that
// is not a public holiday.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !IsHoliday(t)
}

// PreviousTradingDay walks backward from t (exclusive) to the nearest
// trading day.
func PreviousTradingDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// WalkBackTradingDays walks backward from start (exclusive) through the
// calendar, counting trading days, until it has accumulated n of them or
// has scanned more than maxCalendarDays calendar days. It returns the date
// of the n-th trading day back (or, if the cap was hit, the earliest
// trading day found, or start itself if none was found) and the count
// actually found.
func WalkBackTradingDays(start time.Time, n, maxCalendarDays int) (time.Time, int) {
	found := 0
	d := start
	scanned := 0
	last := start
	for found < n && scanned < maxCalendarDays {
		d = d.AddDate(0, 0, -1)
		scanned++
		if IsTradingDay(d) {
			found++
			last = d
		}
	}
	return last, found
}

// InTradingHours reports whether t's time-of-day falls within one of the
// two HK trading sessions: 09:30-12:00 or 13:00-16:00.
func InTradingHours(t time.Time) bool {
	cur := hm(t.Hour(), t.Minute())
	return between(cur, morningOpen, morningClose) || between(cur, afternoonOpen, afternoonClose)
}

func between(cur, lo, hi hourMin) bool {
	curMin := cur.hour*60 + cur.min
	loMin := lo.hour*60 + lo.min
	hiMin := hi.hour*60 + hi.min
	return curMin >= loMin && curMin <= hiMin
}

// OnGrid reports whether t is both a valid trading day and within trading
// hours. The data pipeline's missing-in-schedule count uses ExpectedBars,
// not this check.
func OnGrid(t time.Time) bool {
	return IsTradingDay(t) && InTradingHours(t)
}

// ExpectedBars generates the full grid of session-bar timestamps, one per
// intervalMinutes, across every trading day in [start, end] (inclusive).
// Bars are labeled by the start of the period they cover, e.g. for a
// 30-minute interval the morning session yields 09:30, 10:00, ..., 11:30
// (not 12:00, since that bar would run past the session close) and the
// afternoon session yields 13:00, ..., 15:30. Used to count
// missing-in-schedule candles against the candles actually returned by the
// data source.
func ExpectedBars(start, end time.Time, intervalMinutes int) []time.Time {
	if intervalMinutes <= 0 {
		return nil
	}
	var out []time.Time
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
	step := time.Duration(intervalMinutes) * time.Minute
	for !day.After(last) {
		if IsTradingDay(day) {
			out = append(out, sessionBars(day, morningOpen, morningClose, step)...)
			out = append(out, sessionBars(day, afternoonOpen, afternoonClose, step)...)
		}
		day = day.AddDate(0, 0, 1)
	}
	filtered := out[:0]
	for _, ts := range out {
		if !ts.Before(start) && !ts.After(end) {
			filtered = append(filtered, ts)
		}
	}
	return filtered
}

func sessionBars(day time.Time, open, close hourMin, step time.Duration) []time.Time {
	var bars []time.Time
	t := time.Date(day.Year(), day.Month(), day.Day(), open.hour, open.min, 0, 0, day.Location())
	sessionClose := time.Date(day.Year(), day.Month(), day.Day(), close.hour, close.min, 0, 0, day.Location())
	for t.Before(sessionClose) {
		bars = append(bars, t)
		t = t.Add(step)
	}
	return bars
}

// IntervalMinutes returns the bar size in minutes for a models.Interval, or
// 0 for the daily interval (which the grid check does not apply to).
func IntervalMinutes(interval string) int {
	switch interval {
	case "1m":
		return 1
	case "5m":
		return 5
	case "15m":
		return 15
	case "30m":
		return 30
	case "60m":
		return 60
	default:
		return 0
	}
}
