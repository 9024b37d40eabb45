package cli

import (
	"math"
	"regexp"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any amount, FormatHKD should:
// 1. Carry the HK$ prefix (after any leading minus sign).
// 2. Have exactly 2 decimal places.
// 3. Group the integer part in Western thousands (comma every 3 digits).
// 4. Preserve the numeric value when parsed back.
func TestProperty_HKDCurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatHKD produces a valid HK$ grouped format", prop.ForAll(
		func(amount float64) bool {
			if math.IsNaN(amount) || math.IsInf(amount, 0) {
				return true
			}
			if math.Abs(amount) > 1e15 {
				return true
			}

			formatted := FormatHKD(amount)

			if amount >= 0 {
				if !strings.HasPrefix(formatted, "HK$") {
					t.Logf("expected HK$ prefix for %f, got %s", amount, formatted)
					return false
				}
			} else {
				if !strings.HasPrefix(formatted, "-HK$") {
					t.Logf("expected -HK$ prefix for %f, got %s", amount, formatted)
					return false
				}
			}

			parts := strings.Split(formatted, ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				t.Logf("expected 2 decimal places for %f, got %s", amount, formatted)
				return false
			}

			numPart := strings.TrimPrefix(formatted, "-")
			numPart = strings.TrimPrefix(numPart, "HK$")
			numPart = strings.Split(numPart, ".")[0]

			westernPattern := regexp.MustCompile(`^\d{1,3}(,\d{3})*$`)
			if !westernPattern.MatchString(numPart) {
				t.Logf("invalid Western grouping for %f: %s (numPart: %s)", amount, formatted, numPart)
				return false
			}

			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatHKD preserves value through a round-trip parse", prop.ForAll(
		func(amount float64) bool {
			if math.IsNaN(amount) || math.IsInf(amount, 0) {
				return true
			}
			if math.Abs(amount) > 1e12 {
				return true
			}

			formatted := FormatHKD(amount)
			parsed := parseHKD(formatted)

			roundedAmount := math.Round(amount*100) / 100
			diff := math.Abs(parsed - roundedAmount)
			if diff > 0.01 {
				t.Logf("value not preserved: original=%f, formatted=%s, parsed=%f", amount, formatted, parsed)
				return false
			}
			return true
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("FormatPercent always ends in %% and signs positives", prop.ForAll(
		func(value float64) bool {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return true
			}
			formatted := FormatPercent(value)
			if !strings.HasSuffix(formatted, "%") {
				t.Logf("expected %% suffix for %f, got %s", value, formatted)
				return false
			}
			if value > 0 && !strings.HasPrefix(formatted, "+") {
				t.Logf("expected + prefix for positive %f, got %s", value, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-1, 1),
	))

	properties.Property("FormatVolume uses the correct compact unit", prop.ForAll(
		func(volume float64) bool {
			if math.IsNaN(volume) || math.IsInf(volume, 0) {
				return true
			}
			formatted := FormatVolume(volume)
			abs := math.Abs(volume)
			switch {
			case abs >= 1e9:
				return strings.Contains(formatted, "B")
			case abs >= 1e6:
				return strings.Contains(formatted, "M")
			case abs >= 1e3:
				return strings.Contains(formatted, "K")
			default:
				return !strings.ContainsAny(formatted, "KMB")
			}
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.TestingRun(t)
}

// parseHKD parses a FormatHKD-produced string back to float64.
func parseHKD(s string) float64 {
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "HK$")
	s = strings.ReplaceAll(s, ",", "")

	var parsed float64
	for i, c := range s {
		if c == '.' {
			decPart := s[i+1:]
			for j, d := range decPart {
				if d >= '0' && d <= '9' {
					parsed += float64(d-'0') / math.Pow(10, float64(j+1))
				}
			}
			break
		}
		if c >= '0' && c <= '9' {
			parsed = parsed*10 + float64(c-'0')
		}
	}

	if negative {
		parsed = -parsed
	}
	return parsed
}

func TestFormatHKDExamples(t *testing.T) {
	cases := []struct {
		amount   float64
		expected string
	}{
		{0, "HK$0.00"},
		{1, "HK$1.00"},
		{999, "HK$999.00"},
		{1000, "HK$1,000.00"},
		{22000, "HK$22,000.00"},
		{1234567.8, "HK$1,234,567.80"},
		{-1234.56, "-HK$1,234.56"},
	}
	for _, tc := range cases {
		t.Run(tc.expected, func(t *testing.T) {
			if got := FormatHKD(tc.amount); got != tc.expected {
				t.Errorf("FormatHKD(%v) = %s, want %s", tc.amount, got, tc.expected)
			}
		})
	}
}

func TestFormatPercentExamples(t *testing.T) {
	cases := []struct {
		value    float64
		expected string
	}{
		{0, "0.00%"},
		{0.015, "+1.50%"},
		{-0.025, "-2.50%"},
		{1, "+100.00%"},
		{-1, "-100.00%"},
	}
	for _, tc := range cases {
		t.Run(tc.expected, func(t *testing.T) {
			if got := FormatPercent(tc.value); got != tc.expected {
				t.Errorf("FormatPercent(%v) = %s, want %s", tc.value, got, tc.expected)
			}
		})
	}
}
