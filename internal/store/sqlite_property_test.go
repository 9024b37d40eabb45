package store

import (
	"context"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"hkbacktest/internal/models"
)

// Property: for any valid candle batch, SaveCandles followed by
// FindCandles over the batch's full timestamp range returns equivalent
// data (round-trip consistency).
func TestProperty_CandleRoundTripConsistency(t *testing.T) {
	dbPath := "test_candles_property.db"
	defer os.Remove(dbPath)

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	intervalGen := gen.OneConstOf(models.Interval1Min, models.Interval5Min, models.Interval15Min, models.Interval30Min, models.Interval60Min)
	countGen := gen.IntRange(1, 20)
	priceGen := gen.Float64Range(10.0, 500.0)
	volumeGen := gen.Int64Range(1000, 1000000)

	properties.Property("candle round-trip: save then find produces equivalent data", prop.ForAll(
		func(interval models.Interval, count int, basePrice float64, baseVolume int64) bool {
			ctx := context.Background()
			symbol := fmt.Sprintf("TEST_%d.HK", time.Now().UnixNano()%1_000_000_000)

			candles := generateTestCandles(symbol, count, basePrice, baseVolume)

			if err := s.SaveCandles(ctx, interval, candles); err != nil {
				t.Logf("failed to save candles: %v", err)
				return false
			}

			from := candles[0].Timestamp.Add(-time.Second)
			to := candles[len(candles)-1].Timestamp.Add(time.Second)
			retrieved, err := s.FindCandles(ctx, symbol, interval, from, to)
			if err != nil {
				t.Logf("failed to find candles: %v", err)
				return false
			}

			if len(retrieved) != len(candles) {
				t.Logf("count mismatch: expected %d, got %d", len(candles), len(retrieved))
				return false
			}
			for i, orig := range candles {
				if !candlesEqual(orig, retrieved[i]) {
					t.Logf("candle mismatch at index %d: original=%+v, retrieved=%+v", i, orig, retrieved[i])
					return false
				}
			}
			return true
		},
		intervalGen,
		countGen,
		priceGen,
		volumeGen,
	))

	properties.Property("empty batch: saving an empty slice succeeds", prop.ForAll(
		func(interval models.Interval) bool {
			return s.SaveCandles(context.Background(), interval, []models.Candle{}) == nil
		},
		intervalGen,
	))

	properties.TestingRun(t)
}

func generateTestCandles(symbol string, count int, basePrice float64, baseVolume int64) []models.Candle {
	candles := make([]models.Candle, count)
	baseTime := time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC)

	for i := 0; i < count; i++ {
		variation := float64(i%10) * 0.01 * basePrice
		open := basePrice + variation
		close := basePrice + variation*0.5

		high := math.Max(open, close) * 1.01
		low := math.Min(open, close) * 0.99

		candles[i] = models.Candle{
			Symbol:    symbol,
			Timestamp: baseTime.Add(time.Duration(i) * time.Minute),
			Open:      roundToDecimal(open, 2),
			High:      roundToDecimal(high, 2),
			Low:       roundToDecimal(low, 2),
			Close:     roundToDecimal(close, 2),
			Volume:    float64(baseVolume + int64(i*1000)),
		}
	}

	return candles
}

func roundToDecimal(val float64, places int) float64 {
	multiplier := math.Pow(10, float64(places))
	return math.Round(val*multiplier) / multiplier
}

func candlesEqual(a, b models.Candle) bool {
	const tolerance = 0.01

	if !a.Timestamp.Equal(b.Timestamp) {
		return false
	}
	if !floatEqual(a.Open, b.Open, tolerance) {
		return false
	}
	if !floatEqual(a.High, b.High, tolerance) {
		return false
	}
	if !floatEqual(a.Low, b.Low, tolerance) {
		return false
	}
	if !floatEqual(a.Close, b.Close, tolerance) {
		return false
	}
	if !floatEqual(a.Volume, b.Volume, tolerance) {
		return false
	}
	return true
}

func floatEqual(a, b, tolerance float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
