package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"hkbacktest/internal/models"
)

// fixtureSource is a canned MarketDataSource used only by this test: it
// returns a single flat candle stamped at the requested start and never
// talks to a network.
type fixtureSource struct {
	failUntilAttempt int
	attempts         int
}

func (f *fixtureSource) FetchCandles(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) ([]models.Candle, error) {
	f.attempts++
	if f.attempts <= f.failUntilAttempt {
		return nil, &RetryableError{Err: fmt.Errorf("attempt %d: temporary failure", f.attempts)}
	}
	return []models.Candle{{Symbol: symbol, Timestamp: start, Open: 10, High: 10, Low: 10, Close: 10, Volume: 100}}, nil
}

func (f *fixtureSource) FetchCorporateActions(ctx context.Context, symbol string) ([]models.CorporateAction, error) {
	return nil, nil
}

// Property: IsRetryable classifies exactly the errors built from
// RetryableError as retryable, regardless of how many times they are
// wrapped with fmt.Errorf("%w", ...), and never misclassifies a plain
// error.
func TestProperty_IsRetryableClassifiesWrappedErrors(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("retryable errors stay retryable through wrapping, plain errors never become retryable", prop.ForAll(
		func(wraps int, retryable bool, msg string) bool {
			var err error
			if retryable {
				err = &RetryableError{Err: errors.New(msg)}
			} else {
				err = errors.New(msg)
			}
			for i := 0; i < wraps; i++ {
				err = fmt.Errorf("context %d: %w", i, err)
			}
			return IsRetryable(err) == retryable
		},
		gen.IntRange(0, 5),
		gen.Bool(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestFixtureSource_RetriesThenSucceeds(t *testing.T) {
	src := &fixtureSource{failUntilAttempt: 2}

	ctx := context.Background()
	start := time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	if _, err := src.FetchCandles(ctx, "02800.HK", models.Interval30Min, start, end); !IsRetryable(err) {
		t.Fatalf("expected retryable error on first attempt, got %v", err)
	}
	if _, err := src.FetchCandles(ctx, "02800.HK", models.Interval30Min, start, end); !IsRetryable(err) {
		t.Fatalf("expected retryable error on second attempt, got %v", err)
	}
	candles, err := src.FetchCandles(ctx, "02800.HK", models.Interval30Min, start, end)
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("expected one candle, got %d", len(candles))
	}
}
