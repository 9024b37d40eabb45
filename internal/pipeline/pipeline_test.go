package pipeline

import (
	"context"
	"testing"
	"time"

	stderrors "errors"

	bterrors "hkbacktest/internal/errors"
	"hkbacktest/internal/models"
)

type fakeSource struct {
	candles []models.Candle
	actions []models.CorporateAction
	err     error
}

func (f *fakeSource) FetchCandles(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) ([]models.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Candle
	for _, c := range f.candles {
		if !c.Timestamp.Before(start) && !c.Timestamp.After(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSource) FetchCorporateActions(ctx context.Context, symbol string) ([]models.CorporateAction, error) {
	return f.actions, nil
}

// flatSeries builds n consecutive 30-minute trading-session candles
// starting at the given session time, all flat at price/volume.
func flatSeries(symbol string, start time.Time, n int, price, volume float64) []models.Candle {
	out := make([]models.Candle, 0, n)
	t := start
	for len(out) < n {
		if t.Hour() == 12 {
			t = t.Add(time.Hour)
			continue
		}
		out = append(out, models.Candle{
			Symbol: symbol, Timestamp: t,
			Open: price, High: price, Low: price, Close: price, Volume: volume,
		})
		t = t.Add(30 * time.Minute)
		if t.Hour() >= 16 {
			t = t.AddDate(0, 0, 1)
			t = time.Date(t.Year(), t.Month(), t.Day(), 9, 30, 0, 0, t.Location())
			for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
				t = t.AddDate(0, 0, 1)
			}
		}
	}
	return out
}

func TestPrepare_FlatSeries_Usable(t *testing.T) {
	start := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	candles := flatSeries("02800.HK", start.AddDate(0, 0, -200), 400, 100, 1000)

	src := &fakeSource{candles: candles}
	p := New(src, nil, nil)

	end := candles[len(candles)-1].Timestamp
	backtestStart := candles[300].Timestamp

	prepared, err := p.Prepare(context.Background(), "02800.HK", models.Interval30Min, backtestStart, end)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if prepared.WarmupLen < 60 {
		t.Fatalf("expected warmup len >= 60, got %d", prepared.WarmupLen)
	}
	if prepared.BacktestLen() < 30 {
		t.Fatalf("expected backtest len >= 30, got %d", prepared.BacktestLen())
	}
	if !prepared.Quality.Usable {
		t.Fatalf("expected usable quality report, got %+v", prepared.Quality)
	}
}

func TestPrepare_SourceUnavailable(t *testing.T) {
	src := &fakeSource{err: stderrors.New("network down")}
	p := New(src, nil, nil)

	start := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	_, err := p.Prepare(context.Background(), "02800.HK", models.Interval30Min, start, start.Add(time.Hour))
	if !bterrors.Is(err, bterrors.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestPrepare_QualityRejected_DuplicateTimestamps(t *testing.T) {
	start := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	candles := flatSeries("02800.HK", start.AddDate(0, 0, -200), 200, 100, 1000)
	// Inject 15 duplicate timestamps, matching the spec's scenario 5.
	for i := 0; i < 15; i++ {
		dup := candles[i]
		candles = append(candles, dup)
	}

	src := &fakeSource{candles: candles}
	p := New(src, nil, nil)

	end := candles[199].Timestamp
	backtestStart := candles[150].Timestamp

	_, err := p.Prepare(context.Background(), "02800.HK", models.Interval30Min, backtestStart, end)
	if !bterrors.Is(err, bterrors.ErrQualityRejected) {
		t.Fatalf("expected ErrQualityRejected, got %v", err)
	}
	var qerr *bterrors.DataQualityError
	if !bterrors.As(err, &qerr) {
		t.Fatalf("expected *DataQualityError, got %T", err)
	}
	if qerr.Score >= 60 {
		t.Fatalf("expected quality score below 60, got %.1f", qerr.Score)
	}
}

func TestValidate_SuspiciousChangeBoundary(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	candles := []models.Candle{
		{Timestamp: base, Open: 100, High: 100, Low: 100, Close: 100, Volume: 100},
		{Timestamp: base.Add(30 * time.Minute), Open: 129.999, High: 129.999, Low: 129.999, Close: 129.999, Volume: 100},
	}
	report := Validate(candles, base, candles[1].Timestamp, models.Interval30Min)
	if report.Suspicious != 0 {
		t.Fatalf("expected 29.999%% change to NOT be suspicious, got %d suspicious", report.Suspicious)
	}

	candles[1].Open, candles[1].High, candles[1].Low, candles[1].Close = 130.0, 130.0, 130.0, 130.0
	report = Validate(candles, base, candles[1].Timestamp, models.Interval30Min)
	if report.Suspicious != 1 {
		t.Fatalf("expected exactly 30%% change to BE suspicious, got %d suspicious", report.Suspicious)
	}
}
