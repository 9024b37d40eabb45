// Package pipeline implements the historical data pipeline (spec §4.1):
// it fetches raw candles for a warm-up-extended date range, validates and
// scores them, adjusts for corporate actions, and hands downstream
// consumers an immutable PreparedData handle that is only ever produced
// once it has cleared the usability gate.
//
// Grounded on the donor's DefaultBacktestEngine.Run data-loading prologue
// (backtest.go) for overall shape, but the donor never modeled a
// warm-up walk-back, a per-candle validation pipeline, or a quality
// score; these are new, written in the donor's plain struct-plus-method
// style and built directly from spec §4.1.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hkbacktest/internal/broker"
	"hkbacktest/internal/calendar"
	"hkbacktest/internal/corporate"
	"hkbacktest/internal/errors"
	"hkbacktest/internal/models"
	"hkbacktest/internal/store"
	"hkbacktest/pkg/utils"
)

const (
	warmupTradingDays  = 100
	warmupMaxCalendar  = 200
	minWarmupLen       = 60
	minBacktestLen     = 30
	maxSuspiciousPct   = 0.30
	maxFractionDigits  = 4
	minPrice           = 0.001
	maxPrice           = 10000.0
)

// Quality thresholds for the usability gate (spec §4.1).
const (
	maxInvalidPriceRate  = 0.05
	maxInvalidVolumeRate = 0.10
	maxSuspiciousRate    = 0.02
	maxDuplicateRate     = 0.01
	maxMissingRate       = 0.10
	minUsableCandles     = 60
)

// QualityCategory names one bucket of validation failure counted in a
// DataQualityReport.
type QualityCategory string

const (
	CategoryInvalidPrice  QualityCategory = "invalid-price"
	CategoryInvalidVolume QualityCategory = "invalid-volume"
	CategoryDuplicate     QualityCategory = "duplicate-timestamp"
	CategorySuspicious    QualityCategory = "suspicious-change"
	CategoryMissing       QualityCategory = "missing-in-schedule"
)

// DataQualityReport totals the per-category validation failures across a
// candle sequence, plus the derived 0-100 score and grade from spec §4.1.
type DataQualityReport struct {
	TotalCandles    int
	InvalidPrice    int
	InvalidVolume   int
	Duplicate       int
	Suspicious      int
	Missing         int
	Score           float64
	Grade           string
	Usable          bool
}

func (r *DataQualityReport) rate(n int) float64 {
	if r.TotalCandles == 0 {
		return 0
	}
	return float64(n) / float64(r.TotalCandles)
}

// finalize computes Score, Grade, and Usable from the accumulated counts.
// Missing is rated against TotalCandles+Missing (the full expected grid),
// not against TotalCandles alone.
func (r *DataQualityReport) finalize() {
	invPriceRate := r.rate(r.InvalidPrice)
	invVolRate := r.rate(r.InvalidVolume)
	suspiciousRate := r.rate(r.Suspicious)
	dupRate := r.rate(r.Duplicate)
	expected := r.TotalCandles + r.Missing
	missingRate := 0.0
	if expected > 0 {
		missingRate = float64(r.Missing) / float64(expected)
	}

	score := 100 - 100*(0.40*invPriceRate+0.20*invVolRate+0.30*suspiciousRate+0.20*dupRate+0.15*missingRate)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	r.Score = score

	switch {
	case score >= 90:
		r.Grade = "excellent"
	case score >= 80:
		r.Grade = "good"
	case score >= 70:
		r.Grade = "acceptable"
	case score >= 60:
		r.Grade = "poor"
	default:
		r.Grade = "unusable"
	}

	// Note: the weighted score formula above and this per-category gate are
	// independent checks, and the gate is the stricter of the two for a
	// high-volume, low-weight category like duplicates — e.g. 15 duplicate
	// timestamps out of 200 candles (7.5%) still scores ~98.5 (weight 0.20)
	// but fails dupRate <= maxDuplicateRate outright, so Usable=false and
	// the run is QUALITY_REJECTED on the gate, not the score.
	r.Usable = invPriceRate <= maxInvalidPriceRate &&
		invVolRate <= maxInvalidVolumeRate &&
		suspiciousRate <= maxSuspiciousRate &&
		dupRate <= maxDuplicateRate &&
		missingRate <= maxMissingRate &&
		r.TotalCandles >= minUsableCandles
}

// PreparedData is an immutable handle over a contiguous sequence of
// adjusted candles, split into a warm-up prefix and a backtest suffix.
type PreparedData struct {
	Symbol      models.SymbolMetadata
	Interval    models.Interval
	Candles     []models.AdjustedCandle
	WarmupLen   int
	Quality     DataQualityReport
}

// GetWarmupData returns the warm-up prefix.
func (p *PreparedData) GetWarmupData() []models.AdjustedCandle {
	return p.Candles[:p.WarmupLen]
}

// GetBacktestData returns the backtest suffix, after warm-up.
func (p *PreparedData) GetBacktestData() []models.AdjustedCandle {
	return p.Candles[p.WarmupLen:]
}

// BacktestLen returns the number of candles available for the backtest
// proper, after warm-up.
func (p *PreparedData) BacktestLen() int {
	return len(p.Candles) - p.WarmupLen
}

// WindowEndingAt returns the prefix of Candles ending at (and including)
// index i.
func (p *PreparedData) WindowEndingAt(i int) []models.AdjustedCandle {
	return p.Candles[:i+1]
}

// Pipeline prepares quality-gated, adjusted candle sequences for the
// driver. It owns no state across calls: each Prepare is independent.
type Pipeline struct {
	source  broker.MarketDataSource
	repo    store.Repository
	symbols map[string]models.SymbolMetadata
}

// New creates a Pipeline. symbols is the per-symbol metadata override
// table (lot size, ETF flag); a symbol absent from it gets the defaults.
func New(source broker.MarketDataSource, repo store.Repository, symbols map[string]models.SymbolMetadata) *Pipeline {
	return &Pipeline{source: source, repo: repo, symbols: symbols}
}

func (p *Pipeline) metadataFor(symbol string) models.SymbolMetadata {
	if md, ok := p.symbols[symbol]; ok {
		return md
	}
	return models.SymbolMetadata{Symbol: symbol, LotSize: models.DefaultLotSize}
}

// Prepare produces a PreparedData for (symbol, interval, [start, end]),
// failing with errors.ErrInsufficientData, errors.ErrQualityRejected, or
// errors.ErrSourceUnavailable per spec §4.1.
func (p *Pipeline) Prepare(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) (*PreparedData, error) {
	if end.Before(start) {
		return nil, errors.NewBacktestError(errors.ErrInvalidArgument, symbol, start, "end before start")
	}

	warmupStart, foundDays := calendar.WalkBackTradingDays(start, warmupTradingDays, warmupMaxCalendar)
	// foundDays < warmupTradingDays is a soft warning in the spec ("continue
	// anyway"); the caller's logger, not this function, is responsible for
	// surfacing it, so we only act on it via the eventual warm-up-length
	// check below.
	_ = foundDays

	raw, err := p.fetch(ctx, symbol, interval, warmupStart, end)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.NewBacktestError(errors.ErrSourceUnavailable, symbol, time.Time{}, "no candles returned")
	}

	sort.Slice(raw, func(i, j int) bool { return raw[i].Timestamp.Before(raw[j].Timestamp) })

	quality := Validate(raw, warmupStart, end, interval)
	quality.finalize()
	if !quality.Usable {
		return nil, &errors.DataQualityError{Symbol: symbol, Score: quality.Score, Message: "usability gate failed"}
	}

	actions, err := p.actionsFor(ctx, symbol)
	if err != nil {
		return nil, err
	}
	adjusted := corporate.New().AdjustBackward(raw, actions)

	warmupEnd := sort.Search(len(adjusted), func(i int) bool {
		return !adjusted[i].Timestamp.Before(start)
	})
	if warmupEnd < minWarmupLen {
		return nil, errors.NewBacktestError(errors.ErrInsufficientData, symbol, start,
			fmt.Sprintf("warm-up index %d below minimum %d", warmupEnd, minWarmupLen))
	}
	if len(adjusted)-warmupEnd < minBacktestLen {
		return nil, errors.NewBacktestError(errors.ErrInsufficientData, symbol, start,
			fmt.Sprintf("backtest length %d below minimum %d", len(adjusted)-warmupEnd, minBacktestLen))
	}

	return &PreparedData{
		Symbol:    p.metadataFor(symbol),
		Interval:  interval,
		Candles:   adjusted,
		WarmupLen: warmupEnd,
		Quality:   quality,
	}, nil
}

// fetch consults the repository cache first, then falls back to the
// broker with the spec's 1s/2s/3s linear retry schedule, caching whatever
// it fetches.
func (p *Pipeline) fetch(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) ([]models.Candle, error) {
	if p.repo != nil {
		cached, err := p.repo.FindCandles(ctx, symbol, interval, start, end)
		if err == nil && len(cached) > 0 && !cached[0].Timestamp.After(start) && !cached[len(cached)-1].Timestamp.Before(end) {
			return cached, nil
		}
	}

	cfg := utils.LinearFetchRetryConfig()
	candles, err := utils.RetryWithResult(ctx, cfg, func() ([]models.Candle, error) {
		return p.source.FetchCandles(ctx, symbol, interval, start, end)
	})
	if err != nil {
		return nil, errors.NewBacktestError(errors.ErrSourceUnavailable, symbol, start, err.Error())
	}
	if p.repo != nil && len(candles) > 0 {
		_ = p.repo.SaveCandles(ctx, interval, candles)
	}
	return candles, nil
}

func (p *Pipeline) actionsFor(ctx context.Context, symbol string) ([]models.CorporateAction, error) {
	if p.repo != nil {
		if cached, err := p.repo.FindCorporateActions(ctx, symbol); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}
	actions, err := p.source.FetchCorporateActions(ctx, symbol)
	if err != nil {
		return nil, errors.NewBacktestError(errors.ErrSourceUnavailable, symbol, time.Time{}, err.Error())
	}
	if p.repo != nil && len(actions) > 0 {
		_ = p.repo.SaveCorporateActions(ctx, actions)
	}
	return actions, nil
}

// Validate runs the six per-candle checks from spec §4.1 and tallies the
// results into a DataQualityReport. Per-candle checks are independent
// (concurrency boundary 3 in the spec's concurrency model), so the slice
// is partitioned across a small worker pool; the duplicate-timestamp and
// suspicious-change checks need their immediate neighbor so each worker
// owns a contiguous chunk rather than a single candle.
func Validate(candles []models.Candle, warmupStart, end time.Time, interval models.Interval) DataQualityReport {
	report := DataQualityReport{TotalCandles: len(candles)}
	if len(candles) == 0 {
		return report
	}

	const workers = 4
	chunk := (len(candles) + workers - 1) / workers
	var mu sync.Mutex
	var wg sync.WaitGroup

	seen := make(map[int64]int, len(candles))
	for _, c := range candles {
		seen[c.Timestamp.UnixNano()]++
	}

	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if lo >= len(candles) {
			break
		}
		if hi > len(candles) {
			hi = len(candles)
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			var invPrice, invVol, dup, suspicious int
			for i := lo; i < hi; i++ {
				c := candles[i]
				if !validPrice(c) {
					invPrice++
				}
				if c.Volume < 0 {
					invVol++
				}
				if i > 0 && seen[c.Timestamp.UnixNano()] > 1 && c.Timestamp.Equal(candles[i-1].Timestamp) {
					dup++
				}
				if i > 0 && candles[i-1].Close != 0 {
					change := absf(c.Close-candles[i-1].Close) / absf(candles[i-1].Close)
					if change >= maxSuspiciousPct {
						suspicious++
					}
				}
			}
			mu.Lock()
			report.InvalidPrice += invPrice
			report.InvalidVolume += invVol
			report.Duplicate += dup
			report.Suspicious += suspicious
			mu.Unlock()
		}(lo, hi)
	}
	wg.Wait()

	gridStart := warmupStart
	if candles[0].Timestamp.After(gridStart) {
		gridStart = candles[0].Timestamp
	}
	report.Missing = missingCount(candles, gridStart, end, interval)
	return report
}

func validPrice(c models.Candle) bool {
	if c.Low <= minPrice || c.High >= maxPrice {
		return false
	}
	if !(c.Low <= c.Open && c.Open <= c.High) {
		return false
	}
	if !(c.Low <= c.Close && c.Close <= c.High) {
		return false
	}
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if !hasAtMostDigits(v, maxFractionDigits) {
			return false
		}
	}
	return true
}

func hasAtMostDigits(v float64, digits int) bool {
	scale := 1.0
	for i := 0; i < digits; i++ {
		scale *= 10
	}
	scaled := v * scale
	return absf(scaled-roundf(scaled)) < 1e-6
}

func missingCount(candles []models.Candle, warmupStart, end time.Time, interval models.Interval) int {
	minutes := calendar.IntervalMinutes(string(interval))
	if minutes == 0 {
		return 0
	}
	expected := calendar.ExpectedBars(warmupStart, end, minutes)
	actual := make(map[int64]bool, len(candles))
	for _, c := range candles {
		actual[c.Timestamp.Unix()] = true
	}
	missing := 0
	for _, ts := range expected {
		if !actual[ts.Unix()] {
			missing++
		}
	}
	return missing
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func roundf(v float64) float64 {
	if v < 0 {
		return -roundf(-v)
	}
	return float64(int64(v + 0.5))
}
