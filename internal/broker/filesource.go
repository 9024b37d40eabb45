package broker

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"hkbacktest/internal/models"
)

// CSVSource is a MarketDataSource backed by per-symbol CSV fixture
// files on disk. It exists because the live vendor/broker connector is
// explicitly out of scope for this core (spec 1): a CLI still needs
// something concrete to wire into the data pipeline, and a flat CSV
// fixture is the standard way a backtest tool is driven from
// already-downloaded history. No example in the retrieval pack imports
// a CSV parsing library for OHLCV data, so this uses the standard
// library's encoding/csv directly.
//
// Candle file layout: "<dir>/<symbol>.csv", header
// "timestamp,open,high,low,close,volume,turnover", timestamps in
// RFC3339. Corporate-action file layout (optional): "<dir>/<symbol>.actions.csv",
// header "ex_date,kind,dividend_per_share,split_old,split_new,bonus_base,
// bonus_extra,rights_base,rights_extra,rights_price".
type CSVSource struct {
	Dir string
}

// NewCSVSource builds a CSVSource rooted at dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// FetchCandles reads symbol's CSV fixture and returns every row whose
// timestamp falls within [start, end], ascending by timestamp.
func (s *CSVSource) FetchCandles(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) ([]models.Candle, error) {
	path := filepath.Join(s.Dir, symbol+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening candle fixture for %s: %w", symbol, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading candle fixture for %s: %w", symbol, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	col := columnIndex(header)

	candles := make([]models.Candle, 0, len(records)-1)
	for _, row := range records[1:] {
		ts, err := time.Parse(time.RFC3339, row[col["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp %q for %s: %w", row[col["timestamp"]], symbol, err)
		}
		if ts.Before(start) || ts.After(end) {
			continue
		}
		candle := models.Candle{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      mustFloat(row[col["open"]]),
			High:      mustFloat(row[col["high"]]),
			Low:       mustFloat(row[col["low"]]),
			Close:     mustFloat(row[col["close"]]),
			Volume:    mustFloat(row[col["volume"]]),
		}
		if i, ok := col["turnover"]; ok && i < len(row) {
			candle.Turnover = mustFloat(row[i])
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return candles, nil
}

// FetchCorporateActions reads symbol's optional corporate-action
// fixture; a missing file means "no corporate actions on record", not
// an error.
func (s *CSVSource) FetchCorporateActions(ctx context.Context, symbol string) ([]models.CorporateAction, error) {
	path := filepath.Join(s.Dir, symbol+".actions.csv")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening corporate-action fixture for %s: %w", symbol, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading corporate-action fixture for %s: %w", symbol, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	col := columnIndex(header)

	actions := make([]models.CorporateAction, 0, len(records)-1)
	for _, row := range records[1:] {
		exDate, err := time.Parse(time.RFC3339, row[col["ex_date"]])
		if err != nil {
			return nil, fmt.Errorf("parsing ex_date %q for %s: %w", row[col["ex_date"]], symbol, err)
		}
		actions = append(actions, models.CorporateAction{
			Symbol:           symbol,
			Kind:             models.CorporateActionKind(row[col["kind"]]),
			ExDate:           exDate,
			DividendPerShare: optFloat(row, col, "dividend_per_share"),
			SplitOld:         optInt(row, col, "split_old"),
			SplitNew:         optInt(row, col, "split_new"),
			BonusBase:        optInt(row, col, "bonus_base"),
			BonusExtra:       optInt(row, col, "bonus_extra"),
			RightsBase:       optInt(row, col, "rights_base"),
			RightsExtra:      optInt(row, col, "rights_extra"),
			RightsPrice:      optFloat(row, col, "rights_price"),
		})
	}
	return actions, nil
}

func columnIndex(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	return col
}

func mustFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func optFloat(row []string, col map[string]int, name string) float64 {
	i, ok := col[name]
	if !ok || i >= len(row) || row[i] == "" {
		return 0
	}
	return mustFloat(row[i])
}

func optInt(row []string, col map[string]int, name string) int {
	i, ok := col[name]
	if !ok || i >= len(row) || row[i] == "" {
		return 0
	}
	v, _ := strconv.Atoi(row[i])
	return v
}
