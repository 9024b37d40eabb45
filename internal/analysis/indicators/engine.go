// Package indicators computes technical indicators incrementally, one bar
// at a time, so a backtest or live feed can fold each new candle into O(1)
// work instead of rescanning history on every tick.
package indicators

import (
	"context"
	"sync"
	"time"

	"hkbacktest/internal/models"
)

const (
	emaFastPeriod    = 20
	emaSlowPeriod    = 50
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
	bollingerPeriod  = 20
	bollingerStdDev  = 2.0
	atrPeriod        = 14
	rsiPeriod        = 14
	adxPeriod        = 14
	volumeSMAPeriod  = 20
	highWindow       = 20
	// confirmationGroup is the number of 30-minute primary bars folded into
	// one 120-minute confirmation-timeframe bar.
	confirmationGroup = 4
)

// Snapshot is the full set of indicator readings after one Update, plus a
// Ready flag that is true only once every indicator below has cleared its
// own warm-up period.
type Snapshot struct {
	Symbol      string
	Timestamp   time.Time
	Close       float64
	EMA20       float64
	EMA50       float64
	MACD        MACDValue
	Bollinger   BollingerValue
	ATR         ATRValue
	RSI         float64
	ADX         ADXValue
	VolumeRatio float64
	High20Day   float64
	PrevHigh    float64
	Confirm     ConfirmSnapshot
	Ready       bool
}

// ConfirmSnapshot is the confirmation-timeframe (120-minute) readings the
// signal engine's multi-timeframe resonance check needs: MACD direction,
// EMA20-vs-EMA50 order, and Bollinger price position all have to be
// compared against the primary timeframe's own readings.
type ConfirmSnapshot struct {
	Close     float64
	MACD      MACDValue
	EMA20     float64
	EMA50     float64
	Bollinger BollingerValue
	Ready     bool
}

// SymbolEngine owns the incremental indicator state for one symbol. It is
// not safe for concurrent use; callers running multiple symbols
// concurrently should give each symbol its own SymbolEngine (see Engine).
type SymbolEngine struct {
	symbol string

	ema20 *EMA
	ema50 *EMA
	macd  *MACD
	boll  *Bollinger
	atr   *ATR
	rsi   *RSI
	adx   *ADX

	volume *ringWindow

	highCurrent *rollingMax
	highDelay   *delayLine
	highPrev    *rollingMax

	confirm *confirmationAggregator

	rsiReady bool
}

// NewSymbolEngine builds the standard indicator set (EMA20/50, MACD(12,26,9),
// Bollinger(20,2.0), ATR(14) with its own 20-bar mean, RSI(14), ADX(14),
// a 20-bar volume SMA for volumeRatio, and the current/previous 20-bar high
// pair) for one symbol, plus a 120-minute confirmation-timeframe MACD fed
// from the same 30-minute primary bars.
func NewSymbolEngine(symbol string) *SymbolEngine {
	return &SymbolEngine{
		symbol:      symbol,
		ema20:       NewEMA(emaFastPeriod),
		ema50:       NewEMA(emaSlowPeriod),
		macd:        NewMACD(macdFastPeriod, macdSlowPeriod, macdSignalPeriod),
		boll:        NewBollinger(bollingerPeriod, bollingerStdDev),
		atr:         NewATR(atrPeriod),
		rsi:         NewRSI(rsiPeriod),
		adx:         NewADX(adxPeriod),
		volume:      newRingWindow(volumeSMAPeriod),
		highCurrent: newRollingMax(highWindow),
		highDelay:   newDelayLine(highWindow),
		highPrev:    newRollingMax(highWindow),
		confirm:     newConfirmationAggregator(confirmationGroup),
	}
}

// Update folds one more primary-timeframe candle into every indicator and
// returns the resulting Snapshot.
func (s *SymbolEngine) Update(c models.Candle) Snapshot {
	ema20, ema20Ready := s.ema20.Update(c.Close)
	ema50, ema50Ready := s.ema50.Update(c.Close)
	macdVal := s.macd.Update(c.Close)
	bollVal := s.boll.Update(c.Close)
	atrVal := s.atr.Update(c.High, c.Low, c.Close)
	rsiVal, rsiReady := s.rsi.Update(c.Close)
	adxVal := s.adx.Update(c.High, c.Low, c.Close)

	s.volume.push(c.Volume)
	volumeRatio := 0.0
	volumeReady := s.volume.full()
	if volumeReady {
		avg := s.volume.mean()
		if avg != 0 {
			volumeRatio = c.Volume / avg
		}
	}

	s.highCurrent.push(c.High)
	if evicted, had := s.highDelay.push(c.High); had {
		s.highPrev.push(evicted)
	}
	highReady := s.highCurrent.full() && s.highPrev.full()

	confirmVal := s.confirm.update(c)

	s.rsiReady = rsiReady

	ready := ema20Ready && ema50Ready && macdVal.Ready && bollVal.Ready &&
		atrVal.Ready && rsiReady && adxVal.Ready && volumeReady && highReady

	snap := Snapshot{
		Symbol:      s.symbol,
		Timestamp:   c.Timestamp,
		Close:       c.Close,
		EMA20:       ema20,
		EMA50:       ema50,
		MACD:        macdVal,
		Bollinger:   bollVal,
		ATR:         atrVal,
		RSI:         rsiVal,
		ADX:         adxVal,
		VolumeRatio: volumeRatio,
		High20Day:   s.highCurrent.max(),
		PrevHigh:    s.highPrev.max(),
		Confirm:     confirmVal,
		Ready:       ready,
	}
	return snap
}

// confirmationAggregator rolls up N primary-timeframe candles into one
// higher-timeframe candle (e.g. four 30-minute bars into one 120-minute
// bar) and feeds a MACD computed on that higher timeframe, used as a
// multi-timeframe trend-resonance confirmation.
type confirmationAggregator struct {
	barsPerGroup           int
	count                  int
	open, high, low, close float64
	macd                   *MACD
	ema20, ema50           *EMA
	boll                   *Bollinger
	last                   ConfirmSnapshot
}

func newConfirmationAggregator(barsPerGroup int) *confirmationAggregator {
	return &confirmationAggregator{
		barsPerGroup: barsPerGroup,
		macd:         NewMACD(macdFastPeriod, macdSlowPeriod, macdSignalPeriod),
		ema20:        NewEMA(emaFastPeriod),
		ema50:        NewEMA(emaSlowPeriod),
		boll:         NewBollinger(bollingerPeriod, bollingerStdDev),
	}
}

// update folds one more primary-timeframe candle into the higher-timeframe
// aggregate and, once barsPerGroup candles have accumulated, recomputes the
// confirmation-timeframe MACD/EMA/Bollinger from the aggregated close. The
// last completed ConfirmSnapshot is returned on every call (not just on
// group completion) so the signal engine always has the most recent
// confirmation reading available, per the update contract's "reflects all
// candles in [0, t]" rule applied at the confirmation timeframe's own
// granularity.
func (a *confirmationAggregator) update(c models.Candle) ConfirmSnapshot {
	if a.count == 0 {
		a.open, a.high, a.low = c.Open, c.High, c.Low
	} else {
		a.high = maxf(a.high, c.High)
		if c.Low < a.low {
			a.low = c.Low
		}
	}
	a.close = c.Close
	a.count++

	if a.count < a.barsPerGroup {
		return a.last
	}
	a.count = 0
	macdVal := a.macd.Update(a.close)
	ema20, ema20Ready := a.ema20.Update(a.close)
	ema50, ema50Ready := a.ema50.Update(a.close)
	bollVal := a.boll.Update(a.close)

	a.last = ConfirmSnapshot{
		Close:     a.close,
		MACD:      macdVal,
		EMA20:     ema20,
		EMA50:     ema50,
		Bollinger: bollVal,
		Ready:     macdVal.Ready && ema20Ready && ema50Ready && bollVal.Ready,
	}
	return a.last
}

// Engine keeps one SymbolEngine per symbol and runs warm-up precomputation
// across symbols concurrently, since indicator state is sequential within a
// symbol but independent across symbols. Grounded on the donor indicators
// package's worker-pool Engine, repurposed from per-indicator fan-out over
// a single candle slice to per-symbol fan-out over each symbol's history.
type Engine struct {
	mu      sync.Mutex
	engines map[string]*SymbolEngine
	workers int
}

// NewEngine creates a multi-symbol indicator engine. workers bounds how
// many symbols are precomputed concurrently; values <= 0 default to 4.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{engines: make(map[string]*SymbolEngine), workers: workers}
}

// For returns (creating if necessary) the SymbolEngine for symbol.
func (e *Engine) For(symbol string) *SymbolEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	se, ok := e.engines[symbol]
	if !ok {
		se = NewSymbolEngine(symbol)
		e.engines[symbol] = se
	}
	return se
}

// Update feeds one candle into its symbol's engine.
func (e *Engine) Update(c models.Candle) Snapshot {
	return e.For(c.Symbol).Update(c)
}

// Precompute runs each symbol's full candle history through its own
// SymbolEngine concurrently and returns the resulting snapshot sequence per
// symbol, preserving input order within each symbol.
func (e *Engine) Precompute(ctx context.Context, bySymbol map[string][]models.Candle) (map[string][]Snapshot, error) {
	results := make(map[string][]Snapshot, len(bySymbol))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workers)
	errCh := make(chan error, 1)

	for symbol, candles := range bySymbol {
		symbol, candles := symbol, candles
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			select {
			case <-ctx.Done():
				select {
				case errCh <- ctx.Err():
				default:
				}
				return
			default:
			}
			se := e.For(symbol)
			snaps := make([]Snapshot, len(candles))
			for i, c := range candles {
				snaps[i] = se.Update(c)
			}
			mu.Lock()
			results[symbol] = snaps
			mu.Unlock()
		}()
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return results, err
	default:
		return results, nil
	}
}
