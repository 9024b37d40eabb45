package trading

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"hkbacktest/internal/analysis/indicators"
	"hkbacktest/internal/commission"
	"hkbacktest/internal/errors"
	"hkbacktest/internal/models"
	"hkbacktest/internal/pipeline"
	"hkbacktest/internal/risk"
	"hkbacktest/internal/signal"
	"hkbacktest/internal/strategy"
)

// defaultSlippageRate is the default fraction by which every fill moves against
// the trader (spec §4.9 step 2/3: "±0.1% against the trader").
const defaultSlippageRate = 0.001

// defaultBarsPerYear annualizes returns and the Sharpe/Sortino ratios, assuming
// 252 trading days; overridable per Config for non-daily intervals.
const defaultBarsPerYear = 252.0

// Config holds the account-level parameters a Simulator is built with;
// a Request may override the fee/slippage rates per run.
type Config struct {
	Limits      risk.Limits
	Commission  commission.Schedule
	Slippage    float64
	BarsPerYear float64
}

// DefaultConfig returns the spec's default commission schedule, a 0.1%
// slippage rate, and daily annualization.
func DefaultConfig() Config {
	return Config{
		Limits: risk.Limits{
			MaxSinglePosition:    500000,
			MaxDailyLoss:         0.02,
			ConsecutiveLossLimit: 5,
			MaxDrawdown:          0.25,
		},
		Commission:  commission.DefaultSchedule(),
		Slippage:    defaultSlippageRate,
		BarsPerYear: defaultBarsPerYear,
	}
}

// Request is one backtest run's input schema (spec §6).
type Request struct {
	Symbol                 string
	Strategy               models.StrategyTag // MACD | BOLL | VOLUME | ADAPTIVE
	Interval               models.Interval
	StartTime, EndTime     time.Time
	InitialCapital         float64
	CommissionRate         float64 // 0 means use the Simulator's default schedule
	SlippageRate           float64 // 0 means use the Simulator's default
	GenerateDetailedReport bool
}

// Result is one backtest run's output schema (spec §6).
type Result struct {
	Success      bool
	ErrorCode    string
	ErrorMessage string

	InitialCapital    float64
	FinalEquity       float64
	TotalReturn       float64
	ReturnRate        float64
	AnnualizedReturn  float64
	MaxDrawdown       float64
	SharpeRatio       float64
	SortinoRatio      float64
	CalmarRatio       float64
	TotalTrades       int
	WinningTrades     int
	LosingTrades      int
	WinRate           float64
	AvgWin            float64
	AvgLoss           float64
	ProfitFactor      float64
	Trades            []models.Trade
	EquityCurve       []models.EquityPoint
	ExecutionTimeMs   int64
	ReportGeneratedAt time.Time
	RejectedSignals   int
}

// Simulator replays a prepared candle sequence bar by bar against the
// signal engine and risk sizer, producing a deterministic performance
// report. One Simulator may run any number of sequential Requests; each
// Run call owns a private Portfolio and indicator state, per spec §5.
type Simulator struct {
	pipeline *pipeline.Pipeline
	cfg      Config
}

// NewSimulator builds a Simulator over the given data pipeline using cfg
// as the default account configuration.
func NewSimulator(p *pipeline.Pipeline, cfg Config) *Simulator {
	return &Simulator{pipeline: p, cfg: cfg}
}

func failResult(symbol string, err error, start time.Time) *Result {
	return &Result{
		Success:           false,
		ErrorCode:         errors.CodeOf(err),
		ErrorMessage:      err.Error(),
		ExecutionTimeMs:   time.Since(start).Milliseconds(),
		ReportGeneratedAt: start,
	}
}

// Run executes one backtest request (spec §4.9). ctx is checked at each
// bar boundary; a cancelled context returns a CANCELLED result carrying
// the partial equity curve accumulated so far.
func (s *Simulator) Run(ctx context.Context, req Request) (*Result, error) {
	startedAt := time.Now()

	if req.Symbol == "" || req.EndTime.Before(req.StartTime) || req.InitialCapital <= 0 {
		err := errors.NewBacktestError(errors.ErrInvalidArgument, req.Symbol, req.StartTime, "invalid backtest request")
		return failResult(req.Symbol, err, startedAt), err
	}

	prepared, err := s.pipeline.Prepare(ctx, req.Symbol, req.Interval, req.StartTime, req.EndTime)
	if err != nil {
		return failResult(req.Symbol, err, startedAt), err
	}

	schedule := s.cfg.Commission
	if req.CommissionRate > 0 {
		schedule.Commission.Rate = req.CommissionRate
	}
	slippage := s.cfg.Slippage
	if req.SlippageRate > 0 {
		slippage = req.SlippageRate
	}

	sizer := risk.New(s.cfg.Limits, schedule)
	engine := indicators.NewSymbolEngine(req.Symbol)
	sigEngine := signal.New(req.Symbol)
	portfolio := NewPortfolio(req.InitialCapital)

	var regimeMismatchBars int
	rejectedSignals := 0
	orderSeq := 0

	for _, c := range prepared.GetWarmupData() {
		engine.Update(c.Candle)
	}

	backtestData := prepared.GetBacktestData()
	for i, bar := range backtestData {
		if err := ctx.Err(); err != nil {
			cancelErr := errors.NewBacktestError(errors.ErrCancelled, req.Symbol, bar.Timestamp, "run cancelled")
			res := buildResult(req, portfolio, rejectedSignals, startedAt, s.cfg.BarsPerYear)
			res.Success = false
			res.ErrorCode = errors.CodeOf(cancelErr)
			res.ErrorMessage = cancelErr.Error()
			return res, cancelErr
		}

		snap := engine.Update(bar.Candle)

		if portfolio.Position != nil {
			regime := strategy.ClassifyRegime(snap)
			var strat strategy.Strategy
			for _, r := range []models.Regime{models.RegimeTrending, models.RegimeRanging, models.RegimeBreakout} {
				if cand := sigEngine.StrategyFor(r); cand != nil && cand.Tag() == portfolio.Position.Strategy {
					strat = cand
				}
			}
			if strat != nil {
				if strat.HomeRegime() == regime {
					regimeMismatchBars = 0
				} else {
					regimeMismatchBars++
				}
				decision := strat.CheckExit(portfolio.Position, bar, snap, regimeMismatchBars)
				if decision.Triggered {
					fillPrice := applySlippage(decision.Price, models.SideSell, slippage)
					qty := decision.Qty
					if qty == 0 {
						qty = portfolio.Position.Quantity
					}
					comm := schedule.Compute(models.SideSell, qty, fillPrice, prepared.Symbol.IsETF)
					trade := portfolio.Close(qty, fillPrice, comm, bar.Timestamp, string(decision.Reason))
					if decision.Reason == strategy.ExitTakeProfit && portfolio.Position != nil {
						portfolio.Position.TakeProfitStage++
					}
					sigEngine.RecordTrade(trade)
					regimeMismatchBars = 0
				}
			}
		}

		if portfolio.Position == nil && snap.Ready {
			confirmSnap := snap // the confirmation fields live inside snap.Confirm
			sig, _ := sigEngine.Evaluate(snap, confirmSnap, bar.Candle)
			if sig != nil && (req.Strategy == "" || req.Strategy == models.StrategyAdaptive || req.Strategy == sig.Strategy) {
				strat := sigEngine.StrategyFor(sig.Regime)
				if strat != nil {
					atrRatio20 := snap.ATR.Mean20Day
					qty := sizer.Size(sig.Price, snap.ATR.ATR, atrRatio20, sig.Strength, sigEngine.WinRate(), prepared.Symbol.LotSize)
					if qty > 0 {
						fillPrice := applySlippage(sig.Price, models.SideBuy, slippage)
						acc := risk.Account{
							Cash:              portfolio.Cash,
							TotalCapital:      req.InitialCapital,
							RealizedLossToday: portfolio.RealizedLossOn(bar.Timestamp),
							ConsecutiveLosses: portfolio.ConsecutiveLosses(),
							CurrentDrawdown:   portfolio.CurrentDrawdown(),
						}
						if verr := sizer.Validate(acc, qty, fillPrice); verr != nil {
							rejectedSignals++
						} else {
							orderSeq++
							orderID := fmt.Sprintf("%s-%d", req.Symbol, orderSeq)
							order := NewOrder(orderID, req.Symbol, models.SideBuy, qty, sig.Price, bar.Timestamp)
							_ = Transition(order, models.OrderSubmitted, bar.Timestamp)
							comm := schedule.Compute(models.SideBuy, qty, fillPrice, prepared.Symbol.IsETF)
							_ = Fill(order, fillPrice, qty, comm, bar.Timestamp)
							stopLoss := strat.InitialStopLoss(fillPrice, snap)
							takeProfit := strat.InitialTakeProfit(fillPrice, snap)
							portfolio.Open(req.Symbol, qty, fillPrice, comm, bar.Timestamp, sig.Strategy, stopLoss, takeProfit)
							regimeMismatchBars = 0
						}
					}
				}
			}
		}

		portfolio.MarkToMarket(bar.Close, bar.Timestamp)
		_ = i
	}

	if portfolio.Position != nil {
		last := backtestData[len(backtestData)-1]
		fillPrice := applySlippage(last.Close, models.SideSell, slippage)
		comm := schedule.Compute(models.SideSell, portfolio.Position.Quantity, fillPrice, prepared.Symbol.IsETF)
		trade := portfolio.Close(0, fillPrice, comm, last.Timestamp, "end_of_backtest")
		sigEngine.RecordTrade(trade)
		portfolio.MarkToMarket(fillPrice, last.Timestamp)
	}

	result := buildResult(req, portfolio, rejectedSignals, startedAt, s.cfg.BarsPerYear)
	return result, nil
}

// applySlippage moves a trigger/fill price against the trader: down for a
// sell, up for a buy.
func applySlippage(price float64, side models.Side, rate float64) float64 {
	if side == models.SideSell {
		return price * (1 - rate)
	}
	return price * (1 + rate)
}

func buildResult(req Request, p *Portfolio, rejected int, startedAt time.Time, barsPerYear float64) *Result {
	res := &Result{
		Success:           true,
		InitialCapital:    req.InitialCapital,
		Trades:            p.Trades,
		EquityCurve:       p.EquityCurve,
		ExecutionTimeMs:   time.Since(startedAt).Milliseconds(),
		ReportGeneratedAt: time.Now(),
		RejectedSignals:   rejected,
	}
	if len(p.EquityCurve) > 0 {
		res.FinalEquity = p.EquityCurve[len(p.EquityCurve)-1].Equity
	} else {
		res.FinalEquity = req.InitialCapital
	}

	res.TotalReturn = res.FinalEquity - req.InitialCapital
	if req.InitialCapital != 0 {
		res.ReturnRate = res.TotalReturn / req.InitialCapital
	}

	if len(p.EquityCurve) > 1 {
		elapsedDays := p.EquityCurve[len(p.EquityCurve)-1].Timestamp.Sub(p.EquityCurve[0].Timestamp).Hours() / 24
		if elapsedDays > 0 {
			years := elapsedDays / 365
			if years > 0 && res.FinalEquity > 0 && req.InitialCapital > 0 {
				res.AnnualizedReturn = math.Pow(res.FinalEquity/req.InitialCapital, 1/years) - 1
			}
		}
	}

	res.MaxDrawdown = maxDrawdown(p.EquityCurve)
	res.SharpeRatio, res.SortinoRatio = riskAdjustedRatios(p.EquityCurve, barsPerYear)
	if res.MaxDrawdown != 0 {
		res.CalmarRatio = res.AnnualizedReturn / res.MaxDrawdown
	}

	res.TotalTrades = len(p.Trades)
	var totalWin, totalLoss float64
	for _, t := range p.Trades {
		if t.PnL > 0 {
			res.WinningTrades++
			totalWin += t.PnL
		} else {
			res.LosingTrades++
			totalLoss += -t.PnL
		}
	}
	if res.TotalTrades > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades)
	}
	if res.WinningTrades > 0 {
		res.AvgWin = totalWin / float64(res.WinningTrades)
	}
	if res.LosingTrades > 0 {
		res.AvgLoss = totalLoss / float64(res.LosingTrades)
	}
	if totalLoss > 0 {
		res.ProfitFactor = totalWin / totalLoss
	}

	return res
}

func maxDrawdown(curve []models.EquityPoint) float64 {
	maxDD := 0.0
	for _, p := range curve {
		if p.Drawdown > maxDD {
			maxDD = p.Drawdown
		}
	}
	return maxDD
}

// riskAdjustedRatios computes the annualized Sharpe and Sortino ratios
// from the bar-to-bar equity returns. Sortino uses only the downside
// (negative-return) bars for its denominator.
func riskAdjustedRatios(curve []models.EquityPoint, barsPerYear float64) (sharpe, sortino float64) {
	if len(curve) < 2 {
		return 0, 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) == 0 {
		return 0, 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance, downsideVariance float64
	downsideCount := 0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
		if r < 0 {
			downsideVariance += r * r
			downsideCount++
		}
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)

	annualization := math.Sqrt(barsPerYear)
	if stdDev > 0 {
		sharpe = mean / stdDev * annualization
	}
	if downsideCount > 0 {
		downsideStdDev := math.Sqrt(downsideVariance / float64(downsideCount))
		if downsideStdDev > 0 {
			sortino = mean / downsideStdDev * annualization
		}
	}
	return sharpe, sortino
}

// Report pairs one Request with its Result, for RunBatch's ordered output.
type Report struct {
	Request Request
	Result  *Result
	Err     error
}

// RunBatch dispatches one independent Run per request on a bounded worker
// pool (spec §4.9A / §5 boundary 2): each run owns a private Portfolio and
// indicator engine, nothing is shared, and results are collected in
// request order once every worker completes.
func (s *Simulator) RunBatch(ctx context.Context, requests []Request, workers int) []Report {
	if workers <= 0 {
		workers = 4
	}
	reports := make([]Report, len(requests))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, req := range requests {
		i, req := i, req
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			result, err := s.Run(ctx, req)
			reports[i] = Report{Request: req, Result: result, Err: err}
		}()
	}
	wg.Wait()
	return reports
}
