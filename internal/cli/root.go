package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hkbacktest/internal/broker"
	"hkbacktest/internal/config"
	"hkbacktest/internal/logging"
	"hkbacktest/internal/models"
	"hkbacktest/internal/pipeline"
	"hkbacktest/internal/store"
	"hkbacktest/internal/trading"
)

// Version information.
const (
	Version   = "0.1.0"
	BuildDate = "2026-01-01"
)

// Exit codes, per spec §6.
const (
	ExitSuccess            = 0
	ExitArgumentValidation = 1
	ExitDataPreparation    = 2
	ExitExecution          = 3
)

// App holds the application's wired dependencies, built once by
// NewRootCmd and shared by every subcommand (the donor's "build an App
// struct, wire each dependency with graceful degradation" shape).
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.Repository
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{Config: cfg, Logger: logger}

	if cfg.Data.StorePath != "" {
		repo, err := store.NewSQLiteStore(cfg.Data.StorePath)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to open store, running without a candle cache")
		} else {
			app.Store = repo
			logger.Debug().Str("path", cfg.Data.StorePath).Msg("store opened")
		}
	}

	rootCmd := &cobra.Command{
		Use:   "hkbacktest",
		Short: "Hong Kong equities backtesting and signal-generation engine",
		Long: `hkbacktest replays historical OHLCV candles for a Hong Kong-listed
symbol against a multi-layer trading strategy, simulates order execution
under HKEX fees and slippage, and reports a deterministic performance
summary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/hkbacktest)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version, "build_date": BuildDate})
			} else {
				output.Printf("hkbacktest v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Risk Limits")
	output.Printf("  Max single position: %s\n", FormatHKD(cfg.Risk.MaxSinglePosition))
	output.Printf("  Max daily loss:       %s\n", FormatPercent(cfg.Risk.MaxDailyLoss))
	output.Printf("  Max drawdown:         %s\n", FormatPercent(cfg.Risk.MaxDrawdown))
	output.Printf("  Consecutive loss cap: %d\n", cfg.Risk.ConsecutiveLossLimit)
	output.Println()

	output.Bold("Data Pipeline")
	output.Printf("  Store path:      %s\n", cfg.Data.StorePath)
	output.Printf("  Candle source:   %s\n", cfg.Data.CandleSourcePath)
	output.Printf("  Fetch timeout:   %s\n", cfg.Data.FetchTimeout)
	output.Printf("  Prepare timeout: %s\n", cfg.Data.PrepareTimeout)
	output.Println()

	output.Bold("Symbol Overrides")
	for sym, sc := range cfg.Symbols {
		output.Printf("  %-10s lot=%-5d etf=%-5v %s\n", sym, sc.LotSize, sc.IsETF, sc.DisplayName)
	}
	return nil
}

func newRunCmd(app *App) *cobra.Command {
	var (
		symbol, strategyFlag, intervalFlag string
		startFlag, endFlag                 string
		initialCapital                     float64
		commissionRate, slippageRate       float64
		detailedReport                     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest over a symbol and date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			start, err := time.Parse("2006-01-02", startFlag)
			if err != nil {
				output.Error("invalid --start date: %v", err)
				return &exitError{code: ExitArgumentValidation, err: err}
			}
			end, err := time.Parse("2006-01-02", endFlag)
			if err != nil {
				output.Error("invalid --end date: %v", err)
				return &exitError{code: ExitArgumentValidation, err: err}
			}
			if symbol == "" || initialCapital <= 0 {
				err := fmt.Errorf("symbol and a positive --capital are required")
				output.Error("%v", err)
				return &exitError{code: ExitArgumentValidation, err: err}
			}

			req := trading.Request{
				Symbol:                 symbol,
				Strategy:               models.StrategyTag(strategyFlag),
				Interval:               models.Interval(intervalFlag),
				StartTime:              start,
				EndTime:                end,
				InitialCapital:         initialCapital,
				CommissionRate:         commissionRate,
				SlippageRate:           slippageRate,
				GenerateDetailedReport: detailedReport,
			}

			if app.Config.Data.CandleSourcePath == "" {
				err := fmt.Errorf("data.candle_source_path is not configured; point it at a directory of <symbol>.csv fixtures")
				output.Error("%v", err)
				return &exitError{code: ExitDataPreparation, err: err}
			}

			source := broker.NewCSVSource(app.Config.Data.CandleSourcePath)
			p := pipeline.New(source, app.Store, app.Config.SymbolMetadataTable())

			simCfg := trading.Config{
				Limits:      app.Config.Risk.Limits(),
				Commission:  app.Config.Commission.Schedule(),
				Slippage:    defaultSlippageIfZero(slippageRate),
				BarsPerYear: 252,
			}
			sim := trading.NewSimulator(p, simCfg)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			result, runErr := sim.Run(ctx, req)
			if runErr != nil && result == nil {
				output.Error("%v", runErr)
				return &exitError{code: ExitExecution, err: runErr}
			}

			elapsed := time.Duration(result.ExecutionTimeMs) * time.Millisecond
			logging.LogRunComplete(app.Logger, symbol, result.Success, result.TotalTrades, result.FinalEquity, elapsed)

			if output.IsJSON() {
				if err := output.JSON(result); err != nil {
					return err
				}
			} else {
				printResult(output, result)
			}

			if !result.Success {
				code := ExitExecution
				switch result.ErrorCode {
				case "INVALID_ARGUMENT":
					code = ExitArgumentValidation
				case "SOURCE_UNAVAILABLE", "INSUFFICIENT_DATA", "QUALITY_REJECTED":
					code = ExitDataPreparation
				}
				return &exitError{code: code, err: fmt.Errorf("%s", result.ErrorMessage)}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol to backtest, e.g. 02800.HK")
	cmd.Flags().StringVar(&strategyFlag, "strategy", string(models.StrategyAdaptive), "MACD | BOLL | VOLUME | ADAPTIVE")
	cmd.Flags().StringVar(&intervalFlag, "interval", string(models.Interval30Min), "1m | 5m | 15m | 30m | 60m | 1d")
	cmd.Flags().StringVar(&startFlag, "start", "", "backtest start date, YYYY-MM-DD")
	cmd.Flags().StringVar(&endFlag, "end", "", "backtest end date, YYYY-MM-DD")
	cmd.Flags().Float64Var(&initialCapital, "capital", 0, "initial capital in HKD")
	cmd.Flags().Float64Var(&commissionRate, "commission-rate", 0, "override the commission component rate (0 = use configured schedule)")
	cmd.Flags().Float64Var(&slippageRate, "slippage-rate", 0, "override the slippage rate (0 = use default 0.1%)")
	cmd.Flags().BoolVar(&detailedReport, "detailed", false, "include the full trade list and equity curve in the report")

	return cmd
}

func defaultSlippageIfZero(rate float64) float64 {
	if rate > 0 {
		return rate
	}
	return 0.001
}

func printResult(output *Output, r *trading.Result) {
	if !r.Success {
		output.Error("backtest failed [%s]: %s", r.ErrorCode, r.ErrorMessage)
		return
	}

	output.Box("Backtest Result", []string{
		fmt.Sprintf("Initial capital:  %s", FormatHKD(r.InitialCapital)),
		fmt.Sprintf("Final equity:     %s", FormatHKD(r.FinalEquity)),
		fmt.Sprintf("Total return:     %s (%s)", output.FormatPnLColored(r.TotalReturn), output.FormatPercentColored(r.ReturnRate)),
		fmt.Sprintf("Annualized:       %s", FormatPercent(r.AnnualizedReturn)),
		fmt.Sprintf("Max drawdown:     %s", FormatPercent(r.MaxDrawdown)),
		fmt.Sprintf("Sharpe:           %s", FormatRatio(r.SharpeRatio)),
		fmt.Sprintf("Sortino:          %s", FormatRatio(r.SortinoRatio)),
		fmt.Sprintf("Calmar:           %s", FormatRatio(r.CalmarRatio)),
	})

	table := NewTable(output, "Trades", "Winners", "Losers", "Win rate", "Avg win", "Avg loss", "Profit factor", "Rejected")
	table.AddRow(
		fmt.Sprintf("%d", r.TotalTrades),
		fmt.Sprintf("%d", r.WinningTrades),
		fmt.Sprintf("%d", r.LosingTrades),
		FormatPercent(r.WinRate),
		FormatHKD(r.AvgWin),
		FormatHKD(r.AvgLoss),
		FormatRatio(r.ProfitFactor),
		fmt.Sprintf("%d", r.RejectedSignals),
	)
	table.Render()

	if len(r.Trades) > 0 {
		output.Println()
		output.Bold("Trades")
		tradeTable := NewTable(output, "Entry", "Exit", "Side", "Qty", "Entry px", "Exit px", "P&L", "Reason")
		for _, t := range r.Trades {
			tradeTable.AddRow(
				FormatDateTime(t.EntryTime),
				FormatDateTime(t.ExitTime),
				string(t.Side),
				FormatQuantity(t.Quantity),
				FormatPrice(t.EntryPrice),
				FormatPrice(t.ExitPrice),
				output.FormatPnLColored(t.PnL),
				t.ExitReason,
			)
		}
		tradeTable.Render()
	}
}

// exitError carries the process exit code a failed command should
// return (spec §6's CLI exit codes), alongside the underlying error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// ExitCodeOf returns the process exit code for an error returned by a
// command's RunE, defaulting to ExitExecution for an unrecognized error.
func ExitCodeOf(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if as, ok := err.(*exitError); ok {
		ee = as
		return ee.code
	}
	return ExitExecution
}
