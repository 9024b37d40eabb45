// Package errors provides the typed error taxonomy used throughout the
// backtest engine. Each error kind named in the core's error-handling
// design gets a sentinel plus, where the kind needs to carry symbol or
// timestamp context, a small carrier type with Error()/Unwrap().
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors, one per error kind the core can raise.
var (
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrSourceUnavailable      = errors.New("market data source unavailable")
	ErrInsufficientData       = errors.New("insufficient data")
	ErrQualityRejected        = errors.New("data quality rejected")
	ErrInvalidStateTransition = errors.New("invalid order state transition")
	ErrRiskRejected           = errors.New("risk check rejected signal")
	ErrCancelled              = errors.New("run cancelled")
)

// BacktestError is the carrier type for any error kind that needs symbol
// and timestamp context attached, per the core's "every error carries an
// error code, a single-line message, and symbol/timestamp context" rule.
type BacktestError struct {
	Code      string
	Symbol    string
	Timestamp time.Time
	Message   string
	Err       error
}

func (e *BacktestError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	if e.Timestamp.IsZero() {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Symbol, e.Message)
	}
	return fmt.Sprintf("[%s] %s @ %s: %s", e.Code, e.Symbol, e.Timestamp.Format(time.RFC3339), e.Message)
}

func (e *BacktestError) Unwrap() error {
	return e.Err
}

// NewBacktestError constructs a BacktestError wrapping one of the sentinel
// kinds above.
func NewBacktestError(kind error, symbol string, ts time.Time, message string) *BacktestError {
	return &BacktestError{Code: codeFor(kind), Symbol: symbol, Timestamp: ts, Message: message, Err: kind}
}

func codeFor(kind error) string {
	switch {
	case errors.Is(kind, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(kind, ErrSourceUnavailable):
		return "SOURCE_UNAVAILABLE"
	case errors.Is(kind, ErrInsufficientData):
		return "INSUFFICIENT_DATA"
	case errors.Is(kind, ErrQualityRejected):
		return "QUALITY_REJECTED"
	case errors.Is(kind, ErrInvalidStateTransition):
		return "INVALID_STATE_TRANSITION"
	case errors.Is(kind, ErrRiskRejected):
		return "RISK_REJECTED"
	case errors.Is(kind, ErrCancelled):
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// RiskError records which validator in the pre-trade chain rejected a
// signal, and why.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk rejected [%s]: %s (current: %.4f, limit: %.4f)", e.Rule, e.Message, e.Current, e.Limit)
}

func (e *RiskError) Unwrap() error {
	return ErrRiskRejected
}

// NewRiskError creates a new RiskError.
func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{Rule: rule, Current: current, Limit: limit, Message: message}
}

// DataQualityError carries the quality report's headline numbers alongside
// the QUALITY_REJECTED sentinel.
type DataQualityError struct {
	Symbol  string
	Score   float64
	Message string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("quality rejected [%s]: score %.1f: %s", e.Symbol, e.Score, e.Message)
}

func (e *DataQualityError) Unwrap() error {
	return ErrQualityRejected
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// CodeOf returns the error-taxonomy code for any error produced by this
// package (BacktestError, RiskError, DataQualityError, or a bare
// sentinel), for callers building a Result's errorCode field.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var be *BacktestError
	if errors.As(err, &be) {
		return be.Code
	}
	return codeFor(err)
}
