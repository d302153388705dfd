// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf wraps a formatted cause under base.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// Predefined errors
var (
	// Data errors
	ErrSymbolNotFound   = &Error{Code: "SYMBOL_NOT_FOUND", Message: "symbol not found"}
	ErrNoData           = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrDuplicateBar     = &Error{Code: "DUPLICATE_BAR", Message: "duplicate bar date"}
	ErrInvalidBar       = &Error{Code: "INVALID_BAR", Message: "invalid price bar"}
	ErrInsufficientData = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient data for analysis"}

	// Strategy errors
	ErrStrategyFailed   = &Error{Code: "STRATEGY_FAILED", Message: "signal generation failed"}
	ErrUnknownStrategy  = &Error{Code: "UNKNOWN_STRATEGY", Message: "strategy not registered"}
	ErrInvalidParameter = &Error{Code: "INVALID_PARAMETER", Message: "invalid strategy parameter"}
	ErrParameterType    = &Error{Code: "PARAMETER_TYPE", Message: "strategy parameter has the wrong type"}

	// Instruction rejections
	ErrContractViolation = &Error{Code: "CONTRACT_VIOLATION", Message: "instruction violates generator contract"}
	ErrInconsistentState = &Error{Code: "INCONSISTENT_STATE", Message: "instruction inconsistent with portfolio"}
	ErrInsufficientCash  = &Error{Code: "INSUFFICIENT_CASH", Message: "insufficient cash"}
	ErrNoPrice           = &Error{Code: "NO_PRICE", Message: "no next-day price"}
	ErrLimitNotReached   = &Error{Code: "LIMIT_NOT_REACHED", Message: "limit price not reached"}

	// Ledger defects
	ErrLedgerInvariant = &Error{Code: "LEDGER_INVARIANT", Message: "ledger invariant violated"}

	// Config errors
	ErrConfigInvalid  = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing  = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
	ErrEmptyDateRange = &Error{Code: "EMPTY_DATE_RANGE", Message: "no trading dates in range"}
	ErrMalformedGrid  = &Error{Code: "MALFORMED_GRID", Message: "parameter grid malformed"}

	// Sweep errors
	ErrCombinationFailed = &Error{Code: "COMBINATION_FAILED", Message: "parameter combination failed"}
	ErrTooFewTrades      = &Error{Code: "TOO_FEW_TRADES", Message: "trade count below minimum"}
	ErrSweepTimeout      = &Error{Code: "SWEEP_TIMEOUT", Message: "sweep deadline passed before combination started"}
	ErrSweepFailed       = &Error{Code: "SWEEP_FAILED", Message: "no parameter combination survived"}
)
