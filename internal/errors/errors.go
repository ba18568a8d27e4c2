// Package errors provides custom error types for backtest failures.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors
var (
	ErrPriceMissing      = errors.New("price missing")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrInvariantViolated = errors.New("invariant violated")
	ErrNoTradingDay      = errors.New("no valid trading day found")
	ErrDataNotFound      = errors.New("data not found")
	ErrDatabaseError     = errors.New("database error")
	ErrInputValidation   = errors.New("input validation failed")
)

// PriceMissingError reports that no bar exists at or after a timestamp on the requested day.
type PriceMissingError struct {
	Symbol     string
	Strike     int
	OptionType string
	Expiry     time.Time
	At         time.Time
}

func (e *PriceMissingError) Error() string {
	return fmt.Sprintf("no price data found for %s at %s for expiry %s",
		e.Symbol, e.At.Format("2006-01-02 15:04:05"), e.Expiry.Format("2006-01-02"))
}

func (e *PriceMissingError) Unwrap() error {
	return ErrPriceMissing
}

// NewPriceMissingError creates a new PriceMissingError.
func NewPriceMissingError(symbol string, strike int, optionType string, expiry, at time.Time) *PriceMissingError {
	return &PriceMissingError{
		Symbol:     symbol,
		Strike:     strike,
		OptionType: optionType,
		Expiry:     expiry,
		At:         at,
	}
}

// ConfigurationError represents a missing or inconsistent configuration value.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error [%s]: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error [%s]: %s", e.Field, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrConfigInvalid
}

// Is lets errors.Is match ErrConfigInvalid even when a cause is wrapped.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfigInvalid
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string, err error) *ConfigurationError {
	return &ConfigurationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// SimulationError aborts a backtest run. No ledger produced by the run is valid.
type SimulationError struct {
	Strategy  string
	Operation string
	Err       error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation error [%s] %s: %v", e.Strategy, e.Operation, e.Err)
}

func (e *SimulationError) Unwrap() error {
	return e.Err
}

// NewSimulationError creates a new SimulationError.
func NewSimulationError(strategy, operation string, err error) *SimulationError {
	return &SimulationError{
		Strategy:  strategy,
		Operation: operation,
		Err:       err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
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
