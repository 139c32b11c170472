// Package errs defines the engine's error taxonomy (spec §7). Calculators and
// engines propagate these without catching; the shell presents them to the user.
// Every wrapping call uses fmt.Errorf("...: %w", ...) so callers can still
// errors.Is/errors.As against the sentinel, matching the teacher's pervasive
// fmt.Errorf wrapping idiom.
package errs

import (
	"errors"
	"fmt"

	"b3ledger/calendar"
	"b3ledger/decimal"
)

// Sentinel errors, one per §7 kind.
var (
	// ErrInsufficientHistory: a SELL with no covering BUYs, or EXCHANGE from an
	// empty position. Never surfaces as partial tax.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrInsufficientInformation: a required field is absent (e.g. EXCHANGE's
	// allocated_cost). Written to the inconsistency ledger as BLOCKING.
	ErrInsufficientInformation = errors.New("insufficient information")

	// ErrDuplicateTransaction: detected at append; non-fatal, counted.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrIntegrityViolation: an invariant was violated. Fatal for the current
	// read; the store itself is never left in a broken state.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrConfiguration: missing tax rate, unknown asset kind, unsupported period.
	ErrConfiguration = errors.New("configuration error")

	// ErrDecimalOverflow: arithmetic beyond the precision budget. Fatal.
	ErrDecimalOverflow = errors.New("decimal overflow")

	// ErrExternalUnavailable: price source / registry time-out. Non-fatal;
	// absent values propagate.
	ErrExternalUnavailable = errors.New("external source unavailable")
)

// InsufficientHistoryDetail carries the machine-readable payload for
// ErrInsufficientHistory (spec §6.6).
type InsufficientHistoryDetail struct {
	Asset     string
	Date      calendar.Date
	Available decimal.Amount
	Requested decimal.Amount
}

// NewInsufficientHistory builds a wrapped ErrInsufficientHistory with detail.
func NewInsufficientHistory(d InsufficientHistoryDetail) error {
	return fmt.Errorf("asset %s at %s: have %s, requested %s: %w",
		d.Asset, d.Date, d.Available.String(), d.Requested.String(), ErrInsufficientHistory)
}

// InsufficientInformationDetail carries the missing-field payload a downstream
// workflow needs to re-offer the decision (spec §6.6, §4.J).
type InsufficientInformationDetail struct {
	Asset         string
	MissingFields []string
	Context       string
}

// NewInsufficientInformation builds a wrapped ErrInsufficientInformation.
func NewInsufficientInformation(d InsufficientInformationDetail) error {
	return fmt.Errorf("asset %s missing %v: %s: %w", d.Asset, d.MissingFields, d.Context, ErrInsufficientInformation)
}

// DuplicateTransactionDetail identifies the row that caused the duplicate skip.
type DuplicateTransactionDetail struct {
	Asset     string
	TradeDate calendar.Date
	Side      string
	Quantity  decimal.Amount
}

// NewDuplicateTransaction builds a wrapped ErrDuplicateTransaction.
func NewDuplicateTransaction(d DuplicateTransactionDetail) error {
	return fmt.Errorf("asset %s %s %s on %s: %w", d.Asset, d.Side, d.Quantity.String(), d.TradeDate, ErrDuplicateTransaction)
}

// IntegrityDetail names the invariant and the residual observed.
type IntegrityDetail struct {
	Invariant string
	Asset     string
	Residual  decimal.Amount
}

// NewIntegrityViolation builds a wrapped ErrIntegrityViolation.
func NewIntegrityViolation(d IntegrityDetail) error {
	return fmt.Errorf("invariant %q violated for asset %s, residual %s: %w",
		d.Invariant, d.Asset, d.Residual.String(), ErrIntegrityViolation)
}

// NewConfigurationError wraps ErrConfiguration with a human diagnostic.
func NewConfigurationError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrConfiguration)
}

// NewDecimalOverflow wraps ErrDecimalOverflow with the offending value.
func NewDecimalOverflow(context string) error {
	return fmt.Errorf("%s: %w", context, ErrDecimalOverflow)
}

// NewExternalUnavailable wraps ErrExternalUnavailable with the failing source.
func NewExternalUnavailable(source string, cause error) error {
	return fmt.Errorf("%s unavailable: %w: %w", source, cause, ErrExternalUnavailable)
}

// Is reports whether err ultimately wraps target, a thin readability alias
// over errors.Is kept so call sites read errs.Is(err, errs.ErrX).
func Is(err, target error) bool { return errors.Is(err, target) }
