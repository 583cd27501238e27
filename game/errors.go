/*
errors.go - Centralized error types for the game engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on the sentinels with errors.Is and read details from the
  structured errors with errors.As.

ERROR CATEGORIES:
  1. Business outcomes - Expected rejections, nothing was mutated
     (validation, insufficient funds, already used, passive item,
     unsupported effect, nothing to refund, not found)
  2. Store failures - Unexpected persistence errors, nothing was logged
  3. Concurrency - Version conflicts and exhausted retries

USAGE:
  _, err := engine.BuyItem(ctx, userID, item, cfg)
  var funds *game.InsufficientFundsError
  if errors.As(err, &funds) {
      fmt.Printf("need %d more coins", funds.Shortfall())
  }

SEE ALSO:
  - engine.go: Wraps store failures in PersistenceError
  - shop.go: Returns the shop-specific business errors
*/
package game

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when a required input (user, item, reason) is missing.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientFunds is returned when a purchase exceeds the coin balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyUsed is returned when an inventory entry was consumed before.
	ErrAlreadyUsed = errors.New("inventory entry already used")

	// ErrNotFound is returned when a referenced profile, item or entry doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrPassiveItem is returned when a passive-only item is used explicitly.
	ErrPassiveItem = errors.New("item is passive")

	// ErrUnsupportedEffect is returned for an item effect the engine can't apply.
	ErrUnsupportedEffect = errors.New("unsupported item effect")

	// ErrNothingToRefund is returned when a Time Warp finds no eligible penalty.
	ErrNothingToRefund = errors.New("nothing to refund")

	// ErrPersistence wraps unexpected store failures.
	ErrPersistence = errors.New("persistence failure")

	// ErrVersionConflict is returned by stores when a profile changed since it was read.
	ErrVersionConflict = errors.New("profile version conflict")

	// ErrConflictRetryExhausted is returned after too many version conflicts in a row.
	ErrConflictRetryExhausted = errors.New("conflict retries exhausted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func validationErr(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// InsufficientFundsError provides details about a coin shortage.
type InsufficientFundsError struct {
	UserID  UserID
	Balance int64
	Price   int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %d, price %d", e.Balance, e.Price)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// Shortfall is how many coins are missing.
func (e *InsufficientFundsError) Shortfall() int64 { return e.Price - e.Balance }

// PassiveItemError explains why an item can't be used by hand.
type PassiveItemError struct {
	ItemID  ItemID
	Message string
}

func (e *PassiveItemError) Error() string { return e.Message }

func (e *PassiveItemError) Unwrap() error { return ErrPassiveItem }

type UnsupportedEffectError struct {
	Effect EffectType
}

func (e *UnsupportedEffectError) Error() string {
	return fmt.Sprintf("unsupported item effect %q", e.Effect)
}

func (e *UnsupportedEffectError) Unwrap() error { return ErrUnsupportedEffect }

// PersistenceError wraps a store failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsBusinessError returns true for expected rule outcomes. No state was
// mutated and no log entry was written.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAlreadyUsed) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPassiveItem) ||
		errors.Is(err, ErrUnsupportedEffect) ||
		errors.Is(err, ErrNothingToRefund)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrConflictRetryExhausted)
}
