package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iurnickita/cashback/internal/balance"
	"github.com/iurnickita/cashback/internal/catalog"
	"github.com/iurnickita/cashback/internal/idempotency"
	"github.com/iurnickita/cashback/internal/lifecycle"
	"github.com/iurnickita/cashback/internal/pricing"
	"github.com/iurnickita/cashback/internal/qrcode"
	"github.com/iurnickita/cashback/internal/store"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConflictInProgress  = errors.New("operation with this idempotency key is in progress")
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
	ErrPersistence         = errors.New("persistence error")
)

var classified = []error{
	ErrValidation,
	ErrNotFound,
	ErrInsufficientBalance,
	ErrConflictInProgress,
	ErrConcurrencyConflict,
	ErrPersistence,
}

var validationErrors = []error{
	pricing.ErrEmptyItems,
	pricing.ErrQuantityIncorrect,
	pricing.ErrPriceIncorrect,
	pricing.ErrProductUnavailable,
	pricing.ErrDiscountIncorrect,
	pricing.ErrDiscountExceedsTotal,
	pricing.ErrAmountIncorrect,
	lifecycle.ErrUnknownEvent,
	lifecycle.ErrInvalidTransition,
	idempotency.ErrKeyMissing,
	idempotency.ErrKeyTooLong,
	qrcode.ErrFormat,
	qrcode.ErrChecksum,
	store.ErrAmountIncorrect,
	store.ErrCurrencyIncorrect,
	store.ErrDeltaEmpty,
	store.ErrValueOutOfRange,
	balance.ErrNoUser,
}

// classify maps lower-layer errors to the service taxonomy. The original
// error stays in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range classified {
		if errors.Is(err, target) {
			return err
		}
	}

	var kind error
	switch {
	case errors.Is(err, idempotency.ErrInProgress):
		kind = ErrConflictInProgress
	case errors.Is(err, store.ErrInsufficientFunds):
		kind = ErrInsufficientBalance
	case errors.Is(err, store.ErrConcurrency), errors.Is(err, idempotency.ErrLeaseLost):
		kind = ErrConcurrencyConflict
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, store.ErrNoRows):
		kind = ErrNotFound
	case isValidation(err):
		kind = ErrValidation
	default:
		// сбой хранилища, таймаут и прочее - повторить позже
		kind = ErrPersistence
	}
	return fmt.Errorf("%w: %w", kind, err)
}

func isValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Retryable reports whether the caller may repeat the request with the same
// idempotency key.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflictInProgress) ||
		errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrPersistence)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrConflictInProgress):
		return "in_progress"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	}
	return "error"
}
