package billing

import (
	"errors"
	"fmt"
)

var (
	ErrPlanNotFound          = errors.New("plan not found")
	ErrPlanInactive          = errors.New("plan is inactive")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrTransactionFailure    = errors.New("transaction failed")
	ErrMalformedFeatureData  = errors.New("malformed feature data")
	ErrReconciliationFailure = errors.New("reconciliation failed")
	ErrInvalidInput          = errors.New("invalid input")
	ErrDuplicateTransaction  = errors.New("duplicate external transaction id")
	ErrInvalidTransition     = errors.New("invalid subscription status transition")
	ErrAlreadyRefunded       = errors.New("payment already refunded")
	ErrSweepInProgress       = errors.New("sweep already in progress")
)

// domainErrors are returned to callers unchanged. Anything else coming out of
// a transaction is a store failure.
var domainErrors = []error{
	ErrPlanNotFound,
	ErrPlanInactive,
	ErrSubscriptionNotFound,
	ErrUserNotFound,
	ErrPaymentNotFound,
	ErrMalformedFeatureData,
	ErrInvalidInput,
	ErrDuplicateTransaction,
	ErrInvalidTransition,
	ErrAlreadyRefunded,
}

// TxError reports a database failure during Op. The operation was rolled back.
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrTransactionFailure, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

func (e *TxError) Is(target error) bool {
	return target == ErrTransactionFailure
}

// ReconciliationError is one user's failure inside a sweep pass.
type ReconciliationError struct {
	UserID uint
	Err    error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile user %d: %v", e.UserID, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

func (e *ReconciliationError) Is(target error) bool {
	return target == ErrReconciliationFailure
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// storeFailure wraps err into a *TxError unless it is already a domain error
// or a TxError.
func storeFailure(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	var txErr *TxError
	if errors.As(err, &txErr) {
		return err
	}
	return &TxError{Op: op, Err: err}
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
