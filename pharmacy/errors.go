/*
errors.go - Error taxonomy of the transaction core

ERROR CATEGORIES:
  1. InvalidArgument  - malformed request, detected before any mutation
  2. NotFound         - patient, medicine or transaction missing
  3. InsufficientStock - a line asks for more than the locked stock
  4. Conflict         - lock wait expired or the store reported contention;
                        the caller may retry the whole operation
  5. StorageFailure   - the atomic unit could not commit; fully rolled back

The core never retries. Every error aborts the whole atomic unit.

USAGE:
  if errors.Is(err, pharmacy.ErrInsufficientStock) { ... }

  var stockErr *pharmacy.InsufficientStockError
  if errors.As(err, &stockErr) {
      log.Printf("%s: %d available", stockErr.Name, stockErr.Available)
  }
*/
package pharmacy

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrPatientNotFound         = errors.New("patient not found")
	ErrMedicineNotFound        = errors.New("medicine not found")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrConflict                = errors.New("conflict")
	ErrStorageFailure          = errors.New("storage failure")
	ErrInvalidStatusTransition = errors.New("invalid payment status transition")

	// ErrMedicineInUse is returned when deleting a medicine still referenced
	// by a transaction item or usage record.
	ErrMedicineInUse = errors.New("medicine is referenced by existing records")

	// ErrDuplicateEmail is returned when registering a patient whose email
	// already belongs to another patient.
	ErrDuplicateEmail = errors.New("email already exists")

	// ErrNotLocked is a programming error: a stock mutation was attempted on a
	// row the atomic unit never locked.
	ErrNotLocked = errors.New("row not locked in this unit")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid argument: %s", e.Reason)
	}
	return fmt.Sprintf("invalid argument: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

type PatientNotFoundError struct {
	ID PatientID
}

func (e *PatientNotFoundError) Error() string {
	return fmt.Sprintf("patient %d not found", e.ID)
}

func (e *PatientNotFoundError) Unwrap() error { return ErrPatientNotFound }

type MedicineNotFoundError struct {
	ID MedicineID
}

func (e *MedicineNotFoundError) Error() string {
	return fmt.Sprintf("medicine %d not found", e.ID)
}

func (e *MedicineNotFoundError) Unwrap() error { return ErrMedicineNotFound }

type TransactionNotFoundError struct {
	ID TransactionID
}

func (e *TransactionNotFoundError) Error() string {
	return fmt.Sprintf("transaction %d not found", e.ID)
}

func (e *TransactionNotFoundError) Unwrap() error { return ErrTransactionNotFound }

// InsufficientStockError reports the locked stock and what was asked for.
type InsufficientStockError struct {
	MedicineID MedicineID
	Name       string
	Available  int64
	Required   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for medicine %s. Available: %d, Required: %d",
		e.Name, e.Available, e.Required)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type StatusTransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("cannot change payment status from %s to %s", e.From, e.To)
}

func (e *StatusTransitionError) Unwrap() error { return ErrInvalidStatusTransition }

// ConflictError wraps contention reported by the store (busy database,
// expired lock wait, duplicate code).
type ConflictError struct {
	Op  string
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: conflict, retry: %v", e.Op, e.Err)
}

func (e *ConflictError) Unwrap() []error { return []error{ErrConflict, e.Err} }

// StorageError wraps any other store fault.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorageFailure, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the whole operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidStatusTransition) ||
		errors.Is(err, ErrMedicineInUse) ||
		errors.Is(err, ErrDuplicateEmail)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPatientNotFound) ||
		errors.Is(err, ErrMedicineNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}
