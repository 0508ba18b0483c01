/*
store.go - Persistence contracts for the transaction core

PURPOSE:
  Separates what the core needs from how a database provides it.
  Two sides:
    Reader: snapshot reads, taken outside any write lock (reports, receipts)
    Tx:     one atomic unit - everything done through a Tx commits together
            or not at all

ATOMIC UNIT:
  Store.WithTx runs fn inside one unit. If fn returns an error, every write
  made through the Tx is discarded, including code counter increments and
  stock decrements. If fn returns nil the unit commits; a failed commit is a
  StorageError and nothing persists.

LOCKING:
  LockAndFetch must be called before DecrementStock or UpdateMedicine for the
  same rows, LockPatient before UpdatePatient. Once a row is locked no other unit may read-to-decide or mutate
  it until this unit ends. Lock waits are bounded by the context deadline and
  surface as ConflictError.

IMPLEMENTATIONS:
  - store/sqlite: SQLite, one BEGIN IMMEDIATE transaction per unit
  - pharmacy/store: in-memory, per-row locks (tests, dev)

MISSING ROWS:
  Reader methods return (nil, nil) for a missing row.
*/
package pharmacy

import (
	"context"
	"time"
)

// =============================================================================
// READER - Snapshot reads
// =============================================================================

type Reader interface {
	GetMedicine(ctx context.Context, id MedicineID) (*Medicine, error)
	ListMedicines(ctx context.Context) ([]Medicine, error)

	GetPatient(ctx context.Context, id PatientID) (*Patient, error)
	ListPatients(ctx context.Context) ([]Patient, error)

	// GetTransaction returns the transaction with its items (medicine names filled).
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	// ListTransactions returns transactions without items, oldest first.
	ListTransactions(ctx context.Context) ([]Transaction, error)

	// ListUsage returns usage records with medicine names, newest first.
	ListUsage(ctx context.Context) ([]MedicineUsage, error)
}

// PatientSummaryReader is an optional Reader extension for stores that can
// aggregate per-patient totals themselves.
type PatientSummaryReader interface {
	PatientSummaries(ctx context.Context) ([]PatientSummary, error)
}

// =============================================================================
// TX - One atomic unit of work
// =============================================================================

type Tx interface {
	PatientExists(ctx context.Context, id PatientID) (bool, error)

	// LockAndFetch locks every given medicine row for the rest of the unit and
	// returns their current values. Fails with MedicineNotFoundError naming the
	// first id (in argument order) that does not exist.
	LockAndFetch(ctx context.Context, ids []MedicineID) (map[MedicineID]Medicine, error)

	// DecrementStock lowers stock_quantity by amount and bumps updated_at.
	// Fails with InsufficientStockError if the result would be negative and
	// with ValidationError if amount is not positive.
	DecrementStock(ctx context.Context, id MedicineID, amount int64, at time.Time) error

	// NextCode issues the next code of the series. The increment belongs to
	// the unit: a rollback gives the number back.
	NextCode(ctx context.Context, series Series) (string, error)

	// InsertTransaction stores the transaction row and all of its items,
	// filling in the assigned ids.
	InsertTransaction(ctx context.Context, t *Transaction) error

	InsertUsage(ctx context.Context, u *MedicineUsage) error

	// LockTransaction locks and returns a transaction (without items), or nil.
	LockTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	SetPaymentStatus(ctx context.Context, id TransactionID, status PaymentStatus, at time.Time) error

	InsertPatient(ctx context.Context, p *Patient) error
	// LockPatient locks and returns a patient, or nil when absent.
	LockPatient(ctx context.Context, id PatientID) (*Patient, error)
	// UpdatePatient overwrites a locked patient row. Fails with
	// ErrDuplicateEmail when another patient holds the email.
	UpdatePatient(ctx context.Context, p Patient) error
	InsertMedicine(ctx context.Context, m *Medicine) error
	// UpdateMedicine overwrites a locked medicine row.
	UpdateMedicine(ctx context.Context, m Medicine) error
	// DeleteMedicine removes a locked medicine row, or fails with ErrMedicineInUse.
	DeleteMedicine(ctx context.Context, id MedicineID) error
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	Reader

	// WithTx executes fn within one atomic unit.
	// If fn returns error, the unit is rolled back.
	// If fn returns nil, the unit is committed.
	WithTx(ctx context.Context, fn func(Tx) error) error
}
