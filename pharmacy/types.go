/*
Package pharmacy is the transaction core of the clinic/pharmacy engine.

PURPOSE:
  Owns the only subsystem with real invariants: selling medicines to a patient
  (Ledger.CreateTransaction) and consuming stock administratively
  (UsageRecorder.RecordUsage). Both read a medicine's stock, decide, and
  decrement it inside one atomic unit supplied by a Store.

KEY CONCEPTS IN THIS FILE (types.go):
  - Medicine: catalog row with a stock counter that never goes negative
  - Patient: identified by an immutable P000001-style code
  - Transaction / TransactionItem: a sale with snapshot prices
  - MedicineUsage: stock consumed without a sale
  - PaymentStatus: pending -> paid | cancelled

INVARIANTS:
  1. stock_quantity >= 0, always
  2. total_amount == sum(unit_price * quantity), exact
  3. transaction codes are unique and gapless: TXN000001, TXN000002, ...
  4. a failed atomic unit leaves no trace

SEE ALSO:
  - money.go: fixed-point currency
  - store.go: what a Store must provide
  - ledger.go: CreateTransaction
  - usage.go: RecordUsage
*/
package pharmacy

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MedicineID int64
type PatientID int64
type TransactionID int64
type UsageID int64

// DateLayout is the wire and storage layout of calendar dates.
const DateLayout = "2006-01-02"

// =============================================================================
// MEDICINE
// =============================================================================

type Medicine struct {
	ID            MedicineID
	Name          string
	Category      string
	Description   *string
	Unit          string // "tablet", "bottle", "box"
	Price         Money
	StockQuantity int64
	MinimumStock  int64
	ExpiryDate    time.Time
	Supplier      *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StockLevel is the read-only pre-flight view of a medicine's stock.
// Not authoritative: CreateTransaction re-checks under lock.
type StockLevel struct {
	MedicineID    MedicineID
	StockQuantity int64
	MinimumStock  int64
	Status        StockStatus
}

// =============================================================================
// PATIENT
// =============================================================================

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type Patient struct {
	ID               PatientID
	PatientCode      string
	Name             string
	DateOfBirth      time.Time
	Gender           Gender
	Phone            *string
	Email            *string
	Address          *string
	EmergencyContact *string
	MedicalHistory   *string
	Allergies        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// =============================================================================
// TRANSACTION
// =============================================================================

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> next is allowed.
// pending may become paid or cancelled; paid and cancelled are terminal.
// Staying in the same status is always allowed.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s == next {
		return true
	}
	return s == PaymentPending && (next == PaymentPaid || next == PaymentCancelled)
}

type Transaction struct {
	ID              TransactionID
	TransactionCode string
	PatientID       PatientID
	TransactionDate time.Time
	TotalAmount     Money
	PaymentStatus   PaymentStatus
	Notes           *string
	Items           []TransactionItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TransactionItem is one priced line. UnitPrice is a snapshot of the medicine
// price at sale time, not a live reference.
type TransactionItem struct {
	ID            int64
	TransactionID TransactionID
	MedicineID    MedicineID
	MedicineName  string // populated on read
	Quantity      int64
	UnitPrice     Money
	Subtotal      Money
	CreatedAt     time.Time
}

// =============================================================================
// MEDICINE USAGE
// =============================================================================

// MedicineUsage records stock consumed administratively (not a sale).
type MedicineUsage struct {
	ID           UsageID
	MedicineID   MedicineID
	MedicineName string // populated on read
	QuantityUsed int64
	UsageDate    time.Time
	Notes        *string
	CreatedAt    time.Time
}
