/*
ledger.go - Sales transactions

PURPOSE:
  Validates, prices and atomically commits a sale: one transaction row,
  one item row per requested line, and a stock decrement per medicine.

CREATE FLOW (one atomic unit from step 2 on):
  1. Reject empty item lists and non-positive quantities (no unit opened)
  2. Patient must exist
  3. Lock every referenced medicine in one LockAndFetch
  4. Check stock against the LOCKED values (per medicine, all lines summed)
  5. Price each line at the current medicine price (snapshot), sum exactly
  6. Issue the next TXN code
  7. Insert transaction + items, decrement stock

  Step 1 also rejects lines whose summed quantity overflows, and step 5
  rejects totals that do not fit in int64 cents.

  Steps 1-5 abort before anything is written. A failure in 6-7 rolls back
  everything, including the code counter, so committed codes stay gapless.

DUPLICATE LINES:
  A request may name the same medicine twice. Each line keeps its own item
  row; the stock check and the decrement use the summed quantity.

PAYMENT STATUS:
  UpdatePaymentStatus applies the pending -> paid | cancelled state machine.
  Cancelling does not restock.

SEE ALSO:
  - usage.go: the single-medicine variant of the same discipline
  - store.go: the Tx contract this relies on
*/
package pharmacy

import (
	"context"
	"fmt"
	"math"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	unit
}

func NewLedger(store Store, opts ...Option) *Ledger {
	return &Ledger{unit: newUnit(store, opts)}
}

// CreateTransaction sells the requested items to a patient.
// The returned Transaction carries its items and assigned ids.
func (l *Ledger) CreateTransaction(ctx context.Context, in CreateTransactionInput) (*Transaction, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	ids, required, err := demand(in.Items)
	if err != nil {
		return nil, err
	}

	var created *Transaction
	err = l.run(ctx, "create transaction", func(ctx context.Context, tx Tx) error {
		exists, err := tx.PatientExists(ctx, in.PatientID)
		if err != nil {
			return err
		}
		if !exists {
			return &PatientNotFoundError{ID: in.PatientID}
		}

		medicines, err := tx.LockAndFetch(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			m := medicines[id]
			if m.StockQuantity < required[id] {
				return &InsufficientStockError{
					MedicineID: id,
					Name:       m.Name,
					Available:  m.StockQuantity,
					Required:   required[id],
				}
			}
		}

		now := l.clock()
		t := &Transaction{
			PatientID:       in.PatientID,
			TransactionDate: now,
			TotalAmount:     Zero,
			PaymentStatus:   PaymentPending,
			Notes:           in.Notes,
			Items:           make([]TransactionItem, 0, len(in.Items)),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for _, line := range in.Items {
			m := medicines[line.MedicineID]
			item := TransactionItem{
				MedicineID:   line.MedicineID,
				MedicineName: m.Name,
				Quantity:     line.Quantity,
				UnitPrice:    m.Price,
				Subtotal:     m.Price.Mul(line.Quantity),
				CreatedAt:    now,
			}
			t.Items = append(t.Items, item)
			t.TotalAmount = t.TotalAmount.Add(item.Subtotal)
		}
		if !t.TotalAmount.InRange() {
			return &ValidationError{Field: "items", Reason: "total amount is out of range"}
		}

		if t.TransactionCode, err = tx.NextCode(ctx, SeriesTransaction); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		for _, id := range ids {
			if err := tx.DecrementStock(ctx, id, required[id], now); err != nil {
				return err
			}
		}

		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdatePaymentStatus moves a transaction along its payment state machine.
func (l *Ledger) UpdatePaymentStatus(ctx context.Context, id TransactionID, status PaymentStatus) (*Transaction, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "payment_status", Reason: "must be one of: pending paid cancelled"}
	}

	var updated *Transaction
	err := l.run(ctx, "update payment status", func(ctx context.Context, tx Tx) error {
		t, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return &TransactionNotFoundError{ID: id}
		}
		if !t.PaymentStatus.CanTransitionTo(status) {
			return &StatusTransitionError{From: t.PaymentStatus, To: status}
		}
		if t.PaymentStatus != status {
			now := l.clock()
			if err := tx.SetPaymentStatus(ctx, id, status, now); err != nil {
				return err
			}
			t.PaymentStatus = status
			t.UpdatedAt = now
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// demand deduplicates the medicine ids of a request (first-seen order) and
// sums the quantity asked per medicine. Quantities are positive (validated);
// a sum that would overflow int64 is rejected.
func demand(items []LineItem) ([]MedicineID, map[MedicineID]int64, error) {
	ids := make([]MedicineID, 0, len(items))
	required := make(map[MedicineID]int64, len(items))
	for i, item := range items {
		sum, seen := required[item.MedicineID]
		if !seen {
			ids = append(ids, item.MedicineID)
		}
		if sum > math.MaxInt64-item.Quantity {
			return nil, nil, &ValidationError{
				Field:  fmt.Sprintf("items[%d].quantity", i),
				Reason: "total quantity for this medicine is out of range",
			}
		}
		required[item.MedicineID] = sum + item.Quantity
	}
	return ids, required, nil
}
