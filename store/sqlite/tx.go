package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/warp/pharmacy-engine/pharmacy"
)

// =============================================================================
// TX STORE - pharmacy.Tx bound to one *sqlx.Tx
// =============================================================================

// txStore never touches Store.db: the pool has one connection and this unit
// already holds it.
type txStore struct {
	tx     *sqlx.Tx
	locked   map[pharmacy.MedicineID]bool
	txn      map[pharmacy.TransactionID]bool
	patients map[pharmacy.PatientID]bool
}

func (ts *txStore) PatientExists(ctx context.Context, id pharmacy.PatientID) (bool, error) {
	var n int
	if err := ts.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM patients WHERE id = ?`, id); err != nil {
		return false, classify(ctx, "patient exists", err)
	}
	return n > 0, nil
}

// LockAndFetch reads the rows inside the unit. BEGIN IMMEDIATE already holds
// the database write lock, so the rows stay fixed until commit.
func (ts *txStore) LockAndFetch(ctx context.Context, ids []pharmacy.MedicineID) (map[pharmacy.MedicineID]pharmacy.Medicine, error) {
	if len(ids) == 0 {
		return map[pharmacy.MedicineID]pharmacy.Medicine{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+medicineColumns+` FROM medicines WHERE id IN (?)`, ids)
	if err != nil {
		return nil, &pharmacy.StorageError{Op: "lock medicines", Err: err}
	}
	var rows []medicineRow
	if err := ts.tx.SelectContext(ctx, &rows, ts.tx.Rebind(query), args...); err != nil {
		return nil, classify(ctx, "lock medicines", err)
	}

	found := make(map[pharmacy.MedicineID]pharmacy.Medicine, len(rows))
	for _, row := range rows {
		m, err := row.medicine()
		if err != nil {
			return nil, &pharmacy.StorageError{Op: "lock medicines", Err: err}
		}
		found[m.ID] = m
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return nil, &pharmacy.MedicineNotFoundError{ID: id}
		}
		ts.locked[id] = true
	}
	return found, nil
}

func (ts *txStore) DecrementStock(ctx context.Context, id pharmacy.MedicineID, amount int64, at time.Time) error {
	if amount <= 0 {
		return &pharmacy.ValidationError{Field: "amount", Reason: "must be greater than 0"}
	}
	if !ts.locked[id] {
		return fmt.Errorf("decrement medicine %d: %w", id, pharmacy.ErrNotLocked)
	}
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE medicines SET stock_quantity = stock_quantity - ?, updated_at = ?
		WHERE id = ? AND stock_quantity >= ?`,
		amount, formatTime(at), id, amount)
	if err != nil {
		return classify(ctx, "decrement stock", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var row medicineRow
	err = ts.tx.GetContext(ctx, &row, `SELECT `+medicineColumns+` FROM medicines WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return &pharmacy.MedicineNotFoundError{ID: id}
	}
	if err != nil {
		return classify(ctx, "decrement stock", err)
	}
	return &pharmacy.InsufficientStockError{
		MedicineID: id,
		Name:       row.Name,
		Available:  row.StockQuantity,
		Required:   amount,
	}
}

func (ts *txStore) NextCode(ctx context.Context, series pharmacy.Series) (string, error) {
	if _, err := ts.tx.ExecContext(ctx,
		`INSERT INTO code_sequences (name, last_no) VALUES (?, 0) ON CONFLICT(name) DO NOTHING`,
		series.Name); err != nil {
		return "", classify(ctx, "next code", err)
	}

	var lastNo int64
	if err := ts.tx.GetContext(ctx, &lastNo, `SELECT last_no FROM code_sequences WHERE name = ?`, series.Name); err != nil {
		return "", classify(ctx, "next code", err)
	}
	next := lastNo + 1
	if _, err := ts.tx.ExecContext(ctx, `UPDATE code_sequences SET last_no = ? WHERE name = ?`, next, series.Name); err != nil {
		return "", classify(ctx, "next code", err)
	}
	return series.Code(next), nil
}

func (ts *txStore) InsertTransaction(ctx context.Context, t *pharmacy.Transaction) error {
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO transactions (transaction_code, patient_id, transaction_date, total_cents,
			payment_status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TransactionCode, t.PatientID, formatTime(t.TransactionDate), t.TotalAmount,
		string(t.PaymentStatus), t.Notes, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return classify(ctx, "insert transaction", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &pharmacy.StorageError{Op: "insert transaction", Err: err}
	}
	t.ID = pharmacy.TransactionID(id)

	for i := range t.Items {
		item := &t.Items[i]
		item.TransactionID = t.ID
		res, err := ts.tx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, medicine_id, quantity,
				unit_price_cents, subtotal_cents, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, item.MedicineID, item.Quantity, item.UnitPrice, item.Subtotal, formatTime(item.CreatedAt))
		if err != nil {
			return classify(ctx, "insert transaction item", err)
		}
		if item.ID, err = res.LastInsertId(); err != nil {
			return &pharmacy.StorageError{Op: "insert transaction item", Err: err}
		}
	}
	return nil
}

func (ts *txStore) InsertUsage(ctx context.Context, u *pharmacy.MedicineUsage) error {
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO medicine_usage (medicine_id, quantity_used, usage_date, notes, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.MedicineID, u.QuantityUsed, formatTime(u.UsageDate), u.Notes, formatTime(u.CreatedAt))
	if err != nil {
		return classify(ctx, "insert usage", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &pharmacy.StorageError{Op: "insert usage", Err: err}
	}
	u.ID = pharmacy.UsageID(id)
	return nil
}

func (ts *txStore) LockTransaction(ctx context.Context, id pharmacy.TransactionID) (*pharmacy.Transaction, error) {
	var row transactionRow
	err := ts.tx.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(ctx, "lock transaction", err)
	}
	t, err := row.transaction()
	if err != nil {
		return nil, &pharmacy.StorageError{Op: "lock transaction", Err: err}
	}
	if ts.txn == nil {
		ts.txn = make(map[pharmacy.TransactionID]bool)
	}
	ts.txn[id] = true
	return &t, nil
}

func (ts *txStore) SetPaymentStatus(ctx context.Context, id pharmacy.TransactionID, status pharmacy.PaymentStatus, at time.Time) error {
	if !ts.txn[id] {
		return fmt.Errorf("set status of transaction %d: %w", id, pharmacy.ErrNotLocked)
	}
	_, err := ts.tx.ExecContext(ctx,
		`UPDATE transactions SET payment_status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(at), id)
	return classify(ctx, "set payment status", err)
}

func (ts *txStore) InsertPatient(ctx context.Context, p *pharmacy.Patient) error {
	res, err := ts.tx.NamedExecContext(ctx, `
		INSERT INTO patients (patient_code, name, date_of_birth, gender, phone, email, address,
			emergency_contact, medical_history, allergies, created_at, updated_at)
		VALUES (:patient_code, :name, :date_of_birth, :gender, :phone, :email, :address,
			:emergency_contact, :medical_history, :allergies, :created_at, :updated_at)`,
		newPatientRow(*p))
	if err != nil {
		return classify(ctx, "insert patient", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &pharmacy.StorageError{Op: "insert patient", Err: err}
	}
	p.ID = pharmacy.PatientID(id)
	return nil
}

func (ts *txStore) LockPatient(ctx context.Context, id pharmacy.PatientID) (*pharmacy.Patient, error) {
	var row patientRow
	err := ts.tx.GetContext(ctx, &row, `SELECT `+patientColumns+` FROM patients WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(ctx, "lock patient", err)
	}
	p, err := row.patient()
	if err != nil {
		return nil, &pharmacy.StorageError{Op: "lock patient", Err: err}
	}
	if ts.patients == nil {
		ts.patients = make(map[pharmacy.PatientID]bool)
	}
	ts.patients[id] = true
	return &p, nil
}

// UpdatePatient leaves patient_code and created_at untouched.
func (ts *txStore) UpdatePatient(ctx context.Context, p pharmacy.Patient) error {
	if !ts.patients[p.ID] {
		return fmt.Errorf("update patient %d: %w", p.ID, pharmacy.ErrNotLocked)
	}
	_, err := ts.tx.NamedExecContext(ctx, `
		UPDATE patients SET name = :name, date_of_birth = :date_of_birth, gender = :gender,
			phone = :phone, email = :email, address = :address,
			emergency_contact = :emergency_contact, medical_history = :medical_history,
			allergies = :allergies, updated_at = :updated_at
		WHERE id = :id`,
		newPatientRow(p))
	return classify(ctx, "update patient", err)
}

func (ts *txStore) InsertMedicine(ctx context.Context, m *pharmacy.Medicine) error {
	res, err := ts.tx.NamedExecContext(ctx, `
		INSERT INTO medicines (name, category, description, unit, price_cents, stock_quantity,
			minimum_stock, expiry_date, supplier, created_at, updated_at)
		VALUES (:name, :category, :description, :unit, :price_cents, :stock_quantity,
			:minimum_stock, :expiry_date, :supplier, :created_at, :updated_at)`,
		newMedicineRow(*m))
	if err != nil {
		return classify(ctx, "insert medicine", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &pharmacy.StorageError{Op: "insert medicine", Err: err}
	}
	m.ID = pharmacy.MedicineID(id)
	return nil
}

func (ts *txStore) UpdateMedicine(ctx context.Context, m pharmacy.Medicine) error {
	if !ts.locked[m.ID] {
		return fmt.Errorf("update medicine %d: %w", m.ID, pharmacy.ErrNotLocked)
	}
	_, err := ts.tx.NamedExecContext(ctx, `
		UPDATE medicines SET name = :name, category = :category, description = :description,
			unit = :unit, price_cents = :price_cents, stock_quantity = :stock_quantity,
			minimum_stock = :minimum_stock, expiry_date = :expiry_date, supplier = :supplier,
			updated_at = :updated_at
		WHERE id = :id`,
		newMedicineRow(m))
	return classify(ctx, "update medicine", err)
}

func (ts *txStore) DeleteMedicine(ctx context.Context, id pharmacy.MedicineID) error {
	if !ts.locked[id] {
		return fmt.Errorf("delete medicine %d: %w", id, pharmacy.ErrNotLocked)
	}
	_, err := ts.tx.ExecContext(ctx, `DELETE FROM medicines WHERE id = ?`, id)
	if isForeignKeyError(err) {
		return pharmacy.ErrMedicineInUse
	}
	return classify(ctx, "delete medicine", err)
}

var _ pharmacy.Tx = (*txStore)(nil)
