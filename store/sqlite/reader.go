package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/warp/pharmacy-engine/pharmacy"
)

// =============================================================================
// READER - pharmacy.Reader
// =============================================================================

func (s *Store) GetMedicine(ctx context.Context, id pharmacy.MedicineID) (*pharmacy.Medicine, error) {
	var row medicineRow
	err := s.db.GetContext(ctx, &row, `SELECT `+medicineColumns+` FROM medicines WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(ctx, "get medicine", err)
	}
	m, err := row.medicine()
	if err != nil {
		return nil, &pharmacy.StorageError{Op: "get medicine", Err: err}
	}
	return &m, nil
}

func (s *Store) ListMedicines(ctx context.Context) ([]pharmacy.Medicine, error) {
	var rows []medicineRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+medicineColumns+` FROM medicines ORDER BY name, id`); err != nil {
		return nil, classify(ctx, "list medicines", err)
	}
	out := make([]pharmacy.Medicine, 0, len(rows))
	for _, row := range rows {
		m, err := row.medicine()
		if err != nil {
			return nil, &pharmacy.StorageError{Op: "list medicines", Err: err}
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) GetPatient(ctx context.Context, id pharmacy.PatientID) (*pharmacy.Patient, error) {
	var row patientRow
	err := s.db.GetContext(ctx, &row, `SELECT `+patientColumns+` FROM patients WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(ctx, "get patient", err)
	}
	p, err := row.patient()
	if err != nil {
		return nil, &pharmacy.StorageError{Op: "get patient", Err: err}
	}
	return &p, nil
}

func (s *Store) ListPatients(ctx context.Context) ([]pharmacy.Patient, error) {
	var rows []patientRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+patientColumns+` FROM patients ORDER BY id`); err != nil {
		return nil, classify(ctx, "list patients", err)
	}
	out := make([]pharmacy.Patient, 0, len(rows))
	for _, row := range rows {
		p, err := row.patient()
		if err != nil {
			return nil, &pharmacy.StorageError{Op: "list patients", Err: err}
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) GetTransaction(ctx context.Context, id pharmacy.TransactionID) (*pharmacy.Transaction, error) {
	var row transactionRow
	err := s.db.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(ctx, "get transaction", err)
	}
	t, err := row.transaction()
	if err != nil {
		return nil, &pharmacy.StorageError{Op: "get transaction", Err: err}
	}

	var items []itemRow
	err = s.db.SelectContext(ctx, &items, `
		SELECT ti.id, ti.transaction_id, ti.medicine_id, m.name AS medicine_name,
		       ti.quantity, ti.unit_price_cents, ti.subtotal_cents, ti.created_at
		FROM transaction_items ti
		JOIN medicines m ON m.id = ti.medicine_id
		WHERE ti.transaction_id = ?
		ORDER BY ti.id`, id)
	if err != nil {
		return nil, classify(ctx, "get transaction items", err)
	}
	t.Items = make([]pharmacy.TransactionItem, 0, len(items))
	for _, ir := range items {
		item, err := ir.item()
		if err != nil {
			return nil, &pharmacy.StorageError{Op: "get transaction items", Err: err}
		}
		t.Items = append(t.Items, item)
	}
	return &t, nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]pharmacy.Transaction, error) {
	var rows []transactionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+transactionColumns+` FROM transactions ORDER BY id`); err != nil {
		return nil, classify(ctx, "list transactions", err)
	}
	out := make([]pharmacy.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := row.transaction()
		if err != nil {
			return nil, &pharmacy.StorageError{Op: "list transactions", Err: err}
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) ListUsage(ctx context.Context) ([]pharmacy.MedicineUsage, error) {
	var rows []usageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT mu.id, mu.medicine_id, m.name AS medicine_name, mu.quantity_used,
		       mu.usage_date, mu.notes, mu.created_at
		FROM medicine_usage mu
		JOIN medicines m ON m.id = mu.medicine_id
		ORDER BY mu.usage_date DESC, mu.id DESC`)
	if err != nil {
		return nil, classify(ctx, "list usage", err)
	}
	out := make([]pharmacy.MedicineUsage, 0, len(rows))
	for _, row := range rows {
		u, err := row.usage()
		if err != nil {
			return nil, &pharmacy.StorageError{Op: "list usage", Err: err}
		}
		out = append(out, u)
	}
	return out, nil
}

// PatientSummaries aggregates in SQL. Every transaction counts, cancelled
// ones included.
func (s *Store) PatientSummaries(ctx context.Context) ([]pharmacy.PatientSummary, error) {
	var rows []summaryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.id AS patient_id, p.patient_code, p.name AS patient_name,
		       COUNT(t.id) AS total_transactions,
		       COALESCE(SUM(t.total_cents), 0) AS total_spent,
		       MAX(t.transaction_date) AS last_visit
		FROM patients p
		LEFT JOIN transactions t ON t.patient_id = p.id
		GROUP BY p.id, p.patient_code, p.name
		ORDER BY p.name, p.id`)
	if err != nil {
		return nil, classify(ctx, "patient summaries", err)
	}

	out := make([]pharmacy.PatientSummary, 0, len(rows))
	for _, row := range rows {
		summary := pharmacy.PatientSummary{
			PatientID:         pharmacy.PatientID(row.PatientID),
			PatientCode:       row.PatientCode,
			PatientName:       row.PatientName,
			TotalTransactions: row.TotalTransactions,
			TotalSpent:        row.TotalSpent,
		}
		if row.LastVisit != nil {
			visit, err := parseTime(*row.LastVisit)
			if err != nil {
				return nil, &pharmacy.StorageError{Op: "patient summaries", Err: err}
			}
			summary.LastVisit = &visit
		}
		out = append(out, summary)
	}
	return out, nil
}
