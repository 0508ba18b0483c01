package sqlite

import (
	"fmt"
	"time"

	"github.com/warp/pharmacy-engine/pharmacy"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use plain RFC 3339.
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func formatDate(t time.Time) string {
	return t.Format(pharmacy.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(pharmacy.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// =============================================================================
// ROW TYPES
// =============================================================================

const medicineColumns = `id, name, category, description, unit, price_cents, stock_quantity,
	minimum_stock, expiry_date, supplier, created_at, updated_at`

type medicineRow struct {
	ID            int64          `db:"id"`
	Name          string         `db:"name"`
	Category      string         `db:"category"`
	Description   *string        `db:"description"`
	Unit          string         `db:"unit"`
	Price         pharmacy.Money `db:"price_cents"`
	StockQuantity int64          `db:"stock_quantity"`
	MinimumStock  int64          `db:"minimum_stock"`
	ExpiryDate    string         `db:"expiry_date"`
	Supplier      *string        `db:"supplier"`
	CreatedAt     string         `db:"created_at"`
	UpdatedAt     string         `db:"updated_at"`
}

func newMedicineRow(m pharmacy.Medicine) medicineRow {
	return medicineRow{
		ID:            int64(m.ID),
		Name:          m.Name,
		Category:      m.Category,
		Description:   m.Description,
		Unit:          m.Unit,
		Price:         m.Price,
		StockQuantity: m.StockQuantity,
		MinimumStock:  m.MinimumStock,
		ExpiryDate:    formatDate(m.ExpiryDate),
		Supplier:      m.Supplier,
		CreatedAt:     formatTime(m.CreatedAt),
		UpdatedAt:     formatTime(m.UpdatedAt),
	}
}

func (r medicineRow) medicine() (pharmacy.Medicine, error) {
	m := pharmacy.Medicine{
		ID:            pharmacy.MedicineID(r.ID),
		Name:          r.Name,
		Category:      r.Category,
		Description:   r.Description,
		Unit:          r.Unit,
		Price:         r.Price,
		StockQuantity: r.StockQuantity,
		MinimumStock:  r.MinimumStock,
		Supplier:      r.Supplier,
	}
	var err error
	if m.ExpiryDate, err = parseDate(r.ExpiryDate); err != nil {
		return m, err
	}
	if m.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return m, err
	}
	m.UpdatedAt, err = parseTime(r.UpdatedAt)
	return m, err
}

const patientColumns = `id, patient_code, name, date_of_birth, gender, phone, email, address,
	emergency_contact, medical_history, allergies, created_at, updated_at`

type patientRow struct {
	ID               int64   `db:"id"`
	PatientCode      string  `db:"patient_code"`
	Name             string  `db:"name"`
	DateOfBirth      string  `db:"date_of_birth"`
	Gender           string  `db:"gender"`
	Phone            *string `db:"phone"`
	Email            *string `db:"email"`
	Address          *string `db:"address"`
	EmergencyContact *string `db:"emergency_contact"`
	MedicalHistory   *string `db:"medical_history"`
	Allergies        *string `db:"allergies"`
	CreatedAt        string  `db:"created_at"`
	UpdatedAt        string  `db:"updated_at"`
}

func newPatientRow(p pharmacy.Patient) patientRow {
	return patientRow{
		ID:               int64(p.ID),
		PatientCode:      p.PatientCode,
		Name:             p.Name,
		DateOfBirth:      formatDate(p.DateOfBirth),
		Gender:           string(p.Gender),
		Phone:            p.Phone,
		Email:            p.Email,
		Address:          p.Address,
		EmergencyContact: p.EmergencyContact,
		MedicalHistory:   p.MedicalHistory,
		Allergies:        p.Allergies,
		CreatedAt:        formatTime(p.CreatedAt),
		UpdatedAt:        formatTime(p.UpdatedAt),
	}
}

func (r patientRow) patient() (pharmacy.Patient, error) {
	p := pharmacy.Patient{
		ID:               pharmacy.PatientID(r.ID),
		PatientCode:      r.PatientCode,
		Name:             r.Name,
		Gender:           pharmacy.Gender(r.Gender),
		Phone:            r.Phone,
		Email:            r.Email,
		Address:          r.Address,
		EmergencyContact: r.EmergencyContact,
		MedicalHistory:   r.MedicalHistory,
		Allergies:        r.Allergies,
	}
	var err error
	if p.DateOfBirth, err = parseDate(r.DateOfBirth); err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return p, err
	}
	p.UpdatedAt, err = parseTime(r.UpdatedAt)
	return p, err
}

const transactionColumns = `id, transaction_code, patient_id, transaction_date, total_cents,
	payment_status, notes, created_at, updated_at`

type transactionRow struct {
	ID              int64          `db:"id"`
	TransactionCode string         `db:"transaction_code"`
	PatientID       int64          `db:"patient_id"`
	TransactionDate string         `db:"transaction_date"`
	Total           pharmacy.Money `db:"total_cents"`
	PaymentStatus   string         `db:"payment_status"`
	Notes           *string        `db:"notes"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
}

func (r transactionRow) transaction() (pharmacy.Transaction, error) {
	t := pharmacy.Transaction{
		ID:              pharmacy.TransactionID(r.ID),
		TransactionCode: r.TransactionCode,
		PatientID:       pharmacy.PatientID(r.PatientID),
		TotalAmount:     r.Total,
		PaymentStatus:   pharmacy.PaymentStatus(r.PaymentStatus),
		Notes:           r.Notes,
	}
	var err error
	if t.TransactionDate, err = parseTime(r.TransactionDate); err != nil {
		return t, err
	}
	if t.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return t, err
	}
	t.UpdatedAt, err = parseTime(r.UpdatedAt)
	return t, err
}

type itemRow struct {
	ID            int64          `db:"id"`
	TransactionID int64          `db:"transaction_id"`
	MedicineID    int64          `db:"medicine_id"`
	MedicineName  string         `db:"medicine_name"`
	Quantity      int64          `db:"quantity"`
	UnitPrice     pharmacy.Money `db:"unit_price_cents"`
	Subtotal      pharmacy.Money `db:"subtotal_cents"`
	CreatedAt     string         `db:"created_at"`
}

func (r itemRow) item() (pharmacy.TransactionItem, error) {
	created, err := parseTime(r.CreatedAt)
	return pharmacy.TransactionItem{
		ID:            r.ID,
		TransactionID: pharmacy.TransactionID(r.TransactionID),
		MedicineID:    pharmacy.MedicineID(r.MedicineID),
		MedicineName:  r.MedicineName,
		Quantity:      r.Quantity,
		UnitPrice:     r.UnitPrice,
		Subtotal:      r.Subtotal,
		CreatedAt:     created,
	}, err
}

type usageRow struct {
	ID           int64   `db:"id"`
	MedicineID   int64   `db:"medicine_id"`
	MedicineName string  `db:"medicine_name"`
	QuantityUsed int64   `db:"quantity_used"`
	UsageDate    string  `db:"usage_date"`
	Notes        *string `db:"notes"`
	CreatedAt    string  `db:"created_at"`
}

func (r usageRow) usage() (pharmacy.MedicineUsage, error) {
	u := pharmacy.MedicineUsage{
		ID:           pharmacy.UsageID(r.ID),
		MedicineID:   pharmacy.MedicineID(r.MedicineID),
		MedicineName: r.MedicineName,
		QuantityUsed: r.QuantityUsed,
		Notes:        r.Notes,
	}
	var err error
	if u.UsageDate, err = parseTime(r.UsageDate); err != nil {
		return u, err
	}
	u.CreatedAt, err = parseTime(r.CreatedAt)
	return u, err
}

type summaryRow struct {
	PatientID         int64          `db:"patient_id"`
	PatientCode       string         `db:"patient_code"`
	PatientName       string         `db:"patient_name"`
	TotalTransactions int64          `db:"total_transactions"`
	TotalSpent        pharmacy.Money `db:"total_spent"`
	LastVisit         *string        `db:"last_visit"`
}
