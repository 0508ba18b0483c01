package api

import (
	"time"

	"github.com/warp/pharmacy-engine/pharmacy"
)

// =============================================================================
// MEDICINE DTOs
// =============================================================================

type MedicineDTO struct {
	ID            int64                `json:"id"`
	Name          string               `json:"name"`
	Category      string               `json:"category"`
	Description   *string              `json:"description"`
	Unit          string               `json:"unit"`
	Price         pharmacy.Money       `json:"price"`
	StockQuantity int64                `json:"stock_quantity"`
	MinimumStock  int64                `json:"minimum_stock"`
	StockStatus   pharmacy.StockStatus `json:"stock_status"`
	ExpiryDate    string               `json:"expiry_date"`
	Supplier      *string              `json:"supplier"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

type StockLevelDTO struct {
	MedicineID    int64                `json:"medicine_id"`
	StockQuantity int64                `json:"stock_quantity"`
	MinimumStock  int64                `json:"minimum_stock"`
	Status        pharmacy.StockStatus `json:"status"`
}

// =============================================================================
// PATIENT DTOs
// =============================================================================

type PatientDTO struct {
	ID               int64     `json:"id"`
	PatientCode      string    `json:"patient_code"`
	Name             string    `json:"name"`
	DateOfBirth      string    `json:"date_of_birth"`
	Gender           string    `json:"gender"`
	Phone            *string   `json:"phone"`
	Email            *string   `json:"email"`
	Address          *string   `json:"address"`
	EmergencyContact *string   `json:"emergency_contact"`
	MedicalHistory   *string   `json:"medical_history"`
	Allergies        *string   `json:"allergies"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// =============================================================================
// TRANSACTION DTOs
// =============================================================================

type TransactionDTO struct {
	ID              int64                  `json:"id"`
	TransactionCode string                 `json:"transaction_code"`
	PatientID       int64                  `json:"patient_id"`
	TransactionDate time.Time              `json:"transaction_date"`
	TotalAmount     pharmacy.Money         `json:"total_amount"`
	PaymentStatus   pharmacy.PaymentStatus `json:"payment_status"`
	Notes           *string                `json:"notes"`
	Items           []TransactionItemDTO   `json:"items,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

type TransactionItemDTO struct {
	ID           int64          `json:"id"`
	MedicineID   int64          `json:"medicine_id"`
	MedicineName string         `json:"medicine_name"`
	Quantity     int64          `json:"quantity"`
	UnitPrice    pharmacy.Money `json:"unit_price"`
	Subtotal     pharmacy.Money `json:"subtotal"`
}

// UpdateStatusRequest is the body of PUT /api/transactions/{id}/status.
type UpdateStatusRequest struct {
	PaymentStatus pharmacy.PaymentStatus `json:"payment_status"`
}

type ReceiptDTO struct {
	TransactionID   int64                  `json:"transaction_id"`
	TransactionCode string                 `json:"transaction_code"`
	PatientName     string                 `json:"patient_name"`
	PatientCode     string                 `json:"patient_code"`
	TransactionDate time.Time              `json:"transaction_date"`
	Items           []ReceiptLineDTO       `json:"items"`
	TotalAmount     pharmacy.Money         `json:"total_amount"`
	PaymentStatus   pharmacy.PaymentStatus `json:"payment_status"`
	Notes           *string                `json:"notes"`
}

type ReceiptLineDTO struct {
	MedicineName string         `json:"medicine_name"`
	Quantity     int64          `json:"quantity"`
	UnitPrice    pharmacy.Money `json:"unit_price"`
	Subtotal     pharmacy.Money `json:"subtotal"`
}

// =============================================================================
// USAGE & REPORT DTOs
// =============================================================================

type UsageDTO struct {
	ID           int64     `json:"id"`
	MedicineID   int64     `json:"medicine_id"`
	MedicineName string    `json:"medicine_name"`
	QuantityUsed int64     `json:"quantity_used"`
	UsageDate    time.Time `json:"usage_date"`
	Notes        *string   `json:"notes"`
}

type StockReportLineDTO struct {
	MedicineID   int64                `json:"medicine_id"`
	MedicineName string               `json:"medicine_name"`
	Category     string               `json:"category"`
	CurrentStock int64                `json:"current_stock"`
	MinimumStock int64                `json:"minimum_stock"`
	Status       pharmacy.StockStatus `json:"status"`
	ExpiryDate   string               `json:"expiry_date"`
	DaysToExpiry int                  `json:"days_to_expiry"`
}

type PatientSummaryDTO struct {
	PatientID         int64          `json:"patient_id"`
	PatientCode       string         `json:"patient_code"`
	PatientName       string         `json:"patient_name"`
	TotalTransactions int64          `json:"total_transactions"`
	TotalSpent        pharmacy.Money `json:"total_spent"`
	LastVisit         *time.Time     `json:"last_visit"`
}

// AlertReportDTO is the latest stock alert scan.
type AlertReportDTO struct {
	CheckedAt  time.Time       `json:"checked_at"`
	OutOfStock []StockAlertDTO `json:"out_of_stock"`
	LowStock   []StockAlertDTO `json:"low_stock"`
	Expiring   []StockAlertDTO `json:"expiring"`
}

type StockAlertDTO struct {
	MedicineID   int64  `json:"medicine_id"`
	MedicineName string `json:"medicine_name"`
	CurrentStock int64  `json:"current_stock"`
	MinimumStock int64  `json:"minimum_stock"`
	ExpiryDate   string `json:"expiry_date"`
	DaysToExpiry int    `json:"days_to_expiry"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toMedicineDTO(m pharmacy.Medicine) MedicineDTO {
	return MedicineDTO{
		ID:            int64(m.ID),
		Name:          m.Name,
		Category:      m.Category,
		Description:   m.Description,
		Unit:          m.Unit,
		Price:         m.Price,
		StockQuantity: m.StockQuantity,
		MinimumStock:  m.MinimumStock,
		StockStatus:   pharmacy.ClassifyStock(m.StockQuantity, m.MinimumStock),
		ExpiryDate:    m.ExpiryDate.Format(pharmacy.DateLayout),
		Supplier:      m.Supplier,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toPatientDTO(p pharmacy.Patient) PatientDTO {
	return PatientDTO{
		ID:               int64(p.ID),
		PatientCode:      p.PatientCode,
		Name:             p.Name,
		DateOfBirth:      p.DateOfBirth.Format(pharmacy.DateLayout),
		Gender:           string(p.Gender),
		Phone:            p.Phone,
		Email:            p.Email,
		Address:          p.Address,
		EmergencyContact: p.EmergencyContact,
		MedicalHistory:   p.MedicalHistory,
		Allergies:        p.Allergies,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func toTransactionDTO(t pharmacy.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:              int64(t.ID),
		TransactionCode: t.TransactionCode,
		PatientID:       int64(t.PatientID),
		TransactionDate: t.TransactionDate,
		TotalAmount:     t.TotalAmount,
		PaymentStatus:   t.PaymentStatus,
		Notes:           t.Notes,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	for _, item := range t.Items {
		dto.Items = append(dto.Items, TransactionItemDTO{
			ID:           item.ID,
			MedicineID:   int64(item.MedicineID),
			MedicineName: item.MedicineName,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			Subtotal:     item.Subtotal,
		})
	}
	return dto
}

func toReceiptDTO(r pharmacy.Receipt) ReceiptDTO {
	dto := ReceiptDTO{
		TransactionID:   int64(r.TransactionID),
		TransactionCode: r.TransactionCode,
		PatientName:     r.PatientName,
		PatientCode:     r.PatientCode,
		TransactionDate: r.TransactionDate,
		Items:           make([]ReceiptLineDTO, len(r.Items)),
		TotalAmount:     r.TotalAmount,
		PaymentStatus:   r.PaymentStatus,
		Notes:           r.Notes,
	}
	for i, line := range r.Items {
		dto.Items[i] = ReceiptLineDTO(line)
	}
	return dto
}

func toUsageDTO(u pharmacy.MedicineUsage) UsageDTO {
	return UsageDTO{
		ID:           int64(u.ID),
		MedicineID:   int64(u.MedicineID),
		MedicineName: u.MedicineName,
		QuantityUsed: u.QuantityUsed,
		UsageDate:    u.UsageDate,
		Notes:        u.Notes,
	}
}

func toStockReportLineDTO(l pharmacy.StockReportLine) StockReportLineDTO {
	return StockReportLineDTO{
		MedicineID:   int64(l.MedicineID),
		MedicineName: l.MedicineName,
		Category:     l.Category,
		CurrentStock: l.CurrentStock,
		MinimumStock: l.MinimumStock,
		Status:       l.Status,
		ExpiryDate:   l.ExpiryDate.Format(pharmacy.DateLayout),
		DaysToExpiry: l.DaysToExpiry,
	}
}

func toPatientSummaryDTO(s pharmacy.PatientSummary) PatientSummaryDTO {
	return PatientSummaryDTO{
		PatientID:         int64(s.PatientID),
		PatientCode:       s.PatientCode,
		PatientName:       s.PatientName,
		TotalTransactions: s.TotalTransactions,
		TotalSpent:        s.TotalSpent,
		LastVisit:         s.LastVisit,
	}
}
