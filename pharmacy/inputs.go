package pharmacy

import "time"

// =============================================================================
// INPUTS - Requests accepted by the core (decoded directly from JSON)
// =============================================================================

// LineItem is one (medicine, quantity) pair of a transaction request.
type LineItem struct {
	MedicineID MedicineID `json:"medicine_id" validate:"gt=0"`
	Quantity   int64      `json:"quantity" validate:"gt=0"`
}

type CreateTransactionInput struct {
	PatientID PatientID  `json:"patient_id" validate:"gt=0"`
	Items     []LineItem `json:"items" validate:"required,min=1,dive"`
	Notes     *string    `json:"notes"`
}

func (in CreateTransactionInput) Validate() error { return validateInput(in) }

type RecordUsageInput struct {
	MedicineID   MedicineID `json:"medicine_id" validate:"gt=0"`
	QuantityUsed int64      `json:"quantity_used" validate:"gt=0"`
	Notes        *string    `json:"notes"`
}

func (in RecordUsageInput) Validate() error { return validateInput(in) }

type NewMedicineInput struct {
	Name          string  `json:"name" validate:"required"`
	Category      string  `json:"category" validate:"required"`
	Description   *string `json:"description"`
	Unit          string  `json:"unit" validate:"required"`
	Price         Money   `json:"price" validate:"gt=0"`
	StockQuantity int64   `json:"stock_quantity" validate:"gte=0"`
	MinimumStock  int64   `json:"minimum_stock" validate:"gte=0"`
	ExpiryDate    string  `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	Supplier      *string `json:"supplier"`
}

func (in NewMedicineInput) Validate() error { return validateInput(in) }

// Medicine builds the row to insert. Call Validate first.
func (in NewMedicineInput) Medicine(now time.Time) Medicine {
	expiry, _ := time.Parse(DateLayout, in.ExpiryDate)
	return Medicine{
		Name:          in.Name,
		Category:      in.Category,
		Description:   in.Description,
		Unit:          in.Unit,
		Price:         in.Price,
		StockQuantity: in.StockQuantity,
		MinimumStock:  in.MinimumStock,
		ExpiryDate:    expiry,
		Supplier:      in.Supplier,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

type NewPatientInput struct {
	Name             string  `json:"name" validate:"required"`
	DateOfBirth      string  `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Gender           Gender  `json:"gender" validate:"required,oneof=male female"`
	Phone            *string `json:"phone"`
	Email            *string `json:"email" validate:"omitempty,email"`
	Address          *string `json:"address"`
	EmergencyContact *string `json:"emergency_contact"`
	MedicalHistory   *string `json:"medical_history"`
	Allergies        *string `json:"allergies"`
}

func (in NewPatientInput) Validate() error { return validateInput(in) }

// Patient builds the row to insert (without code). Call Validate first.
func (in NewPatientInput) Patient(now time.Time) Patient {
	dob, _ := time.Parse(DateLayout, in.DateOfBirth)
	return Patient{
		Name:             in.Name,
		DateOfBirth:      dob,
		Gender:           in.Gender,
		Phone:            in.Phone,
		Email:            in.Email,
		Address:          in.Address,
		EmergencyContact: in.EmergencyContact,
		MedicalHistory:   in.MedicalHistory,
		Allergies:        in.Allergies,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
