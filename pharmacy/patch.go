package pharmacy

import (
	"bytes"
	"encoding/json"
	"time"
)

// Optional tracks whether a field was mentioned at all, independently of its
// value. !Set means "leave unchanged"; Set with Null means the key was given
// as JSON null. For nullable fields use Optional[*T], where null clears the
// value. Non-nullable fields reject Null in Validate.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a present Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// UnmarshalJSON is only called when the key is present, including for null.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		var zero T
		o.Null, o.Value = true, zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(b, &o.Value)
}

func nullField(field string) error {
	return &ValidationError{Field: field, Reason: "must not be null"}
}

// MedicinePatch lists every editable medicine field. Absent fields are left
// untouched by Apply.
type MedicinePatch struct {
	Name          Optional[string]  `json:"name"`
	Category      Optional[string]  `json:"category"`
	Description   Optional[*string] `json:"description"`
	Unit          Optional[string]  `json:"unit"`
	Price         Optional[Money]   `json:"price"`
	StockQuantity Optional[int64]   `json:"stock_quantity"`
	MinimumStock  Optional[int64]   `json:"minimum_stock"`
	ExpiryDate    Optional[string]  `json:"expiry_date"`
	Supplier      Optional[*string] `json:"supplier"`
}

// Empty reports whether the patch mentions no field.
func (p MedicinePatch) Empty() bool {
	return !p.Name.Set && !p.Category.Set && !p.Description.Set && !p.Unit.Set &&
		!p.Price.Set && !p.StockQuantity.Set && !p.MinimumStock.Set &&
		!p.ExpiryDate.Set && !p.Supplier.Set
}

// Validate applies the creation rules to the fields that are present.
func (p MedicinePatch) Validate() error {
	switch {
	case p.Name.Null:
		return nullField("name")
	case p.Category.Null:
		return nullField("category")
	case p.Unit.Null:
		return nullField("unit")
	case p.Price.Null:
		return nullField("price")
	case p.StockQuantity.Null:
		return nullField("stock_quantity")
	case p.MinimumStock.Null:
		return nullField("minimum_stock")
	case p.ExpiryDate.Null:
		return nullField("expiry_date")
	}
	if p.Name.Set && p.Name.Value == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if p.Category.Set && p.Category.Value == "" {
		return &ValidationError{Field: "category", Reason: "must not be empty"}
	}
	if p.Unit.Set && p.Unit.Value == "" {
		return &ValidationError{Field: "unit", Reason: "must not be empty"}
	}
	if p.Price.Set && !p.Price.Value.IsPositive() {
		return &ValidationError{Field: "price", Reason: "must be greater than 0"}
	}
	if p.StockQuantity.Set && p.StockQuantity.Value < 0 {
		return &ValidationError{Field: "stock_quantity", Reason: "must be at least 0"}
	}
	if p.MinimumStock.Set && p.MinimumStock.Value < 0 {
		return &ValidationError{Field: "minimum_stock", Reason: "must be at least 0"}
	}
	if p.ExpiryDate.Set {
		if _, err := time.Parse(DateLayout, p.ExpiryDate.Value); err != nil {
			return &ValidationError{Field: "expiry_date", Reason: "must be a date (YYYY-MM-DD)"}
		}
	}
	return nil
}

// Apply writes the present fields onto m. Call Validate first.
func (p MedicinePatch) Apply(m *Medicine, now time.Time) {
	if p.Name.Set {
		m.Name = p.Name.Value
	}
	if p.Category.Set {
		m.Category = p.Category.Value
	}
	if p.Description.Set {
		m.Description = p.Description.Value
	}
	if p.Unit.Set {
		m.Unit = p.Unit.Value
	}
	if p.Price.Set {
		m.Price = p.Price.Value
	}
	if p.StockQuantity.Set {
		m.StockQuantity = p.StockQuantity.Value
	}
	if p.MinimumStock.Set {
		m.MinimumStock = p.MinimumStock.Value
	}
	if p.ExpiryDate.Set {
		m.ExpiryDate, _ = time.Parse(DateLayout, p.ExpiryDate.Value)
	}
	if p.Supplier.Set {
		m.Supplier = p.Supplier.Value
	}
	m.UpdatedAt = now
}

// =============================================================================
// PATIENT PATCH
// =============================================================================

// PatientPatch lists every editable patient field. The patient code is issued
// once at registration; a patch naming it is rejected.
type PatientPatch struct {
	PatientCode      Optional[string]  `json:"patient_code"`
	Name             Optional[string]  `json:"name"`
	DateOfBirth      Optional[string]  `json:"date_of_birth"`
	Gender           Optional[Gender]  `json:"gender"`
	Phone            Optional[*string] `json:"phone"`
	Email            Optional[*string] `json:"email"`
	Address          Optional[*string] `json:"address"`
	EmergencyContact Optional[*string] `json:"emergency_contact"`
	MedicalHistory   Optional[*string] `json:"medical_history"`
	Allergies        Optional[*string] `json:"allergies"`
}

func (p PatientPatch) Empty() bool {
	return !p.Name.Set && !p.DateOfBirth.Set && !p.Gender.Set && !p.Phone.Set &&
		!p.Email.Set && !p.Address.Set && !p.EmergencyContact.Set &&
		!p.MedicalHistory.Set && !p.Allergies.Set
}

func (p PatientPatch) Validate() error {
	if p.PatientCode.Set {
		return &ValidationError{Field: "patient_code", Reason: "cannot be changed"}
	}
	switch {
	case p.Name.Null:
		return nullField("name")
	case p.DateOfBirth.Null:
		return nullField("date_of_birth")
	case p.Gender.Null:
		return nullField("gender")
	}
	if p.Name.Set && p.Name.Value == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if p.DateOfBirth.Set {
		if _, err := time.Parse(DateLayout, p.DateOfBirth.Value); err != nil {
			return &ValidationError{Field: "date_of_birth", Reason: "must be a date (YYYY-MM-DD)"}
		}
	}
	if p.Gender.Set && p.Gender.Value != GenderMale && p.Gender.Value != GenderFemale {
		return &ValidationError{Field: "gender", Reason: "must be one of: male female"}
	}
	if p.Email.Set && p.Email.Value != nil {
		if err := validate.Var(*p.Email.Value, "email"); err != nil {
			return &ValidationError{Field: "email", Reason: "must be a valid email address"}
		}
	}
	return nil
}

// Apply writes the present fields onto pt. Call Validate first.
func (p PatientPatch) Apply(pt *Patient, now time.Time) {
	if p.Name.Set {
		pt.Name = p.Name.Value
	}
	if p.DateOfBirth.Set {
		pt.DateOfBirth, _ = time.Parse(DateLayout, p.DateOfBirth.Value)
	}
	if p.Gender.Set {
		pt.Gender = p.Gender.Value
	}
	if p.Phone.Set {
		pt.Phone = p.Phone.Value
	}
	if p.Email.Set {
		pt.Email = p.Email.Value
	}
	if p.Address.Set {
		pt.Address = p.Address.Value
	}
	if p.EmergencyContact.Set {
		pt.EmergencyContact = p.EmergencyContact.Value
	}
	if p.MedicalHistory.Set {
		pt.MedicalHistory = p.MedicalHistory.Value
	}
	if p.Allergies.Set {
		pt.Allergies = p.Allergies.Value
	}
	pt.UpdatedAt = now
}
