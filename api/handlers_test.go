/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Sales through POST /api/transactions (success, stock, validation, 404)
- Error mapping (status, code, structured details, Retry-After)
- Medicines, patients, usage, low stock, reports
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pharmacy-engine/pharmacy"
	"github.com/warp/pharmacy-engine/store/sqlite"
)

var testNow = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func setupTestHandler(t *testing.T) (*Handler, *chi.Mux) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, pharmacy.WithClock(func() time.Time { return testNow }))
	return h, NewRouter(h, nil)
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createMedicine(t *testing.T, router http.Handler, name, price string, stock int64) MedicineDTO {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"name":           name,
		"category":       "General",
		"unit":           "tablet",
		"price":          price,
		"stock_quantity": stock,
		"minimum_stock":  10,
		"expiry_date":    "2026-12-31",
	})
	rec := do(t, router, http.MethodPost, "/api/medicines", string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[MedicineDTO](t, rec)
}

func createPatient(t *testing.T, router http.Handler, name string) PatientDTO {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/patients",
		`{"name":"`+name+`","date_of_birth":"1990-05-14","gender":"female"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[PatientDTO](t, rec)
}

func saleBody(patientID int64, lines ...[2]int64) string {
	items := make([]map[string]int64, len(lines))
	for i, l := range lines {
		items[i] = map[string]int64{"medicine_id": l[0], "quantity": l[1]}
	}
	body, _ := json.Marshal(map[string]any{"patient_id": patientID, "items": items})
	return string(body)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestCreateTransaction_Success(t *testing.T) {
	// GIVEN: Medicine at 5.99 with stock 100
	// WHEN: POST a sale of 2
	// THEN: 201 with total 11.98 and code TXN000001; stock 98

	_, router := setupTestHandler(t)
	med := createMedicine(t, router, "Amoxicillin", "5.99", 100)
	patient := createPatient(t, router, "Jane Doe")

	rec := do(t, router, http.MethodPost, "/api/transactions", saleBody(patient.ID, [2]int64{med.ID, 2}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Contains(t, rec.Body.String(), `"total_amount":11.98`)
	txn := decode[TransactionDTO](t, rec)
	assert.Equal(t, "TXN000001", txn.TransactionCode)
	assert.Equal(t, pharmacy.PaymentPending, txn.PaymentStatus)
	require.Len(t, txn.Items, 1)
	assert.Equal(t, "Amoxicillin", txn.Items[0].MedicineName)

	stock := decode[StockLevelDTO](t, do(t, router, http.MethodGet, "/api/medicines/1/stock", ""))
	assert.Equal(t, int64(98), stock.StockQuantity)
	assert.Equal(t, pharmacy.StockSufficient, stock.Status)
}

func TestCreateTransaction_InsufficientStock(t *testing.T) {
	// GIVEN: Stock 5
	// WHEN: POST a sale of 10
	// THEN: 422 with code insufficient_stock and the numbers in details

	_, router := setupTestHandler(t)
	med := createMedicine(t, router, "Paracetamol", "2.00", 5)
	patient := createPatient(t, router, "Jane Doe")

	rec := do(t, router, http.MethodPost, "/api/transactions", saleBody(patient.ID, [2]int64{med.ID, 10}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Code    string `json:"code"`
		Details struct {
			Message   string `json:"message"`
			Name      string `json:"name"`
			Available int64  `json:"available"`
			Required  int64  `json:"required"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "insufficient_stock", resp.Code)
	assert.Equal(t, "Paracetamol", resp.Details.Name)
	assert.Equal(t, int64(5), resp.Details.Available)
	assert.Equal(t, int64(10), resp.Details.Required)
	assert.Equal(t, "insufficient stock for medicine Paracetamol. Available: 5, Required: 10", resp.Details.Message)
}

func TestCreateTransaction_Validation(t *testing.T) {
	_, router := setupTestHandler(t)
	med := createMedicine(t, router, "A", "1.00", 5)
	patient := createPatient(t, router, "Jane Doe")

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty items", saleBody(patient.ID), "items"},
		{"zero quantity", saleBody(patient.ID, [2]int64{med.ID, 0}), "items[0].quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/transactions", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp struct {
				Code    string `json:"code"`
				Details struct {
					Field string `json:"field"`
				} `json:"details"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "invalid_argument", resp.Code)
			assert.Equal(t, tt.field, resp.Details.Field)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/transactions", `{"patient_id":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid request body")
	})
}

func TestCreateTransaction_NotFound(t *testing.T) {
	_, router := setupTestHandler(t)
	med := createMedicine(t, router, "A", "1.00", 5)

	rec := do(t, router, http.MethodPost, "/api/transactions", saleBody(42, [2]int64{med.ID, 1}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)
}

func TestTransactionLifecycle(t *testing.T) {
	// GIVEN: A pending sale
	// WHEN: Marked paid, then cancelled
	// THEN: paid succeeds; cancel is 409; the receipt shows paid

	_, router := setupTestHandler(t)
	med := createMedicine(t, router, "Amoxicillin", "5.99", 100)
	patient := createPatient(t, router, "Jane Doe")
	txn := decode[TransactionDTO](t, do(t, router, http.MethodPost, "/api/transactions",
		saleBody(patient.ID, [2]int64{med.ID, 3})))

	rec := do(t, router, http.MethodPut, "/api/transactions/1/status", `{"payment_status":"paid"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, pharmacy.PaymentPaid, decode[TransactionDTO](t, rec).PaymentStatus)

	rec = do(t, router, http.MethodPut, "/api/transactions/1/status", `{"payment_status":"cancelled"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[ErrorResponse](t, rec).Code)

	rec = do(t, router, http.MethodGet, "/api/transactions/1/receipt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	receipt := decode[ReceiptDTO](t, rec)
	assert.Equal(t, txn.TransactionCode, receipt.TransactionCode)
	assert.Equal(t, "P000001", receipt.PatientCode)
	assert.Equal(t, pharmacy.PaymentPaid, receipt.PaymentStatus)
	assert.Equal(t, "17.97", receipt.TotalAmount.String())

	rec = do(t, router, http.MethodGet, "/api/transactions/99/receipt", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]TransactionDTO](t, rec), 1)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&pharmacy.ValidationError{Field: "x", Reason: "bad"}, http.StatusBadRequest, "invalid_argument"},
		{&pharmacy.PatientNotFoundError{ID: 1}, http.StatusNotFound, "not_found"},
		{&pharmacy.TransactionNotFoundError{ID: 1}, http.StatusNotFound, "not_found"},
		{&pharmacy.InsufficientStockError{}, http.StatusUnprocessableEntity, "insufficient_stock"},
		{&pharmacy.ConflictError{Op: "lock", Err: context.DeadlineExceeded}, http.StatusConflict, "conflict"},
		{pharmacy.ErrMedicineInUse, http.StatusConflict, "medicine_in_use"},
		{pharmacy.ErrDuplicateEmail, http.StatusConflict, "duplicate_email"},
		{&pharmacy.StatusTransitionError{}, http.StatusConflict, "invalid_status_transition"},
		{&pharmacy.StorageError{Op: "commit", Err: context.Canceled}, http.StatusInternalServerError, "storage_failure"},
	}
	for _, tt := range tests {
		status, code := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestWriteDomainError_ConflictSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, "Failed to create transaction",
		&pharmacy.ConflictError{Op: "lock medicines/1", Err: context.DeadlineExceeded})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	writeDomainError(rec, "Failed", pharmacy.ErrDuplicateEmail)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

// =============================================================================
// MEDICINES / PATIENTS / USAGE
// =============================================================================

func TestMedicineEndpoints(t *testing.T) {
	_, router := setupTestHandler(t)
	med := createMedicine(t, router, "Amoxicillin", "5.99", 100)
	assert.Equal(t, "5.99", med.Price.String())
	assert.Equal(t, pharmacy.StockSufficient, med.StockStatus)

	t.Run("get", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/medicines/1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Amoxicillin", decode[MedicineDTO](t, rec).Name)

		assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/medicines/9", "").Code)
		assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/medicines/abc", "").Code)
	})

	t.Run("patch", func(t *testing.T) {
		rec := do(t, router, http.MethodPatch, "/api/medicines/1", `{"stock_quantity": 5, "supplier": "Acme"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		updated := decode[MedicineDTO](t, rec)
		assert.Equal(t, int64(5), updated.StockQuantity)
		assert.Equal(t, pharmacy.StockLow, updated.StockStatus)
		require.NotNil(t, updated.Supplier)

		rec = do(t, router, http.MethodPatch, "/api/medicines/1", `{"stock_quantity": -1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/medicines", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]MedicineDTO](t, rec), 1)
	})

	t.Run("delete", func(t *testing.T) {
		rec := do(t, router, http.MethodDelete, "/api/medicines/1", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/medicines/1", "").Code)
	})
}

func TestDeleteMedicine_InUse(t *testing.T) {
	_, router := setupTestHandler(t)
	createMedicine(t, router, "A", "1.00", 10)

	rec := do(t, router, http.MethodPost, "/api/usage", `{"medicine_id":1,"quantity_used":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodDelete, "/api/medicines/1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "medicine_in_use", decode[ErrorResponse](t, rec).Code)
}

func TestLowStock(t *testing.T) {
	_, router := setupTestHandler(t)
	createMedicine(t, router, "Aspirin", "1.00", 50)
	createMedicine(t, router, "Zinc", "1.00", 3)

	rec := do(t, router, http.MethodGet, "/api/medicines/low-stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	low := decode[[]MedicineDTO](t, rec)
	require.Len(t, low, 1)
	assert.Equal(t, "Zinc", low[0].Name)

	rec = do(t, router, http.MethodGet, "/api/medicines/low-stock?threshold=100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]MedicineDTO](t, rec), 2)

	rec = do(t, router, http.MethodGet, "/api/medicines/low-stock?threshold=-5", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/medicines/low-stock?threshold=0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestPatientEndpoints(t *testing.T) {
	_, router := setupTestHandler(t)
	p := createPatient(t, router, "Jane Doe")
	assert.Equal(t, "P000001", p.PatientCode)
	assert.Equal(t, "1990-05-14", p.DateOfBirth)

	rec := do(t, router, http.MethodPost, "/api/patients",
		`{"name":"X","date_of_birth":"1990-05-14","gender":"female","email":"x@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/patients",
		`{"name":"Y","date_of_birth":"1990-05-14","gender":"male","email":"x@example.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_email", decode[ErrorResponse](t, rec).Code)

	rec = do(t, router, http.MethodPost, "/api/patients", `{"name":"Z","date_of_birth":"1990-05-14","gender":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/patients/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Jane Doe", decode[PatientDTO](t, rec).Name)

	rec = do(t, router, http.MethodGet, "/api/patients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PatientDTO](t, rec), 2)
}

func TestUpdatePatient(t *testing.T) {
	// GIVEN: Jane (P000001) and X with x@example.com
	// WHEN: PATCH /api/patients/{id} with various bodies
	// THEN: Present fields change; code changes, bad values and taken emails are refused

	_, router := setupTestHandler(t)
	createPatient(t, router, "Jane Doe")
	rec := do(t, router, http.MethodPost, "/api/patients",
		`{"name":"X","date_of_birth":"1990-05-14","gender":"male","email":"x@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodPatch, "/api/patients/1", `{"name":"Jane Q. Doe","phone":"555-0100"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[PatientDTO](t, rec)
	assert.Equal(t, "Jane Q. Doe", p.Name)
	assert.Equal(t, "P000001", p.PatientCode)
	require.NotNil(t, p.Phone)
	assert.Equal(t, "555-0100", *p.Phone)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"code is immutable", "/api/patients/1", `{"patient_code":"P000009"}`, http.StatusBadRequest, "invalid_argument"},
		{"null name", "/api/patients/1", `{"name":null}`, http.StatusBadRequest, "invalid_argument"},
		{"taken email", "/api/patients/1", `{"email":"x@example.com"}`, http.StatusConflict, "duplicate_email"},
		{"unknown patient", "/api/patients/99", `{"name":"Nobody"}`, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPatch, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}

	rec = do(t, router, http.MethodGet, "/api/patients/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Jane Q. Doe", decode[PatientDTO](t, rec).Name)
}

func TestCreateMedicine_PriceOutOfRange(t *testing.T) {
	// GIVEN: A price whose cents do not fit in an int64
	// THEN: 400 invalid_argument and nothing is stored

	_, router := setupTestHandler(t)

	rec := do(t, router, http.MethodPost, "/api/medicines",
		`{"name":"A","category":"General","unit":"box","price":184467440737095517.16,"stock_quantity":1,"minimum_stock":0,"expiry_date":"2026-12-31"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", decode[ErrorResponse](t, rec).Code)

	rec = do(t, router, http.MethodGet, "/api/medicines", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]MedicineDTO](t, rec))
}

func TestUsageEndpoints(t *testing.T) {
	_, router := setupTestHandler(t)
	createMedicine(t, router, "Cetirizine", "3.10", 30)

	rec := do(t, router, http.MethodPost, "/api/usage", `{"medicine_id":1,"quantity_used":30,"notes":"ward"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	u := decode[UsageDTO](t, rec)
	assert.Equal(t, "Cetirizine", u.MedicineName)

	rec = do(t, router, http.MethodPost, "/api/usage", `{"medicine_id":1,"quantity_used":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/usage", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]UsageDTO](t, rec), 1)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestReports(t *testing.T) {
	_, router := setupTestHandler(t)
	createMedicine(t, router, "Aspirin", "2.50", 50)
	createMedicine(t, router, "Zinc", "1.00", 0)
	bob := createPatient(t, router, "Bob")
	createPatient(t, router, "Alice")
	rec := do(t, router, http.MethodPost, "/api/transactions", saleBody(bob.ID, [2]int64{1, 2}))
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("stock", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/reports/stock", "")
		require.Equal(t, http.StatusOK, rec.Code)
		lines := decode[[]StockReportLineDTO](t, rec)
		require.Len(t, lines, 2)
		assert.Equal(t, int64(48), lines[0].CurrentStock)
		assert.Equal(t, pharmacy.StockOut, lines[1].Status)
		assert.Equal(t, "2026-12-31", lines[1].ExpiryDate)
	})

	t.Run("patients", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/reports/patients", "")
		require.Equal(t, http.StatusOK, rec.Code)
		summaries := decode[[]PatientSummaryDTO](t, rec)
		require.Len(t, summaries, 2)
		assert.Equal(t, "Alice", summaries[0].PatientName)
		assert.Nil(t, summaries[0].LastVisit)
		assert.Equal(t, "5.00", summaries[1].TotalSpent.String())
	})

	t.Run("alerts on demand", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/reports/alerts", "")
		require.Equal(t, http.StatusOK, rec.Code)
		alerts := decode[AlertReportDTO](t, rec)
		require.Len(t, alerts.OutOfStock, 1)
		assert.Equal(t, "Zinc", alerts.OutOfStock[0].MedicineName)
		assert.Empty(t, alerts.LowStock)
	})
}

func TestHealth(t *testing.T) {
	_, router := setupTestHandler(t)
	rec := do(t, router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
