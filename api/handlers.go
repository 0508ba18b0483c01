/*
handlers.go - HTTP API handlers for the pharmacy engine

PURPOSE:
  Exposes the transaction core and its catalog/report views over REST.
  Handles HTTP request/response and JSON, and delegates everything else
  to the pharmacy package.

ENDPOINTS:
  Medicines:
    GET    /api/medicines                 List medicines
    POST   /api/medicines                 Add medicine
    GET    /api/medicines/low-stock       Medicines at or below a threshold
    GET    /api/medicines/{id}            Get medicine
    PATCH  /api/medicines/{id}            Update medicine (partial)
    DELETE /api/medicines/{id}            Delete unreferenced medicine
    GET    /api/medicines/{id}/stock      Stock level

  Patients:
    GET    /api/patients                  List patients
    POST   /api/patients                  Register patient (P000001 code)
    GET    /api/patients/{id}             Get patient
    PATCH  /api/patients/{id}             Update patient (partial, code fixed)

  Transactions:
    GET    /api/transactions              List transactions
    POST   /api/transactions              Create sale (atomic)
    GET    /api/transactions/{id}         Transaction with items
    PUT    /api/transactions/{id}/status  Payment status transition
    GET    /api/transactions/{id}/receipt Receipt view

  Usage:
    GET    /api/usage                     Usage history, newest first
    POST   /api/usage                     Record usage (atomic)

  Reports:
    GET    /api/reports/stock             Stock report
    GET    /api/reports/stock.xlsx        Stock report spreadsheet
    GET    /api/reports/patients          Per patient totals
    GET    /api/reports/alerts            Latest stock alert scan

ERROR HANDLING:
  Domain errors map onto HTTP status codes in statusFor:
  - 400: invalid argument, malformed body or id
  - 404: patient / medicine / transaction not found
  - 409: conflict (Retry-After set), medicine in use, duplicate email,
         invalid status transition
  - 422: insufficient stock
  - 500: storage failure

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/pharmacy-engine/pharmacy"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    pharmacy.Store
	Ledger   *pharmacy.Ledger
	Usage    *pharmacy.UsageRecorder
	Registry *pharmacy.Registry
	Reports  *pharmacy.Reports

	// Alerts is optional; without it /api/reports/alerts scans on demand.
	Alerts *StockAlertScheduler
}

// NewHandler wires the pharmacy services over one store.
func NewHandler(store pharmacy.Store, opts ...pharmacy.Option) *Handler {
	return &Handler{
		Store:    store,
		Ledger:   pharmacy.NewLedger(store, opts...),
		Usage:    pharmacy.NewUsageRecorder(store, opts...),
		Registry: pharmacy.NewRegistry(store, opts...),
		Reports:  pharmacy.NewReports(store, opts...),
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// MEDICINE HANDLERS
// =============================================================================

func (h *Handler) ListMedicines(w http.ResponseWriter, r *http.Request) {
	medicines, err := h.Store.ListMedicines(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list medicines", err)
		return
	}
	dtos := make([]MedicineDTO, len(medicines))
	for i, m := range medicines {
		dtos[i] = toMedicineDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateMedicine(w http.ResponseWriter, r *http.Request) {
	var in pharmacy.NewMedicineInput
	if !decodeBody(w, r, &in) {
		return
	}
	m, err := h.Registry.AddMedicine(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to add medicine", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMedicineDTO(*m))
}

func (h *Handler) GetMedicine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := h.Store.GetMedicine(r.Context(), pharmacy.MedicineID(id))
	if err != nil {
		writeDomainError(w, "Failed to get medicine", err)
		return
	}
	if m == nil {
		writeDomainError(w, "Medicine not found", &pharmacy.MedicineNotFoundError{ID: pharmacy.MedicineID(id)})
		return
	}
	writeJSON(w, http.StatusOK, toMedicineDTO(*m))
}

func (h *Handler) UpdateMedicine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch pharmacy.MedicinePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	m, err := h.Registry.UpdateMedicine(r.Context(), pharmacy.MedicineID(id), patch)
	if err != nil {
		writeDomainError(w, "Failed to update medicine", err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicineDTO(*m))
}

func (h *Handler) DeleteMedicine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Registry.DeleteMedicine(r.Context(), pharmacy.MedicineID(id)); err != nil {
		writeDomainError(w, "Failed to delete medicine", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetMedicineStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	level, err := h.Reports.MedicineStock(r.Context(), pharmacy.MedicineID(id))
	if err != nil {
		writeDomainError(w, "Failed to get stock", err)
		return
	}
	writeJSON(w, http.StatusOK, StockLevelDTO{
		MedicineID:    int64(level.MedicineID),
		StockQuantity: level.StockQuantity,
		MinimumStock:  level.MinimumStock,
		Status:        level.Status,
	})
}

// LowStock accepts an optional ?threshold=N; without it each medicine is
// compared with its own minimum.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	var threshold *int64
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeDomainError(w, "Invalid threshold",
				&pharmacy.ValidationError{Field: "threshold", Reason: "must be a non-negative integer"})
			return
		}
		threshold = &n
	}
	medicines, err := h.Reports.LowStock(r.Context(), threshold)
	if err != nil {
		writeDomainError(w, "Failed to list low stock", err)
		return
	}
	dtos := make([]MedicineDTO, len(medicines))
	for i, m := range medicines {
		dtos[i] = toMedicineDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PATIENT HANDLERS
// =============================================================================

func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.Store.ListPatients(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list patients", err)
		return
	}
	dtos := make([]PatientDTO, len(patients))
	for i, p := range patients {
		dtos[i] = toPatientDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var in pharmacy.NewPatientInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := h.Registry.RegisterPatient(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to register patient", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPatientDTO(*p))
}

func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.Store.GetPatient(r.Context(), pharmacy.PatientID(id))
	if err != nil {
		writeDomainError(w, "Failed to get patient", err)
		return
	}
	if p == nil {
		writeDomainError(w, "Patient not found", &pharmacy.PatientNotFoundError{ID: pharmacy.PatientID(id)})
		return
	}
	writeJSON(w, http.StatusOK, toPatientDTO(*p))
}

func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch pharmacy.PatientPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	p, err := h.Registry.UpdatePatient(r.Context(), pharmacy.PatientID(id), patch)
	if err != nil {
		writeDomainError(w, "Failed to update patient", err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientDTO(*p))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Store.ListTransactions(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in pharmacy.CreateTransactionInput
	if !decodeBody(w, r, &in) {
		return
	}
	t, err := h.Ledger.CreateTransaction(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to create transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*t))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.Store.GetTransaction(r.Context(), pharmacy.TransactionID(id))
	if err != nil {
		writeDomainError(w, "Failed to get transaction", err)
		return
	}
	if t == nil {
		writeDomainError(w, "Transaction not found", &pharmacy.TransactionNotFoundError{ID: pharmacy.TransactionID(id)})
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*t))
}

func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := h.Ledger.UpdatePaymentStatus(r.Context(), pharmacy.TransactionID(id), req.PaymentStatus)
	if err != nil {
		writeDomainError(w, "Failed to update payment status", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*t))
}

func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	receipt, err := h.Reports.Receipt(r.Context(), pharmacy.TransactionID(id))
	if err != nil {
		writeDomainError(w, "Failed to build receipt", err)
		return
	}
	if receipt == nil {
		writeDomainError(w, "Transaction not found", &pharmacy.TransactionNotFoundError{ID: pharmacy.TransactionID(id)})
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(*receipt))
}

// =============================================================================
// USAGE HANDLERS
// =============================================================================

func (h *Handler) ListUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.Store.ListUsage(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list usage", err)
		return
	}
	dtos := make([]UsageDTO, len(usage))
	for i, u := range usage {
		dtos[i] = toUsageDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var in pharmacy.RecordUsageInput
	if !decodeBody(w, r, &in) {
		return
	}
	u, err := h.Usage.RecordUsage(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to record usage", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUsageDTO(*u))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

func (h *Handler) StockReport(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Reports.StockReport(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to build stock report", err)
		return
	}
	dtos := make([]StockReportLineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = toStockReportLineDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) PatientReport(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Reports.PatientReport(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to build patient report", err)
		return
	}
	dtos := make([]PatientSummaryDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toPatientSummaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// StockAlerts serves the scheduler's latest scan, or scans now when no scheduler
// is attached or it has not run yet.
func (h *Handler) StockAlerts(w http.ResponseWriter, r *http.Request) {
	var report *AlertReport
	if h.Alerts != nil {
		report = h.Alerts.Latest()
	}
	if report == nil {
		scanner := h.Alerts
		if scanner == nil {
			scanner = NewStockAlertScheduler(h.Reports, DefaultExpiryWarningDays)
		}
		fresh, err := scanner.Scan(r.Context())
		if err != nil {
			writeDomainError(w, "Failed to scan stock", err)
			return
		}
		report = fresh
	}
	writeJSON(w, http.StatusOK, report.DTO())
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status and code from the pharmacy error taxonomy.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: message, Code: code, Details: err.Error()}

	var stockErr *pharmacy.InsufficientStockError
	var valErr *pharmacy.ValidationError
	switch {
	case errors.As(err, &stockErr):
		resp.Details = map[string]any{
			"message":     stockErr.Error(),
			"medicine_id": stockErr.MedicineID,
			"name":        stockErr.Name,
			"available":   stockErr.Available,
			"required":    stockErr.Required,
		}
	case errors.As(err, &valErr):
		resp.Details = map[string]any{
			"message": valErr.Error(),
			"field":   valErr.Field,
		}
	}

	if pharmacy.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, pharmacy.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, pharmacy.ErrPatientNotFound),
		errors.Is(err, pharmacy.ErrMedicineNotFound),
		errors.Is(err, pharmacy.ErrTransactionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, pharmacy.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "insufficient_stock"
	case errors.Is(err, pharmacy.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, pharmacy.ErrMedicineInUse):
		return http.StatusConflict, "medicine_in_use"
	case errors.Is(err, pharmacy.ErrDuplicateEmail):
		return http.StatusConflict, "duplicate_email"
	case errors.Is(err, pharmacy.ErrInvalidStatusTransition):
		return http.StatusConflict, "invalid_status_transition"
	default:
		return http.StatusInternalServerError, "storage_failure"
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var valErr *pharmacy.ValidationError
		if errors.As(err, &valErr) {
			writeDomainError(w, "Invalid request body", err)
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}
