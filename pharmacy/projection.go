/*
projection.go - Read-only views over inventory and ledger

PURPOSE:
  Everything here is a snapshot read through Reader, taken outside any write
  lock. Nothing in this file mutates state, so repeated calls return the
  same answer until the next committed write.

VIEWS:
  MedicineStock: stock + minimum for pre-flight checks (not authoritative)
  StockReport:   every medicine with its stock status and days to expiry
  LowStock:      medicines at or below a threshold (default: their minimum)
  PatientReport: per patient count, total spent, last visit
  Receipt:       a transaction joined with its patient and priced lines

STOCK STATUS:
  out_of_stock  stock == 0
  low           0 < stock <= minimum_stock
  sufficient    otherwise

SEE ALSO:
  - store.go: Reader, PatientSummaryReader
*/
package pharmacy

import (
	"context"
	"math"
	"sort"
	"time"
)

// =============================================================================
// VIEW TYPES
// =============================================================================

type StockStatus string

const (
	StockSufficient StockStatus = "sufficient"
	StockLow        StockStatus = "low"
	StockOut        StockStatus = "out_of_stock"
)

// ClassifyStock derives the stock status of a medicine.
func ClassifyStock(stock, minimum int64) StockStatus {
	switch {
	case stock == 0:
		return StockOut
	case stock <= minimum:
		return StockLow
	default:
		return StockSufficient
	}
}

type StockReportLine struct {
	MedicineID   MedicineID
	MedicineName string
	Category     string
	CurrentStock int64
	MinimumStock int64
	Status       StockStatus
	ExpiryDate   time.Time
	DaysToExpiry int
}

type PatientSummary struct {
	PatientID         PatientID
	PatientCode       string
	PatientName       string
	TotalTransactions int64
	TotalSpent        Money
	LastVisit         *time.Time
}

type Receipt struct {
	TransactionID   TransactionID
	TransactionCode string
	PatientName     string
	PatientCode     string
	TransactionDate time.Time
	Items           []ReceiptLine
	TotalAmount     Money
	PaymentStatus   PaymentStatus
	Notes           *string
}

type ReceiptLine struct {
	MedicineName string
	Quantity     int64
	UnitPrice    Money
	Subtotal     Money
}

// =============================================================================
// REPORTS
// =============================================================================

type Reports struct {
	reader Reader
	now    func() time.Time
}

// NewReports builds the projections over a Reader. Only WithClock applies.
func NewReports(reader Reader, opts ...Option) *Reports {
	u := newUnit(nil, opts)
	return &Reports{reader: reader, now: u.now}
}

// MedicineStock returns the current stock level of one medicine.
func (r *Reports) MedicineStock(ctx context.Context, id MedicineID) (*StockLevel, error) {
	m, err := r.reader.GetMedicine(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &MedicineNotFoundError{ID: id}
	}
	return &StockLevel{
		MedicineID:    m.ID,
		StockQuantity: m.StockQuantity,
		MinimumStock:  m.MinimumStock,
		Status:        ClassifyStock(m.StockQuantity, m.MinimumStock),
	}, nil
}

// StockReport classifies every medicine.
func (r *Reports) StockReport(ctx context.Context) ([]StockReportLine, error) {
	medicines, err := r.reader.ListMedicines(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	lines := make([]StockReportLine, 0, len(medicines))
	for _, m := range medicines {
		lines = append(lines, StockReportLine{
			MedicineID:   m.ID,
			MedicineName: m.Name,
			Category:     m.Category,
			CurrentStock: m.StockQuantity,
			MinimumStock: m.MinimumStock,
			Status:       ClassifyStock(m.StockQuantity, m.MinimumStock),
			ExpiryDate:   m.ExpiryDate,
			DaysToExpiry: DaysUntil(now, m.ExpiryDate),
		})
	}
	return lines, nil
}

// DaysUntil counts whole days from now to t, rounding up. Negative once t has passed.
func DaysUntil(now, t time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}

// LowStock returns medicines with stock <= threshold, or stock <= their own
// minimum when threshold is nil.
func (r *Reports) LowStock(ctx context.Context, threshold *int64) ([]Medicine, error) {
	medicines, err := r.reader.ListMedicines(ctx)
	if err != nil {
		return nil, err
	}

	low := make([]Medicine, 0)
	for _, m := range medicines {
		limit := m.MinimumStock
		if threshold != nil {
			limit = *threshold
		}
		if m.StockQuantity <= limit {
			low = append(low, m)
		}
	}
	return low, nil
}

// PatientReport aggregates transactions per patient, ordered by name.
// Patients without transactions appear with zero totals.
func (r *Reports) PatientReport(ctx context.Context) ([]PatientSummary, error) {
	if sr, ok := r.reader.(PatientSummaryReader); ok {
		return sr.PatientSummaries(ctx)
	}

	patients, err := r.reader.ListPatients(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := r.reader.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}

	byPatient := make(map[PatientID]*PatientSummary, len(patients))
	summaries := make([]PatientSummary, len(patients))
	for i, p := range patients {
		summaries[i] = PatientSummary{
			PatientID:   p.ID,
			PatientCode: p.PatientCode,
			PatientName: p.Name,
			TotalSpent:  Zero,
		}
		byPatient[p.ID] = &summaries[i]
	}
	for _, t := range txs {
		s, ok := byPatient[t.PatientID]
		if !ok {
			continue
		}
		s.TotalTransactions++
		s.TotalSpent = s.TotalSpent.Add(t.TotalAmount)
		if s.LastVisit == nil || t.TransactionDate.After(*s.LastVisit) {
			visit := t.TransactionDate
			s.LastVisit = &visit
		}
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].PatientName != summaries[j].PatientName {
			return summaries[i].PatientName < summaries[j].PatientName
		}
		return summaries[i].PatientID < summaries[j].PatientID
	})
	return summaries, nil
}

// Receipt joins a transaction with its patient and lines. Returns nil when
// the transaction does not exist.
func (r *Reports) Receipt(ctx context.Context, id TransactionID) (*Receipt, error) {
	t, err := r.reader.GetTransaction(ctx, id)
	if err != nil || t == nil {
		return nil, err
	}
	p, err := r.reader.GetPatient(ctx, t.PatientID)
	if err != nil || p == nil {
		return nil, err
	}

	lines := make([]ReceiptLine, len(t.Items))
	for i, item := range t.Items {
		lines[i] = ReceiptLine{
			MedicineName: item.MedicineName,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			Subtotal:     item.Subtotal,
		}
	}

	return &Receipt{
		TransactionID:   t.ID,
		TransactionCode: t.TransactionCode,
		PatientName:     p.Name,
		PatientCode:     p.PatientCode,
		TransactionDate: t.TransactionDate,
		Items:           lines,
		TotalAmount:     t.TotalAmount,
		PaymentStatus:   t.PaymentStatus,
		Notes:           t.Notes,
	}, nil
}
