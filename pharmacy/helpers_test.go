package pharmacy_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/pharmacy-engine/pharmacy"
	"github.com/warp/pharmacy-engine/pharmacy/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type testEnv struct {
	st       pharmacy.Store
	ledger   *pharmacy.Ledger
	usage    *pharmacy.UsageRecorder
	registry *pharmacy.Registry
	reports  *pharmacy.Reports
}

func newTestEnv(t *testing.T, opts ...pharmacy.Option) *testEnv {
	t.Helper()
	return newTestEnvOn(t, store.NewMemory(), opts...)
}

func newTestEnvOn(t *testing.T, st pharmacy.Store, opts ...pharmacy.Option) *testEnv {
	t.Helper()
	opts = append([]pharmacy.Option{pharmacy.WithClock(fixedClock)}, opts...)
	return &testEnv{
		st:       st,
		ledger:   pharmacy.NewLedger(st, opts...),
		usage:    pharmacy.NewUsageRecorder(st, opts...),
		registry: pharmacy.NewRegistry(st, opts...),
		reports:  pharmacy.NewReports(st, opts...),
	}
}

func (e *testEnv) addMedicine(t *testing.T, name, price string, stock int64) pharmacy.Medicine {
	t.Helper()
	m, err := e.registry.AddMedicine(context.Background(), pharmacy.NewMedicineInput{
		Name:          name,
		Category:      "General",
		Unit:          "tablet",
		Price:         pharmacy.MustMoney(price),
		StockQuantity: stock,
		MinimumStock:  10,
		ExpiryDate:    "2026-12-31",
	})
	require.NoError(t, err)
	return *m
}

func (e *testEnv) addPatient(t *testing.T, name string) pharmacy.Patient {
	t.Helper()
	p, err := e.registry.RegisterPatient(context.Background(), pharmacy.NewPatientInput{
		Name:        name,
		DateOfBirth: "1990-05-14",
		Gender:      pharmacy.GenderFemale,
	})
	require.NoError(t, err)
	return *p
}

func (e *testEnv) stockOf(t *testing.T, id pharmacy.MedicineID) int64 {
	t.Helper()
	m, err := e.st.GetMedicine(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m.StockQuantity
}

func (e *testEnv) transactionCount(t *testing.T) int {
	t.Helper()
	txs, err := e.st.ListTransactions(context.Background())
	require.NoError(t, err)
	return len(txs)
}

func sale(patient pharmacy.PatientID, lines ...pharmacy.LineItem) pharmacy.CreateTransactionInput {
	return pharmacy.CreateTransactionInput{PatientID: patient, Items: lines}
}

func line(id pharmacy.MedicineID, qty int64) pharmacy.LineItem {
	return pharmacy.LineItem{MedicineID: id, Quantity: qty}
}

func strPtr(s string) *string { return &s }
