package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pharmacy-engine/pharmacy"
)

func addMedicine(t *testing.T, h *Handler, name string, stock int64, expiry string) {
	t.Helper()
	_, err := h.Registry.AddMedicine(context.Background(), pharmacy.NewMedicineInput{
		Name:          name,
		Category:      "General",
		Unit:          "box",
		Price:         pharmacy.MustMoney("4.00"),
		StockQuantity: stock,
		MinimumStock:  10,
		ExpiryDate:    expiry,
	})
	require.NoError(t, err)
}

func TestStockAlertScheduler_Scan(t *testing.T) {
	// GIVEN: One medicine out of stock, one low, one expiring in 20 days
	// WHEN: Scanning with a 30 day horizon
	// THEN: Each lands in its bucket and the scan becomes Latest

	h, _ := setupTestHandler(t)
	addMedicine(t, h, "Out", 0, "2026-12-31")
	addMedicine(t, h, "Low", 4, "2026-12-31")
	addMedicine(t, h, "Soon", 100, "2025-03-30")
	addMedicine(t, h, "Fine", 100, "2026-12-31")

	s := NewStockAlertScheduler(h.Reports, 30)
	assert.Nil(t, s.Latest())

	report, err := s.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, report.OutOfStock, 1)
	assert.Equal(t, "Out", report.OutOfStock[0].MedicineName)
	require.Len(t, report.LowStock, 1)
	assert.Equal(t, "Low", report.LowStock[0].MedicineName)
	require.Len(t, report.Expiring, 1)
	assert.Equal(t, "Soon", report.Expiring[0].MedicineName)
	assert.Equal(t, 20, report.Expiring[0].DaysToExpiry)
	assert.Equal(t, 3, report.Count())
	assert.Same(t, report, s.Latest())
}

func TestStockAlertScheduler_StartRunsImmediately(t *testing.T) {
	h, router := setupTestHandler(t)
	addMedicine(t, h, "Out", 0, "2026-12-31")

	s := NewStockAlertScheduler(h.Reports, 30)
	s.Schedule = "@every 1h"
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool { return s.Latest() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, s.Latest().OutOfStock, 1)

	// The handler serves the scheduler's report.
	h.Alerts = s
	rec := do(t, router, http.MethodGet, "/api/reports/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	alerts := decode[AlertReportDTO](t, rec)
	require.Len(t, alerts.OutOfStock, 1)
	assert.Equal(t, "Out", alerts.OutOfStock[0].MedicineName)
}

func TestStockAlertScheduler_Disabled(t *testing.T) {
	h, _ := setupTestHandler(t)

	s := NewStockAlertScheduler(h.Reports, 30)
	s.Enabled = false
	require.NoError(t, s.Start())
	s.Stop()

	assert.Nil(t, s.Latest())
}

func TestStockAlertScheduler_InvalidSchedule(t *testing.T) {
	h, _ := setupTestHandler(t)

	s := NewStockAlertScheduler(h.Reports, 30)
	s.Schedule = "not a schedule"
	assert.Error(t, s.Start())
}
