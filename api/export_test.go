package api

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportStockReport(t *testing.T) {
	// GIVEN: Two medicines
	// WHEN: GET /api/reports/stock.xlsx
	// THEN: An attachment whose Stock sheet has the header row and one row per medicine

	h, router := setupTestHandler(t)
	addMedicine(t, h, "Aspirin", 50, "2026-12-31")
	addMedicine(t, h, "Zinc", 0, "2025-03-30")

	rec := do(t, router, http.MethodGet, "/api/reports/stock.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	disposition := rec.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(disposition, `attachment; filename="stock-report-`), disposition)
	assert.True(t, strings.HasSuffix(disposition, `.xlsx"`), disposition)

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(stockSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, stockHeaders, rows[0])
	assert.Equal(t, []string{"1", "Aspirin", "General", "50", "10", "sufficient", "2026-12-31", "661"}, rows[1])
	assert.Equal(t, "Zinc", rows[2][1])
	assert.Equal(t, "out_of_stock", rows[2][5])
	assert.Equal(t, "20", rows[2][7])
}

func TestExportStockReport_Empty(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := do(t, router, http.MethodGet, "/api/reports/stock.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(stockSheet)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stockHeaders, rows[0])
}
