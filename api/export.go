package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/warp/pharmacy-engine/pharmacy"
)

const stockSheet = "Stock"

var stockHeaders = []string{
	"ID", "Medicine", "Category", "Current Stock", "Minimum Stock", "Status", "Expiry Date", "Days To Expiry",
}

// ExportStockReport streams the stock report as an .xlsx workbook.
func (h *Handler) ExportStockReport(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Reports.StockReport(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to build stock report", err)
		return
	}

	f, err := stockWorkbook(lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build spreadsheet", err)
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("stock-report-%s.xlsx", time.Now().UTC().Format(pharmacy.DateLayout))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(w); err != nil {
		log.Printf("[API] stock export write failed: %v", err)
	}
}

// stockWorkbook lays out one row per medicine under a bold header row.
func stockWorkbook(lines []pharmacy.StockReportLine) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", stockSheet); err != nil {
		f.Close()
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	for i, title := range stockHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(stockSheet, cell, title)
	}
	last, _ := excelize.CoordinatesToCellName(len(stockHeaders), 1)
	f.SetCellStyle(stockSheet, "A1", last, bold)
	f.SetColWidth(stockSheet, "B", "B", 28)
	f.SetColWidth(stockSheet, "C", "C", 18)

	for i, l := range lines {
		row := []any{
			int64(l.MedicineID),
			l.MedicineName,
			l.Category,
			l.CurrentStock,
			l.MinimumStock,
			string(l.Status),
			l.ExpiryDate.Format(pharmacy.DateLayout),
			l.DaysToExpiry,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(stockSheet, cell, &row); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}
