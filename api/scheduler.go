/*
scheduler.go - Scheduled stock alerts

PURPOSE:
  Periodically scans the catalog and records which medicines are out of
  stock, low, or close to expiry. The scan is read-only: it never takes a
  write lock and never touches stock.

DESIGN:
  - robfig/cron drives the schedule (default "@every 1h")
  - Runs once immediately on Start
  - Keeps the latest report in memory for GET /api/reports/alerts

CONFIGURATION:
  - Schedule:          cron spec or @every descriptor
  - ExpiryWarningDays: medicines expiring within this many days are flagged
  - Enabled:           whether Start schedules anything

USAGE:
  scheduler := NewStockAlertScheduler(reports, 30)
  if err := scheduler.Start(); err != nil { ... }
  // ... later
  scheduler.Stop()

SEE ALSO:
  - pharmacy/projection.go: StockReport, which this scans
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warp/pharmacy-engine/pharmacy"
)

const (
	DefaultAlertSchedule     = "@every 1h"
	DefaultExpiryWarningDays = 30
)

// AlertReport is the result of one scan.
type AlertReport struct {
	CheckedAt  time.Time
	OutOfStock []pharmacy.StockReportLine
	LowStock   []pharmacy.StockReportLine
	Expiring   []pharmacy.StockReportLine
}

// Count returns the number of alerts across all categories.
func (a *AlertReport) Count() int {
	return len(a.OutOfStock) + len(a.LowStock) + len(a.Expiring)
}

func (a *AlertReport) DTO() AlertReportDTO {
	return AlertReportDTO{
		CheckedAt:  a.CheckedAt,
		OutOfStock: toAlertDTOs(a.OutOfStock),
		LowStock:   toAlertDTOs(a.LowStock),
		Expiring:   toAlertDTOs(a.Expiring),
	}
}

func toAlertDTOs(lines []pharmacy.StockReportLine) []StockAlertDTO {
	out := make([]StockAlertDTO, len(lines))
	for i, l := range lines {
		out[i] = StockAlertDTO{
			MedicineID:   int64(l.MedicineID),
			MedicineName: l.MedicineName,
			CurrentStock: l.CurrentStock,
			MinimumStock: l.MinimumStock,
			ExpiryDate:   l.ExpiryDate.Format(pharmacy.DateLayout),
			DaysToExpiry: l.DaysToExpiry,
		}
	}
	return out
}

// StockAlertScheduler runs the stock scan on a cron schedule.
type StockAlertScheduler struct {
	Reports           *pharmacy.Reports
	Schedule          string
	ExpiryWarningDays int
	Enabled           bool

	cron   *cron.Cron
	wg     sync.WaitGroup
	mu     sync.Mutex
	latest *AlertReport
}

// NewStockAlertScheduler creates a scheduler with the default schedule.
func NewStockAlertScheduler(reports *pharmacy.Reports, expiryWarningDays int) *StockAlertScheduler {
	return &StockAlertScheduler{
		Reports:           reports,
		Schedule:          DefaultAlertSchedule,
		ExpiryWarningDays: expiryWarningDays,
		Enabled:           true,
	}
}

// Start schedules the scan and runs it once right away.
func (s *StockAlertScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return nil
	}
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.Schedule, s.check); err != nil {
		return fmt.Errorf("invalid alert schedule %q: %w", s.Schedule, err)
	}
	c.Start()
	s.cron = c

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.check()
	}()

	log.Printf("[Scheduler] Started with schedule: %s", s.Schedule)
	return nil
}

// Stop stops the schedule and waits for a running scan to finish.
func (s *StockAlertScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.wg.Wait()
	log.Println("[Scheduler] Stopped")
}

// Latest returns the most recent scan, or nil before the first one.
func (s *StockAlertScheduler) Latest() *AlertReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Scan classifies every medicine and records the result as the latest report.
func (s *StockAlertScheduler) Scan(ctx context.Context) (*AlertReport, error) {
	lines, err := s.Reports.StockReport(ctx)
	if err != nil {
		return nil, err
	}

	report := &AlertReport{
		CheckedAt:  time.Now().UTC(),
		OutOfStock: []pharmacy.StockReportLine{},
		LowStock:   []pharmacy.StockReportLine{},
		Expiring:   []pharmacy.StockReportLine{},
	}
	for _, l := range lines {
		switch l.Status {
		case pharmacy.StockOut:
			report.OutOfStock = append(report.OutOfStock, l)
		case pharmacy.StockLow:
			report.LowStock = append(report.LowStock, l)
		}
		if l.DaysToExpiry <= s.ExpiryWarningDays {
			report.Expiring = append(report.Expiring, l)
		}
	}

	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()
	return report, nil
}

func (s *StockAlertScheduler) check() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	report, err := s.Scan(ctx)
	if err != nil {
		log.Printf("[Scheduler] Stock scan failed: %v", err)
		return
	}

	for _, l := range report.OutOfStock {
		log.Printf("[Scheduler] OUT OF STOCK: %s (id %d)", l.MedicineName, l.MedicineID)
	}
	for _, l := range report.LowStock {
		log.Printf("[Scheduler] Low stock: %s has %d (minimum %d)", l.MedicineName, l.CurrentStock, l.MinimumStock)
	}
	for _, l := range report.Expiring {
		if l.DaysToExpiry < 0 {
			log.Printf("[Scheduler] Expired: %s on %s", l.MedicineName, l.ExpiryDate.Format(pharmacy.DateLayout))
			continue
		}
		log.Printf("[Scheduler] Expiring in %d days: %s", l.DaysToExpiry, l.MedicineName)
	}
	log.Printf("[Scheduler] Stock scan complete: %d alerts", report.Count())
}
