/*
main.go - Application entry point

PURPOSE:
  Starts the pharmacy engine server: configuration, SQLite store, HTTP API,
  stock alert scheduler, graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, .env, environment, flags)
  2. Open and migrate the SQLite store
  3. Create API handler and router
  4. Start the stock alert scheduler
  5. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -port                 HTTP server port (default: 8080)
  -db                   SQLite database path (default: pharmacy.db)
                        Use ":memory:" for in-memory database
  -busy-timeout         SQLite busy timeout (default: 5s)
  -lock-timeout         Bound on one atomic unit (default: 10s)
  -alert-schedule       Cron spec for stock alerts (default: @every 1h)
  -alerts               Enable stock alerts (default: true)
  -expiry-warning-days  Expiry horizon for alerts (default: 30)
  -cors-origins         Comma-separated allowed origins

ENVIRONMENT:
  PHARMACY_PORT, PHARMACY_DB, PHARMACY_BUSY_TIMEOUT, PHARMACY_LOCK_TIMEOUT,
  PHARMACY_ALERT_SCHEDULE, PHARMACY_ALERTS_ENABLED,
  PHARMACY_EXPIRY_WARNING_DAYS, PHARMACY_CORS_ORIGINS.
  A .env file in the working directory is read too; real environment wins.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/pharmacy.db"
  ./server -db=":memory:" -alerts=false
  PHARMACY_PORT=3000 ./server

SEE ALSO:
  - config/config.go: Settings and precedence
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/pharmacy-engine/api"
	"github.com/warp/pharmacy-engine/config"
	"github.com/warp/pharmacy-engine/pharmacy"
	"github.com/warp/pharmacy-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize store
	store, err := sqlite.Open(cfg.DBPath, sqlite.Options{BusyTimeout: cfg.BusyTimeout})
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, pharmacy.WithLockTimeout(cfg.LockTimeout))

	scheduler := api.NewStockAlertScheduler(handler.Reports, cfg.ExpiryWarningDays)
	scheduler.Schedule = cfg.AlertSchedule
	scheduler.Enabled = cfg.AlertsEnabled
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	handler.Alerts = scheduler

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Port)
		log.Printf("Database: %s", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
