// Package config loads server settings.
//
// Precedence, lowest first: built-in defaults, the .env file, process
// environment, command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment keys.
const (
	EnvPort              = "PHARMACY_PORT"
	EnvDB                = "PHARMACY_DB"
	EnvBusyTimeout       = "PHARMACY_BUSY_TIMEOUT"
	EnvLockTimeout       = "PHARMACY_LOCK_TIMEOUT"
	EnvAlertSchedule     = "PHARMACY_ALERT_SCHEDULE"
	EnvAlertsEnabled     = "PHARMACY_ALERTS_ENABLED"
	EnvExpiryWarningDays = "PHARMACY_EXPIRY_WARNING_DAYS"
	EnvCORSOrigins       = "PHARMACY_CORS_ORIGINS"
)

type Config struct {
	Port   int
	DBPath string

	// BusyTimeout is how long SQLite retries a database locked by another process.
	BusyTimeout time.Duration
	// LockTimeout bounds one atomic unit, lock waits included.
	LockTimeout time.Duration

	AlertSchedule     string
	AlertsEnabled     bool
	ExpiryWarningDays int

	CORSOrigins []string
}

func Default() Config {
	return Config{
		Port:              8080,
		DBPath:            "pharmacy.db",
		BusyTimeout:       5 * time.Second,
		LockTimeout:       10 * time.Second,
		AlertSchedule:     "@every 1h",
		AlertsEnabled:     true,
		ExpiryWarningDays: 30,
	}
}

// Load reads envFile (if it exists), the environment and args.
func Load(envFile string, args []string) (Config, error) {
	fileVars := map[string]string{}
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileVars = vars
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}
	return parse(lookup, args)
}

func parse(lookup func(string) (string, bool), args []string) (Config, error) {
	cfg := Default()
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	flags.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, `SQLite database path (":memory:" for in-memory)`)
	flags.DurationVar(&cfg.BusyTimeout, "busy-timeout", cfg.BusyTimeout, "SQLite busy timeout")
	flags.DurationVar(&cfg.LockTimeout, "lock-timeout", cfg.LockTimeout, "bound on one atomic unit")
	flags.StringVar(&cfg.AlertSchedule, "alert-schedule", cfg.AlertSchedule, "cron spec for stock alerts")
	flags.BoolVar(&cfg.AlertsEnabled, "alerts", cfg.AlertsEnabled, "enable the stock alert scheduler")
	flags.IntVar(&cfg.ExpiryWarningDays, "expiry-warning-days", cfg.ExpiryWarningDays, "flag medicines expiring within N days")
	origins := flags.String("cors-origins", strings.Join(cfg.CORSOrigins, ","), "comma-separated allowed origins")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.CORSOrigins = splitList(*origins)

	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var err error
	if v, ok := lookup(EnvPort); ok {
		if cfg.Port, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
	}
	if v, ok := lookup(EnvDB); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := lookup(EnvBusyTimeout); ok {
		if cfg.BusyTimeout, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", EnvBusyTimeout, err)
		}
	}
	if v, ok := lookup(EnvLockTimeout); ok {
		if cfg.LockTimeout, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", EnvLockTimeout, err)
		}
	}
	if v, ok := lookup(EnvAlertSchedule); ok && v != "" {
		cfg.AlertSchedule = v
	}
	if v, ok := lookup(EnvAlertsEnabled); ok {
		if cfg.AlertsEnabled, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("%s: %w", EnvAlertsEnabled, err)
		}
	}
	if v, ok := lookup(EnvExpiryWarningDays); ok {
		if cfg.ExpiryWarningDays, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("%s: %w", EnvExpiryWarningDays, err)
		}
	}
	if v, ok := lookup(EnvCORSOrigins); ok {
		cfg.CORSOrigins = splitList(v)
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.DBPath == "":
		return errors.New("database path is required")
	case c.BusyTimeout <= 0:
		return fmt.Errorf("busy timeout must be positive, got %s", c.BusyTimeout)
	case c.LockTimeout <= 0:
		return fmt.Errorf("lock timeout must be positive, got %s", c.LockTimeout)
	case c.ExpiryWarningDays < 0:
		return fmt.Errorf("expiry warning days must not be negative, got %d", c.ExpiryWarningDays)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
