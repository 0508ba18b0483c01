package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := parse(mapLookup(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_EnvThenFlags(t *testing.T) {
	// GIVEN: Environment sets port, db, alerts and origins
	// WHEN: A flag overrides the port
	// THEN: The flag wins; the rest comes from the environment

	env := map[string]string{
		EnvPort:              "3000",
		EnvDB:                "/tmp/pharmacy.db",
		EnvAlertsEnabled:     "false",
		EnvExpiryWarningDays: "14",
		EnvLockTimeout:       "2s",
		EnvCORSOrigins:       "http://a.example, http://b.example",
	}

	cfg, err := parse(mapLookup(env), []string{"-port=9090"})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/pharmacy.db", cfg.DBPath)
	assert.False(t, cfg.AlertsEnabled)
	assert.Equal(t, 14, cfg.ExpiryWarningDays)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
}

func TestParse_Flags(t *testing.T) {
	cfg, err := parse(mapLookup(nil), []string{
		"-db=:memory:",
		"-busy-timeout=250ms",
		"-alert-schedule=@every 5m",
		"-alerts=false",
		"-cors-origins=http://x.example",
	})
	require.NoError(t, err)

	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, 250*time.Millisecond, cfg.BusyTimeout)
	assert.Equal(t, "@every 5m", cfg.AlertSchedule)
	assert.False(t, cfg.AlertsEnabled)
	assert.Equal(t, []string{"http://x.example"}, cfg.CORSOrigins)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"port not a number", map[string]string{EnvPort: "eighty"}, nil},
		{"port out of range", nil, []string{"-port=70000"}},
		{"bad duration", map[string]string{EnvBusyTimeout: "soon"}, nil},
		{"zero lock timeout", nil, []string{"-lock-timeout=0s"}},
		{"negative expiry horizon", nil, []string{"-expiry-warning-days=-1"}},
		{"bad bool", map[string]string{EnvAlertsEnabled: "maybe"}, nil},
		{"unknown flag", nil, []string{"-verbose"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(mapLookup(tt.env), tt.args)
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	// GIVEN: A .env file setting port and db, and a real env var for the port
	// THEN: The real environment wins over the file

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PHARMACY_PORT=4000\nPHARMACY_DB=file.db\n"), 0o600))
	t.Setenv(EnvPort, "5000")

	cfg, err := Load(envFile, nil)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "file.db", cfg.DBPath)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"), []string{"-port=8181"})
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Port)
}
