package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Polling.OrderInterval)
	assert.Equal(t, 3*time.Second, cfg.Polling.StaffInterval)
	assert.Equal(t, 50, cfg.Session.MaxTables)
	assert.Equal(t, "INR", cfg.Payee.Currency)
	assert.Equal(t, StateDriverSQLite, cfg.State.Driver)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "750ms")
	t.Setenv("MAX_TABLES", "12")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 750*time.Millisecond, cfg.Polling.OrderInterval)
	assert.Equal(t, 12, cfg.Session.MaxTables)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("NOTICE_TTL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestAuditLocation(t *testing.T) {
	cfg := &Config{}
	loc, err := cfg.AuditLocation()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	cfg.Session.AuditTimezone = "Nowhere/Invalid"
	_, err = cfg.AuditLocation()
	assert.Error(t, err)
}
