package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Server.Port, cfg.Server.Port)
	assert.Equal(t, def.Database.Driver, cfg.Database.Driver)
	assert.Equal(t, "review", cfg.Checkout.UnverifiedPaymentPolicy)
	assert.True(t, cfg.Checkout.EnforceCatalogPricing)
	assert.Equal(t, 15*time.Second, cfg.PayPal.Timeout)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	body := `
server:
  port: 9090
database:
  driver: sqlite
  dsn: "file:test.db"
checkout:
  unverified_payment_policy: optimistic
  reconcile_lock_ttl: 45s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "optimistic", cfg.Checkout.UnverifiedPaymentPolicy)
	assert.Equal(t, 45*time.Second, cfg.Checkout.ReconcileLockTTL)
	assert.Equal(t, 8081, cfg.AdminServer.Port)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PAYPAL_CLIENT_ID", "client-abc")
	t.Setenv("PAYPAL_CLIENT_SECRET", "secret-xyz")
	t.Setenv("BOOKSCAPE_REDIS_ADDR", "redis:6380")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "client-abc", cfg.PayPal.ClientID)
	assert.Equal(t, "secret-xyz", cfg.PayPal.ClientSecret)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
}

func TestServerConfig_Addr(t *testing.T) {
	assert.Equal(t, "0.0.0.0:80", ServerConfig{Port: 80}.Addr())
	assert.Equal(t, "127.0.0.1:8080", ServerConfig{Host: "127.0.0.1", Port: 8080}.Addr())
}
