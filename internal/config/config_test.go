package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 1.25, cfg.PriceShortRate)
	assert.Equal(t, 1.05, cfg.PriceLongRate)
	assert.Equal(t, 5, cfg.PriceFreeMinutes)
	assert.Equal(t, 60, cfg.PriceLongStayAfter)
	assert.True(t, cfg.PriceClamp)
	assert.Equal(t, 10, cfg.ChargeStartMin)
	assert.Equal(t, 45, cfg.ChargeStartMax)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpirationHours)
}

func TestLoadReportsEveryBadValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PRICE_SHORT_RATE", "cheap")
	t.Setenv("RECONCILE_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRICE_SHORT_RATE")
	assert.Contains(t, err.Error(), "RECONCILE_INTERVAL")
}

func TestLoadReadsDotEnvAndLayout(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	layout := "name: Site ${SITE}\nslots:\n  - id: 2\n    label: B\n  - id: 1\n    label: A\n    charger: true\n  - id: 3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "layout.yaml"), []byte(layout), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("PARKING_LAYOUT_FILE=layout.yaml\nSITE=North\nDB_DRIVER=memory\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PARKING_LAYOUT_FILE")
		os.Unsetenv("SITE")
		os.Unsetenv("DB_DRIVER")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.DBDriver)
	assert.Equal(t, 3, cfg.TotalSlots)
	assert.Equal(t, "Site North", cfg.Layout.Name)
	assert.Equal(t, "A", cfg.Layout.Label(1))
	assert.Equal(t, "3", cfg.Layout.Label(3))
}

func TestLayoutRejectsGaps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("slots:\n  - id: 1\n  - id: 3\n"), 0o600))

	_, err := LoadLayout(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			TotalSlots: 3, ReconcileInterval: time.Second,
			PriceShortRate: 1.25, PriceLongRate: 1.05,
			ChargeStartMin: 10, ChargeStartMax: 45,
			DBDriver: "memory", SensorSource: "none",
		}
	}
	assert.NoError(t, valid().Validate())

	c := valid()
	c.PriceLongRate = 2
	assert.Error(t, c.Validate())

	c = valid()
	c.SensorSource = "sqs"
	assert.Error(t, c.Validate())

	c = valid()
	c.ChargeStartMin = 50
	assert.Error(t, c.Validate())

	c = valid()
	c.DBDriver = "mysql"
	assert.Error(t, c.Validate())
}

func TestPersistent(t *testing.T) {
	assert.False(t, (&Config{DBDriver: "memory"}).Persistent())
	assert.True(t, (&Config{DBDriver: "pgx"}).Persistent())
	assert.True(t, (&Config{DBDriver: "postgres"}).Persistent())
}
