package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-pay-backend/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 502, cfg.Modbus.Port)
	assert.Equal(t, uint16(16), cfg.Modbus.CoilBase)
	assert.Equal(t, "pulse", cfg.Charge.Mode)
	assert.Equal(t, 6, cfg.Security.CodeLength)
	assert.Equal(t, 5, cfg.Security.MaxFailedAttempts)
	assert.Equal(t, 120, cfg.Security.LockoutSeconds)
	assert.Equal(t, 8, cfg.Charge.ConfirmTimeoutSec)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
}

func TestFleetCategoryAndPricing(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
pricing:
  price_washing: 5
  price_dryer: 7.5
  washing_minutes: 30
  dryer_minutes: 60
  price_map:
    2: 4.25
`))
	require.NoError(t, err)

	fleet, err := cfg.Fleet()
	require.NoError(t, err)
	require.Len(t, fleet, 6)

	assert.Equal(t, model.CategoryWashing, fleet[0].Category)
	assert.Equal(t, model.CategoryDryer, fleet[3].Category)

	assert.True(t, fleet[0].Price.Equal(decimal.NewFromFloat(5)))
	assert.True(t, fleet[1].Price.Equal(decimal.NewFromFloat(4.25)))
	assert.True(t, fleet[4].Price.Equal(decimal.NewFromFloat(7.5)))

	assert.Equal(t, 30, fleet[0].CycleMinutes)
	assert.Equal(t, 60, fleet[5].CycleMinutes)
}

func TestFleetEnabledPrecedence(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
machines:
  - id: 2
    enabled: true
  - id: 3
    enabled: false
disabled_machines: [1, 2]
machine_overrides:
  3: true
`))
	require.NoError(t, err)

	fleet, err := cfg.Fleet()
	require.NoError(t, err)

	// Disabled-list membership alone disables.
	assert.False(t, fleet[0].Enabled)
	// Per-machine flag beats the disabled list.
	assert.True(t, fleet[1].Enabled)
	// Explicit override beats the per-machine flag.
	assert.True(t, fleet[2].Enabled)
	// Default is enabled.
	assert.True(t, fleet[3].Enabled)
}

func TestFleetMappings(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
modbus:
  host: 192.168.1.101
machines:
  - id: 1
    relay: 3
    di: 4
`))
	require.NoError(t, err)

	fleet, err := cfg.Fleet()
	require.NoError(t, err)
	assert.Equal(t, model.MappingModbus, fleet[0].Mapping.Kind)
	assert.Equal(t, 3, fleet[0].Mapping.Relay)
	assert.Equal(t, 4, fleet[0].Mapping.Input)
	// Unconfigured machines default to index id-1.
	assert.Equal(t, 1, fleet[1].Mapping.Relay)

	// Without a Modbus host the fleet falls back to HA entities.
	cfg2, err := Load(writeConfig(t, "machines:\n  - id: 5\n    ha_switch: switch.dryer_a\n"))
	require.NoError(t, err)
	fleet2, err := cfg2.Fleet()
	require.NoError(t, err)
	assert.Equal(t, model.MappingHA, fleet2[4].Mapping.Kind)
	assert.Equal(t, "switch.dryer_a", fleet2[4].Mapping.Switch)
	assert.Equal(t, "binary_sensor.machine_5_busy", fleet2[4].Mapping.Sensor)
}

func TestFleetRejectsOutOfRangeID(t *testing.T) {
	cfg, err := Load(writeConfig(t, "machines:\n  - id: 7\n"))
	require.NoError(t, err)
	_, err = cfg.Fleet()
	assert.Error(t, err)
}
