package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"laundry-pay-backend/internal/model"
)

// Config represents the overall application configuration.
type Config struct {
	Server        ServerConfig     `yaml:"server"`
	Database      DatabaseConfig   `yaml:"database"`
	Modbus        ModbusConfig     `yaml:"modbus"`
	HomeAssistant HAConfig         `yaml:"home_assistant"`
	Machines      []MachineConfig  `yaml:"machines"`
	Pricing       PricingConfig    `yaml:"pricing"`
	Security      SecurityConfig   `yaml:"security"`
	Charge        ChargeConfig     `yaml:"charge"`
	Push          PushConfig       `yaml:"push"`
	WorkerPool    WorkerPoolConfig `yaml:"worker_pool"`
	Watcher       WatcherConfig    `yaml:"watcher"`
	Simulate      bool             `yaml:"simulate"`

	// Enabled precedence, strongest first: MachineOverrides, the
	// per-machine enabled flag, DisabledMachines membership.
	MachineOverrides map[int]bool `yaml:"machine_overrides"`
	DisabledMachines []int        `yaml:"disabled_machines"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the ledger database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" (default) or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ModbusConfig holds the ADAM-6050 I/O card connection settings.
type ModbusConfig struct {
	Host           string  `yaml:"host"`
	Port           int     `yaml:"port"`
	UnitID         byte    `yaml:"unit_id"`
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
	Retries        int     `yaml:"retries"`
	CoilBase       uint16  `yaml:"coil_base"` // ADAM-6050 maps DO0..5 to coils 16..21
	InvertDI       bool    `yaml:"invert_di"`
}

// Enabled reports whether machines are actuated over the I/O card at all.
func (m ModbusConfig) Enabled() bool { return m.Host != "" }

// HAConfig holds Home Assistant endpoint and TTS settings.
type HAConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Token          string  `yaml:"token"`
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
	TTSService     string  `yaml:"tts_service"`
	MediaPlayer    string  `yaml:"media_player"`
	EventsURL      string  `yaml:"events_url"` // derived from BaseURL when empty
	EventType      string  `yaml:"event_type"`
	KeypadEvents   bool    `yaml:"keypad_events"`
}

// MachineConfig describes one machine of the fleet.
type MachineConfig struct {
	ID           int      `yaml:"id"`
	Category     string   `yaml:"category"` // "washing" or "dryer"; default by id
	Enabled      *bool    `yaml:"enabled"`
	Price        *float64 `yaml:"price"`
	CycleMinutes *int     `yaml:"cycle_minutes"`
	Relay        *int     `yaml:"relay"`
	DI           *int     `yaml:"di"`
	HASwitch     string   `yaml:"ha_switch"`
	HASensor     string   `yaml:"ha_sensor"`
}

// PricingConfig holds category defaults and the per-machine price map.
type PricingConfig struct {
	PriceWashing   float64         `yaml:"price_washing"`
	PriceDryer     float64         `yaml:"price_dryer"`
	PriceMap       map[int]float64 `yaml:"price_map"`
	WashingMinutes int             `yaml:"washing_minutes"`
	DryerMinutes   int             `yaml:"dryer_minutes"`
}

// SecurityConfig holds the keypad code-entry policy.
type SecurityConfig struct {
	CodeLength          int  `yaml:"code_length"`
	CodeEntryTimeoutSec int  `yaml:"code_entry_timeout_s"`
	MaxFailedAttempts   int  `yaml:"max_failed_attempts"`
	LockoutSeconds      int  `yaml:"lockout_seconds"`
	ConfirmGated        bool `yaml:"confirm_gated"`
}

// ChargeConfig holds the charge flow timing knobs.
type ChargeConfig struct {
	Mode                 string  `yaml:"mode"` // "pulse" (default) or "hold"
	PulseSeconds         float64 `yaml:"pulse_seconds"`
	ConfirmTimeoutSec    int     `yaml:"confirm_timeout_s"`
	ConfirmPollMillis    int     `yaml:"confirm_poll_ms"`
	LockTimeoutSeconds   int     `yaml:"lock_timeout_s"`
	LedgerTimeoutSeconds int     `yaml:"ledger_timeout_s"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// WatcherConfig controls the cycle completion watcher.
type WatcherConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
}

// Interval returns the polling interval as a duration.
func (w WatcherConfig) Interval() time.Duration {
	return time.Duration(w.IntervalSeconds) * time.Second
}

// Load reads the configuration from the given path and applies defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 5
	}
	if c.Server.CacheTTLSeconds <= 0 {
		c.Server.CacheTTLSeconds = 2
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "laundrypay.db"
	}

	if c.Modbus.Port <= 0 {
		c.Modbus.Port = 502
	}
	if c.Modbus.UnitID == 0 {
		c.Modbus.UnitID = 1
	}
	if c.Modbus.TimeoutSeconds <= 0 {
		c.Modbus.TimeoutSeconds = 2
	}
	if c.Modbus.Retries <= 0 {
		c.Modbus.Retries = 1
	}
	if c.Modbus.CoilBase == 0 {
		c.Modbus.CoilBase = 16
	}

	if c.HomeAssistant.BaseURL == "" {
		c.HomeAssistant.BaseURL = "http://supervisor/core"
	}
	if c.HomeAssistant.TimeoutSeconds <= 0 {
		c.HomeAssistant.TimeoutSeconds = 5
	}
	if c.HomeAssistant.TTSService == "" {
		c.HomeAssistant.TTSService = "tts.speak"
	}
	if c.HomeAssistant.EventType == "" {
		c.HomeAssistant.EventType = "keyboard_remote_command_received"
	}

	if c.Pricing.PriceWashing <= 0 {
		c.Pricing.PriceWashing = 5
	}
	if c.Pricing.PriceDryer <= 0 {
		c.Pricing.PriceDryer = 5
	}
	if c.Pricing.WashingMinutes <= 0 {
		c.Pricing.WashingMinutes = 30
	}
	if c.Pricing.DryerMinutes <= 0 {
		c.Pricing.DryerMinutes = 60
	}

	if c.Security.CodeLength <= 0 {
		c.Security.CodeLength = 6
	}
	if c.Security.CodeEntryTimeoutSec <= 0 {
		c.Security.CodeEntryTimeoutSec = 30
	}
	if c.Security.MaxFailedAttempts <= 0 {
		c.Security.MaxFailedAttempts = 5
	}
	if c.Security.LockoutSeconds <= 0 {
		c.Security.LockoutSeconds = 120
	}

	if c.Charge.Mode != "hold" {
		c.Charge.Mode = "pulse"
	}
	if c.Charge.PulseSeconds <= 0 {
		c.Charge.PulseSeconds = 0.8
	}
	if c.Charge.ConfirmTimeoutSec <= 0 {
		c.Charge.ConfirmTimeoutSec = 8
	}
	if c.Charge.ConfirmPollMillis <= 0 {
		c.Charge.ConfirmPollMillis = 500
	}
	if c.Charge.LockTimeoutSeconds <= 0 {
		c.Charge.LockTimeoutSeconds = 10
	}
	if c.Charge.LedgerTimeoutSeconds <= 0 {
		c.Charge.LedgerTimeoutSeconds = 10
	}

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}
	if c.WorkerPool.Size <= 0 {
		c.WorkerPool.Size = 1
	}
	if c.Watcher.IntervalSeconds <= 0 {
		c.Watcher.IntervalSeconds = 30
	}
}

// Fleet resolves the configured machine list into the fixed six-machine
// fleet with all defaults, price resolution and enabled precedence applied.
func (c *Config) Fleet() ([]model.Machine, error) {
	byID := make(map[int]MachineConfig, len(c.Machines))
	for _, mc := range c.Machines {
		if mc.ID < 1 || mc.ID > 6 {
			return nil, fmt.Errorf("machine id %d out of range 1..6", mc.ID)
		}
		byID[mc.ID] = mc
	}

	disabled := make(map[int]bool, len(c.DisabledMachines))
	for _, id := range c.DisabledMachines {
		disabled[id] = true
	}

	fleet := make([]model.Machine, 0, 6)
	for id := 1; id <= 6; id++ {
		mc := byID[id]
		m := model.Machine{ID: id}

		m.Category = model.CategoryWashing
		if id > 3 {
			m.Category = model.CategoryDryer
		}
		switch mc.Category {
		case "washing":
			m.Category = model.CategoryWashing
		case "dryer":
			m.Category = model.CategoryDryer
		}

		m.Enabled = true
		if disabled[id] {
			m.Enabled = false
		}
		if mc.Enabled != nil {
			m.Enabled = *mc.Enabled
		}
		if ov, ok := c.MachineOverrides[id]; ok {
			m.Enabled = ov
		}

		m.Price = c.priceFor(id, m.Category, mc)
		m.CycleMinutes = c.minutesFor(m.Category, mc)
		m.Mapping = c.mappingFor(id, mc)

		fleet = append(fleet, m)
	}
	return fleet, nil
}

func (c *Config) priceFor(id int, cat model.MachineCategory, mc MachineConfig) decimal.Decimal {
	if mc.Price != nil {
		return decimal.NewFromFloat(*mc.Price)
	}
	if p, ok := c.Pricing.PriceMap[id]; ok {
		return decimal.NewFromFloat(p)
	}
	if cat == model.CategoryDryer {
		return decimal.NewFromFloat(c.Pricing.PriceDryer)
	}
	return decimal.NewFromFloat(c.Pricing.PriceWashing)
}

func (c *Config) minutesFor(cat model.MachineCategory, mc MachineConfig) int {
	if mc.CycleMinutes != nil {
		return *mc.CycleMinutes
	}
	if cat == model.CategoryDryer {
		return c.Pricing.DryerMinutes
	}
	return c.Pricing.WashingMinutes
}

func (c *Config) mappingFor(id int, mc MachineConfig) model.Mapping {
	if c.Modbus.Enabled() {
		mp := model.Mapping{Kind: model.MappingModbus, Relay: id - 1, Input: id - 1}
		if mc.Relay != nil {
			mp.Relay = *mc.Relay
		}
		if mc.DI != nil {
			mp.Input = *mc.DI
		}
		// An explicitly configured sensor entity doubles as the
		// remote-sensor fallback when the DI read comes back unknown.
		mp.Switch = mc.HASwitch
		mp.Sensor = mc.HASensor
		return mp
	}

	mp := model.Mapping{
		Kind:   model.MappingHA,
		Switch: fmt.Sprintf("switch.machine_%d", id),
		Sensor: fmt.Sprintf("binary_sensor.machine_%d_busy", id),
	}
	if mc.HASwitch != "" {
		mp.Switch = mc.HASwitch
	}
	if mc.HASensor != "" {
		mp.Sensor = mc.HASensor
	}
	return mp
}

// ModbusTimeout returns the per-attempt transport timeout.
func (c *Config) ModbusTimeout() time.Duration {
	return time.Duration(c.Modbus.TimeoutSeconds * float64(time.Second))
}

// PulseDuration returns the relay pulse length for pulse mode.
func (c *Config) PulseDuration() time.Duration {
	return time.Duration(c.Charge.PulseSeconds * float64(time.Second))
}

// ConfirmTimeout bounds the post-activation confirmation poll loop.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Charge.ConfirmTimeoutSec) * time.Second
}

// ConfirmPollInterval is the confirmation sampling period.
func (c *Config) ConfirmPollInterval() time.Duration {
	return time.Duration(c.Charge.ConfirmPollMillis) * time.Millisecond
}

// LockTimeout bounds the per-machine lock wait.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Charge.LockTimeoutSeconds) * time.Second
}
