// Package config loads the application's JSON configuration file: a struct plus
// encoding/json load, including a duration-as-string marshaling idiom, covering the battery/
// search, fee, panel, consumption-diagram and SMTP fields the day-ahead scheduler's domain stack
// needs.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oskarsson/pvsched/blockplan"
	"github.com/oskarsson/pvsched/consumption"
	"github.com/oskarsson/pvsched/orchestrator"
	"github.com/oskarsson/pvsched/pricing"
	"github.com/oskarsson/pvsched/production"
)

// Config is the application's full configuration.
type Config struct {
	// ENTSO-E API settings
	SecurityToken string        `json:"security_token"`
	APITimeout    time.Duration `json:"api_timeout"`
	URLFormat     string        `json:"url_format"`

	// Timezone the household and its market data live in, e.g. "Europe/Riga".
	Location string `json:"location"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// Weather forecast settings
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	UserAgent string  `json:"user_agent"`

	// Battery and search model (blockplan.BatteryModel)
	BatteryCapacityKWh  float64 `json:"battery_capacity_kwh"`
	BatterySOH          int     `json:"battery_soh"` // state of health, percent
	ChargeStepKWh       float64 `json:"charge_step_kwh"`
	ChargeEfficiency    float64 `json:"charge_efficiency"`
	DischargeEfficiency float64 `json:"discharge_efficiency"`
	MinSaving           float64 `json:"min_saving"`

	// Solar panel (production.PanelConfig); latitude/longitude are shared with the weather settings
	PanelPeakKW float64 `json:"panel_peak_kw"`

	// Buy-tariff fee markup (pricing.FeeSchedule)
	GridFee  float64 `json:"grid_fee"`
	TradeFee float64 `json:"trade_fee"`
	VAT      float64 `json:"vat"`

	// ConsumptionDiagramPath points at a JSON file holding the weekday/hour kW diagram; see
	// LoadConsumptionDiagram.
	ConsumptionDiagramPath string `json:"consumption_diagram_path"`

	// Persistence
	ScheduleDir        string `json:"schedule_dir"`
	PostgresConnString string `json:"postgres_conn_string"`

	// Server
	HealthCheckPort int `json:"health_check_port"`

	// Orchestrator
	CheckInterval      time.Duration `json:"check_interval"`
	PlanningCutoffHour int           `json:"planning_cutoff_hour"`
	FallbackSOC        int           `json:"fallback_soc"`

	// Inverter (format IP:PORT, e.g. "192.168.1.100:502"); empty disables inverter polling
	PlantModbusAddress string `json:"plant_modbus_address"`

	// SMTP failure notification; empty Host disables it
	SMTPHost     string   `json:"smtp_host"`
	SMTPPort     int      `json:"smtp_port"`
	SMTPUsername string   `json:"smtp_username"`
	SMTPPassword string   `json:"smtp_password"`
	SMTPFrom     string   `json:"smtp_from"`
	SMTPTo       []string `json:"smtp_to"`
}

// DefaultConfig returns a configuration with reasonable defaults for location, weather, timeouts
// and logging, plus the battery, panel, fee and scheduling fields specific to this domain. The
// security token, consumption diagram path, Postgres connection string, plant Modbus address and
// SMTP settings are left empty.
func DefaultConfig() *Config {
	return &Config{
		APITimeout: 30 * time.Second,
		URLFormat:  "https://web-api.tp.entsoe.eu/api?documentType=A44&out_Domain=10YLV-1001A00074&in_Domain=10YLV-1001A00074&periodStart=%s&periodEnd=%s&securityToken=%s",
		Location:   "Europe/Riga",
		LogLevel:   "info",
		LogFormat:  "text",
		Latitude:   56.9496, // Riga, Latvia
		Longitude:  24.1052,
		UserAgent:  "pvsched/1.0 (username@example.com)",

		BatteryCapacityKWh:  24.0,
		BatterySOH:          100,
		ChargeStepKWh:       3.0,
		ChargeEfficiency:    0.95,
		DischargeEfficiency: 0.95,
		MinSaving:           0.05,

		PanelPeakKW: 10.0,

		VAT: 0.20,

		ScheduleDir:     "",
		HealthCheckPort: 0,

		CheckInterval:      15 * time.Minute,
		PlanningCutoffHour: 21,
		FallbackSOC:        50,
	}
}

// LoadConfig loads configuration from a JSON file at filename.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", filename, err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from reader, starting from DefaultConfig so a partial
// file only overrides what it sets.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports a non-nil error for any field combination that would make the system
// undefined, one check per invariant.
func (c *Config) Validate() error {
	if c.SecurityToken == "" {
		return fmt.Errorf("security_token cannot be empty")
	}
	if c.URLFormat == "" {
		return fmt.Errorf("url_format cannot be empty")
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be greater than 0, got: %s", c.APITimeout)
	}
	if _, err := c.TimeLocation(); err != nil {
		return fmt.Errorf("invalid location %q: %w", c.Location, err)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", c.Longitude)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent cannot be empty")
	}
	if battErr := c.BatteryModel().Validate(); battErr != nil {
		return battErr
	}
	if c.BatterySOH <= 0 || c.BatterySOH > 100 {
		return fmt.Errorf("battery_soh must be between 1 and 100, got: %d", c.BatterySOH)
	}
	if c.VAT < 0 || c.VAT >= 1 {
		return fmt.Errorf("vat must be in [0,1), got: %f", c.VAT)
	}
	if c.PanelPeakKW < 0 {
		return fmt.Errorf("panel_peak_kw must be non-negative, got: %f", c.PanelPeakKW)
	}
	if c.HealthCheckPort < 0 || c.HealthCheckPort > 65535 {
		return fmt.Errorf("health_check_port must be between 0 and 65535, got: %d", c.HealthCheckPort)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be greater than 0, got: %s", c.CheckInterval)
	}
	if c.PlanningCutoffHour < 0 || c.PlanningCutoffHour > 23 {
		return fmt.Errorf("planning_cutoff_hour must be between 0 and 23, got: %d", c.PlanningCutoffHour)
	}
	if c.FallbackSOC < 0 || c.FallbackSOC > 100 {
		return fmt.Errorf("fallback_soc must be between 0 and 100, got: %d", c.FallbackSOC)
	}
	return nil
}

// TimeLocation parses Location, defaulting to UTC when empty.
func (c *Config) TimeLocation() (*time.Location, error) {
	if c.Location == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Location)
}

// BatteryModel builds the blockplan.BatteryModel this configuration describes.
func (c *Config) BatteryModel() blockplan.BatteryModel {
	return blockplan.BatteryModel{
		BatCapacityKWh:      c.BatteryCapacityKWh,
		ChargeStepKWh:       c.ChargeStepKWh,
		ChargeEfficiency:    c.ChargeEfficiency,
		DischargeEfficiency: c.DischargeEfficiency,
		MinSaving:           c.MinSaving,
	}
}

// Panel builds the production.PanelConfig this configuration describes.
func (c *Config) Panel() production.PanelConfig {
	return production.PanelConfig{
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		PeakKW:    c.PanelPeakKW,
	}
}

// Fees builds the pricing.FeeSchedule this configuration describes.
func (c *Config) Fees() pricing.FeeSchedule {
	return pricing.FeeSchedule{
		GridFee:  c.GridFee,
		TradeFee: c.TradeFee,
		VAT:      c.VAT,
	}
}

// SMTP builds the orchestrator.SMTPConfig this configuration describes.
func (c *Config) SMTP() orchestrator.SMTPConfig {
	return orchestrator.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
		To:       c.SMTPTo,
	}
}

// LoadConsumptionDiagram loads a consumption.WeeklyDiagram from a JSON file. The file holds one
// 24-entry kW array per weekday, keyed by lowercase English weekday name, matching the shape the
// original household-consumption TOML file used before this port to JSON.
func LoadConsumptionDiagram(path string) (consumption.WeeklyDiagram, error) {
	var diagram consumption.WeeklyDiagram
	data, err := os.ReadFile(path)
	if err != nil {
		return diagram, fmt.Errorf("config: read consumption diagram %s: %w", path, err)
	}

	var raw map[string][24]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return diagram, fmt.Errorf("config: decode consumption diagram %s: %w", path, err)
	}

	weekdays := [7]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
	for i, name := range weekdays {
		hours, ok := raw[name]
		if !ok {
			return diagram, fmt.Errorf("config: consumption diagram %s missing %q", path, name)
		}
		diagram[i] = hours
	}
	return diagram, nil
}

// MarshalJSON renders durations as Go duration strings (e.g. "15m0s").
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		APITimeout    string `json:"api_timeout"`
		CheckInterval string `json:"check_interval"`
	}{
		Alias:         (*Alias)(c),
		APITimeout:    c.APITimeout.String(),
		CheckInterval: c.CheckInterval.String(),
	})
}

// UnmarshalJSON parses duration fields given as Go duration strings (e.g. "15m").
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		APITimeout    string `json:"api_timeout"`
		CheckInterval string `json:"check_interval"`
	}{
		Alias: (*Alias)(c),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.APITimeout != "" {
		d, err := time.ParseDuration(aux.APITimeout)
		if err != nil {
			return fmt.Errorf("invalid api_timeout: %w", err)
		}
		c.APITimeout = d
	}
	if aux.CheckInterval != "" {
		d, err := time.ParseDuration(aux.CheckInterval)
		if err != nil {
			return fmt.Errorf("invalid check_interval: %w", err)
		}
		c.CheckInterval = d
	}
	return nil
}

// String renders the config as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
