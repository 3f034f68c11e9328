package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validJSON() string {
	return `{
		"security_token": "token-123",
		"url_format": "https://example.com/%s/%s/%s",
		"location": "Europe/Riga",
		"user_agent": "test-agent/1.0",
		"battery_soh": 90,
		"vat": 0.21,
		"check_interval": "10m",
		"api_timeout": "20s"
	}`
}

func TestLoadConfigFromReaderAppliesDefaultsThenOverrides(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader(validJSON()))
	if err != nil {
		t.Fatalf("LoadConfigFromReader: %v", err)
	}
	if cfg.SecurityToken != "token-123" {
		t.Errorf("SecurityToken = %q, want token-123", cfg.SecurityToken)
	}
	if cfg.CheckInterval != 10*time.Minute {
		t.Errorf("CheckInterval = %v, want 10m", cfg.CheckInterval)
	}
	if cfg.APITimeout != 20*time.Second {
		t.Errorf("APITimeout = %v, want 20s", cfg.APITimeout)
	}
	// Untouched field should keep its default.
	if cfg.PlanningCutoffHour != 21 {
		t.Errorf("PlanningCutoffHour = %d, want default 21", cfg.PlanningCutoffHour)
	}
	if cfg.BatterySOH != 90 {
		t.Errorf("BatterySOH = %d, want 90", cfg.BatterySOH)
	}
}

func TestLoadConfigFromReaderRejectsMissingSecurityToken(t *testing.T) {
	if _, err := LoadConfigFromReader(strings.NewReader(`{"url_format":"x","location":"UTC","user_agent":"a"}`)); err == nil {
		t.Fatal("expected an error for a missing security_token")
	}
}

func TestValidateRejectsBadLocation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SecurityToken = "t"
	cfg.UserAgent = "a"
	cfg.Location = "Not/A/Real/Zone"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an invalid location")
	}
}

func TestTimeLocationDefaultsToUTC(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Location = ""
	loc, err := cfg.TimeLocation()
	if err != nil {
		t.Fatalf("TimeLocation: %v", err)
	}
	if loc != time.UTC {
		t.Errorf("TimeLocation() = %v, want time.UTC", loc)
	}
}

func TestBatteryModelPanelFeesReflectConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChargeStepKWh = 4
	cfg.PanelPeakKW = 8
	cfg.VAT = 0.22

	if got := cfg.BatteryModel().ChargeStepKWh; got != 4 {
		t.Errorf("BatteryModel().ChargeStepKWh = %v, want 4", got)
	}
	if got := cfg.Panel().PeakKW; got != 8 {
		t.Errorf("Panel().PeakKW = %v, want 8", got)
	}
	if got := cfg.Fees().VAT; got != 0.22 {
		t.Errorf("Fees().VAT = %v, want 0.22", got)
	}
}

func TestMarshalUnmarshalRoundTripsDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SecurityToken = "t"
	cfg.UserAgent = "a"
	cfg.CheckInterval = 7 * time.Minute
	cfg.APITimeout = 42 * time.Second

	data, err := cfg.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	roundTripped, err := LoadConfigFromReader(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("LoadConfigFromReader(round trip): %v", err)
	}
	if roundTripped.CheckInterval != 7*time.Minute {
		t.Errorf("CheckInterval = %v, want 7m", roundTripped.CheckInterval)
	}
	if roundTripped.APITimeout != 42*time.Second {
		t.Errorf("APITimeout = %v, want 42s", roundTripped.APITimeout)
	}
}

func TestLoadConsumptionDiagramReadsAllSevenWeekdays(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diagram.json")
	hours := `[0.1,0.1,0.1,0.1,0.1,0.1,0.2,0.3,0.3,0.2,0.2,0.2,0.2,0.2,0.2,0.2,0.3,0.4,0.5,0.4,0.3,0.2,0.1,0.1]`
	content := `{"monday":` + hours + `,"tuesday":` + hours + `,"wednesday":` + hours + `,"thursday":` + hours +
		`,"friday":` + hours + `,"saturday":` + hours + `,"sunday":` + hours + `}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	diagram, err := LoadConsumptionDiagram(path)
	if err != nil {
		t.Fatalf("LoadConsumptionDiagram: %v", err)
	}
	if diagram[0][18] != 0.5 {
		t.Errorf("diagram[monday][18] = %v, want 0.5", diagram[0][18])
	}
	if diagram[6][0] != 0.1 {
		t.Errorf("diagram[sunday][0] = %v, want 0.1", diagram[6][0])
	}
}

func TestLoadConsumptionDiagramRejectsMissingWeekday(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diagram.json")
	if err := os.WriteFile(path, []byte(`{"monday":[0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0]}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadConsumptionDiagram(path); err == nil {
		t.Fatal("expected an error for a diagram missing weekdays")
	}
}
