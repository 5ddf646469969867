package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unit.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadUnitConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
[hvac]
ip = "10.0.0.40"
port = 4001
idle_setpoint_c = 18.0
zone_ids = [1, 2, 3]
`)
	cfg, err := LoadUnitConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HVAC.Addr() != "10.0.0.40:4001" {
		t.Fatalf("addr=%q", cfg.HVAC.Addr())
	}
	if cfg.HVAC.ResponseTimeout() != 5*time.Second {
		t.Fatalf("response timeout default=%v", cfg.HVAC.ResponseTimeout())
	}
	if cfg.HVAC.ReconnectDelay() != 2*time.Second {
		t.Fatalf("reconnect delay default=%v", cfg.HVAC.ReconnectDelay())
	}
	if cfg.HVAC.ReconnectMultiplier != 1.0 {
		t.Fatalf("reconnect multiplier default=%v", cfg.HVAC.ReconnectMultiplier)
	}
	if cfg.HVAC.MinTemperatureC != -40.0 || cfg.HVAC.MaxTemperatureC != 50.0 {
		t.Fatalf("temperature bounds defaults: %+v", cfg.HVAC)
	}
	if cfg.HVAC.TemperatureIncrement != 0.5 {
		t.Fatalf("increment default=%v", cfg.HVAC.TemperatureIncrement)
	}
	if cfg.Console.Addr == "" || cfg.Bridge.TopicPrefix == "" {
		t.Fatalf("ambient defaults missing: %+v", cfg)
	}
}

func TestLoadUnitConfigRejectsBadZones(t *testing.T) {
	path := writeConfig(t, `
[hvac]
ip = "10.0.0.40"
port = 4001
zone_ids = [1, 300]
`)
	if _, err := LoadUnitConfig(path); err == nil {
		t.Fatal("expected zone range error")
	}
}

func TestLoadUnitConfigRejectsMissingIP(t *testing.T) {
	path := writeConfig(t, `
[hvac]
port = 4001
zone_ids = [1]
`)
	if _, err := LoadUnitConfig(path); err == nil {
		t.Fatal("expected missing ip error")
	}
}

func TestLoadUnitConfigRejectsBridgeWithoutBroker(t *testing.T) {
	path := writeConfig(t, `
[hvac]
ip = "10.0.0.40"
port = 4001
zone_ids = [1]

[bridge]
enabled = true
`)
	if _, err := LoadUnitConfig(path); err == nil {
		t.Fatal("expected bridge broker error")
	}
}

func TestLoadUnitConfigMissingFile(t *testing.T) {
	if _, err := LoadUnitConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected load error")
	}
}

func TestValidateHVACInfoIdleSetpointBounds(t *testing.T) {
	h := HVACInfo{
		IP: "10.0.0.40", Port: 4001, ZoneIDs: []int{1},
		MinTemperatureC: -40, MaxTemperatureC: 50,
		IdleSetpointC: 60,
	}
	if err := ValidateHVACInfo(h); err == nil {
		t.Fatal("expected idle setpoint error")
	}
}
