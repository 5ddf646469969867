package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// HVACInfo describes one multi-zone HVAC unit and its link policy.
type HVACInfo struct {
	IP                   string  `toml:"ip"`
	Port                 int     `toml:"port"`
	IdleSetpointC        float64 `toml:"idle_setpoint_c"`
	ZoneIDs              []int   `toml:"zone_ids"`
	ConnectionTimeoutMS  int     `toml:"connection_timeout_ms"`
	ResponseTimeoutMS    int     `toml:"response_timeout_ms"`
	AutoReconnect        bool    `toml:"auto_reconnect"`
	ReconnectDelayMS     int     `toml:"reconnect_delay_ms"`
	ReconnectMultiplier  float64 `toml:"reconnect_backoff_multiplier"`
	MaxReconnectDelayMS  int     `toml:"max_reconnect_delay_ms"`
	ReconnectJitter      bool    `toml:"reconnect_jitter"`
	MaxReconnectAttempts int     `toml:"max_reconnect_attempts"`
	MinTemperatureC      float64 `toml:"min_temperature_c"`
	MaxTemperatureC      float64 `toml:"max_temperature_c"`
	TemperatureIncrement float64 `toml:"temperature_increment"`
}

// StorageConfig lists candidate setpoint file locations in probe order.
type StorageConfig struct {
	SetpointPaths []string `toml:"setpoint_paths"`
}

// ConsoleConfig describes the operator HTTP surface.
type ConsoleConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

// BridgeConfig describes the optional MQTT telemetry bridge.
type BridgeConfig struct {
	Enabled     bool   `toml:"enabled"`
	Broker      string `toml:"broker"`
	ClientID    string `toml:"client_id"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	TopicPrefix string `toml:"topic_prefix"`
}

// UnitConfig is the full configuration document for one controller process.
type UnitConfig struct {
	HVAC    HVACInfo      `toml:"hvac"`
	Storage StorageConfig `toml:"storage"`
	Console ConsoleConfig `toml:"console"`
	Bridge  BridgeConfig  `toml:"bridge"`
}

func (h HVACInfo) Addr() string {
	return net.JoinHostPort(h.IP, fmt.Sprintf("%d", h.Port))
}

func (h HVACInfo) ConnectTimeout() time.Duration {
	return time.Duration(h.ConnectionTimeoutMS) * time.Millisecond
}

func (h HVACInfo) ResponseTimeout() time.Duration {
	return time.Duration(h.ResponseTimeoutMS) * time.Millisecond
}

func (h HVACInfo) ReconnectDelay() time.Duration {
	return time.Duration(h.ReconnectDelayMS) * time.Millisecond
}

func (h HVACInfo) MaxReconnectDelay() time.Duration {
	return time.Duration(h.MaxReconnectDelayMS) * time.Millisecond
}

func LoadUnitConfig(path string) (UnitConfig, error) {
	var cfg UnitConfig
	if err := loadToml(path, &cfg); err != nil {
		return UnitConfig{}, err
	}
	applyDefaults(&cfg)
	if err := ValidateUnitConfig(cfg); err != nil {
		return UnitConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *UnitConfig) {
	if cfg.HVAC.ConnectionTimeoutMS == 0 {
		cfg.HVAC.ConnectionTimeoutMS = 5000
	}
	if cfg.HVAC.ResponseTimeoutMS == 0 {
		cfg.HVAC.ResponseTimeoutMS = 5000
	}
	if cfg.HVAC.ReconnectDelayMS == 0 {
		cfg.HVAC.ReconnectDelayMS = 2000
	}
	// Multiplier 1.0 keeps the fixed-delay redial policy unless configured.
	if cfg.HVAC.ReconnectMultiplier == 0 {
		cfg.HVAC.ReconnectMultiplier = 1.0
	}
	if cfg.HVAC.MinTemperatureC == 0 && cfg.HVAC.MaxTemperatureC == 0 {
		cfg.HVAC.MinTemperatureC = -40.0
		cfg.HVAC.MaxTemperatureC = 50.0
	}
	if cfg.HVAC.TemperatureIncrement == 0 {
		cfg.HVAC.TemperatureIncrement = 0.5
	}
	if cfg.Console.Addr == "" {
		cfg.Console.Addr = ":9420"
	}
	if cfg.Bridge.ClientID == "" {
		cfg.Bridge.ClientID = "klimatectl"
	}
	if cfg.Bridge.TopicPrefix == "" {
		cfg.Bridge.TopicPrefix = "klimate"
	}
}

func ValidateUnitConfig(cfg UnitConfig) error {
	if err := ValidateHVACInfo(cfg.HVAC); err != nil {
		return err
	}
	if cfg.Bridge.Enabled && strings.TrimSpace(cfg.Bridge.Broker) == "" {
		return fmt.Errorf("bridge enabled without broker address")
	}
	return nil
}

func ValidateHVACInfo(h HVACInfo) error {
	if strings.TrimSpace(h.IP) == "" {
		return fmt.Errorf("hvac config missing ip")
	}
	if h.Port <= 0 || h.Port > 65535 {
		return fmt.Errorf("hvac config invalid port %d", h.Port)
	}
	if len(h.ZoneIDs) == 0 {
		return fmt.Errorf("hvac config missing zone_ids")
	}
	for i, zone := range h.ZoneIDs {
		if zone < 1 || zone > 255 {
			return fmt.Errorf("hvac config zone_ids[%d] out of range: %d", i, zone)
		}
	}
	if h.MinTemperatureC >= h.MaxTemperatureC {
		return fmt.Errorf("hvac config temperature bounds inverted: min=%.1f max=%.1f", h.MinTemperatureC, h.MaxTemperatureC)
	}
	if h.IdleSetpointC < h.MinTemperatureC || h.IdleSetpointC > h.MaxTemperatureC {
		return fmt.Errorf("hvac config idle setpoint %.1f outside [%.1f, %.1f]", h.IdleSetpointC, h.MinTemperatureC, h.MaxTemperatureC)
	}
	if h.MaxReconnectAttempts < 0 {
		return fmt.Errorf("hvac config negative max_reconnect_attempts")
	}
	return nil
}
