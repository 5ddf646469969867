package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// simConfig is the bench simulator's runtime shape.
type simConfig struct {
	Listen         string
	ExternalTempC  float64
	PushInterval   time.Duration
	ReplyDelay     time.Duration
	OverTemp       bool
	PressureFault  bool
	VoltageFault   bool
	AirflowBlocked bool
}

// sim config.toml key mapping.
type fileConfig struct {
	Listen         string  `toml:"listen"`
	ExternalTempC  float64 `toml:"external_temp_c"`
	PushIntervalMS int     `toml:"push_interval_ms"`
	ReplyDelayMS   int     `toml:"reply_delay_ms"`
	OverTemp       bool    `toml:"over_temp"`
	PressureFault  bool    `toml:"pressure_fault"`
	VoltageFault   bool    `toml:"voltage_fault"`
	AirflowBlocked bool    `toml:"airflow_blocked"`
}

func defaultSimConfig() simConfig {
	return simConfig{
		Listen:        ":4001",
		ExternalTempC: 12.5,
		PushInterval:  10 * time.Second,
		ReplyDelay:    50 * time.Millisecond,
	}
}

// loadSimConfig overlays config.toml values onto the defaults.
func loadSimConfig(path string) (simConfig, error) {
	cfg := defaultSimConfig()
	if path == "" {
		return cfg, nil
	}
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return simConfig{}, fmt.Errorf("load sim config: %w", err)
	}
	if meta.IsDefined("listen") {
		cfg.Listen = raw.Listen
	}
	if meta.IsDefined("external_temp_c") {
		cfg.ExternalTempC = raw.ExternalTempC
	}
	if meta.IsDefined("push_interval_ms") {
		cfg.PushInterval = time.Duration(raw.PushIntervalMS) * time.Millisecond
	}
	if meta.IsDefined("reply_delay_ms") {
		cfg.ReplyDelay = time.Duration(raw.ReplyDelayMS) * time.Millisecond
	}
	cfg.OverTemp = raw.OverTemp
	cfg.PressureFault = raw.PressureFault
	cfg.VoltageFault = raw.VoltageFault
	cfg.AirflowBlocked = raw.AirflowBlocked
	return cfg, nil
}
