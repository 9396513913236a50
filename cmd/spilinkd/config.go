package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/spilink/internal/bridge"
	"github.com/danmuck/spilink/internal/config"
)

// fileConfig is the host-local override file. Only keys present in the file
// are applied over the bridge config.
type fileConfig struct {
	Heartbeat    string   `toml:"heartbeat"`
	Platform     string   `toml:"platform"`
	Name         string   `toml:"name"`
	HandshakePin int      `toml:"handshake_pin"`
	SettleDelay  string   `toml:"settle_delay"`
	MaxQueued    int      `toml:"max_queued_frames"`
	SpeedHz      int      `toml:"speed_hz"`
	AdminEnabled bool     `toml:"admin_enabled"`
	AdminAddr    string   `toml:"admin_addr"`
	AdminToken   string   `toml:"admin_token"`
	CorsOrigins  []string `toml:"cors_origins"`
}

func loadServiceConfig(bridgePath, overridePath string) (bridge.ServiceConfig, error) {
	cfg := bridge.DefaultServiceConfig()
	if strings.TrimSpace(bridgePath) != "" {
		bc, err := config.Load(bridgePath)
		if err != nil {
			return bridge.ServiceConfig{}, err
		}
		cfg.Bridge = bc
	}
	if strings.TrimSpace(overridePath) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(overridePath, &raw)
	if err != nil {
		return bridge.ServiceConfig{}, fmt.Errorf("load override config: %w", err)
	}

	if meta.IsDefined("heartbeat") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Heartbeat))
		if err != nil {
			return bridge.ServiceConfig{}, fmt.Errorf("parse heartbeat: %w", err)
		}
		cfg.HeartbeatInterval = d
	}
	if meta.IsDefined("platform") {
		cfg.Bridge.Transport.Platform = strings.ToLower(strings.TrimSpace(raw.Platform))
	}
	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Bridge.Transport.Name = name
		}
	}
	if meta.IsDefined("handshake_pin") {
		cfg.Bridge.Handshake.Pin = raw.HandshakePin
	}
	if meta.IsDefined("settle_delay") {
		cfg.Bridge.Transport.SettleDelay = strings.TrimSpace(raw.SettleDelay)
	}
	if meta.IsDefined("max_queued_frames") {
		cfg.Bridge.Transport.MaxQueuedFrames = raw.MaxQueued
	}
	if meta.IsDefined("speed_hz") {
		cfg.Bridge.Device.SpeedHz = raw.SpeedHz
	}
	if meta.IsDefined("admin_enabled") {
		cfg.Bridge.Admin.Enabled = raw.AdminEnabled
	}
	if meta.IsDefined("admin_addr") {
		cfg.Bridge.Admin.Addr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		cfg.Bridge.Admin.Token = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("cors_origins") {
		cfg.Bridge.Admin.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}

	if err := config.Validate(cfg.Bridge); err != nil {
		return bridge.ServiceConfig{}, fmt.Errorf("override config: %w", err)
	}
	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		if v := strings.TrimSpace(o); v != "" {
			out = append(out, v)
		}
	}
	return out
}
