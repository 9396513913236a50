package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/danmuck/spilink/internal/hal"
	"github.com/danmuck/spilink/internal/transport"
	"github.com/pelletier/go-toml/v2"
)

const (
	PlatformSpidev   = "spidev"
	PlatformLoopback = "loopback"
)

var ErrInvalidConfig = errors.New("config: invalid")

// BridgeConfig is the daemon file. Keys left out keep their Default values.
type BridgeConfig struct {
	Device    DeviceConfig    `toml:"device"`
	Handshake HandshakeConfig `toml:"handshake"`
	Transport TransportConfig `toml:"transport"`
	Admin     AdminConfig     `toml:"admin"`
}

type DeviceConfig struct {
	Path        string `toml:"path"`
	Bus         int    `toml:"bus"`
	ChipSelect  int    `toml:"chip_select"`
	Mode        int    `toml:"mode"`
	BitsPerWord int    `toml:"bits_per_word"`
	SpeedHz     int    `toml:"speed_hz"`
	Alias       string `toml:"alias"`
}

type HandshakeConfig struct {
	Pin   int    `toml:"pin"`
	Label string `toml:"label"`
	// PulseInterval drives the loopback platform's handshake line.
	PulseInterval string `toml:"pulse_interval"`
}

type TransportConfig struct {
	Name            string `toml:"name"`
	Platform        string `toml:"platform"`
	SettleDelay     string `toml:"settle_delay"`
	MaxQueuedFrames int    `toml:"max_queued_frames"`
	DevRoot         string `toml:"dev_root"`
	SysfsGPIO       string `toml:"sysfs_gpio"`
}

type AdminConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	// Token, when set, is required as a bearer token on frame routes.
	Token string `toml:"token"`
}

func Default() BridgeConfig {
	dev := hal.DefaultDeviceConfig()
	return BridgeConfig{
		Device: DeviceConfig{
			Bus:         dev.Bus,
			ChipSelect:  dev.ChipSelect,
			Mode:        int(dev.Mode),
			BitsPerWord: int(dev.BitsPerWord),
			SpeedHz:     int(dev.SpeedHz),
			Alias:       dev.Alias,
		},
		Handshake: HandshakeConfig{
			Pin:           17,
			Label:         transport.DefaultHandshakeLabel,
			PulseInterval: "50ms",
		},
		Transport: TransportConfig{
			Name:        "spi0",
			Platform:    PlatformSpidev,
			SettleDelay: transport.DefaultSettleDelay.String(),
		},
		Admin: AdminConfig{
			Enabled: true,
			Addr:    ":9200",
		},
	}
}

func Load(path string) (BridgeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BridgeConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return BridgeConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over Default and validates the result. Unknown keys are
// rejected.
func Parse(data []byte) (BridgeConfig, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return BridgeConfig{}, fmt.Errorf("config parse failed: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return BridgeConfig{}, err
	}
	return cfg, nil
}

func Validate(cfg BridgeConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	d := cfg.Device
	if d.Bus < 0 || d.ChipSelect < 0 {
		add("device bus/chip_select must be >= 0")
	}
	if d.Mode < int(hal.Mode0) || d.Mode > int(hal.Mode3) {
		add("device mode %d out of range 0-3", d.Mode)
	}
	if d.BitsPerWord < 1 || d.BitsPerWord > 32 {
		add("device bits_per_word %d out of range 1-32", d.BitsPerWord)
	}
	if d.SpeedHz <= 0 || int64(d.SpeedHz) > math.MaxUint32 {
		add("device speed_hz %d out of range 1-%d", d.SpeedHz, uint64(math.MaxUint32))
	}

	if cfg.Handshake.Pin < 0 {
		add("handshake pin must be >= 0")
	}
	if strings.TrimSpace(cfg.Handshake.Label) == "" {
		add("handshake label is required")
	}
	if _, err := parseDuration(cfg.Handshake.PulseInterval); err != nil {
		add("handshake pulse_interval: %v", err)
	}

	t := cfg.Transport
	if strings.TrimSpace(t.Name) == "" {
		add("transport name is required")
	}
	switch strings.ToLower(strings.TrimSpace(t.Platform)) {
	case PlatformSpidev, PlatformLoopback:
	default:
		add("transport platform %q must be %s or %s", t.Platform, PlatformSpidev, PlatformLoopback)
	}
	if _, err := parseDuration(t.SettleDelay); err != nil {
		add("transport settle_delay: %v", err)
	}
	if t.MaxQueuedFrames < 0 {
		add("transport max_queued_frames must be >= 0")
	}

	if cfg.Admin.Enabled && strings.TrimSpace(cfg.Admin.Addr) == "" {
		add("admin addr is required when admin is enabled")
	}
	return errors.Join(errs...)
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
