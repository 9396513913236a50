package config

import (
	"strings"
	"time"

	"github.com/danmuck/spilink/internal/hal"
	"github.com/danmuck/spilink/internal/hal/halfake"
	"github.com/danmuck/spilink/internal/hal/spidev"
	"github.com/danmuck/spilink/internal/transport"
)

func (c BridgeConfig) DeviceConfig() hal.DeviceConfig {
	return hal.DeviceConfig{
		Path:        c.Device.Path,
		Bus:         c.Device.Bus,
		ChipSelect:  c.Device.ChipSelect,
		Mode:        uint8(c.Device.Mode),
		BitsPerWord: uint8(c.Device.BitsPerWord),
		SpeedHz:     uint32(c.Device.SpeedHz),
		Alias:       c.Device.Alias,
	}
}

func (c BridgeConfig) IsLoopback() bool {
	return strings.EqualFold(strings.TrimSpace(c.Transport.Platform), PlatformLoopback)
}

// PulseInterval is how often the loopback line is raised.
func (c BridgeConfig) PulseInterval() time.Duration {
	d, _ := parseDuration(c.Handshake.PulseInterval)
	return d
}

// NewPlatform builds the hal.Platform named by transport.platform.
func (c BridgeConfig) NewPlatform() hal.Platform {
	if c.IsLoopback() {
		return halfake.NewLoopback()
	}
	return &spidev.Platform{
		DevRoot:   c.Transport.DevRoot,
		SysfsGPIO: c.Transport.SysfsGPIO,
	}
}

// TransportOptions maps the file onto transport.Options for platform.
func (c BridgeConfig) TransportOptions(platform hal.Platform) transport.Options {
	opts := transport.DefaultOptions()
	opts.Name = c.Transport.Name
	opts.Platform = platform
	opts.Device = c.DeviceConfig()
	opts.HandshakePin = c.Handshake.Pin
	opts.HandshakeLabel = c.Handshake.Label
	opts.SettleDelay, _ = parseDuration(c.Transport.SettleDelay)
	opts.MaxQueuedFrames = c.Transport.MaxQueuedFrames
	return opts
}
