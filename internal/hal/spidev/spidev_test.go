package spidev

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/danmuck/spilink/internal/hal"
	"github.com/danmuck/spilink/internal/testutil/testlog"
)

func TestDevicePathDerivation(t *testing.T) {
	testlog.Start(t)
	var p Platform
	cfg := hal.DefaultDeviceConfig()
	if got := p.DevicePath(cfg); got != "/dev/spidev0.0" {
		t.Fatalf("unexpected default path: %s", got)
	}
	cfg.Bus, cfg.ChipSelect = 1, 2
	if got := p.DevicePath(cfg); got != "/dev/spidev1.2" {
		t.Fatalf("unexpected path: %s", got)
	}
	cfg.Path = "/dev/custom"
	if got := p.DevicePath(cfg); got != "/dev/custom" {
		t.Fatalf("explicit path should win: %s", got)
	}

	q := Platform{DevRoot: "/tmp/dev", SysfsGPIO: "/tmp/gpio"}
	if got := q.DevicePath(hal.DefaultDeviceConfig()); got != filepath.Join("/tmp/dev", "spidev0.0") {
		t.Fatalf("dev root not honored: %s", got)
	}
	if got := q.linePath(17); got != filepath.Join("/tmp/gpio", "gpio17") {
		t.Fatalf("sysfs root not honored: %s", got)
	}
}

func TestValidBuffers(t *testing.T) {
	testlog.Start(t)
	if err := validBuffers(make([]byte, 4), make([]byte, 4)); err != nil {
		t.Fatalf("equal buffers rejected: %v", err)
	}
	if err := validBuffers(nil, nil); !errors.Is(err, ErrBadBuffers) {
		t.Fatalf("expected ErrBadBuffers for empty, got %v", err)
	}
	if err := validBuffers(make([]byte, 4), make([]byte, 5)); !errors.Is(err, ErrBadBuffers) {
		t.Fatalf("expected ErrBadBuffers for mismatch, got %v", err)
	}
}
