package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/danmuck/spilink/internal/hal/halfake"
	"github.com/danmuck/spilink/internal/hal/spidev"
	"github.com/danmuck/spilink/internal/testutil/testlog"
	"github.com/danmuck/spilink/internal/transport"
)

func TestDefaultIsValid(t *testing.T) {
	testlog.Start(t)
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := Parse([]byte(`
[device]
chip_select = 1
speed_hz = 5000000

[transport]
settle_delay = "0s"
max_queued_frames = 8
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Device.ChipSelect != 1 || cfg.Device.SpeedHz != 5_000_000 {
		t.Fatalf("device overrides not applied: %+v", cfg.Device)
	}
	if cfg.Device.Mode != 3 || cfg.Device.Alias != "esp_spi" {
		t.Fatalf("device defaults lost: %+v", cfg.Device)
	}
	if cfg.Handshake.Label != transport.DefaultHandshakeLabel {
		t.Fatalf("handshake default lost: %+v", cfg.Handshake)
	}

	opts := cfg.TransportOptions(halfake.New())
	if opts.SettleDelay != 0 || opts.MaxQueuedFrames != 8 {
		t.Fatalf("unexpected transport options: %+v", opts)
	}
	if opts.Device.ChipSelect != 1 || opts.Device.SpeedHz != 5_000_000 || opts.Device.Mode != 3 {
		t.Fatalf("unexpected device config: %+v", opts.Device)
	}
}

func TestDefaultSettleDelay(t *testing.T) {
	testlog.Start(t)
	opts := Default().TransportOptions(nil)
	if opts.SettleDelay != 200*time.Millisecond {
		t.Fatalf("unexpected settle delay: %s", opts.SettleDelay)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	if _, err := Parse([]byte("[device]\nspeed = 1\n")); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	cfg.Device.Mode = 4
	cfg.Device.SpeedHz = 0
	cfg.Transport.Platform = "usb"
	cfg.Transport.SettleDelay = "-1s"
	cfg.Admin.Addr = ""

	err := Validate(cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 5 {
		t.Fatalf("expected 5 problems, got %v", err)
	}
}

func TestValidateRejectsSpeedBeyondUint32(t *testing.T) {
	testlog.Start(t)
	if strconv.IntSize < 64 {
		t.Skip("int cannot hold speeds above uint32")
	}
	limit := int64(math.MaxUint32)
	cfg := Default()
	cfg.Device.SpeedHz = int(limit)
	if err := Validate(cfg); err != nil {
		t.Fatalf("max uint32 speed should be accepted: %v", err)
	}
	cfg.Device.SpeedHz = int(limit + 1)
	if err := Validate(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for speed overflow, got %v", err)
	}
	if _, err := Parse([]byte("[device]\nspeed_hz = 4294967296\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected parse to reject speed overflow, got %v", err)
	}
}

func TestNewPlatformSelection(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	if _, ok := cfg.NewPlatform().(*spidev.Platform); !ok {
		t.Fatalf("default platform should be spidev")
	}
	cfg.Transport.Platform = "Loopback"
	if !cfg.IsLoopback() {
		t.Fatalf("platform match should ignore case")
	}
	if _, ok := cfg.NewPlatform().(*halfake.Platform); !ok {
		t.Fatalf("loopback platform expected")
	}
}

func TestTemplatesParse(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []string{PlatformSpidev, PlatformLoopback} {
		tpl, err := Template(kind)
		if err != nil {
			t.Fatalf("template %s: %v", kind, err)
		}
		if _, err := Parse([]byte(tpl)); err != nil {
			t.Fatalf("template %s does not parse: %v", kind, err)
		}
	}
	if _, err := Template("ghost"); err == nil {
		t.Fatalf("expected unknown template kind to fail")
	}
}

func TestWriteTemplateAndLoad(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "spilink.toml")
	if err := WriteTemplate(path, PlatformLoopback, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteTemplate(path, PlatformLoopback, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsLoopback() || cfg.Transport.Name != "loop0" || cfg.PulseInterval() != 50*time.Millisecond {
		t.Fatalf("unexpected loaded config: %+v", cfg)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
