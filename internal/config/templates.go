package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", PlatformSpidev:
		return spidevTemplate, nil
	case PlatformLoopback:
		return loopbackTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const spidevTemplate = `[device]
bus = 0
chip_select = 0
mode = 3
bits_per_word = 8
speed_hz = 10000000
alias = "esp_spi"

[handshake]
pin = 17
label = "SPI_HANDSHAKE_PIN"

[transport]
name = "spi0"
platform = "spidev"
settle_delay = "200ms"
max_queued_frames = 256

[admin]
enabled = true
addr = ":9200"
cors_origins = ["http://localhost:3000"]
`

const loopbackTemplate = `[handshake]
pulse_interval = "50ms"

[transport]
name = "loop0"
platform = "loopback"
settle_delay = "0s"

[admin]
enabled = true
addr = "127.0.0.1:9200"
`
