package hal

import "io"

// Device is one exclusively owned full-duplex bus endpoint.
type Device interface {
	// Exchange clocks len(tx) bytes out while filling rx. tx and rx must be
	// the same length. The call is synchronous and not cancellable.
	Exchange(tx, rx []byte) error

	Close() error
}

// Line is a handshake input the peer raises when it is ready for the next
// exchange.
type Line interface {
	// Input configures the line direction.
	Input() error

	// OnRisingEdge registers fn for rising transitions. fn runs on the
	// platform's notifier goroutine and must not block. Closing the returned
	// handle unregisters fn and waits for any call in progress.
	OnRisingEdge(fn func()) (io.Closer, error)

	Close() error
}

// Platform hands out the physical resources a transport binds at init.
type Platform interface {
	OpenDevice(cfg DeviceConfig) (Device, error)
	RequestLine(pin int, label string) (Line, error)
}

// SPI modes (CPOL<<1 | CPHA).
const (
	Mode0 uint8 = 0
	Mode1 uint8 = 1
	Mode2 uint8 = 2
	Mode3 uint8 = 3
)

// DeviceConfig describes the bus endpoint to bind.
type DeviceConfig struct {
	// Path overrides the device node derived from Bus and ChipSelect.
	Path        string
	Bus         int
	ChipSelect  int
	Mode        uint8
	BitsPerWord uint8
	SpeedHz     uint32
	Alias       string
}

// DefaultDeviceConfig matches the co-processor's SPI slave setup.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Bus:         0,
		ChipSelect:  0,
		Mode:        Mode3,
		BitsPerWord: 8,
		SpeedHz:     10_000_000,
		Alias:       "esp_spi",
	}
}
