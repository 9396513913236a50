// Package spidev binds hal resources to the Linux spidev character device
// and the sysfs GPIO interface.
package spidev

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danmuck/spilink/internal/hal"
)

const (
	DefaultDevRoot   = "/dev"
	DefaultSysfsGPIO = "/sys/class/gpio"
)

var (
	ErrUnsupported = errors.New("spidev: platform not supported")
	ErrClosed      = errors.New("spidev: closed")
	ErrBadBuffers  = errors.New("spidev: tx and rx must be non-empty and equal length")
)

// Platform opens spidev nodes under DevRoot and GPIO lines under SysfsGPIO.
// The zero value uses the standard locations.
type Platform struct {
	DevRoot   string
	SysfsGPIO string
}

var _ hal.Platform = (*Platform)(nil)

func (p *Platform) devRoot() string {
	if p == nil || strings.TrimSpace(p.DevRoot) == "" {
		return DefaultDevRoot
	}
	return p.DevRoot
}

func (p *Platform) sysfsGPIO() string {
	if p == nil || strings.TrimSpace(p.SysfsGPIO) == "" {
		return DefaultSysfsGPIO
	}
	return p.SysfsGPIO
}

// DevicePath resolves the node for cfg, /dev/spidev<bus>.<cs> unless
// cfg.Path is set.
func (p *Platform) DevicePath(cfg hal.DeviceConfig) string {
	if strings.TrimSpace(cfg.Path) != "" {
		return cfg.Path
	}
	return filepath.Join(p.devRoot(), fmt.Sprintf("spidev%d.%d", cfg.Bus, cfg.ChipSelect))
}

func (p *Platform) linePath(pin int) string {
	return filepath.Join(p.sysfsGPIO(), fmt.Sprintf("gpio%d", pin))
}

// ioctl request encoding. iocSizeBits and iocWrite differ per architecture
// and live in the ioc_*.go files.
const (
	iocNRBits   = 8
	iocTypeBits = 8

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	spiMagic = 'k'

	// sizeof(struct spi_ioc_transfer)
	transferSize = 32
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

var (
	reqWrMode        = ioc(iocWrite, spiMagic, 1, 1)
	reqWrBitsPerWord = ioc(iocWrite, spiMagic, 3, 1)
	reqWrMaxSpeedHz  = ioc(iocWrite, spiMagic, 4, 4)
)

// reqMessage is SPI_IOC_MESSAGE(n).
func reqMessage(n uintptr) uintptr {
	return ioc(iocWrite, spiMagic, 0, n*transferSize)
}

func validBuffers(tx, rx []byte) error {
	if len(tx) == 0 || len(tx) != len(rx) {
		return fmt.Errorf("%w: tx=%d rx=%d", ErrBadBuffers, len(tx), len(rx))
	}
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
