//go:build linux

package spidev

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/danmuck/spilink/internal/hal"
	"github.com/danmuck/spilink/internal/observability"
	"golang.org/x/sys/unix"
)

// transfer matches struct spi_ioc_transfer.
type transfer struct {
	txBuf          uint64
	rxBuf          uint64
	length         uint32
	speedHz        uint32
	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNBits        uint8
	rxNBits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

// Device is an open spidev node configured for full-duplex exchanges.
type Device struct {
	path string
	cfg  hal.DeviceConfig

	mu sync.Mutex
	fd int
}

var _ hal.Device = (*Device)(nil)

func (p *Platform) OpenDevice(cfg hal.DeviceConfig) (hal.Device, error) {
	path := p.DevicePath(cfg)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("spidev: open %s: %w", path, err)
	}
	d := &Device{path: path, cfg: cfg, fd: fd}
	if err := d.configure(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	logger := observability.Component("spidev")
	logger.Debug().
		Str("path", path).
		Str("alias", cfg.Alias).
		Uint8("mode", cfg.Mode).
		Uint32("speed_hz", cfg.SpeedHz).
		Msg("spidev_opened")
	return d, nil
}

func (d *Device) configure() error {
	mode := d.cfg.Mode
	if err := ioctl(d.fd, reqWrMode, unsafe.Pointer(&mode)); err != nil {
		return fmt.Errorf("spidev: set mode %d: %w", mode, err)
	}
	bits := d.cfg.BitsPerWord
	if bits == 0 {
		bits = 8
	}
	if err := ioctl(d.fd, reqWrBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		return fmt.Errorf("spidev: set bits per word %d: %w", bits, err)
	}
	speed := d.cfg.SpeedHz
	if speed > 0 {
		if err := ioctl(d.fd, reqWrMaxSpeedHz, unsafe.Pointer(&speed)); err != nil {
			return fmt.Errorf("spidev: set speed %d: %w", speed, err)
		}
	}
	return nil
}

func (d *Device) Exchange(tx, rx []byte) error {
	if err := validBuffers(tx, rx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return ErrClosed
	}
	xfer := transfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      uint32(len(tx)),
		speedHz:     d.cfg.SpeedHz,
		bitsPerWord: d.cfg.BitsPerWord,
	}
	err := ioctl(d.fd, reqMessage(1), unsafe.Pointer(&xfer))
	runtime.KeepAlive(tx)
	runtime.KeepAlive(rx)
	if err != nil {
		return fmt.Errorf("spidev: transfer on %s: %w", d.path, err)
	}
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
