//go:build !linux

package spidev

import "github.com/danmuck/spilink/internal/hal"

func (p *Platform) OpenDevice(cfg hal.DeviceConfig) (hal.Device, error) {
	return nil, ErrUnsupported
}

func (p *Platform) RequestLine(pin int, label string) (hal.Line, error) {
	return nil, ErrUnsupported
}
