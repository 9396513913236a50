// Package halfake is an in-memory hal.Platform: a scripted peer for tests and
// a wire loopback for running without hardware.
package halfake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/spilink/internal/hal"
)

var ErrLengthMismatch = errors.New("halfake: tx/rx length mismatch")

// Platform hands out one Device and one Line. Set the *Err fields to make
// the matching acquisition step fail.
type Platform struct {
	OpenErr  error
	LineErr  error
	InputErr error
	EdgeErr  error

	Dev  *Device
	Line *Line

	mu     sync.Mutex
	events []string
}

func New() *Platform {
	p := &Platform{}
	p.Dev = &Device{platform: p, entered: make(chan struct{}, 64)}
	p.Line = &Line{platform: p, handlers: make(map[int]func())}
	return p
}

// NewLoopback returns a platform whose device echoes every transmitted
// buffer back, as with MOSI tied to MISO.
func NewLoopback() *Platform {
	p := New()
	p.Dev.Loopback = true
	return p
}

var _ hal.Platform = (*Platform)(nil)

func (p *Platform) OpenDevice(cfg hal.DeviceConfig) (hal.Device, error) {
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	p.Dev.mu.Lock()
	p.Dev.cfg = cfg
	p.Dev.closed = false
	p.Dev.mu.Unlock()
	p.record("device.open")
	return p.Dev, nil
}

func (p *Platform) RequestLine(pin int, label string) (hal.Line, error) {
	if p.LineErr != nil {
		return nil, p.LineErr
	}
	p.Line.mu.Lock()
	p.Line.pin = pin
	p.Line.label = label
	p.Line.closed = false
	p.Line.mu.Unlock()
	p.record("line.request")
	return p.Line, nil
}

// Events lists acquisitions and releases in the order they happened.
func (p *Platform) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *Platform) record(ev string) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

// Device is a scripted duplex endpoint.
type Device struct {
	// Loopback copies tx into rx when no scripted response is queued.
	Loopback bool

	platform *Platform

	mu        sync.Mutex
	cfg       hal.DeviceConfig
	responses [][]byte
	failures  []error
	sent      [][]byte
	closed    bool
	gate      chan struct{}

	entered     chan struct{}
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	exchanges   atomic.Int64
}

var _ hal.Device = (*Device)(nil)

// QueueResponse scripts the bytes the peer clocks out on a later exchange.
func (d *Device) QueueResponse(raw []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses = append(d.responses, append([]byte(nil), raw...))
}

// QueueError makes a later exchange report err. Scripted responses are still
// delivered into rx on that exchange.
func (d *Device) QueueError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, err)
}

// Hold makes subsequent exchanges block until release is called.
func (d *Device) Hold() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.gate == gate {
				d.gate = nil
			}
			d.mu.Unlock()
			close(gate)
		})
	}
}

// Entered receives one value per exchange that has started.
func (d *Device) Entered() <-chan struct{} {
	return d.entered
}

func (d *Device) Exchange(tx, rx []byte) error {
	cur := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		max := d.maxInFlight.Load()
		if cur <= max || d.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}

	select {
	case d.entered <- struct{}{}:
	default:
	}

	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	if len(tx) != len(rx) {
		return fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(tx), len(rx))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.exchanges.Add(1)
	d.sent = append(d.sent, append([]byte(nil), tx...))

	if len(d.responses) > 0 {
		copy(rx, d.responses[0])
		d.responses = d.responses[1:]
	} else if d.Loopback {
		copy(rx, tx)
	}

	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		return err
	}
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.platform.record("device.close")
	return nil
}

// Sent returns copies of every transmitted buffer.
func (d *Device) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.sent))
	copy(out, d.sent)
	return out
}

func (d *Device) Exchanges() int {
	return int(d.exchanges.Load())
}

// MaxInFlight is the highest number of overlapping Exchange calls observed.
func (d *Device) MaxInFlight() int {
	return int(d.maxInFlight.Load())
}

func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) Config() hal.DeviceConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Line is a software handshake input. Edge simulates a rising transition.
type Line struct {
	platform *Platform

	mu       sync.RWMutex
	pin      int
	label    string
	input    bool
	closed   bool
	handlers map[int]func()
	nextID   int
}

var _ hal.Line = (*Line)(nil)

func (l *Line) Input() error {
	if l.platform.InputErr != nil {
		return l.platform.InputErr
	}
	l.mu.Lock()
	l.input = true
	l.mu.Unlock()
	return nil
}

func (l *Line) OnRisingEdge(fn func()) (io.Closer, error) {
	if l.platform.EdgeErr != nil {
		return nil, l.platform.EdgeErr
	}
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = fn
	l.mu.Unlock()
	l.platform.record("edge.register")
	return closerFunc(func() error {
		l.mu.Lock()
		_, ok := l.handlers[id]
		delete(l.handlers, id)
		l.mu.Unlock()
		if ok {
			l.platform.record("edge.unregister")
		}
		return nil
	}), nil
}

// Edge delivers one rising transition to every registered handler.
func (l *Line) Edge() {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, fn := range l.handlers {
		fn()
	}
}

// Pulse raises an edge every interval until ctx is done.
func (l *Line) Pulse(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Edge()
		}
	}
}

func (l *Line) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.platform.record("line.close")
	return nil
}

func (l *Line) Closed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

func (l *Line) IsInput() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.input
}

func (l *Line) Label() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.label
}

// Handlers reports how many edge handlers are registered.
func (l *Line) Handlers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
