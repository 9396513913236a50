package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/spilink/internal/hal"
	"github.com/danmuck/spilink/internal/hooks"
	"github.com/danmuck/spilink/internal/observability"
	"github.com/danmuck/spilink/internal/protocol/frame"
	"github.com/danmuck/spilink/internal/protocol/queue"
	"github.com/rs/zerolog"
)

const (
	DefaultHandshakeLabel = "SPI_HANDSHAKE_PIN"
	DefaultSettleDelay    = 200 * time.Millisecond
)

// State is the lifecycle phase of a Context.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Adapter is the upper layer that consumes delivered frames. NotifyNewData
// runs after the transaction lock is released, on the scheduler goroutine
// or the RunOnce caller. It may call Receive, Submit, Signal and RunOnce but
// must not call Teardown.
type Adapter interface {
	NotifyNewData()
}

// AdapterFunc adapts a plain function into an Adapter.
type AdapterFunc func()

func (f AdapterFunc) NotifyNewData() { f() }

// Ops is the packet interface a transport exposes upward.
type Ops interface {
	Submit(payload []byte) error
	Receive() (frame.Frame, bool)
}

// Options configures one transport instance.
type Options struct {
	// Name labels logs and metrics.
	Name           string
	Platform       hal.Platform
	Device         hal.DeviceConfig
	HandshakePin   int
	HandshakeLabel string
	// SettleDelay is waited twice during Init while the peer boots.
	SettleDelay time.Duration
	// MaxQueuedFrames caps each queue. Zero leaves them unbounded.
	MaxQueuedFrames int
	Hooks           *hooks.Registry
	Logger          *zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		Name:           "spi0",
		Device:         hal.DefaultDeviceConfig(),
		HandshakeLabel: DefaultHandshakeLabel,
		SettleDelay:    DefaultSettleDelay,
	}
}

// Stats is a point-in-time view of a Context.
type Stats struct {
	State               State
	TXDepth             int
	RXDepth             int
	Transactions        uint64
	TransactionFailures uint64
	FramesSent          uint64
	FramesReceived      uint64
	FramesRejected      uint64
	FramesDropped       uint64
	EdgesQueued         uint64
	EdgesCoalesced      uint64
}

type counters struct {
	transactions        atomic.Uint64
	transactionFailures atomic.Uint64
	framesSent          atomic.Uint64
	framesReceived      atomic.Uint64
	framesRejected      atomic.Uint64
	framesDropped       atomic.Uint64
	edgesQueued         atomic.Uint64
	edgesCoalesced      atomic.Uint64
}

// Context owns one running transport: device, handshake line, queues,
// scheduler and adapter binding.
type Context struct {
	opts   Options
	logger zerolog.Logger
	ready  *Readiness
	stats  counters

	// txMu serializes duplex transactions.
	txMu sync.Mutex

	mu         sync.RWMutex
	state      State
	adapter    Adapter
	device     hal.Device
	line       hal.Line
	edge       io.Closer
	tx         *queue.Queue
	rx         *queue.Queue
	cancel     context.CancelFunc
	done       chan struct{}
	subsystems []hooks.Subsystem

	// set while Init runs so Teardown can interrupt it
	initCancel context.CancelFunc
	initDone   chan struct{}
}

var _ Ops = (*Context)(nil)

func New(opts Options) *Context {
	if strings.TrimSpace(opts.Name) == "" {
		opts.Name = "spi0"
	}
	if strings.TrimSpace(opts.HandshakeLabel) == "" {
		opts.HandshakeLabel = DefaultHandshakeLabel
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	logger := observability.Component("transport")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	c := &Context{
		opts:   opts,
		logger: logger.With().Str("link", opts.Name).Logger(),
	}
	c.ready = NewReadiness(c.recordEdge)
	return c
}

func (c *Context) Name() string {
	return c.opts.Name
}

func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Init binds adapter and acquires every resource the transport needs. Any
// failure releases what was acquired and leaves the Context uninitialized.
func (c *Context) Init(ctx context.Context, adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("%w: nil adapter", ErrInvalidArgument)
	}
	if c.opts.Platform == nil {
		return fmt.Errorf("%w: nil platform", ErrInvalidArgument)
	}

	c.mu.Lock()
	if c.state == StateInitializing || c.state == StateRunning {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: transport already %s", ErrInvalidArgument, st)
	}
	c.clearLocked()
	ictx, icancel := context.WithCancel(ctx)
	defer icancel()
	initDone := make(chan struct{})
	defer close(initDone)
	c.state = StateInitializing
	c.adapter = adapter
	c.initCancel = icancel
	c.initDone = initDone
	c.mu.Unlock()

	err := c.acquire(ictx)
	c.mu.Lock()
	if err == nil && ictx.Err() != nil {
		err = fmt.Errorf("%w: init interrupted: %w", ErrResourceAcquisition, ictx.Err())
	}
	if err == nil {
		c.state = StateRunning
		c.initCancel = nil
		c.initDone = nil
		c.mu.Unlock()
		c.logger.Info().Msg("transport_running")
		return nil
	}
	c.mu.Unlock()

	c.release(StateUninitialized)
	c.mu.Lock()
	c.initCancel = nil
	c.initDone = nil
	c.mu.Unlock()
	c.logger.Error().Err(err).Msg("transport_init_failed")
	return err
}

func (c *Context) acquire(ctx context.Context) error {
	c.ready.Reset()
	schedCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.tx = queue.New(c.opts.MaxQueuedFrames)
	c.rx = queue.New(c.opts.MaxQueuedFrames)
	c.mu.Unlock()
	go c.schedule(schedCtx, done)

	dev, err := c.opts.Platform.OpenDevice(c.opts.Device)
	if err != nil {
		return fmt.Errorf("%w: open device: %w", ErrResourceAcquisition, err)
	}
	c.mu.Lock()
	c.device = dev
	c.mu.Unlock()
	c.logger.Info().
		Int("bus", c.opts.Device.Bus).
		Int("chip_select", c.opts.Device.ChipSelect).
		Uint32("speed_hz", c.opts.Device.SpeedHz).
		Msg("device_registered")

	line, err := c.opts.Platform.RequestLine(c.opts.HandshakePin, c.opts.HandshakeLabel)
	if err != nil {
		return fmt.Errorf("%w: request handshake line %d: %w", ErrResourceAcquisition, c.opts.HandshakePin, err)
	}
	c.mu.Lock()
	c.line = line
	c.mu.Unlock()
	if err := line.Input(); err != nil {
		return fmt.Errorf("%w: handshake line direction: %w", ErrResourceAcquisition, err)
	}

	edge, err := line.OnRisingEdge(func() { c.ready.Notify() })
	if err != nil {
		return fmt.Errorf("%w: handshake edge: %w", ErrResourceAcquisition, err)
	}
	c.mu.Lock()
	c.edge = edge
	c.mu.Unlock()

	if err := settle(ctx, c.opts.SettleDelay); err != nil {
		return err
	}

	subs, err := hooks.Setup(ctx, c.opts.Hooks.All(), c.logger)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.subsystems = subs
	c.mu.Unlock()

	return settle(ctx, c.opts.SettleDelay)
}

// Teardown stops the scheduler, discards queued frames and releases every
// resource. It is safe to call repeatedly. An Init in progress is cancelled
// and Teardown returns once it has rolled back.
func (c *Context) Teardown() {
	c.mu.Lock()
	if c.initDone != nil {
		// cancel under mu so Init cannot move to running afterwards
		c.initCancel()
		done := c.initDone
		c.mu.Unlock()
		<-done
		c.logger.Info().Msg("transport_init_aborted")
		return
	}
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateStopped
	c.mu.Unlock()
	c.release(StateStopped)
	c.logger.Info().Msg("transport_stopped")
}

func (c *Context) release(final State) {
	c.mu.Lock()
	c.state = final
	edge := c.edge
	cancel := c.cancel
	done := c.done
	c.edge = nil
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if edge != nil {
		if err := edge.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("handshake_edge_release_failed")
		}
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	// wait out a RunOnce caller that got in before the state change
	c.txMu.Lock()
	c.txMu.Unlock()
	c.ready.Reset()

	c.mu.Lock()
	if c.tx != nil {
		n := c.tx.Drain()
		observability.RecordFrames(c.opts.Name, observability.DirectionTX, observability.OutcomeDiscarded, n)
		c.stats.framesDropped.Add(uint64(n))
	}
	if c.rx != nil {
		n := c.rx.Drain()
		observability.RecordFrames(c.opts.Name, observability.DirectionRX, observability.OutcomeDiscarded, n)
		c.stats.framesDropped.Add(uint64(n))
	}
	subs, line, dev := c.subsystems, c.line, c.device
	c.clearLocked()
	c.state = final
	c.mu.Unlock()

	hooks.Cleanup(subs, c.logger)
	if line != nil {
		if err := line.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("handshake_line_release_failed")
		}
	}
	if dev != nil {
		if err := dev.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("device_release_failed")
		}
	}
	observability.SetQueueDepth(c.opts.Name, observability.DirectionTX, 0)
	observability.SetQueueDepth(c.opts.Name, observability.DirectionRX, 0)
}

func (c *Context) clearLocked() {
	c.adapter = nil
	c.device = nil
	c.line = nil
	c.edge = nil
	c.tx = nil
	c.rx = nil
	c.cancel = nil
	c.done = nil
	c.subsystems = nil
}

// Submit frames payload and queues it for the next transaction.
func (c *Context) Submit(payload []byte) error {
	f, err := frame.Encode(payload)
	if err != nil {
		if errors.Is(err, frame.ErrEmptyPayload) {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateRunning {
		return fmt.Errorf("%w: transport %s", ErrInvalidArgument, c.state)
	}
	if err := c.tx.PushBack(f); err != nil {
		return fmt.Errorf("%w: %w", ErrAllocationFailure, err)
	}
	observability.SetQueueDepth(c.opts.Name, observability.DirectionTX, c.tx.Len())
	return nil
}

// Receive pops one delivered frame without blocking.
func (c *Context) Receive() (frame.Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rx == nil {
		return frame.Frame{}, false
	}
	f, ok := c.rx.PopFront()
	if ok {
		observability.SetQueueDepth(c.opts.Name, observability.DirectionRX, c.rx.Len())
	}
	return f, ok
}

// Signal injects one readiness edge, as if the handshake line rose.
func (c *Context) Signal() {
	c.ready.Notify()
}

func (c *Context) Stats() Stats {
	c.mu.RLock()
	st := Stats{State: c.state}
	if c.tx != nil {
		st.TXDepth = c.tx.Len()
	}
	if c.rx != nil {
		st.RXDepth = c.rx.Len()
	}
	c.mu.RUnlock()

	st.Transactions = c.stats.transactions.Load()
	st.TransactionFailures = c.stats.transactionFailures.Load()
	st.FramesSent = c.stats.framesSent.Load()
	st.FramesReceived = c.stats.framesReceived.Load()
	st.FramesRejected = c.stats.framesRejected.Load()
	st.FramesDropped = c.stats.framesDropped.Load()
	st.EdgesQueued = c.stats.edgesQueued.Load()
	st.EdgesCoalesced = c.stats.edgesCoalesced.Load()
	return st
}

func (c *Context) recordEdge(coalesced bool) {
	if coalesced {
		c.stats.edgesCoalesced.Add(1)
	} else {
		c.stats.edgesQueued.Add(1)
	}
	observability.RecordEdge(c.opts.Name, coalesced)
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
