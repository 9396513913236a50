package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/spilink/internal/hal"
	"github.com/danmuck/spilink/internal/observability"
	"github.com/danmuck/spilink/internal/protocol/frame"
	"github.com/danmuck/spilink/internal/protocol/queue"
)

var errNotBound = errors.New("transport: no device bound")

type binding struct {
	device  hal.Device
	adapter Adapter
	tx      *queue.Queue
	rx      *queue.Queue
}

func (c *Context) binding() (binding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateRunning && c.state != StateInitializing {
		return binding{}, false
	}
	if c.device == nil || c.tx == nil || c.rx == nil {
		return binding{}, false
	}
	return binding{device: c.device, adapter: c.adapter, tx: c.tx, rx: c.rx}, true
}

// schedule runs one transaction per readiness activation until ctx ends.
func (c *Context) schedule(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ready.C():
			if ctx.Err() != nil {
				return
			}
			if err := c.transact(); errors.Is(err, errNotBound) {
				c.logger.Debug().Msg("activation_before_device_bound")
			}
		}
	}
}

// RunOnce performs a single transaction outside the readiness path. The
// returned error describes the frame-scoped outcome only; the transport
// keeps running regardless.
func (c *Context) RunOnce() error {
	if st := c.State(); st != StateRunning {
		return fmt.Errorf("%w: transport %s", ErrInvalidArgument, st)
	}
	return c.transact()
}

// transact runs one exchange and then notifies the adapter once the
// transaction lock is released.
func (c *Context) transact() error {
	notify, err := c.exchange()
	if notify != nil {
		notify.NotifyNewData()
	}
	return err
}

// exchange performs steps up to and including the receive enqueue under
// txMu. It returns the adapter to notify when a frame was delivered.
func (c *Context) exchange() (Adapter, error) {
	c.txMu.Lock()
	defer c.txMu.Unlock()

	b, ok := c.binding()
	if !ok {
		return nil, errNotBound
	}

	txFrame, hasTx := b.tx.PopFront()
	txBuf := make([]byte, frame.MaxFrameSize)
	if hasTx {
		copy(txBuf, txFrame.Bytes())
	}
	rxBuf := make([]byte, frame.MaxFrameSize)

	start := time.Now()
	xerr := b.device.Exchange(txBuf, rxBuf)
	observability.RecordTransaction(c.opts.Name, xerr, time.Since(start))
	c.stats.transactions.Add(1)

	var out error
	if xerr != nil {
		c.stats.transactionFailures.Add(1)
		out = fmt.Errorf("%w: %w", ErrTransactionFailure, xerr)
		c.logger.Warn().Err(xerr).Bool("had_tx", hasTx).Msg("spi_transaction_failed")
	}
	if hasTx {
		c.stats.framesSent.Add(1)
		outcome := observability.OutcomeDelivered
		if xerr != nil {
			outcome = observability.OutcomeDiscarded
		}
		observability.RecordFrame(c.opts.Name, observability.DirectionTX, outcome)
		observability.SetQueueDepth(c.opts.Name, observability.DirectionTX, b.tx.Len())
	}

	rxFrame, derr := frame.Decode(rxBuf)
	if derr != nil {
		c.stats.framesRejected.Add(1)
		observability.RecordFrame(c.opts.Name, observability.DirectionRX, observability.OutcomeRejected)
		if idle(rxBuf) {
			c.logger.Trace().Msg("rx_idle")
		} else {
			c.logger.Debug().Err(derr).Msg("rx_frame_rejected")
		}
		if out == nil {
			out = derr
		}
		return nil, out
	}

	if err := b.rx.PushBack(rxFrame); err != nil {
		c.stats.framesDropped.Add(1)
		observability.RecordFrame(c.opts.Name, observability.DirectionRX, observability.OutcomeDiscarded)
		c.logger.Warn().Err(err).Int("len", int(rxFrame.Header.Length)).Msg("rx_frame_dropped")
		if out == nil {
			out = fmt.Errorf("%w: %w", ErrAllocationFailure, err)
		}
		return nil, out
	}
	c.stats.framesReceived.Add(1)
	observability.RecordFrame(c.opts.Name, observability.DirectionRX, observability.OutcomeDelivered)
	observability.SetQueueDepth(c.opts.Name, observability.DirectionRX, b.rx.Len())
	return b.adapter, out
}

// idle reports an all-zero header, which is what the peer clocks out when it
// has nothing to send.
func idle(raw []byte) bool {
	h, err := frame.DecodeHeader(raw)
	return err == nil && h.Offset == 0 && h.Length == 0
}
