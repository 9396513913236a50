package transport

// Readiness turns handshake edges into scheduler activations. It holds at
// most one pending activation; edges arriving while one is pending are
// coalesced into it.
type Readiness struct {
	ch     chan struct{}
	onEdge func(coalesced bool)
}

func NewReadiness(onEdge func(coalesced bool)) *Readiness {
	return &Readiness{ch: make(chan struct{}, 1), onEdge: onEdge}
}

// Notify never blocks and performs no I/O. It reports whether a new
// activation was queued.
func (r *Readiness) Notify() bool {
	queued := false
	select {
	case r.ch <- struct{}{}:
		queued = true
	default:
	}
	if r.onEdge != nil {
		r.onEdge(!queued)
	}
	return queued
}

func (r *Readiness) C() <-chan struct{} {
	return r.ch
}

func (r *Readiness) Pending() bool {
	return len(r.ch) > 0
}

// Reset drops a pending activation, if any.
func (r *Readiness) Reset() {
	select {
	case <-r.ch:
	default:
	}
}
