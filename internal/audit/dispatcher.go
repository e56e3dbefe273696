package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Stats is a point-in-time view of the dispatcher's accounting.
type Stats struct {
	Accepted uint64
	Dropped  uint64
}

// Dispatcher forwards audit events to a sink from a single worker goroutine,
// decoupling sink latency from the emitting call. Close drains the queue
// before returning, so every accepted fact reaches the sink on shutdown.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	mu     sync.RWMutex
	queue  chan Event
	closed bool

	accepted atomic.Uint64
	dropped  atomic.Uint64
	drained  sync.WaitGroup
}

// NewDispatcher returns nil when cfg.Enabled is false; the nil dispatcher
// accepts calls and does nothing.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, buffer),
	}

	d.drained.Add(1)
	go func() {
		defer d.drained.Done()
		for event := range d.queue {
			d.sink.Emit(context.Background(), event)
		}
	}()

	return d
}

// Emit queues one event. With DropIfFull set, a full queue discards the
// event and bumps the drop counter instead of stalling the caller; otherwise
// Emit blocks until the worker makes room or ctx expires.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// The read lock holds off Close while an emit is in flight, so the
	// queue is never closed under a pending send.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
			d.accepted.Add(1)
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
		d.accepted.Add(1)
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops accepting events and blocks until the worker has delivered
// everything already queued. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.drained.Wait()
}

// Stats reports how many events the dispatcher accepted and how many it
// discarded, whether for a full queue, an expired context, or a closed
// dispatcher.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Accepted: d.accepted.Load(),
		Dropped:  d.dropped.Load(),
	}
}

// Dropped is shorthand for Stats().Dropped.
func (d *Dispatcher) Dropped() uint64 {
	return d.Stats().Dropped
}
