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

// Dispatcher forwards events to a sink from a single background goroutine so
// emitters never pay the sink's latency. A nil *Dispatcher is valid and
// inert, which is how disabled auditing is represented.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	events  chan Event
	quit    chan struct{}
	drained sync.WaitGroup

	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the forwarding goroutine. It returns nil when
// auditing is disabled; every method tolerates a nil receiver.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	buf := cfg.BufferSize
	if buf <= 0 {
		buf = 1
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		events:     make(chan Event, buf),
		quit:       make(chan struct{}),
	}
	d.drained.Add(1)
	go d.forward()
	return d
}

func (d *Dispatcher) forward() {
	defer d.drained.Done()
	for {
		select {
		case ev := <-d.events:
			d.sink.Emit(context.Background(), ev)
		case <-d.quit:
			d.flush()
			return
		}
	}
}

// flush delivers whatever is still buffered at close time.
func (d *Dispatcher) flush() {
	for {
		select {
		case ev := <-d.events:
			d.sink.Emit(context.Background(), ev)
		default:
			return
		}
	}
}

// Emit queues event for delivery. With DropIfFull set, a full buffer
// discards the event and bumps the dropped counter; otherwise Emit blocks
// until there is room, the context ends, or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.events <- event:
		case <-d.quit:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops the forwarding goroutine after draining buffered events. It is
// idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.quit)
		d.drained.Wait()
	})
}

// Dropped reports how many events were discarded on a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
