package audit

import (
	"context"
	"math/bits"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops an event when the buffer is full instead of blocking
	// the caller until there is room or its context ends.
	DropIfFull bool
	// Warn receives drop and sink failure reports. Nil discards them.
	Warn func(format string, args ...any)
}

// Dispatcher hands audit events to a sink on its own goroutine, so a slow
// sink never holds up a login or refresh.
type Dispatcher struct {
	cfg  Config
	sink Sink
	ch   chan Event
	done chan struct{}
	wg   sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once

	dropped atomic.Uint64
	mu      sync.Mutex
	byEvent map[string]uint64
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Warn == nil {
		cfg.Warn = func(string, ...any) {}
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:     cfg,
		sink:    sink,
		ch:      make(chan Event, cfg.BufferSize),
		done:    make(chan struct{}),
		byEvent: make(map[string]uint64),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver keeps a panicking sink from killing the dispatch loop.
func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.cfg.Warn("audit sink panicked on %s: %v", event.EventType, r)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. Events that cannot be queued, because the buffer is
// full in drop mode or ctx ends first, are counted as dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.drop(event)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.drop(event)
	case <-d.done:
	}
}

// drop counts a lost event. Warnings are sent on the 1st, 2nd, 4th, 8th...
// drop of each event type so a stuck sink cannot flood the log.
func (d *Dispatcher) drop(event Event) {
	total := d.dropped.Add(1)

	d.mu.Lock()
	d.byEvent[event.EventType]++
	n := d.byEvent[event.EventType]
	d.mu.Unlock()

	if bits.OnesCount64(n) == 1 {
		d.cfg.Warn("audit event %s dropped (%d of this type, %d total)", event.EventType, n, total)
	}
}

func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports the total number of dropped events.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByEvent reports dropped events per event type.
func (d *Dispatcher) DroppedByEvent() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range d.byEvent {
		out[k] = v
	}
	return out
}
