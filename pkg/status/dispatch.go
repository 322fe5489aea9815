package status

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type pending struct {
	ctx  context.Context
	text string
}

// Dispatcher delivers text to a sink from its own goroutine, in order.
// Emit never waits on the sink. When the queue is full the oldest pending
// text is dropped.
type Dispatcher struct {
	sink   Sink
	logger *slog.Logger
	onDrop func()
	max    int

	mu     sync.Mutex
	queue  []pending
	closed bool

	wake chan struct{}
	done chan struct{}
}

// NewDispatcher starts a Dispatcher in front of sink. onDrop, if set, is
// called for every text that is dropped.
func NewDispatcher(sink Sink, size int, logger *slog.Logger, onDrop func()) *Dispatcher {
	if size < 1 {
		size = 1
	}
	d := &Dispatcher{
		sink:   sink,
		logger: logger,
		onDrop: onDrop,
		max:    size,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) Emit(ctx context.Context, text string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	dropped := len(d.queue) >= d.max
	if dropped {
		d.queue = d.queue[1:]
	}
	d.queue = append(d.queue, pending{ctx: ctx, text: text})
	d.mu.Unlock()

	if dropped && d.onDrop != nil {
		d.onDrop()
	}
	d.signal()
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			closed := d.closed
			d.mu.Unlock()
			if closed {
				return
			}
			<-d.wake
			continue
		}
		next := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		Send(next.ctx, d.sink, next.text, d.logger)
	}
}

// Close stops accepting text and waits up to wait for the queue to drain.
// Whatever is still queued after that is discarded. It reports whether
// everything was delivered.
func (d *Dispatcher) Close(wait time.Duration) bool {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-d.done:
		return true
	case <-timer.C:
	}

	d.mu.Lock()
	n := len(d.queue)
	d.queue = nil
	d.mu.Unlock()
	if d.onDrop != nil {
		for range n {
			d.onDrop()
		}
	}
	return false
}
