// Package dispatch runs user-supplied event callbacks off the engine's
// ingress path, deliberately without the per-key serialization that
// events/schedulers/parallel.Scheduler gives server-side consumers: the
// spec calls for fire-and-forget goroutine-per-event delivery, with no
// guarantee that callbacks complete in wire order.
package dispatch

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Dispatcher schedules an independent goroutine per event handed to it. A
// panic in the callback is recovered and logged; it never reaches the
// caller or affects any other in-flight callback.
type Dispatcher struct {
	logger *slog.Logger
	wg     sync.WaitGroup

	mu       sync.Mutex
	inFlight int
	gauge    *gaugeHandle
}

// New returns a Dispatcher that logs callback panics via logger (a nil
// logger is replaced by slog.Default()).
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger, gauge: newGaugeHandle()}
}

// Go schedules fn to run in its own goroutine. fn returns nothing, so
// Dispatcher never sees an outcome; a caller that acts on one (e.g. Tap's
// ack decision) does so inside fn, as tap.Websocket's HandleFrame does for
// acks.
func (d *Dispatcher) Go(fn func()) {
	d.wg.Add(1)
	d.mu.Lock()
	d.inFlight++
	d.gauge.set(d.inFlight)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			d.inFlight--
			d.gauge.set(d.inFlight)
			d.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("dispatcher callback panicked", "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// Dispatch is a convenience wrapper for the common shape: invoke handler
// with ctx and event, log a returned error, and pass the outcome to
// onResult. onResult may be nil.
func (d *Dispatcher) Dispatch(ctx context.Context, event any, handler func(context.Context, any) error, onResult func(error)) {
	d.Go(func() {
		err := handler(ctx, event)
		if err != nil {
			d.logger.Error("event handler returned an error", "err", err)
		}
		if onResult != nil {
			onResult(err)
		}
	})
}

// Wait blocks until every scheduled callback has returned. Stopping a
// stream instance allows outstanding callbacks to complete rather than
// canceling them (fire-and-forget semantics per §5); Wait is how a caller
// observes that drain finishing.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// InFlight returns the number of callbacks currently executing.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}
