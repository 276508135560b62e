// SPDX-License-Identifier: MIT
/*
Package notify delivers engine events to listeners on the control
goroutine.

Post never calls listener code: it only queues the event. Listeners run
when the control goroutine drains the queue, either in Run or in an explicit
Drain call, so a listener is never invoked from the loader goroutine or the
real-time goroutine that caused the state change. Post must not be called
from the real-time goroutine, since queueing allocates.

The dispatcher holds listeners weakly. It never keeps a listener alive;
owners should still call Remove before dropping theirs, and a listener that
was collected without being removed is pruned on the next delivery.
*/
package notify

import (
	"context"
	"sync"
	"weak"
)

// Listener is a subscription handle. Keep a reference to it for as long as
// events should be delivered.
type Listener struct {
	handle func(Event)
}

func NewListener(handle func(Event)) *Listener {
	return &Listener{handle: handle}
}

type Dispatcher struct {
	mu        sync.Mutex
	listeners []weak.Pointer[Listener]
	queue     []Event
	wake      chan struct{}

	deliver sync.Mutex // held by the delivering goroutine
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{wake: make(chan struct{}, 1)}
}

// Add subscribes l. Adding the same listener twice is a no-op.
func (d *Dispatcher) Add(l *Listener) {
	if l == nil {
		return
	}
	wp := weak.Make(l)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cur := range d.listeners {
		if cur == wp {
			return
		}
	}
	d.listeners = append(d.listeners, wp)
}

// Remove unsubscribes l. Events already being delivered may still reach it.
func (d *Dispatcher) Remove(l *Listener) {
	if l == nil {
		return
	}
	wp := weak.Make(l)

	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cur := range d.listeners {
		if cur == wp {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of live listeners.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live())
}

// Post queues e for delivery and wakes Run.
func (d *Dispatcher) Post(e Event) {
	d.mu.Lock()
	d.queue = append(d.queue, e)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending is the number of queued, undelivered events.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Drain delivers every queued event on the calling goroutine, in posting
// order, and returns how many events it delivered. Events posted while
// listeners run are delivered before Drain returns.
//
// One goroutine delivers at a time. If a delivery is already in progress,
// including when a listener calls Drain, Drain returns 0 at once and the
// running delivery picks up the queue.
func (d *Dispatcher) Drain() int {
	if !d.deliver.TryLock() {
		return 0
	}
	defer d.deliver.Unlock()

	delivered := 0
	for {
		d.mu.Lock()
		events := d.queue
		d.queue = nil
		var listeners []*Listener
		if len(events) > 0 {
			listeners = d.live()
		}
		d.mu.Unlock()

		if len(events) == 0 {
			return delivered
		}
		for _, e := range events {
			for _, l := range listeners {
				if l.handle != nil {
					l.handle(e)
				}
			}
		}
		delivered += len(events)
	}
}

// Run drains the queue whenever events arrive until ctx is done. The
// goroutine calling Run is the control goroutine for listener purposes.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.Drain()
			return ctx.Err()
		case <-d.wake:
			d.Drain()
		}
	}
}

// live resolves weak handles, pruning collected ones. d.mu must be held.
func (d *Dispatcher) live() []*Listener {
	out := make([]*Listener, 0, len(d.listeners))
	kept := d.listeners[:0]
	for _, wp := range d.listeners {
		if l := wp.Value(); l != nil {
			out = append(out, l)
			kept = append(kept, wp)
		}
	}
	clear(d.listeners[len(kept):])
	d.listeners = kept
	return out
}
