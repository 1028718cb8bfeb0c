// Package dispatch notifies listeners after a simulated request was handled.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Request describes a request after it was handled.
type Request struct {
	Method   string
	Path     string
	Status   int
	Duration time.Duration
}

// Listener is called after each handled request.
type Listener func(ctx context.Context, req Request) error

// New returns a Dispatcher without listeners.
func New() *Dispatcher {
	return &Dispatcher{
		mu:        sync.Mutex{},
		listeners: []*registration{},
	}
}

// Dispatcher keeps an ordered list of listeners and calls them
// every time a request is handled.
// It is safe for concurrent use.
type Dispatcher struct {
	mu        sync.Mutex
	listeners []*registration
}

type registration struct {
	listener Listener
}

// OnHandled registers l to be called after every handled request.
// Listeners are called in the order they are registered.
// The returned func removes the listener again; calling it more than once is a no-op.
func (d *Dispatcher) OnHandled(l Listener) func() {
	if l == nil {
		return func() {}
	}

	reg := &registration{listener: l}

	d.mu.Lock()
	d.listeners = append(d.listeners, reg)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		for i, r := range d.listeners {
			if r == reg {
				d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

// Handled notifies all listeners about req.
// Every listener is called, even if an earlier one fails; all errors are joined.
func (d *Dispatcher) Handled(ctx context.Context, req Request) error {
	d.mu.Lock()
	listeners := make([]*registration, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.Unlock()

	var errs []error

	for _, r := range listeners {
		if err := r.listener(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Len returns the number of registered listeners.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.listeners)
}
