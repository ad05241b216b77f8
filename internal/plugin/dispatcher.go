package plugin

import (
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrDispatcherClosed is returned for work submitted after Wait.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher runs host commands on a bounded pool of goroutines.
type Dispatcher struct {
	mu     sync.RWMutex
	closed bool
	g      errgroup.Group
}

// NewDispatcher creates a pool running at most limit commands at once.
func NewDispatcher(limit int) *Dispatcher {
	d := &Dispatcher{}
	if limit > 0 {
		d.g.SetLimit(limit)
	}
	return d
}

// Go runs fn on the pool, waiting for a free slot.
func (d *Dispatcher) Go(fn func()) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.g.Go(func() error {
		fn()
		return nil
	})
	return nil
}

// Wait rejects further work and waits for running commands.
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	_ = d.g.Wait()
}
