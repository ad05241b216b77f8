package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/kelter-antunes/chromara/internal/debug"
)

// RPiDriver drives Raspberry Pi pins through go-rpio's memory-mapped
// registers. It needs /dev/gpiomem or root.
type RPiDriver struct {
	mu      sync.Mutex
	outputs map[int]rpio.Pin // pins configured as output, dropped back on Close
	closed  bool
}

// NewRPiDriver maps the GPIO registers.
func NewRPiDriver() (*RPiDriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open GPIO: %w (not a Raspberry Pi?)", err)
	}
	debug.Info("GPIO: go-rpio driver ready")
	return &RPiDriver{outputs: make(map[int]rpio.Pin)}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("setup", pin, mode)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errDriverClosed
	}
	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
		delete(r.outputs, pin)
	case Output:
		p.Output()
		r.outputs[pin] = p
	default:
		return fmt.Errorf("pin %d: unknown mode %d", pin, mode)
	}
	return nil
}

// WritePin sets an output. Pins not yet configured become outputs.
func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("write", pin, level)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errDriverClosed
	}
	p, ok := r.outputs[pin]
	if !ok {
		p = rpio.Pin(pin)
		p.Output()
		r.outputs[pin] = p
	}
	p.Write(toState(level))
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Low, errDriverClosed
	}
	level := Level(rpio.ReadPin(rpio.Pin(pin)) == rpio.High)
	debug.GPIO("read", pin, level)
	return level, nil
}

// Close drives every output low, releases it as an input and unmaps
// the registers. It is idempotent.
func (r *RPiDriver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for pin, p := range r.outputs {
		p.Low()
		p.Input()
		debug.Trace("GPIO: pin %d released", pin)
	}
	r.outputs = nil
	return rpio.Close()
}

func toState(l Level) rpio.State {
	if l == High {
		return rpio.High
	}
	return rpio.Low
}
