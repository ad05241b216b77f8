package tally

import (
	"sync"
	"time"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/hw/gpio"
)

// Light is an "on air" LED driven by one GPIO pin:
// - anode: GPIO pin through a 330 ohm resistor
// - cathode: Raspberry Pi ground
//
// The LED is lit while the camera streams preview and blinks once when
// the shutter fires.
type Light struct {
	gpio  gpio.Driver
	pin   int
	blink time.Duration // off time of the shutter blink

	mu sync.Mutex
	on bool
}

// NewLight creates a tally light on pin, initially off.
// blink is how long the LED goes dark when the shutter fires.
func NewLight(g gpio.Driver, pin int, blink time.Duration) *Light {
	// Configure pin as output, LED off
	_ = g.SetupPin(pin, gpio.Output)
	_ = g.WritePin(pin, gpio.Low)

	return &Light{
		gpio:  g,
		pin:   pin,
		blink: blink,
	}
}

// Set turns the LED on or off.
func (l *Light) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(on)
}

func (l *Light) write(on bool) error {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	debug.Trace("Tally: pin %d -> %v", l.pin, level)
	if err := l.gpio.WritePin(l.pin, level); err != nil {
		return err
	}
	l.on = on
	return nil
}

// On reports whether the LED is lit.
func (l *Light) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Shutter blinks the LED: off for the blink duration, then back to its
// previous state.
func (l *Light) Shutter() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	was := l.on
	if err := l.write(false); err != nil {
		return err
	}
	time.Sleep(l.blink)
	if err := l.write(true); err != nil {
		return err
	}
	time.Sleep(l.blink)
	return l.write(was)
}
