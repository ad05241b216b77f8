package tally

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kelter-antunes/chromara/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	mu    sync.Mutex
	calls []gpioCall
	fail  error
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writeLevels() []gpio.Level {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []gpio.Level
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c.level)
		}
	}
	return result
}

func (d *recordingDriver) reset() {
	d.mu.Lock()
	d.calls = nil
	d.mu.Unlock()
}

func TestLight_InitializedOff(t *testing.T) {
	drv := &recordingDriver{}
	l := NewLight(drv, 17, time.Microsecond)

	if drv.calls[0].op != "setup" || drv.calls[0].pin != 17 {
		t.Errorf("first call = %+v, want setup of pin 17", drv.calls[0])
	}
	levels := drv.writeLevels()
	if len(levels) != 1 || levels[0] != gpio.Low {
		t.Errorf("init writes = %v, want [LOW]", levels)
	}
	if l.On() {
		t.Error("light should start off")
	}
}

func TestLight_Set(t *testing.T) {
	drv := &recordingDriver{}
	l := NewLight(drv, 17, time.Microsecond)
	drv.reset()

	if err := l.Set(true); err != nil {
		t.Fatalf("Set(true): %v", err)
	}
	if !l.On() {
		t.Error("light should be on")
	}
	if err := l.Set(false); err != nil {
		t.Fatalf("Set(false): %v", err)
	}

	levels := drv.writeLevels()
	want := []gpio.Level{gpio.High, gpio.Low}
	if len(levels) != len(want) {
		t.Fatalf("writes = %v, want %v", levels, want)
	}
	for i := range want {
		if levels[i] != want[i] {
			t.Errorf("write %d = %v, want %v", i, levels[i], want[i])
		}
	}
}

func TestLight_ShutterSequence(t *testing.T) {
	drv := &recordingDriver{}
	l := NewLight(drv, 17, time.Microsecond)
	_ = l.Set(true)
	drv.reset()

	if err := l.Shutter(); err != nil {
		t.Fatalf("Shutter: %v", err)
	}

	// Expected sequence: dark, lit, back to previous (lit).
	want := []gpio.Level{gpio.Low, gpio.High, gpio.High}
	levels := drv.writeLevels()
	if len(levels) != len(want) {
		t.Fatalf("expected %d writes, got %d: %v", len(want), len(levels), levels)
	}
	for i := range want {
		if levels[i] != want[i] {
			t.Errorf("step %d: level=%v, want %v", i, levels[i], want[i])
		}
	}
	if !l.On() {
		t.Error("light should be restored to on")
	}
}

func TestLight_WriteErrorKeepsState(t *testing.T) {
	drv := &recordingDriver{}
	l := NewLight(drv, 17, time.Microsecond)
	drv.fail = errors.New("bus error")

	if err := l.Set(true); err == nil {
		t.Fatal("expected error from failing driver")
	}
	if l.On() {
		t.Error("state should not change when the write fails")
	}
}

func TestLight_WithMockDriver(t *testing.T) {
	drv := &gpio.MockDriver{}
	l := NewLight(drv, 22, time.Microsecond)
	if err := l.Set(true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if lvl, _ := drv.ReadPin(22); lvl != gpio.High {
		t.Errorf("mock pin level = %v, want HIGH", lvl)
	}
}
