// Package events fans session transitions, capture results and log lines
// out to subscribers as JSON lines.
package events

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Event kinds.
const (
	KindLog        = "log"
	KindTransition = "transition"
	KindCapture    = "capture"
)

// Event is one published message.
type Event struct {
	Time  string `json:"t"`
	Kind  string `json:"kind"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Bus distributes events to multiple subscribers.
type Bus struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewBus creates a new bus.
func NewBus() *Bus {
	return &Bus{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives published events and a cleanup function.
// The caller must call the returned cleanup when done.
func (b *Bus) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish sends evt to all subscribers as JSON.
// Slow subscribers may miss events (non-blocking, buffered).
func (b *Bus) Publish(evt Event) {
	if evt.Time == "" {
		evt.Time = time.Now().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// Emit publishes a structured event of kind.
func (b *Bus) Emit(kind string, data any) {
	b.Publish(Event{Kind: kind, Data: data})
}

// Log publishes a log line.
func (b *Bus) Log(level, msg string) {
	b.Publish(Event{Kind: KindLog, Level: level, Msg: msg})
}

// Writer returns an io.Writer publishing each write as a log event,
// for use with debug.SetOutput.
func Writer(b *Bus) *logWriter {
	return &logWriter{b: b}
}

type logWriter struct {
	b *Bus
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if msg := strings.TrimSpace(line); msg != "" {
			w.b.Log("info", msg)
		}
	}
	return len(p), nil
}
