package session

import (
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/metrics"
)

// State is a session lifecycle state.
type State string

const (
	StateClosed             State = "closed"
	StateOpening            State = "opening"
	StatePreviewConfiguring State = "preview_configuring"
	StatePreviewActive      State = "preview_active"
	StateStillCapturing     State = "still_capturing"
	StateError              State = "error"
)

// Event names of the transition table.
const (
	EventOpen         = "open"
	EventOpened       = "opened"
	EventConfigured   = "configured"
	EventConfigFailed = "config_failed"
	EventCapture      = "capture"
	EventCaptureDone  = "capture_done"
	EventLost         = "lost"
	EventClose        = "close"
)

// Transition describes one state change.
type Transition struct {
	Session string
	From    State
	To      State
	Event   string
	At      time.Time
}

var active = []string{
	string(StateOpening),
	string(StatePreviewConfiguring),
	string(StatePreviewActive),
	string(StateStillCapturing),
	string(StateError),
}

// newMachine builds the transition table. record runs for every state
// entered, on the goroutine that fired the event.
func newMachine(record func(from, to, event string)) *fsm.FSM {
	return fsm.NewFSM(
		string(StateClosed),
		fsm.Events{
			{Name: EventOpen, Src: []string{string(StateClosed)}, Dst: string(StateOpening)},
			{Name: EventOpened, Src: []string{string(StateOpening)}, Dst: string(StatePreviewConfiguring)},
			{Name: EventConfigured, Src: []string{string(StatePreviewConfiguring)}, Dst: string(StatePreviewActive)},
			{Name: EventConfigFailed, Src: []string{string(StateOpening), string(StatePreviewConfiguring)}, Dst: string(StateError)},
			{Name: EventCapture, Src: []string{string(StatePreviewActive)}, Dst: string(StateStillCapturing)},
			{Name: EventCaptureDone, Src: []string{string(StateStillCapturing)}, Dst: string(StatePreviewActive)},
			{Name: EventLost, Src: active, Dst: string(StateClosed)},
			{Name: EventClose, Src: active, Dst: string(StateClosed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				record(e.Src, e.Dst, e.Event)
			},
		},
	)
}

// record queues a transition for observers. Called with s.mu held.
func (s *Session) record(from, to, event string) {
	metrics.Transitions.WithLabelValues(from, to).Inc()
	debug.Transition(s.id, from, to, event)
	s.queue = append(s.queue, Transition{
		Session: s.id,
		From:    State(from),
		To:      State(to),
		Event:   event,
		At:      time.Now(),
	})
}

// fire runs event on the machine. Called with s.mu held.
func (s *Session) fire(event string) error {
	if err := s.machine.Event(context.Background(), event); err != nil {
		debug.Error(fmt.Errorf("session %s: event %s in %s: %w", s.id, event, s.machine.Current(), err))
		return err
	}
	return nil
}

func (s *Session) stateLocked() State {
	return State(s.machine.Current())
}

// Observe registers fn to receive every transition, in order, outside
// the session lock. fn must not call back into the session.
func (s *Session) Observe(fn func(Transition)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.observers = append(s.observers, fn)
}

// flush hands queued transitions to observers.
func (s *Session) flush() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, t := range batch {
			for _, fn := range s.observers {
				fn(t)
			}
		}
	}
}
