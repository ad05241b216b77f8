package events

import (
	"time"

	"github.com/kelter-antunes/chromara/internal/logic/session"
)

// TransitionData is the payload of a transition event.
type TransitionData struct {
	Session string `json:"session"`
	From    string `json:"from"`
	To      string `json:"to"`
	Event   string `json:"event"`
}

// CaptureData is the payload of a capture event.
type CaptureData struct {
	JPEG    string `json:"jpeg,omitempty"`
	RAW     string `json:"raw,omitempty"`
	TakenAt string `json:"taken_at,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SessionObserver returns a session observer publishing transitions on b.
func SessionObserver(b *Bus) func(session.Transition) {
	return func(t session.Transition) {
		b.Publish(Event{
			Time: t.At.Format(time.RFC3339Nano),
			Kind: KindTransition,
			Data: TransitionData{Session: t.Session, From: string(t.From), To: string(t.To), Event: t.Event},
		})
	}
}

// Capture publishes the outcome of a capture.
func (b *Bus) Capture(res session.Result, err error) {
	d := CaptureData{}
	if err != nil {
		d.Error = err.Error()
	} else {
		d.JPEG = res.JPEG.URI
		if res.RAW != nil {
			d.RAW = res.RAW.URI
		}
		d.TakenAt = res.TakenAt.Format(time.RFC3339)
	}
	b.Emit(KindCapture, d)
}
