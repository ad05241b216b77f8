package plugin

import (
	"fmt"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/hw/tally"
	"github.com/kelter-antunes/chromara/internal/logic/session"
)

// TallyObserver lights l while the camera streams and blinks it when the
// shutter fires.
func TallyObserver(l *tally.Light) func(session.Transition) {
	return func(t session.Transition) {
		switch t.To {
		case session.StatePreviewActive:
			if err := l.Set(true); err != nil {
				debug.Error(fmt.Errorf("tally: %w", err))
			}
		case session.StateStillCapturing:
			go func() {
				if err := l.Shutter(); err != nil {
					debug.Error(fmt.Errorf("tally: %w", err))
				}
			}()
		case session.StateClosed, session.StateError:
			if err := l.Set(false); err != nil {
				debug.Error(fmt.Errorf("tally: %w", err))
			}
		}
	}
}
