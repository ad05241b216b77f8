package plugin

import (
	"context"
	"sync"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/logic/session"
)

// Action names accepted by Execute.
const (
	ActionShowPreview   = "showPreview"
	ActionRemovePreview = "removePreview"
	ActionCapturePhoto  = "capturePhoto"
)

// MsgActionNotRecognized is reported for unknown action names.
const MsgActionNotRecognized = "Action not recognized."

// Response is the single answer a command delivers to its callback.
type Response struct {
	OK      bool            `json:"ok"`
	Code    string          `json:"code"`
	Message string          `json:"message,omitempty"`
	Result  *session.Result `json:"result,omitempty"`
}

func respond(err error) Response {
	if err != nil {
		return Response{Code: Code(err), Message: err.Error()}
	}
	return Response{OK: true, Code: CodeOK}
}

// Execute dispatches action and reports false for unknown names. The
// callback receives exactly one Response.
func (p *Plugin) Execute(ctx context.Context, action string, cb func(Response)) bool {
	var once sync.Once
	reply := func(r Response) {
		once.Do(func() {
			if cb != nil {
				cb(r)
			}
		})
	}

	var run func(context.Context) Response
	switch action {
	case ActionShowPreview:
		run = func(ctx context.Context) Response { return respond(p.ShowPreview(ctx)) }
	case ActionRemovePreview:
		run = func(ctx context.Context) Response { return respond(p.RemovePreview(ctx)) }
	case ActionCapturePhoto:
		run = func(ctx context.Context) Response {
			res, err := p.CapturePhoto(ctx)
			r := respond(err)
			if err == nil {
				r.Result = &res
			}
			return r
		}
	default:
		debug.Verbose("Plugin: unknown action %q", action)
		record("unknown", CodeInvalidAction)
		reply(Response{Code: CodeInvalidAction, Message: MsgActionNotRecognized})
		return false
	}

	err := p.dispatch.Go(func() {
		r := run(ctx)
		record(action, r.Code)
		reply(r)
	})
	if err != nil {
		r := respond(ErrDestroyed)
		record(action, r.Code)
		reply(r)
	}
	return true
}
