// Package plugin is the command surface a host application drives:
// show and remove the preview, take a photo, and follow the host
// lifecycle.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kelter-antunes/chromara/internal/auth"
	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/events"
	"github.com/kelter-antunes/chromara/internal/hw/camera"
	"github.com/kelter-antunes/chromara/internal/hw/surface"
	"github.com/kelter-antunes/chromara/internal/logic/geometry"
	"github.com/kelter-antunes/chromara/internal/logic/session"
	"github.com/kelter-antunes/chromara/internal/metrics"
)

var (
	// ErrBusy is returned by ShowPreview while the preview is shown or
	// another ShowPreview is in flight.
	ErrBusy = errors.New("preview busy")
	// ErrDestroyed is returned for commands after Destroy.
	ErrDestroyed = errors.New("plugin destroyed")
)

// Stopper is a background worker stopped on Destroy.
type Stopper interface {
	Stop()
}

// Options wires the command surface.
type Options struct {
	Registry *camera.Registry
	Auth     auth.Authorizer
	Session  *session.Session
	Loop     *surface.UILoop

	// Renderer draws preview frames on the UI loop. Nil discards them.
	Renderer surface.Renderer
	// DeviceID selects the camera; empty picks the first one.
	DeviceID string
	// PreviewMax bounds the preview size.
	PreviewMax geometry.Size

	// Workers limits concurrently dispatched commands.
	Workers int
	// Worker is stopped on Destroy, after dispatched commands finished.
	Worker Stopper
	// Events receives capture outcomes. Optional.
	Events *events.Bus
}

// Plugin executes host commands against one capture session.
type Plugin struct {
	opts     Options
	preview  *surface.Preview
	dispatch *Dispatcher

	mu        sync.Mutex
	shown     bool
	removals  uint64 // bumped by RemovePreview and Destroy
	inFlight  map[string]bool
	destroyed bool

	destroyOnce sync.Once
}

// New creates a plugin with its preview bound to opts.Loop.
func New(opts Options) *Plugin {
	if opts.Renderer == nil {
		opts.Renderer = surface.RendererFunc(func(_ surface.UIThread, f camera.Frame) {
			debug.Frame("preview", f.Width, f.Height, len(f.Data))
		})
	}
	if opts.PreviewMax.IsZero() {
		opts.PreviewMax = geometry.Size{Width: 1920, Height: 1080}
	}
	return &Plugin{
		opts:     opts,
		preview:  surface.NewPreview(opts.Loop),
		dispatch: NewDispatcher(opts.Workers),
		inFlight: make(map[string]bool),
	}
}

// Preview returns the preview surface.
func (p *Plugin) Preview() *surface.Preview { return p.preview }

// begin marks action in flight. It fails when the same action is
// already running or the plugin is destroyed.
func (p *Plugin) begin(action string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return false, ErrDestroyed
	}
	if p.inFlight[action] {
		return false, nil
	}
	p.inFlight[action] = true
	return true, nil
}

func (p *Plugin) end(action string) {
	p.mu.Lock()
	delete(p.inFlight, action)
	p.mu.Unlock()
}

// ShowPreview requests missing grants, attaches the preview and opens
// the camera. It returns once the preview is running.
func (p *Plugin) ShowPreview(ctx context.Context) error {
	ok, err := p.begin(ActionShowPreview)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBusy
	}
	defer p.end(ActionShowPreview)

	p.mu.Lock()
	shown := p.shown
	epoch := p.removals
	p.mu.Unlock()
	if shown {
		if p.opts.Session.State() != session.StateClosed {
			return ErrBusy
		}
		// The camera went away under a shown preview.
		debug.Info("Plugin: preview has no session, reopening")
		p.detach(ctx)
		p.mu.Lock()
		p.shown = false
		p.mu.Unlock()
	}

	if !p.opts.Auth.Granted(auth.Required...) {
		granted, err := p.opts.Auth.Request(ctx, auth.Required...)
		if err != nil {
			return fmt.Errorf("request permissions: %w", err)
		}
		if !granted {
			return fmt.Errorf("show preview: %w", auth.ErrPermissionDenied)
		}
	}

	desc, err := p.opts.Registry.Lookup(ctx, p.opts.DeviceID)
	if err != nil {
		return fmt.Errorf("show preview: %w", err)
	}
	size := camera.BestPreviewSize(desc, p.opts.PreviewMax)
	debug.Info("Camera %s (%s), preview %v", desc.ID, desc.Label, size)

	if err := p.opts.Loop.Do(ctx, func(t surface.UIThread) error {
		return p.preview.Attach(t, size, p.opts.Renderer)
	}); err != nil {
		return fmt.Errorf("attach preview: %w", err)
	}

	if err := p.opts.Session.Open(ctx, desc, p.preview); err != nil {
		_ = p.opts.Session.Close()
		p.detach(context.Background())
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removals != epoch {
		return fmt.Errorf("show preview: removed while opening: %w", session.ErrSessionClosed)
	}
	p.shown = true
	return nil
}

// RemovePreview closes the session and detaches the preview. It is
// idempotent.
func (p *Plugin) RemovePreview(ctx context.Context) error {
	p.mu.Lock()
	p.shown = false
	p.removals++
	p.mu.Unlock()

	_ = p.opts.Session.Close()
	p.detach(ctx)
	return nil
}

func (p *Plugin) detach(ctx context.Context) {
	err := p.opts.Loop.Do(ctx, func(t surface.UIThread) error {
		return p.preview.Detach(t)
	})
	if err != nil && !errors.Is(err, surface.ErrLoopClosed) {
		debug.Error(fmt.Errorf("detach preview: %w", err))
	}
}

// CapturePhoto takes a still picture and waits until it is persisted.
func (p *Plugin) CapturePhoto(ctx context.Context) (session.Result, error) {
	ok, err := p.begin(ActionCapturePhoto)
	if err != nil {
		return session.Result{}, err
	}
	if !ok {
		return session.Result{}, session.ErrCaptureInProgress
	}
	defer p.end(ActionCapturePhoto)

	if err := auth.Require(p.opts.Auth, auth.StorageWrite); err != nil {
		return session.Result{}, fmt.Errorf("capture photo: %w", err)
	}
	res, err := p.opts.Session.Capture(ctx)
	if p.opts.Events != nil {
		p.opts.Events.Capture(res, err)
	}
	if err != nil {
		return session.Result{}, err
	}
	debug.Live("Photo saved: %s", res.JPEG.URI)
	return res, nil
}

// Pause handles the host moving to the background.
func (p *Plugin) Pause(ctx context.Context) error {
	debug.Verbose("Plugin: pause")
	return p.RemovePreview(ctx)
}

// Destroy releases everything: the session, dispatched commands, the
// pipeline worker and the UI loop. Later commands fail with ErrDestroyed.
func (p *Plugin) Destroy() {
	p.destroyOnce.Do(func() {
		p.mu.Lock()
		p.destroyed = true
		p.shown = false
		p.removals++
		p.mu.Unlock()

		_ = p.opts.Session.Close()
		p.dispatch.Wait()
		_ = p.opts.Session.Close()
		p.detach(context.Background())
		if p.opts.Worker != nil {
			p.opts.Worker.Stop()
		}
		p.opts.Loop.Close()
		debug.Verbose("Plugin: destroyed")
	})
}

// record counts a finished command.
func record(action, code string) {
	metrics.Commands.WithLabelValues(action, code).Inc()
}
