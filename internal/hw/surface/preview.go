package surface

import (
	"errors"
	"sync"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/hw/camera"
	"github.com/kelter-antunes/chromara/internal/logic/geometry"
)

var (
	// ErrWrongThread is returned when a UI-affine call is made with a
	// token from another loop or a zero token.
	ErrWrongThread = errors.New("preview surface touched outside its ui loop")
	// ErrAttached is returned when attaching an already attached preview.
	ErrAttached = errors.New("preview surface already attached")
)

// Renderer draws preview frames. It is always called on the UI loop.
type Renderer interface {
	Render(t UIThread, f camera.Frame)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(t UIThread, f camera.Frame)

func (fn RendererFunc) Render(t UIThread, f camera.Frame) { fn(t, f) }

// Preview is the renderable preview destination. Attach and Detach
// must run on the preview's UI loop; Deliver may be called from any
// goroutine.
type Preview struct {
	loop *UILoop

	mu        sync.Mutex
	size      geometry.Size
	renderer  Renderer
	attached  bool
	gen       uint64 // bumped on every Attach and Detach
	rendering bool // a frame is queued on the loop
	delivered uint64
	dropped   uint64
}

// NewPreview creates a detached preview bound to loop.
func NewPreview(loop *UILoop) *Preview {
	return &Preview{loop: loop}
}

// Attach binds the surface to r at the given size.
func (p *Preview) Attach(t UIThread, size geometry.Size, r Renderer) error {
	if t.loop == nil || t.loop != p.loop {
		return ErrWrongThread
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attached {
		return ErrAttached
	}
	p.size = size
	p.renderer = r
	p.attached = true
	p.gen++
	debug.Verbose("Preview: attached at %v", size)
	return nil
}

// Detach unbinds the surface. Detaching a detached surface is a no-op.
func (p *Preview) Detach(t UIThread) error {
	if t.loop == nil || t.loop != p.loop {
		return ErrWrongThread
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attached {
		debug.Verbose("Preview: detached (%d frames shown, %d dropped)", p.delivered, p.dropped)
	}
	p.attached = false
	p.renderer = nil
	p.gen++
	return nil
}

// Attached reports whether a renderer is bound.
func (p *Preview) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached
}

// Stream implements camera.Output.
func (p *Preview) Stream() camera.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return camera.StreamConfig{Size: p.size, Format: camera.FormatPreview}
}

// Deliver implements camera.Output. Frames are dropped while detached
// or while the previous frame is still waiting to be drawn.
func (p *Preview) Deliver(f camera.Frame) error {
	p.mu.Lock()
	if !p.attached || p.rendering {
		p.dropped++
		p.mu.Unlock()
		return nil
	}
	p.rendering = true
	r, gen := p.renderer, p.gen
	p.mu.Unlock()

	err := p.loop.Post(func(t UIThread) {
		p.mu.Lock()
		live := p.attached && p.gen == gen
		p.rendering = false
		if live {
			p.delivered++
		} else {
			p.dropped++
		}
		p.mu.Unlock()
		if live {
			r.Render(t, f)
		}
	})
	if err != nil {
		p.mu.Lock()
		p.rendering = false
		p.dropped++
		p.mu.Unlock()
		return err
	}
	return nil
}

// Stats returns how many frames were drawn and dropped.
func (p *Preview) Stats() (delivered, dropped uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delivered, p.dropped
}
