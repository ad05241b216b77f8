package surface

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopClosed is returned when work is posted to a stopped UI loop.
var ErrLoopClosed = errors.New("ui loop closed")

// UIThread proves that code runs on a UILoop. Values are only created
// by the loop itself, so holding one is the capability to touch
// UI-affine resources such as the preview surface.
type UIThread struct {
	loop *UILoop
}

// Loop returns the loop this token belongs to.
func (t UIThread) Loop() *UILoop {
	return t.loop
}

// UILoop runs posted functions one at a time on a single goroutine.
type UILoop struct {
	tasks     chan func(UIThread)
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewUILoop starts a UI loop.
func NewUILoop() *UILoop {
	l := &UILoop{
		tasks:   make(chan func(UIThread), 64),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *UILoop) run() {
	defer close(l.stopped)
	for {
		select {
		case fn := <-l.tasks:
			fn(UIThread{loop: l})
		case <-l.quit:
			return
		}
	}
}

// Post queues fn without waiting for it to run.
func (l *UILoop) Post(fn func(UIThread)) error {
	select {
	case <-l.quit:
		return ErrLoopClosed
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.quit:
		return ErrLoopClosed
	}
}

// Do runs fn on the loop and waits for its result.
// It must not be called from the loop itself.
func (l *UILoop) Do(ctx context.Context, fn func(UIThread) error) error {
	res := make(chan error, 1)
	if err := l.Post(func(t UIThread) { res <- fn(t) }); err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-l.stopped:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop. Queued work that has not started is dropped.
func (l *UILoop) Close() {
	l.closeOnce.Do(func() { close(l.quit) })
	<-l.stopped
}
