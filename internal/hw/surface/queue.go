package surface

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/hw/camera"
)

var (
	// ErrQueueFull is returned when every buffer of the pool is in use;
	// the frame is dropped.
	ErrQueueFull = errors.New("image queue full")
	// ErrQueueClosed is returned when delivering to a closed queue.
	ErrQueueClosed = errors.New("image queue closed")
	// ErrImageReleased is returned by a second Close of the same image.
	ErrImageReleased = errors.New("image already released")
)

// ImageQueue receives still frames into a pool of at most maxImages
// buffers. Each buffer returns to the pool when its Image is closed.
type ImageQueue struct {
	stream camera.StreamConfig
	max    int

	mu       sync.Mutex
	pending  []*Image
	acquired int
	closed   bool
	listener func()
}

// NewImageQueue creates a queue for stream holding at most maxImages
// frames at once.
func NewImageQueue(stream camera.StreamConfig, maxImages int) *ImageQueue {
	if maxImages < 1 {
		maxImages = 1
	}
	return &ImageQueue{stream: stream, max: maxImages}
}

// SetListener registers the frame-available callback. It runs on the
// goroutine that delivered the frame.
func (q *ImageQueue) SetListener(fn func()) {
	q.mu.Lock()
	q.listener = fn
	q.mu.Unlock()
}

// Stream implements camera.Output.
func (q *ImageQueue) Stream() camera.StreamConfig {
	return q.stream
}

// Deliver implements camera.Output.
func (q *ImageQueue) Deliver(f camera.Frame) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if len(q.pending)+q.acquired >= q.max {
		q.mu.Unlock()
		debug.Trace("ImageQueue(%v): frame dropped, pool exhausted", q.stream.Format)
		return ErrQueueFull
	}
	q.pending = append(q.pending, &Image{queue: q, frame: f})
	fn := q.listener
	q.mu.Unlock()

	debug.Frame(q.stream.Format.String(), f.Width, f.Height, len(f.Data))
	if fn != nil {
		fn()
	}
	return nil
}

// AcquireLatest returns the newest pending image and releases older
// ones. It returns nil when nothing is pending.
func (q *ImageQueue) AcquireLatest() *Image {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	latest := q.pending[len(q.pending)-1]
	for _, old := range q.pending[:len(q.pending)-1] {
		old.released.Store(true)
		old.frame = camera.Frame{}
	}
	q.pending = nil
	q.acquired++
	return latest
}

// Outstanding returns how many buffers are pending or acquired.
func (q *ImageQueue) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + q.acquired
}

// Close drops pending frames and rejects further deliveries. Images
// already acquired stay valid until their holder closes them.
func (q *ImageQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, img := range q.pending {
		img.released.Store(true)
		img.frame = camera.Frame{}
	}
	q.pending = nil
	q.closed = true
	q.listener = nil
	return nil
}

func (q *ImageQueue) release() {
	q.mu.Lock()
	q.acquired--
	q.mu.Unlock()
}

// Image is one acquired buffer. Close it exactly once.
type Image struct {
	queue    *ImageQueue
	frame    camera.Frame
	released atomic.Bool
}

// Frame returns the image contents. The data is only valid until Close;
// use camera.Frame.Clone to keep it.
func (i *Image) Frame() camera.Frame {
	return i.frame
}

// Close returns the buffer to its queue.
func (i *Image) Close() error {
	if !i.released.CompareAndSwap(false, true) {
		return ErrImageReleased
	}
	i.frame = camera.Frame{}
	i.queue.release()
	return nil
}
