package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrWorkerStopped is returned for jobs submitted to a stopped worker.
var ErrWorkerStopped = errors.New("pipeline worker stopped")

type job struct {
	ctx  context.Context
	data []byte
	res  chan result
}

type result struct {
	data []byte
	err  error
}

// Worker runs a Pipeline on one dedicated goroutine so that hardware
// callbacks only enqueue work.
type Worker struct {
	pipeline *Pipeline
	jobs     chan job
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWorker starts a worker with room for queue waiting jobs.
func NewWorker(p *Pipeline, queue int) *Worker {
	w := &Worker{
		pipeline: p,
		jobs:     make(chan job, queue),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case j := <-w.jobs:
			if err := j.ctx.Err(); err != nil {
				j.res <- result{err: err}
				continue
			}
			out, err := w.pipeline.Process(j.ctx, j.data)
			j.res <- result{data: out, err: err}
		case <-w.quit:
			return
		}
	}
}

// Process submits data and waits for the result. Errors follow
// Pipeline.Process: ErrDecodeFailed comes back with the original bytes.
func (w *Worker) Process(ctx context.Context, data []byte) ([]byte, error) {
	j := job{ctx: ctx, data: data, res: make(chan result, 1)}
	select {
	case w.jobs <- j:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-j.res:
		return r.data, r.err
	case <-w.done:
		// The job may have finished just before the worker stopped.
		select {
		case r := <-j.res:
			return r.data, r.err
		default:
			return nil, ErrWorkerStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop ends the worker after its current job. Queued jobs fail with
// ErrWorkerStopped.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.done
}
