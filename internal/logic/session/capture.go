package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/hw/camera"
	"github.com/kelter-antunes/chromara/internal/hw/surface"
	"github.com/kelter-antunes/chromara/internal/logic/geometry"
	"github.com/kelter-antunes/chromara/internal/logic/pipeline"
	"github.com/kelter-antunes/chromara/internal/metrics"
	"github.com/kelter-antunes/chromara/internal/storage"
)

// Result lists the references of a persisted capture.
type Result struct {
	JPEG    storage.Reference
	RAW     *storage.Reference // nil without a RAW output
	TakenAt time.Time
}

// Pending is a submitted still capture.
type Pending struct {
	req    camera.Request
	gen    uint64
	hasRaw bool

	// guarded by Session.mu
	jpeg, raw *camera.Frame
	completed bool
	timer     *time.Timer

	once sync.Once
	done chan struct{}
	res  Result
	err  error
}

// ID returns the capture request ID.
func (p *Pending) ID() string { return p.req.ID }

// Done is closed once the capture has a result.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the capture is persisted or has failed. Cancelling
// ctx stops the wait, not the capture.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.res, p.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (p *Pending) finish(res Result, err error) {
	p.once.Do(func() {
		p.res, p.err = res, err
		close(p.done)
	})
}

func (p *Pending) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// readyLocked reports whether every frame and the completion arrived.
func (p *Pending) readyLocked() bool {
	return p.completed && p.jpeg != nil && (!p.hasRaw || p.raw != nil)
}

// Capture takes a still picture and waits for it to be persisted.
func (s *Session) Capture(ctx context.Context) (Result, error) {
	p, err := s.StartCapture(ctx)
	if err != nil {
		return Result{}, err
	}
	return p.Wait(ctx)
}

// StartCapture submits a still request. It is accepted only while the
// preview is active and has no side effect otherwise.
func (s *Session) StartCapture(ctx context.Context) (*Pending, error) {
	_, span := tracer.Start(ctx, "session.StartCapture")
	defer span.End()

	s.mu.Lock()
	switch st := s.stateLocked(); st {
	case StatePreviewActive:
	case StateStillCapturing:
		s.mu.Unlock()
		return nil, ErrCaptureInProgress
	default:
		s.mu.Unlock()
		return nil, fmt.Errorf("capture in %s: %w", st, ErrCaptureNotReady)
	}

	orientation, err := geometry.JPEGOrientation(s.opts.Rotation())
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("capture: %w", err)
	}
	targets := []camera.Output{s.jpegQ}
	if s.rawQ != nil {
		targets = append(targets, s.rawQ)
	}
	req := camera.NewRequest(uuid.NewString(), camera.TemplateStill, orientation, targets...)
	p := &Pending{req: req, gen: s.gen, hasRaw: s.rawQ != nil, done: make(chan struct{})}
	s.pending = p
	hw := s.hw
	_ = s.fire(EventCapture)
	p.timer = time.AfterFunc(s.opts.CaptureTimeout, func() { s.onCaptureTimeout(p) })
	s.mu.Unlock()
	s.flush()

	span.SetAttributes(attribute.String("request.id", req.ID), attribute.Int("jpeg.orientation", orientation))
	debug.Live("Session %s: capture %s submitted (orientation %d, raw %v)", s.id, req.ID, orientation, p.hasRaw)

	guard("stop repeating", hw.StopRepeating)
	err = hw.Capture(req, camera.CaptureCallbacks{
		OnCompleted: func(camera.Request) { s.onCaptureCompleted(p) },
		OnFailed:    func(_ camera.Request, err error) { s.onCaptureFailed(p, err) },
	})
	if err != nil {
		s.onCaptureFailed(p, err)
	}
	return p, nil
}

// onFrame runs on the delivering goroutine whenever q has a frame. The
// frame is copied and its buffer released before anything else.
func (s *Session) onFrame(gen uint64, q *surface.ImageQueue) {
	img := q.AcquireLatest()
	if img == nil {
		return
	}
	f := img.Frame().Clone()
	if err := img.Close(); err != nil {
		debug.Error(fmt.Errorf("release %v frame: %w", f.Format, err))
	}

	s.mu.Lock()
	p := s.pending
	if gen != s.gen || p == nil || p.gen != gen {
		s.mu.Unlock()
		metrics.StaleFrames.Inc()
		debug.Verbose("Session %s: stale %v frame discarded", s.id, f.Format)
		return
	}
	switch f.Format {
	case camera.FormatJPEG:
		p.jpeg = &f
	case camera.FormatRaw:
		p.raw = &f
	}
	s.handOffIfReadyLocked(p)
}

func (s *Session) onCaptureCompleted(p *Pending) {
	s.mu.Lock()
	if s.pending != p {
		s.mu.Unlock()
		debug.Verbose("Session %s: stale completion for %s", s.id, p.ID())
		return
	}
	p.completed = true
	s.handOffIfReadyLocked(p)
}

// handOffIfReadyLocked resumes the preview and persists the capture once
// both halves arrived. It releases s.mu.
func (s *Session) handOffIfReadyLocked(p *Pending) {
	if !p.readyLocked() {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	p.stopTimer()
	takenAt := time.Now()
	s.resumePreviewLocked()
	s.mu.Unlock()
	s.flush()

	debug.Live("Session %s: capture %s complete, processing", s.id, p.ID())
	go s.persist(p, takenAt)
}

func (s *Session) resumePreviewLocked() {
	if err := s.startPreviewLocked(); err != nil {
		debug.Error(fmt.Errorf("session %s: resume preview: %w", s.id, err))
	}
	_ = s.fire(EventCaptureDone)
}

func (s *Session) onCaptureFailed(p *Pending, cause error) {
	s.mu.Lock()
	if s.pending != p {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	p.stopTimer()
	s.resumePreviewLocked()
	s.mu.Unlock()
	s.flush()

	metrics.Captures.WithLabelValues("failed").Inc()
	p.finish(Result{}, fmt.Errorf("capture %s: %w: %v", p.ID(), ErrCaptureFailed, cause))
}

func (s *Session) onCaptureTimeout(p *Pending) {
	s.mu.Lock()
	if s.pending != p {
		s.mu.Unlock()
		return
	}
	debug.Info("Session %s: capture %s timed out after %v", s.id, p.ID(), s.opts.CaptureTimeout)
	h := s.detachLocked()
	s.gen++
	_ = s.fire(EventClose)
	s.finishLocked(fmt.Errorf("capture %s: %w", p.ID(), ErrHardwareTimeout))
	s.mu.Unlock()
	h.release()
	s.flush()
	metrics.Captures.WithLabelValues("timeout").Inc()
}

// current reports whether gen is still the live session.
func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// persist grades the JPEG, then saves it and the RAW frame concurrently
// under one capture timestamp.
func (s *Session) persist(p *Pending, takenAt time.Time) {
	ctx, span := tracer.Start(context.Background(), "session.persist")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", p.ID()))

	jpegData, err := s.opts.Processor.Process(ctx, p.jpeg.Data)
	switch {
	case errors.Is(err, pipeline.ErrDecodeFailed):
		debug.Info("Session %s: %v, saving the JPEG unprocessed", s.id, err)
		jpegData = p.jpeg.Data
	case err != nil:
		metrics.Captures.WithLabelValues("error").Inc()
		span.RecordError(err)
		p.finish(Result{}, fmt.Errorf("process capture %s: %w", p.ID(), err))
		return
	}

	if !s.current(p.gen) {
		metrics.StaleFrames.Inc()
		debug.Verbose("Session %s: closed before %s was persisted, discarding", s.id, p.ID())
		p.finish(Result{}, ErrSessionClosed)
		return
	}

	res := Result{TakenAt: takenAt}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ref, err := s.opts.Sink.Save(gctx, storage.Asset{
			Data: jpegData, Kind: storage.KindJPEG, Subfolder: s.opts.JPEGSubfolder, TakenAt: takenAt,
		})
		if err != nil {
			return fmt.Errorf("save jpeg: %w", err)
		}
		res.JPEG = ref
		return nil
	})
	if p.raw != nil {
		raw := p.raw.Data
		g.Go(func() error {
			ref, err := s.opts.Sink.Save(gctx, storage.Asset{
				Data: raw, Kind: storage.KindDNG, Subfolder: s.opts.RawSubfolder, TakenAt: takenAt,
			})
			if err != nil {
				return fmt.Errorf("save raw: %w", err)
			}
			res.RAW = &ref
			return nil
		})
	}
	err = g.Wait()
	if err == nil && !s.current(p.gen) {
		// Closed while saving: the files stay, the caller is not told
		// the capture succeeded.
		metrics.StaleFrames.Inc()
		debug.Verbose("Session %s: closed while %s was being saved", s.id, p.ID())
		metrics.Captures.WithLabelValues("closed").Inc()
		p.finish(Result{}, ErrSessionClosed)
		return
	}
	metrics.Captures.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		span.RecordError(err)
		p.finish(Result{}, fmt.Errorf("persist capture %s: %w", p.ID(), err))
		return
	}
	p.finish(res, nil)
}
