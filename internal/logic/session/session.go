// Package session drives one camera through open, preview, still capture
// and teardown. Hardware answers through asynchronous callbacks; every
// handle the session owns changes only under its lock and only through
// the transition table in state.go.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kelter-antunes/chromara/internal/auth"
	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/hw/camera"
	"github.com/kelter-antunes/chromara/internal/hw/surface"
	"github.com/kelter-antunes/chromara/internal/storage"
)

var (
	ErrSessionActive       = errors.New("session already open")
	ErrSessionClosed       = errors.New("session closed")
	ErrDeviceLost          = errors.New("camera device lost")
	ErrConfigurationFailed = errors.New("capture session configuration failed")
	ErrCaptureNotReady     = errors.New("capture not ready")
	ErrCaptureInProgress   = errors.New("capture already in progress")
	ErrCaptureFailed       = errors.New("capture failed")
	ErrHardwareTimeout     = errors.New("camera hardware timed out")
)

const (
	DefaultOpenTimeout    = 10 * time.Second
	DefaultCaptureTimeout = 5 * time.Second
	DefaultJPEGSubfolder  = "Chromara"
	DefaultRawSubfolder   = "Chromara/RAW"

	// maxImages is the buffer pool size of each still queue.
	maxImages = 2
)

var tracer = otel.Tracer("github.com/kelter-antunes/chromara/internal/logic/session")

// Processor transforms an encoded JPEG. pipeline.Worker implements it.
type Processor interface {
	Process(ctx context.Context, data []byte) ([]byte, error)
}

// Options wires a session to its collaborators.
type Options struct {
	Provider  camera.Provider
	Auth      auth.Authorizer
	Processor Processor
	Sink      storage.Sink

	// RawEnabled adds a RAW output when the device supports it.
	RawEnabled bool
	// Rotation returns the current device rotation in degrees.
	Rotation func() int

	OpenTimeout    time.Duration
	CaptureTimeout time.Duration

	JPEGSubfolder string
	RawSubfolder  string
}

func (o *Options) setDefaults() {
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = DefaultOpenTimeout
	}
	if o.CaptureTimeout <= 0 {
		o.CaptureTimeout = DefaultCaptureTimeout
	}
	if o.JPEGSubfolder == "" {
		o.JPEGSubfolder = DefaultJPEGSubfolder
	}
	if o.RawSubfolder == "" {
		o.RawSubfolder = DefaultRawSubfolder
	}
	if o.Rotation == nil {
		o.Rotation = func() int { return 0 }
	}
}

// Session owns at most one open camera.
type Session struct {
	opts Options
	id   string

	mu      sync.Mutex
	machine *fsm.FSM
	gen     uint64 // bumped on every teardown; callbacks carry the value they were issued with
	device  camera.Device
	hw      camera.CaptureSession
	preview camera.Output
	jpegQ   *surface.ImageQueue
	rawQ    *surface.ImageQueue
	outputs []camera.Output
	opening chan error
	pending *Pending
	queue   []Transition

	notifyMu  sync.Mutex
	observers []func(Transition)
}

// New creates a closed session.
func New(opts Options) *Session {
	opts.setDefaults()
	s := &Session{opts: opts, id: uuid.NewString()}
	s.machine = newMachine(s.record)
	return s
}

// ID returns the session identifier used in logs and events.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Open opens desc, configures preview plus still outputs and blocks
// until the preview is running. preview may be nil.
func (s *Session) Open(ctx context.Context, desc camera.Descriptor, preview camera.Output) error {
	ctx, span := tracer.Start(ctx, "session.Open", trace.WithAttributes(attribute.String("camera.id", desc.ID)))
	defer span.End()

	if err := auth.Require(s.opts.Auth, auth.Required...); err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	s.mu.Lock()
	if st := s.stateLocked(); st != StateClosed {
		s.mu.Unlock()
		return fmt.Errorf("open session (%s): %w", st, ErrSessionActive)
	}
	s.gen++
	gen := s.gen
	s.configureOutputsLocked(gen, desc, preview)
	wait := make(chan error, 1)
	s.opening = wait
	_ = s.fire(EventOpen)
	s.mu.Unlock()
	s.flush()

	debug.Info("Session %s: opening camera %s", s.id, desc.ID)
	err := s.opts.Provider.OpenDevice(desc.ID, camera.DeviceCallbacks{
		OnOpened:       func(d camera.Device) { s.onOpened(gen, d) },
		OnDisconnected: func(d camera.Device) { s.onLost(gen, d, ErrDeviceLost) },
		OnError: func(d camera.Device, err error) {
			s.onLost(gen, d, fmt.Errorf("%w: %v", ErrDeviceLost, err))
		},
	})
	if err != nil {
		err = fmt.Errorf("open camera %s: %w: %v", desc.ID, camera.ErrDeviceUnavailable, err)
		s.abort(gen, err)
		span.RecordError(err)
		return err
	}

	timer := time.NewTimer(s.opts.OpenTimeout)
	defer timer.Stop()
	select {
	case err := <-wait:
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("open camera %s: %w", desc.ID, err)
		}
		return nil
	case <-timer.C:
		s.abort(gen, ErrHardwareTimeout)
		return fmt.Errorf("open camera %s after %v: %w", desc.ID, s.opts.OpenTimeout, ErrHardwareTimeout)
	case <-ctx.Done():
		s.abort(gen, ctx.Err())
		return ctx.Err()
	}
}

// configureOutputsLocked registers the preview and still queues. The
// output order is preview, JPEG, RAW.
func (s *Session) configureOutputsLocked(gen uint64, desc camera.Descriptor, preview camera.Output) {
	s.preview = preview
	s.outputs = nil
	if preview != nil {
		s.outputs = append(s.outputs, preview)
	}

	jpegSize := camera.BestJPEGSize(desc)
	s.jpegQ = surface.NewImageQueue(camera.StreamConfig{Size: jpegSize, Format: camera.FormatJPEG}, maxImages)
	jpegQ := s.jpegQ
	jpegQ.SetListener(func() { s.onFrame(gen, jpegQ) })
	s.outputs = append(s.outputs, jpegQ)
	debug.Value("JPEG size", jpegSize)

	s.rawQ = nil
	if s.opts.RawEnabled {
		if rawSize, ok := camera.BestRawSize(desc); ok {
			s.rawQ = surface.NewImageQueue(camera.StreamConfig{Size: rawSize, Format: camera.FormatRaw}, maxImages)
			rawQ := s.rawQ
			rawQ.SetListener(func() { s.onFrame(gen, rawQ) })
			s.outputs = append(s.outputs, rawQ)
			debug.Value("RAW size", rawSize)
		}
	}
}

func (s *Session) onOpened(gen uint64, d camera.Device) {
	s.mu.Lock()
	if gen != s.gen || s.stateLocked() != StateOpening {
		s.mu.Unlock()
		debug.Verbose("Session %s: stale device %s opened, closing it", s.id, d.ID())
		guard("close stale device", d.Close)
		return
	}
	s.device = d
	_ = s.fire(EventOpened)
	outputs := slices.Clone(s.outputs)
	err := d.CreateSession(outputs, camera.SessionCallbacks{
		OnConfigured:      func(cs camera.CaptureSession) { s.onConfigured(gen, cs) },
		OnConfigureFailed: func(cs camera.CaptureSession, err error) { s.onConfigureFailed(gen, cs, err) },
	})
	if err != nil {
		s.configFailedLocked(err)
	}
	s.mu.Unlock()
	s.flush()
}

func (s *Session) onConfigured(gen uint64, cs camera.CaptureSession) {
	s.mu.Lock()
	if gen != s.gen || s.stateLocked() != StatePreviewConfiguring {
		s.mu.Unlock()
		guard("close stale session", cs.Close)
		return
	}
	s.hw = cs
	if err := s.startPreviewLocked(); err != nil {
		s.configFailedLocked(err)
	} else {
		_ = s.fire(EventConfigured)
		s.completeOpenLocked(nil)
		debug.Live("Session %s: preview running", s.id)
	}
	s.mu.Unlock()
	s.flush()
}

func (s *Session) onConfigureFailed(gen uint64, cs camera.CaptureSession, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	if cs != nil {
		s.hw = cs
	}
	s.configFailedLocked(err)
	s.mu.Unlock()
	s.flush()
}

// configFailedLocked moves to error. Handles stay bound until Close.
func (s *Session) configFailedLocked(cause error) {
	_ = s.fire(EventConfigFailed)
	s.completeOpenLocked(fmt.Errorf("%w: %v", ErrConfigurationFailed, cause))
}

// startPreviewLocked submits a fresh repeating request to the preview.
func (s *Session) startPreviewLocked() error {
	var targets []camera.Output
	if s.preview != nil {
		targets = append(targets, s.preview)
	}
	req := camera.NewRequest(uuid.NewString(), camera.TemplatePreview, 0, targets...)
	return s.hw.SetRepeatingRequest(req)
}

// onLost handles a disconnect or device error in any state.
func (s *Session) onLost(gen uint64, d camera.Device, err error) {
	s.mu.Lock()
	if gen != s.gen || s.stateLocked() == StateClosed {
		s.mu.Unlock()
		return
	}
	debug.Info("Session %s: %v", s.id, err)
	h := s.detachLocked()
	if h.device == nil {
		h.device = d
	}
	s.gen++
	_ = s.fire(EventLost)
	s.finishLocked(err)
	s.mu.Unlock()
	h.release()
	s.flush()
}

// abort tears down the open attempt identified by gen.
func (s *Session) abort(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	h := s.detachLocked()
	s.gen++
	if s.stateLocked() != StateClosed {
		_ = s.fire(EventClose)
	}
	s.finishLocked(err)
	s.mu.Unlock()
	h.release()
	s.flush()
}

// Close tears the session down. It is valid in every state and always
// succeeds; teardown faults are logged.
func (s *Session) Close() error {
	s.mu.Lock()
	h := s.detachLocked()
	s.gen++
	wasOpen := s.stateLocked() != StateClosed
	if wasOpen {
		_ = s.fire(EventClose)
	}
	s.finishLocked(ErrSessionClosed)
	s.mu.Unlock()

	h.release()
	s.flush()
	if wasOpen {
		debug.Info("Session %s: closed", s.id)
	}
	return nil
}

func (s *Session) completeOpenLocked(err error) {
	if s.opening != nil {
		s.opening <- err
		s.opening = nil
	}
}

// finishLocked fails whatever is waiting on the session.
func (s *Session) finishLocked(err error) {
	s.completeOpenLocked(err)
	if p := s.pending; p != nil {
		s.pending = nil
		p.stopTimer()
		p.finish(Result{}, err)
	}
}

// handles are the hardware resources released on teardown.
type handles struct {
	hw     camera.CaptureSession
	device camera.Device
	queues []*surface.ImageQueue
}

func (s *Session) detachLocked() handles {
	h := handles{hw: s.hw, device: s.device}
	for _, q := range []*surface.ImageQueue{s.jpegQ, s.rawQ} {
		if q != nil {
			h.queues = append(h.queues, q)
		}
	}
	s.hw, s.device, s.jpegQ, s.rawQ = nil, nil, nil, nil
	s.preview, s.outputs = nil, nil
	return h
}

func (h handles) release() {
	if h.hw != nil {
		guard("stop repeating", h.hw.StopRepeating)
		guard("close capture session", h.hw.Close)
	}
	if h.device != nil {
		guard("close device", h.device.Close)
	}
	for _, q := range h.queues {
		guard("close image queue", q.Close)
	}
}

// guard runs one teardown step, logging and swallowing errors and panics.
func guard(step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			debug.Error(fmt.Errorf("teardown: %s: panic: %v", step, r))
		}
	}()
	if err := fn(); err != nil {
		debug.Error(fmt.Errorf("teardown: %s: %w", step, err))
	}
}
