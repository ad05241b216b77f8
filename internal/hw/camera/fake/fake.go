// Package fake simulates asynchronous camera hardware. It backs mock
// mode and the session tests: callbacks fire on their own goroutines,
// frames are generated on the fly, and tests can hold or fail any stage.
package fake

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/hw/camera"
	"github.com/kelter-antunes/chromara/internal/logic/geometry"
)

var errClosed = errors.New("fake camera: closed")

// Options tune the simulated hardware.
type Options struct {
	// FrameDivisor shrinks generated still frames (size/FrameDivisor).
	FrameDivisor int
	// PreviewInterval is the repeating request period.
	PreviewInterval time.Duration

	OpenErr      error // OpenDevice fails immediately
	OpenFail     error // device reports an error instead of opening
	ConfigureErr error // session configuration fails
	CaptureErr   error // still captures fail

	// CompleteBeforeFrames fires the capture-completed callback before
	// delivering frames to the request targets.
	CompleteBeforeFrames bool
}

// Descriptor builds a typical phone-camera descriptor with the given
// largest JPEG size.
func Descriptor(id string, jpegSize geometry.Size, rawCapable bool) camera.Descriptor {
	d := camera.Descriptor{
		ID:    id,
		Label: "simulated camera " + id,
		Streams: []camera.StreamConfig{
			{Size: geometry.Size{Width: 640, Height: 480}, Format: camera.FormatPreview},
			{Size: geometry.Size{Width: 1280, Height: 720}, Format: camera.FormatPreview},
			{Size: geometry.Size{Width: 1920, Height: 1080}, Format: camera.FormatJPEG},
			{Size: jpegSize, Format: camera.FormatJPEG},
		},
		RawCapable: rawCapable,
	}
	if rawCapable {
		d.Streams = append(d.Streams, camera.StreamConfig{Size: jpegSize, Format: camera.FormatRaw})
	}
	return d
}

// Provider is a simulated camera service.
type Provider struct {
	opts    Options
	devices []camera.Descriptor

	mu          sync.Mutex
	current     *Device
	openGate    chan struct{}
	captureGate chan struct{}
	captures    int
	opens       int
}

// New creates a provider advertising devices.
func New(opts Options, devices ...camera.Descriptor) *Provider {
	if opts.FrameDivisor < 1 {
		opts.FrameDivisor = 1
	}
	if opts.PreviewInterval <= 0 {
		opts.PreviewInterval = 33 * time.Millisecond
	}
	return &Provider{opts: opts, devices: devices}
}

// Devices implements camera.Provider.
func (p *Provider) Devices() ([]camera.Descriptor, error) {
	return append([]camera.Descriptor(nil), p.devices...), nil
}

// OpenDevice implements camera.Provider.
func (p *Provider) OpenDevice(id string, cb camera.DeviceCallbacks) error {
	if p.opts.OpenErr != nil {
		return p.opts.OpenErr
	}
	found := false
	for _, d := range p.devices {
		found = found || d.ID == id
	}
	if !found {
		return fmt.Errorf("fake camera: unknown device %q", id)
	}

	d := &Device{provider: p, id: id, cb: cb, done: make(chan struct{})}
	p.mu.Lock()
	p.current = d
	p.opens++
	gate := p.openGate
	p.mu.Unlock()

	go func() {
		if gate != nil {
			<-gate
		}
		if p.opts.OpenFail != nil {
			cb.OnError(d, p.opts.OpenFail)
			return
		}
		debug.Trace("fake: device %s opened", id)
		cb.OnOpened(d)
	}()
	return nil
}

// HoldOpens delays device-opened callbacks until release is called.
func (p *Provider) HoldOpens() (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.openGate = gate
	p.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// HoldCaptures delays still capture results until release is called.
func (p *Provider) HoldCaptures() (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.captureGate = gate
	p.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Disconnect simulates the camera being unplugged.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	d := p.current
	p.mu.Unlock()
	if d == nil {
		return
	}
	d.markClosed()
	go d.cb.OnDisconnected(d)
}

// Captures returns how many still requests were submitted.
func (p *Provider) Captures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captures
}

// Opens returns how many times a device was opened.
func (p *Provider) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

// Current returns the most recently opened device.
func (p *Provider) Current() *Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Device is a simulated opened camera.
type Device struct {
	provider *Provider
	id       string
	cb       camera.DeviceCallbacks

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	session *Session
}

// ID implements camera.Device.
func (d *Device) ID() string { return d.id }

// CreateSession implements camera.Device.
func (d *Device) CreateSession(outputs []camera.Output, cb camera.SessionCallbacks) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	s := &Session{device: d, outputs: append([]camera.Output(nil), outputs...)}
	d.session = s
	err := d.provider.opts.ConfigureErr
	go func() {
		if err != nil {
			cb.OnConfigureFailed(s, err)
			return
		}
		cb.OnConfigured(s)
	}()
	return nil
}

// Close implements camera.Device.
func (d *Device) Close() error {
	d.markClosed()
	return nil
}

func (d *Device) markClosed() {
	d.mu.Lock()
	s := d.session
	if !d.closed {
		d.closed = true
		close(d.done)
	}
	d.mu.Unlock()
	if s != nil {
		_ = s.Close()
	}
}

// Closed reports whether the device was closed.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Session is a simulated capture session.
type Session struct {
	device  *Device
	outputs []camera.Output

	mu        sync.Mutex
	closed    bool
	stop      chan struct{}
	repeating sync.WaitGroup
}

// SetRepeatingRequest implements camera.CaptureSession.
func (s *Session) SetRepeatingRequest(req camera.Request) error {
	if err := s.StopRepeating(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	stop := make(chan struct{})
	s.stop = stop
	s.repeating.Add(1)
	go func() {
		defer s.repeating.Done()
		t := time.NewTicker(s.device.provider.opts.PreviewInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				for _, out := range req.Targets {
					_ = out.Deliver(previewFrame(out.Stream().Size))
				}
			}
		}
	}()
	return nil
}

// StopRepeating implements camera.CaptureSession.
func (s *Session) StopRepeating() error {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	s.repeating.Wait()
	return nil
}

// Repeating reports whether a repeating request is running.
func (s *Session) Repeating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// Capture implements camera.CaptureSession. Results of a capture that
// was in flight when the session closed are still delivered.
func (s *Session) Capture(req camera.Request, cb camera.CaptureCallbacks) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errClosed
	}

	p := s.device.provider
	p.mu.Lock()
	p.captures++
	gate := p.captureGate
	p.mu.Unlock()

	go func() {
		if gate != nil {
			<-gate
		}
		if p.opts.CaptureErr != nil {
			cb.OnFailed(req, p.opts.CaptureErr)
			return
		}
		if p.opts.CompleteBeforeFrames {
			cb.OnCompleted(req)
		}
		now := time.Now()
		for _, out := range req.Targets {
			f, err := stillFrame(out.Stream(), p.opts.FrameDivisor, now)
			if err != nil {
				cb.OnFailed(req, err)
				return
			}
			_ = out.Deliver(f)
		}
		if !p.opts.CompleteBeforeFrames {
			cb.OnCompleted(req)
		}
	}()
	return nil
}

// Close implements camera.CaptureSession.
func (s *Session) Close() error {
	_ = s.StopRepeating()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Session returns the device's capture session, if configured.
func (d *Device) Session() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

func previewFrame(size geometry.Size) camera.Frame {
	return camera.Frame{
		Data:      make([]byte, 4*max(size.Width, 1)*max(size.Height, 1)),
		Width:     size.Width,
		Height:    size.Height,
		Format:    camera.FormatPreview,
		Timestamp: time.Now(),
	}
}

func stillFrame(st camera.StreamConfig, divisor int, at time.Time) (camera.Frame, error) {
	w := max(st.Size.Width/divisor, 1)
	h := max(st.Size.Height/divisor, 1)
	f := camera.Frame{Width: w, Height: h, Format: st.Format, Timestamp: at}

	switch st.Format {
	case camera.FormatJPEG:
		data, err := gradientJPEG(w, h)
		if err != nil {
			return camera.Frame{}, err
		}
		f.Data = data
	case camera.FormatRaw:
		f.Data = bayerDNG(w, h)
	default:
		return camera.Frame{}, fmt.Errorf("fake camera: cannot capture %v", st.Format)
	}
	return f, nil
}

// gradientJPEG renders a diagonal color ramp.
func gradientJPEG(w, h int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(255 * x / max(w-1, 1)),
				G: uint8(255 * y / max(h-1, 1)),
				B: 128,
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// bayerDNG returns a little-endian TIFF header followed by a 16-bit
// RGGB mosaic. It is not a complete DNG, only a stand-in payload.
func bayerDNG(w, h int) []byte {
	buf := make([]byte, 8+2*w*h)
	copy(buf, []byte{'I', 'I', 42, 0})
	binary.LittleEndian.PutUint32(buf[4:], 8)
	for i := 0; i < w*h; i++ {
		binary.LittleEndian.PutUint16(buf[8+2*i:], uint16(i%4096))
	}
	return buf
}
