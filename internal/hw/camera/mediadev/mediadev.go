// Package mediadev drives real cameras through pion/mediadevices (V4L2 on
// Linux). Webcams expose no RAW stream, so descriptors are never RAW
// capable.
package mediadev

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/prop"
	"golang.org/x/image/draw"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/hw/camera"
	"github.com/kelter-antunes/chromara/internal/logic/geometry"
)

var errStopped = errors.New("mediadev: stream stopped")

// Options tune the capture resolution requested from the driver.
type Options struct {
	// Still is the requested capture size; the driver picks the nearest mode.
	Still geometry.Size
	// Previews are the advertised preview sizes.
	Previews []geometry.Size
	// Quality of the JPEG encoded from each still frame.
	Quality int
}

// DefaultOptions suit a typical 1080p USB camera.
func DefaultOptions() Options {
	return Options{
		Still:    geometry.Size{Width: 1920, Height: 1080},
		Previews: []geometry.Size{{Width: 640, Height: 480}, {Width: 1280, Height: 720}},
		Quality:  95,
	}
}

// Provider implements camera.Provider over mediadevices.
type Provider struct {
	opts Options
}

// New creates a provider.
func New(opts Options) *Provider {
	def := DefaultOptions()
	if opts.Still.IsZero() {
		opts.Still = def.Still
	}
	if len(opts.Previews) == 0 {
		opts.Previews = def.Previews
	}
	if opts.Quality <= 0 {
		opts.Quality = def.Quality
	}
	return &Provider{opts: opts}
}

// Devices implements camera.Provider.
func (p *Provider) Devices() ([]camera.Descriptor, error) {
	var out []camera.Descriptor
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		out = append(out, p.descriptor(d.DeviceID, d.Label))
	}
	return out, nil
}

func (p *Provider) descriptor(id, label string) camera.Descriptor {
	d := camera.Descriptor{ID: id, Label: label}
	for _, s := range p.opts.Previews {
		d.Streams = append(d.Streams, camera.StreamConfig{Size: s, Format: camera.FormatPreview})
	}
	d.Streams = append(d.Streams, camera.StreamConfig{Size: p.opts.Still, Format: camera.FormatJPEG})
	return d
}

// OpenDevice implements camera.Provider. The stream is opened on its own
// goroutine and reported through cb.
func (p *Provider) OpenDevice(id string, cb camera.DeviceCallbacks) error {
	dev := &device{id: id, cb: cb, quality: p.opts.Quality}
	go func() {
		stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
			Video: func(c *mediadevices.MediaTrackConstraints) {
				c.DeviceID = prop.String(id)
				c.Width = prop.Int(p.opts.Still.Width)
				c.Height = prop.Int(p.opts.Still.Height)
			},
		})
		if err != nil {
			cb.OnError(dev, fmt.Errorf("get user media: %w", err))
			return
		}
		tracks := stream.GetVideoTracks()
		if len(tracks) == 0 {
			cb.OnError(dev, fmt.Errorf("camera %s: no video track", id))
			return
		}
		track, ok := tracks[0].(*mediadevices.VideoTrack)
		if !ok {
			_ = tracks[0].Close()
			cb.OnError(dev, fmt.Errorf("camera %s: unexpected track %T", id, tracks[0]))
			return
		}
		dev.attach(track)
		debug.Info("mediadev: camera %s opened", id)
		cb.OnOpened(dev)
	}()
	return nil
}

type device struct {
	id      string
	cb      camera.DeviceCallbacks
	quality int

	readMu sync.Mutex // serializes frame reads

	mu     sync.Mutex
	track  *mediadevices.VideoTrack
	read   func() (image.Image, func(), error)
	closed bool
	failed sync.Once
}

func (d *device) attach(track *mediadevices.VideoTrack) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.track = track
	r := track.NewReader(false)
	d.read = r.Read
}

func (d *device) ID() string { return d.id }

// readFrame pulls one frame and hands a converted copy to convert before
// releasing the driver buffer.
func (d *device) readFrame(convert func(image.Image) error) error {
	d.readMu.Lock()
	defer d.readMu.Unlock()
	d.mu.Lock()
	read, closed := d.read, d.closed
	d.mu.Unlock()
	if closed || read == nil {
		return errStopped
	}
	img, release, err := read()
	if err != nil {
		if d.isClosed() {
			return errStopped
		}
		return err
	}
	defer release()
	return convert(img)
}

// fail reports a stream failure once.
func (d *device) fail(err error) {
	d.failed.Do(func() {
		go d.cb.OnError(d, err)
	})
}

func (d *device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *device) CreateSession(outputs []camera.Output, cb camera.SessionCallbacks) error {
	if d.isClosed() {
		return errStopped
	}
	s := &session{device: d, outputs: append([]camera.Output(nil), outputs...)}
	go cb.OnConfigured(s)
	return nil
}

// Close stops the track. A read blocked in the driver returns with an
// error, which readFrame reports as errStopped.
func (d *device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	track := d.track
	d.mu.Unlock()
	if track != nil {
		return track.Close()
	}
	return nil
}

type session struct {
	device  *device
	outputs []camera.Output

	mu        sync.Mutex
	stop      chan struct{}
	repeating sync.WaitGroup
}

func (s *session) SetRepeatingRequest(req camera.Request) error {
	_ = s.StopRepeating()
	stop := make(chan struct{})
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()

	s.repeating.Add(1)
	go func() {
		defer s.repeating.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			err := s.device.readFrame(func(img image.Image) error {
				now := time.Now()
				for _, out := range req.Targets {
					_ = out.Deliver(PreviewFrame(img, out.Stream().Size, now))
				}
				return nil
			})
			if errors.Is(err, errStopped) {
				return
			}
			if err != nil {
				s.device.fail(err)
				return
			}
		}
	}()
	return nil
}

func (s *session) StopRepeating() error {
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

func (s *session) Capture(req camera.Request, cb camera.CaptureCallbacks) error {
	go func() {
		err := s.device.readFrame(func(img image.Image) error {
			now := time.Now()
			for _, out := range req.Targets {
				st := out.Stream()
				if st.Format != camera.FormatJPEG {
					return fmt.Errorf("mediadev: %v output not supported", st.Format)
				}
				f, err := StillFrame(img, st.Size, s.device.quality, now)
				if err != nil {
					return err
				}
				_ = out.Deliver(f)
			}
			return nil
		})
		if err != nil {
			cb.OnFailed(req, err)
			return
		}
		cb.OnCompleted(req)
	}()
	return nil
}

func (s *session) Close() error {
	return s.StopRepeating()
}

// PreviewFrame scales img into an RGBA frame of size.
func PreviewFrame(img image.Image, size geometry.Size, at time.Time) camera.Frame {
	dst := scale(img, size)
	return camera.Frame{
		Data:      dst.Pix,
		Width:     dst.Rect.Dx(),
		Height:    dst.Rect.Dy(),
		Format:    camera.FormatPreview,
		Timestamp: at,
	}
}

// StillFrame encodes img as a JPEG of size. A zero size keeps the
// native resolution.
func StillFrame(img image.Image, size geometry.Size, quality int, at time.Time) (camera.Frame, error) {
	src := img
	b := img.Bounds()
	if !size.IsZero() && (b.Dx() != size.Width || b.Dy() != size.Height) {
		src = scale(img, size)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return camera.Frame{}, fmt.Errorf("encode still: %w", err)
	}
	sb := src.Bounds()
	return camera.Frame{
		Data:      buf.Bytes(),
		Width:     sb.Dx(),
		Height:    sb.Dy(),
		Format:    camera.FormatJPEG,
		Timestamp: at,
	}, nil
}

func scale(img image.Image, size geometry.Size) *image.RGBA {
	if size.IsZero() {
		b := img.Bounds()
		size = geometry.Size{Width: b.Dx(), Height: b.Dy()}
	}
	dst := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
