package camera

import (
	"slices"
	"time"

	"github.com/kelter-antunes/chromara/internal/logic/geometry"
)

// PixelFormat identifies how a stream's bytes are laid out.
type PixelFormat int

const (
	FormatJPEG    PixelFormat = iota // encoded JPEG
	FormatRaw                        // Bayer sensor data (DNG payload)
	FormatPreview                    // uncompressed RGBA for display
)

func (f PixelFormat) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatRaw:
		return "raw"
	case FormatPreview:
		return "preview"
	default:
		return "unknown"
	}
}

// StreamConfig is one supported (size, format) output of a device.
type StreamConfig struct {
	Size   geometry.Size
	Format PixelFormat
}

// Descriptor carries the capability metadata of one camera.
// It is a snapshot: query the registry again to refresh it.
type Descriptor struct {
	ID         string
	Label      string
	Streams    []StreamConfig
	RawCapable bool
}

// Sizes returns the advertised sizes for format, in enumeration order.
func (d Descriptor) Sizes(format PixelFormat) []geometry.Size {
	var sizes []geometry.Size
	for _, s := range d.Streams {
		if s.Format == format {
			sizes = append(sizes, s.Size)
		}
	}
	return sizes
}

// Frame is one image buffer produced by the hardware.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Format    PixelFormat
	Timestamp time.Time
}

// Clone returns a copy of f that does not share its backing buffer.
func (f Frame) Clone() Frame {
	f.Data = slices.Clone(f.Data)
	return f
}

// Output is a destination the hardware can render frames into.
type Output interface {
	Stream() StreamConfig
	// Deliver hands a frame to the output. The output owns f.Data
	// afterwards; the hardware must not reuse it.
	Deliver(f Frame) error
}

// Template selects the tuning of a capture request.
type Template int

const (
	TemplatePreview Template = iota
	TemplateStill
)

func (t Template) String() string {
	if t == TemplateStill {
		return "still"
	}
	return "preview"
}

// ControlMode selects 3A behavior. Only automatic control is used.
type ControlMode int

const (
	ControlAuto ControlMode = iota
)

// Request is a capture request. Build it with NewRequest and do not
// modify it after submission.
type Request struct {
	ID              string
	Template        Template
	Targets         []Output
	ControlMode     ControlMode
	JPEGOrientation int
}

// NewRequest builds a request with automatic control targeting a copy of targets.
func NewRequest(id string, template Template, orientation int, targets ...Output) Request {
	return Request{
		ID:              id,
		Template:        template,
		Targets:         slices.Clone(targets),
		ControlMode:     ControlAuto,
		JPEGOrientation: orientation,
	}
}

// Provider gives access to the camera hardware service.
//
// Implementations deliver every callback asynchronously: a callback must
// never run inside the call that triggered it.
type Provider interface {
	Devices() ([]Descriptor, error)
	OpenDevice(id string, cb DeviceCallbacks) error
}

// DeviceCallbacks receive device state changes.
type DeviceCallbacks struct {
	OnOpened       func(Device)
	OnDisconnected func(Device)
	OnError        func(Device, error)
}

// Device is an opened camera.
type Device interface {
	ID() string
	CreateSession(outputs []Output, cb SessionCallbacks) error
	Close() error
}

// SessionCallbacks receive the result of session configuration.
type SessionCallbacks struct {
	OnConfigured      func(CaptureSession)
	OnConfigureFailed func(CaptureSession, error)
}

// CaptureSession streams requests to a configured set of outputs.
type CaptureSession interface {
	SetRepeatingRequest(req Request) error
	StopRepeating() error
	Capture(req Request, cb CaptureCallbacks) error
	Close() error
}

// CaptureCallbacks receive the hardware result of a one-shot request.
// Completion is independent of frame delivery to the request targets.
type CaptureCallbacks struct {
	OnCompleted func(Request)
	OnFailed    func(Request, error)
}
