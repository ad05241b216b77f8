package camera

import (
	"context"
	"errors"
	"fmt"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/logic/geometry"
)

// ErrDeviceUnavailable is returned when no camera exists or the hardware
// service cannot be reached.
var ErrDeviceUnavailable = errors.New("camera device unavailable")

// FallbackJPEGSize is used when a device advertises no JPEG size.
var FallbackJPEGSize = geometry.Size{Width: 1920, Height: 1080}

// Registry enumerates cameras through a Provider.
type Registry struct {
	provider Provider
}

// NewRegistry creates a registry over p.
func NewRegistry(p Provider) *Registry {
	return &Registry{provider: p}
}

// ListDevices returns the descriptors of every available camera.
func (r *Registry) ListDevices(ctx context.Context) ([]Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	devices, err := r.provider.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no camera found", ErrDeviceUnavailable)
	}
	debug.Verbose("Registry: %d camera(s) found", len(devices))
	return devices, nil
}

// Lookup returns the descriptor for id. An empty id selects the first
// enumerated camera.
func (r *Registry) Lookup(ctx context.Context, id string) (Descriptor, error) {
	devices, err := r.ListDevices(ctx)
	if err != nil {
		return Descriptor{}, err
	}
	if id == "" {
		return devices[0], nil
	}
	for _, d := range devices {
		if d.ID == id {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: no camera with id %q", ErrDeviceUnavailable, id)
}

// BestJPEGSize picks the largest-area JPEG size, first enumerated on ties.
// Devices without a JPEG size get FallbackJPEGSize.
func BestJPEGSize(d Descriptor) geometry.Size {
	if s, ok := geometry.LargestArea(d.Sizes(FormatJPEG)); ok {
		return s
	}
	return FallbackJPEGSize
}

// BestRawSize picks the largest-area RAW size. ok is false when the
// device is not RAW capable.
func BestRawSize(d Descriptor) (geometry.Size, bool) {
	if !d.RawCapable {
		return geometry.Size{}, false
	}
	return geometry.LargestArea(d.Sizes(FormatRaw))
}

// BestPreviewSize picks the largest preview size fitting inside bound.
// Devices without a preview size reuse the best JPEG size scaled into bound.
func BestPreviewSize(d Descriptor, bound geometry.Size) geometry.Size {
	if s, ok := geometry.LargestWithin(d.Sizes(FormatPreview), bound); ok {
		return s
	}
	return geometry.FitWithin(BestJPEGSize(d), bound)
}
