package mediadev

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/kelter-antunes/chromara/internal/hw/camera"
	"github.com/kelter-antunes/chromara/internal/logic/geometry"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreviewFrameScalesToRGBA(t *testing.T) {
	at := time.Unix(1700000000, 0)
	f := PreviewFrame(solid(64, 48, color.RGBA{R: 200, A: 255}), geometry.Size{Width: 32, Height: 24}, at)

	if f.Format != camera.FormatPreview {
		t.Fatalf("format = %v, want preview", f.Format)
	}
	if f.Width != 32 || f.Height != 24 {
		t.Fatalf("size = %dx%d, want 32x24", f.Width, f.Height)
	}
	if len(f.Data) != 32*24*4 {
		t.Fatalf("len(data) = %d, want %d", len(f.Data), 32*24*4)
	}
	if f.Data[0] != 200 || f.Data[3] != 255 {
		t.Errorf("first pixel = %v, want red", f.Data[:4])
	}
	if !f.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", f.Timestamp, at)
	}
}

func TestStillFrameEncodesJPEG(t *testing.T) {
	tests := []struct {
		name string
		size geometry.Size
		w, h int
	}{
		{"native", geometry.Size{}, 40, 30},
		{"same size", geometry.Size{Width: 40, Height: 30}, 40, 30},
		{"scaled", geometry.Size{Width: 20, Height: 15}, 20, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := StillFrame(solid(40, 30, color.Gray{Y: 128}), tt.size, 90, time.Now())
			if err != nil {
				t.Fatalf("StillFrame: %v", err)
			}
			if f.Format != camera.FormatJPEG {
				t.Fatalf("format = %v, want jpeg", f.Format)
			}
			cfg, err := jpeg.DecodeConfig(bytes.NewReader(f.Data))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if cfg.Width != tt.w || cfg.Height != tt.h {
				t.Errorf("decoded %dx%d, want %dx%d", cfg.Width, cfg.Height, tt.w, tt.h)
			}
			if f.Width != tt.w || f.Height != tt.h {
				t.Errorf("frame %dx%d, want %dx%d", f.Width, f.Height, tt.w, tt.h)
			}
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p := New(Options{})
	def := DefaultOptions()
	if p.opts.Still != def.Still || p.opts.Quality != def.Quality || len(p.opts.Previews) != len(def.Previews) {
		t.Fatalf("opts = %+v, want defaults %+v", p.opts, def)
	}

	d := p.descriptor("video0", "USB Camera")
	if d.RawCapable {
		t.Error("webcam descriptor must not be RAW capable")
	}
	if got := d.Sizes(camera.FormatJPEG); len(got) != 1 || got[0] != def.Still {
		t.Errorf("jpeg sizes = %v, want [%v]", got, def.Still)
	}
	if got := d.Sizes(camera.FormatPreview); len(got) != 2 {
		t.Errorf("preview sizes = %v, want 2", got)
	}
}
