package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func uniform(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// ---------- Grade ----------

func TestGrade_KnownValues(t *testing.T) {
	cases := []struct {
		name string
		in   color.NRGBA
		want color.NRGBA
	}{
		{"black_clamps_low", color.NRGBA{0, 0, 0, 255}, color.NRGBA{0, 0, 0, 255}},
		{"white_clamps_high", color.NRGBA{255, 255, 255, 255}, color.NRGBA{255, 255, 255, 255}},
		// Gray has no saturation to scale: 100*1.2-30 = 90.
		{"gray", color.NRGBA{100, 100, 100, 255}, color.NRGBA{90, 90, 90, 255}},
		// lum = 132.15; r = 96.785*1.2-30, g = 151.785*1.2-30, b = 41.785*1.2-30
		{"mixed", color.NRGBA{100, 150, 50, 255}, color.NRGBA{86, 152, 20, 255}},
		{"alpha_unchanged", color.NRGBA{100, 150, 50, 128}, color.NRGBA{86, 152, 20, 128}},
		{"saturated_red", color.NRGBA{255, 0, 0, 255}, color.NRGBA{255, 0, 0, 255}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := DefaultGrade.Apply(uniform(2, 2, tc.in))
			if got := out.NRGBAAt(1, 1); got != tc.want {
				t.Errorf("Grade(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestGrade_Deterministic(t *testing.T) {
	src, err := Decode(testJPEG(t, 32, 24))
	if err != nil {
		t.Fatal(err)
	}
	before := append([]byte(nil), src.Pix...)

	a := DefaultGrade.Apply(src)
	b := DefaultGrade.Apply(src)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("grading the same buffer twice gave different results")
	}
	if !bytes.Equal(src.Pix, before) {
		t.Error("Apply must not modify its input")
	}
}

// ---------- Halation ----------

func TestHalation_Kernel(t *testing.T) {
	h := DefaultHalation
	if got := h.Sigma(); got < 4.599 || got > 4.601 {
		t.Errorf("Sigma = %v, want 4.6", got)
	}
	k := h.kernel()
	if len(k) != 21 {
		t.Fatalf("kernel taps = %d, want 21", len(k))
	}
	sum := 0
	for i, w := range k {
		sum += w
		if w != k[len(k)-1-i] {
			t.Errorf("kernel not symmetric at %d: %d vs %d", i, w, k[len(k)-1-i])
		}
	}
	if sum != weightOne {
		t.Errorf("kernel sum = %d, want %d", sum, weightOne)
	}
	if k[10] <= k[9] || k[0] <= 0 {
		t.Errorf("kernel should peak at the center and stay positive: %v", k)
	}
}

func TestHalation_FlatImageUnchanged(t *testing.T) {
	for _, c := range []uint8{0, 1, 37, 128, 200, 254, 255} {
		src := uniform(24, 17, color.NRGBA{c, c, c, 255})
		out, err := DefaultHalation.Apply(context.Background(), src)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		for i := 0; i < len(out.Pix); i += 4 {
			for ch := 0; ch < 3; ch++ {
				d := int(out.Pix[i+ch]) - int(c)
				if d < -1 || d > 1 {
					t.Fatalf("C=%d: pixel %d channel %d = %d", c, i/4, ch, out.Pix[i+ch])
				}
			}
			if out.Pix[i+3] != 255 {
				t.Fatalf("C=%d: alpha = %d, want 255", c, out.Pix[i+3])
			}
		}
	}
}

func TestHalation_BloomsAroundHighlight(t *testing.T) {
	src := uniform(41, 41, color.NRGBA{0, 0, 0, 255})
	src.SetNRGBA(20, 20, color.NRGBA{255, 255, 255, 255})

	out, err := DefaultHalation.Apply(context.Background(), src)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	center := out.RGBAAt(20, 20)
	near := out.RGBAAt(21, 20)
	far := out.RGBAAt(0, 0)
	if center.R >= 255 || center.R < 150 {
		t.Errorf("center = %d, want dimmed but dominant", center.R)
	}
	if near.R != 0 {
		t.Logf("neighbor bloom = %d", near.R)
	}
	if far.R != 0 {
		t.Errorf("corner = %d, want untouched", far.R)
	}
}

func TestHalation_Disabled(t *testing.T) {
	src := uniform(4, 4, color.NRGBA{10, 20, 30, 255})
	out, err := Halation{Radius: 0, Opacity: 80}.Apply(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.RGBAAt(2, 2); got != (color.RGBA{10, 20, 30, 255}) {
		t.Errorf("radius 0 should copy the image, got %v", got)
	}
}

func TestHalation_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DefaultHalation.Apply(ctx, uniform(8, 8, color.NRGBA{1, 2, 3, 255}))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// ---------- Process ----------

func TestProcess_ValidJPEG(t *testing.T) {
	in := testJPEG(t, 40, 30)
	out, err := New().Process(context.Background(), in)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if bytes.Equal(in, out) {
		t.Error("output should differ from input")
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if cfg.Width != 40 || cfg.Height != 30 {
		t.Errorf("output size = %dx%d, want 40x30", cfg.Width, cfg.Height)
	}
}

func TestProcess_CorruptInputDegrades(t *testing.T) {
	valid := testJPEG(t, 40, 30)
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not a jpeg")},
		{"truncated", valid[:len(valid)/3]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := New().Process(context.Background(), tc.data)
			if !errors.Is(err, ErrDecodeFailed) {
				t.Fatalf("err = %v, want ErrDecodeFailed", err)
			}
			if !bytes.Equal(out, tc.data) {
				t.Error("degraded output must be the original bytes")
			}
		})
	}
}

// ---------- Worker ----------

func TestWorker_Process(t *testing.T) {
	w := NewWorker(New(), 4)
	defer w.Stop()

	out, err := w.Process(context.Background(), testJPEG(t, 16, 16))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := jpeg.DecodeConfig(bytes.NewReader(out)); err != nil {
		t.Errorf("worker output is not a JPEG: %v", err)
	}

	bad := []byte("xx")
	out, err = w.Process(context.Background(), bad)
	if !errors.Is(err, ErrDecodeFailed) || !bytes.Equal(out, bad) {
		t.Errorf("worker degrade = %q, %v", out, err)
	}
}

func TestWorker_Stopped(t *testing.T) {
	w := NewWorker(New(), 1)
	w.Stop()
	w.Stop()

	if _, err := w.Process(context.Background(), []byte{1}); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("err = %v, want ErrWorkerStopped", err)
	}
}
