package pipeline

import (
	"context"
	"image"
	"image/color"
	"math"
	"runtime"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// weightOne is the fixed-point scale of blur weights.
const weightOne = 1 << 16

// Halation simulates light bloom: a Gaussian-blurred copy of the image
// is composited over it at a fixed opacity.
type Halation struct {
	Radius  int   // blur radius in pixels, both axes
	Opacity uint8 // 0-255 opacity of the blurred copy
}

// DefaultHalation blurs at radius 10 and blends at 80/255.
var DefaultHalation = Halation{Radius: 10, Opacity: 80}

// Sigma returns the Gaussian standard deviation for the radius.
// Formula: sigma = 0.4 * radius + 0.6
func (h Halation) Sigma() float64 {
	return 0.4*float64(h.Radius) + 0.6
}

// kernel returns 2*Radius+1 integer weights summing to exactly weightOne.
func (h Halation) kernel() []int {
	r := h.Radius
	sigma := h.Sigma()
	f := make([]float64, 2*r+1)
	var total float64
	for i := -r; i <= r; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		f[i+r] = v
		total += v
	}
	k := make([]int, len(f))
	sum := 0
	for i, v := range f {
		k[i] = int(math.Round(v / total * weightOne))
		sum += k[i]
	}
	// Rounding residue goes to the center tap.
	k[r] += weightOne - sum
	return k
}

// Apply returns src with the halation composite applied.
func (h Halation) Apply(ctx context.Context, src *image.NRGBA) (*image.RGBA, error) {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	if h.Radius <= 0 || h.Opacity == 0 || b.Empty() {
		return dst, nil
	}

	blurred, err := h.blur(ctx, src)
	if err != nil {
		return nil, err
	}
	mask := image.NewUniform(color.Alpha{A: h.Opacity})
	draw.DrawMask(dst, b, blurred, b.Min, mask, image.Point{}, draw.Over)
	return dst, nil
}

// blur runs a separable, edge-clamped Gaussian over every channel.
// Rows are split into bands processed in parallel.
func (h Halation) blur(ctx context.Context, src *image.NRGBA) (*image.NRGBA, error) {
	k := h.kernel()
	b := src.Bounds()
	w, ht := b.Dx(), b.Dy()
	tmp := image.NewNRGBA(b)
	out := image.NewNRGBA(b)

	// Horizontal pass: src -> tmp.
	err := forBands(ctx, ht, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := src.Pix[y*src.Stride:]
			dst := tmp.Pix[y*tmp.Stride:]
			for x := 0; x < w; x++ {
				var acc [4]int
				for i, wt := range k {
					sx := clampInt(x+i-h.Radius, 0, w-1) * 4
					acc[0] += wt * int(row[sx])
					acc[1] += wt * int(row[sx+1])
					acc[2] += wt * int(row[sx+2])
					acc[3] += wt * int(row[sx+3])
				}
				storeWeighted(dst[x*4:x*4+4], acc)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	// Vertical pass: tmp -> out.
	err = forBands(ctx, ht, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			dst := out.Pix[y*out.Stride:]
			for x := 0; x < w; x++ {
				var acc [4]int
				for i, wt := range k {
					sy := clampInt(y+i-h.Radius, 0, ht-1)
					p := tmp.Pix[sy*tmp.Stride+x*4:]
					acc[0] += wt * int(p[0])
					acc[1] += wt * int(p[1])
					acc[2] += wt * int(p[2])
					acc[3] += wt * int(p[3])
				}
				storeWeighted(dst[x*4:x*4+4], acc)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func storeWeighted(dst []byte, acc [4]int) {
	for c := 0; c < 4; c++ {
		dst[c] = uint8((acc[c] + weightOne/2) >> 16)
	}
}

// forBands splits [0, rows) into one band per CPU and runs fn on each.
func forBands(ctx context.Context, rows int, fn func(y0, y1 int)) error {
	n := runtime.GOMAXPROCS(0)
	if n > rows {
		n = rows
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	band := (rows + n - 1) / n
	for y0 := 0; y0 < rows; y0 += band {
		y0, y1 := y0, min(y0+band, rows)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(y0, y1)
			return nil
		})
	}
	return g.Wait()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
