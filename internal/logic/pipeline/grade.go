package pipeline

import (
	"image"
	"math"
)

// Luminance weights used by the saturation matrix.
const (
	lumR = 0.213
	lumG = 0.715
	lumB = 0.072
)

// Grade is a color transform: a saturation scale followed by a linear
// contrast per RGB channel, out = in*Contrast + Offset.
//
// Both steps are folded into one 3x3 matrix plus offset, so the result
// is clamped once at the end. Alpha is left unchanged.
type Grade struct {
	Saturation float64
	Contrast   float64
	Offset     float64
}

// DefaultGrade is the look applied to every capture.
var DefaultGrade = Grade{Saturation: 1.1, Contrast: 1.2, Offset: -30}

// matrix returns the combined row-major transform.
// Saturation row i: lum_j*(1-s) + s*[i==j]
func (g Grade) matrix() [3][3]float64 {
	lum := [3]float64{lumR, lumG, lumB}
	var m [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := lum[j] * (1 - g.Saturation)
			if i == j {
				v += g.Saturation
			}
			m[i][j] = v * g.Contrast
		}
	}
	return m
}

// Apply returns a graded copy of src.
func (g Grade) Apply(src *image.NRGBA) *image.NRGBA {
	m := g.matrix()
	b := src.Bounds()
	dst := image.NewNRGBA(b)

	for y := 0; y < b.Dy(); y++ {
		si := y * src.Stride
		di := y * dst.Stride
		for x := 0; x < b.Dx(); x++ {
			s := src.Pix[si : si+4 : si+4]
			d := dst.Pix[di : di+4 : di+4]
			r, gg, bb := float64(s[0]), float64(s[1]), float64(s[2])
			d[0] = clamp8(m[0][0]*r + m[0][1]*gg + m[0][2]*bb + g.Offset)
			d[1] = clamp8(m[1][0]*r + m[1][1]*gg + m[1][2]*bb + g.Offset)
			d[2] = clamp8(m[2][0]*r + m[2][1]*gg + m[2][2]*bb + g.Offset)
			d[3] = s[3]
			si += 4
			di += 4
		}
	}
	return dst
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}
