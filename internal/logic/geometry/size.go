package geometry

import "fmt"

// Size is a frame resolution in pixels.
type Size struct {
	Width  int
	Height int
}

// Area returns the pixel count as int64.
func (s Size) Area() int64 {
	return int64(s.Width) * int64(s.Height)
}

// IsZero reports whether the size is unset.
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Fits reports whether s fits inside bound in both dimensions.
func (s Size) Fits(bound Size) bool {
	return s.Width <= bound.Width && s.Height <= bound.Height
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// LargestArea returns the size with the largest area.
// Ties are broken in favor of the first enumerated size.
// ok is false when sizes is empty.
func LargestArea(sizes []Size) (best Size, ok bool) {
	for _, s := range sizes {
		if !ok || s.Area() > best.Area() {
			best = s
			ok = true
		}
	}
	return best, ok
}

// LargestWithin returns the largest-area size that fits inside bound.
// When none fits, the smallest size is returned instead.
func LargestWithin(sizes []Size, bound Size) (Size, bool) {
	var fitting []Size
	for _, s := range sizes {
		if s.Fits(bound) {
			fitting = append(fitting, s)
		}
	}
	if best, ok := LargestArea(fitting); ok {
		return best, true
	}

	var smallest Size
	found := false
	for _, s := range sizes {
		if !found || s.Area() < smallest.Area() {
			smallest = s
			found = true
		}
	}
	return smallest, found
}

// FitWithin scales src down, preserving its aspect ratio, so that it fits
// inside bound. Sizes already inside bound are returned unchanged.
// Formula: scale = min(bound.W / src.W, bound.H / src.H)
func FitWithin(src, bound Size) Size {
	if src.IsZero() || bound.IsZero() || src.Fits(bound) {
		return src
	}
	// Compare cross products to avoid float rounding.
	if int64(bound.Width)*int64(src.Height) <= int64(bound.Height)*int64(src.Width) {
		h := int(int64(src.Height) * int64(bound.Width) / int64(src.Width))
		return Size{Width: bound.Width, Height: max(h, 1)}
	}
	w := int(int64(src.Width) * int64(bound.Height) / int64(src.Height))
	return Size{Width: max(w, 1), Height: bound.Height}
}
