package geometry

import "testing"

func TestLargestArea(t *testing.T) {
	cases := []struct {
		name   string
		sizes  []Size
		want   Size
		wantOK bool
	}{
		{"empty", nil, Size{}, false},
		{"single", []Size{{640, 480}}, Size{640, 480}, true},
		{"largest_last", []Size{{640, 480}, {1920, 1080}, {4000, 3000}}, Size{4000, 3000}, true},
		{"largest_first", []Size{{4000, 3000}, {640, 480}}, Size{4000, 3000}, true},
		// 1200x1000 and 1000x1200 share an area; the first enumerated wins.
		{"tie_first_wins", []Size{{1200, 1000}, {1000, 1200}}, Size{1200, 1000}, true},
		{"tie_after_smaller", []Size{{10, 10}, {1000, 1200}, {1200, 1000}}, Size{1000, 1200}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := LargestArea(tc.sizes)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if got != tc.want {
				t.Errorf("LargestArea = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLargestWithin(t *testing.T) {
	sizes := []Size{{640, 480}, {1920, 1080}, {3840, 2160}}

	got, ok := LargestWithin(sizes, Size{1920, 1080})
	if !ok || got != (Size{1920, 1080}) {
		t.Errorf("LargestWithin(1080p) = %v, %v; want 1920x1080", got, ok)
	}

	got, ok = LargestWithin(sizes, Size{320, 240})
	if !ok || got != (Size{640, 480}) {
		t.Errorf("LargestWithin(too small) = %v, %v; want smallest 640x480", got, ok)
	}

	if _, ok := LargestWithin(nil, Size{100, 100}); ok {
		t.Error("LargestWithin(nil) should report not found")
	}
}

func TestFitWithin(t *testing.T) {
	cases := []struct {
		src, bound, want Size
	}{
		{Size{4000, 3000}, Size{1920, 1080}, Size{1440, 1080}},
		{Size{1920, 1080}, Size{1280, 1280}, Size{1280, 720}},
		{Size{640, 480}, Size{1920, 1080}, Size{640, 480}},
		{Size{0, 0}, Size{100, 100}, Size{0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.src.String()+"_in_"+tc.bound.String(), func(t *testing.T) {
			if got := FitWithin(tc.src, tc.bound); got != tc.want {
				t.Errorf("FitWithin(%v, %v) = %v, want %v", tc.src, tc.bound, got, tc.want)
			}
		})
	}
}

func TestSizeArea_NoOverflow(t *testing.T) {
	s := Size{Width: 1 << 30, Height: 4}
	if got := s.Area(); got != 1<<32 {
		t.Errorf("Area = %d, want %d", got, int64(1)<<32)
	}
}
