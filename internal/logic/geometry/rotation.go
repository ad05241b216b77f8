package geometry

import "fmt"

// jpegOrientation maps device rotation to the JPEG rotation the still
// request must carry, for a sensor mounted at 90 degrees.
var jpegOrientation = map[int]int{
	0:   90,
	90:  0,
	180: 270,
	270: 180,
}

// JPEGOrientation returns the JPEG rotation in degrees for a device
// rotation of 0, 90, 180 or 270 degrees.
func JPEGOrientation(rotation int) (int, error) {
	o, ok := jpegOrientation[rotation]
	if !ok {
		return 0, fmt.Errorf("unsupported device rotation: %d", rotation)
	}
	return o, nil
}

// ValidRotation reports whether rotation is one of 0, 90, 180, 270.
func ValidRotation(rotation int) bool {
	_, ok := jpegOrientation[rotation]
	return ok
}
